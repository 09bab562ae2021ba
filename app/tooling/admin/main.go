// This program performs administrative tasks for the delta processor.
package main

import (
	"fmt"
	"os"

	"github.com/ardanlabs/ethdelta/app/tooling/admin/commands"
	"github.com/ardanlabs/ethdelta/business/core/delta"
	"github.com/ardanlabs/ethdelta/foundation/blockchain/genesis"
	"github.com/ardanlabs/ethdelta/foundation/blockchain/hardfork"
	"github.com/ardanlabs/ethdelta/foundation/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

// Flags shared by the commands.
var (
	genesisPath  string
	hardForkPath string
	logPath      string
	partitions   int
)

func main() {

	// Construct the application logger.
	log, err := logger.New("ADMIN")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {
	rootCmd := &cobra.Command{
		Use:           "admin",
		Short:         "Administrative tasks for the delta processor",
		Version:       build,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&genesisPath, "genesis", "zblock/genesis.json", "path to the genesis file")
	rootCmd.PersistentFlags().StringVar(&hardForkPath, "hardforks", "zblock/hardforks.json", "path to the hard fork table")
	rootCmd.PersistentFlags().StringVar(&logPath, "log", "zblock/topics.db", "path to the topic log")
	rootCmd.PersistentFlags().IntVar(&partitions, "partitions", 4, "number of log partitions")

	rootCmd.AddCommand(premineCmd(), replayCmd(log), topicCmd())

	return rootCmd.Execute()
}

// =============================================================================

func premineCmd() *cobra.Command {
	var hash string

	cmd := &cobra.Command{
		Use:   "premine",
		Short: "Print the premine deltas for the genesis file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := commands.Premine(genesisPath, common.HexToHash(hash), cmd.OutOrStdout()); err != nil {
				return fmt.Errorf("premine: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&hash, "hash", "", "hash of the genesis block")

	return cmd
}

func replayCmd(log *zap.SugaredLogger) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "replay <file>",
		Short: "Run canonical records through a fresh topology and print the deltas",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, err := genesis.Load(genesisPath)
			if err != nil {
				return fmt.Errorf("loading genesis: %w", err)
			}

			forks, err := hardfork.Load(hardForkPath)
			if err != nil {
				return fmt.Errorf("loading hard forks: %w", err)
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			cfg := commands.ReplayConfig{
				Genesis:    gen,
				HardForks:  forks,
				JoinWindow: delta.DefaultJoinWindow,
				Partitions: partitions,
			}
			if verbose {
				cfg.EvHandler = func(v string, args ...any) {
					log.Infow(fmt.Sprintf(v, args...))
				}
			}

			if err := commands.Replay(cfg, f, cmd.OutOrStdout()); err != nil {
				return fmt.Errorf("replay: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log processing events")

	return cmd
}

func topicCmd() *cobra.Command {
	var from uint64

	cmd := &cobra.Command{
		Use:   "topic <name>",
		Short: "Dump the messages of a topic from the log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := commands.Topic(logPath, partitions, args[0], from, cmd.OutOrStdout()); err != nil {
				return fmt.Errorf("topic: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().Uint64Var(&from, "from", 0, "offset to start from in every partition")

	return cmd
}
