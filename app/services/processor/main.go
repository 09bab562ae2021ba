package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/ardanlabs/ethdelta/app/services/processor/handlers"
	"github.com/ardanlabs/ethdelta/business/core/delta"
	"github.com/ardanlabs/ethdelta/foundation/blockchain/genesis"
	"github.com/ardanlabs/ethdelta/foundation/blockchain/hardfork"
	"github.com/ardanlabs/ethdelta/foundation/events"
	"github.com/ardanlabs/ethdelta/foundation/logger"
	"github.com/ardanlabs/ethdelta/foundation/stream/state"
	"github.com/ardanlabs/ethdelta/foundation/stream/state/dbpebble"
	statemem "github.com/ardanlabs/ethdelta/foundation/stream/state/memory"
	"github.com/ardanlabs/ethdelta/foundation/stream/topic"
	"github.com/ardanlabs/ethdelta/foundation/stream/topic/dblevel"
	topicmem "github.com/ardanlabs/ethdelta/foundation/stream/topic/memory"
	"github.com/ardanlabs/ethdelta/foundation/stream/worker"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("PROCESSOR")
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

	// =========================================================================
	// Configuration

	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			PublicHost      string        `conf:"default:0.0.0.0:8080"`
			PrivateHost     string        `conf:"default:0.0.0.0:9080"`
			CorsOrigins     []string      `conf:"default:*"`
		}
		Stream struct {
			Partitions  int           `conf:"default:4"`
			BatchSize   int           `conf:"default:100"`
			JoinWindow  time.Duration `conf:"default:24h"`
			UnitTesting bool          `conf:"default:false"`
			LogPath     string        `conf:"default:zblock/topics.db"`
			StatePath   string        `conf:"default:zblock/state.db"`
		}
		Network struct {
			GenesisPath  string `conf:"default:zblock/genesis.json"`
			HardForkPath string `conf:"default:zblock/hardforks.json"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "reorg safe ether balance delta processor",
		},
	}

	// Parse will set the defaults and then look for any overriding values
	// in environment variables and command line flags.
	const prefix = "PROCESSOR"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Network Support

	// The static network configuration must be valid before any partition
	// starts consuming, otherwise deltas would be published from bad data.
	gen, err := genesis.Load(cfg.Network.GenesisPath)
	if err != nil {
		return fmt.Errorf("unable to load genesis file: %w", err)
	}
	log.Infow("startup", "status", "genesis loaded", "chainid", gen.ChainID, "accounts", len(gen.Balances))

	forks, err := hardfork.Load(cfg.Network.HardForkPath)
	if err != nil {
		return fmt.Errorf("unable to load hard fork table: %w", err)
	}
	for _, height := range forks.Heights() {
		log.Infow("startup", "status", "hard fork", "name", forks.Name(height), "height", height, "corrections", len(forks.Rules(height)))
	}

	// =========================================================================
	// Stream Support

	topics, backend, err := openStorage(cfg.Stream.UnitTesting, cfg.Stream.LogPath, cfg.Stream.StatePath, cfg.Stream.Partitions)
	if err != nil {
		return err
	}
	defer func() {
		log.Infow("shutdown", "status", "closing storage")
		topics.Close()
		backend.Close()
	}()

	// The stream packages accept a function of this signature to allow the
	// application to log. These raw messages are also sent to any websocket
	// client that is connected into the system through the events package.
	evts := events.New()
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
		evts.Send([]byte(s))
	}

	topology := delta.New(delta.Config{
		Genesis:    gen,
		HardForks:  forks,
		JoinWindow: cfg.Stream.JoinWindow,
		EvHandler:  ev,
	})

	log.Infow("startup", "status", "topology built", "sources", topology.Sources(), "stores", topology.Stores())

	pool, err := worker.Run(worker.Config{
		Log:       topics,
		Backend:   backend,
		Task:      topology,
		BatchSize: cfg.Stream.BatchSize,
		EvHandler: ev,
	})
	if err != nil {
		return fmt.Errorf("unable to start worker pool: %w", err)
	}
	defer pool.Shutdown()

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug v1 router started", "host", cfg.Web.DebugHost)

	debugMux := handlers.DebugMux(build, log, pool)

	// Start the service listening for debug requests.
	// Not concerned with shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug v1 router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Service Start/Stop Support

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	// =========================================================================
	// Start Public Service

	log.Infow("startup", "status", "initializing V1 public API support")

	publicMux := handlers.PublicMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		Topics:   topics,
		Genesis:  gen,
		Evts:     evts,
		Origins:  cfg.Web.CorsOrigins,
	})

	public := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      publicMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	go func() {
		log.Infow("startup", "status", "public api router started", "host", public.Addr)
		serverErrors <- public.ListenAndServe()
	}()

	// =========================================================================
	// Start Private Service

	log.Infow("startup", "status", "initializing V1 private API support")

	privateMux := handlers.PrivateMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		Topics:   topics,
	})

	private := http.Server{
		Addr:         cfg.Web.PrivateHost,
		Handler:      privateMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	go func() {
		log.Infow("startup", "status", "private api router started", "host", private.Addr)
		serverErrors <- private.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	// Blocking main and waiting for shutdown.
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Release any web sockets that are currently active.
		log.Infow("shutdown", "status", "shutdown web socket channels")
		evts.Shutdown()

		// Stop accepting canonical records first so nothing new lands in the
		// log while the partitions wind down.
		ctx, cancelPri := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancelPri()

		log.Infow("shutdown", "status", "shutdown private API started")
		if err := private.Shutdown(ctx); err != nil {
			private.Close()
			return fmt.Errorf("could not stop private service gracefully: %w", err)
		}

		ctx, cancelPub := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancelPub()

		log.Infow("shutdown", "status", "shutdown public API started")
		if err := public.Shutdown(ctx); err != nil {
			public.Close()
			return fmt.Errorf("could not stop public service gracefully: %w", err)
		}
	}

	return nil
}

// openStorage constructs the log and the state backend. Unit testing mode
// keeps everything in memory.
func openStorage(unitTesting bool, logPath string, statePath string, partitions int) (topic.Log, state.Backend, error) {
	if unitTesting {
		topics, err := topicmem.New(partitions)
		if err != nil {
			return nil, nil, err
		}
		backend, err := statemem.New()
		if err != nil {
			return nil, nil, err
		}
		return topics, backend, nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, nil, err
	}

	topics, err := dblevel.New(logPath, partitions)
	if err != nil {
		return nil, nil, err
	}

	backend, err := dbpebble.New(statePath)
	if err != nil {
		topics.Close()
		return nil, nil, err
	}

	return topics, backend, nil
}
