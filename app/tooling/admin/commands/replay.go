package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/ardanlabs/ethdelta/business/core/delta"
	"github.com/ardanlabs/ethdelta/foundation/blockchain/genesis"
	"github.com/ardanlabs/ethdelta/foundation/blockchain/hardfork"
	"github.com/ardanlabs/ethdelta/foundation/stream"
	statemem "github.com/ardanlabs/ethdelta/foundation/stream/state/memory"
	"github.com/ardanlabs/ethdelta/foundation/stream/topic"
	topicmem "github.com/ardanlabs/ethdelta/foundation/stream/topic/memory"
	"github.com/ardanlabs/ethdelta/foundation/stream/worker"
)

// Set of input record kinds accepted by replay.
const (
	KindBlock = "block"
	KindFees  = "fees"
)

// Input is one line of a replay file. A record without a block or fee list
// retracts the record at the height. A retraction is stamped with Timestamp,
// or with the time of the record before it when Timestamp is not set, so the
// same file always replays to the same output.
type Input struct {
	Kind      string             `json:"kind"`
	Height    uint64             `json:"height"`
	Timestamp time.Time          `json:"timestamp,omitzero"`
	Block     *delta.BlockHeader `json:"block,omitempty"`
	Fees      *delta.FeeList     `json:"fees,omitempty"`
}

// ReplayConfig represents the network configuration used by a replay.
type ReplayConfig struct {
	Genesis    genesis.Genesis
	HardForks  hardfork.Table
	JoinWindow time.Duration
	Partitions int
	EvHandler  func(v string, args ...any)
}

// Replay runs the canonical records read from r through a cold in-memory
// topology and writes every published delta list event to w, one JSON
// document per line, grouped by topic and ordered by height.
func Replay(cfg ReplayConfig, r io.Reader, w io.Writer) error {
	if cfg.Partitions <= 0 {
		cfg.Partitions = 1
	}

	log, err := topicmem.New(cfg.Partitions)
	if err != nil {
		return err
	}
	defer log.Close()

	backend, err := statemem.New()
	if err != nil {
		return err
	}
	defer backend.Close()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var line int
	last := time.Unix(0, 0).UTC()
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}

		var in Input
		if err := json.Unmarshal(scanner.Bytes(), &in); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}

		msg, err := publishInput(log, in, last)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		last = msg.Timestamp
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	wcfg := worker.Config{
		Log:     log,
		Backend: backend,
		Task: delta.New(delta.Config{
			Genesis:    cfg.Genesis,
			HardForks:  cfg.HardForks,
			JoinWindow: cfg.JoinWindow,
			EvHandler:  cfg.EvHandler,
		}),
		EvHandler: cfg.EvHandler,
	}
	if err := worker.Drain(wcfg); err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	for _, topicName := range []string{
		delta.TopicPremineBalanceDelta,
		delta.TopicHardForkBalanceDelta,
		delta.TopicTransactionFeeBalanceDelta,
		delta.TopicMinerFeeBalanceDelta,
	} {
		pubs, err := readTopic(log, topicName)
		if err != nil {
			return err
		}

		for _, pub := range pubs {
			if err := enc.Encode(pub); err != nil {
				return err
			}
		}
	}

	return nil
}

func publishInput(log topic.Log, in Input, last time.Time) (stream.Message, error) {
	retractAt := in.Timestamp
	if retractAt.IsZero() {
		retractAt = last
	}

	switch in.Kind {
	case KindBlock:
		if in.Block == nil {
			return delta.RetractBlockHeader(log, in.Height, retractAt)
		}
		return delta.PublishBlockHeader(log, *in.Block)

	case KindFees:
		if in.Fees == nil {
			return delta.RetractFeeList(log, in.Height, retractAt)
		}
		return delta.PublishFeeList(log, *in.Fees)
	}

	return stream.Message{}, fmt.Errorf("unknown kind %q", in.Kind)
}

// readTopic returns every event of a topic ordered by height and then by
// publication order.
func readTopic(log topic.Log, topicName string) ([]delta.Published, error) {
	var pubs []delta.Published
	for p := range log.Partitions() {
		msgs, err := log.Read(topicName, p, 0, 0)
		if err != nil {
			return nil, err
		}

		for _, msg := range msgs {
			pub, err := delta.ToPublished(msg)
			if err != nil {
				return nil, err
			}
			pubs = append(pubs, pub)
		}
	}

	sort.SliceStable(pubs, func(i, j int) bool {
		return pubs[i].Height < pubs[j].Height
	})

	return pubs, nil
}
