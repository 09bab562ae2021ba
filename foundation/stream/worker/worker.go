// Package worker runs a task over every partition of a log. Each partition is
// owned by a single goroutine that processes its records one at a time in
// offset order and commits state changes together with the consumed offset.
package worker

import (
	"expvar"
	"fmt"
	"sync"

	"github.com/ardanlabs/ethdelta/foundation/stream"
	"github.com/ardanlabs/ethdelta/foundation/stream/state"
	"github.com/ardanlabs/ethdelta/foundation/stream/topic"
)

// defaultBatchSize is the number of messages read from a topic partition
// before the next topic is checked.
const defaultBatchSize = 100

var counters = struct {
	processed *expvar.Int
	halted    *expvar.Int
}{
	processed: expvar.NewInt("records_processed"),
	halted:    expvar.NewInt("partitions_halted"),
}

// EventHandler defines a function that is called when events
// occur in the processing of partitions.
type EventHandler func(v string, args ...any)

// Task interface represents the behavior required to be implemented by any
// package providing the processing logic for a partition.
type Task interface {
	Sources() []string
	Process(tx *state.Tx, msg stream.Message) ([]stream.Message, error)
}

// Config represents the configuration required to run a pool.
type Config struct {
	Log       topic.Log
	Backend   state.Backend
	Task      Task
	BatchSize int
	EvHandler EventHandler
}

// =============================================================================

// Pool manages the set of partition goroutines.
type Pool struct {
	wg         sync.WaitGroup
	shut       chan struct{}
	evHandler  EventHandler
	partitions []*partition

	mu     sync.Mutex
	halted map[int]error
}

// Run restores the state of every partition and then starts a goroutine per
// partition. No partition starts consuming if any partition fails to restore.
func Run(cfg Config) (*Pool, error) {
	ev := safeEvHandler(cfg.EvHandler)
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}

	partitions, err := openPartitions(cfg)
	if err != nil {
		return nil, err
	}

	p := Pool{
		shut:       make(chan struct{}),
		evHandler:  ev,
		partitions: partitions,
		halted:     make(map[int]error),
	}

	g := len(partitions)
	p.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	for _, pt := range partitions {
		go func(pt *partition) {
			defer p.wg.Done()
			hasStarted <- true
			p.operations(pt)
		}(pt)
	}

	for range g {
		<-hasStarted
	}

	return &p, nil
}

// Shutdown signals every partition to stop once its in-flight record is
// committed and waits for them to return.
func (p *Pool) Shutdown() {
	p.evHandler("worker: shutdown: started")
	defer p.evHandler("worker: shutdown: completed")

	close(p.shut)
	p.wg.Wait()
}

// Halted returns the partitions that stopped because of a processing error.
func (p *Pool) Halted() map[int]error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cpy := make(map[int]error, len(p.halted))
	for id, err := range p.halted {
		cpy[id] = err
	}
	return cpy
}

// operations processes a partition until shutdown or a failure.
func (p *Pool) operations(pt *partition) {
	p.evHandler("worker: partition[%d]: G started", pt.id)
	defer p.evHandler("worker: partition[%d]: G completed", pt.id)

	for {
		wait := pt.log.Changed()

		progress, err := pt.step(p.shut)
		if err != nil {
			p.evHandler("worker: partition[%d]: HALTED: %s", pt.id, err)
			counters.halted.Add(1)

			p.mu.Lock()
			p.halted[pt.id] = err
			p.mu.Unlock()
			return
		}

		if progress {
			continue
		}

		select {
		case <-wait:
		case <-p.shut:
			p.evHandler("worker: partition[%d]: received shut signal", pt.id)
			return
		}
	}
}

// =============================================================================

// Drain processes every partition synchronously until no partition has
// records left to consume. State is restored from the backend first, so a
// drain continues from the last committed offsets.
func Drain(cfg Config) error {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}

	partitions, err := openPartitions(cfg)
	if err != nil {
		return err
	}

	for {
		var progress bool
		for _, pt := range partitions {
			ok, err := pt.step(nil)
			if err != nil {
				return fmt.Errorf("partition[%d]: %w", pt.id, err)
			}
			progress = progress || ok
		}

		if !progress {
			return nil
		}
	}
}

// =============================================================================

// partition holds what a single goroutine needs to process one partition.
type partition struct {
	id        int
	log       topic.Log
	task      Task
	stores    *state.Stores
	batchSize int
}

func openPartitions(cfg Config) ([]*partition, error) {
	n := cfg.Log.Partitions()

	partitions := make([]*partition, n)
	for id := range n {
		stores, err := state.Open(cfg.Backend, id)
		if err != nil {
			return nil, err
		}

		partitions[id] = &partition{
			id:        id,
			log:       cfg.Log,
			task:      cfg.Task,
			stores:    stores,
			batchSize: cfg.BatchSize,
		}
	}

	return partitions, nil
}

// step reads a batch from each source topic and processes it. It reports
// whether any record was consumed.
func (pt *partition) step(shut <-chan struct{}) (bool, error) {
	var progress bool

	for _, source := range pt.task.Sources() {
		msgs, err := pt.log.Read(source, pt.id, pt.stores.Offset(source), pt.batchSize)
		if err != nil {
			return progress, fmt.Errorf("read topic[%s]: %w", source, err)
		}

		for _, msg := range msgs {
			if isShutdown(shut) {
				return progress, nil
			}

			if err := pt.process(msg); err != nil {
				return progress, err
			}
			progress = true
		}
	}

	return progress, nil
}

// process runs the task for one message, publishes its output and commits
// the state changes along with the advanced offset. Output published before
// a failed commit is published again when the message is reprocessed.
func (pt *partition) process(msg stream.Message) error {
	tx := pt.stores.Begin()

	outs, err := pt.task.Process(tx, msg)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("process topic[%s] offset[%d]: %w", msg.Topic, msg.Offset, err)
	}

	for _, out := range outs {
		if _, err := pt.log.Append(out); err != nil {
			tx.Rollback()
			return fmt.Errorf("publish topic[%s] key[%d]: %w", out.Topic, out.Key, err)
		}
	}

	tx.SetOffset(msg.Topic, msg.Offset+1)
	if err := tx.Commit(); err != nil {
		return err
	}

	counters.processed.Add(1)
	return nil
}

// =============================================================================

// isShutdown is used to test if a shutdown has been signaled.
func isShutdown(shut <-chan struct{}) bool {
	if shut == nil {
		return false
	}

	select {
	case <-shut:
		return true
	default:
		return false
	}
}

// safeEvHandler builds an event handler that can be called when none was
// provided.
func safeEvHandler(evHandler EventHandler) EventHandler {
	return func(v string, args ...any) {
		if evHandler != nil {
			evHandler(v, args...)
		}
	}
}
