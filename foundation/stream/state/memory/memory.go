// Package memory implements a state backend that keeps the store changelog
// in memory. It is used for unit testing and short lived processing.
package memory

import (
	"errors"
	"sync"

	"github.com/ardanlabs/ethdelta/foundation/stream/state"
)

// Memory represents a state backend holding an append-only changelog per
// partition in memory. This implements the state.Backend interface.
type Memory struct {
	mu        sync.RWMutex
	changelog map[int][]state.Changeset
	closed    bool
}

// New constructs a Memory value for use.
func New() (*Memory, error) {
	return &Memory{
		changelog: make(map[int][]state.Changeset),
	}, nil
}

// Close marks the backend closed. The changelog is kept so a new set of
// stores can be restored from it.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// Reopen allows the backend to be used again after Close.
func (m *Memory) Reopen() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = false
}

// Commit appends the changeset to the partition changelog.
func (m *Memory) Commit(partition int, cs state.Changeset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.New("backend closed")
	}

	cpy := state.Changeset{
		Entries: make([]state.Entry, len(cs.Entries)),
		Offsets: make(map[string]uint64, len(cs.Offsets)),
	}
	for i, entry := range cs.Entries {
		entry.Value = append([]byte(nil), entry.Value...)
		cpy.Entries[i] = entry
	}
	for topic, offset := range cs.Offsets {
		cpy.Offsets[topic] = offset
	}

	m.changelog[partition] = append(m.changelog[partition], cpy)
	return nil
}

// Restore replays the partition changelog into a snapshot.
func (m *Memory) Restore(partition int) (state.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return state.Snapshot{}, errors.New("backend closed")
	}

	snap := state.Snapshot{
		Offsets: make(map[string]uint64),
	}
	for _, cs := range m.changelog[partition] {
		snap.Entries = append(snap.Entries, cs.Entries...)
		for topic, offset := range cs.Offsets {
			snap.Offsets[topic] = offset
		}
	}

	return snap, nil
}
