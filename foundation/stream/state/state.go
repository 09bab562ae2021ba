// Package state provides the keyed state stores used by stateful processing
// stages. Stores live in memory and are rebuilt on start from a backend that
// holds their changelog. Store mutations and the consumer offsets of the
// record that caused them are committed to the backend as a single unit.
package state

import (
	"errors"
	"fmt"
	"sort"
)

// ErrCorrupt is returned when stored state can't be decoded.
var ErrCorrupt = errors.New("state corrupt")

// ErrTxDone is returned when a transaction is used after it was committed
// or rolled back.
var ErrTxDone = errors.New("transaction already completed")

// Entry represents a single mutation of a keyed store.
type Entry struct {
	Store   string `json:"store"`
	Key     uint64 `json:"key"`
	Value   []byte `json:"value,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}

// Snapshot is the recovered state of a partition.
type Snapshot struct {
	Entries []Entry
	Offsets map[string]uint64
}

// Changeset is the unit of work committed atomically to a backend.
type Changeset struct {
	Entries []Entry
	Offsets map[string]uint64
}

// Backend interface represents the behavior required to be implemented by any
// package providing durable storage for the store changelog.
type Backend interface {
	Restore(partition int) (Snapshot, error)
	Commit(partition int, cs Changeset) error
	Close() error
}

// =============================================================================

// Stores holds every keyed store for a single partition. A Stores value is
// owned by the worker processing the partition and is not safe for
// concurrent use.
type Stores struct {
	partition int
	backend   Backend
	data      map[string]map[uint64][]byte
	offsets   map[string]uint64
}

// Open rebuilds the stores for the partition from the backend.
func Open(backend Backend, partition int) (*Stores, error) {
	snap, err := backend.Restore(partition)
	if err != nil {
		return nil, fmt.Errorf("restore partition[%d]: %w", partition, err)
	}

	s := Stores{
		partition: partition,
		backend:   backend,
		data:      make(map[string]map[uint64][]byte),
		offsets:   make(map[string]uint64),
	}

	for _, entry := range snap.Entries {
		s.apply(entry)
	}
	for topic, offset := range snap.Offsets {
		s.offsets[topic] = offset
	}

	return &s, nil
}

// Partition returns the partition these stores belong to.
func (s *Stores) Partition() int {
	return s.partition
}

// Offset returns the next offset to consume for the specified topic.
func (s *Stores) Offset(topic string) uint64 {
	return s.offsets[topic]
}

// Begin starts a new transaction against the stores.
func (s *Stores) Begin() *Tx {
	return &Tx{
		stores:  s,
		writes:  make(map[string]map[uint64]Entry),
		offsets: make(map[string]uint64),
	}
}

// apply performs the mutation in memory.
func (s *Stores) apply(entry Entry) {
	store, exists := s.data[entry.Store]
	if !exists {
		store = make(map[uint64][]byte)
		s.data[entry.Store] = store
	}

	if entry.Deleted {
		delete(store, entry.Key)
		return
	}

	store[entry.Key] = entry.Value
}

// =============================================================================

// Tx stages mutations and offset changes until they are committed.
type Tx struct {
	stores  *Stores
	writes  map[string]map[uint64]Entry
	offsets map[string]uint64
	done    bool
}

// Get returns the raw value for the key in the specified store.
func (tx *Tx) Get(store string, key uint64) ([]byte, bool) {
	if writes, exists := tx.writes[store]; exists {
		if entry, exists := writes[key]; exists {
			if entry.Deleted {
				return nil, false
			}
			return entry.Value, true
		}
	}

	value, exists := tx.stores.data[store][key]
	return value, exists
}

// Put stages a value for the key in the specified store.
func (tx *Tx) Put(store string, key uint64, value []byte) {
	tx.stage(Entry{Store: store, Key: key, Value: value})
}

// Delete stages the removal of the key from the specified store.
func (tx *Tx) Delete(store string, key uint64) {
	tx.stage(Entry{Store: store, Key: key, Deleted: true})
}

// Keys returns the keys present in the specified store in ascending order.
func (tx *Tx) Keys(store string) []uint64 {
	set := make(map[uint64]bool)
	for key := range tx.stores.data[store] {
		set[key] = true
	}
	for key, entry := range tx.writes[store] {
		set[key] = !entry.Deleted
	}

	keys := make([]uint64, 0, len(set))
	for key, exists := range set {
		if exists {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	return keys
}

// SetOffset records the next offset to consume for the specified topic.
func (tx *Tx) SetOffset(topic string, offset uint64) {
	tx.offsets[topic] = offset
}

// Commit writes the staged changes to the backend and then applies them to
// the in-memory stores. Nothing is applied if the backend write fails.
func (tx *Tx) Commit() error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true

	cs := Changeset{
		Entries: tx.entries(),
		Offsets: tx.offsets,
	}

	if len(cs.Entries) == 0 && len(cs.Offsets) == 0 {
		return nil
	}

	if err := tx.stores.backend.Commit(tx.stores.partition, cs); err != nil {
		return fmt.Errorf("commit partition[%d]: %w", tx.stores.partition, err)
	}

	for _, entry := range cs.Entries {
		tx.stores.apply(entry)
	}
	for topic, offset := range cs.Offsets {
		tx.stores.offsets[topic] = offset
	}

	return nil
}

// Rollback discards the staged changes.
func (tx *Tx) Rollback() {
	tx.done = true
	tx.writes = nil
	tx.offsets = nil
}

// stage records the entry, replacing any earlier write to the same key.
func (tx *Tx) stage(entry Entry) {
	writes, exists := tx.writes[entry.Store]
	if !exists {
		writes = make(map[uint64]Entry)
		tx.writes[entry.Store] = writes
	}
	writes[entry.Key] = entry
}

// entries returns the staged writes ordered by store and key.
func (tx *Tx) entries() []Entry {
	var entries []Entry
	for _, writes := range tx.writes {
		for _, entry := range writes {
			entries = append(entries, entry)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Store != entries[j].Store {
			return entries[i].Store < entries[j].Store
		}
		return entries[i].Key < entries[j].Key
	})

	return entries
}
