// Package dbpebble implements a state backend on top of pebble. Every
// changeset is written as one synced batch so store mutations and consumer
// offsets survive a crash together or not at all.
package dbpebble

import (
	"encoding/binary"
	"fmt"
	"math"
	"path/filepath"

	"github.com/ardanlabs/ethdelta/foundation/stream/state"
	"github.com/cockroachdb/pebble"
)

// Prefix Keys "K"
const (
	KStore  = 's'
	KOffset = 'o'
)

const (
	SizePartition = 4
	SizeKey       = 8
)

// Pebble represents a state backend stored in a pebble database. This
// implements the state.Backend interface.
type Pebble struct {
	db *pebble.DB
}

// New opens or creates the pebble database at the specified path.
func New(path string) (*Pebble, error) {
	opts := (&pebble.Options{}).EnsureDefaults()
	opts.Cache = pebble.NewCache(64 << 20)
	defer opts.Cache.Unref()
	opts.BytesPerSync = 1 << 20

	db, err := pebble.Open(filepath.Clean(path), opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble %s: %w", path, err)
	}

	return &Pebble{db: db}, nil
}

// Close flushes and closes the database.
func (p *Pebble) Close() error {
	return p.db.Close()
}

// Commit writes the changeset in a single synced batch.
func (p *Pebble) Commit(partition int, cs state.Changeset) error {
	b := p.db.NewBatch()
	defer b.Close()

	for _, entry := range cs.Entries {
		key := KeyStore(partition, entry.Store, entry.Key)

		if entry.Deleted {
			if err := b.Delete(key, nil); err != nil {
				return err
			}
			continue
		}

		if err := b.Set(key, entry.Value, nil); err != nil {
			return err
		}
	}

	for topic, offset := range cs.Offsets {
		val := make([]byte, SizeKey)
		binary.BigEndian.PutUint64(val, offset)
		if err := b.Set(KeyOffset(partition, topic), val, nil); err != nil {
			return err
		}
	}

	return b.Commit(pebble.Sync)
}

// Restore reads every store entry and offset recorded for the partition.
func (p *Pebble) Restore(partition int) (state.Snapshot, error) {
	snap := state.Snapshot{
		Offsets: make(map[string]uint64),
	}

	lb, ub := BoundsPartition(KStore, partition)
	it, err := p.db.NewIter(&pebble.IterOptions{LowerBound: lb, UpperBound: ub})
	if err != nil {
		return state.Snapshot{}, err
	}

	for it.First(); it.Valid(); it.Next() {
		store, key, err := parseStoreKey(it.Key())
		if err != nil {
			it.Close()
			return state.Snapshot{}, err
		}

		snap.Entries = append(snap.Entries, state.Entry{
			Store: store,
			Key:   key,
			Value: append([]byte(nil), it.Value()...),
		})
	}
	if err := it.Close(); err != nil {
		return state.Snapshot{}, err
	}

	lb, ub = BoundsPartition(KOffset, partition)
	it, err = p.db.NewIter(&pebble.IterOptions{LowerBound: lb, UpperBound: ub})
	if err != nil {
		return state.Snapshot{}, err
	}

	for it.First(); it.Valid(); it.Next() {
		k := it.Key()
		v := it.Value()
		if len(v) != SizeKey {
			it.Close()
			return state.Snapshot{}, fmt.Errorf("offset %x: %w", k, state.ErrCorrupt)
		}

		topic := string(k[1+SizePartition:])
		snap.Offsets[topic] = binary.BigEndian.Uint64(v)
	}
	if err := it.Close(); err != nil {
		return state.Snapshot{}, err
	}

	return snap, nil
}

// =============================================================================

// KeyStore forms the key for a store entry.
// Layout: KStore | partition | len(store) | store | key
func KeyStore(partition int, store string, key uint64) []byte {
	k := make([]byte, 1+SizePartition+1+len(store)+SizeKey)
	k[0] = KStore
	binary.BigEndian.PutUint32(k[1:], uint32(partition))
	k[1+SizePartition] = byte(len(store))
	copy(k[1+SizePartition+1:], store)
	binary.BigEndian.PutUint64(k[1+SizePartition+1+len(store):], key)
	return k
}

// KeyOffset forms the key for a consumer offset.
// Layout: KOffset | partition | topic
func KeyOffset(partition int, topic string) []byte {
	k := make([]byte, 1+SizePartition+len(topic))
	k[0] = KOffset
	binary.BigEndian.PutUint32(k[1:], uint32(partition))
	copy(k[1+SizePartition:], topic)
	return k
}

// BoundsPartition returns the key range covering one partition for a prefix.
func BoundsPartition(prefix byte, partition int) (lb, ub []byte) {
	lb = make([]byte, 1+SizePartition)
	lb[0] = prefix
	binary.BigEndian.PutUint32(lb[1:], uint32(partition))

	ub = make([]byte, 1+SizePartition)
	ub[0] = prefix
	if uint32(partition) == math.MaxUint32 {
		ub[0] = prefix + 1
		return
	}
	binary.BigEndian.PutUint32(ub[1:], uint32(partition)+1)
	return
}

func parseStoreKey(k []byte) (string, uint64, error) {
	if len(k) < 1+SizePartition+1+SizeKey {
		return "", 0, fmt.Errorf("store key %x: %w", k, state.ErrCorrupt)
	}

	n := int(k[1+SizePartition])
	if len(k) != 1+SizePartition+1+n+SizeKey {
		return "", 0, fmt.Errorf("store key %x: %w", k, state.ErrCorrupt)
	}

	store := string(k[1+SizePartition+1 : 1+SizePartition+1+n])
	key := binary.BigEndian.Uint64(k[1+SizePartition+1+n:])

	return store, key, nil
}
