package delta

import (
	"github.com/ardanlabs/ethdelta/foundation/stream"
	"github.com/ardanlabs/ethdelta/foundation/stream/state"
)

// Reverser makes a stream of delta lists safe to apply across chain
// reorganizations. It remembers the list last applied at each height and,
// when a different block replaces it, attaches the negated deltas of the
// replaced list as reversals.
type Reverser struct {
	applied state.KeyValue[List]
}

// NewReverser constructs a reverser with its own store. Every output stream
// must use a reverser with a distinct name.
func NewReverser(name string) Reverser {
	return Reverser{
		applied: state.NewKeyValue[List](name + "-reversals"),
	}
}

// Store returns the name of the store used by the reverser.
func (r Reverser) Store() string {
	return r.applied.Name()
}

// Apply processes the next list for a height. Tombstones pass through and
// leave the remembered list untouched.
func (r Reverser) Apply(tx *state.Tx, rec stream.Record[List]) (stream.Record[List], error) {
	next, ok := rec.Value.Get()
	if !ok {
		return rec, nil
	}

	out, err := supersede(tx, r.applied, rec.Key, next)
	if err != nil {
		return stream.Record[List]{}, err
	}

	return stream.NewRecord(rec.Key, rec.Timestamp, stream.Present(out)), nil
}

// =============================================================================

// supersede decides how the next list relates to the one stored for the key.
//
//	no stored list:   apply the next list and remember it.
//	same block hash:  re-emit the stored deltas flagged not to be applied.
//	other block hash: apply the next list with the stored deltas reversed and
//	                  remember the next list.
func supersede(tx *state.Tx, kv state.KeyValue[List], key uint64, next List) (List, error) {
	prev, exists, err := kv.Get(tx, key)
	if err != nil {
		return List{}, err
	}

	if exists && prev.Hash == next.Hash {
		return List{
			Timestamp: next.Timestamp,
			Hash:      prev.Hash,
			Apply:     false,
			Deltas:    cloneDeltas(prev.Deltas),
			Reversals: []Delta{},
		}, nil
	}

	out := List{
		Timestamp: next.Timestamp,
		Hash:      next.Hash,
		Apply:     true,
		Deltas:    cloneDeltas(next.Deltas),
		Reversals: []Delta{},
	}
	if exists {
		out.Reversals = Reverse(prev.Deltas)
	}

	if err := kv.Put(tx, key, out); err != nil {
		return List{}, err
	}

	return out, nil
}
