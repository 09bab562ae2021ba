package stream

import (
	"time"

	"github.com/ardanlabs/ethdelta/foundation/stream/state"
)

// sweepsPerWindow sets how often buffered entries for every key are checked
// for expiry. A sweep runs each time stream time advances by window/24.
const sweepsPerWindow = 24

// Buffered is a record value held by a join until it ages out of the window.
type Buffered[T any] struct {
	Timestamp time.Time `json:"timestamp"`
	Value     T         `json:"value"`
}

// Clock tracks stream time for a partition. Stream time is the largest record
// timestamp seen so far and drives window expiry.
type Clock struct {
	StreamTime time.Time `json:"stream_time"`
	LastSweep  time.Time `json:"last_sweep"`
}

// JoinFunc combines a left and right value for the same key. It may return a
// tombstone to signal that the two sides can't be combined.
type JoinFunc[L, R, O any] func(left L, right R) Value[O]

// Join implements a windowed inner join of two keyed streams. Each side keeps
// an arrival ordered buffer per key. An arriving value is combined with every
// buffered value of the other side whose timestamp is within the window.
// Tombstones never reach the join function and are never buffered.
type Join[L, R, O any] struct {
	window time.Duration
	left   state.KeyValue[[]Buffered[L]]
	right  state.KeyValue[[]Buffered[R]]
	clock  state.KeyValue[Clock]
	fn     JoinFunc[L, R, O]
}

// NewJoin constructs a join whose buffers are kept in stores prefixed by name.
func NewJoin[L, R, O any](name string, window time.Duration, fn JoinFunc[L, R, O]) Join[L, R, O] {
	return Join[L, R, O]{
		window: window,
		left:   state.NewKeyValue[[]Buffered[L]](name + "-left"),
		right:  state.NewKeyValue[[]Buffered[R]](name + "-right"),
		clock:  state.NewKeyValue[Clock](name + "-clock"),
		fn:     fn,
	}
}

// Stores returns the names of the stores used by the join.
func (j Join[L, R, O]) Stores() []string {
	return []string{j.left.Name(), j.right.Name(), j.clock.Name()}
}

// Left processes a record arriving on the left stream.
func (j Join[L, R, O]) Left(tx *state.Tx, rec Record[L]) ([]Record[O], error) {
	fn := (func(L, R) Value[O])(j.fn)

	return joinSide(tx, j.window, j.clock, j.left, j.right, rec, fn, func() error {
		return j.sweep(tx)
	})
}

// Right processes a record arriving on the right stream.
func (j Join[L, R, O]) Right(tx *state.Tx, rec Record[R]) ([]Record[O], error) {
	fn := func(r R, l L) Value[O] {
		return j.fn(l, r)
	}

	return joinSide(tx, j.window, j.clock, j.right, j.left, rec, fn, func() error {
		return j.sweep(tx)
	})
}

// sweep purges expired entries for every key on both sides.
func (j Join[L, R, O]) sweep(tx *state.Tx) error {
	clk, _, err := j.clock.Get(tx, 0)
	if err != nil {
		return err
	}
	lowWater := clk.StreamTime.Add(-j.window)

	for _, key := range j.left.Keys(tx) {
		if _, err := purge(tx, j.left, key, lowWater); err != nil {
			return err
		}
	}
	for _, key := range j.right.Keys(tx) {
		if _, err := purge(tx, j.right, key, lowWater); err != nil {
			return err
		}
	}

	clk.LastSweep = clk.StreamTime
	return j.clock.Put(tx, 0, clk)
}

// =============================================================================

func joinSide[S, T, O any](tx *state.Tx, window time.Duration, clock state.KeyValue[Clock], own state.KeyValue[[]Buffered[S]], other state.KeyValue[[]Buffered[T]], rec Record[S], fn func(S, T) Value[O], sweep func() error) ([]Record[O], error) {
	payload, ok := rec.Value.Get()
	if !ok {
		return nil, nil
	}

	// Advance stream time.
	clk, _, err := clock.Get(tx, 0)
	if err != nil {
		return nil, err
	}
	if rec.Timestamp.After(clk.StreamTime) {
		clk.StreamTime = rec.Timestamp
	}
	if clk.LastSweep.IsZero() {
		clk.LastSweep = clk.StreamTime
	}
	if err := clock.Put(tx, 0, clk); err != nil {
		return nil, err
	}

	lowWater := clk.StreamTime.Add(-window)

	// A record older than the window has no partner left to join with.
	if rec.Timestamp.Before(lowWater) {
		return nil, nil
	}

	others, err := purge(tx, other, rec.Key, lowWater)
	if err != nil {
		return nil, err
	}

	var out []Record[O]
	for _, o := range others {
		if absDuration(rec.Timestamp.Sub(o.Timestamp)) > window {
			continue
		}

		ts := rec.Timestamp
		if o.Timestamp.After(ts) {
			ts = o.Timestamp
		}

		out = append(out, NewRecord(rec.Key, ts, fn(payload, o.Value)))
	}

	mine, err := purge(tx, own, rec.Key, lowWater)
	if err != nil {
		return nil, err
	}
	mine = append(mine, Buffered[S]{Timestamp: rec.Timestamp, Value: payload})
	if err := own.Put(tx, rec.Key, mine); err != nil {
		return nil, err
	}

	if window > 0 && clk.StreamTime.Sub(clk.LastSweep) >= window/sweepsPerWindow {
		if err := sweep(); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// purge drops buffered entries older than lowWater and returns what is left.
func purge[T any](tx *state.Tx, kv state.KeyValue[[]Buffered[T]], key uint64, lowWater time.Time) ([]Buffered[T], error) {
	entries, exists, err := kv.Get(tx, key)
	if err != nil || !exists {
		return nil, err
	}

	kept := entries[:0]
	for _, entry := range entries {
		if !entry.Timestamp.Before(lowWater) {
			kept = append(kept, entry)
		}
	}

	switch {
	case len(kept) == 0:
		kv.Delete(tx, key)
	case len(kept) != len(entries):
		if err := kv.Put(tx, key, kept); err != nil {
			return nil, err
		}
	}

	return kept, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
