// Package stream provides the record model shared by every processing stage.
// Each record is keyed by block height and carries either a value or an
// explicit tombstone that retracts the previous value for that key.
package stream

import (
	"time"
)

// Value represents the payload of a record. A value is either present or a
// tombstone. The zero value is a tombstone.
type Value[T any] struct {
	payload T
	present bool
}

// Present constructs a value that carries the specified payload.
func Present[T any](payload T) Value[T] {
	return Value[T]{
		payload: payload,
		present: true,
	}
}

// Tombstone constructs a value that retracts any previous value for a key.
func Tombstone[T any]() Value[T] {
	return Value[T]{}
}

// Get returns the payload and true if the value is present.
func (v Value[T]) Get() (T, bool) {
	return v.payload, v.present
}

// IsTombstone reports whether the value is a tombstone.
func (v Value[T]) IsTombstone() bool {
	return !v.present
}

// MapValue applies fn to a present value. Tombstones pass through unchanged.
func MapValue[T, U any](v Value[T], fn func(T) U) Value[U] {
	payload, ok := v.Get()
	if !ok {
		return Tombstone[U]()
	}

	return Present(fn(payload))
}

// =============================================================================

// Record represents a keyed value flowing through a topology.
type Record[T any] struct {
	Key       uint64
	Timestamp time.Time
	Value     Value[T]
}

// NewRecord constructs a record for the specified key.
func NewRecord[T any](key uint64, timestamp time.Time, value Value[T]) Record[T] {
	return Record[T]{
		Key:       key,
		Timestamp: timestamp,
		Value:     value,
	}
}

// =============================================================================

// Message is the serialized form of a record as it is stored in a topic.
type Message struct {
	Topic     string    `json:"topic"`
	Partition int       `json:"partition"`
	Offset    uint64    `json:"offset"`
	Key       uint64    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	Tombstone bool      `json:"tombstone"`
	Payload   []byte    `json:"payload,omitempty"`
}

// Partition returns the partition a key belongs to. Keys partition
// deterministically so all records for a key are handled by one worker.
func Partition(key uint64, partitions int) int {
	if partitions <= 1 {
		return 0
	}

	return int(key % uint64(partitions))
}
