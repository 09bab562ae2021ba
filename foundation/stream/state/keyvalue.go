package state

import (
	"encoding/json"
	"fmt"
)

// KeyValue provides typed access to a named store. Values are stored as JSON.
type KeyValue[T any] struct {
	name string
}

// NewKeyValue constructs a typed view over the named store.
func NewKeyValue[T any](name string) KeyValue[T] {
	return KeyValue[T]{name: name}
}

// Name returns the name of the underlying store.
func (kv KeyValue[T]) Name() string {
	return kv.name
}

// Get returns the value stored for the key.
func (kv KeyValue[T]) Get(tx *Tx, key uint64) (T, bool, error) {
	var v T

	data, exists := tx.Get(kv.name, key)
	if !exists {
		return v, false, nil
	}

	if err := json.Unmarshal(data, &v); err != nil {
		return v, false, fmt.Errorf("store[%s] key[%d]: %w: %s", kv.name, key, ErrCorrupt, err)
	}

	return v, true, nil
}

// Put stores the value for the key.
func (kv KeyValue[T]) Put(tx *Tx, key uint64, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store[%s] key[%d]: %w", kv.name, key, err)
	}

	tx.Put(kv.name, key, data)
	return nil
}

// Delete removes the key from the store.
func (kv KeyValue[T]) Delete(tx *Tx, key uint64) {
	tx.Delete(kv.name, key)
}

// Keys returns all keys held in the store in ascending order.
func (kv KeyValue[T]) Keys(tx *Tx) []uint64 {
	return tx.Keys(kv.name)
}
