// Package memory implements a partitioned log in memory using slices.
package memory

import (
	"sync"

	"github.com/ardanlabs/ethdelta/foundation/stream"
	"github.com/ardanlabs/ethdelta/foundation/stream/topic"
)

// Memory represents a partitioned log held in memory. This implements the
// topic.Log interface.
type Memory struct {
	mu         sync.RWMutex
	partitions int
	topics     map[string][][]stream.Message
	signal     *topic.Signal
	closed     bool
}

// New constructs a Memory value with the specified number of partitions.
func New(partitions int) (*Memory, error) {
	if partitions < 1 {
		partitions = 1
	}

	return &Memory{
		partitions: partitions,
		topics:     make(map[string][][]stream.Message),
		signal:     topic.NewSignal(),
	}, nil
}

// Close marks the log closed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// Partitions returns the number of partitions for every topic.
func (m *Memory) Partitions() int {
	return m.partitions
}

// Changed returns a channel that is closed on the next append.
func (m *Memory) Changed() <-chan struct{} {
	return m.signal.Wait()
}

// Append stores the message at the end of its partition.
func (m *Memory) Append(msg stream.Message) (stream.Message, error) {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()
		return stream.Message{}, topic.ErrClosed
	}

	parts, exists := m.topics[msg.Topic]
	if !exists {
		parts = make([][]stream.Message, m.partitions)
		m.topics[msg.Topic] = parts
	}

	msg.Partition = stream.Partition(msg.Key, m.partitions)
	msg.Offset = uint64(len(parts[msg.Partition]))
	parts[msg.Partition] = append(parts[msg.Partition], msg)

	m.mu.Unlock()

	m.signal.Broadcast()
	return msg, nil
}

// Read returns up to max messages from the partition starting at offset.
func (m *Memory) Read(topicName string, partition int, offset uint64, max int) ([]stream.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, topic.ErrClosed
	}

	parts, exists := m.topics[topicName]
	if !exists || partition >= len(parts) {
		return nil, nil
	}

	msgs := parts[partition]
	if offset >= uint64(len(msgs)) {
		return nil, nil
	}

	end := uint64(len(msgs))
	if max > 0 && offset+uint64(max) < end {
		end = offset + uint64(max)
	}

	out := make([]stream.Message, end-offset)
	copy(out, msgs[offset:end])

	return out, nil
}
