// Package topic defines the partitioned append-only log records are
// published to and consumed from. Records for a key always land in the same
// partition and are read back in append order.
package topic

import (
	"errors"
	"sync"

	"github.com/ardanlabs/ethdelta/foundation/stream"
)

// ErrClosed is returned when the log is used after it was closed.
var ErrClosed = errors.New("log closed")

// Log interface represents the behavior required to be implemented by any
// package providing a partitioned log.
type Log interface {
	Append(msg stream.Message) (stream.Message, error)
	Read(topic string, partition int, offset uint64, max int) ([]stream.Message, error)
	Changed() <-chan struct{}
	Partitions() int
	Close() error
}

// =============================================================================

// Signal lets readers wait for the next append without polling. Readers grab
// the channel before reading so an append made during the read is not missed.
type Signal struct {
	mu sync.Mutex
	ch chan struct{}
}

// NewSignal constructs a signal for use.
func NewSignal() *Signal {
	return &Signal{
		ch: make(chan struct{}),
	}
}

// Wait returns a channel that is closed on the next Broadcast.
func (s *Signal) Wait() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ch
}

// Broadcast wakes up every reader waiting on the current channel.
func (s *Signal) Broadcast() {
	s.mu.Lock()
	defer s.mu.Unlock()

	close(s.ch)
	s.ch = make(chan struct{})
}
