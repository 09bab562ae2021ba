// Package dblevel implements a partitioned log on top of leveldb. Messages are
// stored under a key made of topic, partition and offset so a partition can be
// read back in append order with a range iterator.
package dblevel

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/ethdelta/foundation/stream"
	"github.com/ardanlabs/ethdelta/foundation/stream/topic"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// KMessage is the key prefix for log messages.
const KMessage = 'm'

const (
	SizePartition = 4
	SizeOffset    = 8
)

// LevelDB represents a partitioned log stored in leveldb. This implements the
// topic.Log interface.
type LevelDB struct {
	mu         sync.Mutex
	db         *leveldb.DB
	partitions int
	next       map[string][]uint64
	signal     *topic.Signal
}

// New opens or creates the leveldb database at the specified path.
func New(path string, partitions int) (*LevelDB, error) {
	if partitions < 1 {
		partitions = 1
	}

	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}

	ldb := LevelDB{
		db:         db,
		partitions: partitions,
		next:       make(map[string][]uint64),
		signal:     topic.NewSignal(),
	}

	return &ldb, nil
}

// Close closes the database.
func (l *LevelDB) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.db.Close()
}

// Partitions returns the number of partitions for every topic.
func (l *LevelDB) Partitions() int {
	return l.partitions
}

// Changed returns a channel that is closed on the next append.
func (l *LevelDB) Changed() <-chan struct{} {
	return l.signal.Wait()
}

// Append writes the message at the end of its partition with a synced write.
func (l *LevelDB) Append(msg stream.Message) (stream.Message, error) {
	l.mu.Lock()

	msg.Partition = stream.Partition(msg.Key, l.partitions)

	offset, err := l.nextOffset(msg.Topic, msg.Partition)
	if err != nil {
		l.mu.Unlock()
		return stream.Message{}, err
	}
	msg.Offset = offset

	data, err := json.Marshal(msg)
	if err != nil {
		l.mu.Unlock()
		return stream.Message{}, err
	}

	if err := l.db.Put(KeyMessage(msg.Topic, msg.Partition, offset), data, &opt.WriteOptions{Sync: true}); err != nil {
		l.mu.Unlock()
		return stream.Message{}, mapErr(err)
	}
	l.next[msg.Topic][msg.Partition] = offset + 1

	l.mu.Unlock()

	l.signal.Broadcast()
	return msg, nil
}

// Read returns up to max messages from the partition starting at offset.
func (l *LevelDB) Read(topicName string, partition int, offset uint64, max int) ([]stream.Message, error) {
	lb := KeyMessage(topicName, partition, offset)
	_, ub := BoundsPartition(topicName, partition)

	iter := l.db.NewIterator(&util.Range{Start: lb, Limit: ub}, nil)
	defer iter.Release()

	var msgs []stream.Message
	for iter.Next() {
		var msg stream.Message
		if err := json.Unmarshal(iter.Value(), &msg); err != nil {
			return nil, fmt.Errorf("decode message %x: %w", iter.Key(), err)
		}
		msgs = append(msgs, msg)

		if max > 0 && len(msgs) == max {
			break
		}
	}

	if err := iter.Error(); err != nil {
		return nil, mapErr(err)
	}

	return msgs, nil
}

// nextOffset returns the offset for the next append, recovering it from
// disk the first time a partition is written to.
func (l *LevelDB) nextOffset(topicName string, partition int) (uint64, error) {
	offsets, exists := l.next[topicName]
	if !exists {
		offsets = make([]uint64, l.partitions)
		for p := range offsets {
			next, err := l.recoverOffset(topicName, p)
			if err != nil {
				return 0, err
			}
			offsets[p] = next
		}
		l.next[topicName] = offsets
	}

	return offsets[partition], nil
}

// recoverOffset finds the last stored offset for the partition.
func (l *LevelDB) recoverOffset(topicName string, partition int) (uint64, error) {
	lb, ub := BoundsPartition(topicName, partition)

	iter := l.db.NewIterator(&util.Range{Start: lb, Limit: ub}, nil)
	defer iter.Release()

	if !iter.Last() {
		return 0, mapErr(iter.Error())
	}

	k := iter.Key()
	last := binary.BigEndian.Uint64(k[len(k)-SizeOffset:])

	return last + 1, nil
}

// =============================================================================

// KeyMessage forms the key for a message.
// Layout: KMessage | len(topic) | topic | partition | offset
func KeyMessage(topicName string, partition int, offset uint64) []byte {
	k := make([]byte, 1+1+len(topicName)+SizePartition+SizeOffset)
	k[0] = KMessage
	k[1] = byte(len(topicName))
	copy(k[2:], topicName)
	binary.BigEndian.PutUint32(k[2+len(topicName):], uint32(partition))
	binary.BigEndian.PutUint64(k[2+len(topicName)+SizePartition:], offset)
	return k
}

// BoundsPartition returns the key range covering one partition of a topic.
func BoundsPartition(topicName string, partition int) (lb, ub []byte) {
	lb = KeyMessage(topicName, partition, 0)

	ub = make([]byte, len(lb))
	copy(ub, lb)
	for i := 2 + len(topicName) + SizePartition; i < len(ub); i++ {
		ub[i] = 0xFF
	}
	return
}

func mapErr(err error) error {
	if errors.Is(err, leveldb.ErrClosed) {
		return topic.ErrClosed
	}
	return err
}
