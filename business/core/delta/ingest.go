package delta

import (
	"fmt"
	"time"

	"github.com/ardanlabs/ethdelta/foundation/stream"
	"github.com/ardanlabs/ethdelta/foundation/stream/topic"
)

// PublishBlockHeader appends the canonical block header for its height.
func PublishBlockHeader(log topic.Log, header BlockHeader) (stream.Message, error) {
	rec := stream.NewRecord(header.Number, header.Timestamp, stream.Present(header))
	return publish(log, TopicBlockAuthor, rec)
}

// RetractBlockHeader appends a tombstone for the block header at the height.
// This happens when the block at the height is no longer canonical and no
// replacement is known yet.
func RetractBlockHeader(log topic.Log, height uint64, now time.Time) (stream.Message, error) {
	rec := stream.NewRecord(height, now, stream.Tombstone[BlockHeader]())
	return publish(log, TopicBlockAuthor, rec)
}

// PublishFeeList appends the canonical transaction fee list for its height.
func PublishFeeList(log topic.Log, fees FeeList) (stream.Message, error) {
	rec := stream.NewRecord(fees.Number, fees.Timestamp, stream.Present(fees))
	return publish(log, TopicTransactionFees, rec)
}

// RetractFeeList appends a tombstone for the fee list at the height.
func RetractFeeList(log topic.Log, height uint64, now time.Time) (stream.Message, error) {
	rec := stream.NewRecord(height, now, stream.Tombstone[FeeList]())
	return publish(log, TopicTransactionFees, rec)
}

func publish[T any](log topic.Log, topicName string, rec stream.Record[T]) (stream.Message, error) {
	msg, err := stream.Encode(topicName, rec)
	if err != nil {
		return stream.Message{}, err
	}

	msg, err = log.Append(msg)
	if err != nil {
		return stream.Message{}, fmt.Errorf("append topic[%s] key[%d]: %w", topicName, rec.Key, err)
	}

	return msg, nil
}

// =============================================================================

// Published represents a delta list event as it was published for a height.
// List is nil for a tombstone.
type Published struct {
	Topic     string    `json:"topic"`
	Offset    uint64    `json:"offset"`
	Height    uint64    `json:"height"`
	Timestamp time.Time `json:"timestamp"`
	Tombstone bool      `json:"tombstone"`
	List      *List     `json:"list,omitempty"`
}

// ToPublished decodes a message from one of the output topics.
func ToPublished(msg stream.Message) (Published, error) {
	rec, err := stream.Decode[List](msg)
	if err != nil {
		return Published{}, err
	}

	pub := Published{
		Topic:     msg.Topic,
		Offset:    msg.Offset,
		Height:    msg.Key,
		Timestamp: msg.Timestamp,
		Tombstone: msg.Tombstone,
	}
	if list, ok := rec.Value.Get(); ok {
		pub.List = &list
	}

	return pub, nil
}

// QueryByHeight returns every event published to the topic for the height
// in publication order.
func QueryByHeight(log topic.Log, topicName string, height uint64) ([]Published, error) {
	const batch = 500

	partition := stream.Partition(height, log.Partitions())

	var pubs []Published
	var offset uint64
	for {
		msgs, err := log.Read(topicName, partition, offset, batch)
		if err != nil {
			return nil, err
		}

		for _, msg := range msgs {
			offset = msg.Offset + 1
			if msg.Key != height {
				continue
			}

			pub, err := ToPublished(msg)
			if err != nil {
				return nil, err
			}
			pubs = append(pubs, pub)
		}

		if len(msgs) < batch {
			return pubs, nil
		}
	}
}
