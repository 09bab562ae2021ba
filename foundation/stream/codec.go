package stream

import (
	"encoding/json"
	"fmt"
)

// Encode converts a record into a message for the specified topic. The
// partition and offset are assigned by the log on append.
func Encode[T any](topic string, rec Record[T]) (Message, error) {
	msg := Message{
		Topic:     topic,
		Key:       rec.Key,
		Timestamp: rec.Timestamp,
		Tombstone: rec.Value.IsTombstone(),
	}

	payload, ok := rec.Value.Get()
	if !ok {
		return msg, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode topic[%s] key[%d]: %w", topic, rec.Key, err)
	}
	msg.Payload = data

	return msg, nil
}

// Decode converts a message back into a typed record.
func Decode[T any](msg Message) (Record[T], error) {
	if msg.Tombstone {
		return NewRecord(msg.Key, msg.Timestamp, Tombstone[T]()), nil
	}

	var payload T
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return Record[T]{}, fmt.Errorf("decode topic[%s] offset[%d]: %w", msg.Topic, msg.Offset, err)
	}

	return NewRecord(msg.Key, msg.Timestamp, Present(payload)), nil
}
