package commands

import (
	"encoding/json"
	"io"
	"time"

	"github.com/ardanlabs/ethdelta/foundation/stream/topic/dblevel"
)

// entry is a stored message with its payload left as JSON.
type entry struct {
	Topic     string          `json:"topic"`
	Partition int             `json:"partition"`
	Offset    uint64          `json:"offset"`
	Key       uint64          `json:"key"`
	Timestamp time.Time       `json:"timestamp"`
	Tombstone bool            `json:"tombstone"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Topic writes every message stored for a topic in the durable log, one JSON
// document per line in partition and offset order.
func Topic(logPath string, partitions int, topicName string, from uint64, w io.Writer) error {
	log, err := dblevel.New(logPath, partitions)
	if err != nil {
		return err
	}
	defer log.Close()

	enc := json.NewEncoder(w)
	for p := range log.Partitions() {
		msgs, err := log.Read(topicName, p, from, 0)
		if err != nil {
			return err
		}

		for _, msg := range msgs {
			e := entry{
				Topic:     msg.Topic,
				Partition: msg.Partition,
				Offset:    msg.Offset,
				Key:       msg.Key,
				Timestamp: msg.Timestamp,
				Tombstone: msg.Tombstone,
				Payload:   msg.Payload,
			}
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
	}

	return nil
}
