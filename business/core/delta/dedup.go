package delta

import (
	"github.com/ardanlabs/ethdelta/foundation/stream"
	"github.com/ardanlabs/ethdelta/foundation/stream/state"
	"github.com/ethereum/go-ethereum/common"
)

// OncePerBlock suppresses redelivery of a block that was already forwarded.
// It remembers the hash last forwarded for each height so synthetic deltas
// are generated once per distinct block content.
type OncePerBlock struct {
	seen state.KeyValue[common.Hash]
}

// NewOncePerBlock constructs the filter with its state store.
func NewOncePerBlock() OncePerBlock {
	return OncePerBlock{
		seen: state.NewKeyValue[common.Hash]("canonical-records"),
	}
}

// Store returns the name of the store used by the filter.
func (o OncePerBlock) Store() string {
	return o.seen.Name()
}

// Filter reports whether the record must be forwarded. A record is forwarded
// the first time a height is seen and whenever the hash at that height
// changes. A tombstone is always forwarded and clears the remembered hash.
func (o OncePerBlock) Filter(tx *state.Tx, rec stream.Record[BlockHeader]) (bool, error) {
	header, ok := rec.Value.Get()
	if !ok {
		o.seen.Delete(tx, rec.Key)
		return true, nil
	}

	prev, exists, err := o.seen.Get(tx, rec.Key)
	if err != nil {
		return false, err
	}

	if exists && prev == header.Hash {
		return false, nil
	}

	if err := o.seen.Put(tx, rec.Key, header.Hash); err != nil {
		return false, err
	}

	return true, nil
}
