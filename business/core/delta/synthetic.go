package delta

import (
	"time"

	"github.com/ardanlabs/ethdelta/foundation/blockchain/genesis"
	"github.com/ardanlabs/ethdelta/foundation/blockchain/hardfork"
	"github.com/ardanlabs/ethdelta/foundation/stream"
)

// epoch is the timestamp given to every premine delta.
var epoch = time.Unix(0, 0).UTC()

// PremineDeltas builds the premine balance deltas for the genesis block. It
// reports false for every other height. A tombstone for the genesis block is
// forwarded as a tombstone.
func PremineDeltas(gen genesis.Genesis, rec stream.Record[BlockHeader]) (stream.Record[List], bool) {
	if rec.Key != 0 {
		return stream.Record[List]{}, false
	}

	header, ok := rec.Value.Get()
	if !ok {
		return stream.NewRecord(rec.Key, epoch, stream.Tombstone[List]()), true
	}

	addrs := gen.Addresses()

	deltas := make([]Delta, len(addrs))
	for i, addr := range addrs {
		deltas[i] = Delta{
			TokenType: TokenEther,
			DeltaType: TypePremine,
			TraceLocation: TraceLocation{
				Timestamp: epoch,
				Height:    0,
				Hash:      header.Hash,
			},
			Address: addr,
			Amount:  gen.Balance(addr),
		}
	}

	list := List{
		Timestamp: epoch,
		Hash:      header.Hash,
		Apply:     true,
		Deltas:    deltas,
		Reversals: []Delta{},
	}

	return stream.NewRecord(rec.Key, epoch, stream.Present(list)), true
}

// HardForkDeltas builds the irregular balance corrections for the block. It
// reports false when no corrections are activated at the height. A tombstone
// is forwarded unchanged so a published correction can be retracted.
func HardForkDeltas(table hardfork.Table, rec stream.Record[BlockHeader]) (stream.Record[List], bool) {
	header, ok := rec.Value.Get()
	if !ok {
		return stream.NewRecord(rec.Key, rec.Timestamp, stream.Tombstone[List]()), true
	}

	rules := table.Rules(rec.Key)
	if len(rules) == 0 {
		return stream.Record[List]{}, false
	}

	deltas := make([]Delta, len(rules))
	for i, rule := range rules {
		deltas[i] = Delta{
			TokenType: TokenEther,
			DeltaType: TypeHardFork,
			TraceLocation: TraceLocation{
				Timestamp: header.Timestamp,
				Height:    rec.Key,
				Hash:      header.Hash,
			},
			Address: rule.Address,
			Amount:  rule.Amount,
		}
	}

	list := List{
		Timestamp: header.Timestamp,
		Hash:      header.Hash,
		Apply:     true,
		Deltas:    deltas,
		Reversals: []Delta{},
	}

	return stream.NewRecord(rec.Key, rec.Timestamp, stream.Present(list)), true
}
