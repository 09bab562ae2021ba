package delta

import (
	"math/big"

	"github.com/ardanlabs/ethdelta/foundation/stream"
	"github.com/ardanlabs/ethdelta/foundation/stream/state"
)

// TransactionFeeDeltas converts the fee list for a block into a delta per
// transaction, in transaction order. Tombstones pass through.
func TransactionFeeDeltas(rec stream.Record[FeeList]) stream.Record[List] {
	value := stream.MapValue(rec.Value, func(fees FeeList) List {
		deltas := make([]Delta, len(fees.Fees))
		for i, fee := range fees.Fees {
			deltas[i] = Delta{
				TokenType: TokenEther,
				DeltaType: TypeTransactionFee,
				TraceLocation: TraceLocation{
					Timestamp: fees.Timestamp,
					Height:    fees.Number,
					Hash:      fees.Hash,
				},
				Address: fee.Address,
				Amount:  amountOf(fee.Fee),
			}
		}

		return List{
			Timestamp: fees.Timestamp,
			Hash:      fees.Hash,
			Apply:     true,
			Deltas:    deltas,
			Reversals: []Delta{},
		}
	})

	return stream.NewRecord(rec.Key, rec.Timestamp, value)
}

// =============================================================================

// JoinMinerFee credits the block author with the sum of every fee paid in
// the block. A header and fee list from different blocks at the same height
// can't be combined and produce a tombstone.
func JoinMinerFee(header BlockHeader, fees FeeList) stream.Value[Delta] {
	if header.Hash != fees.Hash {
		return stream.Tombstone[Delta]()
	}

	total := new(big.Int)
	for _, fee := range fees.Fees {
		if fee.Fee != nil {
			total.Add(total, fee.Fee)
		}
	}

	return stream.Present(Delta{
		TokenType: TokenEther,
		DeltaType: TypeMinerFee,
		TraceLocation: TraceLocation{
			Timestamp: header.Timestamp,
			Height:    header.Number,
			Hash:      header.Hash,
		},
		Address: header.Author,
		Amount:  total,
	})
}

// MinerFeeReducer folds the joined miner fee deltas for a height into a
// delta list. Joining re-fires whenever either side is redelivered, so the
// reducer keeps the last list per height to recognize repeats.
type MinerFeeReducer struct {
	agg state.KeyValue[List]
}

// NewMinerFeeReducer constructs the reducer with its state store.
func NewMinerFeeReducer() MinerFeeReducer {
	return MinerFeeReducer{
		agg: state.NewKeyValue[List]("miner-fee-aggregate"),
	}
}

// Store returns the name of the store used by the reducer.
func (r MinerFeeReducer) Store() string {
	return r.agg.Name()
}

// Reduce processes the next joined delta. It reports false when nothing is
// to be emitted, which is the case for tombstones.
func (r MinerFeeReducer) Reduce(tx *state.Tx, rec stream.Record[Delta]) (stream.Record[List], bool, error) {
	d, ok := rec.Value.Get()
	if !ok {
		return stream.Record[List]{}, false, nil
	}

	next := List{
		Timestamp: d.TraceLocation.Timestamp,
		Hash:      d.TraceLocation.Hash,
		Apply:     true,
		Deltas:    []Delta{d},
		Reversals: []Delta{},
	}

	out, err := supersede(tx, r.agg, rec.Key, next)
	if err != nil {
		return stream.Record[List]{}, false, err
	}

	return stream.NewRecord(rec.Key, rec.Timestamp, stream.Present(out)), true, nil
}

func amountOf(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
