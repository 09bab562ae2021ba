// Package delta computes per-account balance deltas from the canonical block
// and transaction fee streams and republishes them as events that can be
// applied and reversed safely when the chain reorganizes.
package delta

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TokenType identifies the token a delta applies to.
type TokenType string

// Set of token types.
const (
	TokenEther TokenType = "ETHER"
)

// DeltaType identifies the cause of a delta.
type DeltaType string

// Set of delta types.
const (
	TypePremine        DeltaType = "PREMINE"
	TypeHardFork       DeltaType = "HARD_FORK"
	TypeTransactionFee DeltaType = "TRANSACTION_FEE"
	TypeMinerFee       DeltaType = "MINER_FEE"
)

// TraceLocation is the block a delta is attributed to.
type TraceLocation struct {
	Timestamp time.Time   `json:"timestamp"`
	Height    uint64      `json:"height"`
	Hash      common.Hash `json:"hash"`
}

// Delta is a signed change to the balance of one account.
type Delta struct {
	TokenType     TokenType      `json:"token_type"`
	DeltaType     DeltaType      `json:"delta_type"`
	TraceLocation TraceLocation  `json:"trace_location"`
	Address       common.Address `json:"address"`
	Amount        *big.Int       `json:"amount"`
}

// Reverse returns a copy of the delta with the amount negated.
func (d Delta) Reverse() Delta {
	rev := d.Clone()
	rev.Amount.Neg(rev.Amount)
	return rev
}

// Clone returns a deep copy of the delta.
func (d Delta) Clone() Delta {
	cpy := d
	cpy.Amount = new(big.Int)
	if d.Amount != nil {
		cpy.Amount.Set(d.Amount)
	}
	return cpy
}

// Reverse returns reversed copies of the set of deltas in the same order.
func Reverse(deltas []Delta) []Delta {
	revs := make([]Delta, len(deltas))
	for i, d := range deltas {
		revs[i] = d.Reverse()
	}
	return revs
}

// =============================================================================

// List is the set of deltas published for a block. When the block at a
// height is superseded, Reversals carries the negated copies of the deltas
// that were published for the previous block.
type List struct {
	Timestamp time.Time   `json:"timestamp"`
	Hash      common.Hash `json:"hash"`
	Apply     bool        `json:"apply"`
	Deltas    []Delta     `json:"deltas"`
	Reversals []Delta     `json:"reversals"`
}

// Clone returns a deep copy of the list.
func (l List) Clone() List {
	cpy := l
	cpy.Deltas = cloneDeltas(l.Deltas)
	cpy.Reversals = cloneDeltas(l.Reversals)
	return cpy
}

func cloneDeltas(deltas []Delta) []Delta {
	cpy := make([]Delta, len(deltas))
	for i, d := range deltas {
		cpy[i] = d.Clone()
	}
	return cpy
}

// =============================================================================

// BlockHeader is the canonical block and author record for a height.
type BlockHeader struct {
	Hash      common.Hash    `json:"hash"`
	Number    uint64         `json:"number"`
	Author    common.Address `json:"author"`
	Timestamp time.Time      `json:"timestamp"`
}

// TransactionFee is the fee paid by one transaction.
type TransactionFee struct {
	TxHash  common.Hash    `json:"tx_hash"`
	Address common.Address `json:"address"`
	Fee     *big.Int       `json:"fee"`
}

// FeeList is the canonical list of transaction fees for a height.
type FeeList struct {
	Hash      common.Hash      `json:"hash"`
	Number    uint64           `json:"number"`
	Timestamp time.Time        `json:"timestamp"`
	Fees      []TransactionFee `json:"fees"`
}
