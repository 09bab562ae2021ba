package private

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ardanlabs/ethdelta/business/core/delta"
	"github.com/ethereum/go-ethereum/common"
)

// NewBlock is the canonical block and author for a height.
type NewBlock struct {
	Hash      string    `json:"hash" validate:"required,len=66,startswith=0x,hexadecimal"`
	Number    uint64    `json:"number"`
	Author    string    `json:"author" validate:"required,eth_addr"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
}

func toBlockHeader(nb NewBlock) delta.BlockHeader {
	return delta.BlockHeader{
		Hash:      common.HexToHash(nb.Hash),
		Number:    nb.Number,
		Author:    common.HexToAddress(nb.Author),
		Timestamp: nb.Timestamp,
	}
}

// NewFee is the fee paid by one transaction. The fee is a decimal wei amount.
type NewFee struct {
	TxHash  string `json:"tx_hash" validate:"required,len=66,startswith=0x,hexadecimal"`
	Address string `json:"address" validate:"required,eth_addr"`
	Fee     string `json:"fee" validate:"required,number"`
}

// NewFeeList is the canonical list of transaction fees for a height.
type NewFeeList struct {
	Hash      string    `json:"hash" validate:"required,len=66,startswith=0x,hexadecimal"`
	Number    uint64    `json:"number"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
	Fees      []NewFee  `json:"fees" validate:"dive"`
}

func toFeeList(nfl NewFeeList) (delta.FeeList, error) {
	fees := make([]delta.TransactionFee, len(nfl.Fees))
	for i, nf := range nfl.Fees {
		fee, ok := new(big.Int).SetString(nf.Fee, 10)
		if !ok {
			return delta.FeeList{}, fmt.Errorf("fee %d: invalid amount %q", i, nf.Fee)
		}

		fees[i] = delta.TransactionFee{
			TxHash:  common.HexToHash(nf.TxHash),
			Address: common.HexToAddress(nf.Address),
			Fee:     fee,
		}
	}

	fl := delta.FeeList{
		Hash:      common.HexToHash(nfl.Hash),
		Number:    nfl.Number,
		Timestamp: nfl.Timestamp,
		Fees:      fees,
	}

	return fl, nil
}

// published is the response for an accepted canonical record.
type published struct {
	Topic     string `json:"topic"`
	Height    uint64 `json:"height"`
	Partition int    `json:"partition"`
	Offset    uint64 `json:"offset"`
	Tombstone bool   `json:"tombstone"`
}
