package public

import (
	"math/big"

	"github.com/ardanlabs/ethdelta/business/core/delta"
	"github.com/ethereum/go-ethereum/common"
)

type premineBalance struct {
	Address common.Address `json:"address"`
	Balance *big.Int       `json:"balance"`
}

type premine struct {
	ChainID  uint64           `json:"chain_id"`
	Total    *big.Int         `json:"total"`
	Balances []premineBalance `json:"balances"`
}

type deltaEvents struct {
	Stream string            `json:"stream"`
	Height uint64            `json:"height"`
	Events []delta.Published `json:"events"`
}
