// Package genesis maintains access to the genesis file.
package genesis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

// ErrInvalid is returned when the genesis file can't be used.
var ErrInvalid = errors.New("invalid genesis")

// Genesis represents the genesis file.
type Genesis struct {
	Date     time.Time                                 `json:"date"`
	ChainID  uint64                                    `json:"chain_id"` // The chain id represents an unique id for this running instance.
	Balances map[common.Address]*math.HexOrDecimal256 `json:"balances"` // Premine balance per account, hex or decimal.
}

// =============================================================================

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, fmt.Errorf("%w: %s", ErrInvalid, err)
	}

	if err := genesis.Validate(); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// Validate checks every account has a usable premine balance.
func (g Genesis) Validate() error {
	for addr, balance := range g.Balances {
		if balance == nil {
			return fmt.Errorf("%w: account %s has no balance", ErrInvalid, addr)
		}
		if (*big.Int)(balance).Sign() < 0 {
			return fmt.Errorf("%w: account %s has a negative balance", ErrInvalid, addr)
		}
	}

	return nil
}

// Addresses returns the premine accounts in ascending order so anything built
// from the genesis is deterministic.
func (g Genesis) Addresses() []common.Address {
	addrs := make([]common.Address, 0, len(g.Balances))
	for addr := range g.Balances {
		addrs = append(addrs, addr)
	}

	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})

	return addrs
}

// Balance returns a copy of the premine balance for the account.
func (g Genesis) Balance(addr common.Address) *big.Int {
	balance, exists := g.Balances[addr]
	if !exists || balance == nil {
		return new(big.Int)
	}

	return new(big.Int).Set((*big.Int)(balance))
}
