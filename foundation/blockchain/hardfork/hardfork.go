// Package hardfork maintains the table of irregular state changes applied by
// hard forks, such as the balance moves performed at the DAO fork block.
package hardfork

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalid is returned when the hard fork table can't be used.
var ErrInvalid = errors.New("invalid hard fork table")

// Rule describes a balance correction as it appears in the table file. The
// amount is signed and may be decimal or 0x prefixed hex.
type Rule struct {
	Address common.Address `json:"address"`
	Amount  string         `json:"amount"`
}

// Fork represents a hard fork activated at a block height.
type Fork struct {
	Name   string `json:"name"`
	Height uint64 `json:"height"`
	Rules  []Rule `json:"rules"`
}

// Correction is a parsed balance change for an account.
type Correction struct {
	Address common.Address
	Amount  *big.Int
}

// =============================================================================

// Table provides lookup of corrections by activation height.
type Table struct {
	forks map[uint64][]Correction
	names map[uint64]string
}

// New constructs a table from the set of forks. Every amount must parse.
func New(forks []Fork) (Table, error) {
	t := Table{
		forks: make(map[uint64][]Correction),
		names: make(map[uint64]string),
	}

	for _, fork := range forks {
		if _, exists := t.names[fork.Height]; exists {
			return Table{}, fmt.Errorf("%w: duplicate fork at height %d", ErrInvalid, fork.Height)
		}

		corrections := make([]Correction, len(fork.Rules))
		for i, rule := range fork.Rules {
			amount, ok := new(big.Int).SetString(rule.Amount, 0)
			if !ok {
				return Table{}, fmt.Errorf("%w: fork %q: account %s: amount %q", ErrInvalid, fork.Name, rule.Address, rule.Amount)
			}

			corrections[i] = Correction{
				Address: rule.Address,
				Amount:  amount,
			}
		}

		t.forks[fork.Height] = corrections
		t.names[fork.Height] = fork.Name
	}

	return t, nil
}

// Load opens and consumes the hard fork table file.
func Load(path string) (Table, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Table{}, err
	}

	var forks []Fork
	if err := json.Unmarshal(content, &forks); err != nil {
		return Table{}, fmt.Errorf("%w: %s", ErrInvalid, err)
	}

	return New(forks)
}

// Rules returns the corrections activated at exactly the specified height.
// An empty set is returned for heights without a fork or for forks that
// carry no balance changes.
func (t Table) Rules(height uint64) []Correction {
	corrections := t.forks[height]

	cpy := make([]Correction, len(corrections))
	for i, c := range corrections {
		cpy[i] = Correction{
			Address: c.Address,
			Amount:  new(big.Int).Set(c.Amount),
		}
	}

	return cpy
}

// Name returns the name of the fork activated at the height.
func (t Table) Name(height uint64) string {
	return t.names[height]
}

// Heights returns every activation height in ascending order.
func (t Table) Heights() []uint64 {
	heights := make([]uint64, 0, len(t.names))
	for height := range t.names {
		heights = append(heights, height)
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })

	return heights
}
