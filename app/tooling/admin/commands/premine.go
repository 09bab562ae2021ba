package commands

import (
	"encoding/json"
	"io"

	"github.com/ardanlabs/ethdelta/business/core/delta"
	"github.com/ardanlabs/ethdelta/foundation/blockchain/genesis"
	"github.com/ardanlabs/ethdelta/foundation/stream"
	"github.com/ethereum/go-ethereum/common"
)

// Premine writes the premine delta list that is published for the genesis
// block with the specified hash.
func Premine(genesisPath string, hash common.Hash, w io.Writer) error {
	gen, err := genesis.Load(genesisPath)
	if err != nil {
		return err
	}

	header := delta.BlockHeader{Hash: hash}
	rec, _ := delta.PremineDeltas(gen, stream.NewRecord(0, header.Timestamp, stream.Present(header)))
	list, _ := rec.Value.Get()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(list)
}
