package delta_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/ardanlabs/ethdelta/business/core/delta"
	"github.com/ardanlabs/ethdelta/foundation/blockchain/genesis"
	"github.com/ardanlabs/ethdelta/foundation/blockchain/hardfork"
	"github.com/ardanlabs/ethdelta/foundation/stream"
	"github.com/ardanlabs/ethdelta/foundation/stream/state"
	"github.com/ardanlabs/ethdelta/foundation/stream/state/memory"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

var (
	addr1  = common.HexToAddress("0x0000000000000000000000000000000000000001")
	addr2  = common.HexToAddress("0x0000000000000000000000000000000000000002")
	miner  = common.HexToAddress("0xFef311483Cc040e1A89fb9bb469eeB8A70935EF8")
	hashA  = common.HexToHash("0xaa")
	hashB  = common.HexToHash("0xbb")
	hashC  = common.HexToHash("0xcc")
	blockT = time.Date(2016, time.July, 20, 13, 20, 40, 0, time.UTC)
)

var cmpOpts = cmp.Options{
	cmp.Comparer(func(a, b *big.Int) bool {
		if a == nil || b == nil {
			return a == b
		}
		return a.Cmp(b) == 0
	}),
	cmpopts.EquateEmpty(),
}

// =============================================================================

func Test_DeltaTypes(t *testing.T) {
	tt := map[delta.DeltaType]string{
		delta.TypePremine:        "PREMINE",
		delta.TypeHardFork:       "HARD_FORK",
		delta.TypeTransactionFee: "TRANSACTION_FEE",
		delta.TypeMinerFee:       "MINER_FEE",
	}

	t.Log("Given the need to publish stable delta type names.")
	{
		for typ, name := range tt {
			if string(typ) != name {
				t.Fatalf("\t%s\tShould publish %s, got %s.", failed, name, typ)
			}
		}
		t.Logf("\t%s\tShould publish the delta type names.", success)
	}
}

func Test_OncePerBlock(t *testing.T) {
	stores := newStores(t)
	dedup := delta.NewOncePerBlock()

	type table struct {
		name    string
		rec     stream.Record[delta.BlockHeader]
		forward bool
	}

	tt := []table{
		{name: "first", rec: present(10, hashA), forward: true},
		{name: "redelivered", rec: present(10, hashA), forward: false},
		{name: "reorg", rec: present(10, hashB), forward: true},
		{name: "other-height", rec: present(11, hashA), forward: true},
		{name: "tombstone", rec: tombstone(10), forward: true},
		{name: "republished", rec: present(10, hashB), forward: true},
	}

	t.Log("Given the need to generate synthetic deltas once per block.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling a %s record.", testID, tst.name)
			{
				tx := stores.Begin()
				forward, err := dedup.Filter(tx, tst.rec)
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to filter the record: %v", failed, testID, err)
				}
				if err := tx.Commit(); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to commit: %v", failed, testID, err)
				}

				if forward != tst.forward {
					t.Fatalf("\t%s\tTest %d:\tShould get forward[%t], got %t.", failed, testID, tst.forward, forward)
				}
				t.Logf("\t%s\tTest %d:\tShould get forward[%t].", success, testID, tst.forward)
			}
		}
	}
}

func Test_Premine(t *testing.T) {
	gen := genesis.Genesis{
		Balances: map[common.Address]*math.HexOrDecimal256{
			addr2: (*math.HexOrDecimal256)(big.NewInt(50)),
			addr1: (*math.HexOrDecimal256)(big.NewInt(100)),
		},
	}

	t.Log("Given the need to credit the premine balances at genesis.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen handling the genesis block.", testID)
		{
			rec, ok := delta.PremineDeltas(gen, present(0, hashA))
			if !ok {
				t.Fatalf("\t%s\tTest %d:\tShould produce premine deltas.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould produce premine deltas.", success, testID)

			epoch := time.Unix(0, 0).UTC()
			trace := delta.TraceLocation{Timestamp: epoch, Height: 0, Hash: hashA}
			exp := delta.List{
				Timestamp: epoch,
				Hash:      hashA,
				Apply:     true,
				Deltas: []delta.Delta{
					{TokenType: delta.TokenEther, DeltaType: delta.TypePremine, TraceLocation: trace, Address: addr1, Amount: big.NewInt(100)},
					{TokenType: delta.TokenEther, DeltaType: delta.TypePremine, TraceLocation: trace, Address: addr2, Amount: big.NewInt(50)},
				},
			}

			got, _ := rec.Value.Get()
			if diff := cmp.Diff(exp, got, cmpOpts); diff != "" {
				t.Fatalf("\t%s\tTest %d:\tShould get the premine list sorted by address:\n%s", failed, testID, diff)
			}
			t.Logf("\t%s\tTest %d:\tShould get the premine list sorted by address.", success, testID)

			if !rec.Timestamp.Equal(epoch) {
				t.Fatalf("\t%s\tTest %d:\tShould be timestamped at the epoch, got %v.", failed, testID, rec.Timestamp)
			}
			t.Logf("\t%s\tTest %d:\tShould be timestamped at the epoch.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen handling any other block.", testID)
		{
			if _, ok := delta.PremineDeltas(gen, present(1, hashA)); ok {
				t.Fatalf("\t%s\tTest %d:\tShould not produce premine deltas.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould not produce premine deltas.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the genesis block is retracted.", testID)
		{
			rec, ok := delta.PremineDeltas(gen, tombstone(0))
			if !ok || !rec.Value.IsTombstone() {
				t.Fatalf("\t%s\tTest %d:\tShould forward a tombstone.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould forward a tombstone.", success, testID)
		}
	}
}

func Test_HardFork(t *testing.T) {
	forks, err := hardfork.New([]hardfork.Fork{
		{Name: "dao", Height: 10, Rules: []hardfork.Rule{{Address: addr1, Amount: "-100"}, {Address: addr2, Amount: "100"}}},
		{Name: "empty", Height: 20},
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to build the hard fork table: %v", failed, err)
	}

	type table struct {
		name   string
		rec    stream.Record[delta.BlockHeader]
		ok     bool
		tomb   bool
		deltas int
	}

	tt := []table{
		{name: "activation", rec: present(10, hashA), ok: true, deltas: 2},
		{name: "no-rules", rec: present(20, hashA), ok: false},
		{name: "no-fork", rec: present(15, hashA), ok: false},
		{name: "tombstone", rec: tombstone(15), ok: true, tomb: true},
	}

	t.Log("Given the need to apply hard fork balance corrections.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling the %s block.", testID, tst.name)
			{
				rec, ok := delta.HardForkDeltas(forks, tst.rec)
				if ok != tst.ok {
					t.Fatalf("\t%s\tTest %d:\tShould get ok[%t], got %t.", failed, testID, tst.ok, ok)
				}
				t.Logf("\t%s\tTest %d:\tShould get ok[%t].", success, testID, tst.ok)

				if !ok {
					continue
				}

				if rec.Value.IsTombstone() != tst.tomb {
					t.Fatalf("\t%s\tTest %d:\tShould get tombstone[%t].", failed, testID, tst.tomb)
				}
				t.Logf("\t%s\tTest %d:\tShould get tombstone[%t].", success, testID, tst.tomb)

				list, _ := rec.Value.Get()
				if len(list.Deltas) != tst.deltas {
					t.Fatalf("\t%s\tTest %d:\tShould get %d deltas, got %d.", failed, testID, tst.deltas, len(list.Deltas))
				}
				t.Logf("\t%s\tTest %d:\tShould get %d deltas.", success, testID, tst.deltas)

				for _, d := range list.Deltas {
					if d.DeltaType != delta.TypeHardFork || d.TraceLocation.Height != tst.rec.Key {
						t.Fatalf("\t%s\tTest %d:\tShould attribute the delta to the fork block: %+v", failed, testID, d)
					}
				}
			}
		}
	}
}

func Test_TransactionFee(t *testing.T) {
	fees := delta.FeeList{
		Hash:      hashA,
		Number:    5,
		Timestamp: blockT,
		Fees: []delta.TransactionFee{
			{TxHash: common.HexToHash("0x01"), Address: addr1, Fee: big.NewInt(21000)},
			{TxHash: common.HexToHash("0x02"), Address: addr2, Fee: big.NewInt(42000)},
		},
	}

	t.Log("Given the need to produce a delta per transaction fee.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen handling a fee list.", testID)
		{
			rec := delta.TransactionFeeDeltas(stream.NewRecord(5, blockT, stream.Present(fees)))

			trace := delta.TraceLocation{Timestamp: blockT, Height: 5, Hash: hashA}
			exp := delta.List{
				Timestamp: blockT,
				Hash:      hashA,
				Apply:     true,
				Deltas: []delta.Delta{
					{TokenType: delta.TokenEther, DeltaType: delta.TypeTransactionFee, TraceLocation: trace, Address: addr1, Amount: big.NewInt(21000)},
					{TokenType: delta.TokenEther, DeltaType: delta.TypeTransactionFee, TraceLocation: trace, Address: addr2, Amount: big.NewInt(42000)},
				},
			}

			got, ok := rec.Value.Get()
			if !ok {
				t.Fatalf("\t%s\tTest %d:\tShould get a present list.", failed, testID)
			}
			if diff := cmp.Diff(exp, got, cmpOpts); diff != "" {
				t.Fatalf("\t%s\tTest %d:\tShould get a delta per fee in order:\n%s", failed, testID, diff)
			}
			t.Logf("\t%s\tTest %d:\tShould get a delta per fee in order.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen handling a tombstone.", testID)
		{
			rec := delta.TransactionFeeDeltas(stream.NewRecord(5, blockT, stream.Tombstone[delta.FeeList]()))
			if !rec.Value.IsTombstone() || rec.Key != 5 {
				t.Fatalf("\t%s\tTest %d:\tShould forward the tombstone for the key.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould forward the tombstone for the key.", success, testID)
		}
	}
}

func Test_MinerFee(t *testing.T) {
	header := delta.BlockHeader{Hash: hashA, Number: 7, Author: miner, Timestamp: blockT}
	fees := delta.FeeList{
		Hash:   hashA,
		Number: 7,
		Fees: []delta.TransactionFee{
			{Address: addr1, Fee: big.NewInt(10)},
			{Address: addr2, Fee: big.NewInt(20)},
			{Address: addr1, Fee: big.NewInt(30)},
		},
	}

	t.Log("Given the need to credit the miner with the block fees.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen joining a header and fee list of the same block.", testID)
		{
			d, ok := delta.JoinMinerFee(header, fees).Get()
			if !ok {
				t.Fatalf("\t%s\tTest %d:\tShould get a miner fee delta.", failed, testID)
			}
			if d.Address != miner || d.Amount.Cmp(big.NewInt(60)) != 0 || d.DeltaType != delta.TypeMinerFee {
				t.Fatalf("\t%s\tTest %d:\tShould credit 60 to the miner, got %s to %s.", failed, testID, d.Amount, d.Address)
			}
			t.Logf("\t%s\tTest %d:\tShould credit 60 to the miner.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen joining a header and fee list of different blocks.", testID)
		{
			other := fees
			other.Hash = hashB
			if !delta.JoinMinerFee(header, other).IsTombstone() {
				t.Fatalf("\t%s\tTest %d:\tShould get a tombstone.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould get a tombstone.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen reducing the joined deltas for a height.", testID)
		{
			stores := newStores(t)
			reducer := delta.NewMinerFeeReducer()

			reduce := func(v stream.Value[delta.Delta]) (delta.List, bool) {
				tx := stores.Begin()
				rec, ok, err := reducer.Reduce(tx, stream.NewRecord(7, blockT.Add(time.Hour), v))
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to reduce: %v", failed, testID, err)
				}
				if err := tx.Commit(); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to commit: %v", failed, testID, err)
				}
				list, _ := rec.Value.Get()
				return list, ok
			}

			first, _ := delta.JoinMinerFee(header, fees).Get()

			if _, ok := reduce(stream.Tombstone[delta.Delta]()); ok {
				t.Fatalf("\t%s\tTest %d:\tShould ignore a tombstone.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould ignore a tombstone.", success, testID)

			list, ok := reduce(stream.Present(first))
			if !ok || !list.Apply || len(list.Reversals) != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould apply the first delta: %+v", failed, testID, list)
			}
			t.Logf("\t%s\tTest %d:\tShould apply the first delta.", success, testID)

			if !list.Timestamp.Equal(blockT) {
				t.Fatalf("\t%s\tTest %d:\tShould stamp the list with the block time, got %v.", failed, testID, list.Timestamp)
			}
			t.Logf("\t%s\tTest %d:\tShould stamp the list with the block time.", success, testID)

			list, _ = reduce(stream.Present(first))
			if list.Apply || len(list.Deltas) != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould not apply a repeated delta: %+v", failed, testID, list)
			}
			t.Logf("\t%s\tTest %d:\tShould not apply a repeated delta.", success, testID)

			replaced := header
			replaced.Hash = hashB
			replacedFees := fees
			replacedFees.Hash = hashB
			second, _ := delta.JoinMinerFee(replaced, replacedFees).Get()

			list, _ = reduce(stream.Present(second))
			if !list.Apply || len(list.Reversals) != 1 || list.Reversals[0].Amount.Cmp(big.NewInt(-60)) != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould reverse the replaced delta: %+v", failed, testID, list)
			}
			t.Logf("\t%s\tTest %d:\tShould reverse the replaced delta.", success, testID)
		}
	}
}

func Test_Reverser(t *testing.T) {
	stores := newStores(t)
	rev := delta.NewReverser("test")

	l1 := list(hashA, addr1, 100)
	l2 := list(hashB, addr2, 70)
	l3 := list(hashC, addr1, 5)

	type table struct {
		name  string
		value stream.Value[delta.List]
		exp   stream.Value[delta.List]
	}

	tt := []table{
		{
			name:  "first",
			value: stream.Present(l1),
			exp:   stream.Present(delta.List{Timestamp: blockT, Hash: hashA, Apply: true, Deltas: l1.Deltas}),
		},
		{
			name:  "repeat",
			value: stream.Present(l1),
			exp:   stream.Present(delta.List{Timestamp: blockT, Hash: hashA, Apply: false, Deltas: l1.Deltas}),
		},
		{
			name:  "reorg",
			value: stream.Present(l2),
			exp:   stream.Present(delta.List{Timestamp: blockT, Hash: hashB, Apply: true, Deltas: l2.Deltas, Reversals: delta.Reverse(l1.Deltas)}),
		},
		{
			name:  "tombstone",
			value: stream.Tombstone[delta.List](),
			exp:   stream.Tombstone[delta.List](),
		},
		{
			name:  "reorg-after-tombstone",
			value: stream.Present(l3),
			exp:   stream.Present(delta.List{Timestamp: blockT, Hash: hashC, Apply: true, Deltas: l3.Deltas, Reversals: delta.Reverse(l2.Deltas)}),
		},
	}

	t.Log("Given the need to make delta lists safe across reorganizations.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling a %s list.", testID, tst.name)
			{
				tx := stores.Begin()
				rec, err := rev.Apply(tx, stream.NewRecord(42, blockT, tst.value))
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to apply: %v", failed, testID, err)
				}
				if err := tx.Commit(); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to commit: %v", failed, testID, err)
				}

				if rec.Value.IsTombstone() != tst.exp.IsTombstone() {
					t.Fatalf("\t%s\tTest %d:\tShould get tombstone[%t].", failed, testID, tst.exp.IsTombstone())
				}

				exp, _ := tst.exp.Get()
				got, _ := rec.Value.Get()
				if diff := cmp.Diff(exp, got, cmpOpts); diff != "" {
					t.Fatalf("\t%s\tTest %d:\tShould get the expected list:\n%s", failed, testID, diff)
				}
				t.Logf("\t%s\tTest %d:\tShould get the expected list.", success, testID)
			}
		}
	}
}

// =============================================================================

func newStores(t *testing.T) *state.Stores {
	backend, err := memory.New()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct a backend: %v", failed, err)
	}

	stores, err := state.Open(backend, 0)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open the stores: %v", failed, err)
	}

	return stores
}

func present(height uint64, hash common.Hash) stream.Record[delta.BlockHeader] {
	header := delta.BlockHeader{
		Hash:      hash,
		Number:    height,
		Author:    miner,
		Timestamp: blockT,
	}
	return stream.NewRecord(height, blockT, stream.Present(header))
}

func tombstone(height uint64) stream.Record[delta.BlockHeader] {
	return stream.NewRecord(height, blockT, stream.Tombstone[delta.BlockHeader]())
}

func list(hash common.Hash, addr common.Address, amount int64) delta.List {
	return delta.List{
		Timestamp: blockT,
		Hash:      hash,
		Apply:     true,
		Deltas: []delta.Delta{
			{
				TokenType:     delta.TokenEther,
				DeltaType:     delta.TypeTransactionFee,
				TraceLocation: delta.TraceLocation{Timestamp: blockT, Height: 42, Hash: hash},
				Address:       addr,
				Amount:        big.NewInt(amount),
			},
		},
	}
}
