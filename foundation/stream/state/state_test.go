package state_test

import (
	"errors"
	"testing"

	"github.com/ardanlabs/ethdelta/foundation/stream/state"
	"github.com/ardanlabs/ethdelta/foundation/stream/state/memory"
	"github.com/google/go-cmp/cmp"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// =============================================================================

func Test_Commit(t *testing.T) {
	backend, err := memory.New()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct a backend: %v", failed, err)
	}

	stores, err := state.Open(backend, 2)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open the stores: %v", failed, err)
	}

	kv := state.NewKeyValue[string]("names")

	t.Log("Given the need to commit store changes with the consumed offset.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen committing a transaction.", testID)
		{
			tx := stores.Begin()
			kv.Put(tx, 3, "c")
			kv.Put(tx, 1, "a")
			kv.Put(tx, 2, "b")
			kv.Delete(tx, 2)
			tx.SetOffset("blocks", 10)

			if _, exists, _ := kv.Get(tx, 2); exists {
				t.Fatalf("\t%s\tTest %d:\tShould not see a key deleted in the transaction.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould not see a key deleted in the transaction.", success, testID)

			if err := tx.Commit(); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to commit: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to commit.", success, testID)

			if err := tx.Commit(); !errors.Is(err, state.ErrTxDone) {
				t.Fatalf("\t%s\tTest %d:\tShould not be able to commit twice: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould not be able to commit twice.", success, testID)

			if diff := cmp.Diff([]uint64{1, 3}, kv.Keys(stores.Begin())); diff != "" {
				t.Fatalf("\t%s\tTest %d:\tShould get the committed keys in order:\n%s", failed, testID, diff)
			}
			t.Logf("\t%s\tTest %d:\tShould get the committed keys in order.", success, testID)

			if stores.Offset("blocks") != 10 {
				t.Fatalf("\t%s\tTest %d:\tShould get offset 10, got %d.", failed, testID, stores.Offset("blocks"))
			}
			t.Logf("\t%s\tTest %d:\tShould get offset 10.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen rolling back a transaction.", testID)
		{
			tx := stores.Begin()
			kv.Put(tx, 1, "changed")
			tx.SetOffset("blocks", 11)
			tx.Rollback()

			v, _, _ := kv.Get(stores.Begin(), 1)
			if v != "a" || stores.Offset("blocks") != 10 {
				t.Fatalf("\t%s\tTest %d:\tShould keep the committed state, got %q offset %d.", failed, testID, v, stores.Offset("blocks"))
			}
			t.Logf("\t%s\tTest %d:\tShould keep the committed state.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen restoring the partition after a restart.", testID)
		{
			backend.Close()
			backend.Reopen()

			restored, err := state.Open(backend, 2)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to restore the stores: %v", failed, testID, err)
			}

			tx := restored.Begin()
			if diff := cmp.Diff([]uint64{1, 3}, kv.Keys(tx)); diff != "" {
				t.Fatalf("\t%s\tTest %d:\tShould restore the keys:\n%s", failed, testID, diff)
			}
			if v, _, _ := kv.Get(tx, 3); v != "c" {
				t.Fatalf("\t%s\tTest %d:\tShould restore the values, got %q.", failed, testID, v)
			}
			if restored.Offset("blocks") != 10 {
				t.Fatalf("\t%s\tTest %d:\tShould restore the offsets, got %d.", failed, testID, restored.Offset("blocks"))
			}
			t.Logf("\t%s\tTest %d:\tShould restore keys, values and offsets.", success, testID)

			other, err := state.Open(backend, 0)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to open another partition: %v", failed, testID, err)
			}
			if keys := kv.Keys(other.Begin()); len(keys) != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould keep partitions apart, got %v.", failed, testID, keys)
			}
			t.Logf("\t%s\tTest %d:\tShould keep partitions apart.", success, testID)
		}
	}
}

func Test_CommitFailure(t *testing.T) {
	backend := failing{err: errors.New("disk full")}

	stores, err := state.Open(backend, 0)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open the stores: %v", failed, err)
	}

	kv := state.NewKeyValue[int]("counts")

	t.Log("Given the need to keep memory and backend state in step.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the backend fails to commit.", testID)
		{
			tx := stores.Begin()
			kv.Put(tx, 1, 100)
			tx.SetOffset("fees", 4)

			if err := tx.Commit(); !errors.Is(err, backend.err) {
				t.Fatalf("\t%s\tTest %d:\tShould get the backend error: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould get the backend error.", success, testID)

			if _, exists, _ := kv.Get(stores.Begin(), 1); exists || stores.Offset("fees") != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould not apply anything in memory.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould not apply anything in memory.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen a stored value can't be decoded.", testID)
		{
			tx := stores.Begin()
			tx.Put("counts", 9, []byte("not json"))

			if _, _, err := kv.Get(tx, 9); !errors.Is(err, state.ErrCorrupt) {
				t.Fatalf("\t%s\tTest %d:\tShould get a corrupt state error: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould get a corrupt state error.", success, testID)
		}
	}
}

// =============================================================================

type failing struct {
	err error
}

func (f failing) Restore(partition int) (state.Snapshot, error) {
	return state.Snapshot{}, nil
}

func (f failing) Commit(partition int, cs state.Changeset) error {
	return f.err
}

func (f failing) Close() error {
	return nil
}
