package dbpebble_test

import (
	"testing"

	"github.com/ardanlabs/ethdelta/foundation/stream/state"
	"github.com/ardanlabs/ethdelta/foundation/stream/state/dbpebble"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Restore(t *testing.T) {
	path := t.TempDir()
	kv := state.NewKeyValue[[]string]("join-left")

	t.Log("Given the need to recover store state after a restart.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen committing to a pebble backend and reopening it.", testID)
		{
			backend, err := dbpebble.New(path)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to open pebble: %v", failed, testID, err)
			}

			stores, err := state.Open(backend, 1)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to open the stores: %v", failed, testID, err)
			}

			tx := stores.Begin()
			kv.Put(tx, 100, []string{"a", "b"})
			kv.Put(tx, 200, []string{"c"})
			tx.SetOffset("canonical-block-author", 7)
			if err := tx.Commit(); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to commit: %v", failed, testID, err)
			}

			tx = stores.Begin()
			kv.Delete(tx, 200)
			tx.SetOffset("canonical-block-author", 8)
			if err := tx.Commit(); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to commit the delete: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to commit.", success, testID)

			if err := backend.Close(); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to close pebble: %v", failed, testID, err)
			}

			backend, err = dbpebble.New(path)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to reopen pebble: %v", failed, testID, err)
			}
			defer backend.Close()

			restored, err := state.Open(backend, 1)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to restore the stores: %v", failed, testID, err)
			}

			tx = restored.Begin()
			v, exists, err := kv.Get(tx, 100)
			if err != nil || !exists || len(v) != 2 || v[1] != "b" {
				t.Fatalf("\t%s\tTest %d:\tShould restore the kept key, got %v exists[%t]: %v", failed, testID, v, exists, err)
			}
			if _, exists, _ := kv.Get(tx, 200); exists {
				t.Fatalf("\t%s\tTest %d:\tShould not restore the deleted key.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould restore the stores.", success, testID)

			if off := restored.Offset("canonical-block-author"); off != 8 {
				t.Fatalf("\t%s\tTest %d:\tShould restore offset 8, got %d.", failed, testID, off)
			}
			t.Logf("\t%s\tTest %d:\tShould restore offset 8.", success, testID)

			other, err := state.Open(backend, 0)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to open partition 0: %v", failed, testID, err)
			}
			if keys := kv.Keys(other.Begin()); len(keys) != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould keep partitions apart, got %v.", failed, testID, keys)
			}
			t.Logf("\t%s\tTest %d:\tShould keep partitions apart.", success, testID)
		}
	}
}

func Test_Keys(t *testing.T) {
	t.Log("Given the need to order store keys within a partition.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen forming keys.", testID)
		{
			lb, ub := dbpebble.BoundsPartition(dbpebble.KStore, 3)

			for _, key := range [][]byte{
				dbpebble.KeyStore(3, "a", 0),
				dbpebble.KeyStore(3, "zzz", 1<<63),
			} {
				if string(key) < string(lb) || string(key) >= string(ub) {
					t.Fatalf("\t%s\tTest %d:\tShould place key %x within the partition bounds.", failed, testID, key)
				}
			}

			if k := dbpebble.KeyStore(4, "a", 0); string(k) >= string(lb) && string(k) < string(ub) {
				t.Fatalf("\t%s\tTest %d:\tShould place other partitions outside the bounds.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould bound keys by partition.", success, testID)
		}
	}
}
