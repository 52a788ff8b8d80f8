package testutil

import (
	"context"
	"sort"
	"testing"
	"testing/quick"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/vs"
)

// AllKeys writes a random set of random blobs to an empty store
// and makes sure that the right set of keys comes back in a call to ListKeys.
func AllKeys(ctx context.Context, t *testing.T, storeFactory func() vs.Store) {
	if err := quick.Check(allKeysHelper(ctx, t, storeFactory), &quick.Config{MaxCount: 20}); err != nil {
		t.Error(err)
	}
}

func allKeysHelper(ctx context.Context, t *testing.T, storeFactory func() vs.Store) func([][]byte) bool {
	return func(blobs [][]byte) bool {
		var (
			store = storeFactory()
			want  []vs.Key
		)
		for _, blob := range blobs {
			k, added, err := store.Put(ctx, blob)
			if err != nil {
				t.Fatal(err)
			}
			if added {
				want = append(want, k)
			}
		}
		var got []vs.Key
		err := store.ListKeys(ctx, vs.Zero, func(k vs.Key) error {
			got = append(got, k)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}

		sort.Slice(want, func(i, j int) bool { return want[i].Less(want[j]) })

		if !sort.SliceIsSorted(got, func(i, j int) bool { return got[i].Less(got[j]) }) {
			t.Log("ListKeys produced keys out of order")
			return false
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Logf("mismatch (-want +got):\n%s", diff)
			return false
		}
		return true
	}
}
