package store_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/vs"
	. "github.com/bobg/vs/store"
	"github.com/bobg/vs/store/mem"
)

func TestSync(t *testing.T) {
	const text = `abc def ghi jkl mno pqr stu`

	var (
		ctx    = context.Background()
		words  = strings.Fields(text)
		stores = make([]vs.Store, 0, len(words))
	)
	for i := range words {
		s := mem.New()
		stores = append(stores, s)
		for j, word := range words {
			if i == j {
				continue
			}

			_, _, err := s.Put(ctx, vs.Blob(word))
			if err != nil {
				t.Fatal(err)
			}
		}
	}

	err := Sync(ctx, stores)
	if err != nil {
		t.Fatal(err)
	}

	keys := listKeys(ctx, t, stores[0])
	if len(keys) != len(words) {
		t.Fatalf("got %d keys, want %d", len(keys), len(words))
	}

	for i := 1; i < len(stores); i++ {
		if diff := cmp.Diff(keys, listKeys(ctx, t, stores[i])); diff != "" {
			t.Errorf("store %d mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func listKeys(ctx context.Context, t *testing.T, s vs.Store) []vs.Key {
	var keys []vs.Key
	err := s.ListKeys(ctx, vs.Zero, func(k vs.Key) error {
		keys = append(keys, k)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return keys
}
