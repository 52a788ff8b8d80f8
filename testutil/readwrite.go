// Package testutil contains conformance checks for Store and TagStore implementations.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bobg/vs"
)

// ReadWrite permits testing a Store implementation
// by writing some blobs to it
// and reading them back out to make sure they're the same.
func ReadWrite(ctx context.Context, t *testing.T, store vs.Store) {
	blobs := []vs.Blob{
		vs.Blob(""),
		vs.Blob("yubnub"),
		vs.Blob("the quick brown fox jumps over the lazy dog"),
	}
	big := make(vs.Blob, 1<<16)
	for i := range big {
		big[i] = byte(i * 7)
	}
	blobs = append(blobs, big)

	for i, b := range blobs {
		t.Run(fmt.Sprintf("blob_%02d", i+1), func(t *testing.T) {
			k, added, err := store.Put(ctx, b)
			if err != nil {
				t.Fatal(err)
			}
			if k != b.Key() {
				t.Errorf("got key %s, want %s", k, b.Key())
			}
			if !added {
				t.Error("first put reported not added")
			}

			k2, added, err := store.Put(ctx, b)
			if err != nil {
				t.Fatal(err)
			}
			if k2 != k {
				t.Errorf("second put gave key %s, want %s", k2, k)
			}
			if added {
				t.Error("second put reported added")
			}

			got, err := store.Get(ctx, k)
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != string(b) {
				t.Errorf("got %d bytes back, want %d (or content mismatch)", len(got), len(b))
			}

			ok, err := vs.Exists(ctx, store, k)
			if err != nil {
				t.Fatal(err)
			}
			if !ok {
				t.Error("Exists reported false for a stored blob")
			}
		})
	}

	missing := vs.Blob("never stored").Key()
	_, err := store.Get(ctx, missing)
	if !errors.Is(err, vs.ErrNotFound) {
		t.Errorf("got error %v for a missing blob, want ErrNotFound", err)
	}
	ok, err := vs.Exists(ctx, store, missing)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("Exists reported true for a missing blob")
	}

	trusted := vs.Blob("stored at a trusted key")
	added, err := vs.PutAt(ctx, store, trusted.Key(), trusted)
	if err != nil {
		t.Fatal(err)
	}
	if !added {
		t.Error("PutAt reported not added")
	}
	got, err := store.Get(ctx, trusted.Key())
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(trusted) {
		t.Errorf("got %q after PutAt, want %q", got, trusted)
	}
}
