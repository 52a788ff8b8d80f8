package lru

import (
	"context"
	"testing"

	"github.com/bobg/vs"
	"github.com/bobg/vs/store/mem"
	"github.com/bobg/vs/testutil"
)

func TestStore(t *testing.T) {
	s, err := New(mem.New(), 1000)
	if err != nil {
		t.Fatal(err)
	}
	testutil.ReadWrite(context.Background(), t, s)
}

func TestTags(t *testing.T) {
	s, err := New(mem.New(), 1000)
	if err != nil {
		t.Fatal(err)
	}
	testutil.Tags(context.Background(), t, s)
}

func TestCache(t *testing.T) {
	var (
		ctx    = context.Background()
		nested = mem.New()
	)
	s, err := New(nested, 1)
	if err != nil {
		t.Fatal(err)
	}

	k1, _, err := nested.Put(ctx, vs.Blob("one"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, k1); err != nil {
		t.Fatal(err)
	}
	if !s.c.Contains(k1) {
		t.Error("blob not cached after Get")
	}

	k2, _, err := s.Put(ctx, vs.Blob("two"))
	if err != nil {
		t.Fatal(err)
	}
	if s.c.Contains(k1) || !s.c.Contains(k2) {
		t.Error("cache did not evict the least recently used blob")
	}
}
