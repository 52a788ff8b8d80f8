package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/bobg/vs"
	. "github.com/bobg/vs/store"
	"github.com/bobg/vs/store/mem"
	"github.com/bobg/vs/testutil"
)

func TestCreate(t *testing.T) {
	ctx := context.Background()

	s, err := Create(ctx, "mem", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*mem.Store); !ok {
		t.Errorf("got %T, want *mem.Store", s)
	}

	if _, err = Create(ctx, "nonesuch", nil); err == nil {
		t.Error("got no error creating an unregistered type")
	}

	if _, err = CreateNested(ctx, map[string]interface{}{}); err == nil {
		t.Error("got no error without a nested config")
	}
	nested, err := CreateNested(ctx, map[string]interface{}{
		"nested": map[string]interface{}{"type": "mem"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := nested.(*mem.Store); !ok {
		t.Errorf("got nested %T, want *mem.Store", nested)
	}
}

func TestInt(t *testing.T) {
	conf := map[string]interface{}{
		"a": 3,
		"b": int64(4),
		"c": 5.0,
		"d": "six",
	}
	for name, want := range map[string]int{"a": 3, "b": 4, "c": 5} {
		got, ok := Int(conf, name)
		if !ok || got != want {
			t.Errorf("Int(%s) = %d, %v; want %d, true", name, got, ok, want)
		}
	}
	for _, name := range []string{"d", "e"} {
		if _, ok := Int(conf, name); ok {
			t.Errorf("Int(%s) succeeded", name)
		}
	}
}

// blobsOnly is a store without tags.
type blobsOnly struct {
	vs.Store
}

func TestNestedTags(t *testing.T) {
	ctx := context.Background()
	testutil.Tags(ctx, t, NestedTags{S: mem.New()})

	n := NestedTags{S: blobsOnly{Store: mem.New()}}
	if _, err := n.GetTag(ctx, "x"); !errors.Is(err, ErrNoTags) {
		t.Errorf("got %v, want ErrNoTags", err)
	}
	if _, err := n.TestAndSet(ctx, "x", nil, vs.KeyPtr(vs.Key{1})); !errors.Is(err, ErrNoTags) {
		t.Errorf("got %v, want ErrNoTags", err)
	}
	n.Watch("x", func(string, *vs.Key, *vs.Key) {})()
}
