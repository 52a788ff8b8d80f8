package testutil

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/vs"
)

type tagEvent struct {
	Name     string
	Old, New string
}

func keyString(k *vs.Key) string {
	if k == nil {
		return "<nil>"
	}
	return k.String()
}

// Tags checks the test-and-set semantics,
// listing,
// and change notification of a TagStore.
// The store must start out with no tags.
func Tags(ctx context.Context, t *testing.T, store vs.TagStore) {
	var (
		k1 = vs.Key{0x1a}
		k2 = vs.Key{0x2b}
		k3 = vs.Key{0x3c}
	)

	var (
		mu        sync.Mutex
		allEvents []tagEvent
		aEvents   []tagEvent
	)
	cancelAll := store.Watch("", func(name string, old, new *vs.Key) {
		mu.Lock()
		allEvents = append(allEvents, tagEvent{Name: name, Old: keyString(old), New: keyString(new)})
		mu.Unlock()
	})
	defer cancelAll()
	cancelA := store.Watch("a", func(name string, old, new *vs.Key) {
		mu.Lock()
		aEvents = append(aEvents, tagEvent{Name: name, Old: keyString(old), New: keyString(new)})
		mu.Unlock()
	})
	defer cancelA()

	_, err := store.GetTag(ctx, "a")
	if !errors.Is(err, vs.ErrNotFound) {
		t.Fatalf("got error %v for a missing tag, want ErrNotFound", err)
	}

	mustTAS := func(name string, old, new *vs.Key, want bool) {
		t.Helper()
		ok, err := store.TestAndSet(ctx, name, old, new)
		if err != nil {
			t.Fatal(err)
		}
		if ok != want {
			t.Fatalf("TestAndSet(%s, %s, %s) = %v, want %v", name, keyString(old), keyString(new), ok, want)
		}
	}

	mustTAS("a", nil, &k1, true)
	mustTAS("a", nil, &k2, false) // already exists
	mustTAS("a", &k2, &k3, false) // wrong old value
	mustTAS("a", &k1, &k2, true)
	mustTAS("b", &k1, &k2, false) // does not exist
	mustTAS("b", nil, &k3, true)
	mustTAS("c", nil, &k1, true)
	mustTAS("c", &k1, nil, true) // delete
	mustTAS("c", &k1, nil, false)

	got, err := store.GetTag(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if got != k2 {
		t.Errorf("tag a is %s, want %s", got, k2)
	}
	if _, err = store.GetTag(ctx, "c"); !errors.Is(err, vs.ErrNotFound) {
		t.Errorf("got error %v for deleted tag, want ErrNotFound", err)
	}

	var listed []tagEvent
	err = store.ListTags(ctx, "", func(name string, k vs.Key) error {
		listed = append(listed, tagEvent{Name: name, New: k.String()})
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	wantListed := []tagEvent{
		{Name: "a", New: k2.String()},
		{Name: "b", New: k3.String()},
	}
	if diff := cmp.Diff(wantListed, listed); diff != "" {
		t.Errorf("ListTags mismatch (-want +got):\n%s", diff)
	}

	listed = nil
	err = store.ListTags(ctx, "a", func(name string, k vs.Key) error {
		listed = append(listed, tagEvent{Name: name, New: k.String()})
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(wantListed[1:], listed); diff != "" {
		t.Errorf("ListTags after a mismatch (-want +got):\n%s", diff)
	}

	mu.Lock()
	defer mu.Unlock()

	wantA := []tagEvent{
		{Name: "a", Old: "<nil>", New: k1.String()},
		{Name: "a", Old: k1.String(), New: k2.String()},
	}
	if diff := cmp.Diff(wantA, aEvents); diff != "" {
		t.Errorf("watch(a) mismatch (-want +got):\n%s", diff)
	}
	wantAll := []tagEvent{
		{Name: "a", Old: "<nil>", New: k1.String()},
		{Name: "a", Old: k1.String(), New: k2.String()},
		{Name: "b", Old: "<nil>", New: k3.String()},
		{Name: "c", Old: "<nil>", New: k1.String()},
		{Name: "c", Old: k1.String(), New: "<nil>"},
	}
	if diff := cmp.Diff(wantAll, allEvents); diff != "" {
		t.Errorf("watch(all) mismatch (-want +got):\n%s", diff)
	}
}
