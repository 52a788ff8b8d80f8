package vs_test

import (
	"context"
	"sync"
	"testing"
	"testing/quick"

	"github.com/google/go-cmp/cmp"

	. "github.com/bobg/vs"
	"github.com/bobg/vs/store/mem"
)

func TestKeyCodecs(t *testing.T) {
	err := quick.Check(func(b []byte) bool {
		k := Blob(b).Key()

		fromHex, err := ParseKey(k.String())
		if err != nil {
			t.Log(err)
			return false
		}
		if fromHex != k {
			return false
		}

		c, err := k.CID()
		if err != nil {
			t.Log(err)
			return false
		}
		fromCID, err := ParseKey(c.String())
		if err != nil {
			t.Log(err)
			return false
		}
		return fromCID == k
	}, nil)
	if err != nil {
		t.Error(err)
	}

	if _, err = ParseKey("not a key"); err == nil {
		t.Error("got no error parsing a bad key")
	}
	if _, err = KeyFromHex("abc"); err == nil {
		t.Error("got no error parsing a short hex key")
	}
}

func TestSameKey(t *testing.T) {
	var (
		a = KeyPtr(Key{1})
		b = KeyPtr(Key{1})
		c = KeyPtr(Key{2})
	)
	cases := []struct {
		x, y *Key
		want bool
	}{
		{nil, nil, true},
		{a, nil, false},
		{nil, a, false},
		{a, b, true},
		{a, c, false},
	}
	for i, tc := range cases {
		if got := SameKey(tc.x, tc.y); got != tc.want {
			t.Errorf("case %d: got %v, want %v", i+1, got, tc.want)
		}
	}
}

// putOnly hides every method of a store but Get, ListKeys, and Put.
type putOnly struct {
	s Store
}

func (p putOnly) Get(ctx context.Context, k Key) (Blob, error) { return p.s.Get(ctx, k) }
func (p putOnly) ListKeys(ctx context.Context, start Key, f func(Key) error) error {
	return p.s.ListKeys(ctx, start, f)
}
func (p putOnly) Put(ctx context.Context, b Blob) (Key, bool, error) { return p.s.Put(ctx, b) }

func TestHelpers(t *testing.T) {
	ctx := context.Background()
	s := putOnly{s: mem.New()}

	b := Blob("hello")
	added, err := PutAt(ctx, s, b.Key(), b)
	if err != nil {
		t.Fatal(err)
	}
	if !added {
		t.Error("blob not added")
	}
	if _, err = PutAt(ctx, s, Key{}, Blob("other")); err == nil {
		t.Error("got no error storing a blob under the wrong key")
	}

	ok, err := Exists(ctx, s, b.Key())
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("stored blob does not exist")
	}
	ok, err = Exists(ctx, s, Blob("missing").Key())
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("missing blob exists")
	}

	var called bool
	err = Batch(ctx, s, func(bs Store) error {
		called = true
		_, _, err := bs.Put(ctx, Blob("batched"))
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Error("batch function not called")
	}
}

func TestWatchers(t *testing.T) {
	var (
		w      Watchers
		mu     sync.Mutex
		events []string
	)
	record := func(prefix string) WatchFunc {
		return func(name string, old, new *Key) {
			mu.Lock()
			events = append(events, prefix+":"+name)
			mu.Unlock()
		}
	}

	cancelAll := w.Add("", record("all"))
	cancelX := w.Add("x", record("x"))

	w.Notify("x", nil, KeyPtr(Key{1}))
	w.Notify("y", nil, KeyPtr(Key{2}))
	cancelX()
	w.Notify("x", KeyPtr(Key{1}), nil)
	cancelAll()
	w.Notify("x", nil, nil)

	want := []string{"all:x", "x:x", "all:y", "all:x"}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
