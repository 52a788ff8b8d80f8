package replica

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/vs"
	"github.com/bobg/vs/store/mem"
	"github.com/bobg/vs/testutil"
)

func TestReplicaSets(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		m1 = mem.New()
		m2 = mem.New()
	)
	s, err := New(ctx, []vs.Store{m1, m2}, nil, 1)
	if err != nil {
		t.Fatal(err)
	}

	key1, _, err := m1.Put(ctx, vs.Blob("foo"))
	if err != nil {
		t.Fatal(err)
	}
	key2, _, err := m2.Put(ctx, vs.Blob("bar"))
	if err != nil {
		t.Fatal(err)
	}
	key3, _, err := s.Put(ctx, vs.Blob("baz"))
	if err != nil {
		t.Fatal(err)
	}

	checkReplica(ctx, t, "m1", m1, key1, key3)
	checkReplica(ctx, t, "m2", m2, key2, key3)
	checkReplica(ctx, t, "replica", s, key1, key2, key3)

	if _, err = s.Get(ctx, key2); err != nil {
		t.Errorf("getting blob present in only one store: %s", err)
	}
}

func checkReplica(ctx context.Context, t *testing.T, name string, s vs.Store, want ...vs.Key) {
	t.Run(name, func(t *testing.T) {
		var got []vs.Key
		err := s.ListKeys(ctx, vs.Zero, func(k vs.Key) error {
			got = append(got, k)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		sort.Slice(want, func(i, j int) bool { return want[i].Less(want[j]) })
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestAsync(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		m1 = mem.New()
		m2 = mem.New()
	)
	s, err := New(ctx, []vs.Store{m1}, []vs.Store{m2}, 4)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	k, _, err := s.Put(ctx, vs.Blob("async"))
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		ok, err := m2.Has(ctx, k)
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("blob never reached async store")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAllKeys(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	testutil.AllKeys(ctx, t, func() vs.Store {
		s, err := New(ctx, []vs.Store{mem.New(), mem.New()}, nil, 1)
		if err != nil {
			t.Fatal(err)
		}
		return s
	})
}

func TestReadWrite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := New(ctx, []vs.Store{mem.New(), mem.New()}, nil, 1)
	if err != nil {
		t.Fatal(err)
	}
	testutil.ReadWrite(ctx, t, s)
	testutil.Tags(ctx, t, s)
}
