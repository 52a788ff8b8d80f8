package merge_test

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"testing/quick"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/vs"
	"github.com/bobg/vs/merge"
	"github.com/bobg/vs/store/mem"
)

func TestDefaultProperties(t *testing.T) {
	var (
		ctx = context.Background()
		f   = merge.Default[int]()
	)

	idempotent := func(old, x int) bool {
		got, err := f(ctx, &old, x, x)
		return err == nil && got == x
	}
	if err := quick.Check(idempotent, nil); err != nil {
		t.Errorf("merge(old, x, x) != x: %s", err)
	}

	takeChanged := func(old, y int) bool {
		got1, err1 := f(ctx, &old, old, y)
		got2, err2 := f(ctx, &old, y, old)
		return err1 == nil && err2 == nil && got1 == y && got2 == y
	}
	if err := quick.Check(takeChanged, nil); err != nil {
		t.Errorf("one-sided change not taken: %s", err)
	}
}

func TestDefault(t *testing.T) {
	ctx := context.Background()
	f := merge.Default[string]()
	old := "o"

	cases := []struct {
		old          *string
		a, b         string
		want         string
		wantConflict bool
	}{
		{old: &old, a: "o", b: "o", want: "o"},
		{old: &old, a: "x", b: "o", want: "x"},
		{old: &old, a: "o", b: "y", want: "y"},
		{old: &old, a: "x", b: "x", want: "x"},
		{old: &old, a: "x", b: "y", wantConflict: true},
		{a: "x", b: "x", want: "x"},
		{a: "x", b: "y", wantConflict: true},
	}
	for i, tc := range cases {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			got, err := f(ctx, tc.old, tc.a, tc.b)
			if tc.wantConflict {
				if !merge.IsConflict(err) {
					t.Errorf("got %v, want conflict", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func ptr[T any](v T) *T { return &v }

func TestOptional(t *testing.T) {
	ctx := context.Background()
	f := merge.DefaultOptional[int]()

	var (
		absent  *int
		present = ptr(1)
	)

	cases := []struct {
		name         string
		old          **int
		a, b         *int
		want         *int
		wantConflict bool
	}{
		{name: "both absent", old: &present, want: nil},
		{name: "removed one side", old: &present, a: nil, b: ptr(1), want: nil},
		{name: "removed other side", old: &present, a: ptr(1), b: nil, want: nil},
		{name: "added one side", old: &absent, a: ptr(2), b: nil, want: ptr(2)},
		{name: "added both sides same", old: &absent, a: ptr(2), b: ptr(2), want: ptr(2)},
		{name: "added both sides differently", old: &absent, a: ptr(2), b: ptr(3), wantConflict: true},
		{name: "removed vs modified", old: &present, a: nil, b: ptr(5), wantConflict: true},
		{name: "modified one side", old: &present, a: ptr(1), b: ptr(5), want: ptr(5)},
		{name: "no ancestor, one side", a: ptr(1), wantConflict: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := f(ctx, tc.old, tc.a, tc.b)
			if tc.wantConflict {
				if !merge.IsConflict(err) {
					t.Errorf("got %v, want conflict", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPairwise(t *testing.T) {
	ctx := context.Background()
	f := merge.Pairwise(merge.Default[int](), merge.Default[string]())

	old := merge.Pair[int, string]{First: 1, Second: "a"}
	got, err := f(ctx, &old, merge.Pair[int, string]{First: 2, Second: "a"}, merge.Pair[int, string]{First: 1, Second: "b"})
	if err != nil {
		t.Fatal(err)
	}
	if want := (merge.Pair[int, string]{First: 2, Second: "b"}); got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	_, err = f(ctx, &old, merge.Pair[int, string]{First: 2, Second: "a"}, merge.Pair[int, string]{First: 3, Second: "b"})
	cs := merge.ConflictsOf(err)
	if len(cs) != 1 {
		t.Fatalf("got %v, want one conflict", err)
	}
	if diff := cmp.Diff([]string{"first"}, cs[0].Path); diff != "" {
		t.Errorf("conflict path mismatch (-want +got):\n%s", diff)
	}
}

func TestMap(t *testing.T) {
	ctx := context.Background()
	f := merge.DefaultMap[string, int]()

	old := map[string]int{"keep": 1, "left": 1, "right": 1, "gone": 1, "clash": 1, "delmod": 1}
	a := map[string]int{"keep": 1, "left": 2, "right": 1, "clash": 2, "new": 7}
	b := map[string]int{"keep": 1, "left": 1, "right": 3, "clash": 3, "new": 7, "delmod": 9}

	got, err := f(ctx, &old, a, b)
	cs := merge.ConflictsOf(err)
	if len(cs) != 2 {
		t.Fatalf("got %v, want two conflicts", err)
	}
	var paths []string
	for _, c := range cs {
		paths = append(paths, c.Path[0])
	}
	if diff := cmp.Diff([]string{"clash", "delmod"}, paths); diff != "" {
		t.Errorf("conflict paths mismatch (-want +got):\n%s", diff)
	}

	want := map[string]int{"keep": 1, "left": 2, "right": 3, "new": 7}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("partial result mismatch (-want +got):\n%s", diff)
	}

	got, err = f(ctx, &old, a, old)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(a, got); diff != "" {
		t.Errorf("one-sided map merge mismatch (-want +got):\n%s", diff)
	}
}

func TestFirst(t *testing.T) {
	ctx := context.Background()
	max := func(_ context.Context, _ *int, a, b int) (int, error) {
		if a > b {
			return a, nil
		}
		return b, nil
	}
	f := merge.First(merge.Default[int](), max)

	old := 1
	got, err := f(ctx, &old, 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	if got != 3 {
		t.Errorf("got %d, want 3", got)
	}

	boom := errors.New("boom")
	failing := func(context.Context, *int, int, int) (int, error) { return 0, boom }
	_, err = merge.First(failing, max)(ctx, &old, 2, 3)
	if !errors.Is(err, boom) {
		t.Errorf("got %v, want boom", err)
	}

	_, err = merge.First(merge.Default[int]())(ctx, &old, 2, 3)
	if !merge.IsConflict(err) {
		t.Errorf("got %v, want conflict", err)
	}
}

func TestBiject(t *testing.T) {
	ctx := context.Background()
	f := merge.Biject(merge.Counter(),
		func(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) },
		func(n int64) (string, error) { return strconv.FormatInt(n, 10), nil },
	)

	old := "10"
	got, err := f(ctx, &old, "12", "15")
	if err != nil {
		t.Fatal(err)
	}
	if got != "17" {
		t.Errorf("got %s, want 17", got)
	}

	_, err = f(ctx, &old, "x", "15")
	if !merge.IsConflict(err) {
		t.Errorf("got %v, want conflict for unconvertible input", err)
	}
}

type countingStore struct {
	*mem.Store
	gets int
}

func (s *countingStore) Get(ctx context.Context, k vs.Key) (vs.Blob, error) {
	s.gets++
	return s.Store.Get(ctx, k)
}

func TestIndirect(t *testing.T) {
	ctx := context.Background()
	s := &countingStore{Store: mem.New()}

	put := func(str string) vs.Key {
		k, _, err := s.Put(ctx, vs.Blob(str))
		if err != nil {
			t.Fatal(err)
		}
		return k
	}

	concat := func(_ context.Context, old *vs.Blob, a, b vs.Blob) (vs.Blob, error) {
		if old == nil {
			return nil, merge.Conflictf("no ancestor")
		}
		return vs.Blob(string(a) + "+" + string(b)), nil
	}
	f := merge.Blobs(s, concat)

	var (
		o = put("o")
		a = put("a")
		b = put("b")
	)

	got, err := f(ctx, &o, o, b)
	if err != nil {
		t.Fatal(err)
	}
	if got != b {
		t.Errorf("got %s, want %s", got, b)
	}
	if s.gets != 0 {
		t.Errorf("fast path read %d objects, want 0", s.gets)
	}

	got, err = f(ctx, &o, a, b)
	if err != nil {
		t.Fatal(err)
	}
	blob, err := s.Store.Get(ctx, got)
	if err != nil {
		t.Fatal(err)
	}
	if string(blob) != "a+b" {
		t.Errorf("got %q, want %q", blob, "a+b")
	}

	missing := vs.Blob("missing").Key()
	_, err = f(ctx, &o, a, missing)
	if !merge.IsConflict(err) {
		t.Errorf("got %v, want conflict for missing object", err)
	}
}

func TestPrefix(t *testing.T) {
	err := merge.Prefix("a", merge.Prefix("b", merge.Conflictf("oops")))
	cs := merge.ConflictsOf(err)
	if len(cs) != 1 {
		t.Fatalf("got %v, want one conflict", err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, cs[0].Path); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}
	if got, want := err.Error(), "conflict at a/b: oops"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	plain := errors.New("plain")
	if merge.Prefix("a", plain) != plain {
		t.Error("Prefix changed a non-conflict error")
	}
}
