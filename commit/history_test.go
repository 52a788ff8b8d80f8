package commit_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/bobg/vs"
	"github.com/bobg/vs/commit"
	"github.com/bobg/vs/merge"
	"github.com/bobg/vs/node"
	"github.com/bobg/vs/store/mem"
)

type fixture struct {
	t   *testing.T
	ctx context.Context
	h   *commit.History
}

func newFixture(t *testing.T) *fixture {
	return &fixture{
		t:   t,
		ctx: context.Background(),
		h:   commit.New(node.New(mem.New())),
	}
}

// commit stores a commit whose tree holds files (path->contents).
func (f *fixture) commit(msg string, files map[string]string, parents ...vs.Key) vs.Key {
	f.t.Helper()
	g := f.h.Graph()
	root, err := g.Empty(f.ctx)
	if err != nil {
		f.t.Fatal(err)
	}
	for p, c := range files {
		ck, _, err := g.Store().Put(f.ctx, vs.Blob(c))
		if err != nil {
			f.t.Fatal(err)
		}
		root, err = g.AddContents(f.ctx, root, node.ParsePath(p), ck)
		if err != nil {
			f.t.Fatal(err)
		}
	}
	k, err := f.h.Commit(f.ctx, commit.Info{Messages: []string{msg}}, &root, parents)
	if err != nil {
		f.t.Fatal(err)
	}
	return k
}

func (f *fixture) files(c vs.Key) map[string]string {
	f.t.Helper()
	g := f.h.Graph()
	root, err := f.h.Node(f.ctx, c)
	if err != nil {
		f.t.Fatal(err)
	}
	result := make(map[string]string)
	if root == nil {
		return result
	}
	err = g.Walk(f.ctx, *root, func(p node.Path, e node.Entry) error {
		if e.Kind != node.KindContents {
			return nil
		}
		b, err := g.Store().Get(f.ctx, e.Key)
		if err != nil {
			return err
		}
		result[p.String()] = string(b)
		return nil
	})
	if err != nil {
		f.t.Fatal(err)
	}
	return result
}

func TestCommitMissingParent(t *testing.T) {
	f := newFixture(t)
	_, err := f.h.Commit(f.ctx, commit.Info{}, nil, []vs.Key{vs.Blob("nope").Key()})
	if !errors.Is(err, vs.ErrNotFound) {
		t.Errorf("got error %v, want ErrNotFound", err)
	}
}

func TestParents(t *testing.T) {
	f := newFixture(t)
	a := f.commit("a", nil)
	b := f.commit("b", nil, a)
	c := f.commit("c", nil, a)
	d := f.commit("d", nil, c, b)

	got, err := f.h.Parents(f.ctx, d)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]vs.Key{c, b}, got); diff != "" {
		t.Errorf("parent order not preserved (-want +got):\n%s", diff)
	}
}

func TestFindCommonAncestor(t *testing.T) {
	f := newFixture(t)

	// Diamond: A -> B, A -> C, B+C -> D.
	a := f.commit("A", nil)
	b := f.commit("B", nil, a)
	c := f.commit("C", nil, a)
	d := f.commit("D", nil, b, c)

	// Linear: A -> B -> B2 -> B3.
	b2 := f.commit("B2", nil, b)
	b3 := f.commit("B3", nil, b2)

	// Unrelated.
	z := f.commit("Z", nil)

	// Criss-cross: B+C -> X, C+B -> Y.
	x := f.commit("X", nil, b, c)
	y := f.commit("Y", nil, c, b)

	// P's parents are A and B, where B descends from A.
	p := f.commit("P", nil, a, b)
	q := f.commit("Q", nil, a, b)

	cases := []struct {
		name    string
		c1, c2  vs.Key
		want    vs.Key
		wantErr error
		ambig   []vs.Key
	}{
		{name: "diamond", c1: b, c2: c, want: a},
		{name: "merge and branch", c1: d, c2: b3, want: b},
		{name: "same", c1: c, c2: c, want: c},
		{name: "linear", c1: b, c2: b3, want: b},
		{name: "unrelated", c1: d, c2: z, wantErr: commit.ErrNoCommonAncestor},
		{name: "criss-cross", c1: x, c2: y, ambig: []vs.Key{b, c}},
		{name: "comparable candidates", c1: p, c2: q, want: b},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for _, order := range [][2]vs.Key{{tc.c1, tc.c2}, {tc.c2, tc.c1}} {
				got, err := f.h.FindCommonAncestor(f.ctx, order[0], order[1])
				switch {
				case tc.wantErr != nil:
					if !errors.Is(err, tc.wantErr) {
						t.Errorf("got error %v, want %v", err, tc.wantErr)
					}

				case tc.ambig != nil:
					var e *commit.AmbiguousAncestorError
					if !errors.As(err, &e) {
						t.Fatalf("got error %v, want AmbiguousAncestorError", err)
					}
					want := append([]vs.Key(nil), tc.ambig...)
					if want[1].Less(want[0]) {
						want[0], want[1] = want[1], want[0]
					}
					if diff := cmp.Diff(want, e.Candidates); diff != "" {
						t.Errorf("candidates mismatch (-want +got):\n%s", diff)
					}

				default:
					if err != nil {
						t.Fatal(err)
					}
					if got != tc.want {
						t.Errorf("got %s, want %s", got, tc.want)
					}
				}
			}
		})
	}
}

func TestThreeWay(t *testing.T) {
	f := newFixture(t)

	base := f.commit("base", map[string]string{"a": "1", "b": "2"})
	left := f.commit("left", map[string]string{"a": "1L", "b": "2"}, base)
	right := f.commit("right", map[string]string{"a": "1", "b": "2", "c/d": "3"}, base)

	m, err := f.h.ThreeWay(f.ctx, commit.Info{Author: "merger"}, left, right, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"a": "1L", "b": "2", "c/d": "3"}
	if diff := cmp.Diff(want, f.files(m)); diff != "" {
		t.Errorf("merged tree mismatch (-want +got):\n%s", diff)
	}

	mc, err := f.h.Get(f.ctx, m)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]vs.Key{left, right}, mc.Parents); diff != "" {
		t.Errorf("parents mismatch (-want +got):\n%s", diff)
	}
	if mc.Author != "merger" {
		t.Errorf("got author %q, want merger", mc.Author)
	}
}

func TestMergeConflict(t *testing.T) {
	f := newFixture(t)

	base := f.commit("base", map[string]string{"a": "1"})
	left := f.commit("left", map[string]string{"a": "L"}, base)
	right := f.commit("right", map[string]string{"a": "R"}, base)

	_, err := f.h.Merge(f.ctx, commit.Info{}, &base, left, right, nil)
	cs := merge.ConflictsOf(err)
	if len(cs) != 1 {
		t.Fatalf("got error %v, want one conflict", err)
	}
	if diff := cmp.Diff([]string{"a"}, cs[0].Path); diff != "" {
		t.Errorf("conflict path mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeNoAncestor(t *testing.T) {
	f := newFixture(t)

	left := f.commit("left", map[string]string{"a": "1"})
	right := f.commit("right", map[string]string{"b": "2"})

	m, err := f.h.ThreeWay(f.ctx, commit.Info{}, left, right, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"a": "1", "b": "2"}
	if diff := cmp.Diff(want, f.files(m)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestClosureAndAncestors(t *testing.T) {
	f := newFixture(t)

	a := f.commit("A", nil)
	b := f.commit("B", nil, a)
	c := f.commit("C", nil, a)
	d := f.commit("D", nil, b, c)
	e := f.commit("E", nil, d)

	got, err := f.h.Closure(f.ctx, []vs.Key{b}, []vs.Key{e})
	if err != nil {
		t.Fatal(err)
	}
	// A is still reachable through C.
	want := []vs.Key{a, c, d, e}
	sortKeys(want)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("closure mismatch (-want +got):\n%s", diff)
	}

	got, err = f.h.Closure(f.ctx, []vs.Key{b, c}, []vs.Key{e})
	if err != nil {
		t.Fatal(err)
	}
	want = []vs.Key{d, e}
	sortKeys(want)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("closure mismatch (-want +got):\n%s", diff)
	}

	anc, err := f.h.Ancestors(f.ctx, e, 1)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]vs.Key{e, d}, anc); diff != "" {
		t.Errorf("ancestors mismatch (-want +got):\n%s", diff)
	}

	anc, err = f.h.Ancestors(f.ctx, e, -1)
	if err != nil {
		t.Fatal(err)
	}
	if len(anc) != 5 || anc[len(anc)-1] != a {
		t.Errorf("got %d ancestors ending in %s, want 5 ending in %s", len(anc), anc[len(anc)-1], a)
	}

	ok, err := f.h.IsAncestor(f.ctx, a, e)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("A is not an ancestor of E")
	}
	ok, err = f.h.IsAncestor(f.ctx, b, c)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("B is an ancestor of C")
	}
}

func sortKeys(keys []vs.Key) {
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j].Less(keys[j-1]); j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
}
