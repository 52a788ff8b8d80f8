package branch_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/bobg/vs"
	"github.com/bobg/vs/branch"
	"github.com/bobg/vs/commit"
	"github.com/bobg/vs/merge"
	"github.com/bobg/vs/node"
	"github.com/bobg/vs/store/mem"
	"github.com/bobg/vs/view"
)

func newStore() (*branch.Store, *mem.Store) {
	m := mem.New()
	return branch.New(m, commit.New(node.New(m))), m
}

// write commits one file change to the named branch.
func write(t *testing.T, s *branch.Store, name, path, contents string) vs.Key {
	t.Helper()
	ctx := context.Background()
	root, err := s.Root(ctx, name)
	if err != nil {
		t.Fatal(err)
	}
	v := view.New(s.History().Graph(), root, nil)
	if err := v.Update(ctx, node.ParsePath(path), vs.Blob(contents)); err != nil {
		t.Fatal(err)
	}
	c, err := s.Update(ctx, name, v, commit.Info{Messages: []string{path + "=" + contents}})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func files(t *testing.T, s *branch.Store, name string) map[string]string {
	t.Helper()
	ctx := context.Background()
	root, err := s.Root(ctx, name)
	if err != nil {
		t.Fatal(err)
	}
	g := s.History().Graph()
	result := make(map[string]string)
	err = g.Walk(ctx, root, func(p node.Path, e node.Entry) error {
		if e.Kind != node.KindContents {
			return nil
		}
		b, err := g.Store().Get(ctx, e.Key)
		if err != nil {
			return err
		}
		result[p.String()] = string(b)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return result
}

func TestUpdateAndMerge(t *testing.T) {
	var (
		ctx  = context.Background()
		s, _ = newStore()
	)

	if _, err := s.Head(ctx, "main"); !errors.Is(err, vs.ErrNotFound) {
		t.Fatalf("got error %v for a missing branch, want ErrNotFound", err)
	}

	base := write(t, s, "main", "a", "1")
	if err := s.Set(ctx, "feature", base); err != nil {
		t.Fatal(err)
	}
	write(t, s, "main", "b", "2")
	feat := write(t, s, "feature", "c", "3")

	head, err := s.Merge(ctx, "main", feat, commit.Info{Messages: []string{"merge feature"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"a": "1", "b": "2", "c": "3"}
	if diff := cmp.Diff(want, files(t, s, "main")); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	// Merging again changes nothing.
	again, err := s.Merge(ctx, "main", feat, commit.Info{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if again != head {
		t.Error("re-merging an ancestor moved the branch")
	}

	// The feature branch fast-forwards to main.
	if err := s.FastForward(ctx, "feature", head); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Head(ctx, "feature"); got != head {
		t.Errorf("feature at %s, want %s", got, head)
	}
	if err := s.FastForward(ctx, "feature", base); !errors.Is(err, branch.ErrNotFastForward) {
		t.Errorf("got error %v moving backward, want ErrNotFastForward", err)
	}
}

func TestMergeConflict(t *testing.T) {
	var (
		ctx  = context.Background()
		s, _ = newStore()
	)

	base := write(t, s, "main", "a", "1")
	if err := s.Set(ctx, "other", base); err != nil {
		t.Fatal(err)
	}
	mainHead := write(t, s, "main", "a", "main")
	otherHead := write(t, s, "other", "a", "other")

	_, err := s.Merge(ctx, "main", otherHead, commit.Info{}, nil)
	if !merge.IsConflict(err) {
		t.Fatalf("got error %v, want a conflict", err)
	}
	if got, _ := s.Head(ctx, "main"); got != mainHead {
		t.Error("a conflicting merge moved the branch")
	}
}

func TestUpdateRace(t *testing.T) {
	var (
		ctx  = context.Background()
		s, _ = newStore()
	)

	write(t, s, "main", "a", "1")
	root, err := s.Root(ctx, "main")
	if err != nil {
		t.Fatal(err)
	}

	v := view.New(s.History().Graph(), root, nil)
	if _, _, err := v.Read(ctx, node.Path{"a"}); err != nil {
		t.Fatal(err)
	}
	if err := v.Update(ctx, node.Path{"b"}, vs.Blob("from view")); err != nil {
		t.Fatal(err)
	}

	// Someone else changes what the view read.
	write(t, s, "main", "a", "changed")

	if _, err := s.Update(ctx, "main", v, commit.Info{}); !merge.IsConflict(err) {
		t.Errorf("got error %v, want a conflict", err)
	}
	want := map[string]string{"a": "changed"}
	if diff := cmp.Diff(want, files(t, s, "main")); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestListWatchRemove(t *testing.T) {
	var (
		ctx  = context.Background()
		s, m = newStore()
	)

	type event struct {
		Name     string
		Old, New *vs.Key
	}
	var events []event
	cancel := s.Watch("", func(name string, old, new *vs.Key) {
		events = append(events, event{Name: name, Old: old, New: new})
	})
	defer cancel()

	// A tag outside the branch namespace is neither listed nor watched.
	other := vs.Blob("x").Key()
	if _, err := m.TestAndSet(ctx, "zzz", nil, &other); err != nil {
		t.Fatal(err)
	}

	b1 := write(t, s, "b1", "f", "1")
	b2 := write(t, s, "b2", "f", "2")
	if err := s.Remove(ctx, "b1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(ctx, "b1"); err != nil {
		t.Fatal(err)
	}

	var names []string
	err := s.List(ctx, func(name string, head vs.Key) error {
		names = append(names, name)
		if head != b2 {
			t.Errorf("branch %s at %s, want %s", name, head, b2)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"b2"}, names); diff != "" {
		t.Errorf("branch list mismatch (-want +got):\n%s", diff)
	}

	want := []event{
		{Name: "b1", New: &b1},
		{Name: "b2", New: &b2},
		{Name: "b1", Old: &b1},
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}
