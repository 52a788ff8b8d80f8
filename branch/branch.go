// Package branch keeps named branch heads in a vs.TagStore.
//
// A branch is a tag pointing to a commit.
// Branches only ever move by test-and-set,
// so concurrent updates cannot lose each other's commits:
// a writer that loses a race either retries (Merge)
// or reports a conflict (Update).
package branch

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/bobg/vs"
	"github.com/bobg/vs/commit"
	"github.com/bobg/vs/merge"
	"github.com/bobg/vs/view"
)

// Prefix is prepended to branch names to make tag names.
const Prefix = "branch/"

// DefaultRetries is the default value of Store.Retries.
const DefaultRetries = 10

var (
	// ErrNotFastForward means a branch head is not an ancestor of the proposed new head.
	ErrNotFastForward = errors.New("not a fast-forward")

	// ErrContention means a branch kept moving while an update was being retried.
	ErrContention = errors.New("too many concurrent updates")
)

// Store manages branches whose commits live in a commit.History.
type Store struct {
	tags vs.TagStore
	h    *commit.History

	// Retries bounds how many times Merge and FastForward
	// retry after losing a race to update a branch.
	Retries int
}

// New produces a Store keeping branch heads in tags.
func New(tags vs.TagStore, h *commit.History) *Store {
	return &Store{tags: tags, h: h, Retries: DefaultRetries}
}

// History returns the commit history of s.
func (s *Store) History() *commit.History {
	return s.h
}

// Head returns the commit at the head of the named branch.
// The error wraps vs.ErrNotFound if there is no such branch.
func (s *Store) Head(ctx context.Context, name string) (vs.Key, error) {
	k, err := s.tags.GetTag(ctx, Prefix+name)
	return k, errors.Wrapf(err, "getting head of %s", name)
}

func (s *Store) head(ctx context.Context, name string) (*vs.Key, error) {
	k, err := s.Head(ctx, name)
	if errors.Is(err, vs.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// Root returns the tree root of the named branch's head,
// or the empty node if the branch does not exist or its head has no tree.
func (s *Store) Root(ctx context.Context, name string) (vs.Key, error) {
	head, err := s.head(ctx, name)
	if err != nil {
		return vs.Zero, err
	}
	return s.rootOf(ctx, head)
}

func (s *Store) rootOf(ctx context.Context, head *vs.Key) (vs.Key, error) {
	if head != nil {
		root, err := s.h.Node(ctx, *head)
		if err != nil {
			return vs.Zero, err
		}
		if root != nil {
			return *root, nil
		}
	}
	return s.h.Graph().Empty(ctx)
}

// Set points the named branch at c unconditionally,
// creating the branch if needed.
// Whatever the branch pointed to before is no longer reachable from it.
func (s *Store) Set(ctx context.Context, name string, c vs.Key) error {
	return s.force(ctx, name, &c)
}

// Remove deletes the named branch.
// Removing a branch that does not exist is not an error.
func (s *Store) Remove(ctx context.Context, name string) error {
	return s.force(ctx, name, nil)
}

func (s *Store) force(ctx context.Context, name string, c *vs.Key) error {
	for i := 0; i <= s.Retries; i++ {
		old, err := s.head(ctx, name)
		if err != nil {
			return err
		}
		if vs.SameKey(old, c) {
			return nil
		}
		ok, err := s.tags.TestAndSet(ctx, Prefix+name, old, c)
		if err != nil {
			return errors.Wrapf(err, "updating %s", name)
		}
		if ok {
			return nil
		}
	}
	return errors.Wrapf(ErrContention, "updating %s", name)
}

// List calls f for each branch in name order.
// If f returns an error, List exits with that error.
func (s *Store) List(ctx context.Context, f func(name string, head vs.Key) error) error {
	errDone := errors.New("done")
	err := s.tags.ListTags(ctx, Prefix, func(tag string, k vs.Key) error {
		if !strings.HasPrefix(tag, Prefix) {
			return errDone
		}
		return f(strings.TrimPrefix(tag, Prefix), k)
	})
	if errors.Is(err, errDone) {
		return nil
	}
	return err
}

// Watch calls f after each change to the named branch,
// or to any branch if name is "".
// It returns a function that stops the calls.
func (s *Store) Watch(name string, f vs.WatchFunc) (cancel func()) {
	if name != "" {
		return s.tags.Watch(Prefix+name, func(_ string, old, new *vs.Key) {
			f(name, old, new)
		})
	}
	return s.tags.Watch("", func(tag string, old, new *vs.Key) {
		if strings.HasPrefix(tag, Prefix) {
			f(strings.TrimPrefix(tag, Prefix), old, new)
		}
	})
}

// FastForward moves the named branch to c,
// provided its current head is an ancestor of c
// (or the branch does not exist).
// Otherwise the error is ErrNotFastForward.
func (s *Store) FastForward(ctx context.Context, name string, c vs.Key) error {
	for i := 0; i <= s.Retries; i++ {
		head, err := s.head(ctx, name)
		if err != nil {
			return err
		}
		if head != nil {
			isAnc, err := s.h.IsAncestor(ctx, *head, c)
			if err != nil {
				return errors.Wrapf(err, "checking ancestry of %s", c)
			}
			if !isAnc {
				return errors.Wrapf(ErrNotFastForward, "%s at %s", name, head)
			}
			if *head == c {
				return nil
			}
		}
		ok, err := s.tags.TestAndSet(ctx, Prefix+name, head, &c)
		if err != nil {
			return errors.Wrapf(err, "updating %s", name)
		}
		if ok {
			return nil
		}
	}
	return errors.Wrapf(ErrContention, "fast-forwarding %s", name)
}

// Merge brings commit c into the named branch and returns the branch's new head.
// If the branch does not exist it is created at c.
// If the head already contains c nothing changes;
// if c contains the head the branch fast-forwards.
// Otherwise the head and c are merged with commit.History.ThreeWay
// (with info for the merge commit and contents for leaves changed on both sides)
// and the branch moves to the merge commit.
// If the branch moves concurrently the whole process is retried.
//
// Merge conflicts, including an ambiguous common ancestor,
// are returned as errors and leave the branch unchanged.
func (s *Store) Merge(ctx context.Context, name string, c vs.Key, info commit.Info, contents merge.Func[*vs.Key]) (vs.Key, error) {
	for i := 0; i <= s.Retries; i++ {
		head, err := s.head(ctx, name)
		if err != nil {
			return vs.Zero, err
		}

		target := c
		if head != nil {
			if ok, err := s.h.IsAncestor(ctx, c, *head); err != nil {
				return vs.Zero, err
			} else if ok {
				return *head, nil
			}
			ok, err := s.h.IsAncestor(ctx, *head, c)
			if err != nil {
				return vs.Zero, err
			}
			if !ok {
				target, err = s.h.ThreeWay(ctx, info, *head, c, contents)
				if err != nil {
					return vs.Zero, errors.Wrapf(err, "merging %s into %s", c, name)
				}
			}
		}

		ok, err := s.tags.TestAndSet(ctx, Prefix+name, head, &target)
		if err != nil {
			return vs.Zero, errors.Wrapf(err, "updating %s", name)
		}
		if ok {
			return target, nil
		}
	}
	return vs.Zero, errors.Wrapf(ErrContention, "merging into %s", name)
}

// Update commits the changes in v to the named branch
// and returns the new commit.
// The view is rebased onto the tree at the branch's head
// (which fails if anything the view read has changed),
// the resulting tree is committed with the head as its parent,
// and the branch is moved to the new commit.
// If the branch moves in the meantime
// the error is a merge.Conflict;
// either way v is closed.
func (s *Store) Update(ctx context.Context, name string, v *view.View, info commit.Info) (vs.Key, error) {
	head, err := s.head(ctx, name)
	if err != nil {
		return vs.Zero, err
	}
	root, err := s.rootOf(ctx, head)
	if err != nil {
		return vs.Zero, err
	}
	newRoot, err := v.Rebase(ctx, root)
	if err != nil {
		return vs.Zero, errors.Wrapf(err, "rebasing onto %s", name)
	}

	var parents []vs.Key
	if head != nil {
		parents = []vs.Key{*head}
	}
	c, err := s.h.Commit(ctx, info, &newRoot, parents)
	if err != nil {
		return vs.Zero, err
	}
	ok, err := s.tags.TestAndSet(ctx, Prefix+name, head, &c)
	if err != nil {
		return vs.Zero, errors.Wrapf(err, "updating %s", name)
	}
	if !ok {
		return vs.Zero, merge.Conflictf("branch %s moved during update", name)
	}
	return c, nil
}
