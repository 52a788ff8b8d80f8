package view

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/bobg/vs"
	"github.com/bobg/vs/merge"
	"github.com/bobg/vs/node"
)

// Apply replaces the subtree at the view's path in the tree rooted at root
// with the view's version of it:
// the subtree as of the view's creation plus the view's writes.
// The read log is ignored,
// so changes made to the subtree in root since then are lost.
// It returns the key of the new root and closes the view.
func (v *View) Apply(ctx context.Context, root vs.Key) (vs.Key, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != Open {
		return vs.Zero, ErrClosed
	}

	if err := v.storeBlobs(ctx); err != nil {
		return vs.Zero, err
	}
	sub, err := v.subtree(ctx, v.base)
	if err != nil {
		return vs.Zero, err
	}
	result, err := v.graft(ctx, root, sub)
	if err != nil {
		return vs.Zero, err
	}
	v.state = Applied
	return result, nil
}

// Rebase checks that every read and list in the view's log
// sees the same thing in the tree rooted at root,
// then applies the view's writes to the subtree at the view's path in that tree.
// Changes made to root since the view's creation
// that the view did not depend on are kept.
//
// If any observation differs,
// nothing is written,
// the view is closed as Conflicted,
// and the error is a *merge.Conflict
// whose path (relative to root) names the first mismatch.
// Otherwise it returns the key of the new root and closes the view.
func (v *View) Rebase(ctx context.Context, root vs.Key) (vs.Key, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != Open {
		return vs.Zero, ErrClosed
	}

	for _, a := range v.actions {
		reason, err := v.replay(ctx, root, a)
		if err != nil {
			return vs.Zero, err
		}
		if reason != "" {
			v.state = Conflicted
			return vs.Zero, &merge.Conflict{Path: v.path.Append(a.Path...), Reason: reason}
		}
	}

	if err := v.storeBlobs(ctx); err != nil {
		return vs.Zero, err
	}
	sub, err := v.subtree(ctx, root)
	if err != nil {
		return vs.Zero, err
	}
	result, err := v.graft(ctx, root, sub)
	if err != nil {
		return vs.Zero, err
	}
	v.state = Applied
	return result, nil
}

// replay repeats a read or list against root.
// It returns a description of the difference, if there is one.
func (v *View) replay(ctx context.Context, root vs.Key, a Action) (string, error) {
	switch a.Kind {
	case ActionRead:
		k, err := v.readContents(ctx, root, a.Path)
		if err != nil {
			return "", err
		}
		if !vs.SameKey(k, a.Key) {
			return fmt.Sprintf("read %s, now %s", describe(a.Key), describe(k)), nil
		}

	case ActionList:
		entries, err := v.listEntries(ctx, root, a.Path)
		if err != nil {
			return "", err
		}
		now := steps(entries)
		if !sameSteps(now, a.Steps) {
			return fmt.Sprintf("listed %v, now %v", a.Steps, now), nil
		}
	}
	return "", nil
}

func sameSteps(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// subtree applies the view's writes to the subtree at the view's path in root
// and returns the key of the result.
func (v *View) subtree(ctx context.Context, root vs.Key) (vs.Key, error) {
	sub, ok, err := v.g.ReadNode(ctx, root, v.path)
	if err != nil {
		return vs.Zero, errors.Wrapf(err, "reading %s", v.path)
	}
	if !ok {
		sub, err = v.g.Empty(ctx)
		if err != nil {
			return vs.Zero, err
		}
	}

	for _, w := range v.sortedWrites() {
		if w.val == nil {
			sub, err = v.g.RemoveContents(ctx, sub, w.path)
		} else {
			sub, err = v.g.AddContents(ctx, sub, w.path, *w.val)
		}
		if err != nil {
			return vs.Zero, errors.Wrapf(err, "writing %s", w.path)
		}
	}
	return sub, nil
}

// storeBlobs stores the view's pending contents,
// before any node refers to them.
func (v *View) storeBlobs(ctx context.Context) error {
	blobs := make([]vs.Blob, 0, len(v.blobs))
	for _, w := range v.writes {
		if w.val != nil {
			blobs = append(blobs, v.blobs[*w.val])
		}
	}
	_, err := vs.PutMulti(ctx, v.g.Store(), blobs)
	return errors.Wrap(err, "storing contents")
}

// graft places sub at the view's path in root.
func (v *View) graft(ctx context.Context, root, sub vs.Key) (vs.Key, error) {
	result, err := v.g.AddNode(ctx, root, v.path, sub)
	return result, errors.Wrapf(err, "grafting %s", v.path)
}

// Merge combines the writes of other into v.
// Both views must have been created from the same tree at the same path.
// The two sets of writes are merged as two branches
// descending from the common tree:
// a path written by only one view takes that write,
// and a path written differently by both is a conflict.
// So is a path one view writes as a leaf
// while the other writes beneath it.
// On a conflict neither view changes;
// the error is a merge.Conflicts listing every conflicting path.
// On success v holds the combined writes and read logs,
// and other is discarded.
func (v *View) Merge(ctx context.Context, other *View) error {
	if v == other {
		return nil
	}
	if v.g != other.g || v.base != other.base || v.path.String() != other.path.String() {
		return errors.New("views have different origins")
	}

	first, second := v, other
	if second.id < first.id {
		first, second = second, first
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	if v.state != Open || other.state != Open {
		return ErrClosed
	}

	var (
		mine   = writeMap(v.writes)
		theirs = writeMap(other.writes)
		none   = map[string]writeVal{}
	)
	if _, err := merge.DefaultMap[string, writeVal]()(ctx, &none, mine, theirs); err != nil {
		if cs := merge.ConflictsOf(err); cs != nil {
			for _, c := range cs {
				c.Path = v.path.Append(node.ParsePath(strings.Join(c.Path, "/"))...)
			}
			return cs
		}
		return err
	}
	if cs := nestedConflicts(v.writes, other.writes); len(cs) > 0 {
		for _, c := range cs {
			c.Path = v.path.Append(c.Path...)
		}
		return cs
	}

	// Keep v's writes in order, then add other's new ones in their order.
	writes := make(map[string]*write)
	seq := 0
	for _, src := range []*View{v, other} {
		for _, w := range src.sortedWrites() {
			ps := w.path.String()
			if _, ok := writes[ps]; ok {
				continue
			}
			writes[ps] = &write{path: w.path, val: w.val, seq: seq}
			seq++
		}
	}
	v.writes = writes
	v.nextSeq = seq

	for k, b := range other.blobs {
		v.blobs[k] = b
	}
	for ps, k := range other.observed {
		if _, ok := v.observed[ps]; !ok {
			v.observed[ps] = k
		}
	}
	for _, a := range other.actions {
		v.actions = append(v.actions, a.clone())
	}
	other.state = Discarded
	return nil
}

// nestedConflicts finds paths that one set of writes makes a leaf
// and the other makes a subtree:
// a write at a path and a write strictly beneath it,
// at least one of them setting contents.
// Each conflict is reported once, at the shorter path.
func nestedConflicts(a, b map[string]*write) merge.Conflicts {
	var (
		result merge.Conflicts
		seen   = make(map[string]bool)
	)
	check := func(short, long *write) {
		if len(long.path) <= len(short.path) || !long.path.HasPrefix(short.path) {
			return
		}
		if short.val == nil && long.val == nil {
			return
		}
		ps := short.path.String()
		if seen[ps] {
			return
		}
		seen[ps] = true
		result = append(result, &merge.Conflict{
			Path:   short.path.Append(),
			Reason: fmt.Sprintf("%s here on one side, %s at %s on the other", describe(short.val), describe(long.val), long.path),
		})
	}
	for _, wa := range a {
		for _, wb := range b {
			check(wa, wb)
			check(wb, wa)
		}
	}
	result.Sort()
	return result
}

// writeVal is the comparable form of a write, for merging.
type writeVal struct {
	key     vs.Key
	removed bool
}

func writeMap(writes map[string]*write) map[string]writeVal {
	result := make(map[string]writeVal, len(writes))
	for ps, w := range writes {
		if w.val == nil {
			result[ps] = writeVal{removed: true}
		} else {
			result[ps] = writeVal{key: *w.val}
		}
	}
	return result
}
