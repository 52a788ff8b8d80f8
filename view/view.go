// Package view implements optimistic staging views over a subtree of a node.Graph.
//
// A View records everything it reads from its subtree
// and buffers everything written to it.
// Later its writes can be put back in one of two ways:
// Apply replaces the subtree with the view's version of it
// (last writer wins),
// while Rebase first checks that everything the view read
// is still the same in the current tree,
// and fails with a merge conflict if not.
//
// A view can be applied or rebased once.
// After that,
// or after a conflict or a call to Discard,
// it is closed and any further use gets ErrClosed.
package view

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/bobg/vs"
	"github.com/bobg/vs/node"
)

// ErrClosed is the error for using a view that is no longer open.
var ErrClosed = errors.New("view closed")

// State is the lifecycle state of a View.
type State int

const (
	Open State = iota
	Applied
	Conflicted
	Discarded
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Applied:
		return "applied"
	case Conflicted:
		return "conflicted"
	case Discarded:
		return "discarded"
	}
	return "unknown"
}

// View is a staging area over the subtree at one path of one tree.
// It is safe for concurrent use.
type View struct {
	g    *node.Graph
	base vs.Key
	path node.Path
	id   uint64 // lock order when two views are locked together

	mu       sync.Mutex
	state    State
	writes   map[string]*write
	nextSeq  int
	blobs    map[vs.Key]vs.Blob
	observed map[string]*vs.Key // contents read from base, by path
	actions  []Action
}

var nextID uint64

type write struct {
	path node.Path
	val  *vs.Key // nil for a removal
	seq  int
}

// New produces a View of the subtree at path in the tree rooted at root.
// Nothing is read until the view is used.
func New(g *node.Graph, root vs.Key, path node.Path) *View {
	return &View{
		g:      g,
		base:   root,
		path:     append(node.Path(nil), path...),
		id:       atomic.AddUint64(&nextID, 1),
		writes:   make(map[string]*write),
		blobs:    make(map[vs.Key]vs.Blob),
		observed: make(map[string]*vs.Key),
	}
}

// Base returns the root of the tree the view was created from.
func (v *View) Base() vs.Key { return v.base }

// Path returns the path of the view's subtree.
func (v *View) Path() node.Path { return v.path }

// State returns the view's lifecycle state.
func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Actions returns a copy of the view's action log.
func (v *View) Actions() []Action {
	v.mu.Lock()
	defer v.mu.Unlock()
	result := make([]Action, len(v.actions))
	for i, a := range v.actions {
		result[i] = a.clone()
	}
	return result
}

// Discard closes the view without applying it.
func (v *View) Discard() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state == Open {
		v.state = Discarded
	}
}

// Read returns the contents at path p, relative to the view's path.
// The boolean result is false if there are none.
// A value written to the view is returned without consulting the tree;
// otherwise the value is read from the tree
// and the observation is logged.
// Later reads of the same path reuse that observation.
func (v *View) Read(ctx context.Context, p node.Path) (vs.Blob, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != Open {
		return nil, false, ErrClosed
	}

	if k, ok := v.overridden(p); ok {
		if k == nil {
			return nil, false, nil
		}
		return v.blobs[*k], true, nil
	}

	k, ok := v.observed[p.String()]
	if !ok {
		var err error
		k, err = v.readContents(ctx, v.base, p)
		if err != nil {
			return nil, false, err
		}
		v.observed[p.String()] = k
		v.actions = append(v.actions, Action{Kind: ActionRead, Path: p.Append(), Key: k})
	}
	if k == nil {
		return nil, false, nil
	}

	b, err := v.g.Store().Get(ctx, *k)
	if err != nil {
		return nil, false, errors.Wrapf(err, "getting contents of %s", p)
	}
	return b, true, nil
}

// Update sets the contents at path p, relative to the view's path.
// Nothing is written to the store until the view is applied.
func (v *View) Update(ctx context.Context, p node.Path, b vs.Blob) error {
	if len(p) == 0 {
		return errors.New("cannot set contents at the view root")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != Open {
		return ErrClosed
	}

	k := b.Key()
	v.blobs[k] = append(vs.Blob(nil), b...)

	// A value at p replaces anything beneath it.
	for ps, w := range v.writes {
		if len(w.path) > len(p) && w.path.HasPrefix(p) {
			delete(v.writes, ps)
		}
	}
	v.record(p, &k)
	return nil
}

// Remove removes the contents at path p, relative to the view's path.
func (v *View) Remove(ctx context.Context, p node.Path) error {
	if len(p) == 0 {
		return errors.New("cannot remove the view root")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != Open {
		return ErrClosed
	}
	v.record(p, nil)
	return nil
}

func (v *View) record(p node.Path, k *vs.Key) {
	p = p.Append()
	v.writes[p.String()] = &write{path: p, val: k, seq: v.nextSeq}
	v.nextSeq++
	v.actions = append(v.actions, Action{Kind: ActionWrite, Path: p, Key: k})
}

// overridden tells whether the view's own writes determine the contents at p,
// and if so what they are (nil for none).
func (v *View) overridden(p node.Path) (*vs.Key, bool) {
	var (
		result *vs.Key
		known  bool
	)
	for _, w := range v.sortedWrites() {
		switch {
		case len(w.path) == len(p) && w.path.HasPrefix(p):
			result, known = w.val, true

		case w.val == nil:

		case w.path.HasPrefix(p), p.HasPrefix(w.path):
			// Contents beneath p make p a subtree;
			// contents above p leave nothing beneath them.
			result, known = nil, true
		}
	}
	return result, known
}

// List returns the steps beneath path p, relative to the view's path,
// sorted.
// The result combines the tree with the view's own writes;
// the logged observation is what the tree held.
func (v *View) List(ctx context.Context, p node.Path) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != Open {
		return nil, ErrClosed
	}

	entries, err := v.listEntries(ctx, v.base, p)
	if err != nil {
		return nil, err
	}
	kinds := make(map[string]node.Kind, len(entries))
	for _, e := range entries {
		kinds[e.Step] = e.Kind
	}
	v.actions = append(v.actions, Action{Kind: ActionList, Path: p.Append(), Steps: steps(entries)})

	for _, w := range v.sortedWrites() {
		switch {
		case len(w.path) <= len(p):
			if w.val != nil && p.HasPrefix(w.path) {
				// p is now contents, or beneath contents.
				kinds = make(map[string]node.Kind)
			}

		case !w.path.HasPrefix(p):

		case len(w.path) == len(p)+1:
			step := w.path[len(p)]
			if w.val != nil {
				kinds[step] = node.KindContents
			} else if kind, ok := kinds[step]; ok && kind == node.KindContents {
				delete(kinds, step)
			}

		case w.val != nil:
			kinds[w.path[len(p)]] = node.KindNode
		}
	}

	result := make([]string, 0, len(kinds))
	for step := range kinds {
		result = append(result, step)
	}
	sort.Strings(result)
	return result, nil
}

func (v *View) sortedWrites() []*write {
	result := make([]*write, 0, len(v.writes))
	for _, w := range v.writes {
		result = append(result, w)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].seq < result[j].seq })
	return result
}

func (v *View) readContents(ctx context.Context, root vs.Key, p node.Path) (*vs.Key, error) {
	k, ok, err := v.g.ReadContents(ctx, root, v.path.Append(p...))
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", p)
	}
	if !ok {
		return nil, nil
	}
	return &k, nil
}

func (v *View) listEntries(ctx context.Context, root vs.Key, p node.Path) ([]node.Entry, error) {
	k, ok, err := v.g.ReadNode(ctx, root, v.path.Append(p...))
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", p)
	}
	if !ok {
		return nil, nil
	}
	entries, err := v.g.List(ctx, k)
	return entries, errors.Wrapf(err, "listing %s", p)
}

func steps(entries []node.Entry) []string {
	result := make([]string, 0, len(entries))
	for _, e := range entries {
		result = append(result, e.Step)
	}
	return result
}
