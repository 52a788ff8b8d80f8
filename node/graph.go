package node

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/bobg/vs"
)

// Graph reads and writes trees of nodes in a blob store.
// It is safe for concurrent use.
type Graph struct {
	s vs.Store

	mu         sync.Mutex
	emptyKey   vs.Key
	emptySaved bool
}

// New produces a Graph storing its nodes in s.
func New(s vs.Store) *Graph {
	return &Graph{s: s}
}

// Store returns the store that g uses.
func (g *Graph) Store() vs.Store {
	return g.s
}

// Empty returns the key of the empty node,
// storing it first if this Graph has not yet done so.
func (g *Graph) Empty(ctx context.Context) (vs.Key, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.emptySaved {
		return g.emptyKey, nil
	}
	k, _, err := g.s.Put(ctx, new(Node).Encode())
	if err != nil {
		return vs.Zero, errors.Wrap(err, "storing empty node")
	}
	g.emptyKey, g.emptySaved = k, true
	return k, nil
}

// Get loads the node with key k.
// The error wraps vs.ErrNotFound if there is no such node.
func (g *Graph) Get(ctx context.Context, k vs.Key) (*Node, error) {
	b, err := g.s.Get(ctx, k)
	if err != nil {
		return nil, errors.Wrapf(err, "getting node %s", k)
	}
	n, err := Decode(b)
	return n, errors.Wrapf(err, "decoding node %s", k)
}

// Put stores n and returns its key.
func (g *Graph) Put(ctx context.Context, n *Node) (vs.Key, error) {
	k, _, err := g.s.Put(ctx, n.Encode())
	return k, errors.Wrap(err, "storing node")
}

// List returns the entries of the node with key k, sorted by step.
func (g *Graph) List(ctx context.Context, k vs.Key) ([]Entry, error) {
	n, err := g.Get(ctx, k)
	if err != nil {
		return nil, err
	}
	return n.Entries(), nil
}

// ReadNode finds the node at path beneath root.
// The boolean result is false if some step of the path is missing
// or is a leaf rather than a subtree.
func (g *Graph) ReadNode(ctx context.Context, root vs.Key, path Path) (vs.Key, bool, error) {
	cur := root
	for i, step := range path {
		n, err := g.Get(ctx, cur)
		if err != nil {
			return vs.Zero, false, errors.Wrapf(err, "reading %s", path[:i])
		}
		child, ok := n.Children[step]
		if !ok {
			return vs.Zero, false, nil
		}
		cur = child
	}
	return cur, true, nil
}

// ReadContents finds the content key at path beneath root.
// The boolean result is false if there is none.
func (g *Graph) ReadContents(ctx context.Context, root vs.Key, path Path) (vs.Key, bool, error) {
	if len(path) == 0 {
		return vs.Zero, false, nil
	}
	parent, ok, err := g.ReadNode(ctx, root, path[:len(path)-1])
	if err != nil || !ok {
		return vs.Zero, false, err
	}
	n, err := g.Get(ctx, parent)
	if err != nil {
		return vs.Zero, false, err
	}
	k, ok := n.Contents[path[len(path)-1]]
	return k, ok, nil
}

// Walk calls f for each entry in the tree beneath root,
// depth first, in step order.
// The path passed to f includes the entry's own step.
// If f returns an error, Walk exits with that error.
func (g *Graph) Walk(ctx context.Context, root vs.Key, f func(Path, Entry) error) error {
	return g.walk(ctx, root, nil, f)
}

func (g *Graph) walk(ctx context.Context, k vs.Key, prefix Path, f func(Path, Entry) error) error {
	entries, err := g.List(ctx, k)
	if err != nil {
		return err
	}
	for _, e := range entries {
		p := prefix.Append(e.Step)
		if err := f(p, e); err != nil {
			return err
		}
		if e.Kind == KindNode {
			if err := g.walk(ctx, e.Key, p, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// AddContents sets the content key at path beneath root
// and returns the key of the new root.
// Missing intermediate nodes are created,
// and a leaf found where an intermediate node is needed is replaced by one.
// Whatever was at path itself
// (a leaf or a whole subtree)
// is replaced.
func (g *Graph) AddContents(ctx context.Context, root vs.Key, path Path, content vs.Key) (vs.Key, error) {
	if len(path) == 0 {
		return vs.Zero, errors.New("cannot set contents at the root")
	}
	e := Entry{Step: path[len(path)-1], Kind: KindContents, Key: content}
	return g.setEntry(ctx, root, path[:len(path)-1], e)
}

// AddNode grafts the tree with key child at path beneath root
// and returns the key of the new root.
// An empty path yields child itself.
func (g *Graph) AddNode(ctx context.Context, root vs.Key, path Path, child vs.Key) (vs.Key, error) {
	if len(path) == 0 {
		return child, nil
	}
	e := Entry{Step: path[len(path)-1], Kind: KindNode, Key: child}
	return g.setEntry(ctx, root, path[:len(path)-1], e)
}

func (g *Graph) setEntry(ctx context.Context, root vs.Key, parent Path, e Entry) (vs.Key, error) {
	return g.rewrite(ctx, root, parent, true, func(n *Node) (*Node, bool) {
		if cur, ok := n.Lookup(e.Step); ok && cur == e {
			return n, false
		}
		return n.set(e), true
	})
}

// RemoveContents removes the leaf at path beneath root
// and returns the key of the new root.
// If there is no leaf at path, root is returned unchanged.
func (g *Graph) RemoveContents(ctx context.Context, root vs.Key, path Path) (vs.Key, error) {
	return g.removeEntry(ctx, root, path, KindContents)
}

// RemoveNode removes the subtree at path beneath root
// and returns the key of the new root.
// If there is no subtree at path, root is returned unchanged.
// Removing the root itself yields the empty node.
func (g *Graph) RemoveNode(ctx context.Context, root vs.Key, path Path) (vs.Key, error) {
	if len(path) == 0 {
		return g.Empty(ctx)
	}
	return g.removeEntry(ctx, root, path, KindNode)
}

func (g *Graph) removeEntry(ctx context.Context, root vs.Key, path Path, kind Kind) (vs.Key, error) {
	if len(path) == 0 {
		return root, nil
	}
	step := path[len(path)-1]
	return g.rewrite(ctx, root, path[:len(path)-1], false, func(n *Node) (*Node, bool) {
		if cur, ok := n.Lookup(step); !ok || cur.Kind != kind {
			return n, false
		}
		return n.without(step), true
	})
}

// rewrite applies f to the node at path beneath root
// and rebuilds each ancestor bottom-up with the new child key,
// storing every rebuilt node.
// If f reports no change,
// or (when create is false) the path does not exist,
// root is returned unchanged.
func (g *Graph) rewrite(ctx context.Context, root vs.Key, path Path, create bool, f func(*Node) (*Node, bool)) (vs.Key, error) {
	n, err := g.Get(ctx, root)
	if err != nil {
		return vs.Zero, err
	}

	if len(path) == 0 {
		updated, changed := f(n)
		if !changed {
			return root, nil
		}
		return g.Put(ctx, updated)
	}

	step := path[0]
	child, ok := n.Children[step]
	if !ok {
		if !create {
			return root, nil
		}
		child, err = g.Empty(ctx)
		if err != nil {
			return vs.Zero, err
		}
	}

	newChild, err := g.rewrite(ctx, child, path[1:], create, f)
	if err != nil {
		return vs.Zero, errors.Wrapf(err, "updating %s", step)
	}
	if ok && newChild == child {
		return root, nil
	}
	return g.Put(ctx, n.set(Entry{Step: step, Kind: KindNode, Key: newChild}))
}
