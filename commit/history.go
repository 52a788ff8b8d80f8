package commit

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/vs"
	"github.com/bobg/vs/merge"
	"github.com/bobg/vs/node"
)

// History reads and writes commits
// in the store of a node.Graph.
type History struct {
	g *node.Graph
}

// New produces a History whose commits refer to trees in g
// and are stored alongside them.
func New(g *node.Graph) *History {
	return &History{g: g}
}

// Graph returns the node graph of h.
func (h *History) Graph() *node.Graph {
	return h.g
}

// Commit stores a new commit and returns its key.
// Every parent must already be stored;
// the error wraps vs.ErrNotFound if one is not.
func (h *History) Commit(ctx context.Context, info Info, root *vs.Key, parents []vs.Key) (vs.Key, error) {
	s := h.g.Store()
	for _, p := range parents {
		ok, err := vs.Exists(ctx, s, p)
		if err != nil {
			return vs.Zero, errors.Wrapf(err, "checking parent %s", p)
		}
		if !ok {
			return vs.Zero, errors.Wrapf(vs.ErrNotFound, "parent %s", p)
		}
	}
	c := &Commit{
		Node:    root,
		Parents: append([]vs.Key(nil), parents...),
		Info:    info,
	}
	k, _, err := s.Put(ctx, c.Encode())
	return k, errors.Wrap(err, "storing commit")
}

// Get loads the commit with key k.
func (h *History) Get(ctx context.Context, k vs.Key) (*Commit, error) {
	b, err := h.g.Store().Get(ctx, k)
	if err != nil {
		return nil, errors.Wrapf(err, "getting commit %s", k)
	}
	c, err := Decode(b)
	return c, errors.Wrapf(err, "decoding commit %s", k)
}

// Node returns the tree root of commit k, which may be nil.
func (h *History) Node(ctx context.Context, k vs.Key) (*vs.Key, error) {
	c, err := h.Get(ctx, k)
	if err != nil {
		return nil, err
	}
	return c.Node, nil
}

// Parents returns the parents of commit k.
func (h *History) Parents(ctx context.Context, k vs.Key) ([]vs.Key, error) {
	c, err := h.Get(ctx, k)
	if err != nil {
		return nil, err
	}
	return c.Parents, nil
}

// Merge merges commits c1 and c2,
// whose common ancestor is old
// (nil if they have none),
// and stores a merge commit with parents c1 and c2.
// The trees are merged with node.Graph.Merge,
// using contents for leaves changed on both sides.
//
// Any conflict fails the whole merge:
// no commit is stored,
// and the error is the merge.Conflicts from the tree merge.
func (h *History) Merge(ctx context.Context, info Info, old *vs.Key, c1, c2 vs.Key, contents merge.Func[*vs.Key]) (vs.Key, error) {
	var oldNode **vs.Key
	if old != nil {
		n, err := h.Node(ctx, *old)
		if err != nil {
			return vs.Zero, errors.Wrap(err, "getting ancestor")
		}
		oldNode = &n
	}
	n1, err := h.Node(ctx, c1)
	if err != nil {
		return vs.Zero, err
	}
	n2, err := h.Node(ctx, c2)
	if err != nil {
		return vs.Zero, err
	}

	f := merge.Optional(h.g.Merger(contents), func(a, b vs.Key) bool { return a == b })
	root, err := f(ctx, oldNode, n1, n2)
	if err != nil {
		return vs.Zero, errors.Wrap(err, "merging trees")
	}
	return h.Commit(ctx, info, root, []vs.Key{c1, c2})
}

// Merger returns Merge as a merge.Func,
// with every merge commit getting the given info.
func (h *History) Merger(info Info, contents merge.Func[*vs.Key]) merge.Func[vs.Key] {
	return func(ctx context.Context, old *vs.Key, a, b vs.Key) (vs.Key, error) {
		return h.Merge(ctx, info, old, a, b, contents)
	}
}

// ThreeWay finds the common ancestor of c1 and c2 and merges them.
// If they have no common ancestor they are merged with no base.
// An ambiguous ancestor is an error (see FindCommonAncestor).
func (h *History) ThreeWay(ctx context.Context, info Info, c1, c2 vs.Key, contents merge.Func[*vs.Key]) (vs.Key, error) {
	var old *vs.Key
	anc, err := h.FindCommonAncestor(ctx, c1, c2)
	switch {
	case errors.Is(err, ErrNoCommonAncestor):
	case err != nil:
		return vs.Zero, err
	default:
		old = &anc
	}
	return h.Merge(ctx, info, old, c1, c2, contents)
}

// parents fetches the parents of each commit in keys concurrently.
func (h *History) parents(ctx context.Context, keys []vs.Key) (map[vs.Key][]vs.Key, error) {
	var (
		mu     sync.Mutex
		result = make(map[vs.Key][]vs.Key, len(keys))
	)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(vs.MaxConcurrency)
	for _, k := range keys {
		k := k
		eg.Go(func() error {
			ps, err := h.Parents(ctx, k)
			if err != nil {
				return err
			}
			mu.Lock()
			result[k] = ps
			mu.Unlock()
			return nil
		})
	}
	err := eg.Wait()
	return result, err
}
