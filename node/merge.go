package node

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/bobg/vs"
	"github.com/bobg/vs/merge"
)

// Merge three-way merges the trees rooted at a and b,
// whose common ancestor is the tree rooted at old
// (or nothing, if old is nil, in which case the empty node stands in for it).
//
// Each step in the union of the three nodes is merged separately.
// A step changed on only one side takes that side's entry.
// Leaves changed on both sides are merged with contents
// (which sees nil for an absent leaf);
// subtrees changed on both sides are merged recursively.
// If contents is nil,
// leaves merge only when both sides made the same change.
//
// A conflicting step does not stop the others from merging.
// The result is always the key of a stored node,
// holding every step that merged cleanly;
// if any step conflicted,
// the error is a merge.Conflicts listing the path of each one.
// Other errors mean the merge did not finish.
func (g *Graph) Merge(ctx context.Context, old *vs.Key, a, b vs.Key, contents merge.Func[*vs.Key]) (vs.Key, error) {
	if contents == nil {
		contents = merge.DefaultOptional[vs.Key]()
	}

	if a == b {
		return a, nil
	}
	if old != nil {
		if *old == a {
			return b, nil
		}
		if *old == b {
			return a, nil
		}
	}

	oldNode := new(Node)
	if old != nil {
		var err error
		oldNode, err = g.Get(ctx, *old)
		if err != nil {
			return vs.Zero, errors.Wrap(err, "getting ancestor")
		}
	}
	aNode, err := g.Get(ctx, a)
	if err != nil {
		return vs.Zero, err
	}
	bNode, err := g.Get(ctx, b)
	if err != nil {
		return vs.Zero, err
	}

	var (
		c      merge.Collector
		result = new(Node)
	)
	for _, step := range unionSteps(oldNode, aNode, bNode) {
		var (
			oe, oOK = oldNode.Lookup(step)
			ae, aOK = aNode.Lookup(step)
			be, bOK = bNode.Lookup(step)
		)

		switch {
		case sameEntry(ae, aOK, be, bOK):
			if aOK {
				result.add(ae)
			}
			continue

		case sameEntry(oe, oOK, ae, aOK):
			if bOK {
				result.add(be)
			}
			continue

		case sameEntry(oe, oOK, be, bOK):
			if aOK {
				result.add(ae)
			}
			continue
		}

		// Both sides changed step, differently.

		switch {
		case isLeafOrAbsent(ae, aOK) && isLeafOrAbsent(be, bOK):
			oc := contentsPtr(oe, oOK)
			k, err := contents(ctx, &oc, contentsPtr(ae, aOK), contentsPtr(be, bOK))
			if err != nil {
				if err = c.Add(step, err); err != nil {
					return vs.Zero, errors.Wrapf(err, "merging %s", step)
				}
				continue
			}
			if k != nil {
				result.add(Entry{Step: step, Kind: KindContents, Key: *k})
			}

		case aOK && bOK && ae.Kind == KindNode && be.Kind == KindNode:
			var oldChild *vs.Key
			if oOK && oe.Kind == KindNode {
				oldChild = &oe.Key
			}
			k, err := g.Merge(ctx, oldChild, ae.Key, be.Key, contents)
			if err != nil && !merge.IsConflict(err) {
				return vs.Zero, errors.Wrapf(err, "merging %s", step)
			}
			c.Add(step, err)
			result.add(Entry{Step: step, Kind: KindNode, Key: k})

		default:
			c.Add(step, merge.Conflictf("%s on one side, %s on the other", describe(ae, aOK), describe(be, bOK)))
		}
	}

	k, err := g.Put(ctx, result)
	if err != nil {
		return vs.Zero, err
	}
	return k, c.Err()
}

// Merger returns Merge as a merge.Func.
func (g *Graph) Merger(contents merge.Func[*vs.Key]) merge.Func[vs.Key] {
	return func(ctx context.Context, old *vs.Key, a, b vs.Key) (vs.Key, error) {
		return g.Merge(ctx, old, a, b, contents)
	}
}

func unionSteps(nodes ...*Node) []string {
	seen := make(map[string]struct{})
	for _, n := range nodes {
		for step := range n.Contents {
			seen[step] = struct{}{}
		}
		for step := range n.Children {
			seen[step] = struct{}{}
		}
	}
	result := make([]string, 0, len(seen))
	for step := range seen {
		result = append(result, step)
	}
	sort.Strings(result)
	return result
}

func sameEntry(a Entry, aOK bool, b Entry, bOK bool) bool {
	if !aOK || !bOK {
		return aOK == bOK
	}
	return a == b
}

func isLeafOrAbsent(e Entry, ok bool) bool {
	return !ok || e.Kind == KindContents
}

func contentsPtr(e Entry, ok bool) *vs.Key {
	if !ok || e.Kind != KindContents {
		return nil
	}
	k := e.Key
	return &k
}

func describe(e Entry, ok bool) string {
	switch {
	case !ok:
		return "removed"
	case e.Kind == KindNode:
		return "subtree"
	}
	return "contents"
}
