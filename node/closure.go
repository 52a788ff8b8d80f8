package node

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/bobg/vs"
)

// Closure computes the set of objects reachable from the nodes in max
// without passing through any node in min:
// the nodes themselves and the content keys of their leaves.
// Nodes in min, and everything reachable only through them, are excluded.
// This is the set of objects to export
// to a peer that already has everything beneath min.
//
// The nodes at each depth are fetched concurrently.
// The result is sorted.
func (g *Graph) Closure(ctx context.Context, min, max []vs.Key) ([]vs.Key, error) {
	var (
		stop     = make(map[vs.Key]bool)
		seen     = make(map[vs.Key]bool)
		frontier []vs.Key
	)
	for _, k := range min {
		stop[k] = true
	}
	for _, k := range max {
		if !stop[k] && !seen[k] {
			seen[k] = true
			frontier = append(frontier, k)
		}
	}

	for len(frontier) > 0 {
		blobs, err := vs.GetMulti(ctx, g.s, frontier)
		if err != nil {
			return nil, errors.Wrap(err, "getting nodes")
		}

		var next []vs.Key
		for _, k := range frontier {
			n, err := Decode(blobs[k])
			if err != nil {
				return nil, errors.Wrapf(err, "decoding node %s", k)
			}
			for _, ck := range n.Contents {
				seen[ck] = true
			}
			for _, ck := range n.Children {
				if stop[ck] || seen[ck] {
					continue
				}
				seen[ck] = true
				next = append(next, ck)
			}
		}
		frontier = next
	}

	result := make([]vs.Key, 0, len(seen))
	for k := range seen {
		result = append(result, k)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Less(result[j]) })
	return result, nil
}
