package commit

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/bobg/vs"
)

// ErrNoCommonAncestor means two commits share no history.
var ErrNoCommonAncestor = errors.New("no common ancestor")

// AmbiguousAncestorError means two commits have more than one
// common ancestor, none of which descends from another.
// There is no canonical choice among them.
type AmbiguousAncestorError struct {
	Candidates []vs.Key
}

func (e *AmbiguousAncestorError) Error() string {
	strs := make([]string, 0, len(e.Candidates))
	for _, k := range e.Candidates {
		strs = append(strs, k.String())
	}
	return fmt.Sprintf("ambiguous common ancestor: %s", strings.Join(strs, ", "))
}

// FindCommonAncestor finds the nearest commit that c1 and c2 both descend from.
// (Either may be the other's ancestor, or each other's.)
//
// The search expands from both commits one generation at a time.
// If in some generation more than one shared commit is found,
// those that are ancestors of others are discarded;
// if more than one still remains,
// the result is an *AmbiguousAncestorError.
// If the histories are exhausted without meeting,
// the result is ErrNoCommonAncestor.
func (h *History) FindCommonAncestor(ctx context.Context, c1, c2 vs.Key) (vs.Key, error) {
	var (
		seen1     = map[vs.Key]bool{c1: true}
		seen2     = map[vs.Key]bool{c2: true}
		frontier1 = []vs.Key{c1}
		frontier2 = []vs.Key{c2}
	)

	for {
		var candidates []vs.Key
		for k := range seen1 {
			if seen2[k] {
				candidates = append(candidates, k)
			}
		}

		switch len(candidates) {
		case 0:
		case 1:
			return candidates[0], nil
		default:
			return h.chooseAncestor(ctx, candidates)
		}

		if len(frontier1) == 0 && len(frontier2) == 0 {
			return vs.Zero, ErrNoCommonAncestor
		}

		var err error
		frontier1, err = h.expand(ctx, frontier1, seen1)
		if err != nil {
			return vs.Zero, err
		}
		frontier2, err = h.expand(ctx, frontier2, seen2)
		if err != nil {
			return vs.Zero, err
		}
	}
}

// expand returns the parents of frontier not already in seen,
// adding them to seen.
func (h *History) expand(ctx context.Context, frontier []vs.Key, seen map[vs.Key]bool) ([]vs.Key, error) {
	if len(frontier) == 0 {
		return nil, nil
	}
	parents, err := h.parents(ctx, frontier)
	if err != nil {
		return nil, errors.Wrap(err, "getting parents")
	}
	var next []vs.Key
	for _, k := range frontier {
		for _, p := range parents[k] {
			if seen[p] {
				continue
			}
			seen[p] = true
			next = append(next, p)
		}
	}
	return next, nil
}

func (h *History) chooseAncestor(ctx context.Context, candidates []vs.Key) (vs.Key, error) {
	var remaining []vs.Key
	for _, c := range candidates {
		dominated := false
		for _, other := range candidates {
			if other == c {
				continue
			}
			isAnc, err := h.IsAncestor(ctx, c, other)
			if err != nil {
				return vs.Zero, err
			}
			if isAnc {
				dominated = true
				break
			}
		}
		if !dominated {
			remaining = append(remaining, c)
		}
	}
	if len(remaining) == 1 {
		return remaining[0], nil
	}
	sortKeys(remaining)
	return vs.Zero, &AmbiguousAncestorError{Candidates: remaining}
}

// IsAncestor tells whether a is b or one of b's ancestors.
func (h *History) IsAncestor(ctx context.Context, a, b vs.Key) (bool, error) {
	if a == b {
		return true, nil
	}
	var (
		seen     = map[vs.Key]bool{b: true}
		frontier = []vs.Key{b}
	)
	for len(frontier) > 0 {
		var err error
		frontier, err = h.expand(ctx, frontier, seen)
		if err != nil {
			return false, err
		}
		if seen[a] {
			return true, nil
		}
	}
	return false, nil
}

// Ancestors lists head and the commits it descends from,
// nearest first,
// going back at most depth generations
// (all the way, if depth is negative).
// Each commit appears once,
// in the generation where it is first reached.
func (h *History) Ancestors(ctx context.Context, head vs.Key, depth int) ([]vs.Key, error) {
	var (
		seen     = map[vs.Key]bool{head: true}
		frontier = []vs.Key{head}
		result   = []vs.Key{head}
	)
	for gen := 0; len(frontier) > 0 && (depth < 0 || gen < depth); gen++ {
		var err error
		frontier, err = h.expand(ctx, frontier, seen)
		if err != nil {
			return nil, err
		}
		result = append(result, frontier...)
	}
	return result, nil
}

// Closure computes the set of commits reachable from those in max
// by following parent links,
// without passing through any commit in min.
// Commits in min are excluded.
// The result is sorted.
func (h *History) Closure(ctx context.Context, min, max []vs.Key) ([]vs.Key, error) {
	var (
		seen     = make(map[vs.Key]bool)
		frontier []vs.Key
	)
	for _, k := range min {
		seen[k] = true
	}
	for _, k := range max {
		if !seen[k] {
			seen[k] = true
			frontier = append(frontier, k)
		}
	}

	var result []vs.Key
	for len(frontier) > 0 {
		result = append(result, frontier...)
		var err error
		frontier, err = h.expand(ctx, frontier, seen)
		if err != nil {
			return nil, err
		}
	}
	sortKeys(result)
	return result, nil
}

func sortKeys(keys []vs.Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
}
