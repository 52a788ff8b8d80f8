// Package merge is a library of three-way merge functions.
//
// A three-way merge reconciles two values, a and b,
// that were derived independently from a common ancestor, old.
// The basic rule is the one version-control systems use for lines of text:
// if only one side changed, take that side;
// if both sides made the same change, take it;
// otherwise the merge conflicts.
//
// The combinators in this package lift that rule
// (or any other merge function)
// over optional values, pairs, maps, and values stored indirectly by key.
// A conflict is reported as an error of type *Conflict or Conflicts;
// any other error comes from I/O and means the merge did not finish.
package merge

import (
	"context"
	"fmt"
)

// Func is a three-way merge function.
// The old argument is the common ancestor of a and b,
// or nil if there is none.
type Func[T any] func(ctx context.Context, old *T, a, b T) (T, error)

// Default merges comparable values with the basic three-way rule:
// equal sides merge to themselves,
// and a side that did not change from old yields to the side that did.
// Anything else is a conflict.
func Default[T comparable]() Func[T] {
	return Equal(func(a, b T) bool { return a == b })
}

// Equal is Default for values compared with eq.
func Equal[T any](eq func(a, b T) bool) Func[T] {
	return func(_ context.Context, old *T, a, b T) (T, error) {
		if eq(a, b) {
			return a, nil
		}
		if old != nil {
			if eq(*old, a) {
				return b, nil
			}
			if eq(*old, b) {
				return a, nil
			}
		}
		var zero T
		return zero, Conflictf("both sides changed")
	}
}

// Optional lifts f to optional values, represented as pointers.
// A nil pointer is an absent value.
// When both sides are present,
// f merges them
// (with old's value as the ancestor, if it has one).
// When exactly one side is present,
// the basic three-way rule applies:
// an addition or removal on one side wins over no change on the other,
// and a removal on one side conflicts with a modification on the other.
func Optional[T any](f Func[T], eq func(a, b T) bool) Func[*T] {
	same := func(a, b *T) bool {
		if a == nil || b == nil {
			return a == nil && b == nil
		}
		return eq(*a, *b)
	}
	return func(ctx context.Context, old **T, a, b *T) (*T, error) {
		switch {
		case a == nil && b == nil:
			return nil, nil

		case a != nil && b != nil:
			if eq(*a, *b) {
				return a, nil
			}
			var inner *T
			if old != nil {
				inner = *old
			}
			v, err := f(ctx, inner, *a, *b)
			if err != nil {
				return nil, err
			}
			return &v, nil
		}

		if old == nil {
			return nil, Conflictf("present on one side only, with no common ancestor")
		}
		switch {
		case same(*old, a):
			return b, nil
		case same(*old, b):
			return a, nil
		}
		return nil, Conflictf("removed on one side and changed on the other")
	}
}

// DefaultOptional is Optional(Default()).
func DefaultOptional[T comparable]() Func[*T] {
	return Optional(Default[T](), func(a, b T) bool { return a == b })
}

// Pair is a two-element tuple.
type Pair[A, B any] struct {
	First  A
	Second B
}

// Pairwise merges pairs component by component.
// The merge conflicts if either component does.
func Pairwise[A, B any](fa Func[A], fb Func[B]) Func[Pair[A, B]] {
	return func(ctx context.Context, old *Pair[A, B], a, b Pair[A, B]) (Pair[A, B], error) {
		var (
			oldA *A
			oldB *B
		)
		if old != nil {
			oldA, oldB = &old.First, &old.Second
		}

		var (
			c      Collector
			result Pair[A, B]
			err    error
		)
		result.First, err = fa(ctx, oldA, a.First, b.First)
		if err = c.Add("first", err); err != nil {
			return result, err
		}
		result.Second, err = fb(ctx, oldB, a.Second, b.Second)
		if err = c.Add("second", err); err != nil {
			return result, err
		}
		return result, c.Err()
	}
}

// Map merges maps key by key.
// For each key in the union of old, a, and b,
// the merge function f(key) is applied to the optional values at that key
// (nil where the key is absent).
//
// Merging continues past conflicting keys.
// On conflict the result holds every key that merged cleanly,
// and the error lists the conflicting keys.
func Map[K comparable, V any](f func(K) Func[*V]) Func[map[K]V] {
	return func(ctx context.Context, old *map[K]V, a, b map[K]V) (map[K]V, error) {
		keys := make(map[K]struct{})
		for k := range a {
			keys[k] = struct{}{}
		}
		for k := range b {
			keys[k] = struct{}{}
		}
		if old != nil {
			for k := range *old {
				keys[k] = struct{}{}
			}
		}

		var (
			c      Collector
			result = make(map[K]V)
		)
		for k := range keys {
			var (
				av, bv = lookup(a, k), lookup(b, k)
				oldv   **V
			)
			if old != nil {
				ov := lookup(*old, k)
				oldv = &ov
			}
			v, err := f(k)(ctx, oldv, av, bv)
			if err = c.Add(fmt.Sprint(k), err); err != nil {
				return nil, err
			}
			if v != nil {
				result[k] = *v
			}
		}
		return result, c.Err()
	}
}

func lookup[K comparable, V any](m map[K]V, k K) *V {
	if v, ok := m[k]; ok {
		return &v
	}
	return nil
}

// DefaultMap is Map with DefaultOptional for every key.
func DefaultMap[K, V comparable]() Func[map[K]V] {
	return Map(func(K) Func[*V] { return DefaultOptional[V]() })
}

// First tries each merge function in turn,
// returning the result of the first one that does not conflict.
// An error other than a conflict stops the sequence.
func First[T any](fs ...Func[T]) Func[T] {
	return func(ctx context.Context, old *T, a, b T) (T, error) {
		var last error = Conflictf("no merge functions")
		for _, f := range fs {
			v, err := f(ctx, old, a, b)
			if err == nil {
				return v, nil
			}
			if !IsConflict(err) {
				return v, err
			}
			last = err
		}
		var zero T
		return zero, last
	}
}

// Biject merges values of type A by converting them with `to`
// to type B,
// merging there with f,
// and converting the result back with `from`.
// A failed conversion in either direction is a conflict.
func Biject[A, B any](f Func[B], to func(A) (B, error), from func(B) (A, error)) Func[A] {
	return func(ctx context.Context, old *A, a, b A) (A, error) {
		var zero A

		var oldB *B
		if old != nil {
			ob, err := to(*old)
			if err != nil {
				return zero, Conflictf("converting ancestor: %s", err)
			}
			oldB = &ob
		}
		ab, err := to(a)
		if err != nil {
			return zero, Conflictf("converting first value: %s", err)
		}
		bb, err := to(b)
		if err != nil {
			return zero, Conflictf("converting second value: %s", err)
		}

		merged, err := f(ctx, oldB, ab, bb)
		if err != nil {
			return zero, err
		}
		result, err := from(merged)
		if err != nil {
			return zero, Conflictf("converting merged value: %s", err)
		}
		return result, nil
	}
}

// Counter merges integers as counters,
// adding both sides' changes to the ancestor.
// With no ancestor the changes are taken relative to zero.
func Counter() Func[int64] {
	return func(_ context.Context, old *int64, a, b int64) (int64, error) {
		var o int64
		if old != nil {
			o = *old
		}
		return o + (a - o) + (b - o), nil
	}
}
