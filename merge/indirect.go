package merge

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bobg/vs"
)

// Indirect lifts f to values that live in a content-addressable store
// and are referred to by key.
// The three values are read with get
// (a missing object is a conflict),
// merged with f,
// and the result is written back with put to obtain its key.
//
// When the keys alone decide the outcome
// (equal sides, or one side equal to old)
// nothing is read.
func Indirect[T any](
	get func(context.Context, vs.Key) (T, error),
	put func(context.Context, T) (vs.Key, error),
	f Func[T],
) Func[vs.Key] {
	read := func(ctx context.Context, k vs.Key) (T, error) {
		v, err := get(ctx, k)
		if errors.Is(err, vs.ErrNotFound) {
			return v, Conflictf("missing object %s", k)
		}
		return v, errors.Wrapf(err, "reading %s", k)
	}

	return func(ctx context.Context, old *vs.Key, a, b vs.Key) (vs.Key, error) {
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

		var oldv *T
		if old != nil {
			v, err := read(ctx, *old)
			if err != nil {
				return vs.Zero, err
			}
			oldv = &v
		}
		av, err := read(ctx, a)
		if err != nil {
			return vs.Zero, err
		}
		bv, err := read(ctx, b)
		if err != nil {
			return vs.Zero, err
		}

		merged, err := f(ctx, oldv, av, bv)
		if err != nil {
			return vs.Zero, err
		}
		k, err := put(ctx, merged)
		return k, errors.Wrap(err, "storing merged value")
	}
}

// Blobs is Indirect for raw blobs in s.
func Blobs(s vs.Store, f Func[vs.Blob]) Func[vs.Key] {
	return Indirect(
		s.Get,
		func(ctx context.Context, b vs.Blob) (vs.Key, error) {
			k, _, err := s.Put(ctx, b)
			return k, err
		},
		f,
	)
}
