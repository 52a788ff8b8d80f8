package store

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/vs"
)

// Sync synchronizes the blobs of two or more stores.
// It runs ListKeys on all input stores.
// When a key is found to be in some but not all stores,
// its blob is added to the stores where it's missing.
// Tags are not synchronized.
func Sync(ctx context.Context, stores []vs.Store) error {
	if len(stores) < 2 {
		return nil
	}

	type tuple struct {
		s   vs.Store
		ch  <-chan vs.Key
		key *vs.Key
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, ctx2 := errgroup.WithContext(ctx)

	tuples := make([]*tuple, 0, len(stores))
	for _, s := range stores {
		s := s
		ch := make(chan vs.Key)
		eg.Go(func() error {
			defer close(ch)
			return s.ListKeys(ctx2, vs.Zero, func(k vs.Key) error {
				select {
				case <-ctx2.Done():
					return ctx2.Err()
				case ch <- k:
				}
				return nil
			})
		})
		tuples = append(tuples, &tuple{s: s, ch: ch})
	}

	havers := tuples
	for {
		for _, tup := range havers {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case k, ok := <-tup.ch:
				if ok {
					tup.key = &k
				} else {
					tup.key = nil
				}
			}
		}

		sort.Slice(tuples, func(i, j int) bool {
			ki := tuples[i].key
			kj := tuples[j].key
			if ki != nil {
				if kj != nil {
					return ki.Less(*kj)
				}
				return true
			}
			return false
		})

		if tuples[0].key == nil {
			// End of input on all channels.
			return eg.Wait()
		}

		k := *(tuples[0].key)

		havers = []*tuple{tuples[0]}
		i := 1
		for i < len(tuples) && tuples[i].key != nil && *(tuples[i].key) == k {
			havers = append(havers, tuples[i])
			i++
		}

		if i == len(tuples) {
			continue
		}

		b, err := havers[0].s.Get(ctx, k)
		if err != nil {
			return errors.Wrapf(err, "getting blob for %s", k)
		}

		for _, tup := range tuples[i:] {
			if _, err = vs.PutAt(ctx, tup.s, k, b); err != nil {
				return errors.Wrapf(err, "storing blob for %s", k)
			}
		}
	}
}
