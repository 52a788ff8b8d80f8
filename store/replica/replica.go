// Package replica implements a blob store that writes to several nested stores
// and reads from whichever answers first.
package replica

import (
	"context"
	"reflect"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/vs"
	"github.com/bobg/vs/store"
)

var (
	_ vs.Store    = (*Store)(nil)
	_ vs.TagStore = (*Store)(nil)
)

// Store is a blob store that delegates reads and writes to two sets of nested stores.
// One set is synchronous:
// writes to all of these must succeed before a call to Put returns,
// and an error from any will cause Put to fail.
// The other set is asynchronous:
// a call to Put queues writes on these stores but does not wait for them to finish.
// However, if any asynchronous write encounters an error,
// the whole Store is put into an error state and further operations will fail.
//
// Tags live only in the first synchronous store.
type Store struct {
	store.NestedTags

	sync   []vs.Store
	async  []asyncChans
	cancel context.CancelFunc

	mu  sync.Mutex // protects err
	err error      // the error from an async goroutine, if any
}

type asyncChans struct {
	blobs chan<- keyedBlob
	errs  <-chan error
}

type keyedBlob struct {
	k vs.Key
	b vs.Blob
}

// New produces a new Store.
// The set of synchronous stores must be non-empty.
// The set of asynchronous stores may be empty.
// If there are any asynchronous stores,
// goroutines are launched for them,
// and canceling the given context object causes those to exit,
// placing the Store in an error state.
//
// Normally, writes to asynchronous stores do not block calls to Put,
// but the queue for each nested store has a fixed length given by n,
// which must be 1 or greater.
// If any async store falls too far behind,
// Put will block until all requests can be queued.
func New(ctx context.Context, sync []vs.Store, async []vs.Store, n int) (*Store, error) {
	if len(sync) == 0 {
		return nil, errors.New("no synchronous stores")
	}
	if n < 1 {
		n = 1
	}

	result := &Store{NestedTags: store.NestedTags{S: sync[0]}, sync: sync}

	if len(async) > 0 {
		ctx, result.cancel = context.WithCancel(ctx)

		selectCases := make([]reflect.SelectCase, 1+len(async))

		for i, a := range async {
			var (
				blobs = make(chan keyedBlob, n)
				errs  = make(chan error, 1)
			)

			result.async = append(result.async, asyncChans{blobs: blobs, errs: errs})

			selectCases[i].Dir = reflect.SelectRecv
			selectCases[i].Chan = reflect.ValueOf(errs)

			go runAsync(ctx, a, blobs, errs)
		}

		selectCases[len(async)].Dir = reflect.SelectRecv
		selectCases[len(async)].Chan = reflect.ValueOf(ctx.Done())

		go func() {
			chosen, errval, ok := reflect.Select(selectCases)
			result.cancel()
			result.mu.Lock()
			defer result.mu.Unlock()
			if ok {
				result.err = errval.Interface().(error)
			} else if chosen == len(async) {
				result.err = ctx.Err()
			}
		}()
	}

	return result, nil
}

// Runs as a goroutine until ctx is canceled or an error occurs (which it writes to errs).
func runAsync(ctx context.Context, s vs.Store, blobs <-chan keyedBlob, errs chan<- error) {
	defer close(errs)

	for {
		select {
		case <-ctx.Done():
			errs <- ctx.Err()
			return

		case kb := <-blobs:
			if _, err := vs.PutAt(ctx, s, kb.k, kb.b); err != nil {
				errs <- err
				return
			}
		}
	}
}

// Put implements vs.Store.Put.
// The blob is stored in all synchronous nested stores.
// An error from any of them causes Put to return an error.
//
// Some nested stores may already have the blob and others may not;
// added is true if any of them had to add it.
//
// A request to write the blob is queued for any asynchronous nested stores.
// Normally this does not block the call to Put,
// but if any async store falls too far behind,
// Put must wait for space to open in its request queue before proceeding.
// The size of this queue is given by the int passed to New.
func (s *Store) Put(ctx context.Context, b vs.Blob) (vs.Key, bool, error) {
	k := b.Key()
	added, err := s.PutAt(ctx, k, b)
	return k, added, err
}

// PutAt is like Put with a trusted key.
func (s *Store) PutAt(ctx context.Context, k vs.Key, b vs.Blob) (bool, error) {
	if err := s.checkErr(); err != nil {
		return false, errors.Wrap(err, "in async-store goroutine")
	}

	b = append(vs.Blob(nil), b...)

	g, ctx := errgroup.WithContext(ctx)
	addeds := make([]bool, len(s.sync))
	for i, nested := range s.sync {
		i, nested := i, nested
		g.Go(func() error {
			added, err := vs.PutAt(ctx, nested, k, b)
			addeds[i] = added
			return err
		})
	}

	for _, a := range s.async {
		select {
		case <-ctx.Done():
			return false, ctx.Err()

		case a.blobs <- keyedBlob{k: k, b: b}:
		}
	}

	if err := g.Wait(); err != nil {
		return false, err
	}
	for _, added := range addeds {
		if added {
			return true, nil
		}
	}
	return false, nil
}

// Get implements vs.Getter.
// It delegates the request to all of the synchronous stores in s,
// returning the result from the first one to respond without error
// and canceling the request to the others.
// If all synchronous stores respond with an error,
// one of those errors is returned.
func (s *Store) Get(ctx context.Context, k vs.Key) (vs.Blob, error) {
	if err := s.checkErr(); err != nil {
		return nil, errors.Wrap(err, "in async-store goroutine")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group

	ch := make(chan vs.Blob, len(s.sync))
	for _, nested := range s.sync {
		nested := nested
		g.Go(func() error {
			b, err := nested.Get(ctx, k)
			if err != nil {
				return err
			}
			ch <- b
			return nil
		})
	}

	errch := make(chan error, 1)
	go func() {
		errch <- g.Wait()
		close(ch)
	}()

	if b, ok := <-ch; ok {
		return b, nil
	}
	return nil, <-errch
}

// ListKeys implements vs.Getter.
// It delegates the request to all of the synchronous stores in s
// and synthesizes the result from the union of their keys.
func (s *Store) ListKeys(ctx context.Context, start vs.Key, f func(vs.Key) error) error {
	if err := s.checkErr(); err != nil {
		return errors.Wrap(err, "in async-store goroutine")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	chans := make([]chan vs.Key, len(s.sync))
	for i, nested := range s.sync {
		i, nested := i, nested
		chans[i] = make(chan vs.Key, 1)
		g.Go(func() error {
			defer close(chans[i])
			return nested.ListKeys(ctx, start, func(k vs.Key) error {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case chans[i] <- k:
					return nil
				}
			})
		})
	}

	next := make([]*vs.Key, len(chans))
	advance := func(i int) {
		if k, ok := <-chans[i]; ok {
			next[i] = &k
		} else {
			next[i] = nil
		}
	}
	for i := range chans {
		advance(i)
	}

	for {
		var best *vs.Key
		for _, k := range next {
			if k != nil && (best == nil || k.Less(*best)) {
				best = k
			}
		}
		if best == nil {
			break
		}
		k := *best
		if err := f(k); err != nil {
			return err
		}
		for i := range next {
			if next[i] != nil && *next[i] == k {
				advance(i)
			}
		}
	}

	return g.Wait()
}

// Close stops the goroutines serving the asynchronous stores.
func (s *Store) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Store) checkErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func init() {
	store.Register("replica", func(ctx context.Context, conf map[string]interface{}) (vs.Store, error) {
		syncStores, err := nestedStores(ctx, conf, "sync")
		if err != nil {
			return nil, err
		}
		if len(syncStores) == 0 {
			return nil, errors.New(`missing "sync" parameter`)
		}
		asyncStores, err := nestedStores(ctx, conf, "async")
		if err != nil {
			return nil, err
		}
		queueLen, ok := store.Int(conf, "queuelen")
		if !ok {
			queueLen = 10
		}
		return New(ctx, syncStores, asyncStores, queueLen)
	})
}

func nestedStores(ctx context.Context, conf map[string]interface{}, param string) ([]vs.Store, error) {
	items, _ := conf[param].([]interface{})
	var result []vs.Store
	for _, item := range items {
		nested, ok := item.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf(`%q item is not a map`, param)
		}
		nestedType, ok := nested["type"].(string)
		if !ok {
			return nil, errors.Errorf(`%q item missing "type"`, param)
		}
		s, err := store.Create(ctx, nestedType, nested)
		if err != nil {
			return nil, errors.Wrapf(err, "creating nested %s store", param)
		}
		result = append(result, s)
	}
	return result, nil
}
