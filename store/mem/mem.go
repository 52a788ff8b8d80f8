// Package mem implements an in-memory blob store and tag store.
package mem

import (
	"context"
	"sort"
	"sync"

	"github.com/bobg/vs"
	"github.com/bobg/vs/store"
)

var (
	_ vs.Store       = &Store{}
	_ vs.TagStore    = &Store{}
	_ vs.Haser       = &Store{}
	_ vs.KeyedPutter = &Store{}
)

// Store is a memory-based implementation of a blob store and tag store.
type Store struct {
	vs.Watchers

	mu    sync.Mutex
	blobs map[vs.Key]vs.Blob
	tags  map[string]vs.Key
}

// New produces a new Store.
func New() *Store {
	return &Store{
		blobs: make(map[vs.Key]vs.Blob),
		tags:  make(map[string]vs.Key),
	}
}

// Get gets the blob with hash `k`.
func (s *Store) Get(_ context.Context, k vs.Key) (vs.Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.blobs[k]; ok {
		return b, nil
	}
	return nil, vs.ErrNotFound
}

// Has tells whether the store has a blob for `k`.
func (s *Store) Has(_ context.Context, k vs.Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.blobs[k]
	return ok, nil
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, b vs.Blob) (vs.Key, bool, error) {
	k := b.Key()
	added, err := s.PutAt(ctx, k, b)
	return k, added, err
}

// PutAt adds a blob to the store under a trusted key.
func (s *Store) PutAt(_ context.Context, k vs.Key, b vs.Blob) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[k]; ok {
		return false, nil
	}
	s.blobs[k] = append(vs.Blob(nil), b...)
	return true, nil
}

// ListKeys produces all blob keys in the store, in lexicographic order.
func (s *Store) ListKeys(ctx context.Context, start vs.Key, f func(vs.Key) error) error {
	s.mu.Lock()
	keys := make([]vs.Key, 0, len(s.blobs))
	for k := range s.blobs {
		keys = append(keys, k)
	}
	s.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	index := sort.Search(len(keys), func(n int) bool {
		return start.Less(keys[n])
	})

	for i := index; i < len(keys); i++ {
		err := f(keys[i])
		if err != nil {
			return err
		}
	}
	return nil
}

// GetTag gets the key the named tag points to.
func (s *Store) GetTag(_ context.Context, name string) (vs.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if k, ok := s.tags[name]; ok {
		return k, nil
	}
	return vs.Zero, vs.ErrNotFound
}

// ListTags lists all tags in the store, in lexicographic order.
func (s *Store) ListTags(_ context.Context, start string, f func(string, vs.Key) error) error {
	s.mu.Lock()
	names := make([]string, 0, len(s.tags))
	for name := range s.tags {
		if name > start {
			names = append(names, name)
		}
	}
	snapshot := make(map[string]vs.Key, len(names))
	for _, name := range names {
		snapshot[name] = s.tags[name]
	}
	s.mu.Unlock()

	sort.Strings(names)
	for _, name := range names {
		err := f(name, snapshot[name])
		if err != nil {
			return err
		}
	}
	return nil
}

// TestAndSet implements vs.TagStore.
func (s *Store) TestAndSet(_ context.Context, name string, old, new *vs.Key) (bool, error) {
	ok := func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()

		cur, exists := s.tags[name]
		switch {
		case old == nil && exists:
			return false
		case old != nil && (!exists || cur != *old):
			return false
		}
		if new == nil {
			delete(s.tags, name)
		} else {
			s.tags[name] = *new
		}
		return true
	}()
	if ok {
		s.Notify(name, old, new)
	}
	return ok, nil
}

// Watch implements vs.TagStore.
func (s *Store) Watch(name string, f vs.WatchFunc) func() {
	return s.Add(name, f)
}

func init() {
	store.Register("mem", func(context.Context, map[string]interface{}) (vs.Store, error) {
		return New(), nil
	})
}
