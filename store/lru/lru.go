// Package lru implements a blob store that acts as a least-recently-used cache for a nested blob store.
package lru

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/bobg/vs"
	"github.com/bobg/vs/store"
)

var (
	_ vs.Store       = &Store{}
	_ vs.Haser       = &Store{}
	_ vs.KeyedPutter = &Store{}
	_ vs.TagStore    = &Store{}
)

// Store implements a memory-based least-recently-used cache for a blob store.
// It caches only blobs;
// tags are mutable and always come from the nested store.
// Writes pass through to the nested store.
type Store struct {
	store.NestedTags

	c *lru.Cache // Key->Blob
	s vs.Store
}

// New produces a new Store backed by `s` and caching up to `size` blobs.
func New(s vs.Store, size int) (*Store, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, errors.Wrap(err, "creating cache")
	}
	return &Store{NestedTags: store.NestedTags{S: s}, s: s, c: c}, nil
}

// Get gets the blob with key `k`.
func (s *Store) Get(ctx context.Context, k vs.Key) (vs.Blob, error) {
	if got, ok := s.c.Get(k); ok {
		return got.(vs.Blob), nil
	}
	blob, err := s.s.Get(ctx, k)
	if err != nil {
		return nil, err
	}
	s.c.Add(k, blob)
	return blob, nil
}

// Has tells whether the blob with key `k` is present,
// consulting the nested store only on a cache miss.
func (s *Store) Has(ctx context.Context, k vs.Key) (bool, error) {
	if s.c.Contains(k) {
		return true, nil
	}
	return vs.Exists(ctx, s.s, k)
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, b vs.Blob) (vs.Key, bool, error) {
	k, added, err := s.s.Put(ctx, b)
	if err != nil {
		return k, added, err
	}
	s.c.Add(k, b)
	return k, added, nil
}

// PutAt stores b under k in the nested store.
func (s *Store) PutAt(ctx context.Context, k vs.Key, b vs.Blob) (bool, error) {
	added, err := vs.PutAt(ctx, s.s, k, b)
	if err != nil {
		return added, err
	}
	s.c.Add(k, b)
	return added, nil
}

// ListKeys produces all blob keys in the store, in lexicographic order.
func (s *Store) ListKeys(ctx context.Context, start vs.Key, f func(vs.Key) error) error {
	return s.s.ListKeys(ctx, start, f)
}

func init() {
	store.Register("lru", func(ctx context.Context, conf map[string]interface{}) (vs.Store, error) {
		size, ok := store.Int(conf, "size")
		if !ok {
			return nil, errors.New(`missing "size" parameter`)
		}
		nested, err := store.CreateNested(ctx, conf)
		if err != nil {
			return nil, err
		}
		return New(nested, size)
	})
}
