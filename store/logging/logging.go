// Package logging implements a store that delegates everything to a nested store,
// logging operations as they happen.
package logging

import (
	"context"
	"log"

	"github.com/bobg/vs"
	"github.com/bobg/vs/store"
)

var (
	_ vs.Store       = &Store{}
	_ vs.TagStore    = &Store{}
	_ vs.KeyedPutter = &Store{}
)

type Store struct {
	s    vs.Store
	tags store.NestedTags
}

func New(s vs.Store) *Store {
	return &Store{s: s, tags: store.NestedTags{S: s}}
}

func (s *Store) Get(ctx context.Context, k vs.Key) (vs.Blob, error) {
	b, err := s.s.Get(ctx, k)
	if err != nil {
		log.Printf("ERROR Get %s: %s", k, err)
	} else {
		log.Printf("Get %s", k)
	}
	return b, err
}

func (s *Store) ListKeys(ctx context.Context, start vs.Key, f func(vs.Key) error) error {
	log.Printf("ListKeys, start=%s", start)
	return s.s.ListKeys(ctx, start, func(k vs.Key) error {
		err := f(k)
		if err != nil {
			log.Printf("  ERROR in ListKeys: %s: %s", k, err)
		} else {
			log.Printf("  ListKeys: %s", k)
		}
		return err
	})
}

func (s *Store) Put(ctx context.Context, b vs.Blob) (vs.Key, bool, error) {
	k, added, err := s.s.Put(ctx, b)
	if err != nil {
		log.Printf("ERROR in Put: %s", err)
	} else {
		log.Printf("Put %s, added=%v", k, added)
	}
	return k, added, err
}

func (s *Store) PutAt(ctx context.Context, k vs.Key, b vs.Blob) (bool, error) {
	added, err := vs.PutAt(ctx, s.s, k, b)
	if err != nil {
		log.Printf("ERROR in PutAt(%s): %s", k, err)
	} else {
		log.Printf("PutAt %s, added=%v", k, added)
	}
	return added, err
}

func (s *Store) GetTag(ctx context.Context, name string) (vs.Key, error) {
	k, err := s.tags.GetTag(ctx, name)
	if err != nil {
		log.Printf("ERROR in GetTag(%s): %s", name, err)
	} else {
		log.Printf("GetTag(%s): %s", name, k)
	}
	return k, err
}

func (s *Store) ListTags(ctx context.Context, start string, f func(string, vs.Key) error) error {
	log.Printf("ListTags, start=%s", start)
	return s.tags.ListTags(ctx, start, func(name string, k vs.Key) error {
		err := f(name, k)
		if err != nil {
			log.Printf("  ERROR in ListTags at (%s, %s): %s", name, k, err)
		} else {
			log.Printf("  ListTags: (%s, %s)", name, k)
		}
		return err
	})
}

func (s *Store) TestAndSet(ctx context.Context, name string, old, new *vs.Key) (bool, error) {
	ok, err := s.tags.TestAndSet(ctx, name, old, new)
	if err != nil {
		log.Printf("ERROR in TestAndSet(%s, %s, %s): %s", name, keyStr(old), keyStr(new), err)
	} else {
		log.Printf("TestAndSet(%s, %s, %s): %v", name, keyStr(old), keyStr(new), ok)
	}
	return ok, err
}

func (s *Store) Watch(name string, f vs.WatchFunc) func() {
	log.Printf("Watch(%q)", name)
	return s.tags.Watch(name, f)
}

func keyStr(k *vs.Key) string {
	if k == nil {
		return "<nil>"
	}
	return k.String()
}

func init() {
	store.Register("logging", func(ctx context.Context, conf map[string]interface{}) (vs.Store, error) {
		nested, err := store.CreateNested(ctx, conf)
		if err != nil {
			return nil, err
		}
		return New(nested), nil
	})
}
