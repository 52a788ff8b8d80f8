// Package compress implements a blob store that compresses and uncompresses blobs
// on their way into and out of a nested store.
//
// Blobs are stored in the nested store under the key of their uncompressed content,
// so the nested store must be able to store a blob at a given key
// (see vs.KeyedPutter).
// Each stored blob begins with a byte identifying the compressor that produced it,
// so a store can read blobs written with a different compressor.
// Blobs that do not shrink are stored raw.
package compress

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/bobg/vs"
	"github.com/bobg/vs/store"
)

var (
	_ vs.Store       = &Store{}
	_ vs.TagStore    = &Store{}
	_ vs.KeyedPutter = &Store{}
	_ vs.Haser       = &Store{}
)

// Store is a compressing decorator for a nested store.
// Tag operations pass through to the nested store.
type Store struct {
	store.NestedTags

	s  vs.Store
	kp vs.KeyedPutter
	c  Compressor
}

// Compressor is a compression algorithm.
// ID identifies it in the header byte of stored blobs
// and must not be 0, which means "uncompressed."
type Compressor interface {
	ID() byte
	Compress([]byte) ([]byte, error)
	Uncompress([]byte) ([]byte, error)
}

const raw byte = 0

// ErrFormat is the error for a stored blob with an unknown or missing header.
var ErrFormat = errors.New("unrecognized compression format")

// New produces a new Store compressing blobs with c on their way into s.
func New(s vs.Store, c Compressor) (*Store, error) {
	kp, ok := s.(vs.KeyedPutter)
	if !ok {
		return nil, fmt.Errorf("nested store %T cannot store blobs at a given key", s)
	}
	return &Store{NestedTags: store.NestedTags{S: s}, s: s, kp: kp, c: c}, nil
}

// Get gets the blob with key k, uncompressing it.
func (s *Store) Get(ctx context.Context, k vs.Key) (vs.Blob, error) {
	stored, err := s.s.Get(ctx, k)
	if err != nil {
		return nil, err
	}
	b, err := s.uncompress(stored)
	return b, errors.Wrapf(err, "uncompressing blob %s", k)
}

func (s *Store) uncompress(stored []byte) (vs.Blob, error) {
	if len(stored) == 0 {
		return nil, ErrFormat
	}
	id, body := stored[0], stored[1:]
	if id == raw {
		return append(vs.Blob(nil), body...), nil
	}
	c, ok := compressors[id]
	if !ok {
		return nil, errors.Wrapf(ErrFormat, "header byte %d", id)
	}
	out, err := c.Uncompress(body)
	return vs.Blob(out), err
}

// Has tells whether the nested store has a blob for k.
func (s *Store) Has(ctx context.Context, k vs.Key) (bool, error) {
	return vs.Exists(ctx, s.s, k)
}

// Put compresses b and stores it in the nested store under b's key.
func (s *Store) Put(ctx context.Context, b vs.Blob) (vs.Key, bool, error) {
	k := b.Key()
	added, err := s.PutAt(ctx, k, b)
	return k, added, err
}

// PutAt compresses b and stores it in the nested store under k.
func (s *Store) PutAt(ctx context.Context, k vs.Key, b vs.Blob) (bool, error) {
	stored, err := s.compress(b)
	if err != nil {
		return false, errors.Wrapf(err, "compressing blob %s", k)
	}
	added, err := s.kp.PutAt(ctx, k, stored)
	return added, errors.Wrapf(err, "storing compressed blob %s", k)
}

func (s *Store) compress(b vs.Blob) ([]byte, error) {
	c, err := s.c.Compress(b)
	if err != nil {
		return nil, err
	}
	if len(c) < len(b) {
		return append([]byte{s.c.ID()}, c...), nil
	}
	return append([]byte{raw}, b...), nil
}

// ListKeys produces all blob keys in the store, in lexicographic order.
func (s *Store) ListKeys(ctx context.Context, start vs.Key, f func(vs.Key) error) error {
	return s.s.ListKeys(ctx, start, f)
}

func init() {
	store.Register("compress", func(ctx context.Context, conf map[string]interface{}) (vs.Store, error) {
		level, ok := store.Int(conf, "level")
		if !ok {
			level = -1
		}
		var c Compressor
		switch name, _ := conf["compressor"].(string); name {
		case "", "zstd":
			var err error
			c, err = NewZstd(level)
			if err != nil {
				return nil, err
			}
		case "flate":
			c = Flate{Level: level}
		default:
			return nil, fmt.Errorf("unknown compressor %s", name)
		}
		nested, err := store.CreateNested(ctx, conf)
		if err != nil {
			return nil, err
		}
		return New(nested, c)
	})
}
