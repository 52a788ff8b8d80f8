package vs

import (
	"context"
	stderrs "errors"

	"github.com/pkg/errors"
)

// Getter is a read-only Store (qv).
type Getter interface {
	// Get gets a blob by its key.
	// It returns ErrNotFound if there is no such blob.
	Get(context.Context, Key) (Blob, error)

	// ListKeys calls a function for each blob key in the store in lexicographic order,
	// beginning with the first key _after_ the specified one.
	//
	// The calls reflect at least the set of keys
	// known at the moment ListKeys was called.
	// It is unspecified whether later changes,
	// that happen concurrently with ListKeys,
	// are reflected.
	//
	// If the callback function returns an error,
	// ListKeys exits with that error.
	ListKeys(context.Context, Key, func(Key) error) error
}

// Store is a content-addressable blob store.
// Each blob can be retrieved using its key,
// the SHA2-256 hash of its content.
// Blobs are write-once:
// storing the same content twice is a no-op.
type Store interface {
	Getter

	// Put adds b to the store if it was not already present.
	// It returns b's key and a boolean that is true iff the blob had to be added.
	Put(ctx context.Context, b Blob) (key Key, added bool, err error)
}

// Haser is a Getter that can check for a blob without fetching it.
type Haser interface {
	Has(context.Context, Key) (bool, error)
}

// KeyedPutter is a Store that can store a blob under a key the caller vouches for,
// skipping the hash computation.
// Decorators that change a blob's representation
// (e.g. by compressing it)
// use this to keep the key of the original content.
type KeyedPutter interface {
	PutAt(ctx context.Context, k Key, b Blob) (added bool, err error)
}

// Batcher is a Store that can group a sequence of operations,
// e.g. in a single database transaction.
type Batcher interface {
	// Batch calls f with a Store whose writes are committed together
	// when f returns nil,
	// and discarded when it returns an error.
	Batch(context.Context, func(Store) error) error
}

// ErrNotFound is the error returned
// when a Getter tries to access a non-existent key,
// or a TagGetter a non-existent tag.
var ErrNotFound = stderrs.New("not found")

// Exists tells whether g has a blob for k.
func Exists(ctx context.Context, g Getter, k Key) (bool, error) {
	if h, ok := g.(Haser); ok {
		return h.Has(ctx, k)
	}
	_, err := g.Get(ctx, k)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "probing %s", k)
	}
	return true, nil
}

// PutAt stores b under the trusted key k.
// If s is not a KeyedPutter,
// b is stored with Put,
// and it is an error for its computed key to differ from k.
func PutAt(ctx context.Context, s Store, k Key, b Blob) (bool, error) {
	if kp, ok := s.(KeyedPutter); ok {
		return kp.PutAt(ctx, k, b)
	}
	got, added, err := s.Put(ctx, b)
	if err != nil {
		return false, err
	}
	if got != k {
		return added, errors.Errorf("blob has key %s, not %s", got, k)
	}
	return added, nil
}

// Batch runs f in a batch scope of s if s is a Batcher,
// and directly against s otherwise.
func Batch(ctx context.Context, s Store, f func(Store) error) error {
	if b, ok := s.(Batcher); ok {
		return b.Batch(ctx, f)
	}
	return f(s)
}
