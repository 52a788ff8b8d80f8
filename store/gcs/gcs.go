// Package gcs implements a blob store and tag store on Google Cloud Storage.
package gcs

import (
	"context"
	"encoding/hex"
	stderrs "errors"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/bobg/vs"
	"github.com/bobg/vs/store"
)

var (
	_ vs.Store       = &Store{}
	_ vs.Haser       = &Store{}
	_ vs.KeyedPutter = &Store{}
	_ vs.TagStore    = &Store{}
)

// Store is a Google Cloud Storage-based implementation of a blob store and tag store.
type Store struct {
	vs.Watchers

	bucket *storage.BucketHandle
}

// New produces a new Store.
func New(bucket *storage.BucketHandle) *Store {
	return &Store{bucket: bucket}
}

// Get gets the blob with key `k`.
func (s *Store) Get(ctx context.Context, k vs.Key) (vs.Blob, error) {
	name := blobObjName(k)
	b, _, err := s.read(ctx, name)
	return b, err
}

// read reads the named object and returns its contents and generation.
func (s *Store) read(ctx context.Context, name string) ([]byte, int64, error) {
	r, err := s.bucket.Object(name).NewReader(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return nil, 0, vs.ErrNotFound
	}
	if err != nil {
		return nil, 0, errors.Wrapf(err, "reading info of object %s", name)
	}
	defer r.Close()

	b := make([]byte, r.Attrs.Size)
	_, err = io.ReadFull(r, b)
	return b, r.Attrs.Generation, errors.Wrapf(err, "reading contents of object %s", name)
}

// Has tells whether the blob with key `k` is present.
func (s *Store) Has(ctx context.Context, k vs.Key) (bool, error) {
	name := blobObjName(k)
	_, err := s.bucket.Object(name).Attrs(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return err == nil, errors.Wrapf(err, "getting object attrs for %s", name)
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, b vs.Blob) (vs.Key, bool, error) {
	k := b.Key()
	added, err := s.PutAt(ctx, k, b)
	return k, added, err
}

// PutAt stores b under k without checking that k is b's key.
func (s *Store) PutAt(ctx context.Context, k vs.Key, b vs.Blob) (bool, error) {
	name := blobObjName(k)
	ok, err := s.write(ctx, name, storage.Conditions{DoesNotExist: true}, b)
	return ok, errors.Wrapf(err, "writing object %s", name)
}

// write writes the named object if conds hold.
// It returns false (and no error) if they don't.
func (s *Store) write(ctx context.Context, name string, conds storage.Conditions, b []byte) (bool, error) {
	w := s.bucket.Object(name).If(conds).NewWriter(ctx)
	if _, err := w.Write(b); err != nil {
		w.Close()
		return preconditionOK(err)
	}
	return preconditionOK(w.Close())
}

// preconditionOK turns a failed precondition into (false, nil).
func preconditionOK(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	var e *googleapi.Error
	if stderrs.As(err, &e) && e.Code == http.StatusPreconditionFailed {
		return false, nil
	}
	return false, err
}

// ListKeys produces all blob keys in the store, in lexicographic order.
func (s *Store) ListKeys(ctx context.Context, start vs.Key, f func(vs.Key) error) error {
	// Google Cloud Storage iterators can filter by object-name prefix.
	// So we take (the hex encoding of) `start` and repeatedly compute prefixes for the objects we want.
	// If `start` is e67a, for example, the sequence of generated prefixes is:
	//   e67b e67c e67d e67e e67f
	//   e68 e69 e6a e6b e6c e6d e6e e6f
	//   e7 e8 e9 ea eb ec ed ee ef
	//   f
	return eachHexPrefix(start.String(), false, func(prefix string) error {
		return s.listKeys(ctx, prefix, f)
	})
}

func (s *Store) listKeys(ctx context.Context, prefix string, f func(vs.Key) error) error {
	iter := s.bucket.Objects(ctx, &storage.Query{Prefix: blobPrefix + prefix})
	for {
		obj, err := iter.Next()
		if stderrs.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return err
		}
		k, err := vs.KeyFromHex(strings.TrimPrefix(obj.Name, blobPrefix))
		if err != nil {
			return errors.Wrapf(err, "decoding object name %s", obj.Name)
		}
		if err = f(k); err != nil {
			return err
		}
	}
}

// GetTag gets the key the named tag points to.
func (s *Store) GetTag(ctx context.Context, name string) (vs.Key, error) {
	k, _, err := s.getTag(ctx, name)
	return k, err
}

func (s *Store) getTag(ctx context.Context, name string) (vs.Key, int64, error) {
	objName := tagObjName(name)
	b, gen, err := s.read(ctx, objName)
	if err != nil {
		return vs.Zero, 0, err
	}
	if len(b) != len(vs.Zero) {
		return vs.Zero, 0, errors.Errorf("object %s has wrong size %d (want %d)", objName, len(b), len(vs.Zero))
	}
	return vs.KeyFromBytes(b), gen, nil
}

// ListTags lists the tags in the store in lexicographic order,
// starting after `start`.
// Hex-encoding tag names preserves their order,
// so the bucket's own ordering is the right one.
func (s *Store) ListTags(ctx context.Context, start string, f func(string, vs.Key) error) error {
	var (
		startObj = tagObjName(start)
		iter     = s.bucket.Objects(ctx, &storage.Query{Prefix: tagPrefix, StartOffset: startObj})
	)
	for {
		obj, err := iter.Next()
		if stderrs.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "iterating over tag objects")
		}
		if obj.Name <= startObj {
			continue
		}
		nameBytes, err := hex.DecodeString(strings.TrimPrefix(obj.Name, tagPrefix))
		if err != nil {
			return errors.Wrapf(err, "decoding object name %s", obj.Name)
		}
		name := string(nameBytes)
		k, err := s.GetTag(ctx, name)
		if errors.Is(err, vs.ErrNotFound) {
			// Deleted since listing.
			continue
		}
		if err != nil {
			return err
		}
		if err = f(name, k); err != nil {
			return err
		}
	}
}

// TestAndSet implements vs.TagStore.
// Object generation preconditions make each change atomic.
func (s *Store) TestAndSet(ctx context.Context, name string, old, new *vs.Key) (bool, error) {
	objName := tagObjName(name)

	var conds storage.Conditions
	if old == nil {
		conds.DoesNotExist = true
	} else {
		cur, gen, err := s.getTag(ctx, name)
		if errors.Is(err, vs.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if cur != *old {
			return false, nil
		}
		conds.GenerationMatch = gen
	}

	var (
		ok  bool
		err error
	)
	switch {
	case new != nil:
		ok, err = s.write(ctx, objName, conds, new[:])

	case old == nil:
		// Deleting a tag that must not exist.
		_, _, err = s.getTag(ctx, name)
		if errors.Is(err, vs.ErrNotFound) {
			return true, nil
		}
		return false, err

	default:
		err = s.bucket.Object(objName).If(conds).Delete(ctx)
		if stderrs.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		ok, err = preconditionOK(err)
	}
	if err != nil {
		return false, errors.Wrapf(err, "updating tag %s", name)
	}
	if ok {
		s.Notify(name, old, new)
	}
	return ok, nil
}

// Watch implements vs.TagStore.
// Only changes made through this Store are seen.
func (s *Store) Watch(name string, f vs.WatchFunc) func() {
	return s.Add(name, f)
}

func eachHexPrefix(prefix string, incl bool, f func(string) error) error {
	prefix = strings.ToLower(prefix)
	for len(prefix) > 0 {
		end := hexval(prefix[len(prefix)-1:][0])
		if !incl {
			end++
		}
		prefix = prefix[:len(prefix)-1]
		for c := end; c < 16; c++ {
			err := f(prefix + string(hexdigit(c)))
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func hexval(b byte) int {
	switch {
	case '0' <= b && b <= '9':
		return int(b - '0')
	case 'a' <= b && b <= 'f':
		return int(10 + b - 'a')
	case 'A' <= b && b <= 'F':
		return int(10 + b - 'A')
	}
	return 0
}

func hexdigit(n int) byte {
	if n < 10 {
		return byte(n + '0')
	}
	return byte(n - 10 + 'a')
}

const (
	blobPrefix = "b:"
	tagPrefix  = "t:"
)

func blobObjName(k vs.Key) string {
	return blobPrefix + k.String()
}

func tagObjName(name string) string {
	return tagPrefix + hex.EncodeToString([]byte(name))
}

func init() {
	store.Register("gcs", func(ctx context.Context, conf map[string]interface{}) (vs.Store, error) {
		var options []option.ClientOption
		if creds, ok := conf["creds"].(string); ok {
			options = append(options, option.WithCredentialsFile(creds))
		}
		bucketName, ok := conf["bucket"].(string)
		if !ok {
			return nil, errors.New(`missing "bucket" parameter`)
		}
		c, err := storage.NewClient(ctx, options...)
		if err != nil {
			return nil, errors.Wrap(err, "creating cloud storage client")
		}
		return New(c.Bucket(bucketName)), nil
	})
}
