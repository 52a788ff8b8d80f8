// Package file implements a blob store as a file hierarchy.
package file

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/bobg/flock"
	"github.com/pkg/errors"

	"github.com/bobg/vs"
	"github.com/bobg/vs/store"
)

var (
	_ vs.Store    = &Store{}
	_ vs.Haser    = &Store{}
	_ vs.TagStore = &Store{}
)

// Store is a file-based implementation of a blob store and tag store.
type Store struct {
	vs.Watchers

	root    string
	flocker flock.Locker
}

// New produces a new Store storing data beneath `root`.
func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) blobroot() string {
	return filepath.Join(s.root, "blobs")
}

func (s *Store) blobpath(k vs.Key) string {
	h := k.String()
	return filepath.Join(s.blobroot(), h[:2], h[:4], h)
}

// Get gets the blob with key `k`.
func (s *Store) Get(_ context.Context, k vs.Key) (vs.Blob, error) {
	path := s.blobpath(k)
	blob, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, vs.ErrNotFound
	}
	return blob, errors.Wrapf(err, "opening %s", path)
}

// Has tells whether the blob with key `k` is present.
func (s *Store) Has(_ context.Context, k vs.Key) (bool, error) {
	_, err := os.Stat(s.blobpath(k))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, errors.Wrapf(err, "statting %s", s.blobpath(k))
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, b vs.Blob) (vs.Key, bool, error) {
	k := b.Key()
	added, err := s.PutAt(ctx, k, b)
	return k, added, err
}

// PutAt stores b under k without checking that k is b's key.
func (s *Store) PutAt(_ context.Context, k vs.Key, b vs.Blob) (bool, error) {
	var (
		path = s.blobpath(k)
		dir  = filepath.Dir(path)
	)

	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return false, errors.Wrapf(err, "ensuring path %s exists", dir)
	}

	// Write to a temp file and link it into place,
	// so a reader never sees a partial blob.
	tmp, err := os.CreateTemp(dir, "tmp")
	if err != nil {
		return false, errors.Wrapf(err, "creating temp file in %s", dir)
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(b)
	if err != nil {
		tmp.Close()
		return false, errors.Wrapf(err, "writing data to %s", tmp.Name())
	}
	if err = tmp.Close(); err != nil {
		return false, errors.Wrapf(err, "closing %s", tmp.Name())
	}

	err = os.Link(tmp.Name(), path)
	if os.IsExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "linking %s", path)
	}
	return true, nil
}

// ListKeys produces all blob keys in the store, in lexicographic order.
func (s *Store) ListKeys(ctx context.Context, start vs.Key, f func(vs.Key) error) error {
	err := os.MkdirAll(s.blobroot(), 0755)
	if err != nil {
		return errors.Wrapf(err, "ensuring %s exists", s.blobroot())
	}

	topLevel, err := os.ReadDir(s.blobroot())
	if err != nil {
		return errors.Wrapf(err, "reading dir %s", s.blobroot())
	}

	startHex := start.String()
	topIndex := sort.Search(len(topLevel), func(n int) bool {
		return topLevel[n].Name() >= startHex[:2]
	})
	for i := topIndex; i < len(topLevel); i++ {
		topInfo := topLevel[i]
		if !topInfo.IsDir() {
			continue
		}
		topName := topInfo.Name()
		if !isHex(topName, 2) {
			continue
		}

		midLevel, err := os.ReadDir(filepath.Join(s.blobroot(), topName))
		if err != nil {
			return errors.Wrapf(err, "reading dir %s/%s", s.blobroot(), topName)
		}
		midIndex := sort.Search(len(midLevel), func(n int) bool {
			return midLevel[n].Name() >= startHex[:4]
		})
		for j := midIndex; j < len(midLevel); j++ {
			midInfo := midLevel[j]
			if !midInfo.IsDir() {
				continue
			}
			midName := midInfo.Name()
			if !isHex(midName, 4) {
				continue
			}

			blobInfos, err := os.ReadDir(filepath.Join(s.blobroot(), topName, midName))
			if err != nil {
				return errors.Wrapf(err, "reading dir %s/%s/%s", s.blobroot(), topName, midName)
			}

			index := sort.Search(len(blobInfos), func(n int) bool {
				return blobInfos[n].Name() > startHex
			})
			for k := index; k < len(blobInfos); k++ {
				blobInfo := blobInfos[k]
				if blobInfo.IsDir() {
					continue
				}

				key, err := vs.KeyFromHex(blobInfo.Name())
				if err != nil {
					continue
				}

				err = f(key)
				if err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func isHex(s string, n int) bool {
	if len(s) != n {
		return false
	}
	_, err := strconv.ParseUint(s, 16, 64)
	return err == nil
}

func init() {
	store.Register("file", func(_ context.Context, conf map[string]interface{}) (vs.Store, error) {
		root, ok := conf["root"].(string)
		if !ok {
			return nil, errors.New(`missing "root" parameter`)
		}
		return New(root), nil
	})
}
