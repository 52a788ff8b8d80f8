package file

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/multiformats/go-multibase"
	"github.com/pkg/errors"

	"github.com/bobg/vs"
)

// Each tag is a file beneath tags/
// holding the key it points to.
// File names are the base32 multibase encoding of the tag name,
// so any tag name is a valid file name.

func (s *Store) tagroot() string {
	return filepath.Join(s.root, "tags")
}

func (s *Store) tagpath(name string) (string, error) {
	enc, err := multibase.Encode(multibase.Base32, []byte(name))
	if err != nil {
		return "", errors.Wrapf(err, "encoding tag name %s", name)
	}
	return filepath.Join(s.tagroot(), enc), nil
}

func (s *Store) lockpath() string {
	return filepath.Join(s.root, "tags.lock")
}

// GetTag gets the key the named tag points to.
func (s *Store) GetTag(_ context.Context, name string) (vs.Key, error) {
	path, err := s.tagpath(name)
	if err != nil {
		return vs.Zero, err
	}
	return readTag(path)
}

func readTag(path string) (vs.Key, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return vs.Zero, vs.ErrNotFound
	}
	if err != nil {
		return vs.Zero, errors.Wrapf(err, "reading %s", path)
	}
	if len(b) != len(vs.Zero) {
		return vs.Zero, errors.Errorf("tag file %s has length %d", path, len(b))
	}
	return vs.KeyFromBytes(b), nil
}

// ListTags lists the tags in the store in lexicographic order,
// starting after `start`.
func (s *Store) ListTags(_ context.Context, start string, f func(string, vs.Key) error) error {
	entries, err := os.ReadDir(s.tagroot())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "reading dir %s", s.tagroot())
	}

	// Encoded names do not sort like the names themselves.
	type tag struct {
		name, path string
	}
	var tags []tag
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		_, b, err := multibase.Decode(e.Name())
		if err != nil {
			continue
		}
		if name := string(b); name > start {
			tags = append(tags, tag{name: name, path: filepath.Join(s.tagroot(), e.Name())})
		}
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].name < tags[j].name })

	for _, t := range tags {
		k, err := readTag(t.path)
		if errors.Is(err, vs.ErrNotFound) {
			// Deleted since ReadDir.
			continue
		}
		if err != nil {
			return err
		}
		if err = f(t.name, k); err != nil {
			return err
		}
	}
	return nil
}

// TestAndSet implements vs.TagStore.
// It holds an exclusive lock on the store's tags for the duration,
// so it is safe across processes as well as goroutines.
func (s *Store) TestAndSet(_ context.Context, name string, old, new *vs.Key) (bool, error) {
	path, err := s.tagpath(name)
	if err != nil {
		return false, err
	}
	if err = os.MkdirAll(s.tagroot(), 0755); err != nil {
		return false, errors.Wrapf(err, "ensuring %s exists", s.tagroot())
	}

	ok, err := func() (bool, error) {
		if err := s.flocker.Lock(s.lockpath()); err != nil {
			return false, errors.Wrap(err, "locking tags")
		}
		defer s.flocker.Unlock(s.lockpath())

		cur, err := readTag(path)
		switch {
		case errors.Is(err, vs.ErrNotFound):
			if old != nil {
				return false, nil
			}
		case err != nil:
			return false, err
		case old == nil || cur != *old:
			return false, nil
		}

		if new == nil {
			err = os.Remove(path)
			if os.IsNotExist(err) {
				err = nil
			}
			return true, errors.Wrapf(err, "removing %s", path)
		}

		// Not in tags/: ListTags must never see a partial file.
		tmp, err := os.CreateTemp(s.root, "tagtmp")
		if err != nil {
			return false, errors.Wrap(err, "creating temp tag file")
		}
		defer os.Remove(tmp.Name())
		if _, err = tmp.Write(new[:]); err != nil {
			tmp.Close()
			return false, errors.Wrapf(err, "writing %s", tmp.Name())
		}
		if err = tmp.Close(); err != nil {
			return false, errors.Wrapf(err, "closing %s", tmp.Name())
		}
		err = os.Rename(tmp.Name(), path)
		return err == nil, errors.Wrapf(err, "renaming to %s", path)
	}()
	if err != nil || !ok {
		return ok, err
	}
	s.Notify(name, old, new)
	return true, nil
}

// Watch implements vs.TagStore.
// Only changes made through this Store are seen.
func (s *Store) Watch(name string, f vs.WatchFunc) func() {
	return s.Add(name, f)
}
