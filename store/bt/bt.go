// Package bt implements a blob store and tag store on Google Cloud Bigtable.
package bt

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"cloud.google.com/go/bigtable"
	"github.com/pkg/errors"
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

// Store is a Google Cloud Bigtable-backed implementation of a blob store and tag store.
// Blob rows are keyed "b:" plus the hex blob key,
// tag rows "t:" plus the tag name.
// The table needs the column families "blob" and "tag".
type Store struct {
	vs.Watchers

	t *bigtable.Table
}

const (
	blobcol = "blob"
	blobfam = "blob"
	tagcol  = "tag"
	tagfam  = "tag"
)

var errEmptyItems = errors.New("empty items")

// New produces a new Store.
func New(t *bigtable.Table) *Store {
	return &Store{t: t}
}

// Get gets the blob with key `k`.
func (s *Store) Get(ctx context.Context, k vs.Key) (vs.Blob, error) {
	row, err := s.t.ReadRow(ctx, blobKey(k), bigtable.RowFilter(bigtable.LatestNFilter(1)))
	if err != nil {
		return nil, errors.Wrapf(err, "reading row %s", k)
	}
	if len(row) == 0 {
		return nil, vs.ErrNotFound
	}
	items := row[blobfam]
	if len(items) == 0 {
		return nil, errEmptyItems
	}
	return vs.Blob(items[0].Value), nil
}

// Has tells whether the blob with key `k` is present.
func (s *Store) Has(ctx context.Context, k vs.Key) (bool, error) {
	row, err := s.t.ReadRow(ctx, blobKey(k), bigtable.RowFilter(bigtable.StripValueFilter()))
	if err != nil {
		return false, errors.Wrapf(err, "reading row %s", k)
	}
	return len(row) > 0, nil
}

// ListKeys produces all blob keys in the store, in lexicographic order.
func (s *Store) ListKeys(ctx context.Context, start vs.Key, f func(vs.Key) error) error {
	var innerErr error
	rowFn := func(row bigtable.Row) bool {
		key := row.Key()
		k, err := keyFromRowKey(key)
		if err != nil {
			innerErr = errors.Wrapf(err, "extracting key from row key %s", key)
			return false
		}
		if k == start {
			return true
		}
		err = f(k)
		if err != nil {
			innerErr = err
			return false
		}
		return true
	}
	rr := bigtable.NewRange(blobKey(start), "b;") // ';' follows ':'
	err := s.t.ReadRows(ctx, rr, rowFn, bigtable.RowFilter(bigtable.StripValueFilter()))
	if err != nil {
		return err
	}
	return innerErr
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, b vs.Blob) (vs.Key, bool, error) {
	k := b.Key()
	added, err := s.PutAt(ctx, k, b)
	return k, added, err
}

// PutAt adds a blob to the store under a trusted key.
func (s *Store) PutAt(ctx context.Context, k vs.Key, b vs.Blob) (bool, error) {
	mut := bigtable.NewMutation()
	mut.Set(blobfam, blobcol, bigtable.Now(), b)

	cmut := bigtable.NewCondMutation(bigtable.LatestNFilter(1), nil, mut)

	var alreadyPresent bool
	err := s.t.Apply(ctx, blobKey(k), cmut, bigtable.GetCondMutationResult(&alreadyPresent))
	return !alreadyPresent, errors.Wrapf(err, "storing blob %s", k)
}

// GetTag returns the key the named tag points to.
func (s *Store) GetTag(ctx context.Context, name string) (vs.Key, error) {
	row, err := s.t.ReadRow(ctx, tagKey(name), bigtable.RowFilter(bigtable.LatestNFilter(1)))
	if err != nil {
		return vs.Key{}, errors.Wrapf(err, "reading row for tag %s", name)
	}
	if len(row) == 0 {
		return vs.Key{}, vs.ErrNotFound
	}
	return tagVal(row)
}

func tagVal(row bigtable.Row) (vs.Key, error) {
	items := row[tagfam]
	if len(items) == 0 {
		return vs.Key{}, errEmptyItems
	}
	return vs.KeyFromHex(string(items[0].Value))
}

// ListTags calls f for each tag after `start`, in lexicographic order.
func (s *Store) ListTags(ctx context.Context, start string, f func(string, vs.Key) error) error {
	var innerErr error
	rowFn := func(row bigtable.Row) bool {
		name := strings.TrimPrefix(row.Key(), "t:")
		if name == start {
			return true
		}
		k, err := tagVal(row)
		if err != nil {
			innerErr = errors.Wrapf(err, "parsing tag %s", name)
			return false
		}
		if err = f(name, k); err != nil {
			innerErr = err
			return false
		}
		return true
	}
	rr := bigtable.NewRange(tagKey(start), "t;")
	err := s.t.ReadRows(ctx, rr, rowFn, bigtable.RowFilter(bigtable.LatestNFilter(1)))
	if err != nil {
		return err
	}
	return innerErr
}

// TestAndSet changes the tag `name` from `old` to `new`,
// using a conditional mutation on the tag's row.
func (s *Store) TestAndSet(ctx context.Context, name string, old, new *vs.Key) (bool, error) {
	if old == nil && new == nil {
		_, err := s.GetTag(ctx, name)
		if errors.Is(err, vs.ErrNotFound) {
			return true, nil
		}
		return false, err
	}

	var mut *bigtable.Mutation
	if new == nil {
		mut = bigtable.NewMutation()
		mut.DeleteRow()
	} else {
		mut = bigtable.NewMutation()
		mut.DeleteCellsInColumn(tagfam, tagcol)
		mut.Set(tagfam, tagcol, bigtable.Now(), []byte(hex.EncodeToString(new[:])))
	}

	var (
		cmut *bigtable.Mutation
		ok   bool
	)
	if old == nil {
		cmut = bigtable.NewCondMutation(bigtable.LatestNFilter(1), nil, mut)
	} else {
		cond := bigtable.ChainFilters(
			bigtable.ColumnFilter(tagcol),
			bigtable.LatestNFilter(1),
			bigtable.ValueFilter(fmt.Sprintf("^%x$", old[:])),
		)
		cmut = bigtable.NewCondMutation(cond, mut, nil)
	}

	var matched bool
	err := s.t.Apply(ctx, tagKey(name), cmut, bigtable.GetCondMutationResult(&matched))
	if err != nil {
		return false, errors.Wrapf(err, "updating tag %s", name)
	}
	if old == nil {
		ok = !matched
	} else {
		ok = matched
	}
	if ok {
		s.Notify(name, old, new)
	}
	return ok, nil
}

// Watch registers f to be called after each change to the named tag made through s.
func (s *Store) Watch(name string, f vs.WatchFunc) func() {
	return s.Add(name, f)
}

func blobKey(k vs.Key) string {
	return fmt.Sprintf("b:%x", k[:])
}

func keyFromRowKey(key string) (vs.Key, error) {
	return vs.KeyFromHex(strings.TrimPrefix(key, "b:"))
}

func tagKey(name string) string {
	return "t:" + name
}

func init() {
	store.Register("bt", func(ctx context.Context, conf map[string]interface{}) (vs.Store, error) {
		project, ok := conf["project"].(string)
		if !ok {
			return nil, errors.New(`missing "project" parameter`)
		}
		instance, ok := conf["instance"].(string)
		if !ok {
			return nil, errors.New(`missing "instance" parameter`)
		}
		table, ok := conf["table"].(string)
		if !ok {
			return nil, errors.New(`missing "table" parameter`)
		}

		var options []option.ClientOption
		if creds, ok := conf["creds"].(string); ok {
			options = append(options, option.WithCredentialsFile(creds))
		}
		c, err := bigtable.NewClient(ctx, project, instance, options...)
		if err != nil {
			return nil, errors.Wrap(err, "creating bigtable client")
		}
		return New(c.Open(table)), nil
	})
}
