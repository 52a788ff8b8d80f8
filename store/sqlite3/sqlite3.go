// Package sqlite3 implements a blob store and tag store in a SQLite database.
package sqlite3

import (
	"context"
	"database/sql"
	stderrs "errors"

	"github.com/bobg/sqlutil"
	_ "github.com/mattn/go-sqlite3" // register the sqlite3 type for sql.Open
	"github.com/pkg/errors"

	"github.com/bobg/vs"
	"github.com/bobg/vs/store"
)

var (
	_ vs.Store       = &Store{}
	_ vs.Haser       = &Store{}
	_ vs.KeyedPutter = &Store{}
	_ vs.Batcher     = &Store{}
	_ vs.TagStore    = &Store{}
)

// Store is a Sqlite-based blob store and tag store.
type Store struct {
	vs.Watchers

	db *sql.DB
	q  querier // db, or a transaction inside Batch
}

type querier interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Schema is the SQL that New executes.
// It creates the `blobs` and `tags` tables if they do not exist.
// (If they do exist, they must have the columns, constraints, and indexing described here.)
const Schema = `
CREATE TABLE IF NOT EXISTS blobs (
  ref BLOB PRIMARY KEY NOT NULL,
  data BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS tags (
  name TEXT PRIMARY KEY NOT NULL,
  ref BLOB NOT NULL
);
`

// New produces a new Store using `db` for storage.
// It expects to create tables `blobs` and `tags`,
// or for those tables already to exist with the correct schema.
// (See variable Schema.)
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	_, err := db.ExecContext(ctx, Schema)
	return &Store{db: db, q: db}, errors.Wrap(err, "creating schema")
}

// Get gets the blob with key `k`.
func (s *Store) Get(ctx context.Context, k vs.Key) (vs.Blob, error) {
	const q = `SELECT data FROM blobs WHERE ref = $1`

	var b []byte
	err := s.q.QueryRowContext(ctx, q, k[:]).Scan(&b)
	if stderrs.Is(err, sql.ErrNoRows) {
		return nil, vs.ErrNotFound
	}
	return b, errors.Wrapf(err, "getting blob %s", k)
}

// Has tells whether the blob with key `k` is present.
func (s *Store) Has(ctx context.Context, k vs.Key) (bool, error) {
	const q = `SELECT COUNT(*) FROM blobs WHERE ref = $1`

	var n int
	err := s.q.QueryRowContext(ctx, q, k[:]).Scan(&n)
	return n > 0, errors.Wrapf(err, "checking blob %s", k)
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, b vs.Blob) (vs.Key, bool, error) {
	k := b.Key()
	added, err := s.PutAt(ctx, k, b)
	return k, added, err
}

// PutAt stores b under k without checking that k is b's key.
func (s *Store) PutAt(ctx context.Context, k vs.Key, b vs.Blob) (bool, error) {
	const q = `INSERT INTO blobs (ref, data) VALUES ($1, $2) ON CONFLICT DO NOTHING`

	res, err := s.q.ExecContext(ctx, q, k[:], []byte(b))
	if err != nil {
		return false, errors.Wrap(err, "inserting blob")
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "counting affected rows")
	}
	return aff > 0, nil
}

// ListKeys produces all blob keys in the store, in lexicographic order.
func (s *Store) ListKeys(ctx context.Context, start vs.Key, f func(vs.Key) error) error {
	const q = `SELECT ref FROM blobs WHERE ref > $1 ORDER BY ref`
	return sqlutil.ForQueryRows(ctx, s.q, q, start[:], func(kb []byte) error {
		return f(vs.KeyFromBytes(kb))
	})
}

// Batch calls f with a Store whose operations all happen in one transaction.
// The transaction commits if f returns nil and rolls back otherwise.
func (s *Store) Batch(ctx context.Context, f func(vs.Store) error) error {
	if _, ok := s.q.(*sql.Tx); ok {
		return f(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = f(&Store{db: s.db, q: tx}); err != nil {
		tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// GetTag gets the key the named tag points to.
func (s *Store) GetTag(ctx context.Context, name string) (vs.Key, error) {
	const q = `SELECT ref FROM tags WHERE name = $1`

	var kb []byte
	err := s.q.QueryRowContext(ctx, q, name).Scan(&kb)
	if stderrs.Is(err, sql.ErrNoRows) {
		return vs.Zero, vs.ErrNotFound
	}
	if err != nil {
		return vs.Zero, errors.Wrapf(err, "getting tag %s", name)
	}
	return vs.KeyFromBytes(kb), nil
}

// ListTags lists the tags in the store in lexicographic order,
// starting after `start`.
func (s *Store) ListTags(ctx context.Context, start string, f func(string, vs.Key) error) error {
	const q = `SELECT name, ref FROM tags WHERE name > $1 ORDER BY name`
	return sqlutil.ForQueryRows(ctx, s.q, q, start, func(name string, kb []byte) error {
		return f(name, vs.KeyFromBytes(kb))
	})
}

// TestAndSet implements vs.TagStore.
// Each case is a single conditional statement,
// so the database serializes concurrent calls.
func (s *Store) TestAndSet(ctx context.Context, name string, old, new *vs.Key) (bool, error) {
	var (
		res sql.Result
		err error
	)
	switch {
	case old == nil && new == nil:
		_, err = s.GetTag(ctx, name)
		if errors.Is(err, vs.ErrNotFound) {
			return true, nil
		}
		return false, err

	case old == nil:
		const q = `INSERT INTO tags (name, ref) VALUES ($1, $2) ON CONFLICT DO NOTHING`
		res, err = s.q.ExecContext(ctx, q, name, new[:])

	case new == nil:
		const q = `DELETE FROM tags WHERE name = $1 AND ref = $2`
		res, err = s.q.ExecContext(ctx, q, name, old[:])

	default:
		const q = `UPDATE tags SET ref = $1 WHERE name = $2 AND ref = $3`
		res, err = s.q.ExecContext(ctx, q, new[:], name, old[:])
	}
	if err != nil {
		return false, errors.Wrapf(err, "updating tag %s", name)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "counting affected rows")
	}
	if aff == 0 {
		return false, nil
	}
	s.Notify(name, old, new)
	return true, nil
}

// Watch implements vs.TagStore.
// Only changes made through this Store are seen.
func (s *Store) Watch(name string, f vs.WatchFunc) func() {
	return s.Add(name, f)
}

func init() {
	store.Register("sqlite3", func(ctx context.Context, conf map[string]interface{}) (vs.Store, error) {
		conn, ok := conf["conn"].(string)
		if !ok {
			return nil, errors.New(`missing "conn" parameter`)
		}
		db, err := sql.Open("sqlite3", conn)
		if err != nil {
			return nil, errors.Wrap(err, "opening db")
		}
		return New(ctx, db)
	})
}
