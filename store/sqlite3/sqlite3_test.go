package sqlite3

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/pkg/errors"

	"github.com/bobg/vs"
	"github.com/bobg/vs/testutil"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	err := withTestStore(ctx, func(s *Store) error {
		testutil.ReadWrite(ctx, t, s)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestTags(t *testing.T) {
	ctx := context.Background()
	err := withTestStore(ctx, func(s *Store) error {
		testutil.Tags(ctx, t, s)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestBatch(t *testing.T) {
	ctx := context.Background()
	err := withTestStore(ctx, func(s *Store) error {
		committed := vs.Blob("committed")
		err := vs.Batch(ctx, s, func(bs vs.Store) error {
			_, _, err := bs.Put(ctx, committed)
			return err
		})
		if err != nil {
			return err
		}
		if _, err := s.Get(ctx, committed.Key()); err != nil {
			t.Errorf("blob from committed batch: %v", err)
		}

		rolledBack := vs.Blob("rolled back")
		boom := errors.New("boom")
		err = vs.Batch(ctx, s, func(bs vs.Store) error {
			if _, _, err := bs.Put(ctx, rolledBack); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Errorf("got error %v, want boom", err)
		}
		if _, err := s.Get(ctx, rolledBack.Key()); !errors.Is(err, vs.ErrNotFound) {
			t.Errorf("got error %v for blob from failed batch, want ErrNotFound", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func withTestStore(ctx context.Context, fn func(*Store) error) error {
	f, err := os.CreateTemp("", "vssqlite3test")
	if err != nil {
		return err
	}

	tmpfile := f.Name()
	f.Close()
	defer os.Remove(tmpfile)

	db, err := sql.Open("sqlite3", tmpfile)
	if err != nil {
		return err
	}
	defer db.Close()

	s, err := New(ctx, db)
	if err != nil {
		return err
	}

	return fn(s)
}
