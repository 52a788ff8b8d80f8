package pg

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"

	"github.com/bobg/vs/testutil"
)

func TestStore(t *testing.T) {
	withStore(t, func(ctx context.Context, store *Store) {
		testutil.ReadWrite(ctx, t, store)
	})
}

func TestTags(t *testing.T) {
	withStore(t, func(ctx context.Context, store *Store) {
		if _, err := store.db.ExecContext(ctx, `DELETE FROM tags`); err != nil {
			t.Fatal(err)
		}
		testutil.Tags(ctx, t, store)
	})
}

const connVar = "VS_PG_TESTING_CONN"

func withStore(t *testing.T, f func(context.Context, *Store)) {
	connstr := os.Getenv(connVar)
	if connstr == "" {
		t.Skipf("to run %s, set %s to a valid Postgresql connection string", t.Name(), connVar)
	}

	db, err := sql.Open("postgres", connstr)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()
	store, err := New(ctx, db)
	if err != nil {
		t.Fatal(err)
	}

	f(ctx, store)
}
