package migrations

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSchema = `
-- accounts that were seen at least once
create table if not exists account (
    name text not null primary key
);

create index if not exists account_name on account(name);
`

func TestSplitStatements(t *testing.T) {
	stmts := SplitStatements(testSchema)
	require.Len(t, stmts, 2)
	require.Contains(t, stmts[0], "create table if not exists account")
	require.NotContains(t, stmts[0], "--")
	require.Equal(t, "create index if not exists account_name on account(name)", stmts[1])

	require.Empty(t, SplitStatements("\n-- nothing\n;\n"))
}

func TestMigrateIsIdempotent(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "nested", "state.db"))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db, testSchema))
	require.NoError(t, Migrate(ctx, db, testSchema))

	_, err = db.ExecContext(ctx, "insert into account(name) values (?)", "ivanov")
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "select count(*) from account").Scan(&count))
	require.Equal(t, 1, count)
}

func TestMigrateRejectsInvalidSchema(t *testing.T) {
	db, err := OpenDB(":memory:")
	require.NoError(t, err)
	defer db.Close()

	err = Migrate(context.Background(), db, "create tabel broken (id int);")
	require.Error(t, err)
	require.Contains(t, err.Error(), "migrate db")
}
