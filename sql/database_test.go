package sql

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func testTables(db Executor) error {
	if _, err := db.Exec(`create table testing1 (
		id varchar primary key,
		field int
	)`, nil, nil); err != nil {
		return err
	}
	return nil
}

func testURI(tb testing.TB) string {
	tb.Helper()
	return "file:" + filepath.Join(tb.TempDir(), "state.sql")
}

func insert(tb testing.TB, db Executor, key string, val int64) {
	tb.Helper()
	_, err := db.Exec("insert into testing1(id, field) values (?1, ?2)", func(stmt *Statement) {
		stmt.BindText(1, key)
		stmt.BindInt64(2, val)
	}, nil)
	require.NoError(tb, err)
}

func exists(tb testing.TB, db Executor, key string) bool {
	tb.Helper()
	rows, err := db.Exec("select 1 from testing1 where id = ?1", func(stmt *Statement) {
		stmt.BindText(1, key)
	}, nil)
	require.NoError(tb, err)
	return rows > 0
}

func TestTransactionIsolation(t *testing.T) {
	db := InMemory(WithMigrations(testTables))

	tx, err := db.Begin(context.TODO())
	require.NoError(t, err)

	key := "dsada"
	insert(t, tx, key, 20)
	require.True(t, exists(t, tx, key))
	require.NoError(t, tx.Release())
	require.False(t, exists(t, db, key))
}

func TestObjectExists(t *testing.T) {
	db := InMemory(WithMigrations(testTables))
	insert(t, db, "a", 1)
	_, err := db.Exec("insert into testing1(id, field) values (?1, ?2)", func(stmt *Statement) {
		stmt.BindText(1, "a")
		stmt.BindInt64(2, 2)
	}, nil)
	require.ErrorIs(t, err, ErrObjectExists)
}

func TestCommitHooks(t *testing.T) {
	db := InMemory(WithMigrations(testTables))
	commits := testutil.ToFloat64(transactions.WithLabelValues(outcomeCommit))

	var order []string
	require.NoError(t, db.WithTx(context.Background(), func(tx *Tx) error {
		insert(t, tx, "a", 1)
		tx.OnCommit(func() { order = append(order, "commit1") })
		tx.OnCommit(func() { order = append(order, "commit2") })
		tx.OnRollback(func() { order = append(order, "rollback") })
		return nil
	}))
	require.Equal(t, []string{"commit1", "commit2"}, order)
	require.True(t, exists(t, db, "a"))
	require.Equal(t, commits+1, testutil.ToFloat64(transactions.WithLabelValues(outcomeCommit)))
}

func TestRollbackHooksReverseOrder(t *testing.T) {
	db := InMemory(WithMigrations(testTables))
	rollbacks := testutil.ToFloat64(transactions.WithLabelValues(outcomeRollback))

	var order []string
	errAbort := errors.New("abort")
	err := db.WithTx(context.Background(), func(tx *Tx) error {
		insert(t, tx, "a", 1)
		tx.OnRollback(func() { order = append(order, "first") })
		tx.OnRollback(func() { order = append(order, "second") })
		tx.OnCommit(func() { order = append(order, "commit") })
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)
	require.Equal(t, []string{"second", "first"}, order)
	require.False(t, exists(t, db, "a"))
	require.Equal(t, rollbacks+1, testutil.ToFloat64(transactions.WithLabelValues(outcomeRollback)))
}

func TestReleaseIdempotent(t *testing.T) {
	db := InMemory(WithMigrations(testTables))
	tx, err := db.Begin(context.Background())
	require.NoError(t, err)

	calls := 0
	tx.OnRollback(func() { calls++ })
	require.NoError(t, tx.Release())
	require.NoError(t, tx.Release())
	require.Equal(t, 1, calls)
}

func TestEmbeddedMigrations(t *testing.T) {
	uri := testURI(t)
	db, err := Open(uri)
	require.NoError(t, err)

	version, err := UserVersion(db)
	require.NoError(t, err)
	require.Equal(t, 2, version)

	for _, table := range []string{
		"collector_queue", "collector_seq", "collector_mode", "collector_filters",
		"sender_filters", "sender_devices", "known_missing", "expelled", "stores",
	} {
		rows, err := db.Exec("select name from sqlite_master where type = 'table' and name = ?1",
			func(stmt *Statement) { stmt.BindText(1, table) }, nil)
		require.NoError(t, err)
		require.Equal(t, 1, rows, table)
	}
	require.NoError(t, db.Close())

	// reopening doesn't apply migrations twice
	db, err = Open(uri)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestQueryCount(t *testing.T) {
	db := InMemory(WithMigrations(testTables))
	before := db.QueryCount()
	insert(t, db, "a", 1)
	exists(t, db, "a")
	require.Equal(t, before+2, db.QueryCount())
}

func TestParseMigrations(t *testing.T) {
	migrations, err := parseMigrations(fstest.MapFS{
		"0002_second.sql": {Data: []byte("create table b (id int);\ncreate table c (id int);\n")},
		"0001_first.sql":  {Data: []byte("create table a (id int);")},
		"README.md":       {Data: []byte("ignored")},
	})
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	require.Equal(t, 1, migrations[0].version)
	require.Equal(t, 2, migrations[1].version)
	require.Len(t, migrations[1].statements, 2)

	db := InMemory(WithMigrations(func(db Executor) error {
		return applyMigrations(db, migrations[:1])
	}))
	require.NoError(t, applyMigrations(db, migrations))
	version, err := UserVersion(db)
	require.NoError(t, err)
	require.Equal(t, 2, version)
	// applied migrations are skipped
	require.NoError(t, applyMigrations(db, migrations))

	_, err = parseMigrations(fstest.MapFS{"first.sql": {Data: []byte("select 1;")}})
	require.Error(t, err)
	_, err = parseMigrations(fstest.MapFS{
		"0001_a.sql": {Data: []byte("select 1;")},
		"0001_b.sql": {Data: []byte("select 1;")},
	})
	require.ErrorContains(t, err, "same version")
}
