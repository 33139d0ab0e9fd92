package basic

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	core "gocqrs/data/db"
)

func TestDB_ExecQueryAndTx(t *testing.T) {
	ctx := context.Background()
	db, err := New(core.DBConfig{Driver: "sqlite", Database: ":memory:", MaxOpenConns: 1})
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, "sqlite", db.GetDialectName())

	_, err = db.Exec(ctx, `CREATE TABLE kv (k TEXT PRIMARY KEY, v INTEGER NOT NULL)`)
	require.NoError(t, err)

	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, `INSERT INTO kv (k, v) VALUES (?, ?)`, "a", 1)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	var count int
	require.NoError(t, db.QueryRow(ctx, `SELECT COUNT(*) FROM kv`).Scan(&count))
	assert.Equal(t, 0, count)

	tx, err = db.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, `INSERT INTO kv (k, v) VALUES (?, ?)`, "a", 1)
	require.NoError(t, err)
	_, err = tx.Begin(ctx)
	assert.Error(t, err)
	require.NoError(t, tx.Commit())
	assert.NoError(t, tx.Rollback(), "rollback after commit is a no-op")

	rows, err := db.Query(ctx, `SELECT k, v FROM kv`)
	require.NoError(t, err)
	defer rows.Close()
	require.True(t, rows.Next())
	var k string
	var v int
	require.NoError(t, rows.Scan(&k, &v))
	assert.Equal(t, "a", k)
	assert.Equal(t, 1, v)
	assert.False(t, rows.Next())
	assert.NoError(t, rows.Err())
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, ":memory:?_txlock=immediate&_pragma=busy_timeout(5000)", SQLiteDSN(":memory:", 0))
	assert.Equal(t, "bank.db?cache=shared&_txlock=immediate&_pragma=busy_timeout(250)", SQLiteDSN("bank.db?cache=shared", 250))
	assert.Equal(t, "bank.db?_txlock=deferred&_pragma=busy_timeout(5000)", SQLiteDSN("bank.db?_txlock=deferred", 0))
	assert.Equal(t, "x.db?_pragma=busy_timeout(10)&_txlock=exclusive", SQLiteDSN("x.db?_pragma=busy_timeout(10)&_txlock=exclusive", 0))
}

func TestDB_ConcurrentWriteTransactionsQueue(t *testing.T) {
	ctx := context.Background()
	db, err := New(core.DBConfig{Driver: "sqlite", Database: filepath.Join(t.TempDir(), "kv.db"), MaxOpenConns: 8})
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(ctx, `CREATE TABLE kv (k TEXT PRIMARY KEY, v INTEGER NOT NULL)`)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx, err := db.Begin(ctx)
			if err != nil {
				errs <- err
				return
			}
			defer tx.Rollback()
			var n int
			if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM kv`).Scan(&n); err != nil {
				errs <- err
				return
			}
			if _, err := tx.Exec(ctx, `INSERT INTO kv (k, v) VALUES (?, ?)`, fmt.Sprintf("k%d", i), n); err != nil {
				errs <- err
				return
			}
			errs <- tx.Commit()
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	var count int
	require.NoError(t, db.QueryRow(ctx, `SELECT COUNT(*) FROM kv`).Scan(&count))
	assert.Equal(t, 16, count)
}
