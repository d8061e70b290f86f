package sql

import (
	"fmt"

	sqlite "github.com/go-llsqlite/crawshaw"
)

// Tx is a transaction bound to a single pooled connection.
type Tx struct {
	db   *Database
	conn *sqlite.Conn

	committed bool
	released  bool
	err       error

	onCommit   []func()
	onRollback []func()
}

var _ Transaction = (*Tx)(nil)

// OnCommit registers hook that is executed after successful commit.
func (tx *Tx) OnCommit(hook func()) {
	tx.onCommit = append(tx.onCommit, hook)
}

// OnRollback registers hook that is executed if transaction is not committed.
func (tx *Tx) OnRollback(hook func()) {
	tx.onRollback = append(tx.onRollback, hook)
}

// Exec statement within the transaction.
func (tx *Tx) Exec(query string, encoder Encoder, decoder Decoder) (int, error) {
	return tx.db.exec(tx.conn, query, encoder, decoder)
}

// Commit transaction and run commit hooks.
func (tx *Tx) Commit() error {
	if _, tx.err = tx.conn.Prep("COMMIT;").Step(); tx.err != nil {
		return fmt.Errorf("commit: %w", tx.err)
	}
	tx.committed = true
	transactions.WithLabelValues(outcomeCommit).Inc()
	hooks := tx.onCommit
	tx.onCommit, tx.onRollback = nil, nil
	for _, hook := range hooks {
		hook()
	}
	return nil
}

// Release returns the connection to the pool. A transaction that wasn't
// committed is rolled back and its rollback hooks are executed.
// Every transaction must be released, repeated calls are no-op.
func (tx *Tx) Release() error {
	if tx.released {
		return tx.err
	}
	tx.released = true
	defer tx.db.pool.Put(tx.conn)
	if tx.committed {
		return nil
	}
	_, tx.err = tx.conn.Prep("ROLLBACK;").Step()
	transactions.WithLabelValues(outcomeRollback).Inc()
	hooks := tx.onRollback
	tx.onCommit, tx.onRollback = nil, nil
	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
	return tx.err
}

// Blob is a reusable buffer for reading blob columns.
type Blob struct {
	Bytes []byte
}

// FromColumn copies blob of the column of the current row into the buffer.
func (b *Blob) FromColumn(stmt *Statement, col int) {
	n := stmt.ColumnLen(col)
	if cap(b.Bytes) < n {
		b.Bytes = make([]byte, n)
	}
	b.Bytes = b.Bytes[:n]
	if n > 0 {
		stmt.ColumnBytes(col, b.Bytes)
	}
}

// IsNull returns true if the column of the current row is null.
func IsNull(stmt *Statement, col int) bool {
	return stmt.ColumnType(col) == sqlite.SQLITE_NULL
}
