// Package sql is a thin layer over a pool of sqlite connections that holds the
// persisted state of filemesh stores.
package sql

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	sqlite "github.com/go-llsqlite/crawshaw"
	"github.com/go-llsqlite/crawshaw/sqlitex"
	"go.uber.org/zap"
)

var (
	// ErrNoConnection is returned if pooled connection is not available.
	ErrNoConnection = errors.New("database: no free connection")
	// ErrNotFound is returned if requested record is not found.
	ErrNotFound = errors.New("database: not found")
	// ErrObjectExists is returned if a primary key or unique constraint rejected the row.
	ErrObjectExists = errors.New("database: object exists")
)

// Executor executes a single statement.
type Executor interface {
	Exec(string, Encoder, Decoder) (int, error)
}

// Transaction is an Executor that allows to attach side effects to the outcome
// of the transaction.
//
// In-memory state that mirrors rows written in the transaction registers a
// rollback hook that restores the previous value if the transaction is aborted.
type Transaction interface {
	Executor
	// OnCommit registers hook that is executed after transaction was committed.
	OnCommit(func())
	// OnRollback registers hook that is executed if transaction is released without commit.
	// Hooks are executed in the reverse order of registration.
	OnRollback(func())
}

// Statement is an sqlite statement.
type Statement = sqlite.Stmt

// Encoder binds parameters of the statement, e.g.
//
//	select filter from collector_filters where sidx = ?1 and did = ?2;
type Encoder func(*Statement)

// Decoder consumes a row. Returning false stops the iteration.
type Decoder func(*Statement) bool

// Migrations bring the schema up to date.
type Migrations func(Executor) error

type conf struct {
	fresh       bool
	connections int
	latency     bool
	migrations  Migrations
	logger      *zap.Logger
}

// Opt for configuring database.
type Opt func(c *conf)

// WithConnections overwrites number of pooled connections.
func WithConnections(n int) Opt {
	return func(c *conf) {
		c.connections = n
	}
}

// WithLogger specifies logger for the database.
func WithLogger(logger *zap.Logger) Opt {
	return func(c *conf) {
		c.logger = logger
	}
}

// WithMigrations replaces embedded migrations.
func WithMigrations(migrations Migrations) Opt {
	return func(c *conf) {
		c.migrations = migrations
	}
}

// WithLatencyMetering enables a histogram of the latency of every query.
func WithLatencyMetering(enable bool) Opt {
	return func(c *conf) {
		c.latency = enable
	}
}

// InMemory creates a database that lives as long as its only connection.
// Panics on error, meant for tests.
func InMemory(opts ...Opt) *Database {
	opts = append(opts, WithConnections(1), func(c *conf) { c.fresh = true })
	db, err := Open("file::memory:?mode=memory", opts...)
	if err != nil {
		panic(err)
	}
	return db
}

// Open database at uri and apply migrations.
//
// File databases are opened in WAL mode.
// https://sqlite.org/wal.html
func Open(uri string, opts ...Opt) (*Database, error) {
	cfg := &conf{
		connections: 16,
		migrations:  embeddedMigrations,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	var flags sqlite.OpenFlags
	if !cfg.fresh {
		flags = sqlite.SQLITE_OPEN_READWRITE |
			sqlite.SQLITE_OPEN_CREATE |
			sqlite.SQLITE_OPEN_WAL |
			sqlite.SQLITE_OPEN_URI |
			sqlite.SQLITE_OPEN_NOMUTEX
	}
	pool, err := sqlitex.Open(uri, flags, cfg.connections)
	if err != nil {
		return nil, fmt.Errorf("open db %s: %w", uri, err)
	}
	db := &Database{pool: pool, metered: cfg.latency}
	if cfg.migrations == nil {
		return db, nil
	}
	cfg.logger.Debug("running migrations", zap.String("uri", uri))
	if err := db.WithTx(context.Background(), func(tx *Tx) error {
		return cfg.migrations(tx)
	}); err != nil {
		return nil, errors.Join(fmt.Errorf("migrate %s: %w", uri, err), db.Close())
	}
	return db, nil
}

// Database is a pool of connections to the same sqlite database.
type Database struct {
	pool    *sqlitex.Pool
	metered bool
	queries atomic.Int64

	mu     sync.Mutex
	closed bool
}

// Begin starts a deferred transaction. The transaction must be released.
//
// https://www.sqlite.org/lang_transaction.html
func (db *Database) Begin(ctx context.Context) (*Tx, error) {
	conn := db.pool.Get(ctx)
	if conn == nil {
		return nil, ErrNoConnection
	}
	if _, err := conn.Prep("BEGIN;").Step(); err != nil {
		db.pool.Put(conn)
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &Tx{db: db, conn: conn}, nil
}

// WithTx executes fn within a transaction. Transaction is committed only if fn
// doesn't return an error.
func (db *Database) WithTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Release()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Exec statement outside of a transaction, on any connection from the pool.
// It blocks until a connection is available.
func (db *Database) Exec(query string, encoder Encoder, decoder Decoder) (int, error) {
	conn := db.pool.Get(context.Background())
	if conn == nil {
		return 0, ErrNoConnection
	}
	defer db.pool.Put(conn)
	return db.exec(conn, query, encoder, decoder)
}

// Close closes all pooled connections.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	if err := db.pool.Close(); err != nil {
		return fmt.Errorf("close pool: %w", err)
	}
	db.closed = true
	return nil
}

// QueryCount returns the number of executed statements, including failed
// ones. Statements that begin or end transactions are not counted.
func (db *Database) QueryCount() int {
	return int(db.queries.Load())
}

func (db *Database) exec(conn *sqlite.Conn, query string, encoder Encoder, decoder Decoder) (int, error) {
	db.queries.Add(1)
	if db.metered {
		defer func(start time.Time) {
			queryDuration.WithLabelValues(query).Observe(float64(time.Since(start)))
		}(time.Now())
	}
	stmt, err := conn.Prepare(query)
	if err != nil {
		return 0, fmt.Errorf("prepare %s: %w", query, err)
	}
	if encoder != nil {
		encoder(stmt)
	}
	defer stmt.ClearBindings()

	for rows := 0; ; rows++ {
		row, err := stmt.Step()
		switch code := sqlite.ErrCode(err); {
		case code == sqlite.SQLITE_CONSTRAINT_PRIMARYKEY, code == sqlite.SQLITE_CONSTRAINT_UNIQUE:
			return 0, ErrObjectExists
		case err != nil:
			return 0, fmt.Errorf("step %d: %w", rows, err)
		case !row:
			return rows, nil
		case decoder != nil && !decoder(stmt):
			if err := stmt.Reset(); err != nil {
				return rows + 1, fmt.Errorf("reset statement: %w", err)
			}
			return rows + 1, nil
		}
	}
}
