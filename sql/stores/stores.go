// Package stores persists indexes of the synchronized stores.
package stores

import (
	"fmt"
	"time"

	"github.com/filemesh/go-filemesh/common/types"
	"github.com/filemesh/go-filemesh/sql"
)

// Add records the store. Returns sql.ErrObjectExists if the store is already recorded.
func Add(db sql.Executor, sidx types.SIndex, created time.Time) error {
	if _, err := db.Exec(`insert into stores (sidx, created) values (?1, ?2);`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(sidx))
			stmt.BindInt64(2, created.UnixNano())
		}, nil); err != nil {
		return fmt.Errorf("add %v: %w", sidx, err)
	}
	return nil
}

// Delete removes the store.
func Delete(db sql.Executor, sidx types.SIndex) error {
	if _, err := db.Exec(`delete from stores where sidx = ?1;`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(sidx))
		}, nil); err != nil {
		return fmt.Errorf("delete %v: %w", sidx, err)
	}
	return nil
}

// Has returns true if the store is recorded.
func Has(db sql.Executor, sidx types.SIndex) (bool, error) {
	rows, err := db.Exec(`select 1 from stores where sidx = ?1;`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(sidx))
		}, nil)
	if err != nil {
		return false, fmt.Errorf("has %v: %w", sidx, err)
	}
	return rows > 0, nil
}

// All returns recorded stores in ascending order.
func All(db sql.Executor) ([]types.SIndex, error) {
	var all []types.SIndex
	if _, err := db.Exec(`select sidx from stores order by sidx;`, nil,
		func(stmt *sql.Statement) bool {
			all = append(all, types.SIndex(stmt.ColumnInt64(0)))
			return true
		}); err != nil {
		return nil, fmt.Errorf("all stores: %w", err)
	}
	return all, nil
}
