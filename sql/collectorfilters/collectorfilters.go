// Package collectorfilters persists durable per-device bloom filters of the collector.
package collectorfilters

import (
	"fmt"

	"github.com/filemesh/go-filemesh/bloom"
	"github.com/filemesh/go-filemesh/common/types"
	"github.com/filemesh/go-filemesh/sql"
)

// Get returns the durable filter of the device or sql.ErrNotFound.
func Get(db sql.Executor, sidx types.SIndex, did types.DID) (*bloom.Filter, error) {
	var (
		filter *bloom.Filter
		derr   error
		blob   sql.Blob
	)
	rows, err := db.Exec(`select filter from collector_filters where sidx = ?1 and did = ?2;`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(sidx))
			stmt.BindBytes(2, did[:])
		}, func(stmt *sql.Statement) bool {
			blob.FromColumn(stmt, 0)
			filter, derr = bloom.FromBytes(blob.Bytes)
			return false
		})
	if err != nil {
		return nil, fmt.Errorf("get %v/%v: %w", sidx, did.ShortString(), err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("get %v/%v: %w", sidx, did.ShortString(), sql.ErrNotFound)
	}
	if derr != nil {
		return nil, fmt.Errorf("decode %v/%v: %w", sidx, did.ShortString(), derr)
	}
	return filter, nil
}

// Set stores the durable filter of the device, replacing the previous one.
func Set(db sql.Executor, sidx types.SIndex, did types.DID, filter *bloom.Filter) error {
	if _, err := db.Exec(`insert into collector_filters (sidx, did, filter) values (?1, ?2, ?3)
	on conflict(sidx, did) do update set filter = ?3;`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(sidx))
			stmt.BindBytes(2, did[:])
			stmt.BindBytes(3, filter.Bytes())
		}, nil); err != nil {
		return fmt.Errorf("set %v/%v: %w", sidx, did.ShortString(), err)
	}
	return nil
}

// Delete removes the durable filter of the device.
func Delete(db sql.Executor, sidx types.SIndex, did types.DID) error {
	if _, err := db.Exec(`delete from collector_filters where sidx = ?1 and did = ?2;`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(sidx))
			stmt.BindBytes(2, did[:])
		}, nil); err != nil {
		return fmt.Errorf("delete %v/%v: %w", sidx, did.ShortString(), err)
	}
	return nil
}

// Devices returns devices with a durable filter in the store.
func Devices(db sql.Executor, sidx types.SIndex) ([]types.DID, error) {
	var dids []types.DID
	if _, err := db.Exec(`select did from collector_filters where sidx = ?1 order by did;`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(sidx))
		}, func(stmt *sql.Statement) bool {
			var did types.DID
			stmt.ColumnBytes(0, did[:])
			dids = append(dids, did)
			return true
		}); err != nil {
		return nil, fmt.Errorf("devices %v: %w", sidx, err)
	}
	return dids, nil
}

// DeleteStore removes every durable filter of the store.
func DeleteStore(db sql.Executor, sidx types.SIndex) error {
	if _, err := db.Exec(`delete from collector_filters where sidx = ?1;`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(sidx))
		}, nil); err != nil {
		return fmt.Errorf("delete store %v: %w", sidx, err)
	}
	return nil
}
