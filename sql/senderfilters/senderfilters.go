// Package senderfilters persists the sender filter chain of a store and
// the chain positions acknowledged by remote devices.
package senderfilters

import (
	"fmt"

	"github.com/filemesh/go-filemesh/bloom"
	"github.com/filemesh/go-filemesh/common/types"
	"github.com/filemesh/go-filemesh/sql"
)

// Entry is a filter of the chain together with its index.
type Entry struct {
	Index  types.SenderFilterIndex
	Filter *bloom.Filter
}

func decodeFilter(stmt *sql.Statement, col int) (*bloom.Filter, error) {
	var blob sql.Blob
	blob.FromColumn(stmt, col)
	return bloom.FromBytes(blob.Bytes)
}

// GetFilter returns the filter at idx or sql.ErrNotFound.
func GetFilter(db sql.Executor, sidx types.SIndex, idx types.SenderFilterIndex) (*bloom.Filter, error) {
	var (
		filter *bloom.Filter
		derr   error
	)
	rows, err := db.Exec(`select filter from sender_filters where sidx = ?1 and idx = ?2;`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(sidx))
			stmt.BindInt64(2, int64(idx))
		}, func(stmt *sql.Statement) bool {
			filter, derr = decodeFilter(stmt, 0)
			return false
		})
	if err != nil {
		return nil, fmt.Errorf("get filter %v/%d: %w", sidx, idx, err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("get filter %v/%d: %w", sidx, idx, sql.ErrNotFound)
	}
	if derr != nil {
		return nil, fmt.Errorf("decode filter %v/%d: %w", sidx, idx, derr)
	}
	return filter, nil
}

// SetFilter stores filter at idx, replacing the previous one.
func SetFilter(db sql.Executor, sidx types.SIndex, idx types.SenderFilterIndex, filter *bloom.Filter) error {
	if _, err := db.Exec(`insert into sender_filters (sidx, idx, filter) values (?1, ?2, ?3)
	on conflict(sidx, idx) do update set filter = ?3;`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(sidx))
			stmt.BindInt64(2, int64(idx))
			stmt.BindBytes(3, filter.Bytes())
		}, nil); err != nil {
		return fmt.Errorf("set filter %v/%d: %w", sidx, idx, err)
	}
	return nil
}

// DeleteFilter removes the filter at idx.
func DeleteFilter(db sql.Executor, sidx types.SIndex, idx types.SenderFilterIndex) error {
	if _, err := db.Exec(`delete from sender_filters where sidx = ?1 and idx = ?2;`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(sidx))
			stmt.BindInt64(2, int64(idx))
		}, nil); err != nil {
		return fmt.Errorf("delete filter %v/%d: %w", sidx, idx, err)
	}
	return nil
}

// Range returns filters with index greater or equal to from, in ascending order.
func Range(db sql.Executor, sidx types.SIndex, from types.SenderFilterIndex) ([]Entry, error) {
	var (
		entries []Entry
		derr    error
	)
	if _, err := db.Exec(`select idx, filter from sender_filters
	where sidx = ?1 and idx >= ?2 order by idx asc;`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(sidx))
			stmt.BindInt64(2, int64(from))
		}, func(stmt *sql.Statement) bool {
			var filter *bloom.Filter
			filter, derr = decodeFilter(stmt, 1)
			if derr != nil {
				return false
			}
			entries = append(entries, Entry{
				Index:  types.SenderFilterIndex(stmt.ColumnInt64(0)),
				Filter: filter,
			})
			return true
		}); err != nil {
		return nil, fmt.Errorf("range %v from %d: %w", sidx, from, err)
	}
	if derr != nil {
		return nil, fmt.Errorf("range %v from %d: %w", sidx, from, derr)
	}
	return entries, nil
}

// Indexes returns indexes of the chain that are greater or equal to from, in ascending order.
func Indexes(db sql.Executor, sidx types.SIndex, from types.SenderFilterIndex) ([]types.SenderFilterIndex, error) {
	var indexes []types.SenderFilterIndex
	if _, err := db.Exec(`select idx from sender_filters where sidx = ?1 and idx >= ?2 order by idx asc;`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(sidx))
			stmt.BindInt64(2, int64(from))
		}, func(stmt *sql.Statement) bool {
			indexes = append(indexes, types.SenderFilterIndex(stmt.ColumnInt64(0)))
			return true
		}); err != nil {
		return nil, fmt.Errorf("indexes %v from %d: %w", sidx, from, err)
	}
	return indexes, nil
}

func selectIndex(db sql.Executor, query string, enc sql.Encoder) (types.SenderFilterIndex, error) {
	var (
		idx   types.SenderFilterIndex
		found bool
	)
	if _, err := db.Exec(query, enc, func(stmt *sql.Statement) bool {
		if !sql.IsNull(stmt, 0) {
			idx = types.SenderFilterIndex(stmt.ColumnInt64(0))
			found = true
		}
		return false
	}); err != nil {
		return 0, err
	}
	if !found {
		return 0, sql.ErrNotFound
	}
	return idx, nil
}

// LastIndex returns the highest index of the chain or sql.ErrNotFound if the chain is empty.
func LastIndex(db sql.Executor, sidx types.SIndex) (types.SenderFilterIndex, error) {
	idx, err := selectIndex(db, `select max(idx) from sender_filters where sidx = ?1;`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(sidx))
		})
	if err != nil {
		return 0, fmt.Errorf("last index %v: %w", sidx, err)
	}
	return idx, nil
}

// Predecessor returns the highest index of the chain that is lower than idx.
func Predecessor(db sql.Executor, sidx types.SIndex, idx types.SenderFilterIndex) (types.SenderFilterIndex, error) {
	prev, err := selectIndex(db, `select max(idx) from sender_filters where sidx = ?1 and idx < ?2;`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(sidx))
			stmt.BindInt64(2, int64(idx))
		})
	if err != nil {
		return 0, fmt.Errorf("predecessor %v/%d: %w", sidx, idx, err)
	}
	return prev, nil
}

// GetDeviceIndex returns the index recorded for the device or sql.ErrNotFound.
func GetDeviceIndex(db sql.Executor, sidx types.SIndex, did types.DID) (types.SenderFilterIndex, error) {
	idx, err := selectIndex(db, `select idx from sender_devices where sidx = ?1 and did = ?2;`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(sidx))
			stmt.BindBytes(2, did[:])
		})
	if err != nil {
		return 0, fmt.Errorf("device index %v/%v: %w", sidx, did.ShortString(), err)
	}
	return idx, nil
}

// SetDeviceIndex records idx for the device.
func SetDeviceIndex(db sql.Executor, sidx types.SIndex, did types.DID, idx types.SenderFilterIndex) error {
	if _, err := db.Exec(`insert into sender_devices (sidx, did, idx) values (?1, ?2, ?3)
	on conflict(sidx, did) do update set idx = ?3;`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(sidx))
			stmt.BindBytes(2, did[:])
			stmt.BindInt64(3, int64(idx))
		}, nil); err != nil {
		return fmt.Errorf("set device index %v/%v: %w", sidx, did.ShortString(), err)
	}
	return nil
}

// CountDevicesAt returns the number of devices that have idx recorded.
func CountDevicesAt(db sql.Executor, sidx types.SIndex, idx types.SenderFilterIndex) (int, error) {
	var count int
	if _, err := db.Exec(`select count(*) from sender_devices where sidx = ?1 and idx = ?2;`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(sidx))
			stmt.BindInt64(2, int64(idx))
		}, func(stmt *sql.Statement) bool {
			count = stmt.ColumnInt(0)
			return false
		}); err != nil {
		return 0, fmt.Errorf("count devices %v/%d: %w", sidx, idx, err)
	}
	return count, nil
}

// DeleteStore removes the chain and device positions of the store.
func DeleteStore(db sql.Executor, sidx types.SIndex) error {
	for _, table := range []string{"sender_filters", "sender_devices"} {
		if _, err := db.Exec("delete from "+table+" where sidx = ?1;",
			func(stmt *sql.Statement) {
				stmt.BindInt64(1, int64(sidx))
			}, nil); err != nil {
			return fmt.Errorf("delete %s %v: %w", table, sidx, err)
		}
	}
	return nil
}
