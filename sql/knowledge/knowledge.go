// Package knowledge persists which components are known to be missing locally
// and which objects were expelled from a store.
package knowledge

import (
	"fmt"

	"github.com/filemesh/go-filemesh/common/types"
	"github.com/filemesh/go-filemesh/sql"
)

// MarkMissing records that a newer remote version of the component exists.
func MarkMissing(db sql.Executor, socid types.SOCID) error {
	if _, err := db.Exec(`insert into known_missing (sidx, oid, cid) values (?1, ?2, ?3)
	on conflict do nothing;`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(socid.SIndex))
			stmt.BindBytes(2, socid.OID[:])
			stmt.BindInt64(3, int64(socid.CID))
		}, nil); err != nil {
		return fmt.Errorf("mark missing %v: %w", socid, err)
	}
	return nil
}

// ClearMissing removes the record created by MarkMissing.
func ClearMissing(db sql.Executor, socid types.SOCID) error {
	if _, err := db.Exec(`delete from known_missing where sidx = ?1 and oid = ?2 and cid = ?3;`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(socid.SIndex))
			stmt.BindBytes(2, socid.OID[:])
			stmt.BindInt64(3, int64(socid.CID))
		}, nil); err != nil {
		return fmt.Errorf("clear missing %v: %w", socid, err)
	}
	return nil
}

// IsMissing returns true if the component has a known remote version that is missing locally.
func IsMissing(db sql.Executor, socid types.SOCID) (bool, error) {
	rows, err := db.Exec(`select 1 from known_missing where sidx = ?1 and oid = ?2 and cid = ?3;`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(socid.SIndex))
			stmt.BindBytes(2, socid.OID[:])
			stmt.BindInt64(3, int64(socid.CID))
		}, nil)
	if err != nil {
		return false, fmt.Errorf("is missing %v: %w", socid, err)
	}
	return rows > 0, nil
}

// Expel records that the object must not be collected in the store.
func Expel(db sql.Executor, sidx types.SIndex, oid types.OID) error {
	if _, err := db.Exec(`insert into expelled (sidx, oid) values (?1, ?2) on conflict do nothing;`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(sidx))
			stmt.BindBytes(2, oid[:])
		}, nil); err != nil {
		return fmt.Errorf("expel %v/%v: %w", sidx, oid.ShortString(), err)
	}
	return nil
}

// Readmit removes the record created by Expel.
func Readmit(db sql.Executor, sidx types.SIndex, oid types.OID) error {
	if _, err := db.Exec(`delete from expelled where sidx = ?1 and oid = ?2;`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(sidx))
			stmt.BindBytes(2, oid[:])
		}, nil); err != nil {
		return fmt.Errorf("readmit %v/%v: %w", sidx, oid.ShortString(), err)
	}
	return nil
}

// IsExpelled returns true if the object was expelled from the store.
func IsExpelled(db sql.Executor, sidx types.SIndex, oid types.OID) (bool, error) {
	rows, err := db.Exec(`select 1 from expelled where sidx = ?1 and oid = ?2;`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(sidx))
			stmt.BindBytes(2, oid[:])
		}, nil)
	if err != nil {
		return false, fmt.Errorf("is expelled %v/%v: %w", sidx, oid.ShortString(), err)
	}
	return rows > 0, nil
}

// DeleteStore removes knowledge of the store.
func DeleteStore(db sql.Executor, sidx types.SIndex) error {
	for _, table := range []string{"known_missing", "expelled"} {
		if _, err := db.Exec("delete from "+table+" where sidx = ?1;",
			func(stmt *sql.Statement) {
				stmt.BindInt64(1, int64(sidx))
			}, nil); err != nil {
			return fmt.Errorf("delete %s %v: %w", table, sidx, err)
		}
	}
	return nil
}
