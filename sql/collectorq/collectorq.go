// Package collectorq persists the per-store queue of components that should be collected.
package collectorq

import (
	"fmt"
	"slices"
	"strings"

	"github.com/filemesh/go-filemesh/common/types"
	"github.com/filemesh/go-filemesh/sql"
)

func decodeEntry(stmt *sql.Statement) types.CollectorEntry {
	var entry types.CollectorEntry
	entry.Seq = types.CollectorSeq(stmt.ColumnInt64(0))
	stmt.ColumnBytes(1, entry.OCID.OID[:])
	entry.OCID.CID = types.CID(stmt.ColumnInt64(2))
	return entry
}

func nextSeq(db sql.Executor, sidx types.SIndex) (types.CollectorSeq, error) {
	next := types.CollectorSeq(1)
	if _, err := db.Exec("select next from collector_seq where sidx = ?1;",
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(sidx))
		}, func(stmt *sql.Statement) bool {
			next = types.CollectorSeq(stmt.ColumnInt64(0))
			return false
		}); err != nil {
		return 0, fmt.Errorf("select next seq %v: %w", sidx, err)
	}
	if _, err := db.Exec(`insert into collector_seq (sidx, next) values (?1, ?2)
	on conflict(sidx) do update set next = ?2;`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(sidx))
			stmt.BindInt64(2, int64(next.PlusOne()))
		}, nil); err != nil {
		return 0, fmt.Errorf("update next seq %v: %w", sidx, err)
	}
	return next, nil
}

// Append makes ocid collectible in the store and returns the sequence assigned to it.
// If ocid is already queued, the old entry is replaced so that it is visited again
// by a traversal that already passed it.
func Append(db sql.Executor, sidx types.SIndex, ocid types.OCID) (types.CollectorSeq, error) {
	if err := Delete(db, sidx, ocid); err != nil {
		return 0, err
	}
	seq, err := nextSeq(db, sidx)
	if err != nil {
		return 0, err
	}
	if _, err := db.Exec(`insert into collector_queue (sidx, seq, oid, cid) values (?1, ?2, ?3, ?4);`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(sidx))
			stmt.BindInt64(2, int64(seq))
			stmt.BindBytes(3, ocid.OID[:])
			stmt.BindInt64(4, int64(ocid.CID))
		}, nil); err != nil {
		return 0, fmt.Errorf("insert %v/%v: %w", sidx, ocid, err)
	}
	return seq, nil
}

// List returns up to limit entries with sequence strictly greater than after, in ascending order.
func List(db sql.Executor, sidx types.SIndex, after types.CollectorSeq, limit int) ([]types.CollectorEntry, error) {
	var entries []types.CollectorEntry
	if _, err := db.Exec(`select seq, oid, cid from collector_queue
	where sidx = ?1 and seq > ?2 order by seq asc limit ?3;`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(sidx))
			stmt.BindInt64(2, int64(after))
			stmt.BindInt64(3, int64(limit))
		}, func(stmt *sql.Statement) bool {
			entries = append(entries, decodeEntry(stmt))
			return true
		}); err != nil {
		return nil, fmt.Errorf("list %v after %d: %w", sidx, after, err)
	}
	return entries, nil
}

// seqsPerStatement keeps the number of bound parameters below the sqlite limit.
const seqsPerStatement = 500

// seqsInClause returns placeholders for num sequences, numbered after the store index.
func seqsInClause(num int) string {
	var sb strings.Builder
	for i := range num {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, "?%d", i+2)
	}
	return sb.String()
}

// DeleteSeqs removes entries with the given sequences.
func DeleteSeqs(db sql.Executor, sidx types.SIndex, seqs []types.CollectorSeq) error {
	for chunk := range slices.Chunk(seqs, seqsPerStatement) {
		query := fmt.Sprintf("delete from collector_queue where sidx = ?1 and seq in (%s);",
			seqsInClause(len(chunk)))
		if _, err := db.Exec(query,
			func(stmt *sql.Statement) {
				stmt.BindInt64(1, int64(sidx))
				for i, seq := range chunk {
					stmt.BindInt64(i+2, int64(seq))
				}
			}, nil); err != nil {
			return fmt.Errorf("delete %v seqs %d..%d: %w", sidx, chunk[0], chunk[len(chunk)-1], err)
		}
	}
	return nil
}

// Delete removes the entry of the ocid if it is queued.
func Delete(db sql.Executor, sidx types.SIndex, ocid types.OCID) error {
	if _, err := db.Exec(`delete from collector_queue where sidx = ?1 and oid = ?2 and cid = ?3;`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(sidx))
			stmt.BindBytes(2, ocid.OID[:])
			stmt.BindInt64(3, int64(ocid.CID))
		}, nil); err != nil {
		return fmt.Errorf("delete %v/%v: %w", sidx, ocid, err)
	}
	return nil
}

// Count returns number of queued entries in the store.
func Count(db sql.Executor, sidx types.SIndex) (int, error) {
	var count int
	if _, err := db.Exec(`select count(*) from collector_queue where sidx = ?1;`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(sidx))
		}, func(stmt *sql.Statement) bool {
			count = stmt.ColumnInt(0)
			return false
		}); err != nil {
		return 0, fmt.Errorf("count %v: %w", sidx, err)
	}
	return count, nil
}

// GetMode returns true if content components are collected in the store.
// Stores without recorded mode collect content.
func GetMode(db sql.Executor, sidx types.SIndex) (bool, error) {
	content := true
	if _, err := db.Exec(`select content from collector_mode where sidx = ?1;`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(sidx))
		}, func(stmt *sql.Statement) bool {
			content = stmt.ColumnInt(0) != 0
			return false
		}); err != nil {
		return false, fmt.Errorf("get mode %v: %w", sidx, err)
	}
	return content, nil
}

// SetMode records whether content components are collected in the store.
func SetMode(db sql.Executor, sidx types.SIndex, content bool) error {
	if _, err := db.Exec(`insert into collector_mode (sidx, content) values (?1, ?2)
	on conflict(sidx) do update set content = ?2;`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(sidx))
			stmt.BindBool(2, content)
		}, nil); err != nil {
		return fmt.Errorf("set mode %v: %w", sidx, err)
	}
	return nil
}

// DeleteStore removes the queue of the store together with its sequence counter and mode.
func DeleteStore(db sql.Executor, sidx types.SIndex) error {
	for _, table := range []string{"collector_queue", "collector_seq", "collector_mode"} {
		if _, err := db.Exec("delete from "+table+" where sidx = ?1;",
			func(stmt *sql.Statement) {
				stmt.BindInt64(1, int64(sidx))
			}, nil); err != nil {
			return fmt.Errorf("delete %s %v: %w", table, sidx, err)
		}
	}
	return nil
}
