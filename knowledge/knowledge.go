// Package knowledge tracks components that have newer remote versions than the local ones.
package knowledge

import (
	"fmt"

	"github.com/filemesh/go-filemesh/common/types"
	"github.com/filemesh/go-filemesh/sql"
	"github.com/filemesh/go-filemesh/sql/collectorq"
	"github.com/filemesh/go-filemesh/sql/knowledge"
)

// SkipRule skips components that are not known to be missing locally and
// components of expelled objects.
type SkipRule struct{}

// ShouldSkip returns true if the component must not be collected.
func (SkipRule) ShouldSkip(db sql.Executor, socid types.SOCID) (bool, error) {
	expelled, err := knowledge.IsExpelled(db, socid.SIndex, socid.OID)
	if err != nil {
		return false, err
	}
	if expelled {
		return true, nil
	}
	missing, err := knowledge.IsMissing(db, socid)
	if err != nil {
		return false, err
	}
	return !missing, nil
}

// Learn records that a newer remote version of the component exists and makes
// the component collectible.
func Learn(tx sql.Executor, socid types.SOCID) (types.CollectorSeq, error) {
	if err := knowledge.MarkMissing(tx, socid); err != nil {
		return 0, err
	}
	seq, err := collectorq.Append(tx, socid.SIndex, socid.OCID)
	if err != nil {
		return 0, fmt.Errorf("learn %v: %w", socid, err)
	}
	return seq, nil
}

// Collected records that the component was downloaded.
func Collected(tx sql.Executor, socid types.SOCID) error {
	if err := knowledge.ClearMissing(tx, socid); err != nil {
		return err
	}
	return collectorq.Delete(tx, socid.SIndex, socid.OCID)
}

// Expel excludes the object from collection in the store.
func Expel(tx sql.Executor, sidx types.SIndex, oid types.OID) error {
	return knowledge.Expel(tx, sidx, oid)
}

// Readmit makes the object collectible again. Components that are still missing
// are appended to the collector queue.
func Readmit(tx sql.Executor, sidx types.SIndex, oid types.OID, cids ...types.CID) error {
	if err := knowledge.Readmit(tx, sidx, oid); err != nil {
		return err
	}
	for _, cid := range cids {
		socid := types.SOCID{SIndex: sidx, OCID: types.OCID{OID: oid, CID: cid}}
		missing, err := knowledge.IsMissing(tx, socid)
		if err != nil {
			return err
		}
		if !missing {
			continue
		}
		if _, err := collectorq.Append(tx, sidx, socid.OCID); err != nil {
			return err
		}
	}
	return nil
}

// DeleteStore removes knowledge of the store.
func DeleteStore(tx sql.Executor, sidx types.SIndex) error {
	return knowledge.DeleteStore(tx, sidx)
}
