package knowledge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/filemesh/go-filemesh/common/types"
	"github.com/filemesh/go-filemesh/sql"
	"github.com/filemesh/go-filemesh/sql/collectorq"
)

func socid(sidx types.SIndex, cid types.CID) types.SOCID {
	return types.SOCID{SIndex: sidx, OCID: types.OCID{OID: types.RandomOID(), CID: cid}}
}

func TestLearnCollected(t *testing.T) {
	db := sql.InMemory()
	rule := SkipRule{}
	id := socid(1, types.CIDContent)

	skip, err := rule.ShouldSkip(db, id)
	require.NoError(t, err)
	require.True(t, skip, "unknown component is skipped")

	seq, err := Learn(db, id)
	require.NoError(t, err)
	require.Equal(t, types.CollectorSeq(1), seq)

	skip, err = rule.ShouldSkip(db, id)
	require.NoError(t, err)
	require.False(t, skip)

	require.NoError(t, Collected(db, id))
	skip, err = rule.ShouldSkip(db, id)
	require.NoError(t, err)
	require.True(t, skip)

	count, err := collectorq.Count(db, 1)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestExpelled(t *testing.T) {
	db := sql.InMemory()
	rule := SkipRule{}
	meta := socid(1, types.CIDMeta)
	content := types.SOCID{SIndex: 1, OCID: types.OCID{OID: meta.OID, CID: types.CIDContent}}

	_, err := Learn(db, meta)
	require.NoError(t, err)
	_, err = Learn(db, content)
	require.NoError(t, err)
	require.NoError(t, Expel(db, 1, meta.OID))

	for _, id := range []types.SOCID{meta, content} {
		skip, err := rule.ShouldSkip(db, id)
		require.NoError(t, err)
		require.True(t, skip)
	}

	require.NoError(t, Readmit(db, 1, meta.OID, types.CIDMeta, types.CIDContent))
	skip, err := rule.ShouldSkip(db, meta)
	require.NoError(t, err)
	require.False(t, skip)

	entries, err := collectorq.List(db, 1, 0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, types.CollectorSeq(3), entries[0].Seq, "readmitted components are queued again")
}
