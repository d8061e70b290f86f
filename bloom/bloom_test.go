package bloom

import (
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/require"

	"github.com/filemesh/go-filemesh/codec"
	"github.com/filemesh/go-filemesh/common/types"
)

func TestFilterMembership(t *testing.T) {
	const (
		numInsert             = 500
		numChecks             = 10000
		maxFalsePositiveCount = numChecks / 10
	)
	f := New()
	require.True(t, f.IsEmpty())
	oids := make([]types.OID, numInsert)
	for i := range oids {
		oids[i] = types.RandomOID()
		f.Add(oids[i])
	}
	require.False(t, f.IsEmpty())
	for _, oid := range oids {
		require.True(t, f.Contains(oid))
	}
	positive := 0
	for range numChecks {
		if f.Contains(types.RandomOID()) {
			positive++
		}
	}
	t.Logf("false positives: %d, max: %d", positive, maxFalsePositiveCount)
	require.LessOrEqual(t, positive, maxFalsePositiveCount)
}

func TestFilterAddIdempotent(t *testing.T) {
	f := New()
	oid := types.RandomOID()
	require.True(t, f.Add(oid))
	require.False(t, f.Add(oid))
}

func TestFilterUnion(t *testing.T) {
	a, b := types.RandomOID(), types.RandomOID()
	fa := Of(a)
	fb := Of(b)

	require.True(t, fa.Union(fb))
	require.True(t, fa.Contains(a))
	require.True(t, fa.Contains(b))
	require.False(t, fa.Union(fb), "second union must not change the filter")
	require.False(t, fa.Union(New()))

	empty := New()
	require.True(t, empty.Union(fb))
	require.True(t, empty.Equal(fb))
}

func TestFilterFinalize(t *testing.T) {
	f := Of(types.RandomOID()).Finalize()
	require.True(t, f.Finalized())
	require.Panics(t, func() { f.Add(types.RandomOID()) })
	require.Panics(t, func() { f.Union(Of(types.RandomOID())) })

	// union that changes nothing is allowed
	require.False(t, f.Union(New()))

	clone := f.Clone()
	require.False(t, clone.Finalized())
	require.True(t, clone.Add(types.RandomOID()))
	require.False(t, f.Equal(clone))
}

func TestFilterEncoding(t *testing.T) {
	oids := []types.OID{types.RandomOID(), types.RandomOID(), types.RandomOID()}
	f := Of(oids...)

	decoded, err := FromBytes(f.Bytes())
	require.NoError(t, err)
	require.True(t, f.Equal(decoded))

	buf, err := codec.Encode(f)
	require.NoError(t, err)
	var scaled Filter
	require.NoError(t, codec.Decode(buf, &scaled))
	require.True(t, f.Equal(&scaled))
	for _, oid := range oids {
		require.True(t, scaled.Contains(oid))
	}

	_, err = FromBytes(make([]byte, Size-1))
	require.ErrorIs(t, err, ErrInvalidSize)
}

func TestFuzzedFilterEncoding(t *testing.T) {
	f := fuzz.NewWithSeed(1001).NilChance(0).NumElements(0, 200)
	for range 50 {
		var oids []types.OID
		f.Fuzz(&oids)
		filter := Of(oids...)

		buf, err := codec.Encode(filter)
		require.NoError(t, err)
		var decoded Filter
		require.NoError(t, codec.Decode(buf, &decoded))
		require.True(t, filter.Equal(&decoded))
		require.Equal(t, len(oids) == 0, decoded.IsEmpty())
		for _, oid := range oids {
			require.True(t, decoded.Contains(oid))
		}
	}
}
