package hash

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"
)

func TestSum(t *testing.T) {
	expected := blake3.Sum256([]byte("objectid"))
	require.Equal(t, expected, Sum([]byte("object"), []byte("id")))
	// hasher returned to the pool must be reset
	require.Equal(t, expected, Sum([]byte("objectid")))
	require.NotEqual(t, expected, Sum([]byte("object")))
}
