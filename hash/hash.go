// Package hash computes digests that place object ids into bloom filters.
package hash

import (
	"sync"

	"github.com/zeebo/blake3"
)

// Size of the digest returned by Sum.
const Size = 32

var hashers = sync.Pool{
	New: func() any {
		return blake3.New()
	},
}

// Sum computes blake3 digest over the concatenation of chunks.
func Sum(chunks ...[]byte) (rst [Size]byte) {
	hasher := hashers.Get().(*blake3.Hasher)
	defer func() {
		hasher.Reset()
		hashers.Put(hasher)
	}()
	for _, chunk := range chunks {
		hasher.Write(chunk)
	}
	hasher.Sum(rst[:0])
	return rst
}
