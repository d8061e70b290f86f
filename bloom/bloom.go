// Package bloom implements fixed size bloom filters over object ids.
//
// Filters are mergeable with Union and are exchanged between devices as opaque
// byte arrays. A filter that was finalized must not be mutated anymore, owners
// that need to change it clone it first.
package bloom

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/spacemeshos/go-scale"

	"github.com/filemesh/go-filemesh/common/types"
	"github.com/filemesh/go-filemesh/hash"
)

const (
	// Bits is the number of bits in every filter.
	Bits = 8192
	// Size is the size of the encoded filter in bytes.
	Size = Bits / 8

	hashes   = 4
	wordSize = 8
)

// ErrInvalidSize is returned when decoding a filter of unexpected size.
var ErrInvalidSize = errors.New("bloom: invalid filter size")

// Filter is a probabilistic set of object ids.
type Filter struct {
	bits  *bitset.BitSet
	final bool
}

// New returns an empty filter.
func New() *Filter {
	return &Filter{bits: bitset.New(Bits)}
}

// Of returns a filter with all oids added.
func Of(oids ...types.OID) *Filter {
	f := New()
	for _, oid := range oids {
		f.Add(oid)
	}
	return f
}

// FromBytes decodes filter from its byte representation.
func FromBytes(buf []byte) (*Filter, error) {
	if len(buf) != Size {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, len(buf))
	}
	words := make([]uint64, Size/wordSize)
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(buf[i*wordSize:])
	}
	return &Filter{bits: bitset.From(words)}, nil
}

func indices(oid types.OID) [hashes]uint {
	digest := hash.Sum(oid[:])
	var rst [hashes]uint
	for i := range rst {
		rst[i] = uint(binary.LittleEndian.Uint32(digest[i*4:])) % Bits
	}
	return rst
}

func (f *Filter) mustBeMutable() {
	if f.final {
		panic("BUG: mutating finalized bloom filter")
	}
}

// Add inserts oid into the filter. Returns true if the filter changed.
func (f *Filter) Add(oid types.OID) bool {
	f.mustBeMutable()
	changed := false
	for _, i := range indices(oid) {
		if !f.bits.Test(i) {
			f.bits.Set(i)
			changed = true
		}
	}
	return changed
}

// Contains returns true if oid may be in the set.
func (f *Filter) Contains(oid types.OID) bool {
	for _, i := range indices(oid) {
		if !f.bits.Test(i) {
			return false
		}
	}
	return true
}

// Union merges other into f. Returns true if f changed.
func (f *Filter) Union(other *Filter) bool {
	if f.bits.IsSuperSet(other.bits) {
		return false
	}
	f.mustBeMutable()
	f.bits.InPlaceUnion(other.bits)
	return true
}

// IsEmpty returns true if no element was added to the filter.
func (f *Filter) IsEmpty() bool {
	return f.bits.None()
}

// Equal returns true if both filters have the same bits set.
func (f *Filter) Equal(other *Filter) bool {
	return f.bits.Equal(other.bits)
}

// Finalize marks filter as immutable and returns it.
func (f *Filter) Finalize() *Filter {
	f.final = true
	return f
}

// Finalized returns true if Finalize was called on the filter.
func (f *Filter) Finalized() bool {
	return f.final
}

// Clone returns a mutable copy of the filter.
func (f *Filter) Clone() *Filter {
	return &Filter{bits: f.bits.Clone()}
}

// Bytes returns byte representation of the filter.
func (f *Filter) Bytes() []byte {
	buf := make([]byte, Size)
	for i, word := range f.bits.Bytes() {
		binary.LittleEndian.PutUint64(buf[i*wordSize:], word)
	}
	return buf
}

// String returns the number of set bits, for logging purposes.
func (f *Filter) String() string {
	return fmt.Sprintf("bloom(%d/%d)", f.bits.Count(), Bits)
}

// EncodeScale implements scale codec interface.
func (f *Filter) EncodeScale(enc *scale.Encoder) (int, error) {
	return scale.EncodeByteArray(enc, f.Bytes())
}

// DecodeScale implements scale codec interface.
func (f *Filter) DecodeScale(dec *scale.Decoder) (int, error) {
	buf := make([]byte, Size)
	n, err := scale.DecodeByteArray(dec, buf)
	if err != nil {
		return n, err
	}
	decoded, err := FromBytes(buf)
	if err != nil {
		return n, err
	}
	*f = *decoded
	return n, nil
}
