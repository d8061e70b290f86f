// Package codec encodes persisted and exchanged values with scale.
package codec

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/spacemeshos/go-scale"
)

// Encodable is implemented by values that can be encoded.
type Encodable = scale.Encodable

// Decodable is implemented by values that can be decoded.
type Decodable = scale.Decodable

var buffers = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

// Encode value to a byte slice.
func Encode(value Encodable) ([]byte, error) {
	b := buffers.Get().(*bytes.Buffer)
	defer func() {
		b.Reset()
		buffers.Put(b)
	}()
	if _, err := value.EncodeScale(scale.NewEncoder(b)); err != nil {
		return nil, err
	}
	return bytes.Clone(b.Bytes()), nil
}

// MustEncode encodes value and panics on error.
// Use it only for fixed size values.
func MustEncode(value Encodable) []byte {
	buf, err := Encode(value)
	if err != nil {
		panic(err)
	}
	return buf
}

// Decode value from buf. Trailing bytes are an error.
func Decode(buf []byte, value Decodable) error {
	r := bytes.NewReader(buf)
	if _, err := value.DecodeScale(scale.NewDecoder(r)); err != nil {
		return fmt.Errorf("decode from buffer: %w", err)
	}
	if r.Len() != 0 {
		return fmt.Errorf("decode from buffer: %d trailing bytes", r.Len())
	}
	return nil
}
