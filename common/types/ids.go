package types

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spacemeshos/go-scale"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// UniqueIDSize is the size in bytes of object and device identifiers.
	UniqueIDSize = 16

	shortIDLength = 8
)

// OID identifies an object (file or directory) within a store.
type OID uuid.UUID

// RandomOID returns a new random object id.
func RandomOID() OID {
	return OID(uuid.New())
}

// BytesToOID copies buffer into OID.
func BytesToOID(buf []byte) (id OID) {
	copy(id[:], buf)
	return id
}

// ParseOID parses the canonical textual form of an object id.
func ParseOID(s string) (OID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return OID{}, fmt.Errorf("parse oid %q: %w", s, err)
	}
	return OID(u), nil
}

// Bytes returns the byte representation of the object id.
func (id OID) Bytes() []byte {
	return id[:]
}

// String returns the canonical textual form of the object id.
func (id OID) String() string {
	return uuid.UUID(id).String()
}

// ShortString returns the first characters of the id, for logging purposes.
func (id OID) ShortString() string {
	return Shorten(id.String(), shortIDLength)
}

// EncodeScale implements scale codec interface.
func (id *OID) EncodeScale(e *scale.Encoder) (int, error) {
	return scale.EncodeByteArray(e, id[:])
}

// DecodeScale implements scale codec interface.
func (id *OID) DecodeScale(d *scale.Decoder) (int, error) {
	return scale.DecodeByteArray(d, id[:])
}

// DID identifies a remote device (replica).
type DID uuid.UUID

// RandomDID returns a new random device id.
func RandomDID() DID {
	return DID(uuid.New())
}

// BytesToDID copies buffer into DID.
func BytesToDID(buf []byte) (id DID) {
	copy(id[:], buf)
	return id
}

// ParseDID parses the canonical textual form of a device id.
func ParseDID(s string) (DID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return DID{}, fmt.Errorf("parse did %q: %w", s, err)
	}
	return DID(u), nil
}

// Bytes returns the byte representation of the device id.
func (id DID) Bytes() []byte {
	return id[:]
}

// String returns the canonical textual form of the device id.
func (id DID) String() string {
	return uuid.UUID(id).String()
}

// ShortString returns the first characters of the id, for logging purposes.
func (id DID) ShortString() string {
	return Shorten(id.String(), shortIDLength)
}

// Compare orders device ids bytewise.
func (id DID) Compare(other DID) int {
	for i := range id {
		switch {
		case id[i] < other[i]:
			return -1
		case id[i] > other[i]:
			return 1
		}
	}
	return 0
}

// EncodeScale implements scale codec interface.
func (id *DID) EncodeScale(e *scale.Encoder) (int, error) {
	return scale.EncodeByteArray(e, id[:])
}

// DecodeScale implements scale codec interface.
func (id *DID) DecodeScale(d *scale.Decoder) (int, error) {
	return scale.DecodeByteArray(d, id[:])
}

// ZDID returns a zap field for the device id.
func ZDID(id DID) zap.Field {
	return zap.String("device", id.ShortString())
}

// ZDIDs returns a zap field for a list of device ids.
func ZDIDs(ids []DID) zap.Field {
	return zap.Array("devices", zapcore.ArrayMarshalerFunc(func(enc zapcore.ArrayEncoder) error {
		for _, id := range ids {
			enc.AppendString(id.ShortString())
		}
		return nil
	}))
}

// Shorten returns at most maxlen leading characters of s.
func Shorten(s string, maxlen int) string {
	return s[:min(maxlen, len(s))]
}
