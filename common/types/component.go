package types

import (
	"fmt"
	"strconv"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// SIndex is a local index of a replicated store.
type SIndex uint32

// String implements fmt.Stringer.
func (s SIndex) String() string {
	return strconv.FormatUint(uint64(s), 10)
}

// ZSIndex returns a zap field for the store index.
func ZSIndex(s SIndex) zap.Field {
	return zap.Uint32("sidx", uint32(s))
}

// CID is a component kind of an object.
// CID identifies a component of an object. CIDMeta is the metadata component,
// every other value is a content component.
type CID uint32

const (
	// CIDMeta is the metadata component.
	CIDMeta CID = 0
	// CIDContent is the main content component.
	CIDContent CID = 1
)

// IsMeta returns true for the metadata component.
func (c CID) IsMeta() bool { return c == CIDMeta }

// IsContent returns true for any content component.
func (c CID) IsContent() bool { return c != CIDMeta }

// String implements fmt.Stringer.
func (c CID) String() string {
	switch c {
	case CIDMeta:
		return "meta"
	case CIDContent:
		return "content"
	default:
		return "content" + strconv.FormatUint(uint64(c), 10)
	}
}

// OCID is an object component identifier.
type OCID struct {
	OID OID
	CID CID
}

// String implements fmt.Stringer.
func (o OCID) String() string {
	return fmt.Sprintf("%s:%s", o.OID.ShortString(), o.CID)
}

// SOCID is a store scoped object component identifier.
type SOCID struct {
	SIndex SIndex
	OCID
}

// String implements fmt.Stringer.
func (s SOCID) String() string {
	return fmt.Sprintf("%d:%s", s.SIndex, s.OCID)
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (s SOCID) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint32("sidx", uint32(s.SIndex))
	enc.AddString("oid", s.OID.ShortString())
	enc.AddString("cid", s.CID.String())
	return nil
}

// CollectorSeq is a position in the collector queue of a store.
// It is assigned once, when an object component becomes collectible, and never reused.
type CollectorSeq uint64

// PlusOne returns the immediate successor.
func (cs CollectorSeq) PlusOne() CollectorSeq {
	return cs + 1
}

// CollectorEntry is an element of the collector queue.
type CollectorEntry struct {
	Seq  CollectorSeq
	OCID OCID
}

// String implements fmt.Stringer.
func (e CollectorEntry) String() string {
	return fmt.Sprintf("%d/%s", e.Seq, e.OCID)
}

// SenderFilterIndex identifies a filter in the sender filter chain of a store.
type SenderFilterIndex uint64

// BaseIndex is the first index of every sender filter chain. It is never deleted.
const BaseIndex SenderFilterIndex = 0

// PlusOne returns the immediate successor.
func (i SenderFilterIndex) PlusOne() SenderFilterIndex {
	return i + 1
}
