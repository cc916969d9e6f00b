package mailbox

import "fmt"

// PayloadKind tags which field of a Message's payload is populated.
// Corresponds to the C-ABI discriminant shipped alongside a CMessage.
type PayloadKind uint8

const (
	PayloadKindNone PayloadKind = iota
	PayloadKindCode
	PayloadKindObject
	PayloadKindBytes
	PayloadKindForeignPeek
	PayloadKindForeignOwned
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadKindNone:
		return "none"
	case PayloadKindCode:
		return "code"
	case PayloadKindObject:
		return "object"
	case PayloadKindBytes:
		return "bytes"
	case PayloadKindForeignPeek:
		return "foreign-peek"
	case PayloadKindForeignOwned:
		return "foreign-owned"
	default:
		return "unknown"
	}
}

// ForeignPeek is a read-only view into memory owned by the foreign caller
// that sent it. Lunaris never frees it; the sender is responsible for
// keeping the memory alive for as long as the envelope might still be read.
type ForeignPeek struct {
	Ptr uintptr
	Len int
}

// ForeignOwned is foreign memory whose ownership has been handed to
// Lunaris. Free must be invoked exactly once, when the payload is no longer
// referenced - Release does this. This replaces the single confused
// FFIPeek variant the kernel's native counterpart used for both cases,
// which could be freed twice or read after the sender freed it depending on
// which side called free first.
type ForeignOwned struct {
	Ptr  uintptr
	Len  int
	Free func(ptr uintptr, length int)

	released bool
}

// Release invokes Free exactly once. Safe to call multiple times.
func (f *ForeignOwned) Release() {
	if f.released || f.Free == nil {
		return
	}
	f.released = true
	f.Free(f.Ptr, f.Len)
}

// Payload is the tagged union carried by every Message. Exactly one of the
// typed accessors is meaningful, selected by Kind.
type Payload struct {
	Kind PayloadKind

	code   uint32
	object any
	bytes  []byte
	peek   ForeignPeek
	owned  *ForeignOwned
}

// PayloadNone builds an empty payload, used by opcodes that carry no data
// (NOOP, TICK, RESET).
func PayloadNone() Payload { return Payload{Kind: PayloadKindNone} }

// PayloadCode builds a payload carrying a single numeric code, typically an
// error or status value.
func PayloadCode(code uint32) Payload { return Payload{Kind: PayloadKindCode, code: code} }

// PayloadObject builds a payload carrying an arbitrary in-process Go value.
// Only meaningful between endpoints in the same process; never crosses the
// C ABI.
func PayloadObject(v any) Payload { return Payload{Kind: PayloadKindObject, object: v} }

// PayloadBytes builds a payload carrying a byte slice, e.g. data read from a
// socket or file.
func PayloadBytes(b []byte) Payload { return Payload{Kind: PayloadKindBytes, bytes: b} }

// PayloadForeignPeek builds a non-owning view into foreign memory.
func PayloadForeignPeek(p ForeignPeek) Payload { return Payload{Kind: PayloadKindForeignPeek, peek: p} }

// PayloadForeignOwned builds a payload that takes ownership of foreign
// memory. The caller must not free ptr itself afterward.
func PayloadForeignOwned(o *ForeignOwned) Payload {
	return Payload{Kind: PayloadKindForeignOwned, owned: o}
}

// Code returns the numeric code and true if Kind is PayloadKindCode.
func (p Payload) Code() (uint32, bool) {
	if p.Kind != PayloadKindCode {
		return 0, false
	}
	return p.code, true
}

// Object returns the boxed value and true if Kind is PayloadKindObject.
func (p Payload) Object() (any, bool) {
	if p.Kind != PayloadKindObject {
		return nil, false
	}
	return p.object, true
}

// Bytes returns the byte slice and true if Kind is PayloadKindBytes.
func (p Payload) Bytes() ([]byte, bool) {
	if p.Kind != PayloadKindBytes {
		return nil, false
	}
	return p.bytes, true
}

// ForeignPeek returns the peek view and true if Kind is PayloadKindForeignPeek.
func (p Payload) ForeignPeek() (ForeignPeek, bool) {
	if p.Kind != PayloadKindForeignPeek {
		return ForeignPeek{}, false
	}
	return p.peek, true
}

// ForeignOwned returns the owned foreign buffer and true if Kind is
// PayloadKindForeignOwned. Call Release on it once consumed.
func (p Payload) ForeignOwned() (*ForeignOwned, bool) {
	if p.Kind != PayloadKindForeignOwned {
		return nil, false
	}
	return p.owned, true
}

func (p Payload) String() string {
	switch p.Kind {
	case PayloadKindCode:
		return fmt.Sprintf("code(%d)", p.code)
	case PayloadKindBytes:
		return fmt.Sprintf("bytes(%d)", len(p.bytes))
	case PayloadKindObject:
		return fmt.Sprintf("object(%T)", p.object)
	case PayloadKindForeignPeek:
		return fmt.Sprintf("foreign-peek(len=%d)", p.peek.Len)
	case PayloadKindForeignOwned:
		return fmt.Sprintf("foreign-owned(len=%d)", p.owned.Len)
	default:
		return "none"
	}
}

// Message is the uniform unit of data carried between mailbox endpoints.
type Message struct {
	Opcode  uint32
	Payload Payload
}
