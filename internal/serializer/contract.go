// Package serializer defines the Value Serializer Contract (spec §4.2): the
// narrow interface the endpoint runtime requires of a pluggable value codec,
// plus a reference binary implementation.
package serializer

import (
	"io"

	"github.com/carlosrabelo/sharpremote/internal/grain"
)

// ByReferenceHint tells a decoder, when an object crosses the process
// boundary by reference, whether to resolve a local subject or to
// create/reuse a proxy (spec §3).
type ByReferenceHint byte

const (
	// CreateProxy means the decoding side should get-or-create a proxy for
	// the accompanying grain id.
	CreateProxy ByReferenceHint = 0
	// RetrieveSubject means the decoding side should look up its own
	// servant's subject for the accompanying grain id.
	RetrieveSubject ByReferenceHint = 1
)

// Decimal is a reduced-precision stand-in for a 128-bit decimal type: an
// unscaled integer plus a scale (value = Unscaled / 10^Scale). This trades
// full arbitrary-precision decimal fidelity for a codec that fits cleanly on
// the wire; user types that need more range should use string or a
// by-value composite instead.
type Decimal struct {
	Unscaled int64
	Scale    uint8
}

// Resolver is the registry-shaped callback the serializer consults while
// decoding a by-reference value (spec §4.2: "consult the registry when
// deserializing"). internal/registry.Registry satisfies this interface.
type Resolver interface {
	// ResolveProxy returns the (possibly newly created) proxy subject for id
	// on the declared interface, or the servant-local pass-through subject
	// if id names a local servant.
	ResolveProxy(id grain.ID, interfaceName string) (any, error)
	// ResolveSubject returns the local servant's subject for id.
	ResolveSubject(id grain.ID) (any, error)
}

// BeforeDeserialize is implemented by user types that need a hook run
// immediately before their fields are populated.
type BeforeDeserialize interface {
	BeforeDeserialize()
}

// AfterDeserialize is implemented by user types that need a hook run
// immediately after their fields are populated. Both hooks run
// single-threaded on the read pump (spec §4.2).
type AfterDeserialize interface {
	AfterDeserialize()
}

// RunBeforeHook invokes v's BeforeDeserialize hook if it declares one.
func RunBeforeHook(v any) {
	if h, ok := v.(BeforeDeserialize); ok {
		h.BeforeDeserialize()
	}
}

// RunAfterHook invokes v's AfterDeserialize hook if it declares one.
func RunAfterHook(v any) {
	if h, ok := v.(AfterDeserialize); ok {
		h.AfterDeserialize()
	}
}

// Serializer is the contract the endpoint runtime requires: primitive
// read/write for each declared width, nullable-reference framing, and
// by-reference object crossing. Implementations must be stateless per call
// and deterministic: the wire form of a value tree depends only on the
// value and its declared interface, never on table state (spec §4.2).
type Serializer interface {
	WriteI8(w io.Writer, v int8) error
	ReadI8(r io.Reader) (int8, error)
	WriteU8(w io.Writer, v uint8) error
	ReadU8(r io.Reader) (uint8, error)
	WriteI16(w io.Writer, v int16) error
	ReadI16(r io.Reader) (int16, error)
	WriteU16(w io.Writer, v uint16) error
	ReadU16(r io.Reader) (uint16, error)
	WriteI32(w io.Writer, v int32) error
	ReadI32(r io.Reader) (int32, error)
	WriteU32(w io.Writer, v uint32) error
	ReadU32(r io.Reader) (uint32, error)
	WriteI64(w io.Writer, v int64) error
	ReadI64(r io.Reader) (int64, error)
	WriteU64(w io.Writer, v uint64) error
	ReadU64(r io.Reader) (uint64, error)
	WriteF32(w io.Writer, v float32) error
	ReadF32(r io.Reader) (float32, error)
	WriteF64(w io.Writer, v float64) error
	ReadF64(r io.Reader) (float64, error)
	WriteDecimal(w io.Writer, v Decimal) error
	ReadDecimal(r io.Reader) (Decimal, error)
	WriteString(w io.Writer, v string) error
	ReadString(r io.Reader) (string, error)

	// WriteNullFlag/ReadNullFlag frame a nullable reference value with a
	// one-byte present flag (spec §4.2 Nullability).
	WriteNullFlag(w io.Writer, present bool) error
	ReadNullFlag(r io.Reader) (bool, error)

	// WriteByReference writes a ByReferenceHint plus the grain id of an
	// object crossing the boundary by reference.
	WriteByReference(w io.Writer, hint ByReferenceHint, id grain.ID) error
	// ReadByReference reads back a hint and grain id, then asks resolver to
	// turn it into a local proxy or subject.
	ReadByReference(r io.Reader, interfaceName string, resolver Resolver) (any, error)
}
