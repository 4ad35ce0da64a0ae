package serializer

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/carlosrabelo/sharpremote/internal/grain"
	apperrors "github.com/carlosrabelo/sharpremote/pkg/errors"
)

// maxStringBytes is the longest string the u16 length prefix can describe.
// It is separate from, and larger than, the wire codec's 1024-byte cap on
// interface and method names.
const maxStringBytes = 1<<16 - 1

// BinaryCodec is the reference Serializer implementation: fixed-width
// little-endian primitives via encoding/binary, the format spec §4.2
// mandates (not a general-purpose serialization scheme an ecosystem
// library would improve on — see DESIGN.md).
type BinaryCodec struct{}

// NewBinaryCodec returns the stateless reference codec.
func NewBinaryCodec() *BinaryCodec { return &BinaryCodec{} }

var _ Serializer = (*BinaryCodec)(nil)

func (BinaryCodec) WriteI8(w io.Writer, v int8) error { return writeFixed(w, uint8(v)) }
func (BinaryCodec) ReadI8(r io.Reader) (int8, error) {
	v, err := readFixedU8(r)
	return int8(v), err
}
func (BinaryCodec) WriteU8(w io.Writer, v uint8) error { return writeFixed(w, v) }
func (BinaryCodec) ReadU8(r io.Reader) (uint8, error)  { return readFixedU8(r) }

func (BinaryCodec) WriteI16(w io.Writer, v int16) error { return writeFixed(w, uint16(v)) }
func (BinaryCodec) ReadI16(r io.Reader) (int16, error) {
	v, err := readFixedU16(r)
	return int16(v), err
}
func (BinaryCodec) WriteU16(w io.Writer, v uint16) error { return writeFixed(w, v) }
func (BinaryCodec) ReadU16(r io.Reader) (uint16, error)  { return readFixedU16(r) }

func (BinaryCodec) WriteI32(w io.Writer, v int32) error { return writeFixed(w, uint32(v)) }
func (BinaryCodec) ReadI32(r io.Reader) (int32, error) {
	v, err := readFixedU32(r)
	return int32(v), err
}
func (BinaryCodec) WriteU32(w io.Writer, v uint32) error { return writeFixed(w, v) }
func (BinaryCodec) ReadU32(r io.Reader) (uint32, error)  { return readFixedU32(r) }

func (BinaryCodec) WriteI64(w io.Writer, v int64) error { return writeFixed(w, uint64(v)) }
func (BinaryCodec) ReadI64(r io.Reader) (int64, error) {
	v, err := readFixedU64(r)
	return int64(v), err
}
func (BinaryCodec) WriteU64(w io.Writer, v uint64) error { return writeFixed(w, v) }
func (BinaryCodec) ReadU64(r io.Reader) (uint64, error)  { return readFixedU64(r) }

func (BinaryCodec) WriteF32(w io.Writer, v float32) error {
	return writeFixed(w, math.Float32bits(v))
}
func (BinaryCodec) ReadF32(r io.Reader) (float32, error) {
	v, err := readFixedU32(r)
	return math.Float32frombits(v), err
}
func (BinaryCodec) WriteF64(w io.Writer, v float64) error {
	return writeFixed(w, math.Float64bits(v))
}
func (BinaryCodec) ReadF64(r io.Reader) (float64, error) {
	v, err := readFixedU64(r)
	return math.Float64frombits(v), err
}

func (c BinaryCodec) WriteDecimal(w io.Writer, v Decimal) error {
	if err := c.WriteI64(w, v.Unscaled); err != nil {
		return err
	}
	return c.WriteU8(w, v.Scale)
}
func (c BinaryCodec) ReadDecimal(r io.Reader) (Decimal, error) {
	unscaled, err := c.ReadI64(r)
	if err != nil {
		return Decimal{}, err
	}
	scale, err := c.ReadU8(r)
	if err != nil {
		return Decimal{}, err
	}
	return Decimal{Unscaled: unscaled, Scale: scale}, nil
}

func (c BinaryCodec) WriteString(w io.Writer, v string) error {
	if len(v) > maxStringBytes {
		return apperrors.New(apperrors.RpcInvalidResponse, "string exceeds serializer length cap")
	}
	if err := c.WriteU16(w, uint16(len(v))); err != nil {
		return err
	}
	_, err := io.WriteString(w, v)
	if err != nil {
		return apperrors.Wrap(apperrors.ReadFailure, "write string payload", err)
	}
	return nil
}
func (c BinaryCodec) ReadString(r io.Reader) (string, error) {
	n, err := c.ReadU16(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", apperrors.Wrap(apperrors.ReadFailure, "read string payload", err)
	}
	return string(buf), nil
}

func (c BinaryCodec) WriteNullFlag(w io.Writer, present bool) error {
	var b uint8
	if present {
		b = 1
	}
	return c.WriteU8(w, b)
}
func (c BinaryCodec) ReadNullFlag(r io.Reader) (bool, error) {
	b, err := c.ReadU8(r)
	if err != nil {
		return false, err
	}
	return b == 1, nil
}

func (c BinaryCodec) WriteByReference(w io.Writer, hint ByReferenceHint, id grain.ID) error {
	if err := c.WriteU8(w, uint8(hint)); err != nil {
		return err
	}
	return c.WriteU64(w, uint64(id))
}

func (c BinaryCodec) ReadByReference(r io.Reader, interfaceName string, resolver Resolver) (any, error) {
	hintByte, err := c.ReadU8(r)
	if err != nil {
		return nil, err
	}
	id, err := c.ReadU64(r)
	if err != nil {
		return nil, err
	}
	grainID := grain.ID(id)
	switch ByReferenceHint(hintByte) {
	case CreateProxy:
		return resolver.ResolveProxy(grainID, interfaceName)
	case RetrieveSubject:
		return resolver.ResolveSubject(grainID)
	default:
		return nil, apperrors.New(apperrors.RpcInvalidResponse, "unknown by-reference hint")
	}
}

func writeFixed[T ~uint8 | ~uint16 | ~uint32 | ~uint64](w io.Writer, v T) error {
	var buf []byte
	switch any(v).(type) {
	case uint8:
		buf = []byte{byte(v)}
	case uint16:
		buf = make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, uint16(v))
	case uint32:
		buf = make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(v))
	case uint64:
		buf = make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(v))
	}
	if _, err := w.Write(buf); err != nil {
		return apperrors.Wrap(apperrors.ReadFailure, "write primitive", err)
	}
	return nil
}

func readFixedU8(r io.Reader) (uint8, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, apperrors.Wrap(apperrors.ReadFailure, "read primitive", err)
	}
	return buf[0], nil
}
func readFixedU16(r io.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, apperrors.Wrap(apperrors.ReadFailure, "read primitive", err)
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}
func readFixedU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, apperrors.Wrap(apperrors.ReadFailure, "read primitive", err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}
func readFixedU64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, apperrors.Wrap(apperrors.ReadFailure, "read primitive", err)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}
