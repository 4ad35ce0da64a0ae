package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v3"

	"github.com/carlosrabelo/sharpremote/internal/grain"
	apperrors "github.com/carlosrabelo/sharpremote/pkg/errors"
)

// DefaultMaxFrameSize is the cap applied when a Codec is constructed with 0.
const DefaultMaxFrameSize uint32 = 64 << 20 // 64 MiB

const maxStringBytes = 1024

// Frame is one length-prefixed unit of the wire protocol. Interface/Method/
// ServantID are populated only when Type.IsCall() (spec §3, §6).
type Frame struct {
	RpcID     grain.RpcID
	Type      MessageType
	ServantID grain.ID
	Interface string
	Method    string
	Payload   []byte
}

// Codec reads and writes frames on a reliable ordered byte stream. It is
// safe for concurrent reads from one goroutine and writes from another (it
// holds no mutable state beyond its two scalar config fields, which are set
// once during handshake negotiation and never mutated concurrently with
// ReadFrame/WriteFrame).
type Codec struct {
	MaxFrameSize uint32
	// Compress, when true, lz4-compresses/decompresses the payload segment
	// transparently to callers (negotiated at handshake time; see
	// SPEC_FULL.md §3 compression negotiation).
	Compress bool
}

// NewCodec returns a Codec with the given frame size cap, or
// DefaultMaxFrameSize if maxFrameSize is 0.
func NewCodec(maxFrameSize uint32) *Codec {
	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Codec{MaxFrameSize: maxFrameSize}
}

// WriteFrame serializes f and writes it to w in one call, so the frame is
// committed to the stream atomically or not at all (spec §4.1 guarantee
// (iii)). Callers own flushing any buffering wrapped around w.
func (c *Codec) WriteFrame(w io.Writer, f *Frame) error {
	if !f.Type.Valid() {
		return apperrors.New(apperrors.RpcInvalidResponse, fmt.Sprintf("invalid message type %d", f.Type))
	}

	payload := f.Payload
	if c.Compress && len(payload) > 0 {
		compressed, err := compress(payload)
		if err != nil {
			return apperrors.Wrap(apperrors.ReadFailure, "compress frame payload", err)
		}
		payload = compressed
	}

	var body bytes.Buffer
	body.WriteByte(byte(f.Type))
	if f.Type.IsCall() {
		var idBuf [8]byte
		binary.LittleEndian.PutUint64(idBuf[:], uint64(f.ServantID))
		body.Write(idBuf[:])
		if err := writeString(&body, f.Interface); err != nil {
			return err
		}
		if err := writeString(&body, f.Method); err != nil {
			return err
		}
	}
	body.Write(payload)

	rpcIDBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(rpcIDBuf, uint64(f.RpcID))

	length := uint32(8 + body.Len()) // rpc_id + (kind..payload)
	if length > c.MaxFrameSize {
		return apperrors.New(apperrors.ReadFailure, fmt.Sprintf("frame of %d bytes exceeds max %d", length, c.MaxFrameSize))
	}

	var out bytes.Buffer
	out.Grow(4 + int(length))
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], length)
	out.Write(lenBuf[:])
	out.Write(rpcIDBuf)
	out.Write(body.Bytes())

	if _, err := w.Write(out.Bytes()); err != nil {
		return apperrors.Wrap(apperrors.ReadFailure, "write frame", err)
	}
	return nil
}

// ReadFrame blocks until a full frame is available or the stream ends. A
// partial frame at stream close is always a ReadFailure, never a silent
// truncation (spec §4.1 guarantee (ii)).
func (c *Codec) ReadFrame(r io.Reader) (*Frame, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, apperrors.Wrap(apperrors.ReadFailure, "stream closed before frame", err)
		}
		return nil, apperrors.Wrap(apperrors.ReadFailure, "read frame length", err)
	}
	length := binary.LittleEndian.Uint32(lenBuf[:])
	if length > c.MaxFrameSize {
		return nil, apperrors.New(apperrors.ReadFailure, fmt.Sprintf("frame of %d bytes exceeds max %d", length, c.MaxFrameSize))
	}
	if length < 9 {
		return nil, apperrors.New(apperrors.RpcInvalidResponse, fmt.Sprintf("frame length %d too small for rpc_id+kind", length))
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, apperrors.Wrap(apperrors.ReadFailure, "read frame body", err)
	}

	f := &Frame{}
	f.RpcID = grain.RpcID(int64(binary.LittleEndian.Uint64(body[0:8])))
	f.Type = MessageType(body[8])
	if !f.Type.Valid() {
		return nil, apperrors.New(apperrors.RpcInvalidResponse, fmt.Sprintf("unknown message kind %d", body[8]))
	}

	rest := body[9:]
	if f.Type.IsCall() {
		if len(rest) < 8 {
			return nil, apperrors.New(apperrors.RpcInvalidResponse, "call frame missing servant_id")
		}
		f.ServantID = grain.ID(binary.LittleEndian.Uint64(rest[0:8]))
		rest = rest[8:]

		iface, rest2, err := readString(rest)
		if err != nil {
			return nil, err
		}
		f.Interface = iface
		rest = rest2

		method, rest3, err := readString(rest)
		if err != nil {
			return nil, err
		}
		f.Method = method
		rest = rest3
	}

	if c.Compress && len(rest) > 0 {
		decompressed, err := decompress(rest)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.RpcInvalidResponse, "decompress frame payload", err)
		}
		f.Payload = decompressed
	} else {
		f.Payload = rest
	}
	return f, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > maxStringBytes {
		return apperrors.New(apperrors.RpcInvalidResponse, fmt.Sprintf("string of %d bytes exceeds %d byte limit", len(s), maxStringBytes))
	}
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(s)))
	buf.Write(lenBuf[:])
	buf.WriteString(s)
	return nil
}

func readString(b []byte) (string, []byte, error) {
	if len(b) < 2 {
		return "", nil, apperrors.New(apperrors.RpcInvalidResponse, "truncated string length prefix")
	}
	n := int(binary.LittleEndian.Uint16(b[0:2]))
	b = b[2:]
	if n > maxStringBytes || len(b) < n {
		return "", nil, apperrors.New(apperrors.RpcInvalidResponse, "truncated or oversized string")
	}
	return string(b[:n]), b[n:], nil
}

func compress(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(payload []byte) ([]byte, error) {
	zr := lz4.NewReader(bytes.NewReader(payload))
	return io.ReadAll(zr)
}
