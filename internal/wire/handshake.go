package wire

import (
	"bytes"
	"encoding/binary"
	"io"

	apperrors "github.com/carlosrabelo/sharpremote/pkg/errors"
)

// Magic is the 16-byte handshake preamble both sides must agree on exactly.
var Magic = [16]byte{'S', 'h', 'a', 'r', 'p', 'R', 'e', 'm', 'o', 't', 'e', 0, 0, 0, 0, 0}

// ProtocolVersion is the only wire protocol version this runtime speaks.
const ProtocolVersion uint16 = 1

const maxNameBytes = 128

// Handshake is the payload exchanged immediately after a TCP connect,
// before either side may send a Call/Return/Heartbeat frame (spec §6).
type Handshake struct {
	Name string
	// OfferCompress, on the offering side, proposes lz4 frame-payload
	// compression for the session; the accepting side echoes true only if
	// it agrees, and either side proceeds uncompressed on a mismatch
	// (SPEC_FULL.md §3).
	OfferCompress bool
}

// WriteHandshake encodes h to w: 16-byte magic, u16 version, length-prefixed name,
// one compression-offer byte.
func WriteHandshake(w io.Writer, h Handshake) error {
	if len(h.Name) > maxNameBytes {
		return apperrors.New(apperrors.HandshakeFailure, "peer name exceeds 128 bytes")
	}
	var buf bytes.Buffer
	buf.Write(Magic[:])
	var verBuf [2]byte
	binary.LittleEndian.PutUint16(verBuf[:], ProtocolVersion)
	buf.Write(verBuf[:])
	if err := writeString(&buf, h.Name); err != nil {
		return err
	}
	compressByte := byte(0)
	if h.OfferCompress {
		compressByte = 1
	}
	buf.WriteByte(compressByte)

	if _, err := w.Write(buf.Bytes()); err != nil {
		return apperrors.Wrap(apperrors.HandshakeFailure, "write handshake", err)
	}
	return nil
}

// ReadHandshake decodes a Handshake from r, failing with HandshakeFailure on
// a magic or version mismatch.
func ReadHandshake(r io.Reader) (Handshake, error) {
	var magic [16]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return Handshake{}, apperrors.Wrap(apperrors.HandshakeFailure, "read magic", err)
	}
	if magic != Magic {
		return Handshake{}, apperrors.New(apperrors.HandshakeFailure, "magic mismatch")
	}

	var verBuf [2]byte
	if _, err := io.ReadFull(r, verBuf[:]); err != nil {
		return Handshake{}, apperrors.Wrap(apperrors.HandshakeFailure, "read version", err)
	}
	version := binary.LittleEndian.Uint16(verBuf[:])
	if version != ProtocolVersion {
		return Handshake{}, apperrors.New(apperrors.HandshakeFailure, "protocol version mismatch")
	}

	var nameLenBuf [2]byte
	if _, err := io.ReadFull(r, nameLenBuf[:]); err != nil {
		return Handshake{}, apperrors.Wrap(apperrors.HandshakeFailure, "read name length", err)
	}
	nameLen := int(binary.LittleEndian.Uint16(nameLenBuf[:]))
	if nameLen > maxNameBytes {
		return Handshake{}, apperrors.New(apperrors.HandshakeFailure, "peer name exceeds 128 bytes")
	}
	nameBuf := make([]byte, nameLen)
	if _, err := io.ReadFull(r, nameBuf); err != nil {
		return Handshake{}, apperrors.Wrap(apperrors.HandshakeFailure, "read name", err)
	}

	var compressByte [1]byte
	if _, err := io.ReadFull(r, compressByte[:]); err != nil {
		return Handshake{}, apperrors.Wrap(apperrors.HandshakeFailure, "read compression offer", err)
	}

	return Handshake{Name: string(nameBuf), OfferCompress: compressByte[0] == 1}, nil
}
