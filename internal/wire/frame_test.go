package wire

import (
	"bytes"
	"strings"
	"testing"

	"github.com/carlosrabelo/sharpremote/internal/grain"
)

func TestFrameRoundTripCall(t *testing.T) {
	codec := NewCodec(0)
	original := &Frame{
		RpcID:     grain.RpcID(42),
		Type:      Call,
		ServantID: grain.ID(7),
		Interface: "IEcho",
		Method:    "Echo",
		Payload:   []byte("hello world"),
	}

	var buf bytes.Buffer
	if err := codec.WriteFrame(&buf, original); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	got, err := codec.ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}

	if got.RpcID != original.RpcID || got.Type != original.Type || got.ServantID != original.ServantID ||
		got.Interface != original.Interface || got.Method != original.Method || !bytes.Equal(got.Payload, original.Payload) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, original)
	}
}

func TestFrameRoundTripReturn(t *testing.T) {
	codec := NewCodec(0)
	original := &Frame{RpcID: grain.RpcID(99), Type: Return, Payload: []byte{1, 2, 3}}

	var buf bytes.Buffer
	if err := codec.WriteFrame(&buf, original); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := codec.ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.ServantID != 0 || got.Interface != "" || got.Method != "" {
		t.Fatalf("return frame should carry no call header fields, got %+v", got)
	}
	if !bytes.Equal(got.Payload, original.Payload) {
		t.Fatalf("payload mismatch: got %v, want %v", got.Payload, original.Payload)
	}
}

func TestFrameTruncatedStreamIsReadFailure(t *testing.T) {
	codec := NewCodec(0)
	var buf bytes.Buffer
	_ = codec.WriteFrame(&buf, &Frame{RpcID: 1, Type: Heartbeat})

	truncated := buf.Bytes()[:buf.Len()-2]
	_, err := codec.ReadFrame(bytes.NewReader(truncated))
	if err == nil {
		t.Fatal("expected error reading a truncated frame")
	}
}

func TestFrameOversizeRejected(t *testing.T) {
	codec := NewCodec(16)
	big := &Frame{RpcID: 1, Type: Return, Payload: bytes.Repeat([]byte{0}, 1024)}
	var buf bytes.Buffer
	if err := codec.WriteFrame(&buf, big); err == nil {
		t.Fatal("expected frame exceeding max size to fail")
	}
}

func TestCompressedFrameRoundTrip(t *testing.T) {
	codec := &Codec{MaxFrameSize: DefaultMaxFrameSize, Compress: true}
	payload := []byte(strings.Repeat("compress me please ", 50))
	original := &Frame{RpcID: 5, Type: Return, Payload: payload}

	var buf bytes.Buffer
	if err := codec.WriteFrame(&buf, original); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := codec.ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(got.Payload, payload) {
		t.Fatal("payload did not survive compression round trip")
	}
}

func TestInvalidMessageTypeRejected(t *testing.T) {
	codec := NewCodec(0)
	var buf bytes.Buffer
	err := codec.WriteFrame(&buf, &Frame{RpcID: 1, Type: MessageType(0)})
	if err == nil {
		t.Fatal("expected invalid message type to be rejected on write")
	}
}
