// Package wire implements the length-prefixed frame codec and handshake
// defined by the remoting wire protocol (spec §4.1, §6).
package wire

import "fmt"

// MessageType is a bitflag set over the kinds of frame that can cross the
// wire. Only a handful of composites are valid; see Valid below.
type MessageType uint8

const (
	Call      MessageType = 1 << 0
	Return    MessageType = 1 << 1
	Exception MessageType = 1 << 2
	Goodbye   MessageType = 1 << 3
	Heartbeat MessageType = 1 << 4
)

// Valid reports whether t is one of the wire protocol's sanctioned
// composites: Call, Return, Return|Exception, Goodbye, or Heartbeat alone.
func (t MessageType) Valid() bool {
	switch t {
	case Call, Return, Return | Exception, Goodbye, Heartbeat:
		return true
	default:
		return false
	}
}

// IsCall reports whether the frame carries the servant_id/interface/method
// header fields (true for Call, false for Return/Return|Exception/Goodbye/
// Heartbeat).
func (t MessageType) IsCall() bool {
	return t&Call != 0
}

func (t MessageType) String() string {
	switch t {
	case Call:
		return "Call"
	case Return:
		return "Return"
	case Return | Exception:
		return "Return|Exception"
	case Goodbye:
		return "Goodbye"
	case Heartbeat:
		return "Heartbeat"
	default:
		return fmt.Sprintf("MessageType(%d)", uint8(t))
	}
}
