// Package endpoint implements the remoting endpoint state machine: connect/
// handshake/disconnect, the read and write pumps, dispatch of incoming
// frames to the registry or the pending-methods queue, and failure
// classification (spec §4.5).
package endpoint

import "fmt"

// State is one node of the endpoint connection state machine.
type State int

const (
	Disconnected State = iota
	Connecting
	Handshaking
	Connected
	Disconnecting
	Faulted
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Handshaking:
		return "Handshaking"
	case Connected:
		return "Connected"
	case Disconnecting:
		return "Disconnecting"
	case Faulted:
		return "Faulted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// DisconnectReason classifies why an endpoint left Connected (spec §4.5,
// §7). Each reason maps deterministically to an OutOfProcessSiloFaultReason
// in internal/silo.
type DisconnectReason string

const (
	ReasonReadFailure          DisconnectReason = "ReadFailure"
	ReasonRpcInvalidResponse   DisconnectReason = "RpcInvalidResponse"
	ReasonRequestedByEndPoint  DisconnectReason = "RequestedByEndPoint"
	ReasonRequestedByRemoteEnd DisconnectReason = "RequestedByRemoteEndPoint"
	ReasonUnhandledException  DisconnectReason = "UnhandledException"
	ReasonHandshakeFailure    DisconnectReason = "HandshakeFailure"
)
