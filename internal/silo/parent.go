// Package silo implements the out-of-process host lifecycle: the parent
// side that spawns a child process and negotiates its stdout handshake, and
// the child side that implements that protocol (spec §4.7).
package silo

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/carlosrabelo/sharpremote/internal/endpoint"
	"github.com/carlosrabelo/sharpremote/internal/heartbeat"
	intmetrics "github.com/carlosrabelo/sharpremote/internal/metrics"
	apperrors "github.com/carlosrabelo/sharpremote/pkg/errors"
	"github.com/carlosrabelo/sharpremote/pkg/logger"
)

// FaultReason classifies why a silo reports a fault to its embedder,
// mapped deterministically from an endpoint.DisconnectReason (spec §6).
type FaultReason string

const (
	FaultConnectionLost   FaultReason = "ConnectionLost"
	FaultHeartbeatTimeout FaultReason = "HeartbeatTimeout"
	FaultHandshakeFailure FaultReason = "HandshakeFailure"
	FaultProcessExited    FaultReason = "ProcessExited"
)

// FaultHandling names how a detected fault was handled; Shutdown is
// currently the only strategy the silo implements (spec §4.7).
type FaultHandling string

const ShutdownHandling FaultHandling = "Shutdown"

const (
	handshakeTimeout = 10 * time.Second
	connectTimeout   = 1 * time.Second
)

// ParentOptions configures a parent-side Silo.
type ParentOptions struct {
	// Command is the child executable path; Args are appended after the
	// parent PID argument the silo always passes first.
	Command string
	Args    []string

	EndpointName  string
	OfferCompress bool
	Metrics       *intmetrics.Collector

	OnFaultDetected func(FaultReason)
	OnFaultHandled  func(FaultReason, FaultHandling)
}

// Silo owns one spawned child process and the endpoint connected to it.
type Silo struct {
	opts ParentOptions
	log  *logger.Logger

	cmd       *exec.Cmd
	Endpoint  *endpoint.Endpoint
	heartbeat *heartbeat.Supervisor

	faultOnce       bool
	hasProcessFailed bool
	// endpointOwnsFault records whether the fault originated from the
	// endpoint's own read pump, so the silo does not disconnect it a
	// second time and overwrite the original disconnect reason (spec
	// §4.7).
	endpointOwnsFault bool
}

// Spawn launches the child, negotiates the stdout handshake, connects the
// endpoint, and returns once Connected (or on handshake failure/timeout).
func Spawn(ctx context.Context, opts ParentOptions) (*Silo, error) {
	s := &Silo{opts: opts, log: logger.New().WithField("component", "silo")}

	args := append([]string{strconv.Itoa(os.Getpid())}, opts.Args...)
	s.cmd = exec.Command(opts.Command, args...)

	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ConnectionLost, "open child stdout pipe", err)
	}
	if err := s.cmd.Start(); err != nil {
		return nil, apperrors.Wrap(apperrors.ConnectionLost, "start child process", err)
	}

	port, err := s.negotiateHandshake(stdout)
	if err != nil {
		_ = s.cmd.Process.Kill()
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	e := endpoint.New(endpoint.Options{
		Name:          opts.EndpointName,
		OfferCompress: opts.OfferCompress,
		Metrics:       opts.Metrics,
		OnFailure: func(reason endpoint.DisconnectReason) {
			s.endpointOwnsFault = true
			s.reportFault(mapDisconnectReason(reason))
		},
	})
	if err := e.Connect(dialCtx, net.JoinHostPort("127.0.0.1", port)); err != nil {
		_ = s.cmd.Process.Kill()
		return nil, err
	}
	s.Endpoint = e

	s.heartbeat = heartbeat.New(heartbeat.Config{}, e, opts.Metrics, s.HeartbeatFailed)
	go s.heartbeat.Run(ctx)

	return s, nil
}

// negotiateHandshake reads the child's three-line stdout protocol. Any
// unrecognized line before the port line is forwarded as a log line via
// OnHostOutputWritten and never mistaken for the port; the port line must
// be the line immediately preceding ready (resolved open question, spec §9
// / SPEC_FULL.md §4.7).
func (s *Silo) negotiateHandshake(stdout io.Reader) (string, error) {
	deadline := time.Now().Add(handshakeTimeout)
	if d, ok := stdout.(interface{ SetReadDeadline(time.Time) error }); ok {
		_ = d.SetReadDeadline(deadline)
		defer func() { _ = d.SetReadDeadline(time.Time{}) }()
	}
	scanner := bufio.NewScanner(stdout)

	sawBooting := false
	var port string

	for scanner.Scan() {
		if time.Now().After(deadline) {
			return "", apperrors.New(apperrors.HandshakeFailure, "timed out waiting for child host handshake")
		}
		line := scanner.Text()
		switch {
		case line == "booting":
			sawBooting = true
			port = ""
		case line == "ready":
			if port == "" {
				return "", apperrors.New(apperrors.HandshakeFailure, "child reported ready with no preceding port line")
			}
			return port, nil
		case isDecimal(line):
			port = line
		default:
			s.onHostOutputWritten(line)
			port = "" // any non-decimal line resets the "immediately preceding" requirement
		}
	}
	_ = sawBooting
	if errors.Is(scanner.Err(), os.ErrDeadlineExceeded) {
		return "", apperrors.New(apperrors.HandshakeFailure, "timed out waiting for child host handshake")
	}
	return "", apperrors.New(apperrors.HandshakeFailure, "child stdout closed before handshake completed")
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (s *Silo) onHostOutputWritten(line string) {
	s.log.Debug("child host output: %s", line)
}

func mapDisconnectReason(reason endpoint.DisconnectReason) FaultReason {
	switch reason {
	case endpoint.ReasonHandshakeFailure:
		return FaultHandshakeFailure
	case endpoint.ReasonReadFailure, endpoint.ReasonRpcInvalidResponse, endpoint.ReasonUnhandledException:
		return FaultConnectionLost
	default:
		return FaultConnectionLost
	}
}

// reportFault implements the OnFaultDetected/OnFaultHandled choreography:
// OnFaultDetected fires once, synchronously; cleanup runs; OnFaultHandled
// fires after cleanup completes (spec §4.7).
func (s *Silo) reportFault(reason FaultReason) {
	if s.faultOnce {
		return
	}
	s.faultOnce = true

	if s.opts.Metrics != nil {
		s.opts.Metrics.IncrementSiloFaults()
	}

	if s.opts.OnFaultDetected != nil {
		s.opts.OnFaultDetected(reason)
	}

	s.cleanup()

	if s.opts.OnFaultHandled != nil {
		s.opts.OnFaultHandled(reason, ShutdownHandling)
	}
}

// HeartbeatFailed is wired as the heartbeat supervisor's OnFailure callback.
func (s *Silo) HeartbeatFailed() {
	s.reportFault(FaultHeartbeatTimeout)
}

// cleanup kills the child, disposes the endpoint unless the fault
// originated from the endpoint's own pump (it is then already disconnected
// and keeps its original disconnect reason), and marks the process as
// failed.
func (s *Silo) cleanup() {
	if s.heartbeat != nil {
		s.heartbeat.Stop()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	if s.Endpoint != nil && !s.endpointOwnsFault {
		s.Endpoint.Dispose()
	}
	s.hasProcessFailed = true
}

// HasProcessFailed reports whether this silo has observed and handled a
// fault.
func (s *Silo) HasProcessFailed() bool {
	return s.hasProcessFailed
}

// Shutdown performs a clean parent-initiated teardown.
func (s *Silo) Shutdown() {
	if s.heartbeat != nil {
		s.heartbeat.Stop()
	}
	if s.Endpoint != nil {
		s.Endpoint.Dispose()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
}
