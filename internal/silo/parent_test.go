package silo

import (
	"strings"
	"testing"

	"github.com/carlosrabelo/sharpremote/internal/endpoint"
	intmetrics "github.com/carlosrabelo/sharpremote/internal/metrics"
	"github.com/carlosrabelo/sharpremote/pkg/logger"
)

func newTestSilo() *Silo {
	return &Silo{log: logger.New().WithField("component", "silo-test")}
}

func TestNegotiateHandshakeHappyPath(t *testing.T) {
	s := newTestSilo()
	r := strings.NewReader("booting\n4242\nready\n")

	port, err := s.negotiateHandshake(r)
	if err != nil {
		t.Fatal(err)
	}
	if port != "4242" {
		t.Fatalf("got %q", port)
	}
}

func TestNegotiateHandshakeRejectsReadyWithoutPort(t *testing.T) {
	s := newTestSilo()
	r := strings.NewReader("booting\nready\n")

	if _, err := s.negotiateHandshake(r); err == nil {
		t.Fatal("expected ready with no preceding port line to fail")
	}
}

func TestNegotiateHandshakeResetsPortAfterInterveningLine(t *testing.T) {
	s := newTestSilo()
	// The port line must *immediately* precede ready; a log line in
	// between must invalidate it.
	r := strings.NewReader("booting\n4242\nsome unrelated log line\nready\n")

	if _, err := s.negotiateHandshake(r); err == nil {
		t.Fatal("expected a non-decimal line between port and ready to invalidate the handshake")
	}
}

func TestNegotiateHandshakeClosedStreamFails(t *testing.T) {
	s := newTestSilo()
	r := strings.NewReader("booting\n")

	if _, err := s.negotiateHandshake(r); err == nil {
		t.Fatal("expected stdout closing before ready to fail")
	}
}

func TestIsDecimal(t *testing.T) {
	cases := map[string]bool{
		"":       false,
		"0":      true,
		"4242":   true,
		"4242a":  false,
		"-1":     false,
		"ready":  false,
		"007":    true,
	}
	for in, want := range cases {
		if got := isDecimal(in); got != want {
			t.Errorf("isDecimal(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestMapDisconnectReason(t *testing.T) {
	cases := map[endpoint.DisconnectReason]FaultReason{
		endpoint.ReasonHandshakeFailure:     FaultHandshakeFailure,
		endpoint.ReasonReadFailure:          FaultConnectionLost,
		endpoint.ReasonRpcInvalidResponse:   FaultConnectionLost,
		endpoint.ReasonUnhandledException:   FaultConnectionLost,
	}
	for in, want := range cases {
		if got := mapDisconnectReason(in); got != want {
			t.Errorf("mapDisconnectReason(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestReportFaultFiresOnlyOnce(t *testing.T) {
	s := newTestSilo()

	var detected, handled int
	s.opts.OnFaultDetected = func(r FaultReason) { detected++ }
	s.opts.OnFaultHandled = func(r FaultReason, h FaultHandling) { handled++ }

	s.reportFault(FaultConnectionLost)
	s.reportFault(FaultHeartbeatTimeout)

	if detected != 1 || handled != 1 {
		t.Fatalf("expected exactly one detected/handled pair, got detected=%d handled=%d", detected, handled)
	}
	if !s.HasProcessFailed() {
		t.Fatal("expected HasProcessFailed to be true after a reported fault")
	}
}

func TestReportFaultIncrementsSiloFaultsMetric(t *testing.T) {
	s := newTestSilo()
	s.opts.Metrics = intmetrics.NewCollector()

	s.reportFault(FaultConnectionLost)
	s.reportFault(FaultHeartbeatTimeout) // second call is a no-op, faultOnce guards it

	if got := s.opts.Metrics.Snapshot().SiloFaults; got != 1 {
		t.Fatalf("expected silo_faults metric to be 1, got %d", got)
	}
}
