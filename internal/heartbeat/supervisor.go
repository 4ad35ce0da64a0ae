// Package heartbeat implements the liveness probe that an endpoint runs
// against its peer by exchanging Heartbeat frames (spec §4.6).
package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/carlosrabelo/sharpremote/internal/metrics"
	"github.com/carlosrabelo/sharpremote/pkg/logger"
)

// DefaultInterval, DefaultSkippedThreshold and DefaultReportWhenDebugged are
// the supervisor's defaults (spec §4.6: "1s, 10 skips, false").
const (
	DefaultInterval          = time.Second
	DefaultSkippedThreshold  = 10
	DefaultReportWhenDebugged = false
)

// Prober issues one heartbeat probe against the peer and reports whether it
// succeeded. Endpoint implements it by sending a Heartbeat frame and waiting
// for the peer's echo of it.
type Prober interface {
	Probe(ctx context.Context) error
}

// Config configures a Supervisor.
type Config struct {
	Interval                 time.Duration
	SkippedThreshold         int
	ReportWhenDebuggerAttached bool
	// IsDebuggerAttached is consulted once the threshold is reached; nil
	// means "never attached". The silo leaves it nil.
	IsDebuggerAttached func() bool
}

func (c *Config) fillDefaults() {
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	if c.SkippedThreshold == 0 {
		c.SkippedThreshold = DefaultSkippedThreshold
	}
	if c.IsDebuggerAttached == nil {
		c.IsDebuggerAttached = func() bool { return false }
	}
}

// Supervisor runs periodic liveness probes and raises OnFailure exactly
// once per lifetime when the peer has missed skipped_threshold consecutive
// probes (spec §4.6).
type Supervisor struct {
	cfg     Config
	prober  Prober
	metrics *metrics.Collector
	log     *logger.Logger

	onFailure func()

	stopOnce sync.Once
	stopCh   chan struct{}
	firedMu  sync.Mutex
	fired    bool

	misses int
}

// New constructs a Supervisor. onFailure is invoked at most once, on its
// own goroutine relative to the probe loop.
func New(cfg Config, prober Prober, m *metrics.Collector, onFailure func()) *Supervisor {
	cfg.fillDefaults()
	return &Supervisor{
		cfg:       cfg,
		prober:    prober,
		metrics:   m,
		log:       logger.New().WithField("component", "heartbeat"),
		onFailure: onFailure,
		stopCh:    make(chan struct{}),
	}
}

// Run blocks, issuing probes every cfg.Interval until ctx is cancelled or
// Stop is called. Intended to run on its own goroutine (mirrors the
// teacher's ticker-driven periodic-adjustment loop).
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Supervisor) tick(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, s.cfg.Interval)
	defer cancel()

	err := s.prober.Probe(probeCtx)
	if err == nil {
		s.misses = 0
		if s.metrics != nil {
			s.metrics.RecordHeartbeat(time.Now())
		}
		return
	}

	s.misses++
	if s.metrics != nil {
		s.metrics.IncrementHeartbeatSkip()
	}
	if s.misses < s.cfg.SkippedThreshold {
		return
	}

	if !s.cfg.ReportWhenDebuggerAttached && s.cfg.IsDebuggerAttached() {
		s.log.Debug("suppressing heartbeat failure: debugger attached")
		return
	}

	select {
	case <-s.stopCh:
		return
	default:
	}

	s.raiseFailure()
}

func (s *Supervisor) raiseFailure() {
	s.firedMu.Lock()
	defer s.firedMu.Unlock()
	if s.fired {
		return
	}
	s.fired = true
	if s.onFailure != nil {
		go s.onFailure()
	}
}

// Stop halts probing. Outstanding probes complete but never raise.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Dispose is an alias for Stop, matching the endpoint lifecycle's naming.
func (s *Supervisor) Dispose() {
	s.Stop()
}
