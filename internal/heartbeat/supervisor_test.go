package heartbeat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type flakyProber struct {
	mu       sync.Mutex
	failNext int
	probes   int32
}

func (p *flakyProber) Probe(ctx context.Context) error {
	atomic.AddInt32(&p.probes, 1)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNext > 0 {
		p.failNext--
		return errors.New("no response")
	}
	return nil
}

func TestSupervisorFiresAfterSkippedThreshold(t *testing.T) {
	prober := &flakyProber{failNext: 1000}

	var fired int32
	done := make(chan struct{})
	s := New(Config{Interval: 5 * time.Millisecond, SkippedThreshold: 3}, prober, nil, func() {
		atomic.StoreInt32(&fired, 1)
		close(done)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	defer s.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor never fired despite every probe failing")
	}

	if atomic.LoadInt32(&fired) != 1 {
		t.Fatal("expected onFailure to have fired")
	}
}

func TestSupervisorFiresOnlyOnce(t *testing.T) {
	prober := &flakyProber{failNext: 1000}

	var fireCount int32
	s := New(Config{Interval: 2 * time.Millisecond, SkippedThreshold: 2}, prober, nil, func() {
		atomic.AddInt32(&fireCount, 1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)

	time.Sleep(200 * time.Millisecond)
	cancel()
	s.Stop()
	time.Sleep(20 * time.Millisecond)

	if atomic.LoadInt32(&fireCount) != 1 {
		t.Fatalf("expected exactly one failure to be raised, got %d", fireCount)
	}
}

func TestSupervisorResetsMissesOnSuccess(t *testing.T) {
	prober := &flakyProber{failNext: 1}

	var fired int32
	s := New(Config{Interval: 5 * time.Millisecond, SkippedThreshold: 2}, prober, nil, func() {
		atomic.StoreInt32(&fired, 1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	defer s.Stop()

	time.Sleep(100 * time.Millisecond)

	if atomic.LoadInt32(&fired) != 0 {
		t.Fatal("a single miss followed by successes must not trip the threshold")
	}
}

func TestSupervisorSuppressesWhenDebuggerAttached(t *testing.T) {
	prober := &flakyProber{failNext: 1000}

	var fired int32
	s := New(Config{
		Interval:                   5 * time.Millisecond,
		SkippedThreshold:           2,
		ReportWhenDebuggerAttached: false,
		IsDebuggerAttached:         func() bool { return true },
	}, prober, nil, func() {
		atomic.StoreInt32(&fired, 1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	defer s.Stop()

	time.Sleep(150 * time.Millisecond)

	if atomic.LoadInt32(&fired) != 0 {
		t.Fatal("expected failure to be suppressed while a debugger is attached")
	}
}
