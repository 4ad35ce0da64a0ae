package endpoint

import (
	"context"
	"sync"

	"github.com/carlosrabelo/sharpremote/internal/grain"
	"github.com/carlosrabelo/sharpremote/internal/wire"
	apperrors "github.com/carlosrabelo/sharpremote/pkg/errors"
)

// heartbeatProber issues Heartbeat frames against the peer and waits for
// the matching reply, outside the call dispatch queue since Heartbeat
// frames carry no servant_id/interface/method header (spec §6).
type heartbeatProber struct {
	endpoint  *Endpoint
	allocator grain.RpcAllocator

	mu      sync.Mutex
	waiters map[grain.RpcID]chan struct{}
}

func newHeartbeatProber(e *Endpoint) *heartbeatProber {
	return &heartbeatProber{endpoint: e, waiters: make(map[grain.RpcID]chan struct{})}
}

// Probe satisfies heartbeat.Prober.
func (p *heartbeatProber) Probe(ctx context.Context) error {
	if p.endpoint.State() != Connected {
		return apperrors.New(apperrors.NotConnected, "endpoint is not connected")
	}

	rpcID := p.allocator.Next()
	wait := make(chan struct{})

	p.mu.Lock()
	p.waiters[rpcID] = wait
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.waiters, rpcID)
		p.mu.Unlock()
	}()

	select {
	case p.endpoint.writeCh <- &wire.Frame{RpcID: rpcID, Type: wire.Heartbeat}:
	case <-ctx.Done():
		return apperrors.Wrap(apperrors.ConnectionLost, "heartbeat probe cancelled", ctx.Err())
	}

	select {
	case <-wait:
		return nil
	case <-ctx.Done():
		return apperrors.Wrap(apperrors.ConnectionLost, "heartbeat probe timed out", ctx.Err())
	}
}

// deliver wakes a pending probe if rpcID matches one, mirroring
// dispatch.Queue.HandleResponse's signal-the-waiter shape. It is called
// from the read pump when a Heartbeat frame arrives, and reports whether
// the frame was in fact a reply to one of our own probes (in which case
// the read pump must not echo it back, or the two sides would ping-pong
// forever).
func (p *heartbeatProber) deliver(rpcID grain.RpcID) bool {
	p.mu.Lock()
	wait, ok := p.waiters[rpcID]
	p.mu.Unlock()
	if ok {
		close(wait)
	}
	return ok
}
