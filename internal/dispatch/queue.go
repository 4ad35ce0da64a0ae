// Package dispatch implements the pending-methods queue: the send-side
// multiplexer that tracks in-flight calls by rpc id and wakes the caller that
// is waiting on a given response (spec §4.3).
package dispatch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/carlosrabelo/sharpremote/internal/grain"
	"github.com/carlosrabelo/sharpremote/internal/wire"
	apperrors "github.com/carlosrabelo/sharpremote/pkg/errors"
)

// maxInFlight is the soft cap on concurrent outstanding calls (spec §4.3).
const maxInFlight = 1000

// PendingCall is one outstanding remote call awaiting a response.
type PendingCall struct {
	RpcID         grain.RpcID
	ServantID     grain.ID
	InterfaceName string
	MethodName    string
	Args          []byte

	done     chan struct{}
	response []byte
	isFault  bool
	err      error
}

// Wait blocks until the call completes, the caller's ctx is cancelled, or the
// queue is torn down, whichever happens first.
func (p *PendingCall) Wait(ctx context.Context) ([]byte, bool, error) {
	select {
	case <-p.done:
		return p.response, p.isFault, p.err
	case <-ctx.Done():
		return nil, false, apperrors.Wrap(apperrors.ConnectionLost, "call cancelled", ctx.Err())
	}
}

// Queue is the per-endpoint pending-call table. One rpc_id names at most one
// in-flight call at a time (spec §4.3 invariant).
type Queue struct {
	allocator *grain.RpcAllocator
	sem       *semaphore.Weighted

	mu      sync.Mutex
	pending map[grain.RpcID]*PendingCall
}

// NewQueue returns an empty queue with the default in-flight cap.
func NewQueue() *Queue {
	return &Queue{
		allocator: &grain.RpcAllocator{},
		sem:       semaphore.NewWeighted(maxInFlight),
		pending:   make(map[grain.RpcID]*PendingCall),
	}
}

// Enqueue registers a new call and blocks (respecting ctx) until a slot under
// the in-flight cap is available. The returned PendingCall must eventually be
// observed via Wait and released via Recycle.
func (q *Queue) Enqueue(ctx context.Context, servantID grain.ID, interfaceName, methodName string, args []byte) (*PendingCall, error) {
	if err := q.sem.Acquire(ctx, 1); err != nil {
		return nil, apperrors.Wrap(apperrors.ConnectionLost, "waiting for in-flight call slot", err)
	}

	call := &PendingCall{
		RpcID:         q.allocator.Next(),
		ServantID:     servantID,
		InterfaceName: interfaceName,
		MethodName:    methodName,
		Args:          args,
		done:          make(chan struct{}),
	}

	q.mu.Lock()
	q.pending[call.RpcID] = call
	q.mu.Unlock()

	return call, nil
}

// TakeNextWrite renders call as the Call frame the write pump should send.
func (q *Queue) TakeNextWrite(call *PendingCall) *wire.Frame {
	return &wire.Frame{
		RpcID:     call.RpcID,
		Type:      wire.Call,
		ServantID: call.ServantID,
		Interface: call.InterfaceName,
		Method:    call.MethodName,
		Payload:   call.Args,
	}
}

// HandleResponse delivers an incoming Return/Return|Exception frame to the
// caller awaiting rpc_id, if any is still pending. Returns false if rpc_id
// names no pending call (a late or duplicate response, logged by the
// endpoint but not otherwise an error).
func (q *Queue) HandleResponse(rpcID grain.RpcID, isFault bool, payload []byte) bool {
	q.mu.Lock()
	call, ok := q.pending[rpcID]
	if ok {
		delete(q.pending, rpcID)
	}
	q.mu.Unlock()
	if !ok {
		return false
	}

	call.response = payload
	call.isFault = isFault
	close(call.done)
	return true
}

// CancelAll fails every still-pending call with reason. Their in-flight
// slots stay held until each caller invokes Recycle. It routes through the same waiter-signal path as a real
// response (close(done)) so a caller blocked in Wait observes the failure
// exactly like it would a Return frame, rather than through a side channel
// (see DESIGN.md Open Question resolution: CancelAllCalls must not bypass
// the waiter signal).
func (q *Queue) CancelAll(reason error) {
	q.mu.Lock()
	toCancel := make([]*PendingCall, 0, len(q.pending))
	for id, call := range q.pending {
		toCancel = append(toCancel, call)
		delete(q.pending, id)
	}
	q.mu.Unlock()

	for _, call := range toCancel {
		call.err = reason
		close(call.done)
	}
}

// Recycle releases the in-flight slot held by call. Callers must invoke this
// exactly once per call returned from Enqueue, after observing its result.
func (q *Queue) Recycle(call *PendingCall) {
	q.sem.Release(1)
}

// Len reports the number of calls currently in flight.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// WaitTimeout is a convenience wrapper for callers that want a fixed
// deadline instead of threading a context through (mirrors the plain
// request/response helpers seen in the mining proxy's pending-request
// table).
func (p *PendingCall) WaitTimeout(d time.Duration) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return p.Wait(ctx)
}
