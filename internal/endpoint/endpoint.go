package endpoint

import (
	"context"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/carlosrabelo/sharpremote/internal/dispatch"
	"github.com/carlosrabelo/sharpremote/internal/grain"
	intmetrics "github.com/carlosrabelo/sharpremote/internal/metrics"
	"github.com/carlosrabelo/sharpremote/internal/proxysocks"
	"github.com/carlosrabelo/sharpremote/internal/ratelimit"
	"github.com/carlosrabelo/sharpremote/internal/registry"
	"github.com/carlosrabelo/sharpremote/internal/wire"
	apperrors "github.com/carlosrabelo/sharpremote/pkg/errors"
	"github.com/carlosrabelo/sharpremote/pkg/logger"
)

// defaultDispatchWorkers bounds the worker pool that runs servant Invoke
// hooks off the read pump, avoiding head-of-line blocking on a slow call
// (spec §5: "bounded dispatch pool default 16 workers").
const defaultDispatchWorkers = 16

// dialTimeout bounds how long Connect waits to establish the TCP leg before
// the handshake even starts.
const dialTimeout = 10 * time.Second

// Options configures an Endpoint at construction time.
type Options struct {
	Name           string
	MaxFrameSize   uint32
	OfferCompress  bool
	DispatchWorkers int
	RateLimiter    *ratelimit.Limiter
	ProxyDialer    *proxysocks.PeerDialer
	Metrics        *intmetrics.Collector
	OnFailure      func(DisconnectReason)
}

// Endpoint is one side of a remoting connection: owns the registry, the
// pending-call queue, and the read/write pumps for exactly one peer at a
// time (spec §4.5).
type Endpoint struct {
	name            string
	maxFrameSize    uint32
	offerCompress   bool
	dispatchWorkers int
	rateLimiter     *ratelimit.Limiter
	dialer          *proxysocks.PeerDialer
	metrics         *intmetrics.Collector
	onFailure       func(DisconnectReason)
	log             *logger.Logger

	Registry *registry.Registry
	Queue    *dispatch.Queue
	prober   *heartbeatProber

	mu     sync.Mutex
	state  State
	conn   net.Conn
	codec  *wire.Codec
	cancel context.CancelFunc
	dspSem *semaphore.Weighted

	writeCh chan *wire.Frame
}

// New constructs an Endpoint. The registry's CallForwarder is the endpoint
// itself, wired in after construction to avoid an import cycle.
func New(opts Options) *Endpoint {
	if opts.DispatchWorkers == 0 {
		opts.DispatchWorkers = defaultDispatchWorkers
	}
	e := &Endpoint{
		name:            opts.Name,
		maxFrameSize:    opts.MaxFrameSize,
		offerCompress:   opts.OfferCompress,
		dispatchWorkers: opts.DispatchWorkers,
		rateLimiter:     opts.RateLimiter,
		dialer:          opts.ProxyDialer,
		metrics:         opts.Metrics,
		onFailure:       opts.OnFailure,
		log:             logger.New().WithField("endpoint", opts.Name),
		Queue:           dispatch.NewQueue(),
		state:           Disconnected,
	}
	e.Registry = registry.New(e)
	if e.metrics != nil {
		e.Registry.SetMetrics(e.metrics)
	}
	e.dspSem = semaphore.NewWeighted(int64(e.dispatchWorkers))
	e.prober = newHeartbeatProber(e)
	return e
}

// Probe issues one heartbeat round trip against the peer. It satisfies
// heartbeat.Prober so an Endpoint can be handed directly to a
// heartbeat.Supervisor.
func (e *Endpoint) Probe(ctx context.Context) error {
	return e.prober.Probe(ctx)
}

// State reports the endpoint's current connection state.
func (e *Endpoint) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Endpoint) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.SetConnected(s == Connected)
	}
}

// Connect dials addr (optionally through a configured SOCKS5 proxy),
// performs the handshake, and starts the read/write pumps. It blocks until
// the handshake completes or fails.
func (e *Endpoint) Connect(ctx context.Context, addr string) error {
	e.setState(Connecting)

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	var conn net.Conn
	var err error
	if e.dialer != nil {
		conn, err = e.dialer.DialContext(dialCtx, "tcp", addr)
	} else {
		d := &net.Dialer{Timeout: dialTimeout}
		conn, err = d.DialContext(dialCtx, "tcp", addr)
	}
	if err != nil {
		e.setState(Faulted)
		return apperrors.Wrap(apperrors.ConnectionLost, "dial peer", err)
	}

	return e.handshakeAndServe(ctx, conn, true)
}

// Bind opens a loopback-or-any listener for accepting a single inbound peer.
func (e *Endpoint) Bind(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.NotConnected, "bind listener", err)
	}
	return ln, nil
}

// Serve accepts exactly one peer from ln, applying admission control and
// refusing a second concurrent peer while one is already Connected (spec
// §4.5: one-peer-per-endpoint enforced at the transport boundary).
func (e *Endpoint) Serve(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return apperrors.Wrap(apperrors.ReadFailure, "accept connection", err)
		}

		if e.State() == Connected {
			e.log.Warn("rejecting second peer %s while already connected", conn.RemoteAddr())
			_ = conn.Close()
			continue
		}

		if e.rateLimiter != nil && !e.rateLimiter.AllowConnection(conn.RemoteAddr()) {
			e.log.Warn("rate limit rejected connection from %s", conn.RemoteAddr())
			_ = conn.Close()
			continue
		}

		err = e.handshakeAndServe(ctx, conn, false)
		if e.rateLimiter != nil {
			e.rateLimiter.ReleaseConnection(conn.RemoteAddr())
		}
		return err
	}
}

func (e *Endpoint) handshakeAndServe(ctx context.Context, conn net.Conn, initiator bool) error {
	e.setState(Handshaking)

	if err := wire.WriteHandshake(conn, wire.Handshake{Name: e.name, OfferCompress: e.offerCompress}); err != nil {
		_ = conn.Close()
		e.setState(Faulted)
		return err
	}
	peer, err := wire.ReadHandshake(conn)
	if err != nil {
		_ = conn.Close()
		e.setState(Faulted)
		return err
	}

	compress := e.offerCompress && peer.OfferCompress

	e.mu.Lock()
	e.conn = conn
	e.codec = &wire.Codec{MaxFrameSize: e.maxFrameSize, Compress: compress}
	if e.codec.MaxFrameSize == 0 {
		e.codec.MaxFrameSize = wire.DefaultMaxFrameSize
	}
	e.writeCh = make(chan *wire.Frame, 256)
	e.mu.Unlock()

	e.log.Info("handshake complete with peer %q (compress=%v)", peer.Name, compress)
	e.setState(Connected)

	groupCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(groupCtx)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()

	group.Go(func() error { return e.readPump(groupCtx) })
	group.Go(func() error { return e.writePump(groupCtx) })

	err = group.Wait()
	e.teardown(conn, classifyErr(err))
	return err
}

func classifyErr(err error) DisconnectReason {
	if err == nil {
		return ReasonRequestedByEndPoint
	}
	switch {
	case apperrors.OfKind(err, apperrors.ReadFailure):
		return ReasonReadFailure
	case apperrors.OfKind(err, apperrors.RpcInvalidResponse):
		return ReasonRpcInvalidResponse
	case apperrors.OfKind(err, apperrors.HandshakeFailure):
		return ReasonHandshakeFailure
	default:
		return ReasonUnhandledException
	}
}

func (e *Endpoint) teardown(conn net.Conn, reason DisconnectReason) {
	e.setState(Disconnecting)
	_ = conn.Close()
	e.Queue.CancelAll(apperrors.New(apperrors.ConnectionLost, string(reason)))
	e.setState(Disconnected)
	if e.onFailure != nil && reason != ReasonRequestedByEndPoint && reason != ReasonRequestedByRemoteEnd {
		e.onFailure(reason)
	}
}

// Dispose tears the endpoint down if connected. Idempotent; safe to call on
// an already-disconnected endpoint.
func (e *Endpoint) Dispose() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// InvokeRemote sends a Call frame for a proxy and blocks for the response.
// It satisfies registry.CallForwarder.
func (e *Endpoint) InvokeRemote(servantID grain.ID, interfaceName, methodName string, args []byte) ([]byte, bool, error) {
	if e.State() != Connected {
		return nil, false, apperrors.New(apperrors.NotConnected, "endpoint is not connected")
	}

	ctx := context.Background()
	call, err := e.Queue.Enqueue(ctx, servantID, interfaceName, methodName, args)
	if err != nil {
		return nil, false, err
	}
	defer e.Queue.Recycle(call)
	if e.metrics != nil {
		e.metrics.IncrementPending()
		defer e.metrics.DecrementPending()
	}

	e.writeCh <- e.Queue.TakeNextWrite(call)

	result, isFault, err := call.Wait(ctx)
	if e.metrics != nil {
		if err != nil || isFault {
			e.metrics.IncrementCallsBad()
		} else {
			e.metrics.IncrementCallsOK()
		}
	}
	return result, isFault, err
}
