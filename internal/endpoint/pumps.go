package endpoint

import (
	"context"

	"github.com/carlosrabelo/sharpremote/internal/grain"
	"github.com/carlosrabelo/sharpremote/internal/wire"
	apperrors "github.com/carlosrabelo/sharpremote/pkg/errors"
)

// writePump drains the write channel, emitting frames and the final Goodbye
// on shutdown (spec §4.5: "write pump drains the pending queue, emits
// frames, and flushes").
func (e *Endpoint) writePump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			goodbye := &wire.Frame{RpcID: 0, Type: wire.Goodbye}
			_ = e.codec.WriteFrame(e.conn, goodbye)
			return nil
		case frame := <-e.writeCh:
			if err := e.codec.WriteFrame(e.conn, frame); err != nil {
				return err
			}
		}
	}
}

// readPump reads one frame at a time and dispatches it per spec §4.5.
func (e *Endpoint) readPump(ctx context.Context) error {
	for {
		frame, err := e.codec.ReadFrame(e.conn)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		switch {
		case frame.Type.IsCall():
			if err := e.dspSem.Acquire(ctx, 1); err != nil {
				return nil
			}
			go e.dispatchCall(frame)

		case frame.Type == wire.Return || frame.Type == wire.Return|wire.Exception:
			isFault := frame.Type&wire.Exception != 0
			e.Queue.HandleResponse(frame.RpcID, isFault, frame.Payload)

		case frame.Type == wire.Heartbeat:
			if !e.prober.deliver(frame.RpcID) {
				select {
				case e.writeCh <- &wire.Frame{RpcID: frame.RpcID, Type: wire.Heartbeat}:
				case <-ctx.Done():
					return nil
				}
			}

		case frame.Type == wire.Goodbye:
			e.Queue.CancelAll(apperrors.New(apperrors.ConnectionLost, string(ReasonRequestedByRemoteEnd)))
			return nil

		default:
			return apperrors.New(apperrors.RpcInvalidResponse, "unknown frame type in read pump")
		}
	}
}

// dispatchCall runs a servant's Invoke hook off the read pump so a slow
// call cannot block other in-flight traffic (spec §4.5, §5: bounded
// dispatch pool).
func (e *Endpoint) dispatchCall(frame *wire.Frame) {
	defer e.dspSem.Release(1)

	result, isFault, err := e.invokeLocal(frame.ServantID, frame.Interface, frame.Method, frame.Payload)

	respType := wire.Return
	if isFault || err != nil {
		respType = wire.Return | wire.Exception
	}
	if err != nil {
		result = []byte(err.Error())
	}

	reply := &wire.Frame{RpcID: frame.RpcID, Type: respType, Payload: result}
	e.writeCh <- reply
}

func (e *Endpoint) invokeLocal(servantID grain.ID, interfaceName, methodName string, args []byte) ([]byte, bool, error) {
	servant, ok := e.Registry.LookupServant(servantID)
	if !ok {
		return nil, false, apperrors.New(apperrors.NoSuchServant, "no servant for incoming call")
	}
	invoker, ok := servant.Subject.(Invoker)
	if !ok {
		return nil, false, apperrors.New(apperrors.UnhandledException, "servant subject does not implement Invoker")
	}
	return invoker.Invoke(interfaceName, methodName, args)
}
