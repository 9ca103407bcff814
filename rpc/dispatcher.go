package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"runtime"
)

// readLoop is the single reader goroutine for a Peer's receiving stream:
// every inbound frame is decoded and classified here before being routed to
// its handler. Grounded on stefanvanburen-cells.Conn.readLoop's
// probe-then-decode shape and coder-acp-go-sdk.receive's per-request
// goroutine + synchronous-cancel handling.
func (p *Peer) readLoop(ctx context.Context) {
	br := bufio.NewReader(p.r)
	for {
		body, _, err := decodeFrame(br)
		if err != nil {
			p.fail(fmt.Sprintf("frame read failed: %v", err))
			return
		}

		msg, err := decodeMessage(body)
		if err != nil {
			p.fail(fmt.Sprintf("malformed message: %v", err))
			return
		}

		switch {
		case msg.Method == cancelMethod && msg.ID == nil:
			// Handled synchronously, inline on the reader goroutine, so a
			// cancellation always takes effect before any notification
			// queued after it is even read — coder-acp-go-sdk's
			// connection.go carries an explicit comment making the same
			// choice for the same reason.
			p.handleInboundCancel(msg)
		case msg.Method != "" && msg.ID != nil:
			p.handleRequest(ctx, msg)
		case msg.Method != "" && msg.ID == nil:
			p.handleNotification(ctx, msg)
		case msg.Method == "" && msg.ID != nil:
			p.handleResponse(msg)
		default:
			p.logger.Error("rpc: received message with neither method nor id")
		}
	}
}

func (p *Peer) handleInboundCancel(msg *message) {
	var params cancelRequestParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		p.logger.Error("rpc: malformed $/cancelRequest params", "err", err)
		return
	}
	key := inboundKey(params.ID)
	p.mu.Lock()
	token := p.inflight[key]
	p.mu.Unlock()
	if token == nil {
		return // already completed, or no such in-flight request: ignored
	}
	token.Trigger(context.Canceled)
}

func (p *Peer) handleRequest(ctx context.Context, msg *message) {
	if p.w == nil {
		p.fail(fmt.Sprintf("received request %q with no sending stream to respond on", msg.Method))
		return
	}

	key := inboundKey(*msg.ID)
	token := newCancelToken(ctx)
	p.mu.Lock()
	p.inflight[key] = token
	p.mu.Unlock()

	id := *msg.ID
	method := msg.Method
	params := msg.Params

	p.handlerGroup.Go(func() error {
		defer func() {
			p.mu.Lock()
			delete(p.inflight, key)
			p.mu.Unlock()
			token.Trigger(nil)
		}()

		result, rpcErr := p.invokeTarget(token.Context(), method, params)
		p.respond(id, result, rpcErr)
		return nil
	})
}

func (p *Peer) handleNotification(ctx context.Context, msg *message) {
	method := msg.Method
	params := msg.Params
	p.handlerGroup.Go(func() error {
		_, rpcErr := p.invokeTarget(ctx, method, params)
		if rpcErr != nil {
			// Notifications have no response to carry a failure back on;
			// per spec.md §4.6 this is reported, never sent back — the
			// closest in-pack precedent is coder-acp-go-sdk logging a failed
			// extension-notification handler rather than tearing down the
			// connection.
			p.logger.Error("rpc: notification handler failed", "method", method, "code", rpcErr.Code, "message", rpcErr.Message)
		}
		return nil
	})
}

func (p *Peer) handleResponse(msg *message) {
	if msg.ID.IsString {
		// Outbound ids are always peer-allocated numeric ids; a string-id
		// response can never correlate to a pending call of ours.
		return
	}
	p.corr.resolve(msg.ID.Num, msg)
}

func (p *Peer) respond(id ID, result json.RawMessage, rpcErr *wireError) {
	if p.w == nil {
		return
	}
	msg := &message{ID: &id}
	if rpcErr != nil {
		msg.Error = rpcErr
	} else {
		msg.Result = result
	}
	if err := p.writeMessage(msg); err != nil {
		p.logger.Error("rpc: failed to write response", "id", id.String(), "err", err)
	}
}

// invokeTarget resolves method against the registry, binds params to the
// first candidate that accepts them, invokes it with a recovered panic
// boundary, and converts the outcome to a response payload.
func (p *Peer) invokeTarget(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, *wireError) {
	candidates := p.registry.candidates(method)
	if len(candidates) == 0 {
		return nil, methodNotFoundError(method)
	}

	bound, ok := bind(candidates, params, p.codec)
	if !ok {
		return nil, methodNotFoundError(method)
	}

	args := bound.args
	if bound.entry.AcceptsCancel {
		args = append([]reflect.Value{reflect.ValueOf(ctx)}, args...)
	}

	results, panicVal := safeCall(bound.entry.Receiver, args)
	if panicVal != nil {
		buf := make([]byte, 4096)
		n := runtime.Stack(buf, false)
		return nil, panicError(panicVal, string(buf[:n]))
	}

	return p.toResponsePayload(ctx, bound.entry, results)
}

func safeCall(fn reflect.Value, args []reflect.Value) (out []reflect.Value, panicVal any) {
	defer func() {
		if r := recover(); r != nil {
			panicVal = r
		}
	}()
	out = fn.Call(args)
	return out, nil
}

func (p *Peer) toResponsePayload(ctx context.Context, entry *methodEntry, results []reflect.Value) (json.RawMessage, *wireError) {
	var value any
	var errVal error

	idx := 0
	if entry.ReturnsValue {
		value = results[idx].Interface()
		idx++
	}
	if entry.ReturnsError {
		if e, _ := results[idx].Interface().(error); e != nil {
			errVal = e
		}
	}

	if errVal != nil {
		if ctx.Err() != nil {
			return nil, canceledError()
		}
		return nil, executionError(errVal)
	}

	raw, err := p.codec.marshalValue(value)
	if err != nil {
		return nil, internalError(fmt.Sprintf("marshal result: %v", err))
	}
	return raw, nil
}
