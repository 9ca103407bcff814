// Package rpc implements a bidirectional JSON-RPC 2.0 peer: Content-Length
// framed messages over arbitrary byte streams, reflection-based dispatch to
// a local target object, and correlated outbound calls with cancellation
// propagation in both directions.
package rpc

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// State is a Peer's lifecycle state.
type State int

const (
	StateActive State = iota
	StateDisconnecting
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "Active"
	case StateDisconnecting:
		return "Disconnecting"
	case StateDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// DisconnectHandler is invoked, exactly once per Peer, when it transitions
// to Disconnected.
type DisconnectHandler func(description string)

// Peer is one end of a bidirectional JSON-RPC 2.0 connection.
type Peer struct {
	w io.Writer
	r io.Reader

	writeMu sync.Mutex

	encMu    sync.Mutex
	encoding string

	codec    *serializer
	registry *registry
	corr     *correlator
	sender   *cancelSender

	mu             sync.Mutex
	state          State
	disconnectDesc string
	handlers       []DisconnectHandler
	inflight       map[string]*cancelToken

	ctx          context.Context
	cancel       context.CancelCauseFunc
	handlerGroup errgroup.Group
	shutdownOnce sync.Once
	done         chan struct{}
	gracePeriod  time.Duration

	logger *slog.Logger
}

// Attach constructs a Peer bound to the given streams. At least one of
// sending/receiving must be non-nil. target, if non-nil, is walked via
// reflect for its exported methods, which become remotely callable; a nil
// target means every inbound request resolves to MethodNotFound unless
// WithRequireTarget was given, in which case construction itself fails.
func Attach(sending io.Writer, receiving io.Reader, target any, opts ...Option) (*Peer, error) {
	if sending == nil && receiving == nil {
		return nil, newLocalError(KindInvalidArgument, "at least one of sending or receiving stream must be set")
	}
	o := resolvePeerOptions(opts...)
	if o.requireTarget && target == nil {
		return nil, newLocalError(KindTargetNotSet, "no target was supplied and WithRequireTarget was set")
	}

	ctx, cancel := context.WithCancelCause(context.Background())

	p := &Peer{
		w:           sending,
		r:           receiving,
		encoding:    o.encoding,
		codec:       newSerializer(o.converters),
		registry:    newRegistry(target),
		corr:        newCorrelator(),
		sender:      newCancelSender(),
		state:       StateActive,
		inflight:    make(map[string]*cancelToken),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		gracePeriod: o.gracePeriod,
		logger:      o.logger,
	}

	if receiving != nil {
		go p.readLoop(ctx)
	}
	go p.sender.run(ctx, p.sendCancelNotification)

	return p, nil
}

// Encoding returns the current outbound frame encoding.
func (p *Peer) Encoding() string {
	p.encMu.Lock()
	defer p.encMu.Unlock()
	return p.encoding
}

// SetEncoding changes the outbound frame encoding. An empty string fails
// synchronously with InvalidArgument and leaves the prior encoding in place.
func (p *Peer) SetEncoding(encoding string) error {
	if encoding == "" {
		return newLocalError(KindInvalidArgument, "encoding must not be empty")
	}
	p.encMu.Lock()
	p.encoding = encoding
	p.encMu.Unlock()
	return nil
}

func (p *Peer) currentEncoding() string {
	p.encMu.Lock()
	defer p.encMu.Unlock()
	return p.encoding
}

// Converters returns the converter set the serializer facade was
// constructed with.
func (p *Peer) Converters() []Converter {
	return append([]Converter(nil), p.codec.converters...)
}

func (p *Peer) writeMessage(msg *message) error {
	msg.JSONRPC = protocolVersion
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return encodeFrame(p.w, body, p.currentEncoding())
}

// Invoke issues an outbound JSON-RPC request carrying args as a positional
// parameter array — one variadic value per positional argument, mirroring
// StreamJsonRpc's own InvokeAsync(name, object[] arguments) client shape —
// and blocks until the remote's response arrives or the peer disconnects.
// Once the peer has disconnected, Invoke returns a DisconnectedError without
// writing anything. Calling Invoke with no args sends a request with no params field at all,
// so it binds against a zero-arity remote method; use InvokeObject instead
// when the remote method expects a single named-parameter object. If ctx is
// canceled after the request frame is written, a $/cancelRequest
// notification is sent, but per spec.md §4.5 the pending call is NOT
// completed locally by that cancellation — it keeps waiting for the
// remote's eventual response (success, execution failure, or
// canceled-error), exactly as scenario 4 requires.
func (p *Peer) Invoke(ctx context.Context, method string, result any, args ...any) error {
	if p.w == nil || p.r == nil {
		return newLocalError(KindInvalidOperation, "peer needs both a sending and a receiving stream to invoke")
	}
	if ctx.Err() != nil {
		return CanceledError{}
	}

	paramsRaw, err := marshalPositionalParams(p.codec, args)
	if err != nil {
		return newLocalError(KindInvalidArgument, "marshal params: %v", err)
	}
	return p.invoke(ctx, method, paramsRaw, result)
}

// InvokeObject issues an outbound JSON-RPC request whose params is params
// marshaled directly as a single JSON value — typically a struct or map,
// producing a named-parameter object on the wire — rather than wrapped in a
// positional array. Use this when the remote method binds via a single
// struct parameter (see bindNamed). A nil params omits the params field, the
// same as calling Invoke with no args.
func (p *Peer) InvokeObject(ctx context.Context, method string, params any, result any) error {
	if p.w == nil || p.r == nil {
		return newLocalError(KindInvalidOperation, "peer needs both a sending and a receiving stream to invoke")
	}
	if ctx.Err() != nil {
		return CanceledError{}
	}

	paramsRaw, err := marshalObjectParams(p.codec, params)
	if err != nil {
		return newLocalError(KindInvalidArgument, "marshal params: %v", err)
	}
	return p.invoke(ctx, method, paramsRaw, result)
}

func (p *Peer) invoke(ctx context.Context, method string, paramsRaw json.RawMessage, result any) error {
	id, pc := p.corr.allocate()
	// Checked after allocate: fail leaves Active before it drains the
	// correlator, so a call allocated after that drain is caught here rather
	// than waiting on a slot nothing will ever complete.
	if p.State() != StateActive {
		p.corr.forget(id)
		return &DisconnectedError{Description: p.disconnectDescription()}
	}
	wireID := ID{Num: id}
	if err := p.writeMessage(&message{ID: &wireID, Method: method, Params: paramsRaw}); err != nil {
		p.corr.forget(id)
		return &DisconnectedError{Description: err.Error()}
	}

	armed := make(chan struct{})
	defer close(armed)
	go func() {
		select {
		case <-ctx.Done():
			p.sender.enqueue(id)
		case <-armed:
		}
	}()

	resp, ok := <-pc.ch
	if !ok {
		return &DisconnectedError{Description: p.disconnectDescription()}
	}
	return p.finishInvoke(resp, result)
}

func (p *Peer) finishInvoke(resp *message, result any) error {
	if resp.Error != nil {
		return p.translateWireError(resp.Error)
	}
	if result != nil && len(resp.Result) > 0 {
		if err := p.codec.unmarshalValue(resp.Result, result); err != nil {
			return newLocalError(KindInvalidArgument, "unmarshal result: %v", err)
		}
	}
	return nil
}

func (p *Peer) translateWireError(e *wireError) error {
	if e.Code == CodeMethodNotFound {
		return &RemoteMethodNotFoundError{Message: e.Message}
	}
	var data errorData
	_ = json.Unmarshal(e.Data, &data)
	return &RemoteInvocationFailure{Message: e.Message, RemoteCode: data.Code, RemoteStack: data.Stack}
}

// Notify issues a one-way JSON-RPC notification carrying args as a
// positional parameter array, the same shape Invoke sends; there is no
// response to wait for. Once the peer has disconnected, Notify returns a
// DisconnectedError without writing anything.
func (p *Peer) Notify(ctx context.Context, method string, args ...any) error {
	paramsRaw, err := marshalPositionalParams(p.codec, args)
	if err != nil {
		return newLocalError(KindInvalidArgument, "marshal params: %v", err)
	}
	return p.notify(ctx, method, paramsRaw)
}

// NotifyObject issues a one-way JSON-RPC notification whose params is params
// marshaled directly as a single JSON value, the same shape InvokeObject
// sends.
func (p *Peer) NotifyObject(ctx context.Context, method string, params any) error {
	paramsRaw, err := marshalObjectParams(p.codec, params)
	if err != nil {
		return newLocalError(KindInvalidArgument, "marshal params: %v", err)
	}
	return p.notify(ctx, method, paramsRaw)
}

func (p *Peer) notify(ctx context.Context, method string, paramsRaw json.RawMessage) error {
	if p.w == nil {
		return newLocalError(KindInvalidOperation, "peer has no sending stream")
	}
	if ctx.Err() != nil {
		return CanceledError{}
	}
	if p.State() != StateActive {
		return &DisconnectedError{Description: p.disconnectDescription()}
	}
	if err := p.writeMessage(&message{Method: method, Params: paramsRaw}); err != nil {
		return &DisconnectedError{Description: err.Error()}
	}
	return nil
}

// marshalPositionalParams encodes outbound args as a JSON params array. No
// args at all omits the params field entirely — the idiomatic Go way to
// invoke a zero-arity remote method — rather than sending an empty array or
// a literal null; see DESIGN.md's Open Questions for why absent and
// explicit-null params must stay distinct all the way out to this call
// boundary. Each element still goes through the serializer's converters.
func marshalPositionalParams(codec *serializer, args []any) (json.RawMessage, error) {
	if len(args) == 0 {
		return nil, nil
	}
	raws := make([]json.RawMessage, len(args))
	for i, a := range args {
		raw, err := codec.marshalValue(a)
		if err != nil {
			return nil, err
		}
		raws[i] = raw
	}
	return json.Marshal(raws)
}

// marshalObjectParams encodes a single outbound params value directly, for
// InvokeObject/NotifyObject. A nil params omits the field entirely, mirroring
// marshalPositionalParams's no-args case; a typed nil still marshals to an
// explicit JSON null.
func marshalObjectParams(codec *serializer, params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	return codec.marshalValue(params)
}

func (p *Peer) sendCancelNotification(id uint64) {
	raw, err := json.Marshal(cancelRequestParams{ID: ID{Num: id}})
	if err != nil {
		return
	}
	_ = p.writeMessage(&message{Method: cancelMethod, Params: raw})
}
