package rpc

import (
	"log/slog"
	"time"
)

const defaultCancelGracePeriod = 5 * time.Second

// Option configures a Peer at construction time. Grounded on
// dmora-agentrun/engine/acp/options.go's EngineOption/resolveEngineOptions
// functional-options pattern.
type Option func(*peerOptions)

type peerOptions struct {
	encoding       string
	converters     []Converter
	logger         *slog.Logger
	gracePeriod    time.Duration
	requireTarget  bool
}

// WithEncoding sets the outbound frame encoding announced in Content-Type.
// The empty string is ignored (use SetEncoding's validation instead of
// silently falling back).
func WithEncoding(encoding string) Option {
	return func(o *peerOptions) {
		if encoding != "" {
			o.encoding = encoding
		}
	}
}

// WithConverters installs the converter set the serializer facade consults
// for params and result payloads.
func WithConverters(converters ...Converter) Option {
	return func(o *peerOptions) { o.converters = converters }
}

// WithLogger sets the logger used for non-fatal diagnostics (malformed
// inbound notifications, write failures while responding, and similar).
// The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *peerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithCancelGracePeriod bounds how long Shutdown waits for in-flight
// handlers to finish before returning anyway.
func WithCancelGracePeriod(d time.Duration) Option {
	return func(o *peerOptions) {
		if d > 0 {
			o.gracePeriod = d
		}
	}
}

// WithRequireTarget makes Attach fail fast with a TargetNotSet LocalError
// when no target is supplied, instead of silently constructing a peer that
// can only ever respond MethodNotFound to inbound requests.
func WithRequireTarget() Option {
	return func(o *peerOptions) { o.requireTarget = true }
}

func resolvePeerOptions(opts ...Option) peerOptions {
	o := peerOptions{
		encoding:    defaultEncoding,
		gracePeriod: defaultCancelGracePeriod,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
