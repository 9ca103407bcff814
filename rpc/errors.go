package rpc

import "fmt"

// Kind classifies a LocalError: a failure the caller is responsible for,
// reported synchronously and never put on the wire.
type Kind string

const (
	KindInvalidArgument  Kind = "InvalidArgument"
	KindInvalidOperation Kind = "InvalidOperation"
	KindTargetNotSet     Kind = "TargetNotSet"
)

// LocalError is returned synchronously at the call site for caller misuse.
type LocalError struct {
	Kind Kind
	Msg  string
}

func (e *LocalError) Error() string { return fmt.Sprintf("rpc: %s: %s", e.Kind, e.Msg) }

func newLocalError(kind Kind, format string, args ...any) *LocalError {
	return &LocalError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// RemoteInvocationFailure reconstitutes a remote execution failure (including
// a remote cancellation, which carries both fields nil) on the caller's side.
type RemoteInvocationFailure struct {
	Message     string
	RemoteCode  *string
	RemoteStack *string
}

func (e *RemoteInvocationFailure) Error() string {
	if e.RemoteCode != nil {
		return fmt.Sprintf("rpc: remote invocation failed (code %s): %s", *e.RemoteCode, e.Message)
	}
	return fmt.Sprintf("rpc: remote invocation failed: %s", e.Message)
}

// RemoteMethodNotFoundError surfaces a MethodNotFound error response at the
// caller of Invoke.
type RemoteMethodNotFoundError struct {
	Message string
}

func (e *RemoteMethodNotFoundError) Error() string {
	return fmt.Sprintf("rpc: remote method not found: %s", e.Message)
}

// CanceledError is returned when Invoke observes its context already
// canceled before any frame is written.
type CanceledError struct{}

func (CanceledError) Error() string { return "rpc: canceled" }

// DisconnectedError is returned by operations that fail because the peer has
// disconnected.
type DisconnectedError struct {
	Description string
}

func (e *DisconnectedError) Error() string {
	return fmt.Sprintf("rpc: disconnected: %s", e.Description)
}

// Wire error codes. CodeRequestCanceled (-32800) matches StreamJsonRpc's own
// convention for a canceled request, carried through unchanged from
// other_examples/4b7009e4_..._vsrpc-handler.go.
const (
	CodeParseError      = -32700
	CodeInvalidRequest  = -32600
	CodeMethodNotFound  = -32601
	CodeInvalidParams   = -32602
	CodeInternalError   = -32603
	CodeRequestCanceled = -32800
)

func methodNotFoundError(method string) *wireError {
	return &wireError{Code: CodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", method)}
}

func internalError(msg string) *wireError {
	return &wireError{Code: CodeInternalError, Message: msg}
}

// executionError builds the wire error for a method that returned a non-nil
// error. A returned error may optionally implement CodeProvider to surface a
// platform-specific code, mirroring a recovered exception's HResult/errno.
func executionError(err error) *wireError {
	var code *string
	if cp, ok := err.(CodeProvider); ok {
		c := cp.RPCCode()
		code = &c
	}
	return &wireError{
		Code:    CodeInternalError,
		Message: err.Error(),
		Data:    marshalErrorData(errorData{Code: code}),
	}
}

// canceledError builds the wire error for a handler whose context was
// canceled; both remoteCode and remoteStack are null.
func canceledError() *wireError {
	return &wireError{
		Code:    CodeRequestCanceled,
		Message: "canceled",
		Data:    marshalErrorData(errorData{}),
	}
}

// panicError builds the wire error for a recovered handler panic, carrying a
// captured stack trace the way other_examples/4b7009e4_..._vsrpc-handler.go
// does on recover.
func panicError(recovered any, stack string) *wireError {
	return &wireError{
		Code:    CodeInternalError,
		Message: fmt.Sprintf("panic: %v", recovered),
		Data:    marshalErrorData(errorData{Stack: &stack}),
	}
}

// CodeProvider may be implemented by an error returned from a dispatched
// method to attach a platform-specific code to the error response.
type CodeProvider interface {
	RPCCode() string
}
