package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/nalgeon/be"
)

// echoTarget is attached to the server side of each test pipe and exercises
// the registry/binder/serializer pipeline end to end.
type echoTarget struct {
	blockUntilCanceled chan struct{}
}

func (t *echoTarget) Echo(s string) (string, error) { return s, nil }

func (t *echoTarget) Add(a int, b int) (int, error) { return a + b, nil }

func (t *echoTarget) Fail() (string, error) { return "", errors.New("boom") }

func (t *echoTarget) BlockUntilCanceled(ctx context.Context) (string, error) {
	close(t.blockUntilCanceled)
	<-ctx.Done()
	return "", ctx.Err()
}

// setupPeers wires a client Peer and a server Peer together over an
// in-process net.Pipe, mirroring internal/lsp/lsp_test.go's setupLSPServer.
func setupPeers(t *testing.T, target any) (client, server *Peer) {
	t.Helper()
	c1, c2 := net.Pipe()

	server, err := Attach(c2, c2, target)
	be.Err(t, err, nil)
	client, err = Attach(c1, c1, nil)
	be.Err(t, err, nil)

	t.Cleanup(func() {
		client.Shutdown()
		server.Shutdown()
	})
	return client, server
}

func TestInvokeRoundTripEcho(t *testing.T) {
	client, _ := setupPeers(t, &echoTarget{})

	var result string
	err := client.Invoke(context.Background(), "Echo", &result, "hello")
	be.Err(t, err, nil)
	be.Equal(t, result, "hello")
}

func TestInvokeRoundTripLargeString(t *testing.T) {
	client, _ := setupPeers(t, &echoTarget{})

	large := make([]byte, 1<<20)
	for i := range large {
		large[i] = 'x'
	}

	var result string
	err := client.Invoke(context.Background(), "Echo", &result, string(large))
	be.Err(t, err, nil)
	be.Equal(t, len(result), len(large))
}

func TestInvokeMultiArgPositional(t *testing.T) {
	client, _ := setupPeers(t, &echoTarget{})

	var sum int
	err := client.Invoke(context.Background(), "Add", &sum, 2, 3)
	be.Err(t, err, nil)
	be.Equal(t, sum, 5)
}

func TestInvokeMethodNotFound(t *testing.T) {
	client, _ := setupPeers(t, &echoTarget{})

	var result string
	err := client.Invoke(context.Background(), "NoSuchMethod", &result)
	var notFound *RemoteMethodNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected RemoteMethodNotFoundError, got %v", err)
	}
}

func TestInvokeExecutionFailureSurfacesAsRemoteInvocationFailure(t *testing.T) {
	client, _ := setupPeers(t, &echoTarget{})

	var result string
	err := client.Invoke(context.Background(), "Fail", &result)
	var failure *RemoteInvocationFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected RemoteInvocationFailure, got %v", err)
	}
	be.Equal(t, failure.Message, "boom")
}

func TestInvokeCancellationSendsNotificationAndAwaitsCanceledResponse(t *testing.T) {
	target := &echoTarget{blockUntilCanceled: make(chan struct{})}
	client, _ := setupPeers(t, target)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- client.Invoke(ctx, "BlockUntilCanceled", nil)
	}()

	select {
	case <-target.blockUntilCanceled:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never started")
	}

	cancel()

	select {
	case err := <-done:
		var failure *RemoteInvocationFailure
		if !errors.As(err, &failure) {
			t.Fatalf("expected RemoteInvocationFailure for canceled call, got %v", err)
		}
		if failure.RemoteCode != nil || failure.RemoteStack != nil {
			t.Fatalf("expected nil remote code/stack for a canceled response, got %+v", failure)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Invoke never returned after cancellation")
	}
}

func TestNotifyDoesNotWaitForResponse(t *testing.T) {
	client, _ := setupPeers(t, &echoTarget{})
	err := client.Notify(context.Background(), "Echo", "fire and forget")
	be.Err(t, err, nil)
}

func TestShutdownIsIdempotentAndFiresDisconnectOnce(t *testing.T) {
	client, _ := setupPeers(t, &echoTarget{})

	var calls int
	var mu sync.Mutex
	client.OnDisconnect(func(string) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	client.Shutdown()
	client.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	be.Equal(t, calls, 1)
	be.Equal(t, client.State(), StateDisconnected)
}

func TestOnDisconnectAfterDisconnectReplaysSynchronously(t *testing.T) {
	client, _ := setupPeers(t, &echoTarget{})
	client.Shutdown()

	called := false
	client.OnDisconnect(func(string) { called = true })
	be.Equal(t, called, true)
}

func TestInvokeFailsFastWhenAlreadyCanceled(t *testing.T) {
	client, _ := setupPeers(t, &echoTarget{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.Invoke(ctx, "Echo", nil, "x")
	var canceled CanceledError
	if !errors.As(err, &canceled) {
		t.Fatalf("expected CanceledError, got %v", err)
	}
}

func TestAttachRejectsNoStreams(t *testing.T) {
	_, err := Attach(nil, nil, nil)
	var localErr *LocalError
	if !errors.As(err, &localErr) || localErr.Kind != KindInvalidArgument {
		t.Fatalf("expected InvalidArgument LocalError, got %v", err)
	}
}

func TestAttachWithRequireTargetRejectsNilTarget(t *testing.T) {
	_, err := Attach(new(nopWriteCloser), nil, nil, WithRequireTarget())
	var localErr *LocalError
	if !errors.As(err, &localErr) || localErr.Kind != KindTargetNotSet {
		t.Fatalf("expected TargetNotSet LocalError, got %v", err)
	}
}

type nopWriteCloser struct{}

func (*nopWriteCloser) Write(p []byte) (int, error) { return len(p), nil }

// callCountingTarget counts how many times its Echo method actually ran, so
// a test can tell "the handler was invoked" apart from "a response/fatal
// disconnect merely followed the read," and signals ran on its first call.
type callCountingTarget struct {
	mu    sync.Mutex
	calls int
	ran   chan struct{}
}

func (t *callCountingTarget) Echo(s string) (string, error) {
	t.mu.Lock()
	t.calls++
	n := t.calls
	t.mu.Unlock()
	if n == 1 {
		close(t.ran)
	}
	return s, nil
}

func (t *callCountingTarget) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// TestReceivingOnlyPeerRunsNotificationsButFailsOnInboundRequests covers
// spec.md §8 scenario 5: a peer attached with no sending stream still
// dispatches inbound notifications normally, but an inbound request (which
// it has no way to respond to) makes handleRequest fail the peer instead of
// invoking the target method.
func TestReceivingOnlyPeerRunsNotificationsButFailsOnInboundRequests(t *testing.T) {
	pr, pw := io.Pipe()
	target := &callCountingTarget{ran: make(chan struct{})}

	peer, err := Attach(nil, pr, target)
	be.Err(t, err, nil)

	var disconnectDesc string
	var disconnectMu sync.Mutex
	peer.OnDisconnect(func(desc string) {
		disconnectMu.Lock()
		disconnectDesc = desc
		disconnectMu.Unlock()
	})

	notifyBody, err := json.Marshal(&message{
		JSONRPC: protocolVersion,
		Method:  "Echo",
		Params:  json.RawMessage(`["hi"]`),
	})
	be.Err(t, err, nil)
	be.Err(t, encodeFrame(pw, notifyBody, defaultEncoding), nil)

	select {
	case <-target.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("notification handler never ran")
	}
	be.Equal(t, target.callCount(), 1)

	reqID := ID{Num: 1}
	reqBody, err := json.Marshal(&message{
		JSONRPC: protocolVersion,
		ID:      &reqID,
		Method:  "Echo",
		Params:  json.RawMessage(`["hi"]`),
	})
	be.Err(t, err, nil)
	be.Err(t, encodeFrame(pw, reqBody, defaultEncoding), nil)

	select {
	case <-peer.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("peer never disconnected after an inbound request with no sending stream")
	}

	be.Equal(t, target.callCount(), 1)

	disconnectMu.Lock()
	defer disconnectMu.Unlock()
	if disconnectDesc == "" {
		t.Fatal("expected a non-empty disconnect description")
	}
}
