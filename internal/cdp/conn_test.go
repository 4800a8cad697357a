package cdp_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/dhruvsoni1802/browser-bridge/internal/cdp"
	"github.com/dhruvsoni1802/browser-bridge/internal/cdp/cdptest"
)

func testOptions(b *cdptest.Browser, domains ...string) cdp.Options {
	return cdp.Options{
		Domains:     domains,
		CallTimeout: 2 * time.Second,
		Dial:        b.Dial,
	}
}

func nextRequest(t *testing.T, b *cdptest.Browser) cdp.Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	f, err := b.NextRequest(ctx)
	if err != nil {
		t.Fatalf("no request arrived: %v", err)
	}
	return f
}

// openManual opens a connection against a manual browser, acknowledging
// each enable request as it arrives
func openManual(t *testing.T, b *cdptest.Browser, domains ...string) *cdp.Conn {
	t.Helper()

	conn := cdp.NewConn(testOptions(b, domains...))
	errCh := make(chan error, 1)
	go func() { errCh <- conn.Open(context.Background(), b.Target()) }()

	for _, d := range domains {
		f := nextRequest(t, b)
		if f.Method != d+".enable" {
			t.Fatalf("expected %s.enable, got %s", d, f.Method)
		}
		b.Reply(*f.ID, struct{}{})
	}

	if err := <-errCh; err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// TestConnConcreteScenario tests the A/B activation and A.x call sequence
func TestConnConcreteScenario(t *testing.T) {
	b := cdptest.NewManual()
	conn := openManual(t, b, "A", "B")

	if conn.State() != cdp.StateReady {
		t.Fatalf("expected Ready, got %s", conn.State())
	}

	type outcome struct {
		result json.RawMessage
		err    error
	}
	results := make(chan outcome, 1)

	go func() {
		r, err := conn.Call(context.Background(), "A.x", map[string]int{"n": 1}, time.Second)
		results <- outcome{r, err}
	}()

	f := nextRequest(t, b)
	if f.Method != "A.x" || string(f.Params) != `{"n":1}` {
		t.Fatalf("unexpected request %s %s", f.Method, f.Params)
	}
	b.Reply(*f.ID, map[string]bool{"ok": true})

	got := <-results
	if got.err != nil {
		t.Fatalf("call failed: %v", got.err)
	}
	if string(got.result) != `{"ok":true}` {
		t.Errorf(`expected {"ok":true}, got %s`, got.result)
	}

	go func() {
		r, err := conn.Call(context.Background(), "A.x", map[string]int{"n": 1}, time.Second)
		results <- outcome{r, err}
	}()

	f = nextRequest(t, b)
	b.ReplyError(*f.ID, -32000, "boom")

	got = <-results
	var protoErr *cdp.ProtocolError
	if !errors.As(got.err, &protoErr) {
		t.Fatalf("expected ProtocolError, got %T: %v", got.err, got.err)
	}
	if protoErr.Code != -32000 || protoErr.Message != "boom" {
		t.Errorf("expected {-32000 boom}, got {%d %s}", protoErr.Code, protoErr.Message)
	}

	// a protocol error does not affect the connection
	if conn.State() != cdp.StateReady {
		t.Errorf("expected Ready after protocol error, got %s", conn.State())
	}
}

// TestConnActivationAtomicity tests that a failed enable leaves the connection Closed
func TestConnActivationAtomicity(t *testing.T) {
	b := cdptest.New()
	b.HandleError("B.enable", -32601, "'B.enable' wasn't found")

	conn := cdp.NewConn(testOptions(b, "A", "B", "C"))
	err := conn.Open(context.Background(), b.Target())

	var actErr *cdp.ActivationError
	if !errors.As(err, &actErr) {
		t.Fatalf("expected ActivationError, got %v", err)
	}
	if actErr.Domain != "B" {
		t.Errorf("expected domain B, got %s", actErr.Domain)
	}

	if conn.State() != cdp.StateClosed {
		t.Errorf("expected Closed, got %s", conn.State())
	}
	if b.Called("C.enable") != 0 {
		t.Error("C.enable must not be sent after B failed")
	}

	for i := 0; i < 3; i++ {
		_, err := conn.Call(context.Background(), "A.x", nil, time.Second)
		if !cdp.IsConnectionError(err) {
			t.Errorf("expected ConnectionError after failed activation, got %v", err)
		}
	}

	select {
	case <-b.Closed():
	case <-time.After(2 * time.Second):
		t.Error("transport was not closed after failed activation")
	}

	// a closed connection is not reopened
	if err := conn.Open(context.Background(), b.Target()); err == nil {
		t.Error("expected Open on a closed connection to fail")
	}
}

// TestConnCallBeforeOpen tests fail-fast outside Ready
func TestConnCallBeforeOpen(t *testing.T) {
	conn := cdp.NewConn(cdp.Options{})

	if conn.State() != cdp.StateDisconnected {
		t.Errorf("expected Disconnected, got %s", conn.State())
	}

	_, err := conn.Call(context.Background(), "Page.navigate", nil, time.Second)
	if !cdp.IsConnectionError(err) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
	if !errors.Is(err, cdp.ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
}

// TestConnCallDuringActivation tests that commands wait for Ready
func TestConnCallDuringActivation(t *testing.T) {
	b := cdptest.NewManual()
	conn := cdp.NewConn(testOptions(b, "Page"))

	errCh := make(chan error, 1)
	go func() { errCh <- conn.Open(context.Background(), b.Target()) }()

	f := nextRequest(t, b)
	if conn.State() != cdp.StateDomainsEnabling {
		t.Errorf("expected DomainsEnabling, got %s", conn.State())
	}

	_, err := conn.Call(context.Background(), "Runtime.evaluate", nil, time.Second)
	if !errors.Is(err, cdp.ErrNotReady) {
		t.Errorf("expected ErrNotReady during activation, got %v", err)
	}

	b.Reply(*f.ID, struct{}{})
	if err := <-errCh; err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	conn.Close()
}

// TestConnOpenIdempotent tests that reopening the same target is a no-op
func TestConnOpenIdempotent(t *testing.T) {
	b := cdptest.New()
	conn, err := cdp.Connect(context.Background(), b.Target(), testOptions(b, "Page", "Runtime"))
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.Close()

	if err := conn.Open(context.Background(), b.Target()); err != nil {
		t.Fatalf("second Open failed: %v", err)
	}

	if n := b.Called("Page.enable"); n != 1 {
		t.Errorf("expected Page.enable once, got %d", n)
	}
	if n := b.Called("Runtime.enable"); n != 1 {
		t.Errorf("expected Runtime.enable once, got %d", n)
	}

	other := b.Target()
	other.ID = "another"
	if err := conn.Open(context.Background(), other); err == nil {
		t.Error("expected Open for a different target to fail")
	}
}

// TestConnTransportFailure tests that a dropped socket fails pending calls
func TestConnTransportFailure(t *testing.T) {
	b := cdptest.NewManual()
	conn := openManual(t, b, "Page")

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := conn.Call(context.Background(), "Runtime.evaluate", nil, time.Minute)
			errs <- err
		}()
	}
	nextRequest(t, b)
	nextRequest(t, b)

	b.FailRead(io.ErrUnexpectedEOF)

	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			if !cdp.IsConnectionError(err) {
				t.Errorf("expected ConnectionError, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("pending call left hanging after transport failure")
		}
	}

	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection did not close")
	}

	if conn.State() != cdp.StateClosed {
		t.Errorf("expected Closed, got %s", conn.State())
	}
	if !errors.Is(conn.Err(), io.ErrUnexpectedEOF) {
		t.Errorf("expected close reason to wrap the read error, got %v", conn.Err())
	}

	_, err := conn.Call(context.Background(), "Runtime.evaluate", nil, time.Second)
	if !cdp.IsConnectionError(err) {
		t.Errorf("expected ConnectionError on a closed connection, got %v", err)
	}
}

// TestConnExpiredContextKeepsConnection tests that a caller whose ctx is
// already done gets its ctx error while the connection stays Ready
func TestConnExpiredContextKeepsConnection(t *testing.T) {
	b := cdptest.New()
	conn, err := cdp.Connect(context.Background(), b.Target(), testOptions(b, "Page"))
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Millisecond))
	defer cancel()

	_, err = conn.Call(ctx, "Runtime.evaluate", nil, time.Second)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
	if cdp.IsConnectionError(err) {
		t.Errorf("expected no ConnectionError, got %v", err)
	}
	if conn.State() != cdp.StateReady {
		t.Errorf("expected Ready, got %s", conn.State())
	}
	if _, err := conn.Call(context.Background(), "Runtime.evaluate", nil, time.Second); err != nil {
		t.Errorf("follow-up call failed: %v", err)
	}
}

// TestConnMalformedFramesDropped tests that the reader survives bad input
func TestConnMalformedFramesDropped(t *testing.T) {
	b := cdptest.New()
	b.HandleResult("Runtime.evaluate", map[string]any{"result": map[string]any{"value": 2}})

	conn, err := cdp.Connect(context.Background(), b.Target(), testOptions(b, "Runtime"))
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.Close()

	b.SendRaw([]byte("this is not json"))
	b.SendRaw([]byte(`{}`))
	b.SendRaw([]byte(`{"id":4242,"result":{}}`))

	result, err := conn.Call(context.Background(), "Runtime.evaluate", nil, time.Second)
	if err != nil {
		t.Fatalf("call after malformed frames failed: %v", err)
	}
	if string(result) != `{"result":{"value":2}}` {
		t.Errorf("unexpected result %s", result)
	}
	if conn.State() != cdp.StateReady {
		t.Errorf("expected Ready, got %s", conn.State())
	}
}

// TestConnEvents tests that id-less frames reach the events channel
func TestConnEvents(t *testing.T) {
	b := cdptest.New()
	conn, err := cdp.Connect(context.Background(), b.Target(), testOptions(b, "Page"))
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	b.Emit("Page.loadEventFired", map[string]float64{"timestamp": 1.5})

	select {
	case ev := <-conn.Events():
		if ev.Method != "Page.loadEventFired" {
			t.Errorf("unexpected event %s", ev.Method)
		}
		if ev.Kind() != cdp.KindEvent {
			t.Errorf("expected event kind, got %s", ev.Kind())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	conn.Close()
	conn.Close()

	select {
	case _, ok := <-conn.Events():
		if ok {
			// drain anything buffered before close
			for range conn.Events() {
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed")
	}
}

// TestConnDialFailure tests that dial errors surface as ConnectionError
func TestConnDialFailure(t *testing.T) {
	b := cdptest.New()
	b.FailDial(errors.New("connection refused"))

	conn := cdp.NewConn(testOptions(b, "Page"))
	err := conn.Open(context.Background(), b.Target())
	if !cdp.IsConnectionError(err) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
	if conn.State() != cdp.StateClosed {
		t.Errorf("expected Closed, got %s", conn.State())
	}
}
