// Package cdptest provides an in-memory browser peer for exercising the
// cdp package and everything built on it without a real Chrome.
package cdptest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/dhruvsoni1802/browser-bridge/internal/cdp"
)

// ErrClosed is returned by Send and Receive after Close
var ErrClosed = errors.New("cdptest: transport closed")

// Handler answers one command in auto mode. A non-nil ResponseError is
// sent back as the error object.
type Handler func(params json.RawMessage) (any, *cdp.ResponseError)

// Browser is a fake debugging peer implementing cdp.Transport.
//
// In auto mode every request is answered immediately by its registered
// Handler, or with an empty object when none is registered. In manual
// mode requests are queued on Requests and the test replies, in any
// order, with Reply and ReplyError.
type Browser struct {
	manual bool

	mu       sync.Mutex
	handlers map[string]Handler
	sent     []cdp.Frame
	dialErr  error

	inbound  chan []byte
	requests chan cdp.Frame

	closeOnce sync.Once
	closed    chan struct{}
	failOnce  sync.Once
	failed    chan struct{}
	failErr   error
}

// New creates an auto-replying browser
func New() *Browser {
	return newBrowser(false)
}

// NewManual creates a browser whose replies are driven by the test
func NewManual() *Browser {
	return newBrowser(true)
}

func newBrowser(manual bool) *Browser {
	return &Browser{
		manual:   manual,
		handlers: make(map[string]Handler),
		inbound:  make(chan []byte, 1024),
		requests: make(chan cdp.Frame, 1024),
		closed:   make(chan struct{}),
		failed:   make(chan struct{}),
	}
}

// Handle registers the auto-mode handler for method
func (b *Browser) Handle(method string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[method] = h
}

// HandleResult registers a handler that always returns result
func (b *Browser) HandleResult(method string, result any) {
	b.Handle(method, func(json.RawMessage) (any, *cdp.ResponseError) {
		return result, nil
	})
}

// HandleError registers a handler that always fails with code/message
func (b *Browser) HandleError(method string, code int, message string) {
	b.Handle(method, func(json.RawMessage) (any, *cdp.ResponseError) {
		return nil, &cdp.ResponseError{Code: code, Message: message}
	})
}

// FailDial makes the next Dial calls fail with err
func (b *Browser) FailDial(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dialErr = err
}

// Dial is a cdp.DialFunc that hands out this browser
func (b *Browser) Dial(ctx context.Context, endpoint string) (cdp.Transport, error) {
	b.mu.Lock()
	err := b.dialErr
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Target returns a descriptor that can be passed to cdp.Conn.Open
func (b *Browser) Target() cdp.TargetDescriptor {
	return cdp.TargetDescriptor{
		ID:                   "fake-target",
		Type:                 "page",
		Title:                "fake",
		URL:                  "about:blank",
		WebSocketDebuggerURL: "ws://fake/devtools/page/fake-target",
	}
}

// Send implements cdp.Transport. Like the websocket transport, a done ctx
// fails the write before anything is sent.
func (b *Browser) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-b.closed:
		return ErrClosed
	default:
	}

	frame, err := cdp.Decode(data)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.sent = append(b.sent, frame)
	handler := b.handlers[frame.Method]
	b.mu.Unlock()

	if b.manual {
		b.requests <- frame
		return nil
	}

	if frame.ID == nil {
		return nil
	}
	if handler == nil {
		b.Reply(*frame.ID, struct{}{})
		return nil
	}

	result, respErr := handler(frame.Params)
	if respErr != nil {
		b.ReplyError(*frame.ID, respErr.Code, respErr.Message)
		return nil
	}
	b.Reply(*frame.ID, result)
	return nil
}

// Receive implements cdp.Transport
func (b *Browser) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data := <-b.inbound:
		return data, nil
	case <-b.failed:
		return nil, b.failErr
	case <-b.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close implements cdp.Transport
func (b *Browser) Close() error {
	b.closeOnce.Do(func() { close(b.closed) })
	return nil
}

// Closed is closed once the client closed the transport
func (b *Browser) Closed() <-chan struct{} {
	return b.closed
}

// FailRead makes the client's pending and future Receive calls fail,
// as if the socket dropped
func (b *Browser) FailRead(err error) {
	b.failOnce.Do(func() {
		b.failErr = err
		close(b.failed)
	})
}

// Requests delivers requests in manual mode, in wire order
func (b *Browser) Requests() <-chan cdp.Frame {
	return b.requests
}

// NextRequest waits for the next manual-mode request
func (b *Browser) NextRequest(ctx context.Context) (cdp.Frame, error) {
	select {
	case f := <-b.requests:
		return f, nil
	case <-ctx.Done():
		return cdp.Frame{}, ctx.Err()
	}
}

// Reply sends a success reply for id
func (b *Browser) Reply(id int64, result any) {
	raw, err := json.Marshal(result)
	if err != nil {
		panic(err)
	}
	b.push(cdp.Frame{ID: &id, Result: raw})
}

// ReplyError sends an error reply for id
func (b *Browser) ReplyError(id int64, code int, message string) {
	b.push(cdp.Frame{ID: &id, Error: &cdp.ResponseError{Code: code, Message: message}})
}

// Emit sends an event
func (b *Browser) Emit(method string, params any) {
	raw, err := json.Marshal(params)
	if err != nil {
		panic(err)
	}
	b.push(cdp.Frame{Method: method, Params: raw})
}

// SendRaw injects arbitrary bytes into the inbound stream
func (b *Browser) SendRaw(data []byte) {
	b.inbound <- data
}

func (b *Browser) push(f cdp.Frame) {
	data, err := cdp.Encode(f)
	if err != nil {
		panic(err)
	}
	b.inbound <- data
}

// Sent returns every frame the client has written so far
func (b *Browser) Sent() []cdp.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]cdp.Frame, len(b.sent))
	copy(out, b.sent)
	return out
}

// Methods returns the method names the client has called, in wire order
func (b *Browser) Methods() []string {
	sent := b.Sent()
	out := make([]string, len(sent))
	for i, f := range sent {
		out[i] = f.Method
	}
	return out
}

// Called reports how many times method was sent
func (b *Browser) Called(method string) int {
	n := 0
	for _, m := range b.Methods() {
		if m == method {
			n++
		}
	}
	return n
}
