package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const defaultEventBuffer = 256

// Options configures a Conn
type Options struct {
	// Domains enabled before the connection becomes Ready
	Domains []string

	// CallTimeout is used for domain activation and for calls that pass a
	// non-positive timeout
	CallTimeout time.Duration

	// Dial opens the transport. Defaults to DialWebSocket.
	Dial DialFunc

	// EventBuffer is the capacity of the Events channel
	EventBuffer int

	Observer Observer
	Logger   *slog.Logger
}

// Conn is one debugging connection: transport, correlator, reader loop and
// the connection state machine. A closed Conn cannot be reopened; open a
// new one instead.
type Conn struct {
	opts   Options
	logger *slog.Logger

	openMu sync.Mutex // serializes Open

	mu        sync.RWMutex
	state     State
	target    TargetDescriptor
	transport Transport
	corr      *Correlator
	activator *Activator

	events    chan Frame
	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

// NewConn creates a Disconnected connection
func NewConn(opts Options) *Conn {
	if opts.Dial == nil {
		opts.Dial = DialWebSocket
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Domains == nil {
		opts.Domains = DefaultDomains
	}

	return &Conn{
		opts:   opts,
		logger: opts.Logger,
		state:  StateDisconnected,
		events: make(chan Frame, opts.EventBuffer),
		closed: make(chan struct{}),
	}
}

// Connect opens a connection to desc and waits until it is Ready
func Connect(ctx context.Context, desc TargetDescriptor, opts Options) (*Conn, error) {
	c := NewConn(opts)
	if err := c.Open(ctx, desc); err != nil {
		return nil, err
	}
	return c, nil
}

// Open dials the target, starts the reader and enables the configured
// domains. It is idempotent for the descriptor the connection is already
// Ready on. Any failure leaves the connection Closed.
func (c *Conn) Open(ctx context.Context, desc TargetDescriptor) error {
	c.openMu.Lock()
	defer c.openMu.Unlock()

	c.mu.Lock()
	switch {
	case c.state == StateReady && c.target.ID == desc.ID:
		c.mu.Unlock()
		return nil
	case c.state != StateDisconnected:
		state := c.state
		c.mu.Unlock()
		return &ConnectionError{Op: "open", Err: fmt.Errorf("%w: connection is %s", ErrNotReady, state)}
	}
	c.state = StateConnecting
	c.target = desc
	c.mu.Unlock()

	logger := c.logger.With("target_id", desc.ID)
	logger.Debug("opening cdp connection", "endpoint", desc.WebSocketDebuggerURL)

	transport, err := c.opts.Dial(ctx, desc.WebSocketDebuggerURL)
	if err != nil {
		connErr := &ConnectionError{Op: "dial", Err: err}
		c.fail(connErr)
		return connErr
	}

	c.mu.Lock()
	if c.state == StateClosed {
		// closed while dialing
		c.mu.Unlock()
		transport.Close()
		return c.terminalErr()
	}
	corr := NewCorrelator(c.sendFunc(transport), c.deliverEvent, c.opts.Observer, logger)
	c.transport = transport
	c.corr = corr
	c.activator = NewActivator(corr, c.opts.CallTimeout, logger)
	c.state = StateDomainsEnabling
	c.mu.Unlock()

	go c.readLoop(transport, corr)

	if err := c.activator.Activate(ctx, c.opts.Domains); err != nil {
		logger.Warn("domain activation failed", "error", err)
		c.fail(err)
		return err
	}

	c.mu.Lock()
	if c.state != StateDomainsEnabling {
		// the transport died while the last enable was in flight
		c.mu.Unlock()
		return c.terminalErr()
	}
	c.state = StateReady
	c.mu.Unlock()

	logger.Info("cdp connection ready", "domains", NormalizeDomains(c.opts.Domains))
	return nil
}

// sendFunc wraps transport writes: a write error is fatal to the
// connection. A caller whose ctx ended before the write began gets its
// ctx error back and the connection stays up.
func (c *Conn) sendFunc(t Transport) SendFunc {
	return func(ctx context.Context, data []byte) error {
		if err := t.Send(ctx, data); err != nil {
			if !isContextErr(err) {
				c.fail(&ConnectionError{Op: "write", Err: err})
			}
			return err
		}
		return nil
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// readLoop is the only consumer of inbound frames
func (c *Conn) readLoop(t Transport, corr *Correlator) {
	ctx := context.Background()
	for {
		data, err := t.Receive(ctx)
		if err != nil {
			c.fail(&ConnectionError{Op: "read", Err: err})
			return
		}

		frame, err := Decode(data)
		if err != nil {
			c.logger.Warn("dropping malformed cdp frame", "error", err)
			c.opts.Observer.FrameDropped(DropMalformed)
			continue
		}

		corr.Dispatch(frame)
	}
}

// deliverEvent is the correlator's event sink. It never blocks: when the
// consumer falls behind, events are dropped.
func (c *Conn) deliverEvent(f Frame) {
	select {
	case c.events <- f:
	default:
		c.logger.Warn("event buffer full, dropping event", "method", f.Method)
		c.opts.Observer.FrameDropped(DropEventsFull)
	}
}

// fail closes the connection with err. The first error wins; later calls
// are no-ops.
func (c *Conn) fail(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		c.closeErr = err
		transport := c.transport
		corr := c.corr
		c.mu.Unlock()

		if transport != nil {
			if cerr := transport.Close(); cerr != nil {
				c.logger.Debug("transport close error", "error", cerr)
			}
		}

		// pending callers see a ConnectionError whatever closed us
		pendingErr := err
		if !IsConnectionError(err) {
			pendingErr = &ConnectionError{Op: "close", Err: err}
		}
		if corr != nil {
			corr.Shutdown(pendingErr)
		}

		// the correlator loop has exited, so nothing writes to events anymore
		close(c.events)
		close(c.closed)

		if err != nil && !isNormalClose(err) {
			c.logger.Info("cdp connection closed", "target_id", c.target.ID, "error", err)
		}
	})
}

func isNormalClose(err error) bool {
	connErr, ok := err.(*ConnectionError)
	return ok && connErr.Op == "close" && connErr.Err == ErrConnectionClosed
}

func (c *Conn) terminalErr() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if IsConnectionError(c.closeErr) {
		return c.closeErr
	}
	return &ConnectionError{Op: "call", Err: c.closeErr}
}

// Call sends one command over the connection. It fails fast with a
// ConnectionError unless the connection is Ready.
func (c *Conn) Call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	c.mu.RLock()
	state := c.state
	corr := c.corr
	c.mu.RUnlock()

	switch state {
	case StateReady:
	case StateClosed:
		return nil, c.terminalErr()
	default:
		return nil, &ConnectionError{Op: "call " + method, Err: fmt.Errorf("%w: connection is %s", ErrNotReady, state)}
	}

	if timeout <= 0 {
		timeout = c.opts.CallTimeout
	}
	return corr.Call(ctx, method, params, timeout)
}

// Events returns the channel of id-less frames. It is closed when the
// connection closes.
func (c *Conn) Events() <-chan Frame {
	return c.events
}

// State returns the current connection state
func (c *Conn) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Target returns the descriptor this connection was opened for
func (c *Conn) Target() TargetDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.target
}

// Pending returns the number of in-flight calls
func (c *Conn) Pending() int {
	c.mu.RLock()
	corr := c.corr
	c.mu.RUnlock()
	if corr == nil {
		return 0
	}
	return corr.Pending()
}

// Done is closed once the connection is Closed
func (c *Conn) Done() <-chan struct{} {
	return c.closed
}

// Err returns the reason the connection closed, or nil while it is open
func (c *Conn) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closeErr
}

// Close releases the transport and fails all pending calls. Idempotent.
func (c *Conn) Close() error {
	c.fail(&ConnectionError{Op: "close", Err: ErrConnectionClosed})
	return nil
}
