package cdp

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// DefaultCallTimeout applies when a caller passes a non-positive timeout.
// There is no wait-forever path.
const DefaultCallTimeout = 30 * time.Second

// SendFunc writes one encoded frame to the wire
type SendFunc func(ctx context.Context, data []byte) error

// EventSink receives id-less frames. It is called from the correlator's
// loop and must not block.
type EventSink func(Frame)

// reply is what a waiter receives: the matching frame or a terminal error
type reply struct {
	frame Frame
	err   error
}

// waiter is a single-use completion handle for one in-flight id
type waiter struct {
	method string
	ch     chan reply
}

type opKind int

const (
	opRegister opKind = iota
	opCancel
	opDispatch
	opPending
	opShutdown
)

type op struct {
	kind   opKind
	id     int64
	w      *waiter
	frame  Frame
	err    error
	result chan opResult
}

type opResult struct {
	id      int64
	ok      bool
	pending int
	err     error
}

// Correlator matches asynchronous replies to callers by id. One goroutine
// owns the pending table and the id counter; callers and the reader reach
// it only through the ops channel, so an insert and a removal can never
// interleave.
type Correlator struct {
	send     SendFunc
	events   EventSink
	observer Observer
	logger   *slog.Logger

	ops  chan op
	done chan struct{}

	// sendMu makes "register, then write" one step so that requests hit
	// the wire in id order
	sendMu sync.Mutex

	stopOnce sync.Once
	err      error // terminal error, readable once done is closed
}

// NewCorrelator starts the correlator loop
func NewCorrelator(send SendFunc, events EventSink, observer Observer, logger *slog.Logger) *Correlator {
	if events == nil {
		events = func(Frame) {}
	}
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Correlator{
		send:     send,
		events:   events,
		observer: observer,
		logger:   logger,
		ops:      make(chan op),
		done:     make(chan struct{}),
	}
	go c.loop()
	return c
}

// loop is the single owner of pending and nextID
func (c *Correlator) loop() {
	pending := make(map[int64]*waiter)
	var nextID int64 = 1

	for o := range c.ops {
		switch o.kind {
		case opRegister:
			id := nextID
			nextID++
			pending[id] = o.w
			c.observer.SetPending(len(pending))
			o.result <- opResult{id: id}

		case opCancel:
			_, ok := pending[o.id]
			if ok {
				delete(pending, o.id)
				c.observer.SetPending(len(pending))
			}
			o.result <- opResult{ok: ok}

		case opDispatch:
			c.dispatch(pending, o.frame)

		case opPending:
			o.result <- opResult{pending: len(pending)}

		case opShutdown:
			for id, w := range pending {
				w.ch <- reply{err: o.err}
				delete(pending, id)
			}
			c.observer.SetPending(0)
			c.err = o.err
			close(c.done)
			o.result <- opResult{}
			return
		}
	}
}

func (c *Correlator) dispatch(pending map[int64]*waiter, f Frame) {
	if !f.HasID() {
		c.observer.EventReceived(f.Method)
		c.events(f)
		return
	}

	id := *f.ID
	w, ok := pending[id]
	if !ok {
		// late reply after a timeout, or a duplicate
		c.logger.Debug("dropping reply for unknown id", "id", id)
		c.observer.FrameDropped(DropUnknownID)
		return
	}

	delete(pending, id)
	c.observer.SetPending(len(pending))

	// single-slot buffer: never blocks the loop
	w.ch <- reply{frame: f}
}

// submit hands an op to the loop. It returns false when the loop has
// already shut down. An accepted op is always answered.
func (c *Correlator) submit(o op) (opResult, bool) {
	select {
	case c.ops <- o:
	case <-c.done:
		return opResult{}, false
	}

	if o.result == nil {
		return opResult{}, true
	}
	return <-o.result, true
}

func (c *Correlator) closedErr() error {
	<-c.done
	return c.err
}

// Call sends method with params and blocks until the matching reply
// arrives, the timeout elapses, ctx is canceled or the connection fails.
// Safe for concurrent use.
func (c *Correlator) Call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	started := time.Now()

	rawParams, err := encodeParams(params)
	if err != nil {
		return nil, err
	}

	w := &waiter{method: method, ch: make(chan reply, 1)}

	c.sendMu.Lock()
	res, ok := c.submit(op{kind: opRegister, w: w, result: make(chan opResult, 1)})
	if !ok {
		c.sendMu.Unlock()
		c.observer.ObserveCall(method, OutcomeConnection, time.Since(started))
		return nil, c.closedErr()
	}
	id := res.id

	data, err := Encode(NewRequest(id, method, rawParams))
	if err == nil {
		c.logger.Debug("sending cdp command", "id", id, "method", method)
		err = c.send(ctx, data)
	}
	c.sendMu.Unlock()

	if err != nil {
		if !c.cancel(id) {
			// the connection failed underneath us and already resolved the waiter
			r := <-w.ch
			return c.finish(method, started, timeout, r)
		}
		if isContextErr(err) {
			// nothing reached the wire
			c.observer.ObserveCall(method, OutcomeCanceled, time.Since(started))
			return nil, err
		}
		c.observer.ObserveCall(method, OutcomeConnection, time.Since(started))
		return nil, &ConnectionError{Op: "send " + method, Err: err}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-w.ch:
		return c.finish(method, started, timeout, r)

	case <-timer.C:
		if c.cancel(id) {
			c.observer.ObserveCall(method, OutcomeTimeout, time.Since(started))
			return nil, &TimeoutError{Method: method, Timeout: timeout}
		}
		// resolution won the race; its reply is already buffered
		return c.finish(method, started, timeout, <-w.ch)

	case <-ctx.Done():
		if c.cancel(id) {
			c.observer.ObserveCall(method, OutcomeCanceled, time.Since(started))
			return nil, ctx.Err()
		}
		return c.finish(method, started, timeout, <-w.ch)
	}
}

// finish turns a waiter's reply into the caller's result
func (c *Correlator) finish(method string, started time.Time, timeout time.Duration, r reply) (json.RawMessage, error) {
	elapsed := time.Since(started)

	if r.err != nil {
		c.observer.ObserveCall(method, OutcomeConnection, elapsed)
		return nil, r.err
	}

	if r.frame.Error != nil {
		c.observer.ObserveCall(method, OutcomeProtocol, elapsed)
		return nil, &ProtocolError{
			Method:  method,
			Code:    r.frame.Error.Code,
			Message: r.frame.Error.Message,
			Data:    r.frame.Error.Data,
		}
	}

	c.observer.ObserveCall(method, OutcomeOK, elapsed)
	if len(r.frame.Result) == 0 {
		return json.RawMessage("null"), nil
	}
	return r.frame.Result, nil
}

// cancel removes id from the pending table. It returns true only if this
// call removed it; false means a reply (or shutdown) got there first.
func (c *Correlator) cancel(id int64) bool {
	res, ok := c.submit(op{kind: opCancel, id: id, result: make(chan opResult, 1)})
	if !ok {
		return false
	}
	return res.ok
}

// Dispatch routes one inbound frame: replies resolve their waiter, id-less
// frames go to the event sink. Frames arriving after shutdown are dropped.
func (c *Correlator) Dispatch(f Frame) {
	c.submit(op{kind: opDispatch, frame: f})
}

// Pending returns the number of in-flight calls
func (c *Correlator) Pending() int {
	res, ok := c.submit(op{kind: opPending, result: make(chan opResult, 1)})
	if !ok {
		return 0
	}
	return res.pending
}

// Shutdown resolves every pending waiter with err and stops the loop.
// Later calls fail immediately with the same error. Idempotent.
func (c *Correlator) Shutdown(err error) {
	if err == nil {
		err = &ConnectionError{Err: ErrConnectionClosed}
	}
	c.stopOnce.Do(func() {
		c.submit(op{kind: opShutdown, err: err, result: make(chan opResult, 1)})
	})
}

// Done is closed once the correlator has shut down
func (c *Correlator) Done() <-chan struct{} {
	return c.done
}
