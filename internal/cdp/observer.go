package cdp

import "time"

// Observer receives protocol-level measurements. The metrics package
// provides the Prometheus implementation.
type Observer interface {
	ObserveCall(method string, outcome string, duration time.Duration)
	SetPending(n int)
	FrameDropped(reason string)
	EventReceived(method string)
}

// Call outcomes reported to an Observer
const (
	OutcomeOK         = "ok"
	OutcomeProtocol   = "protocol_error"
	OutcomeTimeout    = "timeout"
	OutcomeConnection = "connection_error"
	OutcomeCanceled   = "canceled"
)

// Frame drop reasons reported to an Observer
const (
	DropMalformed  = "malformed"
	DropUnknownID  = "unknown_id"
	DropEventsFull = "events_full"
)

type nopObserver struct{}

func (nopObserver) ObserveCall(string, string, time.Duration) {}
func (nopObserver) SetPending(int)                            {}
func (nopObserver) FrameDropped(string)                       {}
func (nopObserver) EventReceived(string)                      {}
