package cdp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Error definitions
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrNotReady         = errors.New("connection not ready")
)

// ConnectionError means the socket could not be opened or maintained.
// Every pending and future call on a failed connection returns one.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("cdp connection error: %v", e.Err)
	}
	return fmt.Sprintf("cdp connection error during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError is returned when the peer answers with an error object
type ProtocolError struct {
	Method  string
	Code    int
	Message string
	Data    json.RawMessage
}

func (e *ProtocolError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("cdp error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("cdp error %d from %s: %s", e.Code, e.Method, e.Message)
}

// MalformedFrameError describes undecodable inbound data. The reader logs
// and drops these; they never reach a caller.
type MalformedFrameError struct {
	Raw []byte
	Err error
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("malformed frame (%d bytes): %v", len(e.Raw), e.Err)
}

func (e *MalformedFrameError) Unwrap() error { return e.Err }

// TimeoutError means no matching reply (or satisfied condition) arrived
// within the deadline
type TimeoutError struct {
	Method  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Method, e.Timeout)
}

// ActivationError means a required domain failed to enable. It is fatal
// to the connection attempt.
type ActivationError struct {
	Domain string
	Err    error
}

func (e *ActivationError) Error() string {
	return fmt.Sprintf("failed to enable domain %s: %v", e.Domain, e.Err)
}

func (e *ActivationError) Unwrap() error { return e.Err }

// IsConnectionError reports whether err is (or wraps) a ConnectionError
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

// IsProtocolError reports whether err is (or wraps) a ProtocolError
func IsProtocolError(err error) bool {
	var protoErr *ProtocolError
	return errors.As(err, &protoErr)
}

// IsTimeout reports whether err is (or wraps) a TimeoutError
func IsTimeout(err error) bool {
	var timeoutErr *TimeoutError
	return errors.As(err, &timeoutErr)
}
