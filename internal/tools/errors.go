package tools

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/dhruvsoni1802/browser-bridge/internal/automation"
	"github.com/dhruvsoni1802/browser-bridge/internal/cdp"
	"github.com/dhruvsoni1802/browser-bridge/internal/page"
	"github.com/dhruvsoni1802/browser-bridge/internal/session"
	"github.com/dhruvsoni1802/browser-bridge/internal/storage"
)

// Error kinds reported to clients
const (
	KindOK              = "ok"
	KindConnection      = "connection_error"
	KindProtocol        = "protocol_error"
	KindTimeout         = "timeout_error"
	KindNotFound        = "not_found_error"
	KindActivation      = "activation_error"
	KindMalformedFrame  = "malformed_frame_error"
	KindJavaScript      = "javascript_error"
	KindInvalidArgument = "invalid_argument"
	KindInternal        = "internal_error"
)

// ErrUnknownTool is returned for a tool name missing from the registry
var ErrUnknownTool = errors.New("unknown tool")

// ArgumentError means a tool was called with missing or bad arguments
type ArgumentError struct {
	Tool   string
	Arg    string
	Reason string
}

func (e *ArgumentError) Error() string {
	switch {
	case e.Tool != "" && e.Arg != "":
		return fmt.Sprintf("%s: invalid argument %q: %s", e.Tool, e.Arg, e.Reason)
	case e.Arg != "":
		return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Reason)
	case e.Tool != "":
		return fmt.Sprintf("%s: %s", e.Tool, e.Reason)
	}
	return e.Reason
}

func missing(arg string) error {
	return &ArgumentError{Arg: arg, Reason: "is required"}
}

func invalid(arg, format string, args ...any) error {
	return &ArgumentError{Arg: arg, Reason: fmt.Sprintf(format, args...)}
}

// Kind maps err to a stable kind string. A nil error is KindOK.
func Kind(err error) string {
	if err == nil {
		return KindOK
	}

	var (
		activationErr *cdp.ActivationError
		malformedErr  *cdp.MalformedFrameError
		evalErr       *page.EvalError
		notFoundErr   *automation.NotFoundError
		argErr        *ArgumentError
		urlErr        *url.Error
	)

	// Activation wraps the failing enable call, so it is checked first
	switch {
	case errors.As(err, &activationErr):
		return KindActivation
	case cdp.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case cdp.IsConnectionError(err),
		errors.Is(err, cdp.ErrConnectionClosed),
		errors.Is(err, cdp.ErrNotReady),
		errors.Is(err, session.ErrNotConnected),
		errors.Is(err, session.ErrManagerClosed),
		errors.As(err, &urlErr):
		return KindConnection
	case cdp.IsProtocolError(err):
		return KindProtocol
	case errors.As(err, &malformedErr):
		return KindMalformedFrame
	case errors.As(err, &evalErr):
		return KindJavaScript
	case errors.As(err, &notFoundErr),
		errors.Is(err, session.ErrTabNotFound),
		errors.Is(err, storage.ErrNotFound):
		return KindNotFound
	case errors.As(err, &argErr), errors.Is(err, ErrUnknownTool):
		return KindInvalidArgument
	}
	return KindInternal
}
