package session

import "errors"

var (
	// ErrNotConnected is returned when an operation needs a live session
	// and none is open
	ErrNotConnected = errors.New("not connected to a browser tab")

	// ErrTabNotFound is returned for an unknown tab id
	ErrTabNotFound = errors.New("tab not found")

	// ErrManagerClosed is returned after Close
	ErrManagerClosed = errors.New("session manager closed")

	// ErrPersistenceDisabled is returned by cookie jar operations when no
	// repository is configured
	ErrPersistenceDisabled = errors.New("persistence is not configured")
)
