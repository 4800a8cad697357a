package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a session or cookie jar does not exist
var ErrNotFound = errors.New("not found")

// SessionState is the persisted view of the bridge's debugging session.
// The debugger URL is not stored; it is rediscovered from the target id.
type SessionState struct {
	SessionID    string    `json:"session_id"`
	TargetID     string    `json:"target_id"`
	URL          string    `json:"url,omitempty"`
	Title        string    `json:"title,omitempty"`
	Domains      []string  `json:"domains,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	Status       string    `json:"status"`
}

// Validate checks the fields required to resume a session
func (s *SessionState) Validate() error {
	if s.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if s.TargetID == "" {
		return fmt.Errorf("target_id is required")
	}
	return nil
}

// CookieJar is a named, saved set of browser cookies. Cookies holds the
// JSON array exactly as read from the browser.
type CookieJar struct {
	Name    string          `json:"name"`
	Cookies json.RawMessage `json:"cookies"`
	Count   int             `json:"count"`
	SavedAt time.Time       `json:"saved_at"`
}
