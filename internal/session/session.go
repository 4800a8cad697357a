package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/dhruvsoni1802/browser-bridge/internal/automation"
	"github.com/dhruvsoni1802/browser-bridge/internal/cdp"
	"github.com/dhruvsoni1802/browser-bridge/internal/page"
)

// Session is the bridge's single debugging session: one connection to one
// tab, plus the page façade and driver built on it
type Session struct {
	ID        string
	Target    cdp.TargetDescriptor
	Conn      *cdp.Conn
	Page      *page.Page
	Driver    *automation.Driver
	CreatedAt time.Time

	mu           sync.Mutex
	url          string
	lastActivity time.Time
}

// Info is a point-in-time description of a session
type Info struct {
	ID           string    `json:"session_id"`
	TargetID     string    `json:"target_id"`
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	State        string    `json:"state"`
	Pending      int       `json:"pending_calls"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// generateSessionID creates a unique session identifier
func generateSessionID() (string, error) {
	randomBytes := make([]byte, 16)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate session ID: %w", err)
	}
	return "sess_" + base64.RawURLEncoding.EncodeToString(randomBytes), nil
}

// Touch records activity on the session
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// LastActivity returns when the session was last used
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// IsIdle reports whether the session has been unused for longer than timeout
func (s *Session) IsIdle(timeout time.Duration) bool {
	return time.Since(s.LastActivity()) > timeout
}

// URL returns the last main-frame URL seen on the tab
func (s *Session) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

func (s *Session) setURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url = url
}

// Ready reports whether the connection can take calls
func (s *Session) Ready() bool {
	return s.Conn.State() == cdp.StateReady
}

// Info describes the session
func (s *Session) Info() Info {
	return Info{
		ID:           s.ID,
		TargetID:     s.Target.ID,
		URL:          s.URL(),
		Title:        s.Target.Title,
		State:        s.Conn.State().String(),
		Pending:      s.Conn.Pending(),
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity(),
	}
}
