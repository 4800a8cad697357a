// Package session owns the bridge's one debugging connection: which tab it
// is attached to, opening and replacing it, and what happens when it dies.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dhruvsoni1802/browser-bridge/internal/automation"
	"github.com/dhruvsoni1802/browser-bridge/internal/cdp"
	"github.com/dhruvsoni1802/browser-bridge/internal/page"
	"github.com/dhruvsoni1802/browser-bridge/internal/storage"
)

// Targets is the browser's tab directory
type Targets interface {
	ListPages(ctx context.Context) ([]cdp.TargetDescriptor, error)
	NewTarget(ctx context.Context, url string) (cdp.TargetDescriptor, error)
	CloseTarget(ctx context.Context, id string) error
	ActivateTarget(ctx context.Context, id string) error
}

// Repository persists session state and cookie jars.
// *storage.SessionRepository implements it.
type Repository interface {
	SaveSession(ctx context.Context, state *storage.SessionState) error
	CurrentSession(ctx context.Context) (*storage.SessionState, error)
	UpdateLastActivity(ctx context.Context, sessionID string) error
	SetStatus(ctx context.Context, sessionID, status string) error
	SaveCookieJar(ctx context.Context, name string, cookies []byte) (*storage.CookieJar, error)
	GetCookieJar(ctx context.Context, name string) (*storage.CookieJar, error)
	ListCookieJars(ctx context.Context) ([]string, error)
	DeleteCookieJar(ctx context.Context, name string) error
}

// ConnectionObserver is told when the bridge gains or loses its connection
type ConnectionObserver interface {
	SetConnected(connected bool)
}

// Options configures a Manager
type Options struct {
	Domains           []string
	CallTimeout       time.Duration
	PollInterval      time.Duration
	NavigationTimeout time.Duration

	// Dial overrides the transport, mainly for tests
	Dial cdp.DialFunc

	Observer           cdp.Observer
	WaitObserver       automation.WaitObserver
	ConnectionObserver ConnectionObserver

	// Repository is optional; nil disables persistence and cookie jars
	Repository Repository

	Logger *slog.Logger
}

// Tab is one page target as reported to clients
type Tab struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	Active bool   `json:"active"`
}

// Manager holds at most one active Session. Lifecycle operations are
// serialized; commands run on the session concurrently.
type Manager struct {
	targets Targets
	opts    Options
	logger  *slog.Logger

	mu         sync.Mutex
	active     *Session
	lastTarget string
	closed     bool
}

// NewManager creates a manager with no connection. Connections are opened
// by Connect or lazily by Session.
func NewManager(targets Targets, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = cdp.DefaultCallTimeout
	}

	return &Manager{
		targets: targets,
		opts:    opts,
		logger:  opts.Logger,
	}
}

// Connect attaches to tabID, or when tabID is empty to the tab used last
// (this process, then the persisted session), else the first page, else a
// new tab. It is a no-op when already attached to that tab. Attaching to a
// different tab closes the current connection first.
func (m *Manager) Connect(ctx context.Context, tabID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}

	if s := m.active; s != nil && s.Ready() && (tabID == "" || tabID == s.Target.ID) {
		s.Touch()
		return s, nil
	}

	target, err := m.resolveTarget(ctx, tabID)
	if err != nil {
		return nil, err
	}

	m.closeActiveLocked(ctx)
	return m.openLocked(ctx, target)
}

// resolveTarget picks the tab Connect should attach to
func (m *Manager) resolveTarget(ctx context.Context, tabID string) (cdp.TargetDescriptor, error) {
	pages, err := m.targets.ListPages(ctx)
	if err != nil {
		return cdp.TargetDescriptor{}, err
	}

	find := func(id string) (cdp.TargetDescriptor, bool) {
		for _, p := range pages {
			if p.ID == id {
				return p, true
			}
		}
		return cdp.TargetDescriptor{}, false
	}

	if tabID != "" {
		if t, ok := find(tabID); ok {
			return t, nil
		}
		return cdp.TargetDescriptor{}, fmt.Errorf("%w: %s", ErrTabNotFound, tabID)
	}

	if m.lastTarget != "" {
		if t, ok := find(m.lastTarget); ok {
			return t, nil
		}
	}

	if m.opts.Repository != nil {
		state, err := m.opts.Repository.CurrentSession(ctx)
		switch {
		case err == nil:
			if t, ok := find(state.TargetID); ok {
				m.logger.Info("resuming persisted session", "session_id", state.SessionID, "target_id", t.ID)
				return t, nil
			}
		case !errors.Is(err, storage.ErrNotFound):
			m.logger.Warn("failed to load persisted session", "error", err)
		}
	}

	for _, p := range pages {
		if p.WebSocketDebuggerURL != "" {
			return p, nil
		}
	}

	m.logger.Info("no page targets, creating one")
	return m.targets.NewTarget(ctx, "")
}

func (m *Manager) openLocked(ctx context.Context, target cdp.TargetDescriptor) (*Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	logger := m.logger.With("session_id", id, "target_id", target.ID)
	conn, err := cdp.Connect(ctx, target, cdp.Options{
		Domains:     m.opts.Domains,
		CallTimeout: m.opts.CallTimeout,
		Dial:        m.opts.Dial,
		Observer:    m.opts.Observer,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to tab %s: %w", target.ID, err)
	}

	p := page.New(conn, m.opts.CallTimeout, logger)
	now := time.Now()
	s := &Session{
		ID:     id,
		Target: target,
		Conn:   conn,
		Page:   p,
		Driver: automation.NewDriver(p, automation.DriverOptions{
			PollInterval:      m.opts.PollInterval,
			NavigationTimeout: m.opts.NavigationTimeout,
			WaitObserver:      m.opts.WaitObserver,
			Logger:            logger,
		}),
		CreatedAt:    now,
		url:          target.URL,
		lastActivity: now,
	}

	m.active = s
	m.lastTarget = target.ID
	go m.watchEvents(s)

	if m.opts.ConnectionObserver != nil {
		m.opts.ConnectionObserver.SetConnected(true)
	}
	m.persist(ctx, s)

	logger.Info("session connected", "url", target.URL, "title", target.Title)
	return s, nil
}

// persist saves the session state. Persistence failures never fail the
// session itself.
func (m *Manager) persist(ctx context.Context, s *Session) {
	if m.opts.Repository == nil {
		return
	}

	state := &storage.SessionState{
		SessionID:    s.ID,
		TargetID:     s.Target.ID,
		URL:          s.URL(),
		Title:        s.Target.Title,
		Domains:      cdp.NormalizeDomains(m.domains()),
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity(),
		Status:       storage.StatusActive,
	}
	if err := m.opts.Repository.SaveSession(ctx, state); err != nil {
		m.logger.Warn("failed to persist session", "session_id", s.ID, "error", err)
	}
}

func (m *Manager) domains() []string {
	if m.opts.Domains == nil {
		return cdp.DefaultDomains
	}
	return m.opts.Domains
}

// watchEvents consumes the session's event stream until the connection
// closes, then forgets the session if it is still the active one
func (m *Manager) watchEvents(s *Session) {
	for ev := range s.Conn.Events() {
		switch ev.Method {
		case "Page.frameNavigated":
			var params struct {
				Frame struct {
					ID       string `json:"id"`
					ParentID string `json:"parentId"`
					URL      string `json:"url"`
				} `json:"frame"`
			}
			if err := json.Unmarshal(ev.Params, &params); err != nil {
				m.logger.Debug("failed to decode frameNavigated", "error", err)
				continue
			}
			if params.Frame.ParentID != "" {
				continue
			}
			s.setURL(params.Frame.URL)
			s.Driver.Invalidate()
			m.logger.Debug("main frame navigated", "session_id", s.ID, "url", params.Frame.URL)

		case "Page.loadEventFired", "DOM.documentUpdated":
			s.Driver.Invalidate()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != s {
		return
	}

	m.active = nil
	if m.opts.ConnectionObserver != nil {
		m.opts.ConnectionObserver.SetConnected(false)
	}
	m.logger.Warn("connection lost", "session_id", s.ID, "target_id", s.Target.ID, "error", s.Conn.Err())
}

// Session returns the active session, connecting lazily when there is none
// or the connection was lost
func (m *Manager) Session(ctx context.Context) (*Session, error) {
	s, err := m.Connect(ctx, "")
	if err != nil {
		return nil, err
	}

	if m.opts.Repository != nil {
		if err := m.opts.Repository.UpdateLastActivity(ctx, s.ID); err != nil {
			m.logger.Debug("failed to update session activity", "session_id", s.ID, "error", err)
		}
	}
	return s, nil
}

// Active returns the current session without connecting
func (m *Manager) Active() (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, false
	}
	return m.active, true
}

// ListTabs returns the browser's page targets, marking the attached one
func (m *Manager) ListTabs(ctx context.Context) ([]Tab, error) {
	pages, err := m.targets.ListPages(ctx)
	if err != nil {
		return nil, err
	}

	activeID := ""
	if s, ok := m.Active(); ok {
		activeID = s.Target.ID
	}

	tabs := make([]Tab, 0, len(pages))
	for _, p := range pages {
		tabs = append(tabs, Tab{ID: p.ID, Title: p.Title, URL: p.URL, Active: p.ID == activeID})
	}
	return tabs, nil
}

// CreateTab opens a new tab without attaching to it
func (m *Manager) CreateTab(ctx context.Context, url string) (Tab, error) {
	t, err := m.targets.NewTarget(ctx, url)
	if err != nil {
		return Tab{}, err
	}
	m.logger.Info("created tab", "target_id", t.ID, "url", t.URL)
	return Tab{ID: t.ID, Title: t.Title, URL: t.URL}, nil
}

// SwitchTab attaches to tabID and brings it to the foreground
func (m *Manager) SwitchTab(ctx context.Context, tabID string) (*Session, error) {
	if tabID == "" {
		return nil, fmt.Errorf("%w: empty tab id", ErrTabNotFound)
	}

	s, err := m.Connect(ctx, tabID)
	if err != nil {
		return nil, err
	}
	if err := m.targets.ActivateTarget(ctx, tabID); err != nil {
		m.logger.Warn("failed to bring tab to front", "target_id", tabID, "error", err)
	}
	m.logger.Info("switched tab", "target_id", tabID)
	return s, nil
}

// CloseTab closes tabID, disconnecting first if it is the attached tab
func (m *Manager) CloseTab(ctx context.Context, tabID string) error {
	if tabID == "" {
		return fmt.Errorf("%w: empty tab id", ErrTabNotFound)
	}

	m.mu.Lock()
	if m.active != nil && m.active.Target.ID == tabID {
		m.closeActiveLocked(ctx)
	}
	if m.lastTarget == tabID {
		m.lastTarget = ""
	}
	m.mu.Unlock()

	if err := m.targets.CloseTarget(ctx, tabID); err != nil {
		return err
	}
	m.logger.Info("closed tab", "target_id", tabID)
	return nil
}

// Disconnect closes the active connection. The tab stays open and a later
// Session call reattaches to it.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return ErrNotConnected
	}
	m.closeActiveLocked(ctx)
	return nil
}

// closeActiveLocked closes and forgets the active session
func (m *Manager) closeActiveLocked(ctx context.Context) {
	s := m.active
	if s == nil {
		return
	}
	m.active = nil

	if err := s.Conn.Close(); err != nil {
		m.logger.Warn("failed to close connection", "session_id", s.ID, "error", err)
	}
	if m.opts.ConnectionObserver != nil {
		m.opts.ConnectionObserver.SetConnected(false)
	}
	if m.opts.Repository != nil {
		if err := m.opts.Repository.SetStatus(ctx, s.ID, storage.StatusClosed); err != nil {
			m.logger.Debug("failed to mark session closed", "session_id", s.ID, "error", err)
		}
	}

	m.logger.Info("session disconnected", "session_id", s.ID, "target_id", s.Target.ID)
}

// Close disconnects and rejects further connections
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m.closeActiveLocked(ctx)
	return nil
}

// RunIdleReaper closes the active connection once it has been idle for
// longer than timeout, checking every interval. It returns when ctx is
// canceled.
func (m *Manager) RunIdleReaper(ctx context.Context, interval, timeout time.Duration) error {
	if interval <= 0 || timeout <= 0 {
		return fmt.Errorf("idle reaper needs a positive interval and timeout")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info("idle reaper started", "check_interval", interval, "idle_timeout", timeout)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("idle reaper stopping")
			return nil
		case <-ticker.C:
			m.reapIdle(ctx, timeout)
		}
	}
}

func (m *Manager) reapIdle(ctx context.Context, timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil || !m.active.IsIdle(timeout) {
		return
	}
	m.logger.Info("closing idle session", "session_id", m.active.ID, "idle_for", time.Since(m.active.LastActivity()).Round(time.Second))
	m.closeActiveLocked(ctx)
}
