package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/dhruvsoni1802/browser-bridge/internal/cdp"
	"github.com/dhruvsoni1802/browser-bridge/internal/cdp/cdptest"
	"github.com/dhruvsoni1802/browser-bridge/internal/storage"
)

// fakeTargets is an in-memory tab directory
type fakeTargets struct {
	mu        sync.Mutex
	pages     []cdp.TargetDescriptor
	created   []string
	closed    []string
	activated []string
}

func pageTarget(id string) cdp.TargetDescriptor {
	return cdp.TargetDescriptor{
		ID:                   id,
		Type:                 "page",
		Title:                "Tab " + id,
		URL:                  "https://example.com/" + id,
		WebSocketDebuggerURL: "ws://fake/devtools/page/" + id,
	}
}

func newFakeTargets(ids ...string) *fakeTargets {
	f := &fakeTargets{}
	for _, id := range ids {
		f.pages = append(f.pages, pageTarget(id))
	}
	return f
}

func (f *fakeTargets) ListPages(ctx context.Context) ([]cdp.TargetDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]cdp.TargetDescriptor, len(f.pages))
	copy(out, f.pages)
	return out, nil
}

func (f *fakeTargets) NewTarget(ctx context.Context, url string) (cdp.TargetDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := pageTarget("new" + string(rune('A'+len(f.created))))
	if url != "" {
		t.URL = url
	}
	f.pages = append(f.pages, t)
	f.created = append(f.created, t.ID)
	return t, nil
}

func (f *fakeTargets) CloseTarget(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.pages {
		if p.ID == id {
			f.pages = append(f.pages[:i], f.pages[i+1:]...)
			f.closed = append(f.closed, id)
			return nil
		}
	}
	return errors.New("no such target " + id)
}

func (f *fakeTargets) ActivateTarget(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activated = append(f.activated, id)
	return nil
}

// fakeDialer hands out a fresh fake browser per connection
type fakeDialer struct {
	mu        sync.Mutex
	browsers  []*cdptest.Browser
	endpoints []string
	configure func(b *cdptest.Browser)
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint string) (cdp.Transport, error) {
	b := cdptest.New()
	if d.configure != nil {
		d.configure(b)
	}

	d.mu.Lock()
	d.browsers = append(d.browsers, b)
	d.endpoints = append(d.endpoints, endpoint)
	d.mu.Unlock()

	return b.Dial(ctx, endpoint)
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.browsers)
}

func (d *fakeDialer) browser(i int) *cdptest.Browser {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.browsers[i]
}

type recordingConnObserver struct {
	mu     sync.Mutex
	states []bool
}

func (o *recordingConnObserver) SetConnected(c bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, c)
}

func setupTestManager(t *testing.T, targets *fakeTargets, repo Repository) (*Manager, *fakeDialer) {
	t.Helper()

	dialer := &fakeDialer{}
	opts := Options{
		Domains:     []string{"Page"},
		CallTimeout: time.Second,
		Dial:        dialer.Dial,
		Repository:  repo,
	}
	m := NewManager(targets, opts)
	t.Cleanup(func() { m.Close() })
	return m, dialer
}

func setupTestRepo(t *testing.T) *storage.SessionRepository {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := storage.NewRedisClient(context.Background(), mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("failed to connect to miniredis: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return storage.NewSessionRepository(client, time.Hour)
}

// waitFor polls cond for up to two seconds
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// TestGenerateSessionID tests session ID generation
func TestGenerateSessionID(t *testing.T) {
	ids := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := generateSessionID()
		if err != nil {
			t.Fatalf("generateSessionID failed: %v", err)
		}
		if !strings.HasPrefix(id, "sess_") {
			t.Errorf("expected sess_ prefix, got %s", id)
		}
		if ids[id] {
			t.Errorf("duplicate session ID generated: %s", id)
		}
		ids[id] = true
	}
}

// TestConnectFirstPage tests the default tab choice
func TestConnectFirstPage(t *testing.T) {
	m, dialer := setupTestManager(t, newFakeTargets("T1", "T2"), nil)
	ctx := context.Background()

	s, err := m.Connect(ctx, "")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if s.Target.ID != "T1" {
		t.Errorf("expected first page T1, got %s", s.Target.ID)
	}
	if !s.Ready() {
		t.Errorf("expected Ready, got %s", s.Conn.State())
	}
	if dialer.endpoints[0] != "ws://fake/devtools/page/T1" {
		t.Errorf("dialed wrong endpoint %s", dialer.endpoints[0])
	}
	if got := dialer.browser(0).Methods(); len(got) != 1 || got[0] != "Page.enable" {
		t.Errorf("expected only Page.enable, got %v", got)
	}

	active, ok := m.Active()
	if !ok || active != s {
		t.Error("expected the new session to be active")
	}

	tabs, err := m.ListTabs(ctx)
	if err != nil {
		t.Fatalf("ListTabs failed: %v", err)
	}
	if len(tabs) != 2 || !tabs[0].Active || tabs[1].Active {
		t.Errorf("unexpected tabs %+v", tabs)
	}
}

// TestConnectIdempotent tests that reconnecting to the attached tab reuses
// the connection
func TestConnectIdempotent(t *testing.T) {
	m, dialer := setupTestManager(t, newFakeTargets("T1"), nil)
	ctx := context.Background()

	first, err := m.Connect(ctx, "T1")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	second, err := m.Connect(ctx, "T1")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	third, err := m.Session(ctx)
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}

	if first != second || first != third {
		t.Error("expected the same session")
	}
	if dialer.count() != 1 {
		t.Errorf("expected one dial, got %d", dialer.count())
	}
}

// TestConnectUnknownTab tests the tab-not-found error
func TestConnectUnknownTab(t *testing.T) {
	m, _ := setupTestManager(t, newFakeTargets("T1"), nil)

	_, err := m.Connect(context.Background(), "nope")
	if !errors.Is(err, ErrTabNotFound) {
		t.Fatalf("expected ErrTabNotFound, got %v", err)
	}
	if _, ok := m.Active(); ok {
		t.Error("expected no active session")
	}
}

// TestConnectCreatesTab tests that a browser without pages gets one
func TestConnectCreatesTab(t *testing.T) {
	targets := newFakeTargets()
	m, _ := setupTestManager(t, targets, nil)

	s, err := m.Connect(context.Background(), "")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if len(targets.created) != 1 || s.Target.ID != targets.created[0] {
		t.Errorf("expected a created tab, got %s (created %v)", s.Target.ID, targets.created)
	}
}

// TestSwitchTab tests that switching closes the previous connection first
func TestSwitchTab(t *testing.T) {
	targets := newFakeTargets("T1", "T2")
	m, dialer := setupTestManager(t, targets, nil)
	obs := &recordingConnObserver{}
	m.opts.ConnectionObserver = obs
	ctx := context.Background()

	first, err := m.Connect(ctx, "")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	second, err := m.SwitchTab(ctx, "T2")
	if err != nil {
		t.Fatalf("SwitchTab failed: %v", err)
	}
	if second.Target.ID != "T2" {
		t.Errorf("expected T2, got %s", second.Target.ID)
	}

	select {
	case <-dialer.browser(0).Closed():
	default:
		t.Error("expected the first transport to be closed")
	}
	if first.Conn.State() != cdp.StateClosed {
		t.Errorf("expected first connection Closed, got %s", first.Conn.State())
	}
	if len(targets.activated) != 1 || targets.activated[0] != "T2" {
		t.Errorf("expected T2 activated, got %v", targets.activated)
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	want := []bool{true, false, true}
	if len(obs.states) != len(want) {
		t.Fatalf("expected connection states %v, got %v", want, obs.states)
	}
	for i := range want {
		if obs.states[i] != want[i] {
			t.Errorf("expected connection states %v, got %v", want, obs.states)
			break
		}
	}
}

// TestSessionReconnectsAfterLoss tests lazy reconnection to the same tab
// after the socket drops
func TestSessionReconnectsAfterLoss(t *testing.T) {
	m, dialer := setupTestManager(t, newFakeTargets("T1", "T2"), nil)
	ctx := context.Background()

	first, err := m.Connect(ctx, "T2")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	dialer.browser(0).FailRead(errors.New("socket reset"))
	waitFor(t, "connection loss", func() bool {
		_, ok := m.Active()
		return !ok
	})
	if !cdp.IsConnectionError(first.Conn.Err()) {
		t.Errorf("expected connection error, got %v", first.Conn.Err())
	}

	s, err := m.Session(ctx)
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if s == first {
		t.Fatal("expected a new session")
	}
	if s.Target.ID != "T2" {
		t.Errorf("expected to reattach to T2, got %s", s.Target.ID)
	}
	if dialer.count() != 2 {
		t.Errorf("expected two dials, got %d", dialer.count())
	}
}

// TestFrameNavigatedInvalidates tests that a main-frame navigation drops the
// accessibility snapshot and updates the session URL
func TestFrameNavigatedInvalidates(t *testing.T) {
	m, dialer := setupTestManager(t, newFakeTargets("T1"), nil)
	dialer.configure = func(b *cdptest.Browser) {
		b.HandleResult("Accessibility.getFullAXTree", map[string]any{"nodes": []any{}})
	}
	ctx := context.Background()

	s, err := m.Connect(ctx, "")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	b := dialer.browser(0)

	locator := s.Driver.Locator()
	for i := 0; i < 2; i++ {
		if _, err := locator.Snapshot(ctx); err != nil {
			t.Fatalf("Snapshot failed: %v", err)
		}
	}
	if n := b.Called("Accessibility.getFullAXTree"); n != 1 {
		t.Fatalf("expected one fetch, got %d", n)
	}

	b.Emit("Page.frameNavigated", map[string]any{
		"frame": map[string]any{"id": "child", "parentId": "main", "url": "https://ads.example/"},
	})
	b.Emit("Page.frameNavigated", map[string]any{
		"frame": map[string]any{"id": "main", "url": "https://example.com/next"},
	})
	waitFor(t, "main frame URL", func() bool { return s.URL() == "https://example.com/next" })

	if _, err := locator.Snapshot(ctx); err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if n := b.Called("Accessibility.getFullAXTree"); n != 2 {
		t.Errorf("expected a refetch after navigation, got %d fetches", n)
	}
}

// TestCloseTab tests closing the attached tab
func TestCloseTab(t *testing.T) {
	targets := newFakeTargets("T1", "T2")
	m, _ := setupTestManager(t, targets, nil)
	ctx := context.Background()

	if _, err := m.Connect(ctx, "T1"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := m.CloseTab(ctx, "T1"); err != nil {
		t.Fatalf("CloseTab failed: %v", err)
	}
	if _, ok := m.Active(); ok {
		t.Error("expected no active session after closing its tab")
	}
	if len(targets.closed) != 1 || targets.closed[0] != "T1" {
		t.Errorf("expected T1 closed, got %v", targets.closed)
	}

	s, err := m.Session(ctx)
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if s.Target.ID != "T2" {
		t.Errorf("expected fallback to T2, got %s", s.Target.ID)
	}
}

// TestCreateTab tests that a new tab is not attached
func TestCreateTab(t *testing.T) {
	targets := newFakeTargets("T1")
	m, dialer := setupTestManager(t, targets, nil)

	tab, err := m.CreateTab(context.Background(), "https://example.org")
	if err != nil {
		t.Fatalf("CreateTab failed: %v", err)
	}
	if tab.URL != "https://example.org" || tab.Active {
		t.Errorf("unexpected tab %+v", tab)
	}
	if dialer.count() != 0 {
		t.Error("CreateTab should not connect")
	}
}

// TestDisconnect tests explicit disconnection
func TestDisconnect(t *testing.T) {
	m, _ := setupTestManager(t, newFakeTargets("T1"), nil)
	ctx := context.Background()

	if err := m.Disconnect(ctx); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}

	s, err := m.Connect(ctx, "")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := m.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if s.Conn.State() != cdp.StateClosed {
		t.Errorf("expected Closed, got %s", s.Conn.State())
	}
	if _, err := s.Conn.Call(ctx, "Runtime.evaluate", nil, time.Second); !cdp.IsConnectionError(err) {
		t.Errorf("expected calls on a closed session to fail, got %v", err)
	}
}

// TestClosedManager tests that Close rejects further connections
func TestClosedManager(t *testing.T) {
	m, _ := setupTestManager(t, newFakeTargets("T1"), nil)

	if _, err := m.Connect(context.Background(), ""); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := m.Session(context.Background()); !errors.Is(err, ErrManagerClosed) {
		t.Errorf("expected ErrManagerClosed, got %v", err)
	}
}

// TestIdleReaper tests that an idle connection is closed
func TestIdleReaper(t *testing.T) {
	m, _ := setupTestManager(t, newFakeTargets("T1"), nil)

	s, err := m.Connect(context.Background(), "")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.RunIdleReaper(ctx, 10*time.Millisecond, 30*time.Millisecond) }()

	waitFor(t, "idle session to be reaped", func() bool {
		_, ok := m.Active()
		return !ok
	})
	if s.Conn.State() != cdp.StateClosed {
		t.Errorf("expected Closed, got %s", s.Conn.State())
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("expected clean stop, got %v", err)
	}

	if err := m.RunIdleReaper(context.Background(), 0, time.Second); err == nil {
		t.Error("expected error for zero interval")
	}
}

// TestPersistedSessionResumed tests that a new manager returns to the tab
// the previous one used
func TestPersistedSessionResumed(t *testing.T) {
	repo := setupTestRepo(t)
	targets := newFakeTargets("T1", "T2")
	ctx := context.Background()

	first, _ := setupTestManager(t, targets, repo)
	s, err := first.Connect(ctx, "T2")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	state, err := repo.CurrentSession(ctx)
	if err != nil {
		t.Fatalf("CurrentSession failed: %v", err)
	}
	if state.SessionID != s.ID || state.TargetID != "T2" || state.Status != storage.StatusActive {
		t.Errorf("unexpected persisted state %+v", state)
	}
	if len(state.Domains) != 1 || state.Domains[0] != "Page" {
		t.Errorf("unexpected persisted domains %v", state.Domains)
	}

	second, _ := setupTestManager(t, targets, repo)
	resumed, err := second.Connect(ctx, "")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if resumed.Target.ID != "T2" {
		t.Errorf("expected to resume T2, got %s", resumed.Target.ID)
	}
}

// TestCookieJars tests save and restore through the repository
func TestCookieJars(t *testing.T) {
	repo := setupTestRepo(t)
	m, dialer := setupTestManager(t, newFakeTargets("T1"), repo)

	var mu sync.Mutex
	var restored []map[string]any
	dialer.configure = func(b *cdptest.Browser) {
		b.HandleResult("Network.getCookies", map[string]any{"cookies": []map[string]any{
			{"name": "sid", "value": "abc", "domain": "example.com", "path": "/", "expires": -1},
		}})
		b.Handle("Network.setCookies", func(params json.RawMessage) (any, *cdp.ResponseError) {
			var req struct {
				Cookies []map[string]any `json:"cookies"`
			}
			json.Unmarshal(params, &req)
			mu.Lock()
			restored = req.Cookies
			mu.Unlock()
			return struct{}{}, nil
		})
	}
	ctx := context.Background()

	jar, err := m.SaveCookies(ctx, "work")
	if err != nil {
		t.Fatalf("SaveCookies failed: %v", err)
	}
	if jar.Count != 1 {
		t.Errorf("expected 1 cookie saved, got %d", jar.Count)
	}

	n, err := m.RestoreCookies(ctx, "work", true)
	if err != nil {
		t.Fatalf("RestoreCookies failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 cookie restored, got %d", n)
	}

	b := dialer.browser(0)
	if b.Called("Network.clearBrowserCookies") != 1 {
		t.Errorf("expected cookies cleared before restore, got %v", b.Methods())
	}
	mu.Lock()
	if len(restored) != 1 || restored[0]["name"] != "sid" {
		t.Errorf("unexpected restored cookies %v", restored)
	}
	if _, ok := restored[0]["expires"]; ok {
		t.Errorf("session cookie should be sent without expires, got %v", restored[0])
	}
	mu.Unlock()

	names, err := m.ListCookieJars(ctx)
	if err != nil || len(names) != 1 || names[0] != "work" {
		t.Errorf("unexpected jars %v (%v)", names, err)
	}
	if err := m.DeleteCookieJar(ctx, "work"); err != nil {
		t.Errorf("DeleteCookieJar failed: %v", err)
	}
	if _, err := m.RestoreCookies(ctx, "work", false); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestCookieJarsWithoutRepository tests the disabled-persistence error
func TestCookieJarsWithoutRepository(t *testing.T) {
	m, _ := setupTestManager(t, newFakeTargets("T1"), nil)

	if _, err := m.SaveCookies(context.Background(), "work"); !errors.Is(err, ErrPersistenceDisabled) {
		t.Errorf("expected ErrPersistenceDisabled, got %v", err)
	}
	if _, err := m.ListCookieJars(context.Background()); !errors.Is(err, ErrPersistenceDisabled) {
		t.Errorf("expected ErrPersistenceDisabled, got %v", err)
	}
}
