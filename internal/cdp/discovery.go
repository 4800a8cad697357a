package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// VersionInfo is the browser-level description served at /json/version
type VersionInfo struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	UserAgent            string `json:"User-Agent"`
	V8Version            string `json:"V8-Version"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Discovery talks to the browser's HTTP debug endpoints (/json/*). These
// are plain request/response calls outside the persistent connection.
type Discovery struct {
	baseURL    string
	httpClient *http.Client
}

// NewDiscovery creates a discovery client for host:port. An empty host
// means localhost.
func NewDiscovery(host string, port int) *Discovery {
	if host == "" {
		host = "localhost"
	}
	return &Discovery{
		baseURL:    "http://" + net.JoinHostPort(host, fmt.Sprintf("%d", port)),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// NewDiscoveryURL creates a discovery client for an explicit base URL
// such as "http://127.0.0.1:9222"
func NewDiscoveryURL(baseURL string, client *http.Client) *Discovery {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Discovery{baseURL: baseURL, httpClient: client}
}

// BaseURL returns the HTTP endpoint this client talks to
func (d *Discovery) BaseURL() string {
	return d.baseURL
}

// ListTargets returns every target the browser reports, pages or not
func (d *Discovery) ListTargets(ctx context.Context) ([]TargetDescriptor, error) {
	var targets []TargetDescriptor
	if err := d.getJSON(ctx, http.MethodGet, "/json", &targets); err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	return targets, nil
}

// ListPages returns only the page targets
func (d *Discovery) ListPages(ctx context.Context) ([]TargetDescriptor, error) {
	targets, err := d.ListTargets(ctx)
	if err != nil {
		return nil, err
	}

	pages := make([]TargetDescriptor, 0, len(targets))
	for _, t := range targets {
		if t.IsPage() {
			pages = append(pages, t)
		}
	}
	return pages, nil
}

// FindTarget looks up a target by id
func (d *Discovery) FindTarget(ctx context.Context, id string) (TargetDescriptor, bool, error) {
	targets, err := d.ListTargets(ctx)
	if err != nil {
		return TargetDescriptor{}, false, err
	}
	for _, t := range targets {
		if t.ID == id {
			return t, true, nil
		}
	}
	return TargetDescriptor{}, false, nil
}

// NewTarget opens a new tab. An empty pageURL opens about:blank.
func (d *Discovery) NewTarget(ctx context.Context, pageURL string) (TargetDescriptor, error) {
	path := "/json/new"
	if pageURL != "" {
		path += "?" + url.QueryEscape(pageURL)
	}

	// Recent Chrome versions reject GET here
	var target TargetDescriptor
	if err := d.getJSON(ctx, http.MethodPut, path, &target); err != nil {
		return TargetDescriptor{}, fmt.Errorf("failed to create target: %w", err)
	}
	if target.WebSocketDebuggerURL == "" {
		return TargetDescriptor{}, fmt.Errorf("created target %s has no debugger endpoint", target.ID)
	}
	return target, nil
}

// CloseTarget closes the tab with the given id
func (d *Discovery) CloseTarget(ctx context.Context, id string) error {
	if err := d.getJSON(ctx, http.MethodGet, "/json/close/"+url.PathEscape(id), nil); err != nil {
		return fmt.Errorf("failed to close target %s: %w", id, err)
	}
	return nil
}

// ActivateTarget brings the tab with the given id to the foreground
func (d *Discovery) ActivateTarget(ctx context.Context, id string) error {
	if err := d.getJSON(ctx, http.MethodGet, "/json/activate/"+url.PathEscape(id), nil); err != nil {
		return fmt.Errorf("failed to activate target %s: %w", id, err)
	}
	return nil
}

// Version queries /json/version
func (d *Discovery) Version(ctx context.Context) (VersionInfo, error) {
	var info VersionInfo
	if err := d.getJSON(ctx, http.MethodGet, "/json/version", &info); err != nil {
		return VersionInfo{}, fmt.Errorf("failed to query browser version: %w", err)
	}
	if info.WebSocketDebuggerURL == "" {
		return VersionInfo{}, fmt.Errorf("no browser WebSocket URL found")
	}
	return info, nil
}

// getJSON performs one request and decodes the body into out (if non-nil).
// The close and activate endpoints answer with plain text.
func (d *Discovery) getJSON(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, nil)
	if err != nil {
		return err
	}

	response, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to debug port: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code %d: %s", response.StatusCode, truncate(string(body), 200))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
