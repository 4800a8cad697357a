// Package page holds typed wrappers over single protocol calls. Each
// method formats one (or a few) outbound commands and decodes the reply.
package page

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Caller is the generic call path, satisfied by *cdp.Conn
type Caller interface {
	Call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error)
}

// Page wraps a Caller with typed helpers
type Page struct {
	caller  Caller
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a façade. A non-positive timeout defers to the caller's
// default.
func New(c Caller, timeout time.Duration, logger *slog.Logger) *Page {
	if logger == nil {
		logger = slog.Default()
	}
	return &Page{caller: c, timeout: timeout, logger: logger}
}

// Call forwards a raw command
func (p *Page) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return p.caller.Call(ctx, method, params, p.timeout)
}

// call sends method and decodes the result into out (if non-nil)
func (p *Page) call(ctx context.Context, method string, params any, out any) error {
	result, err := p.caller.Call(ctx, method, params, p.timeout)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

// NavigateResult is the reply to Page.navigate
type NavigateResult struct {
	FrameID   string `json:"frameId"`
	LoaderID  string `json:"loaderId,omitempty"`
	ErrorText string `json:"errorText,omitempty"`
}

// Navigate starts loading url in the current tab. It returns once the
// browser accepted the navigation, not when the page finished loading.
func (p *Page) Navigate(ctx context.Context, url string) (NavigateResult, error) {
	if url == "" {
		return NavigateResult{}, errors.New("navigate: empty url")
	}

	var res NavigateResult
	if err := p.call(ctx, "Page.navigate", map[string]string{"url": url}, &res); err != nil {
		return NavigateResult{}, err
	}
	if res.ErrorText != "" {
		return res, fmt.Errorf("navigation to %s failed: %s", url, res.ErrorText)
	}
	return res, nil
}

// Reload reloads the current page
func (p *Page) Reload(ctx context.Context, ignoreCache bool) error {
	return p.call(ctx, "Page.reload", map[string]bool{"ignoreCache": ignoreCache}, nil)
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
