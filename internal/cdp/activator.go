package cdp

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"
)

// DefaultDomains are enabled on every new connection. Input has no enable
// command in the protocol and is usable without one.
var DefaultDomains = []string{"Page", "Runtime", "DOM", "Network", "Accessibility"}

// caller is the raw call path used during activation, before the
// connection is Ready
type caller interface {
	Call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error)
}

// Activator issues the "enable" command for each required domain
type Activator struct {
	caller  caller
	timeout time.Duration
	enabled map[string]bool
	logger  *slog.Logger
}

// NewActivator creates an activator bound to one connection's call path
func NewActivator(c caller, timeout time.Duration, logger *slog.Logger) *Activator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activator{
		caller:  c,
		timeout: timeout,
		enabled: make(map[string]bool),
		logger:  logger,
	}
}

// Activate enables domains in order. It stops at the first failure and
// reports it as *ActivationError; domains already enabled are skipped.
func (a *Activator) Activate(ctx context.Context, domains []string) error {
	for _, domain := range NormalizeDomains(domains) {
		if a.enabled[domain] {
			continue
		}

		if _, err := a.caller.Call(ctx, domain+".enable", nil, a.timeout); err != nil {
			return &ActivationError{Domain: domain, Err: err}
		}

		a.enabled[domain] = true
		a.logger.Debug("cdp domain enabled", "domain", domain)
	}
	return nil
}

// Enabled reports whether domain has been enabled on this connection
func (a *Activator) Enabled(domain string) bool {
	return a.enabled[domain]
}

// NormalizeDomains trims names and removes duplicates, keeping first-seen order
func NormalizeDomains(domains []string) []string {
	seen := make(map[string]bool, len(domains))
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.TrimSpace(d)
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}
