package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dhruvsoni1802/browser-bridge/internal/page"
	"github.com/dhruvsoni1802/browser-bridge/internal/storage"
)

// SaveCookies stores the browser's current cookies as the jar name
func (m *Manager) SaveCookies(ctx context.Context, name string) (*storage.CookieJar, error) {
	repo := m.opts.Repository
	if repo == nil {
		return nil, ErrPersistenceDisabled
	}

	s, err := m.Session(ctx)
	if err != nil {
		return nil, err
	}

	cookies, err := s.Page.GetCookies(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(cookies)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cookies: %w", err)
	}

	jar, err := repo.SaveCookieJar(ctx, name, data)
	if err != nil {
		return nil, err
	}
	m.logger.Info("saved cookie jar", "name", name, "count", jar.Count)
	return jar, nil
}

// RestoreCookies loads the jar name into the browser. With replace set,
// existing cookies are cleared first.
func (m *Manager) RestoreCookies(ctx context.Context, name string, replace bool) (int, error) {
	repo := m.opts.Repository
	if repo == nil {
		return 0, ErrPersistenceDisabled
	}

	jar, err := repo.GetCookieJar(ctx, name)
	if err != nil {
		return 0, err
	}

	var cookies []page.Cookie
	if err := json.Unmarshal(jar.Cookies, &cookies); err != nil {
		return 0, fmt.Errorf("cookie jar %s is corrupt: %w", name, err)
	}

	s, err := m.Session(ctx)
	if err != nil {
		return 0, err
	}

	if replace {
		if err := s.Page.ClearCookies(ctx); err != nil {
			return 0, err
		}
	}
	if err := s.Page.SetCookies(ctx, cookies); err != nil {
		return 0, err
	}

	m.logger.Info("restored cookie jar", "name", name, "count", len(cookies), "replace", replace)
	return len(cookies), nil
}

// ListCookieJars returns the names of the saved jars
func (m *Manager) ListCookieJars(ctx context.Context) ([]string, error) {
	if m.opts.Repository == nil {
		return nil, ErrPersistenceDisabled
	}
	return m.opts.Repository.ListCookieJars(ctx)
}

// DeleteCookieJar removes a saved jar
func (m *Manager) DeleteCookieJar(ctx context.Context, name string) error {
	if m.opts.Repository == nil {
		return ErrPersistenceDisabled
	}
	return m.opts.Repository.DeleteCookieJar(ctx, name)
}
