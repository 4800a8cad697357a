package page

import (
	"context"
	"errors"
)

// Cookie mirrors Network.Cookie
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain,omitempty"`
	Path     string  `json:"path,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
	Expires  float64 `json:"expires,omitempty"`
	URL      string  `json:"url,omitempty"`
}

// GetCookies returns the cookies visible to the current page
func (p *Page) GetCookies(ctx context.Context) ([]Cookie, error) {
	var res struct {
		Cookies []Cookie `json:"cookies"`
	}
	if err := p.call(ctx, "Network.getCookies", nil, &res); err != nil {
		return nil, err
	}
	return res.Cookies, nil
}

// SetCookie stores one cookie. Either Domain or URL must be set.
func (p *Page) SetCookie(ctx context.Context, c Cookie) error {
	if c.Name == "" {
		return errors.New("cookie name is required")
	}
	if c.Domain == "" && c.URL == "" {
		return errors.New("cookie needs a domain or url")
	}
	// session cookies report expires=-1; sending it back would expire them
	if c.Expires < 0 {
		c.Expires = 0
	}

	var res struct {
		Success *bool `json:"success"`
	}
	if err := p.call(ctx, "Network.setCookie", c, &res); err != nil {
		return err
	}
	if res.Success != nil && !*res.Success {
		return errors.New("browser rejected cookie " + c.Name)
	}
	return nil
}

// SetCookies stores cookies in one call
func (p *Page) SetCookies(ctx context.Context, cookies []Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	out := make([]Cookie, len(cookies))
	for i, c := range cookies {
		if c.Expires < 0 {
			c.Expires = 0
		}
		out[i] = c
	}
	return p.call(ctx, "Network.setCookies", map[string][]Cookie{"cookies": out}, nil)
}

// ClearCookies removes all browser cookies
func (p *Page) ClearCookies(ctx context.Context) error {
	return p.call(ctx, "Network.clearBrowserCookies", nil, nil)
}
