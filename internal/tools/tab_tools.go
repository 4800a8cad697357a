package tools

import (
	"context"

	"github.com/dhruvsoni1802/browser-bridge/internal/page"
)

func (r *Registry) registerTabTools() {
	r.register(Definition{
		Name:        "chrome_tabs",
		Description: "List, create, switch to or close browser tabs",
		InputSchema: schema([]string{"action"}, map[string]any{
			"action": enumProp("Tab action", "list", "create", "switch", "close"),
			"tab_id": prop("string", "Tab id for switch and close"),
			"url":    prop("string", "URL for create (default about:blank)"),
		}),
	}, r.tabs)

	r.register(Definition{
		Name:        "chrome_cookies",
		Description: "Read, write or clear cookies, and save or restore named cookie jars",
		InputSchema: schema([]string{"action"}, map[string]any{
			"action":  enumProp("Cookie action", "get", "set", "clear", "save", "restore", "list", "delete"),
			"name":    prop("string", "Cookie name for set"),
			"value":   prop("string", "Cookie value for set"),
			"domain":  prop("string", "Cookie domain for set (default: the current page)"),
			"path":    prop("string", "Cookie path for set"),
			"jar":     prop("string", "Jar name for save, restore and delete"),
			"replace": prop("boolean", "Clear existing cookies before restoring a jar"),
		}),
	}, r.cookies)
}

func (r *Registry) tabs(ctx context.Context, args Args) (Result, error) {
	action, err := args.String("action")
	if err != nil {
		return Result{}, err
	}

	switch action {
	case "list":
		tabs, err := r.sessions.ListTabs(ctx)
		if err != nil {
			return Result{}, err
		}
		return JSONResult(tabs)

	case "create":
		url, err := args.OptString("", "url")
		if err != nil {
			return Result{}, err
		}
		tab, err := r.sessions.CreateTab(ctx, url)
		if err != nil {
			return Result{}, err
		}
		return JSONResult(tab)

	case "switch":
		tabID, err := args.String("tab_id")
		if err != nil {
			return Result{}, err
		}
		s, err := r.sessions.SwitchTab(ctx, tabID)
		if err != nil {
			return Result{}, err
		}
		return TextResult("Switched to tab %s (%s)", tabID, s.Target.URL), nil

	case "close":
		tabID, err := args.String("tab_id")
		if err != nil {
			return Result{}, err
		}
		if err := r.sessions.CloseTab(ctx, tabID); err != nil {
			return Result{}, err
		}
		return TextResult("Closed tab %s", tabID), nil
	}
	return Result{}, invalid("action", "unknown tab action %q", action)
}

func (r *Registry) cookies(ctx context.Context, args Args) (Result, error) {
	action, err := args.String("action")
	if err != nil {
		return Result{}, err
	}

	switch action {
	case "get":
		s, err := r.session(ctx)
		if err != nil {
			return Result{}, err
		}
		cookies, err := s.Page.GetCookies(ctx)
		if err != nil {
			return Result{}, err
		}
		return JSONResult(cookies)

	case "set":
		return r.setCookie(ctx, args)

	case "clear":
		s, err := r.session(ctx)
		if err != nil {
			return Result{}, err
		}
		if err := s.Page.ClearCookies(ctx); err != nil {
			return Result{}, err
		}
		return TextResult("Cleared all cookies"), nil

	case "save":
		jar, err := args.String("jar")
		if err != nil {
			return Result{}, err
		}
		saved, err := r.sessions.SaveCookies(ctx, jar)
		if err != nil {
			return Result{}, err
		}
		return TextResult("Saved %d cookies to jar %s", saved.Count, jar), nil

	case "restore":
		jar, err := args.String("jar")
		if err != nil {
			return Result{}, err
		}
		replace, err := args.Bool("replace", false)
		if err != nil {
			return Result{}, err
		}
		n, err := r.sessions.RestoreCookies(ctx, jar, replace)
		if err != nil {
			return Result{}, err
		}
		return TextResult("Restored %d cookies from jar %s", n, jar), nil

	case "list":
		jars, err := r.sessions.ListCookieJars(ctx)
		if err != nil {
			return Result{}, err
		}
		return JSONResult(jars)

	case "delete":
		jar, err := args.String("jar")
		if err != nil {
			return Result{}, err
		}
		if err := r.sessions.DeleteCookieJar(ctx, jar); err != nil {
			return Result{}, err
		}
		return TextResult("Deleted jar %s", jar), nil
	}
	return Result{}, invalid("action", "unknown cookie action %q", action)
}

func (r *Registry) setCookie(ctx context.Context, args Args) (Result, error) {
	name, err := args.String("name")
	if err != nil {
		return Result{}, err
	}
	value, err := args.OptString("", "value")
	if err != nil {
		return Result{}, err
	}
	domain, err := args.OptString("", "domain")
	if err != nil {
		return Result{}, err
	}
	path, err := args.OptString("", "path")
	if err != nil {
		return Result{}, err
	}

	s, err := r.session(ctx)
	if err != nil {
		return Result{}, err
	}

	cookie := page.Cookie{Name: name, Value: value, Domain: domain, Path: path}
	if domain == "" {
		// scope to the current page
		url, err := s.Page.CurrentURL(ctx)
		if err != nil {
			return Result{}, err
		}
		cookie.URL = url
	}
	if err := s.Page.SetCookie(ctx, cookie); err != nil {
		return Result{}, err
	}
	return TextResult("Set cookie %s", name), nil
}
