package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/dhruvsoni1802/browser-bridge/internal/automation"
	"github.com/dhruvsoni1802/browser-bridge/internal/page"
)

var waitConditions = []string{
	"element_present", "element_visible", "element_clickable",
	"text_present", "url_contains", "url_matches", "page_load", "network_idle",
}

func (r *Registry) registerBrowserTools() {
	r.register(Definition{
		Name:        "chrome_navigate",
		Description: "Navigate the attached tab to a URL and wait for the page to load",
		InputSchema: schema([]string{"url"}, map[string]any{
			"url": prop("string", "URL to navigate to"),
		}),
	}, r.navigate)

	r.register(Definition{
		Name:        "chrome_click",
		Description: "Click an element found by CSS selector, visible text or accessibility role",
		InputSchema: schema([]string{"target"}, map[string]any{
			"target": prop("string", "CSS selector, text or role of the element"),
		}),
	}, r.click)

	r.register(Definition{
		Name:        "chrome_type",
		Description: "Type text, optionally into an element that is clicked first",
		InputSchema: schema([]string{"text"}, map[string]any{
			"text":     prop("string", "Text to type"),
			"selector": prop("string", "Element to focus before typing"),
		}),
	}, r.typeText)

	r.register(Definition{
		Name:        "chrome_hover",
		Description: "Move the mouse over an element",
		InputSchema: schema([]string{"target"}, map[string]any{
			"target": prop("string", "CSS selector, text or role of the element"),
		}),
	}, r.hover)

	r.register(Definition{
		Name:        "chrome_find",
		Description: "List the elements each lookup strategy finds for a query",
		InputSchema: schema([]string{"query"}, map[string]any{
			"query": prop("string", "CSS selector, text or role"),
		}),
	}, r.find)

	r.register(Definition{
		Name:        "chrome_wait",
		Description: "Wait until a condition holds on the page",
		InputSchema: schema([]string{"condition"}, map[string]any{
			"condition": enumProp("Condition to wait for", waitConditions...),
			"target":    prop("string", "Selector, text, URL fragment or network quiet period, depending on the condition"),
			"timeout":   prop("integer", "Timeout in milliseconds (default 10000)"),
		}),
	}, r.wait)

	r.register(Definition{
		Name:        "chrome_evaluate",
		Description: "Evaluate JavaScript in the page and return the result as JSON",
		InputSchema: schema([]string{"javascript"}, map[string]any{
			"javascript": prop("string", "Expression to evaluate; promises are awaited"),
		}),
	}, r.evaluate)

	r.register(Definition{
		Name:        "chrome_screenshot",
		Description: "Capture the page, or one element, as an image",
		InputSchema: schema(nil, map[string]any{
			"format":    enumProp("Image format", "png", "jpeg"),
			"quality":   map[string]any{"type": "integer", "minimum": 1, "maximum": 100, "description": "JPEG quality"},
			"full_page": prop("boolean", "Capture beyond the viewport"),
			"selector":  prop("string", "Capture only this element"),
		}),
	}, r.screenshot)

	r.register(Definition{
		Name:        "chrome_pdf",
		Description: "Print the page to PDF (headless browsers only)",
		InputSchema: schema(nil, map[string]any{
			"landscape":        prop("boolean", "Landscape orientation"),
			"print_background": prop("boolean", "Print background graphics"),
			"scale":            prop("number", "Scale of the rendering"),
		}),
	}, r.pdf)

	r.register(Definition{
		Name:        "chrome_scroll",
		Description: "Scroll an element into view, or the window by an offset",
		InputSchema: schema(nil, map[string]any{
			"x":        prop("integer", "Horizontal offset in pixels"),
			"y":        prop("integer", "Vertical offset in pixels"),
			"selector": prop("string", "Element to scroll into view"),
		}),
	}, r.scroll)

	r.register(Definition{
		Name:        "chrome_select",
		Description: "Choose an option of a <select> element",
		InputSchema: schema([]string{"selector", "value"}, map[string]any{
			"selector": prop("string", "CSS selector of the select element"),
			"value":    prop("string", "Option value"),
		}),
	}, r.selectOption)

	r.register(Definition{
		Name:        "chrome_accessibility_tree",
		Description: "Return a fresh accessibility snapshot of the page",
		InputSchema: schema(nil, map[string]any{
			"summary": prop("boolean", "Return an indented text outline instead of JSON"),
		}),
	}, r.accessibilityTree)
}

func (r *Registry) navigate(ctx context.Context, args Args) (Result, error) {
	url, err := args.String("url")
	if err != nil {
		return Result{}, err
	}
	s, err := r.session(ctx)
	if err != nil {
		return Result{}, err
	}
	if _, err := s.Driver.Navigate(ctx, url); err != nil {
		return Result{}, err
	}
	return TextResult("Navigated to %s", url), nil
}

func (r *Registry) click(ctx context.Context, args Args) (Result, error) {
	target, err := args.String("target", "selector")
	if err != nil {
		return Result{}, err
	}
	s, err := r.session(ctx)
	if err != nil {
		return Result{}, err
	}
	ref, err := s.Driver.Click(ctx, target)
	if err != nil {
		return Result{}, err
	}
	return TextResult("Clicked %s (found by %s)", target, ref.Strategy), nil
}

func (r *Registry) typeText(ctx context.Context, args Args) (Result, error) {
	text, err := args.String("text")
	if err != nil {
		return Result{}, err
	}
	target, err := args.OptString("", "selector", "target")
	if err != nil {
		return Result{}, err
	}
	s, err := r.session(ctx)
	if err != nil {
		return Result{}, err
	}
	if err := s.Driver.Type(ctx, text, target); err != nil {
		return Result{}, err
	}
	if target == "" {
		return TextResult("Typed %d characters", len([]rune(text))), nil
	}
	return TextResult("Typed %d characters into %s", len([]rune(text)), target), nil
}

func (r *Registry) hover(ctx context.Context, args Args) (Result, error) {
	target, err := args.String("target", "selector")
	if err != nil {
		return Result{}, err
	}
	s, err := r.session(ctx)
	if err != nil {
		return Result{}, err
	}
	if _, err := s.Driver.Hover(ctx, target); err != nil {
		return Result{}, err
	}
	return TextResult("Hovered over %s", target), nil
}

func (r *Registry) find(ctx context.Context, args Args) (Result, error) {
	query, err := args.String("query", "target")
	if err != nil {
		return Result{}, err
	}
	s, err := r.session(ctx)
	if err != nil {
		return Result{}, err
	}
	refs, err := s.Driver.Find(ctx, query)
	if err != nil {
		return Result{}, err
	}
	return JSONResult(refs)
}

func (r *Registry) wait(ctx context.Context, args Args) (Result, error) {
	name, err := args.String("condition")
	if err != nil {
		return Result{}, err
	}
	target, err := args.OptString("", "target", "value")
	if err != nil {
		return Result{}, err
	}
	timeoutMs, err := args.OptInt("timeout", int(r.opts.WaitTimeout/time.Millisecond))
	if err != nil {
		return Result{}, err
	}
	if timeoutMs <= 0 {
		return Result{}, invalid("timeout", "must be positive")
	}

	cond, err := automation.ParseCondition(name, target)
	if err != nil {
		return Result{}, &ArgumentError{Arg: "condition", Reason: err.Error()}
	}

	s, err := r.session(ctx)
	if err != nil {
		return Result{}, err
	}
	if err := s.Driver.Wait(ctx, cond, time.Duration(timeoutMs)*time.Millisecond); err != nil {
		return Result{}, err
	}
	return TextResult("Condition met: %s", cond), nil
}

func (r *Registry) evaluate(ctx context.Context, args Args) (Result, error) {
	expr, err := args.String("javascript", "expression")
	if err != nil {
		return Result{}, err
	}
	s, err := r.session(ctx)
	if err != nil {
		return Result{}, err
	}
	value, err := s.Page.Evaluate(ctx, expr)
	if err != nil {
		return Result{}, err
	}

	var out bytes.Buffer
	if err := json.Indent(&out, value, "", "  "); err != nil {
		return TextResult("%s", value), nil
	}
	return TextResult("%s", out.String()), nil
}

func (r *Registry) screenshot(ctx context.Context, args Args) (Result, error) {
	format, err := args.OptString("png", "format")
	if err != nil {
		return Result{}, err
	}
	if format != "png" && format != "jpeg" && format != "jpg" {
		return Result{}, invalid("format", "must be png or jpeg")
	}
	quality, err := args.OptInt("quality", 0)
	if err != nil {
		return Result{}, err
	}
	if quality < 0 || quality > 100 {
		return Result{}, invalid("quality", "must be between 1 and 100")
	}
	fullPage, err := args.Bool("full_page", false)
	if err != nil {
		return Result{}, err
	}
	selector, err := args.OptString("", "selector")
	if err != nil {
		return Result{}, err
	}

	s, err := r.session(ctx)
	if err != nil {
		return Result{}, err
	}

	var data string
	mime := "image/png"
	if selector != "" {
		data, err = s.Page.CaptureElement(ctx, selector)
	} else {
		data, err = s.Page.CaptureScreenshot(ctx, page.ScreenshotOptions{
			Format:   format,
			Quality:  quality,
			FullPage: fullPage,
		})
		if format != "png" {
			mime = "image/jpeg"
		}
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Content: []Content{{Type: "image", Data: data, MimeType: mime}}}, nil
}

func (r *Registry) pdf(ctx context.Context, args Args) (Result, error) {
	opts := page.DefaultPDFOptions()

	landscape, err := args.OptBool("landscape")
	if err != nil {
		return Result{}, err
	}
	if landscape != nil {
		opts.Landscape = landscape
	}
	background, err := args.OptBool("print_background")
	if err != nil {
		return Result{}, err
	}
	if background != nil {
		opts.PrintBackground = background
	}
	scale, err := args.OptFloat("scale")
	if err != nil {
		return Result{}, err
	}
	if scale != nil {
		if *scale < 0.1 || *scale > 2 {
			return Result{}, invalid("scale", "must be between 0.1 and 2")
		}
		opts.Scale = scale
	}

	s, err := r.session(ctx)
	if err != nil {
		return Result{}, err
	}
	data, err := s.Page.PrintToPDF(ctx, opts)
	if err != nil {
		return Result{}, err
	}

	return Result{Content: []Content{{
		Type: "resource",
		Resource: &Resource{
			URI:      "browser-bridge://pdf/" + s.Target.ID,
			MimeType: "application/pdf",
			Blob:     data,
		},
	}}}, nil
}

func (r *Registry) scroll(ctx context.Context, args Args) (Result, error) {
	selector, err := args.OptString("", "selector")
	if err != nil {
		return Result{}, err
	}
	x, err := args.OptInt("x", 0)
	if err != nil {
		return Result{}, err
	}
	y, err := args.OptInt("y", 0)
	if err != nil {
		return Result{}, err
	}

	s, err := r.session(ctx)
	if err != nil {
		return Result{}, err
	}

	if selector != "" {
		if err := s.Page.ScrollIntoView(ctx, selector); err != nil {
			return Result{}, err
		}
		s.Driver.Invalidate()
		return TextResult("Scrolled %s into view", selector), nil
	}
	if err := s.Page.ScrollBy(ctx, x, y); err != nil {
		return Result{}, err
	}
	s.Driver.Invalidate()
	return TextResult("Scrolled by (%d, %d)", x, y), nil
}

func (r *Registry) selectOption(ctx context.Context, args Args) (Result, error) {
	selector, err := args.String("selector")
	if err != nil {
		return Result{}, err
	}
	value, err := args.OptString("", "value")
	if err != nil {
		return Result{}, err
	}
	if _, present := args["value"]; !present {
		return Result{}, missing("value")
	}

	s, err := r.session(ctx)
	if err != nil {
		return Result{}, err
	}
	if err := s.Page.SelectOption(ctx, selector, value); err != nil {
		return Result{}, err
	}
	return TextResult("Selected %q in %s", value, selector), nil
}

func (r *Registry) accessibilityTree(ctx context.Context, args Args) (Result, error) {
	summary, err := args.Bool("summary", false)
	if err != nil {
		return Result{}, err
	}
	s, err := r.session(ctx)
	if err != nil {
		return Result{}, err
	}

	s.Driver.Invalidate()
	tree, err := s.Driver.Locator().Snapshot(ctx)
	if err != nil {
		return Result{}, err
	}
	if summary {
		return TextResult("%s", tree.Summary()), nil
	}
	return JSONResult(tree)
}
