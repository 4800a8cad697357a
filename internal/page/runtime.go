package page

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// EvalError is a JavaScript exception thrown by an evaluated expression
type EvalError struct {
	Expression string
	Text       string
	Detail     string
}

func (e *EvalError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("javascript error: %s", e.Detail)
	}
	return fmt.Sprintf("javascript error: %s", e.Text)
}

type remoteObject struct {
	Type                string          `json:"type"`
	Subtype             string          `json:"subtype,omitempty"`
	Value               json.RawMessage `json:"value,omitempty"`
	UnserializableValue string          `json:"unserializableValue,omitempty"`
	Description         string          `json:"description,omitempty"`
}

type evaluateResult struct {
	Result           remoteObject `json:"result"`
	ExceptionDetails *struct {
		Text      string        `json:"text"`
		Exception *remoteObject `json:"exception,omitempty"`
	} `json:"exceptionDetails,omitempty"`
}

// Evaluate runs expression in the page and returns its value as JSON.
// Promises are awaited. undefined comes back as null.
func (p *Page) Evaluate(ctx context.Context, expression string) (json.RawMessage, error) {
	params := map[string]any{
		"expression":    expression,
		"returnByValue": true,
		"awaitPromise":  true,
	}

	var res evaluateResult
	if err := p.call(ctx, "Runtime.evaluate", params, &res); err != nil {
		return nil, err
	}

	if d := res.ExceptionDetails; d != nil {
		evalErr := &EvalError{Expression: expression, Text: d.Text}
		if d.Exception != nil {
			evalErr.Detail = d.Exception.Description
		}
		return nil, evalErr
	}

	switch {
	case len(res.Result.Value) > 0:
		return res.Result.Value, nil
	case res.Result.UnserializableValue != "":
		// NaN, Infinity, -0, bigint
		return json.Marshal(res.Result.UnserializableValue)
	default:
		return json.RawMessage("null"), nil
	}
}

// EvaluateBool evaluates expression and reports whether it is strictly
// true. Any other value, null included, reads as false.
func (p *Page) EvaluateBool(ctx context.Context, expression string) (bool, error) {
	raw, err := p.Evaluate(ctx, expression)
	if err != nil {
		return false, err
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		p.logger.Debug("non-boolean evaluation result read as false", "expression", expression, "result", string(raw))
		return false, nil
	}
	return b, nil
}

// EvaluateString evaluates expression and returns its string value
func (p *Page) EvaluateString(ctx context.Context, expression string) (string, error) {
	raw, err := p.Evaluate(ctx, expression)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("expected string from %q, got %s", expression, raw)
	}
	return s, nil
}

// CurrentURL returns window.location.href
func (p *Page) CurrentURL(ctx context.Context) (string, error) {
	return p.EvaluateString(ctx, "window.location.href")
}

// Title returns document.title
func (p *Page) Title(ctx context.Context) (string, error) {
	return p.EvaluateString(ctx, "document.title")
}

// ReadyState returns document.readyState
func (p *Page) ReadyState(ctx context.Context) (string, error) {
	return p.EvaluateString(ctx, "document.readyState")
}

// jsString encodes s as a JavaScript string literal. Scripts go to
// Runtime.evaluate, not into HTML, so <, > and & are left as is.
func jsString(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}

// ElementVisible reports whether the first element matching selector is
// rendered and not hidden
func (p *Page) ElementVisible(ctx context.Context, selector string) (bool, error) {
	expr := fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) return false;
  const style = getComputedStyle(el);
  return el.offsetParent !== null && style.visibility !== 'hidden' && style.display !== 'none';
})()`, jsString(selector))
	return p.EvaluateBool(ctx, expr)
}

// ElementClickable reports whether the first element matching selector is
// rendered, enabled and accepts pointer events
func (p *Page) ElementClickable(ctx context.Context, selector string) (bool, error) {
	expr := fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) return false;
  return el.offsetParent !== null && !el.disabled && getComputedStyle(el).pointerEvents !== 'none';
})()`, jsString(selector))
	return p.EvaluateBool(ctx, expr)
}

// TextPresent reports whether the document body contains text
func (p *Page) TextPresent(ctx context.Context, text string) (bool, error) {
	expr := fmt.Sprintf(`!!document.body && document.body.textContent.includes(%s)`, jsString(text))
	return p.EvaluateBool(ctx, expr)
}

// ClickSelector clicks the first element matching selector from script
func (p *Page) ClickSelector(ctx context.Context, selector string) error {
	expr := fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) throw new Error('element not found: ' + %s);
  el.click();
  return true;
})()`, jsString(selector), jsString(selector))
	_, err := p.Evaluate(ctx, expr)
	return err
}

// FocusSelector focuses the first element matching selector
func (p *Page) FocusSelector(ctx context.Context, selector string) error {
	expr := fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) throw new Error('element not found: ' + %s);
  el.focus();
  return true;
})()`, jsString(selector), jsString(selector))
	_, err := p.Evaluate(ctx, expr)
	return err
}

// ScrollBy scrolls the window by (x, y) pixels
func (p *Page) ScrollBy(ctx context.Context, x, y int) error {
	_, err := p.Evaluate(ctx, fmt.Sprintf("window.scrollBy(%d, %d)", x, y))
	return err
}

// ScrollIntoView centers the first element matching selector
func (p *Page) ScrollIntoView(ctx context.Context, selector string) error {
	expr := fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) throw new Error('element not found: ' + %s);
  el.scrollIntoView({behavior: 'instant', block: 'center'});
  return true;
})()`, jsString(selector), jsString(selector))
	_, err := p.Evaluate(ctx, expr)
	return err
}

// SelectOption sets the value of a <select> and fires its change event
func (p *Page) SelectOption(ctx context.Context, selector, value string) error {
	expr := fmt.Sprintf(`(() => {
  const select = document.querySelector(%s);
  if (!select) throw new Error('Select element not found');
  select.value = %s;
  select.dispatchEvent(new Event('input', {bubbles: true}));
  select.dispatchEvent(new Event('change', {bubbles: true}));
  return select.value;
})()`, jsString(selector), jsString(value))
	_, err := p.Evaluate(ctx, expr)
	return err
}
