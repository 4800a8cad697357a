package page

import (
	"context"
	"time"
)

const (
	clickHoldDelay = 50 * time.Millisecond
	keystrokeDelay = 10 * time.Millisecond
)

// MouseEvent is the Input.dispatchMouseEvent parameter set
type MouseEvent struct {
	Type       string  `json:"type"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Button     string  `json:"button,omitempty"`
	ClickCount int     `json:"clickCount,omitempty"`
}

// DispatchMouseEvent sends one synthetic mouse event
func (p *Page) DispatchMouseEvent(ctx context.Context, ev MouseEvent) error {
	return p.call(ctx, "Input.dispatchMouseEvent", ev, nil)
}

// ClickAt presses and releases the left button at (x, y)
func (p *Page) ClickAt(ctx context.Context, x, y float64) error {
	press := MouseEvent{Type: "mousePressed", X: x, Y: y, Button: "left", ClickCount: 1}
	if err := p.DispatchMouseEvent(ctx, press); err != nil {
		return err
	}

	if err := sleep(ctx, clickHoldDelay); err != nil {
		return err
	}

	release := press
	release.Type = "mouseReleased"
	return p.DispatchMouseEvent(ctx, release)
}

// MoveMouse moves the pointer to (x, y)
func (p *Page) MoveMouse(ctx context.Context, x, y float64) error {
	return p.DispatchMouseEvent(ctx, MouseEvent{Type: "mouseMoved", X: x, Y: y})
}

// TypeText sends one char key event per rune to the focused element
func (p *Page) TypeText(ctx context.Context, text string) error {
	first := true
	for _, r := range text {
		if !first {
			if err := sleep(ctx, keystrokeDelay); err != nil {
				return err
			}
		}
		first = false

		params := map[string]string{"type": "char", "text": string(r)}
		if err := p.call(ctx, "Input.dispatchKeyEvent", params, nil); err != nil {
			return err
		}
	}
	return nil
}

// InsertText inserts text in one step, like an IME commit
func (p *Page) InsertText(ctx context.Context, text string) error {
	return p.call(ctx, "Input.insertText", map[string]string{"text": text}, nil)
}
