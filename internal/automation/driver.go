package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dhruvsoni1802/browser-bridge/internal/page"
)

// DefaultNavigationTimeout bounds the page-load wait after Navigate
const DefaultNavigationTimeout = 30 * time.Second

// focusSettle is the pause between focusing a target and typing into it
const focusSettle = 100 * time.Millisecond

// DriverOptions configures a Driver
type DriverOptions struct {
	PollInterval      time.Duration
	NavigationTimeout time.Duration
	WaitObserver      WaitObserver
	Logger            *slog.Logger
}

// Driver composes navigation, element actions and waits over one page
type Driver struct {
	page       *page.Page
	locator    *Locator
	waiter     *Waiter
	navTimeout time.Duration
	logger     *slog.Logger
}

// NewDriver creates a driver for p
func NewDriver(p *page.Page, opts DriverOptions) *Driver {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = DefaultNavigationTimeout
	}

	return &Driver{
		page:       p,
		locator:    NewLocator(p, opts.Logger),
		waiter:     NewWaiter(p, opts.PollInterval, opts.WaitObserver, opts.Logger),
		navTimeout: opts.NavigationTimeout,
		logger:     opts.Logger,
	}
}

// Page returns the underlying command façade
func (d *Driver) Page() *page.Page { return d.page }

// Locator returns the driver's element locator
func (d *Driver) Locator() *Locator { return d.locator }

// Invalidate drops cached page state after the document changed
func (d *Driver) Invalidate() { d.locator.Invalidate() }

// Navigate loads url and waits for the page to finish loading. The
// accessibility snapshot is dropped whatever the outcome.
func (d *Driver) Navigate(ctx context.Context, url string) (page.NavigateResult, error) {
	d.logger.Info("navigating", "url", url)
	defer d.locator.Invalidate()

	res, err := d.page.Navigate(ctx, url)
	if err != nil {
		return res, err
	}

	if err := d.waiter.Await(ctx, PageLoad(), d.navTimeout); err != nil {
		return res, fmt.Errorf("waiting for %s to load: %w", url, err)
	}
	return res, nil
}

// Click resolves target and clicks it
func (d *Driver) Click(ctx context.Context, target string) (ElementReference, error) {
	ref, err := d.locator.Resolve(ctx, target)
	if err != nil {
		return ElementReference{}, err
	}
	if err := d.ClickReference(ctx, ref); err != nil {
		return ref, err
	}
	return ref, nil
}

// ClickReference clicks an already resolved element: at the center of its
// bounds when known, otherwise from script through its selector
func (d *Driver) ClickReference(ctx context.Context, ref ElementReference) error {
	if x, y, ok := ref.Center(); ok {
		d.logger.Debug("clicking element", "id", ref.ID, "x", x, "y", y)
		return d.page.ClickAt(ctx, x, y)
	}
	if ref.Selector != "" {
		d.logger.Debug("clicking element from script", "id", ref.ID, "selector", ref.Selector)
		return d.page.ClickSelector(ctx, ref.Selector)
	}
	return fmt.Errorf("cannot click element %s: no bounds or selector", ref.ID)
}

// Hover resolves target and moves the pointer to its center
func (d *Driver) Hover(ctx context.Context, target string) (ElementReference, error) {
	ref, err := d.locator.Resolve(ctx, target)
	if err != nil {
		return ElementReference{}, err
	}

	x, y, ok := ref.Center()
	if !ok {
		return ref, fmt.Errorf("cannot hover element %s: element has no layout box", ref.ID)
	}
	return ref, d.page.MoveMouse(ctx, x, y)
}

// Type types text into the focused element. With a target, the target is
// clicked first to focus it.
func (d *Driver) Type(ctx context.Context, text, target string) error {
	if text == "" {
		return errors.New("nothing to type")
	}

	if target != "" {
		if _, err := d.Click(ctx, target); err != nil {
			return err
		}
		if err := sleepCtx(ctx, focusSettle); err != nil {
			return err
		}
	}

	return d.page.TypeText(ctx, text)
}

// Find returns the first match of each strategy
func (d *Driver) Find(ctx context.Context, target string) ([]ElementReference, error) {
	return d.locator.FindAll(ctx, target)
}

// Wait blocks until cond holds or deadline passes
func (d *Driver) Wait(ctx context.Context, cond Condition, deadline time.Duration) error {
	return d.waiter.Await(ctx, cond, deadline)
}
