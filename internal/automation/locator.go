// Package automation resolves user-supplied targets to elements, waits on
// page conditions and composes click, hover and type actions from them.
package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dhruvsoni1802/browser-bridge/internal/accessibility"
	"github.com/dhruvsoni1802/browser-bridge/internal/cdp"
)

// ResolutionKind says how an element was found
type ResolutionKind string

const (
	ResolvedBySelector      ResolutionKind = "selector"
	ResolvedByAccessibility ResolutionKind = "accessibility"
)

// Strategy names, in the order they are tried
const (
	StrategySelector = "selector"
	StrategyText     = "text"
	StrategyRole     = "role"
)

// ElementReference is a normalized handle to a located element
type ElementReference struct {
	ID              string                `json:"id"`
	Kind            ResolutionKind        `json:"kind"`
	Strategy        string                `json:"strategy"`
	Selector        string                `json:"selector,omitempty"`
	NodeID          int64                 `json:"node_id,omitempty"`
	AccessibilityID string                `json:"accessibility_id,omitempty"`
	BackendNodeID   int64                 `json:"backend_node_id,omitempty"`
	Bounds          *accessibility.Bounds `json:"bounds,omitempty"`
	Text            string                `json:"text,omitempty"`
	Role            string                `json:"role,omitempty"`
}

// Center returns the click point, if the reference has usable bounds
func (r ElementReference) Center() (x, y float64, ok bool) {
	if r.Bounds == nil || r.Bounds.Empty() {
		return 0, 0, false
	}
	x, y = r.Bounds.Center()
	return x, y, true
}

// NotFoundError means every strategy came back empty
type NotFoundError struct {
	Target string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("element not found: %s", e.Target)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// Finder is what the locator needs from the page
type Finder interface {
	QuerySelectorAll(ctx context.Context, selector string) ([]int64, error)
	BoxModel(ctx context.Context, nodeID int64) (accessibility.Bounds, error)
	BackendBoxModel(ctx context.Context, backendNodeID int64) (accessibility.Bounds, error)
	AccessibilityTree(ctx context.Context) (*accessibility.Tree, error)
}

// Locator resolves targets using, in order: CSS selector, accessible text
// of interactive nodes, accessible role. The accessibility snapshot is
// fetched on first need and kept until Invalidate.
type Locator struct {
	finder Finder
	logger *slog.Logger

	mu       sync.Mutex
	snapshot *accessibility.Tree
}

// NewLocator creates a locator over finder
func NewLocator(finder Finder, logger *slog.Logger) *Locator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{finder: finder, logger: logger}
}

type strategyFunc func(ctx context.Context, target string) (*ElementReference, error)

func (l *Locator) strategies() []strategyFunc {
	return []strategyFunc{l.bySelector, l.byText, l.byRole}
}

// Resolve returns the first match of the first strategy that matches.
// Within a strategy the first match in document order wins.
func (l *Locator) Resolve(ctx context.Context, target string) (ElementReference, error) {
	if strings.TrimSpace(target) == "" {
		return ElementReference{}, errors.New("empty element target")
	}

	for _, strategy := range l.strategies() {
		ref, err := strategy(ctx, target)
		if err != nil {
			return ElementReference{}, err
		}
		if ref != nil {
			l.logger.Debug("element resolved", "target", target, "strategy", ref.Strategy, "id", ref.ID)
			return *ref, nil
		}
	}

	return ElementReference{}, &NotFoundError{Target: target}
}

// FindAll returns the first match of every strategy that matches
func (l *Locator) FindAll(ctx context.Context, target string) ([]ElementReference, error) {
	if strings.TrimSpace(target) == "" {
		return nil, errors.New("empty element target")
	}

	var refs []ElementReference
	for _, strategy := range l.strategies() {
		ref, err := strategy(ctx, target)
		if err != nil {
			return nil, err
		}
		if ref != nil {
			refs = append(refs, *ref)
		}
	}

	if len(refs) == 0 {
		return nil, &NotFoundError{Target: target}
	}
	return refs, nil
}

// Invalidate drops the cached accessibility snapshot
func (l *Locator) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snapshot = nil
}

// Snapshot returns the cached accessibility tree, fetching it if needed
func (l *Locator) Snapshot(ctx context.Context) (*accessibility.Tree, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.snapshot != nil {
		return l.snapshot, nil
	}

	tree, err := l.finder.AccessibilityTree(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch accessibility snapshot: %w", err)
	}
	l.snapshot = tree
	return tree, nil
}

// bySelector queries the live document. An invalid selector is reported
// by the browser as a protocol error and counts as no match.
func (l *Locator) bySelector(ctx context.Context, target string) (*ElementReference, error) {
	nodeIDs, err := l.finder.QuerySelectorAll(ctx, target)
	if err != nil {
		if cdp.IsProtocolError(err) {
			l.logger.Debug("target is not a usable selector", "target", target, "error", err)
			return nil, nil
		}
		return nil, err
	}
	if len(nodeIDs) == 0 {
		return nil, nil
	}

	ref := &ElementReference{
		ID:       fmt.Sprintf("dom-%d", nodeIDs[0]),
		Kind:     ResolvedBySelector,
		Strategy: StrategySelector,
		Selector: target,
		NodeID:   nodeIDs[0],
	}

	bounds, err := l.finder.BoxModel(ctx, nodeIDs[0])
	if err := l.attachBounds(ref, bounds, err); err != nil {
		return nil, err
	}
	return ref, nil
}

func (l *Locator) byText(ctx context.Context, target string) (*ElementReference, error) {
	tree, err := l.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return l.fromNodes(ctx, tree.FindInteractiveByText(target), StrategyText)
}

func (l *Locator) byRole(ctx context.Context, target string) (*ElementReference, error) {
	tree, err := l.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return l.fromNodes(ctx, tree.FindByRole(target), StrategyRole)
}

func (l *Locator) fromNodes(ctx context.Context, nodes []*accessibility.Node, strategy string) (*ElementReference, error) {
	if len(nodes) == 0 {
		return nil, nil
	}
	node := nodes[0]

	ref := &ElementReference{
		ID:              "ax-" + node.NodeID,
		Kind:            ResolvedByAccessibility,
		Strategy:        strategy,
		AccessibilityID: node.NodeID,
		BackendNodeID:   node.BackendNodeID,
		Text:            node.Name,
		Role:            node.Role,
	}

	if node.Bounds != nil {
		b := *node.Bounds
		ref.Bounds = &b
		return ref, nil
	}

	if node.BackendNodeID != 0 {
		bounds, err := l.finder.BackendBoxModel(ctx, node.BackendNodeID)
		if err := l.attachBounds(ref, bounds, err); err != nil {
			return nil, err
		}
	}
	return ref, nil
}

// attachBounds records a box model lookup on ref. Elements without layout
// have no box and stay without bounds; only a dead connection is an error.
func (l *Locator) attachBounds(ref *ElementReference, bounds accessibility.Bounds, err error) error {
	switch {
	case err == nil:
		ref.Bounds = &bounds
		return nil
	case cdp.IsConnectionError(err):
		return err
	default:
		l.logger.Debug("no box model for element", "id", ref.ID, "error", err)
		return nil
	}
}
