package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/dhruvsoni1802/browser-bridge/internal/accessibility"
	"github.com/dhruvsoni1802/browser-bridge/internal/cdp"
)

const sampleAXTree = `{"nodes": [
	{"nodeId": "1", "role": {"type": "role", "value": "RootWebArea"}, "name": {"type": "computedString", "value": "Shop"}, "childIds": ["2", "3", "4"]},
	{"nodeId": "2", "role": {"type": "role", "value": "button"}, "name": {"type": "computedString", "value": "Add to cart"}, "backendDOMNodeId": 20},
	{"nodeId": "3", "role": {"type": "role", "value": "link"}, "name": {"type": "computedString", "value": "Checkout"},
	 "boundingRect": {"x": 10, "y": 10, "width": 100, "height": 20}},
	{"nodeId": "4", "role": {"type": "role", "value": "searchbox"}, "name": {"type": "computedString", "value": "Search"}}
]}`

// fakeFinder is an in-memory page for locator tests
type fakeFinder struct {
	selectors map[string][]int64
	invalid   map[string]bool
	boxes     map[int64]accessibility.Bounds
	backend   map[int64]accessibility.Bounds
	tree      string
	treeErr   error
	queryErr  error

	treeCalls int
}

func newFakeFinder() *fakeFinder {
	return &fakeFinder{
		selectors: map[string][]int64{},
		invalid:   map[string]bool{},
		boxes:     map[int64]accessibility.Bounds{},
		backend:   map[int64]accessibility.Bounds{},
		tree:      sampleAXTree,
	}
}

func (f *fakeFinder) QuerySelectorAll(ctx context.Context, selector string) ([]int64, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.invalid[selector] {
		return nil, &cdp.ProtocolError{Method: "DOM.querySelectorAll", Code: -32000, Message: "DOM Error while querying"}
	}
	return f.selectors[selector], nil
}

func (f *fakeFinder) BoxModel(ctx context.Context, nodeID int64) (accessibility.Bounds, error) {
	b, ok := f.boxes[nodeID]
	if !ok {
		return accessibility.Bounds{}, &cdp.ProtocolError{Method: "DOM.getBoxModel", Code: -32000, Message: "Could not compute box model."}
	}
	return b, nil
}

func (f *fakeFinder) BackendBoxModel(ctx context.Context, backendNodeID int64) (accessibility.Bounds, error) {
	b, ok := f.backend[backendNodeID]
	if !ok {
		return accessibility.Bounds{}, fmt.Errorf("no box for backend node %d", backendNodeID)
	}
	return b, nil
}

func (f *fakeFinder) AccessibilityTree(ctx context.Context) (*accessibility.Tree, error) {
	f.treeCalls++
	if f.treeErr != nil {
		return nil, f.treeErr
	}
	return accessibility.Build([]byte(f.tree))
}

// TestResolveSelectorFirst tests that a selector match wins over
// accessibility matches for the same target
func TestResolveSelectorFirst(t *testing.T) {
	f := newFakeFinder()
	f.selectors["button"] = []int64{7, 8}
	f.boxes[7] = accessibility.Bounds{X: 0, Y: 0, Width: 40, Height: 20}

	l := NewLocator(f, nil)
	ref, err := l.Resolve(context.Background(), "button")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if ref.Strategy != StrategySelector || ref.Kind != ResolvedBySelector {
		t.Errorf("expected selector strategy, got %s/%s", ref.Strategy, ref.Kind)
	}
	if ref.NodeID != 7 || ref.ID != "dom-7" {
		t.Errorf("expected first match in document order, got %+v", ref)
	}
	x, y, ok := ref.Center()
	if !ok || x != 20 || y != 10 {
		t.Errorf("expected center (20,10), got (%v,%v) ok=%v", x, y, ok)
	}
	if f.treeCalls != 0 {
		t.Errorf("expected no snapshot fetch when the selector matched, got %d", f.treeCalls)
	}
}

// TestResolveFallsThroughInvalidSelector tests that a target that is not a
// valid selector is tried as text
func TestResolveFallsThroughInvalidSelector(t *testing.T) {
	f := newFakeFinder()
	f.invalid["Add to cart"] = true
	f.backend[20] = accessibility.Bounds{X: 100, Y: 200, Width: 50, Height: 30}

	l := NewLocator(f, nil)
	ref, err := l.Resolve(context.Background(), "Add to cart")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if ref.Strategy != StrategyText || ref.Kind != ResolvedByAccessibility {
		t.Errorf("expected text strategy, got %s/%s", ref.Strategy, ref.Kind)
	}
	if ref.ID != "ax-2" || ref.Role != "button" || ref.Text != "Add to cart" {
		t.Errorf("unexpected reference %+v", ref)
	}
	x, y, ok := ref.Center()
	if !ok || x != 125 || y != 215 {
		t.Errorf("expected center from backend box model, got (%v,%v) ok=%v", x, y, ok)
	}
}

// TestResolveTextUsesSnapshotBounds tests that bounds reported in the
// snapshot are used directly
func TestResolveTextUsesSnapshotBounds(t *testing.T) {
	f := newFakeFinder()

	l := NewLocator(f, nil)
	ref, err := l.Resolve(context.Background(), "checkout")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if ref.ID != "ax-3" {
		t.Fatalf("expected the checkout link, got %+v", ref)
	}
	if x, y, ok := ref.Center(); !ok || x != 60 || y != 20 {
		t.Errorf("expected center (60,20), got (%v,%v) ok=%v", x, y, ok)
	}
}

// TestResolveByRole tests the last strategy. The searchbox is not
// interactive by text, so only the role strategy finds it.
func TestResolveByRole(t *testing.T) {
	f := newFakeFinder()

	l := NewLocator(f, nil)
	ref, err := l.Resolve(context.Background(), "searchbox")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if ref.Strategy != StrategyRole || ref.ID != "ax-4" {
		t.Errorf("expected role match on node 4, got %+v", ref)
	}
	if _, _, ok := ref.Center(); ok {
		t.Error("expected no bounds for a node without layout")
	}
}

// TestResolveNotFound tests that the error names the target
func TestResolveNotFound(t *testing.T) {
	l := NewLocator(newFakeFinder(), nil)

	_, err := l.Resolve(context.Background(), "#does-not-exist")
	if !IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if !strings.Contains(err.Error(), "#does-not-exist") {
		t.Errorf("expected error to name the target, got %q", err.Error())
	}

	if _, err := l.Resolve(context.Background(), "  "); err == nil || IsNotFound(err) {
		t.Errorf("expected plain error for empty target, got %v", err)
	}
}

// TestResolveConnectionErrorPropagates tests that a dead connection is not
// mistaken for "no match"
func TestResolveConnectionErrorPropagates(t *testing.T) {
	f := newFakeFinder()
	f.queryErr = &cdp.ConnectionError{Op: "read", Err: cdp.ErrConnectionClosed}

	l := NewLocator(f, nil)
	_, err := l.Resolve(context.Background(), "button")
	if !cdp.IsConnectionError(err) {
		t.Fatalf("expected connection error, got %v", err)
	}
}

// TestSnapshotCachedUntilInvalidate tests snapshot reuse across lookups
func TestSnapshotCachedUntilInvalidate(t *testing.T) {
	f := newFakeFinder()
	l := NewLocator(f, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := l.Resolve(ctx, "Checkout"); err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
	}
	if f.treeCalls != 1 {
		t.Errorf("expected one snapshot fetch, got %d", f.treeCalls)
	}

	l.Invalidate()
	if _, err := l.Resolve(ctx, "Checkout"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if f.treeCalls != 2 {
		t.Errorf("expected a refetch after Invalidate, got %d fetches", f.treeCalls)
	}
}

// TestSnapshotErrorNotCached tests that a failed fetch is retried
func TestSnapshotErrorNotCached(t *testing.T) {
	f := newFakeFinder()
	f.treeErr = errors.New("boom")
	l := NewLocator(f, nil)

	if _, err := l.Snapshot(context.Background()); err == nil {
		t.Fatal("expected snapshot error")
	}

	f.treeErr = nil
	tree, err := l.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if tree.Len() != 4 {
		t.Errorf("expected 4 nodes, got %d", tree.Len())
	}
}

// TestFindAll tests that every matching strategy contributes one reference
func TestFindAll(t *testing.T) {
	f := newFakeFinder()
	f.selectors["link"] = []int64{3}
	f.boxes[3] = accessibility.Bounds{Width: 10, Height: 10}

	l := NewLocator(f, nil)
	refs, err := l.FindAll(context.Background(), "link")
	if err != nil {
		t.Fatalf("FindAll failed: %v", err)
	}

	// "link" matches the <link> selector and the link role, but no
	// interactive node's text
	if len(refs) != 2 {
		t.Fatalf("expected 2 references, got %d: %+v", len(refs), refs)
	}
	if refs[0].Strategy != StrategySelector || refs[1].Strategy != StrategyRole {
		t.Errorf("unexpected strategy order: %s, %s", refs[0].Strategy, refs[1].Strategy)
	}

	if _, err := l.FindAll(context.Background(), "nothing-like-this"); !IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}
