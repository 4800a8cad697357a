package page

import (
	"context"
	"fmt"
	"math"

	"github.com/dhruvsoni1802/browser-bridge/internal/accessibility"
)

// QuerySelectorAll returns the DOM node ids matching selector, in
// document order. An invalid selector surfaces as a protocol error.
func (p *Page) QuerySelectorAll(ctx context.Context, selector string) ([]int64, error) {
	var doc struct {
		Root struct {
			NodeID int64 `json:"nodeId"`
		} `json:"root"`
	}
	if err := p.call(ctx, "DOM.getDocument", map[string]int{"depth": 0}, &doc); err != nil {
		return nil, err
	}

	var res struct {
		NodeIDs []int64 `json:"nodeIds"`
	}
	params := map[string]any{"nodeId": doc.Root.NodeID, "selector": selector}
	if err := p.call(ctx, "DOM.querySelectorAll", params, &res); err != nil {
		return nil, err
	}
	return res.NodeIDs, nil
}

type boxModel struct {
	Model struct {
		Content []float64 `json:"content"`
	} `json:"model"`
}

// BoxModel returns the content box of a DOM node
func (p *Page) BoxModel(ctx context.Context, nodeID int64) (accessibility.Bounds, error) {
	return p.boxModel(ctx, map[string]int64{"nodeId": nodeID})
}

// BackendBoxModel returns the content box of a node addressed by its
// backend id, as found in accessibility nodes
func (p *Page) BackendBoxModel(ctx context.Context, backendNodeID int64) (accessibility.Bounds, error) {
	return p.boxModel(ctx, map[string]int64{"backendNodeId": backendNodeID})
}

func (p *Page) boxModel(ctx context.Context, params map[string]int64) (accessibility.Bounds, error) {
	var res boxModel
	if err := p.call(ctx, "DOM.getBoxModel", params, &res); err != nil {
		return accessibility.Bounds{}, err
	}
	return quadBounds(res.Model.Content)
}

// quadBounds converts a quad (x1,y1 .. x4,y4) into its bounding rectangle
func quadBounds(quad []float64) (accessibility.Bounds, error) {
	if len(quad) < 8 {
		return accessibility.Bounds{}, fmt.Errorf("invalid content quad: %d values", len(quad))
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i := 0; i < 8; i += 2 {
		minX = math.Min(minX, quad[i])
		maxX = math.Max(maxX, quad[i])
		minY = math.Min(minY, quad[i+1])
		maxY = math.Max(maxY, quad[i+1])
	}

	return accessibility.Bounds{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}, nil
}

// AccessibilityTree fetches and builds a fresh accessibility snapshot
func (p *Page) AccessibilityTree(ctx context.Context) (*accessibility.Tree, error) {
	raw, err := p.caller.Call(ctx, "Accessibility.getFullAXTree", nil, p.timeout)
	if err != nil {
		return nil, err
	}
	return accessibility.Build(raw)
}

// OuterHTML returns the serialized document
func (p *Page) OuterHTML(ctx context.Context) (string, error) {
	return p.EvaluateString(ctx, "document.documentElement.outerHTML")
}
