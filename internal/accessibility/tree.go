// Package accessibility turns the raw Accessibility.getFullAXTree reply
// into an immutable parent-to-child tree and searches it.
package accessibility

import (
	"encoding/json"
	"fmt"
	"strings"
)

// clickableRoles are treated as interactive regardless of properties
var clickableRoles = map[string]bool{
	"button":   true,
	"link":     true,
	"menuitem": true,
	"tab":      true,
	"checkbox": true,
	"radio":    true,
}

// Bounds is a viewport-relative rectangle in CSS pixels
type Bounds struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the geometric center of the rectangle
func (b Bounds) Center() (float64, float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Empty reports whether the rectangle has no area
func (b Bounds) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Node represents a node in the accessibility tree
type Node struct {
	NodeID        string  `json:"node_id"`
	BackendNodeID int64   `json:"backend_node_id,omitempty"`
	Role          string  `json:"role"`
	Name          string  `json:"name,omitempty"`
	Description   string  `json:"description,omitempty"`
	Value         string  `json:"value,omitempty"`
	Level         int     `json:"level,omitempty"`
	Bounds        *Bounds `json:"bounds,omitempty"`
	Focusable     bool    `json:"focusable,omitempty"`
	Focused       bool    `json:"focused,omitempty"`
	Clickable     bool    `json:"clickable,omitempty"`
	Children      []*Node `json:"children"`
}

// Tree is one snapshot of a page's accessibility tree. It is never
// patched; a new snapshot replaces it.
type Tree struct {
	Roots []*Node `json:"nodes"`
	size  int
}

// rawNode is a node as sent by Accessibility.getFullAXTree
type rawNode struct {
	NodeID           string    `json:"nodeId"`
	Ignored          bool      `json:"ignored"`
	Role             *rawValue `json:"role,omitempty"`
	Name             *rawValue `json:"name,omitempty"`
	Description      *rawValue `json:"description,omitempty"`
	Value            *rawValue `json:"value,omitempty"`
	Properties       []rawProp `json:"properties,omitempty"`
	ChildIDs         []string  `json:"childIds,omitempty"`
	BackendDOMNodeID int64     `json:"backendDOMNodeId,omitempty"`
	BoundingRect     *Bounds   `json:"boundingRect,omitempty"`
}

type rawValue struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

type rawProp struct {
	Name  string   `json:"name"`
	Value rawValue `json:"value"`
}

// Build parses a getFullAXTree result ({"nodes": [...]}). Ignored nodes
// are dropped and their children take their place.
func Build(raw json.RawMessage) (*Tree, error) {
	var response struct {
		Nodes []rawNode `json:"nodes"`
	}
	if err := json.Unmarshal(raw, &response); err != nil {
		return nil, fmt.Errorf("failed to parse accessibility tree response: %w", err)
	}

	return buildNodes(response.Nodes), nil
}

func buildNodes(nodes []rawNode) *Tree {
	// Build a lookup map for parent-child relationships
	nodeMap := make(map[string]*rawNode, len(nodes))
	childSet := make(map[string]bool)
	for i := range nodes {
		nodeMap[nodes[i].NodeID] = &nodes[i]
		for _, childID := range nodes[i].ChildIDs {
			childSet[childID] = true
		}
	}

	b := &builder{nodeMap: nodeMap, visited: make(map[string]bool, len(nodes))}

	// Roots are nodes that are nobody's child
	tree := &Tree{}
	for i := range nodes {
		if childSet[nodes[i].NodeID] {
			continue
		}
		tree.Roots = append(tree.Roots, b.build(&nodes[i])...)
	}

	tree.size = b.count
	return tree
}

type builder struct {
	nodeMap map[string]*rawNode
	visited map[string]bool
	count   int
}

// build converts one raw node. An ignored node yields its converted
// children instead of itself. Each raw node is used at most once, which
// also guards against malformed cyclic input.
func (b *builder) build(raw *rawNode) []*Node {
	if b.visited[raw.NodeID] {
		return nil
	}
	b.visited[raw.NodeID] = true

	var children []*Node
	for _, childID := range raw.ChildIDs {
		child, ok := b.nodeMap[childID]
		if !ok {
			continue
		}
		children = append(children, b.build(child)...)
	}

	if raw.Ignored {
		return children
	}

	node := convert(raw)
	if children == nil {
		children = make([]*Node, 0)
	}
	node.Children = children
	b.count++
	return []*Node{node}
}

func convert(raw *rawNode) *Node {
	node := &Node{
		NodeID:        raw.NodeID,
		BackendNodeID: raw.BackendDOMNodeID,
		Role:          stringValue(raw.Role),
		Name:          stringValue(raw.Name),
		Description:   stringValue(raw.Description),
		Value:         stringValue(raw.Value),
		Bounds:        raw.BoundingRect,
	}

	clickable := false
	for _, prop := range raw.Properties {
		switch prop.Name {
		case "level":
			if v, ok := prop.Value.Value.(float64); ok {
				node.Level = int(v)
			}
		case "focusable":
			node.Focusable = boolValue(prop.Value)
		case "focused":
			node.Focused = boolValue(prop.Value)
		case "clickable":
			clickable = boolValue(prop.Value)
		}
	}

	node.Clickable = clickableRoles[node.Role] || clickable
	return node
}

// stringValue extracts a string from an AX value
func stringValue(v *rawValue) string {
	if v == nil || v.Value == nil {
		return ""
	}
	if s, ok := v.Value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v.Value)
}

func boolValue(v rawValue) bool {
	b, _ := v.Value.(bool)
	return b
}

// Len returns the number of nodes in the tree
func (t *Tree) Len() int {
	return t.size
}

// Walk visits every node in pre-order (document order). Returning false
// from fn stops the walk.
func (t *Tree) Walk(fn func(n *Node, depth int) bool) {
	for _, root := range t.Roots {
		if !walk(root, 0, fn) {
			return
		}
	}
}

func walk(n *Node, depth int, fn func(*Node, int) bool) bool {
	if !fn(n, depth) {
		return false
	}
	for _, child := range n.Children {
		if !walk(child, depth+1, fn) {
			return false
		}
	}
	return true
}

// collect returns every node matching pred, in document order
func (t *Tree) collect(pred func(*Node) bool) []*Node {
	var out []*Node
	t.Walk(func(n *Node, _ int) bool {
		if pred(n) {
			out = append(out, n)
		}
		return true
	})
	return out
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// FindByRole returns nodes whose role contains role, case-insensitively
func (t *Tree) FindByRole(role string) []*Node {
	return t.collect(func(n *Node) bool {
		return n.Role != "" && containsFold(n.Role, role)
	})
}

// FindByName returns nodes whose name contains name, case-insensitively
func (t *Tree) FindByName(name string) []*Node {
	return t.collect(func(n *Node) bool {
		return n.Name != "" && containsFold(n.Name, name)
	})
}

// FindByDescription returns nodes whose description contains desc
func (t *Tree) FindByDescription(desc string) []*Node {
	return t.collect(func(n *Node) bool {
		return n.Description != "" && containsFold(n.Description, desc)
	})
}

// FindInteractiveByText returns clickable nodes whose name, description
// or value contains text, case-insensitively
func (t *Tree) FindInteractiveByText(text string) []*Node {
	return t.collect(func(n *Node) bool {
		if !n.Clickable {
			return false
		}
		return (n.Name != "" && containsFold(n.Name, text)) ||
			(n.Description != "" && containsFold(n.Description, text)) ||
			(n.Value != "" && containsFold(n.Value, text))
	})
}

// Summary renders one line per node, indented by depth
func (t *Tree) Summary() string {
	var sb strings.Builder
	t.Walk(func(n *Node, depth int) bool {
		sb.WriteString(strings.Repeat("  ", depth))

		role := n.Role
		if role == "" {
			role = "unknown"
		}
		name := n.Name
		if name == "" {
			name = "(no name)"
		}
		fmt.Fprintf(&sb, "%s: %s", role, name)

		if n.Bounds != nil {
			fmt.Fprintf(&sb, " @(%.0f,%.0f)", n.Bounds.X, n.Bounds.Y)
		}
		if n.Clickable {
			sb.WriteString(" [CLICKABLE]")
		}
		sb.WriteByte('\n')
		return true
	})
	return sb.String()
}
