package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dhruvsoni1802/browser-bridge/internal/session"
)

// DefaultWaitTimeout applies to chrome_wait when no timeout is given
const DefaultWaitTimeout = 10 * time.Second

// Definition describes a tool to clients
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// Resource is binary output attached to a result
type Resource struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	Blob     string `json:"blob"`
}

// Content is one block of tool output
type Content struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	Data     string    `json:"data,omitempty"`
	MimeType string    `json:"mimeType,omitempty"`
	Resource *Resource `json:"resource,omitempty"`
}

// Result is what a successful tool call returns
type Result struct {
	Content []Content `json:"content"`
}

// TextResult is a single text block
func TextResult(format string, args ...any) Result {
	return Result{Content: []Content{{Type: "text", Text: fmt.Sprintf(format, args...)}}}
}

// JSONResult renders v as indented JSON text
func JSONResult(v any) (Result, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal result: %w", err)
	}
	return Result{Content: []Content{{Type: "text", Text: string(data)}}}, nil
}

// Observer receives one observation per tool call
type Observer interface {
	ObserveTool(tool, kind string, d time.Duration)
}

// Options configures a Registry
type Options struct {
	WaitTimeout time.Duration
	Observer    Observer
	Logger      *slog.Logger
}

type handler func(ctx context.Context, args Args) (Result, error)

type tool struct {
	def Definition
	run handler
}

// Registry is the table of tools served by every surface
type Registry struct {
	sessions *session.Manager
	opts     Options
	logger   *slog.Logger
	tools    map[string]tool
}

// NewRegistry builds the chrome_* tool table over sessions
func NewRegistry(sessions *session.Manager, opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = DefaultWaitTimeout
	}

	r := &Registry{
		sessions: sessions,
		opts:     opts,
		logger:   opts.Logger,
		tools:    make(map[string]tool),
	}
	r.registerBrowserTools()
	r.registerTabTools()
	return r
}

func (r *Registry) register(def Definition, run handler) {
	if _, exists := r.tools[def.Name]; exists {
		panic("tools: duplicate tool " + def.Name)
	}
	r.tools[def.Name] = tool{def: def, run: run}
}

// Definitions lists every tool sorted by name
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Lookup returns the definition of name
func (r *Registry) Lookup(name string) (Definition, bool) {
	t, ok := r.tools[name]
	return t.def, ok
}

// Call runs the named tool with raw JSON arguments
func (r *Registry) Call(ctx context.Context, name string, raw json.RawMessage) (Result, error) {
	start := time.Now()

	result, err := r.call(ctx, name, raw)

	kind := Kind(err)
	elapsed := time.Since(start)
	if r.opts.Observer != nil {
		r.opts.Observer.ObserveTool(name, kind, elapsed)
	}

	if err != nil {
		r.logger.Warn("tool call failed", "tool", name, "kind", kind, "duration", elapsed, "error", err)
		return Result{}, err
	}
	r.logger.Debug("tool call", "tool", name, "duration", elapsed)
	return result, nil
}

func (r *Registry) call(ctx context.Context, name string, raw json.RawMessage) (Result, error) {
	t, ok := r.tools[name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	args, err := ParseArgs(raw)
	if err == nil {
		var result Result
		result, err = t.run(ctx, args)
		if err == nil {
			return result, nil
		}
	}

	var argErr *ArgumentError
	if errors.As(err, &argErr) && argErr.Tool == "" {
		argErr.Tool = name
	}
	return Result{}, err
}

// session returns the active session, connecting if needed
func (r *Registry) session(ctx context.Context) (*session.Session, error) {
	return r.sessions.Session(ctx)
}

// schema builds an object JSON schema
func schema(required []string, props map[string]any) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

func enumProp(description string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": description, "enum": values}
}
