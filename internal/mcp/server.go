// Package mcp serves the tool table as newline-delimited JSON-RPC 2.0,
// the Model Context Protocol stdio transport.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/dhruvsoni1802/browser-bridge/internal/session"
	"github.com/dhruvsoni1802/browser-bridge/internal/tools"
)

// maxLineSize bounds one inbound message
const maxLineSize = 16 << 20

// Options configures a Server
type Options struct {
	Name    string
	Version string
	Logger  *slog.Logger
}

// Server answers MCP requests read from a line-oriented stream
type Server struct {
	registry *tools.Registry
	sessions *session.Manager
	opts     Options
	logger   *slog.Logger

	writeMu sync.Mutex
}

// NewServer creates a server over the registry. sessions is used to
// connect eagerly on initialize and may be nil.
func NewServer(registry *tools.Registry, sessions *session.Manager, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Name == "" {
		opts.Name = "browser-bridge"
	}
	return &Server{
		registry: registry,
		sessions: sessions,
		opts:     opts,
		logger:   opts.Logger,
	}
}

// Serve handles one request per line of r, writing responses to w, until
// r reaches EOF or ctx is canceled. Requests are handled in order.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	lines := make(chan []byte)
	readErr := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	s.logger.Info("mcp server listening on stdio")

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("failed to read request: %w", err)
			}
			s.logger.Info("mcp input closed")
			return nil
		case line := <-lines:
			resp := s.HandleMessage(ctx, line)
			if resp == nil {
				continue
			}
			if err := s.write(enc, resp); err != nil {
				return fmt.Errorf("failed to write response: %w", err)
			}
		}
	}
}

func (s *Server) write(enc *json.Encoder, resp *Response) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return enc.Encode(resp)
}

// HandleMessage processes one raw message. It returns nil when nothing
// should be written back.
func (s *Server) HandleMessage(ctx context.Context, data []byte) *Response {
	if len(data) == 0 {
		return nil
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		s.logger.Warn("unparseable request", "error", err)
		return errorResponse(nullID, CodeParseError, "Parse error", nil)
	}
	if req.IsNotification() {
		s.logger.Debug("notification", "method", req.Method)
		return nil
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		return errorResponse(req.ID, CodeInvalidRequest, "Invalid request", nil)
	}

	s.logger.Debug("request", "method", req.Method, "id", string(req.ID))

	switch req.Method {
	case "initialize":
		return s.initialize(ctx, &req)
	case "tools/list":
		return result(req.ID, map[string]any{"tools": s.registry.Definitions()})
	case "tools/call":
		return s.callTool(ctx, &req)
	case "ping":
		return result(req.ID, struct{}{})
	}
	return errorResponse(req.ID, CodeMethodNotFound, "Method not found: "+req.Method, nil)
}

func (s *Server) initialize(ctx context.Context, req *Request) *Response {
	if s.sessions != nil {
		if _, err := s.sessions.Connect(ctx, ""); err != nil {
			// tools connect lazily, so a browser that starts later still works
			s.logger.Warn("browser not reachable at initialize", "error", err)
		}
	}

	return result(req.ID, initializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{"tools": map[string]any{}},
		ServerInfo:      serverInfo{Name: s.opts.Name, Version: s.opts.Version},
	})
}

func (s *Server) callTool(ctx context.Context, req *Request) *Response {
	var params callParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return errorResponse(req.ID, CodeInvalidParams, "Invalid params: tool name is required", nil)
	}

	res, err := s.registry.Call(ctx, params.Name, params.Arguments)
	if err != nil {
		return errorResponse(req.ID, CodeInternalError, "Tool execution failed: "+err.Error(), ToolErrorData{
			Tool: params.Name,
			Kind: tools.Kind(err),
		})
	}
	return result(req.ID, res)
}

func result(id json.RawMessage, v any) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Result: v}
}

func errorResponse(id json.RawMessage, code int, message string, data any) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Error: &Error{Code: code, Message: message, Data: data}}
}
