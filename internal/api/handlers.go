package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dhruvsoni1802/browser-bridge/internal/session"
	"github.com/dhruvsoni1802/browser-bridge/internal/tools"
)

// maxBodySize bounds a tool call's argument object
const maxBodySize = 10 << 20

// Handlers contains HTTP handlers for the API
type Handlers struct {
	registry *tools.Registry
	sessions *session.Manager
}

// NewHandlers creates a new Handlers instance
func NewHandlers(registry *tools.Registry, sessions *session.Manager) *Handlers {
	return &Handlers{
		registry: registry,
		sessions: sessions,
	}
}

// statusForKind maps an error kind to an HTTP status
func statusForKind(kind string) int {
	switch kind {
	case tools.KindInvalidArgument:
		return http.StatusBadRequest
	case tools.KindNotFound:
		return http.StatusNotFound
	case tools.KindTimeout:
		return http.StatusGatewayTimeout
	case tools.KindJavaScript:
		return http.StatusUnprocessableEntity
	case tools.KindConnection, tools.KindActivation, tools.KindProtocol, tools.KindMalformedFrame:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeKindError(w http.ResponseWriter, err error) {
	kind := tools.Kind(err)
	writeError(w, statusForKind(kind), kind, err.Error())
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if s, ok := h.sessions.Active(); ok {
		info := s.Info()
		resp.Connected = s.Ready()
		resp.Session = &info
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListTools handles GET /tools
func (h *Handlers) ListTools(w http.ResponseWriter, r *http.Request) {
	defs := h.registry.Definitions()
	writeJSON(w, http.StatusOK, ListToolsResponse{Tools: defs, Count: len(defs)})
}

// CallTool handles POST /tools/{name}. The body is the tool's argument
// object and may be empty.
func (h *Handlers) CallTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, tools.KindInvalidArgument, "request body too large")
		return
	}
	if len(body) > 0 && !json.Valid(body) {
		writeError(w, http.StatusBadRequest, tools.KindInvalidArgument, "request body is not valid JSON")
		return
	}

	res, err := h.registry.Call(r.Context(), name, body)
	if err != nil {
		kind := tools.Kind(err)
		writeJSON(w, statusForKind(kind), ErrorResponse{Error: ErrorDetail{
			Kind:    kind,
			Message: err.Error(),
			Tool:    name,
		}})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListTargets handles GET /targets
func (h *Handlers) ListTargets(w http.ResponseWriter, r *http.Request) {
	tabs, err := h.sessions.ListTabs(r.Context())
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListTargetsResponse{Targets: tabs, Count: len(tabs)})
}

// GetSession handles GET /session
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessions.Active()
	if !ok {
		writeError(w, http.StatusNotFound, tools.KindNotFound, session.ErrNotConnected.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.Info())
}

// DisconnectSession handles DELETE /session
func (h *Handlers) DisconnectSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Disconnect(r.Context()); err != nil {
		if errors.Is(err, session.ErrNotConnected) {
			writeError(w, http.StatusNotFound, tools.KindNotFound, err.Error())
			return
		}
		writeKindError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
