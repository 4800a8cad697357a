package api

import (
	"github.com/dhruvsoni1802/browser-bridge/internal/session"
	"github.com/dhruvsoni1802/browser-bridge/internal/tools"
)

// Response Types

// HealthResponse returned by GET /health
type HealthResponse struct {
	Status    string        `json:"status"`
	Connected bool          `json:"connected"`
	Session   *session.Info `json:"session,omitempty"`
}

// ListToolsResponse returned by GET /tools
type ListToolsResponse struct {
	Tools []tools.Definition `json:"tools"`
	Count int                `json:"count"`
}

// ListTargetsResponse returned by GET /targets
type ListTargetsResponse struct {
	Targets []session.Tab `json:"targets"`
	Count   int           `json:"count"`
}

// SuccessResponse for operations that just need success confirmation
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Error Types

// ErrorResponse for all error cases
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the stable error kind and a readable message
type ErrorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Tool    string `json:"tool,omitempty"`
}
