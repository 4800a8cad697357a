package cdp

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FrameKind classifies a decoded frame
type FrameKind int

const (
	KindRequest FrameKind = iota
	KindResponse
	KindEvent
)

func (k FrameKind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// Frame is one JSON message exchanged over the debugging connection.
// Requests carry ID+Method+Params, replies carry ID+Result or ID+Error,
// and events carry Method+Params without an ID.
type Frame struct {
	ID        *int64          `json:"id,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *ResponseError  `json:"error,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
}

// ResponseError represents an error object in a CDP reply
type ResponseError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NewRequest builds a request frame with the given id
func NewRequest(id int64, method string, params json.RawMessage) Frame {
	return Frame{ID: &id, Method: method, Params: params}
}

// Kind reports whether the frame is a request, a reply or an event
func (f Frame) Kind() FrameKind {
	if f.ID == nil {
		return KindEvent
	}
	if f.Method != "" && f.Result == nil && f.Error == nil {
		return KindRequest
	}
	return KindResponse
}

// HasID reports whether the frame carries a correlation id
func (f Frame) HasID() bool {
	return f.ID != nil
}

// Encode serializes a frame to its wire form
func Encode(f Frame) ([]byte, error) {
	if f.ID == nil && f.Method == "" {
		return nil, errors.New("frame has neither id nor method")
	}

	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return data, nil
}

// Decode parses one inbound message. Undecodable data and frames with
// neither an id nor a method are reported as *MalformedFrameError.
func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, &MalformedFrameError{Raw: data, Err: err}
	}

	if f.ID == nil && f.Method == "" {
		return Frame{}, &MalformedFrameError{Raw: data, Err: errors.New("frame has neither id nor method")}
	}

	return f, nil
}

// encodeParams marshals caller params. Nil params are omitted on the wire.
func encodeParams(params any) (json.RawMessage, error) {
	switch p := params.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	}

	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode params: %w", err)
	}
	return data, nil
}
