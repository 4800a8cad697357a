package cdp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is the single persistent bidirectional connection to a debug
// endpoint. Only the connection's reader goroutine calls Receive and only
// the correlator calls Send.
type Transport interface {
	Send(ctx context.Context, data []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// DialFunc opens a Transport to a debugger endpoint
type DialFunc func(ctx context.Context, endpoint string) (Transport, error)

const (
	// Chrome sends accessibility trees and screenshots as single messages
	maxMessageSize = 256 << 20

	defaultWriteTimeout = 10 * time.Second
	closeGracePeriod    = time.Second
)

// WebSocketTransport implements Transport over a gorilla websocket
type WebSocketTransport struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// DialWebSocket connects to a webSocketDebuggerUrl
func DialWebSocket(ctx context.Context, endpoint string) (Transport, error) {
	if endpoint == "" {
		return nil, errors.New("empty debugger endpoint")
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   64 << 10,
		WriteBufferSize:  64 << 10,
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake with %s failed (status %d): %w", endpoint, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", endpoint, err)
	}
	conn.SetReadLimit(maxMessageSize)

	return NewWebSocketTransport(conn), nil
}

// NewWebSocketTransport wraps an established websocket connection
func NewWebSocketTransport(conn *websocket.Conn) *WebSocketTransport {
	return &WebSocketTransport{conn: conn}
}

// Send writes one text frame. Gorilla allows a single concurrent writer,
// so writes are serialized here. ctx only gates the start of the write: a
// write cut short leaves the socket unusable, so the socket deadline is
// always defaultWriteTimeout.
func (t *WebSocketTransport) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := t.conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout)); err != nil {
		return err
	}

	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Receive blocks until the next data message arrives. Control frames are
// handled by gorilla internally; binary messages are passed through.
func (t *WebSocketTransport) Receive(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Close sends a close frame (best effort) and releases the socket. Safe to
// call more than once.
func (t *WebSocketTransport) Close() error {
	t.closeOnce.Do(func() {
		// WriteControl and Close may run concurrently with a blocked writer
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))

		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}
