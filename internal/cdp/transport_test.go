package cdp_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dhruvsoni1802/browser-bridge/internal/cdp"
)

// newEchoPeer starts a websocket server that acknowledges every command
// with {"method": <name>} and announces itself with one event. Closing
// the returned channel drops the socket from the server side.
func newEchoPeer(t *testing.T) (*httptest.Server, chan struct{}) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	drop := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer ws.Close()

		go func() {
			<-drop
			ws.Close()
		}()

		ws.WriteMessage(websocket.TextMessage, []byte(`{"method":"Target.attached","params":{}}`))

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}

			var req struct {
				ID     int64  `json:"id"`
				Method string `json:"method"`
			}
			if err := json.Unmarshal(data, &req); err != nil {
				return
			}

			reply, _ := json.Marshal(map[string]any{
				"id":     req.ID,
				"result": map[string]string{"method": req.Method},
			})
			if err := ws.WriteMessage(websocket.TextMessage, reply); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	return srv, drop
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/devtools/page/T1"
}

// TestWebSocketRoundTrip tests a real gorilla websocket connection end to end
func TestWebSocketRoundTrip(t *testing.T) {
	srv, drop := newEchoPeer(t)

	desc := cdp.TargetDescriptor{ID: "T1", Type: "page", WebSocketDebuggerURL: wsURL(srv)}
	conn, err := cdp.Connect(context.Background(), desc, cdp.Options{
		Domains:     []string{"Page", "Runtime"},
		CallTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.Close()

	select {
	case ev := <-conn.Events():
		if ev.Method != "Target.attached" {
			t.Errorf("unexpected first event %s", ev.Method)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not received over websocket")
	}

	result, err := conn.Call(context.Background(), "Runtime.evaluate", map[string]string{"expression": "1"}, time.Second)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if string(result) != `{"method":"Runtime.evaluate"}` {
		t.Errorf("unexpected result %s", result)
	}

	// the server hangs up: the connection closes and calls fail fast
	close(drop)

	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection did not notice the dropped socket")
	}

	_, err = conn.Call(context.Background(), "Runtime.evaluate", nil, time.Second)
	if !cdp.IsConnectionError(err) {
		t.Errorf("expected ConnectionError after hang-up, got %v", err)
	}
}

// TestDialWebSocketBadEndpoint tests dial failures
func TestDialWebSocketBadEndpoint(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := cdp.DialWebSocket(ctx, ""); err == nil {
		t.Error("expected error for empty endpoint")
	}

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	if _, err := cdp.DialWebSocket(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")); err == nil {
		t.Error("expected handshake error from a non-websocket server")
	}
}
