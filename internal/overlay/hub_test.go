package overlay

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Burnaviour/realtime-translator/internal/pipeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dialHub(t *testing.T, h *Hub) (*websocket.Conn, func()) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("Dial() error = %v", err)
	}

	// Registration happens in the handler after the handshake completes.
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	return msg
}

func TestHubDeliversUpdates(t *testing.T) {
	h := NewHub(testLogger(), nil)
	conn, cleanup := dialHub(t, h)
	defer cleanup()

	h.UpdatePreview(pipeline.SourceGame, "they are pushing")
	h.UpdateFinal(pipeline.SourceMic, "cover me")

	preview := readMessage(t, conn)
	if preview.Kind != "preview" || preview.Source != "game" || preview.Text != "they are pushing" {
		t.Errorf("preview message = %+v", preview)
	}

	final := readMessage(t, conn)
	if final.Kind != "final" || final.Source != "mic" || final.Text != "cover me" {
		t.Errorf("final message = %+v", final)
	}
	if final.Timestamp.IsZero() {
		t.Error("final message has zero timestamp")
	}
}

func TestHubReplaysLastFinalOnConnect(t *testing.T) {
	h := NewHub(testLogger(), nil)

	h.UpdateFinal(pipeline.SourceGame, "enemy down")
	h.UpdatePreview(pipeline.SourceGame, "transient preview")

	conn, cleanup := dialHub(t, h)
	defer cleanup()

	msg := readMessage(t, conn)
	if msg.Kind != "final" || msg.Text != "enemy down" {
		t.Errorf("replayed message = %+v, want the last final", msg)
	}
}

func TestHubClose(t *testing.T) {
	h := NewHub(testLogger(), nil)
	conn, cleanup := dialHub(t, h)
	defer cleanup()

	h.Close()

	if got := h.ClientCount(); got != 0 {
		t.Errorf("ClientCount() after Close = %d, want 0", got)
	}

	// Broadcasting after Close is a no-op rather than a panic.
	h.UpdateFinal(pipeline.SourceGame, "dropped")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func TestHubClientDisconnect(t *testing.T) {
	h := NewHub(testLogger(), nil)
	conn, cleanup := dialHub(t, h)
	defer cleanup()

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never unregistered after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServerEndpoints(t *testing.T) {
	h := NewHub(testLogger(), nil)
	s := NewServer(ServerConfig{Address: "127.0.0.1", Port: 0}, testLogger(), h, nil, nil, nil)

	srv := httptest.NewServer(s.server.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /healthz status = %d, want 200", resp.StatusCode)
	}

	var health map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode /healthz: %v", err)
	}
	if health["status"] != "healthy" {
		t.Errorf("health status = %v, want healthy", health["status"])
	}

	resp2, err := http.Get(srv.URL + "/api/v1/status")
	if err != nil {
		t.Fatalf("GET /api/v1/status error = %v", err)
	}
	defer resp2.Body.Close()

	var status map[string]interface{}
	if err := json.NewDecoder(resp2.Body).Decode(&status); err != nil {
		t.Fatalf("decode /api/v1/status: %v", err)
	}
	overlay, ok := status["overlay"].(map[string]interface{})
	if !ok {
		t.Fatalf("status missing overlay section: %v", status)
	}
	if overlay["clients"] != float64(0) {
		t.Errorf("overlay clients = %v, want 0", overlay["clients"])
	}

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/healthz", nil)
	resp3, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /healthz error = %v", err)
	}
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST /healthz status = %d, want 405", resp3.StatusCode)
	}

	// History is not wired on this server.
	resp4, err := http.Get(srv.URL + "/api/v1/history")
	if err != nil {
		t.Fatalf("GET /api/v1/history error = %v", err)
	}
	resp4.Body.Close()
	if resp4.StatusCode != http.StatusNotFound {
		t.Errorf("GET /api/v1/history status = %d, want 404 when disabled", resp4.StatusCode)
	}
}

type fakeHistory struct {
	records  []pipeline.UtteranceRecord
	gotLimit int
}

func (f *fakeHistory) Recent(_ context.Context, limit int) ([]pipeline.UtteranceRecord, error) {
	f.gotLimit = limit
	return f.records, nil
}

func TestServerHistoryEndpoint(t *testing.T) {
	hist := &fakeHistory{records: []pipeline.UtteranceRecord{
		{ID: "u1", Source: "game", Transcript: "враг сзади", Translation: "enemy behind"},
	}}

	h := NewHub(testLogger(), nil)
	s := NewServer(ServerConfig{Address: "127.0.0.1", Port: 0}, testLogger(), h, nil, hist, nil)

	srv := httptest.NewServer(s.server.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/history?limit=5")
	if err != nil {
		t.Fatalf("GET /api/v1/history error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/v1/history status = %d, want 200", resp.StatusCode)
	}
	if hist.gotLimit != 5 {
		t.Errorf("history limit = %d, want 5", hist.gotLimit)
	}

	var body struct {
		Total      int                        `json:"total"`
		Utterances []pipeline.UtteranceRecord `json:"utterances"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode /api/v1/history: %v", err)
	}
	if body.Total != 1 || len(body.Utterances) != 1 || body.Utterances[0].ID != "u1" {
		t.Errorf("history body = %+v", body)
	}

	resp2, err := http.Get(srv.URL + "/api/v1/history?limit=bogus")
	if err != nil {
		t.Fatalf("GET with bad limit error = %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", resp2.StatusCode)
	}
}
