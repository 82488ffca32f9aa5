package monitor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shaunagostinho/macropad-link/internal/trace"
)

type fakeConfig struct{}

func (fakeConfig) ToJSON() ([]byte, error) { return []byte(`{"link":{"reportLength":32}}`), nil }

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	webFS := fstest.MapFS{"index.html": {Data: []byte("<h1>macropad</h1>")}}
	status := func() interface{} { return map[string]string{"session": "connected"} }
	s := New("", webFS, status, fakeConfig{})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func TestStatusAPI(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got["session"] != "connected" {
		t.Errorf("status = %v", got)
	}

	post, err := http.Post(ts.URL+"/api/status", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d", post.StatusCode)
	}
}

func TestConfigAPIAndPage(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/config")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "reportLength") {
		t.Errorf("config body = %s", body)
	}

	page, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	body, _ = io.ReadAll(page.Body)
	page.Body.Close()
	if !strings.Contains(string(body), "macropad") {
		t.Errorf("page body = %s", body)
	}
}

func TestWebSocketReceivesStatusThenEvents(t *testing.T) {
	s, ts := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first Frame
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatal(err)
	}
	if first.Status == nil || first.Event != nil {
		t.Errorf("first frame = %+v", first)
	}

	deadline := time.Now().Add(time.Second)
	for s.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Record(trace.Event{Direction: trace.Out, Type: "PC_PERFORMANCE", Text: "145|07|100", Stamp: 42})

	var next Frame
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatal(err)
	}
	if next.Event == nil || next.Event.Text != "145|07|100" || next.Stamp != 42 {
		t.Errorf("event frame = %+v", next)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	s := New("127.0.0.1:0", nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
