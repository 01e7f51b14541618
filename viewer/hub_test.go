package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWS)
	s := httptest.NewServer(mux)
	t.Cleanup(s.Close)

	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestHubBroadcast(t *testing.T) {
	h := NewHub()
	c := dialHub(t, h)

	// The upgrade completes before Dial returns, but registration races it.
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.Broadcast(map[string]any{"type": "run", "rom": "seaquest"})

	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(msg, &payload); err != nil {
		t.Fatalf("broadcast is not JSON: %v", err)
	}
	if payload["type"] != "run" || payload["rom"] != "seaquest" {
		t.Errorf("payload = %v", payload)
	}
}

func TestHubDropsClosedClients(t *testing.T) {
	h := NewHub()
	c := dialHub(t, h)

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	c.Close()
	deadline = time.Now().Add(2 * time.Second)
	for h.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("closed client never removed")
		}
		h.Broadcast(map[string]any{"type": "ping"})
		time.Sleep(5 * time.Millisecond)
	}
}
