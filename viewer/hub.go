package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rajabi-j/ALEMCTS/store"
)

var upgrader = websocket.Upgrader{
	// The viewer is a local dashboard; cross-origin pages on localhost are
	// fine.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub fans newly finished runs out to connected websocket clients.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]bool)}
}

func (h *Hub) add(c *websocket.Conn) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

func (h *Hub) remove(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.Close()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends payload to every client, dropping clients whose writes
// fail.
func (h *Hub) Broadcast(payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal broadcast", "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			delete(h.clients, c)
			c.Close()
		}
	}
}

// ServeWS upgrades the connection and parks it in the hub. Clients are
// write-only from our side; reads only service control frames.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade", "err", err)
		return
	}
	h.add(c)
	go func() {
		defer h.remove(c)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// WatchResults polls the parquet dir and broadcasts rows from batches that
// appear after the watcher started.
func (h *Hub) WatchResults(ctx context.Context, dir string, interval time.Duration) {
	seen := make(map[string]bool)

	// Existing batches are history, not news.
	if entries, err := os.ReadDir(dir); err == nil {
		for _, e := range entries {
			seen[e.Name()] = true
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || seen[e.Name()] || !strings.HasSuffix(e.Name(), ".parquet") {
				continue
			}
			seen[e.Name()] = true

			rows, err := store.ReadParquet(filepath.Join(dir, e.Name()))
			if err != nil {
				slog.Error("read new batch", "file", e.Name(), "err", err)
				continue
			}
			for _, row := range rows {
				h.Broadcast(map[string]any{"type": "run", "run": row})
			}
			slog.Info("broadcast new batch", "file", e.Name(), "rows", len(rows), "clients", h.ClientCount())
		}
	}
}
