// Command viewer serves recorded experiment results: a JSON API over the
// parquet batches, the encoded videos, and a websocket that pushes runs as
// sweeps finish them.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rajabi-j/ALEMCTS/logging"
)

// Server holds shared state for HTTP handlers.
type Server struct {
	dbCache *DBCache
	hub     *Hub
}

func (s *Server) RegisterRoutes(mux *http.ServeMux, videosDir string) {
	mux.HandleFunc("/api/runs", s.handleRuns)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/ws", s.hub.ServeWS)
	mux.Handle("/videos/", http.StripPrefix("/videos/", http.FileServer(http.Dir(videosDir))))
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 200
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "bad limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := s.dbCache.queryRuns(r.Context(),
		r.URL.Query().Get("agent"),
		r.URL.Query().Get("rom"),
		limit,
	)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"total": len(runs), "runs": runs})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stats, err := s.dbCache.queryStats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, stats)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write json response", "err", err)
	}
}

func main() {
	addr := flag.String("addr", ":8089", "Listen address")
	resultsDir := flag.String("results-dir", "results/parquet", "Parquet results dir")
	videosDir := flag.String("videos-dir", "results/videos", "Encoded videos dir")
	refresh := flag.Duration("refresh", 30*time.Second, "DB cache refresh interval")
	flag.Parse()

	slog.SetDefault(slog.New(logging.NewHandler(os.Stderr, slog.LevelInfo)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &Server{
		dbCache: NewDBCache(*resultsDir, *refresh),
		hub:     NewHub(),
	}
	defer srv.dbCache.Close()

	go srv.hub.WatchResults(ctx, *resultsDir, 2*time.Second)

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux, *videosDir)

	httpSrv := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	slog.Info("viewer listening", "addr", *addr, "results", *resultsDir, "videos", *videosDir)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "err", err)
		os.Exit(1)
	}
}
