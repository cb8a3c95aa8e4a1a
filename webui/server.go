package webui

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"livevlm/store"
	"livevlm/telemetry"
	"livevlm/vision"
)

// HistorySource yields the bounded utilization history for charting.
type HistorySource interface {
	HistorySeries() telemetry.Series
}

// FrameSink accepts frames for sampled inference. Submissions must
// never block the caller.
type FrameSink interface {
	SubmitFrame(frame image.Image, index uint64)
}

// SnapshotArchive serves persisted telemetry snapshots, newest first.
type SnapshotArchive interface {
	Recent(ctx context.Context, limit int) ([]store.StoredSnapshot, error)
}

// maxFrameBodyBytes caps uploaded frame size (raw JPEG/PNG before decode).
const maxFrameBodyBytes = 8 << 20

// maxSnapshotLimit caps one /api/snapshots page.
const maxSnapshotLimit = 1000

// Server is the HTTP front of the dashboard. It wires together:
//   - Broadcaster for real-time WebSocket updates
//   - REST endpoints for stats, history, and the latest VLM response
//   - A frame ingest endpoint feeding the inference coordinator
type Server struct {
	httpServer  *http.Server
	mux         *http.ServeMux
	config      ServerConfig
	logger      *zap.Logger
	broadcaster *Broadcaster

	stats   StatsSource
	history HistorySource
	results ResultSource
	frames  FrameSink
	archive SnapshotArchive

	// frameCount numbers ingested frames so the coordinator can apply
	// its sampling interval.
	frameCount atomic.Uint64
}

// ServerConfig configures the Server.
type ServerConfig struct {
	// Host to bind to (default: "0.0.0.0").
	Host string

	// Port to listen on (default: 8080).
	Port int

	// ReadTimeout for HTTP requests (default: 30s).
	ReadTimeout time.Duration

	// WriteTimeout for HTTP responses (default: 30s).
	WriteTimeout time.Duration

	// IdleTimeout for keep-alive connections (default: 120s).
	IdleTimeout time.Duration

	// ShutdownTimeout for graceful shutdown (default: 30s).
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// NewServer creates a Server wired to the given sources.
// The frame sink may be nil when inference is disabled.
func NewServer(
	config ServerConfig,
	stats StatsSource,
	history HistorySource,
	results ResultSource,
	frames FrameSink,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()

	bcfg := DefaultBroadcasterConfig()
	bcfg.Logger = logger
	s := &Server{
		mux:     mux,
		config:  config,
		logger:  logger.Named("webui"),
		stats:   stats,
		history: history,
		results: results,
		frames:  frames,
	}
	bcfg.InitialState = s.initialState
	s.broadcaster = NewBroadcasterWithConfig(bcfg)

	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	s.logger.Info("server created", zap.String("addr", addr))
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/ws", s.broadcaster.HandleConnection)
	s.mux.HandleFunc("/api/stats", s.handleStats)
	s.mux.HandleFunc("/api/history", s.handleHistory)
	s.mux.HandleFunc("/api/response", s.handleResponse)
	s.mux.HandleFunc("/api/frame", s.handleFrame)
	s.mux.HandleFunc("/api/snapshots", s.handleSnapshots)
}

// SetSnapshotArchive enables /api/snapshots. Call before Start; a nil
// archive leaves the endpoint answering 503.
func (s *Server) SetSnapshotArchive(archive SnapshotArchive) {
	s.archive = archive
}

// Start runs the broadcaster and blocks serving HTTP until shutdown.
func (s *Server) Start(ctx context.Context) error {
	go s.broadcaster.Start(ctx)

	s.logger.Info("server starting", zap.String("addr", s.httpServer.Addr))

	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown error: %w", err)
	}
	return nil
}

// Broadcaster exposes the WebSocket broadcaster for push loops.
func (s *Server) Broadcaster() *Broadcaster {
	return s.broadcaster
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// initialState builds the snapshot sent to each new WebSocket client.
func (s *Server) initialState() InitialData {
	data := InitialData{}
	if snap, ok := s.stats.Latest(); ok {
		data.Stats = &snap
	}
	if s.history != nil {
		data.History = s.history.HistorySeries()
	}
	if s.results != nil {
		res := s.results.CurrentResult()
		data.VLM = VLMResponseData{Response: res.Text, IsProcessing: res.IsProcessing}
	}
	return data
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleStats returns the most recent cached telemetry snapshot.
// It never triggers a hardware query.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap, ok := s.stats.Latest()
	if !ok {
		http.Error(w, `{"error":"no snapshot yet"}`, http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, snap)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.history == nil {
		http.Error(w, `{"error":"history unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, s.history.HistorySeries())
}

func (s *Server) handleResponse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.results == nil {
		http.Error(w, `{"error":"inference unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	res := s.results.CurrentResult()
	s.writeJSON(w, VLMResponseData{Response: res.Text, IsProcessing: res.IsProcessing})
}

// handleSnapshots returns persisted snapshots, newest first. The
// optional limit query parameter defaults to 60.
func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.archive == nil {
		http.Error(w, `{"error":"persistence disabled"}`, http.StatusServiceUnavailable)
		return
	}

	limit := 60
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, `{"error":"invalid limit"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}
	if limit > maxSnapshotLimit {
		limit = maxSnapshotLimit
	}

	snaps, err := s.archive.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("query snapshots", zap.Error(err))
		http.Error(w, `{"error":"query failed"}`, http.StatusInternalServerError)
		return
	}
	if snaps == nil {
		snaps = []store.StoredSnapshot{}
	}
	s.writeJSON(w, snaps)
}

// handleFrame accepts a JPEG or PNG frame and hands it to the inference
// coordinator. The response never waits on inference: it reports the
// frame index and the coordinator's current state.
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.frames == nil {
		http.Error(w, `{"error":"inference unavailable"}`, http.StatusServiceUnavailable)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFrameBodyBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, `{"error":"body too large"}`, http.StatusRequestEntityTooLarge)
		return
	}
	frame, err := vision.Decode(data)
	if err != nil {
		s.logger.Debug("frame decode failed", zap.Error(err))
		http.Error(w, `{"error":"invalid image"}`, http.StatusBadRequest)
		return
	}

	index := s.frameCount.Add(1)
	s.frames.SubmitFrame(frame, index)

	resp := struct {
		FrameIndex uint64 `json:"frame_index"`
		VLMResponseData
	}{FrameIndex: index}
	if s.results != nil {
		res := s.results.CurrentResult()
		resp.Response = res.Text
		resp.IsProcessing = res.IsProcessing
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	s.writeJSONBody(w, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	s.writeJSONBody(w, v)
}

func (s *Server) writeJSONBody(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", zap.Error(err))
	}
}
