// Package server exposes the session pool over HTTP: a JSON API, a status
// page with a WebSocket feed, health probes and Prometheus metrics.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/botkeeper/internal/core/domain"
	"github.com/vietddude/botkeeper/internal/core/scheduler"
	"github.com/vietddude/botkeeper/internal/core/session"
	"github.com/vietddude/botkeeper/internal/health"
)

//go:embed web/index.html
var web embed.FS

// Pool is the set of pool operations the surface drives.
type Pool interface {
	Sessions() []session.View
	Add(ctx context.Context, params domain.Params) (string, error)
	Delete(id string) bool
	Reconnect(ctx context.Context, id string) error
}

// Session is one entry of GET /api/bots.
type Session struct {
	ID       string  `json:"id"`
	Host     string  `json:"host"`
	Port     int     `json:"port"`
	Username string  `json:"username"`
	Status   string  `json:"status"`
	Error    string  `json:"error"`
	Health   float64 `json:"health"`
	Food     int     `json:"food"`
}

// FromView flattens a handle view into the listing shape.
func FromView(v session.View) Session {
	return Session{
		ID:       v.ID,
		Host:     v.Params.Host,
		Port:     v.Params.Port,
		Username: v.Params.Identity,
		Status:   string(v.Status),
		Error:    v.LastError,
		Health:   v.Health,
		Food:     v.Food,
	}
}

// AddRequest is the body of POST /api/bots.
type AddRequest struct {
	Host     string `json:"host"`
	Port     Port   `json:"port"`
	Username string `json:"username"`
}

// Port accepts a JSON number or a numeric string, since HTML form values
// arrive as strings. A string that is not a number decodes as 0.
type Port int

func (p *Port) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			n = 0
		}
		*p = Port(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*p = Port(n)
	return nil
}

// Result is returned by mutating endpoints.
type Result struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server provides the HTTP control surface.
type Server struct {
	pool    Pool
	monitor *health.Monitor
	hub     *Hub
	server  *http.Server
	log     *slog.Logger
}

// NewServer creates the control surface on port.
func NewServer(pool Pool, monitor *health.Monitor, hub *Hub, port int) *Server {
	s := &Server{
		pool:    pool,
		monitor: monitor,
		hub:     hub,
		log:     slog.Default().With("component", "http"),
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /ws", s.handleWS)

	mux.HandleFunc("GET /api/bots", s.handleList)
	mux.HandleFunc("POST /api/bots", s.handleAdd)
	mux.HandleFunc("DELETE /api/bots/{id}", s.handleDelete)
	mux.HandleFunc("POST /api/bots/{id}/reconnect", s.handleReconnect)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/detailed", s.handleDetailed)
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info("Control surface listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Serve serves on an existing listener.
func (s *Server) Serve(lis net.Listener) error {
	return s.server.Serve(lis)
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.Close()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := fs.ReadFile(web, "web/index.html")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.hub.Serve(w, r, s.sessions())
}

func (s *Server) sessions() []Session {
	views := s.pool.Sessions()
	out := make([]Session, 0, len(views))
	for _, v := range views {
		out = append(out, FromView(v))
	}
	return out
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions())
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req AddRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Host == "" || req.Port == 0 || req.Username == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	params := domain.Params{Host: req.Host, Port: int(req.Port), Identity: req.Username}
	if err := params.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.pool.Add(r.Context(), params)
	if err != nil {
		s.log.Error("Failed to add session", "params", params.String(), "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, Result{Success: true, ID: id})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.pool.Delete(id) {
		writeError(w, http.StatusNotFound, "Bot not found")
		return
	}
	writeJSON(w, http.StatusOK, Result{Success: true})
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.pool.Reconnect(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, Result{Success: true, ID: id})
	case errors.Is(err, scheduler.ErrNotFound):
		writeError(w, http.StatusNotFound, "Bot not found")
	case errors.Is(err, scheduler.ErrPending):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())
	code := http.StatusOK
	if report.SystemStatus == health.StatusCritical {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": string(report.SystemStatus)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.CheckHealth(r.Context()))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg})
}
