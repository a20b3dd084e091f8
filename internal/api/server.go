package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"ippool/internal/engine"
	"ippool/internal/model"
	"ippool/internal/pool"
)

// Snapshotter hands out the current pool generation.
type Snapshotter interface {
	Snapshot() *pool.Generation
	Ready() bool
}

// Status reports the refresh engine's progress.
type Status interface {
	State() engine.State
	LastCycle() *engine.CycleReport
}

// CountryCounter tallies endpoints per country. Optional.
type CountryCounter interface {
	CountByCountry(endpoints []model.Endpoint) map[string]int
}

type countryCache struct {
	generation uint64
	counts     map[string]int
}

// Server exposes the pool over HTTP. Handlers only read the current
// snapshot and never wait on a running refresh.
type Server struct {
	store  Snapshotter
	status Status
	geo    CountryCounter

	countries atomic.Pointer[countryCache]
	srv       *http.Server
}

// NewServer builds the HTTP surface. status and geo may be nil.
func NewServer(addr string, store Snapshotter, status Status, geo CountryCounter) *Server {
	s := &Server{store: store, status: status, geo: geo}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handlePool)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	slog.Info("Pool API listening", "addr", ln.Addr().String())
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address and serves.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.Strings(s.store.Snapshot().Endpoints()))
}

type statsResponse struct {
	Generation uint64              `json:"generation"`
	ID         string              `json:"id,omitempty"`
	CreatedAt  *time.Time          `json:"created_at,omitempty"`
	Size       int                 `json:"size"`
	State      string              `json:"state,omitempty"`
	LastCycle  *engine.CycleReport `json:"last_cycle,omitempty"`
	Countries  map[string]int      `json:"countries,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	g := s.store.Snapshot()
	resp := statsResponse{Generation: g.Number, Size: g.Len()}
	if g.ID != uuid.Nil {
		resp.ID = g.ID.String()
		created := g.CreatedAt
		resp.CreatedAt = &created
	}
	if s.status != nil {
		resp.State = s.status.State().String()
		resp.LastCycle = s.status.LastCycle()
	}
	if s.geo != nil && g.Len() > 0 {
		resp.Countries = s.countryCounts(g)
	}
	writeJSON(w, http.StatusOK, resp)
}

// countryCounts memoises the tally per generation; lookups are too slow to
// repeat for every request against a large pool.
func (s *Server) countryCounts(g *pool.Generation) map[string]int {
	if c := s.countries.Load(); c != nil && c.generation == g.Number {
		return c.counts
	}
	counts := s.geo.CountByCountry(g.Endpoints())
	s.countries.Store(&countryCache{generation: g.Number, counts: counts})
	return counts
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.store.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "bootstrapping"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Writing response failed", "error", err)
	}
}
