// Package api is the agent's local status surface: health, the pool
// book, commerce job submission, and Prometheus metrics. It is read-only
// except for job submission and binds to the configured port only.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/parapool/agent/internal/chain"
	"github.com/parapool/agent/internal/commerce"
	"github.com/parapool/agent/internal/registry"
	"github.com/parapool/agent/internal/risk"
)

// Server wires the HTTP surface over the running agent.
type Server struct {
	reg      *registry.Registry
	commerce *commerce.Handler
	catalog  *risk.Catalog
	wallet   string
	http     *http.Server
	log      *slog.Logger
}

// New builds the server on the given port.
func New(port string, reg *registry.Registry, com *commerce.Handler, catalog *risk.Catalog, wallet string) *Server {
	s := &Server{
		reg:      reg,
		commerce: com,
		catalog:  catalog,
		wallet:   wallet,
		log:      slog.Default().With("component", "api"),
	}
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.HandleFunc("/api/v1/pools", s.handlePools).Methods("GET")
	r.HandleFunc("/api/v1/pools/{variant}/{id}", s.handlePool).Methods("GET")
	r.HandleFunc("/api/v1/catalog", s.handleCatalog).Methods("GET")
	r.HandleFunc("/api/v1/jobs", s.handleJob).Methods("POST")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	s.http = &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until ctx ends, then drains with a short grace period.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("status api listening", "addr", s.http.Addr)
		errCh <- s.http.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"wallet":          s.wallet,
		"pools":           s.reg.Len(),
		"live_pools":      s.reg.LiveCount(),
		"cycle":           s.reg.CycleCount(),
		"suspended_until": s.reg.SuspendedUntil(),
	})
}

func (s *Server) handlePools(w http.ResponseWriter, r *http.Request) {
	pools := s.reg.All()
	if r.URL.Query().Get("live") == "true" {
		pools = s.reg.Live()
	}
	writeJSON(w, http.StatusOK, pools)
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid pool id", http.StatusBadRequest)
		return
	}
	entry, ok := s.reg.Get(chain.Variant(vars["variant"]), id)
	if !ok {
		http.Error(w, "pool not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.List())
}

// handleJob accepts a commerce service request and blocks until the
// sequential queue delivers. Jobs are rare and short, so synchronous
// delivery keeps the protocol simple.
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Requirement string `json:"requirement"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Requirement == "" {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	select {
	case deliverable := <-s.commerce.Submit(req.Requirement):
		writeJSON(w, http.StatusOK, deliverable)
	case <-r.Context().Done():
		http.Error(w, "client gone", http.StatusRequestTimeout)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
