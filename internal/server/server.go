// Package server exposes the pkglens pipeline over a loopback HTTP API.
//
// The API is request-driven: nothing runs in the background, every
// endpoint does its work inside the request and returns. The dashboard
// front-end polls GET /api/packages, which doubles as the collection
// pass that drives uninstall-history tracking.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/blackwell-systems/pkglens/internal/collector"
	"github.com/blackwell-systems/pkglens/internal/conflicts"
	"github.com/blackwell-systems/pkglens/internal/history"
	"github.com/blackwell-systems/pkglens/internal/manager"
	"github.com/blackwell-systems/pkglens/internal/output"
	"github.com/blackwell-systems/pkglens/internal/state"
	"github.com/blackwell-systems/pkglens/internal/verifier"
)

// Server wires the pipeline components behind HTTP handlers.
type Server struct {
	registry  *manager.Registry
	collector *collector.Collector
	verifier  *verifier.Verifier
	scanner   *conflicts.Scanner
	tracker   *history.Tracker
	log       *zap.Logger
}

// New creates a Server over the assembled pipeline.
func New(registry *manager.Registry, col *collector.Collector, ver *verifier.Verifier, scan *conflicts.Scanner, tr *history.Tracker, log *zap.Logger) *Server {
	return &Server{
		registry:  registry,
		collector: col,
		verifier:  ver,
		scanner:   scan,
		tracker:   tr,
		log:       log,
	}
}

// Handler returns the API routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/packages", s.handlePackages)
	mux.HandleFunc("POST /api/verify", s.handleVerify)
	mux.HandleFunc("POST /api/verify-all", s.handleVerifyAll)
	mux.HandleFunc("GET /api/conflicts", s.handleConflicts)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("DELETE /api/history", s.handleClearHistory)
	mux.HandleFunc("POST /api/uninstall", s.handleUninstall)
	mux.HandleFunc("GET /api/export/csv", s.handleExportCSV)
	return mux
}

// ListenAndServe serves the API on addr until ctx is canceled. addr must
// resolve to a loopback address; the dashboard is a local tool and is
// never exposed to the network.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if err := checkLoopback(addr); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("dashboard API listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// checkLoopback rejects listen addresses that are not loopback.
func checkLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("refusing to listen on non-loopback address %q", addr)
	}
	return nil
}

// packagesResponse is the GET /api/packages payload.
type packagesResponse struct {
	Packages   []manager.PackageRecord               `json:"packages"`
	Stats      collector.Stats                       `json:"stats"`
	Advisories []collector.Advisory                  `json:"advisories"`
	Statuses   map[string]manager.VerificationStatus `json:"statuses"`
	Removed    []state.HistoryEntry                  `json:"removed"`
}

// handlePackages runs a collection pass, records the snapshot diff, and
// returns records, stats, advisories and the stored verification map.
func (s *Server) handlePackages(w http.ResponseWriter, r *http.Request) {
	result := s.collector.Collect(r.Context())

	removed, err := s.tracker.RecordSnapshot(result.Records)
	if err != nil {
		// Collection still succeeded; history tracking degrades.
		s.log.Warn("snapshot recording failed", zap.Error(err))
	}

	writeJSON(w, http.StatusOK, packagesResponse{
		Packages:   result.Records,
		Stats:      result.Stats,
		Advisories: result.Advisories,
		Statuses:   s.verifier.Statuses(),
		Removed:    removed,
	})
}

// identityRequest is the body of POST /api/verify and POST /api/uninstall.
type identityRequest struct {
	Manager string `json:"manager"`
	Name    string `json:"name"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	id, ok := s.decodeIdentity(w, r)
	if !ok {
		return
	}

	rec, ok := s.findRecord(r.Context(), id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("package %s not found", id.Key()))
		return
	}

	status, err := s.verifier.VerifyOne(r.Context(), rec)
	if err != nil {
		s.log.Warn("verification result not persisted", zap.String("package", id.Key()), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleVerifyAll(w http.ResponseWriter, r *http.Request) {
	result := s.collector.Collect(r.Context())

	batch, err := s.verifier.VerifyAll(r.Context(), result.Records)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

// conflictsResponse is the GET /api/conflicts payload.
type conflictsResponse struct {
	Findings []conflicts.Finding `json:"findings"`
}

func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	result := s.collector.Collect(r.Context())
	findings := s.scanner.Scan(r.Context(), result.Records)
	writeJSON(w, http.StatusOK, conflictsResponse{Findings: findings})
}

// historyResponse is the GET /api/history payload.
type historyResponse struct {
	Entries []state.HistoryEntry `json:"entries"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries := s.tracker.Entries()
	if entries == nil {
		entries = []state.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Entries: entries})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.Clear(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// handleUninstall marks the identity pending, then invokes the manager's
// uninstall command. The pending marker is written first so the next
// collection pass classifies the removal as dashboard-initiated even if
// this process dies mid-uninstall.
func (s *Server) handleUninstall(w http.ResponseWriter, r *http.Request) {
	id, ok := s.decodeIdentity(w, r)
	if !ok {
		return
	}

	adapter, err := s.registry.Lookup(id.Manager)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !adapter.Detect() {
		writeError(w, http.StatusConflict,
			(&manager.ToolMissingError{Manager: id.Manager, Tool: string(id.Manager)}).Error())
		return
	}

	if err := s.tracker.MarkPending(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := adapter.Uninstall(r.Context(), id.Name); err != nil {
		// The package is still installed; withdraw the marker so a later
		// external removal is not misclassified.
		if unmarkErr := s.tracker.UnmarkPending(id); unmarkErr != nil {
			s.log.Warn("failed to withdraw pending marker", zap.String("package", id.Key()), zap.Error(unmarkErr))
		}
		writeError(w, http.StatusBadGateway,
			fmt.Sprintf("uninstall of %s failed: %v", id.Key(), err))
		return
	}

	s.log.Info("package uninstalled", zap.String("package", id.Key()))
	writeJSON(w, http.StatusOK, map[string]string{"status": "uninstalled", "package": id.Key()})
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	result := s.collector.Collect(r.Context())

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="packages.csv"`)
	if err := output.WriteCSV(w, result.Records); err != nil {
		s.log.Warn("csv export interrupted", zap.Error(err))
	}
}

// decodeIdentity parses and validates an identity request body.
func (s *Server) decodeIdentity(w http.ResponseWriter, r *http.Request) (manager.Identity, bool) {
	var req identityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return manager.Identity{}, false
	}
	m, err := manager.ParseManager(req.Manager)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return manager.Identity{}, false
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return manager.Identity{}, false
	}
	return manager.Identity{Manager: m, Name: req.Name}, true
}

// findRecord locates the current record for an identity by listing its
// manager. Verification needs the live record, not a stale one.
func (s *Server) findRecord(ctx context.Context, id manager.Identity) (manager.PackageRecord, bool) {
	adapter, err := s.registry.Lookup(id.Manager)
	if err != nil || !adapter.Detect() {
		return manager.PackageRecord{}, false
	}
	records, err := adapter.List(ctx)
	if err != nil {
		return manager.PackageRecord{}, false
	}
	for _, rec := range records {
		if rec.Name == id.Name {
			return rec, true
		}
	}
	return manager.PackageRecord{}, false
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
