// Package httpapi expone el estado del engine y la intención de apostar como
// JSON, más /metrics para Prometheus.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alejandrodnm/shortsbot/internal/application/engine"
	"github.com/alejandrodnm/shortsbot/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const (
	requestTimeout  = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Engine es lo que la API necesita del engine.
type Engine interface {
	Place(ctx context.Context, req engine.PlaceRequest) (domain.OpenPosition, error)
	Snapshot() *engine.Snapshot
}

// Server sirve la API JSON.
type Server struct {
	engine Engine
	reg    prometheus.Gatherer
	router chi.Router
}

// NewServer monta las rutas. reg puede ser nil (sin /metrics).
func NewServer(e Engine, reg prometheus.Gatherer) *Server {
	s := &Server{engine: e, reg: reg}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logRequests)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/snapshot", s.handleSnapshot)
		r.Get("/markets", s.handleMarkets)
		r.Get("/markets/{key}", s.handleMarket)
		r.Get("/positions", s.handlePositions)
		r.Post("/positions", s.handlePlace)
		r.Get("/rounds/{id}", s.handleRound)
	})
	if reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	s.router = r
	return s
}

// ServeHTTP implementa http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe sirve en addr hasta que ctx se cancela.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("httpapi: listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.engine.Snapshot()
	if snap == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "feeds": snap.Feeds})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotDTO(snap))
}

func (s *Server) handleMarkets(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	out := make([]marketDTO, 0, len(snap.Markets))
	for _, m := range snap.Markets {
		out = append(out, toMarketDTO(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	m, found := snap.Market(chi.URLParam(r, "key"))
	if !found {
		writeError(w, http.StatusNotFound, domain.ErrUnknownMarket)
		return
	}
	writeJSON(w, http.StatusOK, toMarketDTO(m))
}

func (s *Server) handlePositions(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, positionsDTO{
		Open:    toOpenDTOs(snap.Open),
		Settled: toSettledDTOs(snap.Settled),
	})
}

func (s *Server) handleRound(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	phase, found := snap.PhaseOf(id)
	if !found {
		writeJSON(w, http.StatusNotFound, errorDTO{Error: "unknown round", Reason: "unknown_round"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "phase": string(phase)})
}

func (s *Server) handlePlace(w http.ResponseWriter, r *http.Request) {
	var req placeRequestDTO
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorDTO{Error: "invalid json body", Reason: "bad_request"})
		return
	}
	stake, err := decimal.NewFromString(req.Stake.String())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorDTO{Error: "invalid stake", Reason: "bad_request"})
		return
	}

	dir := domain.Direction(req.Direction)
	if d, ok := domain.ParseDirection(req.Direction); ok {
		dir = d
	}

	pos, err := s.engine.Place(r.Context(), engine.PlaceRequest{
		MarketKey: req.Market,
		Direction: dir,
		Stake:     stake,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, toOpenDTO(pos))
}

func (s *Server) snapshot(w http.ResponseWriter) (*engine.Snapshot, bool) {
	snap := s.engine.Snapshot()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, domain.ErrEngineStopped)
		return nil, false
	}
	return snap, true
}

// statusFor traduce los rechazos del engine a códigos HTTP.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrEngineStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case !engine.IsRejection(err):
		return http.StatusInternalServerError
	case errors.Is(err, domain.ErrUnknownMarket):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidDirection), errors.Is(err, domain.ErrStakeNotAllowed):
		return http.StatusUnprocessableEntity
	}
	// resto de rechazos: feed, fase de la ronda, saldo
	return http.StatusConflict
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		slog.Error("httpapi: request failed", "status", status, "err", err)
	}
	writeJSON(w, status, errorDTO{Error: err.Error(), Reason: domain.RejectReason(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("httpapi: encode response", "err", err)
	}
}

// logRequests loguea cada request con slog.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("httpapi: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}
