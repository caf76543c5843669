// Package httpapi exposes the rating engine over HTTP: a rating endpoint,
// history reads, health, metrics, and a websocket alert stream.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/tokenwatch/rater/internal/cache"
	"github.com/tokenwatch/rater/internal/engine"
	"github.com/tokenwatch/rater/internal/model"
)

// RatingCache is the optional read-through cache in front of the engine.
type RatingCache interface {
	Get(ctx context.Context, tokenAddress string) (model.RatingResult, error)
	Set(ctx context.Context, result model.RatingResult) error
}

// Metrics receives cache and alert-stream instrumentation events. A nil
// implementation is replaced with a no-op.
type Metrics interface {
	CacheHit()
	CacheMiss()
	WSClientCount(n int)
}

type nopMetrics struct{}

func (nopMetrics) CacheHit()         {}
func (nopMetrics) CacheMiss()        {}
func (nopMetrics) WSClientCount(int) {}

// Server hosts the HTTP API.
type Server struct {
	engine  *engine.Engine
	cache   RatingCache
	metrics Metrics
	hub     *AlertHub
	router  *mux.Router
	log     zerolog.Logger
}

// Options carries the optional collaborators.
type Options struct {
	Cache          RatingCache
	Metrics        Metrics
	MetricsHandler http.Handler
}

// NewServer wires the routes. The alert hub starts immediately.
func NewServer(eng *engine.Engine, opts Options, logger zerolog.Logger) *Server {
	metrics := opts.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	s := &Server{
		engine:  eng,
		cache:   opts.Cache,
		metrics: metrics,
		hub:     NewAlertHub(logger),
		log:     logger.With().Str("component", "httpapi").Logger(),
	}
	s.hub.notify = metrics.WSClientCount

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/rate", s.handleRate).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/ratings/{address}", s.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/ws/alerts", s.hub.HandleUpgrade)
	if opts.MetricsHandler != nil {
		r.Handle("/metrics", opts.MetricsHandler).Methods(http.MethodGet)
	}
	s.router = r

	go s.hub.Run()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the alert hub for direct publishing.
func (s *Server) Hub() *AlertHub {
	return s.hub
}

// Close stops the alert hub.
func (s *Server) Close() {
	s.hub.Stop()
}

type rateRequest struct {
	engine.Input
	// Fresh forces a recompute even when a cached rating exists.
	Fresh bool `json:"fresh,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	token := req.Context.TokenData.Address
	if token == "" {
		s.writeError(w, http.StatusBadRequest, "token_data.address is required")
		return
	}

	if s.cache != nil && !req.Fresh {
		if cached, err := s.cache.Get(r.Context(), token); err == nil {
			s.metrics.CacheHit()
			s.writeJSON(w, http.StatusOK, cached)
			return
		} else if errors.Is(err, cache.ErrMiss) {
			s.metrics.CacheMiss()
		} else {
			s.log.Warn().Err(err).Str("token", token).Msg("rating cache read failed")
		}
	}

	result, err := s.engine.CalculateRating(r.Context(), req.Input)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrOverallTimeout) {
			status = http.StatusGatewayTimeout
		}
		s.writeError(w, status, err.Error())
		return
	}

	if s.cache != nil {
		if err := s.cache.Set(r.Context(), result); err != nil {
			s.log.Warn().Err(err).Str("token", token).Msg("rating cache write failed")
		}
	}
	if result.HasAlerts() {
		s.hub.Publish(result)
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	records, err := s.engine.History(r.Context(), address, 50)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"ws_clients": s.hub.ClientCount(),
		"time":       time.Now().UTC(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("response encode failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}
