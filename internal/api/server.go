// Package api serves departures, stations and display preferences over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/bluele/gcache"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/patconext-data/internal/common/logger"
	"github.com/patconext-data/internal/common/maintenance"
	"github.com/patconext-data/internal/common/metrics"
	"github.com/patconext-data/internal/dataset"
	"github.com/patconext-data/internal/schedule"
	"github.com/patconext-data/pkg/timetable/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	maxCount       = 50
	cacheSize      = 512
	cacheTTL       = time.Minute
	requestTimeout = 10 * time.Second

	backgroundRefreshTimeout = 3 * time.Minute
)

type SnapshotSource interface {
	Current() *dataset.Snapshot
	IsStale(maxAge time.Duration) bool
}

type Refresher interface {
	Refresh(ctx context.Context) (*dataset.RefreshResult, error)
	EnsureFresh(ctx context.Context) (bool, error)
	Restore(ctx context.Context) error
}

// VersionCatalog lists stored timetable versions and switches the active one.
type VersionCatalog interface {
	ListVersions(ctx context.Context) ([]models.VersionInfo, error)
	ActivateVersion(ctx context.Context, versionID string) error
}

type Maintainer interface {
	TriggerCleanup(ctx context.Context) ([]maintenance.VersionCleanupResult, error)
	GetStatus() map[string]interface{}
}

type PreferenceStore interface {
	GetOr(ctx context.Context, key, fallback string) (string, error)
	Set(ctx context.Context, key, value string) error
}

type BoardSource interface {
	Latest() (*models.Board, bool)
}

// Pinger checks the backing database.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Config struct {
	DefaultCount   int
	DefaultStation string
	StaleAfter     time.Duration
	CORSOrigins    []string
}

// Deps are the collaborators the handlers read from. Everything but
// Snapshots may be nil; the matching routes then answer 503.
type Deps struct {
	Snapshots   SnapshotSource
	Resolver    *schedule.Resolver
	Refresher   Refresher
	Prefs       PreferenceStore
	Board       BoardSource
	DB          Pinger
	Versions    VersionCatalog
	Maintenance Maintainer
}

type Server struct {
	config     Config
	deps       Deps
	cache      gcache.Cache
	logger     logger.Logger
	router     chi.Router
	refreshing atomic.Bool
}

// ErrorResponse is the JSON body of every non-2xx answer.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func NewServer(cfg Config, deps Deps, log logger.Logger) *Server {
	if cfg.DefaultCount <= 0 {
		cfg.DefaultCount = 5
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	if deps.Resolver == nil {
		deps.Resolver = schedule.NewResolver(nil, nil, log)
	}

	s := &Server{
		config: cfg,
		deps:   deps,
		cache: gcache.New(cacheSize).
			LRU().
			Expiration(cacheTTL).
			Build(),
		logger: log,
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Get("/stations", s.handleStations)
		r.Get("/next", s.handleNext)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/preferences", s.handleGetPreferences)
		r.Put("/preferences", s.handlePutPreferences)
		r.Get("/board", s.handleBoard)
		r.Get("/versions", s.handleVersions)
		r.Post("/versions/{id}/activate", s.handleActivateVersion)
		r.Post("/maintenance/cleanup", s.handleCleanup)
	})
	return r
}

// freshen refreshes a stale timetable. With nothing loaded the request waits
// for the fetch; otherwise the current snapshot is served while one
// background refresh runs.
func (s *Server) freshen(ctx context.Context) {
	if s.deps.Refresher == nil || !s.deps.Snapshots.IsStale(s.config.StaleAfter) {
		return
	}

	if s.deps.Snapshots.Current() == nil {
		if _, err := s.deps.Refresher.EnsureFresh(ctx); err != nil {
			s.logger.Warn("Timetable refresh failed", "error", err)
		}
		return
	}

	if !s.refreshing.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer s.refreshing.Store(false)
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), backgroundRefreshTimeout)
		defer cancel()
		if _, err := s.deps.Refresher.EnsureFresh(ctx); err != nil {
			s.logger.Warn("Serving stale timetable", "error", err)
		}
	}()
}

// observe records latency per route pattern and logs each request.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.ObserveRequest(route, status, start)

		s.logger.Debug("HTTP request",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
