package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/patconext-data/internal/common/db"
	"github.com/patconext-data/internal/common/maintenance"
	"github.com/patconext-data/internal/common/metrics"
	"github.com/patconext-data/internal/schedule"
	"github.com/patconext-data/pkg/timetable/models"
)

type StationsResponse struct {
	Westbound []string                `json:"westbound"`
	Eastbound []string                `json:"eastbound"`
	Grouped   []schedule.StationGroup `json:"grouped"`
}

// DirectionResponse answers a single-direction /api/next query.
type DirectionResponse struct {
	Station       string             `json:"station"`
	Direction     models.Direction   `json:"direction"`
	Schedule      string             `json:"schedule"`
	ScheduleURL   string             `json:"schedule_url"`
	Trains        []models.Departure `json:"trains"`
	CurrentTime   string             `json:"current_time"`
	ServerTimeISO time.Time          `json:"server_time_iso"`
}

type Preferences struct {
	Station   string `json:"station"`
	Direction string `json:"direction"`
}

type HealthResponse struct {
	Status      string                 `json:"status"`
	Database    string                 `json:"database"`
	Dataset     *DatasetStatus         `json:"dataset"`
	Maintenance map[string]interface{} `json:"maintenance,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

type DatasetStatus struct {
	Loaded      bool      `json:"loaded"`
	Stale       bool      `json:"stale"`
	Restored    bool      `json:"restored"`
	FetchedAt   time.Time `json:"fetched_at,omitempty"`
	LastUpdated string    `json:"last_updated,omitempty"`
	Checksum    string    `json:"checksum,omitempty"`
	VersionID   string    `json:"version_id,omitempty"`
}

type VersionsResponse struct {
	Versions []models.VersionInfo `json:"versions"`
}

type CleanupResponse struct {
	Deleted []maintenance.VersionCleanupResult `json:"deleted"`
}

// handleStations handles GET /api/stations
func (s *Server) handleStations(w http.ResponseWriter, r *http.Request) {
	var ds *models.Dataset
	if snap := s.deps.Snapshots.Current(); snap != nil {
		ds = snap.Dataset
	}
	writeJSON(w, http.StatusOK, StationsResponse{
		Westbound: schedule.StationsFor(ds, models.Westbound),
		Eastbound: schedule.StationsFor(ds, models.Eastbound),
		Grouped:   schedule.StationGroups(),
	})
}

// handleNext handles GET /api/next?station=&direction=both|eb|wb&count=
func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("station"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "station is required")
		return
	}

	directionArg := strings.ToLower(r.URL.Query().Get("direction"))
	if directionArg == "" {
		directionArg = "both"
	}
	var dir models.Direction
	if directionArg != "both" {
		var ok bool
		if dir, ok = models.ParseDirection(directionArg); !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown direction %q", directionArg))
			return
		}
	}

	count := s.config.DefaultCount
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxCount {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("count must be between 1 and %d", maxCount))
			return
		}
		count = n
	}

	s.freshen(r.Context())

	snap := s.deps.Snapshots.Current()
	if snap == nil || snap.Dataset == nil {
		writeError(w, http.StatusServiceUnavailable, "timetable not loaded yet")
		return
	}

	now := s.deps.Resolver.Now()
	key := strings.Join([]string{
		strings.ToLower(query), directionArg, strconv.Itoa(count),
		now.Format("2006-01-02T15:04"), snap.Checksum(),
	}, "|")

	if cached, err := s.cache.Get(key); err == nil {
		metrics.ResolveCacheCount.WithLabelValues("hit").Inc()
		writeJSON(w, http.StatusOK, stampNext(cached, now))
		return
	}
	metrics.ResolveCacheCount.WithLabelValues("miss").Inc()

	var body interface{}
	if directionArg == "both" {
		board, found := s.deps.Resolver.ResolveBoth(snap.Dataset, query, count)
		if !found {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Station '%s' not found", query))
			return
		}
		body = board
	} else {
		station, ok := schedule.NormalizeStation(query, schedule.StationsFor(snap.Dataset, dir))
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Station '%s' not found", query))
			return
		}
		resp := DirectionResponse{
			Station:   station,
			Direction: dir,
			Trains:    []models.Departure{},
		}
		if resolved := s.deps.Resolver.ResolveAt(snap.Dataset, station, dir, count, now); resolved != nil {
			resp.Trains = resolved.Trains
			resp.Schedule = resolved.Schedule
			resp.ScheduleURL = resolved.ScheduleURL
		}
		body = resp
	}

	if err := s.cache.Set(key, body); err != nil {
		s.logger.Debug("Could not cache response", "error", err)
	}
	writeJSON(w, http.StatusOK, stampNext(body, now))
}

// stampNext sets the server clock fields on a copy of a cached /api/next body.
func stampNext(body interface{}, now time.Time) interface{} {
	switch b := body.(type) {
	case models.Board:
		b.GeneratedAt = now
		return b
	case DirectionResponse:
		b.CurrentTime = now.Format("03:04 PM")
		b.ServerTimeISO = now
		return b
	}
	return body
}

// handleRefresh handles POST /api/refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.deps.Refresher == nil {
		writeError(w, http.StatusServiceUnavailable, "refresh is not configured")
		return
	}

	result, err := s.deps.Refresher.Refresh(r.Context())
	if err != nil {
		s.logger.Error("Manual refresh failed", "error", err)
		writeJSON(w, http.StatusBadGateway, ErrorResponse{
			Error:   "refresh failed",
			Details: map[string]interface{}{"internal": err.Error()},
		})
		return
	}
	if result.Changed {
		s.cache.Purge()
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetPreferences handles GET /api/preferences
func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	if s.deps.Prefs == nil {
		writeError(w, http.StatusServiceUnavailable, "preferences are not configured")
		return
	}

	station, err := s.deps.Prefs.GetOr(r.Context(), db.PrefStation, s.config.DefaultStation)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read preferences")
		return
	}
	direction, err := s.deps.Prefs.GetOr(r.Context(), db.PrefDirection, "both")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read preferences")
		return
	}
	writeJSON(w, http.StatusOK, Preferences{Station: station, Direction: direction})
}

// handlePutPreferences handles PUT /api/preferences. Omitted fields are
// left unchanged.
func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	if s.deps.Prefs == nil {
		writeError(w, http.StatusServiceUnavailable, "preferences are not configured")
		return
	}

	var req Preferences
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	updates := map[string]string{}
	if req.Station != "" {
		var ds *models.Dataset
		if snap := s.deps.Snapshots.Current(); snap != nil {
			ds = snap.Dataset
		}
		station, ok := schedule.NormalizeStation(req.Station, schedule.StationsFor(ds, models.Westbound))
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Station '%s' not found", req.Station))
			return
		}
		updates[db.PrefStation] = station
	}
	if req.Direction != "" {
		direction := strings.ToLower(req.Direction)
		if direction != "both" {
			dir, ok := models.ParseDirection(direction)
			if !ok {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown direction %q", req.Direction))
				return
			}
			direction = string(dir)
		}
		updates[db.PrefDirection] = direction
	}

	for key, value := range updates {
		if err := s.deps.Prefs.Set(r.Context(), key, value); err != nil {
			s.logger.Error("Failed to store preference", "key", key, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to store preferences")
			return
		}
	}

	s.handleGetPreferences(w, r)
}

// handleBoard handles GET /api/board
func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	if s.deps.Board == nil {
		writeError(w, http.StatusServiceUnavailable, "board is not configured")
		return
	}
	board, ok := s.deps.Board.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "board not ready")
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Database:  "not configured",
		Timestamp: time.Now().UTC(),
	}
	status := http.StatusOK

	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.deps.DB.PingContext(ctx); err != nil {
			resp.Status = "error"
			resp.Database = "disconnected"
			status = http.StatusServiceUnavailable
		} else {
			resp.Database = "connected"
		}
	}

	resp.Dataset = s.datasetStatus()
	if !resp.Dataset.Loaded && resp.Status == "ok" {
		resp.Status = "degraded"
	}
	if s.deps.Maintenance != nil {
		resp.Maintenance = s.deps.Maintenance.GetStatus()
	}

	writeJSON(w, status, resp)
}

func (s *Server) datasetStatus() *DatasetStatus {
	snap := s.deps.Snapshots.Current()
	if snap == nil {
		return &DatasetStatus{}
	}
	return &DatasetStatus{
		Loaded:      true,
		Stale:       s.deps.Snapshots.IsStale(s.config.StaleAfter),
		Restored:    snap.Restored,
		FetchedAt:   snap.FetchedAt,
		LastUpdated: snap.Dataset.LastUpdated,
		Checksum:    snap.Checksum(),
		VersionID:   snap.VersionID,
	}
}

// handleVersions handles GET /api/versions
func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Versions == nil {
		writeError(w, http.StatusServiceUnavailable, "version store is not configured")
		return
	}

	versions, err := s.deps.Versions.ListVersions(r.Context())
	if err != nil {
		s.logger.Error("Failed to list timetable versions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list versions")
		return
	}
	if versions == nil {
		versions = []models.VersionInfo{}
	}
	writeJSON(w, http.StatusOK, VersionsResponse{Versions: versions})
}

// handleActivateVersion handles POST /api/versions/{id}/activate. The stored
// version is served until the next refresh publishes a fetched dataset.
func (s *Server) handleActivateVersion(w http.ResponseWriter, r *http.Request) {
	if s.deps.Versions == nil || s.deps.Refresher == nil {
		writeError(w, http.StatusServiceUnavailable, "version store is not configured")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.deps.Versions.ActivateVersion(r.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("version '%s' not found", id))
			return
		}
		s.logger.Error("Failed to activate timetable version", "version_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to activate version")
		return
	}

	if err := s.deps.Refresher.Restore(r.Context()); err != nil {
		s.logger.Error("Failed to load activated version", "version_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "version activated but could not be loaded")
		return
	}
	s.cache.Purge()

	s.logger.Info("Timetable version activated", "version_id", id)
	writeJSON(w, http.StatusOK, s.datasetStatus())
}

// handleCleanup handles POST /api/maintenance/cleanup
func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if s.deps.Maintenance == nil {
		writeError(w, http.StatusServiceUnavailable, "maintenance is not configured")
		return
	}

	results, err := s.deps.Maintenance.TriggerCleanup(r.Context())
	if errors.Is(err, maintenance.ErrRefreshInProgress) {
		writeError(w, http.StatusConflict, "a refresh is storing a version, try again shortly")
		return
	}
	if err != nil {
		s.logger.Error("Manual version cleanup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "cleanup failed")
		return
	}
	if results == nil {
		results = []maintenance.VersionCleanupResult{}
	}
	writeJSON(w, http.StatusOK, CleanupResponse{Deleted: results})
}
