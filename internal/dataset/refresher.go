package dataset

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/patconext-data/internal/common/db"
	"github.com/patconext-data/internal/common/logger"
	"github.com/patconext-data/internal/common/metrics"
	"github.com/patconext-data/internal/schedule"
	"github.com/patconext-data/pkg/timetable/models"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"
)

type Config struct {
	DataURL          string
	SchedulesPageURL string
	Schedule         string // cron spec, e.g. "@every 15m"
	StaleAfter       time.Duration
}

// RefreshResult summarizes one refresh run.
type RefreshResult struct {
	RunID     string    `json:"run_id"`
	Checksum  string    `json:"checksum"`
	Changed   bool      `json:"changed"`
	VersionID string    `json:"version_id,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Refresher keeps the Store current: on a cron schedule, on demand, and when
// a reader finds the snapshot stale.
type Refresher struct {
	config   Config
	fetcher  Fetcher
	links    LinkSource
	versions VersionStore
	locker   RefreshLocker
	store    *Store
	clock    clock.Clock
	logger   logger.Logger

	refreshMu  sync.Mutex
	flight     singleflight.Group
	knownLinks map[string]bool
	mu         sync.Mutex
	cron       *cron.Cron
	running    bool
}

type Option func(*Refresher)

// WithVersionStore persists changed datasets and restores the last one on
// start.
func WithVersionStore(vs VersionStore) Option {
	return func(r *Refresher) { r.versions = vs }
}

// WithLinkSource fills a missing standard_url from the schedules page.
func WithLinkSource(ls LinkSource) Option {
	return func(r *Refresher) { r.links = ls }
}

func WithRefreshLocker(l RefreshLocker) Option {
	return func(r *Refresher) { r.locker = l }
}

func WithClock(c clock.Clock) Option {
	return func(r *Refresher) { r.clock = c }
}

func NewRefresher(config Config, fetcher Fetcher, store *Store, logger logger.Logger, opts ...Option) *Refresher {
	r := &Refresher{
		config:     config,
		fetcher:    fetcher,
		store:      store,
		clock:      clock.New(),
		logger:     logger,
		knownLinks: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start loads an initial dataset and schedules periodic refreshes. When the
// first fetch fails the last stored version is served instead.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("refresher already running")
	}

	c := cron.New(
		cron.WithLocation(schedule.HomeZone),
		cron.WithLogger(cronLogger{r.logger}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{r.logger})),
	)
	if _, err := c.AddFunc(r.config.Schedule, func() {
		if _, err := r.Refresh(ctx); err != nil {
			r.logger.Error("Scheduled refresh failed", "error", err)
		}
	}); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("parsing refresh schedule %q: %w", r.config.Schedule, err)
	}
	r.cron = c
	r.running = true
	r.mu.Unlock()

	r.logger.Info("Starting timetable refresher",
		"data_url", r.config.DataURL,
		"schedule", r.config.Schedule,
		"stale_after", r.config.StaleAfter)

	if _, err := r.Refresh(ctx); err != nil {
		r.logger.Error("Initial refresh failed", "error", err)
		if r.store.Current() == nil && r.versions != nil {
			if err := r.Restore(ctx); IsNoStoredVersion(err) {
				r.logger.Warn("No stored timetable to fall back on")
			} else if err != nil {
				r.logger.Error("Restoring stored timetable failed", "error", err)
			}
		}
	}

	c.Start()
	return nil
}

func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	<-r.cron.Stop().Done()
	r.running = false
	r.logger.Info("Timetable refresher stopped")
}

// Restore publishes the active stored version.
func (r *Refresher) Restore(ctx context.Context) error {
	if r.versions == nil {
		return fmt.Errorf("no version store configured")
	}

	info, payload, err := r.versions.ActivePayload(ctx)
	if err != nil {
		return fmt.Errorf("loading active version: %w", err)
	}
	ds, err := models.DecodeBytes(payload)
	if err != nil {
		return fmt.Errorf("decoding stored version %s: %w", info.VersionID, err)
	}

	r.store.Publish(&Snapshot{
		Dataset:   ds,
		FetchedAt: info.CreatedAt,
		Source:    info.SourceURL,
		VersionID: info.VersionID,
		Restored:  true,
	})
	metrics.DatasetAge.Set(float64(info.CreatedAt.Unix()))

	r.logger.Info("Restored stored timetable",
		"version_id", info.VersionID,
		"version_name", info.VersionName,
		"created_at", info.CreatedAt)
	return nil
}

// EnsureFresh refreshes when the published snapshot is missing or older than
// the stale threshold. It reports whether a refresh ran. Concurrent callers
// share one refresh; a caller whose ctx ends stops waiting but the refresh
// carries on for the others.
func (r *Refresher) EnsureFresh(ctx context.Context) (bool, error) {
	if !r.store.IsStale(r.config.StaleAfter) {
		return false, nil
	}

	ch := r.flight.DoChan("ensure-fresh", func() (interface{}, error) {
		// a previous flight may have published while this caller queued
		if !r.store.IsStale(r.config.StaleAfter) {
			return false, nil
		}
		r.logger.Debug("Timetable is stale, refreshing", "stale_after", r.config.StaleAfter)
		_, err := r.Refresh(context.WithoutCancel(ctx))
		return true, err
	})

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res := <-ch:
		ran, _ := res.Val.(bool)
		return ran, res.Err
	}
}

// Refresh fetches the dataset and publishes it. Runs are serialized.
func (r *Refresher) Refresh(ctx context.Context) (*RefreshResult, error) {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	runID := uuid.NewString()
	start := r.clock.Now()

	fetched, err := r.fetcher.Fetch(ctx, r.config.DataURL)
	if err != nil {
		metrics.RefreshCount.WithLabelValues(metrics.OutcomeFailed).Inc()
		return nil, fmt.Errorf("refresh %s: fetching dataset: %w", runID, err)
	}
	ds := fetched.Dataset

	r.applyPublishedLinks(ctx, ds)

	previous := r.store.Current()
	result := &RefreshResult{
		RunID:     runID,
		Checksum:  ds.Checksum,
		Changed:   previous.Checksum() != ds.Checksum,
		FetchedAt: r.clock.Now(),
	}

	if r.versions != nil {
		versionID, err := r.persist(ctx, fetched)
		if err != nil {
			// the fresh dataset is still served from memory
			r.logger.Warn("Failed to store timetable version", "run_id", runID, "error", err)
		}
		result.VersionID = versionID
	}
	if result.VersionID == "" && previous != nil && !result.Changed {
		result.VersionID = previous.VersionID
	}

	r.store.Publish(&Snapshot{
		Dataset:   ds,
		FetchedAt: result.FetchedAt,
		Source:    fetched.URL,
		VersionID: result.VersionID,
	})
	metrics.DatasetAge.Set(float64(result.FetchedAt.Unix()))

	outcome := metrics.OutcomeUnchanged
	if result.Changed {
		outcome = metrics.OutcomeUpdated
	}
	metrics.RefreshCount.WithLabelValues(outcome).Inc()

	r.logger.Info("Timetable refreshed",
		"run_id", runID,
		"changed", result.Changed,
		"checksum", ds.Checksum,
		"version_id", result.VersionID,
		"duration", r.clock.Since(start))

	return result, nil
}

func (r *Refresher) persist(ctx context.Context, fetched *FetchResult) (string, error) {
	ds := fetched.Dataset
	newer, err := r.versions.HasNewerVersion(ctx, ds.Checksum)
	if err != nil {
		return "", err
	}
	if !newer {
		return "", nil
	}

	if r.locker != nil {
		r.locker.LockForRefresh()
		defer r.locker.UnlockAfterRefresh()
	}

	name := ds.LastUpdated
	if name == "" {
		name = r.clock.Now().In(schedule.HomeZone).Format("2006-01-02 15:04")
	}
	return r.versions.CreateNewVersion(ctx, name, fetched.URL, ds.LastUpdated, ds.Checksum, fetched.Payload)
}

// applyPublishedLinks fills a missing standard_url from the schedules page
// and logs special schedules published since the last run.
func (r *Refresher) applyPublishedLinks(ctx context.Context, ds *models.Dataset) {
	if r.links == nil || r.config.SchedulesPageURL == "" {
		return
	}

	links, err := r.links.Scrape(ctx, r.config.SchedulesPageURL)
	if err != nil {
		r.logger.Warn("Could not read schedules page", "url", r.config.SchedulesPageURL, "error", err)
		return
	}

	if ds.StandardURL == "" {
		if link, ok := FirstOfKind(links, LinkStandard); ok {
			ds.StandardURL = link.URL
		}
	}

	first := len(r.knownLinks) == 0
	for _, link := range links {
		if r.knownLinks[link.URL] {
			continue
		}
		r.knownLinks[link.URL] = true
		if !first && link.Kind == LinkSpecial {
			r.logger.Info("New special schedule published", "name", link.Name, "url", link.URL)
		}
	}
}

type cronLogger struct {
	logger logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

// IsNoStoredVersion reports whether err means nothing was ever stored.
func IsNoStoredVersion(err error) bool {
	return errors.Is(err, db.ErrNotFound)
}
