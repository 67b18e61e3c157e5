// Package board keeps a departure board for the preferred station current,
// re-resolving it on a fixed interval independent of dataset refreshes.
package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/patconext-data/internal/common/db"
	"github.com/patconext-data/internal/common/logger"
	"github.com/patconext-data/internal/schedule"
	"github.com/patconext-data/pkg/timetable/models"
)

var (
	ErrNoDataset      = errors.New("no timetable loaded")
	ErrUnknownStation = errors.New("unknown station")
)

type DatasetSource interface {
	Dataset() *models.Dataset
}

type PreferenceSource interface {
	GetOr(ctx context.Context, key, fallback string) (string, error)
}

// Freshener re-fetches the dataset when it has gone stale.
type Freshener interface {
	EnsureFresh(ctx context.Context) (bool, error)
}

type Config struct {
	Interval       time.Duration
	Count          int
	DefaultStation string
}

type Manager struct {
	config    Config
	resolver  *schedule.Resolver
	datasets  DatasetSource
	prefs     PreferenceSource
	freshener Freshener
	clock     clock.Clock
	logger    logger.Logger

	mu        sync.RWMutex
	latest    *models.Board
	isRunning bool
	cancelFn  context.CancelFunc
	done      chan struct{}
}

// NewManager wires a board manager. prefs and freshener may be nil.
func NewManager(cfg Config, resolver *schedule.Resolver, datasets DatasetSource, prefs PreferenceSource, freshener Freshener, clk clock.Clock, log logger.Logger) *Manager {
	if clk == nil {
		clk = clock.New()
	}
	return &Manager{
		config:    cfg,
		resolver:  resolver,
		datasets:  datasets,
		prefs:     prefs,
		freshener: freshener,
		clock:     clk,
		logger:    log,
	}
}

func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isRunning {
		return fmt.Errorf("board manager is already running")
	}
	if err := m.validateConfig(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancelFn = cancel
	m.done = make(chan struct{})
	m.isRunning = true

	go m.loop(ctx, m.done)

	m.logger.Info("Board manager started",
		"interval", m.config.Interval,
		"count", m.config.Count)
	return nil
}

func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return
	}
	m.cancelFn()
	done := m.done
	m.isRunning = false
	m.mu.Unlock()

	<-done
	m.logger.Info("Board manager stopped")
}

func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isRunning
}

// Latest returns the most recently published board.
func (m *Manager) Latest() (*models.Board, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest, m.latest != nil
}

func (m *Manager) validateConfig() error {
	if m.config.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if m.config.Count <= 0 {
		return fmt.Errorf("count must be positive")
	}
	if m.resolver == nil || m.datasets == nil {
		return fmt.Errorf("resolver and dataset source are required")
	}
	return nil
}

func (m *Manager) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := m.clock.Ticker(m.config.Interval)
	defer ticker.Stop()

	m.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Manager) tick(ctx context.Context) {
	if m.freshener != nil {
		if _, err := m.freshener.EnsureFresh(ctx); err != nil {
			m.logger.Warn("Stale timetable could not be refreshed", "error", err)
		}
	}
	if _, err := m.Update(ctx); err != nil {
		m.logger.Warn("Board update skipped", "error", err)
	}
}

// Update resolves the board for the preferred station and direction and
// publishes it.
func (m *Manager) Update(ctx context.Context) (*models.Board, error) {
	station, direction := m.config.DefaultStation, "both"
	if m.prefs != nil {
		var err error
		if station, err = m.prefs.GetOr(ctx, db.PrefStation, m.config.DefaultStation); err != nil {
			return nil, fmt.Errorf("reading station preference: %w", err)
		}
		if direction, err = m.prefs.GetOr(ctx, db.PrefDirection, "both"); err != nil {
			return nil, fmt.Errorf("reading direction preference: %w", err)
		}
	}

	ds := m.datasets.Dataset()
	if ds == nil {
		return nil, ErrNoDataset
	}

	board, found := m.resolver.ResolveBoth(ds, station, m.config.Count)
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStation, station)
	}

	if dir, ok := models.ParseDirection(direction); ok {
		if dir == models.Eastbound {
			board.Westbound = nil
		} else {
			board.Eastbound = nil
		}
	}

	m.mu.Lock()
	m.latest = &board
	m.mu.Unlock()

	m.logger.Debug("Board updated",
		"station", board.Station,
		"eastbound", countTrains(board.Eastbound),
		"westbound", countTrains(board.Westbound))

	return &board, nil
}

func countTrains(rd *models.ResolvedDirection) int {
	if rd == nil {
		return 0
	}
	return len(rd.Trains)
}
