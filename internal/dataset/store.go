package dataset

import (
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/patconext-data/pkg/timetable/models"
)

// Snapshot is an immutable published dataset. Readers hold on to the
// pointer they got; a refresh publishes a new Snapshot rather than editing
// the old one.
type Snapshot struct {
	Dataset   *models.Dataset
	FetchedAt time.Time
	Source    string
	VersionID string
	Restored  bool
}

// Checksum identifies the dataset contents.
func (s *Snapshot) Checksum() string {
	if s == nil || s.Dataset == nil {
		return ""
	}
	return s.Dataset.Checksum
}

type Store struct {
	current atomic.Pointer[Snapshot]
	clock   clock.Clock
}

func NewStore(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.New()
	}
	return &Store{clock: clk}
}

// Current returns the published snapshot, or nil before the first load.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Dataset returns the published dataset, or nil.
func (s *Store) Dataset() *models.Dataset {
	if snap := s.current.Load(); snap != nil {
		return snap.Dataset
	}
	return nil
}

func (s *Store) Publish(snap *Snapshot) {
	s.current.Store(snap)
}

// IsStale reports whether there is no snapshot or it is older than maxAge.
func (s *Store) IsStale(maxAge time.Duration) bool {
	snap := s.current.Load()
	if snap == nil {
		return true
	}
	return s.clock.Since(snap.FetchedAt) > maxAge
}
