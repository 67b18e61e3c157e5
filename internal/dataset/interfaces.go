package dataset

import (
	"context"

	"github.com/patconext-data/pkg/timetable/models"
)

type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchResult, error)
}

type LinkSource interface {
	Scrape(ctx context.Context, pageURL string) ([]ScheduleLink, error)
}

// VersionStore persists fetched timetables so a restart can serve the last
// good one before the network answers.
type VersionStore interface {
	ActivePayload(ctx context.Context) (*models.VersionInfo, []byte, error)
	HasNewerVersion(ctx context.Context, checksum string) (bool, error)
	CreateNewVersion(ctx context.Context, versionName, sourceURL, lastUpdated, checksum string, payload []byte) (string, error)
}

// RefreshLocker is held while a refresh writes a version.
type RefreshLocker interface {
	LockForRefresh()
	UnlockAfterRefresh()
}
