package dataset

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/patconext-data/internal/common/db"
	"github.com/patconext-data/internal/common/logger"
	"github.com/patconext-data/pkg/timetable/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDataset = `{
  "last_updated": "2025-12-01T08:00:00",
  "standard_url": "",
  "schedules": {
    "standard": {
      "westbound": {"weekday": [["Lindenwold", "Ashland"], ["4:30A", "4:32A"]]}
    },
    "special": {}
  }
}`

const changedDataset = `{
  "last_updated": "2025-12-08T08:00:00",
  "standard_url": "https://www.ridepatco.org/pdf/new.pdf",
  "schedules": {
    "standard": {
      "westbound": {"weekday": [["Lindenwold", "Ashland"], ["4:40A", "4:42A"]]}
    }
  }
}`

const schedulesPage = `<html><body><table><tr>
<td><h2>Timetable</h2><table><tr><td><a href="/pdf/PATCO_Timetable_2025-12-01.pdf">Current Timetable</a></td></tr></table></td>
<td><H2>Special Schedules</H2><table><tr>
  <td><a href="pdf/special/2025-12-24.pdf">Christmas Eve</a></td>
  <td><a href="https://www.ridepatco.org/pdf/special/2025-12-31.pdf"></a></td>
  <td><a href="/news.html">News</a></td>
</tr></table></td>
</tr></table></body></html>`

func testFetcher() *HTTPFetcher {
	f := NewHTTPFetcher(time.Second, logger.Nop())
	f.newBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3)
	}
	return f
}

func TestFetchDecodesDataset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testDataset))
	}))
	defer srv.Close()

	result, err := testFetcher().Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "2025-12-01T08:00:00", result.Dataset.LastUpdated)
	assert.Equal(t, testDataset, string(result.Payload))
	assert.Equal(t, srv.URL, result.URL)
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(testDataset))
	}))
	defer srv.Close()

	_, err := testFetcher().Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())
}

func TestFetchDoesNotRetryMalformed(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"schedules": []}`))
	}))
	defer srv.Close()

	_, err := testFetcher().Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, models.ErrMalformedDataset)
	assert.EqualValues(t, 1, calls.Load())
}

func TestFetchDoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := testFetcher().Fetch(context.Background(), srv.URL)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.EqualValues(t, 1, calls.Load())
}

func TestParseLinks(t *testing.T) {
	base, _ := url.Parse("https://www.ridepatco.org/schedules/schedules.asp")
	links, err := ParseLinks(strings.NewReader(schedulesPage), base)
	require.NoError(t, err)
	require.Len(t, links, 3)

	assert.Equal(t, ScheduleLink{
		URL:      "https://www.ridepatco.org/pdf/PATCO_Timetable_2025-12-01.pdf",
		Filename: "PATCO_Timetable_2025-12-01.pdf",
		Name:     "Current Timetable",
		Kind:     LinkStandard,
	}, links[0])
	assert.Equal(t, "https://www.ridepatco.org/schedules/pdf/special/2025-12-24.pdf", links[1].URL)
	assert.Equal(t, LinkSpecial, links[1].Kind)
	assert.Equal(t, "2025-12-31.pdf", links[2].Name)

	std, ok := FirstOfKind(links, LinkStandard)
	assert.True(t, ok)
	assert.Equal(t, links[0], std)
}

func TestStoreStaleness(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC))
	store := NewStore(mock)

	assert.True(t, store.IsStale(time.Minute))
	assert.Nil(t, store.Dataset())

	store.Publish(&Snapshot{Dataset: &models.Dataset{Checksum: "x"}, FetchedAt: mock.Now()})
	assert.False(t, store.IsStale(15*time.Minute))

	mock.Add(16 * time.Minute)
	assert.True(t, store.IsStale(15*time.Minute))
	assert.Equal(t, "x", store.Current().Checksum())
}

type scriptedFetcher struct {
	bodies []string
	err    error
	calls  int
}

func (f *scriptedFetcher) Fetch(_ context.Context, u string) (*FetchResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	body := f.bodies[0]
	if len(f.bodies) > 1 {
		f.bodies = f.bodies[1:]
	}
	ds, err := models.DecodeBytes([]byte(body))
	if err != nil {
		return nil, err
	}
	return &FetchResult{Dataset: ds, Payload: []byte(body), URL: u}, nil
}

type staticLinks []ScheduleLink

func (l staticLinks) Scrape(context.Context, string) ([]ScheduleLink, error) {
	return l, nil
}

type countingLocker struct{ locks int }

func (l *countingLocker) LockForRefresh()     { l.locks++ }
func (l *countingLocker) UnlockAfterRefresh() {}

func newVersionStore(t *testing.T) *db.VersionChecker {
	t.Helper()
	database, err := db.New("sqlite", ":memory:", logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.EnsureSchema(context.Background()))
	return db.NewVersionChecker(database, nil)
}

func TestRefreshPublishesAndPersistsChanges(t *testing.T) {
	ctx := context.Background()
	versions := newVersionStore(t)
	fetcher := &scriptedFetcher{bodies: []string{testDataset, testDataset, changedDataset}}
	locker := &countingLocker{}
	store := NewStore(nil)

	r := NewRefresher(Config{DataURL: "http://data.test/patco.json", StaleAfter: time.Minute},
		fetcher, store, logger.Nop(),
		WithVersionStore(versions), WithRefreshLocker(locker))

	first, err := r.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, first.Changed)
	assert.NotEmpty(t, first.VersionID)
	assert.NotEmpty(t, first.RunID)

	second, err := r.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.Equal(t, first.VersionID, second.VersionID)
	assert.NotEqual(t, first.RunID, second.RunID)

	third, err := r.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, third.Changed)
	assert.NotEqual(t, first.VersionID, third.VersionID)

	assert.Equal(t, 2, locker.locks)
	assert.Equal(t, "2025-12-08T08:00:00", store.Dataset().LastUpdated)

	active, err := versions.GetActiveVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, third.VersionID, active.VersionID)
}

func TestRefreshFillsStandardURLFromSchedulesPage(t *testing.T) {
	store := NewStore(nil)
	r := NewRefresher(Config{DataURL: "http://data.test", SchedulesPageURL: "http://page.test"},
		&scriptedFetcher{bodies: []string{testDataset}}, store, logger.Nop(),
		WithLinkSource(staticLinks{
			{URL: "http://page.test/special.pdf", Kind: LinkSpecial},
			{URL: "http://page.test/standard.pdf", Kind: LinkStandard},
		}))

	_, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://page.test/standard.pdf", store.Dataset().StandardURL)
}

func TestStartRestoresStoredVersionWhenFetchFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	versions := newVersionStore(t)
	ds, err := models.DecodeBytes([]byte(testDataset))
	require.NoError(t, err)
	id, err := versions.CreateNewVersion(ctx, "seed", "http://data.test", ds.LastUpdated, ds.Checksum, []byte(testDataset))
	require.NoError(t, err)

	store := NewStore(nil)
	r := NewRefresher(Config{DataURL: "http://data.test", Schedule: "@every 1h", StaleAfter: time.Minute},
		&scriptedFetcher{err: errors.New("network down")}, store, logger.Nop(),
		WithVersionStore(versions))

	require.NoError(t, r.Start(ctx))
	defer r.Stop()

	snap := store.Current()
	require.NotNil(t, snap)
	assert.True(t, snap.Restored)
	assert.Equal(t, id, snap.VersionID)
	assert.Equal(t, ds.Checksum, snap.Checksum())
}

func TestStartRejectsBadSchedule(t *testing.T) {
	r := NewRefresher(Config{Schedule: "every now and then"},
		&scriptedFetcher{bodies: []string{testDataset}}, NewStore(nil), logger.Nop())
	assert.Error(t, r.Start(context.Background()))
}

func TestEnsureFresh(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC))
	fetcher := &scriptedFetcher{bodies: []string{testDataset}}
	r := NewRefresher(Config{DataURL: "http://data.test", StaleAfter: 15 * time.Minute},
		fetcher, NewStore(mock), logger.Nop(), WithClock(mock))

	ran, err := r.EnsureFresh(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)

	mock.Add(10 * time.Minute)
	ran, err = r.EnsureFresh(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)

	mock.Add(10 * time.Minute)
	ran, err = r.EnsureFresh(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 2, fetcher.calls)
}

type slowFetcher struct {
	delay time.Duration
	calls atomic.Int32
}

func (f *slowFetcher) Fetch(_ context.Context, u string) (*FetchResult, error) {
	f.calls.Add(1)
	time.Sleep(f.delay)
	ds, err := models.DecodeBytes([]byte(testDataset))
	if err != nil {
		return nil, err
	}
	return &FetchResult{Dataset: ds, Payload: []byte(testDataset), URL: u}, nil
}

func TestEnsureFreshSharesOneRefresh(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC))
	store := NewStore(mock)
	store.Publish(&Snapshot{Dataset: &models.Dataset{Checksum: "old"}, FetchedAt: mock.Now().Add(-time.Hour)})

	fetcher := &slowFetcher{delay: 50 * time.Millisecond}
	r := NewRefresher(Config{DataURL: "http://data.test", StaleAfter: 15 * time.Minute},
		fetcher, store, logger.Nop(), WithClock(mock))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.EnsureFresh(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), fetcher.calls.Load())
	assert.False(t, store.IsStale(15*time.Minute))
}

func TestEnsureFreshStopsWaitingOnCancel(t *testing.T) {
	mock := clock.NewMock()
	fetcher := &slowFetcher{delay: 200 * time.Millisecond}
	store := NewStore(mock)
	r := NewRefresher(Config{DataURL: "http://data.test", StaleAfter: 15 * time.Minute},
		fetcher, store, logger.Nop(), WithClock(mock))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.EnsureFresh(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// the shared refresh still completes
	require.Eventually(t, func() bool { return store.Current() != nil }, 2*time.Second, 10*time.Millisecond)
}
