package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"
	"github.com/patconext-data/internal/common/logger"
	"github.com/patconext-data/internal/common/metrics"
	"github.com/patconext-data/pkg/timetable/models"
)

const (
	defaultFetchTimeout = 30 * time.Second
	maxDatasetBytes     = 16 << 20
)

// FetchResult is a decoded dataset plus the bytes it was decoded from.
type FetchResult struct {
	Dataset *models.Dataset
	Payload []byte
	URL     string
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s returned status %d", e.URL, e.StatusCode)
}

type HTTPFetcher struct {
	client     *http.Client
	logger     logger.Logger
	newBackOff func() backoff.BackOff
}

func NewHTTPFetcher(timeout time.Duration, logger logger.Logger) *HTTPFetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		logger:     logger,
		newBackOff: defaultBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     time.Second,
		RandomizationFactor: 0.2,
		Multiplier:          2,
		MaxInterval:         30 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return backoff.WithMaxRetries(b, 4)
}

// Fetch downloads and decodes the dataset at url, retrying transient
// failures. Malformed documents and 4xx responses are not retried.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*FetchResult, error) {
	b := backoff.WithContext(f.newBackOff(), ctx)

	result, err := backoff.RetryNotifyWithData(
		func() (*FetchResult, error) {
			result, err := f.fetchOnce(ctx, url)
			if err == nil {
				return result, nil
			}
			var statusErr *StatusError
			if errors.Is(err, models.ErrMalformedDataset) ||
				(errors.As(err, &statusErr) && statusErr.StatusCode < 500) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		},
		b,
		func(err error, d time.Duration) {
			f.logger.Warn("Dataset fetch failed, backing off", "url", url, "retry_in", d, "error", err)
		},
	)
	if err != nil {
		metrics.FetchErrorCount.WithLabelValues(url).Inc()
		return nil, err
	}
	return result, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, url string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	f.logger.Debug("Fetching dataset", "url", url)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxDatasetBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if len(payload) > maxDatasetBytes {
		return nil, fmt.Errorf("%w: document larger than %s", models.ErrMalformedDataset, humanize.Bytes(maxDatasetBytes))
	}

	ds, err := models.DecodeBytes(payload)
	if err != nil {
		return nil, err
	}

	f.logger.Info("Dataset fetched",
		"url", url,
		"size", humanize.Bytes(uint64(len(payload))),
		"last_updated", ds.LastUpdated,
		"special_schedules", len(ds.Special))

	return &FetchResult{Dataset: ds, Payload: payload, URL: url}, nil
}
