// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RequestDuration = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Name: "patco_request_duration_seconds",
		Help: "Time spent serving API requests",
	}, []string{"route", "status"})

	RefreshCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "patco_refresh_count",
		Help: "Timetable refresh attempts by outcome",
	}, []string{"outcome"})

	FetchErrorCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "patco_fetch_error_count",
		Help: "Number of failed timetable downloads",
	}, []string{"url"})

	DatasetAge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "patco_dataset_fetched_timestamp_seconds",
		Help: "Unix time the current timetable was fetched",
	})

	ResolveCacheCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "patco_resolve_cache_count",
		Help: "Departure lookups served from cache or resolved",
	}, []string{"result"})

	RolloverRejectCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "patco_rollover_reject_count",
		Help: "Timetable columns cut short by a second midnight rollover",
	})
)

const (
	OutcomeUpdated   = "updated"
	OutcomeUnchanged = "unchanged"
	OutcomeFailed    = "failed"
)

func init() {
	prometheus.MustRegister(
		RequestDuration,
		RefreshCount,
		FetchErrorCount,
		DatasetAge,
		ResolveCacheCount,
		RolloverRejectCount,
	)
}

// ObserveRequest records one API request.
func ObserveRequest(route string, status int, start time.Time) {
	RequestDuration.WithLabelValues(route, statusClass(status)).Observe(time.Since(start).Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
