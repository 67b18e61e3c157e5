package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(200))
	assert.Equal(t, "3xx", statusClass(304))
	assert.Equal(t, "4xx", statusClass(404))
	assert.Equal(t, "5xx", statusClass(503))
}

func TestRefreshCounter(t *testing.T) {
	before := testutil.ToFloat64(RefreshCount.WithLabelValues(OutcomeUnchanged))
	RefreshCount.WithLabelValues(OutcomeUnchanged).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(RefreshCount.WithLabelValues(OutcomeUnchanged)))
}
