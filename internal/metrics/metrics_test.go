package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	r := New()

	r.RunFinished(true, 2)
	r.RunFinished(false, 1)
	r.RunFinished(false, 1)
	r.TileFetched(true)
	r.SweepFailed(3)
	r.SweepFailed(0)
	r.DaysExpired(2)
	r.SnapshotComposed(1704166800)
	r.RateLimitChanged(true)
	r.RateLimitChanged(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.runs.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.tiles.WithLabelValues("success")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.sweepFailures))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.expiredDays))
	assert.Equal(t, 1704166800.0, testutil.ToFloat64(r.lastSnapshot))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.rateLimits.WithLabelValues("limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.rateLimits.WithLabelValues("cleared")))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.RunFinished(true, 1)
		r.TileFetched(false)
		r.SweepFailed(1)
		r.DaysExpired(1)
		r.SnapshotComposed(1)
		r.RateLimitChanged(true)
	})
	assert.NotNil(t, r.Handler())
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := New()
	r.TileFetched(false)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `himawari_tile_fetches_total{outcome="failure"} 1`)
}
