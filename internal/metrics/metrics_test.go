package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.Verdict("valid", 0.2)
	r.Verdict("suspect", 0.4)
	r.Verdict("suspect", 0.1)
	r.SignalFailed("upload")
	r.Fallback()
	r.Latched()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.verdicts.WithLabelValues("suspect")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.signalFailures.WithLabelValues("upload")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.fallbacks))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.latches))

	count, err := testutil.GatherAndCount(reg, "certverify_analyze_duration_seconds")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}
