package compare

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompare_AsymmetricNormalization(t *testing.T) {
	up := Compare(100, 110, 5)
	assert.True(t, up.NeedsUpdate)
	assert.InDelta(t, 10.0, up.PercentDiff, 1e-9)

	down := Compare(110, 100, 5)
	assert.True(t, down.NeedsUpdate)
	assert.InDelta(t, 9.0909, down.PercentDiff, 1e-3)

	assert.NotEqual(t, up.PercentDiff, down.PercentDiff)
}

func TestCompare_ZeroBaseline(t *testing.T) {
	for _, threshold := range []float64{0, 0.1, 50, 1000} {
		assert.Equal(t, Result{}, Compare(0, 0, threshold))
		assert.Equal(t, Result{NeedsUpdate: true, PercentDiff: 100}, Compare(0, 50, threshold))
	}
}

func TestCompare_ThresholdBoundary(t *testing.T) {
	assert.False(t, Compare(100, 100.1, 0.1).NeedsUpdate)
	assert.True(t, Compare(100, 100.11, 0.1).NeedsUpdate)
	assert.False(t, Compare(200, 210, 5).NeedsUpdate)
}

func TestCompare_ZeroThreshold(t *testing.T) {
	assert.False(t, Compare(1.5, 1.5, 0).NeedsUpdate)
	assert.True(t, Compare(1.5, 1.51, 0).NeedsUpdate)
	assert.True(t, Compare(-2, -1, 0).NeedsUpdate)
}

func TestCompare_NegativeStored(t *testing.T) {
	r := Compare(-50, -55, 5)
	assert.True(t, r.NeedsUpdate)
	assert.InDelta(t, 10.0, r.PercentDiff, 1e-9)
}

func TestCompare_KoreanETFPrice(t *testing.T) {
	r := Compare(35820, 36000, 0.1)
	assert.True(t, r.NeedsUpdate)
	assert.InDelta(t, 0.5025, r.PercentDiff, 1e-3)
}

func TestDetectAnomaly(t *testing.T) {
	assert.True(t, DetectAnomaly(100, 120, AnomalyCeilingPercent))
	assert.False(t, DetectAnomaly(100, 115, AnomalyCeilingPercent))
	assert.False(t, DetectAnomaly(100, 110, AnomalyCeilingPercent))
	assert.False(t, DetectAnomaly(0, 1_000_000, AnomalyCeilingPercent))
	assert.True(t, DetectAnomaly(100, 80, AnomalyCeilingPercent))
}

func TestDetectAnomaly_IndependentOfThreshold(t *testing.T) {
	// A zero-threshold rule always updates and can still be anomalous.
	assert.True(t, Compare(100, 120, 0).NeedsUpdate)
	assert.True(t, DetectAnomaly(100, 120, AnomalyCeilingPercent))
}

func TestThresholds_WithDefaults(t *testing.T) {
	got := Thresholds{SecondaryReview: 12}.WithDefaults()
	assert.InDelta(t, 15.0, got.AnomalyCeiling, 1e-9)
	assert.InDelta(t, 12.0, got.SecondaryReview, 1e-9)
	assert.InDelta(t, 5.0, got.HighPriority, 1e-9)
	assert.Equal(t, DefaultThresholds(), Thresholds{}.WithDefaults())
}
