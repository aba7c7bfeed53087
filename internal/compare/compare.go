// Package compare decides whether a stored market value should be replaced by a
// freshly fetched one and whether the change is large enough to need review.
package compare

import "math"

// Named review thresholds, in percent. They are independent knobs: the anomaly
// ceiling drives manual-review flags, the other two only affect report grouping.
const (
	AnomalyCeilingPercent  = 15.0
	SecondaryReviewPercent = 10.0
	HighPriorityPercent    = 5.0
)

// Result is the outcome of comparing one stored value with one fetched value.
type Result struct {
	NeedsUpdate bool
	PercentDiff float64
}

// Compare computes the deviation of fetched from stored, normalized to stored.
// An update is needed only when the deviation is strictly above thresholdPercent.
func Compare(stored, fetched, thresholdPercent float64) Result {
	if stored == 0 && fetched == 0 {
		return Result{}
	}
	if stored == 0 {
		return Result{NeedsUpdate: true, PercentDiff: 100}
	}
	diff := PercentDiff(stored, fetched)
	return Result{
		NeedsUpdate: diff > thresholdPercent,
		PercentDiff: diff,
	}
}

// DetectAnomaly reports whether the deviation exceeds ceilingPercent. A zero
// stored value has no baseline and is never anomalous.
func DetectAnomaly(stored, fetched, ceilingPercent float64) bool {
	if stored == 0 {
		return false
	}
	return PercentDiff(stored, fetched) > ceilingPercent
}

// PercentDiff returns |fetched-stored|/|stored|*100. stored must be non-zero.
func PercentDiff(stored, fetched float64) float64 {
	return math.Abs(fetched-stored) / math.Abs(stored) * 100
}

// Thresholds groups the three review levels so callers can override them.
type Thresholds struct {
	AnomalyCeiling  float64
	SecondaryReview float64
	HighPriority    float64
}

// DefaultThresholds returns the built-in review levels.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AnomalyCeiling:  AnomalyCeilingPercent,
		SecondaryReview: SecondaryReviewPercent,
		HighPriority:    HighPriorityPercent,
	}
}

// WithDefaults fills non-positive levels with the built-in values.
func (t Thresholds) WithDefaults() Thresholds {
	d := DefaultThresholds()
	if t.AnomalyCeiling <= 0 {
		t.AnomalyCeiling = d.AnomalyCeiling
	}
	if t.SecondaryReview <= 0 {
		t.SecondaryReview = d.SecondaryReview
	}
	if t.HighPriority <= 0 {
		t.HighPriority = d.HighPriority
	}
	return t
}
