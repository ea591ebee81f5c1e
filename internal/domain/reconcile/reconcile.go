// Package reconcile compares tracked attributed value against the value ad
// platforms claim for the same dimensions and flags material disagreements.
package reconcile

import "math"

// Anomaly describes one dimension whose tracked and platform-reported values
// disagree beyond the configured threshold.
type Anomaly struct {
	Dimension   string  `json:"dimension"`
	Attributed  float64 `json:"attributed"`
	Reported    float64 `json:"reported"`
	Delta       float64 `json:"delta"`
	LikelyCause string  `json:"likely_cause"`
}

// Checker flags attributed-vs-reported deltas past a relative threshold.
type Checker struct {
	threshold float64
}

// New builds a Checker. threshold is the relative delta above which a
// dimension is anomalous, e.g. 0.25 for 25 percent.
func New(threshold float64) *Checker {
	if threshold <= 0 {
		threshold = 0.25
	}
	return &Checker{threshold: threshold}
}

// Delta returns |attributed - reported| / max(attributed, reported). It is
// symmetric in its arguments. Zero on both sides is zero delta.
func (c *Checker) Delta(attributed, reported float64) float64 {
	a, b := math.Abs(attributed), math.Abs(reported)
	denom := math.Max(a, b)
	if denom == 0 {
		return 0
	}
	return math.Abs(attributed-reported) / denom
}

// Check evaluates one dimension and returns its anomaly when the delta
// crosses the threshold.
func (c *Checker) Check(dimension string, attributed, reported float64) (Anomaly, bool) {
	delta := c.Delta(attributed, reported)
	if delta <= c.threshold {
		return Anomaly{}, false
	}
	return Anomaly{
		Dimension:   dimension,
		Attributed:  attributed,
		Reported:    reported,
		Delta:       delta,
		LikelyCause: likelyCause(attributed, reported),
	}, true
}

func likelyCause(attributed, reported float64) string {
	if reported > attributed {
		return "platform over-reporting or tracking gaps on site (missing pixel coverage, consent blocking)"
	}
	return "platform under-reporting or view-through conversions not claimed by the platform"
}
