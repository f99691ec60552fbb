package flow

import "math"

// SignificanceFilter drops tickers whose aggregated flow is too small to surface
type SignificanceFilter struct {
	th SignificanceThresholds
}

// NewSignificanceFilter creates a filter; thresholds are expected to be validated
func NewSignificanceFilter(th SignificanceThresholds) *SignificanceFilter {
	return &SignificanceFilter{th: th}
}

// Thresholds returns the thresholds in use
func (f *SignificanceFilter) Thresholds() SignificanceThresholds {
	return f.th
}

// Keep reports |gamma| >= Gamma OR |delta| >= Delta
func (f *SignificanceFilter) Keep(m TickerMetrics) bool {
	return math.Abs(m.GammaExposure) >= f.th.Gamma || math.Abs(m.DeltaFlow) >= f.th.Delta
}

// Apply returns a new result holding only the significant entries.
// Applying it to its own output returns the same set.
func (f *SignificanceFilter) Apply(results BatchResult) BatchResult {
	out := make(BatchResult, len(results))
	for ticker, m := range results {
		if f.Keep(m) {
			out[ticker] = m
		}
	}
	return out
}
