// Package features projects permissive raw evidence into the strict,
// domain-grouped DerivedFeatures vector. Every function here is pure and
// deterministic: identical evidence produces byte-identical features.
package features

import (
	"sort"

	"github.com/tarkyaio/tarka/pkg/models"
)

// Percentile computes the deterministic percentile of values: sort
// ascending, pick index floor((n-1)*p). Empty input returns nil.
// Type coercion upstream is lenient, so values arrive already filtered.
func Percentile(values []float64, p float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	idx := int(float64(len(sorted)-1) * p)
	v := sorted[idx]
	return &v
}

// seriesValues flattens all parseable sample values across series.
// Unparseable samples are skipped, never fatal.
func seriesValues(series []models.MetricSeries) []float64 {
	var out []float64
	for _, s := range series {
		for _, point := range s.Values {
			if f, ok := point.Float(); ok {
				out = append(out, f)
			}
		}
	}
	return out
}

// seriesValuesForContainer flattens values from series whose container label
// matches. Empty container matches everything.
func seriesValuesForContainer(series []models.MetricSeries, container string) []float64 {
	if container == "" {
		return seriesValues(series)
	}
	var out []float64
	for _, s := range series {
		if s.Metric["container"] != container {
			continue
		}
		for _, point := range s.Values {
			if f, ok := point.Float(); ok {
				out = append(out, f)
			}
		}
	}
	return out
}

// maxSeriesValue returns the maximum parseable value, or nil when none.
func maxSeriesValue(series []models.MetricSeries) *float64 {
	values := seriesValues(series)
	if len(values) == 0 {
		return nil
	}
	max := values[0]
	for _, v := range values[1:] {
		if v > max {
			max = v
		}
	}
	return &max
}

// latestSeriesValue returns the most recent parseable value across series.
func latestSeriesValue(series []models.MetricSeries) *float64 {
	var (
		best   *float64
		bestTs float64
	)
	for _, s := range series {
		for _, point := range s.Values {
			f, ok := point.Float()
			if !ok {
				continue
			}
			if best == nil || point.Ts >= bestTs {
				v := f
				best = &v
				bestTs = point.Ts
			}
		}
	}
	return best
}
