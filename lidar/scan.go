// Package lidar defines the laser scan value type consumed by the planner.
// The sensor driver and transport delivering scans live outside this module.
package lidar

import (
	"math"

	"github.com/pkg/errors"
)

// Scan is a single sweep of range measurements, ordered by angle. AngleMin is
// the angle of Ranges[0]; successive entries advance by AngleIncrement.
type Scan struct {
	AngleMin       float64
	AngleMax       float64
	AngleIncrement float64
	Ranges         []float64
}

// AngleAt returns the beam angle of the i-th range entry.
func (s Scan) AngleAt(i int) float64 {
	return s.AngleMin + float64(i)*s.AngleIncrement
}

// Validate checks that the scan geometry is self-consistent.
func (s Scan) Validate() error {
	if len(s.Ranges) == 0 {
		return errors.New("scan has no ranges")
	}
	if s.AngleIncrement <= 0 {
		return errors.Errorf("scan angle increment must be positive, got %f", s.AngleIncrement)
	}
	if s.AngleMax <= s.AngleMin {
		return errors.Errorf("scan angle range [%f, %f] is empty", s.AngleMin, s.AngleMax)
	}
	return nil
}

// FilterRanges sanitizes raw ranges for reactive use: NaN reads become 0
// (treated as blocked) and infinite or over-range reads clamp to maxUsable
// (treated as fully open). The input slice is not modified.
func FilterRanges(ranges []float64, maxUsable float64) []float64 {
	filtered := make([]float64, len(ranges))
	for i, r := range ranges {
		switch {
		case math.IsNaN(r):
			filtered[i] = 0
		case math.IsInf(r, 0) || r > maxUsable:
			filtered[i] = maxUsable
		default:
			filtered[i] = r
		}
	}
	return filtered
}

// ClosestIndex returns the index of the minimum range.
func ClosestIndex(ranges []float64) int {
	minIdx := 0
	for i, r := range ranges {
		if r < ranges[minIdx] {
			minIdx = i
		}
	}
	return minIdx
}
