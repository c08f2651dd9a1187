// Package gapfollow implements reactive gap following: given a filtered
// laser scan it proposes steering headings toward the widest clear sectors,
// independent of any map. The planner uses these headings only when no
// reference waypoint is reachable.
package gapfollow

import (
	"math"

	"github.com/pkg/errors"

	"github.com/f1tenth/raceplan/lidar"
)

// ErrNoAcceptedGap means no clear sector wide enough for the vehicle exists
// in the current scan.
var ErrNoAcceptedGap = errors.New("no gap wide enough to accept")

// Config holds the gap follower tuning.
type Config struct {
	// FOVDegrees is the total field of view retained around the scan center.
	FOVDegrees float64 `json:"fov_degrees"`
	// MaxUsableRange clamps long and infinite returns.
	MaxUsableRange float64 `json:"max_usable_range"`
	// BubbleRadius is the linear safety radius cleared around the closest
	// obstacle, in meters.
	BubbleRadius float64 `json:"bubble_radius"`
	// GapThreshold is the minimum range for a beam to count as clear.
	GapThreshold float64 `json:"gap_threshold"`
	// MinGapSize is the minimum run length, in beams, for an accepted gap.
	MinGapSize int `json:"min_gap_size"`
}

// Validate returns an error if the tuning is unusable.
func (c Config) Validate() error {
	if c.FOVDegrees <= 0 || c.FOVDegrees > 360 {
		return errors.Errorf("fov %f degrees out of range", c.FOVDegrees)
	}
	if c.MaxUsableRange <= 0 {
		return errors.New("max usable range must be positive")
	}
	if c.BubbleRadius <= 0 {
		return errors.New("bubble radius must be positive")
	}
	if c.GapThreshold <= 0 {
		return errors.New("gap threshold must be positive")
	}
	if c.MinGapSize <= 0 {
		return errors.New("min gap size must be positive")
	}
	return nil
}

// window is the truncation window over the raw scan, fixed from the first
// scan received; the sensor's field of view does not change over its
// lifetime.
type window struct {
	start          int
	end            int
	angleIncrement float64
}

// Follower turns scans into candidate headings. Not safe for concurrent use;
// the planner serializes scan handling.
type Follower struct {
	cfg Config
	win *window
}

// NewFollower validates the config and returns a follower.
func NewFollower(cfg Config) (*Follower, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid gap follower config")
	}
	return &Follower{cfg: cfg}, nil
}

// CandidateHeadings returns the headings of all accepted gaps in the scan,
// in scan order. The heading is relative to the vehicle's forward axis. When
// no gap is wide enough the returned slice is empty and ErrNoAcceptedGap is
// returned.
func (f *Follower) CandidateHeadings(scan lidar.Scan) ([]float64, error) {
	if err := scan.Validate(); err != nil {
		return nil, errors.Wrap(err, "cannot follow gaps")
	}
	if f.win == nil {
		f.win = truncationWindow(scan, f.cfg.FOVDegrees)
	}

	filtered := lidar.FilterRanges(scan.Ranges[f.win.start:f.win.end], f.cfg.MaxUsableRange)
	if len(filtered) == 0 {
		// a scan with fewer beams than the field of view collapses the
		// window to nothing
		return nil, ErrNoAcceptedGap
	}

	closest := lidar.ClosestIndex(filtered)
	f.eliminateBubble(filtered, closest)

	mids := findGapMidpoints(filtered, f.cfg.GapThreshold, f.cfg.MinGapSize)
	if len(mids) == 0 {
		return nil, ErrNoAcceptedGap
	}

	center := len(filtered) / 2
	headings := make([]float64, 0, len(mids))
	for _, mid := range mids {
		headings = append(headings, float64(mid-center)*f.win.angleIncrement)
	}
	return headings, nil
}

// truncationWindow centers a fixed field of view on the scan array midpoint.
func truncationWindow(scan lidar.Scan, fovDegrees float64) *window {
	n := len(scan.Ranges)
	span := scan.AngleMax - scan.AngleMin
	keep := int(fovDegrees * math.Pi / 180 / span * float64(n))
	if keep > n {
		keep = n
	}
	start := n/2 - keep/2
	end := n/2 + keep/2
	if start < 0 {
		start = 0
	}
	if end > n {
		end = n
	}
	return &window{start: start, end: end, angleIncrement: scan.AngleIncrement}
}

// eliminateBubble zeroes all beams within the safety bubble around the
// closest return. The bubble's angular half-width grows as the obstacle gets
// closer.
func (f *Follower) eliminateBubble(ranges []float64, closest int) {
	dist := ranges[closest]
	if dist <= 0 {
		// already touching: blank only the closest beam, the gap threshold
		// rejects its neighbors anyway
		ranges[closest] = 0
		return
	}
	halfWidth := int(math.Round(f.cfg.BubbleRadius / dist / f.win.angleIncrement))
	start := closest - halfWidth
	end := closest + halfWidth
	if start < 0 {
		start = 0
	}
	if end > len(ranges)-1 {
		end = len(ranges) - 1
	}
	for i := start; i <= end; i++ {
		ranges[i] = 0
	}
}

// findGapMidpoints returns the midpoint index of every maximal run of beams
// above the clear threshold that is long enough to fit the vehicle.
func findGapMidpoints(ranges []float64, gapThreshold float64, minGapSize int) []int {
	var mids []int
	i := 0
	for i < len(ranges) {
		if ranges[i] <= gapThreshold {
			i++
			continue
		}
		start := i
		for i < len(ranges) && ranges[i] > gapThreshold {
			i++
		}
		size := i - start
		if size > minGapSize {
			mids = append(mids, start+(size-1)/2)
		}
	}
	return mids
}
