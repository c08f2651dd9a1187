package planner

import (
	"math"

	"github.com/pkg/errors"

	"github.com/f1tenth/raceplan/gridmap"
	"github.com/f1tenth/raceplan/refpath"
	"github.com/f1tenth/raceplan/spatial"
)

// ErrNoFeasibleWaypoint is the selector's infeasibility signal; it is a
// control-mode signal rather than a failure, and switches the tracker to
// reactive avoidance for the cycle.
var ErrNoFeasibleWaypoint = errors.New("no feasible waypoint on any trajectory")

// Selector picks the local target waypoint each cycle: the admissible
// waypoint whose distance from the vehicle best matches the lookahead
// distance.
type Selector struct {
	tracks    []refpath.Trajectory
	grid      *gridmap.Grid
	lookahead float64
}

// NewSelector builds a selector over the loaded trajectories.
func NewSelector(tracks []refpath.Trajectory, grid *gridmap.Grid, lookahead float64) (*Selector, error) {
	if len(tracks) == 0 {
		return nil, errors.New("selector needs at least one trajectory")
	}
	if lookahead <= 0 {
		return nil, errors.Errorf("lookahead %f must be positive", lookahead)
	}
	return &Selector{tracks: tracks, grid: grid, lookahead: lookahead}, nil
}

// Select returns the best admissible waypoint across all trajectories given
// the current map→vehicle transform. A candidate behind the vehicle or whose
// map cell is occupied is rejected, and the search continues with the
// next-best distance match rather than abandoning the trajectory.
func (s *Selector) Select(mapToVehicle spatial.RigidTransform) (refpath.Waypoint, error) {
	var (
		best     refpath.Waypoint
		bestDiff = math.Inf(1)
		found    bool
	)
	for _, track := range s.tracks {
		for _, wp := range track {
			local := mapToVehicle.Apply(wp.Point())
			if local.X < 0 {
				continue
			}
			diff := math.Abs(s.lookahead - local.Norm())
			if diff >= bestDiff {
				continue
			}
			if s.grid.OccupiedAt(wp.Point()) {
				continue
			}
			best = wp
			bestDiff = diff
			found = true
		}
	}
	if !found {
		return refpath.Waypoint{}, ErrNoFeasibleWaypoint
	}
	return best, nil
}
