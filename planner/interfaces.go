package planner

import (
	"context"

	"github.com/f1tenth/raceplan/gridmap"
	"github.com/f1tenth/raceplan/mpc"
	"github.com/f1tenth/raceplan/refpath"
	"github.com/f1tenth/raceplan/spatial"
)

// TransformSource looks up the rigid transform mapping points in the from
// frame into the to frame. Lookups may block briefly and may fail; the
// planner never retries within a cycle.
type TransformSource interface {
	Lookup(ctx context.Context, from, to string) (spatial.RigidTransform, error)
}

// DrivePublisher receives the drive command emitted each control cycle.
type DrivePublisher interface {
	PublishDrive(cmd mpc.Command)
}

// GridPublisher receives an occupancy grid snapshot after each scan update.
type GridPublisher interface {
	PublishGrid(snap gridmap.Snapshot)
}

// MarkerPublisher receives best-effort visualization output; implementations
// must not block the control path.
type MarkerPublisher interface {
	PublishWaypoint(wp refpath.Waypoint)
	PublishHorizon(poses []spatial.Pose2D)
}
