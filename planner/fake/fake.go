// Package fake provides in-memory stand-ins for the planner's external
// collaborators, for tests and the demo binary.
package fake

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/f1tenth/raceplan/gridmap"
	"github.com/f1tenth/raceplan/mpc"
	"github.com/f1tenth/raceplan/refpath"
	"github.com/f1tenth/raceplan/spatial"
)

// StaticTransforms serves fixed transforms keyed by "from→to". Pairs not
// present fail the lookup, which is how tests exercise the
// transform-unavailable paths.
type StaticTransforms struct {
	mu         sync.Mutex
	transforms map[string]spatial.RigidTransform
}

// NewStaticTransforms builds an empty transform source.
func NewStaticTransforms() *StaticTransforms {
	return &StaticTransforms{transforms: map[string]spatial.RigidTransform{}}
}

// Set installs the transform for a frame pair.
func (s *StaticTransforms) Set(from, to string, tf spatial.RigidTransform) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transforms[from+"→"+to] = tf
}

// Remove drops a frame pair so lookups fail.
func (s *StaticTransforms) Remove(from, to string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transforms, from+"→"+to)
}

// Lookup implements planner.TransformSource.
func (s *StaticTransforms) Lookup(_ context.Context, from, to string) (spatial.RigidTransform, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tf, ok := s.transforms[from+"→"+to]
	if !ok {
		return spatial.RigidTransform{}, errors.Errorf("no transform from %q to %q", from, to)
	}
	return tf, nil
}

// CaptureDrive records published drive commands.
type CaptureDrive struct {
	mu       sync.Mutex
	Commands []mpc.Command
}

// PublishDrive implements planner.DrivePublisher.
func (c *CaptureDrive) PublishDrive(cmd mpc.Command) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Commands = append(c.Commands, cmd)
}

// Last returns the most recent command.
func (c *CaptureDrive) Last() (mpc.Command, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Commands) == 0 {
		return mpc.Command{}, false
	}
	return c.Commands[len(c.Commands)-1], true
}

// CaptureGrid records published grid snapshots.
type CaptureGrid struct {
	mu        sync.Mutex
	Snapshots []gridmap.Snapshot
}

// PublishGrid implements planner.GridPublisher.
func (c *CaptureGrid) PublishGrid(snap gridmap.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Snapshots = append(c.Snapshots, snap)
}

// Count returns how many snapshots were published.
func (c *CaptureGrid) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Snapshots)
}

// CaptureMarkers records best-effort visualization output.
type CaptureMarkers struct {
	mu        sync.Mutex
	Waypoints []refpath.Waypoint
	Horizons  [][]spatial.Pose2D
}

// PublishWaypoint implements planner.MarkerPublisher.
func (c *CaptureMarkers) PublishWaypoint(wp refpath.Waypoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Waypoints = append(c.Waypoints, wp)
}

// PublishHorizon implements planner.MarkerPublisher.
func (c *CaptureMarkers) PublishHorizon(poses []spatial.Pose2D) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Horizons = append(c.Horizons, poses)
}
