// Package planner wires the occupancy grid, gap follower, waypoint selector,
// and trajectory tracker into the per-cycle control pipeline. Each inbound
// message (scan, odometry) triggers one bounded handler; handlers may be
// driven from concurrent goroutines, so shared state is mutex guarded.
package planner

import (
	"context"
	"math"
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/f1tenth/raceplan/gapfollow"
	"github.com/f1tenth/raceplan/gridmap"
	"github.com/f1tenth/raceplan/lidar"
	"github.com/f1tenth/raceplan/mpc"
	"github.com/f1tenth/raceplan/refpath"
	"github.com/f1tenth/raceplan/spatial"
)

// ErrTransformUnavailable wraps transform lookup failures; the affected
// cycle is skipped and last-known-good state retained.
var ErrTransformUnavailable = errors.New("transform unavailable")

// Planner is the control core's coordinator. It owns the process-wide
// occupancy grid and vehicle state and runs one bounded computation per
// inbound message.
type Planner struct {
	cfg    Config
	logger golog.Logger

	grid     *gridmap.Grid
	follower *gapfollow.Follower
	selector *Selector
	tracker  *mpc.Tracker

	tf      TransformSource
	drive   DrivePublisher
	gridPub GridPublisher
	markers MarkerPublisher

	mu          sync.Mutex
	state       VehicleState
	candidates  []float64
	haveLaserTF bool
	laserToMap  spatial.RigidTransform
	opponent    *spatial.Pose2D
	oppDistance *float64
}

// New assembles a planner from config, loaded trajectories, and the external
// collaborators.
func New(
	cfg Config,
	tracks []refpath.Trajectory,
	tf TransformSource,
	drive DrivePublisher,
	gridPub GridPublisher,
	markers MarkerPublisher,
	logger golog.Logger,
) (*Planner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	grid, err := gridmap.New(cfg.Grid)
	if err != nil {
		return nil, err
	}
	follower, err := gapfollow.NewFollower(cfg.Gap)
	if err != nil {
		return nil, err
	}
	selector, err := NewSelector(tracks, grid, cfg.Lookahead)
	if err != nil {
		return nil, err
	}
	tracker, err := mpc.NewTracker(cfg.Tracker, logger)
	if err != nil {
		return nil, err
	}
	return &Planner{
		cfg:      cfg,
		logger:   logger,
		grid:     grid,
		follower: follower,
		selector: selector,
		tracker:  tracker,
		tf:       tf,
		drive:    drive,
		gridPub:  gridPub,
		markers:  markers,
	}, nil
}

// HandleScan folds a laser scan into the occupancy grid, publishes the grid
// snapshot, and refreshes the reactive heading candidates. A failed
// laser→map lookup skips the grid update for this cycle only; the gap
// follower needs no transform and always runs.
func (p *Planner) HandleScan(ctx context.Context, scan lidar.Scan) error {
	tfErr := p.updateGrid(ctx, scan)

	candidates, err := p.follower.CandidateHeadings(scan)
	switch {
	case errors.Is(err, gapfollow.ErrNoAcceptedGap):
		p.logger.Debug("no gap accepted in scan")
		candidates = nil
	case err != nil:
		return errors.Wrap(err, "gap follower")
	}
	p.mu.Lock()
	p.candidates = candidates
	p.mu.Unlock()

	return tfErr
}

func (p *Planner) updateGrid(ctx context.Context, scan lidar.Scan) error {
	tf, err := p.tf.Lookup(ctx, p.cfg.Frames.Laser, p.cfg.Frames.Map)
	if err != nil {
		p.logger.Warnw("laser→map transform unavailable, skipping grid update",
			"error", err)
		return multierr.Append(ErrTransformUnavailable, err)
	}

	p.mu.Lock()
	p.laserToMap = tf
	p.haveLaserTF = true
	p.mu.Unlock()

	if err := p.grid.Update(scan, tf); err != nil {
		p.logger.Warnw("grid update failed", "error", err)
		return err
	}
	p.gridPub.PublishGrid(p.grid.Snapshot())
	return nil
}

// HandleOdometry updates the vehicle state, selects the cycle's target, runs
// the tracker, and publishes the drive command. A failed map→vehicle lookup
// abandons the cycle with no command.
func (p *Planner) HandleOdometry(ctx context.Context, odom Odometry) error {
	p.mu.Lock()
	p.state = StateFromOdometry(odom)
	state := p.state
	candidates := p.candidates
	opponent := p.opponent
	p.mu.Unlock()

	p.trackOpponent(ctx, state, opponent)

	mapToVehicle, err := p.tf.Lookup(ctx, p.cfg.Frames.Map, p.cfg.Frames.Base)
	if err != nil {
		p.logger.Warnw("map→vehicle transform unavailable, skipping control cycle",
			"error", err)
		return multierr.Append(ErrTransformUnavailable, err)
	}

	target, err := p.chooseTarget(mapToVehicle, candidates)
	if err != nil {
		// nothing to track and nothing to avoid toward: stop
		p.logger.Errorw("no feasible waypoint and no accepted gap, commanding stop",
			"error", err)
		p.drive.PublishDrive(mpc.Command{})
		return err
	}

	cmd, horizon, err := p.tracker.Track(state.TrackerState(), target)
	if err != nil {
		// the tracker already applied its recovery policy; publish what it
		// gave us
		p.logger.Debugw("tracker recovery command", "error", err)
	}
	p.drive.PublishDrive(cmd)
	if len(horizon) > 0 {
		p.markers.PublishHorizon(horizon)
	}
	return nil
}

// chooseTarget returns the waypoint target when one is feasible, otherwise
// the reactive fallback built from the latest gap candidates.
func (p *Planner) chooseTarget(mapToVehicle spatial.RigidTransform, candidates []float64) (mpc.Target, error) {
	wp, err := p.selector.Select(mapToVehicle)
	if err == nil {
		p.markers.PublishWaypoint(wp)
		return mpc.WaypointTarget(wp), nil
	}
	if !errors.Is(err, ErrNoFeasibleWaypoint) {
		return mpc.Target{}, err
	}
	if len(candidates) == 0 {
		return mpc.Target{}, multierr.Append(err, gapfollow.ErrNoAcceptedGap)
	}
	p.logger.Debugw("falling back to reactive avoidance", "candidates", len(candidates))
	return mpc.ReactiveTarget(candidates), nil
}

// trackOpponent records the opponent's relative distance, preferring a live
// opponent→vehicle transform and falling back to the last reported opponent
// pose. Best effort: failure never degrades the control cycle.
func (p *Planner) trackOpponent(ctx context.Context, state VehicleState, opponent *spatial.Pose2D) {
	var dist float64
	if tf, err := p.tf.Lookup(ctx, p.cfg.Frames.Opponent, p.cfg.Frames.Base); err == nil {
		dist = tf.Translation.Norm()
	} else if opponent != nil {
		dist = math.Hypot(opponent.X-state.X, opponent.Y-state.Y)
	} else {
		return
	}
	p.mu.Lock()
	p.oppDistance = &dist
	p.mu.Unlock()
	p.logger.Debugw("opponent distance", "meters", dist)
}

// OpponentDistance returns the most recently observed opponent distance.
func (p *Planner) OpponentDistance() (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.oppDistance == nil {
		return 0, false
	}
	return *p.oppDistance, true
}

// HandleOpponentOdometry records the opponent's latest pose; it is tracked
// for relative distance only.
func (p *Planner) HandleOpponentOdometry(_ context.Context, odom Odometry) {
	p.mu.Lock()
	pose := odom.Pose
	p.opponent = &pose
	p.mu.Unlock()
}

// LastLaserTransform returns the most recent successful laser→map lookup;
// it is retained across failed lookups for diagnostics.
func (p *Planner) LastLaserTransform() (spatial.RigidTransform, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.laserToMap, p.haveLaserTF
}

// Candidates returns the reactive heading candidates from the latest scan.
func (p *Planner) Candidates() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]float64, len(p.candidates))
	copy(out, p.candidates)
	return out
}

// State returns a snapshot of the current vehicle state.
func (p *Planner) State() VehicleState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Grid exposes the occupancy grid for diagnostics and tests.
func (p *Planner) Grid() *gridmap.Grid {
	return p.grid
}

// Mode reports the tracker's current control mode.
func (p *Planner) Mode() mpc.Mode {
	return p.tracker.Mode()
}
