package mpc

import (
	"math"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/f1tenth/raceplan/refpath"
	"github.com/f1tenth/raceplan/spatial"
)

// ErrSolveFailed means the per-cycle QP did not produce a usable solution;
// the accompanying command is the recovery command, not a fresh solve.
var ErrSolveFailed = errors.New("horizon solve failed")

// Mode is the tracker's control mode for a cycle.
type Mode int

const (
	// ModeTrackingWaypoint tracks a target waypoint from the reference path.
	ModeTrackingWaypoint Mode = iota
	// ModeReactiveAvoidance tracks a gap-follower heading because no
	// reference waypoint was reachable.
	ModeReactiveAvoidance
)

func (m Mode) String() string {
	if m == ModeReactiveAvoidance {
		return "reactive_avoidance"
	}
	return "tracking_waypoint"
}

// Target is the tracking goal for one cycle: either a selected waypoint or,
// in fallback, the gap follower's candidate headings.
type Target struct {
	Reactive bool
	Waypoint refpath.Waypoint
	Headings []float64
}

// WaypointTarget builds a waypoint-tracking target.
func WaypointTarget(wp refpath.Waypoint) Target {
	return Target{Waypoint: wp}
}

// ReactiveTarget builds a fallback target from gap candidate headings.
func ReactiveTarget(headings []float64) Target {
	return Target{Reactive: true, Headings: headings}
}

// Command is the drive command emitted every control cycle.
type Command struct {
	SteeringAngle float64
	Velocity      float64
}

// Weights are the diagonal QP cost weights.
type Weights struct {
	PosX      float64 `json:"pos_x"`
	PosY      float64 `json:"pos_y"`
	Heading   float64 `json:"heading"`
	Steer     float64 `json:"steer"`
	Speed     float64 `json:"speed"`
	SteerRate float64 `json:"steer_rate"`
	SpeedRate float64 `json:"speed_rate"`
}

// Config holds the tracker tuning.
type Config struct {
	Horizon       int     `json:"horizon"`
	DT            float64 `json:"dt"`
	Wheelbase     float64 `json:"wheelbase"`
	SteerLimit    float64 `json:"steer_limit"`
	MinSpeed      float64 `json:"min_speed"`
	MaxSpeed      float64 `json:"max_speed"`
	Weights       Weights `json:"weights"`
	MaxSolveEvals int     `json:"max_solve_evals"`
	// MaxRecoveries bounds how many consecutive failed solves may re-emit
	// the previous command before the tracker escalates to a safe stop.
	MaxRecoveries int `json:"max_recoveries"`
}

// Validate returns an error if the tuning cannot run.
func (c Config) Validate() error {
	if c.Horizon <= 0 {
		return errors.New("horizon must be positive")
	}
	if c.DT <= 0 {
		return errors.New("dt must be positive")
	}
	if c.Wheelbase <= 0 {
		return errors.New("wheelbase must be positive")
	}
	if c.SteerLimit <= 0 || c.SteerLimit >= math.Pi/2 {
		return errors.Errorf("steer limit %f must be in (0, π/2)", c.SteerLimit)
	}
	if c.MaxSpeed <= c.MinSpeed {
		return errors.Errorf("speed bounds [%f, %f] are empty", c.MinSpeed, c.MaxSpeed)
	}
	return nil
}

// creepSpeed is the reference speed used in reactive mode when the vehicle
// is near standstill; a zero-speed operating point has no steering authority
// to linearize around.
const creepSpeed = 0.5

// Tracker solves the receding-horizon tracking problem once per cycle. Not
// safe for concurrent use; the planner serializes odometry handling.
type Tracker struct {
	cfg    Config
	model  Model
	logger golog.Logger

	mode       Mode
	lastCmd    Command
	lastInputs []float64
	failures   int
}

// NewTracker validates the config and returns a tracker.
func NewTracker(cfg Config, logger golog.Logger) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid tracker config")
	}
	if cfg.MaxSolveEvals <= 0 {
		cfg.MaxSolveEvals = 200
	}
	if cfg.MaxRecoveries <= 0 {
		cfg.MaxRecoveries = 3
	}
	return &Tracker{
		cfg:    cfg,
		model:  Model{Wheelbase: cfg.Wheelbase, DT: cfg.DT},
		logger: logger,
	}, nil
}

// Mode reports the control mode used by the most recent Track call.
func (t *Tracker) Mode() Mode {
	return t.mode
}

// Track solves the horizon for the current state and target and returns the
// first input of the solution along with the predicted state sequence. On a
// failed solve it returns a recovery command and ErrSolveFailed: the
// previous command is re-emitted once per failure until MaxRecoveries
// consecutive failures, after which the command is a safe stop.
func (t *Tracker) Track(state State, target Target) (Command, []spatial.Pose2D, error) {
	if target.Reactive {
		t.mode = ModeReactiveAvoidance
	} else {
		t.mode = ModeTrackingWaypoint
	}

	refStates, refInput, err := t.buildReference(state, target)
	if err != nil {
		return t.recover(err), nil, err
	}

	lin, opStates := t.linearizeAlongHorizon(state, refInput)
	solution, err := t.solve(state, lin, refStates, refInput)
	if err != nil {
		return t.recover(err), nil, err
	}

	t.failures = 0
	t.lastInputs = solution
	cmd := Command{
		SteeringAngle: clamp(solution[0], -t.cfg.SteerLimit, t.cfg.SteerLimit),
		Velocity:      clamp(solution[1], t.cfg.MinSpeed, t.cfg.MaxSpeed),
	}
	t.lastCmd = cmd
	return cmd, t.predictHorizon(state, solution, opStates), nil
}

// recover applies the failure policy: re-emit the previous command, then
// escalate to a stop after repeated consecutive failures.
func (t *Tracker) recover(cause error) Command {
	t.failures++
	if t.failures > t.cfg.MaxRecoveries {
		t.logger.Errorw("repeated solve failures, commanding safe stop",
			"failures", t.failures, "error", cause)
		t.lastCmd = Command{SteeringAngle: 0, Velocity: 0}
		return t.lastCmd
	}
	t.logger.Warnw("solve failed, re-emitting previous command",
		"failures", t.failures, "error", cause)
	return t.lastCmd
}

// buildReference produces the per-step reference states and the reference
// input the cost pulls toward.
func (t *Tracker) buildReference(state State, target Target) ([]*mat.VecDense, *mat.VecDense, error) {
	n := t.cfg.Horizon
	refs := make([]*mat.VecDense, n)

	if !target.Reactive {
		wp := target.Waypoint
		// heading unwrapped next to the current heading so the cost never
		// penalizes a 2π jump
		theta := state.Pose.Theta + spatial.NormalizeAngle(wp.Heading-state.Pose.Theta)
		for k := 0; k < n; k++ {
			refs[k] = mat.NewVecDense(NumStates, []float64{wp.X, wp.Y, theta})
		}
		return refs, mat.NewVecDense(NumInputs, []float64{0, wp.Speed}), nil
	}

	heading, err := bestHeading(target.Headings)
	if err != nil {
		return nil, nil, err
	}
	speed := state.Velocity
	if speed < creepSpeed {
		speed = creepSpeed
	}
	theta := state.Pose.Theta + heading
	sin, cos := math.Sincos(theta)
	for k := 0; k < n; k++ {
		d := speed * t.cfg.DT * float64(k+1)
		refs[k] = mat.NewVecDense(NumStates, []float64{
			state.Pose.X + d*cos,
			state.Pose.Y + d*sin,
			theta,
		})
	}
	return refs, mat.NewVecDense(NumInputs, []float64{0, speed}), nil
}

// bestHeading picks the gap candidate requiring the least turning.
func bestHeading(headings []float64) (float64, error) {
	if len(headings) == 0 {
		return 0, errors.New("no candidate headings")
	}
	best := headings[0]
	for _, h := range headings[1:] {
		if math.Abs(h) < math.Abs(best) {
			best = h
		}
	}
	return best, nil
}

// linearizeAlongHorizon rolls the operating trajectory out from the current
// state using the previous cycle's solution (or the reference input on the
// first cycle) and linearizes the model at every step.
func (t *Tracker) linearizeAlongHorizon(state State, refInput *mat.VecDense) ([]LinearizedModel, []*mat.VecDense) {
	n := t.cfg.Horizon
	lin := make([]LinearizedModel, n)
	opStates := make([]*mat.VecDense, n+1)
	opStates[0] = state.Vector()

	x := opStates[0]
	for k := 0; k < n; k++ {
		u := refInput
		if len(t.lastInputs) == n*NumInputs {
			u = mat.NewVecDense(NumInputs, t.lastInputs[k*NumInputs:(k+1)*NumInputs])
		}
		lin[k] = t.model.Linearize(x, u)
		x = t.model.Propagate(x, u)
		opStates[k+1] = x
	}
	return lin, opStates
}

// predictHorizon rolls the nonlinear model out under the solved inputs for
// visualization.
func (t *Tracker) predictHorizon(state State, inputs []float64, opStates []*mat.VecDense) []spatial.Pose2D {
	poses := make([]spatial.Pose2D, 0, len(opStates))
	x := state.Vector()
	poses = append(poses, state.Pose)
	for k := 0; k*NumInputs+1 < len(inputs); k++ {
		u := mat.NewVecDense(NumInputs, inputs[k*NumInputs:(k+1)*NumInputs])
		x = t.model.Propagate(x, u)
		poses = append(poses, spatial.Pose2D{X: x.AtVec(0), Y: x.AtVec(1), Theta: x.AtVec(2)})
	}
	return poses
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
