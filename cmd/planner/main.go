// Command planner runs the local planning core against in-process fake
// collaborators: it loads a reference path, replays a synthetic corridor
// scan, and integrates the emitted drive commands through the kinematic
// model. It exists to exercise the full control cycle without a vehicle.
package main

import (
	"context"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"

	"github.com/f1tenth/raceplan/lidar"
	"github.com/f1tenth/raceplan/mpc"
	"github.com/f1tenth/raceplan/planner"
	"github.com/f1tenth/raceplan/planner/fake"
	"github.com/f1tenth/raceplan/refpath"
	"github.com/f1tenth/raceplan/spatial"
)

var logger = golog.NewDevelopmentLogger("raceplan")

// Arguments for the command.
type Arguments struct {
	Config string `flag:"config,usage=planner config file (JSON)"`
	Path   string `flag:"path,usage=reference waypoint file (delimited text)"`
	Cycles int    `flag:"cycles,usage=number of demo control cycles"`
}

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	if argsParsed.Cycles == 0 {
		argsParsed.Cycles = 100
	}

	cfg := planner.DefaultConfig()
	if argsParsed.Config != "" {
		var err error
		cfg, err = planner.ReadConfig(argsParsed.Config)
		if err != nil {
			return err
		}
	}

	var tracks []refpath.Trajectory
	if argsParsed.Path != "" {
		var err error
		tracks, err = refpath.Load(argsParsed.Path, cfg.PathDelimiter)
		if err != nil {
			return err
		}
	} else {
		logger.Info("no reference path given, using a straight demo track")
		tracks = []refpath.Trajectory{straightTrack(20, 0.5, 2.0)}
	}

	tf := fake.NewStaticTransforms()
	drive := &fake.CaptureDrive{}
	grid := &fake.CaptureGrid{}
	markers := &fake.CaptureMarkers{}
	p, err := planner.New(cfg, tracks, tf, drive, grid, markers, logger)
	if err != nil {
		return err
	}

	return runDemo(ctx, p, tf, drive, cfg, argsParsed.Cycles, clock.New(), logger)
}

// straightTrack lays waypoints along +X at a fixed spacing and speed.
func straightTrack(n int, spacing, speed float64) refpath.Trajectory {
	track := make(refpath.Trajectory, 0, n)
	for i := 1; i <= n; i++ {
		track = append(track, refpath.Waypoint{X: float64(i) * spacing, Speed: speed})
	}
	return track
}

// corridorScan synthesizes an open corridor: walls at ±1m laterally, open
// ahead to the sensor limit.
func corridorScan(pose spatial.Pose2D, maxRange float64) lidar.Scan {
	const beams = 360
	inc := 2 * math.Pi / beams
	ranges := make([]float64, beams)
	for i := range ranges {
		angle := -math.Pi + float64(i)*inc + pose.Theta
		sin := math.Sin(angle)
		if math.Abs(sin) < 1e-6 {
			ranges[i] = maxRange
			continue
		}
		// distance to the wall at y = ±1 in the map frame
		d := (1 - pose.Y) / sin
		if sin < 0 {
			d = (-1 - pose.Y) / sin
		}
		ranges[i] = math.Min(d, maxRange)
	}
	return lidar.Scan{
		AngleMin:       -math.Pi,
		AngleMax:       math.Pi,
		AngleIncrement: inc,
		Ranges:         ranges,
	}
}

func runDemo(
	ctx context.Context,
	p *planner.Planner,
	tf *fake.StaticTransforms,
	drive *fake.CaptureDrive,
	cfg planner.Config,
	cycles int,
	clk clock.Clock,
	logger golog.Logger,
) error {
	model := mpc.Model{Wheelbase: cfg.Tracker.Wheelbase, DT: cfg.Tracker.DT}
	pose := spatial.Pose2D{}
	velocity := 0.0

	ticker := clk.Ticker(time.Duration(cfg.Tracker.DT * float64(time.Second)))
	defer ticker.Stop()

	for i := 0; i < cycles; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		// the fake vehicle's pose drives both transforms
		vehicleToMap := spatial.RigidTransform{Translation: pose.Point(), Yaw: pose.Theta}
		tf.Set(cfg.Frames.Laser, cfg.Frames.Map, vehicleToMap)
		tf.Set(cfg.Frames.Map, cfg.Frames.Base, vehicleToMap.Inverse())

		if err := p.HandleScan(ctx, corridorScan(pose, cfg.Gap.MaxUsableRange)); err != nil {
			logger.Warnw("scan cycle degraded", "error", err)
		}
		odom := planner.Odometry{Pose: pose, LinearVelocity: velocity}
		if err := p.HandleOdometry(ctx, odom); err != nil {
			logger.Warnw("control cycle degraded", "error", err)
			continue
		}

		cmd, ok := drive.Last()
		if !ok {
			continue
		}
		state := mat.NewVecDense(mpc.NumStates, []float64{pose.X, pose.Y, pose.Theta})
		input := mat.NewVecDense(mpc.NumInputs, []float64{cmd.SteeringAngle, cmd.Velocity})
		next := model.Propagate(state, input)
		pose = spatial.Pose2D{X: next.AtVec(0), Y: next.AtVec(1), Theta: next.AtVec(2)}
		velocity = cmd.Velocity

		if i%10 == 0 {
			logger.Infow("cycle",
				"i", i,
				"x", pose.X,
				"y", pose.Y,
				"heading", pose.Theta,
				"steer", cmd.SteeringAngle,
				"velocity", cmd.Velocity,
				"mode", p.Mode().String(),
			)
		}
	}
	logger.Infof("demo finished at (%.2f, %.2f) after %d cycles", pose.X, pose.Y, cycles)
	return nil
}
