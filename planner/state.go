package planner

import (
	"github.com/f1tenth/raceplan/mpc"
	"github.com/f1tenth/raceplan/spatial"
)

// Odometry is one odometry update from the vehicle's odometry source.
type Odometry struct {
	Pose            spatial.Pose2D
	LinearVelocity  float64
	AngularVelocity float64
}

// VehicleState is the process-wide vehicle state, replaced wholesale on each
// odometry update.
type VehicleState struct {
	X               float64
	Y               float64
	Theta           float64
	Velocity        float64
	AngularVelocity float64
}

// StateFromOdometry is the canonical odometry→state conversion.
func StateFromOdometry(o Odometry) VehicleState {
	return VehicleState{
		X:               o.Pose.X,
		Y:               o.Pose.Y,
		Theta:           o.Pose.Theta,
		Velocity:        o.LinearVelocity,
		AngularVelocity: o.AngularVelocity,
	}
}

// Pose returns the state's pose.
func (s VehicleState) Pose() spatial.Pose2D {
	return spatial.Pose2D{X: s.X, Y: s.Y, Theta: s.Theta}
}

// TrackerState converts to the tracker's state representation.
func (s VehicleState) TrackerState() mpc.State {
	return mpc.State{Pose: s.Pose(), Velocity: s.Velocity}
}
