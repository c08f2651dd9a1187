// Package mpc implements the receding-horizon trajectory tracker: a
// kinematic bicycle model, successive linearization about the operating
// trajectory, and a per-cycle quadratic program over the input horizon.
package mpc

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/f1tenth/raceplan/spatial"
)

// State and input dimensions: state is (x, y, heading), input is
// (steering angle, velocity).
const (
	NumStates = 3
	NumInputs = 2
)

// State is the tracker's view of the vehicle.
type State struct {
	Pose     spatial.Pose2D
	Velocity float64
}

// Vector packs the pose into a state vector.
func (s State) Vector() *mat.VecDense {
	return mat.NewVecDense(NumStates, []float64{s.Pose.X, s.Pose.Y, s.Pose.Theta})
}

// Model is the kinematic bicycle model discretized at a fixed timestep.
type Model struct {
	Wheelbase float64
	DT        float64
}

// Propagate advances a state vector by one timestep under the given input.
func (m Model) Propagate(state, input *mat.VecDense) *mat.VecDense {
	x, y, theta := state.AtVec(0), state.AtVec(1), state.AtVec(2)
	steer, v := input.AtVec(0), input.AtVec(1)
	sin, cos := math.Sincos(theta)
	return mat.NewVecDense(NumStates, []float64{
		x + v*cos*m.DT,
		y + v*sin*m.DT,
		theta + v*math.Tan(steer)/m.Wheelbase*m.DT,
	})
}

// LinearizedModel is the discrete affine approximation
// next ≈ Ad·x + Bd·u + Hd about one operating point. It is rebuilt every
// horizon step and discarded after the solve.
type LinearizedModel struct {
	Ad *mat.Dense
	Bd *mat.Dense
	Hd *mat.VecDense
}

// Linearize computes the discrete Jacobians of Propagate and the affine
// residual at the operating point. The reconstruction
// Ad·xOp + Bd·uOp + Hd == Propagate(xOp, uOp) holds exactly.
func (m Model) Linearize(xOp, uOp *mat.VecDense) LinearizedModel {
	theta := xOp.AtVec(2)
	steer, v := uOp.AtVec(0), uOp.AtVec(1)
	sin, cos := math.Sincos(theta)
	cosSteer := math.Cos(steer)

	ad := mat.NewDense(NumStates, NumStates, []float64{
		1, 0, -v * sin * m.DT,
		0, 1, v * cos * m.DT,
		0, 0, 1,
	})
	bd := mat.NewDense(NumStates, NumInputs, []float64{
		0, cos * m.DT,
		0, sin * m.DT,
		v * m.DT / (m.Wheelbase * cosSteer * cosSteer), math.Tan(steer) * m.DT / m.Wheelbase,
	})

	hd := m.Propagate(xOp, uOp)
	var ax, bu mat.VecDense
	ax.MulVec(ad, xOp)
	bu.MulVec(bd, uOp)
	hd.SubVec(hd, &ax)
	hd.SubVec(hd, &bu)

	return LinearizedModel{Ad: ad, Bd: bd, Hd: hd}
}
