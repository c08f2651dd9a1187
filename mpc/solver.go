package mpc

import (
	"github.com/go-nlopt/nlopt"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"
)

const solveTolerance = 1e-8

// solve optimizes the input sequence over the horizon. The dynamics are
// condensed: states are eliminated through the affine model, leaving a
// bound-constrained quadratic program over the 2·Horizon input variables.
func (t *Tracker) solve(
	state State,
	lin []LinearizedModel,
	refStates []*mat.VecDense,
	refInput *mat.VecDense,
) ([]float64, error) {
	n := t.cfg.Horizon
	dims := n * NumInputs

	opt, err := nlopt.NewNLopt(nlopt.LD_SLSQP, uint(dims))
	if err != nil {
		return nil, errors.Wrap(err, "nlopt creation error")
	}
	defer opt.Destroy()

	lower := make([]float64, dims)
	upper := make([]float64, dims)
	for k := 0; k < n; k++ {
		lower[k*NumInputs] = -t.cfg.SteerLimit
		upper[k*NumInputs] = t.cfg.SteerLimit
		lower[k*NumInputs+1] = t.cfg.MinSpeed
		upper[k*NumInputs+1] = t.cfg.MaxSpeed
	}

	objective := func(u, gradient []float64) float64 {
		cost, grad := t.horizonCost(state, lin, refStates, refInput, u)
		copy(gradient, grad)
		return cost
	}

	err = multierr.Combine(
		opt.SetFtolRel(solveTolerance),
		opt.SetFtolAbs(solveTolerance),
		opt.SetLowerBounds(lower),
		opt.SetUpperBounds(upper),
		opt.SetXtolRel(solveTolerance),
		opt.SetMinObjective(objective),
		opt.SetMaxEval(t.cfg.MaxSolveEvals),
	)
	if err != nil {
		return nil, errors.Wrap(err, "nlopt setup error")
	}

	solution, _, err := opt.Optimize(t.seed(refInput, lower, upper))
	if err != nil {
		return nil, errors.Wrap(ErrSolveFailed, err.Error())
	}
	if len(solution) != dims {
		return nil, errors.Wrapf(ErrSolveFailed, "solution has %d values, want %d", len(solution), dims)
	}
	return solution, nil
}

// seed warm-starts from the previous cycle's solution when one exists.
func (t *Tracker) seed(refInput *mat.VecDense, lower, upper []float64) []float64 {
	dims := t.cfg.Horizon * NumInputs
	seed := make([]float64, dims)
	if len(t.lastInputs) == dims {
		copy(seed, t.lastInputs)
	} else {
		for k := 0; k < t.cfg.Horizon; k++ {
			seed[k*NumInputs] = refInput.AtVec(0)
			seed[k*NumInputs+1] = refInput.AtVec(1)
		}
	}
	for i := range seed {
		seed[i] = clamp(seed[i], lower[i], upper[i])
	}
	return seed
}

// horizonCost evaluates the tracking cost of an input sequence under the
// linearized dynamics and its exact gradient via the discrete adjoint.
func (t *Tracker) horizonCost(
	state State,
	lin []LinearizedModel,
	refStates []*mat.VecDense,
	refInput *mat.VecDense,
	u []float64,
) (float64, []float64) {
	n := t.cfg.Horizon
	w := t.cfg.Weights
	q := [NumStates]float64{w.PosX, w.PosY, w.Heading}
	r := [NumInputs]float64{w.Steer, w.Speed}
	rd := [NumInputs]float64{w.SteerRate, w.SpeedRate}
	prev := [NumInputs]float64{t.lastCmd.SteeringAngle, t.lastCmd.Velocity}

	// forward rollout under the affine dynamics
	states := make([]*mat.VecDense, n+1)
	states[0] = state.Vector()
	cost := 0.0
	for k := 0; k < n; k++ {
		uk := mat.NewVecDense(NumInputs, u[k*NumInputs:(k+1)*NumInputs])
		next := mat.NewVecDense(NumStates, nil)
		next.MulVec(lin[k].Ad, states[k])
		var bu mat.VecDense
		bu.MulVec(lin[k].Bd, uk)
		next.AddVec(next, &bu)
		next.AddVec(next, lin[k].Hd)
		states[k+1] = next

		for i := 0; i < NumStates; i++ {
			e := next.AtVec(i) - refStates[k].AtVec(i)
			cost += q[i] * e * e
		}
		for i := 0; i < NumInputs; i++ {
			e := uk.AtVec(i) - refInput.AtVec(i)
			cost += r[i] * e * e
			de := uk.AtVec(i) - prevInput(u, prev, k, i)
			cost += rd[i] * de * de
		}
	}

	// backward adjoint pass
	grad := make([]float64, n*NumInputs)
	lambda := mat.NewVecDense(NumStates, nil)
	for i := 0; i < NumStates; i++ {
		lambda.SetVec(i, 2*q[i]*(states[n].AtVec(i)-refStates[n-1].AtVec(i)))
	}
	for k := n - 1; k >= 0; k-- {
		var bl mat.VecDense
		bl.MulVec(lin[k].Bd.T(), lambda)
		for i := 0; i < NumInputs; i++ {
			g := bl.AtVec(i)
			g += 2 * r[i] * (u[k*NumInputs+i] - refInput.AtVec(i))
			g += 2 * rd[i] * (u[k*NumInputs+i] - prevInput(u, prev, k, i))
			if k < n-1 {
				g -= 2 * rd[i] * (u[(k+1)*NumInputs+i] - u[k*NumInputs+i])
			}
			grad[k*NumInputs+i] = g
		}
		if k > 0 {
			var al mat.VecDense
			al.MulVec(lin[k].Ad.T(), lambda)
			for i := 0; i < NumStates; i++ {
				lambda.SetVec(i, al.AtVec(i)+2*q[i]*(states[k].AtVec(i)-refStates[k-1].AtVec(i)))
			}
		}
	}
	return cost, grad
}

// prevInput returns input i at step k-1, falling back to the last emitted
// command ahead of the horizon.
func prevInput(u []float64, prev [NumInputs]float64, k, i int) float64 {
	if k == 0 {
		return prev[i]
	}
	return u[(k-1)*NumInputs+i]
}
