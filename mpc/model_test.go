package mpc

import (
	"math"
	"testing"

	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func testModel() Model {
	return Model{Wheelbase: 0.33, DT: 0.1}
}

func TestPropagateStraightLine(t *testing.T) {
	m := testModel()
	state := mat.NewVecDense(NumStates, []float64{0, 0, 0})
	input := mat.NewVecDense(NumInputs, []float64{0, 2})

	next := m.Propagate(state, input)
	test.That(t, next.AtVec(0), test.ShouldAlmostEqual, 0.2)
	test.That(t, next.AtVec(1), test.ShouldAlmostEqual, 0)
	test.That(t, next.AtVec(2), test.ShouldAlmostEqual, 0)
}

func TestPropagateTurning(t *testing.T) {
	m := testModel()
	state := mat.NewVecDense(NumStates, []float64{1, 2, math.Pi / 2})
	input := mat.NewVecDense(NumInputs, []float64{0.2, 1})

	next := m.Propagate(state, input)
	// heading π/2 moves along +Y; positive steer turns left
	test.That(t, next.AtVec(0), test.ShouldAlmostEqual, 1, 1e-12)
	test.That(t, next.AtVec(1), test.ShouldAlmostEqual, 2.1)
	test.That(t, next.AtVec(2), test.ShouldBeGreaterThan, math.Pi/2)
}

func TestAffineReconstructionIdentity(t *testing.T) {
	m := testModel()
	for _, tc := range []struct {
		name  string
		state []float64
		input []float64
	}{
		{"at rest", []float64{0, 0, 0}, []float64{0, 0}},
		{"straight", []float64{1, -2, 0.3}, []float64{0, 2}},
		{"turning", []float64{-4, 7, -1.2}, []float64{0.3, 3.5}},
		{"reversing", []float64{0.5, 0.5, 2.9}, []float64{-0.25, -1}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			xOp := mat.NewVecDense(NumStates, tc.state)
			uOp := mat.NewVecDense(NumInputs, tc.input)
			lin := m.Linearize(xOp, uOp)

			var recon, bu mat.VecDense
			recon.MulVec(lin.Ad, xOp)
			bu.MulVec(lin.Bd, uOp)
			recon.AddVec(&recon, &bu)
			recon.AddVec(&recon, lin.Hd)

			want := m.Propagate(xOp, uOp)
			for i := 0; i < NumStates; i++ {
				test.That(t, recon.AtVec(i), test.ShouldAlmostEqual, want.AtVec(i), 1e-12)
			}
		})
	}
}

func TestLinearizeMatchesFiniteDifferences(t *testing.T) {
	m := testModel()
	xOp := mat.NewVecDense(NumStates, []float64{0.4, -0.8, 0.6})
	uOp := mat.NewVecDense(NumInputs, []float64{0.15, 2.2})
	lin := m.Linearize(xOp, uOp)

	const h = 1e-7
	for j := 0; j < NumStates; j++ {
		bumped := mat.VecDenseCopyOf(xOp)
		bumped.SetVec(j, bumped.AtVec(j)+h)
		plus := m.Propagate(bumped, uOp)
		base := m.Propagate(xOp, uOp)
		for i := 0; i < NumStates; i++ {
			fd := (plus.AtVec(i) - base.AtVec(i)) / h
			test.That(t, lin.Ad.At(i, j), test.ShouldAlmostEqual, fd, 1e-5)
		}
	}
	for j := 0; j < NumInputs; j++ {
		bumped := mat.VecDenseCopyOf(uOp)
		bumped.SetVec(j, bumped.AtVec(j)+h)
		plus := m.Propagate(xOp, bumped)
		base := m.Propagate(xOp, uOp)
		for i := 0; i < NumStates; i++ {
			fd := (plus.AtVec(i) - base.AtVec(i)) / h
			test.That(t, lin.Bd.At(i, j), test.ShouldAlmostEqual, fd, 1e-5)
		}
	}
}
