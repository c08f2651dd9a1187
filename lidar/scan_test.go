package lidar

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestScanValidate(t *testing.T) {
	good := Scan{AngleMin: -math.Pi, AngleMax: math.Pi, AngleIncrement: 0.01, Ranges: []float64{1, 2, 3}}
	test.That(t, good.Validate(), test.ShouldBeNil)

	empty := good
	empty.Ranges = nil
	test.That(t, empty.Validate(), test.ShouldNotBeNil)

	backwards := good
	backwards.AngleMax = backwards.AngleMin - 1
	test.That(t, backwards.Validate(), test.ShouldNotBeNil)
}

func TestAngleAt(t *testing.T) {
	s := Scan{AngleMin: -1, AngleMax: 1, AngleIncrement: 0.5, Ranges: make([]float64, 5)}
	test.That(t, s.AngleAt(0), test.ShouldAlmostEqual, -1)
	test.That(t, s.AngleAt(4), test.ShouldAlmostEqual, 1)
}

func TestFilterRanges(t *testing.T) {
	in := []float64{1.5, math.NaN(), math.Inf(1), 12, 3}
	out := FilterRanges(in, 10)
	test.That(t, out, test.ShouldResemble, []float64{1.5, 0, 10, 10, 3})
	// input untouched
	test.That(t, math.IsNaN(in[1]), test.ShouldBeTrue)
}

func TestClosestIndex(t *testing.T) {
	test.That(t, ClosestIndex([]float64{3, 1, 2}), test.ShouldEqual, 1)
	test.That(t, ClosestIndex([]float64{0.5}), test.ShouldEqual, 0)
	test.That(t, ClosestIndex([]float64{2, 2, 2}), test.ShouldEqual, 0)
}
