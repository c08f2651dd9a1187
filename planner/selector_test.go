package planner

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"

	"github.com/f1tenth/raceplan/gridmap"
	"github.com/f1tenth/raceplan/lidar"
	"github.com/f1tenth/raceplan/refpath"
	"github.com/f1tenth/raceplan/spatial"
)

func selectorGrid(t *testing.T) *gridmap.Grid {
	t.Helper()
	g, err := gridmap.New(gridmap.Config{
		Width:           200,
		Height:          200,
		Resolution:      0.1,
		OriginX:         -10,
		OriginY:         -10,
		InflationRadius: 0,
		DecayThreshold:  1000,
	})
	test.That(t, err, test.ShouldBeNil)
	return g
}

// occupy marks the cell containing the point by injecting a single-beam scan
// hit at that map position.
func occupy(t *testing.T, g *gridmap.Grid, x, y float64) {
	t.Helper()
	dist := math.Hypot(x, y)
	theta := math.Atan2(y, x)
	n := 360
	ranges := make([]float64, n)
	for i := range ranges {
		ranges[i] = math.NaN()
	}
	inc := 2 * math.Pi / float64(n)
	idx := int(math.Round((theta + math.Pi) / inc))
	ranges[idx] = dist
	scan := lidar.Scan{AngleMin: -math.Pi, AngleMax: math.Pi, AngleIncrement: inc, Ranges: ranges}
	test.That(t, g.Update(scan, spatial.RigidTransform{}), test.ShouldBeNil)
}

func lineTrack() refpath.Trajectory {
	return refpath.Trajectory{
		{X: 0.5, Y: 0, Speed: 1},
		{X: 1.0, Y: 0, Speed: 2},
		{X: 1.5, Y: 0, Speed: 3},
	}
}

func TestSelectPicksBestLookaheadMatch(t *testing.T) {
	g := selectorGrid(t)
	s, err := NewSelector([]refpath.Trajectory{lineTrack()}, g, 1.0)
	test.That(t, err, test.ShouldBeNil)

	wp, err := s.Select(spatial.RigidTransform{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, wp.X, test.ShouldAlmostEqual, 1.0)
}

func TestSelectContinuesPastOccupiedBestMatch(t *testing.T) {
	g := selectorGrid(t)
	occupy(t, g, 1.0, 0)
	s, err := NewSelector([]refpath.Trajectory{lineTrack()}, g, 1.0)
	test.That(t, err, test.ShouldBeNil)

	wp, err := s.Select(spatial.RigidTransform{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, wp.X, test.ShouldAlmostEqual, 1.5)
}

func TestSelectDiscardsWaypointsBehindVehicle(t *testing.T) {
	g := selectorGrid(t)
	track := refpath.Trajectory{
		{X: -1.0, Y: 0, Speed: 1}, // behind
		{X: 2.0, Y: 0, Speed: 2},
	}
	s, err := NewSelector([]refpath.Trajectory{track}, g, 1.0)
	test.That(t, err, test.ShouldBeNil)

	wp, err := s.Select(spatial.RigidTransform{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, wp.X, test.ShouldAlmostEqual, 2.0)
}

func TestSelectAcrossTrajectories(t *testing.T) {
	g := selectorGrid(t)
	other := refpath.Trajectory{{X: 1.05, Y: 0.1, Speed: 2}}
	s, err := NewSelector([]refpath.Trajectory{lineTrack(), other}, g, 1.05)
	test.That(t, err, test.ShouldBeNil)

	wp, err := s.Select(spatial.RigidTransform{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, wp.Y, test.ShouldAlmostEqual, 0.1)
}

func TestSelectInfeasibleWhenAllRejected(t *testing.T) {
	g := selectorGrid(t)
	track := refpath.Trajectory{{X: -1.0, Y: 0, Speed: 1}}
	s, err := NewSelector([]refpath.Trajectory{track}, g, 1.0)
	test.That(t, err, test.ShouldBeNil)

	_, err = s.Select(spatial.RigidTransform{})
	test.That(t, err, test.ShouldBeError, ErrNoFeasibleWaypoint)
}

func TestSelectUsesVehicleFrame(t *testing.T) {
	g := selectorGrid(t)
	// vehicle at (5, 0): map→vehicle shifts map points back by 5
	mapToVehicle := spatial.RigidTransform{Translation: r2.Point{X: -5}}
	track := refpath.Trajectory{
		{X: 4.0, Y: 0, Speed: 1}, // behind the vehicle
		{X: 6.0, Y: 0, Speed: 2}, // 1m ahead
	}
	s, err := NewSelector([]refpath.Trajectory{track}, g, 1.0)
	test.That(t, err, test.ShouldBeNil)

	wp, err := s.Select(mapToVehicle)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, wp.X, test.ShouldAlmostEqual, 6.0)
}
