package gridmap

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"

	"github.com/f1tenth/raceplan/lidar"
	"github.com/f1tenth/raceplan/spatial"
)

func testConfig() Config {
	return Config{
		Width:           100,
		Height:          100,
		Resolution:      0.1,
		OriginX:         -5,
		OriginY:         -5,
		InflationRadius: 1,
		DecayThreshold:  3,
	}
}

// forwardScan builds a scan with a single finite return straight ahead; the
// rest is NaN so only one hit lands in the grid.
func forwardScan(n int, dist float64) lidar.Scan {
	ranges := make([]float64, n)
	for i := range ranges {
		ranges[i] = math.NaN()
	}
	ranges[n/2] = dist
	inc := 2 * math.Pi / float64(n)
	return lidar.Scan{
		AngleMin:       -math.Pi,
		AngleMax:       math.Pi,
		AngleIncrement: inc,
		Ranges:         ranges,
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	bad := testConfig()
	bad.Resolution = 0
	_, err := New(bad)
	test.That(t, err, test.ShouldNotBeNil)

	bad = testConfig()
	bad.Width = -1
	_, err = New(bad)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestUpdateMarksInflatedSquare(t *testing.T) {
	g, err := New(testConfig())
	test.That(t, err, test.ShouldBeNil)

	// hit 1m ahead of a laser at the map origin
	err = g.Update(forwardScan(360, 1.0), spatial.RigidTransform{})
	test.That(t, err, test.ShouldBeNil)

	// beam at angle ~0 lands at (1, 0); 3x3 inflation window
	test.That(t, g.OccupiedAt(r2.Point{X: 1, Y: 0}), test.ShouldBeTrue)
	test.That(t, g.OccupiedAt(r2.Point{X: 1.1, Y: 0.1}), test.ShouldBeTrue)
	test.That(t, g.OccupiedAt(r2.Point{X: 2, Y: 2}), test.ShouldBeFalse)
	test.That(t, g.PendingCount(), test.ShouldEqual, 9)
}

func TestUpdateIdempotentBeforeDecay(t *testing.T) {
	g, err := New(testConfig())
	test.That(t, err, test.ShouldBeNil)

	scan := forwardScan(360, 1.0)
	test.That(t, g.Update(scan, spatial.RigidTransform{}), test.ShouldBeNil)
	n := g.PendingCount()
	test.That(t, g.Update(scan, spatial.RigidTransform{}), test.ShouldBeNil)
	test.That(t, g.PendingCount(), test.ShouldEqual, n)
}

func TestDecayClearsStaleObstacles(t *testing.T) {
	cfg := testConfig()
	g, err := New(cfg)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, g.Update(forwardScan(360, 1.0), spatial.RigidTransform{}), test.ShouldBeNil)
	test.That(t, g.OccupiedAt(r2.Point{X: 1, Y: 0}), test.ShouldBeTrue)

	// empty scans until the decay threshold fires
	empty := forwardScan(360, math.NaN())
	for i := 0; i < cfg.DecayThreshold; i++ {
		test.That(t, g.Update(empty, spatial.RigidTransform{}), test.ShouldBeNil)
	}
	test.That(t, g.OccupiedAt(r2.Point{X: 1, Y: 0}), test.ShouldBeFalse)
	test.That(t, g.PendingCount(), test.ShouldEqual, 0)
}

func TestOutOfBoundsHitsDiscarded(t *testing.T) {
	g, err := New(testConfig())
	test.That(t, err, test.ShouldBeNil)

	// hit far beyond the 10m grid extent
	test.That(t, g.Update(forwardScan(360, 500), spatial.RigidTransform{}), test.ShouldBeNil)
	snap := g.Snapshot()
	for _, c := range snap.Cells {
		test.That(t, c, test.ShouldEqual, CellFree)
	}
}

func TestUpdateUsesTransform(t *testing.T) {
	g, err := New(testConfig())
	test.That(t, err, test.ShouldBeNil)

	// laser translated 1m along +Y: the forward hit lands at (1, 1)
	tf := spatial.RigidTransform{Translation: r2.Point{X: 0, Y: 1}}
	test.That(t, g.Update(forwardScan(360, 1.0), tf), test.ShouldBeNil)
	test.That(t, g.OccupiedAt(r2.Point{X: 1, Y: 1}), test.ShouldBeTrue)
	test.That(t, g.OccupiedAt(r2.Point{X: 1, Y: 0}), test.ShouldBeFalse)
}

func TestSnapshotIsACopy(t *testing.T) {
	g, err := New(testConfig())
	test.That(t, err, test.ShouldBeNil)

	snap := g.Snapshot()
	snap.Cells[0] = CellOccupied
	test.That(t, g.Snapshot().Cells[0], test.ShouldEqual, CellFree)
}
