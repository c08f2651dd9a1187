// Package gridmap maintains the planner's short-lived occupancy grid. Laser
// hits are inflated into square obstacle footprints and decay back to free
// after a fixed number of updates, so a transient detection (for example a
// moving opponent) cannot block the map indefinitely.
package gridmap

import (
	"math"
	"sync"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"github.com/f1tenth/raceplan/lidar"
	"github.com/f1tenth/raceplan/spatial"
)

// Cell occupancy values. The grid is binary; there is no unknown state.
const (
	CellFree     = byte(0)
	CellOccupied = byte(100)
)

// Config describes the grid geometry and the obstacle lifecycle policy.
type Config struct {
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	Resolution      float64 `json:"resolution"`
	OriginX         float64 `json:"origin_x"`
	OriginY         float64 `json:"origin_y"`
	InflationRadius int     `json:"inflation_radius"`
	DecayThreshold  int     `json:"decay_threshold"`
}

// Validate returns an error if the config cannot describe a usable grid.
func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return errors.Errorf("grid dimensions %dx%d must be positive", c.Width, c.Height)
	}
	if c.Resolution <= 0 {
		return errors.Errorf("grid resolution %f must be positive", c.Resolution)
	}
	if c.InflationRadius < 0 {
		return errors.New("inflation radius cannot be negative")
	}
	if c.DecayThreshold <= 0 {
		return errors.New("decay threshold must be positive")
	}
	return nil
}

// Grid is the occupancy grid. It is safe for concurrent use; every update is
// atomic with respect to Snapshot and OccupiedAt.
type Grid struct {
	mu          sync.Mutex
	cfg         Config
	cells       []byte
	pending     map[int]struct{}
	updateCount int
}

// Snapshot is an immutable copy of the grid published to external consumers.
type Snapshot struct {
	Width      int
	Height     int
	Resolution float64
	Origin     r2.Point
	Cells      []byte
}

// New constructs an all-free grid.
func New(cfg Config) (*Grid, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid grid config")
	}
	return &Grid{
		cfg:     cfg,
		cells:   make([]byte, cfg.Width*cfg.Height),
		pending: map[int]struct{}{},
	}, nil
}

// CellIndex converts a map-frame point to a flat cell index. The second
// return is false when the point falls outside the grid.
func (g *Grid) CellIndex(p r2.Point) (int, bool) {
	col := int(math.Floor((p.X - g.cfg.OriginX) / g.cfg.Resolution))
	row := int(math.Floor((p.Y - g.cfg.OriginY) / g.cfg.Resolution))
	return g.index(col, row)
}

func (g *Grid) index(col, row int) (int, bool) {
	if col < 0 || col >= g.cfg.Width || row < 0 || row >= g.cfg.Height {
		return 0, false
	}
	return row*g.cfg.Width + col, true
}

// OccupiedAt reports whether the cell containing the map-frame point is
// occupied. Points outside the grid are reported free.
func (g *Grid) OccupiedAt(p r2.Point) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx, ok := g.CellIndex(p)
	if !ok {
		return false
	}
	return g.cells[idx] == CellOccupied
}

// Update folds one laser scan into the grid using the laser→map transform
// current at scan time, then applies the decay policy. Only the central
// third-to-two-thirds angular window is used; near-side and rear returns are
// prone to self-occlusion noise.
func (g *Grid) Update(scan lidar.Scan, laserToMap spatial.RigidTransform) error {
	if err := scan.Validate(); err != nil {
		return errors.Wrap(err, "cannot update grid")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	start := len(scan.Ranges) / 6
	end := 5 * len(scan.Ranges) / 6
	for i := start; i < end; i++ {
		hit := scan.Ranges[i]
		if math.IsNaN(hit) || math.IsInf(hit, 0) {
			continue
		}
		theta := scan.AngleAt(i)
		mapPt := laserToMap.Apply(r2.Point{
			X: hit * math.Cos(theta),
			Y: hit * math.Sin(theta),
		})
		g.markInflated(mapPt)
	}

	g.updateCount++
	if g.updateCount >= g.cfg.DecayThreshold {
		for idx := range g.pending {
			g.cells[idx] = CellFree
		}
		g.pending = map[int]struct{}{}
		g.updateCount = 0
	}
	return nil
}

// markInflated marks a square window of cells around the hit as occupied.
// Cells falling outside the grid are discarded rather than wrapped.
func (g *Grid) markInflated(p r2.Point) {
	col := int(math.Floor((p.X - g.cfg.OriginX) / g.cfg.Resolution))
	row := int(math.Floor((p.Y - g.cfg.OriginY) / g.cfg.Resolution))
	r := g.cfg.InflationRadius
	for c := col - r; c <= col+r; c++ {
		for rr := row - r; rr <= row+r; rr++ {
			idx, ok := g.index(c, rr)
			if !ok {
				continue
			}
			if g.cells[idx] != CellOccupied {
				g.cells[idx] = CellOccupied
				g.pending[idx] = struct{}{}
			}
		}
	}
}

// Snapshot copies the grid for publishing.
func (g *Grid) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	cells := make([]byte, len(g.cells))
	copy(cells, g.cells)
	return Snapshot{
		Width:      g.cfg.Width,
		Height:     g.cfg.Height,
		Resolution: g.cfg.Resolution,
		Origin:     r2.Point{X: g.cfg.OriginX, Y: g.cfg.OriginY},
		Cells:      cells,
	}
}

// PendingCount reports how many cells are awaiting decay. Used by tests and
// diagnostics.
func (g *Grid) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}
