package planner

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/f1tenth/raceplan/gapfollow"
	"github.com/f1tenth/raceplan/gridmap"
	"github.com/f1tenth/raceplan/mpc"
)

// Frames names the coordinate frames the planner looks up transforms
// between.
type Frames struct {
	Map      string `json:"map"`
	Laser    string `json:"laser"`
	Base     string `json:"base"`
	Opponent string `json:"opponent"`
}

// Config is the planner's static startup configuration.
type Config struct {
	Lookahead     float64          `json:"lookahead"`
	PathDelimiter string           `json:"path_delimiter"`
	Frames        Frames           `json:"frames"`
	Grid          gridmap.Config   `json:"grid"`
	Gap           gapfollow.Config `json:"gap"`
	Tracker       mpc.Config       `json:"tracker"`
}

// DefaultConfig returns a runnable tuning for an F1TENTH-scale vehicle.
func DefaultConfig() Config {
	return Config{
		Lookahead:     1.0,
		PathDelimiter: ",",
		Frames: Frames{
			Map:      "map",
			Laser:    "laser",
			Base:     "base_link",
			Opponent: "opp_base_link",
		},
		Grid: gridmap.Config{
			Width:           500,
			Height:          500,
			Resolution:      0.05,
			OriginX:         -12.5,
			OriginY:         -12.5,
			InflationRadius: 3,
			DecayThreshold:  50,
		},
		Gap: gapfollow.Config{
			FOVDegrees:     180,
			MaxUsableRange: 10,
			BubbleRadius:   0.35,
			GapThreshold:   2.0,
			MinGapSize:     40,
		},
		Tracker: mpc.Config{
			Horizon:    10,
			DT:         0.1,
			Wheelbase:  0.33,
			SteerLimit: 0.41,
			MinSpeed:   0,
			MaxSpeed:   5,
			Weights: mpc.Weights{
				PosX:      5,
				PosY:      5,
				Heading:   2,
				Steer:     0.1,
				Speed:     0.1,
				SteerRate: 0.05,
				SpeedRate: 0.05,
			},
			MaxSolveEvals: 200,
			MaxRecoveries: 3,
		},
	}
}

// ReadConfig loads a config file, filling unset fields from the defaults.
func ReadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "cannot read planner config")
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "cannot parse planner config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "invalid planner config %s", path)
	}
	return cfg, nil
}

// Validate checks the whole configuration set.
func (c Config) Validate() error {
	if c.Lookahead <= 0 {
		return errors.New("lookahead must be positive")
	}
	if c.PathDelimiter == "" {
		return errors.New("path delimiter cannot be empty")
	}
	if c.Frames.Map == "" || c.Frames.Laser == "" || c.Frames.Base == "" {
		return errors.New("map, laser, and base frames must all be named")
	}
	if err := c.Grid.Validate(); err != nil {
		return errors.Wrap(err, "grid")
	}
	if err := c.Gap.Validate(); err != nil {
		return errors.Wrap(err, "gap follower")
	}
	if err := c.Tracker.Validate(); err != nil {
		return errors.Wrap(err, "tracker")
	}
	return nil
}
