// Package refpath loads and holds the precomputed reference trajectories the
// planner follows. Trajectories are loaded once at startup and never mutated.
package refpath

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"github.com/f1tenth/raceplan/spatial"
)

// Waypoint is a single reference point on a track.
type Waypoint struct {
	X       float64
	Y       float64
	Heading float64
	Speed   float64
}

// Point returns the waypoint's map-frame position.
func (w Waypoint) Point() r2.Point {
	return r2.Point{X: w.X, Y: w.Y}
}

// Pose returns the waypoint's map-frame pose.
func (w Waypoint) Pose() spatial.Pose2D {
	return spatial.Pose2D{X: w.X, Y: w.Y, Theta: w.Heading}
}

// WaypointFromPose is the canonical pose→waypoint conversion.
func WaypointFromPose(p spatial.Pose2D, speed float64) Waypoint {
	return Waypoint{X: p.X, Y: p.Y, Heading: p.Theta, Speed: speed}
}

// Trajectory is an ordered sequence of waypoints; ordering is path
// progression.
type Trajectory []Waypoint

// Load reads one or more trajectories from a delimited text file, one
// waypoint per record as x,y,heading,speed. A blank line separates tracks;
// lines starting with '#' are comments. Any malformed record fails the whole
// load; there is no degraded mode without a usable reference path.
func Load(path, delimiter string) ([]Trajectory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open reference path file")
	}
	defer f.Close()
	return read(f, delimiter, path)
}

func read(r io.Reader, delimiter, name string) ([]Trajectory, error) {
	var (
		tracks  []Trajectory
		current Trajectory
	)
	flush := func() {
		if len(current) > 0 {
			tracks = append(tracks, current)
			current = nil
		}
	}

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			flush()
			continue
		}
		if strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Split(text, delimiter)
		if len(fields) < 4 {
			return nil, errors.Errorf("reference record at %s:%d has %d fields, want at least 4", name, line, len(fields))
		}
		var vals [4]float64
		for i := 0; i < 4; i++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
			if err != nil {
				return nil, errors.Wrapf(err, "reference record at %s:%d", name, line)
			}
			vals[i] = v
		}
		current = append(current, Waypoint{
			X:       vals[0],
			Y:       vals[1],
			Heading: vals[2],
			Speed:   vals[3],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading reference path %s", name)
	}
	flush()

	if len(tracks) == 0 {
		return nil, errors.Errorf("reference path %s contains no waypoints", name)
	}
	return tracks, nil
}
