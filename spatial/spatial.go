// Package spatial implements the planar pose and rigid transform math used
// throughout the planner. All angles are radians, all distances meters.
package spatial

import (
	"math"

	"github.com/golang/geo/r2"
)

// Pose2D is a planar pose; Theta is measured counterclockwise from the +X axis.
type Pose2D struct {
	X     float64
	Y     float64
	Theta float64
}

// Point returns the position component of the pose.
func (p Pose2D) Point() r2.Point {
	return r2.Point{X: p.X, Y: p.Y}
}

// RigidTransform is a planar rigid-body transform (rotation then translation)
// between two named frames.
type RigidTransform struct {
	Translation r2.Point
	Yaw         float64
}

// Apply transforms a point from the source frame into the destination frame.
func (t RigidTransform) Apply(p r2.Point) r2.Point {
	sin, cos := math.Sincos(t.Yaw)
	return r2.Point{
		X: p.X*cos - p.Y*sin + t.Translation.X,
		Y: p.X*sin + p.Y*cos + t.Translation.Y,
	}
}

// ApplyToPose transforms a pose, rotating its heading by the transform's yaw.
func (t RigidTransform) ApplyToPose(p Pose2D) Pose2D {
	pt := t.Apply(p.Point())
	return Pose2D{X: pt.X, Y: pt.Y, Theta: NormalizeAngle(p.Theta + t.Yaw)}
}

// Inverse returns the transform mapping the destination frame back onto the
// source frame.
func (t RigidTransform) Inverse() RigidTransform {
	sin, cos := math.Sincos(-t.Yaw)
	return RigidTransform{
		Translation: r2.Point{
			X: -t.Translation.X*cos + t.Translation.Y*sin,
			Y: -t.Translation.X*sin - t.Translation.Y*cos,
		},
		Yaw: -t.Yaw,
	}
}

// NormalizeAngle wraps an angle into (-π, π].
func NormalizeAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
