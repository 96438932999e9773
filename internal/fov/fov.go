// Package fov derives the simplified field-of-view cue drawn for each camera.
package fov

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/spaceshield/sitaware/pkg/core"
)

// Defaults for the camera visual cue.
const (
	DefaultFOVDegrees   = 75.0
	DefaultVisualLength = 50.0
	DefaultBlobRadius   = 3.5
)

// Config holds the visual constants of a camera cue.
type Config struct {
	// FOVDegrees is the full angular aperture of the sensor.
	FOVDegrees float64 `json:"degrees" mapstructure:"degrees"`
	// VisualLength is how far the edge lines extend along the view axis.
	VisualLength float64 `json:"visualLength" mapstructure:"visualLength"`
	// BlobRadius is the radius of the sphere marking the camera itself.
	BlobRadius float64 `json:"blobRadius" mapstructure:"blobRadius"`
}

// DefaultConfig returns the stock cue dimensions.
func DefaultConfig() Config {
	return Config{
		FOVDegrees:   DefaultFOVDegrees,
		VisualLength: DefaultVisualLength,
		BlobRadius:   DefaultBlobRadius,
	}
}

// Cone derives the cone for this configuration.
func (c Config) Cone() core.Cone {
	return DeriveCone(c.FOVDegrees, c.VisualLength)
}

// DeriveCone computes the two symmetric edge rays of a camera's view cone in
// its local frame: apex at the origin, axis along -Z.
func DeriveCone(fovDegrees, visualLength float64) core.Cone {
	radius := visualLength * math.Tan(fovDegrees*math.Pi/180/2)
	return core.Cone{
		Radius: radius,
		EdgeA:  core.Position3{X: radius, Y: 0, Z: -visualLength},
		EdgeB:  core.Position3{X: -radius, Y: 0, Z: -visualLength},
	}
}

// WorldEdges places a cone in the scene: edges are rotated by the camera's
// orientation (X, then Y, then Z) and translated to its position.
func WorldEdges(cam core.Camera, cone core.Cone) (apex, a, b core.Position3) {
	m := rotationXYZ(cam.Orientation)
	apex = cam.Position
	a = add(cam.Position, apply(m, cone.EdgeA))
	b = add(cam.Position, apply(m, cone.EdgeB))
	return apex, a, b
}

// rotationXYZ builds Rx*Ry*Rz, matching an "XYZ" Euler order.
func rotationXYZ(o core.Orientation3) *mat.Dense {
	cx, sx := math.Cos(o.RX), math.Sin(o.RX)
	cy, sy := math.Cos(o.RY), math.Sin(o.RY)
	cz, sz := math.Cos(o.RZ), math.Sin(o.RZ)
	rx := mat.NewDense(3, 3, []float64{1, 0, 0, 0, cx, -sx, 0, sx, cx})
	ry := mat.NewDense(3, 3, []float64{cy, 0, sy, 0, 1, 0, -sy, 0, cy})
	rz := mat.NewDense(3, 3, []float64{cz, -sz, 0, sz, cz, 0, 0, 0, 1})

	var xy, r mat.Dense
	xy.Mul(rx, ry)
	r.Mul(&xy, rz)
	return &r
}

func apply(m mat.Matrix, p core.Position3) core.Position3 {
	var out mat.VecDense
	out.MulVec(m, mat.NewVecDense(3, []float64{p.X, p.Y, p.Z}))
	return core.Position3{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}

func add(p, q core.Position3) core.Position3 {
	return core.Position3{X: p.X + q.X, Y: p.Y + q.Y, Z: p.Z + q.Z}
}
