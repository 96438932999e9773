// Package locate reconstructs 3D target positions from 2D detections seen
// by calibrated cameras. It triangulates rays, merges near-duplicate
// points, keeps track identities across frames and smooths each track with
// a constant-velocity Kalman filter.
package locate

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/spaceshield/sitaware/internal/geo"
	"github.com/spaceshield/sitaware/pkg/core"
)

// Intrinsics describes the pinhole model shared by every camera.
type Intrinsics struct {
	Width       float64 `json:"width" mapstructure:"width"`
	Height      float64 `json:"height" mapstructure:"height"`
	HFOVDegrees float64 `json:"hfovDegrees" mapstructure:"hfovDegrees"`
}

// DefaultIntrinsics is a 1280x720 sensor with a 60 degree horizontal field.
func DefaultIntrinsics() Intrinsics {
	return Intrinsics{Width: 1280, Height: 720, HFOVDegrees: 60}
}

func (in Intrinsics) focal() float64 {
	return in.Width / (2 * math.Tan(in.HFOVDegrees*math.Pi/360))
}

// Pixel is an image coordinate with the origin at the top-left corner.
type Pixel struct {
	U float64
	V float64
}

// Pose is a camera placed in the producer's raw frame (Z up).
type Pose struct {
	ID       string
	origin   *mat.VecDense
	rotation *mat.Dense
}

// PoseFromCamera rebuilds the raw pose of a calibrated camera.
func PoseFromCamera(c core.Camera) Pose {
	loc := geo.RawCameraLocation(c.Position)
	rot := geo.RawCameraRotation(c.Orientation)
	return Pose{
		ID:       c.ID,
		origin:   mat.NewVecDense(3, []float64{loc.X, loc.Y, loc.Z}),
		rotation: eulerZYX(rot.X, rot.Y, rot.Z),
	}
}

// eulerZYX returns Rz*Ry*Rx.
func eulerZYX(x, y, z float64) *mat.Dense {
	cx, sx := math.Cos(x), math.Sin(x)
	cy, sy := math.Cos(y), math.Sin(y)
	cz, sz := math.Cos(z), math.Sin(z)
	rx := mat.NewDense(3, 3, []float64{1, 0, 0, 0, cx, -sx, 0, sx, cx})
	ry := mat.NewDense(3, 3, []float64{cy, 0, sy, 0, 1, 0, -sy, 0, cy})
	rz := mat.NewDense(3, 3, []float64{cz, -sz, 0, sz, cz, 0, 0, 0, 1})

	var zy, r mat.Dense
	zy.Mul(rz, ry)
	r.Mul(&zy, rx)
	return &r
}

// Ray returns the world ray through a pixel. The camera looks down its
// local -Z axis with +Y up in the image.
func (p Pose) Ray(in Intrinsics, px Pixel) Ray {
	local := mat.NewVecDense(3, []float64{
		px.U - in.Width/2,
		-(px.V - in.Height/2),
		-in.focal(),
	})
	var world mat.VecDense
	world.MulVec(p.rotation, local)
	return Ray{Origin: vec3(p.origin), Dir: vec3(&world)}
}

// Project returns the pixel a raw point falls on. It reports false for
// points behind the camera or outside the image.
func (p Pose) Project(in Intrinsics, point [3]float64) (Pixel, bool) {
	var rel, local mat.VecDense
	rel.SubVec(mat.NewVecDense(3, point[:]), p.origin)
	local.MulVec(p.rotation.T(), &rel)

	depth := -local.AtVec(2)
	if depth <= 0 {
		return Pixel{}, false
	}
	f := in.focal()
	px := Pixel{
		U: in.Width/2 + f*local.AtVec(0)/depth,
		V: in.Height/2 - f*local.AtVec(1)/depth,
	}
	if px.U < 0 || px.U >= in.Width || px.V < 0 || px.V >= in.Height {
		return Pixel{}, false
	}
	return px, true
}

func vec3(v mat.Vector) [3]float64 {
	return [3]float64{v.AtVec(0), v.AtVec(1), v.AtVec(2)}
}
