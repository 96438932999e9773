package geo

import "github.com/spaceshield/sitaware/pkg/core"

// The calibration resource and the live feed author their data in a Z-up,
// Y-forward frame; the renderer expects Y-up, -Z-forward. The two producers
// do not share an axis layout, so each ingestion path has its own mapping.
// Keep them separate unless both upstream contracts change together.

// CameraPosition maps a calibration `location` into renderer coordinates.
func CameraPosition(raw core.RawVec3) core.Position3 {
	return core.Position3{
		X: raw.X,
		Y: raw.Z,
		Z: -raw.Y,
	}
}

// CameraOrientation maps a calibration `rotation_euler` into renderer
// Euler angles (XYZ order).
func CameraOrientation(raw core.RawVec3) core.Orientation3 {
	return core.Orientation3{
		RX: raw.Y,
		RY: -raw.Z,
		RZ: -raw.X,
	}
}

// TargetPosition maps a live-feed [x, y, z] triple into renderer coordinates.
func TargetPosition(raw [3]float64) core.Position3 {
	return core.Position3{
		X: raw[0],
		Y: raw[2],
		Z: -raw[1],
	}
}

// RawCameraLocation is the inverse of CameraPosition.
func RawCameraLocation(p core.Position3) core.RawVec3 {
	return core.RawVec3{X: p.X, Y: -p.Z, Z: p.Y}
}

// RawCameraRotation is the inverse of CameraOrientation.
func RawCameraRotation(o core.Orientation3) core.RawVec3 {
	return core.RawVec3{X: -o.RZ, Y: o.RX, Z: -o.RY}
}
