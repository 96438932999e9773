// pkg/core/raw.go
package core

// RawVec3 is an {x,y,z} triple in the source convention (Z up, Y forward).
type RawVec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// RawCameraRecord is one entry of the camera calibration resource. The
// required tags check that a key is present; an empty name is a valid id.
type RawCameraRecord struct {
	Name          *string  `json:"name" validate:"required"`
	Location      *RawVec3 `json:"location" validate:"required"`
	RotationEuler *RawVec3 `json:"rotation_euler" validate:"required"`
}
