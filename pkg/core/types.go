// pkg/core/types.go
package core

import "time"

// Position3 is a point in the renderer's coordinate convention
// (right-handed, Y up, -Z forward).
type Position3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Orientation3 holds Euler angles in radians around the renderer's axes.
// Rotations are applied in X, Y, Z order (rotation matrix Rx*Ry*Rz).
type Orientation3 struct {
	RX float64 `json:"rx"`
	RY float64 `json:"ry"`
	RZ float64 `json:"rz"`
}

// Camera is a fixed sensor loaded from the calibration resource.
type Camera struct {
	ID          string       `json:"id"`
	Position    Position3    `json:"position"`
	Orientation Orientation3 `json:"orientation"`
}

// Target is a tracked entity present in the most recent snapshot.
type Target struct {
	ID       string    `json:"id"`
	Position Position3 `json:"position"`
}

// Frame is one processed snapshot from the live feed.
type Frame struct {
	Number     int64     `json:"frame"`
	ReceivedAt time.Time `json:"receivedAt"`
	Targets    []Target  `json:"targets"`
}

// Cone is the two-edge field-of-view cue of a camera in its local frame.
// The apex is the origin and the axis points along local -Z.
type Cone struct {
	Radius float64   `json:"radius"`
	EdgeA  Position3 `json:"edgeA"`
	EdgeB  Position3 `json:"edgeB"`
}
