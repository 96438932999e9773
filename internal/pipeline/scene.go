package pipeline

import (
	"github.com/spaceshield/sitaware/internal/feed"
	"github.com/spaceshield/sitaware/internal/fov"
	"github.com/spaceshield/sitaware/internal/geo"
	"github.com/spaceshield/sitaware/pkg/core"
)

// CameraView is a camera with its cone placed in the scene.
type CameraView struct {
	Camera core.Camera    `json:"camera"`
	Apex   core.Position3 `json:"apex"`
	EdgeA  core.Position3 `json:"edgeA"`
	EdgeB  core.Position3 `json:"edgeB"`
}

// Scene is a read-only snapshot of the session. All slices and maps are
// copies owned by the caller.
type Scene struct {
	Cameras  []CameraView                `json:"cameras"`
	Targets  []core.Target               `json:"targets"`
	Trails   map[string][]core.Position3 `json:"trails"`
	Cone     core.Cone                   `json:"cone"`
	FOV      fov.Config                  `json:"fov"`
	Frame    int64                       `json:"frame"`
	HasFrame bool                        `json:"hasFrame"`
	State    feed.State                  `json:"-"`
}

// TrailLength is the ground-track length of a target's trail in metres.
func (sc Scene) TrailLength(id string) float64 {
	ls, ok := geo.TrailLineString(sc.Trails[id])
	if !ok {
		return 0
	}
	return ls.Length()
}

// Summary condenses the scene for periodic status output.
type Summary struct {
	State       string  `json:"state"`
	Frame       int64   `json:"frame"`
	Cameras     int     `json:"cameras"`
	Targets     int     `json:"targets"`
	TrailPoints int     `json:"trailPoints"`
	GroundTrack float64 `json:"groundTrack"`
}

// Summarize counts what the scene holds.
func (sc Scene) Summarize() Summary {
	sum := Summary{
		State:   sc.State.String(),
		Frame:   sc.Frame,
		Cameras: len(sc.Cameras),
		Targets: len(sc.Targets),
	}
	for id, pts := range sc.Trails {
		sum.TrailPoints += len(pts)
		sum.GroundTrack += sc.TrailLength(id)
	}
	return sum
}
