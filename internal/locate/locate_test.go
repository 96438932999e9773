package locate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaceshield/sitaware/internal/geo"
	"github.com/spaceshield/sitaware/internal/logging"
	"github.com/spaceshield/sitaware/pkg/core"
)

// firstGain is the position gain of the first update from the default
// filter: (P0 + dt^2*P0 + q) / (that + r).
const firstGain = 1000.1 / 1010.1

func rawCamera(id string, loc, rot core.RawVec3) core.Camera {
	return core.Camera{ID: id, Position: geo.CameraPosition(loc), Orientation: geo.CameraOrientation(rot)}
}

// rig is one camera overhead looking down and one on the +X side looking
// back at the origin.
func rig() []core.Camera {
	return []core.Camera{
		rawCamera("top", core.RawVec3{Z: 100}, core.RawVec3{}),
		rawCamera("side", core.RawVec3{X: 100}, core.RawVec3{Y: math.Pi / 2}),
	}
}

func TestIntersect_Perpendicular(t *testing.T) {
	p, gap, err := Intersect(
		Ray{Origin: [3]float64{0, 0, 0}, Dir: [3]float64{1, 0, 0}},
		Ray{Origin: [3]float64{5, -5, 0}, Dir: [3]float64{0, 3, 0}},
	)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{5, 0, 0}, p[:], 1e-9)
	assert.InDelta(t, 0, gap, 1e-9)
}

func TestIntersect_SkewRaysMeetHalfway(t *testing.T) {
	p, gap, err := Intersect(
		Ray{Origin: [3]float64{0, 0, 0}, Dir: [3]float64{1, 0, 0}},
		Ray{Origin: [3]float64{0, 0, 2}, Dir: [3]float64{0, 1, 0}},
	)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0, 1}, p[:], 1e-9)
	assert.InDelta(t, 1, gap, 1e-9)
}

func TestIntersect_Degenerate(t *testing.T) {
	tests := []struct {
		name string
		rays []Ray
	}{
		{"single ray", []Ray{{Dir: [3]float64{1, 0, 0}}}},
		{"parallel", []Ray{
			{Origin: [3]float64{0, 0, 0}, Dir: [3]float64{1, 0, 0}},
			{Origin: [3]float64{0, 1, 0}, Dir: [3]float64{2, 0, 0}},
		}},
		{"zero direction", []Ray{
			{Dir: [3]float64{1, 0, 0}},
			{Origin: [3]float64{0, 1, 0}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Intersect(tt.rays...)
			assert.ErrorIs(t, err, ErrDegenerate)
		})
	}
}

func TestMerge(t *testing.T) {
	got := Merge([][3]float64{{0, 0, 0}, {40, 0, 0}, {10, 0, 0}, {44, 0, 0}}, 15)
	require.Len(t, got, 2)
	assert.InDeltaSlice(t, []float64{5, 0, 0}, got[0][:], 1e-9)
	assert.InDeltaSlice(t, []float64{42, 0, 0}, got[1][:], 1e-9)

	assert.Empty(t, Merge(nil, 15))
}

func TestPose_CentreRayAndProjection(t *testing.T) {
	in := DefaultIntrinsics()
	side := PoseFromCamera(rig()[1])
	assert.InDeltaSlice(t, []float64{100, 0, 0}, side.origin.RawVector().Data, 1e-9)

	r := side.Ray(in, Pixel{U: 640, V: 360})
	n := math.Sqrt(r.Dir[0]*r.Dir[0] + r.Dir[1]*r.Dir[1] + r.Dir[2]*r.Dir[2])
	assert.InDeltaSlice(t, []float64{-1, 0, 0}, []float64{r.Dir[0] / n, r.Dir[1] / n, r.Dir[2] / n}, 1e-9)

	px, ok := side.Project(in, [3]float64{0, 0, 0})
	require.True(t, ok)
	assert.InDelta(t, 640, px.U, 1e-9)
	assert.InDelta(t, 360, px.V, 1e-9)

	_, ok = side.Project(in, [3]float64{200, 0, 0})
	assert.False(t, ok, "behind the camera")
	_, ok = side.Project(in, [3]float64{0, 0, 90})
	assert.False(t, ok, "outside the image")
}

func TestPose_ProjectThenRayPassesThroughPoint(t *testing.T) {
	in := DefaultIntrinsics()
	point := [3]float64{12, -7, 3}
	for _, cam := range rig() {
		pose := PoseFromCamera(cam)
		px, ok := pose.Project(in, point)
		require.True(t, ok, cam.ID)
		assert.InDelta(t, 0, distanceToRay(point, pose.Ray(in, px)), 1e-9, cam.ID)
	}
}

func TestKalman_FirstUpdateAndConvergence(t *testing.T) {
	k := NewKalman(DefaultKalmanConfig())
	k.Predict()
	pos, err := k.Update([3]float64{10, -20, 5})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{10 * firstGain, -20 * firstGain, 5 * firstGain}, pos[:], 1e-9)

	for i := 0; i < 60; i++ {
		k.Predict()
		pos, err = k.Update([3]float64{10, -20, 5})
		require.NoError(t, err)
	}
	assert.InDeltaSlice(t, []float64{10, -20, 5}, pos[:], 0.1)
	assert.InDeltaSlice(t, []float64{0, 0, 0}, k.x.RawVector().Data[3:], 0.1)
}

func TestLocator_TrackKeepsIDWithinReach(t *testing.T) {
	l := New(DefaultConfig(), rig(), logging.Discard())

	fd := l.Locate(l.Views([][3]float64{{0, 0, 0}}))
	require.NotNil(t, fd.Frame)
	assert.Equal(t, int64(0), *fd.Frame)
	require.Contains(t, fd.Objects, "0")

	fd = l.Locate(l.Views([][3]float64{{10, 0, 0}}))
	assert.Equal(t, int64(1), *fd.Frame)
	require.Len(t, fd.Objects, 1)
	assert.Contains(t, fd.Objects, "0", "a 10 unit move stays on the same track")

	fd = l.Locate(l.Views([][3]float64{{45, 0, 0}}))
	require.Len(t, fd.Objects, 1)
	assert.Contains(t, fd.Objects, "1", "a jump past the association distance opens a new track")
}

func TestLocator_RayGapRejectsCrossPairings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRayGap = 0.01
	l := New(cfg, rig(), logging.Discard())

	fd := l.Locate(l.Views([][3]float64{{0, 0, 0}, {20, 10, 5}}))
	require.Len(t, fd.Objects, 2)
	assert.InDeltaSlice(t, []float64{0, 0, 0}, fd.Objects["0"], 0.01)
	assert.InDeltaSlice(t, []float64{20 * firstGain, 10 * firstGain, 5 * firstGain}, fd.Objects["1"], 0.01)
}

func TestLocator_IgnoresUnknownCamerasAndLoneViews(t *testing.T) {
	l := New(DefaultConfig(), rig(), logging.Discard())

	fd := l.Locate([]View{
		{Camera: "top", Detections: []Pixel{{U: 640, V: 360}}},
		{Camera: "elsewhere", Detections: []Pixel{{U: 640, V: 360}}},
	})
	assert.Empty(t, fd.Objects, "one known camera cannot triangulate")
	assert.Equal(t, int64(0), *fd.Frame)

	fd = l.Locate(nil)
	assert.Empty(t, fd.Objects)
	assert.Equal(t, int64(1), *fd.Frame)
}
