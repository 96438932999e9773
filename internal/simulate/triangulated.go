package simulate

import (
	"slices"

	"github.com/spaceshield/sitaware/internal/locate"
	"github.com/spaceshield/sitaware/pkg/streaming"
)

// Triangulated runs the bouncing bodies through the cameras and the
// locator, so the feed carries reconstructed positions and track ids
// instead of the exact ground truth.
type Triangulated struct {
	bouncer *Bouncer
	locator *locate.Locator
}

// NewTriangulated wraps b so each frame is re-derived by l.
func NewTriangulated(b *Bouncer, l *locate.Locator) *Triangulated {
	return &Triangulated{bouncer: b, locator: l}
}

// Next projects the next ground-truth frame into every camera and
// locates the resulting detections.
func (t *Triangulated) Next() streaming.FrameData {
	truth := t.bouncer.Next()

	ids := make([]string, 0, len(truth.Objects))
	for id := range truth.Objects {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	points := make([][3]float64, 0, len(ids))
	for _, id := range ids {
		p := truth.Objects[id]
		if len(p) != 3 {
			continue
		}
		points = append(points, [3]float64{p[0], p[1], p[2]})
	}
	return t.locator.Locate(t.locator.Views(points))
}
