package geo

import (
	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/spaceshield/sitaware/pkg/core"
)

// TrailLineString builds the ground-plane geometry of a trail.
// Coordinates are laid out as X=east (x), Y=north (-z), Z=up (y) so that
// planar operations such as Length measure the ground track.
// It returns false when the points do not form a valid line: fewer than two
// distinct ground positions, or a non-finite coordinate.
func TrailLineString(points []core.Position3) (geom.LineString, bool) {
	if len(points) < 2 {
		return geom.LineString{}, false
	}

	flat := make([]float64, 0, len(points)*3)
	for _, p := range points {
		flat = append(flat, p.X, -p.Z, p.Y)
	}

	seq := geom.NewSequence(flat, geom.DimXYZ)
	ls, err := geom.NewLineString(seq)
	if err != nil {
		return geom.LineString{}, false
	}
	return ls, true
}

// GroundDistance is the horizontal distance between two positions. It is 0
// for a purely vertical move or when either position is not finite.
func GroundDistance(a, b core.Position3) float64 {
	ls, ok := TrailLineString([]core.Position3{a, b})
	if !ok {
		return 0
	}
	return ls.Length()
}
