package geo

import (
	"errors"
	"math"

	"github.com/wroge/wgs84"

	"github.com/spaceshield/sitaware/pkg/core"
)

// ErrInvalidOrigin is returned when a georeference origin is out of range.
var ErrInvalidOrigin = errors.New("invalid georeference origin")

// GeoPoint is a WGS84 longitude/latitude pair with altitude in metres.
type GeoPoint struct {
	Longitude float64 `json:"lon"`
	Latitude  float64 `json:"lat"`
	Altitude  float64 `json:"alt"`
}

// Georeference pins the scene origin to a WGS84 location. Scene X points
// east, -Z points north and Y is height above the origin, all in metres.
//
// Offsets are applied in EPSG:3857 scaled by the origin's mercator scale
// factor, which is accurate for scene extents of a few kilometres.
type Georeference struct {
	origin GeoPoint
	x0, y0 float64
	scale  float64

	toLonLat func(a, b, c float64) (float64, float64, float64)
}

// NewGeoreference validates the origin and prepares the transforms.
func NewGeoreference(origin GeoPoint) (*Georeference, error) {
	if math.IsNaN(origin.Longitude) || math.IsNaN(origin.Latitude) ||
		origin.Longitude < -180 || origin.Longitude > 180 ||
		origin.Latitude <= -85 || origin.Latitude >= 85 {
		return nil, ErrInvalidOrigin
	}

	epsg := wgs84.EPSG()
	toMercator := epsg.Transform(4326, 3857)
	x0, y0, _ := toMercator(origin.Longitude, origin.Latitude, 0)

	return &Georeference{
		origin:   origin,
		x0:       x0,
		y0:       y0,
		scale:    1 / math.Cos(origin.Latitude*math.Pi/180),
		toLonLat: epsg.Transform(3857, 4326),
	}, nil
}

// ToGeo converts a scene position into WGS84.
func (g *Georeference) ToGeo(p core.Position3) GeoPoint {
	east, north := p.X, -p.Z
	lon, lat, _ := g.toLonLat(g.x0+east*g.scale, g.y0+north*g.scale, 0)
	return GeoPoint{
		Longitude: lon,
		Latitude:  lat,
		Altitude:  g.origin.Altitude + p.Y,
	}
}
