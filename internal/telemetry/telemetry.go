// Package telemetry derives per-target readouts (altitude, ground speed,
// heading) from consecutive frames.
package telemetry

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/spaceshield/sitaware/internal/geo"
	"github.com/spaceshield/sitaware/pkg/core"
)

// Readout is the telemetry of one target as of its last observation.
// Altitude is the scene height (Y) in metres, SpeedMPS the ground speed
// between the last two observations and Heading the bearing in degrees
// clockwise from north (-Z), valid once the target has moved horizontally.
type Readout struct {
	ID           string         `json:"id"`
	Position     core.Position3 `json:"position"`
	Altitude     float64        `json:"altitude"`
	SpeedMPS     float64        `json:"speedMps"`
	Heading      float64        `json:"heading"`
	HeadingValid bool           `json:"headingValid"`
	LastUpdate   time.Time      `json:"lastUpdate"`
	Geo          *geo.GeoPoint  `json:"geo,omitempty"`
}

// SpeedKMH returns the ground speed in km/h.
func (r Readout) SpeedKMH() float64 {
	return r.SpeedMPS * 3.6
}

// Tracker keeps the latest readout per target. Targets missing from an
// observed frame are forgotten.
type Tracker struct {
	mu       sync.RWMutex
	georef   *geo.Georeference
	readouts map[string]Readout
}

// NewTracker creates a tracker. georef may be nil.
func NewTracker(georef *geo.Georeference) *Tracker {
	return &Tracker{
		georef:   georef,
		readouts: make(map[string]Readout),
	}
}

// Observe folds one frame received at the given time into the readouts.
func (t *Tracker) Observe(at time.Time, targets []core.Target) {
	t.mu.Lock()
	defer t.mu.Unlock()

	present := make(map[string]struct{}, len(targets))
	for _, tg := range targets {
		present[tg.ID] = struct{}{}

		next := Readout{
			ID:         tg.ID,
			Position:   tg.Position,
			Altitude:   tg.Position.Y,
			LastUpdate: at,
		}
		if prev, ok := t.readouts[tg.ID]; ok {
			next.Heading, next.HeadingValid = prev.Heading, prev.HeadingValid

			dist := geo.GroundDistance(prev.Position, tg.Position)
			if dt := at.Sub(prev.LastUpdate).Seconds(); dt > 0 {
				next.SpeedMPS = dist / dt
			}
			if dist > 0 {
				next.Heading = Heading(prev.Position, tg.Position)
				next.HeadingValid = true
			}
		}
		if t.georef != nil {
			p := t.georef.ToGeo(tg.Position)
			next.Geo = &p
		}
		t.readouts[tg.ID] = next
	}

	for id := range t.readouts {
		if _, ok := present[id]; !ok {
			delete(t.readouts, id)
		}
	}
}

// Get returns the readout of one target.
func (t *Tracker) Get(id string) (Readout, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.readouts[id]
	return r, ok
}

// All returns every readout sorted by ID.
func (t *Tracker) All() []Readout {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Readout, 0, len(t.readouts))
	for _, r := range t.readouts {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of tracked targets.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.readouts)
}

// Heading returns the compass bearing from a to b in degrees [0, 360),
// with north along -Z and east along +X.
func Heading(a, b core.Position3) float64 {
	deg := math.Atan2(b.X-a.X, -(b.Z-a.Z)) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return deg
}
