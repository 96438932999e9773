// Package simulate produces synthetic frame_data for demos and tests.
package simulate

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/spaceshield/sitaware/pkg/core"
	"github.com/spaceshield/sitaware/pkg/streaming"
)

// DefaultBound is the half-width of the square the demo targets bounce in.
const DefaultBound = 20.0

// Body is a simulated target in the target convention. It moves on the
// ground plane with a constant velocity per step.
type Body struct {
	ID  string
	Pos core.Position3
	VX  float64
	VZ  float64
}

// DemoBodies returns the two targets of the stock demo scene.
func DemoBodies() []Body {
	return []Body{
		{ID: "target1", Pos: core.Position3{X: 5, Y: 1, Z: 5}, VX: 1.5, VZ: 0.2},
		{ID: "target2", Pos: core.Position3{X: -5, Y: 1.5, Z: -5}, VX: -1.3, VZ: 0.4},
	}
}

// RandomBodies returns n bodies with numeric IDs placed inside bound.
func RandomBodies(n int, seed int64, bound float64) []Body {
	rng := rand.New(rand.NewSource(seed))
	bodies := make([]Body, 0, n)
	for i := 0; i < n; i++ {
		bodies = append(bodies, Body{
			ID: fmt.Sprint(i + 1),
			Pos: core.Position3{
				X: (rng.Float64()*2 - 1) * bound,
				Y: 1 + rng.Float64()*4,
				Z: (rng.Float64()*2 - 1) * bound,
			},
			VX: (rng.Float64()*2 - 1) * 2,
			VZ: (rng.Float64()*2 - 1) * 2,
		})
	}
	return bodies
}

// Bouncer advances bodies and flips a velocity component once the body
// has crossed the bound on that axis.
type Bouncer struct {
	mu     sync.Mutex
	bodies []Body
	bound  float64
	frame  int64
}

// NewBouncer creates a Bouncer. bound <= 0 uses DefaultBound.
func NewBouncer(bodies []Body, bound float64) *Bouncer {
	if bound <= 0 {
		bound = DefaultBound
	}
	return &Bouncer{bodies: append([]Body(nil), bodies...), bound: bound}
}

// Step moves every body once and returns the new positions.
func (b *Bouncer) Step() []Body {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.bodies {
		body := &b.bodies[i]
		body.Pos.X += body.VX
		body.Pos.Z += body.VZ
		if body.Pos.X > b.bound || body.Pos.X < -b.bound {
			body.VX = -body.VX
		}
		if body.Pos.Z > b.bound || body.Pos.Z < -b.bound {
			body.VZ = -body.VZ
		}
	}
	b.frame++
	return append([]Body(nil), b.bodies...)
}

// Next steps the simulation and encodes it as a frame_data payload in the
// producer's raw axis order, rounded to centimetres.
func (b *Bouncer) Next() streaming.FrameData {
	bodies := b.Step()

	b.mu.Lock()
	frame := b.frame
	b.mu.Unlock()

	objects := make(map[string][3]float64, len(bodies))
	for _, body := range bodies {
		objects[body.ID] = RawPosition(body.Pos)
	}
	return streaming.NewFrameData(frame, objects)
}

// RawPosition is the inverse of the live feed mapping: it turns a
// target-convention position back into the producer's [x, y, z].
func RawPosition(p core.Position3) [3]float64 {
	return [3]float64{round2(p.X), round2(-p.Z), round2(p.Y)}
}

func round2(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0
	}
	return r
}
