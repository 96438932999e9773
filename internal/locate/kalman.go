package locate

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// KalmanConfig parameterises the constant-velocity filter.
type KalmanConfig struct {
	DT               float64 `json:"dt" mapstructure:"dt"`
	InitialVariance  float64 `json:"initialVariance" mapstructure:"initialVariance"`
	ProcessNoise     float64 `json:"processNoise" mapstructure:"processNoise"`
	MeasurementNoise float64 `json:"measurementNoise" mapstructure:"measurementNoise"`
}

// DefaultKalmanConfig steps one frame at a time and trusts measurements
// far more than the zero initial state.
func DefaultKalmanConfig() KalmanConfig {
	return KalmanConfig{DT: 1, InitialVariance: 500, ProcessNoise: 0.1, MeasurementNoise: 10}
}

// Kalman tracks [x y z vx vy vz] from position measurements.
type Kalman struct {
	x *mat.VecDense
	p *mat.Dense
	f *mat.Dense
	h *mat.Dense
	q *mat.Dense
	r *mat.Dense
}

// NewKalman starts a filter at the origin with zero velocity.
func NewKalman(cfg KalmanConfig) *Kalman {
	f := identity(6, 1)
	h := mat.NewDense(3, 6, nil)
	for i := 0; i < 3; i++ {
		f.Set(i, i+3, cfg.DT)
		h.Set(i, i, 1)
	}
	return &Kalman{
		x: mat.NewVecDense(6, nil),
		p: identity(6, cfg.InitialVariance),
		f: f,
		h: h,
		q: identity(6, cfg.ProcessNoise),
		r: identity(3, cfg.MeasurementNoise),
	}
}

// Predict advances the state by one step.
func (k *Kalman) Predict() {
	var x mat.VecDense
	x.MulVec(k.f, k.x)
	k.x = &x

	var fp, fpf, p mat.Dense
	fp.Mul(k.f, k.p)
	fpf.Mul(&fp, k.f.T())
	p.Add(&fpf, k.q)
	k.p = &p
}

// Update folds in a measured position and returns the filtered position.
func (k *Kalman) Update(z [3]float64) ([3]float64, error) {
	var hx, y mat.VecDense
	hx.MulVec(k.h, k.x)
	y.SubVec(mat.NewVecDense(3, z[:]), &hx)

	var hp, hph, s, sInv mat.Dense
	hp.Mul(k.h, k.p)
	hph.Mul(&hp, k.h.T())
	s.Add(&hph, k.r)
	if err := sInv.Inverse(&s); err != nil {
		return [3]float64{}, fmt.Errorf("invert innovation covariance: %w", err)
	}

	var pht, gain mat.Dense
	pht.Mul(k.p, k.h.T())
	gain.Mul(&pht, &sInv)

	var dx, x mat.VecDense
	dx.MulVec(&gain, &y)
	x.AddVec(k.x, &dx)
	k.x = &x

	var kh, ikh, p mat.Dense
	kh.Mul(&gain, k.h)
	ikh.Sub(identity(6, 1), &kh)
	p.Mul(&ikh, k.p)
	k.p = &p

	return k.Position(), nil
}

// Position returns the current position estimate.
func (k *Kalman) Position() [3]float64 {
	return vec3(k.x)
}
