package locate

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrDegenerate is returned when rays do not pin down a single point.
var ErrDegenerate = errors.New("rays do not intersect")

// Ray is a half-line in raw coordinates. Dir need not be normalised.
type Ray struct {
	Origin [3]float64
	Dir    [3]float64
}

// Intersect returns the point closest to all rays in the least-squares
// sense together with its largest distance to any of them.
func Intersect(rays ...Ray) ([3]float64, float64, error) {
	if len(rays) < 2 {
		return [3]float64{}, 0, fmt.Errorf("%w: need two rays, got %d", ErrDegenerate, len(rays))
	}

	a := mat.NewDense(3, 3, nil)
	b := mat.NewVecDense(3, nil)
	for _, r := range rays {
		proj, err := rejection(r.Dir)
		if err != nil {
			return [3]float64{}, 0, err
		}
		var po mat.VecDense
		po.MulVec(proj, mat.NewVecDense(3, r.Origin[:]))
		a.Add(a, proj)
		b.AddVec(b, &po)
	}

	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return [3]float64{}, 0, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}
	point := vec3(&x)
	for _, v := range point {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return [3]float64{}, 0, ErrDegenerate
		}
	}

	var gap float64
	for _, r := range rays {
		gap = math.Max(gap, distanceToRay(point, r))
	}
	return point, gap, nil
}

// rejection returns I - d*d^T for the normalised direction d.
func rejection(dir [3]float64) (*mat.Dense, error) {
	d := dir[:]
	n := floats.Norm(d, 2)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, fmt.Errorf("%w: invalid direction %v", ErrDegenerate, dir)
	}
	u := mat.NewVecDense(3, []float64{d[0] / n, d[1] / n, d[2] / n})

	var outer mat.Dense
	outer.Outer(1, u, u)
	proj := identity(3, 1)
	proj.Sub(proj, &outer)
	return proj, nil
}

func distanceToRay(p [3]float64, r Ray) float64 {
	diff := make([]float64, 3)
	floats.SubTo(diff, p[:], r.Origin[:])
	n := floats.Norm(r.Dir[:], 2)
	t := floats.Dot(diff, r.Dir[:]) / n
	return math.Sqrt(math.Max(0, floats.Dot(diff, diff)-t*t))
}

// Merge collapses points closer than threshold to a cluster seed into
// their mean. Clusters are seeded greedily in input order.
func Merge(points [][3]float64, threshold float64) [][3]float64 {
	used := make([]bool, len(points))
	merged := make([][3]float64, 0, len(points))
	for i := range points {
		if used[i] {
			continue
		}
		sum := make([]float64, 3)
		copy(sum, points[i][:])
		count := 1.0
		for j := i + 1; j < len(points); j++ {
			if used[j] || floats.Distance(points[i][:], points[j][:], 2) >= threshold {
				continue
			}
			floats.Add(sum, points[j][:])
			count++
			used[j] = true
		}
		floats.Scale(1/count, sum)
		merged = append(merged, [3]float64{sum[0], sum[1], sum[2]})
	}
	return merged
}

func identity(n int, v float64) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, v)
	}
	return m
}
