// Package curve builds monotonic tone-curve lookup tables from a sparse
// set of user control points, using Fritsch-Carlson monotonic cubic
// Hermite interpolation. Generated LUTs are cached by a fingerprint of
// their control points so repeated identical edits skip recomputation.
package curve

import (
	"hash/fnv"
	"math"
	"sync"

	"photonic/internal/apperr"
)

// Point is one control point of a tone curve, x and y both in [0,1].
type Point struct {
	X, Y float64
}

// LUT is a 256-entry lookup table mapping an 8-bit input to an 8-bit
// output, sampled from the interpolated curve at x = i/255.
type LUT [256]uint8

// Build validates pts and returns the resulting monotonic LUT.
//
// Edge cases: zero points is the identity curve; one point is the
// constant y0 curve; x values must be strictly increasing (duplicates,
// including out-of-order points, are rejected).
func Build(pts []Point) (LUT, error) {
	switch len(pts) {
	case 0:
		return identityLUT(), nil
	case 1:
		return constantLUT(pts[0].Y), nil
	}

	for i := 1; i < len(pts); i++ {
		if pts[i].X <= pts[i-1].X {
			return LUT{}, apperr.ErrInvalidCurve
		}
	}

	tangents := fritschCarlsonTangents(pts)

	var lut LUT
	for i := 0; i < 256; i++ {
		x := float64(i) / 255.0
		y := evaluate(pts, tangents, x)
		lut[i] = quantize(y)
	}
	return lut, nil
}

func identityLUT() LUT {
	var lut LUT
	for i := 0; i < 256; i++ {
		lut[i] = uint8(i)
	}
	return lut
}

func constantLUT(y float64) LUT {
	v := quantize(y)
	var lut LUT
	for i := range lut {
		lut[i] = v
	}
	return lut
}

// fritschCarlsonTangents computes the per-point tangent slopes mᵢ, first
// via a monotonicity-aware initial guess, then clamped per Fritsch-Carlson
// so the resulting Hermite spline never overshoots between control points.
func fritschCarlsonTangents(pts []Point) []float64 {
	n := len(pts)
	delta := make([]float64, n-1) // secant slopes
	for i := 0; i < n-1; i++ {
		h := pts[i+1].X - pts[i].X
		delta[i] = (pts[i+1].Y - pts[i].Y) / h
	}

	m := make([]float64, n)
	m[0] = delta[0]
	m[n-1] = delta[n-2]
	for i := 1; i < n-1; i++ {
		d0, d1 := delta[i-1], delta[i]
		if d0 == 0 || d1 == 0 || (d0 > 0) != (d1 > 0) {
			m[i] = 0
			continue
		}
		h0 := pts[i].X - pts[i-1].X
		h1 := pts[i+1].X - pts[i].X
		// weighted harmonic mean of the two adjacent secants
		w0 := 2*h1 + h0
		w1 := h1 + 2*h0
		m[i] = (w0 + w1) / (w0/d0 + w1/d1)
	}

	for i := 0; i < n-1; i++ {
		d := delta[i]
		if d == 0 {
			m[i] = 0
			m[i+1] = 0
			continue
		}
		alpha := m[i] / d
		beta := m[i+1] / d
		if s := math.Hypot(alpha, beta); s > 3 {
			scale := 3 / s
			m[i] *= scale
			m[i+1] *= scale
		} else {
			if alpha < 0 {
				m[i] = 0
			}
			if beta < 0 {
				m[i+1] = 0
			}
		}
	}
	return m
}

// evaluate samples the Hermite spline defined by pts/tangents at x,
// clamping output to [0,1].
func evaluate(pts []Point, tangents []float64, x float64) float64 {
	if x <= pts[0].X {
		return clamp01(pts[0].Y)
	}
	if x >= pts[len(pts)-1].X {
		return clamp01(pts[len(pts)-1].Y)
	}

	seg := 0
	for i := 0; i < len(pts)-1; i++ {
		if x >= pts[i].X && x <= pts[i+1].X {
			seg = i
			break
		}
	}

	x0, x1 := pts[seg].X, pts[seg+1].X
	y0, y1 := pts[seg].Y, pts[seg+1].Y
	m0, m1 := tangents[seg], tangents[seg+1]
	h := x1 - x0
	t := (x - x0) / h

	t2 := t * t
	t3 := t2 * t
	h00 := 2*t3 - 3*t2 + 1
	h10 := t3 - 2*t2 + t
	h01 := -2*t3 + 3*t2
	h11 := t3 - t2

	y := h00*y0 + h10*h*m0 + h01*y1 + h11*h*m1
	return clamp01(y)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func quantize(v float64) uint8 {
	scaled := v * 255.0
	return uint8(roundHalfEven(scaled))
}

func roundHalfEven(v float64) int {
	floor := int(math.Floor(v))
	frac := v - float64(floor)
	switch {
	case frac < 0.5:
		return floor
	case frac > 0.5:
		return floor + 1
	default:
		if floor%2 == 0 {
			return floor
		}
		return floor + 1
	}
}

// Fingerprint returns a stable 64-bit FNV-1a hash of a control-point
// sequence, used as the LUT cache key.
func Fingerprint(pts []Point) uint64 {
	h := fnv.New64a()
	var buf [16]byte
	for _, p := range pts {
		putFloat64(buf[0:8], p.X)
		putFloat64(buf[8:16], p.Y)
		h.Write(buf[:])
	}
	return h.Sum64()
}

func putFloat64(dst []byte, v float64) {
	bits := math.Float64bits(v)
	for i := 0; i < 8; i++ {
		dst[i] = byte(bits >> (8 * i))
	}
}

// Cache memoizes LUTs keyed by control-point fingerprint. It is safe for
// concurrent use by multiple pipeline workers.
type Cache struct {
	mu      sync.Mutex
	entries map[uint64]LUT
}

// NewCache returns an empty LUT cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[uint64]LUT)}
}

// GetOrBuild returns the cached LUT for pts, building and storing it on
// a miss.
func (c *Cache) GetOrBuild(pts []Point) (LUT, error) {
	key := Fingerprint(pts)

	c.mu.Lock()
	if lut, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return lut, nil
	}
	c.mu.Unlock()

	lut, err := Build(pts)
	if err != nil {
		return LUT{}, err
	}

	c.mu.Lock()
	c.entries[key] = lut
	c.mu.Unlock()
	return lut, nil
}

// Apply maps an 8-bit channel value through the LUT.
func (l LUT) Apply(v uint8) uint8 {
	return l[v]
}
