// Package mask evaluates linear and radial gradient masks and blends
// their per-mask adjusted colours into a pipeline's globally-adjusted
// output one mask at a time; the stack's blend mode only decides which
// pixels any mask reaches.
package mask

import (
	"math"

	"photonic/internal/kernel"
)

// epsilon below which a mask's contribution is treated as absent,
// letting the masked pipeline early-exit the pixel.
const epsilon = 1.0 / 512.0

// Point2D is a normalized (x,y) coordinate in [0,1]x[0,1].
type Point2D struct {
	X, Y float64
}

// Linear is a linear gradient mask running from Start to End, feathered
// by Feather over [0,1].
type Linear struct {
	ID          string
	Start, End  Point2D
	Feather     float64
	Enabled     bool
	Adjustments kernel.Adjustments
}

// Radial is an elliptical radial gradient mask.
type Radial struct {
	ID               string
	Center           Point2D
	RadiusX, RadiusY float64
	RotationRad      float64
	Feather          float64
	Invert           bool
	Enabled          bool
	Adjustments      kernel.Adjustments
}

// BlendMode controls how multiple masks' scalar weights combine into the
// single weight ApplyMasked uses to skip pixels no mask reaches. It never
// affects how a single mask blends its own
// adjusted colour against the running result.
type BlendMode int

const (
	BlendMultiply BlendMode = iota // default: intersection of all active masks
	BlendScreen
	BlendAdd
	BlendMax
)

// Stack is an ordered list of masks plus the blend mode combining their
// weights.
type Stack struct {
	Linear    []Linear
	Radial    []Radial
	BlendMode BlendMode
}

// EvalLinear evaluates a linear gradient mask at normalized point p.
func EvalLinear(m Linear, p Point2D) float64 {
	dx := m.End.X - m.Start.X
	dy := m.End.Y - m.Start.Y
	denom := dx*dx + dy*dy
	if denom == 0 {
		return 0
	}
	px := p.X - m.Start.X
	py := p.Y - m.Start.Y
	t := (px*dx + py*dy) / denom
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return 1 - kernel.Smootherstep(t)
}

// EvalRadial evaluates a radial gradient mask at normalized point p.
func EvalRadial(m Radial, p Point2D) float64 {
	dx := p.X - m.Center.X
	dy := p.Y - m.Center.Y

	cosR := math.Cos(-m.RotationRad)
	sinR := math.Sin(-m.RotationRad)
	rx := dx*cosR - dy*sinR
	ry := dx*sinR + dy*cosR

	rX, rY := m.RadiusX, m.RadiusY
	if rX == 0 {
		rX = 1e-9
	}
	if rY == 0 {
		rY = 1e-9
	}

	d := math.Sqrt((rx/rX)*(rx/rX) + (ry/rY)*(ry/rY))
	inner := 1 - m.Feather

	var mask float64
	switch {
	case d <= inner:
		mask = 1
	case d >= 1:
		mask = 0
	default:
		feather := m.Feather
		if feather == 0 {
			feather = 1e-9
		}
		mask = 1 - kernel.Smootherstep((d - inner) / feather)
	}

	if m.Invert {
		return 1 - mask
	}
	return mask
}

// identityWeight returns the accumulator seed that leaves the first
// combine() call unchanged for the given blend mode.
func identityWeight(mode BlendMode) float64 {
	if mode == BlendMultiply {
		return 1
	}
	return 0
}

// combine folds a new scalar weight into the running accumulated weight
// per the stack's blend mode.
func combine(mode BlendMode, acc, next float64) float64 {
	switch mode {
	case BlendScreen:
		return 1 - (1-acc)*(1-next)
	case BlendAdd:
		v := acc + next
		if v > 1 {
			v = 1
		}
		return v
	case BlendMax:
		return math.Max(acc, next)
	default: // BlendMultiply: intersection of active masks
		return acc * next
	}
}

// ApplyMasked runs the masked-adjustments stage on px: for each enabled
// mask in the stack, in order, it evaluates the mask's own weight,
// computes that mask's adjusted colour, and lerps it into the running
// result by that per-mask weight. The stack's combined weight (per
// BlendMode) is used only to early-exit pixels no mask touches; it does
// not itself drive the blend.
func ApplyMasked(px *kernel.Pixels, stack Stack) {
	type activeMask struct {
		adjustments kernel.Adjustments
		eval        func(Point2D) float64
	}
	var active []activeMask
	for _, m := range stack.Linear {
		if !m.Enabled {
			continue
		}
		mm := m
		active = append(active, activeMask{adjustments: mm.Adjustments, eval: func(p Point2D) float64 { return EvalLinear(mm, p) }})
	}
	for _, m := range stack.Radial {
		if !m.Enabled {
			continue
		}
		mm := m
		active = append(active, activeMask{adjustments: mm.Adjustments, eval: func(p Point2D) float64 { return EvalRadial(mm, p) }})
	}
	if len(active) == 0 {
		return
	}

	w, h := px.Width, px.Height
	weights := make([]float64, len(active))
	single := kernel.NewPixels(1, 1)
	for y := 0; y < h; y++ {
		yn := (float64(y) + 0.5) / float64(h)
		for x := 0; x < w; x++ {
			xn := (float64(x) + 0.5) / float64(w)
			p := Point2D{X: xn, Y: yn}

			acc := identityWeight(stack.BlendMode)
			any := false
			for i, m := range active {
				v := m.eval(p)
				weights[i] = v
				if v > epsilon {
					any = true
				}
				acc = combine(stack.BlendMode, acc, v)
			}
			if !any || acc <= epsilon {
				continue
			}

			r0, g0, b0 := px.At(x, y)
			c := [3]float64{r0, g0, b0}
			for i, m := range active {
				if weights[i] <= epsilon {
					continue
				}
				single.Set(0, 0, c[0], c[1], c[2])
				kernel.Apply(single, m.adjustments)
				ck0, ck1, ck2 := single.At(0, 0)
				c[0] = lerp(c[0], ck0, weights[i])
				c[1] = lerp(c[1], ck1, weights[i])
				c[2] = lerp(c[2], ck2, weights[i])
			}
			px.Set(x, y, c[0], c[1], c[2])
		}
	}
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
