package kernel

import "math"

// Adjustments holds the ten global tonal knobs, applied in a fixed order
// by Apply. All fields use the same "stops" or "-100..100" scale as the
// editor UI; zero values are a no-op identity for every knob.
type Adjustments struct {
	ExposureStops float64
	Contrast      float64 // -100..100
	Temperature   float64 // -100..100
	Tint          float64 // -100..100
	Highlights    float64 // -100..100
	Shadows       float64 // -100..100
	Whites        float64 // -100..100
	Blacks        float64 // -100..100
	Saturation    float64 // -100..100
	Vibrance      float64 // -100..100
}

// IsIdentity reports whether every knob is at its neutral value, letting
// callers skip the per-pixel loop entirely.
func (a Adjustments) IsIdentity() bool {
	return a == Adjustments{}
}

// Apply runs the ten adjustments on px in place, in the fixed order
// required for reproducible results: exposure, contrast, temperature and
// tint, highlights/shadows, whites/blacks, saturation, vibrance.
func Apply(px *Pixels, a Adjustments) {
	if a.IsIdentity() {
		return
	}
	n := px.Width * px.Height
	for i := 0; i < n; i++ {
		base := i * 3
		r, g, b := px.Data[base], px.Data[base+1], px.Data[base+2]

		// 1. Exposure
		expFactor := math.Exp2(a.ExposureStops)
		r *= expFactor
		g *= expFactor
		b *= expFactor

		// 2. Contrast
		cf := 1 + a.Contrast/100
		r = 0.5 + (r-0.5)*cf
		g = 0.5 + (g-0.5)*cf
		b = 0.5 + (b-0.5)*cf

		// 3. Temperature / Tint
		r *= 1 + 0.1*(a.Temperature/100)
		b *= 1 - 0.1*(a.Temperature/100)
		g *= 1 + 0.05*(a.Tint/100)

		// 4. Highlights / Shadows
		l := luminance(r, g, b)
		hmask := smoothstep(0.5, 1.0, l)
		smask := smoothstep(0.5, 0.0, l)
		r = r + r*hmask*(a.Highlights/100) + r*smask*(a.Shadows/100)
		g = g + g*hmask*(a.Highlights/100) + g*smask*(a.Shadows/100)
		b = b + b*hmask*(a.Highlights/100) + b*smask*(a.Shadows/100)

		// 5. Whites / Blacks
		l = luminance(r, g, b)
		wmask := smoothstep(0.8, 1.0, l)
		bmask := smoothstep(0.2, 0.0, l)
		r = r + r*wmask*(a.Whites/100) + r*bmask*(a.Blacks/100)
		g = g + g*wmask*(a.Whites/100) + g*bmask*(a.Blacks/100)
		b = b + b*wmask*(a.Whites/100) + b*bmask*(a.Blacks/100)

		// 6. Saturation
		l = luminance(r, g, b)
		satFactor := 1 + a.Saturation/100
		r = mix(l, r, satFactor)
		g = mix(l, g, satFactor)
		b = mix(l, b, satFactor)

		// 7. Vibrance
		l = luminance(r, g, b)
		sat := math.Max(r, math.Max(g, b)) - math.Min(r, math.Min(g, b))
		vibFactor := 1 + (1-sat)*(a.Vibrance/100)
		r = mix(l, r, vibFactor)
		g = mix(l, g, vibFactor)
		b = mix(l, b, vibFactor)

		px.Data[base] = Clamp01(r)
		px.Data[base+1] = Clamp01(g)
		px.Data[base+2] = Clamp01(b)
	}
}

func luminance(r, g, b float64) float64 {
	return Luminance(r, g, b)
}

// Luminance returns Rec.709 relative luminance for an RGB triple in [0,1].
func Luminance(r, g, b float64) float64 {
	return 0.2126*r + 0.7152*g + 0.0722*b
}

// mix linearly interpolates from a to b by t (t may exceed [0,1]).
func mix(a, b, t float64) float64 {
	return a + (b-a)*t
}

// smoothstep is the classic Hermite ease between edge0 and edge1,
// clamped outside that range. edge0 may be greater than edge1 (used for
// the "falling" shadows/blacks masks).
func smoothstep(edge0, edge1, x float64) float64 {
	if edge0 == edge1 {
		if x < edge0 {
			return 0
		}
		return 1
	}
	t := (x - edge0) / (edge1 - edge0)
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return t * t * (3 - 2*t)
}

// Smootherstep is Perlin's improved C2-continuous ease, used by mask
// feathering to avoid the visible contrast banding smoothstep leaves in
// gradients.
func Smootherstep(t float64) float64 {
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return t * t * t * (t*(t*6-15) + 10)
}
