package mask

import (
	"testing"

	"photonic/internal/kernel"
)

func TestEvalLinearEndpoints(t *testing.T) {
	m := Linear{Start: Point2D{0, 0.5}, End: Point2D{1, 0.5}, Feather: 1}
	if v := EvalLinear(m, Point2D{0, 0.5}); v < 0.99 {
		t.Fatalf("expected mask near 1 at start, got %v", v)
	}
	if v := EvalLinear(m, Point2D{1, 0.5}); v > 0.01 {
		t.Fatalf("expected mask near 0 at end, got %v", v)
	}
}

func TestEvalRadialInsideInnerIsOne(t *testing.T) {
	m := Radial{Center: Point2D{0.5, 0.5}, RadiusX: 0.3, RadiusY: 0.3, Feather: 0.2}
	v := EvalRadial(m, Point2D{0.5, 0.5})
	if v != 1 {
		t.Fatalf("expected mask=1 at center within inner radius, got %v", v)
	}
}

func TestEvalRadialOutsideIsZero(t *testing.T) {
	m := Radial{Center: Point2D{0.5, 0.5}, RadiusX: 0.1, RadiusY: 0.1, Feather: 0.1}
	v := EvalRadial(m, Point2D{0.9, 0.9})
	if v != 0 {
		t.Fatalf("expected mask=0 far outside radius, got %v", v)
	}
}

func TestEvalRadialInvert(t *testing.T) {
	m := Radial{Center: Point2D{0.5, 0.5}, RadiusX: 0.3, RadiusY: 0.3, Feather: 0.2, Invert: true}
	v := EvalRadial(m, Point2D{0.5, 0.5})
	if v != 0 {
		t.Fatalf("expected inverted mask=0 at center, got %v", v)
	}
}

func TestApplyMaskedNoEnabledMasksIsNoOp(t *testing.T) {
	px := kernel.NewPixels(2, 2)
	px.Set(0, 0, 0.2, 0.3, 0.4)
	ApplyMasked(px, Stack{})
	r, g, b := px.At(0, 0)
	if r != 0.2 || g != 0.3 || b != 0.4 {
		t.Fatalf("expected no-op with no masks, got (%v,%v,%v)", r, g, b)
	}
}

func TestApplyMaskedFullCoverageAppliesAdjustment(t *testing.T) {
	px := kernel.NewPixels(2, 2)
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			px.Set(x, y, 0.25, 0.25, 0.25)
		}
	}
	stack := Stack{
		Radial: []Radial{{
			Center: Point2D{0.5, 0.5}, RadiusX: 2, RadiusY: 2, Feather: 0.01,
			Enabled: true, Adjustments: kernel.Adjustments{ExposureStops: 1},
		}},
	}
	ApplyMasked(px, stack)
	r, _, _ := px.At(0, 0)
	if r < 0.45 {
		t.Fatalf("expected near-full-strength exposure boost under full mask coverage, got %v", r)
	}
}

func TestCombineBlendModes(t *testing.T) {
	if v := combine(BlendMultiply, 0.5, 0.5); v != 0.25 {
		t.Fatalf("expected multiply 0.5*0.5=0.25, got %v", v)
	}
	if v := combine(BlendAdd, 0.6, 0.6); v != 1 {
		t.Fatalf("expected add to clamp at 1, got %v", v)
	}
	if v := combine(BlendMax, 0.3, 0.7); v != 0.7 {
		t.Fatalf("expected max(0.3,0.7)=0.7, got %v", v)
	}
}
