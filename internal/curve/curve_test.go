package curve

import (
	"errors"
	"testing"

	"photonic/internal/apperr"
)

func TestBuildZeroPointsIsIdentity(t *testing.T) {
	lut, err := Build(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 256; i++ {
		if lut[i] != uint8(i) {
			t.Fatalf("expected identity LUT, lut[%d]=%d", i, lut[i])
		}
	}
}

func TestBuildOnePointIsConstant(t *testing.T) {
	lut, err := Build([]Point{{X: 0.5, Y: 0.75}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := quantize(0.75)
	for i := 0; i < 256; i++ {
		if lut[i] != want {
			t.Fatalf("expected constant LUT value %d, lut[%d]=%d", want, i, lut[i])
		}
	}
}

func TestBuildRejectsDuplicateX(t *testing.T) {
	_, err := Build([]Point{{0, 0}, {0.5, 0.5}, {0.5, 0.6}, {1, 1}})
	if !errors.Is(err, apperr.ErrInvalidCurve) {
		t.Fatalf("expected ErrInvalidCurve for duplicate x, got %v", err)
	}
}

func TestBuildRejectsOutOfOrderX(t *testing.T) {
	_, err := Build([]Point{{0, 0}, {0.6, 0.5}, {0.4, 0.3}, {1, 1}})
	if !errors.Is(err, apperr.ErrInvalidCurve) {
		t.Fatalf("expected ErrInvalidCurve for out-of-order x, got %v", err)
	}
}

func TestBuildSShapeIsMonotonicWithBoundedMidpoint(t *testing.T) {
	pts := []Point{{0, 0}, {0.25, 0.15}, {0.75, 0.85}, {1, 1}}
	lut, err := Build(pts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lut[0] != 0 {
		t.Fatalf("expected lut[0]=0, got %d", lut[0])
	}
	if lut[255] != 255 {
		t.Fatalf("expected lut[255]=255, got %d", lut[255])
	}
	if lut[128] < 125 || lut[128] > 131 {
		t.Fatalf("expected lut[128] in [125,131], got %d", lut[128])
	}
	for i := 1; i < 256; i++ {
		if lut[i] < lut[i-1] {
			t.Fatalf("LUT not monotonic non-decreasing at %d: %d < %d", i, lut[i], lut[i-1])
		}
	}
}

func TestBuildLinearIdentityPassesThrough(t *testing.T) {
	pts := []Point{{0, 0}, {1, 1}}
	lut, err := Build(pts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 256; i++ {
		if diff := int(lut[i]) - i; diff < -1 || diff > 1 {
			t.Fatalf("expected near-identity line, lut[%d]=%d", i, lut[i])
		}
	}
}

func TestFingerprintStableAndSensitiveToChange(t *testing.T) {
	a := []Point{{0, 0}, {0.5, 0.6}, {1, 1}}
	b := []Point{{0, 0}, {0.5, 0.6}, {1, 1}}
	c := []Point{{0, 0}, {0.5, 0.61}, {1, 1}}

	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("expected identical control points to fingerprint the same")
	}
	if Fingerprint(a) == Fingerprint(c) {
		t.Fatalf("expected different control points to fingerprint differently")
	}
}

func TestCacheGetOrBuildReusesEntry(t *testing.T) {
	c := NewCache()
	pts := []Point{{0, 0}, {1, 1}}

	first, err := c.GetOrBuild(pts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := c.GetOrBuild(pts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatalf("expected cached LUT to be reused")
	}
}

func TestCacheGetOrBuildPropagatesError(t *testing.T) {
	c := NewCache()
	_, err := c.GetOrBuild([]Point{{0.5, 0}, {0.5, 1}})
	if !errors.Is(err, apperr.ErrInvalidCurve) {
		t.Fatalf("expected ErrInvalidCurve, got %v", err)
	}
}
