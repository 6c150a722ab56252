package kernel

import "testing"

func TestResizeToShortEdgePreservesAspect(t *testing.T) {
	im := NewImage(400, 200)
	out := ResizeToShortEdge(im, 100, FilterBilinear)
	if out.Height != 100 {
		t.Fatalf("expected short edge resized to 100, got %d", out.Height)
	}
	wantWidth := 200
	if out.Width < wantWidth-1 || out.Width > wantWidth+1 {
		t.Fatalf("expected width ~%d preserving aspect, got %d", wantWidth, out.Width)
	}
}

func TestResizeToShortEdgeNoOpWhenSmaller(t *testing.T) {
	im := NewImage(50, 50)
	out := ResizeToShortEdge(im, 900, FilterBilinear)
	if out.Width != 50 || out.Height != 50 {
		t.Fatalf("expected no-op resize for an already-small image, got %dx%d", out.Width, out.Height)
	}
}

func TestResizeToLongEdgeZeroIsSourceResolution(t *testing.T) {
	im := NewImage(123, 456)
	out := ResizeToLongEdge(im, 0, FilterLanczos3)
	if out.Width != 123 || out.Height != 456 {
		t.Fatalf("expected target=0 to mean source resolution, got %dx%d", out.Width, out.Height)
	}
}
