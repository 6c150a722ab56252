package pipeline

import (
	"context"
	"testing"

	"photonic/internal/apperr"
	"photonic/internal/curve"
	"photonic/internal/kernel"
)

func testSourceBytes(t *testing.T) []byte {
	t.Helper()
	im := kernel.NewImage(16, 10)
	for y := 0; y < im.Height; y++ {
		for x := 0; x < im.Width; x++ {
			im.Set(x, y, uint8(x*10), uint8(y*10), 50)
		}
	}
	blob, err := kernel.EncodeJPEG(im, 90)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return blob
}

func baseRequest(source []byte) Request {
	return Request{
		AssetID:     "a1",
		Quality:     QualityFull,
		Decode:      kernel.DecodeRequest{Bytes: source, Ext: kernel.ExtJPG},
		Curve:       []curve.Point{{X: 0, Y: 0}, {X: 1, Y: 1}},
		Filter:      kernel.FilterLanczos3,
	}
}

func TestRenderProducesImageAndHistogram(t *testing.T) {
	r := NewRunner(1 << 20)
	source := testSourceBytes(t)

	result, err := r.Render(context.Background(), baseRequest(source))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if result.Image == nil {
		t.Fatalf("expected a non-nil rendered image")
	}
	if result.Image.Width != 16 || result.Image.Height != 10 {
		t.Fatalf("expected the source dimensions preserved with no crop/resize, got %dx%d", result.Image.Width, result.Image.Height)
	}
	if result.Histogram == nil {
		t.Fatalf("expected a non-nil histogram")
	}
}

func TestRenderReusesStageCacheOnIdenticalRequest(t *testing.T) {
	r := NewRunner(1 << 20)
	source := testSourceBytes(t)
	req := baseRequest(source)

	first, err := r.Render(context.Background(), req)
	if err != nil {
		t.Fatalf("first render: %v", err)
	}
	second, err := r.Render(context.Background(), req)
	if err != nil {
		t.Fatalf("second render: %v", err)
	}
	if second.Image.Width != first.Image.Width || second.Image.Height != first.Image.Height {
		t.Fatalf("expected the cached-prefix re-render to produce the same dimensions")
	}
}

func TestRenderWithDifferentAdjustmentsChangesOutput(t *testing.T) {
	r := NewRunner(1 << 20)
	source := testSourceBytes(t)

	neutral := baseRequest(source)
	neutral.AssetID = "a2"
	base, err := r.Render(context.Background(), neutral)
	if err != nil {
		t.Fatalf("base render: %v", err)
	}

	adjusted := neutral
	adjusted.Adjustments = kernel.Adjustments{ExposureStops: 2.0}
	out, err := r.Render(context.Background(), adjusted)
	if err != nil {
		t.Fatalf("adjusted render: %v", err)
	}

	if samePixels(base.Image, out.Image) {
		t.Fatalf("expected a large exposure boost to change at least one pixel")
	}
}

func samePixels(a, b *kernel.Image) bool {
	if len(a.Pix) != len(b.Pix) {
		return false
	}
	for i := range a.Pix {
		if a.Pix[i] != b.Pix[i] {
			return false
		}
	}
	return true
}

func TestRenderRespectsContextCancellation(t *testing.T) {
	r := NewRunner(1 << 20)
	source := testSourceBytes(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Render(ctx, baseRequest(source)); err != apperr.ErrCancelled {
		t.Fatalf("expected apperr.ErrCancelled for an already-cancelled context, got %v", err)
	}
}

func TestRenderDraftQualityResizesToShortEdge(t *testing.T) {
	r := NewRunner(1 << 20)
	source := testSourceBytes(t)

	req := baseRequest(source)
	req.Quality = QualityDraft
	req.DraftEdge = 4

	result, err := r.Render(context.Background(), req)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if result.Image.Height != 4 {
		t.Fatalf("expected the short edge (height, since source is wider than tall) resized to 4, got %dx%d", result.Image.Width, result.Image.Height)
	}
}
