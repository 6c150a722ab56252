// Package pipeline orchestrates the fixed-order kernel sequence (decode,
// rotate, crop, adjustments, tone curve, masked adjustments, histogram)
// with a byte-budgeted LRU intermediate-stage cache, so an unchanged
// prefix still in the cache is not recomputed. Callers JPEG-encode the
// returned image.
package pipeline

import (
	"container/list"
	"context"
	"hash/fnv"
	"math"
	"sync"

	"photonic/internal/apperr"
	"photonic/internal/curve"
	"photonic/internal/kernel"
	"photonic/internal/mask"
)

// Quality selects the draft or full render tier (spec.md §4.4).
type Quality int

const (
	QualityDraft Quality = iota
	QualityFull
)

// Stage identifies a point in the fixed pipeline order, used as part of
// the stage-cache key.
type Stage int

const (
	StageDecode Stage = iota
	StageRotate
	StageCrop
	StageAdjust
	StageCurve
	StageMask
	stageCount
)

// Request describes one render of one asset through the pipeline.
type Request struct {
	AssetID     string
	Quality     Quality
	DraftEdge   int // short-edge target for QualityDraft
	PreviewEdge int // long-edge target for QualityFull display renders; 0 for export (full resolution)
	Decode      kernel.DecodeRequest
	Rotation    float64
	Crop        *kernel.Rect
	Adjustments kernel.Adjustments
	Curve       []curve.Point
	Masks       mask.Stack
	Filter      kernel.ResampleFilter
}

// Result is the output of a full pipeline render.
type Result struct {
	Image     *kernel.Image
	Histogram *kernel.Histogram
}

// stageCacheEntry holds one cached stage output plus its byte size for
// the LRU budget.
type stageCacheEntry struct {
	assetID string
	stage   Stage
	fp      uint64
	image   *kernel.Image
	bytes   int64
}

// Runner executes the fixed pipeline with a byte-budgeted LRU stage
// cache shared across renders.
type Runner struct {
	curveCache *curve.Cache

	mu         sync.Mutex
	byteBudget int64
	usedBytes  int64
	lru        *list.List // of *stageCacheEntry, front = most recently used
	index      map[cacheKey]*list.Element
}

type cacheKey struct {
	assetID string
	stage   Stage
	fp      uint64
}

// NewRunner returns a Runner whose stage cache evicts LRU once usedBytes
// exceeds byteBudget.
func NewRunner(byteBudget int64) *Runner {
	return &Runner{
		curveCache: curve.NewCache(),
		byteBudget: byteBudget,
		lru:        list.New(),
		index:      make(map[cacheKey]*list.Element),
	}
}

// Render executes the fixed pipeline for req, reusing cached stage
// outputs for any unchanged prefix. ctx is checked between stages;
// cancellation returns apperr.ErrCancelled promptly.
func (r *Runner) Render(ctx context.Context, req Request) (*Result, error) {
	fps := r.fingerprints(req)

	img, startStage, err := r.longestCachedPrefix(req.AssetID, fps)
	if err != nil {
		return nil, err
	}

	for stage := startStage; stage < stageCount; stage++ {
		if err := checkCancel(ctx); err != nil {
			return nil, err
		}
		img, err = r.runStage(stage, img, req)
		if err != nil {
			return nil, err
		}
		r.store(req.AssetID, stage, fps[stage], img)
	}

	if err := checkCancel(ctx); err != nil {
		return nil, err
	}
	hist := kernel.BuildHistogram(img)

	return &Result{Image: img, Histogram: hist}, nil
}

func checkCancel(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return apperr.ErrCancelled
	default:
		return nil
	}
}

func (r *Runner) runStage(stage Stage, img *kernel.Image, req Request) (*kernel.Image, error) {
	switch stage {
	case StageDecode:
		decoded, err := kernel.Decode(req.Decode)
		if err != nil {
			return nil, err
		}
		if req.Quality == QualityDraft {
			return kernel.ResizeToShortEdge(decoded, req.DraftEdge, kernel.FilterBilinear), nil
		}
		return decoded, nil
	case StageRotate:
		return kernel.Rotate(img, req.Rotation), nil
	case StageCrop:
		if req.Crop == nil {
			return img, nil
		}
		return kernel.Crop(img, *req.Crop)
	case StageAdjust:
		px := kernel.FromImage(img)
		kernel.Apply(px, req.Adjustments)
		return px.ToImage(), nil
	case StageCurve:
		lut, err := r.curveCache.GetOrBuild(req.Curve)
		if err != nil {
			return nil, err
		}
		return applyLUT(img, lut), nil
	case StageMask:
		px := kernel.FromImage(img)
		mask.ApplyMasked(px, req.Masks)
		out := px.ToImage()
		return r.finalizeResolution(out, req), nil
	default:
		return img, nil
	}
}

// finalizeResolution applies the quality-tier resize after the pixel
// stages complete: full/display renders target PreviewEdge (lanczos);
// export renders (PreviewEdge==0) stay at source/export resolution.
func (r *Runner) finalizeResolution(img *kernel.Image, req Request) *kernel.Image {
	if req.Quality != QualityFull || req.PreviewEdge <= 0 {
		return img
	}
	return kernel.ResizeToLongEdge(img, req.PreviewEdge, kernel.FilterLanczos3)
}

func applyLUT(im *kernel.Image, lut curve.LUT) *kernel.Image {
	out := kernel.NewImage(im.Width, im.Height)
	for i := 0; i < len(im.Pix); i += 3 {
		out.Pix[i] = lut.Apply(im.Pix[i])
		out.Pix[i+1] = lut.Apply(im.Pix[i+1])
		out.Pix[i+2] = lut.Apply(im.Pix[i+2])
	}
	return out
}

// fingerprints computes the cache key fingerprint for every stage,
// chained so stage i's fingerprint folds in stage i-1's, ensuring an
// upstream change invalidates every downstream stage.
func (r *Runner) fingerprints(req Request) [stageCount]uint64 {
	var fps [stageCount]uint64
	h := fnv.New64a()

	mix := func(prev uint64, parts ...[]byte) uint64 {
		h.Reset()
		var buf [8]byte
		putU64(buf[:], prev)
		h.Write(buf[:])
		for _, p := range parts {
			h.Write(p)
		}
		return h.Sum64()
	}

	var prev uint64
	fps[StageDecode] = mix(prev, []byte(req.Decode.Ext), boolByte(req.Decode.Thumbnail), req.Decode.Bytes, qualityBytes(req.Quality, req.DraftEdge))
	prev = fps[StageDecode]
	fps[StageRotate] = mix(prev, float64Bytes(req.Rotation))
	prev = fps[StageRotate]
	fps[StageCrop] = mix(prev, cropBytes(req.Crop))
	prev = fps[StageCrop]
	fps[StageAdjust] = mix(prev, adjustmentsBytes(req.Adjustments))
	prev = fps[StageAdjust]
	fps[StageCurve] = mix(prev, curveBytes(req.Curve))
	prev = fps[StageCurve]
	fps[StageMask] = mix(prev, maskBytes(req.Masks), qualityBytes(req.Quality, req.PreviewEdge))

	return fps
}

func qualityBytes(q Quality, edge int) []byte {
	return []byte{byte(q), byte(edge), byte(edge >> 8), byte(edge >> 16), byte(edge >> 24)}
}

func cropBytes(r *kernel.Rect) []byte {
	if r == nil {
		return []byte{0}
	}
	buf := make([]byte, 1, 33)
	buf[0] = 1
	buf = append(buf, f64(r.Left)...)
	buf = append(buf, f64(r.Top)...)
	buf = append(buf, f64(r.Width)...)
	buf = append(buf, f64(r.Height)...)
	return buf
}

func adjustmentsBytes(a kernel.Adjustments) []byte {
	vals := []float64{
		a.ExposureStops, a.Contrast, a.Temperature, a.Tint,
		a.Highlights, a.Shadows, a.Whites, a.Blacks, a.Saturation, a.Vibrance,
	}
	buf := make([]byte, 0, 8*len(vals))
	for _, v := range vals {
		buf = append(buf, f64(v)...)
	}
	return buf
}

func curveBytes(pts []curve.Point) []byte {
	buf := make([]byte, 0, 16*len(pts))
	for _, p := range pts {
		buf = append(buf, f64(p.X)...)
		buf = append(buf, f64(p.Y)...)
	}
	return buf
}

func maskBytes(s mask.Stack) []byte {
	buf := []byte{byte(s.BlendMode)}
	for _, m := range s.Linear {
		buf = append(buf, boolByte(m.Enabled)...)
		buf = append(buf, f64(m.Start.X)...)
		buf = append(buf, f64(m.Start.Y)...)
		buf = append(buf, f64(m.End.X)...)
		buf = append(buf, f64(m.End.Y)...)
		buf = append(buf, f64(m.Feather)...)
		buf = append(buf, adjustmentsBytes(m.Adjustments)...)
	}
	for _, m := range s.Radial {
		buf = append(buf, boolByte(m.Enabled)...)
		buf = append(buf, boolByte(m.Invert)...)
		buf = append(buf, f64(m.Center.X)...)
		buf = append(buf, f64(m.Center.Y)...)
		buf = append(buf, f64(m.RadiusX)...)
		buf = append(buf, f64(m.RadiusY)...)
		buf = append(buf, f64(m.RotationRad)...)
		buf = append(buf, f64(m.Feather)...)
		buf = append(buf, adjustmentsBytes(m.Adjustments)...)
	}
	return buf
}

// longestCachedPrefix returns the source image to resume from and the
// first stage that must still run.
func (r *Runner) longestCachedPrefix(assetID string, fps [stageCount]uint64) (*kernel.Image, Stage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// search from the deepest stage backward for the first cache hit
	for stage := StageMask; stage >= StageDecode; stage-- {
		key := cacheKey{assetID: assetID, stage: stage, fp: fps[stage]}
		if el, ok := r.index[key]; ok {
			entry := el.Value.(*stageCacheEntry)
			r.lru.MoveToFront(el)
			return entry.image, stage + 1, nil
		}
	}
	return nil, StageDecode, nil
}

func (r *Runner) store(assetID string, stage Stage, fp uint64, img *kernel.Image) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := cacheKey{assetID: assetID, stage: stage, fp: fp}
	size := int64(len(img.Pix))

	entry := &stageCacheEntry{assetID: assetID, stage: stage, fp: fp, image: img, bytes: size}
	el := r.lru.PushFront(entry)
	r.index[key] = el
	r.usedBytes += size

	for r.usedBytes > r.byteBudget && r.lru.Len() > 0 {
		back := r.lru.Back()
		if back == nil {
			break
		}
		victim := back.Value.(*stageCacheEntry)
		r.lru.Remove(back)
		delete(r.index, cacheKey{assetID: victim.assetID, stage: victim.stage, fp: victim.fp})
		r.usedBytes -= victim.bytes
	}
}

func putU64(dst []byte, v uint64) {
	for i := 0; i < 8; i++ {
		dst[i] = byte(v >> (8 * i))
	}
}

func boolByte(b bool) []byte {
	if b {
		return []byte{1}
	}
	return []byte{0}
}

func float64Bytes(v float64) []byte {
	return f64(v)
}

func f64(v float64) []byte {
	var buf [8]byte
	putU64(buf[:], math.Float64bits(v))
	return buf[:]
}
