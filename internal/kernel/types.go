// Package kernel implements photonic's pure, deterministic per-pixel
// building blocks: decode, rotate, crop, tonal adjustments, histogram
// accumulation, and JPEG encode. Kernels operate on contiguous pixel
// buffers and never allocate inside their inner loops; callers own the
// buffers they pass in, and there is no shared buffer pool.
package kernel

import (
	"image"
	"image/color"
)

// Image is the 8-bit boundary representation used at decode/encode edges.
type Image struct {
	Width, Height int
	// Pix holds interleaved RGB bytes, row-major, 3 bytes per pixel.
	Pix []uint8
}

// NewImage allocates a zeroed Image of the given dimensions.
func NewImage(width, height int) *Image {
	return &Image{Width: width, Height: height, Pix: make([]uint8, width*height*3)}
}

// At returns the RGB triple at (x,y).
func (im *Image) At(x, y int) (r, g, b uint8) {
	i := (y*im.Width + x) * 3
	return im.Pix[i], im.Pix[i+1], im.Pix[i+2]
}

// Set writes the RGB triple at (x,y).
func (im *Image) Set(x, y int, r, g, b uint8) {
	i := (y*im.Width + x) * 3
	im.Pix[i], im.Pix[i+1], im.Pix[i+2] = r, g, b
}

// ToStdImage converts to a standard library image.RGBA for interop with
// resize/encode libraries that expect the image.Image interface.
func (im *Image) ToStdImage() *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, im.Width, im.Height))
	for y := 0; y < im.Height; y++ {
		for x := 0; x < im.Width; x++ {
			r, g, b := im.At(x, y)
			dst.SetRGBA(x, y, color.RGBA{R: r, G: g, B: b, A: 255})
		}
	}
	return dst
}

// FromStdImage converts any image.Image into our contiguous Image buffer.
func FromStdImage(src image.Image) *Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	im := NewImage(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := src.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			im.Set(x, y, uint8(r>>8), uint8(g>>8), uint8(b>>8))
		}
	}
	return im
}

// Pixels is a float64 row-major RGB buffer used internally by adjustment,
// curve, and mask stages for precision; values are nominally in [0,1] but
// intermediate stages may momentarily exceed that range before the final
// clamp.
type Pixels struct {
	Width, Height int
	Data          []float64 // len == Width*Height*3
}

// NewPixels allocates a zeroed Pixels buffer.
func NewPixels(width, height int) *Pixels {
	return &Pixels{Width: width, Height: height, Data: make([]float64, width*height*3)}
}

// FromImage converts an 8-bit Image into a float64 Pixels buffer in [0,1].
func FromImage(im *Image) *Pixels {
	p := NewPixels(im.Width, im.Height)
	for i, v := range im.Pix {
		p.Data[i] = float64(v) / 255.0
	}
	return p
}

// ToImage converts back to 8-bit, clamping and rounding half-to-even.
func (p *Pixels) ToImage() *Image {
	im := NewImage(p.Width, p.Height)
	for i, v := range p.Data {
		im.Pix[i] = floatToByte(v)
	}
	return im
}

// At returns the RGB triple at (x,y) as float64 in [0,1] (unclamped).
func (p *Pixels) At(x, y int) (r, g, b float64) {
	i := (y*p.Width + x) * 3
	return p.Data[i], p.Data[i+1], p.Data[i+2]
}

// Set writes the RGB triple at (x,y).
func (p *Pixels) Set(x, y int, r, g, b float64) {
	i := (y*p.Width + x) * 3
	p.Data[i], p.Data[i+1], p.Data[i+2] = r, g, b
}

// floatToByte clamps to [0,1] and rounds half-to-even into a byte.
func floatToByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	scaled := v * 255.0
	return uint8(roundHalfEven(scaled))
}

func roundHalfEven(v float64) int {
	floor := int(v)
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

// Clamp01 clamps v into [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
