package kernel

import (
	"github.com/disintegration/imaging"
)

// ResampleFilter selects the interpolation kernel used by Resize.
type ResampleFilter int

const (
	FilterNearest ResampleFilter = iota
	FilterBilinear
	FilterLanczos3
)

func (f ResampleFilter) toImaging() imaging.ResampleFilter {
	switch f {
	case FilterNearest:
		return imaging.NearestNeighbor
	case FilterBilinear:
		return imaging.Linear
	case FilterLanczos3:
		return imaging.Lanczos
	default:
		return imaging.Linear
	}
}

// ResizeToShortEdge scales im so its shorter edge equals target pixels,
// preserving aspect ratio. Used for draft-tier renders (spec.md C4).
func ResizeToShortEdge(im *Image, target int, filter ResampleFilter) *Image {
	if target <= 0 || (im.Width <= target && im.Height <= target) {
		return im
	}
	var w, h int
	if im.Width < im.Height {
		w = target
		h = 0
	} else {
		h = target
		w = 0
	}
	resized := imaging.Resize(im.ToStdImage(), w, h, filter.toImaging())
	return FromStdImage(resized)
}

// ResizeToLongEdge scales im so its longer edge equals target pixels,
// preserving aspect ratio. A target of 0 returns im unchanged (export at
// source resolution).
func ResizeToLongEdge(im *Image, target int, filter ResampleFilter) *Image {
	if target <= 0 {
		return im
	}
	if im.Width <= target && im.Height <= target {
		return im
	}
	var w, h int
	if im.Width > im.Height {
		w = target
		h = 0
	} else {
		h = target
		w = 0
	}
	resized := imaging.Resize(im.ToStdImage(), w, h, filter.toImaging())
	return FromStdImage(resized)
}
