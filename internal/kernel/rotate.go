package kernel

import "math"

// Rotate rotates im by thetaDeg degrees clockwise about its center, onto
// an output canvas sized to the axis-aligned bounding box of the rotated
// source. Pixels with no source coverage are filled black (the RGB
// boundary type has no alpha channel to mark transparency). Sampling
// uses inverse mapping: for each output pixel, the corresponding source
// coordinate is computed and bilinearly interpolated.
func Rotate(im *Image, thetaDeg float64) *Image {
	if thetaDeg == 0 {
		return im
	}
	theta := thetaDeg * math.Pi / 180.0
	sin, cos := math.Sin(theta), math.Cos(theta)

	srcW, srcH := float64(im.Width), float64(im.Height)
	// axis-aligned bbox of the four rotated corners
	corners := [4][2]float64{{0, 0}, {srcW, 0}, {0, srcH}, {srcW, srcH}}
	cx, cy := srcW/2, srcH/2
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		x, y := c[0]-cx, c[1]-cy
		rx := x*cos - y*sin
		ry := x*sin + y*cos
		minX, maxX = math.Min(minX, rx), math.Max(maxX, rx)
		minY, maxY = math.Min(minY, ry), math.Max(maxY, ry)
	}
	outW := int(math.Round(maxX - minX))
	outH := int(math.Round(maxY - minY))
	if outW < 1 {
		outW = 1
	}
	if outH < 1 {
		outH = 1
	}

	out := NewImage(outW, outH)
	ocx, ocy := float64(outW)/2, float64(outH)/2

	// inverse rotation: map output-centered coords back to source space
	invSin, invCos := math.Sin(-theta), math.Cos(-theta)

	for oy := 0; oy < outH; oy++ {
		for ox := 0; ox < outW; ox++ {
			dx := float64(ox) + 0.5 - ocx
			dy := float64(oy) + 0.5 - ocy
			sx := dx*invCos-dy*invSin + cx
			sy := dx*invSin+dy*invCos + cy

			r, g, b, ok := bilinearSample(im, sx-0.5, sy-0.5)
			if !ok {
				out.Set(ox, oy, 0, 0, 0)
				continue
			}
			out.Set(ox, oy, r, g, b)
		}
	}
	return out
}

// bilinearSample reads im at fractional coordinates (fx, fy) using the
// four nearest texels. ok is false when the entire 2x2 neighborhood lies
// outside the source (fully missing coverage).
func bilinearSample(im *Image, fx, fy float64) (r, g, b uint8, ok bool) {
	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	x1, y1 := x0+1, y0+1
	tx := fx - float64(x0)
	ty := fy - float64(y0)

	var rf, gf, bf, wsum float64
	if x0 >= 0 && y0 >= 0 && x0 < im.Width && y0 < im.Height {
		w := (1 - tx) * (1 - ty)
		pr, pg, pb := im.At(x0, y0)
		rf += float64(pr) * w
		gf += float64(pg) * w
		bf += float64(pb) * w
		wsum += w
	}
	if x1 >= 0 && y0 >= 0 && x1 < im.Width && y0 < im.Height {
		w := tx * (1 - ty)
		pr, pg, pb := im.At(x1, y0)
		rf += float64(pr) * w
		gf += float64(pg) * w
		bf += float64(pb) * w
		wsum += w
	}
	if x0 >= 0 && y1 >= 0 && x0 < im.Width && y1 < im.Height {
		w := (1 - tx) * ty
		pr, pg, pb := im.At(x0, y1)
		rf += float64(pr) * w
		gf += float64(pg) * w
		bf += float64(pb) * w
		wsum += w
	}
	if x1 >= 0 && y1 >= 0 && x1 < im.Width && y1 < im.Height {
		w := tx * ty
		pr, pg, pb := im.At(x1, y1)
		rf += float64(pr) * w
		gf += float64(pg) * w
		bf += float64(pb) * w
		wsum += w
	}

	if wsum <= 0 {
		return 0, 0, 0, false
	}
	return uint8(roundHalfEven(rf / wsum)), uint8(roundHalfEven(gf / wsum)), uint8(roundHalfEven(bf / wsum)), true
}
