package kernel

import (
	"bytes"
	"image/jpeg"

	"photonic/internal/apperr"
)

// EncodeJPEG encodes im at the given quality (1-100). Quality 100 is used
// for the identity-pipeline testable property, where JPEG's own rounding
// is the only expected loss.
func EncodeJPEG(im *Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, im.ToStdImage(), &jpeg.Options{Quality: quality}); err != nil {
		return nil, &apperr.OpError{Variant: apperr.ErrEncode, Op: "jpeg encode", Cause: err}
	}
	return buf.Bytes(), nil
}
