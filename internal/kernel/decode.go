package kernel

import (
	"bytes"
	"image/jpeg"

	"photonic/internal/apperr"
)

// Extension enumerates the supported source formats (spec.md §3 Asset.extension).
type Extension string

const (
	ExtJPG Extension = "jpg"
	ExtJPEG Extension = "jpeg"
	ExtARW Extension = "arw"
)

// ParseExtension maps a catalog-stored extension string (as persisted
// on model.Asset, lowercase and without the leading dot) to an Extension.
func ParseExtension(s string) (Extension, error) {
	switch s {
	case "jpg":
		return ExtJPG, nil
	case "jpeg":
		return ExtJPEG, nil
	case "arw":
		return ExtARW, nil
	default:
		return "", &apperr.DecodeError{Variant: apperr.ErrUnsupportedFormat, Path: s}
	}
}

// DecodeRequest selects thumbnail vs full-size decode for ARW sources,
// where only the embedded JPEG is needed for the former.
type DecodeRequest struct {
	Bytes     []byte
	Ext       Extension
	Thumbnail bool // ARW: true extracts the embedded preview JPEG only
}

// Decode dispatches to the JPEG or ARW decoder based on declared extension.
// Header magic bytes are checked before the heavy decode per spec.md §6.
func Decode(req DecodeRequest) (*Image, error) {
	switch req.Ext {
	case ExtJPG, ExtJPEG:
		return decodeJPEG(req.Bytes)
	case ExtARW:
		return decodeARW(req.Bytes, req.Thumbnail)
	default:
		return nil, &apperr.DecodeError{Variant: apperr.ErrUnsupportedFormat, Path: string(req.Ext)}
	}
}

func decodeJPEG(data []byte) (*Image, error) {
	if len(data) < 4 {
		return nil, &apperr.DecodeError{Variant: apperr.ErrDecodeTruncated, Path: "jpeg"}
	}
	if data[0] != 0xFF || data[1] != 0xD8 {
		return nil, &apperr.DecodeError{Variant: apperr.ErrDecodeCorrupt, Path: "jpeg"}
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		variant := apperr.ErrDecodeCorrupt
		if err.Error() == "unexpected EOF" {
			variant = apperr.ErrDecodeTruncated
		}
		return nil, &apperr.DecodeError{Variant: variant, Path: "jpeg", Cause: err}
	}
	return FromStdImage(img), nil
}
