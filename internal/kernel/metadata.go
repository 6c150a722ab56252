package kernel

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/jpeg"
	"time"
)

// Metadata is the subset of decoded file metadata the catalog needs at
// ingestion time (spec.md §3 Asset.captureDate/widthPx/heightPx).
type Metadata struct {
	Width, Height int
	CaptureDate   *time.Time
}

// ExtractMetadata reads dimensions and, where present, the EXIF/TIFF
// capture-date tag directly from the source bytes without a full pixel
// decode. For JPEG it scans the APP1 Exif segment; for ARW it reads the
// TIFF IFD0 DateTimeOriginal/DateTime tag via the same minimal TIFF
// reader arw.go uses for pixel decode. Returns zero-value dimensions and
// a nil CaptureDate (never an error) when metadata can't be located —
// callers fall back to file mtime (this module's Open Question
// decision, see DESIGN.md).
func ExtractMetadata(data []byte, ext Extension) Metadata {
	switch ext {
	case ExtARW:
		return extractARWMetadata(data)
	default:
		return extractJPEGMetadata(data)
	}
}

func extractJPEGMetadata(data []byte) Metadata {
	var m Metadata
	if cfg, err := jpeg.DecodeConfig(bytes.NewReader(data)); err == nil {
		m.Width, m.Height = cfg.Width, cfg.Height
	}

	tiffData, ok := findEXIFSegment(data)
	if !ok {
		return m
	}
	tf, firstIFDOff, err := parseTIFFHeader(tiffData)
	if err != nil {
		return m
	}
	ifd0, err := tf.readIFD(firstIFDOff)
	if err != nil {
		return m
	}
	if t, ok := tf.captureDate(ifd0); ok {
		m.CaptureDate = &t
	}
	return m
}

func extractARWMetadata(data []byte) Metadata {
	var m Metadata
	tf, firstIFDOff, err := parseTIFFHeader(data)
	if err != nil {
		return m
	}
	ifd0, err := tf.readIFD(firstIFDOff)
	if err != nil {
		return m
	}
	if e, ok := ifd0.entries[tagImageWidth]; ok {
		m.Width = int(tf.scalar(e))
	}
	if e, ok := ifd0.entries[tagImageLength]; ok {
		m.Height = int(tf.scalar(e))
	}
	if t, ok := tf.captureDate(ifd0); ok {
		m.CaptureDate = &t
	}
	return m
}

// captureDate resolves DateTimeOriginal (preferred) or DateTime from an
// IFD, including the EXIF sub-IFD a JPEG's APP1 segment links to.
func (tf *tiffFile) captureDate(i *ifd) (time.Time, bool) {
	if e, ok := i.entries[tagDateTimeOriginal]; ok {
		if t, ok := parseEXIFDate(tf.asciiValue(e)); ok {
			return t, true
		}
	}
	if exifOff, ok := i.entries[tagExifIFD]; ok {
		if sub, err := tf.readIFD(tf.scalar(exifOff)); err == nil {
			if e, ok := sub.entries[tagDateTimeOriginal]; ok {
				if t, ok := parseEXIFDate(tf.asciiValue(e)); ok {
					return t, true
				}
			}
		}
	}
	if e, ok := i.entries[tagDateTime]; ok {
		if t, ok := parseEXIFDate(tf.asciiValue(e)); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// asciiValue resolves an ASCII-typed TIFF entry to a Go string.
func (tf *tiffFile) asciiValue(e tiffEntry) string {
	n := int(e.count)
	var src []byte
	if n <= 4 {
		src = e.raw[:n]
	} else {
		off := tf.byteOrder.Uint32(e.raw[:4])
		if int(off)+n > len(tf.data) {
			return ""
		}
		src = tf.data[off : int(off)+n]
	}
	// ASCII TIFF strings are NUL-terminated; trim trailing NULs.
	for len(src) > 0 && src[len(src)-1] == 0 {
		src = src[:len(src)-1]
	}
	return string(src)
}

// parseEXIFDate parses the EXIF "YYYY:MM:DD HH:MM:SS" format.
func parseEXIFDate(s string) (time.Time, bool) {
	t, err := time.Parse("2006:01:02 15:04:05", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// findEXIFSegment scans a JPEG's marker segments for APP1's "Exif\0\0"
// payload and returns the embedded TIFF structure (everything after the
// 6-byte Exif header), which is byte-identical in shape to an ARW's
// TIFF body.
func findEXIFSegment(data []byte) ([]byte, bool) {
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil, false
	}
	pos := 2
	for pos+4 <= len(data) {
		if data[pos] != 0xFF {
			pos++
			continue
		}
		marker := data[pos+1]
		if marker == 0xD8 || marker == 0xD9 || (marker >= 0xD0 && marker <= 0xD7) {
			pos += 2
			continue
		}
		if marker == 0x01 || marker == 0x00 {
			pos += 2
			continue
		}
		if pos+4 > len(data) {
			break
		}
		segLen := int(binary.BigEndian.Uint16(data[pos+2 : pos+4]))
		segStart := pos + 4
		segEnd := pos + 2 + segLen
		if segEnd > len(data) || segLen < 2 {
			break
		}
		if marker == 0xE1 && segEnd-segStart >= 6 && bytes.Equal(data[segStart:segStart+6], []byte("Exif\x00\x00")) {
			return data[segStart+6 : segEnd], true
		}
		if marker == 0xDA { // start of scan: no more APPn segments follow
			break
		}
		pos = segEnd
	}
	return nil, false
}

// ensure image.Config import isn't flagged unused when jpeg package is
// referenced only through DecodeConfig above.
var _ = image.Config{}
