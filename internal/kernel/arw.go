package kernel

import (
	"encoding/binary"
	"fmt"

	"photonic/internal/apperr"
)

// Sony ARW is a TIFF/IFD container: a standard TIFF header, an IFD0 that
// carries EXIF tags and a SubIFDs pointer to the raw sensor IFD, and (via
// IFD0's next-IFD link) an IFD1 carrying the embedded preview/thumbnail
// JPEG. This file implements just enough of TIFF 6.0 to extract both.
const (
	tagSubIFDs                  = 0x014A
	tagJPEGInterchangeFormat    = 0x0201
	tagJPEGInterchangeFormatLen = 0x0202
	tagImageWidth               = 0x0100
	tagImageLength               = 0x0101
	tagBitsPerSample            = 0x0102
	tagCompression               = 0x0103
	tagPhotometricInterpretation = 0x0106
	tagStripOffsets              = 0x0111
	tagStripByteCounts           = 0x0117
	tagCFARepeatPatternDim       = 0x828D
	tagCFAPattern                = 0x828E
	tagDateTimeOriginal          = 0x9003
	tagDateTime                  = 0x0132
	tagExifIFD                   = 0x8769

	photometricCFA = 32803
)

type tiffEntry struct {
	tag, typ uint16
	count    uint32
	raw      []byte // 4 bytes of inline value or offset, in file byte order
}

type ifd struct {
	entries map[uint16]tiffEntry
	nextOff uint32
}

type tiffFile struct {
	data      []byte
	byteOrder binary.ByteOrder
}

func decodeARW(data []byte, thumbnailOnly bool) (*Image, error) {
	tf, firstIFDOff, err := parseTIFFHeader(data)
	if err != nil {
		return nil, err
	}

	ifd0, err := tf.readIFD(firstIFDOff)
	if err != nil {
		return nil, err
	}

	// Preview/thumbnail: check IFD0 directly, then any SubIFDs, then the
	// linked IFD1 (classic TIFF thumbnail IFD).
	if img, ok := tf.tryExtractJPEG(ifd0); ok {
		if thumbnailOnly {
			return img, nil
		}
		// fall through: still attempt full demosaic below, but keep the
		// preview as a fallback if no raw sensor IFD is found or it is
		// compressed in a way this decoder does not support.
		if full, err := tf.tryFullDemosaic(ifd0); err == nil {
			return full, nil
		}
		return img, nil
	}

	for _, off := range tf.subIFDOffsets(ifd0) {
		sub, err := tf.readIFD(off)
		if err != nil {
			continue
		}
		if img, ok := tf.tryExtractJPEG(sub); ok {
			if thumbnailOnly {
				return img, nil
			}
			if full, err := tf.tryFullDemosaic(ifd0); err == nil {
				return full, nil
			}
			return img, nil
		}
	}

	if ifd0.nextOff != 0 {
		ifd1, err := tf.readIFD(ifd0.nextOff)
		if err == nil {
			if img, ok := tf.tryExtractJPEG(ifd1); ok {
				if thumbnailOnly {
					return img, nil
				}
				if full, err := tf.tryFullDemosaic(ifd0); err == nil {
					return full, nil
				}
				return img, nil
			}
		}
	}

	if !thumbnailOnly {
		if full, err := tf.tryFullDemosaic(ifd0); err == nil {
			return full, nil
		}
	}

	return nil, &apperr.DecodeError{Variant: apperr.ErrUnsupportedFormat, Path: "arw", Cause: fmt.Errorf("no embedded preview or decodable raw IFD found")}
}

func parseTIFFHeader(data []byte) (*tiffFile, uint32, error) {
	if len(data) < 8 {
		return nil, 0, &apperr.DecodeError{Variant: apperr.ErrDecodeTruncated, Path: "arw"}
	}
	var order binary.ByteOrder
	switch {
	case data[0] == 'I' && data[1] == 'I':
		order = binary.LittleEndian
	case data[0] == 'M' && data[1] == 'M':
		order = binary.BigEndian
	default:
		return nil, 0, &apperr.DecodeError{Variant: apperr.ErrDecodeCorrupt, Path: "arw", Cause: fmt.Errorf("bad TIFF byte-order mark")}
	}
	magic := order.Uint16(data[2:4])
	if magic != 42 {
		return nil, 0, &apperr.DecodeError{Variant: apperr.ErrDecodeCorrupt, Path: "arw", Cause: fmt.Errorf("bad TIFF magic")}
	}
	off := order.Uint32(data[4:8])
	return &tiffFile{data: data, byteOrder: order}, off, nil
}

func tiffTypeSize(typ uint16) int {
	switch typ {
	case 1, 2, 6, 7: // BYTE, ASCII, SBYTE, UNDEFINED
		return 1
	case 3, 8: // SHORT, SSHORT
		return 2
	case 4, 9, 11: // LONG, SLONG, FLOAT
		return 4
	case 5, 10, 12: // RATIONAL, SRATIONAL, DOUBLE
		return 8
	default:
		return 1
	}
}

func (tf *tiffFile) readIFD(offset uint32) (*ifd, error) {
	if int(offset)+2 > len(tf.data) {
		return nil, &apperr.DecodeError{Variant: apperr.ErrDecodeTruncated, Path: "arw"}
	}
	n := int(tf.byteOrder.Uint16(tf.data[offset : offset+2]))
	entriesStart := offset + 2
	result := &ifd{entries: make(map[uint16]tiffEntry, n)}
	for i := 0; i < n; i++ {
		entryOff := int(entriesStart) + i*12
		if entryOff+12 > len(tf.data) {
			return nil, &apperr.DecodeError{Variant: apperr.ErrDecodeTruncated, Path: "arw"}
		}
		e := tiffEntry{
			tag:   tf.byteOrder.Uint16(tf.data[entryOff : entryOff+2]),
			typ:   tf.byteOrder.Uint16(tf.data[entryOff+2 : entryOff+4]),
			count: tf.byteOrder.Uint32(tf.data[entryOff+4 : entryOff+8]),
			raw:   tf.data[entryOff+8 : entryOff+12],
		}
		result.entries[e.tag] = e
	}
	nextOff := int(entriesStart) + n*12
	if nextOff+4 <= len(tf.data) {
		result.nextOff = tf.byteOrder.Uint32(tf.data[nextOff : nextOff+4])
	}
	return result, nil
}

// scalar resolves a single LONG/SHORT-typed entry to a uint32.
func (tf *tiffFile) scalar(e tiffEntry) uint32 {
	switch e.typ {
	case 3: // SHORT
		return uint32(tf.byteOrder.Uint16(e.raw[:2]))
	default: // LONG and everything else: take the first 4 bytes
		return tf.byteOrder.Uint32(e.raw[:4])
	}
}

// values resolves a possibly-offset array of SHORT/LONG values.
func (tf *tiffFile) values(e tiffEntry) []uint32 {
	size := tiffTypeSize(e.typ)
	total := size * int(e.count)
	var src []byte
	if total <= 4 {
		src = e.raw[:total]
	} else {
		off := tf.byteOrder.Uint32(e.raw[:4])
		if int(off)+total > len(tf.data) {
			return nil
		}
		src = tf.data[off : int(off)+total]
	}
	out := make([]uint32, e.count)
	for i := range out {
		switch size {
		case 1:
			out[i] = uint32(src[i])
		case 2:
			out[i] = uint32(tf.byteOrder.Uint16(src[i*2 : i*2+2]))
		case 4:
			out[i] = tf.byteOrder.Uint32(src[i*4 : i*4+4])
		}
	}
	return out
}

func (tf *tiffFile) subIFDOffsets(i *ifd) []uint32 {
	e, ok := i.entries[tagSubIFDs]
	if !ok {
		return nil
	}
	return tf.values(e)
}

func (tf *tiffFile) tryExtractJPEG(i *ifd) (*Image, bool) {
	offEntry, ok1 := i.entries[tagJPEGInterchangeFormat]
	lenEntry, ok2 := i.entries[tagJPEGInterchangeFormatLen]
	if !ok1 || !ok2 {
		return nil, false
	}
	off := tf.scalar(offEntry)
	n := tf.scalar(lenEntry)
	if int(off)+int(n) > len(tf.data) {
		return nil, false
	}
	img, err := decodeJPEG(tf.data[off : off+n])
	if err != nil {
		return nil, false
	}
	return img, true
}

// tryFullDemosaic locates the CFA (raw sensor) IFD among ifd0's SubIFDs
// and demosaics it. Only uncompressed strips are supported; compressed
// Sony RAW (the common case for in-camera ARW) is not decodable by this
// minimal reader and returns an error so callers fall back to the
// embedded preview.
func (tf *tiffFile) tryFullDemosaic(ifd0 *ifd) (*Image, error) {
	candidates := tf.subIFDOffsets(ifd0)
	for _, off := range candidates {
		sub, err := tf.readIFD(off)
		if err != nil {
			continue
		}
		photo, ok := sub.entries[tagPhotometricInterpretation]
		if !ok || tf.scalar(photo) != photometricCFA {
			continue
		}
		return tf.demosaicIFD(sub)
	}
	return nil, fmt.Errorf("no uncompressed CFA IFD found")
}

func (tf *tiffFile) demosaicIFD(i *ifd) (*Image, error) {
	compEntry, ok := i.entries[tagCompression]
	if ok && tf.scalar(compEntry) != 1 {
		return nil, fmt.Errorf("compressed RAW strip not supported")
	}
	widthE, ok1 := i.entries[tagImageWidth]
	heightE, ok2 := i.entries[tagImageLength]
	bitsE, ok3 := i.entries[tagBitsPerSample]
	offE, ok4 := i.entries[tagStripOffsets]
	lenE, ok5 := i.entries[tagStripByteCounts]
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return nil, fmt.Errorf("incomplete CFA IFD")
	}
	width := int(tf.scalar(widthE))
	height := int(tf.scalar(heightE))
	bits := int(tf.scalar(bitsE))
	off := tf.scalar(offE)
	n := tf.scalar(lenE)
	if int(off)+int(n) > len(tf.data) || width <= 0 || height <= 0 {
		return nil, fmt.Errorf("strip out of range")
	}
	strip := tf.data[off : off+n]

	cfaPattern := []byte{0, 1, 1, 2} // default RGGB
	if e, ok := i.entries[tagCFAPattern]; ok {
		vals := tf.values(e)
		if len(vals) == 4 {
			for k, v := range vals {
				cfaPattern[k] = byte(v)
			}
		}
	}

	samples, err := unpackSamples(strip, width*height, bits, tf.byteOrder)
	if err != nil {
		return nil, err
	}
	return demosaicBayer(samples, width, height, bits, cfaPattern), nil
}

func unpackSamples(data []byte, count, bits int, order binary.ByteOrder) ([]uint16, error) {
	out := make([]uint16, count)
	switch bits {
	case 16:
		if len(data) < count*2 {
			return nil, fmt.Errorf("strip too short for 16-bit samples")
		}
		for i := 0; i < count; i++ {
			out[i] = order.Uint16(data[i*2 : i*2+2])
		}
	case 8:
		if len(data) < count {
			return nil, fmt.Errorf("strip too short for 8-bit samples")
		}
		for i := 0; i < count; i++ {
			out[i] = uint16(data[i]) << 8
		}
	default:
		return nil, fmt.Errorf("unsupported bit depth %d", bits)
	}
	return out, nil
}
