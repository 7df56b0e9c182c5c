// Package geotiff writes minimal uncompressed GeoTIFFs: one strip, little
// endian, either 8-bit grayscale or 8-bit RGBA.
package geotiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"math"
	"sort"
)

const (
	dataTypeASCII    = 2
	dataTypeShort    = 3
	dataTypeLong     = 4
	dataTypeRational = 5
	dataTypeDouble   = 12

	tagImageWidth                = 256
	tagImageLength               = 257
	tagBitsPerSample             = 258
	tagCompression               = 259
	tagPhotometricInterpretation = 262
	tagStripOffsets              = 273
	tagSamplesPerPixel           = 277
	tagRowsPerStrip              = 278
	tagStripByteCounts           = 279
	tagXResolution               = 282
	tagYResolution               = 283
	tagResolutionUnit            = 296
	tagExtraSamples              = 338

	// GeoTIFF tags.
	TagModelPixelScale = 33550
	TagModelTiepoint   = 33922
	TagGeoKeyDirectory = 34735
	TagGeoDoubleParams = 34736
	TagGeoASCIIParams  = 34737
	TagGDALNoData      = 42113

	photometricBlackIs0 = 1
	photometricRGB      = 2
)

var enc = binary.LittleEndian

type ifdEntry struct {
	tag      uint16
	datatype uint16
	count    uint32
	data     []byte
}

// Encode writes m to w. *image.Gray is written as a single band; anything else
// is converted to RGBA with unassociated alpha.
// extraTags maps tag id to a []uint16, []float64 or string value.
func Encode(w io.Writer, m image.Image, extraTags map[uint16]interface{}) error {
	bounds := m.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return fmt.Errorf("geotiff: empty image")
	}

	var (
		pixels      []byte
		samples     uint16
		photometric uint16
	)
	switch img := m.(type) {
	case *image.Gray:
		samples, photometric = 1, photometricBlackIs0
		pixels = make([]byte, 0, width*height)
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			row := img.Pix[img.PixOffset(bounds.Min.X, y):img.PixOffset(bounds.Max.X, y)]
			pixels = append(pixels, row...)
		}
	default:
		samples, photometric = 4, photometricRGB
		pixels = make([]byte, 0, width*height*4)
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				r, g, b, a := m.At(x, y).RGBA()
				pixels = append(pixels, uint8(r>>8), uint8(g>>8), uint8(b>>8), uint8(a>>8))
			}
		}
	}

	bits := make([]uint16, samples)
	for i := range bits {
		bits[i] = 8
	}

	entries := []ifdEntry{
		{tagImageWidth, dataTypeLong, 1, enc32(uint32(width))},
		{tagImageLength, dataTypeLong, 1, enc32(uint32(height))},
		{tagBitsPerSample, dataTypeShort, uint32(samples), enc16s(bits)},
		{tagCompression, dataTypeShort, 1, enc16(1)},
		{tagPhotometricInterpretation, dataTypeShort, 1, enc16(photometric)},
		{tagSamplesPerPixel, dataTypeShort, 1, enc16(samples)},
		{tagRowsPerStrip, dataTypeLong, 1, enc32(uint32(height))},
		{tagXResolution, dataTypeRational, 1, encRational(72, 1)},
		{tagYResolution, dataTypeRational, 1, encRational(72, 1)},
		{tagResolutionUnit, dataTypeShort, 1, enc16(2)},
		// Offsets are patched once the value area size is known.
		{tagStripOffsets, dataTypeLong, 1, make([]byte, 4)},
		{tagStripByteCounts, dataTypeLong, 1, enc32(uint32(len(pixels)))},
	}
	if samples == 4 {
		entries = append(entries, ifdEntry{tagExtraSamples, dataTypeShort, 1, enc16(2)})
	}

	for tag, val := range extraTags {
		switch v := val.(type) {
		case []uint16:
			entries = append(entries, ifdEntry{tag, dataTypeShort, uint32(len(v)), enc16s(v)})
		case []float64:
			entries = append(entries, ifdEntry{tag, dataTypeDouble, uint32(len(v)), encDoubles(v)})
		case string:
			b := append([]byte(v), 0)
			entries = append(entries, ifdEntry{tag, dataTypeASCII, uint32(len(b)), b})
		default:
			return fmt.Errorf("geotiff: unsupported value type %T for tag %d", val, tag)
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	const headerSize = 8
	ifdSize := 2 + 12*len(entries) + 4
	valueOffset := headerSize + ifdSize

	var values bytes.Buffer
	for i := range entries {
		e := &entries[i]
		if len(e.data) <= 4 {
			continue
		}
		offset := uint32(valueOffset + values.Len())
		values.Write(e.data)
		if values.Len()%2 == 1 {
			values.WriteByte(0)
		}
		e.data = enc32(offset)
	}

	pixelOffset := uint32(valueOffset + values.Len())
	for i := range entries {
		if entries[i].tag == tagStripOffsets {
			entries[i].data = enc32(pixelOffset)
		}
	}

	header := []byte{'I', 'I', 0x2A, 0x00, headerSize, 0x00, 0x00, 0x00}
	if _, err := w.Write(header); err != nil {
		return err
	}
	if err := binary.Write(w, enc, uint16(len(entries))); err != nil {
		return err
	}
	for _, e := range entries {
		var field [12]byte
		enc.PutUint16(field[0:], e.tag)
		enc.PutUint16(field[2:], e.datatype)
		enc.PutUint32(field[4:], e.count)
		copy(field[8:], e.data)
		if _, err := w.Write(field[:]); err != nil {
			return err
		}
	}
	if err := binary.Write(w, enc, uint32(0)); err != nil {
		return err
	}
	if _, err := values.WriteTo(w); err != nil {
		return err
	}
	_, err := w.Write(pixels)
	return err
}

// GeographicTags returns the tags that georeference a north-up WGS84 grid whose
// north-west corner is (originLon, originLat).
func GeographicTags(originLon, originLat, pixelWidth, pixelHeight float64) map[uint16]interface{} {
	return map[uint16]interface{}{
		TagModelPixelScale: []float64{pixelWidth, pixelHeight, 0},
		TagModelTiepoint:   []float64{0, 0, 0, originLon, originLat, 0},
		TagGeoKeyDirectory: []uint16{
			1, 1, 0, 3,
			1024, 0, 1, 2, // GTModelTypeGeoKey: geographic
			1025, 0, 1, 1, // GTRasterTypeGeoKey: pixel is area
			2048, 0, 1, 4326, // GeographicTypeGeoKey: WGS84
		},
	}
}

func enc16(v uint16) []byte {
	b := make([]byte, 2)
	enc.PutUint16(b, v)
	return b
}

func enc32(v uint32) []byte {
	b := make([]byte, 4)
	enc.PutUint32(b, v)
	return b
}

func enc16s(vs []uint16) []byte {
	b := make([]byte, 2*len(vs))
	for i, v := range vs {
		enc.PutUint16(b[i*2:], v)
	}
	return b
}

func encDoubles(vs []float64) []byte {
	b := make([]byte, 8*len(vs))
	for i, v := range vs {
		enc.PutUint64(b[i*8:], math.Float64bits(v))
	}
	return b
}

func encRational(num, den uint32) []byte {
	b := make([]byte, 8)
	enc.PutUint32(b[:4], num)
	enc.PutUint32(b[4:], den)
	return b
}
