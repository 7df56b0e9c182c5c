package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/verdantlabs/landchange/internal/models"
)

var defaultChangeColor = color.RGBA{R: 255, A: 255}

// RenderImage draws a raster with a min/max stretch. Three bands are drawn as
// RGB; a single band is drawn through the palette. Masked pixels are transparent.
func RenderImage(r models.Raster, style models.LayerStyle) (*image.RGBA, error) {
	if r.Width <= 0 || r.Height <= 0 {
		return nil, fmt.Errorf("render: empty raster")
	}
	if style.Max <= style.Min {
		return nil, fmt.Errorf("render: max %.3f must exceed min %.3f", style.Max, style.Min)
	}

	bands := make([][]float64, 0, len(style.Bands))
	for _, name := range style.Bands {
		values, err := r.Band(name)
		if err != nil {
			return nil, fmt.Errorf("render: %w", err)
		}
		bands = append(bands, values)
	}

	var palette []color.RGBA
	switch len(bands) {
	case 3:
	case 1:
		p, err := ParsePalette(style.Palette)
		if err != nil {
			return nil, fmt.Errorf("render: %w", err)
		}
		palette = p
	default:
		return nil, fmt.Errorf("render: expected 1 or 3 bands, got %d", len(bands))
	}

	img := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	span := style.Max - style.Min
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			i := y*r.Width + x
			if !r.PixelValid(i) {
				continue
			}
			if len(bands) == 1 {
				img.SetRGBA(x, y, ramp(palette, (bands[0][i]-style.Min)/span))
				continue
			}
			img.SetRGBA(x, y, color.RGBA{
				R: stretch(bands[0][i], style.Min, span),
				G: stretch(bands[1][i], style.Min, span),
				B: stretch(bands[2][i], style.Min, span),
				A: 255,
			})
		}
	}
	return img, nil
}

// RenderMask paints changed pixels with the first palette colour and leaves
// everything else transparent.
func RenderMask(m models.ChangeMask, style models.LayerStyle) (*image.RGBA, error) {
	if m.Width <= 0 || m.Height <= 0 {
		return nil, fmt.Errorf("render: empty mask")
	}
	fill := defaultChangeColor
	if len(style.Palette) > 0 {
		c, err := ParseColor(style.Palette[0])
		if err != nil {
			return nil, fmt.Errorf("render: %w", err)
		}
		fill = c
	}
	img := image.NewRGBA(image.Rect(0, 0, m.Width, m.Height))
	for i := range m.States {
		if m.Changed(i) {
			img.SetRGBA(i%m.Width, i/m.Width, fill)
		}
	}
	return img, nil
}

// MaskGray converts a mask to 255 for changed pixels and 0 elsewhere.
func MaskGray(m models.ChangeMask) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i := range m.States {
		if m.Changed(i) {
			img.Pix[i] = 255
		}
	}
	return img
}

// EncodePNG serialises an image as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func stretch(v, min, span float64) uint8 {
	return uint8(clamp01((v-min)/span)*255 + 0.5)
}
