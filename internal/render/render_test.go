package render

import (
	"bytes"
	"image/color"
	"image/png"
	"testing"

	"github.com/verdantlabs/landchange/internal/models"
)

func TestParseColor(t *testing.T) {
	cases := map[string]color.RGBA{
		"red":     {255, 0, 0, 255},
		" Red ":   {255, 0, 0, 255},
		"#00ff00": {0, 255, 0, 255},
		"0000ff":  {0, 0, 255, 255},
		"#fff":    {255, 255, 255, 255},
	}
	for in, want := range cases {
		got, err := ParseColor(in)
		if err != nil {
			t.Fatalf("ParseColor(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseColor(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseColor("chartreuse-ish"); err == nil {
		t.Fatalf("expected error for unknown colour")
	}
}

func TestRampInterpolates(t *testing.T) {
	palette := []color.RGBA{{0, 0, 0, 255}, {200, 100, 0, 255}}
	if got := ramp(palette, 0.5); got != (color.RGBA{100, 50, 0, 255}) {
		t.Fatalf("unexpected midpoint %v", got)
	}
	if got := ramp(palette, 2); got != palette[1] {
		t.Fatalf("expected clamp to last colour, got %v", got)
	}
}

func TestRenderImageStretchesAndMasks(t *testing.T) {
	raster := models.Raster{
		Width:  2,
		Height: 1,
		Bands: map[string][]float64{
			"B4": {3000, 1500},
			"B3": {0, 1500},
			"B2": {6000, 1500},
		},
		Valid: []bool{true, false},
	}
	img, err := RenderImage(raster, models.LayerStyle{Bands: []string{"B4", "B3", "B2"}, Min: 0, Max: 3000})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if got := img.RGBAAt(0, 0); got != (color.RGBA{255, 0, 255, 255}) {
		t.Fatalf("unexpected stretched pixel %v", got)
	}
	if got := img.RGBAAt(1, 0); got.A != 0 {
		t.Fatalf("expected masked pixel to be transparent, got %v", got)
	}
}

func TestRenderImageRejectsMissingBand(t *testing.T) {
	raster := models.Raster{Width: 1, Height: 1, Bands: map[string][]float64{"B4": {1}}}
	if _, err := RenderImage(raster, models.LayerStyle{Bands: []string{"B4", "B3", "B2"}, Min: 0, Max: 1}); err == nil {
		t.Fatalf("expected missing band error")
	}
}

func TestRenderMaskSelfMasks(t *testing.T) {
	mask := models.ChangeMask{
		Width:  3,
		Height: 1,
		States: []models.PixelState{models.PixelChanged, models.PixelUnchanged, models.PixelMasked},
	}
	img, err := RenderMask(mask, models.LayerStyle{Palette: []string{"red"}})
	if err != nil {
		t.Fatalf("render mask: %v", err)
	}
	if got := img.RGBAAt(0, 0); got != (color.RGBA{255, 0, 0, 255}) {
		t.Fatalf("expected changed pixel painted, got %v", got)
	}
	for x := 1; x < 3; x++ {
		if img.RGBAAt(x, 0).A != 0 {
			t.Fatalf("expected pixel %d transparent", x)
		}
	}

	gray := MaskGray(mask)
	if gray.Pix[0] != 255 || gray.Pix[1] != 0 || gray.Pix[2] != 0 {
		t.Fatalf("unexpected gray mask %v", gray.Pix)
	}
}

func TestMapQuicklook(t *testing.T) {
	mask := &models.ChangeMask{Width: 2, Height: 2, States: make([]models.PixelState, 4)}
	m := NewMap(models.LatLon{Lat: -1.28, Lon: 36.81}, 8)
	m.AddMask("Change Detection", mask, models.LayerStyle{Palette: []string{"red"}})

	data, err := m.Quicklook("Change Detection")
	if err != nil {
		t.Fatalf("quicklook: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if img.Bounds().Dx() != 2 || img.Bounds().Dy() != 2 {
		t.Fatalf("unexpected bounds %v", img.Bounds())
	}
	if _, err := m.Quicklook("missing"); err == nil {
		t.Fatalf("expected error for unknown layer")
	}
	if len(m.Layers()) != 1 {
		t.Fatalf("expected one layer")
	}
}
