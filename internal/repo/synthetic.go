package repo

import (
	"time"

	"github.com/verdantlabs/landchange/internal/models"
)

const syntheticQABand = "pixel_qa"

// SyntheticScenes fabricates two acquisitions per year over any region: a
// clear one in March and one in September whose top row is flagged cloudy.
// Vegetation in the eastern half of the grid greens up between 2000 and 2020.
func SyntheticScenes(width, height int) SceneSource {
	if width <= 0 {
		width = 32
	}
	if height <= 0 {
		height = 32
	}
	return func(bounds models.Bounds, year int) []Scene {
		const pad = 0.001
		transform := models.GeoTransform{
			OriginLon:   bounds.MinLon - pad,
			OriginLat:   bounds.MaxLat + pad,
			PixelWidth:  (bounds.MaxLon - bounds.MinLon + 2*pad) / float64(width),
			PixelHeight: (bounds.MaxLat - bounds.MinLat + 2*pad) / float64(height),
		}
		return []Scene{
			syntheticScene(width, height, transform, time.Date(year, time.March, 15, 0, 0, 0, 0, time.UTC), false),
			syntheticScene(width, height, transform, time.Date(year, time.September, 15, 0, 0, 0, 0, time.UTC), true),
		}
	}
}

func syntheticScene(width, height int, transform models.GeoTransform, acquired time.Time, cloudy bool) Scene {
	n := width * height
	bands := map[string][]float64{
		"B2":            make([]float64, n),
		"B3":            make([]float64, n),
		"B4":            make([]float64, n),
		"B5":            make([]float64, n),
		syntheticQABand: make([]float64, n),
	}
	green := greenness(acquired.Year())
	for i := 0; i < n; i++ {
		x, y := i%width, i/width
		g := 0.0
		if x >= width/2 {
			g = green
		}
		red := 900 - 400*g
		nir := 1100 + 1900*g
		if cloudy && y == 0 {
			red, nir = 8000, 8000
			bands[syntheticQABand][i] = 1 << 5
		}
		bands["B2"][i] = red * 0.8
		bands["B3"][i] = red*0.9 + 100*g
		bands["B4"][i] = red
		bands["B5"][i] = nir
	}
	return Scene{
		Acquired: acquired,
		Raster: models.Raster{
			Width:     width,
			Height:    height,
			Bands:     bands,
			Transform: transform,
		},
	}
}

func greenness(year int) float64 {
	g := float64(year-2000) / 20
	if g < 0 {
		return 0
	}
	if g > 1 {
		return 1
	}
	return g
}
