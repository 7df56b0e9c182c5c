package engine

import (
	"fmt"
	"math"

	"github.com/verdantlabs/landchange/internal/models"
)

// NDVI computes (NIR - RED) / (NIR + RED) per pixel. Pixels the archive
// masked, pixels with non-finite reflectance, pixels where NIR + RED == 0 and
// pixels whose ratio leaves [-1, 1] are left undefined.
func NDVI(image models.Raster, nirBand, redBand string) (models.IndexRaster, error) {
	if err := models.CheckGrid(image.Width, image.Height); err != nil {
		return models.IndexRaster{}, fmt.Errorf("ndvi: %w", err)
	}
	nir, err := image.Band(nirBand)
	if err != nil {
		return models.IndexRaster{}, fmt.Errorf("ndvi: %w", err)
	}
	red, err := image.Band(redBand)
	if err != nil {
		return models.IndexRaster{}, fmt.Errorf("ndvi: %w", err)
	}
	if image.Valid != nil && len(image.Valid) != image.Len() {
		return models.IndexRaster{}, fmt.Errorf("ndvi: mask has %d entries for %d pixels: %w", len(image.Valid), image.Len(), models.ErrShapeMismatch)
	}

	n := image.Len()
	out := models.IndexRaster{
		Width:     image.Width,
		Height:    image.Height,
		Values:    make([]float64, n),
		Defined:   make([]bool, n),
		Transform: image.Transform,
	}
	for i := 0; i < n; i++ {
		if !image.PixelValid(i) {
			continue
		}
		value, ok := normalizedDifference(nir[i], red[i])
		if !ok {
			continue
		}
		out.Values[i] = value
		out.Defined[i] = true
	}
	return out, nil
}

func normalizedDifference(a, b float64) (float64, bool) {
	if !finite(a) || !finite(b) {
		return 0, false
	}
	sum := a + b
	if sum == 0 {
		return 0, false
	}
	value := (a - b) / sum
	if !finite(value) || value < -1 || value > 1 {
		return 0, false
	}
	return value, true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
