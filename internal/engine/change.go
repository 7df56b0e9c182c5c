package engine

import (
	"fmt"
	"math"

	"github.com/verdantlabs/landchange/internal/models"
)

// DefaultThreshold is the NDVI increase above which a pixel counts as changed.
const DefaultThreshold = 0.2

// DetectChange marks pixels whose index rose by more than threshold between
// before and after. The comparison is directional: a decrease is never change.
// Pixels undefined in either raster are masked rather than reported unchanged.
func DetectChange(before, after models.IndexRaster, threshold float64) (models.ChangeMask, error) {
	if math.IsNaN(threshold) {
		return models.ChangeMask{}, fmt.Errorf("detect change: threshold is NaN")
	}
	if before.Width != after.Width || before.Height != after.Height {
		return models.ChangeMask{}, fmt.Errorf("detect change: %dx%d vs %dx%d: %w",
			before.Width, before.Height, after.Width, after.Height, models.ErrShapeMismatch)
	}
	if err := models.CheckGrid(before.Width, before.Height); err != nil {
		return models.ChangeMask{}, fmt.Errorf("detect change: %w", err)
	}
	n := before.Len()
	if len(before.Values) != n || len(before.Defined) != n || len(after.Values) != n || len(after.Defined) != n {
		return models.ChangeMask{}, fmt.Errorf("detect change: sample count does not match grid: %w", models.ErrShapeMismatch)
	}

	mask := models.ChangeMask{
		Width:     before.Width,
		Height:    before.Height,
		States:    make([]models.PixelState, n),
		Threshold: threshold,
		Transform: before.Transform,
	}
	for i := 0; i < n; i++ {
		v1, ok1 := before.At(i)
		v2, ok2 := after.At(i)
		if !ok1 || !ok2 {
			mask.States[i] = models.PixelMasked
			continue
		}
		if v2-v1 > threshold {
			mask.States[i] = models.PixelChanged
		} else {
			mask.States[i] = models.PixelUnchanged
		}
	}
	return mask, nil
}
