package engine

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdantlabs/landchange/internal/models"
)

func bandRaster(nir, red []float64, valid []bool) models.Raster {
	return models.Raster{
		Width:  len(nir),
		Height: 1,
		Bands:  map[string][]float64{"B5": nir, "B4": red},
		Valid:  valid,
	}
}

func indexRaster(values []float64, defined []bool) models.IndexRaster {
	if defined == nil {
		defined = make([]bool, len(values))
		for i := range defined {
			defined[i] = true
		}
	}
	return models.IndexRaster{Width: len(values), Height: 1, Values: values, Defined: defined}
}

func TestNDVI(t *testing.T) {
	image := bandRaster(
		[]float64{3000, 0, 1000, math.NaN(), 500, -100},
		[]float64{1000, 0, 3000, 200, 500, 300},
		nil,
	)
	index, err := NDVI(image, "B5", "B4")
	require.NoError(t, err)

	v, ok := index.At(0)
	require.True(t, ok)
	assert.InDelta(t, 0.5, v, 1e-12)

	_, ok = index.At(1)
	assert.False(t, ok, "zero sum must be undefined")

	v, ok = index.At(2)
	require.True(t, ok)
	assert.InDelta(t, -0.5, v, 1e-12)

	_, ok = index.At(3)
	assert.False(t, ok, "NaN reflectance must be undefined")

	v, ok = index.At(4)
	require.True(t, ok)
	assert.Equal(t, 0.0, v)

	// (-100-300)/200 = -2 leaves the valid range.
	_, ok = index.At(5)
	assert.False(t, ok)
}

func TestNDVIRespectsArchiveMask(t *testing.T) {
	image := bandRaster([]float64{3000, 3000}, []float64{1000, 1000}, []bool{true, false})
	index, err := NDVI(image, "B5", "B4")
	require.NoError(t, err)

	_, ok := index.At(0)
	assert.True(t, ok)
	_, ok = index.At(1)
	assert.False(t, ok)
}

func TestNDVIValuesStayInRange(t *testing.T) {
	nir := []float64{0, 1, 10, 100, 10000, 65535, 1e-9}
	red := []float64{1, 0, 10000, 3, 0.5, 1, 1e-9}
	index, err := NDVI(bandRaster(nir, red, nil), "B5", "B4")
	require.NoError(t, err)
	for i := range nir {
		if v, ok := index.At(i); ok {
			assert.GreaterOrEqual(t, v, -1.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}
}

func TestNDVIIsPure(t *testing.T) {
	nir := []float64{3000, 0, 1000, math.NaN(), 1200}
	red := []float64{1000, 0, 3000, 200, 800}
	valid := []bool{true, true, true, true, false}
	image := bandRaster(nir, red, valid)

	first, err := NDVI(image, "B5", "B4")
	require.NoError(t, err)
	second, err := NDVI(image, "B5", "B4")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []bool{true, false, true, false, false}, first.Defined)
	assert.Equal(t, []float64{3000, 0, 1000}, image.Bands["B5"][:3])
	assert.True(t, math.IsNaN(image.Bands["B5"][3]))
	assert.Equal(t, []float64{1000, 0, 3000, 200, 800}, image.Bands["B4"])
	assert.Equal(t, []bool{true, true, true, true, false}, image.Valid)
}

func TestNDVIRejectsOversizedGrid(t *testing.T) {
	image := models.Raster{Width: math.MaxInt, Height: 2, Bands: map[string][]float64{"B5": {}, "B4": {}}}
	_, err := NDVI(image, "B5", "B4")
	assert.ErrorIs(t, err, models.ErrShapeMismatch)

	huge := models.IndexRaster{Width: math.MaxInt, Height: 2}
	_, err = DetectChange(huge, huge, DefaultThreshold)
	assert.ErrorIs(t, err, models.ErrShapeMismatch)
}

func TestNDVIMissingBand(t *testing.T) {
	image := models.Raster{Width: 1, Height: 1, Bands: map[string][]float64{"B5": {1}}}
	_, err := NDVI(image, "B5", "B4")
	assert.True(t, errors.Is(err, models.ErrMissingBand))
}

func TestDetectChangeExamples(t *testing.T) {
	before := indexRaster([]float64{0.1, 0.1, 0.5, 0.3}, nil)
	after := indexRaster([]float64{0.35, 0.25, 0.75, 0.1}, nil)

	mask, err := DetectChange(before, after, 0.2)
	require.NoError(t, err)
	assert.Equal(t, models.PixelChanged, mask.States[0])
	assert.Equal(t, models.PixelUnchanged, mask.States[1])
	assert.Equal(t, models.PixelChanged, mask.States[2])
	assert.Equal(t, models.PixelUnchanged, mask.States[3], "a decrease is never change")
	assert.Equal(t, 0.2, mask.Threshold)
}

func TestDetectChangeThresholdIsStrict(t *testing.T) {
	before := indexRaster([]float64{0.25}, nil)
	after := indexRaster([]float64{0.5}, nil)

	mask, err := DetectChange(before, after, 0.25)
	require.NoError(t, err)
	assert.Equal(t, models.PixelUnchanged, mask.States[0])
}

func TestDetectChangeMasksUndefined(t *testing.T) {
	before := indexRaster([]float64{0, 0.1, 0}, []bool{false, true, false})
	after := indexRaster([]float64{0.9, 0, 0}, []bool{true, false, false})

	mask, err := DetectChange(before, after, 0.2)
	require.NoError(t, err)
	for i, state := range mask.States {
		assert.Equal(t, models.PixelMasked, state, "pixel %d", i)
	}
	changed, unchanged, masked := mask.Counts()
	assert.Equal(t, [3]int{0, 0, 3}, [3]int{changed, unchanged, masked})
}

func TestDetectChangeIsDirectional(t *testing.T) {
	a := indexRaster([]float64{0.1, 0.6}, nil)
	b := indexRaster([]float64{0.6, 0.1}, nil)

	forward, err := DetectChange(a, b, 0.2)
	require.NoError(t, err)
	backward, err := DetectChange(b, a, 0.2)
	require.NoError(t, err)

	assert.Equal(t, []models.PixelState{models.PixelChanged, models.PixelUnchanged}, forward.States)
	assert.Equal(t, []models.PixelState{models.PixelUnchanged, models.PixelChanged}, backward.States)
}

func TestDetectChangeThresholdMonotonic(t *testing.T) {
	before := indexRaster([]float64{0, 0.1, 0.2, -0.4, 0.5, 0.9}, nil)
	after := indexRaster([]float64{0.5, 0.2, 0.9, 0.3, 0.45, 1}, nil)

	thresholds := []float64{-0.1, 0, 0.05, 0.2, 0.4, 0.7, 1}
	prev := -1
	for i := len(thresholds) - 1; i >= 0; i-- {
		mask, err := DetectChange(before, after, thresholds[i])
		require.NoError(t, err)
		changed, _, _ := mask.Counts()
		assert.GreaterOrEqual(t, changed, prev, "lowering the threshold must not shrink the change set")
		prev = changed
	}
}

func TestDetectChangeRejectsShapeMismatch(t *testing.T) {
	_, err := DetectChange(indexRaster([]float64{0.1}, nil), indexRaster([]float64{0.1, 0.2}, nil), 0.2)
	assert.True(t, errors.Is(err, models.ErrShapeMismatch))

	_, err = DetectChange(indexRaster([]float64{0.1}, nil), indexRaster([]float64{0.1}, nil), math.NaN())
	assert.Error(t, err)
}

func TestNDVIThenDetect(t *testing.T) {
	// NDVI 0.1 -> 0.35 is change, 0.1 -> 0.25 is not.
	before, err := NDVI(bandRaster([]float64{1100, 1100}, []float64{900, 900}, nil), "B5", "B4")
	require.NoError(t, err)
	after, err := NDVI(bandRaster([]float64{1350, 1250}, []float64{650, 750}, nil), "B5", "B4")
	require.NoError(t, err)

	mask, err := DetectChange(before, after, DefaultThreshold)
	require.NoError(t, err)
	assert.Equal(t, []models.PixelState{models.PixelChanged, models.PixelUnchanged}, mask.States)
}

func TestSummarize(t *testing.T) {
	before := indexRaster([]float64{0.1, 0.1, 0.2, 0}, []bool{true, true, true, false})
	after := indexRaster([]float64{0.5, 0.1, 0.3, 0.4}, nil)

	mask, err := DetectChange(before, after, 0.2)
	require.NoError(t, err)
	summary := Summarize(before, after, mask)

	assert.Equal(t, 1, summary.Changed)
	assert.Equal(t, 2, summary.Unchanged)
	assert.Equal(t, 1, summary.Masked)
	assert.InDelta(t, 1.0/3.0, summary.ChangedFraction, 1e-12)
	assert.Equal(t, 3, summary.Start.Defined)
	assert.Equal(t, 4, summary.End.Defined)
	assert.InDelta(t, 0.1333333, summary.Start.Mean, 1e-6)
	assert.InDelta(t, 0.1, summary.Start.Median, 1e-12)
	assert.Equal(t, 0.1, summary.End.P10)
	assert.Equal(t, 0.5, summary.End.P90)
	assert.InDelta(t, 0.1479020, summary.End.StdDev, 1e-6)
}

func TestSummarizeAllMasked(t *testing.T) {
	before := indexRaster([]float64{0}, []bool{false})
	after := indexRaster([]float64{0}, []bool{false})
	mask, err := DetectChange(before, after, 0.2)
	require.NoError(t, err)

	summary := Summarize(before, after, mask)
	assert.Equal(t, 0.0, summary.ChangedFraction)
	assert.Equal(t, 0, summary.Start.Defined)
}

func TestValidateThreshold(t *testing.T) {
	assert.NoError(t, ValidateThreshold(0.2))
	assert.NoError(t, ValidateThreshold(-0.5))
	assert.ErrorIs(t, ValidateThreshold(math.NaN()), ErrInvalidThreshold)
	assert.ErrorIs(t, ValidateThreshold(3), ErrInvalidThreshold)
}
