package models

import "fmt"

// MaxPixels caps the grid size of any raster the engine accepts.
const MaxPixels = 1 << 26

// CheckGrid rejects empty grids and grids larger than MaxPixels. The division
// keeps width*height from overflowing.
func CheckGrid(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("empty grid %dx%d: %w", width, height, ErrShapeMismatch)
	}
	if width > MaxPixels/height {
		return fmt.Errorf("grid %dx%d exceeds %d pixels: %w", width, height, MaxPixels, ErrShapeMismatch)
	}
	return nil
}

// GeoTransform maps pixel indices to geographic coordinates. Origin is the
// north-west corner; rows grow southwards.
type GeoTransform struct {
	OriginLon   float64
	OriginLat   float64
	PixelWidth  float64
	PixelHeight float64
}

// PixelCenter returns the coordinate of the centre of pixel (x, y).
func (g GeoTransform) PixelCenter(x, y int) LatLon {
	return LatLon{
		Lat: g.OriginLat - (float64(y)+0.5)*g.PixelHeight,
		Lon: g.OriginLon + (float64(x)+0.5)*g.PixelWidth,
	}
}

// Raster is a multi-band reflectance grid produced by the imagery archive.
// Band slices are row-major with Width*Height samples. Valid carries the
// archive-side mask; a nil Valid means every pixel is valid.
type Raster struct {
	Width     int
	Height    int
	Bands     map[string][]float64
	Valid     []bool
	Transform GeoTransform
}

// Len returns the number of pixels.
func (r Raster) Len() int {
	return r.Width * r.Height
}

// Band returns the samples for the named band.
func (r Raster) Band(name string) ([]float64, error) {
	values, ok := r.Bands[name]
	if !ok {
		return nil, fmt.Errorf("band %q: %w", name, ErrMissingBand)
	}
	if len(values) != r.Len() {
		return nil, fmt.Errorf("band %q has %d samples for a %dx%d grid: %w", name, len(values), r.Width, r.Height, ErrShapeMismatch)
	}
	return values, nil
}

// PixelValid reports whether the archive left pixel i unmasked.
func (r Raster) PixelValid(i int) bool {
	if r.Valid == nil {
		return true
	}
	return i >= 0 && i < len(r.Valid) && r.Valid[i]
}

// IndexRaster holds a normalised index per pixel. Values[i] is meaningful only
// when Defined[i] is true.
type IndexRaster struct {
	Width     int
	Height    int
	Values    []float64
	Defined   []bool
	Transform GeoTransform
}

// Len returns the number of pixels.
func (r IndexRaster) Len() int {
	return r.Width * r.Height
}

// At returns the value at pixel i and whether it is defined.
func (r IndexRaster) At(i int) (float64, bool) {
	if i < 0 || i >= len(r.Defined) || !r.Defined[i] {
		return 0, false
	}
	return r.Values[i], true
}

// PixelState classifies a change-mask pixel.
type PixelState uint8

const (
	// PixelMasked marks pixels where either index was undefined.
	PixelMasked PixelState = iota
	// PixelUnchanged marks defined pixels whose increase stayed within the threshold.
	PixelUnchanged
	// PixelChanged marks defined pixels whose increase exceeded the threshold.
	PixelChanged
)

func (s PixelState) String() string {
	switch s {
	case PixelUnchanged:
		return "unchanged"
	case PixelChanged:
		return "changed"
	default:
		return "masked"
	}
}

// ChangeMask is the classifier output.
type ChangeMask struct {
	Width     int
	Height    int
	States    []PixelState
	Threshold float64
	Transform GeoTransform
}

// Len returns the number of pixels.
func (m ChangeMask) Len() int {
	return m.Width * m.Height
}

// Changed reports whether pixel i is marked as changed.
func (m ChangeMask) Changed(i int) bool {
	return i >= 0 && i < len(m.States) && m.States[i] == PixelChanged
}

// Counts tallies pixels per state.
func (m ChangeMask) Counts() (changed, unchanged, masked int) {
	for _, s := range m.States {
		switch s {
		case PixelChanged:
			changed++
		case PixelUnchanged:
			unchanged++
		default:
			masked++
		}
	}
	return changed, unchanged, masked
}
