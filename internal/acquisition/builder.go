package acquisition

import (
	"github.com/verdantlabs/landchange/internal/models"
	"github.com/verdantlabs/landchange/internal/utils"
)

// Builder assembles yearly composite requests for the imagery archive.
type Builder struct {
	collection string
	cloudMask  models.CloudMaskPolicy
	bands      []string
}

// NewBuilder returns a Builder targeting collection. bands lists the bands
// the caller needs back; an empty list asks for every band.
func NewBuilder(collection string, cloudMask models.CloudMaskPolicy, bands ...string) *Builder {
	return &Builder{
		collection: collection,
		cloudMask:  cloudMask,
		bands:      uniqueBands(bands),
	}
}

// BuildComposite describes the cloud-masked per-pixel median of every image
// intersecting roi during the calendar year, clipped to roi.
func (b *Builder) BuildComposite(year int, roi models.ROI) models.ImageRequest {
	return models.ImageRequest{
		Collection: b.collection,
		Year:       year,
		Region:     roi,
		Dates:      utils.YearWindow(year),
		CloudMask:  b.cloudMask,
		Reducer:    models.ReducerMedian,
		ClipToROI:  true,
		Bands:      append([]string(nil), b.bands...),
	}
}

func uniqueBands(bands []string) []string {
	seen := make(map[string]struct{}, len(bands))
	out := make([]string, 0, len(bands))
	for _, band := range bands {
		if band == "" {
			continue
		}
		if _, ok := seen[band]; ok {
			continue
		}
		seen[band] = struct{}{}
		out = append(out, band)
	}
	return out
}
