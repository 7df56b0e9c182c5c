package repo

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"

	"github.com/verdantlabs/landchange/internal/models"
	"github.com/verdantlabs/landchange/internal/utils"
)

// Scene is a single acquisition held by MemoryArchive. All bands, including
// the QA band, share the scene grid.
type Scene struct {
	Collection string
	Acquired   time.Time
	Raster     models.Raster
}

// SceneSource produces scenes on demand for a region and year.
type SceneSource func(bounds models.Bounds, year int) []Scene

// MemoryArchive is an in-process archive that evaluates composite requests
// over stored scenes. It backs local development and tests.
type MemoryArchive struct {
	mu      sync.Mutex
	scenes  []Scene
	source  SceneSource
	exports []models.ExportRequest
	now     func() time.Time
}

// NewMemoryArchive returns an archive holding scenes.
func NewMemoryArchive(scenes ...Scene) *MemoryArchive {
	return &MemoryArchive{scenes: append([]Scene(nil), scenes...), now: time.Now}
}

// NewSyntheticArchive returns an archive that fabricates scenes for any region.
func NewSyntheticArchive(width, height int) *MemoryArchive {
	a := NewMemoryArchive()
	a.source = SyntheticScenes(width, height)
	return a
}

// Add stores additional scenes.
func (m *MemoryArchive) Add(scenes ...Scene) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scenes = append(m.scenes, scenes...)
}

// Authenticate returns the archive itself; there are no credentials to check.
func (m *MemoryArchive) Authenticate(context.Context) (*MemoryArchive, error) {
	return m, nil
}

// Exports returns the export requests received so far.
func (m *MemoryArchive) Exports() []models.ExportRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ExportRequest(nil), m.exports...)
}

// FetchComposite filters scenes by collection, date and region, drops cloudy
// pixels and reduces each band to its per-pixel median.
func (m *MemoryArchive) FetchComposite(ctx context.Context, req models.ImageRequest) (models.Raster, error) {
	const op = "memory.FetchComposite"
	if err := ctx.Err(); err != nil {
		return models.Raster{}, utils.NewAppError(op, "request cancelled", models.ErrArchiveUnavailable, err)
	}
	if req.Reducer != "" && req.Reducer != models.ReducerMedian {
		return models.Raster{}, utils.NewAppError(op, fmt.Sprintf("unsupported reducer %q", req.Reducer), models.ErrArchiveUnavailable, nil)
	}

	matched := m.match(req)
	if len(matched) == 0 {
		return models.Raster{}, utils.NewAppError(op, fmt.Sprintf("no images in %s for %d", req.Collection, req.Year), models.ErrNoMatchingImages, nil)
	}
	raster, err := composite(matched, req)
	if err != nil {
		return models.Raster{}, utils.NewAppError(op, "composite failed", models.ErrArchiveUnavailable, err)
	}
	return raster, nil
}

// ImageCount reports how many scenes a composite request would reduce.
func (m *MemoryArchive) ImageCount(req models.ImageRequest) int {
	return len(m.match(req))
}

// SubmitExport records the request and acknowledges it.
func (m *MemoryArchive) SubmitExport(ctx context.Context, req models.ExportRequest) (models.ExportTask, error) {
	if err := ctx.Err(); err != nil {
		return models.ExportTask{}, utils.NewAppError("memory.SubmitExport", "request cancelled", models.ErrArchiveUnavailable, err)
	}
	m.mu.Lock()
	m.exports = append(m.exports, req)
	m.mu.Unlock()
	return models.ExportTask{
		ID:          uuid.NewString(),
		Description: req.Description,
		Destination: req.Destination,
		State:       models.ExportStateSubmitted,
		SubmittedAt: m.now().UTC(),
	}, nil
}

func (m *MemoryArchive) match(req models.ImageRequest) []Scene {
	bounds := req.Region.Bounds()

	m.mu.Lock()
	candidates := append([]Scene(nil), m.scenes...)
	source := m.source
	m.mu.Unlock()
	if source != nil {
		candidates = append(candidates, source(bounds, req.Year)...)
	}

	out := make([]Scene, 0, len(candidates))
	for _, s := range candidates {
		if req.Collection != "" && s.Collection != "" && s.Collection != req.Collection {
			continue
		}
		if !req.Dates.Contains(s.Acquired) {
			continue
		}
		if !intersects(sceneBounds(s.Raster), bounds) {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Acquired.Before(out[j].Acquired) })
	return out
}

func composite(scenes []Scene, req models.ImageRequest) (models.Raster, error) {
	grid := scenes[0].Raster
	for _, s := range scenes[1:] {
		if s.Raster.Width != grid.Width || s.Raster.Height != grid.Height || s.Raster.Transform != grid.Transform {
			return models.Raster{}, fmt.Errorf("scene grids differ: %w", models.ErrShapeMismatch)
		}
	}

	bands := req.Bands
	if len(bands) == 0 {
		for name := range grid.Bands {
			if name != req.CloudMask.QABand {
				bands = append(bands, name)
			}
		}
		sort.Strings(bands)
	}

	n := grid.Len()
	usable := make([][]bool, len(scenes))
	for k, s := range scenes {
		mask, err := clearPixels(s.Raster, req.CloudMask)
		if err != nil {
			return models.Raster{}, err
		}
		usable[k] = mask
	}

	out := models.Raster{
		Width:     grid.Width,
		Height:    grid.Height,
		Bands:     make(map[string][]float64, len(bands)),
		Valid:     make([]bool, n),
		Transform: grid.Transform,
	}
	for i := range out.Valid {
		if !req.ClipToROI {
			out.Valid[i] = true
			continue
		}
		out.Valid[i] = req.Region.Contains(grid.Transform.PixelCenter(i%grid.Width, i/grid.Width))
	}

	sources := make([][][]float64, len(bands))
	for b, name := range bands {
		out.Bands[name] = make([]float64, n)
		sources[b] = make([][]float64, len(scenes))
		for k, s := range scenes {
			values, err := s.Raster.Band(name)
			if err != nil {
				return models.Raster{}, err
			}
			sources[b][k] = values
		}
	}

	sample := make(stats.Float64Data, 0, len(scenes))
	for i := 0; i < n; i++ {
		if !out.Valid[i] {
			continue
		}
		observed := false
		for b, name := range bands {
			sample = sample[:0]
			for k := range scenes {
				if usable[k][i] && !math.IsNaN(sources[b][k][i]) {
					sample = append(sample, sources[b][k][i])
				}
			}
			if len(sample) == 0 {
				continue
			}
			median, err := sample.Median()
			if err != nil {
				continue
			}
			out.Bands[name][i] = median
			observed = true
		}
		out.Valid[i] = observed
	}
	return out, nil
}

// clearPixels reports which pixels are usable: valid in the scene and, when a
// QA band is configured and present, with the cloud bit unset.
func clearPixels(r models.Raster, policy models.CloudMaskPolicy) ([]bool, error) {
	n := r.Len()
	out := make([]bool, n)
	var qa []float64
	if policy.QABand != "" {
		if values, ok := r.Bands[policy.QABand]; ok {
			if len(values) != n {
				return nil, fmt.Errorf("qa band: %w", models.ErrShapeMismatch)
			}
			qa = values
		}
	}
	for i := 0; i < n; i++ {
		if !r.PixelValid(i) {
			continue
		}
		if qa != nil && uint64(qa[i])&(1<<policy.CloudBit) != 0 {
			continue
		}
		out[i] = true
	}
	return out, nil
}

func sceneBounds(r models.Raster) models.Bounds {
	t := r.Transform
	return models.Bounds{
		MinLon: t.OriginLon,
		MaxLon: t.OriginLon + float64(r.Width)*t.PixelWidth,
		MaxLat: t.OriginLat,
		MinLat: t.OriginLat - float64(r.Height)*t.PixelHeight,
	}
}

func intersects(a, b models.Bounds) bool {
	return a.MinLon <= b.MaxLon && b.MinLon <= a.MaxLon && a.MinLat <= b.MaxLat && b.MinLat <= a.MaxLat
}
