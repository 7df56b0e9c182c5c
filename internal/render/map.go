package render

import (
	"fmt"
	"image"

	"github.com/verdantlabs/landchange/internal/models"
)

// Map collects named layers for a map widget. It draws nothing itself;
// Quicklook renders a single layer as PNG for clients without a tile server.
type Map struct {
	Center models.LatLon
	Zoom   int
	layers []models.Layer
}

// NewMap creates an empty map centred on center.
func NewMap(center models.LatLon, zoom int) *Map {
	return &Map{Center: center, Zoom: zoom}
}

// AddImage adds a source image layer.
func (m *Map) AddImage(name string, raster *models.Raster, style models.LayerStyle) {
	m.layers = append(m.layers, models.Layer{Name: name, Kind: models.LayerKindImage, Style: style, Image: raster})
}

// AddMask adds a change mask layer.
func (m *Map) AddMask(name string, mask *models.ChangeMask, style models.LayerStyle) {
	m.layers = append(m.layers, models.Layer{Name: name, Kind: models.LayerKindMask, Style: style, Mask: mask})
}

// Layers returns layers in insertion (draw) order.
func (m *Map) Layers() []models.Layer {
	return append([]models.Layer(nil), m.layers...)
}

// Quicklook renders the named layer to PNG.
func (m *Map) Quicklook(name string) ([]byte, error) {
	for _, layer := range m.layers {
		if layer.Name == name {
			return QuicklookLayer(layer)
		}
	}
	return nil, fmt.Errorf("render: no layer named %q", name)
}

// QuicklookLayer renders a layer to PNG.
func QuicklookLayer(layer models.Layer) ([]byte, error) {
	var (
		img image.Image
		err error
	)
	switch {
	case layer.Kind == models.LayerKindMask && layer.Mask != nil:
		img, err = RenderMask(*layer.Mask, layer.Style)
	case layer.Kind == models.LayerKindImage && layer.Image != nil:
		img, err = RenderImage(*layer.Image, layer.Style)
	default:
		return nil, fmt.Errorf("render: layer %q has no data", layer.Name)
	}
	if err != nil {
		return nil, err
	}
	return EncodePNG(img)
}
