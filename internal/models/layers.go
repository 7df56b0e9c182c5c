package models

// LayerKind distinguishes how a layer is drawn.
type LayerKind string

const (
	LayerKindImage LayerKind = "image"
	LayerKindMask  LayerKind = "mask"
)

// LayerStyle is the display style handed to the map renderer.
type LayerStyle struct {
	Bands   []string
	Min     float64
	Max     float64
	Palette []string
}

// Layer is a named raster plus style, ready for a map widget.
type Layer struct {
	Name  string
	Kind  LayerKind
	Style LayerStyle
	Image *Raster
	Mask  *ChangeMask
}

// MapView is the initial viewport of the rendered map.
type MapView struct {
	Center LatLon
	Zoom   int
}
