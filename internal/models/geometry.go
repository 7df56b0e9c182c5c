package models

// LatLon is a single polygon vertex in degrees.
type LatLon struct {
	Lat float64
	Lon float64
}

// Bounds is an axis-aligned bounding box in degrees.
type Bounds struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// ROI is an implicitly closed polygon ring. Construct it through the
// validation package; the zero value has no vertices.
type ROI struct {
	vertices []LatLon
}

// NewROI copies the supplied ring. Callers are expected to have validated it.
func NewROI(vertices []LatLon) ROI {
	return ROI{vertices: append([]LatLon(nil), vertices...)}
}

// Vertices returns a copy of the ring.
func (r ROI) Vertices() []LatLon {
	return append([]LatLon(nil), r.vertices...)
}

// Len reports the number of vertices.
func (r ROI) Len() int {
	return len(r.vertices)
}

// IsZero reports whether the ROI has no vertices.
func (r ROI) IsZero() bool {
	return len(r.vertices) == 0
}

// Bounds returns the bounding box of the ring.
func (r ROI) Bounds() Bounds {
	if len(r.vertices) == 0 {
		return Bounds{}
	}
	b := Bounds{
		MinLat: r.vertices[0].Lat,
		MaxLat: r.vertices[0].Lat,
		MinLon: r.vertices[0].Lon,
		MaxLon: r.vertices[0].Lon,
	}
	for _, v := range r.vertices[1:] {
		if v.Lat < b.MinLat {
			b.MinLat = v.Lat
		}
		if v.Lat > b.MaxLat {
			b.MaxLat = v.Lat
		}
		if v.Lon < b.MinLon {
			b.MinLon = v.Lon
		}
		if v.Lon > b.MaxLon {
			b.MaxLon = v.Lon
		}
	}
	return b
}

// Closed reports whether the last vertex repeats the first.
func (r ROI) Closed() bool {
	n := len(r.vertices)
	return n > 1 && r.vertices[0] == r.vertices[n-1]
}

// Centroid returns the vertex mean, used to centre map views. A closing
// vertex is counted once.
func (r ROI) Centroid() LatLon {
	ring := r.vertices
	if r.Closed() {
		ring = ring[:len(ring)-1]
	}
	if len(ring) == 0 {
		return LatLon{}
	}
	var c LatLon
	for _, v := range ring {
		c.Lat += v.Lat
		c.Lon += v.Lon
	}
	n := float64(len(ring))
	return LatLon{Lat: c.Lat / n, Lon: c.Lon / n}
}

// Contains reports whether p lies inside the ring (even-odd rule).
func (r ROI) Contains(p LatLon) bool {
	inside := false
	n := len(r.vertices)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := r.vertices[i], r.vertices[j]
		if (a.Lat > p.Lat) != (b.Lat > p.Lat) {
			crossLon := (b.Lon-a.Lon)*(p.Lat-a.Lat)/(b.Lat-a.Lat) + a.Lon
			if p.Lon < crossLon {
				inside = !inside
			}
		}
	}
	return inside
}

// GeoJSONPolygon is the wire shape of a polygon geometry.
type GeoJSONPolygon struct {
	Type        string        `json:"type"`
	Coordinates [][][]float64 `json:"coordinates"`
}

// GeoJSON renders the ROI as an explicitly closed polygon in [lon, lat] order.
func (r ROI) GeoJSON() GeoJSONPolygon {
	ring := make([][]float64, 0, len(r.vertices)+1)
	for _, v := range r.vertices {
		ring = append(ring, []float64{v.Lon, v.Lat})
	}
	if len(r.vertices) > 0 && !r.Closed() {
		first := r.vertices[0]
		ring = append(ring, []float64{first.Lon, first.Lat})
	}
	return GeoJSONPolygon{Type: "Polygon", Coordinates: [][][]float64{ring}}
}

// ROIFromGeoJSON converts a polygon back into an ROI, dropping the closing vertex.
func ROIFromGeoJSON(poly GeoJSONPolygon) ROI {
	if len(poly.Coordinates) == 0 {
		return ROI{}
	}
	ring := poly.Coordinates[0]
	vertices := make([]LatLon, 0, len(ring))
	for _, pt := range ring {
		if len(pt) < 2 {
			continue
		}
		vertices = append(vertices, LatLon{Lat: pt[1], Lon: pt[0]})
	}
	if n := len(vertices); n > 1 && vertices[0] == vertices[n-1] {
		vertices = vertices[:n-1]
	}
	return ROI{vertices: vertices}
}
