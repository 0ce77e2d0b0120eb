package spatial

import (
	"github.com/pkg/errors"
)

// Vertex is a polygon corner in degrees.
type Vertex struct {
	Lon float64
	Lat float64
}

// Polygon is a simple (non-self-intersecting) polygon over lon/lat used for
// area-of-interest refinement beyond a bounding box. Vertices are in order;
// the polygon is implicitly closed.
type Polygon struct {
	vertices []Vertex
}

// NewPolygon validates the vertex count. Winding order does not matter.
func NewPolygon(vertices []Vertex) (*Polygon, error) {
	if len(vertices) < 3 {
		return nil, errors.Errorf("polygon needs at least 3 vertices, got %d", len(vertices))
	}
	vs := make([]Vertex, len(vertices))
	copy(vs, vertices)
	return &Polygon{vertices: vs}, nil
}

// Len returns the number of vertices.
func (p *Polygon) Len() int {
	return len(p.vertices)
}

// Vertices returns a copy of the vertex list.
func (p *Polygon) Vertices() []Vertex {
	vs := make([]Vertex, len(p.vertices))
	copy(vs, p.vertices)
	return vs
}

// Contains reports whether the coordinate lies inside the polygon, by
// casting a ray toward +lon and counting edge crossings.
func (p *Polygon) Contains(lon, lat float64) bool {
	inside := false
	n := len(p.vertices)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		vi, vj := p.vertices[i], p.vertices[j]
		if (vi.Lat > lat) != (vj.Lat > lat) &&
			lon < (vj.Lon-vi.Lon)*(lat-vi.Lat)/(vj.Lat-vi.Lat)+vi.Lon {
			inside = !inside
		}
	}
	return inside
}
