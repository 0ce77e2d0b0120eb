package spatial

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// GeoBounds is a geographic filter box in longitude/latitude degrees and
// altitude kilometers. A zero GeoBounds is invalid; use NewGeoBounds.
type GeoBounds struct {
	MinLon float64
	MaxLon float64
	MinLat float64
	MaxLat float64
	MinAlt float64
	MaxAlt float64
}

// NewGeoBounds validates that min does not exceed max on any axis.
func NewGeoBounds(minLon, maxLon, minLat, maxLat, minAlt, maxAlt float64) (GeoBounds, error) {
	b := GeoBounds{
		MinLon: minLon, MaxLon: maxLon,
		MinLat: minLat, MaxLat: maxLat,
		MinAlt: minAlt, MaxAlt: maxAlt,
	}
	if minLon > maxLon || minLat > maxLat || minAlt > maxAlt {
		return GeoBounds{}, errors.Errorf("inverted bounds %+v", b)
	}
	return b, nil
}

// Contains reports whether the coordinate falls inside the bounds.
func (g GeoBounds) Contains(lon, lat, alt float64) bool {
	return lon >= g.MinLon && lon <= g.MaxLon &&
		lat >= g.MinLat && lat <= g.MaxLat &&
		alt >= g.MinAlt && alt <= g.MaxAlt
}

// Box returns the bounds as a BoundingBox for node-level intersection tests.
func (g GeoBounds) Box() BoundingBox {
	return BoundingBox{
		Min: r3.Vector{X: g.MinLon, Y: g.MinLat, Z: g.MinAlt},
		Max: r3.Vector{X: g.MaxLon, Y: g.MaxLat, Z: g.MaxAlt},
	}
}

// Interval is a scalar range filter. When Enabled is false every value is
// accepted.
type Interval struct {
	Enabled bool
	Min     float64
	Max     float64
}

// Accepts reports whether v passes the filter.
func (iv Interval) Accepts(v float64) bool {
	if !iv.Enabled {
		return true
	}
	return v >= iv.Min && v <= iv.Max
}
