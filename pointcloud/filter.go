package pointcloud

import (
	"encoding/binary"
	"hash/fnv"
	"math"

	"github.com/calipsoviz/pointstream/spatial"
)

// Filter is the per-point predicate pipeline applied during decode. A zero
// Filter accepts every finite, geographically plausible point.
type Filter struct {
	// Bounds restricts points to a geographic box when BoundsEnabled is set.
	Bounds        spatial.GeoBounds
	BoundsEnabled bool
	// Height filters on altitude in km, Time on GPS time in TAI seconds.
	Height spatial.Interval
	Time   spatial.Interval
	// AOI, when set, requires polygon containment in lon/lat.
	AOI *spatial.Polygon
}

// Accepts runs the full predicate chain: finiteness, geographic range,
// bounds, height, time, then polygon containment.
func (f Filter) Accepts(lon, lat, alt, gpsTime float64) bool {
	if !finite(lon) || !finite(lat) || !finite(alt) {
		return false
	}
	if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return false
	}
	if f.BoundsEnabled && !f.Bounds.Contains(lon, lat, alt) {
		return false
	}
	if !f.Height.Accepts(alt) {
		return false
	}
	if !f.Time.Accepts(gpsTime) {
		return false
	}
	if f.AOI != nil && !f.AOI.Contains(lon, lat) {
		return false
	}
	return true
}

// Fingerprint hashes the filter configuration. The engine compares
// fingerprints when a filter setter runs, so re-applying an identical
// filter does not invalidate resident nodes.
func (f Filter) Fingerprint() uint64 {
	h := fnv.New64a()
	buf := make([]byte, 8)
	writeF := func(v float64) {
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
		//nolint:errcheck // fnv Write cannot fail
		h.Write(buf)
	}
	writeB := func(v bool) {
		if v {
			//nolint:errcheck
			h.Write([]byte{1})
		} else {
			//nolint:errcheck
			h.Write([]byte{0})
		}
	}

	writeB(f.BoundsEnabled)
	writeF(f.Bounds.MinLon)
	writeF(f.Bounds.MaxLon)
	writeF(f.Bounds.MinLat)
	writeF(f.Bounds.MaxLat)
	writeF(f.Bounds.MinAlt)
	writeF(f.Bounds.MaxAlt)
	writeB(f.Height.Enabled)
	writeF(f.Height.Min)
	writeF(f.Height.Max)
	writeB(f.Time.Enabled)
	writeF(f.Time.Min)
	writeF(f.Time.Max)
	if f.AOI != nil {
		writeB(true)
		for _, v := range f.AOI.Vertices() {
			writeF(v.Lon)
			writeF(v.Lat)
		}
	}
	return h.Sum64()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// DecodeStats records per-node decode outcomes. Invalid points are dropped
// silently but counted so a fully-invalid node can be reported upstream as
// an informational condition.
type DecodeStats struct {
	Read            int
	Kept            int
	DroppedInvalid  int
	DroppedFiltered int
}

// Add accumulates another decode's counters.
func (s *DecodeStats) Add(other DecodeStats) {
	s.Read += other.Read
	s.Kept += other.Kept
	s.DroppedInvalid += other.DroppedInvalid
	s.DroppedFiltered += other.DroppedFiltered
}
