// Package potree reads Potree 2.x point-cloud layouts: metadata.json for
// the attribute table and bounds, hierarchy.bin for the node index, and
// octree.bin for the flat point payload.
package potree

import (
	"encoding/json"
	"strings"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/calipsoviz/pointstream/lasfile"
	"github.com/calipsoviz/pointstream/spatial"
)

// Attribute is one column of the flat record layout.
type Attribute struct {
	Name        string    `json:"name"`
	Size        int       `json:"size"`
	NumElements int       `json:"numElements"`
	ElementSize int       `json:"elementSize"`
	Type        string    `json:"type"`
	Min         []float64 `json:"min"`
	Max         []float64 `json:"max"`
}

// Metadata mirrors the metadata.json schema the engine consumes.
type Metadata struct {
	Version   string  `json:"version"`
	Name      string  `json:"name"`
	Points    int64   `json:"points"`
	Spacing   float64 `json:"spacing"`
	Hierarchy struct {
		FirstChunkSize int64 `json:"firstChunkSize"`
		StepSize       int   `json:"stepSize"`
		Depth          int   `json:"depth"`
	} `json:"hierarchy"`
	Offset      []float64 `json:"offset"`
	Scale       []float64 `json:"scale"`
	BoundingBox struct {
		Min []float64 `json:"min"`
		Max []float64 `json:"max"`
	} `json:"boundingBox"`
	Attributes []Attribute `json:"attributes"`
}

// ParseMetadata decodes and validates metadata.json.
func ParseMetadata(data []byte) (*Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "parsing metadata.json")
	}
	if len(m.Attributes) == 0 {
		return nil, errors.New("metadata declares no attributes")
	}
	if len(m.Scale) < 3 || len(m.Offset) < 3 {
		return nil, errors.New("metadata missing scale/offset")
	}
	return &m, nil
}

// Attribute returns the named attribute, nil if absent.
func (m *Metadata) Attribute(name string) *Attribute {
	for i := range m.Attributes {
		if strings.EqualFold(m.Attributes[i].Name, name) {
			return &m.Attributes[i]
		}
	}
	return nil
}

// Stride returns the per-record byte stride: the sum of declared attribute
// sizes.
func (m *Metadata) Stride() int {
	total := 0
	for _, a := range m.Attributes {
		total += a.Size
	}
	return total
}

// Bounds returns the octree root cube. The declared boundingBox is known to
// sometimes be wrong in converted datasets, so it is cross-checked against
// the position attribute's own min/max and replaced when implausible; the
// recovery is logged, not an error.
func (m *Metadata) Bounds(logger golog.Logger) spatial.BoundingBox {
	declared := boxFromSlices(m.BoundingBox.Min, m.BoundingBox.Max)
	if plausibleCube(declared) {
		return declared
	}

	pos := m.Attribute("position")
	if pos != nil && len(pos.Min) >= 3 && len(pos.Max) >= 3 {
		recovered := boxFromSlices(pos.Min, pos.Max)
		if !recovered.IsEmpty() {
			logger.Warnw("metadata bounding box is implausible, recovered from position attribute",
				"declared", declared, "recovered", recovered)
			return recovered
		}
	}
	logger.Warnw("metadata bounding box is implausible and position attribute offers no recovery",
		"declared", declared)
	return declared
}

func plausibleCube(b spatial.BoundingBox) bool {
	return !b.IsEmpty() &&
		b.Min.X >= -360 && b.Max.X <= 360 &&
		b.Min.Y >= -180 && b.Max.Y <= 180
}

func boxFromSlices(min, max []float64) spatial.BoundingBox {
	var b spatial.BoundingBox
	if len(min) >= 3 {
		b.Min = r3.Vector{X: min[0], Y: min[1], Z: min[2]}
	}
	if len(max) >= 3 {
		b.Max = r3.Vector{X: max[0], Y: max[1], Z: max[2]}
	}
	return b
}

// ScaleOffset returns the position scale and offset vectors.
func (m *Metadata) ScaleOffset() (scale, offset r3.Vector) {
	scale = r3.Vector{X: m.Scale[0], Y: m.Scale[1], Z: m.Scale[2]}
	offset = r3.Vector{X: m.Offset[0], Y: m.Offset[1], Z: m.Offset[2]}
	return scale, offset
}

// ResolveLayout validates the attribute table once and produces the record
// layout used for every node decode. Position is required; intensity,
// classification, and GPS time are optional columns.
func (m *Metadata) ResolveLayout() (lasfile.RecordLayout, error) {
	layout := lasfile.RecordLayout{
		Kind:   lasfile.LayoutPotreeFlat,
		Stride: m.Stride(),
	}
	if layout.Stride <= 0 {
		return layout, errors.New("attribute table declares zero stride")
	}

	offset := 0
	found := false
	for _, a := range m.Attributes {
		switch strings.ToLower(a.Name) {
		case "position":
			if a.Size != 12 {
				return layout, errors.Errorf("position attribute size %d, want 12", a.Size)
			}
			layout.OffPosition = offset
			found = true
		case "intensity":
			layout.OffIntensity = offset
			layout.HasIntensity = a.Size == 2
		case "classification":
			layout.OffClassification = offset
			layout.HasClassification = a.Size == 1
		case "gps-time", "gpstime", "gps_time":
			layout.OffGPSTime = offset
			layout.HasGPSTime = a.Size == 8
		}
		offset += a.Size
	}
	if !found {
		return layout, errors.New("attribute table has no position attribute")
	}
	return layout, nil
}
