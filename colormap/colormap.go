// Package colormap maps point attribute values to RGB colors. Colors are
// always recomputed from source attributes when the mode, ramp, or value
// range changes; they are never persisted across filter changes, so they
// cannot go stale.
package colormap

import (
	"math"

	"github.com/pkg/errors"

	"github.com/calipsoviz/pointstream/pointcloud"
)

// RGB is one 8-bit color triplet.
type RGB struct {
	R uint8
	G uint8
	B uint8
}

// Mode selects which attribute drives the color.
type Mode uint8

const (
	// ModeElevation colors by altitude in km, linearly over the range.
	ModeElevation = Mode(iota)
	// ModeIntensity colors by the physical backscatter value decoded from
	// the raw LAS intensity.
	ModeIntensity
	// ModeClassification colors by classification code through a fixed
	// palette.
	ModeClassification
)

func (m Mode) String() string {
	switch m {
	case ModeIntensity:
		return "intensity"
	case ModeClassification:
		return "classification"
	default:
		return "elevation"
	}
}

// Ramp is a named gradient.
type Ramp uint8

const (
	// RampTurbo is a blue-green-yellow-red gradient.
	RampTurbo = Ramp(iota)
	// RampGrayscale runs black to white.
	RampGrayscale
	// RampCividis is a blue-to-yellow gradient legible for color-blind
	// viewers.
	RampCividis
)

var rampStops = map[Ramp][]RGB{
	RampTurbo: {
		{48, 18, 59}, {70, 107, 227}, {40, 187, 236}, {49, 242, 153},
		{163, 253, 60}, {237, 207, 57}, {251, 128, 34}, {210, 49, 5}, {122, 4, 3},
	},
	RampGrayscale: {
		{0, 0, 0}, {255, 255, 255},
	},
	RampCividis: {
		{0, 32, 77}, {60, 77, 110}, {126, 125, 120}, {200, 182, 101}, {255, 233, 69},
	},
}

// Map linearly maps value within [min, max] onto the ramp. Values outside
// the range clamp to the ramp endpoints; a degenerate range maps everything
// to the low endpoint.
func Map(value, min, max float64, ramp Ramp) RGB {
	stops, ok := rampStops[ramp]
	if !ok {
		stops = rampStops[RampTurbo]
	}
	if math.IsNaN(value) || max <= min {
		return stops[0]
	}
	t := (value - min) / (max - min)
	if t <= 0 {
		return stops[0]
	}
	if t >= 1 {
		return stops[len(stops)-1]
	}

	scaled := t * float64(len(stops)-1)
	i := int(scaled)
	frac := scaled - float64(i)
	a, b := stops[i], stops[i+1]
	return RGB{
		R: lerp(a.R, b.R, frac),
		G: lerp(a.G, b.G, frac),
		B: lerp(a.B, b.B, frac),
	}
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t + 0.5)
}

// classificationPalette is the fixed lookup for discrete class codes,
// following the standard LAS class colors where they exist.
var classificationPalette = map[uint8]RGB{
	0: {120, 120, 120}, // never classified
	1: {180, 180, 180}, // unclassified
	2: {161, 82, 46},   // ground
	3: {92, 160, 60},   // low vegetation
	4: {60, 190, 60},   // medium vegetation
	5: {30, 220, 30},   // high vegetation
	6: {223, 80, 59},   // building
	7: {255, 32, 32},   // noise
	9: {60, 104, 222},  // water
}

// classificationDefault colors codes missing from the palette.
var classificationDefault = RGB{200, 200, 255}

// ForClassification looks the class code up in the fixed palette.
func ForClassification(code uint8) RGB {
	if c, ok := classificationPalette[code]; ok {
		return c
	}
	return classificationDefault
}

// Options selects the value domain, gradient, and value range for Apply.
type Options struct {
	Mode Mode
	Ramp Ramp
	// Min/Max bound the value domain: altitude km for elevation,
	// physical backscatter for intensity. Ignored for classification.
	Min float64
	Max float64
}

// Apply recomputes the block's color array in place from its source
// attributes.
func Apply(block *pointcloud.PointBlock, opts Options) error {
	if err := block.Validate(); err != nil {
		return errors.Wrap(err, "coloring block")
	}
	n := block.Len()
	if cap(block.Color) < n*3 {
		block.Color = make([]uint8, n*3)
	}
	block.Color = block.Color[:n*3]

	for i := 0; i < n; i++ {
		var c RGB
		switch opts.Mode {
		case ModeIntensity:
			c = Map(pointcloud.DecodeIntensity(block.Intensity[i]), opts.Min, opts.Max, opts.Ramp)
		case ModeClassification:
			c = ForClassification(block.Classification[i])
		default:
			_, _, alt := block.Position(i)
			c = Map(float64(alt), opts.Min, opts.Max, opts.Ramp)
		}
		block.Color[i*3] = c.R
		block.Color[i*3+1] = c.G
		block.Color[i*3+2] = c.B
	}
	return nil
}
