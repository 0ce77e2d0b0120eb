// Package pointcloud defines the columnar point containers produced by the
// octree node decoders, the per-point filter pipeline applied during decode,
// and the merge step that joins parallel decode results into one
// GPS-time-ordered cloud.
package pointcloud

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// A PointBlock holds decoded points as parallel arrays: three position
// components per point (longitude deg, latitude deg, altitude km), raw LAS
// intensity, classification code, GPS time in TAI seconds, and a computed
// RGB color triplet. All arrays share one logical length.
type PointBlock struct {
	Positions      []float32
	Intensity      []uint16
	Classification []uint8
	GPSTime        []float64
	Color          []uint8
}

// NewPointBlock returns an empty block with capacity for n points.
func NewPointBlock(n int) *PointBlock {
	return &PointBlock{
		Positions:      make([]float32, 0, n*3),
		Intensity:      make([]uint16, 0, n),
		Classification: make([]uint8, 0, n),
		GPSTime:        make([]float64, 0, n),
	}
}

// Len returns the number of points in the block.
func (b *PointBlock) Len() int {
	return len(b.GPSTime)
}

// Append adds one point. Color is left unset; the color mapper fills it for
// the whole block at once.
func (b *PointBlock) Append(lon, lat, alt float32, intensity uint16, classification uint8, gpsTime float64) {
	b.Positions = append(b.Positions, lon, lat, alt)
	b.Intensity = append(b.Intensity, intensity)
	b.Classification = append(b.Classification, classification)
	b.GPSTime = append(b.GPSTime, gpsTime)
}

// Position returns the i-th point's coordinates.
func (b *PointBlock) Position(i int) (lon, lat, alt float32) {
	return b.Positions[i*3], b.Positions[i*3+1], b.Positions[i*3+2]
}

// Validate checks the parallel-array length invariant.
func (b *PointBlock) Validate() error {
	n := b.Len()
	if len(b.Positions) != n*3 {
		return errors.Errorf("positions length %d does not match %d points", len(b.Positions), n)
	}
	if len(b.Intensity) != n || len(b.Classification) != n {
		return errors.Errorf("attribute arrays do not match %d points", n)
	}
	if b.Color != nil && len(b.Color) != n*3 {
		return errors.Errorf("color length %d does not match %d points", len(b.Color), n)
	}
	return nil
}

// BlockStats summarizes a block for the renderer and telemetry surfaces.
type BlockStats struct {
	Points     int
	MinGPSTime float64
	MaxGPSTime float64
	MinAlt     float64
	MaxAlt     float64
}

// Stats computes summary statistics over the block. Zero-length blocks
// return a zero BlockStats.
func (b *PointBlock) Stats() BlockStats {
	n := b.Len()
	if n == 0 {
		return BlockStats{}
	}
	alts := make([]float64, n)
	for i := 0; i < n; i++ {
		alts[i] = float64(b.Positions[i*3+2])
	}
	return BlockStats{
		Points:     n,
		MinGPSTime: floats.Min(b.GPSTime),
		MaxGPSTime: floats.Max(b.GPSTime),
		MinAlt:     floats.Min(alts),
		MaxAlt:     floats.Max(alts),
	}
}
