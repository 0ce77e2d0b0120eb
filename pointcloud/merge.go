package pointcloud

import (
	"sort"
)

// MergeSorted joins partial blocks produced by parallel decode workers into
// one block ordered ascending by GPS time. It must only be called after
// every worker has finished; global min/max tracking is meaningless over a
// partial set. Input blocks are not modified.
func MergeSorted(blocks []*PointBlock) *PointBlock {
	total := 0
	for _, b := range blocks {
		if b != nil {
			total += b.Len()
		}
	}
	merged := NewPointBlock(total)
	for _, b := range blocks {
		if b == nil {
			continue
		}
		merged.Positions = append(merged.Positions, b.Positions...)
		merged.Intensity = append(merged.Intensity, b.Intensity...)
		merged.Classification = append(merged.Classification, b.Classification...)
		merged.GPSTime = append(merged.GPSTime, b.GPSTime...)
	}
	merged.SortByGPSTime()
	return merged
}

// SortByGPSTime reorders all parallel arrays ascending by GPS time, using a
// single index permutation so the arrays stay in lockstep.
func (b *PointBlock) SortByGPSTime() {
	n := b.Len()
	if n < 2 {
		return
	}
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(i, j int) bool {
		return b.GPSTime[perm[i]] < b.GPSTime[perm[j]]
	})

	positions := make([]float32, n*3)
	intensity := make([]uint16, n)
	classification := make([]uint8, n)
	gpsTime := make([]float64, n)
	var colors []uint8
	if b.Color != nil {
		colors = make([]uint8, n*3)
	}
	for dst, src := range perm {
		copy(positions[dst*3:dst*3+3], b.Positions[src*3:src*3+3])
		intensity[dst] = b.Intensity[src]
		classification[dst] = b.Classification[src]
		gpsTime[dst] = b.GPSTime[src]
		if colors != nil {
			copy(colors[dst*3:dst*3+3], b.Color[src*3:src*3+3])
		}
	}
	b.Positions = positions
	b.Intensity = intensity
	b.Classification = classification
	b.GPSTime = gpsTime
	b.Color = colors
}

// Subsample returns every stride-th point of the block. A stride of 1 (or
// less) returns the block unchanged. This is the degraded-mode decimation
// path used for flat-loaded files without octree metadata.
func (b *PointBlock) Subsample(stride int) *PointBlock {
	if stride <= 1 {
		return b
	}
	n := b.Len()
	out := NewPointBlock(n/stride + 1)
	for i := 0; i < n; i += stride {
		lon, lat, alt := b.Position(i)
		out.Append(lon, lat, alt, b.Intensity[i], b.Classification[i], b.GPSTime[i])
	}
	return out
}
