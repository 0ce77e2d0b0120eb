package stream

import (
	"github.com/calipsoviz/pointstream/pointcloud"
)

// subsampleBreakpoints maps camera distance from the root cube center to a
// decimation stride. Buckets are fixed; the stride inside each bucket is
// scaled down as the resident point total shrinks so sparse scenes are
// never over-decimated.
var subsampleBreakpoints = []struct {
	distance float64
	stride   int
}{
	{5e5, 1},
	{2e6, 2},
	{8e6, 4},
	{2e7, 8},
}

const subsampleFarStride = 16

// DecimationStride picks the stride for a renderer-side thinning pass
// given the camera distance to the scene and the resident point count.
// Stride 1 means every point is drawn.
func DecimationStride(cameraDistance float64, residentPoints int) int {
	stride := subsampleFarStride
	for _, bp := range subsampleBreakpoints {
		if cameraDistance <= bp.distance {
			stride = bp.stride
			break
		}
	}
	// small scenes draw in full regardless of distance
	for stride > 1 && residentPoints/stride < 100_000 {
		stride /= 2
	}
	return stride
}

// Decimate applies the zoom-bucket stride to a merged snapshot block.
func Decimate(block *pointcloud.PointBlock, cameraDistance float64) *pointcloud.PointBlock {
	stride := DecimationStride(cameraDistance, block.Len())
	if stride <= 1 {
		return block
	}
	return block.Subsample(stride)
}
