package lasfile

import (
	"encoding/binary"
	"math"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/calipsoviz/pointstream/pointcloud"
)

// DecodeRecords decodes a node's raw (already decompressed) byte buffer
// into a filtered PointBlock using the resolved layout and the file's
// scale/offset. Points failing the finiteness, geographic-range, or active
// filter checks are dropped and counted; a fully dropped node is reported
// via DecodeStats, never as an error.
func DecodeRecords(
	buf []byte,
	layout RecordLayout,
	scale, offset r3.Vector,
	filter pointcloud.Filter,
	logger golog.Logger,
) (*pointcloud.PointBlock, pointcloud.DecodeStats, error) {
	var stats pointcloud.DecodeStats
	if layout.Stride <= 0 {
		return nil, stats, errors.Errorf("invalid record stride %d", layout.Stride)
	}
	count := len(buf) / layout.Stride
	if count == 0 {
		return pointcloud.NewPointBlock(0), stats, nil
	}

	gpsOffset, synthetic := resolveGPSTimeOffset(buf, layout, count, logger)

	block := pointcloud.NewPointBlock(count)
	for i := 0; i < count; i++ {
		rec := buf[i*layout.Stride : (i+1)*layout.Stride]
		stats.Read++

		// both variants store positions as scaled little-endian int32 triples;
		// only the surrounding stride and attribute offsets differ
		lon := float64(int32(binary.LittleEndian.Uint32(rec[layout.OffPosition:])))*scale.X + offset.X
		lat := float64(int32(binary.LittleEndian.Uint32(rec[layout.OffPosition+4:])))*scale.Y + offset.Y
		alt := float64(int32(binary.LittleEndian.Uint32(rec[layout.OffPosition+8:])))*scale.Z + offset.Z

		var gpsTime float64
		switch {
		case synthetic:
			// sequence index as a synthetic ordering key
			gpsTime = float64(i)
		default:
			gpsTime = math.Float64frombits(binary.LittleEndian.Uint64(rec[gpsOffset:]))
			if !PlausibleGPSTime(gpsTime) {
				gpsTime = float64(i)
			}
		}

		if !isFinite(lon) || !isFinite(lat) || !isFinite(alt) {
			stats.DroppedInvalid++
			continue
		}
		if !filter.Accepts(lon, lat, alt, gpsTime) {
			stats.DroppedFiltered++
			continue
		}

		var intensity uint16
		if layout.HasIntensity {
			intensity = binary.LittleEndian.Uint16(rec[layout.OffIntensity:])
		}
		var classification uint8
		if layout.HasClassification {
			classification = rec[layout.OffClassification]
		}

		block.Append(float32(lon), float32(lat), float32(alt), intensity, classification, gpsTime)
		stats.Kept++
	}

	if stats.Kept == 0 && stats.Read > 0 {
		logger.Infow("node decoded to zero valid points",
			"read", stats.Read,
			"droppedInvalid", stats.DroppedInvalid,
			"droppedFiltered", stats.DroppedFiltered,
		)
	}
	return block, stats, nil
}

// resolveGPSTimeOffset returns the byte offset to read GPS time at, and
// whether to fall back to synthetic sequence ordering.
//
// The declared format fixes the offset (22 for Point Format 6). Some
// upstream conversions have been observed to shift the field by one or two
// bytes; when the declared offset yields implausible values we probe the
// two neighboring offsets before giving up. The probing is a recovery path
// for what is almost certainly an upstream layout bug, not expected
// behavior, so every engagement of it is logged.
func resolveGPSTimeOffset(buf []byte, layout RecordLayout, count int, logger golog.Logger) (int, bool) {
	if !layout.HasGPSTime {
		return 0, true
	}

	sample := count
	if sample > 16 {
		sample = 16
	}
	plausibleAt := func(off int) bool {
		if off < 0 || off+8 > layout.Stride {
			return false
		}
		ok := 0
		for i := 0; i < sample; i++ {
			v := math.Float64frombits(binary.LittleEndian.Uint64(buf[i*layout.Stride+off:]))
			if PlausibleGPSTime(v) {
				ok++
			}
		}
		return ok*2 > sample // majority of the sample
	}

	if plausibleAt(layout.OffGPSTime) {
		return layout.OffGPSTime, false
	}
	for _, probe := range []int{layout.OffGPSTime - 1, layout.OffGPSTime - 2} {
		if plausibleAt(probe) {
			logger.Warnw("gps time found at shifted offset; source layout disagrees with declared format",
				"declared", layout.OffGPSTime, "actual", probe)
			return probe, false
		}
	}
	logger.Warnw("no plausible gps time in node; falling back to sequence ordering",
		"declared", layout.OffGPSTime)
	return 0, true
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
