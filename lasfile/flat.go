package lasfile

import (
	"context"
	"runtime"
	"sync"

	"github.com/edaniels/golog"
	"github.com/edaniels/lidario"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/calipsoviz/pointstream/pointcloud"
)

// maxFlatWorkers bounds the decode pool for whole-file reads.
const maxFlatWorkers = 8

// ReadLASFile reads an entire LAS file into one filtered, GPS-time-ordered
// block. This is the degraded mode for files without octree metadata: the
// caller pairs it with the zoom-bucket subsampler instead of LOD traversal.
//
// The file is split into disjoint point-index ranges decoded by up to eight
// workers. Each worker opens its own handle so no reader state is shared;
// the merge runs only after every worker has finished, since the GPS-time
// sort and global min/max need the complete set.
func ReadLASFile(
	ctx context.Context,
	path string,
	filter pointcloud.Filter,
	logger golog.Logger,
) (*pointcloud.PointBlock, pointcloud.DecodeStats, error) {
	var stats pointcloud.DecodeStats

	lf, err := lidario.NewLasFile(path, "r")
	if err != nil {
		return nil, stats, errors.Wrapf(err, "opening %q", path)
	}
	total := lf.Header.NumberPoints
	goutils.UncheckedErrorFunc(lf.Close)

	if total == 0 {
		return pointcloud.NewPointBlock(0), stats, nil
	}

	workers := runtime.NumCPU()
	if workers > maxFlatWorkers {
		workers = maxFlatWorkers
	}
	if workers > total {
		workers = total
	}

	type result struct {
		block *pointcloud.PointBlock
		stats pointcloud.DecodeStats
		err   error
	}
	results := make([]result, workers)
	chunk := total / workers

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		w := w
		begin := w * chunk
		end := begin + chunk
		if w == workers-1 {
			end = total
		}
		goutils.PanicCapturingGo(func() {
			defer wg.Done()
			block, st, err := readPointRange(ctx, path, begin, end, filter)
			results[w] = result{block: block, stats: st, err: err}
		})
	}
	wg.Wait()

	blocks := make([]*pointcloud.PointBlock, 0, workers)
	for _, res := range results {
		if res.err != nil {
			return nil, stats, res.err
		}
		blocks = append(blocks, res.block)
		stats.Add(res.stats)
	}

	merged := pointcloud.MergeSorted(blocks)
	if merged.Len() == 0 && stats.Read > 0 {
		logger.Infow("flat file decoded to zero valid points", "path", path, "read", stats.Read)
	}
	return merged, stats, nil
}

// readPointRange decodes the half-open point index range [begin, end) from
// its own file handle.
func readPointRange(
	ctx context.Context,
	path string,
	begin, end int,
	filter pointcloud.Filter,
) (_ *pointcloud.PointBlock, stats pointcloud.DecodeStats, err error) {
	lf, err := lidario.NewLasFile(path, "r")
	if err != nil {
		return nil, stats, err
	}
	defer goutils.UncheckedErrorFunc(lf.Close)

	block := pointcloud.NewPointBlock(end - begin)
	for i := begin; i < end; i++ {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, stats, err
			}
		}
		p, err := lf.LasPoint(i)
		if err != nil {
			return nil, stats, errors.Wrapf(err, "point %d", i)
		}
		stats.Read++
		data := p.PointData()

		gpsTime := p.GpsTimeData()
		if !PlausibleGPSTime(gpsTime) {
			gpsTime = float64(i)
		}

		if !isFinite(data.X) || !isFinite(data.Y) || !isFinite(data.Z) {
			stats.DroppedInvalid++
			continue
		}
		if !filter.Accepts(data.X, data.Y, data.Z, gpsTime) {
			stats.DroppedFiltered++
			continue
		}

		block.Append(
			float32(data.X), float32(data.Y), float32(data.Z),
			data.Intensity,
			data.ClassBitField.Value&0x1f,
			gpsTime,
		)
		stats.Kept++
	}
	return block, stats, nil
}
