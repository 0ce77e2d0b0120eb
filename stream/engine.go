package stream

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/bep/debounce"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	goutils "go.viam.com/utils"

	"github.com/calipsoviz/pointstream/colormap"
	"github.com/calipsoviz/pointstream/octree"
	"github.com/calipsoviz/pointstream/pointcloud"
	"github.com/calipsoviz/pointstream/spatial"
)

// Engine is the streaming engine instance. It owns the only reference to
// the node graph and hands it by reference to the scheduler and cache; no
// state lives outside the instance.
//
// Concurrency model: passMu serializes traversal passes and all node-graph
// structure changes (hierarchy expansion); hierarchy page fetches happen
// under passMu alone, before planning, so network waits never hold mu. mu
// guards node load state, attached blocks, and the input surface (camera,
// filter, color). Load workers run in the background and take mu only to
// commit or abort.
type Engine struct {
	logger golog.Logger
	cfg    Config
	source Source
	clock  clock.Clock

	passMu sync.Mutex
	index  *octree.Index
	sched  *scheduler

	mu          sync.Mutex
	cache       *nodeCache
	camera      spatial.Camera
	hasCam      bool
	filter      pointcloud.Filter
	filterPrint uint64
	colorer     colormap.Options
	lastPass    PassStats
	lastPassAt  time.Time

	// generation increments on every filter/appearance change; blocks
	// decoded under an older generation are discarded at commit time.
	generation atomic.Uint64

	failedLoads    atomic.Int64
	zeroPointNodes atomic.Int64

	debouncedPass func(func())

	cancelCtx               context.Context
	cancel                  context.CancelFunc
	activeBackgroundWorkers sync.WaitGroup
	loadWorkers             sync.WaitGroup
}

// NewEngine builds the node graph for the source's octree and loads the
// root hierarchy page. A totally unreachable source fails here, once, and
// is the only error surfaced to the caller as terminal.
func NewEngine(ctx context.Context, source Source, cfg Config, logger golog.Logger) (*Engine, error) {
	cfg = cfg.withDefaults()
	index := octree.NewIndex(source.Bounds(), logger)
	if err := source.InitHierarchy(ctx, index); err != nil {
		return nil, errors.Wrap(err, "loading root hierarchy")
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		logger:        logger,
		cfg:           cfg,
		source:        source,
		clock:         clock.New(),
		index:         index,
		sched:         &scheduler{cfg: cfg, logger: logger},
		cache:         newNodeCache(logger),
		colorer:       colormap.Options{Mode: colormap.ModeElevation, Min: 0, Max: 40},
		debouncedPass: debounce.New(cfg.CameraDebounce),
		cancelCtx:     cancelCtx,
		cancel:        cancel,
	}
	e.filterPrint = e.filter.Fingerprint()
	return e, nil
}

// Close stops background loads and waits for them to finish.
func (e *Engine) Close() error {
	e.cancel()
	e.loadWorkers.Wait()
	e.activeBackgroundWorkers.Wait()
	return nil
}

// Pass runs one full traversal from the root: prune, refine, and schedule
// loads under the point budget, then unload every resident node the pass
// did not reach. Scheduled loads run in the background; call WaitForLoads
// to join them. A single node's failure never aborts the pass or blocks
// its siblings.
func (e *Engine) Pass(ctx context.Context) (PassStats, error) {
	e.passMu.Lock()
	defer e.passMu.Unlock()
	if err := ctx.Err(); err != nil {
		return PassStats{}, err
	}

	e.mu.Lock()
	in := traversalInput{
		camera:     e.camera,
		hasCamera:  e.hasCam,
		filter:     e.filter,
		generation: e.generation.Load(),
	}
	e.mu.Unlock()

	// fetch any hierarchy pages the refinement frontier needs before
	// planning; only passMu is held across the network waits
	hierarchyErrs := e.expandReachable(ctx, in)

	e.mu.Lock()
	loads, visited, stats := e.sched.plan(e.index, e.cache, in)
	stats.HierarchyErrs = hierarchyErrs

	// evict loaded nodes the traversal no longer reaches
	for _, key := range e.cache.loadedKeys() {
		if visited.Contains(key) {
			continue
		}
		if node, ok := e.index.Get(key); ok {
			e.cache.unload(node)
			stats.Unloaded++
		}
	}
	e.lastPass = stats
	e.lastPassAt = e.clock.Now()
	e.mu.Unlock()

	e.launchLoads(loads, in)
	return stats, nil
}

// expandReachable repeatedly discovers frontier nodes with deferred
// hierarchy pages and fetches them until the reachable graph is fully
// expanded. Each node is attempted at most once per pass; a failed page
// leaves its subtree coarse until the next pass. Returns the number of
// failed expansions. Callers hold passMu, never mu.
func (e *Engine) expandReachable(ctx context.Context, in traversalInput) int {
	errs := 0
	attempted := make(map[octree.NodeKey]struct{})
	for {
		progressed := false
		for _, node := range e.sched.discover(e.index, in) {
			if _, ok := attempted[node.Key]; ok {
				continue
			}
			attempted[node.Key] = struct{}{}
			progressed = true
			if ctx.Err() != nil {
				return errs
			}
			if err := e.source.ExpandHierarchy(ctx, e.index, node); err != nil {
				e.logger.Warnw("hierarchy expansion failed", "node", node.Key.String(), "error", err)
				errs++
			}
		}
		if !progressed {
			return errs
		}
	}
}

// launchLoads issues node fetch+decode work in bounded concurrent batches.
// Completion order across batches is unspecified; commit-time generation
// checks make that safe.
func (e *Engine) launchLoads(loads []*octree.Node, in traversalInput) {
	if len(loads) == 0 {
		return
	}
	sem := make(chan struct{}, e.cfg.FetchBatchSize)
	for _, node := range loads {
		node := node
		e.loadWorkers.Add(1)
		goutils.PanicCapturingGo(func() {
			defer e.loadWorkers.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			e.loadNode(node, in)
		})
	}
}

// loadNode runs one node's fetch, decode, and color pipeline and commits
// the result if it is still wanted.
func (e *Engine) loadNode(node *octree.Node, in traversalInput) {
	raw, err := e.source.ReadNode(e.cancelCtx, node)
	if err != nil {
		e.failedLoads.Inc()
		e.logger.Warnw("node fetch failed", "node", node.Key.String(), "error", err)
		e.mu.Lock()
		e.cache.abort(node)
		e.mu.Unlock()
		return
	}

	block, decodeStats, err := e.source.Decode(node, raw, in.filter)
	if err != nil {
		e.failedLoads.Inc()
		e.logger.Warnw("node decode failed", "node", node.Key.String(), "error", err)
		e.mu.Lock()
		e.cache.abort(node)
		e.mu.Unlock()
		return
	}
	if decodeStats.Kept == 0 && decodeStats.Read > 0 {
		e.zeroPointNodes.Inc()
	}

	e.mu.Lock()
	colorer := e.colorer
	e.mu.Unlock()
	if err := colormap.Apply(block, colorer); err != nil {
		e.failedLoads.Inc()
		e.mu.Lock()
		e.cache.abort(node)
		e.mu.Unlock()
		return
	}

	e.mu.Lock()
	committed := e.cache.commit(node, block, in.generation, e.generation.Load())
	e.mu.Unlock()
	if !committed {
		e.logger.Debugw("discarding stale decode result", "node", node.Key.String())
	}
}

// WaitForLoads blocks until every load scheduled so far has committed,
// aborted, or been discarded.
func (e *Engine) WaitForLoads() {
	e.loadWorkers.Wait()
}

// ObserveCamera records a new camera state. Movement below the configured
// epsilon is ignored; larger movement schedules a debounced background
// traversal pass.
func (e *Engine) ObserveCamera(cam spatial.Camera) {
	e.mu.Lock()
	if e.hasCam && cam.ApproxEqual(e.camera, e.cfg.CameraEpsilon) {
		e.mu.Unlock()
		return
	}
	e.camera = cam
	e.hasCam = true
	e.mu.Unlock()

	e.debouncedPass(func() {
		e.activeBackgroundWorkers.Add(1)
		goutils.PanicCapturingGo(func() {
			defer e.activeBackgroundWorkers.Done()
			if _, err := e.Pass(e.cancelCtx); err != nil && !errors.Is(err, context.Canceled) {
				e.logger.Warnw("camera-triggered pass failed", "error", err)
			}
		})
	})
}

// invalidate bumps the generation and unloads everything; filters apply at
// decode time, so every predicate or appearance change forces a reload.
// Callers hold mu.
func (e *Engine) invalidateLocked() {
	e.generation.Inc()
	e.cache.invalidateAll(e.index)
}

// applyFilterLocked invalidates resident nodes only when the filter
// actually changed, by comparing fingerprints. Re-applying an identical
// filter is a no-op, so repeated setter calls never force refetches.
// Callers hold mu and have already mutated e.filter.
func (e *Engine) applyFilterLocked() {
	fp := e.filter.Fingerprint()
	if fp == e.filterPrint {
		return
	}
	e.filterPrint = fp
	e.invalidateLocked()
}

// SetSpatialBounds replaces the geographic filter box. Passing enabled
// false clears it.
func (e *Engine) SetSpatialBounds(bounds spatial.GeoBounds, enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filter.Bounds = bounds
	e.filter.BoundsEnabled = enabled
	e.applyFilterLocked()
}

// SetHeightFilter replaces the altitude interval filter.
func (e *Engine) SetHeightFilter(iv spatial.Interval) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filter.Height = iv
	e.applyFilterLocked()
}

// SetTimeRange replaces the GPS-time interval filter.
func (e *Engine) SetTimeRange(iv spatial.Interval) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filter.Time = iv
	e.applyFilterLocked()
}

// SetAOI replaces the area-of-interest polygon; nil clears it.
func (e *Engine) SetAOI(p *spatial.Polygon) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filter.AOI = p
	e.applyFilterLocked()
}

// SetColorMode replaces the color mapping. Colors are computed during the
// load pipeline, so a changed mapping invalidates resident nodes; an
// identical one does not.
func (e *Engine) SetColorMode(opts colormap.Options) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if opts == e.colorer {
		return
	}
	e.colorer = opts
	e.invalidateLocked()
}

// Filter returns the active filter configuration.
func (e *Engine) Filter() pointcloud.Filter {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.filter
}

// Index exposes the node graph for inspection tooling.
func (e *Engine) Index() *octree.Index {
	return e.index
}

// Stats is the engine's telemetry surface. Budget-skipped nodes (normal)
// and failed loads (errors) are reported separately.
type Stats struct {
	LastPass       PassStats
	LastPassAt     time.Time
	LoadedNodes    int
	DeclaredPoints int64
	ResidentPoints int64
	FailedLoads    int64
	ZeroPointNodes int64
	KnownNodes     int
}

// Stats returns current engine telemetry.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		LastPass:       e.lastPass,
		LastPassAt:     e.lastPassAt,
		LoadedNodes:    e.cache.loadedCount(),
		DeclaredPoints: e.cache.declaredPoints.Load(),
		ResidentPoints: e.cache.residentPoints.Load(),
		FailedLoads:    e.failedLoads.Load(),
		ZeroPointNodes: e.zeroPointNodes.Load(),
		KnownNodes:     e.index.Len(),
	}
}

// Snapshot is the pull-based surface the renderer consumes: the merged
// parallel arrays over all loaded nodes plus summary counts.
type Snapshot struct {
	Positions      []float32
	Color          []uint8
	Intensity      []uint16
	Classification []uint8
	GPSTime        []float64
	LoadedNodes    int
	ResidentPoints int
}

// Snapshot merges every loaded node's block into fresh arrays. The copy
// decouples the renderer from cache evictions.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	var snap Snapshot
	for _, key := range e.cache.loadedKeys() {
		node, ok := e.index.Get(key)
		if !ok || node.Block == nil {
			continue
		}
		b := node.Block
		snap.Positions = append(snap.Positions, b.Positions...)
		snap.Color = append(snap.Color, b.Color...)
		snap.Intensity = append(snap.Intensity, b.Intensity...)
		snap.Classification = append(snap.Classification, b.Classification...)
		snap.GPSTime = append(snap.GPSTime, b.GPSTime...)
		snap.LoadedNodes++
		snap.ResidentPoints += b.Len()
	}
	return snap
}
