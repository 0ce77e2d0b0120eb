package stream

import (
	"math"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/edaniels/golog"

	"github.com/calipsoviz/pointstream/octree"
	"github.com/calipsoviz/pointstream/pointcloud"
	"github.com/calipsoviz/pointstream/spatial"
)

// PassStats summarizes one traversal pass. BudgetSkipped counts nodes left
// unrefined because loading them would exceed the point budget, a normal
// outcome of finite budgets, deliberately kept separate from load failures.
type PassStats struct {
	Visited       int
	PrunedBounds  int
	PrunedFrustum int
	Refined       int
	Scheduled     int
	BudgetSkipped int
	Unloaded      int
	HierarchyErrs int
}

// scheduler walks the node graph and decides, per node, between pruning,
// refining into children, loading, or leaving it alone. It reads node state
// but never mutates it; state transitions go through the cache.
type scheduler struct {
	cfg    Config
	logger golog.Logger
}

// traversalInput snapshots everything a pass depends on, so concurrent
// setter calls cannot shear a pass mid-walk.
type traversalInput struct {
	camera     spatial.Camera
	hasCamera  bool
	filter     pointcloud.Filter
	generation uint64
}

// plan performs one worklist traversal from the root. Nodes are visited in
// hierarchy order: breadth-first, so under a tight budget ancestors win
// over cherry-picked deep detail. It returns the nodes to schedule for
// loading (already budget-checked) and the set of visited keys; loaded
// nodes outside the visited set have fallen out of scope and must be
// unloaded by the caller.
//
// Subtree pruning happens strictly before child recursion: no child of a
// bounds- or frustum-rejected node is ever visited, so no points from a
// rejected subtree can be fetched.
//
// plan never performs I/O. Hierarchy pages for the refinement frontier are
// fetched beforehand via discover, so a node whose children are still
// deferred at this point simply stays coarse for the pass.
func (s *scheduler) plan(
	index *octree.Index,
	cache *nodeCache,
	in traversalInput,
) ([]*octree.Node, mapset.Set[octree.NodeKey], PassStats) {
	var stats PassStats
	visited := mapset.NewThreadUnsafeSet[octree.NodeKey]()
	var loads []*octree.Node

	var frustum *spatial.Frustum
	if s.cfg.FrustumCulling && in.hasCamera {
		f := spatial.NewFrustum(in.camera)
		frustum = &f
	}

	committed := 0
	queue := []*octree.Node{index.Root()}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		// 1. bounds rejection prunes the whole subtree
		if in.filter.BoundsEnabled && !node.Bounds.Intersects(in.filter.Bounds.Box()) {
			cache.unload(node)
			stats.PrunedBounds++
			continue
		}
		// 2. visibility rejection
		if frustum != nil && !frustum.IntersectsBox(node.Bounds) {
			cache.unload(node)
			stats.PrunedFrustum++
			continue
		}

		visited.Add(node.Key)
		stats.Visited++

		// 3. refinement decision
		if s.shouldRefine(node, in) {
			if children := index.Children(node); len(children) > 0 {
				stats.Refined++
				// an already-loaded interior node stays resident as
				// coarse fallback and keeps its budget share
				if node.State == octree.NodeLoaded {
					committed += node.PointCount
				}
				queue = append(queue, children...)
				continue
			}
		}

		// 4. load decision
		switch node.State {
		case octree.NodeLoaded, octree.NodeLoading:
			// in-flight loads are skipped, not re-triggered; both hold
			// their budget share
			committed += node.PointCount
		case octree.NodeUnloaded:
			if node.PermanentEmpty || node.PointCount == 0 {
				continue
			}
			if committed+node.PointCount > s.cfg.PointBudget {
				// graceful degradation, not an error
				stats.BudgetSkipped++
				continue
			}
			if cache.markLoading(node, in.generation) {
				committed += node.PointCount
				loads = append(loads, node)
				stats.Scheduled++
			}
		}
	}
	return loads, visited, stats
}

// discover walks the refinement frontier and returns the nodes whose
// children are still deferred to an unloaded hierarchy page. It applies the
// same pruning and refinement decisions as plan but touches no cache state,
// so it can run before the planning pass takes the engine mutex.
func (s *scheduler) discover(index *octree.Index, in traversalInput) []*octree.Node {
	var frustum *spatial.Frustum
	if s.cfg.FrustumCulling && in.hasCamera {
		f := spatial.NewFrustum(in.camera)
		frustum = &f
	}

	var expand []*octree.Node
	queue := []*octree.Node{index.Root()}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		if in.filter.BoundsEnabled && !node.Bounds.Intersects(in.filter.Bounds.Box()) {
			continue
		}
		if frustum != nil && !frustum.IntersectsBox(node.Bounds) {
			continue
		}
		if !s.shouldRefine(node, in) {
			continue
		}
		if !node.ChildrenKnown && node.HasPage {
			expand = append(expand, node)
			continue
		}
		queue = append(queue, index.Children(node)...)
	}
	return expand
}

// shouldRefine applies the screen-space-error heuristic with the min-depth
// override and the hard max-depth bound.
func (s *scheduler) shouldRefine(node *octree.Node, in traversalInput) bool {
	depth := int(node.Key.Depth)
	if depth >= s.cfg.MaxDepth {
		return false
	}
	if node.ChildMask == 0 && !node.HasPage {
		return false
	}
	if depth < s.cfg.MinDepth {
		return true
	}
	if !in.hasCamera {
		return false
	}

	distance := in.camera.Position.Sub(node.Bounds.Center()).Norm()
	if distance <= 0 {
		// camera sitting on the node center: always want finer detail
		return true
	}
	sse := node.Bounds.Diagonal() / distance
	threshold := s.cfg.RefineThreshold * math.Pow(s.cfg.RefineFalloff, float64(depth))
	return sse > threshold
}
