package stream

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/edaniels/golog"
	"go.uber.org/atomic"

	"github.com/calipsoviz/pointstream/octree"
	"github.com/calipsoviz/pointstream/pointcloud"
)

// nodeCache owns every node's load state and attached block. All methods
// must be called with the engine mutex held; the counters are atomic only
// so the stats surface can read them without the lock.
type nodeCache struct {
	logger golog.Logger

	// loaded tracks keys of nodes currently in NodeLoaded state.
	loaded mapset.Set[octree.NodeKey]

	// declaredPoints is the budget basis: the sum of declared PointCount
	// over loaded nodes. residentPoints counts actually decoded points.
	declaredPoints atomic.Int64
	residentPoints atomic.Int64
}

func newNodeCache(logger golog.Logger) *nodeCache {
	return &nodeCache{
		logger: logger,
		loaded: mapset.NewThreadUnsafeSet[octree.NodeKey](),
	}
}

// markLoading flips an unloaded node to Loading. The Loading state is the
// decode mutual-exclusion flag: a false return means a load is already in
// flight (or resident) and must not be re-triggered.
func (c *nodeCache) markLoading(node *octree.Node, generation uint64) bool {
	if node.State != octree.NodeUnloaded {
		return false
	}
	node.State = octree.NodeLoading
	node.Generation = generation
	return true
}

// commit attaches a decoded block to a node. The commit is refused when the
// node is no longer in Loading state (an unload won the race) or when the
// block was decoded under a superseded generation; stale results are
// discarded here rather than cancelling in-flight fetches.
func (c *nodeCache) commit(node *octree.Node, block *pointcloud.PointBlock, generation, current uint64) bool {
	if node.State != octree.NodeLoading || generation != current || node.Generation != generation {
		return false
	}
	node.State = octree.NodeLoaded
	node.Block = block
	c.loaded.Add(node.Key)
	c.declaredPoints.Add(int64(node.PointCount))
	c.residentPoints.Add(int64(block.Len()))
	return true
}

// abort returns a Loading node to Unloaded after a failed fetch/decode. The
// node is retried only by a future traversal pass.
func (c *nodeCache) abort(node *octree.Node) {
	if node.State == octree.NodeLoading {
		node.State = octree.NodeUnloaded
	}
}

// unload releases a node's block and derived resources. It is idempotent:
// unloading an unloaded node is a no-op. Unloading a Loading node does not
// cancel the fetch; it just guarantees the eventual result is discarded at
// commit time.
func (c *nodeCache) unload(node *octree.Node) {
	switch node.State {
	case octree.NodeLoaded:
		c.loaded.Remove(node.Key)
		c.declaredPoints.Sub(int64(node.PointCount))
		if node.Block != nil {
			c.residentPoints.Sub(int64(node.Block.Len()))
		}
		node.Block = nil
		node.State = octree.NodeUnloaded
	case octree.NodeLoading:
		node.State = octree.NodeUnloaded
	case octree.NodeUnloaded:
	}
}

// invalidateAll unloads every resident node. Filter and color changes call
// this because predicates apply during decode: correctness is bought with a
// reload rather than an unsound post-filter of cached data.
func (c *nodeCache) invalidateAll(index *octree.Index) {
	index.Walk(func(n *octree.Node) bool {
		c.unload(n)
		return true
	})
}

// loadedKeys returns a copy of the loaded-node key set.
func (c *nodeCache) loadedKeys() []octree.NodeKey {
	return c.loaded.ToSlice()
}

func (c *nodeCache) loadedCount() int {
	return c.loaded.Cardinality()
}
