package octree

import (
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/calipsoviz/pointstream/spatial"
)

// Index is the shared node graph: a key-addressable map of every node known
// from parsed hierarchy pages, rooted at RootKey. The engine instance owns
// the only Index and passes it by reference to the hierarchy loaders (which
// add nodes) and the cache manager (which flips state). The map itself is
// guarded internally so loaders can add nodes while other goroutines walk
// the graph; Node field access is still serialized by the owning engine.
type Index struct {
	logger     golog.Logger
	rootBounds spatial.BoundingBox

	mu    sync.RWMutex
	nodes map[NodeKey]*Node
	root  *Node
}

// NewIndex creates a graph containing only the root node, spanning the
// given root cube.
func NewIndex(rootBounds spatial.BoundingBox, logger golog.Logger) *Index {
	root := &Node{
		Key:    RootKey,
		Name:   "r",
		Bounds: rootBounds,
	}
	return &Index{
		logger:     logger,
		rootBounds: rootBounds,
		nodes:      map[NodeKey]*Node{RootKey: root},
		root:       root,
	}
}

// Root returns the entry-point node. It is never removed from the graph.
func (x *Index) Root() *Node {
	return x.root
}

// RootBounds returns the root cube.
func (x *Index) RootBounds() spatial.BoundingBox {
	return x.rootBounds
}

// Len returns the number of nodes in the graph.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.nodes)
}

// Get looks up a node by key.
func (x *Index) Get(key NodeKey) (*Node, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	n, ok := x.nodes[key]
	return n, ok
}

// BoundsFor derives a node's box by subdividing the root cube 2^depth times
// per axis and selecting the key's cell.
func (x *Index) BoundsFor(key NodeKey) spatial.BoundingBox {
	size := x.rootBounds.Size()
	div := float64(int64(1) << uint(key.Depth))
	sx, sy, sz := size.X/div, size.Y/div, size.Z/div
	min := x.rootBounds.Min
	b := spatial.BoundingBox{}
	b.Min.X = min.X + float64(key.X)*sx
	b.Min.Y = min.Y + float64(key.Y)*sy
	b.Min.Z = min.Z + float64(key.Z)*sz
	b.Max.X = b.Min.X + sx
	b.Max.Y = b.Min.Y + sy
	b.Max.Z = b.Min.Z + sz
	return b
}

// AddChild creates and registers the child of parent in the given octant,
// or returns the existing node if a hierarchy page already declared it.
func (x *Index) AddChild(parent *Node, octant int) (*Node, error) {
	if octant < 0 || octant > 7 {
		return nil, errors.Errorf("octant %d out of range", octant)
	}
	key := parent.Key.Child(octant)
	x.mu.Lock()
	defer x.mu.Unlock()
	if existing, ok := x.nodes[key]; ok {
		return existing, nil
	}
	child := &Node{
		Key:    key,
		Name:   parent.ChildName(octant),
		Bounds: x.BoundsFor(key),
	}
	x.nodes[key] = child
	return child, nil
}

// Children resolves a node's existing children in octant order. Children
// not yet known from a hierarchy page are skipped.
func (x *Index) Children(n *Node) []*Node {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.childrenLocked(n)
}

func (x *Index) childrenLocked(n *Node) []*Node {
	var out []*Node
	for octant := 0; octant < 8; octant++ {
		if !n.HasChild(octant) {
			continue
		}
		if child, ok := x.nodes[n.Key.Child(octant)]; ok {
			out = append(out, child)
		}
	}
	return out
}

// Walk visits every node reachable from the root in breadth-first order,
// stopping descent below nodes for which fn returns false.
func (x *Index) Walk(fn func(*Node) bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	queue := []*Node{x.root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if !fn(n) {
			continue
		}
		queue = append(queue, x.childrenLocked(n)...)
	}
}
