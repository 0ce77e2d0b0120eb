// Package octree implements the addressable node graph of a streamed
// point-cloud octree. Nodes are created once, when their hierarchy page is
// parsed, and persist for the session; only their load state and attached
// point data cycle as the camera and filters change.
package octree

import (
	"fmt"

	"github.com/calipsoviz/pointstream/pointcloud"
	"github.com/calipsoviz/pointstream/spatial"
)

// NodeState tracks where a node is in its load lifecycle. Loading doubles
// as a mutual-exclusion flag: the scheduler never re-triggers a decode on a
// node already in Loading.
type NodeState uint8

const (
	// NodeUnloaded means no point data is resident for the node.
	NodeUnloaded = NodeState(iota)
	// NodeLoading means a fetch/decode is in flight for the node.
	NodeLoading
	// NodeLoaded means the node's decoded block is resident.
	NodeLoaded
)

func (s NodeState) String() string {
	switch s {
	case NodeLoading:
		return "loading"
	case NodeLoaded:
		return "loaded"
	default:
		return "unloaded"
	}
}

// NodeKey identifies a node by subdivision depth and integer cell
// coordinates within that depth's grid.
type NodeKey struct {
	Depth int32
	X     int32
	Y     int32
	Z     int32
}

// RootKey is the key of every octree's root node.
var RootKey = NodeKey{}

// Child returns the key of the child in the given octant (0..7). Bit 0 of
// the octant selects the upper half in X, bit 1 in Y, bit 2 in Z, matching
// spatial.BoundingBox.Octant.
func (k NodeKey) Child(octant int) NodeKey {
	return NodeKey{
		Depth: k.Depth + 1,
		X:     k.X<<1 | int32(octant&1),
		Y:     k.Y<<1 | int32(octant>>1&1),
		Z:     k.Z<<1 | int32(octant>>2&1),
	}
}

func (k NodeKey) String() string {
	return fmt.Sprintf("%d-%d-%d-%d", k.Depth, k.X, k.Y, k.Z)
}

// Node is one octree cell. The hierarchy loader creates nodes and fills the
// descriptor fields; the cache manager flips State and attaches/detaches
// Block; the scheduler only reads. All access is serialized by the engine
// that owns the Index; Node itself is not safe for concurrent mutation.
type Node struct {
	Key  NodeKey
	Name string
	// Bounds always fully contains every descendant's bounds.
	Bounds spatial.BoundingBox

	// PointCount is fixed at hierarchy-parse time and never changes.
	PointCount int
	ByteOffset uint64
	ByteSize   uint64
	ChildMask  uint8

	// A node may defer its children to a separate hierarchy page that is
	// loaded lazily on first refinement.
	PageOffset    uint64
	PageSize      uint64
	HasPage       bool
	ChildrenKnown bool

	// State and Block cycle repeatedly over the session.
	State NodeState
	Block *pointcloud.PointBlock

	// Generation records the filter generation the block was decoded
	// under, so stale in-flight results can be rejected at commit time.
	Generation uint64

	// PermanentEmpty marks a node whose byte range failed the sanity
	// checks; it is treated as loaded-with-no-data and never retried.
	PermanentEmpty bool
}

// HasChild reports whether the octant bit is set in the child mask.
func (n *Node) HasChild(octant int) bool {
	return n.ChildMask&(1<<uint(octant)) != 0
}

// ChildName returns the Potree-style name of the child in the given octant,
// e.g. "r" -> "r3".
func (n *Node) ChildName(octant int) string {
	return fmt.Sprintf("%s%d", n.Name, octant)
}
