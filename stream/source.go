// Package stream implements the progressive octree streaming engine: the
// LOD traversal scheduler, the node cache lifecycle, and the pull-based
// snapshot surface consumed by the rendering layer.
package stream

import (
	"context"

	"github.com/calipsoviz/pointstream/octree"
	"github.com/calipsoviz/pointstream/pointcloud"
	"github.com/calipsoviz/pointstream/spatial"
)

// A Source abstracts one streamable dataset (COPC file, Potree layout).
// ReadNode and Decode are called concurrently from the load workers and
// must be safe for concurrent use; hierarchy methods are only called from
// the traversal goroutine.
type Source interface {
	// Bounds returns the octree root cube.
	Bounds() spatial.BoundingBox

	// InitHierarchy loads the root hierarchy page into the index.
	InitHierarchy(ctx context.Context, index *octree.Index) error

	// ExpandHierarchy loads a node's deferred child page, if it has one.
	ExpandHierarchy(ctx context.Context, index *octree.Index, node *octree.Node) error

	// ReadNode fetches (and for compressed sources, decompresses) the
	// node's raw record buffer.
	ReadNode(ctx context.Context, node *octree.Node) ([]byte, error)

	// Decode turns the raw buffer into a filtered block.
	Decode(node *octree.Node, raw []byte, filter pointcloud.Filter) (*pointcloud.PointBlock, pointcloud.DecodeStats, error)
}
