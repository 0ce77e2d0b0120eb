// Package copc reads Cloud-Optimized Point Cloud sources: the embedded
// hierarchy pages that index the octree, and the LAZ-compressed node chunks
// holding Point Format 6 records.
package copc

import (
	"context"
	"encoding/binary"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/calipsoviz/pointstream/fetch"
	"github.com/calipsoviz/pointstream/octree"
)

const (
	nodeRecordSize = 22

	entryTypeNode = 0
	entryTypePage = 1

	// byte ranges past this are treated as corruption, not data
	maxNodeByteSize = uint64(10) << 30
)

// HierarchyLoader parses COPC hierarchy pages into the shared node graph.
// It only ever adds nodes and fills descriptor fields; point decoding is
// someone else's job.
type HierarchyLoader struct {
	getter fetch.RangeGetter
	logger golog.Logger
}

// NewHierarchyLoader returns a loader reading pages through the getter.
func NewHierarchyLoader(getter fetch.RangeGetter, logger golog.Logger) *HierarchyLoader {
	return &HierarchyLoader{getter: getter, logger: logger}
}

// LoadRootPage fetches and parses the root hierarchy page located by the
// COPC info block, populating the index starting at its root node.
func (l *HierarchyLoader) LoadRootPage(ctx context.Context, index *octree.Index, pageOffset, pageSize uint64) error {
	return l.loadPage(ctx, index, index.Root(), pageOffset, pageSize)
}

// LoadNodePage fetches the deferred child page recorded on the node. It is
// a no-op for nodes without a pending page.
func (l *HierarchyLoader) LoadNodePage(ctx context.Context, index *octree.Index, node *octree.Node) error {
	if !node.HasPage {
		return nil
	}
	if err := l.loadPage(ctx, index, node, node.PageOffset, node.PageSize); err != nil {
		return err
	}
	node.HasPage = false
	return nil
}

func (l *HierarchyLoader) loadPage(ctx context.Context, index *octree.Index, start *octree.Node, pageOffset, pageSize uint64) error {
	if pageSize == 0 || pageSize%nodeRecordSize != 0 {
		return errors.Errorf("hierarchy page size %d is not a multiple of %d", pageSize, nodeRecordSize)
	}
	buf, err := l.getter.GetRange(ctx, pageOffset, pageOffset+pageSize)
	if err != nil {
		return errors.Wrap(err, "fetching hierarchy page")
	}
	return l.parsePage(index, start, buf)
}

// parsePage walks the page's fixed 22-byte records breadth-first. The first
// record describes the start node itself; each node record enqueues one
// child per set bit in its child mask, so record order must follow that
// same expansion.
func (l *HierarchyLoader) parsePage(index *octree.Index, start *octree.Node, buf []byte) error {
	queue := []*octree.Node{start}
	var lastOffset uint64

	for pos := 0; pos+nodeRecordSize <= len(buf); pos += nodeRecordSize {
		if len(queue) == 0 {
			l.logger.Warnw("hierarchy page has trailing records past its node expansion",
				"remaining", (len(buf)-pos)/nodeRecordSize)
			break
		}
		node := queue[0]
		queue = queue[1:]

		rec := buf[pos : pos+nodeRecordSize]
		entryType := rec[0]
		childMask := rec[1]
		pointCount := binary.LittleEndian.Uint32(rec[2:])
		byteOffset := binary.LittleEndian.Uint64(rec[6:])
		byteSize := binary.LittleEndian.Uint64(rec[14:])

		if entryType == entryTypePage {
			// subtree deferred to another page
			node.PageOffset = byteOffset
			node.PageSize = byteSize
			node.HasPage = true
			node.ChildrenKnown = false
			continue
		}

		node.ChildMask = childMask
		node.PointCount = int(pointCount)
		node.ChildrenKnown = true

		switch {
		case byteSize > maxNodeByteSize || byteOffset+byteSize < byteOffset:
			// recoverable corruption: permanently empty, never refetched
			l.logger.Warnw("node byte range exceeds sanity ceiling, marking loaded with no data",
				"node", node.Key.String(), "offset", byteOffset, "size", byteSize)
			node.PermanentEmpty = true
		case byteOffset < lastOffset:
			l.logger.Warnw("non-monotonic node byte range, marking loaded with no data",
				"node", node.Key.String(), "offset", byteOffset, "lastOffset", lastOffset)
			node.PermanentEmpty = true
		default:
			node.ByteOffset = byteOffset
			node.ByteSize = byteSize
			lastOffset = byteOffset
		}

		for octant := 0; octant < 8; octant++ {
			if !node.HasChild(octant) {
				continue
			}
			child, err := index.AddChild(node, octant)
			if err != nil {
				return err
			}
			queue = append(queue, child)
		}
	}
	return nil
}
