package potree

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

	entryTypeNormal = 0
	entryTypeLeaf   = 1
	entryTypeProxy  = 2

	maxNodeByteSize = uint64(10) << 30
)

// HierarchyLoader parses hierarchy.bin chunks into the shared node graph.
// Node names follow the Potree convention ("r", "r0", "r01", ...): a
// breadth-first queue seeded with the root, expanding one child name per
// set bit in the child mask.
type HierarchyLoader struct {
	getter fetch.RangeGetter
	logger golog.Logger
}

// NewHierarchyLoader returns a loader reading hierarchy.bin through the
// getter.
func NewHierarchyLoader(getter fetch.RangeGetter, logger golog.Logger) *HierarchyLoader {
	return &HierarchyLoader{getter: getter, logger: logger}
}

// LoadRootChunk parses the first hierarchy chunk, whose size is declared in
// metadata.json.
func (l *HierarchyLoader) LoadRootChunk(ctx context.Context, index *octree.Index, firstChunkSize int64) error {
	return l.loadChunk(ctx, index, index.Root(), 0, uint64(firstChunkSize))
}

// LoadNodeChunk parses the deferred chunk a proxy node points into.
func (l *HierarchyLoader) LoadNodeChunk(ctx context.Context, index *octree.Index, node *octree.Node) error {
	if !node.HasPage {
		return nil
	}
	if err := l.loadChunk(ctx, index, node, node.PageOffset, node.PageSize); err != nil {
		return err
	}
	node.HasPage = false
	return nil
}

func (l *HierarchyLoader) loadChunk(ctx context.Context, index *octree.Index, start *octree.Node, offset, size uint64) error {
	if size == 0 || size%nodeRecordSize != 0 {
		return errors.Errorf("hierarchy chunk size %d is not a multiple of %d", size, nodeRecordSize)
	}
	buf, err := l.getter.GetRange(ctx, offset, offset+size)
	if err != nil {
		return errors.Wrap(err, "fetching hierarchy chunk")
	}
	return l.parseChunk(index, start, buf)
}

func (l *HierarchyLoader) parseChunk(index *octree.Index, start *octree.Node, buf []byte) error {
	queue := []*octree.Node{start}
	var lastOffset uint64

	for pos := 0; pos+nodeRecordSize <= len(buf); pos += nodeRecordSize {
		if len(queue) == 0 {
			l.logger.Warnw("hierarchy chunk has trailing records past its node expansion",
				"remaining", (len(buf)-pos)/nodeRecordSize)
			break
		}
		node := queue[0]
		queue = queue[1:]

		rec := buf[pos : pos+nodeRecordSize]
		entryType := rec[0]
		childMask := rec[1]
		pointCount := binary.LittleEndian.Uint32(rec[2:])
		byteOffset := uint64(binary.LittleEndian.Uint32(rec[6:])) |
			uint64(binary.LittleEndian.Uint32(rec[10:]))<<32
		byteSize := uint64(binary.LittleEndian.Uint32(rec[14:])) |
			uint64(binary.LittleEndian.Uint32(rec[18:]))<<32

		if entryType == entryTypeProxy {
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
			l.logger.Warnw("node byte range exceeds sanity ceiling, marking loaded with no data",
				"node", node.Name, "offset", byteOffset, "size", byteSize)
			node.PermanentEmpty = true
		case byteOffset < lastOffset:
			l.logger.Warnw("non-monotonic node byte range, marking loaded with no data",
				"node", node.Name, "offset", byteOffset, "lastOffset", lastOffset)
			node.PermanentEmpty = true
		default:
			node.ByteOffset = byteOffset
			node.ByteSize = byteSize
			lastOffset = byteOffset
		}

		if entryType == entryTypeLeaf {
			continue
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
