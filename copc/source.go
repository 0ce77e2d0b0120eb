package copc

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/calipsoviz/pointstream/fetch"
	"github.com/calipsoviz/pointstream/lasfile"
	"github.com/calipsoviz/pointstream/octree"
	"github.com/calipsoviz/pointstream/pointcloud"
	"github.com/calipsoviz/pointstream/spatial"
)

// A Decompressor turns a node's LAZ-compressed chunk into raw point
// records. The codec itself is an external collaborator; stores that serve
// pre-decompressed chunks can use NoopDecompressor.
type Decompressor interface {
	Decompress(chunk []byte, pointCount, recordLength int) ([]byte, error)
}

// NoopDecompressor passes chunks through unchanged.
type NoopDecompressor struct{}

// Decompress implements Decompressor.
func (NoopDecompressor) Decompress(chunk []byte, pointCount, recordLength int) ([]byte, error) {
	if want := pointCount * recordLength; len(chunk) < want {
		return nil, errors.Errorf("chunk holds %d bytes, node declares %d", len(chunk), want)
	}
	return chunk, nil
}

// Source streams one COPC file: hierarchy pages for the node graph, node
// chunks for point data. It implements the engine's source contract.
type Source struct {
	logger golog.Logger
	getter fetch.RangeGetter
	header *lasfile.Header
	info   *lasfile.CopcInfo
	layout lasfile.RecordLayout
	loader *HierarchyLoader
	codec  Decompressor
	bounds spatial.BoundingBox
}

// Open reads the file header and info block and prepares the source. A nil
// codec defaults to NoopDecompressor.
func Open(ctx context.Context, getter fetch.RangeGetter, codec Decompressor, logger golog.Logger) (*Source, error) {
	header, info, err := lasfile.ReadHeader(ctx, getter)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, errors.New("file has no copc info block")
	}
	layout, err := lasfile.Format6Layout(int(header.RecordLength))
	if err != nil {
		return nil, err
	}
	if codec == nil {
		codec = NoopDecompressor{}
	}
	return &Source{
		logger: logger,
		getter: getter,
		header: header,
		info:   info,
		layout: layout,
		loader: NewHierarchyLoader(getter, logger),
		codec:  codec,
		bounds: rootCube(info, header, logger),
	}, nil
}

// rootCube validates the info block's octree cube against geographic
// plausibility and falls back to the header bounds when it is corrupt. The
// recovery is logged but is not an error.
func rootCube(info *lasfile.CopcInfo, header *lasfile.Header, logger golog.Logger) spatial.BoundingBox {
	cube := info.Cube()
	plausible := !cube.IsEmpty() &&
		cube.Min.X >= -360 && cube.Max.X <= 360 &&
		cube.Min.Y >= -180 && cube.Max.Y <= 180
	if plausible {
		return cube
	}
	logger.Warnw("copc info cube is implausible, recovering bounds from header min/max",
		"cube", cube, "header", header.Bounds)
	return header.Bounds
}

// Header returns the parsed LAS header.
func (s *Source) Header() *lasfile.Header {
	return s.header
}

// Info returns the COPC info block.
func (s *Source) Info() *lasfile.CopcInfo {
	return s.info
}

// Bounds returns the octree root cube.
func (s *Source) Bounds() spatial.BoundingBox {
	return s.bounds
}

// InitHierarchy loads the root hierarchy page into the index.
func (s *Source) InitHierarchy(ctx context.Context, index *octree.Index) error {
	return s.loader.LoadRootPage(ctx, index, s.info.RootHierOffset, s.info.RootHierSize)
}

// ExpandHierarchy loads a node's deferred child page, if any.
func (s *Source) ExpandHierarchy(ctx context.Context, index *octree.Index, node *octree.Node) error {
	return s.loader.LoadNodePage(ctx, index, node)
}

// ReadNode fetches and decompresses a node's record chunk.
func (s *Source) ReadNode(ctx context.Context, node *octree.Node) ([]byte, error) {
	if node.ByteSize == 0 {
		return nil, nil
	}
	chunk, err := s.getter.GetRange(ctx, node.ByteOffset, node.ByteOffset+node.ByteSize)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching node %s", node.Key)
	}
	raw, err := s.codec.Decompress(chunk, node.PointCount, s.layout.Stride)
	if err != nil {
		return nil, errors.Wrapf(err, "decompressing node %s", node.Key)
	}
	return raw, nil
}

// Decode turns a node's raw records into a filtered block.
func (s *Source) Decode(node *octree.Node, raw []byte, filter pointcloud.Filter) (*pointcloud.PointBlock, pointcloud.DecodeStats, error) {
	if len(raw) == 0 {
		return pointcloud.NewPointBlock(0), pointcloud.DecodeStats{}, nil
	}
	return lasfile.DecodeRecords(raw, s.layout, s.header.Scale, s.header.Offset, filter, s.logger)
}
