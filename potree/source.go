package potree

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/calipsoviz/pointstream/fetch"
	"github.com/calipsoviz/pointstream/lasfile"
	"github.com/calipsoviz/pointstream/octree"
	"github.com/calipsoviz/pointstream/pointcloud"
	"github.com/calipsoviz/pointstream/spatial"
)

// Source streams one Potree dataset. It implements the engine's source
// contract over a hierarchy.bin getter and an octree.bin getter.
type Source struct {
	logger golog.Logger
	meta   *Metadata
	layout lasfile.RecordLayout
	scale  r3.Vector
	offset r3.Vector
	loader *HierarchyLoader
	data   fetch.RangeGetter
	bounds spatial.BoundingBox
}

// Open builds a source from parsed metadata and the two payload getters.
func Open(meta *Metadata, hierarchy, data fetch.RangeGetter, logger golog.Logger) (*Source, error) {
	layout, err := meta.ResolveLayout()
	if err != nil {
		return nil, err
	}
	scale, offset := meta.ScaleOffset()
	return &Source{
		logger: logger,
		meta:   meta,
		layout: layout,
		scale:  scale,
		offset: offset,
		loader: NewHierarchyLoader(hierarchy, logger),
		data:   data,
		bounds: meta.Bounds(logger),
	}, nil
}

// Metadata returns the parsed metadata.json.
func (s *Source) Metadata() *Metadata {
	return s.meta
}

// Bounds returns the octree root cube.
func (s *Source) Bounds() spatial.BoundingBox {
	return s.bounds
}

// InitHierarchy parses the first hierarchy chunk into the index.
func (s *Source) InitHierarchy(ctx context.Context, index *octree.Index) error {
	return s.loader.LoadRootChunk(ctx, index, s.meta.Hierarchy.FirstChunkSize)
}

// ExpandHierarchy parses a proxy node's deferred chunk, if any.
func (s *Source) ExpandHierarchy(ctx context.Context, index *octree.Index, node *octree.Node) error {
	return s.loader.LoadNodeChunk(ctx, index, node)
}

// ReadNode fetches a node's record slice from octree.bin.
func (s *Source) ReadNode(ctx context.Context, node *octree.Node) ([]byte, error) {
	if node.ByteSize == 0 {
		return nil, nil
	}
	raw, err := s.data.GetRange(ctx, node.ByteOffset, node.ByteOffset+node.ByteSize)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching node %s", node.Name)
	}
	return raw, nil
}

// Decode turns a node's flat records into a filtered block.
func (s *Source) Decode(node *octree.Node, raw []byte, filter pointcloud.Filter) (*pointcloud.PointBlock, pointcloud.DecodeStats, error) {
	if len(raw) == 0 {
		return pointcloud.NewPointBlock(0), pointcloud.DecodeStats{}, nil
	}
	return lasfile.DecodeRecords(raw, s.layout, s.scale, s.offset, filter, s.logger)
}

// Dataset file names, optionally nested under pointclouds/index/.
const (
	metadataFile  = "metadata.json"
	hierarchyFile = "hierarchy.bin"
	dataFile      = "octree.bin"
	nestedPrefix  = "pointclouds/index/"
)

// OpenHTTP locates a Potree dataset under baseURL, trying the flat root
// layout first and the pointclouds/index/ nesting second, and returns a
// ready source. A nil client uses http.DefaultClient.
func OpenHTTP(ctx context.Context, baseURL string, client *http.Client, logger golog.Logger) (*Source, error) {
	if client == nil {
		client = http.DefaultClient
	}
	base := strings.TrimSuffix(baseURL, "/") + "/"

	var firstErr error
	for _, prefix := range []string{"", nestedPrefix} {
		metaBytes, err := httpGet(ctx, client, base+prefix+metadataFile)
		if err != nil {
			firstErr = multierr.Append(firstErr, err)
			continue
		}
		meta, err := ParseMetadata(metaBytes)
		if err != nil {
			return nil, err
		}
		if prefix != "" {
			logger.Debugw("potree dataset found under nested index path", "base", baseURL)
		}
		hierarchy := fetch.NewHTTPRangeGetter(base+prefix+hierarchyFile, client, logger)
		data := fetch.NewHTTPRangeGetter(base+prefix+dataFile, client, logger)
		return Open(meta, hierarchy, data, logger)
	}
	return nil, errors.Wrapf(firstErr, "no potree metadata under %q", baseURL)
}

func httpGet(ctx context.Context, client *http.Client, url string) (_ []byte, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Combine(err, resp.Body.Close())
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %q: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
