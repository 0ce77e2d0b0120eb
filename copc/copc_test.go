package copc

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/calipsoviz/pointstream/fetch"
	"github.com/calipsoviz/pointstream/octree"
	"github.com/calipsoviz/pointstream/pointcloud"
	"github.com/calipsoviz/pointstream/spatial"
)

func testBounds() spatial.BoundingBox {
	return spatial.NewBoundingBox(
		r3.Vector{X: -180, Y: -90, Z: 0},
		r3.Vector{X: 180, Y: 90, Z: 40},
	)
}

type pageRecord struct {
	entryType  uint8
	childMask  uint8
	pointCount uint32
	byteOffset uint64
	byteSize   uint64
}

func buildPage(records []pageRecord) []byte {
	buf := make([]byte, 0, len(records)*nodeRecordSize)
	for _, r := range records {
		rec := make([]byte, nodeRecordSize)
		rec[0] = r.entryType
		rec[1] = r.childMask
		binary.LittleEndian.PutUint32(rec[2:], r.pointCount)
		binary.LittleEndian.PutUint64(rec[6:], r.byteOffset)
		binary.LittleEndian.PutUint64(rec[14:], r.byteSize)
		buf = append(buf, rec...)
	}
	return buf
}

func TestParsePageBreadthFirst(t *testing.T) {
	logger := golog.NewTestLogger(t)
	index := octree.NewIndex(testBounds(), logger)

	// root with children 0 and 3; each child is a leaf
	page := buildPage([]pageRecord{
		{entryTypeNode, 0b00001001, 1000, 0, 30000},
		{entryTypeNode, 0, 400, 30000, 12000},
		{entryTypeNode, 0, 600, 42000, 18000},
	})

	loader := NewHierarchyLoader(fetch.NewBytesGetter(page), logger)
	err := loader.LoadRootPage(context.Background(), index, 0, uint64(len(page)))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, index.Len(), test.ShouldEqual, 3)

	root := index.Root()
	test.That(t, root.PointCount, test.ShouldEqual, 1000)
	test.That(t, root.ByteSize, test.ShouldEqual, uint64(30000))
	test.That(t, root.ChildrenKnown, test.ShouldBeTrue)

	c0, ok := index.Get(octree.RootKey.Child(0))
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, c0.PointCount, test.ShouldEqual, 400)
	test.That(t, root.Bounds.ContainsBox(c0.Bounds), test.ShouldBeTrue)

	c3, ok := index.Get(octree.RootKey.Child(3))
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, c3.PointCount, test.ShouldEqual, 600)
	test.That(t, c3.ByteOffset, test.ShouldEqual, uint64(42000))
}

func TestParsePageDeferredChildPage(t *testing.T) {
	logger := golog.NewTestLogger(t)
	index := octree.NewIndex(testBounds(), logger)

	rootPage := buildPage([]pageRecord{
		{entryTypeNode, 0b00000001, 100, 0, 3000},
		{entryTypePage, 0, 0, 500, nodeRecordSize},
	})
	childPage := buildPage([]pageRecord{
		{entryTypeNode, 0, 50, 3000, 1500},
	})
	file := make([]byte, 600)
	copy(file, rootPage)
	copy(file[500:], childPage)

	loader := NewHierarchyLoader(fetch.NewBytesGetter(file), logger)
	err := loader.LoadRootPage(context.Background(), index, 0, uint64(len(rootPage)))
	test.That(t, err, test.ShouldBeNil)

	child, ok := index.Get(octree.RootKey.Child(0))
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, child.HasPage, test.ShouldBeTrue)
	test.That(t, child.ChildrenKnown, test.ShouldBeFalse)
	test.That(t, child.PageOffset, test.ShouldEqual, uint64(500))

	err = loader.LoadNodePage(context.Background(), index, child)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, child.HasPage, test.ShouldBeFalse)
	test.That(t, child.ChildrenKnown, test.ShouldBeTrue)
	test.That(t, child.PointCount, test.ShouldEqual, 50)

	// reloading is a no-op once the page is consumed
	err = loader.LoadNodePage(context.Background(), index, child)
	test.That(t, err, test.ShouldBeNil)
}

func TestParsePageCorruptRanges(t *testing.T) {
	logger := golog.NewTestLogger(t)
	index := octree.NewIndex(testBounds(), logger)

	page := buildPage([]pageRecord{
		{entryTypeNode, 0b00000011, 10, 50000, 3000},
		// over the 10 GB sanity ceiling
		{entryTypeNode, 0, 10, 60000, maxNodeByteSize + 1},
		// non-monotonic: offset goes backwards
		{entryTypeNode, 0, 10, 100, 300},
	})

	loader := NewHierarchyLoader(fetch.NewBytesGetter(page), logger)
	err := loader.LoadRootPage(context.Background(), index, 0, uint64(len(page)))
	test.That(t, err, test.ShouldBeNil)

	oversized, ok := index.Get(octree.RootKey.Child(0))
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, oversized.PermanentEmpty, test.ShouldBeTrue)

	backwards, ok := index.Get(octree.RootKey.Child(1))
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, backwards.PermanentEmpty, test.ShouldBeTrue)

	// corrupt nodes keep their declared point counts but no byte range
	test.That(t, backwards.ByteSize, test.ShouldEqual, uint64(0))
}

func TestLoadPageBadSize(t *testing.T) {
	logger := golog.NewTestLogger(t)
	index := octree.NewIndex(testBounds(), logger)
	loader := NewHierarchyLoader(fetch.NewBytesGetter(make([]byte, 100)), logger)

	err := loader.LoadRootPage(context.Background(), index, 0, 21)
	test.That(t, err, test.ShouldNotBeNil)
	err = loader.LoadRootPage(context.Background(), index, 0, 0)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestNoopDecompressor(t *testing.T) {
	chunk := make([]byte, 90)
	out, err := NoopDecompressor{}.Decompress(chunk, 3, 30)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldResemble, chunk)

	_, err = NoopDecompressor{}.Decompress(chunk[:10], 3, 30)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSourceDecodeEmptyNode(t *testing.T) {
	logger := golog.NewTestLogger(t)
	s := &Source{logger: logger}

	n := &octree.Node{}
	raw, err := s.ReadNode(context.Background(), n)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, raw, test.ShouldBeNil)

	block, stats, err := s.Decode(n, nil, pointcloud.Filter{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, block.Len(), test.ShouldEqual, 0)
	test.That(t, stats.Read, test.ShouldEqual, 0)
}
