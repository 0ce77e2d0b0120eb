package octree

import (
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/calipsoviz/pointstream/spatial"
)

func testBounds() spatial.BoundingBox {
	return spatial.NewBoundingBox(
		r3.Vector{X: -180, Y: -90, Z: 0},
		r3.Vector{X: 180, Y: 90, Z: 40},
	)
}

func TestNodeKeyChildren(t *testing.T) {
	k := RootKey
	test.That(t, k.Child(0), test.ShouldResemble, NodeKey{Depth: 1})
	test.That(t, k.Child(1), test.ShouldResemble, NodeKey{Depth: 1, X: 1})
	test.That(t, k.Child(2), test.ShouldResemble, NodeKey{Depth: 1, Y: 1})
	test.That(t, k.Child(4), test.ShouldResemble, NodeKey{Depth: 1, Z: 1})
	test.That(t, k.Child(7), test.ShouldResemble, NodeKey{Depth: 1, X: 1, Y: 1, Z: 1})

	deep := k.Child(7).Child(7)
	test.That(t, deep, test.ShouldResemble, NodeKey{Depth: 2, X: 3, Y: 3, Z: 3})
	test.That(t, deep.String(), test.ShouldEqual, "2-3-3-3")
}

func TestIndexRoot(t *testing.T) {
	x := NewIndex(testBounds(), golog.NewTestLogger(t))

	test.That(t, x.Len(), test.ShouldEqual, 1)
	test.That(t, x.Root().Name, test.ShouldEqual, "r")
	test.That(t, x.Root().Bounds, test.ShouldResemble, testBounds())
	test.That(t, x.Root().State, test.ShouldEqual, NodeUnloaded)

	got, ok := x.Get(RootKey)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, got, test.ShouldEqual, x.Root())
}

func TestIndexAddChild(t *testing.T) {
	x := NewIndex(testBounds(), golog.NewTestLogger(t))

	child, err := x.AddChild(x.Root(), 3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, child.Name, test.ShouldEqual, "r3")
	test.That(t, child.Key, test.ShouldResemble, NodeKey{Depth: 1, X: 1, Y: 1})
	test.That(t, x.Len(), test.ShouldEqual, 2)

	// re-adding returns the same node
	again, err := x.AddChild(x.Root(), 3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, again, test.ShouldEqual, child)
	test.That(t, x.Len(), test.ShouldEqual, 2)

	_, err = x.AddChild(x.Root(), 9)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestBoundsContainment(t *testing.T) {
	x := NewIndex(testBounds(), golog.NewTestLogger(t))

	// every child box must sit strictly inside its parent's box,
	// at every depth
	parent := x.Root()
	for depth := 0; depth < 6; depth++ {
		for octant := 0; octant < 8; octant++ {
			key := parent.Key.Child(octant)
			childBox := x.BoundsFor(key)
			test.That(t, parent.Bounds.ContainsBox(childBox), test.ShouldBeTrue)
		}
		var err error
		parent, err = x.AddChild(parent, 5)
		test.That(t, err, test.ShouldBeNil)
	}

	// depth-3 cell sizes are an eighth of the root per axis
	b := x.BoundsFor(NodeKey{Depth: 3, X: 2, Y: 4, Z: 7})
	test.That(t, b.Size().X, test.ShouldAlmostEqual, 45)
	test.That(t, b.Size().Y, test.ShouldAlmostEqual, 22.5)
	test.That(t, b.Size().Z, test.ShouldAlmostEqual, 5)
	test.That(t, testBounds().ContainsBox(b), test.ShouldBeTrue)
}

func TestChildrenAndWalk(t *testing.T) {
	x := NewIndex(testBounds(), golog.NewTestLogger(t))
	root := x.Root()
	root.ChildMask = 0b00000101 // octants 0 and 2

	c0, err := x.AddChild(root, 0)
	test.That(t, err, test.ShouldBeNil)
	c2, err := x.AddChild(root, 2)
	test.That(t, err, test.ShouldBeNil)
	c2.ChildMask = 1 << 7
	c27, err := x.AddChild(c2, 7)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c27.Name, test.ShouldEqual, "r27")

	children := x.Children(root)
	test.That(t, children, test.ShouldHaveLength, 2)
	test.That(t, children[0], test.ShouldEqual, c0)
	test.That(t, children[1], test.ShouldEqual, c2)

	var visited []string
	x.Walk(func(n *Node) bool {
		visited = append(visited, n.Name)
		return n.Name != "r2" // prune below r2
	})
	test.That(t, visited, test.ShouldResemble, []string{"r", "r0", "r2"})
}

func TestNodeStateString(t *testing.T) {
	test.That(t, NodeUnloaded.String(), test.ShouldEqual, "unloaded")
	test.That(t, NodeLoading.String(), test.ShouldEqual, "loading")
	test.That(t, NodeLoaded.String(), test.ShouldEqual, "loaded")
}
