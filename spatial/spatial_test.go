package spatial

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestBoundingBoxBasic(t *testing.T) {
	b := NewBoundingBox(r3.Vector{X: -1, Y: -1, Z: -1}, r3.Vector{X: 1, Y: 1, Z: 1})

	test.That(t, b.Contains(r3.Vector{}), test.ShouldBeTrue)
	test.That(t, b.Contains(r3.Vector{X: 1, Y: 1, Z: 1}), test.ShouldBeTrue)
	test.That(t, b.Contains(r3.Vector{X: 1.01}), test.ShouldBeFalse)

	test.That(t, b.Center(), test.ShouldResemble, r3.Vector{})
	test.That(t, b.Size(), test.ShouldResemble, r3.Vector{X: 2, Y: 2, Z: 2})
	test.That(t, b.Diagonal(), test.ShouldAlmostEqual, 2*math.Sqrt(3))
	test.That(t, b.IsEmpty(), test.ShouldBeFalse)
	test.That(t, BoundingBox{}.IsEmpty(), test.ShouldBeTrue)
}

func TestBoundingBoxIntersects(t *testing.T) {
	b := NewBoundingBox(r3.Vector{}, r3.Vector{X: 2, Y: 2, Z: 2})

	overlapping := NewBoundingBox(r3.Vector{X: 1, Y: 1, Z: 1}, r3.Vector{X: 3, Y: 3, Z: 3})
	touching := NewBoundingBox(r3.Vector{X: 2, Y: 0, Z: 0}, r3.Vector{X: 4, Y: 2, Z: 2})
	disjoint := NewBoundingBox(r3.Vector{X: 5, Y: 5, Z: 5}, r3.Vector{X: 6, Y: 6, Z: 6})

	test.That(t, b.Intersects(overlapping), test.ShouldBeTrue)
	test.That(t, b.Intersects(touching), test.ShouldBeTrue)
	test.That(t, b.Intersects(disjoint), test.ShouldBeFalse)
	test.That(t, disjoint.Intersects(b), test.ShouldBeFalse)
}

func TestBoundingBoxOctants(t *testing.T) {
	b := NewBoundingBox(r3.Vector{}, r3.Vector{X: 8, Y: 8, Z: 8})

	for i := 0; i < 8; i++ {
		child := b.Octant(i)
		test.That(t, b.ContainsBox(child), test.ShouldBeTrue)
		test.That(t, child.Size(), test.ShouldResemble, r3.Vector{X: 4, Y: 4, Z: 4})
	}

	test.That(t, b.Octant(0).Min, test.ShouldResemble, r3.Vector{})
	test.That(t, b.Octant(7).Max, test.ShouldResemble, r3.Vector{X: 8, Y: 8, Z: 8})
	test.That(t, b.Octant(1).Min.X, test.ShouldEqual, 4.0)
	test.That(t, b.Octant(2).Min.Y, test.ShouldEqual, 4.0)
	test.That(t, b.Octant(4).Min.Z, test.ShouldEqual, 4.0)
}

func TestGeoBounds(t *testing.T) {
	_, err := NewGeoBounds(10, -10, 0, 1, 0, 1)
	test.That(t, err, test.ShouldNotBeNil)

	g, err := NewGeoBounds(-120, -60, 10, 50, 0, 30)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, g.Contains(-90, 30, 15), test.ShouldBeTrue)
	test.That(t, g.Contains(-59, 30, 15), test.ShouldBeFalse)
	test.That(t, g.Contains(-90, 30, 31), test.ShouldBeFalse)

	box := g.Box()
	test.That(t, box.Min, test.ShouldResemble, r3.Vector{X: -120, Y: 10, Z: 0})
	test.That(t, box.Max, test.ShouldResemble, r3.Vector{X: -60, Y: 50, Z: 30})
}

func TestInterval(t *testing.T) {
	off := Interval{}
	test.That(t, off.Accepts(1e12), test.ShouldBeTrue)

	iv := Interval{Enabled: true, Min: 5, Max: 10}
	test.That(t, iv.Accepts(5), test.ShouldBeTrue)
	test.That(t, iv.Accepts(10), test.ShouldBeTrue)
	test.That(t, iv.Accepts(4.99), test.ShouldBeFalse)
	test.That(t, iv.Accepts(10.01), test.ShouldBeFalse)
}

func TestPolygonContains(t *testing.T) {
	_, err := NewPolygon([]Vertex{{0, 0}, {1, 1}})
	test.That(t, err, test.ShouldNotBeNil)

	square, err := NewPolygon([]Vertex{{0, 0}, {0, 1}, {1, 1}, {1, 0}})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, square.Contains(0.5, 0.5), test.ShouldBeTrue)
	test.That(t, square.Contains(2, 2), test.ShouldBeFalse)
	test.That(t, square.Contains(-0.5, 0.5), test.ShouldBeFalse)

	// concave polygon, notch cut out of the right side
	notched, err := NewPolygon([]Vertex{{0, 0}, {0, 2}, {2, 2}, {1, 1}, {2, 0}})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, notched.Contains(0.5, 1), test.ShouldBeTrue)
	test.That(t, notched.Contains(1.8, 1), test.ShouldBeFalse)
}

func TestFrustumIntersects(t *testing.T) {
	cam := Camera{
		Position: r3.Vector{Z: 10},
		Target:   r3.Vector{},
		Up:       r3.Vector{Y: 1},
		FOVY:     math.Pi / 3,
		Aspect:   1.5,
		Near:     0.1,
		Far:      100,
	}
	f := NewFrustum(cam)

	ahead := NewBoundingBox(r3.Vector{X: -1, Y: -1, Z: -1}, r3.Vector{X: 1, Y: 1, Z: 1})
	behind := NewBoundingBox(r3.Vector{X: -1, Y: -1, Z: 20}, r3.Vector{X: 1, Y: 1, Z: 22})
	farOffAxis := NewBoundingBox(r3.Vector{X: 500, Y: -1, Z: -1}, r3.Vector{X: 502, Y: 1, Z: 1})

	test.That(t, f.IntersectsBox(ahead), test.ShouldBeTrue)
	test.That(t, f.IntersectsBox(behind), test.ShouldBeFalse)
	test.That(t, f.IntersectsBox(farOffAxis), test.ShouldBeFalse)
}

func TestCameraApproxEqual(t *testing.T) {
	a := Camera{Position: r3.Vector{X: 1}}
	b := Camera{Position: r3.Vector{X: 1.0000001}}
	c := Camera{Position: r3.Vector{X: 2}}

	test.That(t, a.ApproxEqual(b, 1e-3), test.ShouldBeTrue)
	test.That(t, a.ApproxEqual(c, 1e-3), test.ShouldBeFalse)
}
