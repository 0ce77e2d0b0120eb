// Package spatial provides the geometric primitives used by the streaming
// engine: axis-aligned bounding boxes over geographic coordinates, camera
// frustums, interval filters, and polygon containment tests.
package spatial

import (
	"github.com/golang/geo/r3"
)

// BoundingBox is an axis-aligned box. For octree nodes the axes carry
// geographic coordinates: X is longitude in degrees, Y is latitude in
// degrees, Z is altitude in kilometers.
type BoundingBox struct {
	Min r3.Vector
	Max r3.Vector
}

// NewBoundingBox returns a box spanning the two corner points.
func NewBoundingBox(min, max r3.Vector) BoundingBox {
	return BoundingBox{Min: min, Max: max}
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() r3.Vector {
	return r3.Vector{
		X: (b.Min.X + b.Max.X) / 2,
		Y: (b.Min.Y + b.Max.Y) / 2,
		Z: (b.Min.Z + b.Max.Z) / 2,
	}
}

// Size returns the box extent along each axis.
func (b BoundingBox) Size() r3.Vector {
	return b.Max.Sub(b.Min)
}

// Diagonal returns the length of the box diagonal. The scheduler uses it as
// the node-size term of the screen-space error estimate.
func (b BoundingBox) Diagonal() float64 {
	return b.Size().Norm()
}

// Contains reports whether the point lies inside or on the box.
func (b BoundingBox) Contains(p r3.Vector) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// ContainsBox reports whether other lies entirely inside this box.
func (b BoundingBox) ContainsBox(other BoundingBox) bool {
	return b.Contains(other.Min) && b.Contains(other.Max)
}

// Intersects reports whether the two boxes overlap, boundary included.
func (b BoundingBox) Intersects(other BoundingBox) bool {
	return b.Min.X <= other.Max.X && b.Max.X >= other.Min.X &&
		b.Min.Y <= other.Max.Y && b.Max.Y >= other.Min.Y &&
		b.Min.Z <= other.Max.Z && b.Max.Z >= other.Min.Z
}

// IsEmpty reports whether the box has non-positive extent on any axis.
func (b BoundingBox) IsEmpty() bool {
	return b.Min.X >= b.Max.X || b.Min.Y >= b.Max.Y || b.Min.Z >= b.Max.Z
}

// Octant returns the child box for the given octant index in [0, 8). Bit 0
// selects the upper half in X, bit 1 in Y, bit 2 in Z.
func (b BoundingBox) Octant(i int) BoundingBox {
	c := b.Center()
	child := BoundingBox{Min: b.Min, Max: c}
	if i&1 != 0 {
		child.Min.X = c.X
		child.Max.X = b.Max.X
	}
	if i&2 != 0 {
		child.Min.Y = c.Y
		child.Max.Y = b.Max.Y
	}
	if i&4 != 0 {
		child.Min.Z = c.Z
		child.Max.Z = b.Max.Z
	}
	return child
}
