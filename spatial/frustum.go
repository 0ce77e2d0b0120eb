package spatial

import (
	"math"

	"github.com/golang/geo/r3"
)

// Camera describes the viewpoint used for visibility culling and
// level-of-detail refinement. Position and Target share the coordinate
// system of the octree (lon/lat/alt), FOVY is the vertical field of view in
// radians.
type Camera struct {
	Position r3.Vector
	Target   r3.Vector
	Up       r3.Vector
	FOVY     float64
	Aspect   float64
	Near     float64
	Far      float64
}

// ApproxEqual reports whether two camera states differ by less than eps on
// position and target. The engine uses it to skip retraversal on
// sub-epsilon camera jitter.
func (c Camera) ApproxEqual(other Camera, eps float64) bool {
	return c.Position.Sub(other.Position).Norm() < eps &&
		c.Target.Sub(other.Target).Norm() < eps
}

// plane is the set of points p with Dot(normal, p) + d == 0; the normal
// points toward the inside of the frustum.
type plane struct {
	normal r3.Vector
	d      float64
}

func planeFromPointNormal(p, normal r3.Vector) plane {
	n := normal.Normalize()
	return plane{normal: n, d: -n.Dot(p)}
}

// Frustum is the six-plane viewing volume of a Camera.
type Frustum struct {
	planes [6]plane
}

// NewFrustum derives the viewing volume from the camera parameters.
func NewFrustum(cam Camera) Frustum {
	forward := cam.Target.Sub(cam.Position).Normalize()
	right := forward.Cross(cam.Up).Normalize()
	up := right.Cross(forward)

	halfV := math.Tan(cam.FOVY / 2)
	halfH := halfV * cam.Aspect

	nearCenter := cam.Position.Add(forward.Mul(cam.Near))
	farCenter := cam.Position.Add(forward.Mul(cam.Far))

	var f Frustum
	f.planes[0] = planeFromPointNormal(nearCenter, forward)             // near
	f.planes[1] = planeFromPointNormal(farCenter, forward.Mul(-1))      // far
	upFar := up.Mul(halfV * cam.Far)
	rightFar := right.Mul(halfH * cam.Far)
	farFwd := forward.Mul(cam.Far)
	// side planes pass through the camera position, normals face inward
	f.planes[2] = planeFromPointNormal(cam.Position, farFwd.Sub(rightFar).Cross(up)) // left
	f.planes[3] = planeFromPointNormal(cam.Position, up.Cross(farFwd.Add(rightFar))) // right
	f.planes[4] = planeFromPointNormal(cam.Position, right.Cross(farFwd.Sub(upFar))) // bottom
	f.planes[5] = planeFromPointNormal(cam.Position, farFwd.Add(upFar).Cross(right)) // top
	return f
}

// IntersectsBox reports whether the box is at least partially inside the
// frustum, using the positive-vertex test per plane. Conservative: may
// report true for boxes slightly outside a corner.
func (f Frustum) IntersectsBox(b BoundingBox) bool {
	for _, pl := range f.planes {
		v := b.Min
		if pl.normal.X >= 0 {
			v.X = b.Max.X
		}
		if pl.normal.Y >= 0 {
			v.Y = b.Max.Y
		}
		if pl.normal.Z >= 0 {
			v.Z = b.Max.Z
		}
		if pl.normal.Dot(v)+pl.d < 0 {
			return false
		}
	}
	return true
}
