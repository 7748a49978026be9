package glrender

import (
	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms3"
)

// Mat4 is a 4x4 matrix stored in column major order, the layout OpenGL expects.
type Mat4 [16]float32

// Identity returns the identity matrix.
func Identity() Mat4 {
	return Mat4{0: 1, 5: 1, 10: 1, 15: 1}
}

// Mul returns the product m*b.
func (m Mat4) Mul(b Mat4) (r Mat4) {
	for c := 0; c < 4; c++ {
		for row := 0; row < 4; row++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += m[k*4+row] * b[c*4+k]
			}
			r[c*4+row] = sum
		}
	}
	return r
}

// MulVec4 returns m*v.
func (m Mat4) MulVec4(v [4]float32) (r [4]float32) {
	for row := 0; row < 4; row++ {
		r[row] = m[row]*v[0] + m[4+row]*v[1] + m[8+row]*v[2] + m[12+row]*v[3]
	}
	return r
}

// Perspective returns an OpenGL projection matrix mapping the view frustum to
// normalized device coordinates in [-1,1]. fovy is the vertical field of view in degrees.
func Perspective(fovy, aspect, near, far float32) Mat4 {
	f := 1 / math32.Tan(fovy*math32.Pi/360)
	var m Mat4
	m[0] = f / aspect
	m[5] = f
	m[10] = (far + near) / (near - far)
	m[11] = -1
	m[14] = 2 * far * near / (near - far)
	return m
}

// LookAt returns a view matrix for an eye at eye looking at target.
func LookAt(eye, target, up ms3.Vec) Mat4 {
	z := ms3.Unit(ms3.Sub(eye, target))
	x := ms3.Unit(cross(up, z))
	y := cross(z, x)
	return Mat4{
		x.X, y.X, z.X, 0,
		x.Y, y.Y, z.Y, 0,
		x.Z, y.Z, z.Z, 0,
		-ms3.Dot(x, eye), -ms3.Dot(y, eye), -ms3.Dot(z, eye), 1,
	}
}

func cross(a, b ms3.Vec) ms3.Vec {
	return ms3.Vec{
		X: a.Y*b.Z - a.Z*b.Y,
		Y: a.Z*b.X - a.X*b.Z,
		Z: a.X*b.Y - a.Y*b.X,
	}
}

// Camera is a perspective camera. The zero Up vector is taken as +Y.
type Camera struct {
	FOV      float32 // Vertical field of view in degrees.
	Aspect   float32
	Near     float32
	Far      float32
	Position ms3.Vec
	Target   ms3.Vec
	Up       ms3.Vec
}

// NewCamera returns a camera at distance z on the +Z axis looking at the origin.
func NewCamera(fov, aspect, near, far, z float32) Camera {
	return Camera{
		FOV:      fov,
		Aspect:   aspect,
		Near:     near,
		Far:      far,
		Position: ms3.Vec{Z: z},
		Up:       ms3.Vec{Y: 1},
	}
}

func (c *Camera) up() ms3.Vec {
	if c.Up == (ms3.Vec{}) {
		return ms3.Vec{Y: 1}
	}
	return c.Up
}

// View returns the world to view matrix.
func (c *Camera) View() Mat4 { return LookAt(c.Position, c.Target, c.up()) }

// Projection returns the view to clip matrix.
func (c *Camera) Projection() Mat4 { return Perspective(c.FOV, c.Aspect, c.Near, c.Far) }

// ViewProjection returns Projection*View.
func (c *Camera) ViewProjection() Mat4 { return c.Projection().Mul(c.View()) }

// Project returns the normalized device coordinates of the world point p.
// ok is false for points at or behind the camera plane.
func (c *Camera) Project(p ms3.Vec) (ndc ms3.Vec, ok bool) {
	clip := c.ViewProjection().MulVec4([4]float32{p.X, p.Y, p.Z, 1})
	if clip[3] <= 0 {
		return ms3.Vec{}, false
	}
	return ms3.Vec{X: clip[0] / clip[3], Y: clip[1] / clip[3], Z: clip[2] / clip[3]}, true
}

// ProjectPixel returns the position of the world point p in a w×h image
// measured in pixels from its top left corner, the convention of 2D
// rasterizers. ok is false for points at or behind the camera plane.
func (c *Camera) ProjectPixel(p ms3.Vec, w, h int) (x, y float32, ok bool) {
	ndc, ok := c.Project(p)
	if !ok {
		return 0, 0, false
	}
	return (ndc.X*0.5 + 0.5) * float32(w), (0.5 - ndc.Y*0.5) * float32(h), true
}

// Ray returns the unit direction of the ray from the camera position through the
// point at normalized device coordinates (x, y).
func (c *Camera) Ray(x, y float32) ms3.Vec {
	forward := ms3.Unit(ms3.Sub(c.Target, c.Position))
	right := ms3.Unit(cross(forward, c.up()))
	up := cross(right, forward)
	t := math32.Tan(c.FOV * math32.Pi / 360)
	dir := ms3.Add(forward, ms3.Add(ms3.Scale(x*t*c.Aspect, right), ms3.Scale(y*t, up)))
	return ms3.Unit(dir)
}

// IntersectPlaneZ returns the point where the ray through normalized device
// coordinates (x, y) crosses the plane Z=z. ok is false when the ray is
// parallel to the plane or the plane is behind the camera.
func (c *Camera) IntersectPlaneZ(x, y, z float32) (p ms3.Vec, ok bool) {
	dir := c.Ray(x, y)
	if math32.Abs(dir.Z) < 1e-8 {
		return ms3.Vec{}, false
	}
	t := (z - c.Position.Z) / dir.Z
	if t < 0 {
		return ms3.Vec{}, false
	}
	return ms3.Add(c.Position, ms3.Scale(t, dir)), true
}
