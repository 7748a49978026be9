package scene

import (
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/gnode/glrender"
	"github.com/soypat/gnode/param"
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// CursorTracker turns pointer positions into a world space point on the z=0
// plane and writes it to a vec3 parameter. Pointer samples are throttled to
// Rate per second and the written point eases towards the latest sample.
type CursorTracker struct {
	Camera *glrender.Camera
	// Rate is the maximum number of accepted pointer samples per second.
	// Zero or negative disables throttling.
	Rate float32
	// Smoothing is the duration in seconds of the ease towards a new sample.
	// Zero or negative writes samples immediately.
	Smoothing float32
	Ease      ease.TweenFunc

	param    *param.Parameter
	clock    float32
	last     float32
	sampled  bool
	current  ms3.Vec
	tweenX   *gween.Tween
	tweenY   *gween.Tween
	tweening bool
}

// NewCursorTracker returns a tracker writing to p, which must be a vec3 parameter.
func NewCursorTracker(cam *glrender.Camera, p *param.Parameter, rate, smoothing float32) *CursorTracker {
	v := p.Value()
	return &CursorTracker{
		Camera:    cam,
		Rate:      rate,
		Smoothing: smoothing,
		Ease:      ease.OutQuad,
		param:     p,
		current:   ms3.Vec{X: v[0], Y: v[1], Z: v[2]},
	}
}

// Position returns the last point written to the parameter.
func (c *CursorTracker) Position() ms3.Vec { return c.current }

// Move registers a pointer at normalized device coordinates (x, y), both in
// [-1,1] with y pointing up. It reports whether the sample was accepted.
func (c *CursorTracker) Move(x, y float32) bool {
	if c.sampled && c.Rate > 0 && c.clock-c.last < 1/c.Rate {
		return false
	}
	target, ok := c.Camera.IntersectPlaneZ(x, y, 0)
	if !ok {
		return false
	}
	c.sampled = true
	c.last = c.clock
	if c.Smoothing <= 0 {
		c.tweening = false
		c.write(target)
		return true
	}
	c.tweenX = gween.New(c.current.X, target.X, c.Smoothing, c.Ease)
	c.tweenY = gween.New(c.current.Y, target.Y, c.Smoothing, c.Ease)
	c.tweening = true
	return true
}

// Tick advances the tracker clock and the ease by dt seconds.
func (c *CursorTracker) Tick(dt float32) {
	c.clock += dt
	if !c.tweening {
		return
	}
	x, doneX := c.tweenX.Update(dt)
	y, doneY := c.tweenY.Update(dt)
	c.tweening = !(doneX && doneY)
	c.write(ms3.Vec{X: x, Y: y})
}

func (c *CursorTracker) write(p ms3.Vec) {
	if err := c.param.Set(param.Vec3Value(p.X, p.Y, p.Z)); err != nil {
		return
	}
	c.current = p
}
