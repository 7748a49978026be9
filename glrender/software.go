package glrender

import (
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/gnode"
	"github.com/soypat/gnode/feedback"
	"github.com/soypat/gnode/gleval"
	"github.com/soypat/gnode/surface"
)

// DepthEpsilon is added to stored depth in the LEQUAL depth test so that
// coplanar surfaces drawn later win over earlier ones.
const DepthEpsilon = 1e-5

var (
	errUnbound       = errors.New("surface has no bound graph")
	errForeignTarget = errors.New("render target not created by this renderer")
)

// Software rasterizes bound surfaces on the CPU. Vertex displacement and fragment
// colors are computed by the surface binding's CPU programs, in batches of
// fragments to amortize per node overhead.
type Software struct {
	Camera Camera
	// Time is the value of the time input for the next draw, in seconds.
	Time float32
	// VertexEvaluator, when not nil, returns the evaluator of a displaced
	// binding's offset in place of its CPU program, e.g. a [gleval.ComputeProgram].
	VertexEvaluator func(b *surface.Binding) (gleval.Evaluator, error)

	batchSize int
	textures  map[string]*Target
	screen    *Target

	offsets [][4]float32
	clip    [][4]float32
	frags   fragments
}

// fragments is a batch of rasterized fragments awaiting shading.
type fragments struct {
	vary  gleval.Varyings
	pix   []int
	color [][4]float32
}

func (f *fragments) reset() {
	f.vary.UV = f.vary.UV[:0]
	f.vary.Position = f.vary.Position[:0]
	f.vary.Normal = f.vary.Normal[:0]
	f.vary.FragCoord = f.vary.FragCoord[:0]
	f.pix = f.pix[:0]
}

// NewSoftware returns a software renderer. batchSize is the maximum number of
// fragments shaded per program evaluation.
func NewSoftware(cam Camera, batchSize int) (*Software, error) {
	if batchSize < 64 {
		return nil, errors.New("too small fragment batch size")
	}
	return &Software{
		Camera:    cam,
		batchSize: batchSize,
		textures:  make(map[string]*Target),
	}, nil
}

// BeginFrame sets the camera and time input of subsequent draws.
func (r *Software) BeginFrame(cam *Camera, time float32) {
	r.Camera = *cam
	r.Time = time
}

// CreateRenderTarget implements [feedback.Allocator].
func (r *Software) CreateRenderTarget(w, h int, format feedback.Format) (feedback.Target, error) {
	return NewTarget(w, h, format)
}

// ResizeRenderTarget implements [feedback.Allocator].
func (r *Software) ResizeRenderTarget(t feedback.Target, w, h int) error {
	tg, ok := t.(*Target)
	if !ok {
		return errForeignTarget
	}
	return tg.Resize(w, h)
}

// UploadTexture makes img available to graphs sampling slot. The image's top
// row is sampled at v=1.
func (r *Software) UploadTexture(slot string, img image.Image) error {
	if img.Bounds().Empty() {
		return fmt.Errorf("texture %q: empty image", slot)
	}
	r.textures[slot] = TargetFromImage(img)
	gnode.Logger().Debug("texture uploaded", slog.String("slot", slot),
		slog.Int("width", img.Bounds().Dx()), slog.Int("height", img.Bounds().Dy()))
	return nil
}

// Clear clears dst to c and resets its depth buffer.
func (r *Software) Clear(dst feedback.Target, c [4]float32) error {
	tg, ok := dst.(*Target)
	if !ok {
		return errForeignTarget
	}
	tg.Clear(c)
	return nil
}

// Present copies src to the screen target returned by [Software.Screen].
func (r *Software) Present(src feedback.Target) error {
	tg, ok := src.(*Target)
	if !ok {
		return errForeignTarget
	}
	if r.screen == nil || r.screen.w != tg.w || r.screen.h != tg.h {
		r.screen, _ = NewTarget(tg.w, tg.h, feedback.FormatRGBA8)
	}
	for i, c := range tg.pix {
		r.screen.pix[i] = r.screen.quantize(c)
	}
	return nil
}

// Screen returns the last presented frame or nil if nothing was presented.
func (r *Software) Screen() *Target { return r.screen }

// Draw rasterizes s into dst. bindings maps texture slots to render targets and
// takes precedence over uploaded textures of the same slot.
func (r *Software) Draw(dst feedback.Target, s *surface.Surface, bindings map[string]feedback.Target) error {
	tg, ok := dst.(*Target)
	if !ok {
		return errForeignTarget
	}
	b := s.Binding()
	if b == nil {
		return fmt.Errorf("surface %q: %w", s.Name, errUnbound)
	}
	u := gleval.Uniforms{
		Time:       r.Time,
		ScreenSize: ms2.Vec{X: float32(tg.w), Y: float32(tg.h)},
		Textures:   make(map[string]gleval.Sampler, len(r.textures)+len(bindings)),
	}
	for slot, tex := range r.textures {
		u.Textures[slot] = tex
	}
	for slot, t := range bindings {
		bt, ok := t.(*Target)
		if !ok {
			return fmt.Errorf("binding %q: %w", slot, errForeignTarget)
		}
		if bt == tg {
			return fmt.Errorf("binding %q: %w", slot, feedback.ErrSameTarget)
		}
		u.Textures[slot] = bt
	}

	g := &s.Geometry
	nv := g.NumVertices()
	if cap(r.clip) < nv {
		r.clip = make([][4]float32, nv)
	}
	clip := r.clip[:nv]
	vp := r.Camera.ViewProjection()
	var offsets [][4]float32
	if b.Vertex != nil {
		if cap(r.offsets) < nv {
			r.offsets = make([][4]float32, nv)
		}
		offsets = r.offsets[:nv]
		var vertex gleval.Evaluator = b.Vertex
		if r.VertexEvaluator != nil {
			ev, err := r.VertexEvaluator(b)
			if err != nil {
				return fmt.Errorf("surface %q vertex stage: %w", s.Name, err)
			}
			vertex = ev
		}
		err := vertex.Evaluate(gleval.Varyings{UV: g.UVs, Position: g.Positions, Normal: g.Normals}, u, offsets)
		if err != nil {
			return fmt.Errorf("surface %q vertex stage: %w", s.Name, err)
		}
	}
	for i, p := range g.Positions {
		if offsets != nil {
			p = ms3.Add(p, ms3.Vec{X: offsets[i][0], Y: offsets[i][1], Z: offsets[i][2]})
		}
		clip[i] = vp.MulVec4([4]float32{p.X, p.Y, p.Z, 1})
	}

	r.frags.reset()
	flush := func() error {
		if len(r.frags.pix) == 0 {
			return nil
		}
		err := r.shade(tg, b, u, s.Material.Transparent)
		r.frags.reset()
		return err
	}
	for t := 0; t+2 < len(g.Indices); t += 3 {
		tri := [3]uint32{g.Indices[t], g.Indices[t+1], g.Indices[t+2]}
		if err := r.raster(tg, g, clip, tri, flush); err != nil {
			return fmt.Errorf("surface %q fragment stage: %w", s.Name, err)
		}
	}
	if err := flush(); err != nil {
		return fmt.Errorf("surface %q fragment stage: %w", s.Name, err)
	}
	return nil
}

func (r *Software) shade(tg *Target, b *surface.Binding, u gleval.Uniforms, transparent bool) error {
	f := &r.frags
	n := len(f.pix)
	if cap(f.color) < n {
		f.color = make([][4]float32, n)
	}
	f.color = f.color[:n]
	if err := b.Fragment.Evaluate(f.vary, u, f.color); err != nil {
		return err
	}
	for i, pix := range f.pix {
		tg.blend(pix, f.color[i], transparent)
	}
	return nil
}

// raster scans the triangle's screen bounding box and appends covered fragments
// passing the depth test to the batch, flushing when it fills up.
// Triangles with a vertex at or behind the camera plane are discarded.
func (r *Software) raster(tg *Target, g *surface.Geometry, clip [][4]float32, tri [3]uint32, flush func() error) error {
	var sx, sy, sz, iw [3]float32
	for k, vi := range tri {
		c := clip[vi]
		if c[3] <= 1e-6 {
			return nil
		}
		iw[k] = 1 / c[3]
		sx[k] = (c[0]*iw[k]*0.5 + 0.5) * float32(tg.w)
		sy[k] = (c[1]*iw[k]*0.5 + 0.5) * float32(tg.h)
		sz[k] = c[2] * iw[k]
	}
	area := edge(sx[0], sy[0], sx[1], sy[1], sx[2], sy[2])
	if area == 0 {
		return nil
	}
	if area < 0 {
		// Keep counter clockwise order so the fill rule below is consistent.
		sx[1], sx[2] = sx[2], sx[1]
		sy[1], sy[2] = sy[2], sy[1]
		sz[1], sz[2] = sz[2], sz[1]
		iw[1], iw[2] = iw[2], iw[1]
		tri[1], tri[2] = tri[2], tri[1]
		area = -area
	}
	x0 := max(int(math32.Floor(min(sx[0], sx[1], sx[2]))), 0)
	x1 := min(int(math32.Ceil(max(sx[0], sx[1], sx[2]))), tg.w-1)
	y0 := max(int(math32.Floor(min(sy[0], sy[1], sy[2]))), 0)
	y1 := min(int(math32.Ceil(max(sy[0], sy[1], sy[2]))), tg.h-1)
	var topLeft [3]bool
	for k := range topLeft {
		a, b := (k+1)%3, (k+2)%3
		topLeft[k] = isTopLeft(sx[a], sy[a], sx[b], sy[b])
	}
	f := &r.frags
	for py := y0; py <= y1; py++ {
		cy := float32(py) + 0.5
		for px := x0; px <= x1; px++ {
			cx := float32(px) + 0.5
			var w [3]float32
			inside := true
			for k := range w {
				a, b := (k+1)%3, (k+2)%3
				e := edge(sx[a], sy[a], sx[b], sy[b], cx, cy)
				if e < 0 || (e == 0 && !topLeft[k]) {
					inside = false
					break
				}
				w[k] = e / area
			}
			if !inside {
				continue
			}
			z := w[0]*sz[0] + w[1]*sz[1] + w[2]*sz[2]
			pix := py*tg.w + px
			if z < -1 || z > 1 || z > tg.depth[pix]+DepthEpsilon {
				continue
			}
			tg.depth[pix] = z
			// Perspective correct interpolation weights.
			pw := [3]float32{w[0] * iw[0], w[1] * iw[1], w[2] * iw[2]}
			sum := pw[0] + pw[1] + pw[2]
			pw[0] /= sum
			pw[1] /= sum
			pw[2] /= sum
			var uv ms2.Vec
			var pos, nrm ms3.Vec
			for k, vi := range tri {
				if int(vi) < len(g.UVs) {
					uv = ms2.Add(uv, ms2.Scale(pw[k], g.UVs[vi]))
				}
				pos = ms3.Add(pos, ms3.Scale(pw[k], g.Positions[vi]))
				if int(vi) < len(g.Normals) {
					nrm = ms3.Add(nrm, ms3.Scale(pw[k], g.Normals[vi]))
				}
			}
			if ms3.Norm(nrm) > 0 {
				nrm = ms3.Unit(nrm)
			}
			f.vary.UV = append(f.vary.UV, uv)
			f.vary.Position = append(f.vary.Position, pos)
			f.vary.Normal = append(f.vary.Normal, nrm)
			f.vary.FragCoord = append(f.vary.FragCoord, ms2.Vec{X: cx, Y: cy})
			f.pix = append(f.pix, pix)
			if len(f.pix) >= r.batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// edge returns twice the signed area of triangle (a, b, p); positive when p is
// to the left of a→b.
func edge(ax, ay, bx, by, px, py float32) float32 {
	return (bx-ax)*(py-ay) - (by-ay)*(px-ax)
}

// isTopLeft reports whether a→b is a top or left edge of a counter clockwise
// triangle in a y-up frame.
func isTopLeft(ax, ay, bx, by float32) bool {
	return (ay == by && bx < ax) || by < ay
}
