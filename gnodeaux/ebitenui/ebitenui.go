// Package ebitenui runs a gnode scene with ebiten. Surface colors are computed
// by Kage shaders generated from the bound graphs while vertex displacement is
// evaluated on the CPU since Kage has no vertex stage.
//
// Ebiten images are 8 bit and have no depth buffer: surfaces are drawn in call
// order and feedback trails are quantized to 8 bits per channel.
package ebitenui

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/gnode"
	"github.com/soypat/gnode/feedback"
	"github.com/soypat/gnode/glbuild"
	"github.com/soypat/gnode/gleval"
	"github.com/soypat/gnode/glrender"
	"github.com/soypat/gnode/scene"
	"github.com/soypat/gnode/surface"
	"golang.org/x/image/draw"
)

var errForeignTarget = errors.New("render target not created by the ebiten renderer")

var _ scene.Renderer = (*Renderer)(nil)

// Renderer draws bound surfaces into ebiten images.
type Renderer struct {
	cam  glrender.Camera
	time float32

	// Uploaded images and their copies resampled to target sizes, since
	// every image read by a shader must match the size of the first one.
	textures map[string]image.Image
	resized  map[string]*ebiten.Image
	shaders  map[*surface.Binding]*ebiten.Shader

	presented *ebiten.Image
	offsets   [][4]float32
	vertices  []ebiten.Vertex
	indices   []uint32
	uniforms  map[string]any
}

type target struct {
	img *ebiten.Image
}

func (t *target) Size() (int, int) {
	b := t.img.Bounds()
	return b.Dx(), b.Dy()
}

// NewRenderer returns an ebiten renderer.
func NewRenderer() *Renderer {
	return &Renderer{
		textures: make(map[string]image.Image),
		resized:  make(map[string]*ebiten.Image),
		shaders:  make(map[*surface.Binding]*ebiten.Shader),
		uniforms: make(map[string]any),
	}
}

// BeginFrame implements [scene.Renderer].
func (r *Renderer) BeginFrame(cam *glrender.Camera, time float32) {
	r.cam = *cam
	r.time = time
}

// CreateRenderTarget implements [feedback.Allocator]. The format is ignored.
func (r *Renderer) CreateRenderTarget(w, h int, format feedback.Format) (feedback.Target, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("bad render target size %dx%d", w, h)
	}
	return &target{img: ebiten.NewImageWithOptions(image.Rect(0, 0, w, h), &ebiten.NewImageOptions{Unmanaged: true})}, nil
}

// ResizeRenderTarget implements [feedback.Allocator].
func (r *Renderer) ResizeRenderTarget(t feedback.Target, w, h int) error {
	tg, ok := t.(*target)
	if !ok {
		return errForeignTarget
	} else if w <= 0 || h <= 0 {
		return fmt.Errorf("bad render target size %dx%d", w, h)
	}
	tg.img.Deallocate()
	tg.img = ebiten.NewImageWithOptions(image.Rect(0, 0, w, h), &ebiten.NewImageOptions{Unmanaged: true})
	return nil
}

// UploadTexture implements [scene.Renderer]. Images are resampled lazily to the
// size of the targets they are drawn into.
func (r *Renderer) UploadTexture(slot string, img image.Image) error {
	if img.Bounds().Empty() {
		return fmt.Errorf("texture %q: empty image", slot)
	}
	r.textures[slot] = img
	if old, ok := r.resized[slot]; ok {
		old.Deallocate()
		delete(r.resized, slot)
	}
	gnode.Logger().Debug("texture uploaded", slog.String("slot", slot),
		slog.Int("width", img.Bounds().Dx()), slog.Int("height", img.Bounds().Dy()))
	return nil
}

func (r *Renderer) texture(slot string, w, h int) (*ebiten.Image, error) {
	if img, ok := r.resized[slot]; ok && img.Bounds().Dx() == w && img.Bounds().Dy() == h {
		return img, nil
	}
	src, ok := r.textures[slot]
	if !ok {
		return nil, fmt.Errorf("texture slot %q not bound", slot)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Rect, src, src.Bounds(), draw.Src, nil)
	if old, ok := r.resized[slot]; ok {
		old.Deallocate()
	}
	img := ebiten.NewImageFromImage(dst)
	r.resized[slot] = img
	return img, nil
}

// Clear implements [scene.Renderer].
func (r *Renderer) Clear(dst feedback.Target, c [4]float32) error {
	tg, ok := dst.(*target)
	if !ok {
		return errForeignTarget
	}
	tg.img.Fill(color.NRGBA64{
		R: unorm16(c[0]),
		G: unorm16(c[1]),
		B: unorm16(c[2]),
		A: unorm16(c[3]),
	})
	return nil
}

func unorm16(v float32) uint16 {
	return uint16(min(max(v, 0), 1)*0xffff + 0.5)
}

// Draw implements [scene.Renderer].
func (r *Renderer) Draw(dst feedback.Target, s *surface.Surface, bindings map[string]feedback.Target) error {
	tg, ok := dst.(*target)
	if !ok {
		return errForeignTarget
	}
	b := s.Binding()
	if b == nil {
		return fmt.Errorf("surface %q: no bound graph", s.Name)
	}
	shader, objs, err := r.shader(b)
	if err != nil {
		return fmt.Errorf("surface %q: %w", s.Name, err)
	}
	w, h := tg.Size()
	var op ebiten.DrawTrianglesShaderOptions
	for _, obj := range objs {
		if obj.Kind != glbuild.ObjectTexture {
			continue
		}
		if t, bound := bindings[obj.Slot]; bound {
			bt, ok := t.(*target)
			if !ok {
				return fmt.Errorf("binding %q: %w", obj.Slot, errForeignTarget)
			} else if bt == tg {
				return fmt.Errorf("binding %q: %w", obj.Slot, feedback.ErrSameTarget)
			}
			op.Images[obj.Binding] = bt.img
			continue
		}
		op.Images[obj.Binding], err = r.texture(obj.Slot, w, h)
		if err != nil {
			return fmt.Errorf("surface %q: %w", s.Name, err)
		}
	}
	texW, texH := float32(1), float32(1)
	if op.Images[0] != nil {
		texW, texH = float32(w), float32(h)
	}
	if err := r.buildVertices(s, b, w, h, texW, texH); err != nil {
		return fmt.Errorf("surface %q vertex stage: %w", s.Name, err)
	}
	clear(r.uniforms)
	r.uniforms[glbuild.KageTime] = r.time
	r.uniforms[glbuild.KageResolution] = []float32{float32(w), float32(h)}
	var nrm ms3.Vec
	if len(s.Geometry.Normals) > 0 {
		nrm = s.Geometry.Normals[0]
	}
	r.uniforms[glbuild.KageNormalWorld] = []float32{nrm.X, nrm.Y, nrm.Z}
	for _, obj := range objs {
		if obj.Kind == glbuild.ObjectParameter {
			r.uniforms[obj.Name] = uniformValue(obj.Shape, obj.Param.Value())
		}
	}
	op.Uniforms = r.uniforms
	op.Blend = ebiten.BlendCopy
	if s.Material.Transparent {
		op.Blend = ebiten.BlendSourceOver
	}
	tg.img.DrawTrianglesShader32(r.vertices, r.indices, shader, &op)
	return nil
}

func uniformValue(shape gnode.Shape, v [4]float32) any {
	switch shape {
	case gnode.Vec2:
		return []float32{v[0], v[1]}
	case gnode.Vec3:
		return []float32{v[0], v[1], v[2]}
	case gnode.Vec4:
		return []float32{v[0], v[1], v[2], v[3]}
	}
	return v[0]
}

// buildVertices displaces and projects the surface's vertices into pixel
// coordinates of a w×h target. The source position carries the UV scaled by
// the texture size and the vertex color carries the local position.
func (r *Renderer) buildVertices(s *surface.Surface, b *surface.Binding, w, h int, texW, texH float32) error {
	g := &s.Geometry
	nv := g.NumVertices()
	var offsets [][4]float32
	if b.Vertex != nil {
		if cap(r.offsets) < nv {
			r.offsets = make([][4]float32, nv)
		}
		offsets = r.offsets[:nv]
		u := gleval.Uniforms{Time: r.time}
		u.ScreenSize.X, u.ScreenSize.Y = float32(w), float32(h)
		err := b.Vertex.Evaluate(gleval.Varyings{UV: g.UVs, Position: g.Positions, Normal: g.Normals}, u, offsets)
		if err != nil {
			return err
		}
	}
	r.vertices = r.vertices[:0]
	visible := make([]bool, nv)
	for i, p := range g.Positions {
		world := p
		if offsets != nil {
			world = ms3.Add(p, ms3.Vec{X: offsets[i][0], Y: offsets[i][1], Z: offsets[i][2]})
		}
		x, y, ok := r.cam.ProjectPixel(world, w, h)
		visible[i] = ok
		var uv [2]float32
		if i < len(g.UVs) {
			uv = [2]float32{g.UVs[i].X, g.UVs[i].Y}
		}
		r.vertices = append(r.vertices, ebiten.Vertex{
			DstX:   x,
			DstY:   y,
			SrcX:   uv[0] * texW,
			SrcY:   uv[1] * texH,
			ColorR: p.X,
			ColorG: p.Y,
			ColorB: p.Z,
			ColorA: 1,
		})
	}
	// Triangles crossing the camera plane are discarded.
	r.indices = r.indices[:0]
	for t := 0; t+2 < len(g.Indices); t += 3 {
		i0, i1, i2 := g.Indices[t], g.Indices[t+1], g.Indices[t+2]
		if visible[i0] && visible[i1] && visible[i2] {
			r.indices = append(r.indices, i0, i1, i2)
		}
	}
	return nil
}

func (r *Renderer) shader(b *surface.Binding) (*ebiten.Shader, []glbuild.ShaderObject, error) {
	src, objs, err := b.Kage()
	if err != nil {
		return nil, nil, err
	}
	if sh, ok := r.shaders[b]; ok {
		return sh, objs, nil
	}
	sh, err := ebiten.NewShader([]byte(src))
	if err != nil {
		return nil, nil, fmt.Errorf("%s\n\n%w", src, err)
	}
	r.shaders[b] = sh
	return sh, objs, nil
}

// Present implements [scene.Renderer]. The image is drawn to the screen by the game.
func (r *Renderer) Present(src feedback.Target) error {
	tg, ok := src.(*target)
	if !ok {
		return errForeignTarget
	}
	r.presented = tg.img
	return nil
}

// Config configures [Run].
type Config struct {
	Width, Height int
	Title         string
	Context       context.Context
}

// Run opens an ebiten window and runs the scene built from cfg until the window
// is closed or the context is done.
func Run(cfg scene.Config, ecfg Config) error {
	if ecfg.Width <= 0 || ecfg.Height <= 0 {
		ecfg.Width, ecfg.Height = cfg.Width, cfg.Height
	}
	if ecfg.Title == "" {
		ecfg.Title = "gnode"
	}
	cfg.Width, cfg.Height = ecfg.Width, ecfg.Height
	r := NewRenderer()
	s, err := scene.New(r, cfg)
	if err != nil {
		return err
	}
	ebiten.SetWindowSize(ecfg.Width, ecfg.Height)
	ebiten.SetWindowTitle(ecfg.Title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	g := &game{s: s, r: r, ctx: ecfg.Context, w: ecfg.Width, h: ecfg.Height}
	err = ebiten.RunGame(g)
	if errors.Is(err, ebiten.Termination) && g.ctx != nil {
		return g.ctx.Err()
	}
	return err
}

type game struct {
	s    *scene.Scene
	r    *Renderer
	ctx  context.Context
	w, h int
	cx   int
	cy   int
}

func (g *game) Update() error {
	if g.ctx != nil && g.ctx.Err() != nil {
		return ebiten.Termination
	}
	if sw, sh := g.s.Loop().Size(); sw != g.w || sh != g.h {
		if err := g.s.Resize(g.w, g.h); err != nil {
			return err
		}
	}
	if x, y := ebiten.CursorPosition(); x != g.cx || y != g.cy {
		g.cx, g.cy = x, y
		g.s.PointerMove(float32(x), float32(y))
	}
	return g.s.Frame(1 / float32(ebiten.TPS()))
}

func (g *game) Draw(screen *ebiten.Image) {
	if g.r.presented != nil {
		screen.DrawImage(g.r.presented, nil)
	}
}

func (g *game) Layout(outsideWidth, outsideHeight int) (int, int) {
	if outsideWidth > 0 && outsideHeight > 0 {
		g.w, g.h = outsideWidth, outsideHeight
	}
	return g.w, g.h
}
