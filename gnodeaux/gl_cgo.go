//go:build !tinygo && cgo

package gnodeaux

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"log/slog"

	"github.com/go-gl/gl/v4.6-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/soypat/glgl/v4.6-core/glgl"
	"github.com/soypat/gnode"
	"github.com/soypat/gnode/feedback"
	"github.com/soypat/gnode/glbuild"
	"github.com/soypat/gnode/gleval"
	"github.com/soypat/gnode/glrender"
	"github.com/soypat/gnode/scene"
	"github.com/soypat/gnode/surface"
)

var errForeignTarget = errors.New("render target not created by the OpenGL renderer")

var _ scene.Renderer = (*GLRenderer)(nil)

// GLRenderer draws bound surfaces with OpenGL 4.6 into framebuffer objects.
// An OpenGL context must be current on the calling goroutine for every method.
type GLRenderer struct {
	cam      glrender.Camera
	time     float32
	textures map[string]uint32
	programs map[*surface.Binding]glgl.Program
	meshes   map[*surface.Surface]*glMesh
	// Size of the default framebuffer Present blits to.
	screenW, screenH int
}

// glTarget is a color texture with a depth renderbuffer attached to a framebuffer.
type glTarget struct {
	fbo, tex, depth uint32
	w, h            int
	format          feedback.Format
}

func (t *glTarget) Size() (int, int) { return t.w, t.h }

type glMesh struct {
	vao     uint32
	vbos    [4]uint32
	nindex  int32
	nvertex int
}

// NewGLRenderer returns a renderer presenting to a default framebuffer of the given size.
func NewGLRenderer(screenW, screenH int) *GLRenderer {
	return &GLRenderer{
		textures: make(map[string]uint32),
		programs: make(map[*surface.Binding]glgl.Program),
		meshes:   make(map[*surface.Surface]*glMesh),
		screenW:  screenW,
		screenH:  screenH,
	}
}

// SetScreenSize sets the size of the default framebuffer.
func (r *GLRenderer) SetScreenSize(w, h int) { r.screenW, r.screenH = w, h }

// BeginFrame implements [scene.Renderer].
func (r *GLRenderer) BeginFrame(cam *glrender.Camera, time float32) {
	r.cam = *cam
	r.time = time
}

// CreateRenderTarget implements [feedback.Allocator].
func (r *GLRenderer) CreateRenderTarget(w, h int, format feedback.Format) (feedback.Target, error) {
	t := &glTarget{format: format}
	err := t.alloc(w, h)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ResizeRenderTarget implements [feedback.Allocator].
func (r *GLRenderer) ResizeRenderTarget(t feedback.Target, w, h int) error {
	tg, ok := t.(*glTarget)
	if !ok {
		return errForeignTarget
	}
	tg.release()
	return tg.alloc(w, h)
}

func (t *glTarget) alloc(w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("bad render target size %dx%d", w, h)
	}
	internal := int32(gl.RGBA16F)
	switch t.format {
	case feedback.FormatRGBA8:
		internal = gl.RGBA8
	case feedback.FormatRGBA32F:
		internal = gl.RGBA32F
	}
	t.w, t.h = w, h
	gl.GenTextures(1, &t.tex)
	gl.BindTexture(gl.TEXTURE_2D, t.tex)
	gl.TexImage2D(gl.TEXTURE_2D, 0, internal, int32(w), int32(h), 0, gl.RGBA, gl.FLOAT, nil)
	setSampling()
	gl.GenRenderbuffers(1, &t.depth)
	gl.BindRenderbuffer(gl.RENDERBUFFER, t.depth)
	gl.RenderbufferStorage(gl.RENDERBUFFER, gl.DEPTH_COMPONENT24, int32(w), int32(h))
	gl.GenFramebuffers(1, &t.fbo)
	gl.BindFramebuffer(gl.FRAMEBUFFER, t.fbo)
	defer gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, t.tex, 0)
	gl.FramebufferRenderbuffer(gl.FRAMEBUFFER, gl.DEPTH_ATTACHMENT, gl.RENDERBUFFER, t.depth)
	if status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER); status != gl.FRAMEBUFFER_COMPLETE {
		return fmt.Errorf("incomplete framebuffer (status 0x%x)", status)
	}
	return glgl.Err()
}

func (t *glTarget) release() {
	gl.DeleteFramebuffers(1, &t.fbo)
	gl.DeleteRenderbuffers(1, &t.depth)
	gl.DeleteTextures(1, &t.tex)
	t.fbo, t.depth, t.tex = 0, 0, 0
}

func setSampling() {
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
}

// UploadTexture implements [Uploader]. The image's top row is sampled at v=1.
func (r *GLRenderer) UploadTexture(slot string, img image.Image) error {
	b := img.Bounds()
	if b.Empty() {
		return fmt.Errorf("texture %q: empty image", slot)
	}
	w, h := b.Dx(), b.Dy()
	nrgba := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(nrgba, nrgba.Rect, img, b.Min, draw.Src)
	// OpenGL stores the first row at t=0.
	flipped := make([]byte, len(nrgba.Pix))
	for y := range h {
		copy(flipped[y*nrgba.Stride:][:4*w], nrgba.Pix[(h-1-y)*nrgba.Stride:][:4*w])
	}
	tex, ok := r.textures[slot]
	if !ok {
		gl.GenTextures(1, &tex)
		r.textures[slot] = tex
	}
	gl.BindTexture(gl.TEXTURE_2D, tex)
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(w), int32(h), 0, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(flipped))
	setSampling()
	gnode.Logger().Debug("texture uploaded", slog.String("slot", slot), slog.Int("width", w), slog.Int("height", h))
	return glgl.Err()
}

// Clear implements [scene.Renderer].
func (r *GLRenderer) Clear(dst feedback.Target, c [4]float32) error {
	tg, ok := dst.(*glTarget)
	if !ok {
		return errForeignTarget
	}
	gl.BindFramebuffer(gl.FRAMEBUFFER, tg.fbo)
	gl.Viewport(0, 0, int32(tg.w), int32(tg.h))
	gl.ClearColor(c[0], c[1], c[2], c[3])
	gl.ClearDepth(1)
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
	return glgl.Err()
}

// Draw implements [scene.Renderer].
func (r *GLRenderer) Draw(dst feedback.Target, s *surface.Surface, bindings map[string]feedback.Target) error {
	tg, ok := dst.(*glTarget)
	if !ok {
		return errForeignTarget
	}
	b := s.Binding()
	if b == nil {
		return fmt.Errorf("surface %q: no bound graph", s.Name)
	}
	prog, err := r.program(b)
	if err != nil {
		return fmt.Errorf("surface %q: %w", s.Name, err)
	}
	mesh := r.mesh(s)
	gl.BindFramebuffer(gl.FRAMEBUFFER, tg.fbo)
	gl.Viewport(0, 0, int32(tg.w), int32(tg.h))
	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LEQUAL)
	if s.Material.Transparent {
		gl.Enable(gl.BLEND)
		gl.BlendFuncSeparate(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA, gl.ONE, gl.ONE_MINUS_SRC_ALPHA)
	} else {
		gl.Disable(gl.BLEND)
	}
	prog.Bind()
	defer prog.Unbind()
	model, view, proj := glrender.Identity(), r.cam.View(), r.cam.Projection()
	for _, m := range []struct {
		name string
		m    *glrender.Mat4
	}{{"uModel\x00", &model}, {"uView\x00", &view}, {"uProjection\x00", &proj}} {
		if loc, err := prog.UniformLocation(m.name); err == nil {
			gl.UniformMatrix4fv(loc, 1, false, &m.m[0])
		}
	}
	// Frame uniforms are optimized out by the driver when unread.
	if loc, err := prog.UniformLocation("uTime\x00"); err == nil {
		gl.Uniform1f(loc, r.time)
	}
	if loc, err := prog.UniformLocation("uResolution\x00"); err == nil {
		gl.Uniform2f(loc, float32(tg.w), float32(tg.h))
	}
	for _, objs := range [2][]glbuild.ShaderObject{b.VertexObjects, b.FragmentObjects} {
		err = r.bindObjects(prog, tg, objs, bindings)
		if err != nil {
			return fmt.Errorf("surface %q: %w", s.Name, err)
		}
	}
	gl.BindVertexArray(mesh.vao)
	gl.DrawElements(gl.TRIANGLES, mesh.nindex, gl.UNSIGNED_INT, gl.PtrOffset(0))
	gl.BindVertexArray(0)
	return glgl.Err()
}

func (r *GLRenderer) bindObjects(prog glgl.Program, dst *glTarget, objs []glbuild.ShaderObject, bindings map[string]feedback.Target) error {
	for _, obj := range objs {
		loc, err := prog.UniformLocation(obj.Name + "\x00")
		if err != nil {
			continue // Unused in this stage.
		}
		switch obj.Kind {
		case glbuild.ObjectParameter:
			gleval.SetUniform(loc, obj.Shape, obj.Param.Value())
		case glbuild.ObjectTexture:
			tex, ok := r.textures[obj.Slot]
			if t, bound := bindings[obj.Slot]; bound {
				bt, ok := t.(*glTarget)
				if !ok {
					return fmt.Errorf("binding %q: %w", obj.Slot, errForeignTarget)
				} else if bt == dst {
					return fmt.Errorf("binding %q: %w", obj.Slot, feedback.ErrSameTarget)
				}
				tex = bt.tex
			} else if !ok {
				return fmt.Errorf("texture slot %q not bound", obj.Slot)
			}
			gl.ActiveTexture(gl.TEXTURE0 + uint32(obj.Binding))
			gl.BindTexture(gl.TEXTURE_2D, tex)
			gl.Uniform1i(loc, int32(obj.Binding))
		}
	}
	return nil
}

func (r *GLRenderer) program(b *surface.Binding) (glgl.Program, error) {
	if prog, ok := r.programs[b]; ok {
		return prog, nil
	}
	prog, err := glgl.CompileProgram(glgl.ShaderSource{
		Vertex:   b.VertexGLSL + "\x00",
		Fragment: b.FragmentGLSL + "\x00",
	})
	if err != nil {
		return prog, fmt.Errorf("%s\n\n%s\n\n%w", b.VertexGLSL, b.FragmentGLSL, err)
	}
	r.programs[b] = prog
	return prog, nil
}

func (r *GLRenderer) mesh(s *surface.Surface) *glMesh {
	g := &s.Geometry
	if m, ok := r.meshes[s]; ok && m.nvertex == g.NumVertices() {
		return m
	}
	m := &glMesh{nindex: int32(len(g.Indices)), nvertex: g.NumVertices()}
	gl.GenVertexArrays(1, &m.vao)
	gl.BindVertexArray(m.vao)
	gl.GenBuffers(int32(len(m.vbos)), &m.vbos[0])
	attrib := func(i int, loc uint32, size int32, n int, ptr any) {
		gl.BindBuffer(gl.ARRAY_BUFFER, m.vbos[i])
		gl.BufferData(gl.ARRAY_BUFFER, 4*int(size)*n, gl.Ptr(ptr), gl.STATIC_DRAW)
		gl.EnableVertexAttribArray(loc)
		gl.VertexAttribPointer(loc, size, gl.FLOAT, false, 0, gl.PtrOffset(0))
	}
	attrib(0, glbuild.AttribPosition, 3, len(g.Positions), &g.Positions[0])
	attrib(1, glbuild.AttribNormal, 3, len(g.Normals), &g.Normals[0])
	attrib(2, glbuild.AttribUV, 2, len(g.UVs), &g.UVs[0])
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, m.vbos[3])
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, 4*len(g.Indices), gl.Ptr(g.Indices), gl.STATIC_DRAW)
	gl.BindVertexArray(0)
	r.meshes[s] = m
	return m
}

// Present implements [scene.Renderer] by blitting src to the default framebuffer.
func (r *GLRenderer) Present(src feedback.Target) error {
	tg, ok := src.(*glTarget)
	if !ok {
		return errForeignTarget
	}
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, tg.fbo)
	gl.BindFramebuffer(gl.DRAW_FRAMEBUFFER, 0)
	gl.BlitFramebuffer(0, 0, int32(tg.w), int32(tg.h), 0, 0, int32(r.screenW), int32(r.screenH), gl.COLOR_BUFFER_BIT, gl.LINEAR)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	return glgl.Err()
}

// Delete releases the programs, meshes and textures owned by the renderer.
// Render targets are owned by their feedback loop.
func (r *GLRenderer) Delete() {
	for _, prog := range r.programs {
		prog.Delete()
	}
	for _, m := range r.meshes {
		gl.DeleteBuffers(int32(len(m.vbos)), &m.vbos[0])
		gl.DeleteVertexArrays(1, &m.vao)
	}
	for _, tex := range r.textures {
		gl.DeleteTextures(1, &tex)
	}
	clear(r.programs)
	clear(r.meshes)
	clear(r.textures)
}

func ui(cfg scene.Config, ucfg UIConfig) error {
	window, term, err := startGLFW(ucfg.Width, ucfg.Height, ucfg.Title)
	if err != nil {
		return err
	}
	defer term()
	fbw, fbh := window.GetFramebufferSize()
	cfg.Width, cfg.Height = fbw, fbh
	r := NewGLRenderer(fbw, fbh)
	defer r.Delete()
	s, err := scene.New(r, cfg)
	if err != nil {
		return err
	}
	log := gnode.Logger()
	log.Info("OpenGL window ready", slog.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		slog.Int("width", fbw), slog.Int("height", fbh))
	if ucfg.Panel != nil {
		s.Store.SetEditor(ucfg.Panel)
	}

	// Callbacks run inside PollEvents on this goroutine.
	var resize [2]int
	window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		resize = [2]int{width, height}
	})
	window.SetCursorPosCallback(func(w *glfw.Window, xpos, ypos float64) {
		// Cursor positions are in screen coordinates which differ from
		// framebuffer pixels on high DPI displays.
		ww, wh := w.GetSize()
		fw, fh := s.Loop().Size()
		if ww == 0 || wh == 0 {
			return
		}
		s.PointerMove(float32(xpos)*float32(fw)/float32(ww), float32(ypos)*float32(fh)/float32(wh))
	})
	if ucfg.DropSlot != "" {
		window.SetDropCallback(func(w *glfw.Window, names []string) {
			for _, name := range names {
				if _, err := LoadTexture(r, ucfg.DropSlot, name); err != nil {
					log.Warn("dropped file ignored", slog.String("err", err.Error()))
					continue
				}
				log.Info("texture replaced", slog.String("slot", ucfg.DropSlot), slog.String("path", name))
				break
			}
		})
	}

	ctx := ucfg.Context
	previousTime := glfw.GetTime()
	for !window.ShouldClose() {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		// Minimized windows report a zero sized framebuffer.
		if resize[0] > 0 && resize[1] > 0 {
			err = s.Resize(resize[0], resize[1])
			if err != nil {
				return err
			}
			r.SetScreenSize(resize[0], resize[1])
			resize = [2]int{}
		}
		currentTime := glfw.GetTime()
		elapsedTime := float32(currentTime - previousTime)
		previousTime = currentTime
		err = s.Frame(elapsedTime)
		if err != nil {
			return err
		}
		if ucfg.Panel != nil {
			if !ucfg.Panel.Update() {
				return nil
			}
			ucfg.Panel.Draw(nil)
		}
		window.SwapBuffers()
		glfw.PollEvents()
	}
	return nil
}

func startGLFW(width, height int, title string) (window *glfw.Window, term func(), err error) {
	if err := glfw.Init(); err != nil {
		return nil, nil, fmt.Errorf("initializing GLFW: %w", err)
	}
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 6)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.Resizable, glfw.True)

	window, err = glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, nil, fmt.Errorf("creating GLFW window: %w", err)
	}
	window.MakeContextCurrent()
	glfw.SwapInterval(1)

	if err := gl.Init(); err != nil {
		glfw.Terminate()
		return nil, nil, fmt.Errorf("initializing OpenGL: %w", err)
	}
	return window, glfw.Terminate, nil
}
