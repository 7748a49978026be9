// Package gnodeaux helps getting a gnode scene on screen quickly: texture
// loading, offline PNG rendering, an OpenGL window and a terminal parameter panel.
// Ideally applications implement their own render loop driving [scene.Scene]
// since needs may vary widely.
package gnodeaux

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"time"

	"github.com/soypat/gnode"
	"github.com/soypat/gnode/gleval"
	"github.com/soypat/gnode/glrender"
	"github.com/soypat/gnode/scene"
	"github.com/soypat/gnode/surface"
	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ErrTextureLoadFailed is wrapped by every error returned while loading a texture.
var ErrTextureLoadFailed = errors.New("texture load failed")

// TextureError describes a texture that could not be loaded or uploaded.
type TextureError struct {
	Path string
	Err  error
}

func (e *TextureError) Error() string {
	return "texture " + e.Path + ": " + e.Err.Error()
}

// Unwrap returns both [ErrTextureLoadFailed] and the underlying error.
func (e *TextureError) Unwrap() []error { return []error{ErrTextureLoadFailed, e.Err} }

// Uploader receives decoded textures. [scene.Renderer] implementations are Uploaders.
type Uploader interface {
	UploadTexture(slot string, img image.Image) error
}

// DecodeTexture reads the png, jpeg, gif, bmp or webp image at path.
func DecodeTexture(path string) (image.Image, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, &TextureError{Path: path, Err: err}
	}
	defer fp.Close()
	img, format, err := image.Decode(fp)
	if err != nil {
		return nil, &TextureError{Path: path, Err: err}
	} else if img.Bounds().Empty() {
		return nil, &TextureError{Path: path, Err: errors.New("empty image")}
	}
	gnode.Logger().Debug("texture decoded", slog.String("path", path), slog.String("format", format),
		slog.Int("width", img.Bounds().Dx()), slog.Int("height", img.Bounds().Dy()))
	return img, nil
}

// LoadTexture decodes the image at path and uploads it to slot. Failures are not retried.
func LoadTexture(u Uploader, slot, path string) (image.Image, error) {
	img, err := DecodeTexture(path)
	if err != nil {
		return nil, err
	}
	err = u.UploadTexture(slot, img)
	if err != nil {
		return nil, &TextureError{Path: path, Err: err}
	}
	return img, nil
}

// DecodeTextureOr decodes the image at path and returns fallback when that fails.
// The failure is logged as a warning.
func DecodeTextureOr(path string, fallback image.Image) image.Image {
	img, err := DecodeTexture(path)
	if err != nil {
		gnode.Logger().Warn("using fallback texture", slog.String("path", path), slog.String("err", err.Error()))
		return fallback
	}
	return img
}

// NeutralTexture returns a 1x1 mid gray image. Sampled as noise it leaves the
// fog of the background unchanged.
func NeutralTexture() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 1, 1))
	img.Pix[0] = 128
	return img
}

// FitTexture returns img scaled down with Catmull-Rom filtering so that neither
// side exceeds maxSize. Images already within bounds are returned unchanged.
func FitTexture(img image.Image, maxSize int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSize <= 0 || (w <= maxSize && h <= maxSize) {
		return img
	}
	if w >= h {
		w, h = maxSize, max(1, h*maxSize/w)
	} else {
		w, h = max(1, w*maxSize/h), maxSize
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// RenderConfig configures offline rendering of a scene.
type RenderConfig struct {
	// Frames simulated before the last one is kept. Defaults to 1.
	Frames int
	// FrameTime is the duration of a frame in seconds. Defaults to 1/60.
	FrameTime float32
	// Pointer, when not nil, is called before every frame and returns the pointer
	// position in pixels from the top left corner. ok false leaves the cursor as is.
	Pointer func(frame int) (x, y float32, ok bool)
	// BatchSize is the number of fragments shaded per evaluation. Defaults to 4096.
	BatchSize int
	// GPUVertex evaluates vertex displacement in OpenGL compute shaders instead
	// of on the CPU. It opens a hidden 1x1 GLFW window, so rendering must then
	// happen on the main OS thread.
	GPUVertex bool
	Context   context.Context
}

// RenderImage runs a scene on the software renderer and returns the last presented frame.
func RenderImage(cfg scene.Config, rcfg RenderConfig) (*image.NRGBA, error) {
	if rcfg.Frames <= 0 {
		rcfg.Frames = 1
	}
	if rcfg.FrameTime <= 0 {
		rcfg.FrameTime = 1. / 60
	}
	if rcfg.BatchSize == 0 {
		rcfg.BatchSize = 4096
	}
	r, err := glrender.NewSoftware(glrender.Camera{}, rcfg.BatchSize)
	if err != nil {
		return nil, err
	}
	if rcfg.GPUVertex {
		terminate, err := gleval.Init1x1GLFW()
		if err != nil {
			return nil, fmt.Errorf("GPU vertex evaluation: %w", err)
		}
		defer terminate()
		programs := make(map[*surface.Binding]*gleval.ComputeProgram)
		defer func() {
			for _, cp := range programs {
				cp.Delete()
			}
		}()
		r.VertexEvaluator = func(b *surface.Binding) (gleval.Evaluator, error) {
			if cp, ok := programs[b]; ok {
				return cp, nil
			}
			cp, err := gleval.NewComputeProgram(gleval.ComputeConfig{}, b.Builder, b.Offset)
			if err != nil {
				return nil, err
			}
			programs[b] = cp
			gnode.Logger().Debug("vertex compute program compiled", slog.Int("nodes", b.Vertex.NumNodes()))
			return cp, nil
		}
	}
	watch := stopwatch()
	s, err := scene.New(r, cfg)
	if err != nil {
		return nil, err
	}
	log := gnode.Logger()
	log.Info("scene built", slog.Duration("elapsed", watch()))
	watch = stopwatch()
	ctx := rcfg.Context
	for i := range rcfg.Frames {
		if ctx != nil {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if rcfg.Pointer != nil {
			if x, y, ok := rcfg.Pointer(i); ok {
				s.PointerMove(x, y)
			}
		}
		if err := s.Frame(rcfg.FrameTime); err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
	}
	elapsed := watch()
	log.Info("frames rendered", slog.Int("frames", rcfg.Frames), slog.Duration("elapsed", elapsed),
		slog.Duration("perFrame", elapsed/time.Duration(rcfg.Frames)))
	return r.Screen().Image(), nil
}

// RenderPNGFile renders a scene offline and saves the last frame to a PNG file with said filename.
func RenderPNGFile(filename string, cfg scene.Config, rcfg RenderConfig) error {
	img, err := RenderImage(cfg, rcfg)
	if err != nil {
		return err
	}
	fp, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer fp.Close()
	err = png.Encode(fp, img)
	if err != nil {
		return err
	}
	return fp.Sync()
}

// UIConfig configures the interactive windows.
type UIConfig struct {
	Width, Height int
	Title         string
	// DropSlot is the texture slot replaced by image files dropped on the window.
	// Empty disables dropping.
	DropSlot string
	// Panel, when not nil, edits the scene's parameters from the terminal. It is
	// updated and drawn once per frame.
	Panel   *Panel
	Context context.Context
}

// UI opens an OpenGL window and runs the scene built from cfg until the window
// is closed or the context is done. It must be called from the main goroutine.
func UI(cfg scene.Config, ucfg UIConfig) error {
	if ucfg.Width <= 0 || ucfg.Height <= 0 {
		ucfg.Width, ucfg.Height = cfg.Width, cfg.Height
	}
	if ucfg.Title == "" {
		ucfg.Title = "gnode"
	}
	return ui(cfg, ucfg)
}

func stopwatch() func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		return time.Since(start)
	}
}
