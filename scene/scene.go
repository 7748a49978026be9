// Package scene assembles the letter scene: a full screen background with a
// feedback trail and a cursor displaced letter with a halftone overlay.
package scene

import (
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/soypat/gnode"
	"github.com/soypat/gnode/compose"
	"github.com/soypat/gnode/feedback"
	"github.com/soypat/gnode/forge/background"
	"github.com/soypat/gnode/forge/cursor"
	"github.com/soypat/gnode/forge/halftone"
	"github.com/soypat/gnode/glrender"
	"github.com/soypat/gnode/param"
	"github.com/soypat/gnode/surface"
)

// MaskSlot is the texture slot of the letter alpha mask.
const MaskSlot = "letterMask"

// Renderer draws bound surfaces into render targets.
type Renderer interface {
	feedback.Allocator
	// BeginFrame sets the camera and time used by draws until the next call.
	BeginFrame(cam *glrender.Camera, time float32)
	UploadTexture(slot string, img image.Image) error
	Clear(dst feedback.Target, c [4]float32) error
	// Draw draws s into dst with bindings mapping texture slots to render targets.
	Draw(dst feedback.Target, s *surface.Surface, bindings map[string]feedback.Target) error
	// Present shows src on screen.
	Present(src feedback.Target) error
}

// Config configures a [Scene].
type Config struct {
	Width, Height int

	FOV     float32 // Vertical field of view in degrees.
	CameraZ float32

	BackgroundSize float32
	LetterSize     float32
	LetterSegments int

	Background       background.Config
	BackgroundCursor cursor.Config
	LetterCursor     cursor.Config
	Halftone         []halftone.LayerConfig

	// Mask is the letter alpha mask; its red channel clips the letter.
	// A nil mask draws the whole letter plane.
	Mask image.Image
	// Noise is the fog noise texture. A nil noise disables sampling and uses a
	// neutral value instead.
	Noise image.Image

	FeedbackFormat feedback.Format
	ClearColor     [4]float32

	CursorRate      float32
	CursorSmoothing float32
}

// DefaultConfig returns the configuration of the reference scene for a w×h screen.
func DefaultConfig(w, h int) Config {
	return Config{
		Width:            w,
		Height:           h,
		FOV:              75,
		CameraZ:          15,
		BackgroundSize:   50,
		LetterSize:       25,
		LetterSegments:   64,
		Background:       background.DefaultConfig(),
		BackgroundCursor: cursor.BackgroundConfig(),
		LetterCursor:     cursor.LetterConfig(),
		Halftone:         []halftone.LayerConfig{halftone.DefaultLayerConfig()},
		FeedbackFormat:   feedback.FormatRGBA16F,
		ClearColor:       [4]float32{0, 0, 0, 1},
		CursorRate:       100,
		CursorSmoothing:  0.1,
	}
}

// Scene owns the parameter store, the effect modules, the surfaces they are
// bound to and the feedback loop of the background.
//
// The letter is unlit: its base color is opaque black and all shading comes
// from the halftone layers, which already darken faces turned away from their
// light direction. Renderers therefore need no light or material model beyond
// alpha blending.
type Scene struct {
	Store  *param.Store
	Camera glrender.Camera
	Ticker Ticker
	Cursor *CursorTracker

	CursorParam           *param.Parameter
	LetterDeformation     *cursor.Deformation
	BackgroundDeformation *cursor.Deformation
	Background            *background.Background
	Halftone              *halftone.Halftone

	Letter *surface.Surface
	// Two background surfaces so that switching feedback state never rebuilds a graph.
	BackgroundPlain    *surface.Surface
	BackgroundFeedback *surface.Surface

	r        Renderer
	loop     *feedback.Loop
	prevSlot string
	clear    [4]float32
	time     float32
}

// New declares every parameter in a new store, builds and binds the surface
// graphs, uploads textures and allocates the feedback targets.
func New(r Renderer, cfg Config) (*Scene, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, errors.New("scene: size must be positive")
	}
	s := &Scene{
		Store:  new(param.Store),
		Camera: glrender.NewCamera(cfg.FOV, float32(cfg.Width)/float32(cfg.Height), 0.1, 1000, cfg.CameraZ),
		r:      r,
		clear:  cfg.ClearColor,
	}
	if err := s.declare(&cfg); err != nil {
		return nil, err
	}
	if err := s.bind(&cfg); err != nil {
		return nil, err
	}
	var err error
	s.loop, err = feedback.NewLoop(r, cfg.Width, cfg.Height, cfg.FeedbackFormat)
	if err != nil {
		return nil, fmt.Errorf("scene: feedback targets: %w", err)
	}
	s.Cursor = NewCursorTracker(&s.Camera, s.CursorParam, cfg.CursorRate, cfg.CursorSmoothing)
	s.Ticker.RegisterFrameTick(s.Cursor.Tick)
	gnode.Logger().Info("scene ready", slog.Int("width", cfg.Width), slog.Int("height", cfg.Height),
		slog.Int("parameters", len(s.Store.Parameters())), slog.Int("halftoneLayers", len(s.Halftone.Layers)))
	return s, nil
}

func (s *Scene) declare(cfg *Config) (err error) {
	s.CursorParam, err = cursor.DeclareCursor(s.Store)
	if err != nil {
		return err
	}
	s.LetterDeformation, err = cursor.New(s.Store.Namespace("letter"), s.CursorParam, cfg.LetterCursor)
	if err != nil {
		return err
	}
	bgNS := s.Store.Namespace("background")
	s.BackgroundDeformation, err = cursor.New(bgNS, s.CursorParam, cfg.BackgroundCursor)
	if err != nil {
		return err
	}
	if cfg.Noise == nil {
		cfg.Background.NoiseSlot = ""
	} else if cfg.Background.NoiseSlot == "" {
		cfg.Background.NoiseSlot = background.NoiseSlot
	}
	s.Background, err = background.New(bgNS, s.BackgroundDeformation, cfg.Background)
	if err != nil {
		return err
	}
	s.prevSlot = cfg.Background.PrevFrameSlot
	if s.prevSlot == "" {
		s.prevSlot = background.PrevFrameSlot
	}
	s.Halftone, err = halftone.New(s.Store, cfg.Halftone...)
	return err
}

func (s *Scene) bind(cfg *Config) error {
	if cfg.Mask != nil {
		if err := s.r.UploadTexture(MaskSlot, cfg.Mask); err != nil {
			return err
		}
	}
	if cfg.Noise != nil {
		if err := s.r.UploadTexture(cfg.Background.NoiseSlot, cfg.Noise); err != nil {
			return err
		}
	}
	bgGeom := surface.NewPlane(cfg.BackgroundSize, cfg.BackgroundSize, 1, 1)
	s.BackgroundPlain = surface.New("background", bgGeom, surface.Material{})
	s.BackgroundFeedback = surface.New("background feedback", bgGeom, surface.Material{})
	for _, b := range []struct {
		surf   *surface.Surface
		effect gnode.Effect
	}{
		{surf: s.BackgroundPlain, effect: s.Background},
		{surf: s.BackgroundFeedback, effect: s.Background.Feedback()},
	} {
		bld := new(gnode.Builder)
		out, err := b.effect.Build(bld)
		if err != nil {
			return err
		}
		if err := b.surf.Bind(bld, out); err != nil {
			return err
		}
	}

	bld := new(gnode.Builder)
	def, err := s.LetterDeformation.Build(bld)
	if err != nil {
		return err
	}
	ccfg := compose.Config{
		// Unlit base: the letter only shows through its halftone dots.
		Base:   gnode.EffectOutput{Color: bld.Vec4(0, 0, 0, 1), PositionOffset: def.PositionOffset},
		Layers: s.Halftone.Nodes(bld),
	}
	if cfg.Mask != nil {
		ccfg.AlphaMask = MaskSlot
	}
	out, err := compose.Compose(bld, ccfg)
	if err != nil {
		return err
	}
	geom := surface.NewPlane(cfg.LetterSize, cfg.LetterSize, cfg.LetterSegments, cfg.LetterSegments)
	s.Letter = surface.New("letter", geom, surface.Material{Transparent: true})
	return s.Letter.Bind(bld, out)
}

// Loop returns the background feedback loop.
func (s *Scene) Loop() *feedback.Loop { return s.loop }

// Time returns the scene time in seconds.
func (s *Scene) Time() float32 { return s.time }

// Frame advances time by dt seconds, runs the frame ticks and draws one frame:
// the background (with the feedback term once a previous frame exists) and then
// the letter into the loop's write target, which is presented after the swap.
func (s *Scene) Frame(dt float32) error {
	s.time += dt
	s.Ticker.Tick(dt)
	s.r.BeginFrame(&s.Camera, s.time)
	err := s.loop.Frame(func(write, read feedback.Target) error {
		if err := s.r.Clear(write, s.clear); err != nil {
			return err
		}
		bg, bindings := s.BackgroundPlain, map[string]feedback.Target(nil)
		if read != nil {
			bg = s.BackgroundFeedback
			bindings = map[string]feedback.Target{s.prevSlot: read}
		}
		if err := s.r.Draw(write, bg, bindings); err != nil {
			return err
		}
		return s.r.Draw(write, s.Letter, nil)
	})
	if err != nil {
		return err
	}
	return s.r.Present(s.loop.Read())
}

// Resize updates the camera aspect and resets the feedback loop to the new size.
func (s *Scene) Resize(w, h int) error {
	if err := s.loop.Resize(w, h); err != nil {
		return err
	}
	s.Camera.Aspect = float32(w) / float32(h)
	return nil
}

// PointerMove forwards a pointer at pixel (x, y), measured from the top left
// corner of the screen, to the cursor tracker.
func (s *Scene) PointerMove(x, y float32) bool {
	w, h := s.loop.Size()
	return s.Cursor.Move(x/float32(w)*2-1, 1-y/float32(h)*2)
}
