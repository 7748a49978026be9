// Package background implements a time driven glitch grain pattern with an
// optional feedback trail fed by the previous frame.
package background

import (
	"errors"
	"fmt"

	"github.com/soypat/gnode"
	"github.com/soypat/gnode/forge/cursor"
	"github.com/soypat/gnode/param"
)

// ErrDivergentDecay is returned when decay is not in [0, 1). A decay of 1 or
// more makes the feedback series saturate instead of converging.
var ErrDivergentDecay = errors.New("background: decay must be in [0, 1)")

// Default texture slots.
const (
	NoiseSlot     = "noise"
	PrevFrameSlot = "prevFrame"
)

// Config holds initial parameter values and texture slots of the background.
type Config struct {
	Speed         float32
	UVScale       float32
	StripeCount   float32
	Decay         float32
	NoiseScale    float32
	NoiseStrength float32
	NoiseBalance  float32

	// NoiseSlot is the slot of the fog noise texture. If empty a neutral 0.5
	// noise value is used instead of sampling.
	NoiseSlot string
	// PrevFrameSlot is the slot the previous frame is bound to when feedback is enabled.
	PrevFrameSlot string
	// Grain overrides the hash grain term. It must return a float node.
	Grain func(bld *gnode.Builder) gnode.Node
}

// DefaultConfig returns the default background configuration.
func DefaultConfig() Config {
	return Config{
		Speed:         1,
		UVScale:       200,
		StripeCount:   100,
		Decay:         0.96,
		NoiseScale:    0.5,
		NoiseStrength: 0,
		NoiseBalance:  0.25,
		NoiseSlot:     NoiseSlot,
		PrevFrameSlot: PrevFrameSlot,
	}
}

// Background is the background effect. Build produces the graph without the
// feedback term; [Background.Feedback] returns the effect with it.
type Background struct {
	Speed         *param.Parameter
	UVScale       *param.Parameter
	StripeCount   *param.Parameter
	Decay         *param.Parameter
	NoiseScale    *param.Parameter
	NoiseStrength *param.Parameter
	NoiseBalance  *param.Parameter

	deformation *cursor.Deformation
	noiseSlot   string
	prevSlot    string
	grain       func(bld *gnode.Builder) gnode.Node
}

func validateDecay(v param.Value) error {
	if v[0] < 0 || v[0] >= 1 {
		return fmt.Errorf("%w: got %g", ErrDivergentDecay, v[0])
	}
	return nil
}

// New declares the background parameters in ns. def provides the deformation added
// to the feedback trail and may be nil to omit it.
func New(ns param.Namespace, def *cursor.Deformation, cfg Config) (*Background, error) {
	if cfg.PrevFrameSlot == "" {
		cfg.PrevFrameSlot = PrevFrameSlot
	}
	bg := &Background{
		deformation: def,
		noiseSlot:   cfg.NoiseSlot,
		prevSlot:    cfg.PrevFrameSlot,
		grain:       cfg.Grain,
	}
	var errs []error
	scalar := func(name string, v float32, rng param.Range, opts ...param.Option) *param.Parameter {
		p, err := ns.Scalar(name, v, rng, opts...)
		errs = append(errs, err)
		return p
	}
	bg.Speed = scalar("speed", cfg.Speed, param.Range{Min: 0, Max: 10, Step: 0.001})
	bg.UVScale = scalar("uvScale", cfg.UVScale, param.Range{Min: 1, Max: 200, Step: 1})
	bg.StripeCount = scalar("stripeCount", cfg.StripeCount, param.Range{Min: 1, Max: 200, Step: 1})
	bg.Decay = scalar("decay", cfg.Decay, param.Range{Min: 0.5, Max: 0.99, Step: 0.01}, param.WithValidator(validateDecay))
	bg.NoiseScale = scalar("noiseScale", cfg.NoiseScale, param.Range{Min: 0, Max: 10, Step: 0.1})
	bg.NoiseStrength = scalar("noiseStrength", cfg.NoiseStrength, param.Range{Min: 0, Max: 1, Step: 0.01}, param.WithLabel("noise opacity"))
	bg.NoiseBalance = scalar("noiseBalance", cfg.NoiseBalance, param.Range{Min: -1, Max: 1, Step: 0.01})
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return bg, nil
}

// Build implements [gnode.Effect] without the feedback term.
func (bg *Background) Build(bld *gnode.Builder) (gnode.EffectOutput, error) {
	return bg.build(bld, false)
}

// Feedback returns the background effect with the feedback term which samples
// the previous frame at the fragment's screen position.
func (bg *Background) Feedback() gnode.Effect { return feedbackEffect{bg} }

type feedbackEffect struct{ bg *Background }

func (f feedbackEffect) Build(bld *gnode.Builder) (gnode.EffectOutput, error) {
	return f.bg.build(bld, true)
}

// Grain returns the float grain term: a hash of the striped, time scrolled UV scaled by 0.08.
func (bg *Background) Grain(bld *gnode.Builder) gnode.Node {
	if bg.grain != nil {
		return bg.grain(bld)
	}
	t := bld.Mul(bld.Time(), bld.Param(bg.Speed))
	suv := bld.Mul(bld.UV(), bld.Param(bg.UVScale))
	snapped := bld.Floor(bld.Mul(t, bld.Float(10)))
	stripe := bld.Floor(bld.Mul(bld.Y(suv), bld.Param(bg.StripeCount)))
	glitched := bld.Compose(gnode.Vec2, bld.Add(bld.X(suv), bld.Add(stripe, snapped)), bld.Y(suv))
	return bld.Mul(bld.Hash(bld.Add(glitched, t)), bld.Float(0.08))
}

// Mask returns the noise mask mix(1, n01, noiseStrength) where n01 is the
// balanced fog noise remapped towards [0.5, 1].
func (bg *Background) Mask(bld *gnode.Builder) gnode.Node {
	var noise gnode.Node
	if bg.noiseSlot == "" {
		noise = bld.Float(0.5)
	} else {
		noise = bld.X(bld.Sample(bg.noiseSlot, bld.Mul(bld.UV(), bld.Param(bg.NoiseScale))))
	}
	half := bld.Float(0.5)
	n01 := bld.Add(bld.Mul(bld.Add(noise, bld.Param(bg.NoiseBalance)), half), half)
	return bld.Mix(bld.Float(1), n01, bld.Param(bg.NoiseStrength))
}

func (bg *Background) build(bld *gnode.Builder, feedback bool) (gnode.EffectOutput, error) {
	base := bld.Compose(gnode.Vec3, bld.Mul(bg.Grain(bld), bg.Mask(bld)))
	if feedback {
		screenUV := bld.Div(bld.ScreenCoordinate(), bld.ScreenSize())
		prev := bld.RGB(bld.Sample(bg.prevSlot, screenUV))
		trail := bld.Mul(prev, bld.Param(bg.Decay))
		if bg.deformation != nil {
			trail = bld.Add(trail, bld.Mul(bg.deformation.Node(bld), bld.Float(100)))
		}
		base = bld.Add(base, trail)
	}
	out := gnode.EffectOutput{Color: bld.Compose(gnode.Vec4, base, bld.Float(1))}
	return out, bld.Err()
}
