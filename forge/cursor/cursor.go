// Package cursor implements a gaussian bump displacement centered at a world space cursor point.
package cursor

import (
	"errors"

	"github.com/soypat/gnode"
	"github.com/soypat/gnode/param"
)

var (
	errNonPositiveRadius  = errors.New("radius must be positive")
	errNegativeStrength   = errors.New("strength must not be negative")
	errNonPositiveFalloff = errors.New("falloff must be positive")
)

// scalarCheck returns a validator rejecting values for which bad reports true.
func scalarCheck(err error, bad func(v float32) bool) param.Option {
	return param.WithValidator(func(v param.Value) error {
		if bad(v[0]) {
			return err
		}
		return nil
	})
}

// Config holds initial values of a deformation's parameters.
type Config struct {
	Radius   float32
	Strength float32
	Falloff  float32
}

// LetterConfig returns the configuration used to displace the letter mesh.
func LetterConfig() Config { return Config{Radius: 15, Strength: 4, Falloff: 10} }

// BackgroundConfig returns the configuration used for the background trail intensity.
func BackgroundConfig() Config { return Config{Radius: 1, Strength: 0.25, Falloff: 8} }

// DeclareCursor declares the world space cursor point shared by all deformations.
func DeclareCursor(store *param.Store) (*param.Parameter, error) {
	return store.Namespace("cursor").Declare("position", param.Vec3, param.Vec3Value(0, 0, 0),
		param.Range{Min: -50, Max: 50, Step: 0.1}, param.WithLabel("cursor"))
}

// Deformation computes strength*exp(-falloff*(distance(positionLocal, cursor)/radius)^2).
type Deformation struct {
	Cursor   *param.Parameter
	Radius   *param.Parameter
	Strength *param.Parameter
	Falloff  *param.Parameter
}

// New declares the radius, strength and falloff parameters of a deformation in ns.
func New(ns param.Namespace, cursorPos *param.Parameter, cfg Config) (*Deformation, error) {
	if cursorPos == nil || cursorPos.Kind() != param.Vec3 {
		return nil, errors.New("cursor must be a vec3 parameter")
	}
	radius, err := ns.Scalar("radius", cfg.Radius, param.Range{Min: 0.01, Max: 50, Step: 0.01},
		scalarCheck(errNonPositiveRadius, func(v float32) bool { return v <= 0 }))
	if err != nil {
		return nil, err
	}
	// A non-negative strength and positive falloff keep the bump non-negative
	// and vanishing with distance.
	strength, err := ns.Scalar("strength", cfg.Strength, param.Range{Min: 0, Max: 30, Step: 0.01},
		scalarCheck(errNegativeStrength, func(v float32) bool { return v < 0 }))
	if err != nil {
		return nil, err
	}
	falloff, err := ns.Scalar("falloff", cfg.Falloff, param.Range{Min: 0.1, Max: 30, Step: 0.1},
		scalarCheck(errNonPositiveFalloff, func(v float32) bool { return v <= 0 }))
	if err != nil {
		return nil, err
	}
	return &Deformation{Cursor: cursorPos, Radius: radius, Strength: strength, Falloff: falloff}, nil
}

// Node returns the scalar deformation. Calling Node repeatedly on the same
// builder returns the same node.
func (d *Deformation) Node(bld *gnode.Builder) gnode.Node {
	dist := bld.Distance(bld.PositionLocal(), bld.Param(d.Cursor))
	r := bld.Param(d.Radius)
	x := bld.Div(bld.Mul(dist, dist), bld.Mul(r, r))
	g := bld.Exp(bld.Mul(x, bld.Neg(bld.Param(d.Falloff))))
	return bld.Mul(g, bld.Param(d.Strength))
}

// Build implements [gnode.Effect]. The deformation displaces along +Z and is
// also output as a gray color.
func (d *Deformation) Build(bld *gnode.Builder) (gnode.EffectOutput, error) {
	def := d.Node(bld)
	out := gnode.EffectOutput{
		Color:          bld.Compose(gnode.Vec4, bld.Compose(gnode.Vec3, def), bld.Float(1)),
		PositionOffset: bld.Compose(gnode.Vec3, bld.Float(0), bld.Float(0), def),
	}
	return out, bld.Err()
}
