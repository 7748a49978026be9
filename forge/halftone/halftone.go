// Package halftone implements layered screen space halftone dot grids whose
// density follows the alignment of the surface normal with a direction.
package halftone

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/soypat/geometry/ms3"
	"github.com/soypat/gnode"
	"github.com/soypat/gnode/param"
)

var errZeroDirection = errors.New("halftone: direction must be non-zero")

// LayerConfig holds initial parameter values of a halftone layer.
type LayerConfig struct {
	Count     float32 // Grid cells per screen height.
	Color     param.Value
	Direction ms3.Vec
	// Start and End bound the remapped normal alignment: alignment End maps to 0 and Start to 1.
	Start   float32
	End     float32
	MixLow  float32
	MixHigh float32
	Radius  float32
}

// DefaultLayerConfig returns the configuration of a yellow halftone layer.
func DefaultLayerConfig() LayerConfig {
	return LayerConfig{
		Count:     100,
		Color:     param.Hex(0xffff00),
		Direction: ms3.Vec{X: 0.5, Y: 0.5, Z: 1},
		Start:     0.55,
		End:       0.2,
		MixLow:    0.5,
		MixHigh:   1,
		Radius:    0.8,
	}
}

// Layer is a single halftone grid.
type Layer struct {
	Count     *param.Parameter
	Color     *param.Parameter
	Direction *param.Parameter
	Start     *param.Parameter
	End       *param.Parameter
	MixLow    *param.Parameter
	MixHigh   *param.Parameter
	Radius    *param.Parameter
}

// NewLayer declares a layer's parameters in ns. Start and End must differ, both at
// construction and on every later Set, or a [gnode.ErrDegenerateRemapRange] error is returned.
func NewLayer(ns param.Namespace, cfg LayerConfig) (*Layer, error) {
	if cfg.Start == cfg.End {
		return nil, fmt.Errorf("halftone %s: start and end are both %g: %w", ns.Name(), cfg.Start, gnode.ErrDegenerateRemapRange)
	}
	l := new(Layer)
	distinctFrom := func(other **param.Parameter) param.Option {
		return param.WithValidator(func(v param.Value) error {
			if *other != nil && (*other).Scalar() == v[0] {
				return fmt.Errorf("start and end are both %g: %w", v[0], gnode.ErrDegenerateRemapRange)
			}
			return nil
		})
	}
	var errs []error
	declare := func(name string, kind param.Kind, v param.Value, rng param.Range, opts ...param.Option) *param.Parameter {
		p, err := ns.Declare(name, kind, v, rng, opts...)
		errs = append(errs, err)
		return p
	}
	scalar := param.ScalarValue
	l.Count = declare("count", param.Scalar, scalar(cfg.Count), param.Range{Min: 1, Max: 200, Step: 1})
	l.Color = declare("color", param.Color, cfg.Color, param.Range{Min: 0, Max: 1, Step: 0.01})
	d := cfg.Direction
	l.Direction = declare("direction", param.Vec3, param.Vec3Value(d.X, d.Y, d.Z), param.Range{Min: -1, Max: 1, Step: 0.01},
		param.WithValidator(func(v param.Value) error {
			if v[0] == 0 && v[1] == 0 && v[2] == 0 {
				return errZeroDirection
			}
			return nil
		}))
	l.Start = declare("start", param.Scalar, scalar(cfg.Start), param.Range{Min: -1, Max: 1, Step: 0.01}, distinctFrom(&l.End))
	l.End = declare("end", param.Scalar, scalar(cfg.End), param.Range{Min: -1, Max: 1, Step: 0.01}, distinctFrom(&l.Start))
	l.MixLow = declare("mixLow", param.Scalar, scalar(cfg.MixLow), param.Range{Min: 0, Max: 1, Step: 0.01})
	l.MixHigh = declare("mixHigh", param.Scalar, scalar(cfg.MixHigh), param.Range{Min: 0, Max: 1, Step: 0.01})
	l.Radius = declare("radius", param.Scalar, scalar(cfg.Radius), param.Range{Min: 0, Max: 1, Step: 0.01})
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return l, nil
}

// Grid returns the rotated grid coordinate wrapped to [0,1) per axis.
func (l *Layer) Grid(bld *gnode.Builder) gnode.Node {
	grid := bld.Mul(bld.Div(bld.ScreenCoordinate(), bld.Swizzle(bld.ScreenSize(), "yy")), bld.Param(l.Count))
	return bld.Mod(bld.Rotate(grid, bld.Float(math.Pi/4)), bld.Float(1))
}

// Orientation returns the alignment of the world normal with the layer direction
// remapped from [End, Start] to [0, 1] and clamped.
func (l *Layer) Orientation(bld *gnode.Builder) gnode.Node {
	align := bld.Dot(bld.NormalWorld(), bld.Normalize(bld.Param(l.Direction)))
	return bld.RemapClamp(align, bld.Param(l.End), bld.Param(l.Start), bld.Float(0), bld.Float(1))
}

// Node returns the layer color with its mask in the alpha channel.
func (l *Layer) Node(bld *gnode.Builder) gnode.Node {
	orient := l.Orientation(bld)
	edge := bld.Mul(bld.Mul(orient, bld.Param(l.Radius)), bld.Float(0.5))
	dist := bld.Length(bld.Sub(l.Grid(bld), bld.Float(0.5)))
	mask := bld.Mul(bld.Step(edge, dist), bld.Mix(bld.Param(l.MixLow), bld.Param(l.MixHigh), orient))
	return bld.Compose(gnode.Vec4, bld.Param(l.Color), mask)
}

// Halftone is an ordered list of layers. Later layers composite over earlier ones.
type Halftone struct {
	Layers []*Layer
}

// New declares one layer per configuration in namespaces halftone0, halftone1 and so on.
func New(store *param.Store, cfgs ...LayerConfig) (*Halftone, error) {
	h := new(Halftone)
	for i, cfg := range cfgs {
		l, err := NewLayer(store.Namespace("halftone"+strconv.Itoa(i)), cfg)
		if err != nil {
			return nil, err
		}
		h.Layers = append(h.Layers, l)
	}
	return h, nil
}

// Nodes returns the layer outputs in composition order.
func (h *Halftone) Nodes(bld *gnode.Builder) []gnode.Node {
	nodes := make([]gnode.Node, len(h.Layers))
	for i, l := range h.Layers {
		nodes[i] = l.Node(bld)
	}
	return nodes
}

// Build implements [gnode.Effect] by compositing the layers in order over opaque black.
func (h *Halftone) Build(bld *gnode.Builder) (gnode.EffectOutput, error) {
	acc := bld.Vec4(0, 0, 0, 1)
	for _, layer := range h.Nodes(bld) {
		acc = bld.AlphaOver(acc, layer)
	}
	return gnode.EffectOutput{Color: acc}, bld.Err()
}
