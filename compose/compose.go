// Package compose combines effect outputs into the final graph of a surface.
// All functions only build graph nodes; nothing is evaluated.
package compose

import (
	"fmt"

	"github.com/soypat/gnode"
)

// Config describes a composition.
type Config struct {
	// Base is the output the layers are composited onto. Its position offset is
	// passed through unchanged.
	Base gnode.EffectOutput
	// Layers are vec4 overlays whose alpha is the blend weight. They are
	// composited in order so later layers end up on top.
	Layers []gnode.Node
	// AlphaMask is the texture slot whose red channel multiplies the final
	// alpha. Empty means no clipping.
	AlphaMask string
}

// Compose alpha composites cfg.Layers over cfg.Base in order and clips the
// result's alpha by the alpha mask texture.
func Compose(bld *gnode.Builder, cfg Config) (gnode.EffectOutput, error) {
	color := cfg.Base.Color
	if !color.Valid() {
		return gnode.EffectOutput{}, fmt.Errorf("compose: invalid base color: %w", bld.Err())
	}
	for _, layer := range cfg.Layers {
		color = bld.AlphaOver(color, layer)
	}
	if cfg.AlphaMask != "" {
		mask := bld.X(bld.Sample(cfg.AlphaMask, bld.UV()))
		color = bld.Compose(gnode.Vec4, bld.RGB(color), bld.Mul(bld.W(color), mask))
	}
	out := gnode.EffectOutput{Color: color, PositionOffset: cfg.Base.PositionOffset}
	return out, bld.Err()
}

// Additive returns a + b.
func Additive(bld *gnode.Builder, a, b gnode.Node) gnode.Node {
	return bld.Add(a, b)
}

// BlendByMask linearly blends from under to over by mask: mix(under, over, mask).
func BlendByMask(bld *gnode.Builder, under, over, mask gnode.Node) gnode.Node {
	return bld.Mix(under, over, mask)
}
