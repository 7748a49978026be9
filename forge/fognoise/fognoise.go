// Package fognoise generates fog noise textures from a fractal value noise graph.
package fognoise

import (
	"errors"
	"image"

	"github.com/soypat/geometry/ms2"
	"github.com/soypat/gnode"
	"github.com/soypat/gnode/gleval"
)

// Config configures the noise. Frequencies are in cells per texture.
type Config struct {
	Size       int
	Scale      float32
	Octaves    int
	Gain       float32
	Lacunarity float32
	// Seed offsets the sampled domain.
	Seed float32
}

// DefaultConfig returns a soft, large scale fog.
func DefaultConfig() Config {
	return Config{
		Size:       256,
		Scale:      6,
		Octaves:    5,
		Gain:       0.5,
		Lacunarity: 2,
	}
}

// ValueNoise returns smoothly interpolated hash values on the integer lattice of
// the vec2 node p. The result is a float in [0,1).
func ValueNoise(bld *gnode.Builder, p gnode.Node) gnode.Node {
	i := bld.Floor(p)
	f := bld.Fract(p)
	// Hermite smoothing f*f*(3-2f).
	u := bld.Mul(bld.Mul(f, f), bld.Sub(bld.Float(3), bld.Mul(bld.Float(2), f)))
	a := bld.Hash(i)
	b := bld.Hash(bld.Add(i, bld.Vec2(1, 0)))
	c := bld.Hash(bld.Add(i, bld.Vec2(0, 1)))
	d := bld.Hash(bld.Add(i, bld.Vec2(1, 1)))
	ux := bld.X(u)
	return bld.Mix(bld.Mix(a, b, ux), bld.Mix(c, d, ux), bld.Y(u))
}

// FBM returns cfg.Octaves of value noise over uv summed with geometrically
// decreasing amplitude and normalized to [0,1).
func FBM(bld *gnode.Builder, uv gnode.Node, cfg Config) gnode.Node {
	p := bld.Add(bld.Mul(uv, bld.Float(cfg.Scale)), bld.Vec2(cfg.Seed, cfg.Seed*1.618))
	var sum gnode.Node
	amp, total := float32(1), float32(0)
	for o := 0; o < cfg.Octaves; o++ {
		n := bld.Mul(ValueNoise(bld, p), bld.Float(amp))
		if sum.Valid() {
			sum = bld.Add(sum, n)
		} else {
			sum = n
		}
		total += amp
		amp *= cfg.Gain
		p = bld.Mul(p, bld.Float(cfg.Lacunarity))
	}
	return bld.Div(sum, bld.Float(total))
}

// Render evaluates the noise for every texel, one row per evaluation.
// The image's top row corresponds to v=1.
func Render(cfg Config) (*image.Gray, error) {
	if cfg.Size <= 0 || cfg.Octaves < 1 {
		return nil, errors.New("fognoise: size and octave count must be positive")
	}
	var bld gnode.Builder
	prog, err := gleval.Compile(&bld, FBM(&bld, bld.UV(), cfg))
	if err != nil {
		return nil, err
	}
	n := cfg.Size
	img := image.NewGray(image.Rect(0, 0, n, n))
	uv := make([]ms2.Vec, n)
	out := make([][4]float32, n)
	for y := 0; y < n; y++ {
		v := 1 - (float32(y)+0.5)/float32(n)
		for x := range uv {
			uv[x] = ms2.Vec{X: (float32(x) + 0.5) / float32(n), Y: v}
		}
		if err := prog.Evaluate(gleval.Varyings{UV: uv}, gleval.Uniforms{}, out); err != nil {
			return nil, err
		}
		row := img.Pix[y*img.Stride:]
		for x, c := range out {
			row[x] = uint8(min(max(c[0], 0), 1)*255 + 0.5)
		}
	}
	return img, nil
}
