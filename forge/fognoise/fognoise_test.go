package fognoise_test

import (
	"bytes"
	"testing"

	"github.com/soypat/geometry/ms2"
	"github.com/soypat/gnode"
	"github.com/soypat/gnode/forge/fognoise"
	"github.com/soypat/gnode/gleval"
)

func TestRenderDeterministic(t *testing.T) {
	cfg := fognoise.DefaultConfig()
	cfg.Size = 32
	a, err := fognoise.Render(cfg)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := fognoise.Render(cfg)
	if !bytes.Equal(a.Pix, b.Pix) {
		t.Fatal("noise not deterministic")
	}
	lo, hi := uint8(255), uint8(0)
	for _, v := range a.Pix {
		lo, hi = min(lo, v), max(hi, v)
	}
	if hi-lo < 32 {
		t.Errorf("noise too flat: range [%d, %d]", lo, hi)
	}
	cfg.Seed = 17
	c, _ := fognoise.Render(cfg)
	if bytes.Equal(a.Pix, c.Pix) {
		t.Error("seed did not change the noise")
	}
}

func TestValueNoiseLattice(t *testing.T) {
	var bld gnode.Builder
	p := bld.UV()
	noise := fognoise.ValueNoise(&bld, p)
	hash := bld.Hash(bld.Floor(p))
	prog, err := gleval.Compile(&bld, noise, hash)
	if err != nil {
		t.Fatal(err)
	}
	// On lattice points the noise equals the hash of the point.
	uv := []ms2.Vec{{X: 0, Y: 0}, {X: 3, Y: 5}, {X: -2, Y: 7}}
	n := make([][4]float32, len(uv))
	h := make([][4]float32, len(uv))
	if err := prog.Evaluate(gleval.Varyings{UV: uv}, gleval.Uniforms{}, n, h); err != nil {
		t.Fatal(err)
	}
	for i := range uv {
		if d := n[i][0] - h[i][0]; d > 1e-6 || d < -1e-6 {
			t.Errorf("noise at lattice point %v: got %g want %g", uv[i], n[i][0], h[i][0])
		}
		if n[i][0] < 0 || n[i][0] >= 1 {
			t.Errorf("noise out of range: %g", n[i][0])
		}
	}
}

func TestRenderErrors(t *testing.T) {
	cfg := fognoise.DefaultConfig()
	cfg.Octaves = 0
	if _, err := fognoise.Render(cfg); err == nil {
		t.Error("expected error for zero octaves")
	}
}
