package compose_test

import (
	"testing"

	"github.com/soypat/geometry/ms2"
	"github.com/soypat/gnode"
	"github.com/soypat/gnode/compose"
	"github.com/soypat/gnode/gleval"
)

type constSampler [4]float32

func (c constSampler) Sample(ms2.Vec) [4]float32 { return c }

func eval(t *testing.T, bld *gnode.Builder, root gnode.Node, textures map[string]gleval.Sampler) [4]float32 {
	t.Helper()
	prog, err := gleval.Compile(bld, root)
	if err != nil {
		t.Fatal(err)
	}
	dst := make([][4]float32, 1)
	err = prog.Evaluate(gleval.Varyings{UV: []ms2.Vec{{X: 0.5, Y: 0.5}}}, gleval.Uniforms{Textures: textures}, dst)
	if err != nil {
		t.Fatal(err)
	}
	return dst[0]
}

func TestComposeOrderAndMask(t *testing.T) {
	var bld gnode.Builder
	base := gnode.EffectOutput{
		Color:          bld.Vec4(0, 0, 0, 1),
		PositionOffset: bld.Vec3(0, 0, 1),
	}
	red := bld.Vec4(1, 0, 0, 0.5)
	blue := bld.Vec4(0, 0, 1, 0.5)
	out, err := compose.Compose(&bld, compose.Config{Base: base, Layers: []gnode.Node{red, blue}, AlphaMask: "letter"})
	if err != nil {
		t.Fatal(err)
	}
	if out.PositionOffset != base.PositionOffset {
		t.Error("position offset not passed through")
	}
	got := eval(t, &bld, out.Color, map[string]gleval.Sampler{"letter": constSampler{0.25, 0, 0, 1}})
	want := [4]float32{0.25, 0, 0.5, 0.25}
	if got != want {
		t.Errorf("want %v, got %v", want, got)
	}
	rev, err := compose.Compose(&bld, compose.Config{Base: base, Layers: []gnode.Node{blue, red}})
	if err != nil {
		t.Fatal(err)
	}
	got = eval(t, &bld, rev.Color, nil)
	want = [4]float32{0.5, 0, 0.25, 1}
	if got != want {
		t.Errorf("reversed: want %v, got %v", want, got)
	}
}

func TestCombinators(t *testing.T) {
	var bld gnode.Builder
	a := bld.Vec3(0.25, 0.5, 1)
	b := bld.Vec3(1, 1, 1)
	sum := eval(t, &bld, compose.Additive(&bld, a, b), nil)
	if sum != [4]float32{1.25, 1.5, 2, 0} {
		t.Errorf("additive: got %v", sum)
	}
	blend := eval(t, &bld, compose.BlendByMask(&bld, a, b, bld.Float(0.5)), nil)
	if blend != [4]float32{0.625, 0.75, 1, 0} {
		t.Errorf("blend: got %v", blend)
	}
}

func TestComposeInvalidBase(t *testing.T) {
	bld := gnode.Builder{NoShapePanic: true}
	bad := bld.Add(bld.Vec2(1, 1), bld.Vec3(1, 1, 1))
	_, err := compose.Compose(&bld, compose.Config{Base: gnode.EffectOutput{Color: bad}})
	if err == nil {
		t.Fatal("expected error for invalid base")
	}
}
