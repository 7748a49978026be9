package glbuild_test

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/soypat/gnode"
	"github.com/soypat/gnode/glbuild"
	"github.com/soypat/gnode/param"
)

// deformation builds strength*exp(-falloff*(d/radius)^2) over the local position.
func deformation(t *testing.T, bld *gnode.Builder) (gnode.Node, *param.Store) {
	t.Helper()
	store := new(param.Store)
	ns := store.Namespace("letter")
	radius, _ := ns.Scalar("radius", 15, param.Range{})
	strength, _ := ns.Scalar("strength", 4, param.Range{})
	falloff, _ := ns.Scalar("falloff", 10, param.Range{})
	cursor, _ := ns.Declare("cursor", param.Vec3, param.Vec3Value(0, 0, 0), param.Range{})
	d := bld.Div(bld.Distance(bld.PositionLocal(), bld.Param(cursor)), bld.Param(radius))
	g := bld.Exp(bld.Mul(bld.Neg(bld.Param(falloff)), bld.Mul(d, d)))
	return bld.Mul(g, bld.Param(strength)), store
}

func TestSharedNodeDeclaredOnce(t *testing.T) {
	var bld gnode.Builder
	def, _ := deformation(t, &bld)
	offset := bld.Compose(gnode.Vec3, bld.Float(0), bld.Float(0), def)
	color := bld.Compose(gnode.Vec4, bld.Compose(gnode.Vec3, def), bld.Float(1))
	programmer := glbuild.NewDefaultProgrammer()
	for _, stage := range []string{"vertex", "fragment"} {
		var buf bytes.Buffer
		var n int
		var objs []glbuild.ShaderObject
		var err error
		if stage == "vertex" {
			n, objs, err = programmer.WriteGLSLVertex(&buf, &bld, offset)
		} else {
			n, objs, err = programmer.WriteGLSLFragment(&buf, &bld, color)
		}
		if err != nil {
			t.Fatal(stage, err)
		} else if n != buf.Len() {
			t.Fatal("written length mismatch")
		}
		src := buf.String()
		decl := "float n" + strconv.Itoa(def.ID()) + " = "
		if c := strings.Count(src, decl); c != 1 {
			t.Errorf("%s: want one declaration of shared node, got %d\n%s", stage, c, src)
		}
		if len(objs) != 4 {
			t.Errorf("%s: want 4 parameter objects, got %d", stage, len(objs))
		}
		if !strings.Contains(src, "uniform vec3 u_letter_cursor;") {
			t.Errorf("%s: missing cursor uniform\n%s", stage, src)
		}
	}
}

func TestVertexRejectsScreenCoordinate(t *testing.T) {
	var bld gnode.Builder
	offset := bld.Compose(gnode.Vec3, bld.ScreenCoordinate(), bld.Float(0))
	_, _, err := glbuild.NewDefaultProgrammer().WriteGLSLVertex(new(bytes.Buffer), &bld, offset)
	if !errors.Is(err, glbuild.ErrStageInput) {
		t.Fatalf("want stage input error, got %v", err)
	}
}

func TestFragmentTextures(t *testing.T) {
	var bld gnode.Builder
	prev := bld.Sample("prevFrame", bld.UV())
	mask := bld.Sample("letterMask", bld.UV())
	color := bld.Compose(gnode.Vec4, bld.RGB(prev), bld.X(mask))
	var buf bytes.Buffer
	_, objs, err := glbuild.NewDefaultProgrammer().WriteGLSLFragment(&buf, &bld, color)
	if err != nil {
		t.Fatal(err)
	}
	units := map[string]int{}
	for _, obj := range objs {
		if obj.Kind == glbuild.ObjectTexture {
			units[obj.Slot] = obj.Binding
		}
	}
	if units["prevFrame"] != 0 || units["letterMask"] != 1 {
		t.Errorf("unexpected texture units %v", units)
	}
	src := buf.String()
	for _, want := range []string{"uniform sampler2D t_prevFrame;", "texture(t_letterMask, vUV)"} {
		if !strings.Contains(src, want) {
			t.Errorf("missing %q in\n%s", want, src)
		}
	}
}

func TestHelperFunctionsIncludedOnDemand(t *testing.T) {
	var bld gnode.Builder
	plain := bld.Compose(gnode.Vec4, bld.UV(), bld.Float(0), bld.Float(1))
	hashed := bld.Compose(gnode.Vec4, bld.Compose(gnode.Vec3, bld.Hash(bld.UV())), bld.Float(1))
	p := glbuild.NewDefaultProgrammer()
	var buf bytes.Buffer
	p.WriteGLSLFragment(&buf, &bld, plain)
	if strings.Contains(buf.String(), "gnodeHash12") {
		t.Error("unused hash function emitted")
	}
	buf.Reset()
	p.WriteGLSLFragment(&buf, &bld, hashed)
	if strings.Count(buf.String(), "float gnodeHash12(vec2 p)") != 1 {
		t.Errorf("want hash definition once:\n%s", buf.String())
	}
}

func TestWGSL(t *testing.T) {
	var bld gnode.Builder
	def, _ := deformation(t, &bld)
	offset := bld.Compose(gnode.Vec3, bld.Float(0), bld.Float(0), def)
	color := bld.Compose(gnode.Vec4, bld.Compose(gnode.Vec3, def), bld.Float(1))
	var buf bytes.Buffer
	_, objs, err := glbuild.NewDefaultProgrammer().WriteWGSL(&buf, &bld, color, offset)
	if err != nil {
		t.Fatal(err)
	}
	src := buf.String()
	for _, want := range []string{"@vertex", "@fragment", "fn vs_main", "fn fs_main", "params.u_letter_cursor.xyz", "struct Params"} {
		if !strings.Contains(src, want) {
			t.Errorf("missing %q in\n%s", want, src)
		}
	}
	params := bld.Parameters()
	for _, obj := range objs {
		for i := range params {
			if obj.Param == params[i] && obj.Binding != 16*i {
				t.Errorf("want %s at offset %d, got %d", obj.Name, 16*i, obj.Binding)
			}
		}
	}
	spirv, err := glbuild.CompileWGSL(src)
	if err != nil {
		if strings.Contains(err.Error(), "not yet implemented") || strings.Contains(err.Error(), "not supported") {
			t.Skipf("naga feature not yet implemented: %v", err)
		}
		t.Fatalf("compiling generated WGSL: %v\n%s", err, src)
	}
	if len(spirv) == 0 || spirv[0] != 0x07230203 {
		t.Error("bad SPIR-V magic number")
	}
}

func TestWGSLMod(t *testing.T) {
	var bld gnode.Builder
	grid := bld.Mod(bld.Mul(bld.UV(), bld.Float(100)), bld.Float(1))
	color := bld.Compose(gnode.Vec4, grid, bld.Float(0), bld.Float(1))
	var buf bytes.Buffer
	_, _, err := glbuild.NewDefaultProgrammer().WriteWGSL(&buf, &bld, color, gnode.Node{})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "%") {
		t.Error("WGSL remainder operator has truncating semantics and must not be used")
	}
}

func TestKage(t *testing.T) {
	var bld gnode.Builder
	store := new(param.Store)
	count, _ := store.Namespace("halftone0").Scalar("count", 100, param.Range{})
	grid := bld.Mul(bld.Div(bld.ScreenCoordinate(), bld.Swizzle(bld.ScreenSize(), "yy")), bld.Param(count))
	mask := bld.Step(bld.Float(0.4), bld.Length(bld.Sub(bld.Fract(grid), bld.Float(0.5))))
	noise := bld.Sample("noise", bld.UV())
	color := bld.Compose(gnode.Vec4, bld.RGB(noise), mask)
	var buf bytes.Buffer
	_, objs, err := glbuild.NewDefaultProgrammer().WriteKage(&buf, &bld, color)
	if err != nil {
		t.Fatal(err)
	}
	src := buf.String()
	for _, want := range []string{"//kage:unit pixels", "package main", "var U_halftone0_count float", "func Fragment(", "Resolution.y-dstPos.y", "gnodeSample0(", "imageSrc0At("} {
		if !strings.Contains(src, want) {
			t.Errorf("missing %q in\n%s", want, src)
		}
	}
	if len(objs) != 2 {
		t.Errorf("want 2 objects, got %d", len(objs))
	}
}

func TestComputeRejectsTextures(t *testing.T) {
	var bld gnode.Builder
	root := bld.Sample("noise", bld.UV())
	_, _, err := glbuild.NewDefaultProgrammer().WriteComputeGLSL(new(bytes.Buffer), &bld, root)
	if err == nil {
		t.Fatal("expected error for texture sampling in compute shader")
	}
}

func TestAppendFloat(t *testing.T) {
	tests := []struct {
		v    float32
		want string
	}{
		{1, "1.0"},
		{0.5, "0.5"},
		{-0.25, "-0.25"},
		{200, "200.0"},
	}
	for _, test := range tests {
		got := string(glbuild.AppendFloat(nil, '-', '.', test.v))
		if got != test.want {
			t.Errorf("AppendFloat(%v): want %q, got %q", test.v, test.want, got)
		}
	}
}
