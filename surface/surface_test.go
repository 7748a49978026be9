package surface_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/soypat/gnode"
	"github.com/soypat/gnode/surface"
)

func TestNewPlane(t *testing.T) {
	g := surface.NewPlane(25, 25, 64, 64)
	if g.NumVertices() != 65*65 {
		t.Fatalf("want %d vertices, got %d", 65*65, g.NumVertices())
	}
	if g.NumTriangles() != 2*64*64 {
		t.Fatalf("want %d triangles, got %d", 2*64*64, g.NumTriangles())
	}
	first, last := g.Positions[0], g.Positions[len(g.Positions)-1]
	if first.X != -12.5 || first.Y != 12.5 || last.X != 12.5 || last.Y != -12.5 {
		t.Errorf("unexpected plane extents %v %v", first, last)
	}
	if uv := g.UVs[0]; uv.X != 0 || uv.Y != 1 {
		t.Errorf("top left uv should be (0,1), got %v", uv)
	}
	if uv := g.UVs[len(g.UVs)-1]; uv.X != 1 || uv.Y != 0 {
		t.Errorf("bottom right uv should be (1,0), got %v", uv)
	}
	for i := 0; i < len(g.Indices); i += 3 {
		a, b, c := g.Positions[g.Indices[i]], g.Positions[g.Indices[i+1]], g.Positions[g.Indices[i+2]]
		// z component of (b-a)x(c-a) is positive for counter-clockwise triangles facing +Z.
		cross := (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
		if cross <= 0 {
			t.Fatalf("triangle %d not counter-clockwise", i/3)
		}
	}
}

func TestBind(t *testing.T) {
	var bld gnode.Builder
	d := bld.Exp(bld.Neg(bld.Length(bld.PositionLocal())))
	out := gnode.EffectOutput{
		Color:          bld.Compose(gnode.Vec4, bld.Compose(gnode.Vec3, d), bld.Float(1)),
		PositionOffset: bld.Compose(gnode.Vec3, bld.Float(0), bld.Float(0), d),
	}
	s := surface.New("letter", surface.NewPlane(2, 2, 1, 1), surface.Material{Transparent: true})
	if s.Binding() != nil {
		t.Fatal("new surface should be unbound")
	}
	err := s.Bind(&bld, out)
	if err != nil {
		t.Fatal(err)
	}
	b := s.Binding()
	if b.Vertex == nil || b.Fragment == nil {
		t.Fatal("missing stage programs")
	}
	if !strings.Contains(b.VertexGLSL, "gl_Position") || !strings.Contains(b.FragmentGLSL, "fragColor =") {
		t.Error("unexpected GLSL output")
	}
	wgsl, _, err := b.WGSL()
	if err != nil || !strings.Contains(wgsl, "fn vs_main") {
		t.Errorf("WGSL emission failed: %v", err)
	}
	kage, _, err := b.Kage()
	if err != nil || !strings.Contains(kage, "func Fragment(") {
		t.Errorf("Kage emission failed: %v", err)
	}
}

func TestBindErrors(t *testing.T) {
	var bld gnode.Builder
	color := bld.Compose(gnode.Vec4, bld.UV(), bld.Float(0), bld.Float(1))
	s := surface.New("bg", surface.NewPlane(50, 50, 1, 1), surface.Material{})
	if err := s.Bind(&bld, gnode.EffectOutput{Color: color}); err != nil {
		t.Fatal(err)
	}
	good := s.Binding()

	err := s.Bind(&bld, gnode.EffectOutput{Color: bld.UV()})
	if !errors.Is(err, gnode.ErrShapeMismatch) {
		t.Errorf("want shape mismatch for vec2 color, got %v", err)
	}
	err = s.Bind(&bld, gnode.EffectOutput{Color: color, PositionOffset: bld.Float(1)})
	if !errors.Is(err, gnode.ErrShapeMismatch) {
		t.Errorf("want shape mismatch for float offset, got %v", err)
	}
	offset := bld.Compose(gnode.Vec3, bld.ScreenCoordinate(), bld.Float(0))
	err = s.Bind(&bld, gnode.EffectOutput{Color: color, PositionOffset: offset})
	if !errors.Is(err, surface.ErrStageInput) {
		t.Errorf("want stage input error, got %v", err)
	}
	var other gnode.Builder
	err = s.Bind(&other, gnode.EffectOutput{Color: color})
	if !errors.Is(err, gnode.ErrForeignNode) {
		t.Errorf("want foreign node error, got %v", err)
	}
	if s.Binding() != good {
		t.Error("failed bind replaced previous binding")
	}
}

func TestBindRejectsAccumulatedErrors(t *testing.T) {
	bld := gnode.Builder{NoShapePanic: true}
	bad := bld.Dot(bld.Float(1), bld.Vec3(1, 2, 3))
	color := bld.Compose(gnode.Vec4, bld.UV(), bld.Float(0), bld.Float(1))
	_ = bad
	s := surface.New("bg", surface.NewPlane(1, 1, 1, 1), surface.Material{})
	err := s.Bind(&bld, gnode.EffectOutput{Color: color})
	if !errors.Is(err, gnode.ErrShapeMismatch) {
		t.Fatalf("want accumulated shape mismatch, got %v", err)
	}
}
