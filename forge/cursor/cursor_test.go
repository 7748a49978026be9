package cursor_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/soypat/geometry/ms3"
	"github.com/soypat/gnode"
	"github.com/soypat/gnode/forge/cursor"
	"github.com/soypat/gnode/gleval"
	"github.com/soypat/gnode/param"
)

func newDeformation(t *testing.T) (*cursor.Deformation, *param.Store) {
	t.Helper()
	store := new(param.Store)
	pos, err := cursor.DeclareCursor(store)
	if err != nil {
		t.Fatal(err)
	}
	def, err := cursor.New(store.Namespace("letter"), pos, cursor.LetterConfig())
	if err != nil {
		t.Fatal(err)
	}
	return def, store
}

func TestDeformationProfile(t *testing.T) {
	def, _ := newDeformation(t)
	def.Cursor.Set(param.Vec3Value(1, -2, 0))
	var bld gnode.Builder
	node := def.Node(&bld)
	if def.Node(&bld) != node {
		t.Fatal("deformation node not shared")
	}
	prog, err := gleval.Compile(&bld, node)
	if err != nil {
		t.Fatal(err)
	}
	positions := []ms3.Vec{{X: 1, Y: -2}, {X: 2, Y: -2}, {X: 6, Y: -2}, {X: 1, Y: 20}, {X: 1e3, Y: 1e3}}
	dst := make([][4]float32, len(positions))
	err = prog.Evaluate(gleval.Varyings{Position: positions}, gleval.Uniforms{}, dst)
	if err != nil {
		t.Fatal(err)
	}
	if dst[0][0] != def.Strength.Scalar() {
		t.Errorf("at distance 0 want strength %v, got %v", def.Strength.Scalar(), dst[0][0])
	}
	for i := 1; i < len(dst); i++ {
		if dst[i][0] < 0 {
			t.Errorf("negative deformation %v", dst[i][0])
		}
		if dst[i][0] >= dst[i-1][0] && dst[i-1][0] != 0 {
			t.Errorf("deformation not decreasing with distance: %v >= %v", dst[i][0], dst[i-1][0])
		}
	}
	want := 4 * math.Exp(-10*(1.0/15)*(1.0/15))
	if math.Abs(float64(dst[1][0])-want) > 1e-5 {
		t.Errorf("at distance 1 want %v, got %v", want, dst[1][0])
	}
	if dst[len(dst)-1][0] != 0 {
		t.Errorf("far away deformation should vanish, got %v", dst[len(dst)-1][0])
	}
}

func TestDeformationBuild(t *testing.T) {
	def, _ := newDeformation(t)
	var bld gnode.Builder
	out, err := def.Build(&bld)
	if err != nil {
		t.Fatal(err)
	}
	if out.Color.Shape() != gnode.Vec4 || out.PositionOffset.Shape() != gnode.Vec3 {
		t.Fatal("bad output shapes")
	}
	if out.PositionOffset.Arg(2) != def.Node(&bld) {
		t.Error("offset should displace along z by the shared deformation")
	}
}

func TestRadiusValidation(t *testing.T) {
	def, _ := newDeformation(t)
	if err := def.Radius.SetScalar(0); err == nil {
		t.Error("expected zero radius to be rejected")
	}
	store := new(param.Store)
	pos, _ := cursor.DeclareCursor(store)
	if _, err := cursor.New(store.Namespace("bad"), pos, cursor.Config{Radius: -1, Strength: 1, Falloff: 1}); err == nil {
		t.Error("expected negative radius to be rejected")
	}
}

func TestShapeValidation(t *testing.T) {
	def, _ := newDeformation(t)
	if err := def.Strength.SetScalar(-4); err == nil {
		t.Error("expected negative strength to be rejected")
	}
	for _, falloff := range []float32{0, -1} {
		if err := def.Falloff.SetScalar(falloff); err == nil {
			t.Errorf("expected falloff %g to be rejected", falloff)
		}
	}
	if def.Strength.Scalar() != 4 || def.Falloff.Scalar() != 10 {
		t.Fatalf("rejected writes changed values: strength %g falloff %g", def.Strength.Scalar(), def.Falloff.Scalar())
	}
	if err := def.Strength.SetScalar(0); err != nil {
		t.Errorf("zero strength disables the bump and should be accepted: %v", err)
	}

	store := new(param.Store)
	pos, _ := cursor.DeclareCursor(store)
	for i, cfg := range []cursor.Config{
		{Radius: 1, Strength: -1, Falloff: 1},
		{Radius: 1, Strength: 1, Falloff: 0},
	} {
		if _, err := cursor.New(store.Namespace(fmt.Sprintf("bad%d", i)), pos, cfg); err == nil {
			t.Errorf("expected config %+v to be rejected", cfg)
		}
	}

	// Accepted values keep the deformation non-negative and vanishing far away.
	def.Strength.SetScalar(30)
	def.Falloff.SetScalar(0.1)
	var bld gnode.Builder
	prog, err := gleval.Compile(&bld, def.Node(&bld))
	if err != nil {
		t.Fatal(err)
	}
	positions := []ms3.Vec{{}, {X: 60}, {X: 1e4}}
	dst := make([][4]float32, len(positions))
	if err := prog.Evaluate(gleval.Varyings{Position: positions}, gleval.Uniforms{}, dst); err != nil {
		t.Fatal(err)
	}
	if dst[0][0] != 30 || dst[1][0] < 0 || dst[1][0] >= dst[0][0] || dst[2][0] != 0 {
		t.Errorf("unexpected profile %v", dst)
	}
}
