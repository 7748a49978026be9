//go:build !tinygo && cgo

package gleval_test

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"testing"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/gnode"
	"github.com/soypat/gnode/forge/cursor"
	"github.com/soypat/gnode/gleval"
	"github.com/soypat/gnode/param"
)

// OpenGL calls must happen on the thread owning the context, so GPU checks run
// in TestMain before the regular tests.
func TestMain(m *testing.M) {
	runtime.LockOSThread()
	var exit int
	err := testComputeGPU()
	if err != nil {
		exit = 1
		log.Println(err)
	}
	runtime.UnlockOSThread()
	os.Exit(m.Run() | exit)
}

func testComputeGPU() error {
	term, err := gleval.Init1x1GLFW()
	if err != nil {
		log.Println("skipping GPU evaluation checks:", err)
		return nil
	}
	defer term()
	return testComputeDeformation()
}

// testComputeDeformation checks the compute shader against the CPU program on
// the letter's vertex displacement.
func testComputeDeformation() error {
	store := new(param.Store)
	pos, err := cursor.DeclareCursor(store)
	if err != nil {
		return err
	}
	def, err := cursor.New(store.Namespace("letter"), pos, cursor.LetterConfig())
	if err != nil {
		return err
	}
	pos.Set(param.Vec3Value(2, -3, 0))
	var bld gnode.Builder
	out, err := def.Build(&bld)
	if err != nil {
		return err
	}
	cpu, err := gleval.Compile(&bld, out.PositionOffset)
	if err != nil {
		return err
	}
	gpu, err := gleval.NewComputeProgram(gleval.ComputeConfig{}, &bld, out.PositionOffset)
	if err != nil {
		return err
	}
	defer gpu.Delete()
	if !gpu.Uses(gnode.InputPosition) || gpu.Uses(gnode.InputScreenCoord) {
		return fmt.Errorf("compute program inputs: position=%v screen=%v", gpu.Uses(gnode.InputPosition), gpu.Uses(gnode.InputScreenCoord))
	}

	// Not a multiple of the work group size.
	const n = 1000
	v := gleval.Varyings{
		Position: make([]ms3.Vec, n),
		UV:       make([]ms2.Vec, n),
		Normal:   make([]ms3.Vec, n),
	}
	for i := range n {
		v.Position[i] = ms3.Vec{X: float32(i%40) - 20, Y: float32(i/40) - 12}
		v.UV[i] = ms2.Vec{X: float32(i%40) / 40, Y: float32(i/40) / 25}
		v.Normal[i] = ms3.Vec{Z: 1}
	}
	want := make([][4]float32, n)
	got := make([][4]float32, n)
	for _, strength := range []float32{4, 0.5} {
		def.Strength.SetScalar(strength)
		if err := cpu.Evaluate(v, gleval.Uniforms{}, want); err != nil {
			return err
		}
		if err := gpu.Evaluate(v, gleval.Uniforms{}, got); err != nil {
			return err
		}
		for i := range want {
			for k := range 3 {
				if math32.Abs(got[i][k]-want[i][k]) > 1e-4 {
					return fmt.Errorf("strength %g vertex %d (%v): gpu %v, cpu %v", strength, i, v.Position[i], got[i], want[i])
				}
			}
		}
	}
	if err := gpu.Evaluate(v, gleval.Uniforms{}, got[:1], got[1:]); err == nil {
		return fmt.Errorf("expected destination count error")
	}
	return nil
}
