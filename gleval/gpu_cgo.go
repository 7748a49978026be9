//go:build !tinygo && cgo

package gleval

import (
	"errors"
	"fmt"
	"strings"
	"unsafe"

	"github.com/go-gl/gl/v4.6-core/gl"
	"github.com/soypat/glgl/v4.6-core/glgl"
	"github.com/soypat/gnode"
	"github.com/soypat/gnode/glbuild"
)

// Init1x1GLFW starts a 1x1 sized GLFW so that user can start working with GPU.
// It returns a termination function that should be called when user is done running loads on GPU.
func Init1x1GLFW() (terminate func(), err error) {
	_, terminate, err = glgl.InitWithCurrentWindow33(glgl.WindowConfig{
		Title:   "compute",
		Version: [2]int{4, 6},
		Width:   1,
		Height:  1,
	})
	return terminate, err
}

// ComputeProgram evaluates graph roots in an OpenGL compute shader.
// An OpenGL 4.3+ context must be current on the calling goroutine.
// Texture sampling is not supported.
type ComputeProgram struct {
	prog     glgl.Program
	nroots   int
	invocX   int
	objs     []glbuild.ShaderObject
	inputs   [8]bool
	varyings [3][][4]float32
}

// NewComputeProgram compiles roots into a compute shader program.
func NewComputeProgram(cfg ComputeConfig, bld *gnode.Builder, roots ...gnode.Node) (*ComputeProgram, error) {
	if cfg.InvocX <= 0 {
		cfg.InvocX = 32
	}
	if err := bld.Err(); err != nil {
		return nil, err
	}
	order, err := bld.TopoOrder(roots...)
	if err != nil {
		return nil, err
	}
	programmer := glbuild.NewDefaultProgrammer()
	programmer.SetComputeInvocations(cfg.InvocX, 1, 1)
	var src strings.Builder
	_, objs, err := programmer.WriteComputeGLSL(&src, bld, roots...)
	if err != nil {
		return nil, err
	}
	prog, err := glgl.CompileProgram(glgl.ShaderSource{Compute: src.String() + "\x00"})
	if err != nil {
		return nil, errors.New(src.String() + "\n" + err.Error())
	}
	cp := &ComputeProgram{
		prog:   prog,
		nroots: len(roots),
		invocX: cfg.InvocX,
		objs:   objs,
	}
	for _, n := range order {
		if n.Op() == gnode.OpInput {
			cp.inputs[n.Input()] = true
		}
	}
	return cp, nil
}

// Uses reports whether the program reads the rasterizer input.
func (cp *ComputeProgram) Uses(in gnode.Input) bool {
	return int(in) < len(cp.inputs) && cp.inputs[in]
}

// Delete releases the GPU program.
func (cp *ComputeProgram) Delete() { cp.prog.Delete() }

// Evaluate implements [Evaluator]. Texture samplers in u are ignored.
func (cp *ComputeProgram) Evaluate(v Varyings, u Uniforms, dst ...[][4]float32) (err error) {
	n, err := checkDst(cp.nroots, dst)
	if err != nil {
		return err
	}
	cp.varyings, err = packVaryings(cp.varyings, v, cp.Uses, n, cp.invocX)
	if err != nil {
		return err
	}
	cp.prog.Bind()
	defer cp.prog.Unbind()
	err = cp.setUniforms(u)
	if err != nil {
		return err
	}

	ids := make([]uint32, 0, 3+len(dst))
	defer func() {
		if len(ids) > 0 {
			gl.DeleteBuffers(int32(len(ids)), &ids[0])
		}
	}()
	padded := len(cp.varyings[0])
	for i, buf := range cp.varyings {
		id, err := storageBuffer(uint32(i), buf, padded, gl.STATIC_DRAW)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	for i := range dst {
		id, err := storageBuffer(uint32(3+i), nil, padded, gl.DYNAMIC_READ)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	if err = glgl.Err(); err != nil {
		return err
	}
	gl.DispatchCompute(uint32(padded/cp.invocX), 1, 1)
	gl.MemoryBarrier(gl.SHADER_STORAGE_BARRIER_BIT)
	for i := range dst {
		if err = readStorageBuffer(dst[i], ids[3+i]); err != nil {
			return err
		}
	}
	return glgl.Err()
}

func (cp *ComputeProgram) setUniforms(u Uniforms) error {
	// Frame uniforms are optimized out by the driver when unread.
	if loc, err := cp.prog.UniformLocation("uTime\x00"); err == nil {
		gl.Uniform1f(loc, u.Time)
	}
	if loc, err := cp.prog.UniformLocation("uResolution\x00"); err == nil {
		gl.Uniform2f(loc, u.ScreenSize.X, u.ScreenSize.Y)
	}
	for _, obj := range cp.objs {
		if obj.Kind != glbuild.ObjectParameter {
			continue
		}
		loc, err := cp.prog.UniformLocation(obj.Name + "\x00")
		if err != nil {
			return fmt.Errorf("parameter %s: %w", obj.Param.FullName(), err)
		}
		SetUniform(loc, obj.Shape, obj.Param.Value())
	}
	return nil
}

// SetUniform sets the uniform at loc of the bound program to the leading
// components of v according to shape.
func SetUniform(loc int32, shape gnode.Shape, v [4]float32) {
	switch shape {
	case gnode.Float:
		gl.Uniform1f(loc, v[0])
	case gnode.Vec2:
		gl.Uniform2f(loc, v[0], v[1])
	case gnode.Vec3:
		gl.Uniform3f(loc, v[0], v[1], v[2])
	case gnode.Vec4:
		gl.Uniform4f(loc, v[0], v[1], v[2], v[3])
	}
}

// storageBuffer allocates a shader storage buffer of n vec4 elements bound to
// index base, initialized from data when not nil.
func storageBuffer(base uint32, data [][4]float32, n int, usage uint32) (uint32, error) {
	var id uint32
	gl.GenBuffers(1, &id)
	if id == 0 {
		return 0, glErr(fmt.Sprintf("generating storage buffer %d", base))
	}
	var ptr unsafe.Pointer
	if data != nil {
		ptr = unsafe.Pointer(&data[0])
	}
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, id)
	gl.BufferData(gl.SHADER_STORAGE_BUFFER, n*vec4Size, ptr, usage)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, base, id)
	return id, nil
}

// readStorageBuffer copies the leading len(dst) elements of a storage buffer into dst.
func readStorageBuffer(dst [][4]float32, id uint32) error {
	size := len(dst) * vec4Size
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, id)
	ptr := gl.MapBufferRange(gl.SHADER_STORAGE_BUFFER, 0, size, gl.MAP_READ_BIT)
	if ptr == nil {
		return glErr("mapping output buffer")
	}
	defer gl.UnmapBuffer(gl.SHADER_STORAGE_BUFFER)
	copy(dst, unsafe.Slice((*[4]float32)(ptr), len(dst)))
	return nil
}

const vec4Size = int(unsafe.Sizeof([4]float32{}))

// glErr returns the pending OpenGL error annotated with msg, or msg alone if there is none.
func glErr(msg string) error {
	if err := glgl.Err(); err != nil {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return errors.New(msg)
}
