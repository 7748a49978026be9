//go:build tinygo || !cgo

package gleval

import (
	"errors"

	"github.com/soypat/gnode"
)

var errNoCGO = errors.New("GPU evaluation requires CGo and is not supported on TinyGo")

// Init1x1GLFW starts a 1x1 sized GLFW so that user can start working with GPU.
func Init1x1GLFW() (terminate func(), err error) {
	return nil, errNoCGO
}

// ComputeProgram evaluates graph roots in an OpenGL compute shader.
type ComputeProgram struct{}

// NewComputeProgram compiles roots into a compute shader program.
func NewComputeProgram(cfg ComputeConfig, bld *gnode.Builder, roots ...gnode.Node) (*ComputeProgram, error) {
	return nil, errNoCGO
}

func (cp *ComputeProgram) Uses(in gnode.Input) bool { return false }

func (cp *ComputeProgram) Delete() {}

func (cp *ComputeProgram) Evaluate(v Varyings, u Uniforms, dst ...[][4]float32) error {
	return errNoCGO
}
