package gleval

import (
	"errors"
	"fmt"

	"github.com/soypat/gnode"
)

// Evaluator evaluates compiled graph roots over a batch of rasterizer inputs.
// Both [Program] and [ComputeProgram] implement Evaluator.
type Evaluator interface {
	Evaluate(v Varyings, u Uniforms, dst ...[][4]float32) error
}

var (
	_ Evaluator = (*Program)(nil)
	_ Evaluator = (*ComputeProgram)(nil)
)

// ComputeConfig configures GPU compute evaluation.
type ComputeConfig struct {
	// InvocX is the local work group size in x. Defaults to 32.
	InvocX int
}

// packVaryings packs the varyings read by a compute program into the three vec4
// buffers expected by [glbuild.Programmer.WriteComputeGLSL]. Buffers are padded
// to a multiple of invocX so that whole work groups read initialized memory.
func packVaryings(dst [3][][4]float32, v Varyings, uses func(gnode.Input) bool, n, invocX int) ([3][][4]float32, error) {
	padded := (n + invocX - 1) / invocX * invocX
	need := func(in gnode.Input, have int) error {
		if uses(in) && have < n {
			return fmt.Errorf("%w: %s has %d elements, want %d", ErrMissingInput, in, have, n)
		}
		return nil
	}
	err := errors.Join(
		need(gnode.InputUV, len(v.UV)),
		need(gnode.InputPosition, len(v.Position)),
		need(gnode.InputNormal, len(v.Normal)),
		need(gnode.InputScreenCoord, len(v.FragCoord)),
	)
	if err != nil {
		return dst, err
	}
	for i := range dst {
		if cap(dst[i]) < padded {
			dst[i] = make([][4]float32, padded)
		}
		dst[i] = dst[i][:padded]
		clear(dst[i])
	}
	a, b, c := dst[0], dst[1], dst[2]
	if uses(gnode.InputPosition) {
		for i, p := range v.Position[:n] {
			a[i][0], a[i][1], a[i][2] = p.X, p.Y, p.Z
		}
	}
	if uses(gnode.InputNormal) {
		for i, nrm := range v.Normal[:n] {
			b[i][0], b[i][1], b[i][2] = nrm.X, nrm.Y, nrm.Z
		}
	}
	if uses(gnode.InputUV) {
		for i, uv := range v.UV[:n] {
			a[i][3], b[i][3] = uv.X, uv.Y
		}
	}
	if uses(gnode.InputScreenCoord) {
		for i, fc := range v.FragCoord[:n] {
			c[i][0], c[i][1] = fc.X, fc.Y
		}
	}
	return dst, nil
}

func checkDst(nroots int, dst [][][4]float32) (int, error) {
	if len(dst) != nroots {
		return 0, fmt.Errorf("want %d destination buffers, got %d", nroots, len(dst))
	}
	n := len(dst[0])
	if n == 0 {
		return 0, errEmptyBuffers
	}
	for _, d := range dst[1:] {
		if len(d) != n {
			return 0, errMismatchBufferLength
		}
	}
	return n, nil
}
