// Package gleval evaluates node graphs on the CPU over batches of vertices or fragments,
// and on the GPU through OpenGL compute shaders where CGo is available.
package gleval

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/gnode"
)

var (
	ErrMissingInput   = errors.New("missing rasterizer input")
	ErrMissingTexture = errors.New("texture slot not bound")

	errEmptyBuffers         = errors.New("empty buffers")
	errMismatchBufferLength = errors.New("input and output buffer length mismatch")
)

// Sampler is a texture readable at normalized coordinates. (0,0) is the bottom left texel.
type Sampler interface {
	Sample(uv ms2.Vec) [4]float32
}

// Varyings holds per element rasterizer inputs. Slices not read by a program may be nil.
type Varyings struct {
	UV        []ms2.Vec
	Position  []ms3.Vec // Local space position.
	Normal    []ms3.Vec // World space normal.
	FragCoord []ms2.Vec // Pixel coordinate, fragment stage only.
}

// Uniforms holds values constant over a single evaluation.
type Uniforms struct {
	Time       float32
	ScreenSize ms2.Vec
	Textures   map[string]Sampler
}

// Program is a graph compiled for CPU evaluation. Parameters are read when
// Evaluate is called so that the last write before an evaluation is observed.
type Program struct {
	roots []gnode.Node
	order []gnode.Node
	// reg maps node ID to its register in regs.
	reg    map[int]int
	regs   [][][4]float32
	inputs [8]bool
}

// Compile prepares the graph reachable from roots for evaluation.
func Compile(bld *gnode.Builder, roots ...gnode.Node) (*Program, error) {
	if len(roots) == 0 {
		return nil, errors.New("no roots to compile")
	}
	if err := bld.Err(); err != nil {
		return nil, err
	}
	order, err := bld.TopoOrder(roots...)
	if err != nil {
		return nil, err
	}
	p := &Program{
		roots: append([]gnode.Node(nil), roots...),
		order: order,
		reg:   make(map[int]int, len(order)),
		regs:  make([][][4]float32, len(order)),
	}
	for i, n := range order {
		p.reg[n.ID()] = i
		if n.Op() == gnode.OpInput {
			p.inputs[n.Input()] = true
		}
	}
	return p, nil
}

// Uses reports whether the program reads the rasterizer input.
func (p *Program) Uses(in gnode.Input) bool {
	return int(in) < len(p.inputs) && p.inputs[in]
}

// NumNodes returns the number of distinct nodes evaluated per element.
func (p *Program) NumNodes() int { return len(p.order) }

// Evaluate evaluates the program roots for every element of the varyings and stores
// the results in dst, one slice per root, in the order roots were passed to [Compile].
// Results for roots with less than four components are stored in the leading components.
func (p *Program) Evaluate(v Varyings, u Uniforms, dst ...[][4]float32) error {
	n, err := checkDst(len(p.roots), dst)
	if err != nil {
		return err
	}
	for i, nd := range p.order {
		if cap(p.regs[i]) < n {
			p.regs[i] = make([][4]float32, n)
		}
		out := p.regs[i][:n]
		if err := p.evalNode(nd, out, v, u); err != nil {
			return fmt.Errorf("%s node %d: %w", nd.Op(), nd.ID(), err)
		}
	}
	for i, root := range p.roots {
		copy(dst[i], p.regs[p.reg[root.ID()]][:n])
	}
	return nil
}

func (p *Program) arg(nd gnode.Node, i, n int) ([][4]float32, bool) {
	a := nd.Arg(i)
	return p.regs[p.reg[a.ID()]][:n], a.Shape() == gnode.Float
}

func (p *Program) evalNode(nd gnode.Node, out [][4]float32, v Varyings, u Uniforms) error {
	n := len(out)
	switch op := nd.Op(); op {
	case gnode.OpConst:
		fill(out, nd.Literal())
	case gnode.OpParam:
		fill(out, nd.Parameter().Value())
	case gnode.OpInput:
		return evalInput(nd.Input(), out, v, u)
	case gnode.OpSample:
		slot := nd.TextureSlot()
		s := u.Textures[slot]
		if s == nil {
			return fmt.Errorf("%q: %w", slot, ErrMissingTexture)
		}
		uv, _ := p.arg(nd, 0, n)
		for i := range out {
			out[i] = s.Sample(ms2.Vec{X: uv[i][0], Y: uv[i][1]})
		}
	case gnode.OpLength:
		a, _ := p.arg(nd, 0, n)
		k := nd.Arg(0).Shape().Components()
		for i := range out {
			out[i] = [4]float32{length(a[i], k)}
		}
	case gnode.OpNormalize:
		a, _ := p.arg(nd, 0, n)
		k := nd.Shape().Components()
		for i := range out {
			l := length(a[i], k)
			for c := 0; c < k; c++ {
				out[i][c] = a[i][c] / l
			}
		}
	case gnode.OpDot, gnode.OpDistance:
		a, _ := p.arg(nd, 0, n)
		b, _ := p.arg(nd, 1, n)
		k := nd.Arg(0).Shape().Components()
		for i := range out {
			if op == gnode.OpDot {
				var sum float32
				for c := 0; c < k; c++ {
					sum += a[i][c] * b[i][c]
				}
				out[i] = [4]float32{sum}
			} else {
				var d [4]float32
				for c := 0; c < k; c++ {
					d[c] = a[i][c] - b[i][c]
				}
				out[i] = [4]float32{length(d, k)}
			}
		}
	case gnode.OpHash:
		a, _ := p.arg(nd, 0, n)
		if nd.Arg(0).Shape() == gnode.Float {
			for i := range out {
				out[i] = [4]float32{Hash11(a[i][0])}
			}
		} else {
			for i := range out {
				out[i] = [4]float32{Hash12(ms2.Vec{X: a[i][0], Y: a[i][1]})}
			}
		}
	case gnode.OpRotate:
		a, _ := p.arg(nd, 0, n)
		b, _ := p.arg(nd, 1, n)
		for i := range out {
			r := rotate(ms2.Vec{X: a[i][0], Y: a[i][1]}, b[i][0])
			out[i] = [4]float32{r.X, r.Y}
		}
	case gnode.OpSwizzle:
		a, _ := p.arg(nd, 0, n)
		idx := nd.Swizzle()
		for i := range out {
			var r [4]float32
			for c, j := range idx {
				r[c] = a[i][j]
			}
			out[i] = r
		}
	case gnode.OpCompose:
		evalCompose(p, nd, out)
	default:
		if !op.Elementwise() {
			return fmt.Errorf("unsupported operator %s", op)
		}
		evalElementwise(p, nd, out)
	}
	return nil
}

func evalInput(in gnode.Input, out [][4]float32, v Varyings, u Uniforms) error {
	n := len(out)
	missing := func(got int) error {
		if got < n {
			return fmt.Errorf("%s: %w (have %d of %d)", in, ErrMissingInput, got, n)
		}
		return nil
	}
	switch in {
	case gnode.InputUV:
		if err := missing(len(v.UV)); err != nil {
			return err
		}
		for i := range out {
			out[i] = [4]float32{v.UV[i].X, v.UV[i].Y}
		}
	case gnode.InputScreenCoord:
		if err := missing(len(v.FragCoord)); err != nil {
			return err
		}
		for i := range out {
			out[i] = [4]float32{v.FragCoord[i].X, v.FragCoord[i].Y}
		}
	case gnode.InputPosition:
		if err := missing(len(v.Position)); err != nil {
			return err
		}
		for i := range out {
			out[i] = [4]float32{v.Position[i].X, v.Position[i].Y, v.Position[i].Z}
		}
	case gnode.InputNormal:
		if err := missing(len(v.Normal)); err != nil {
			return err
		}
		for i := range out {
			out[i] = [4]float32{v.Normal[i].X, v.Normal[i].Y, v.Normal[i].Z}
		}
	case gnode.InputScreenSize:
		fill(out, [4]float32{u.ScreenSize.X, u.ScreenSize.Y})
	case gnode.InputTime:
		fill(out, [4]float32{u.Time})
	default:
		return fmt.Errorf("unknown input %d", in)
	}
	return nil
}

func evalCompose(p *Program, nd gnode.Node, out [][4]float32) {
	n := len(out)
	k := nd.Shape().Components()
	if nd.NumArgs() == 1 {
		// Splat.
		a, _ := p.arg(nd, 0, n)
		for i := range out {
			var r [4]float32
			for c := 0; c < k; c++ {
				r[c] = a[i][0]
			}
			out[i] = r
		}
		return
	}
	for i := range out {
		out[i] = [4]float32{}
	}
	c := 0
	for j := 0; j < nd.NumArgs(); j++ {
		a, _ := p.arg(nd, j, n)
		ak := nd.Arg(j).Shape().Components()
		for i := range out {
			copy(out[i][c:c+ak], a[i][:ak])
		}
		c += ak
	}
}

func evalElementwise(p *Program, nd gnode.Node, out [][4]float32) {
	n := len(out)
	k := nd.Shape().Components()
	var args [3][][4]float32
	var splat [3]bool
	for j := 0; j < nd.NumArgs(); j++ {
		args[j], splat[j] = p.arg(nd, j, n)
	}
	get := func(j, i, c int) float32 {
		if splat[j] {
			return args[j][i][0]
		}
		return args[j][i][c]
	}
	fn1, fn2, fn3 := elementFuncs(nd.Op())
	for i := range out {
		var r [4]float32
		for c := 0; c < k; c++ {
			switch {
			case fn1 != nil:
				r[c] = fn1(get(0, i, c))
			case fn2 != nil:
				r[c] = fn2(get(0, i, c), get(1, i, c))
			default:
				r[c] = fn3(get(0, i, c), get(1, i, c), get(2, i, c))
			}
		}
		out[i] = r
	}
}

func fill(out [][4]float32, v [4]float32) {
	for i := range out {
		out[i] = v
	}
}

func length(v [4]float32, k int) float32 {
	var sum float32
	for c := 0; c < k; c++ {
		sum += v[c] * v[c]
	}
	return math32.Sqrt(sum)
}
