// Package glbuild generates shader source code from node graphs. GLSL is generated
// for OpenGL vertex, fragment and compute stages, WGSL for WebGPU (compiled to SPIR-V
// with naga) and Kage for ebiten.
package glbuild

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/chewxy/math32"
	"github.com/soypat/gnode"
	"github.com/soypat/gnode/glbuild/glsllib"
	"github.com/soypat/gnode/param"
)

const VersionStr = "#version 430\n"

// ErrStageInput is returned when a graph reads an input the shader stage does not have,
// such as the screen coordinate in a vertex shader.
var ErrStageInput = errors.New("input not available in shader stage")

// Language is a shading language.
type Language uint8

const (
	GLSL Language = iota
	WGSL
	Kage
)

func (l Language) String() string {
	switch l {
	case GLSL:
		return "GLSL"
	case WGSL:
		return "WGSL"
	case Kage:
		return "Kage"
	}
	return "Language(" + strconv.Itoa(int(l)) + ")"
}

// Stage is a shader pipeline stage.
type Stage uint8

const (
	StageVertex Stage = iota
	StageFragment
	StageCompute
)

func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	}
	return "Stage(" + strconv.Itoa(int(s)) + ")"
}

// ObjectKind is the kind of resource a [ShaderObject] describes.
type ObjectKind uint8

const (
	ObjectParameter ObjectKind = iota + 1
	ObjectTexture
)

// ShaderObject is a handle to data a generated shader reads, which must be bound
// by the renderer before drawing.
//   - Parameter uniform: the value of Param uploaded to the uniform Name.
//   - Texture: the texture bound to slot Slot on unit (or WGSL binding) Binding.
type ShaderObject struct {
	Kind ObjectKind
	// Name is the identifier of the uniform or texture inside the shader.
	Name  string
	Shape gnode.Shape
	Param *param.Parameter
	Slot  string
	// Binding is the texture unit for GLSL, the image index for Kage and the
	// texture binding for WGSL (the sampler uses Binding+1).
	// For WGSL parameters it is the byte offset in the parameter uniform buffer.
	Binding int
}

// Programmer implements shader generation for node graphs.
type Programmer struct {
	scratch []byte
	invocX  int
}

// NewDefaultProgrammer returns a Programmer with reasonable default parameters for use with glgl package on the local machine.
func NewDefaultProgrammer() *Programmer {
	return &Programmer{
		scratch: make([]byte, 0, 4096),
		invocX:  32,
	}
}

// SetComputeInvocations sets the work group local-sizes. x*y*z must be less than maximum number of invocations.
func (p *Programmer) SetComputeInvocations(x, y, z int) {
	if y != 1 || z != 1 {
		panic("unsupported")
	} else if x < 1 {
		panic("zero or negative X invocation size")
	}
	p.invocX = x
}

// ComputeInvocations returns the worker group invocation size in x y and z.
func (p *Programmer) ComputeInvocations() (int, int, int) {
	return p.invocX, 1, 1
}

// emitter generates the statements of a single shader stage.
type emitter struct {
	lang  Language
	stage Stage
	bld   *gnode.Builder
	objs  []ShaderObject
	seen  map[string]bool
	// kageUV is the Kage expression for the UV input.
	kageUV string
	err    error
}

func newEmitter(lang Language, stage Stage, bld *gnode.Builder) *emitter {
	return &emitter{lang: lang, stage: stage, bld: bld, seen: make(map[string]bool)}
}

func (e *emitter) typeName(s gnode.Shape) string {
	if e.lang == WGSL {
		switch s {
		case gnode.Float:
			return "f32"
		case gnode.Vec2:
			return "vec2<f32>"
		case gnode.Vec3:
			return "vec3<f32>"
		case gnode.Vec4:
			return "vec4<f32>"
		}
	}
	return s.String()
}

func (e *emitter) setErr(err error) {
	if e.err == nil {
		e.err = err
	}
}

// inline reports whether n is emitted in place rather than as a temporary.
func inline(n gnode.Node) bool {
	switch n.Op() {
	case gnode.OpConst, gnode.OpParam, gnode.OpInput:
		return true
	}
	return false
}

// appendBody appends one temporary declaration per non-leaf node in order.
func (e *emitter) appendBody(b []byte, order []gnode.Node) []byte {
	for _, n := range order {
		if inline(n) {
			continue
		}
		b = e.appendDecl(b, n)
		b = e.appendExpr(b, n)
		if e.lang != Kage {
			b = append(b, ';')
		}
		b = append(b, '\n')
	}
	return b
}

func (e *emitter) appendDecl(b []byte, n gnode.Node) []byte {
	b = append(b, '\t')
	switch e.lang {
	case GLSL:
		b = append(b, e.typeName(n.Shape())...)
		b = append(b, ' ')
		b = appendTempName(b, n)
		b = append(b, " = "...)
	case WGSL:
		b = append(b, "let "...)
		b = appendTempName(b, n)
		b = append(b, ": "...)
		b = append(b, e.typeName(n.Shape())...)
		b = append(b, " = "...)
	case Kage:
		b = appendTempName(b, n)
		b = append(b, " := "...)
	}
	return b
}

func appendTempName(b []byte, n gnode.Node) []byte {
	b = append(b, 'n')
	return strconv.AppendInt(b, int64(n.ID()), 10)
}

// appendRef appends an expression referencing the value of n.
func (e *emitter) appendRef(b []byte, n gnode.Node) []byte {
	switch n.Op() {
	case gnode.OpConst:
		return e.appendLiteral(b, n.Shape(), n.Literal())
	case gnode.OpParam:
		return e.appendParam(b, n)
	case gnode.OpInput:
		return e.appendInput(b, n.Input())
	}
	return appendTempName(b, n)
}

// appendRefAs appends a reference to n converted to shape to, splatting floats.
func (e *emitter) appendRefAs(b []byte, n gnode.Node, to gnode.Shape) []byte {
	if n.Shape() == to || n.Shape() != gnode.Float {
		return e.appendRef(b, n)
	}
	b = append(b, e.typeName(to)...)
	b = append(b, '(')
	b = e.appendRef(b, n)
	return append(b, ')')
}

func (e *emitter) appendLiteral(b []byte, shape gnode.Shape, v [4]float32) []byte {
	k := shape.Components()
	for i := 0; i < k; i++ {
		if math32.IsNaN(v[i]) || math32.IsInf(v[i], 0) {
			e.setErr(fmt.Errorf("non-finite literal %v", v[i]))
		}
	}
	if k == 1 {
		if v[0] < 0 {
			b = append(b, '(')
			b = AppendFloat(b, '-', '.', v[0])
			return append(b, ')')
		}
		return AppendFloat(b, '-', '.', v[0])
	}
	b = append(b, e.typeName(shape)...)
	b = append(b, '(')
	b = AppendFloats(b, ',', '-', '.', v[:k]...)
	return append(b, ')')
}

func (e *emitter) appendParam(b []byte, n gnode.Node) []byte {
	p := n.Parameter()
	name := e.uniformName(p)
	if !e.seen["p:"+name] {
		e.seen["p:"+name] = true
		obj := ShaderObject{Kind: ObjectParameter, Name: name, Shape: n.Shape(), Param: p, Binding: -1}
		if e.lang == WGSL {
			obj.Binding = 16 * paramIndex(e.bld, p)
		}
		e.objs = append(e.objs, obj)
	}
	if e.lang == WGSL {
		b = append(b, "params."...)
		b = append(b, name...)
		b = append(b, '.')
		return append(b, "xyzw"[:n.Shape().Components()]...)
	}
	return append(b, name...)
}

func paramIndex(bld *gnode.Builder, p *param.Parameter) int {
	for i, bp := range bld.Parameters() {
		if bp == p {
			return i
		}
	}
	return -1
}

func (e *emitter) uniformName(p *param.Parameter) string {
	prefix := "u_"
	if e.lang == Kage {
		prefix = "U_" // Kage uniforms must be exported.
	}
	return prefix + sanitize(p.FullName())
}

func sanitize(name string) string {
	b := []byte(name)
	for i, c := range b {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			b[i] = '_'
		}
	}
	return string(b)
}

func (e *emitter) texture(slot string) ShaderObject {
	idx := -1
	for i, s := range e.bld.Textures() {
		if s == slot {
			idx = i
		}
	}
	obj := ShaderObject{Kind: ObjectTexture, Slot: slot, Name: "t_" + sanitize(slot), Binding: idx}
	switch e.lang {
	case WGSL:
		obj.Binding = 2 + 2*idx
	case Kage:
		if idx >= 4 {
			e.setErr(fmt.Errorf("texture %q: Kage supports at most 4 images", slot))
		}
		obj.Name = "gnodeSample" + strconv.Itoa(idx)
	}
	if !e.seen["t:"+slot] {
		e.seen["t:"+slot] = true
		e.objs = append(e.objs, obj)
	}
	return obj
}

func (e *emitter) appendInput(b []byte, in gnode.Input) []byte {
	var expr string
	switch in {
	case gnode.InputTime:
		expr = [3]string{GLSL: "uTime", WGSL: "frame.info.x", Kage: "Time"}[e.lang]
	case gnode.InputScreenSize:
		expr = [3]string{GLSL: "uResolution", WGSL: "frame.info.yz", Kage: "Resolution"}[e.lang]
	}
	if expr != "" {
		return append(b, expr...)
	}
	switch e.stage {
	case StageVertex:
		switch in {
		case gnode.InputUV:
			expr = [3]string{GLSL: "aUV", WGSL: "uv"}[e.lang]
		case gnode.InputPosition:
			expr = [3]string{GLSL: "aPosition", WGSL: "position"}[e.lang]
		case gnode.InputNormal:
			expr = [3]string{GLSL: "vNormal", WGSL: "worldNormal"}[e.lang]
		}
	case StageFragment:
		switch in {
		case gnode.InputUV:
			expr = [3]string{GLSL: "vUV", WGSL: "in.uv", Kage: e.kageUV}[e.lang]
		case gnode.InputPosition:
			expr = [3]string{GLSL: "vPosition", WGSL: "in.position", Kage: "color.xyz"}[e.lang]
		case gnode.InputNormal:
			expr = [3]string{GLSL: "vNormal", WGSL: "in.normal", Kage: "NormalWorld"}[e.lang]
		case gnode.InputScreenCoord:
			expr = [3]string{GLSL: "gl_FragCoord.xy", WGSL: "in.clip.xy", Kage: "vec2(dstPos.x, Resolution.y-dstPos.y)"}[e.lang]
		}
	case StageCompute:
		switch in {
		case gnode.InputUV:
			expr = "vUV"
		case gnode.InputPosition:
			expr = "vPosition"
		case gnode.InputNormal:
			expr = "vNormal"
		case gnode.InputScreenCoord:
			expr = "vFragCoord"
		}
	}
	if expr == "" {
		e.setErr(fmt.Errorf("%s %s %s: %w", e.lang, e.stage, in, ErrStageInput))
		expr = "0"
	}
	return append(b, expr...)
}

func (e *emitter) appendCall(b []byte, fn string, n gnode.Node, promote bool) []byte {
	b = append(b, fn...)
	b = append(b, '(')
	for i := 0; i < n.NumArgs(); i++ {
		if i > 0 {
			b = append(b, ", "...)
		}
		if promote {
			b = e.appendRefAs(b, n.Arg(i), n.Shape())
		} else {
			b = e.appendRef(b, n.Arg(i))
		}
	}
	return append(b, ')')
}

func (e *emitter) appendBinop(b []byte, op byte, n gnode.Node) []byte {
	b = append(b, '(')
	b = e.appendRefAs(b, n.Arg(0), n.Shape())
	b = append(b, ' ', op, ' ')
	b = e.appendRefAs(b, n.Arg(1), n.Shape())
	return append(b, ')')
}

func (e *emitter) appendExpr(b []byte, n gnode.Node) []byte {
	switch op := n.Op(); op {
	case gnode.OpNeg:
		b = append(b, "(-"...)
		b = e.appendRef(b, n.Arg(0))
		return append(b, ')')
	case gnode.OpAdd:
		return e.appendBinop(b, '+', n)
	case gnode.OpSub:
		return e.appendBinop(b, '-', n)
	case gnode.OpMul:
		return e.appendBinop(b, '*', n)
	case gnode.OpDiv:
		return e.appendBinop(b, '/', n)
	case gnode.OpMod:
		if e.lang != WGSL {
			return e.appendCall(b, "mod", n, true)
		}
		// WGSL's % truncates, emit the floored definition.
		b = append(b, '(')
		b = e.appendRefAs(b, n.Arg(0), n.Shape())
		b = append(b, " - "...)
		b = e.appendRefAs(b, n.Arg(1), n.Shape())
		b = append(b, " * floor("...)
		b = e.appendRefAs(b, n.Arg(0), n.Shape())
		b = append(b, " / "...)
		b = e.appendRefAs(b, n.Arg(1), n.Shape())
		return append(b, "))"...)
	case gnode.OpFloor, gnode.OpFract, gnode.OpExp, gnode.OpSin, gnode.OpCos,
		gnode.OpAbs, gnode.OpSqrt, gnode.OpLength, gnode.OpNormalize:
		return e.appendCall(b, op.String(), n, false)
	case gnode.OpPow, gnode.OpMin, gnode.OpMax, gnode.OpStep,
		gnode.OpClamp, gnode.OpMix, gnode.OpSmoothStep:
		return e.appendCall(b, op.String(), n, true)
	case gnode.OpDot, gnode.OpDistance:
		if n.Arg(0).Shape() != gnode.Float {
			return e.appendCall(b, op.String(), n, false)
		}
		// Scalar forms, WGSL has no scalar dot.
		if op == gnode.OpDot {
			return e.appendBinop(b, '*', n)
		}
		b = append(b, "abs("...)
		b = e.appendBinop(b, '-', n)
		return append(b, ')')
	case gnode.OpHash:
		if n.Arg(0).Shape() == gnode.Float {
			return e.appendCall(b, "gnodeHash11", n, false)
		}
		return e.appendCall(b, "gnodeHash12", n, false)
	case gnode.OpRotate:
		return e.appendCall(b, "gnodeRotate", n, false)
	case gnode.OpSwizzle:
		arg := n.Arg(0)
		if arg.Shape() == gnode.Float {
			return e.appendRefAs(b, arg, n.Shape())
		}
		b = e.appendRef(b, arg)
		b = append(b, '.')
		for _, c := range n.Swizzle() {
			b = append(b, "xyzw"[c])
		}
		return b
	case gnode.OpCompose:
		return e.appendCall(b, e.typeName(n.Shape()), n, false)
	case gnode.OpSample:
		return e.appendSample(b, n)
	default:
		e.setErr(fmt.Errorf("unsupported operator %s", op))
		return append(b, '0')
	}
}

func (e *emitter) appendSample(b []byte, n gnode.Node) []byte {
	obj := e.texture(n.TextureSlot())
	uv := n.Arg(0)
	switch e.lang {
	case GLSL:
		if e.stage == StageFragment {
			b = append(b, "texture("...)
		} else {
			b = append(b, "textureLod("...)
		}
		b = append(b, obj.Name...)
		b = append(b, ", "...)
		b = e.appendRef(b, uv)
		if e.stage != StageFragment {
			b = append(b, ", 0.0"...)
		}
		return append(b, ')')
	case WGSL:
		if e.stage == StageFragment {
			b = append(b, "textureSample("...)
		} else {
			b = append(b, "textureSampleLevel("...)
		}
		b = append(b, obj.Name...)
		b = append(b, ", s_"...)
		b = append(b, obj.Name[2:]...)
		b = append(b, ", "...)
		b = e.appendRef(b, uv)
		if e.stage != StageFragment {
			b = append(b, ", 0.0"...)
		}
		return append(b, ')')
	default:
		b = append(b, obj.Name...)
		b = append(b, '(')
		b = e.appendRef(b, uv)
		return append(b, ')')
	}
}

// appendFunctions appends helper functions referenced by body.
func appendFunctions(b []byte, funcs []glsllib.Function, body []byte) []byte {
	for _, fn := range funcs {
		if bytes.Contains(body, []byte(fn.Name+"(")) {
			b = append(b, fn.Source...)
			b = append(b, "\n\n"...)
		}
	}
	return b
}

func stageOrder(bld *gnode.Builder, roots ...gnode.Node) ([]gnode.Node, error) {
	if err := bld.Err(); err != nil {
		return nil, err
	}
	return bld.TopoOrder(roots...)
}

const decimalDigits = 9

func AppendFloat(b []byte, neg, decimal byte, v float32) []byte {
	start := len(b)
	b = strconv.AppendFloat(b, float64(v), 'f', decimalDigits, 32)
	idx := bytes.IndexByte(b[start:], '.')
	if decimal != '.' && idx >= 0 {
		b[start+idx] = decimal
	}
	if b[start] == '-' {
		b[start] = neg
	}
	// Finally trim zeroes, keeping one digit after the decimal point.
	end := len(b)
	for i := len(b) - 1; idx >= 0 && i > idx+start+1 && b[i] == '0'; i-- {
		end--
	}
	return b[:end]
}

func AppendFloats(b []byte, sep, neg, decimal byte, s ...float32) []byte {
	for i, v := range s {
		b = AppendFloat(b, neg, decimal, v)
		if sep != 0 && i != len(s)-1 {
			b = append(b, sep)
		}
	}
	return b
}
