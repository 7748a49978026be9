package gnode

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/soypat/gnode/param"
)

// Op is the operator of a node.
type Op uint8

const (
	OpInvalid Op = iota
	// Leaves.
	OpConst
	OpParam
	OpInput
	// Unary.
	OpNeg
	OpFloor
	OpFract
	OpExp
	OpSin
	OpCos
	OpAbs
	OpSqrt
	OpLength
	OpNormalize
	OpHash
	OpSwizzle
	// Binary.
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpPow
	OpMod
	OpMin
	OpMax
	OpDistance
	OpDot
	OpStep
	OpRotate
	OpSample
	// Ternary.
	OpClamp
	OpMix
	OpSmoothStep
	// Variadic.
	OpCompose
	opEnd
)

var opNames = [...]string{
	OpConst:      "const",
	OpParam:      "param",
	OpInput:      "input",
	OpNeg:        "neg",
	OpFloor:      "floor",
	OpFract:      "fract",
	OpExp:        "exp",
	OpSin:        "sin",
	OpCos:        "cos",
	OpAbs:        "abs",
	OpSqrt:       "sqrt",
	OpLength:     "length",
	OpNormalize:  "normalize",
	OpHash:       "hash",
	OpSwizzle:    "swizzle",
	OpAdd:        "add",
	OpSub:        "sub",
	OpMul:        "mul",
	OpDiv:        "div",
	OpPow:        "pow",
	OpMod:        "mod",
	OpMin:        "min",
	OpMax:        "max",
	OpDistance:   "distance",
	OpDot:        "dot",
	OpStep:       "step",
	OpRotate:     "rotate",
	OpSample:     "sample",
	OpClamp:      "clamp",
	OpMix:        "mix",
	OpSmoothStep: "smoothstep",
	OpCompose:    "compose",
}

func (op Op) String() string {
	if op == OpInvalid || op >= opEnd {
		return "Op(" + strconv.Itoa(int(op)) + ")"
	}
	return opNames[op]
}

// Elementwise reports whether the operator applies component by component
// with float operands broadcast to the result shape.
func (op Op) Elementwise() bool {
	switch op {
	case OpNeg, OpFloor, OpFract, OpExp, OpSin, OpCos, OpAbs, OpSqrt,
		OpAdd, OpSub, OpMul, OpDiv, OpPow, OpMod, OpMin, OpMax, OpStep,
		OpClamp, OpMix, OpSmoothStep:
		return true
	}
	return false
}

// Float returns a float literal node.
func (bld *Builder) Float(v float32) Node {
	return bld.add(node{op: OpConst, shape: Float, val: [4]float32{v}})
}

// Vec2 returns a vec2 literal node.
func (bld *Builder) Vec2(x, y float32) Node {
	return bld.add(node{op: OpConst, shape: Vec2, val: [4]float32{x, y}})
}

// Vec3 returns a vec3 literal node.
func (bld *Builder) Vec3(x, y, z float32) Node {
	return bld.add(node{op: OpConst, shape: Vec3, val: [4]float32{x, y, z}})
}

// Vec4 returns a vec4 literal node.
func (bld *Builder) Vec4(x, y, z, w float32) Node {
	return bld.add(node{op: OpConst, shape: Vec4, val: [4]float32{x, y, z, w}})
}

// Const returns a literal node of the shape given by the number of values.
func (bld *Builder) Const(values ...float32) Node {
	shape := ShapeOf(len(values))
	if shape == ShapeInvalid {
		return bld.fail(&ShapeError{Op: "const", Reason: fmt.Sprintf("%d components", len(values))})
	}
	n := node{op: OpConst, shape: shape}
	copy(n.val[:], values)
	return bld.add(n)
}

// Param returns a node that reads p's current value at evaluation time.
func (bld *Builder) Param(p *param.Parameter) Node {
	if p == nil {
		return bld.fail(fmt.Errorf("gnode: param: nil parameter"))
	}
	shape := ShapeOf(p.Kind().Components())
	if bld.paramIdx == nil {
		bld.paramIdx = make(map[*param.Parameter]uint32)
	}
	ref, ok := bld.paramIdx[p]
	if !ok {
		ref = uint32(len(bld.params))
		bld.params = append(bld.params, p)
		bld.paramIdx[p] = ref
	}
	return bld.add(node{op: OpParam, shape: shape, ref: ref})
}

// Input returns a node reading a rasterizer provided value.
func (bld *Builder) Input(in Input) Node {
	shape := in.Shape()
	if shape == ShapeInvalid {
		return bld.fail(fmt.Errorf("gnode: invalid input %d", in))
	}
	return bld.add(node{op: OpInput, shape: shape, ref: uint32(in)})
}

func (bld *Builder) UV() Node               { return bld.Input(InputUV) }
func (bld *Builder) PositionLocal() Node    { return bld.Input(InputPosition) }
func (bld *Builder) NormalWorld() Node      { return bld.Input(InputNormal) }
func (bld *Builder) ScreenCoordinate() Node { return bld.Input(InputScreenCoord) }
func (bld *Builder) ScreenSize() Node       { return bld.Input(InputScreenSize) }
func (bld *Builder) Time() Node             { return bld.Input(InputTime) }

// Sample returns the vec4 texel of the texture bound to slot at coordinate uv.
// Slots are bound to textures when rendering.
func (bld *Builder) Sample(slot string, uv Node) Node {
	if res, ok := bld.check(OpSample, uv); !ok {
		return res
	}
	if slot == "" {
		return bld.fail(fmt.Errorf("gnode: sample: empty texture slot"))
	}
	if uv.Shape() != Vec2 {
		return bld.shapeErr(OpSample, "coordinate must be vec2", uv)
	}
	if bld.texIdx == nil {
		bld.texIdx = make(map[string]uint32)
	}
	ref, ok := bld.texIdx[slot]
	if !ok {
		ref = uint32(len(bld.textures))
		bld.textures = append(bld.textures, slot)
		bld.texIdx[slot] = ref
	}
	n := node{op: OpSample, shape: Vec4, nargs: 1, ref: ref}
	n.args[0] = uv.idx
	return bld.add(n)
}

func (bld *Builder) unary(op Op, a Node) Node {
	if res, ok := bld.check(op, a); !ok {
		return res
	}
	return bld.addOp(op, a.Shape(), a)
}

func (bld *Builder) Neg(a Node) Node   { return bld.unary(OpNeg, a) }
func (bld *Builder) Floor(a Node) Node { return bld.unary(OpFloor, a) }
func (bld *Builder) Fract(a Node) Node { return bld.unary(OpFract, a) }
func (bld *Builder) Exp(a Node) Node   { return bld.unary(OpExp, a) }
func (bld *Builder) Sin(a Node) Node   { return bld.unary(OpSin, a) }
func (bld *Builder) Cos(a Node) Node   { return bld.unary(OpCos, a) }
func (bld *Builder) Abs(a Node) Node   { return bld.unary(OpAbs, a) }
func (bld *Builder) Sqrt(a Node) Node  { return bld.unary(OpSqrt, a) }

// Length returns the euclidean length of a as a float.
func (bld *Builder) Length(a Node) Node {
	if res, ok := bld.check(OpLength, a); !ok {
		return res
	}
	return bld.addOp(OpLength, Float, a)
}

// Normalize returns a scaled to unit length. a must be a vector.
func (bld *Builder) Normalize(a Node) Node {
	if res, ok := bld.check(OpNormalize, a); !ok {
		return res
	}
	if a.Shape() == Float {
		return bld.shapeErr(OpNormalize, "vector required", a)
	}
	return bld.addOp(OpNormalize, a.Shape(), a)
}

// Hash returns a pseudo random float in [0,1) from a float or vec2 seed.
// It uses only floating point arithmetic so all back ends produce the same values.
func (bld *Builder) Hash(seed Node) Node {
	if res, ok := bld.check(OpHash, seed); !ok {
		return res
	}
	if s := seed.Shape(); s != Float && s != Vec2 {
		return bld.shapeErr(OpHash, "seed must be float or vec2", seed)
	}
	return bld.addOp(OpHash, Float, seed)
}

// broadcast returns the result shape of combining args element-wise.
// Floats broadcast to any vector; differing vectors do not combine.
func broadcast(args ...Node) Shape {
	result := Float
	for _, a := range args {
		s := a.Shape()
		switch {
		case s == Float:
		case result == Float:
			result = s
		case s != result:
			return ShapeInvalid
		}
	}
	return result
}

func (bld *Builder) elementwise(op Op, args ...Node) Node {
	if res, ok := bld.check(op, args...); !ok {
		return res
	}
	shape := broadcast(args...)
	if shape == ShapeInvalid {
		return bld.shapeErr(op, "", args...)
	}
	return bld.addOp(op, shape, args...)
}

func (bld *Builder) Add(a, b Node) Node { return bld.elementwise(OpAdd, a, b) }
func (bld *Builder) Sub(a, b Node) Node { return bld.elementwise(OpSub, a, b) }
func (bld *Builder) Mul(a, b Node) Node { return bld.elementwise(OpMul, a, b) }
func (bld *Builder) Div(a, b Node) Node { return bld.elementwise(OpDiv, a, b) }
func (bld *Builder) Pow(a, b Node) Node { return bld.elementwise(OpPow, a, b) }
func (bld *Builder) Min(a, b Node) Node { return bld.elementwise(OpMin, a, b) }
func (bld *Builder) Max(a, b Node) Node { return bld.elementwise(OpMax, a, b) }

// Mod returns a - b*floor(a/b), the GLSL definition which is positive for positive b.
func (bld *Builder) Mod(a, b Node) Node { return bld.elementwise(OpMod, a, b) }

// Step returns 0 where x < edge and 1 otherwise.
func (bld *Builder) Step(edge, x Node) Node { return bld.elementwise(OpStep, edge, x) }

// Clamp restricts x to [lo, hi].
func (bld *Builder) Clamp(x, lo, hi Node) Node { return bld.elementwise(OpClamp, x, lo, hi) }

// Mix linearly interpolates a and b by t.
func (bld *Builder) Mix(a, b, t Node) Node { return bld.elementwise(OpMix, a, b, t) }

// SmoothStep performs Hermite interpolation of x between edge0 and edge1.
func (bld *Builder) SmoothStep(edge0, edge1, x Node) Node {
	return bld.elementwise(OpSmoothStep, edge0, edge1, x)
}

func (bld *Builder) pairwise(op Op, a, b Node) Node {
	if res, ok := bld.check(op, a, b); !ok {
		return res
	}
	if a.Shape() != b.Shape() {
		return bld.shapeErr(op, "operands must have equal shape", a, b)
	}
	return bld.addOp(op, Float, a, b)
}

// Dot returns the dot product of a and b which must have equal shapes.
func (bld *Builder) Dot(a, b Node) Node { return bld.pairwise(OpDot, a, b) }

// Distance returns the euclidean distance between a and b which must have equal shapes.
func (bld *Builder) Distance(a, b Node) Node { return bld.pairwise(OpDistance, a, b) }

// Rotate rotates vec2 v counter-clockwise by angle radians.
func (bld *Builder) Rotate(v, angle Node) Node {
	if res, ok := bld.check(OpRotate, v, angle); !ok {
		return res
	}
	if v.Shape() != Vec2 || angle.Shape() != Float {
		return bld.shapeErr(OpRotate, "want (vec2, float)", v, angle)
	}
	return bld.addOp(OpRotate, Vec2, v, angle)
}

// Swizzle selects components of v by name. Accepts "xyzw" and "rgba" component letters.
func (bld *Builder) Swizzle(v Node, components string) Node {
	if res, ok := bld.check(OpSwizzle, v); !ok {
		return res
	}
	shape := ShapeOf(len(components))
	if shape == ShapeInvalid {
		return bld.shapeErr(OpSwizzle, "invalid swizzle "+strconv.Quote(components), v)
	}
	var ref uint32
	for i, c := range components {
		idx := strings.IndexRune("xyzw", c)
		if idx < 0 {
			idx = strings.IndexRune("rgba", c)
		}
		if idx < 0 || idx >= v.Shape().Components() {
			return bld.shapeErr(OpSwizzle, "component "+string(c)+" out of range", v)
		}
		ref |= uint32(idx) << (2 * i)
	}
	if shape == v.Shape() && ref == 0b11_10_01_00&(1<<(2*len(components))-1) {
		return v // Identity swizzle.
	}
	return bld.add(node{op: OpSwizzle, shape: shape, nargs: 1, args: [4]uint32{v.idx}, ref: ref})
}

func (bld *Builder) X(v Node) Node   { return bld.Swizzle(v, "x") }
func (bld *Builder) Y(v Node) Node   { return bld.Swizzle(v, "y") }
func (bld *Builder) Z(v Node) Node   { return bld.Swizzle(v, "z") }
func (bld *Builder) W(v Node) Node   { return bld.Swizzle(v, "w") }
func (bld *Builder) RGB(v Node) Node { return bld.Swizzle(v, "rgb") }

// Compose concatenates the components of parts into a value of the given shape.
// A single float part is splatted to all components.
func (bld *Builder) Compose(shape Shape, parts ...Node) Node {
	if res, ok := bld.check(OpCompose, parts...); !ok {
		return res
	}
	if len(parts) == 0 || len(parts) > 4 || shape.Components() == 0 {
		return bld.shapeErr(OpCompose, "invalid component count", parts...)
	}
	if len(parts) == 1 && parts[0].Shape() == Float {
		if shape == Float {
			return parts[0]
		}
		return bld.addOp(OpCompose, shape, parts[0])
	}
	total := 0
	for _, p := range parts {
		total += p.Shape().Components()
	}
	if total != shape.Components() {
		return bld.shapeErr(OpCompose, fmt.Sprintf("%d components for %s", total, shape), parts...)
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return bld.addOp(OpCompose, shape, parts...)
}

// RemapClamp maps x from the range [inLow, inHigh] onto [outLow, outHigh],
// clamping to the output range. inHigh may be below inLow, which reverses the mapping.
// Input bounds that are known to be equal at construction are a [ErrDegenerateRemapRange] error.
func (bld *Builder) RemapClamp(x, inLow, inHigh, outLow, outHigh Node) Node {
	if res, ok := bld.checkNamed("remap", x, inLow, inHigh, outLow, outHigh); !ok {
		return res
	}
	if bld.provablyEqual(inLow, inHigh) {
		return bld.fail(fmt.Errorf("gnode: remap: input range [%v, %v]: %w", inLow, inHigh, ErrDegenerateRemapRange))
	}
	zero, one := bld.Float(0), bld.Float(1)
	t := bld.Clamp(bld.Div(bld.Sub(x, inLow), bld.Sub(inHigh, inLow)), zero, one)
	return bld.Add(outLow, bld.Mul(t, bld.Sub(outHigh, outLow)))
}

func (bld *Builder) provablyEqual(a, b Node) bool {
	if a.idx == b.idx {
		return true
	}
	na, nb := a.get(), b.get()
	value := func(n Node, nd *node) ([4]float32, bool) {
		switch nd.op {
		case OpConst:
			return nd.val, true
		case OpParam:
			return n.Parameter().Value(), true
		}
		return [4]float32{}, false
	}
	va, oka := value(a, na)
	vb, okb := value(b, nb)
	if !oka || !okb {
		return false
	}
	if na.shape == Float || nb.shape == Float {
		// Broadcast float against every component of the other.
		if na.shape == Float {
			va = [4]float32{va[0], va[0], va[0], va[0]}
		}
		if nb.shape == Float {
			vb = [4]float32{vb[0], vb[0], vb[0], vb[0]}
		}
	}
	n := max(na.shape.Components(), nb.shape.Components())
	for i := 0; i < n; i++ {
		if va[i] == vb[i] {
			return true // One degenerate component is enough to divide by zero.
		}
	}
	return false
}

// AlphaOver composites src over dst: rgb = mix(dst.rgb, src.rgb, src.a), keeping dst's alpha.
func (bld *Builder) AlphaOver(dst, src Node) Node {
	if res, ok := bld.checkNamed("alphaOver", dst, src); !ok {
		return res
	}
	if dst.Shape() != Vec4 || src.Shape() != Vec4 {
		return bld.namedShapeErr("alphaOver", "alpha composite requires vec4 operands", dst, src)
	}
	rgb := bld.Mix(bld.RGB(dst), bld.RGB(src), bld.W(src))
	return bld.Compose(Vec4, rgb, bld.W(dst))
}
