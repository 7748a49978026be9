package gleval

import (
	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/glgl/math/ms1"
	"github.com/soypat/gnode"
)

type (
	func1 = func(a float32) float32
	func2 = func(a, b float32) float32
	func3 = func(a, b, c float32) float32
)

func elementFuncs(op gnode.Op) (func1, func2, func3) {
	switch op {
	case gnode.OpNeg:
		return func(a float32) float32 { return -a }, nil, nil
	case gnode.OpFloor:
		return math32.Floor, nil, nil
	case gnode.OpFract:
		return fract, nil, nil
	case gnode.OpExp:
		return math32.Exp, nil, nil
	case gnode.OpSin:
		return math32.Sin, nil, nil
	case gnode.OpCos:
		return math32.Cos, nil, nil
	case gnode.OpAbs:
		return math32.Abs, nil, nil
	case gnode.OpSqrt:
		return math32.Sqrt, nil, nil
	case gnode.OpAdd:
		return nil, func(a, b float32) float32 { return a + b }, nil
	case gnode.OpSub:
		return nil, func(a, b float32) float32 { return a - b }, nil
	case gnode.OpMul:
		return nil, func(a, b float32) float32 { return a * b }, nil
	case gnode.OpDiv:
		return nil, func(a, b float32) float32 { return a / b }, nil
	case gnode.OpPow:
		return nil, math32.Pow, nil
	case gnode.OpMod:
		return nil, mod, nil
	case gnode.OpMin:
		return nil, math32.Min, nil
	case gnode.OpMax:
		return nil, math32.Max, nil
	case gnode.OpStep:
		return nil, step, nil
	case gnode.OpClamp:
		return nil, nil, ms1.Clamp
	case gnode.OpMix:
		return nil, nil, mix
	case gnode.OpSmoothStep:
		return nil, nil, smoothstep
	}
	panic("gleval: not an elementwise operator: " + op.String())
}

func fract(a float32) float32 { return a - math32.Floor(a) }

// mod follows the GLSL definition.
func mod(a, b float32) float32 { return a - b*math32.Floor(a/b) }

func step(edge, x float32) float32 {
	if x < edge {
		return 0
	}
	return 1
}

func mix(a, b, t float32) float32 { return a*(1-t) + b*t }

func smoothstep(e0, e1, x float32) float32 {
	t := ms1.Clamp((x-e0)/(e1-e0), 0, 1)
	return t * t * (3 - 2*t)
}

func rotate(v ms2.Vec, angle float32) ms2.Vec {
	s, c := math32.Sincos(angle)
	return ms2.Vec{X: c*v.X - s*v.Y, Y: s*v.X + c*v.Y}
}

// Hash11 returns a pseudo random number in [0,1) computed with float arithmetic only.
// It matches the hash emitted by package glbuild.
func Hash11(p float32) float32 {
	p = fract(p * 0.1031)
	p *= p + 33.33
	p *= p + p
	return fract(p)
}

// Hash12 returns a pseudo random number in [0,1) for a 2D seed.
// It matches the hash emitted by package glbuild.
func Hash12(p ms2.Vec) float32 {
	x := fract(p.X * 0.1031)
	y := fract(p.Y * 0.1031)
	z := x
	d := x*(y+33.33) + y*(z+33.33) + z*(x+33.33)
	x += d
	y += d
	z += d
	return fract((x + y) * z)
}
