// Package param implements a store of named, typed values that shader graphs
// read at evaluation time. Values are mutated in place by editors, input handlers
// and animation callbacks and are never destroyed.
package param

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/chewxy/math32"
	"github.com/soypat/glgl/math/ms1"
)

var (
	ErrDuplicateParameter = errors.New("duplicate parameter")
	ErrInvalidValue       = errors.New("invalid parameter value")
	errNilParameter       = errors.New("nil parameter")
	errForeignParameter   = errors.New("parameter not declared in store")
)

// Kind is the type of a parameter's value.
type Kind uint8

const (
	KindInvalid Kind = iota
	Scalar
	Vec2
	Vec3
	Color // RGB color stored as three components in 0..1.
)

// Components returns the number of float components used by a value of kind k.
func (k Kind) Components() int {
	switch k {
	case Scalar:
		return 1
	case Vec2:
		return 2
	case Vec3, Color:
		return 3
	}
	return 0
}

func (k Kind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case Vec2:
		return "vec2"
	case Vec3:
		return "vec3"
	case Color:
		return "color"
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Value holds the components of a parameter. Unused trailing components are zero.
type Value [4]float32

// ScalarValue returns a Value holding a single scalar.
func ScalarValue(v float32) Value { return Value{v} }

// Vec2Value returns a Value holding a 2-component vector.
func Vec2Value(x, y float32) Value { return Value{x, y} }

// Vec3Value returns a Value holding a 3-component vector.
func Vec3Value(x, y, z float32) Value { return Value{x, y, z} }

// RGB returns a color Value.
func RGB(r, g, b float32) Value { return Value{r, g, b} }

// Hex returns a color value from a 0xRRGGBB integer.
func Hex(rgb uint32) Value {
	return Value{
		float32(rgb>>16&0xff) / 255,
		float32(rgb>>8&0xff) / 255,
		float32(rgb&0xff) / 255,
	}
}

func (v Value) format(k Kind) string {
	n := k.Components()
	if n == 1 {
		return strconv.FormatFloat(float64(v[0]), 'g', 4, 32)
	}
	var sb strings.Builder
	sb.WriteByte('(')
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.FormatFloat(float64(v[i]), 'g', 4, 32))
	}
	sb.WriteByte(')')
	return sb.String()
}

// Range describes the editable span of a parameter. It is a hint for editors and
// is not enforced on Set; use a validator for hard constraints.
type Range struct {
	Min, Max float32
	Step     float32
}

// Validator checks a candidate value before it is stored.
type Validator func(Value) error

// Option configures a parameter at declaration.
type Option func(*Parameter)

// WithValidator installs fn as the parameter's validator. The initial value is validated too.
func WithValidator(fn Validator) Option {
	return func(p *Parameter) { p.validate = fn }
}

// WithLabel sets a human readable label shown by editors instead of the parameter name.
func WithLabel(label string) Option {
	return func(p *Parameter) { p.label = label }
}

// Parameter is a named, typed value owned by the effect module that declared it.
type Parameter struct {
	name      string
	namespace string
	label     string
	kind      Kind
	value     Value
	rng       Range
	validate  Validator
	version   uint64
	store     *Store
}

// Name returns the parameter name within its namespace.
func (p *Parameter) Name() string { return p.name }

// Namespace returns the namespace the parameter was declared in.
func (p *Parameter) Namespace() string { return p.namespace }

// FullName returns "namespace.name".
func (p *Parameter) FullName() string {
	if p.namespace == "" {
		return p.name
	}
	return p.namespace + "." + p.name
}

// Label returns the editor label of the parameter.
func (p *Parameter) Label() string {
	if p.label != "" {
		return p.label
	}
	return p.name
}

func (p *Parameter) Kind() Kind   { return p.kind }
func (p *Parameter) Range() Range { return p.rng }

// Value returns the current value of the parameter.
func (p *Parameter) Value() Value { return p.value }

// Scalar returns the first component of the parameter's value.
func (p *Parameter) Scalar() float32 { return p.value[0] }

// Version is incremented on every successful Set. Renderers use it to skip uniform uploads.
func (p *Parameter) Version() uint64 { return p.version }

// Set validates and stores v. The last write before an evaluation wins.
func (p *Parameter) Set(v Value) error {
	n := p.kind.Components()
	for i := 0; i < n; i++ {
		if math32.IsNaN(v[i]) || math32.IsInf(v[i], 0) {
			return fmt.Errorf("%w: %s component %d is %v", ErrInvalidValue, p.FullName(), i, v[i])
		}
	}
	for i := n; i < len(v); i++ {
		v[i] = 0
	}
	if p.validate != nil {
		if err := p.validate(v); err != nil {
			return fmt.Errorf("%s: %w", p.FullName(), err)
		}
	}
	p.value = v
	p.version++
	return nil
}

// SetScalar is shorthand for Set(ScalarValue(v)).
func (p *Parameter) SetScalar(v float32) error { return p.Set(ScalarValue(v)) }

// Step nudges component comp of the value by dir range steps, clamped to the range.
// A parameter with an empty range is nudged by 1% of its magnitude.
func (p *Parameter) Step(comp int, dir float32) error {
	if comp < 0 || comp >= p.kind.Components() {
		return fmt.Errorf("%s: component %d out of range for %s", p.FullName(), comp, p.kind)
	}
	v := p.value
	step := p.rng.Step
	if step == 0 {
		step = math32.Max(math32.Abs(v[comp])*0.01, 1e-3)
	}
	v[comp] += dir * step
	if p.rng.Max > p.rng.Min {
		v[comp] = ms1.Clamp(v[comp], p.rng.Min, p.rng.Max)
	}
	return p.Set(v)
}

// String returns a "namespace.name=value" representation of the parameter.
func (p *Parameter) String() string {
	return p.FullName() + "=" + p.value.format(p.kind)
}
