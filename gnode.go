// Package gnode builds shading expressions as directed acyclic graphs of typed nodes.
// Graphs are built once through a [Builder] and then handed to code generators
// (package glbuild) and evaluators (package gleval) which walk them in dependency order.
package gnode

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/soypat/gnode/param"
)

var (
	ErrShapeMismatch        = errors.New("shape mismatch")
	ErrDegenerateRemapRange = errors.New("degenerate remap range")
	ErrCycle                = errors.New("graph contains a cycle")
	ErrForeignNode          = errors.New("node belongs to another builder")
	errZeroNode             = errors.New("zero value node argument")
)

// Shape is the type of the value a node produces.
type Shape uint8

const (
	ShapeInvalid Shape = iota
	Float
	Vec2
	Vec3
	Vec4
)

// Components returns the number of float components of the shape.
func (s Shape) Components() int {
	if s > Vec4 {
		return 0
	}
	return int(s)
}

func (s Shape) String() string {
	switch s {
	case Float:
		return "float"
	case Vec2:
		return "vec2"
	case Vec3:
		return "vec3"
	case Vec4:
		return "vec4"
	}
	return "Shape(" + strconv.Itoa(int(s)) + ")"
}

// ShapeOf returns the shape with n components or ShapeInvalid.
func ShapeOf(n int) Shape {
	if n < 1 || n > 4 {
		return ShapeInvalid
	}
	return Shape(n)
}

// ShapeError is returned when operands of incompatible shapes are combined.
type ShapeError struct {
	Op     string
	Shapes []Shape
	Reason string
}

func (e *ShapeError) Error() string {
	msg := "gnode: " + e.Op + ": shape mismatch"
	for i, s := range e.Shapes {
		if i == 0 {
			msg += " "
		} else {
			msg += ", "
		}
		msg += s.String()
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *ShapeError) Unwrap() error { return ErrShapeMismatch }

// Input identifies a value provided by the rasterizer to every vertex or fragment.
type Input uint8

const (
	InputInvalid Input = iota
	InputUV
	InputPosition    // Local (object space) position.
	InputNormal      // World space normal.
	InputScreenCoord // Fragment coordinate in pixels.
	InputScreenSize  // Render target size in pixels.
	InputTime        // Seconds since start.
	inputEnd
)

var inputInfo = [...]struct {
	name  string
	shape Shape
}{
	InputUV:          {"uv", Vec2},
	InputPosition:    {"positionLocal", Vec3},
	InputNormal:      {"normalWorld", Vec3},
	InputScreenCoord: {"screenCoordinate", Vec2},
	InputScreenSize:  {"screenSize", Vec2},
	InputTime:        {"time", Float},
}

func (in Input) Shape() Shape {
	if in == InputInvalid || in >= inputEnd {
		return ShapeInvalid
	}
	return inputInfo[in].shape
}

func (in Input) String() string {
	if in == InputInvalid || in >= inputEnd {
		return "Input(" + strconv.Itoa(int(in)) + ")"
	}
	return inputInfo[in].name
}

// ScreenSpace reports whether the input only exists per fragment.
func (in Input) ScreenSpace() bool { return in == InputScreenCoord }

// node is an arena entry. It is comparable so it doubles as its own hash-consing key.
type node struct {
	op    Op
	shape Shape
	nargs uint8
	args  [4]uint32
	// ref indexes into the builder's parameter or texture tables,
	// holds the Input kind or the packed swizzle indices depending on op.
	ref uint32
	val [4]float32
}

// Builder creates graph nodes. Nodes are stored in an arena and deduplicated so that
// identical subexpressions share a single node. Provides error handling strategies
// with panics or error accumulation during graph construction.
type Builder struct {
	// NoShapePanic makes constructors record errors instead of panicking.
	// Constructors then return an invalid node which propagates through
	// dependent constructors without recording further errors. See [Builder.Err].
	NoShapePanic bool
	nodes        []node
	dedup        map[node]uint32
	params       []*param.Parameter
	paramIdx     map[*param.Parameter]uint32
	textures     []string
	texIdx       map[string]uint32
	accumErrs    []error
}

// Err returns the errors accumulated while NoShapePanic was set.
func (bld *Builder) Err() error {
	if len(bld.accumErrs) == 0 {
		return nil
	}
	return errors.Join(bld.accumErrs...)
}

// Len returns the number of nodes in the builder.
func (bld *Builder) Len() int {
	if len(bld.nodes) == 0 {
		return 0
	}
	return len(bld.nodes) - 1
}

// Parameters returns the parameters referenced by nodes of the builder.
func (bld *Builder) Parameters() []*param.Parameter {
	return append([]*param.Parameter(nil), bld.params...)
}

// Textures returns the texture slot names referenced by sample nodes of the builder.
func (bld *Builder) Textures() []string {
	return append([]string(nil), bld.textures...)
}

// Node returns the node at index id as returned by [Node.ID].
func (bld *Builder) Node(id int) Node {
	if id <= 0 || id >= len(bld.nodes) {
		return Node{bld: bld}
	}
	return Node{bld: bld, idx: uint32(id)}
}

func (bld *Builder) fail(err error) Node {
	if !bld.NoShapePanic {
		panic(err)
	}
	bld.accumErrs = append(bld.accumErrs, err)
	return Node{bld: bld}
}

func (bld *Builder) shapeErr(op Op, reason string, args ...Node) Node {
	return bld.namedShapeErr(op.String(), reason, args...)
}

func (bld *Builder) namedShapeErr(name, reason string, args ...Node) Node {
	shapes := make([]Shape, len(args))
	for i := range args {
		shapes[i] = args[i].Shape()
	}
	return bld.fail(&ShapeError{Op: name, Shapes: shapes, Reason: reason})
}

// check validates that the arguments belong to bld. ok is false if the caller
// must return invalid immediately, in which case result is that node.
func (bld *Builder) check(op Op, args ...Node) (result Node, ok bool) {
	return bld.checkNamed(op.String(), args...)
}

// checkNamed is check for derived constructors with no operator of their own.
func (bld *Builder) checkNamed(name string, args ...Node) (result Node, ok bool) {
	for _, a := range args {
		switch {
		case a.bld == nil:
			return bld.fail(fmt.Errorf("gnode: %s: %w", name, errZeroNode)), false
		case a.bld != bld:
			return bld.fail(fmt.Errorf("gnode: %s: %w", name, ErrForeignNode)), false
		case a.idx == 0:
			// Error was recorded by the constructor that produced a.
			return Node{bld: bld}, false
		}
	}
	return Node{}, true
}

func (bld *Builder) add(n node) Node {
	if len(bld.nodes) == 0 {
		bld.nodes = append(bld.nodes, node{}) // Index zero is the invalid node.
		bld.dedup = make(map[node]uint32)
	}
	if idx, ok := bld.dedup[n]; ok {
		return Node{bld: bld, idx: idx}
	}
	idx := uint32(len(bld.nodes))
	bld.nodes = append(bld.nodes, n)
	bld.dedup[n] = idx
	return Node{bld: bld, idx: idx}
}

func (bld *Builder) addOp(op Op, shape Shape, args ...Node) Node {
	n := node{op: op, shape: shape, nargs: uint8(len(args))}
	for i := range args {
		n.args[i] = args[i].idx
	}
	return bld.add(n)
}

// Node is a handle to an immutable graph node. The zero value is invalid.
type Node struct {
	bld *Builder
	idx uint32
}

func (n Node) get() *node {
	if n.bld == nil || n.idx == 0 || int(n.idx) >= len(n.bld.nodes) {
		return &node{}
	}
	return &n.bld.nodes[n.idx]
}

// Valid reports whether the node was successfully constructed.
func (n Node) Valid() bool { return n.bld != nil && n.idx != 0 && int(n.idx) < len(n.bld.nodes) }

// Builder returns the builder that created the node.
func (n Node) Builder() *Builder { return n.bld }

// ID returns the arena index of the node. IDs are unique within a builder.
func (n Node) ID() int { return int(n.idx) }

func (n Node) Op() Op       { return n.get().op }
func (n Node) Shape() Shape { return n.get().shape }

// NumArgs returns the number of operands of the node.
func (n Node) NumArgs() int { return int(n.get().nargs) }

// Arg returns the i'th operand of the node.
func (n Node) Arg(i int) Node {
	nd := n.get()
	if i < 0 || i >= int(nd.nargs) {
		return Node{bld: n.bld}
	}
	return Node{bld: n.bld, idx: nd.args[i]}
}

// Literal returns the components of a constant node.
func (n Node) Literal() [4]float32 { return n.get().val }

// Parameter returns the parameter referenced by an OpParam node or nil.
func (n Node) Parameter() *param.Parameter {
	nd := n.get()
	if nd.op != OpParam || int(nd.ref) >= len(n.bld.params) {
		return nil
	}
	return n.bld.params[nd.ref]
}

// Input returns the rasterizer input read by an OpInput node.
func (n Node) Input() Input {
	nd := n.get()
	if nd.op != OpInput {
		return InputInvalid
	}
	return Input(nd.ref)
}

// TextureSlot returns the texture slot name sampled by an OpSample node.
func (n Node) TextureSlot() string {
	nd := n.get()
	if nd.op != OpSample || int(nd.ref) >= len(n.bld.textures) {
		return ""
	}
	return n.bld.textures[nd.ref]
}

// Swizzle returns the component indices selected by an OpSwizzle node.
func (n Node) Swizzle() []int {
	nd := n.get()
	if nd.op != OpSwizzle {
		return nil
	}
	idx := make([]int, nd.shape.Components())
	for i := range idx {
		idx[i] = int(nd.ref>>(2*i)) & 3
	}
	return idx
}

func (n Node) String() string {
	if !n.Valid() {
		return "<invalid>"
	}
	return FormatNode(n)
}
