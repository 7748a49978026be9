package gnode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/soypat/gnode/param"
)

const (
	encMagic   = "GNOD"
	encVersion = 1
)

var errShortData = errors.New("gnode: decode: unexpected end of data")

// AppendBinary appends a binary encoding of the graph reachable from roots to dst.
// Parameters are encoded by full name and textures by slot name.
func (bld *Builder) AppendBinary(dst []byte, roots ...Node) ([]byte, error) {
	order, err := bld.TopoOrder(roots...)
	if err != nil {
		return dst, err
	}
	// Renumber reachable nodes densely starting at 1.
	renum := make(map[uint32]uint32, len(order))
	params := map[uint32]uint32{}
	textures := map[uint32]uint32{}
	var paramNames, texNames []string
	for i, n := range order {
		renum[n.idx] = uint32(i + 1)
		nd := n.get()
		switch nd.op {
		case OpParam:
			if _, ok := params[nd.ref]; !ok {
				params[nd.ref] = uint32(len(paramNames))
				paramNames = append(paramNames, bld.params[nd.ref].FullName())
			}
		case OpSample:
			if _, ok := textures[nd.ref]; !ok {
				textures[nd.ref] = uint32(len(texNames))
				texNames = append(texNames, bld.textures[nd.ref])
			}
		}
	}
	dst = append(dst, encMagic...)
	dst = append(dst, encVersion)
	dst = appendStrings(dst, paramNames)
	dst = appendStrings(dst, texNames)
	dst = binary.AppendUvarint(dst, uint64(len(order)))
	for _, n := range order {
		nd := n.get()
		dst = append(dst, byte(nd.op), byte(nd.shape), nd.nargs)
		for i := 0; i < int(nd.nargs); i++ {
			dst = binary.AppendUvarint(dst, uint64(renum[nd.args[i]]))
		}
		ref := nd.ref
		switch nd.op {
		case OpParam:
			ref = params[ref]
		case OpSample:
			ref = textures[ref]
		}
		dst = binary.AppendUvarint(dst, uint64(ref))
		if nd.op == OpConst {
			for i := 0; i < nd.shape.Components(); i++ {
				dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(nd.val[i]))
			}
		}
	}
	dst = binary.AppendUvarint(dst, uint64(len(roots)))
	for _, r := range roots {
		dst = binary.AppendUvarint(dst, uint64(renum[r.idx]))
	}
	return dst, nil
}

func appendStrings(dst []byte, strs []string) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(strs)))
	for _, s := range strs {
		dst = binary.AppendUvarint(dst, uint64(len(s)))
		dst = append(dst, s...)
	}
	return dst
}

type decoder struct {
	data []byte
	err  error
}

func (d *decoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.data)
	if n <= 0 {
		d.err = errShortData
		return 0
	}
	d.data = d.data[n:]
	return v
}

func (d *decoder) bytes(n uint64) []byte {
	if d.err != nil {
		return nil
	}
	if uint64(len(d.data)) < n {
		d.err = errShortData
		return nil
	}
	b := d.data[:n]
	d.data = d.data[n:]
	return b
}

func (d *decoder) strings() []string {
	n := d.uvarint()
	if n > uint64(len(d.data)) {
		d.err = errShortData
		return nil
	}
	strs := make([]string, 0, n)
	for i := uint64(0); i < n && d.err == nil; i++ {
		strs = append(strs, string(d.bytes(d.uvarint())))
	}
	return strs
}

// Decode decodes a graph encoded with [Builder.AppendBinary] into a new Builder.
// Parameter references are resolved by full name in store. The decoded graph is checked
// for cycles and every node is rebuilt through the Builder constructors so shape rules hold.
func Decode(data []byte, store *param.Store) (*Builder, []Node, error) {
	if len(data) < len(encMagic)+1 || string(data[:len(encMagic)]) != encMagic {
		return nil, nil, errors.New("gnode: decode: bad magic")
	} else if data[len(encMagic)] != encVersion {
		return nil, nil, fmt.Errorf("gnode: decode: unsupported version %d", data[len(encMagic)])
	}
	d := decoder{data: data[len(encMagic)+1:]}
	paramNames := d.strings()
	texNames := d.strings()
	nnodes := d.uvarint()
	if d.err != nil {
		return nil, nil, d.err
	} else if nnodes > uint64(len(d.data)) {
		return nil, nil, errShortData
	}
	params := make([]*param.Parameter, len(paramNames))
	for i, name := range paramNames {
		params[i] = store.Lookup(name)
		if params[i] == nil {
			return nil, nil, fmt.Errorf("gnode: decode: parameter %q not found in store", name)
		}
	}
	// raw holds the graph as encoded, operands may point anywhere.
	raw := &Builder{
		nodes:    make([]node, 1, nnodes+1),
		params:   params,
		textures: texNames,
	}
	for i := uint64(0); i < nnodes && d.err == nil; i++ {
		hdr := d.bytes(3)
		if d.err != nil {
			break
		}
		nd := node{op: Op(hdr[0]), shape: Shape(hdr[1]), nargs: hdr[2]}
		if nd.op == OpInvalid || nd.op >= opEnd || nd.shape.Components() == 0 || nd.nargs > 4 {
			return nil, nil, fmt.Errorf("gnode: decode: malformed node %d", i+1)
		}
		for j := 0; j < int(nd.nargs); j++ {
			arg := d.uvarint()
			if arg == 0 || arg > nnodes {
				return nil, nil, fmt.Errorf("gnode: decode: node %d operand %d out of range", i+1, arg)
			}
			nd.args[j] = uint32(arg)
		}
		nd.ref = uint32(d.uvarint())
		if nd.op == OpConst {
			for j := 0; j < nd.shape.Components(); j++ {
				b := d.bytes(4)
				if d.err != nil {
					break
				}
				nd.val[j] = math.Float32frombits(binary.LittleEndian.Uint32(b))
			}
		}
		raw.nodes = append(raw.nodes, nd)
	}
	nroots := d.uvarint()
	var rawRoots []Node
	for i := uint64(0); i < nroots && d.err == nil; i++ {
		r := d.uvarint()
		if r == 0 || r > nnodes {
			return nil, nil, fmt.Errorf("gnode: decode: root %d out of range", r)
		}
		rawRoots = append(rawRoots, Node{bld: raw, idx: uint32(r)})
	}
	if d.err != nil {
		return nil, nil, d.err
	}
	order, err := raw.TopoOrder(rawRoots...)
	if err != nil {
		return nil, nil, err
	}
	bld := &Builder{NoShapePanic: true}
	mapped := make([]Node, len(raw.nodes))
	for _, rn := range order {
		nd := rn.get()
		var args [4]Node
		for j := 0; j < int(nd.nargs); j++ {
			args[j] = mapped[nd.args[j]]
		}
		n, err := bld.replay(raw, nd, args[:nd.nargs])
		if err != nil {
			return nil, nil, fmt.Errorf("gnode: decode: node %d: %w", rn.idx, err)
		}
		mapped[rn.idx] = n
	}
	if err := bld.Err(); err != nil {
		return nil, nil, err
	}
	bld.NoShapePanic = false
	roots := make([]Node, len(rawRoots))
	for i, r := range rawRoots {
		roots[i] = mapped[r.idx]
	}
	return bld, roots, nil
}

func (bld *Builder) replay(raw *Builder, nd *node, args []Node) (Node, error) {
	arity := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("%s expects %d operands, got %d", nd.op, n, len(args))
		}
		return nil
	}
	var err error
	switch nd.op {
	case OpConst:
		if err = arity(0); err == nil {
			return bld.Const(nd.val[:nd.shape.Components()]...), nil
		}
	case OpParam:
		if int(nd.ref) >= len(raw.params) {
			return Node{}, errors.New("parameter reference out of range")
		}
		return bld.Param(raw.params[nd.ref]), nil
	case OpInput:
		return bld.Input(Input(nd.ref)), nil
	case OpSample:
		if int(nd.ref) >= len(raw.textures) {
			return Node{}, errors.New("texture reference out of range")
		}
		if err = arity(1); err == nil {
			return bld.Sample(raw.textures[nd.ref], args[0]), nil
		}
	case OpLength:
		if err = arity(1); err == nil {
			return bld.Length(args[0]), nil
		}
	case OpNormalize:
		if err = arity(1); err == nil {
			return bld.Normalize(args[0]), nil
		}
	case OpHash:
		if err = arity(1); err == nil {
			return bld.Hash(args[0]), nil
		}
	case OpSwizzle:
		if err = arity(1); err == nil {
			comps := make([]byte, nd.shape.Components())
			for i := range comps {
				comps[i] = "xyzw"[nd.ref>>(2*i)&3]
			}
			return bld.Swizzle(args[0], string(comps)), nil
		}
	case OpDot:
		if err = arity(2); err == nil {
			return bld.Dot(args[0], args[1]), nil
		}
	case OpDistance:
		if err = arity(2); err == nil {
			return bld.Distance(args[0], args[1]), nil
		}
	case OpRotate:
		if err = arity(2); err == nil {
			return bld.Rotate(args[0], args[1]), nil
		}
	case OpCompose:
		return bld.Compose(nd.shape, args...), nil
	default:
		if !nd.op.Elementwise() {
			return Node{}, fmt.Errorf("unknown operator %s", nd.op)
		}
		want := 2
		switch nd.op {
		case OpNeg, OpFloor, OpFract, OpExp, OpSin, OpCos, OpAbs, OpSqrt:
			want = 1
		case OpClamp, OpMix, OpSmoothStep:
			want = 3
		}
		if err = arity(want); err == nil {
			return bld.elementwise(nd.op, args...), nil
		}
	}
	return Node{}, err
}
