package gnode

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	colorWhite = iota // not visited
	colorGray         // on the DFS stack
	colorBlack        // finished
)

// TopoOrder returns the nodes reachable from roots ordered so that every node
// appears after its operands. Each node appears once. Returns [ErrCycle] if the
// graph is not acyclic, which can only happen for decoded graphs.
func (bld *Builder) TopoOrder(roots ...Node) ([]Node, error) {
	color := make([]uint8, len(bld.nodes))
	var order []Node
	type frame struct {
		idx  uint32
		next int // next operand to visit.
	}
	var stack []frame
	for _, root := range roots {
		if !root.Valid() {
			if root.bld == bld && root.idx == 0 {
				return nil, fmt.Errorf("gnode: invalid root node: %w", bld.errOrZero())
			}
			return nil, fmt.Errorf("gnode: invalid root node")
		} else if root.bld != bld {
			return nil, ErrForeignNode
		}
		if color[root.idx] != colorWhite {
			continue
		}
		stack = append(stack[:0], frame{idx: root.idx})
		color[root.idx] = colorGray
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			nd := &bld.nodes[top.idx]
			if top.next < int(nd.nargs) {
				child := nd.args[top.next]
				top.next++
				if child == 0 || int(child) >= len(bld.nodes) {
					return nil, fmt.Errorf("gnode: node %d has invalid operand %d", top.idx, child)
				}
				switch color[child] {
				case colorGray:
					return nil, fmt.Errorf("gnode: node %d reached from node %d: %w", child, top.idx, ErrCycle)
				case colorWhite:
					color[child] = colorGray
					stack = append(stack, frame{idx: child})
				}
				continue
			}
			color[top.idx] = colorBlack
			order = append(order, Node{bld: bld, idx: top.idx})
			stack = stack[:len(stack)-1]
		}
	}
	return order, nil
}

func (bld *Builder) errOrZero() error {
	if err := bld.Err(); err != nil {
		return err
	}
	return errZeroNode
}

// CheckAcyclic returns [ErrCycle] if any node reachable from roots depends on itself.
func (bld *Builder) CheckAcyclic(roots ...Node) error {
	_, err := bld.TopoOrder(roots...)
	return err
}

// Uses reports whether any node reachable from roots satisfies fn.
func (bld *Builder) Uses(fn func(Node) bool, roots ...Node) (bool, error) {
	order, err := bld.TopoOrder(roots...)
	if err != nil {
		return false, err
	}
	for _, n := range order {
		if fn(n) {
			return true, nil
		}
	}
	return false, nil
}

// FormatNode returns a readable expression of the graph rooted at n.
// Shared subexpressions are printed once per use.
func FormatNode(n Node) string {
	var sb strings.Builder
	formatNode(&sb, n, 0)
	return sb.String()
}

const maxFormatDepth = 64

func formatNode(sb *strings.Builder, n Node, depth int) {
	if depth > maxFormatDepth {
		sb.WriteString("...")
		return
	}
	nd := n.get()
	switch nd.op {
	case OpConst:
		k := nd.shape.Components()
		if k > 1 {
			sb.WriteString(nd.shape.String())
			sb.WriteByte('(')
		}
		for i := 0; i < k; i++ {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.FormatFloat(float64(nd.val[i]), 'g', -1, 32))
		}
		if k > 1 {
			sb.WriteByte(')')
		}
		return
	case OpParam:
		sb.WriteString("param(")
		if p := n.Parameter(); p != nil {
			sb.WriteString(p.FullName())
		}
		sb.WriteByte(')')
		return
	case OpInput:
		sb.WriteString(Input(nd.ref).String())
		return
	case OpInvalid:
		sb.WriteString("<invalid>")
		return
	}
	sb.WriteString(nd.op.String())
	sb.WriteByte('(')
	switch nd.op {
	case OpSample:
		sb.WriteString(n.TextureSlot())
		sb.WriteByte(',')
	case OpCompose:
		sb.WriteString(nd.shape.String())
		sb.WriteByte(',')
	}
	for i := 0; i < int(nd.nargs); i++ {
		if i > 0 {
			sb.WriteByte(',')
		}
		formatNode(sb, n.Arg(i), depth+1)
	}
	if nd.op == OpSwizzle {
		sb.WriteString(",\"")
		for _, c := range n.Swizzle() {
			sb.WriteByte("xyzw"[c])
		}
		sb.WriteByte('"')
	}
	sb.WriteByte(')')
}
