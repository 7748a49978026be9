// Package surface attaches composed node graphs to drawable meshes. Binding a
// graph is the single batch step in which the graph is validated, compiled for
// CPU evaluation and emitted as GLSL for the vertex and fragment stages.
package surface

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"

	"github.com/soypat/gnode"
	"github.com/soypat/gnode/glbuild"
	"github.com/soypat/gnode/gleval"
)

// ErrStageInput is returned when the position stage reads a fragment-only input.
var ErrStageInput = glbuild.ErrStageInput

// Material configures how a surface is blended into its render target.
type Material struct {
	// Transparent surfaces are blended with source-over using the color alpha.
	// Opaque surfaces overwrite the destination.
	Transparent bool
}

// Surface is a drawable bound to exactly one composed graph. The bound graph may
// be replaced by calling Bind again.
type Surface struct {
	Name     string
	Geometry Geometry
	Material Material
	binding  *Binding
}

// New returns an unbound surface.
func New(name string, geom Geometry, mat Material) *Surface {
	return &Surface{Name: name, Geometry: geom, Material: mat}
}

// Binding returns the current binding or nil if the surface was never bound.
func (s *Surface) Binding() *Binding { return s.binding }

// Bind validates out and attaches it to the color and position stages of the surface.
// On error the previous binding is kept.
func (s *Surface) Bind(bld *gnode.Builder, out gnode.EffectOutput) error {
	b, err := bind(bld, out)
	if err != nil {
		return fmt.Errorf("surface %q: %w", s.Name, err)
	}
	s.binding = b
	gnode.Logger().Info("surface bound", slog.String("surface", s.Name),
		slog.Int("fragmentNodes", b.Fragment.NumNodes()), slog.Bool("displaced", b.Vertex != nil),
		slog.Int("textures", len(bld.Textures())))
	gnode.Logger().Debug("surface shaders", slog.String("surface", s.Name),
		slog.Int("vertexGLSL", len(b.VertexGLSL)), slog.Int("fragmentGLSL", len(b.FragmentGLSL)))
	return nil
}

// Binding is a graph attached to a surface, ready to be drawn by any renderer.
type Binding struct {
	Builder *gnode.Builder
	Color   gnode.Node
	// Offset is the vertex displacement. Invalid when the surface is not displaced.
	Offset gnode.Node

	// Fragment evaluates Color. Vertex evaluates Offset and is nil when there is none.
	Fragment *gleval.Program
	Vertex   *gleval.Program

	VertexGLSL      string
	FragmentGLSL    string
	VertexObjects   []glbuild.ShaderObject
	FragmentObjects []glbuild.ShaderObject

	programmer *glbuild.Programmer
	wgslSrc    string
	wgslObjs   []glbuild.ShaderObject
	kageSrc    string
	kageObjs   []glbuild.ShaderObject
}

// Textures returns the texture slots read by the bound graph in unit order.
func (b *Binding) Textures() []string { return b.Builder.Textures() }

// WGSL returns a WGSL module with vs_main and fs_main entry points for the binding.
func (b *Binding) WGSL() (string, []glbuild.ShaderObject, error) {
	if b.wgslSrc == "" {
		var buf bytes.Buffer
		_, objs, err := b.programmer.WriteWGSL(&buf, b.Builder, b.Color, b.Offset)
		if err != nil {
			return "", nil, err
		}
		b.wgslSrc, b.wgslObjs = buf.String(), objs
	}
	return b.wgslSrc, b.wgslObjs, nil
}

// Kage returns an ebiten Kage shader computing the binding's color. Kage has no
// vertex stage so the offset must be applied by evaluating [Binding.Vertex] on the CPU.
func (b *Binding) Kage() (string, []glbuild.ShaderObject, error) {
	if b.kageSrc == "" {
		var buf bytes.Buffer
		_, objs, err := b.programmer.WriteKage(&buf, b.Builder, b.Color)
		if err != nil {
			return "", nil, err
		}
		b.kageSrc, b.kageObjs = buf.String(), objs
	}
	return b.kageSrc, b.kageObjs, nil
}

func bind(bld *gnode.Builder, out gnode.EffectOutput) (*Binding, error) {
	if bld == nil {
		return nil, errors.New("nil builder")
	}
	if err := bld.Err(); err != nil {
		return nil, err
	}
	if !out.Color.Valid() {
		return nil, errors.New("missing color output")
	} else if out.Color.Builder() != bld {
		return nil, gnode.ErrForeignNode
	} else if out.Color.Shape() != gnode.Vec4 {
		return nil, &gnode.ShapeError{Op: "bind", Shapes: []gnode.Shape{out.Color.Shape()}, Reason: "color must be vec4"}
	}
	roots := []gnode.Node{out.Color}
	displaced := out.PositionOffset.Valid()
	if displaced {
		if out.PositionOffset.Builder() != bld {
			return nil, gnode.ErrForeignNode
		} else if out.PositionOffset.Shape() != gnode.Vec3 {
			return nil, &gnode.ShapeError{Op: "bind", Shapes: []gnode.Shape{out.PositionOffset.Shape()}, Reason: "position offset must be vec3"}
		}
		roots = append(roots, out.PositionOffset)
	}
	if err := bld.CheckAcyclic(roots...); err != nil {
		return nil, err
	}
	b := &Binding{
		Builder:    bld,
		Color:      out.Color,
		programmer: glbuild.NewDefaultProgrammer(),
	}
	var err error
	if displaced {
		screenSpace, err := bld.Uses(func(n gnode.Node) bool {
			return n.Op() == gnode.OpInput && n.Input().ScreenSpace()
		}, out.PositionOffset)
		if err != nil {
			return nil, err
		} else if screenSpace {
			return nil, fmt.Errorf("position offset reads %s: %w", gnode.InputScreenCoord, ErrStageInput)
		}
		b.Offset = out.PositionOffset
		b.Vertex, err = gleval.Compile(bld, out.PositionOffset)
		if err != nil {
			return nil, err
		}
	}
	b.Fragment, err = gleval.Compile(bld, out.Color)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	_, b.VertexObjects, err = b.programmer.WriteGLSLVertex(&buf, bld, b.Offset)
	if err != nil {
		return nil, err
	}
	b.VertexGLSL = buf.String()
	buf.Reset()
	_, b.FragmentObjects, err = b.programmer.WriteGLSLFragment(&buf, bld, out.Color)
	if err != nil {
		return nil, err
	}
	b.FragmentGLSL = buf.String()
	return b, nil
}
