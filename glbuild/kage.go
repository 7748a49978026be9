package glbuild

import (
	"fmt"
	"io"

	"github.com/soypat/gnode"
	"github.com/soypat/gnode/glbuild/glsllib"
)

// Kage built-in uniform names set by the renderer.
const (
	KageTime        = "Time"
	KageResolution  = "Resolution"
	KageNormalWorld = "NormalWorld"
)

// WriteKage writes an ebiten Kage fragment shader computing color.
// The local position is expected in the vertex color's RGB components and the
// world normal in the NormalWorld uniform. Texture slots map to images in
// [gnode.Builder.Textures] order and are sampled with v pointing up.
// When the graph samples textures, UVs are read from the source position
// normalized by image 0's size; otherwise the source position is the UV.
// The screen coordinate input has y pointing up like gl_FragCoord.
// The returned color is premultiplied by alpha.
func (p *Programmer) WriteKage(w io.Writer, bld *gnode.Builder, color gnode.Node) (int, []ShaderObject, error) {
	if color.Shape() != gnode.Vec4 {
		return 0, nil, fmt.Errorf("fragment color must be vec4, got %s", color.Shape())
	}
	order, err := stageOrder(bld, color)
	if err != nil {
		return 0, nil, err
	}
	e := newEmitter(Kage, StageFragment, bld)
	textures := bld.Textures()
	e.kageUV = "srcPos"
	if len(textures) > 0 {
		e.kageUV = "((srcPos - imageSrc0Origin()) / imageSrc0Size())"
	}
	body := e.appendBody(nil, order)
	result := e.appendRef(nil, color)
	if e.err != nil {
		return 0, nil, e.err
	}
	b := append(p.scratch[:0], "//kage:unit pixels\n\npackage main\n\n"...)
	b = fmt.Appendf(b, "var %s float\nvar %s vec2\nvar %s vec3\n", KageTime, KageResolution, KageNormalWorld)
	for _, obj := range e.objs {
		if obj.Kind == ObjectParameter {
			b = fmt.Appendf(b, "var %s %s\n", obj.Name, obj.Shape)
		}
	}
	b = append(b, '\n')
	for _, obj := range e.objs {
		if obj.Kind == ObjectTexture {
			b = fmt.Appendf(b, "func %s(uv vec2) vec4 {\n\treturn imageSrc%dAt(imageSrc%dOrigin() + vec2(uv.x, 1-uv.y)*imageSrc%dSize())\n}\n\n",
				obj.Name, obj.Binding, obj.Binding, obj.Binding)
		}
	}
	b = appendFunctions(b, glsllib.Kage(), body)
	b = append(b, "func Fragment(dstPos vec4, srcPos vec2, color vec4) vec4 {\n"...)
	b = append(b, body...)
	b = append(b, "\tc := "...)
	b = append(b, result...)
	b = append(b, "\n\treturn vec4(c.rgb*c.a, c.a)\n}\n"...)
	p.scratch = b
	n, err := w.Write(b)
	return n, e.objs, err
}
