package glbuild

import (
	"fmt"
	"io"

	"github.com/soypat/gnode"
	"github.com/soypat/gnode/glbuild/glsllib"
)

// Vertex attribute locations used by generated GLSL vertex shaders.
const (
	AttribPosition = 0
	AttribNormal   = 1
	AttribUV       = 2
)

const glslVertexHeader = VersionStr + `
layout(location = 0) in vec3 aPosition;
layout(location = 1) in vec3 aNormal;
layout(location = 2) in vec2 aUV;

uniform mat4 uModel;
uniform mat4 uView;
uniform mat4 uProjection;
uniform float uTime;
uniform vec2 uResolution;

out vec2 vUV;
out vec3 vPosition;
out vec3 vNormal;
`

const glslFragmentHeader = VersionStr + `
in vec2 vUV;
in vec3 vPosition;
in vec3 vNormal;

uniform float uTime;
uniform vec2 uResolution;

out vec4 fragColor;
`

func (p *Programmer) appendGLSLDecls(b []byte, objs []ShaderObject) []byte {
	for _, obj := range objs {
		switch obj.Kind {
		case ObjectParameter:
			b = fmt.Appendf(b, "uniform %s %s;\n", obj.Shape, obj.Name)
		case ObjectTexture:
			b = fmt.Appendf(b, "uniform sampler2D %s;\n", obj.Name)
		}
	}
	return b
}

// WriteGLSLVertex writes a vertex shader that displaces each vertex along the
// vec3 offset graph. An invalid offset node writes an undisplaced vertex shader.
func (p *Programmer) WriteGLSLVertex(w io.Writer, bld *gnode.Builder, offset gnode.Node) (int, []ShaderObject, error) {
	e := newEmitter(GLSL, StageVertex, bld)
	var body []byte
	offsetExpr := []byte("vec3(0.0)")
	if offset.Valid() {
		if offset.Shape() != gnode.Vec3 {
			return 0, nil, fmt.Errorf("vertex offset must be vec3, got %s", offset.Shape())
		}
		order, err := stageOrder(bld, offset)
		if err != nil {
			return 0, nil, err
		}
		body = e.appendBody(nil, order)
		offsetExpr = e.appendRef(nil, offset)
	}
	if e.err != nil {
		return 0, nil, e.err
	}
	b := append(p.scratch[:0], glslVertexHeader...)
	b = p.appendGLSLDecls(b, e.objs)
	b = append(b, '\n')
	b = appendFunctions(b, glsllib.GLSL(), body)
	b = append(b, "void main() {\n"...)
	b = append(b, "\tvUV = aUV;\n\tvPosition = aPosition;\n\tvNormal = normalize(mat3(uModel) * aNormal);\n"...)
	b = append(b, body...)
	b = append(b, "\tvec3 offset = "...)
	b = append(b, offsetExpr...)
	b = append(b, ";\n\tgl_Position = uProjection * uView * uModel * vec4(aPosition + offset, 1.0);\n}\n"...)
	p.scratch = b
	n, err := w.Write(b)
	return n, e.objs, err
}

// WriteGLSLFragment writes a fragment shader that outputs the vec4 color graph.
func (p *Programmer) WriteGLSLFragment(w io.Writer, bld *gnode.Builder, color gnode.Node) (int, []ShaderObject, error) {
	if color.Shape() != gnode.Vec4 {
		return 0, nil, fmt.Errorf("fragment color must be vec4, got %s", color.Shape())
	}
	order, err := stageOrder(bld, color)
	if err != nil {
		return 0, nil, err
	}
	e := newEmitter(GLSL, StageFragment, bld)
	body := e.appendBody(nil, order)
	result := e.appendRef(nil, color)
	if e.err != nil {
		return 0, nil, e.err
	}
	b := append(p.scratch[:0], glslFragmentHeader...)
	b = p.appendGLSLDecls(b, e.objs)
	b = append(b, '\n')
	b = appendFunctions(b, glsllib.GLSL(), body)
	b = append(b, "void main() {\n"...)
	b = append(b, body...)
	b = append(b, "\tfragColor = "...)
	b = append(b, result...)
	b = append(b, ";\n}\n"...)
	p.scratch = b
	n, err := w.Write(b)
	return n, e.objs, err
}

// WriteComputeGLSL writes a compute shader evaluating roots for every element of the
// input buffers. Inputs are packed in three std430 vec4 buffers:
//
//	binding 0: position.xyz, uv.x
//	binding 1: normal.xyz, uv.y
//	binding 2: fragCoord.xy
//
// Root i is written as a vec4 to the buffer at binding 3+i.
// Texture sampling is not supported in compute evaluation.
func (p *Programmer) WriteComputeGLSL(w io.Writer, bld *gnode.Builder, roots ...gnode.Node) (int, []ShaderObject, error) {
	if len(roots) == 0 {
		return 0, nil, fmt.Errorf("no roots")
	}
	order, err := stageOrder(bld, roots...)
	if err != nil {
		return 0, nil, err
	}
	for _, n := range order {
		if n.Op() == gnode.OpSample {
			return 0, nil, fmt.Errorf("compute evaluation does not support texture sampling (slot %q)", n.TextureSlot())
		}
	}
	e := newEmitter(GLSL, StageCompute, bld)
	body := e.appendBody(nil, order)
	if e.err != nil {
		return 0, nil, e.err
	}
	b := append(p.scratch[:0], VersionStr...)
	b = fmt.Appendf(b, "layout(local_size_x = %d, local_size_y = 1, local_size_z = 1) in;\n\n", p.invocX)
	b = append(b, `layout(std430, binding = 0) buffer VaryingA {
	vec4 vary_a[];
};
layout(std430, binding = 1) buffer VaryingB {
	vec4 vary_b[];
};
layout(std430, binding = 2) buffer VaryingC {
	vec4 vary_c[];
};
`...)
	for i := range roots {
		b = fmt.Appendf(b, "layout(std430, binding = %d) buffer Out%d {\n\tvec4 out%d[];\n};\n", 3+i, i, i)
	}
	b = append(b, "\nuniform float uTime;\nuniform vec2 uResolution;\n"...)
	b = p.appendGLSLDecls(b, e.objs)
	b = append(b, '\n')
	b = appendFunctions(b, glsllib.GLSL(), body)
	b = append(b, `void main() {
	int idx = int(gl_GlobalInvocationID.x);
	vec2 vUV = vec2(vary_a[idx].w, vary_b[idx].w);
	vec3 vPosition = vary_a[idx].xyz;
	vec3 vNormal = vary_b[idx].xyz;
	vec2 vFragCoord = vary_c[idx].xy;
`...)
	b = append(b, body...)
	for i, root := range roots {
		b = fmt.Appendf(b, "\tout%d[idx] = ", i)
		b = appendPadVec4(e, b, root)
		b = append(b, ";\n"...)
	}
	b = append(b, "}\n"...)
	p.scratch = b
	n, err := w.Write(b)
	return n, e.objs, err
}

func appendPadVec4(e *emitter, b []byte, n gnode.Node) []byte {
	switch n.Shape() {
	case gnode.Vec4:
		return e.appendRef(b, n)
	case gnode.Float:
		b = append(b, "vec4("...)
		b = e.appendRef(b, n)
		return append(b, ", 0.0, 0.0, 0.0)"...)
	case gnode.Vec2:
		b = append(b, "vec4("...)
		b = e.appendRef(b, n)
		return append(b, ", 0.0, 0.0)"...)
	default:
		b = append(b, "vec4("...)
		b = e.appendRef(b, n)
		return append(b, ", 0.0)"...)
	}
}
