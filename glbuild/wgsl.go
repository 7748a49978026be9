package glbuild

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/gogpu/naga"
	"github.com/soypat/gnode"
	"github.com/soypat/gnode/glbuild/glsllib"
)

// WGSL resource bindings in group 0. Textures start at WGSLTextureBase,
// each texture followed by its sampler.
const (
	WGSLFrameBinding  = 0
	WGSLParamsBinding = 1
	WGSLTextureBase   = 2
)

const wgslFrameDecl = `struct Frame {
	model: mat4x4<f32>,
	view: mat4x4<f32>,
	projection: mat4x4<f32>,
	// time, resolution.x, resolution.y, unused.
	info: vec4<f32>,
}

@group(0) @binding(0) var<uniform> frame: Frame;

struct VertexOutput {
	@builtin(position) clip: vec4<f32>,
	@location(0) uv: vec2<f32>,
	@location(1) position: vec3<f32>,
	@location(2) normal: vec3<f32>,
}
`

// WriteWGSL writes a WGSL module with a vs_main vertex entry point displacing vertices
// by offset (which may be invalid for no displacement) and a fs_main fragment entry
// point returning color. Every parameter of bld is laid out in a uniform struct at
// binding 1 as one vec4 per parameter, in [gnode.Builder.Parameters] order.
func (p *Programmer) WriteWGSL(w io.Writer, bld *gnode.Builder, color, offset gnode.Node) (int, []ShaderObject, error) {
	if color.Shape() != gnode.Vec4 {
		return 0, nil, fmt.Errorf("fragment color must be vec4, got %s", color.Shape())
	}
	fragOrder, err := stageOrder(bld, color)
	if err != nil {
		return 0, nil, err
	}
	frag := newEmitter(WGSL, StageFragment, bld)
	fragBody := frag.appendBody(nil, fragOrder)
	fragResult := frag.appendRef(nil, color)
	if frag.err != nil {
		return 0, nil, frag.err
	}
	vert := newEmitter(WGSL, StageVertex, bld)
	var vertBody []byte
	offsetExpr := []byte("vec3<f32>(0.0)")
	if offset.Valid() {
		if offset.Shape() != gnode.Vec3 {
			return 0, nil, fmt.Errorf("vertex offset must be vec3, got %s", offset.Shape())
		}
		vertOrder, err := stageOrder(bld, offset)
		if err != nil {
			return 0, nil, err
		}
		vertBody = vert.appendBody(nil, vertOrder)
		offsetExpr = vert.appendRef(nil, offset)
		if vert.err != nil {
			return 0, nil, vert.err
		}
	}
	objs := mergeObjects(vert.objs, frag.objs)

	b := append(p.scratch[:0], wgslFrameDecl...)
	if params := bld.Parameters(); len(params) > 0 {
		b = append(b, "\nstruct Params {\n"...)
		for _, prm := range params {
			b = fmt.Appendf(b, "\t%s: vec4<f32>,\n", frag.uniformName(prm))
		}
		b = append(b, "}\n\n@group(0) @binding(1) var<uniform> params: Params;\n"...)
	}
	for _, obj := range objs {
		if obj.Kind == ObjectTexture {
			b = fmt.Appendf(b, "@group(0) @binding(%d) var %s: texture_2d<f32>;\n", obj.Binding, obj.Name)
			b = fmt.Appendf(b, "@group(0) @binding(%d) var s_%s: sampler;\n", obj.Binding+1, obj.Name[2:])
		}
	}
	b = append(b, '\n')
	used := append(append([]byte(nil), vertBody...), fragBody...)
	b = appendFunctions(b, glsllib.WGSL(), used)

	b = append(b, `@vertex
fn vs_main(@location(0) position: vec3<f32>, @location(1) normal: vec3<f32>, @location(2) uv: vec2<f32>) -> VertexOutput {
	let worldNormal = normalize((frame.model * vec4<f32>(normal, 0.0)).xyz);
`...)
	b = append(b, vertBody...)
	b = append(b, "\tlet displacement: vec3<f32> = "...)
	b = append(b, offsetExpr...)
	b = append(b, `;
	var out: VertexOutput;
	out.clip = frame.projection * frame.view * frame.model * vec4<f32>(position + displacement, 1.0);
	out.uv = uv;
	out.position = position;
	out.normal = worldNormal;
	return out;
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
`...)
	b = append(b, fragBody...)
	b = append(b, "\treturn "...)
	b = append(b, fragResult...)
	b = append(b, ";\n}\n"...)
	p.scratch = b
	n, err := w.Write(b)
	return n, objs, err
}

func mergeObjects(a, b []ShaderObject) []ShaderObject {
	objs := append([]ShaderObject(nil), a...)
	for _, obj := range b {
		dup := false
		for _, have := range objs {
			if have.Kind == obj.Kind && have.Name == obj.Name {
				dup = true
				break
			}
		}
		if !dup {
			objs = append(objs, obj)
		}
	}
	return objs
}

// CompileWGSL compiles WGSL source to SPIR-V words using naga.
func CompileWGSL(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("compiling WGSL: %w", err)
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("SPIR-V length %d not a multiple of 4", len(spirvBytes))
	}
	// SPIR-V is a stream of little-endian 32-bit words.
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	return words, nil
}
