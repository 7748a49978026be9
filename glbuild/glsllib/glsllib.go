// Package glsllib holds helper functions referenced by generated shaders,
// written once per target language.
package glsllib

import (
	"bytes"
	_ "embed"
)

//go:embed gnode.glsl
var glslSrc []byte

//go:embed gnode.wgsl
var wgslSrc []byte

//go:embed gnode.kage
var kageSrc []byte

// Function is the source of a single helper function.
type Function struct {
	Name   string
	Source []byte
}

// GLSL returns the GLSL helper functions:
//
//	float gnodeHash11(float p)
//	float gnodeHash12(vec2 p)
//	vec2 gnodeRotate(vec2 v, float a)
func GLSL() []Function { return split(glslSrc) }

// WGSL returns the WGSL versions of the [GLSL] helpers.
func WGSL() []Function { return split(wgslSrc) }

// Kage returns the Kage versions of the [GLSL] helpers.
func Kage() []Function { return split(kageSrc) }

func split(src []byte) []Function {
	var funcs []Function
	for _, def := range bytes.Split(bytes.TrimSpace(src), []byte("\n\n")) {
		def = bytes.TrimSpace(def)
		fnNameEnd := bytes.IndexByte(def, '(')
		fnNameStart := bytes.IndexByte(def, ' ')
		if fnNameEnd < 0 || fnNameStart < 0 || fnNameStart > fnNameEnd {
			panic("glsllib: unable to parse function name in:\n" + string(def))
		}
		funcs = append(funcs, Function{
			Name:   string(bytes.TrimSpace(def[fnNameStart:fnNameEnd])),
			Source: def,
		})
	}
	return funcs
}
