package gnode

// EffectOutput is what an effect contributes to a surface: a vec4 color and an
// optional vec3 vertex displacement. An invalid PositionOffset means no displacement.
type EffectOutput struct {
	Color          Node
	PositionOffset Node
}

// Effect is a module that owns a set of parameters and builds its output graph.
// Parameters are declared when the effect is constructed; Build may be called
// any number of times, each call producing nodes in bld.
type Effect interface {
	Build(bld *Builder) (EffectOutput, error)
}
