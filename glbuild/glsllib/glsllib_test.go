package glsllib

import "testing"

func TestFunctionNames(t *testing.T) {
	want := []string{"gnodeHash11", "gnodeHash12", "gnodeRotate"}
	for lang, funcs := range map[string][]Function{"glsl": GLSL(), "wgsl": WGSL(), "kage": Kage()} {
		if len(funcs) != len(want) {
			t.Fatalf("%s: want %d functions, got %d", lang, len(want), len(funcs))
		}
		for i, fn := range funcs {
			if fn.Name != want[i] {
				t.Errorf("%s: want %q, got %q", lang, want[i], fn.Name)
			}
		}
	}
}
