package param_test

import (
	"errors"
	"testing"

	"github.com/soypat/gnode/param"
)

func TestDeclareDuplicate(t *testing.T) {
	var store param.Store
	ns := store.Namespace("background")
	_, err := ns.Scalar("decay", 0.96, param.Range{Min: 0.5, Max: 0.99, Step: 0.01})
	if err != nil {
		t.Fatal(err)
	}
	_, err = ns.Scalar("decay", 0.5, param.Range{})
	if !errors.Is(err, param.ErrDuplicateParameter) {
		t.Fatalf("want duplicate parameter error, got %v", err)
	}
	// Same name in another namespace is fine.
	_, err = store.Namespace("letter").Scalar("decay", 0.5, param.Range{})
	if err != nil {
		t.Fatal(err)
	}
	if got := len(store.Parameters()); got != 2 {
		t.Errorf("want 2 parameters, got %d", got)
	}
}

func TestSetLastWriteWins(t *testing.T) {
	var store param.Store
	p, err := store.Namespace("cursor").Declare("cursor", param.Vec3, param.Vec3Value(0, 0, 0), param.Range{})
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range []param.Value{{1, 2, 3}, {4, 5, 6}, {7, 8, 9, 10}} {
		if err := store.Set(p, v); err != nil {
			t.Fatal(err)
		}
	}
	got, err := store.Get(p)
	if err != nil {
		t.Fatal(err)
	}
	want := param.Value{7, 8, 9, 0} // Unused component is zeroed.
	if got != want {
		t.Errorf("want %v, got %v", want, got)
	}
	if p.Version() != 3 {
		t.Errorf("want version 3, got %d", p.Version())
	}
	if store.Lookup("cursor.cursor") != p {
		t.Error("lookup by full name failed")
	}
}

func TestValidator(t *testing.T) {
	var store param.Store
	errTooBig := errors.New("too big")
	p, err := store.Namespace("bg").Scalar("decay", 0.9, param.Range{}, param.WithValidator(func(v param.Value) error {
		if v[0] >= 1 {
			return errTooBig
		}
		return nil
	}))
	if err != nil {
		t.Fatal(err)
	}
	err = p.SetScalar(1)
	if !errors.Is(err, errTooBig) {
		t.Fatalf("want validator error, got %v", err)
	}
	if p.Scalar() != 0.9 {
		t.Errorf("rejected value was stored: %v", p.Scalar())
	}
	_, err = store.Namespace("bg2").Scalar("decay", 2, param.Range{}, param.WithValidator(func(v param.Value) error {
		if v[0] >= 1 {
			return errTooBig
		}
		return nil
	}))
	if !errors.Is(err, errTooBig) {
		t.Fatalf("initial value should be validated, got %v", err)
	}
	if store.Lookup("bg2.decay") != nil {
		t.Error("invalid parameter was registered")
	}
}

type recordingEditor struct{ names []string }

func (r *recordingEditor) DeclareEditableParameter(p *param.Parameter) {
	r.names = append(r.names, p.FullName())
}

func TestEditorNotified(t *testing.T) {
	var store param.Store
	ns := store.Namespace("halftone")
	ns.Scalar("count", 100, param.Range{Min: 1, Max: 200, Step: 1})
	var ed recordingEditor
	store.SetEditor(&ed)
	ns.Declare("color", param.Color, param.Hex(0xffff00), param.Range{Min: 0, Max: 1, Step: 0.05})
	want := []string{"halftone.count", "halftone.color"}
	if len(ed.names) != len(want) {
		t.Fatalf("want %v, got %v", want, ed.names)
	}
	for i := range want {
		if ed.names[i] != want[i] {
			t.Errorf("want %q, got %q", want[i], ed.names[i])
		}
	}
}

func TestStepClamps(t *testing.T) {
	var store param.Store
	p, _ := store.Namespace("ns").Scalar("radius", 0.95, param.Range{Min: 0, Max: 1, Step: 0.1})
	if err := p.Step(0, 1); err != nil {
		t.Fatal(err)
	}
	if p.Scalar() != 1 {
		t.Errorf("want clamped 1, got %v", p.Scalar())
	}
	if err := p.Step(1, 1); err == nil {
		t.Error("expected error stepping missing component")
	}
}

func TestRejectNaN(t *testing.T) {
	var store param.Store
	p, _ := store.Namespace("ns").Scalar("x", 0, param.Range{})
	var zero float32
	if err := p.SetScalar(zero / zero); !errors.Is(err, param.ErrInvalidValue) {
		t.Errorf("want invalid value error, got %v", err)
	}
}

func TestForeignParameter(t *testing.T) {
	var a, b param.Store
	p, _ := a.Namespace("ns").Scalar("x", 0, param.Range{})
	if err := b.Set(p, param.ScalarValue(1)); err == nil {
		t.Error("expected error setting parameter through foreign store")
	}
}

func TestHex(t *testing.T) {
	v := param.Hex(0xff8000)
	if v[0] != 1 || v[2] != 0 || v[1] < 0.5 || v[1] > 0.51 {
		t.Errorf("unexpected hex conversion %v", v)
	}
}
