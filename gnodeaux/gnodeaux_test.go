package gnodeaux_test

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/chewxy/math32"
	"github.com/gdamore/tcell/v2"
	"github.com/soypat/gnode/feedback"
	"github.com/soypat/gnode/glrender"
	"github.com/soypat/gnode/gnodeaux"
	"github.com/soypat/gnode/param"
	"github.com/soypat/gnode/scene"
)

type uploads map[string]image.Image

func (u uploads) UploadTexture(slot string, img image.Image) error {
	if slot == "" {
		return errors.New("empty slot")
	}
	u[slot] = img
	return nil
}

func writePNG(t *testing.T, w, h int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tex.png")
	fp, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer fp.Close()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	if err := png.Encode(fp, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadTexture(t *testing.T) {
	path := writePNG(t, 8, 4)
	u := uploads{}
	img, err := gnodeaux.LoadTexture(u, "noise", path)
	if err != nil {
		t.Fatal(err)
	}
	if u["noise"] != img || img.Bounds().Dx() != 8 || img.Bounds().Dy() != 4 {
		t.Errorf("texture not uploaded to slot: %v", img.Bounds())
	}
	if _, err := gnodeaux.LoadTexture(u, "", path); !errors.Is(err, gnodeaux.ErrTextureLoadFailed) {
		t.Errorf("upload failure not wrapped: %v", err)
	}

	missing := filepath.Join(t.TempDir(), "missing.png")
	_, err = gnodeaux.LoadTexture(u, "noise", missing)
	var texErr *gnodeaux.TextureError
	if !errors.Is(err, gnodeaux.ErrTextureLoadFailed) || !errors.As(err, &texErr) || texErr.Path != missing {
		t.Errorf("want texture error for %s, got %v", missing, err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("underlying error lost: %v", err)
	}

	garbage := filepath.Join(t.TempDir(), "garbage.png")
	os.WriteFile(garbage, []byte("not an image"), 0o644)
	if _, err := gnodeaux.DecodeTexture(garbage); !errors.Is(err, gnodeaux.ErrTextureLoadFailed) {
		t.Errorf("want decode failure, got %v", err)
	}
}

func TestDecodeTextureFallback(t *testing.T) {
	neutral := gnodeaux.NeutralTexture()
	if neutral.GrayAt(0, 0).Y != 128 {
		t.Fatalf("neutral texture should be mid gray, got %v", neutral.GrayAt(0, 0))
	}
	got := gnodeaux.DecodeTextureOr(filepath.Join(t.TempDir(), "missing.webp"), neutral)
	if got != image.Image(neutral) {
		t.Error("fallback not returned")
	}
}

func TestFitTexture(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 200, 100))
	fit := gnodeaux.FitTexture(img, 50)
	if b := fit.Bounds(); b.Dx() != 50 || b.Dy() != 25 {
		t.Errorf("want 50x25, got %v", b)
	}
	if gnodeaux.FitTexture(img, 400) != image.Image(img) {
		t.Error("image within bounds should be returned unchanged")
	}
}

func TestStepHSV(t *testing.T) {
	var store param.Store
	ns := store.Namespace("fx")
	tint, err := ns.Declare("tint", param.Color, param.RGB(1, 0, 0), param.Range{})
	if err != nil {
		t.Fatal(err)
	}
	if err := gnodeaux.StepHSV(tint, 2, -1); err != nil {
		t.Fatal(err)
	}
	if v := tint.Value(); math32.Abs(v[0]-(1-1./64)) > 1e-5 || v[1] != 0 || v[2] != 0 {
		t.Errorf("value step should darken red, got %v", v)
	}
	// A full turn of hue returns to the start.
	for range 64 {
		if err := gnodeaux.StepHSV(tint, 0, 1); err != nil {
			t.Fatal(err)
		}
	}
	if v := tint.Value(); math32.Abs(v[0]-(1-1./64)) > 1e-4 || v[1] > 1e-4 || v[2] > 1e-4 {
		t.Errorf("hue should wrap around, got %v", v)
	}
	scalar, _ := ns.Scalar("amount", 1, param.Range{})
	if err := gnodeaux.StepHSV(scalar, 0, 1); err == nil {
		t.Error("HSV step on scalar accepted")
	}
	if err := gnodeaux.StepHSV(tint, 3, 1); err == nil {
		t.Error("out of range component accepted")
	}
}

func TestRenderPNGFile(t *testing.T) {
	cfg := scene.DefaultConfig(32, 24)
	cfg.LetterSegments = 8
	var calls int
	path := filepath.Join(t.TempDir(), "letter.png")
	err := gnodeaux.RenderPNGFile(path, cfg, gnodeaux.RenderConfig{
		Frames: 3,
		Pointer: func(frame int) (x, y float32, ok bool) {
			calls++
			return 16, 12, true
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Errorf("pointer called %d times", calls)
	}
	fp, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer fp.Close()
	img, err := png.Decode(fp)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 32 || b.Dy() != 24 {
		t.Errorf("unexpected image size %v", b)
	}
}

func newPanel(t *testing.T) (*gnodeaux.Panel, tcell.SimulationScreen, *param.Parameter, *param.Parameter) {
	t.Helper()
	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(screen.Fini)
	screen.SetSize(80, 24)
	var store param.Store
	ns := store.Namespace("fx")
	amount, err := ns.Scalar("amount", 0.5, param.Range{Min: 0, Max: 1, Step: 0.1},
		param.WithValidator(func(v param.Value) error {
			if v[0] > 0.75 {
				return errors.New("too much")
			}
			return nil
		}))
	if err != nil {
		t.Fatal(err)
	}
	panel := gnodeaux.NewPanel(screen)
	store.SetEditor(panel)
	// Parameters declared after the editor is installed are forwarded too.
	tint, err := ns.Declare("tint", param.Color, param.RGB(1, 0, 0), param.Range{})
	if err != nil {
		t.Fatal(err)
	}
	return panel, screen, amount, tint
}

func key(k tcell.Key, r rune) *tcell.EventKey {
	return tcell.NewEventKey(k, r, tcell.ModNone)
}

func TestPanelEdit(t *testing.T) {
	panel, _, amount, tint := newPanel(t)
	if panel.Selected() != amount {
		t.Fatalf("first declared parameter should be selected, got %v", panel.Selected())
	}
	panel.HandleEvent(key(tcell.KeyRight, 0))
	if math32.Abs(amount.Scalar()-0.6) > 1e-6 {
		t.Errorf("want 0.6 after step, got %g", amount.Scalar())
	}
	panel.HandleEvent(key(tcell.KeyRune, '+'))
	if panel.Status() == "" || math32.Abs(amount.Scalar()-0.6) > 1e-6 {
		t.Errorf("rejected step should keep value and report, got %g %q", amount.Scalar(), panel.Status())
	}

	panel.HandleEvent(key(tcell.KeyDown, 0))
	if panel.Selected() != tint {
		t.Fatal("down should select the next parameter")
	}
	panel.HandleEvent(key(tcell.KeyTab, 0))
	if panel.Component() != 1 {
		t.Fatalf("tab should select saturation, got component %d", panel.Component())
	}
	panel.HandleEvent(key(tcell.KeyLeft, 0))
	if v := tint.Value(); math32.Abs(v[0]-1) > 1e-6 || v[1] <= 0 || v[1] != v[2] {
		t.Errorf("desaturated red should gain equal green and blue, got %v", v)
	}
	panel.HandleEvent(key(tcell.KeyDown, 0))
	if panel.Selected() != amount || panel.Component() != 0 {
		t.Error("selection should wrap around and reset the component")
	}
	if panel.HandleEvent(key(tcell.KeyRune, 'q')) {
		t.Error("q should quit")
	}
}

func TestPanelDraw(t *testing.T) {
	panel, screen, _, _ := newPanel(t)
	preview, err := glrender.NewTarget(4, 4, feedback.FormatRGBA8)
	if err != nil {
		t.Fatal(err)
	}
	preview.Clear([4]float32{1, 0, 0, 1})
	panel.Draw(preview)
	r, _, style, _ := screen.GetContent(0, 0)
	fg, bg, _ := style.Decompose()
	if r != '▀' || fg != tcell.NewHexColor(0xff0000) || bg != tcell.NewHexColor(0xff0000) {
		t.Errorf("preview cell: %q fg %v bg %v", r, fg, bg)
	}
	const x0 = 80 - 46
	var label []rune
	for x := x0 + 2; x < x0+11; x++ {
		r, _, _, _ := screen.GetContent(x, 0)
		label = append(label, r)
	}
	if string(label) != "fx.amount" {
		t.Errorf("want first row label fx.amount, got %q", string(label))
	}
	var pointed [2]float32
	panel.Pointer = func(u, v float32) { pointed = [2]float32{u, v} }
	panel.HandleEvent(tcell.NewEventMouse(0, 0, tcell.Button1, tcell.ModNone))
	if pointed[0] <= 0 || pointed[0] > 0.1 || pointed[1] <= 0 || pointed[1] > 0.1 {
		t.Errorf("click on top left preview cell mapped to %v", pointed)
	}
}
