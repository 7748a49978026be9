package scene_test

import (
	"image"
	"testing"

	"github.com/chewxy/math32"
	"github.com/soypat/gnode"
	"github.com/soypat/gnode/feedback"
	"github.com/soypat/gnode/glrender"
	"github.com/soypat/gnode/param"
	"github.com/soypat/gnode/scene"
)

const w, h = 32, 24

func newScene(t *testing.T, mod func(*scene.Config)) (*scene.Scene, *glrender.Software) {
	t.Helper()
	r, err := glrender.NewSoftware(glrender.Camera{}, 1024)
	if err != nil {
		t.Fatal(err)
	}
	cfg := scene.DefaultConfig(w, h)
	cfg.LetterSegments = 8
	// A black mask hides the letter so the background is visible everywhere.
	cfg.Mask = image.NewGray(image.Rect(0, 0, 8, 8))
	cfg.Background.Grain = func(bld *gnode.Builder) gnode.Node { return bld.Float(0.08) }
	if mod != nil {
		mod(&cfg)
	}
	s, err := scene.New(r, cfg)
	if err != nil {
		t.Fatal(err)
	}
	return s, r
}

func presented(t *testing.T, s *scene.Scene) *glrender.Target {
	t.Helper()
	read := s.Loop().Read()
	if read == nil {
		t.Fatal("no presented frame")
	}
	return read.(*glrender.Target)
}

// corner returns the red channel at the top left of the last presented frame,
// far from the cursor so the trail term adds nothing.
func corner(t *testing.T, s *scene.Scene) float32 {
	t.Helper()
	return presented(t, s).At(0, 0)[0]
}

// center returns the red channel at the center of the last presented frame,
// which the background plane covers at any aspect ratio.
func center(t *testing.T, s *scene.Scene) float32 {
	t.Helper()
	tg := presented(t, s)
	tw, th := tg.Size()
	return tg.At(tw/2, th/2)[0]
}

func TestSceneFeedbackSeries(t *testing.T) {
	s, r := newScene(t, nil)
	if s.Loop().State() != feedback.NoPriorFrame {
		t.Fatal("new scene must start without a prior frame")
	}
	want := []float32{0.08, 0.1568, 0.230528}
	for i, v := range want {
		if err := s.Frame(1.0 / 60); err != nil {
			t.Fatal(err)
		}
		if got := corner(t, s); math32.Abs(got-v) > 1e-5 {
			t.Errorf("frame %d: want %g, got %g", i, v, got)
		}
	}
	if s.Loop().State() != feedback.Steady || s.Loop().Frames() != 3 {
		t.Errorf("unexpected loop state %s after %d frames", s.Loop().State(), s.Loop().Frames())
	}
	if r.Screen() == nil {
		t.Fatal("frame not presented")
	}
	// Parameter writes are observed by the next frame.
	if err := s.Store.Set(s.Background.Decay, param.ScalarValue(0.5)); err != nil {
		t.Fatal(err)
	}
	if err := s.Frame(1.0 / 60); err != nil {
		t.Fatal(err)
	}
	if got, want := corner(t, s), 0.08+0.230528*0.5; math32.Abs(got-float32(want)) > 1e-5 {
		t.Errorf("after decay change: want %g, got %g", want, got)
	}
	if err := s.Store.Set(s.Background.Decay, param.ScalarValue(1)); err == nil {
		t.Error("divergent decay accepted")
	}
}

func TestSceneResizeResetsFeedback(t *testing.T) {
	s, _ := newScene(t, nil)
	for range 2 {
		if err := s.Frame(1.0 / 60); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Resize(2*w, h); err != nil {
		t.Fatal(err)
	}
	if s.Loop().State() != feedback.NoPriorFrame {
		t.Fatal("resize must reset the feedback loop")
	}
	if s.Camera.Aspect != 2*w/float32(h) {
		t.Errorf("camera aspect not updated: %g", s.Camera.Aspect)
	}
	if err := s.Frame(1.0 / 60); err != nil {
		t.Fatal(err)
	}
	if tw, th := s.Loop().Size(); tw != 2*w || th != h {
		t.Fatalf("feedback targets not resized: %dx%d", tw, th)
	}
	if got := center(t, s); math32.Abs(got-0.08) > 1e-5 {
		t.Errorf("first frame after resize must not read stale contents, got %g", got)
	}
}

func TestSceneLetterVisible(t *testing.T) {
	s, _ := newScene(t, func(cfg *scene.Config) {
		cfg.Mask = nil
		cfg.Background.Grain = nil
	})
	if err := s.Frame(1.0 / 60); err != nil {
		t.Fatal(err)
	}
	// Without a mask the letter plane covers the screen center with its
	// halftone color or the black base.
	c := s.Loop().Read().(*glrender.Target).At(w/2, h/2)
	if c[2] > 1e-6 || c[3] != 1 {
		t.Errorf("unexpected letter color %v", c)
	}
}

func TestSceneLetterUnlit(t *testing.T) {
	s, _ := newScene(t, func(cfg *scene.Config) { cfg.Mask = nil })
	for _, l := range s.Halftone.Layers {
		if err := l.MixLow.SetScalar(0); err != nil {
			t.Fatal(err)
		}
		if err := l.MixHigh.SetScalar(0); err != nil {
			t.Fatal(err)
		}
	}
	// The cursor bump tilts the letter's faces at the center, which must not
	// change its color without halftone layers.
	s.LetterDeformation.Cursor.Set(param.Vec3Value(0, 0, 0))
	if err := s.Frame(1.0 / 60); err != nil {
		t.Fatal(err)
	}
	tg := presented(t, s)
	for _, px := range [][2]int{{w / 2, h / 2}, {w/2 + 2, h/2 - 1}} {
		if c := tg.At(px[0], px[1]); c != [4]float32{0, 0, 0, 1} {
			t.Errorf("letter pixel %v should be the black base, got %v", px, c)
		}
	}
}

func TestScenePointer(t *testing.T) {
	s, _ := newScene(t, func(cfg *scene.Config) { cfg.CursorSmoothing = 0 })
	if !s.PointerMove(w/2, h/2) {
		t.Fatal("first pointer sample rejected")
	}
	v := s.CursorParam.Value()
	if math32.Abs(v[0]) > 1e-4 || math32.Abs(v[1]) > 1e-4 || v[2] != 0 {
		t.Errorf("screen center should map to the origin, got %v", v)
	}
	if s.PointerMove(w, 0) {
		t.Error("pointer sample within throttle interval accepted")
	}
	if err := s.Frame(0.02); err != nil {
		t.Fatal(err)
	}
	if !s.PointerMove(w, 0) {
		t.Fatal("pointer sample after throttle interval rejected")
	}
	v = s.CursorParam.Value()
	if v[0] <= 0 || v[1] <= 0 {
		t.Errorf("top right corner should map to positive x and y, got %v", v)
	}
}

func TestCursorSmoothing(t *testing.T) {
	s, _ := newScene(t, nil)
	cam := glrender.NewCamera(90, 1, 0.1, 100, 10)
	tr := scene.NewCursorTracker(&cam, s.CursorParam, 0, 0.1)
	if !tr.Move(0.5, 0) {
		t.Fatal("sample rejected")
	}
	if v := s.CursorParam.Value(); v[0] != 0 {
		t.Errorf("smoothed cursor must not jump, got %v", v)
	}
	tr.Tick(0.05)
	mid := s.CursorParam.Value()[0]
	tr.Tick(0.05)
	end := s.CursorParam.Value()[0]
	if !(mid > 0 && mid < end) {
		t.Errorf("cursor should ease towards the target: mid %g end %g", mid, end)
	}
	if math32.Abs(end-5) > 1e-3 {
		t.Errorf("want target x 5, got %g", end)
	}
}

func TestTicker(t *testing.T) {
	var tk scene.Ticker
	var calls []int
	var total float32
	un1 := tk.RegisterFrameTick(func(dt float32) { calls = append(calls, 1); total += dt })
	var un2 func()
	un2 = tk.RegisterFrameTick(func(float32) {
		calls = append(calls, 2)
		un2()
	})
	tk.RegisterFrameTick(func(float32) { calls = append(calls, 3) })
	tk.Tick(0.5)
	tk.Tick(0.5)
	un1()
	un1()
	tk.Tick(0.5)
	want := []int{1, 2, 3, 1, 3, 3}
	if len(calls) != len(want) {
		t.Fatalf("want calls %v, got %v", want, calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("want calls %v, got %v", want, calls)
		}
	}
	if total != 1 || tk.Len() != 1 {
		t.Errorf("total %g, len %d", total, tk.Len())
	}
}
