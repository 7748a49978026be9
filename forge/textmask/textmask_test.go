package textmask_test

import (
	"image"
	"testing"

	"github.com/soypat/gnode/forge/textmask"
)

func smallConfig() textmask.Config {
	return textmask.Config{
		Size:         128,
		FontSize:     100,
		Fill:         255,
		ShadowOffset: 4,
		ShadowFill:   100,
		ShadowBlur:   2,
	}
}

func TestRenderLetter(t *testing.T) {
	img, err := textmask.Render("d", smallConfig())
	if err != nil {
		t.Fatal(err)
	}
	var full, shadow, lit int
	var cx, n float64
	for y := 0; y < 128; y++ {
		for x := 0; x < 128; x++ {
			v := img.GrayAt(x, y).Y
			switch {
			case v == 255:
				full++
				cx += float64(x)
				n++
			case v > 0 && v <= 100:
				shadow++
			}
			if v > 0 {
				lit++
			}
		}
	}
	if full == 0 || shadow == 0 {
		t.Fatalf("want glyph and shadow pixels, got %d and %d", full, shadow)
	}
	if img.GrayAt(0, 0).Y != 0 || img.GrayAt(127, 0).Y != 0 {
		t.Error("corners should be empty")
	}
	if lit > 128*128/2 {
		t.Errorf("mask mostly filled: %d pixels", lit)
	}
	if c := cx / n; c < 40 || c > 88 {
		t.Errorf("glyph not horizontally centered, mean x %g", c)
	}
}

func TestRenderNoShadow(t *testing.T) {
	cfg := smallConfig()
	cfg.ShadowFill = 0
	img, err := textmask.Render("d", cfg)
	if err != nil {
		t.Fatal(err)
	}
	var partial, full int
	for _, v := range img.Pix {
		switch {
		case v == 255:
			full++
		case v > 0:
			partial++
		}
	}
	if full == 0 || partial == 0 {
		t.Errorf("want full and antialiased glyph pixels, got %d and %d", full, partial)
	}
	if partial > full {
		t.Errorf("without shadow partial pixels should only be glyph edges: %d partial, %d full", partial, full)
	}
}

func TestRenderErrors(t *testing.T) {
	cfg := smallConfig()
	cfg.Font = []byte("not a font")
	if _, err := textmask.Render("d", cfg); err == nil {
		t.Error("expected font parse error")
	}
	cfg = smallConfig()
	cfg.Size = 0
	if _, err := textmask.Render("d", cfg); err == nil {
		t.Error("expected size error")
	}
}

func TestBlurPreservesMass(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 33, 33))
	for y := 14; y < 19; y++ {
		for x := 14; x < 19; x++ {
			src.Pix[y*src.Stride+x] = 200
		}
	}
	dst := textmask.Blur(src, 1.5)
	var before, after int
	for i := range src.Pix {
		before += int(src.Pix[i])
		after += int(dst.Pix[i])
	}
	if d := after - before; d < -100 || d > 100 {
		t.Errorf("blur changed total intensity from %d to %d", before, after)
	}
	if dst.GrayAt(16, 16).Y >= 200 || dst.GrayAt(12, 16).Y == 0 {
		t.Error("blur did not spread intensity")
	}
}
