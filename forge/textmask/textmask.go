// Package textmask rasterizes letter alpha masks: a glyph drawn at full
// intensity over a blurred, offset drop shadow.
package textmask

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/chewxy/math32"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
)

// Config configures mask rasterization. Lengths are in pixels.
type Config struct {
	// Size is the width and height of the square mask.
	Size int
	// Font is a TrueType font file. Nil uses the Go regular font.
	Font     []byte
	FontSize float64
	Fill     uint8

	// ShadowOffset displaces the shadow right and down. A zero ShadowFill draws no shadow.
	ShadowOffset int
	ShadowFill   uint8
	// ShadowBlur is the standard deviation of the gaussian applied to the shadow.
	ShadowBlur float32
}

// DefaultConfig returns the configuration of the reference letter masks.
func DefaultConfig() Config {
	return Config{
		Size:         1024,
		FontSize:     800,
		Fill:         255,
		ShadowOffset: 10,
		ShadowFill:   100,
		ShadowBlur:   15,
	}
}

// Render returns the mask of text centered in the image. Text is anchored at
// the middle of its advance horizontally and the middle of the font's ascent
// and descent vertically.
func Render(text string, cfg Config) (*image.Gray, error) {
	if cfg.Size <= 0 || cfg.FontSize <= 0 {
		return nil, errors.New("textmask: size and font size must be positive")
	}
	ttf := cfg.Font
	if ttf == nil {
		ttf = goregular.TTF
	}
	f, err := truetype.Parse(ttf)
	if err != nil {
		return nil, fmt.Errorf("textmask: parsing font: %w", err)
	}
	face := truetype.NewFace(f, &truetype.Options{Size: cfg.FontSize, DPI: 72, Hinting: font.HintingNone})
	defer face.Close()

	rect := image.Rect(0, 0, cfg.Size, cfg.Size)
	img := image.NewGray(rect)
	c := cfg.Size / 2
	if cfg.ShadowFill > 0 {
		shadow := image.NewGray(rect)
		drawCentered(shadow, face, text, c+cfg.ShadowOffset, c+cfg.ShadowOffset, color.Gray{Y: cfg.ShadowFill})
		img = Blur(shadow, cfg.ShadowBlur)
	}
	drawCentered(img, face, text, c, c, color.Gray{Y: cfg.Fill})
	return img, nil
}

func drawCentered(dst draw.Image, face font.Face, s string, cx, cy int, c color.Color) {
	m := face.Metrics()
	d := font.Drawer{Dst: dst, Src: image.NewUniform(c), Face: face}
	adv := d.MeasureString(s)
	d.Dot = fixed.Point26_6{
		X: fixed.I(cx) - adv/2,
		Y: fixed.I(cy) + (m.Ascent-m.Descent)/2,
	}
	d.DrawString(s)
}

// Blur returns src convolved with a gaussian of standard deviation sigma,
// applied as a horizontal and a vertical pass with clamped edges.
func Blur(src *image.Gray, sigma float32) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(b)
	if sigma <= 0 {
		copy(dst.Pix, src.Pix)
		return dst
	}
	kernel := gaussianKernel(sigma)
	half := len(kernel) / 2
	w, h := b.Dx(), b.Dy()
	tmp := make([]float32, w*h)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < w; x++ {
			var sum float32
			for k, wt := range kernel {
				kx := min(max(x+k-half, 0), w-1)
				sum += float32(row[kx]) * wt
			}
			tmp[y*w+x] = sum
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float32
			for k, wt := range kernel {
				ky := min(max(y+k-half, 0), h-1)
				sum += tmp[ky*w+x] * wt
			}
			dst.Pix[y*dst.Stride+x] = uint8(min(max(sum+0.5, 0), 255))
		}
	}
	return dst
}

// gaussianKernel returns a normalized kernel spanning three standard deviations.
func gaussianKernel(sigma float32) []float32 {
	r := int(math32.Ceil(3 * sigma))
	kernel := make([]float32, 2*r+1)
	var sum float32
	for i := range kernel {
		x := float32(i - r)
		kernel[i] = math32.Exp(-x * x / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}
