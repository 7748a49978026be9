package glrender

import (
	"errors"
	"image"
	"image/color"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/gnode/feedback"
	"golang.org/x/image/draw"
)

var errBadTargetSize = errors.New("render target size must be positive")

// Target is a floating point RGBA render target with a depth buffer.
// Rows are stored bottom up so that pixel (0,0) sits at UV (0,0).
// RGBA8 targets clamp written colors to [0,1]; float targets do not.
type Target struct {
	w, h   int
	format feedback.Format
	pix    [][4]float32
	depth  []float32
}

// NewTarget returns a w×h target cleared to transparent black.
func NewTarget(w, h int, format feedback.Format) (*Target, error) {
	t := &Target{format: format}
	if err := t.Resize(w, h); err != nil {
		return nil, err
	}
	return t, nil
}

// Size returns the target dimensions in pixels.
func (t *Target) Size() (w, h int) { return t.w, t.h }

// Format returns the storage format the target was created with.
func (t *Target) Format() feedback.Format { return t.format }

// Resize reallocates the target. Contents are cleared.
func (t *Target) Resize(w, h int) error {
	if w <= 0 || h <= 0 {
		return errBadTargetSize
	}
	t.w, t.h = w, h
	n := w * h
	if cap(t.pix) < n {
		t.pix = make([][4]float32, n)
		t.depth = make([]float32, n)
	}
	t.pix = t.pix[:n]
	t.depth = t.depth[:n]
	t.Clear([4]float32{})
	return nil
}

// Clear sets every pixel to c and resets the depth buffer to the far plane.
func (t *Target) Clear(c [4]float32) {
	c = t.quantize(c)
	for i := range t.pix {
		t.pix[i] = c
		t.depth[i] = 1
	}
}

// At returns the color of pixel (x, y) with y counted from the bottom row.
func (t *Target) At(x, y int) [4]float32 {
	return t.pix[y*t.w+x]
}

// Set sets the color of pixel (x, y) with y counted from the bottom row.
func (t *Target) Set(x, y int, c [4]float32) {
	t.pix[y*t.w+x] = t.quantize(c)
}

// Sample returns the bilinearly filtered color at uv with clamp to edge addressing.
func (t *Target) Sample(uv ms2.Vec) [4]float32 {
	x := uv.X*float32(t.w) - 0.5
	y := uv.Y*float32(t.h) - 0.5
	x0 := math32.Floor(x)
	y0 := math32.Floor(y)
	fx, fy := x-x0, y-y0
	ix, iy := int(x0), int(y0)
	c00 := t.texel(ix, iy)
	c10 := t.texel(ix+1, iy)
	c01 := t.texel(ix, iy+1)
	c11 := t.texel(ix+1, iy+1)
	var out [4]float32
	for k := range out {
		bottom := c00[k] + (c10[k]-c00[k])*fx
		top := c01[k] + (c11[k]-c01[k])*fx
		out[k] = bottom + (top-bottom)*fy
	}
	return out
}

func (t *Target) texel(x, y int) [4]float32 {
	x = min(max(x, 0), t.w-1)
	y = min(max(y, 0), t.h-1)
	return t.pix[y*t.w+x]
}

func (t *Target) quantize(c [4]float32) [4]float32 {
	if t.format != feedback.FormatRGBA8 {
		return c
	}
	for k := range c {
		c[k] = min(max(c[k], 0), 1)
	}
	return c
}

// blend writes src over pixel i, replacing it when transparent is false.
func (t *Target) blend(i int, src [4]float32, transparent bool) {
	if !transparent {
		t.pix[i] = t.quantize(src)
		return
	}
	dst := t.pix[i]
	a := min(max(src[3], 0), 1)
	t.pix[i] = t.quantize([4]float32{
		src[0]*a + dst[0]*(1-a),
		src[1]*a + dst[1]*(1-a),
		src[2]*a + dst[2]*(1-a),
		a + dst[3]*(1-a),
	})
}

// Image returns the target as an 8 bit image with the top row first.
func (t *Target) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, t.w, t.h))
	for y := 0; y < t.h; y++ {
		row := t.pix[(t.h-1-y)*t.w:][:t.w]
		for x, c := range row {
			img.SetNRGBA(x, y, color.NRGBA{
				R: unorm8(c[0]),
				G: unorm8(c[1]),
				B: unorm8(c[2]),
				A: unorm8(c[3]),
			})
		}
	}
	return img
}

func unorm8(v float32) uint8 {
	return uint8(min(max(v, 0), 1)*255 + 0.5)
}

// TargetFromImage converts img to an RGBA8 target, flipping rows so the image's
// top row is sampled at v=1. Colors are stored without alpha premultiplication.
func TargetFromImage(img image.Image) *Target {
	b := img.Bounds()
	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Rect.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(nrgba, nrgba.Rect, img, b.Min, draw.Src)
	}
	w, h := nrgba.Rect.Dx(), nrgba.Rect.Dy()
	t := &Target{w: w, h: h, format: feedback.FormatRGBA8}
	t.pix = make([][4]float32, w*h)
	t.depth = make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := nrgba.NRGBAAt(x, y)
			t.pix[(h-1-y)*w+x] = [4]float32{
				float32(c.R) / 255,
				float32(c.G) / 255,
				float32(c.B) / 255,
				float32(c.A) / 255,
			}
		}
	}
	return t
}
