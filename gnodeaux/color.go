package gnodeaux

import (
	"fmt"

	math "github.com/chewxy/math32"
	"github.com/soypat/glgl/math/ms1"
	"github.com/soypat/gnode/param"
)

// HSV color helpers adapted from Esme Lamb's (@dedelala) color manipulation
// work presented at Gophercon AU 2024.
// https://github.com/dedelala/disco/tree/main/color

// hsvStep is the HSV nudge applied by [StepHSV] per unit of direction.
const hsvStep = 1. / 64

// StepHSV nudges a color parameter in HSV space. comp selects hue (0),
// saturation (1) or value (2). Hue wraps around, saturation and value are clamped.
func StepHSV(p *param.Parameter, comp int, dir float32) error {
	if p.Kind() != param.Color {
		return fmt.Errorf("%s: HSV step on %s parameter", p.FullName(), p.Kind())
	} else if comp < 0 || comp > 2 {
		return fmt.Errorf("%s: HSV component %d out of range", p.FullName(), comp)
	}
	v := p.Value()
	hsv := [3]float32{}
	hsv[0], hsv[1], hsv[2] = rgbToHSV(v[0], v[1], v[2])
	hsv[comp] += dir * hsvStep
	if comp == 0 {
		hsv[0] -= math.Floor(hsv[0])
	} else {
		hsv[comp] = ms1.Clamp(hsv[comp], 0, 1)
	}
	r, g, b := hsvToRGB(hsv[0], hsv[1], hsv[2])
	return p.Set(param.RGB(r, g, b))
}

// ValueHSV returns the hue, saturation and value of a color parameter value.
func ValueHSV(v param.Value) (h, s, val float32) {
	return rgbToHSV(ms1.Clamp(v[0], 0, 1), ms1.Clamp(v[1], 0, 1), ms1.Clamp(v[2], 0, 1))
}

// interpHSV interpolates two colors along the shortest hue path.
func interpHSV(h0, s0, v0, h1, s1, v1, t float32) (h, s, v float32) {
	switch {
	case h1-h0 > 0.5:
		h0 += 1.0
	case h1-h0 < -0.5:
		h1 += 1.0
	}
	h = ms1.Interp(h0, h1, t)
	h -= math.Floor(h)
	s = ms1.Interp(s0, s1, t)
	v = ms1.Interp(v0, v1, t)
	return h, s, v
}

// rgbToC converts r, g, and b values on the range of 0.0 to 1.0 to a
// 24 bit RGB value stored in the least significant bits of a uint32. The inputs
// are clamped to the range of 0.0 to 1.0
func rgbToC(r, g, b float32) (c uint32) {
	return uint32(ms1.Clamp(r, 0, 1)*math.MaxUint8)<<16 |
		uint32(ms1.Clamp(g, 0, 1)*math.MaxUint8)<<8 |
		uint32(ms1.Clamp(b, 0, 1)*math.MaxUint8)
}

// hsvToRGB converts hue, saturation and brightness values on the range of 0.0
// to 1.0 to RGB floating point values on the range of 0.0 to 1.0
func hsvToRGB(h, s, v float32) (r, g, b float32) {
	var (
		c = s * v
		x = c * (1 - math.Abs(math.Mod(h*6, 2)-1))
		m = v - c
	)

	switch {
	case h >= 0 && h <= 1.0/6:
		r, g, b = c, x, 0
	case h > 1.0/6 && h <= 2.0/6:
		r, g, b = x, c, 0
	case h > 2.0/6 && h <= 3.0/6:
		r, g, b = 0, c, x
	case h > 3.0/6 && h <= 4.0/6:
		r, g, b = 0, x, c
	case h > 4.0/6 && h <= 5.0/6:
		r, g, b = x, 0, c
	case h > 5.0/6 && h <= 1.0:
		r, g, b = c, 0, x
	}

	r, g, b = r+m, g+m, b+m
	return r, g, b
}

// rgbToHSV converts red, green, and blue floating point values on the range
// 0.0 to 1.0 to hue, saturation and brightness values on the range 0.0 to 1.0
func rgbToHSV(r, g, b float32) (h, s, v float32) {
	var (
		xmax = max(r, g, b)
		xmin = min(r, g, b)
		c    = xmax - xmin
	)
	v = xmax
	switch {
	case c == 0:
		h = 0
	case v == r:
		h = (g - b) / (c * 6)
	case v == g:
		h = 1.0/3 + (b-r)/(c*6)
	case v == b:
		h = 2.0/3 + (r-g)/(c*6)
	}
	if h < 0 {
		h += 1
	}
	if xmax > 0 {
		s = c / xmax
	}
	return
}
