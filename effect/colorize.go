package effect

import (
	"image"
	"math"

	"github.com/phanxgames/cel"
)

// Colorize replaces the hue and saturation of every pixel and shifts its
// lightness. Hue is in degrees, Saturation in [0, 1], Lightness in [-1, 1].
type Colorize struct {
	Hue        cel.Param
	Saturation cel.Param
	Lightness  cel.Param
}

// NewColorize returns a Colorize with static values.
func NewColorize(hue, saturation, lightness float64) *Colorize {
	return &Colorize{
		Hue:        cel.NewParam(hue),
		Saturation: cel.NewParam(saturation),
		Lightness:  cel.NewParam(lightness),
	}
}

// Params implements cel.Animator.
func (c *Colorize) Params() []*cel.Param {
	return []*cel.Param{&c.Hue, &c.Saturation, &c.Lightness}
}

// Margin implements cel.Effect.
func (c *Colorize) Margin(int) float64 { return 0 }

// Resolve implements cel.Effect.
func (c *Colorize) Resolve(relFrame int, _ float64) cel.EffectPass {
	h := math.Mod(c.Hue.At(relFrame), 360)
	if h < 0 {
		h += 360
	}
	return colorizePass{
		hue:   h / 360,
		sat:   clamp(c.Saturation.At(relFrame), 0, 1),
		light: clamp(c.Lightness.At(relFrame), -1, 1),
	}
}

func (c *Colorize) String() string { return "colorize" }

type colorizePass struct {
	hue, sat, light float64
}

func (p colorizePass) Apply(img *image.RGBA) error {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	for y := range h {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for i := 0; i < len(row); i += 4 {
			a := row[i+3]
			if a == 0 {
				continue
			}
			r, g, b := unpremultiply(row[i], row[i+1], row[i+2], a)
			l := lightness(float64(r)/255, float64(g)/255, float64(b)/255)
			l = clamp(l+p.light, 0, 1)
			nr, ng, nb := hslToRGB(p.hue, p.sat, l)
			premultiply(row[i:i+4], float32(nr*255), float32(ng*255), float32(nb*255), float32(a))
		}
	}
	return nil
}

func (p colorizePass) String() string { return "colorize" }

func lightness(r, g, b float64) float64 {
	return (max(r, g, b) + min(r, g, b)) / 2
}

// hslToRGB converts hue in [0, 1) and saturation, lightness in [0, 1].
func hslToRGB(h, s, l float64) (float64, float64, float64) {
	if s == 0 {
		return l, l, l
	}
	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	return hueToRGB(p, q, h+1.0/3), hueToRGB(p, q, h), hueToRGB(p, q, h-1.0/3)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6:
		return p + (q-p)*6*t
	case t < 0.5:
		return q
	case t < 2.0/3:
		return p + (q-p)*(2.0/3-t)*6
	}
	return p
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}
