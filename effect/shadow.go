package effect

import (
	"image"
	"math"

	"github.com/phanxgames/cel"
)

// DropShadow draws a blurred, colored copy of the bitmap's alpha beneath it.
type DropShadow struct {
	OffsetX, OffsetY cel.Param
	Radius           cel.Param
	Color            cel.Color
}

// NewDropShadow returns a shadow offset by (dx, dy) with the given blur radius.
func NewDropShadow(dx, dy, radius float64, c cel.Color) *DropShadow {
	return &DropShadow{
		OffsetX: cel.NewParam(dx),
		OffsetY: cel.NewParam(dy),
		Radius:  cel.NewParam(radius),
		Color:   c,
	}
}

// Params implements cel.Animator.
func (d *DropShadow) Params() []*cel.Param {
	return []*cel.Param{&d.OffsetX, &d.OffsetY, &d.Radius}
}

// Margin implements cel.Effect.
func (d *DropShadow) Margin(relFrame int) float64 {
	off := max(math.Abs(d.OffsetX.At(relFrame)), math.Abs(d.OffsetY.At(relFrame)))
	return math.Ceil(max(d.Radius.At(relFrame), 0)*3 + off)
}

// Resolve implements cel.Effect.
func (d *DropShadow) Resolve(relFrame int, resolution float64) cel.EffectPass {
	return shadowPass{
		dx:     int(math.Round(d.OffsetX.At(relFrame) * resolution)),
		dy:     int(math.Round(d.OffsetY.At(relFrame) * resolution)),
		radius: max(d.Radius.At(relFrame), 0) * resolution,
		color:  d.Color,
	}
}

func (d *DropShadow) String() string { return "drop shadow" }

type shadowPass struct {
	dx, dy int
	radius float64
	color  cel.Color
}

func (p shadowPass) Apply(img *image.RGBA) error {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	alpha := getPlane(w * h)
	defer putPlane(alpha)

	for y := range h {
		sy := y - p.dy
		for x := range w {
			sx := x - p.dx
			if sx < 0 || sx >= w || sy < 0 || sy >= h {
				alpha[y*w+x] = 0
				continue
			}
			alpha[y*w+x] = float32(img.Pix[sy*img.Stride+sx*4+3]) / 255
		}
	}
	if p.radius > 0 {
		blurPlane(alpha, w, h, 1, p.radius, p.radius)
	}

	c := p.color.RGBA()
	for y := range h {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := range w {
			a := alpha[y*w+x]
			if a <= 0 {
				continue
			}
			i := x * 4
			// Shadow goes under the existing pixels.
			inv := float32(255-row[i+3]) / 255
			row[i] = clampUint8(float32(row[i]) + float32(c.R)*a*inv)
			row[i+1] = clampUint8(float32(row[i+1]) + float32(c.G)*a*inv)
			row[i+2] = clampUint8(float32(row[i+2]) + float32(c.B)*a*inv)
			row[i+3] = clampUint8(float32(row[i+3]) + float32(c.A)*a*inv)
		}
	}
	return nil
}

func (p shadowPass) String() string { return "drop shadow" }
