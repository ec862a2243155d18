package cel

import (
	"image"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// RenderCache keeps the output of the most recently delivered job of a box.
// It is only touched on the controlling goroutine. Reads never block and
// never render; they return whatever was delivered last, which may belong
// to an earlier frame while a newer job is in flight.
type RenderCache struct {
	job   *RenderJob
	paint Affine
}

// store replaces the cached output with j's. Jobs not newer than the cached
// one are ignored, so a repeated delivery cannot move the cache backwards.
func (c *RenderCache) store(j *RenderJob) bool {
	if c.job != nil && j.seq <= c.job.seq {
		return false
	}
	j.retain()
	if c.job != nil {
		c.job.release()
	}
	c.job = j
	c.paint = Identity
	return true
}

// retarget moves the cached pixels to follow a new combined transform
// without rendering them again.
func (c *RenderCache) retarget(combined Affine) {
	if c.job == nil {
		return
	}
	c.paint = combined.Mul(c.job.out.Transform.Invert())
}

func (c *RenderCache) clear() {
	if c.job != nil {
		c.job.release()
		c.job = nil
	}
	c.paint = Identity
}

// Output returns the cached output and the transform that maps bitmap pixels
// to scene coordinates. The output is empty when nothing was delivered yet.
func (c *RenderCache) Output() (Output, Affine) {
	if c.job == nil {
		return Output{}, Identity
	}
	o := c.job.out
	inv := 1.0
	if o.Resolution > 0 {
		inv = 1 / o.Resolution
	}
	m := c.paint.Mul(Scale(inv, inv)).Mul(Translate(float64(o.Origin.X), float64(o.Origin.Y)))
	return o, m
}

// Seq returns the sequence number of the cached job, or 0.
func (c *RenderCache) Seq() uint64 {
	if c.job == nil {
		return 0
	}
	return c.job.seq
}

// Draw composites the cached bitmap onto dst. view maps scene coordinates to
// dst pixels.
func (c *RenderCache) Draw(dst *image.RGBA, view Affine) {
	o, m := c.Output()
	if o.Bitmap == nil {
		return
	}
	full := view.Mul(m)
	if x, y, ok := intTranslation(full); ok {
		composite(dst, o.Bitmap, image.Pt(x, y), o.Opacity, o.Blend)
		return
	}

	size := o.Bitmap.Rect.Size()
	area := full.MapRect(Rect{Width: float64(size.X), Height: float64(size.Y)})
	r := image.Rect(
		int(math.Floor(area.X)), int(math.Floor(area.Y)),
		int(math.Ceil(area.X+area.Width)), int(math.Ceil(area.Y+area.Height)),
	).Intersect(dst.Rect)
	if r.Empty() {
		return
	}
	tmp := bitmaps.Acquire(r.Dx(), r.Dy())
	defer bitmaps.Release(tmp)
	t := Translate(-float64(r.Min.X), -float64(r.Min.Y)).Mul(full)
	draw.BiLinear.Transform(tmp, f64.Aff3{t[0], t[2], t[4], t[1], t[3], t[5]}, o.Bitmap, o.Bitmap.Rect, draw.Src, nil)
	composite(dst, tmp, r.Min, o.Opacity, o.Blend)
}

func intTranslation(m Affine) (int, int, bool) {
	const eps = 1e-9
	if math.Abs(m[0]-1) > eps || math.Abs(m[1]) > eps || math.Abs(m[2]) > eps || math.Abs(m[3]-1) > eps {
		return 0, 0, false
	}
	x, y := math.Round(m[4]), math.Round(m[5])
	if math.Abs(m[4]-x) > eps || math.Abs(m[5]-y) > eps {
		return 0, 0, false
	}
	return int(x), int(y), true
}
