package cel

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/vector"
)

// Content produces a box's intrinsic raster. Resolve runs on the controlling
// goroutine and must return a Drawable that does not share mutable state
// with the Content, since the Drawable is rasterized on a worker.
type Content interface {
	Resolve(relFrame int) Drawable
}

// Drawable is resolved content for a single frame.
type Drawable interface {
	// Bounds returns the extent in box-local coordinates.
	Bounds() Rect
	// Draw rasterizes into dst. m maps box-local coordinates to dst pixels.
	Draw(dst *image.RGBA, m Affine)
}

// Readier is implemented by contents and effects whose inputs may not be
// available yet. A job whose dependencies are not ready is not executed;
// it is resolved again on the next ProcessAll.
type Readier interface {
	Ready() bool
}

// notifier lets a content report changes to the box that owns it.
type notifier struct {
	onChange func(minRel, maxRel int)
}

func (n *notifier) bindOwner(fn func(minRel, maxRel int)) { n.onChange = fn }

func (n *notifier) notify() {
	if n.onChange != nil {
		n.onChange(MinFrame, MaxFrame)
	}
}

type ownerBinder interface {
	bindOwner(fn func(minRel, maxRel int))
}

// ShapeKind selects the outline drawn by a Shape.
type ShapeKind uint8

const (
	ShapeRect    ShapeKind = iota // axis-aligned rectangle
	ShapeEllipse                  // ellipse inscribed in the rectangle
)

// Shape is a filled rectangle or ellipse anchored at the box origin.
type Shape struct {
	notifier
	Kind          ShapeKind
	Width, Height Param
	fill          Color
}

// NewRectShape returns a w x h rectangle filled with fill.
func NewRectShape(w, h float64, fill Color) *Shape {
	return &Shape{Kind: ShapeRect, Width: NewParam(w), Height: NewParam(h), fill: fill}
}

// NewEllipseShape returns an ellipse inscribed in a w x h rectangle.
func NewEllipseShape(w, h float64, fill Color) *Shape {
	return &Shape{Kind: ShapeEllipse, Width: NewParam(w), Height: NewParam(h), fill: fill}
}

// Fill returns the fill color.
func (s *Shape) Fill() Color { return s.fill }

// SetFill changes the fill color.
func (s *Shape) SetFill(c Color) {
	if s.fill == c {
		return
	}
	s.fill = c
	s.notify()
}

// Params implements Animator.
func (s *Shape) Params() []*Param {
	return []*Param{&s.Width, &s.Height}
}

// Resolve implements Content.
func (s *Shape) Resolve(relFrame int) Drawable {
	return shapeDrawable{
		kind: s.Kind,
		w:    s.Width.At(relFrame),
		h:    s.Height.At(relFrame),
		fill: s.fill.RGBA(),
	}
}

type shapeDrawable struct {
	kind ShapeKind
	w, h float64
	fill color.RGBA
}

func (d shapeDrawable) Bounds() Rect {
	if d.w <= 0 || d.h <= 0 {
		return Rect{}
	}
	return Rect{Width: d.w, Height: d.h}
}

// kappa places cubic control points so four curves approximate a circle.
const kappa = 0.5522847498

func (d shapeDrawable) Draw(dst *image.RGBA, m Affine) {
	if d.w <= 0 || d.h <= 0 || d.fill.A == 0 {
		return
	}
	size := dst.Rect.Size()
	z := vector.NewRasterizer(size.X, size.Y)
	pt := func(x, y float64) (float32, float32) {
		px, py := m.Apply(x, y)
		return float32(px - float64(dst.Rect.Min.X)), float32(py - float64(dst.Rect.Min.Y))
	}
	switch d.kind {
	case ShapeEllipse:
		rx, ry := d.w/2, d.h/2
		kx, ky := rx*kappa, ry*kappa
		z.MoveTo(pt(rx*2, ry))
		cubeTo(z, pt, rx*2, ry+ky, rx+kx, ry*2, rx, ry*2)
		cubeTo(z, pt, rx-kx, ry*2, 0, ry+ky, 0, ry)
		cubeTo(z, pt, 0, ry-ky, rx-kx, 0, rx, 0)
		cubeTo(z, pt, rx+kx, 0, rx*2, ry-ky, rx*2, ry)
	default:
		z.MoveTo(pt(0, 0))
		z.LineTo(pt(d.w, 0))
		z.LineTo(pt(d.w, d.h))
		z.LineTo(pt(0, d.h))
	}
	z.ClosePath()
	z.Draw(dst, dst.Rect, image.NewUniform(d.fill), image.Point{})
}

func cubeTo(z *vector.Rasterizer, pt func(x, y float64) (float32, float32), bx, by, cx, cy, dx, dy float64) {
	x1, y1 := pt(bx, by)
	x2, y2 := pt(cx, cy)
	x3, y3 := pt(dx, dy)
	z.CubeTo(x1, y1, x2, y2, x3, y3)
}

// Picture draws an image with its top-left corner at the box origin. The
// image may arrive later: until SetImage is called with a non-nil image the
// picture is not ready and the box keeps its previous output.
//
// Images passed to a Picture must not be modified afterwards; workers read
// them while rasterizing.
type Picture struct {
	notifier
	img image.Image
}

// NewPicture returns a Picture showing img, which may be nil.
func NewPicture(img image.Image) *Picture {
	return &Picture{img: img}
}

// SetImage replaces the displayed image.
func (p *Picture) SetImage(img image.Image) {
	p.img = img
	p.notify()
}

// Ready implements Readier.
func (p *Picture) Ready() bool {
	return p.img != nil
}

// Resolve implements Content.
func (p *Picture) Resolve(int) Drawable {
	return pictureDrawable{img: p.img}
}

type pictureDrawable struct {
	img image.Image
}

func (d pictureDrawable) Bounds() Rect {
	if d.img == nil {
		return Rect{}
	}
	b := d.img.Bounds()
	return Rect{Width: float64(b.Dx()), Height: float64(b.Dy())}
}

func (d pictureDrawable) Draw(dst *image.RGBA, m Affine) {
	if d.img == nil {
		return
	}
	origin := d.img.Bounds().Min
	m = m.Mul(Translate(-float64(origin.X), -float64(origin.Y)))
	aff := f64.Aff3{m[0], m[2], m[4], m[1], m[3], m[5]}
	draw.BiLinear.Transform(dst, aff, d.img, d.img.Bounds(), draw.Over, nil)
}
