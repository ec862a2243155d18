// Package display draws cel box outputs with [Ebitengine].
//
// A [Presenter] keeps one GPU image per box and uploads the box's cached
// bitmap only when a newer job has been delivered, so an idle scene costs a
// single DrawImage per box per frame.
//
// [Ebitengine]: https://ebitengine.org
package display

import (
	"image"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/phanxgames/cel"
)

type entry struct {
	img  *ebiten.Image
	seq  uint64
	size image.Point
	used bool
}

// Presenter mirrors cached box outputs into ebiten images. It must be used
// from the goroutine that drives the scene.
type Presenter struct {
	// Filter is used when drawing outputs. Defaults to linear filtering.
	Filter ebiten.Filter

	images map[cel.Handle]*entry
}

// NewPresenter returns an empty Presenter.
func NewPresenter() *Presenter {
	return &Presenter{
		Filter: ebiten.FilterLinear,
		images: make(map[cel.Handle]*entry),
	}
}

// Draw draws the cached output of b onto screen. view maps scene
// coordinates to screen pixels. Boxes without output draw nothing.
func (p *Presenter) Draw(screen *ebiten.Image, b *cel.Box, view cel.Affine) {
	out, m := b.CachedOutput()
	if out.Empty() || b.Handle().IsZero() {
		return
	}
	e := p.upload(b.Handle(), out)
	e.used = true

	op := &ebiten.DrawImageOptions{}
	op.GeoM = GeoM(view.Mul(m))
	op.ColorScale.ScaleAlpha(float32(out.Opacity))
	op.Blend = Blend(out.Blend)
	op.Filter = p.Filter
	screen.DrawImage(e.img, op)
}

// DrawScene draws the scene's root output.
func (p *Presenter) DrawScene(screen *ebiten.Image, sc *cel.Scene, view cel.Affine) {
	p.Draw(screen, sc.Root(), view)
}

func (p *Presenter) upload(h cel.Handle, out cel.Output) *entry {
	size := out.Bitmap.Rect.Size()
	e := p.images[h]
	if e != nil && e.seq == out.Seq && e.size == size {
		return e
	}
	if e == nil {
		e = &entry{}
		p.images[h] = e
	}
	if e.img == nil || e.size != size {
		if e.img != nil {
			e.img.Deallocate()
		}
		e.img = ebiten.NewImage(size.X, size.Y)
		e.size = size
	}
	e.img.WritePixels(out.Bitmap.Pix[:size.X*size.Y*4])
	e.seq = out.Seq
	return e
}

// Prune frees the images of boxes that no longer belong to sc, and of boxes
// not drawn since the previous Prune. Call it once per frame after drawing.
func (p *Presenter) Prune(sc *cel.Scene) {
	for h, e := range p.images {
		if !e.used || sc.Lookup(h) == nil {
			e.img.Deallocate()
			delete(p.images, h)
			continue
		}
		e.used = false
	}
}

// Len returns the number of images held.
func (p *Presenter) Len() int {
	return len(p.images)
}

// GeoM converts a cel affine matrix to an ebiten.GeoM.
func GeoM(m cel.Affine) ebiten.GeoM {
	var g ebiten.GeoM
	g.SetElement(0, 0, m[0])
	g.SetElement(0, 1, m[2])
	g.SetElement(0, 2, m[4])
	g.SetElement(1, 0, m[1])
	g.SetElement(1, 1, m[3])
	g.SetElement(1, 2, m[5])
	return g
}

// Blend returns the ebiten.Blend corresponding to a cel blend mode.
// Ebitengine blends only inside the drawn quad, so the modes that clear the
// destination outside the source (mask, source-in, dest-atop) act on the
// quad alone.
func Blend(b cel.BlendMode) ebiten.Blend {
	switch b {
	case cel.BlendNormal:
		return ebiten.BlendSourceOver
	case cel.BlendAdd:
		return ebiten.BlendLighter
	case cel.BlendMultiply:
		return ebiten.Blend{
			BlendFactorSourceRGB:        ebiten.BlendFactorDestinationColor,
			BlendFactorSourceAlpha:      ebiten.BlendFactorDestinationAlpha,
			BlendFactorDestinationRGB:   ebiten.BlendFactorOneMinusSourceAlpha,
			BlendFactorDestinationAlpha: ebiten.BlendFactorOneMinusSourceAlpha,
			BlendOperationRGB:           ebiten.BlendOperationAdd,
			BlendOperationAlpha:         ebiten.BlendOperationAdd,
		}
	case cel.BlendScreen:
		return ebiten.Blend{
			BlendFactorSourceRGB:        ebiten.BlendFactorOne,
			BlendFactorSourceAlpha:      ebiten.BlendFactorOne,
			BlendFactorDestinationRGB:   ebiten.BlendFactorOneMinusSourceColor,
			BlendFactorDestinationAlpha: ebiten.BlendFactorOneMinusSourceAlpha,
			BlendOperationRGB:           ebiten.BlendOperationAdd,
			BlendOperationAlpha:         ebiten.BlendOperationAdd,
		}
	case cel.BlendErase:
		return ebiten.BlendDestinationOut
	case cel.BlendMask:
		return ebiten.BlendDestinationIn
	case cel.BlendBelow:
		return ebiten.BlendDestinationOver
	case cel.BlendNone:
		return ebiten.BlendCopy
	case cel.BlendSourceIn:
		return ebiten.BlendSourceIn
	case cel.BlendDestAtop:
		return ebiten.BlendDestinationAtop
	default:
		return ebiten.BlendSourceOver
	}
}
