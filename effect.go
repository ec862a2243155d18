package cel

import (
	"fmt"
	"image"
)

// Effect is one entry of a box's effect stack. Effects run in stack order on
// the box's bitmap after its content and children are drawn.
//
// Effects that carry animated values expose them through Animator so the
// owning box is invalidated when they change. Effects whose backend may be
// missing implement Readier.
type Effect interface {
	// Margin returns how far, in box-local units, the effect can draw
	// outside the content bounds at relFrame.
	Margin(relFrame int) float64
	// Resolve snapshots the effect at relFrame for a bitmap rendered at the
	// given resolution. The returned pass must not reference live Params.
	Resolve(relFrame int, resolution float64) EffectPass
}

// EffectPass is a resolved effect, applied in place to premultiplied RGBA.
// A pass whose backend failed to initialize returns an error wrapping
// ErrEffectInit; the box keeps the pixels drawn so far.
type EffectPass interface {
	Apply(img *image.RGBA) error
}

// EffectFunc adapts a function to EffectPass.
type EffectFunc func(img *image.RGBA) error

// Apply implements EffectPass.
func (f EffectFunc) Apply(img *image.RGBA) error { return f(img) }

func effectName(e any) string {
	if s, ok := e.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", e)
}
