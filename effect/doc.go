// Package effect provides raster effects for cel boxes.
//
// Every effect implements [cel.Effect] and, when it has animated values,
// [cel.Animator], so keyframing a blur radius or a saturation factor
// invalidates exactly the frames the keyframe influences.
//
// Effects run on render workers against premultiplied RGBA bitmaps:
//
//	box.AddEffect(effect.NewBlur(4))
//	box.AddEffect(effect.NewDropShadow(3, 3, 5, cel.Color{A: 0.5}))
//
// Sizes (radii, offsets) are in box-local units and are scaled by the
// scene resolution when the effect is resolved.
package effect
