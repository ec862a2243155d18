package display

import (
	"math"

	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"

	"github.com/phanxgames/cel"
)

type scrollAnim struct {
	tweenX, tweenY *gween.Tween
	doneX, doneY   bool
}

// Camera maps scene coordinates to screen pixels: position, zoom, rotation
// and viewport. Its View matrix is what Presenter.Draw expects.
type Camera struct {
	// X and Y are the scene position the camera centers on.
	X, Y float64
	// Zoom is the scale factor (1 = no zoom, >1 = zoom in).
	Zoom float64
	// Rotation is the camera rotation in radians (clockwise).
	Rotation float64
	// Viewport is the screen rectangle the camera renders into.
	Viewport cel.Rect

	// BoundsEnabled clamps the camera position so the visible area stays
	// within Bounds.
	BoundsEnabled bool
	Bounds        cel.Rect

	follow     *cel.Box
	followX    float64
	followY    float64
	followLerp float64
	scroll     *scrollAnim
}

// NewCamera returns a camera centered on the middle of viewport.
func NewCamera(viewport cel.Rect) *Camera {
	c := viewport.Center()
	return &Camera{X: c.X, Y: c.Y, Zoom: 1, Viewport: viewport}
}

// Follow makes the camera track the origin of b, plus an offset. A lerp of
// 1 snaps immediately; lower values smooth the motion.
func (c *Camera) Follow(b *cel.Box, offsetX, offsetY, lerp float64) {
	c.follow = b
	c.followX, c.followY = offsetX, offsetY
	c.followLerp = lerp
}

// Unfollow stops tracking.
func (c *Camera) Unfollow() { c.follow = nil }

// ScrollTo animates the camera to (x, y) over duration, in the same units
// later passed to Update.
func (c *Camera) ScrollTo(x, y float64, duration float32, fn ease.TweenFunc) {
	if fn == nil {
		fn = ease.Linear
	}
	c.scroll = &scrollAnim{
		tweenX: gween.New(float32(c.X), float32(x), duration, fn),
		tweenY: gween.New(float32(c.Y), float32(y), duration, fn),
	}
}

// Scrolling reports whether a ScrollTo animation is running.
func (c *Camera) Scrolling() bool { return c.scroll != nil }

// SetBounds enables bounds clamping.
func (c *Camera) SetBounds(r cel.Rect) {
	c.BoundsEnabled = true
	c.Bounds = r
}

// ClearBounds disables bounds clamping.
func (c *Camera) ClearBounds() { c.BoundsEnabled = false }

// Update advances follow and scroll by dt and applies bounds clamping.
func (c *Camera) Update(dt float32) {
	if c.follow != nil {
		if c.follow.IsDisposed() {
			c.follow = nil
		} else {
			tx, ty := c.follow.CombinedTransformAt(c.follow.AbsFrame()).Apply(0, 0)
			c.X += (tx + c.followX - c.X) * c.followLerp
			c.Y += (ty + c.followY - c.Y) * c.followLerp
		}
	}
	if s := c.scroll; s != nil {
		if !s.doneX {
			v, done := s.tweenX.Update(dt)
			c.X, s.doneX = float64(v), done
		}
		if !s.doneY {
			v, done := s.tweenY.Update(dt)
			c.Y, s.doneY = float64(v), done
		}
		if s.doneX && s.doneY {
			c.scroll = nil
		}
	}
	if c.BoundsEnabled {
		c.clampToBounds()
	}
}

func (c *Camera) clampToBounds() {
	halfW := c.Viewport.Width / (2 * c.Zoom)
	halfH := c.Viewport.Height / (2 * c.Zoom)
	minX, maxX := c.Bounds.X+halfW, c.Bounds.X+c.Bounds.Width-halfW
	minY, maxY := c.Bounds.Y+halfH, c.Bounds.Y+c.Bounds.Height-halfH

	// Bounds smaller than the visible area center the camera.
	if minX > maxX {
		c.X = c.Bounds.X + c.Bounds.Width/2
	} else {
		c.X = math.Max(minX, math.Min(c.X, maxX))
	}
	if minY > maxY {
		c.Y = c.Bounds.Y + c.Bounds.Height/2
	} else {
		c.Y = math.Max(minY, math.Min(c.Y, maxY))
	}
}

// View returns Translate(center) * Scale(zoom) * Rotate(-rotation) *
// Translate(-X, -Y).
func (c *Camera) View() cel.Affine {
	center := c.Viewport.Center()
	cos, sin := math.Cos(-c.Rotation), math.Sin(-c.Rotation)
	z := c.Zoom
	return cel.Affine{
		z * cos, z * sin,
		-z * sin, z * cos,
		center.X + z*(-cos*c.X+sin*c.Y),
		center.Y + z*(-sin*c.X-cos*c.Y),
	}
}

// SceneToScreen converts scene coordinates to screen coordinates.
func (c *Camera) SceneToScreen(x, y float64) (float64, float64) {
	return c.View().Apply(x, y)
}

// ScreenToScene converts screen coordinates to scene coordinates.
func (c *Camera) ScreenToScene(x, y float64) (float64, float64) {
	return c.View().Invert().Apply(x, y)
}

// VisibleBounds returns the scene-space bounding rect of the viewport.
func (c *Camera) VisibleBounds() cel.Rect {
	return c.View().Invert().MapRect(c.Viewport)
}

// InView reports whether the cached output of b overlaps the viewport.
// Boxes without output are never in view.
func (c *Camera) InView(b *cel.Box) bool {
	out, m := b.CachedOutput()
	if out.Empty() {
		return false
	}
	size := out.Bitmap.Rect.Size()
	area := c.View().Mul(m).MapRect(cel.Rect{Width: float64(size.X), Height: float64(size.Y)})
	return area.Intersects(c.Viewport)
}
