package cel

import "math"

// Affine is a 2D affine matrix laid out as [a, b, c, d, tx, ty]:
//
//	| a  c  tx |
//	| b  d  ty |
//	| 0  0   1 |
type Affine [6]float64

// Identity is the identity affine matrix.
var Identity = Affine{1, 0, 0, 1, 0, 0}

// Translate returns a translation matrix.
func Translate(x, y float64) Affine {
	return Affine{1, 0, 0, 1, x, y}
}

// Scale returns a scale matrix.
func Scale(sx, sy float64) Affine {
	return Affine{sx, 0, 0, sy, 0, 0}
}

// Mul returns m * c, which applies c first and m second.
func (m Affine) Mul(c Affine) Affine {
	return Affine{
		m[0]*c[0] + m[2]*c[1],
		m[1]*c[0] + m[3]*c[1],
		m[0]*c[2] + m[2]*c[3],
		m[1]*c[2] + m[3]*c[3],
		m[0]*c[4] + m[2]*c[5] + m[4],
		m[1]*c[4] + m[3]*c[5] + m[5],
	}
}

// Invert returns the inverse of m.
// Returns the identity matrix if m is singular (determinant ≈ 0).
func (m Affine) Invert() Affine {
	det := m[0]*m[3] - m[2]*m[1]
	if det > -1e-12 && det < 1e-12 {
		return Identity
	}
	invDet := 1.0 / det
	a := m[3] * invDet
	b := -m[1] * invDet
	c := -m[2] * invDet
	d := m[0] * invDet
	return Affine{
		a, b, c, d,
		-(a*m[4] + c*m[5]),
		-(b*m[4] + d*m[5]),
	}
}

// Apply transforms the point (x, y).
func (m Affine) Apply(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

// MapRect returns the axis-aligned bounds of r after transformation.
func (m Affine) MapRect(r Rect) Rect {
	if r.Empty() {
		return Rect{}
	}
	xs := [4]float64{}
	ys := [4]float64{}
	xs[0], ys[0] = m.Apply(r.X, r.Y)
	xs[1], ys[1] = m.Apply(r.X+r.Width, r.Y)
	xs[2], ys[2] = m.Apply(r.X, r.Y+r.Height)
	xs[3], ys[3] = m.Apply(r.X+r.Width, r.Y+r.Height)
	minX, maxX := xs[0], xs[0]
	minY, maxY := ys[0], ys[0]
	for i := 1; i < 4; i++ {
		minX = math.Min(minX, xs[i])
		maxX = math.Max(maxX, xs[i])
		minY = math.Min(minY, ys[i])
		maxY = math.Max(maxY, ys[i])
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// Transform holds a box's animated placement. Each field is a Param sampled
// at the box's relative frame.
//
// Composition order:
//
//	Translate(-Pivot) -> Scale -> Skew -> Rotate -> Translate(Pivot + Position)
type Transform struct {
	X, Y           Param
	ScaleX, ScaleY Param
	Rotation       Param // radians
	SkewX, SkewY   Param // radians
	PivotX, PivotY Param
}

func newTransform() Transform {
	t := Transform{}
	t.ScaleX.Set(1)
	t.ScaleY.Set(1)
	return t
}

func (t *Transform) params() [9]*Param {
	return [9]*Param{&t.X, &t.Y, &t.ScaleX, &t.ScaleY, &t.Rotation, &t.SkewX, &t.SkewY, &t.PivotX, &t.PivotY}
}

// At returns the local matrix at relFrame.
func (t *Transform) At(relFrame int) Affine {
	return localMatrix(
		t.X.At(relFrame), t.Y.At(relFrame),
		t.ScaleX.At(relFrame), t.ScaleY.At(relFrame),
		t.Rotation.At(relFrame),
		t.SkewX.At(relFrame), t.SkewY.At(relFrame),
		t.PivotX.At(relFrame), t.PivotY.At(relFrame),
	)
}

func localMatrix(x, y, sx, sy, rot, skewX, skewY, px, py float64) Affine {
	sin, cos := math.Sincos(rot)

	var tanSkewX, tanSkewY float64
	if skewX != 0 {
		tanSkewX = math.Tan(skewX)
	}
	if skewY != 0 {
		tanSkewY = math.Tan(skewY)
	}

	// After Scale * Translate(-pivot) and Skew:
	a := sx
	b := tanSkewY * sx
	c := tanSkewX * sy
	d := sy
	preTx := -px*sx - tanSkewX*py*sy
	preTy := -tanSkewY*px*sx - py*sy

	// After Rotate:
	ra := cos*a - sin*b
	rb := sin*a + cos*b
	rc := cos*c - sin*d
	rd := sin*c + cos*d
	rtx := cos*preTx - sin*preTy
	rty := sin*preTx + cos*preTy

	return Affine{ra, rb, rc, rd, rtx + px + x, rty + py + y}
}

func (t *Transform) animated() bool {
	for _, p := range t.params() {
		if p.Animated() {
			return true
		}
	}
	return false
}

func (t *Transform) differs(a, b int) bool {
	for _, p := range t.params() {
		if p.Differs(a, b) {
			return true
		}
	}
	return false
}

// setPivotKeepingPlacement moves the pivot to (px, py) and offsets the
// position so the matrix at relFrame is unchanged.
func (t *Transform) setPivotKeepingPlacement(relFrame int, px, py float64) {
	before := t.At(relFrame)
	t.PivotX.setQuiet(px)
	t.PivotY.setQuiet(py)
	after := t.At(relFrame)
	t.X.offsetQuiet(before[4] - after[4])
	t.Y.offsetQuiet(before[5] - after[5])
}
