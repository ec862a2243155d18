package cel

import (
	"math"
	"testing"
)

const epsilon = 1e-9

func assertNear(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > epsilon {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}

func assertMatrix(t *testing.T, name string, got, want Affine) {
	t.Helper()
	for i := range got {
		if math.Abs(got[i]-want[i]) > epsilon {
			t.Errorf("%s[%d] = %v, want %v (full: %v vs %v)", name, i, got[i], want[i], got, want)
		}
	}
}

// --- Affine ---

func TestAffineMulOrder(t *testing.T) {
	// Scale first, then translate.
	m := Translate(10, 20).Mul(Scale(2, 3))
	x, y := m.Apply(1, 1)
	assertNear(t, "x", x, 12)
	assertNear(t, "y", y, 23)
}

func TestAffineInvert(t *testing.T) {
	m := Translate(5, -3).Mul(Scale(2, 4)).Mul(Affine{0.6, 0.8, -0.8, 0.6, 0, 0})
	assertMatrix(t, "m*inv", m.Mul(m.Invert()), Identity)
	assertMatrix(t, "inv*m", m.Invert().Mul(m), Identity)
}

func TestAffineInvertSingular(t *testing.T) {
	assertMatrix(t, "singular", Scale(0, 1).Invert(), Identity)
}

func TestAffineMapRect(t *testing.T) {
	rot := Affine{0, 1, -1, 0, 0, 0} // 90 degrees
	got := rot.MapRect(Rect{X: 0, Y: 0, Width: 10, Height: 4})
	want := Rect{X: -4, Y: 0, Width: 4, Height: 10}
	assertNear(t, "X", got.X, want.X)
	assertNear(t, "Y", got.Y, want.Y)
	assertNear(t, "Width", got.Width, want.Width)
	assertNear(t, "Height", got.Height, want.Height)

	if r := Identity.MapRect(Rect{Width: 0, Height: 5}); r != (Rect{}) {
		t.Errorf("MapRect(empty) = %v, want zero", r)
	}
}

// --- Transform ---

func TestTransformDefaultsToIdentity(t *testing.T) {
	tr := newTransform()
	assertMatrix(t, "default", tr.At(0), Identity)
	if tr.animated() {
		t.Error("default transform should not be animated")
	}
}

func TestTransformTranslation(t *testing.T) {
	tr := newTransform()
	tr.X.Set(10)
	tr.Y.Set(20)
	assertMatrix(t, "translation", tr.At(0), Translate(10, 20))
}

func TestTransformScaleAroundPivot(t *testing.T) {
	tr := newTransform()
	tr.ScaleX.Set(2)
	tr.ScaleY.Set(2)
	tr.PivotX.Set(5)
	tr.PivotY.Set(5)
	m := tr.At(0)
	x, y := m.Apply(5, 5)
	assertNear(t, "pivot x", x, 5)
	assertNear(t, "pivot y", y, 5)
	x, y = m.Apply(0, 0)
	assertNear(t, "origin x", x, -5)
	assertNear(t, "origin y", y, -5)
}

func TestTransformRotation(t *testing.T) {
	tr := newTransform()
	tr.Rotation.Set(math.Pi / 2)
	x, y := tr.At(0).Apply(1, 0)
	assertNear(t, "x", x, 0)
	assertNear(t, "y", y, 1)
}

func TestTransformAnimated(t *testing.T) {
	tr := newTransform()
	tr.X.SetKey(0, 0, nil)
	tr.X.SetKey(10, 100, nil)
	if !tr.animated() {
		t.Fatal("transform with two keys should be animated")
	}
	if !tr.differs(0, 5) {
		t.Error("differs(0, 5) = false, want true")
	}
	if tr.differs(10, 20) {
		t.Error("differs(10, 20) = true, want false (clamped after last key)")
	}
	assertNear(t, "x at 5", tr.At(5)[4], 50)
}

func TestSetPivotKeepingPlacement(t *testing.T) {
	tr := newTransform()
	tr.X.Set(30)
	tr.Y.Set(40)
	tr.Rotation.Set(0.7)
	tr.ScaleX.Set(1.5)
	before := tr.At(0)

	tr.setPivotKeepingPlacement(0, 12, -8)

	assertNear(t, "PivotX", tr.PivotX.At(0), 12)
	assertNear(t, "PivotY", tr.PivotY.At(0), -8)
	assertMatrix(t, "placement", tr.At(0), before)
}

func TestSetPivotKeepingPlacementIsQuiet(t *testing.T) {
	tr := newTransform()
	calls := 0
	for _, p := range tr.params() {
		p.bind(func(int, int) { calls++ })
	}
	tr.setPivotKeepingPlacement(0, 3, 4)
	if calls != 0 {
		t.Errorf("change callbacks = %d, want 0", calls)
	}
}
