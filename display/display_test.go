package display

import (
	"math"
	"testing"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/phanxgames/cel"
)

func TestGeoMMatchesAffine(t *testing.T) {
	m := cel.Translate(10, -4).Mul(cel.Scale(2, 3)).Mul(cel.Affine{0.8, 0.6, -0.6, 0.8, 0, 0})
	g := GeoM(m)
	points := [][2]float64{{0, 0}, {1, 0}, {0, 1}, {5, -7}}
	for _, pt := range points {
		wx, wy := m.Apply(pt[0], pt[1])
		gx, gy := g.Apply(pt[0], pt[1])
		if math.Abs(wx-gx) > 1e-9 || math.Abs(wy-gy) > 1e-9 {
			t.Errorf("GeoM.Apply(%v) = (%v, %v), want (%v, %v)", pt, gx, gy, wx, wy)
		}
	}
}

func TestGeoMIdentity(t *testing.T) {
	g := GeoM(cel.Identity)
	var want ebiten.GeoM
	for i := range 2 {
		for j := range 3 {
			if g.Element(i, j) != want.Element(i, j) {
				t.Errorf("Element(%d, %d) = %v, want %v", i, j, g.Element(i, j), want.Element(i, j))
			}
		}
	}
}

func TestBlend(t *testing.T) {
	modes := []struct {
		mode   cel.BlendMode
		expect ebiten.Blend
	}{
		{cel.BlendNormal, ebiten.BlendSourceOver},
		{cel.BlendAdd, ebiten.BlendLighter},
		{cel.BlendErase, ebiten.BlendDestinationOut},
		{cel.BlendMask, ebiten.BlendDestinationIn},
		{cel.BlendBelow, ebiten.BlendDestinationOver},
		{cel.BlendNone, ebiten.BlendCopy},
		{cel.BlendSourceIn, ebiten.BlendSourceIn},
		{cel.BlendDestAtop, ebiten.BlendDestinationAtop},
	}
	for _, tt := range modes {
		t.Run(tt.mode.String(), func(t *testing.T) {
			if got := Blend(tt.mode); got != tt.expect {
				t.Errorf("Blend(%v) = %v, want %v", tt.mode, got, tt.expect)
			}
		})
	}

	zero := ebiten.Blend{}
	for _, mode := range []cel.BlendMode{cel.BlendMultiply, cel.BlendScreen} {
		if Blend(mode) == zero {
			t.Errorf("Blend(%v) returned zero blend", mode)
		}
	}
}

func TestPresenterSkipsEmptyOutput(t *testing.T) {
	p := NewPresenter()
	b := cel.NewBox("detached", nil)
	// A detached box has no output and no handle; nothing is uploaded.
	p.Draw(nil, b, cel.Identity)
	if p.Len() != 0 {
		t.Errorf("Len = %d, want 0", p.Len())
	}
}
