package cel

import (
	"image"
	"image/color"
	"testing"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestCompositeModes(t *testing.T) {
	red := color.RGBA{255, 0, 0, 255}
	halfBlue := color.RGBA{0, 0, 128, 128}
	tests := []struct {
		mode BlendMode
		dst  color.RGBA
		src  color.RGBA
		want color.RGBA
	}{
		{BlendNormal, red, halfBlue, color.RGBA{127, 0, 128, 255}},
		{BlendAdd, red, halfBlue, color.RGBA{255, 0, 128, 255}},
		{BlendNone, red, halfBlue, halfBlue},
		{BlendErase, red, halfBlue, color.RGBA{127, 0, 0, 127}},
		{BlendMask, red, halfBlue, color.RGBA{128, 0, 0, 128}},
		{BlendBelow, halfBlue, red, color.RGBA{127, 0, 128, 255}},
		{BlendSourceIn, red, halfBlue, halfBlue},
		{BlendMultiply, color.RGBA{255, 255, 255, 255}, red, red},
		{BlendScreen, color.RGBA{0, 0, 0, 255}, red, red},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			dst := solid(1, 1, tt.dst)
			composite(dst, solid(1, 1, tt.src), image.Point{}, 1, tt.mode)
			got := dst.RGBAAt(0, 0)
			if !nearRGBA(got, tt.want, 1) {
				t.Errorf("%v: got %v, want %v", tt.mode, got, tt.want)
			}
		})
	}
}

func TestCompositeOpacity(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 1, 1))
	composite(dst, solid(1, 1, color.RGBA{255, 255, 255, 255}), image.Point{}, 0.5, BlendNormal)
	if got := dst.RGBAAt(0, 0); !nearRGBA(got, color.RGBA{128, 128, 128, 128}, 1) {
		t.Errorf("got %v, want half white", got)
	}
}

func TestCompositeOffsetAndClip(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 4, 4))
	composite(dst, solid(2, 2, color.RGBA{0, 255, 0, 255}), image.Pt(3, 3), 1, BlendNormal)
	if dst.RGBAAt(3, 3).A != 255 {
		t.Error("pixel inside the overlap should be drawn")
	}
	if dst.RGBAAt(2, 2).A != 0 {
		t.Error("pixel outside the source should be untouched")
	}
}

func TestCompositeMaskClearsOutside(t *testing.T) {
	dst := solid(4, 4, color.RGBA{255, 0, 0, 255})
	composite(dst, solid(2, 2, color.RGBA{0, 0, 0, 255}), image.Pt(1, 1), 1, BlendMask)
	if dst.RGBAAt(0, 0).A != 0 {
		t.Errorf("outside mask alpha = %d, want 0", dst.RGBAAt(0, 0).A)
	}
	if got := dst.RGBAAt(1, 1); got != (color.RGBA{255, 0, 0, 255}) {
		t.Errorf("inside mask = %v, want red", got)
	}
}

func TestBlendModeString(t *testing.T) {
	seen := map[string]bool{}
	for m := BlendNormal; m <= BlendDestAtop; m++ {
		s := m.String()
		if s == "" || seen[s] {
			t.Errorf("BlendMode(%d).String() = %q, want a unique name", m, s)
		}
		seen[s] = true
	}
}

func nearRGBA(a, b color.RGBA, tol int) bool {
	d := func(x, y uint8) bool {
		v := int(x) - int(y)
		return v >= -tol && v <= tol
	}
	return d(a.R, b.R) && d(a.G, b.G) && d(a.B, b.B) && d(a.A, b.A)
}
