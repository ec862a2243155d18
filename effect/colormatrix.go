package effect

import (
	"image"

	"github.com/phanxgames/cel"
)

// Matrix is a 4x5 color matrix in row-major order, applied to straight
// (non-premultiplied) RGBA in the 0..255 range:
//
//	[R']   [m0  m1  m2  m3  m4 ]   [R]
//	[G'] = [m5  m6  m7  m8  m9 ] * [G]
//	[B']   [m10 m11 m12 m13 m14]   [B]
//	[A']   [m15 m16 m17 m18 m19]   [A]
//	                               [1]
type Matrix [20]float32

// IdentityMatrix leaves colors unchanged.
var IdentityMatrix = Matrix{
	1, 0, 0, 0, 0,
	0, 1, 0, 0, 0,
	0, 0, 1, 0, 0,
	0, 0, 0, 1, 0,
}

// Mul returns the matrix applying n first, then m.
func (m Matrix) Mul(n Matrix) Matrix {
	var out Matrix
	for r := range 4 {
		for c := range 5 {
			var v float32
			for k := range 4 {
				v += m[r*5+k] * n[k*5+c]
			}
			if c == 4 {
				v += m[r*5+4]
			}
			out[r*5+c] = v
		}
	}
	return out
}

// BrightnessMatrix scales RGB by f: 0 is black, 1 unchanged.
func BrightnessMatrix(f float32) Matrix {
	return Matrix{
		f, 0, 0, 0, 0,
		0, f, 0, 0, 0,
		0, 0, f, 0, 0,
		0, 0, 0, 1, 0,
	}
}

// ContrastMatrix scales RGB around mid-gray: 0 is flat gray, 1 unchanged.
func ContrastMatrix(f float32) Matrix {
	off := 128 * (1 - f)
	return Matrix{
		f, 0, 0, 0, off,
		0, f, 0, 0, off,
		0, 0, f, 0, off,
		0, 0, 0, 1, 0,
	}
}

// SaturationMatrix blends between Rec. 709 luminance (0) and the original
// color (1).
func SaturationMatrix(f float32) Matrix {
	const (
		lumR = 0.2126
		lumG = 0.7152
		lumB = 0.0722
	)
	inv := 1 - f
	return Matrix{
		lumR*inv + f, lumG * inv, lumB * inv, 0, 0,
		lumR * inv, lumG*inv + f, lumB * inv, 0, 0,
		lumR * inv, lumG * inv, lumB*inv + f, 0, 0,
		0, 0, 0, 1, 0,
	}
}

// ColorMatrix adjusts brightness, contrast and saturation. All factors
// default to 1.
type ColorMatrix struct {
	Brightness cel.Param
	Contrast   cel.Param
	Saturation cel.Param
}

// NewColorMatrix returns a ColorMatrix with static factors.
func NewColorMatrix(brightness, contrast, saturation float64) *ColorMatrix {
	return &ColorMatrix{
		Brightness: cel.NewParam(brightness),
		Contrast:   cel.NewParam(contrast),
		Saturation: cel.NewParam(saturation),
	}
}

// Params implements cel.Animator.
func (c *ColorMatrix) Params() []*cel.Param {
	return []*cel.Param{&c.Brightness, &c.Contrast, &c.Saturation}
}

// Margin implements cel.Effect.
func (c *ColorMatrix) Margin(int) float64 { return 0 }

// Resolve implements cel.Effect.
func (c *ColorMatrix) Resolve(relFrame int, _ float64) cel.EffectPass {
	m := BrightnessMatrix(float32(c.Brightness.At(relFrame))).
		Mul(ContrastMatrix(float32(c.Contrast.At(relFrame)))).
		Mul(SaturationMatrix(float32(c.Saturation.At(relFrame))))
	return matrixPass(m)
}

func (c *ColorMatrix) String() string { return "color matrix" }

type matrixPass Matrix

func (p matrixPass) Apply(img *image.RGBA) error {
	m := Matrix(p)
	if m == IdentityMatrix {
		return nil
	}
	w, h := img.Rect.Dx(), img.Rect.Dy()
	for y := range h {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for i := 0; i < len(row); i += 4 {
			a := row[i+3]
			if a == 0 {
				continue
			}
			r, g, b := unpremultiply(row[i], row[i+1], row[i+2], a)
			fa := float32(a)
			nr := m[0]*r + m[1]*g + m[2]*b + m[3]*fa + m[4]
			ng := m[5]*r + m[6]*g + m[7]*b + m[8]*fa + m[9]
			nb := m[10]*r + m[11]*g + m[12]*b + m[13]*fa + m[14]
			na := m[15]*r + m[16]*g + m[17]*b + m[18]*fa + m[19]
			premultiply(row[i:i+4], nr, ng, nb, na)
		}
	}
	return nil
}

func (p matrixPass) String() string { return "color matrix" }

func unpremultiply(r, g, b, a uint8) (float32, float32, float32) {
	if a == 255 {
		return float32(r), float32(g), float32(b)
	}
	s := 255 / float32(a)
	return min(float32(r)*s, 255), min(float32(g)*s, 255), min(float32(b)*s, 255)
}

// premultiply writes straight 0..255 components to px as premultiplied RGBA.
func premultiply(px []uint8, r, g, b, a float32) {
	a = max(min(a, 255), 0)
	s := a / 255
	px[0] = clampUint8(max(min(r, 255), 0) * s)
	px[1] = clampUint8(max(min(g, 255), 0) * s)
	px[2] = clampUint8(max(min(b, 255), 0) * s)
	px[3] = clampUint8(a)
}
