package effect

import (
	"image"
	"math"
	"sync"

	"github.com/phanxgames/cel"
)

// Blur applies a separable Gaussian blur. Radius is the Gaussian sigma in
// box-local units; the blur reaches three radii beyond the content.
type Blur struct {
	Radius cel.Param
}

// NewBlur returns a blur with a static radius.
func NewBlur(radius float64) *Blur {
	return &Blur{Radius: cel.NewParam(radius)}
}

// Params implements cel.Animator.
func (b *Blur) Params() []*cel.Param { return []*cel.Param{&b.Radius} }

// Margin implements cel.Effect.
func (b *Blur) Margin(relFrame int) float64 {
	return math.Ceil(max(b.Radius.At(relFrame), 0) * 3)
}

// Resolve implements cel.Effect.
func (b *Blur) Resolve(relFrame int, resolution float64) cel.EffectPass {
	r := max(b.Radius.At(relFrame), 0) * resolution
	return blurPass{radius: r}
}

func (b *Blur) String() string { return "blur" }

type blurPass struct {
	radius float64
}

func (p blurPass) Apply(img *image.RGBA) error {
	if p.radius <= 0 {
		return nil
	}
	w, h := img.Rect.Dx(), img.Rect.Dy()
	buf := getPlane(w * h * 4)
	defer putPlane(buf)

	readRGBA(img, buf)
	blurPlane(buf, w, h, 4, p.radius, p.radius)
	writeRGBA(img, buf)
	return nil
}

func (p blurPass) String() string { return "blur" }

var planePool sync.Pool

func getPlane(n int) []float32 {
	if v := planePool.Get(); v != nil {
		buf := *(v.(*[]float32))
		if cap(buf) >= n {
			return buf[:n]
		}
	}
	return make([]float32, n)
}

func putPlane(buf []float32) {
	planePool.Put(&buf)
}

func readRGBA(img *image.RGBA, buf []float32) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	for y := range h {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		out := buf[y*w*4 : (y+1)*w*4]
		for i, v := range row {
			out[i] = float32(v)
		}
	}
}

func writeRGBA(img *image.RGBA, buf []float32) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	for y := range h {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		in := buf[y*w*4 : (y+1)*w*4]
		for i := range row {
			row[i] = clampUint8(in[i])
		}
	}
}

// blurPlane blurs an interleaved w*h buffer of ch channels in place: a
// horizontal pass into a temporary buffer, then a vertical pass back.
// Samples outside the buffer are transparent.
func blurPlane(buf []float32, w, h, ch int, rx, ry float64) {
	tmp := getPlane(len(buf))
	defer putPlane(tmp)

	kx := kernels.get(rx)
	half := len(kx) / 2
	for y := range h {
		row := buf[y*w*ch : (y+1)*w*ch]
		out := tmp[y*w*ch : (y+1)*w*ch]
		for x := range w {
			for c := range ch {
				var sum float32
				for k, weight := range kx {
					sx := x + k - half
					if sx < 0 || sx >= w {
						continue
					}
					sum += row[sx*ch+c] * weight
				}
				out[x*ch+c] = sum
			}
		}
	}

	ky := kernels.get(ry)
	half = len(ky) / 2
	for y := range h {
		for x := range w {
			for c := range ch {
				var sum float32
				for k, weight := range ky {
					sy := y + k - half
					if sy < 0 || sy >= h {
						continue
					}
					sum += tmp[(sy*w+x)*ch+c] * weight
				}
				buf[(y*w+x)*ch+c] = sum
			}
		}
	}
}

func clampUint8(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
