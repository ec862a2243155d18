package effect

import (
	"fmt"
	"image"
	"sync"

	"github.com/phanxgames/cel"
)

// ApplyFunc renders an effect in place at relFrame and resolution.
type ApplyFunc func(img *image.RGBA, relFrame int, resolution float64) error

// Func wraps a function as an effect whose backend is set up lazily. Init
// runs once, on the first render that uses the effect. When it fails, every
// pass of this effect returns an error wrapping cel.ErrEffectInit and leaves
// the bitmap untouched; other effects and the box's own pixels are not
// affected.
type Func struct {
	name   string
	init   func() error
	apply  ApplyFunc
	margin float64

	once    sync.Once
	initErr error
}

// NewFunc returns an effect named name. init may be nil.
func NewFunc(name string, init func() error, apply ApplyFunc) *Func {
	return &Func{name: name, init: init, apply: apply}
}

// WithMargin sets how far, in box-local units, the effect draws outside
// the content.
func (f *Func) WithMargin(m float64) *Func {
	f.margin = m
	return f
}

// Margin implements cel.Effect.
func (f *Func) Margin(int) float64 { return f.margin }

// Resolve implements cel.Effect.
func (f *Func) Resolve(relFrame int, resolution float64) cel.EffectPass {
	return funcPass{f: f, rel: relFrame, res: resolution}
}

// Err runs init if it has not run yet and returns its error.
func (f *Func) Err() error {
	return f.setup()
}

func (f *Func) String() string { return f.name }

func (f *Func) setup() error {
	f.once.Do(func() {
		if f.init == nil {
			return
		}
		if err := f.init(); err != nil {
			f.initErr = fmt.Errorf("%w: %s: %w", cel.ErrEffectInit, f.name, err)
		}
	})
	return f.initErr
}

type funcPass struct {
	f   *Func
	rel int
	res float64
}

func (p funcPass) Apply(img *image.RGBA) error {
	if err := p.f.setup(); err != nil {
		return err
	}
	if p.f.apply == nil {
		return nil
	}
	return p.f.apply(img, p.rel, p.res)
}

func (p funcPass) String() string { return p.f.name }
