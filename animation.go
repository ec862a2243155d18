package cel

import (
	"sort"

	"github.com/tanema/gween/ease"
)

// Keyframe pins a Param to Value at a relative frame. Ease shapes the segment
// from this keyframe to the next one; nil means linear.
type Keyframe struct {
	Frame int
	Value float64
	Ease  ease.TweenFunc
}

// Param is an animatable float64. Without keyframes it holds a static value;
// with keyframes it interpolates between them with gween's easing curves,
// clamping outside the first and last keyframe.
//
// A Param that belongs to a box reports every change to that box, which
// invalidates the frames the change can affect.
type Param struct {
	base     float64
	keys     []Keyframe
	onChange func(minRel, maxRel int)
}

// NewParam returns a static Param holding v.
func NewParam(v float64) Param {
	return Param{base: v}
}

// At returns the value at relFrame.
func (p *Param) At(relFrame int) float64 {
	n := len(p.keys)
	if n == 0 {
		return p.base
	}
	if relFrame <= p.keys[0].Frame {
		return p.keys[0].Value
	}
	if relFrame >= p.keys[n-1].Frame {
		return p.keys[n-1].Value
	}
	i := sort.Search(n, func(i int) bool { return p.keys[i].Frame > relFrame })
	k0, k1 := p.keys[i-1], p.keys[i]
	if k0.Frame == relFrame {
		return k0.Value
	}
	fn := k0.Ease
	if fn == nil {
		fn = ease.Linear
	}
	// The easing curve runs on [0, 1]; the value itself stays in float64.
	t := float64(fn(float32(relFrame-k0.Frame), 0, 1, float32(k1.Frame-k0.Frame)))
	return k0.Value + (k1.Value-k0.Value)*t
}

// Set drops all keyframes and holds v at every frame.
func (p *Param) Set(v float64) {
	if len(p.keys) == 0 && p.base == v {
		return
	}
	p.base = v
	p.keys = nil
	p.changed(MinFrame, MaxFrame)
}

// SetKey adds or replaces the keyframe at frame.
func (p *Param) SetKey(frame int, v float64, fn ease.TweenFunc) {
	i := sort.Search(len(p.keys), func(i int) bool { return p.keys[i].Frame >= frame })
	k := Keyframe{Frame: frame, Value: v, Ease: fn}
	if i < len(p.keys) && p.keys[i].Frame == frame {
		p.keys[i] = k
	} else {
		p.keys = append(p.keys, Keyframe{})
		copy(p.keys[i+1:], p.keys[i:])
		p.keys[i] = k
	}
	p.changed(p.influence(i))
}

// RemoveKey deletes the keyframe at frame, if any.
func (p *Param) RemoveKey(frame int) {
	i := sort.Search(len(p.keys), func(i int) bool { return p.keys[i].Frame >= frame })
	if i >= len(p.keys) || p.keys[i].Frame != frame {
		return
	}
	lo, hi := p.influence(i)
	if len(p.keys) == 1 {
		p.base = p.keys[0].Value
	}
	p.keys = append(p.keys[:i], p.keys[i+1:]...)
	p.changed(lo, hi)
}

// Keyframes returns a copy of the keyframes in frame order.
func (p *Param) Keyframes() []Keyframe {
	out := make([]Keyframe, len(p.keys))
	copy(out, p.keys)
	return out
}

// Animated reports whether the value can change between frames.
func (p *Param) Animated() bool {
	return len(p.keys) > 1
}

// Differs reports whether the value at frame a differs from the value at b.
func (p *Param) Differs(a, b int) bool {
	if a == b || !p.Animated() {
		return false
	}
	return p.At(a) != p.At(b)
}

// influence returns the relative frames whose value depends on keyframe i.
func (p *Param) influence(i int) (int, int) {
	lo, hi := MinFrame, MaxFrame
	if i > 0 {
		lo = p.keys[i-1].Frame
	}
	if i < len(p.keys)-1 {
		hi = p.keys[i+1].Frame
	}
	return lo, hi
}

func (p *Param) changed(lo, hi int) {
	if p.onChange != nil {
		p.onChange(lo, hi)
	}
}

func (p *Param) bind(fn func(minRel, maxRel int)) {
	p.onChange = fn
}

// setQuiet replaces the value without notifying the owner.
func (p *Param) setQuiet(v float64) {
	p.base = v
	p.keys = nil
}

// offsetQuiet adds d to the value and every keyframe without notifying the owner.
func (p *Param) offsetQuiet(d float64) {
	p.base += d
	for i := range p.keys {
		p.keys[i].Value += d
	}
}

// Animator is implemented by effects and contents that carry their own
// Params. Params returned here are bound to the owning box.
type Animator interface {
	Params() []*Param
}
