package cel

import (
	"fmt"
	"math"
)

// Frame bounds used for unbounded ranges. They stay well inside int range so
// frame shifts can be added without overflow.
const (
	MinFrame = math.MinInt32
	MaxFrame = math.MaxInt32
)

// FrameRange is an inclusive range of frames.
type FrameRange struct {
	Min, Max int
}

// Empty reports whether the range contains no frames.
func (r FrameRange) Empty() bool {
	return r.Min > r.Max
}

// Contains reports whether frame lies inside the range.
func (r FrameRange) Contains(frame int) bool {
	return frame >= r.Min && frame <= r.Max
}

// Shift returns r moved by d. Unbounded ends stay unbounded.
func (r FrameRange) Shift(d int) FrameRange {
	return FrameRange{Min: shiftFrame(r.Min, d), Max: shiftFrame(r.Max, d)}
}

func shiftFrame(f, d int) int {
	if f <= MinFrame || f >= MaxFrame {
		return f
	}
	f += d
	if f < MinFrame {
		return MinFrame
	}
	if f > MaxFrame {
		return MaxFrame
	}
	return f
}

// DurationWindow is the interval of frames in which a box is visible.
// Min and Max are relative frames, so they move with the box's animation;
// Shift places the window (and the animation) on the parent's timeline.
type DurationWindow struct {
	min, max int
	shift    int
}

// NewDurationWindow returns a window covering [lo, hi] relative frames.
// Use MinFrame or MaxFrame for an unbounded end.
func NewDurationWindow(lo, hi int) (*DurationWindow, error) {
	if lo > hi {
		return nil, fmt.Errorf("cel: duration window [%d, %d]: %w", lo, hi, ErrInvalidRange)
	}
	return &DurationWindow{min: lo, max: hi}, nil
}

// Min returns the first visible relative frame.
func (w *DurationWindow) Min() int { return w.min }

// Max returns the last visible relative frame.
func (w *DurationWindow) Max() int { return w.max }

// Shift returns the frame shift applied to the window.
func (w *DurationWindow) Shift() int { return w.shift }

// Visible reports whether relFrame lies inside the window.
// A nil window is unbounded and always visible.
func (w *DurationWindow) Visible(relFrame int) bool {
	if w == nil {
		return true
	}
	return relFrame >= w.min && relFrame <= w.max
}

// Range returns the visible range in relative frames.
func (w *DurationWindow) Range() FrameRange {
	if w == nil {
		return FrameRange{Min: MinFrame, Max: MaxFrame}
	}
	return FrameRange{Min: w.min, Max: w.max}
}

// SetRange replaces the window bounds and returns the relative frame ranges
// whose visibility changed: the symmetric difference of old and new.
func (w *DurationWindow) SetRange(lo, hi int) ([]FrameRange, error) {
	if lo > hi {
		return nil, fmt.Errorf("cel: duration window [%d, %d]: %w", lo, hi, ErrInvalidRange)
	}
	old := w.Range()
	w.min, w.max = lo, hi
	return symmetricDifference(old, w.Range()), nil
}

// ShiftBy moves the window by delta frames on the parent timeline and returns
// the parent-relative ranges uncovered by the move: frames that entered or
// left the window.
func (w *DurationWindow) ShiftBy(delta int) []FrameRange {
	if delta == 0 {
		return nil
	}
	old := w.Range().Shift(w.shift)
	w.shift += delta
	return symmetricDifference(old, w.Range().Shift(w.shift))
}

// symmetricDifference returns the frames covered by exactly one of a and b,
// as at most two ranges: one at the low edge and one at the high edge.
func symmetricDifference(a, b FrameRange) []FrameRange {
	if a.Max < b.Min || b.Max < a.Min {
		return []FrameRange{a, b}
	}
	var out []FrameRange
	if a.Min != b.Min {
		lo := FrameRange{Min: min(a.Min, b.Min), Max: max(a.Min, b.Min) - 1}
		out = append(out, lo)
	}
	if a.Max != b.Max {
		hi := FrameRange{Min: min(a.Max, b.Max) + 1, Max: max(a.Max, b.Max)}
		out = append(out, hi)
	}
	return out
}
