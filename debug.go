package cel

import (
	"fmt"
	"time"
)

// updateStats holds timing of one Update call. Only populated in debug mode.
type updateStats struct {
	deliverTime time.Duration
	processTime time.Duration
	delivered   int
	submitted   int
}

func (s *Scene) debugLog(st updateStats) {
	if !s.debug {
		return
	}
	Logger().Debug("update",
		"deliver", st.deliverTime, "process", st.processTime,
		"delivered", st.delivered, "submitted", st.submitted,
		"outstanding", s.outstanding, "inflight", s.sched.InFlight())
}

// debugCheckDisposed panics with a descriptive message when a disposed box is
// used in a tree operation. Only called in debug mode.
func debugCheckDisposed(b *Box, op string) {
	if b.disposed {
		panic(fmt.Sprintf("cel debug: %s on disposed box %q", op, b.Name))
	}
}

// debugCheckTreeDepth warns if tree depth exceeds the threshold.
const debugMaxTreeDepth = 32

func debugCheckTreeDepth(b *Box) {
	depth := 0
	for p := b; p != nil; p = p.parent {
		depth++
	}
	if depth > debugMaxTreeDepth {
		Logger().Warn("tree depth exceeds threshold",
			"box", b.Name, "depth", depth, "threshold", debugMaxTreeDepth)
	}
}

// debugCheckChildCount warns if a box has more than 1000 children.
const debugMaxChildCount = 1000

func debugCheckChildCount(b *Box) {
	if len(b.children) > debugMaxChildCount {
		Logger().Warn("child count exceeds threshold",
			"box", b.Name, "children", len(b.children), "threshold", debugMaxChildCount)
	}
}
