package cel

import (
	"context"
	"fmt"
	"image"
	"sync/atomic"
	"time"
)

// sceneStats are counters shared with workers, hence atomic.
type sceneStats struct {
	created      atomic.Uint64
	executed     atomic.Uint64
	delivered    atomic.Uint64
	dropped      atomic.Uint64
	deferred     atomic.Uint64
	redos        atomic.Uint64
	effectErrors atomic.Uint64
}

// Stats is a snapshot of a Scene's render bookkeeping.
type Stats struct {
	// Jobs created for boxes (export jobs included).
	Created uint64
	// Jobs whose execute phase ran.
	Executed uint64
	// Jobs delivered to their box.
	Delivered uint64
	// Jobs whose box was gone or had moved on at delivery.
	Dropped uint64
	// Resolve attempts postponed because content or an effect was not ready.
	Deferred uint64
	// Schedule requests coalesced into a redo flag.
	Redos uint64
	// Effect passes that returned an error.
	EffectErrors uint64

	// Outstanding is the number of box jobs not yet delivered.
	Outstanding int
	// Pending is the number of boxes waiting for ProcessAll.
	Pending int
	// InFlight is the number of jobs submitted and not finished.
	InFlight int
	// Boxes is the number of boxes attached to the scene.
	Boxes int
}

// Scene owns the box tree, the scheduler and the executor that renders it.
// Everything except Stats, Ready and the FrameCache must be used from one
// controlling goroutine.
type Scene struct {
	root  *Box
	reg   registry
	sched *Scheduler
	exec  Executor
	cfg   Config

	frame          int
	resolution     float64
	effectsVisible bool
	clip           bool
	maxBounds      Rect

	blocked   int
	deferred  []*Box
	resolving bool

	seq         uint64
	outstanding int
	stats       sceneStats

	frames       *FrameCache
	onInvalidate []func(FrameRange)

	debug  bool
	closed bool
}

// NewScene creates a scene with an empty root group at cfg.FirstFrame.
func NewScene(cfg Config) (*Scene, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var exec Executor
	if cfg.Synchronous {
		exec = &InlineExecutor{}
	} else {
		exec = NewWorkerPool(cfg.WorkerCount())
	}
	s := &Scene{
		exec:           exec,
		cfg:            cfg,
		frame:          cfg.FirstFrame,
		resolution:     cfg.Resolution,
		effectsVisible: cfg.EffectsVisible,
		clip:           cfg.ClipToBounds,
		maxBounds:      cfg.MaxBounds(),
		frames:         NewFrameCache(cfg.FrameCacheMB),
	}
	s.sched = newScheduler(s, exec)
	s.SetDebugMode(cfg.Debug)

	s.root = NewGroup("root")
	s.root.attach(s)
	s.root.setFrame(s.frame)

	Logger().Info("scene created",
		"width", cfg.Width, "height", cfg.Height,
		"resolution", cfg.Resolution, "synchronous", cfg.Synchronous)
	return s, nil
}

// Root returns the scene's root group.
func (s *Scene) Root() *Box {
	return s.root
}

// Config returns the configuration the scene was created with.
func (s *Scene) Config() Config {
	return s.cfg
}

// Scheduler returns the scene's scheduler.
func (s *Scene) Scheduler() *Scheduler {
	return s.sched
}

// FrameCache returns the cache of frames rendered by RenderFrame.
func (s *Scene) FrameCache() *FrameCache {
	return s.frames
}

// Lookup resolves a handle to its box, or nil if the box was removed.
func (s *Scene) Lookup(h Handle) *Box {
	return s.reg.get(h)
}

// Frame returns the current absolute frame.
func (s *Scene) Frame() int {
	return s.frame
}

// SetFrame moves every box to absFrame. Boxes that enter or leave their
// duration window, or whose animated values differ, schedule updates.
func (s *Scene) SetFrame(absFrame int) {
	if absFrame == s.frame {
		return
	}
	s.frame = absFrame
	s.root.setFrame(absFrame)
}

// Resolution returns the bitmap scale of the scene.
func (s *Scene) Resolution() float64 {
	return s.resolution
}

// SetResolution changes the bitmap scale and re-renders every box.
func (s *Scene) SetResolution(r float64) error {
	if r <= 0 || r > 8 {
		return fmt.Errorf("cel: resolution %v out of (0, 8]", r)
	}
	if r == s.resolution {
		return nil
	}
	s.resolution = r
	s.invalidateAll()
	return nil
}

// SetEffectsVisible turns effect rendering on or off for every box.
func (s *Scene) SetEffectsVisible(v bool) {
	if v == s.effectsVisible {
		return
	}
	s.effectsVisible = v
	s.invalidateAll()
}

// SetMaxBounds sets the rectangle, in scene units, outputs are clipped to
// when clip is true.
func (s *Scene) SetMaxBounds(r Rect, clip bool) {
	if r == s.maxBounds && clip == s.clip {
		return
	}
	s.maxBounds = r
	s.clip = clip
	s.invalidateAll()
}

func (s *Scene) invalidateAll() {
	var walk func(b *Box)
	walk = func(b *Box) {
		b.requestUpdate()
		for _, c := range b.children {
			walk(c)
		}
	}
	walk(s.root)
	s.framesInvalidated(FrameRange{Min: MinFrame, Max: MaxFrame})
}

// OnInvalidate registers fn to be called with every absolute frame range
// that is invalidated.
func (s *Scene) OnInvalidate(fn func(r FrameRange)) {
	if fn != nil {
		s.onInvalidate = append(s.onInvalidate, fn)
	}
}

func (s *Scene) framesInvalidated(r FrameRange) {
	if r.Empty() {
		return
	}
	s.frames.InvalidateRange(r)
	for _, fn := range s.onInvalidate {
		fn(r)
	}
}

// --- Scheduling ---

// ProcessAll resolves every pending job and hands it to the executor. Call
// it once per edit batch. It returns the number of jobs submitted.
func (s *Scene) ProcessAll() int {
	if s.closed {
		return 0
	}
	return s.sched.ProcessAll()
}

// Deliver hands every executed job to its box. It returns the number of
// jobs handled.
func (s *Scene) Deliver() int {
	return s.sched.Deliver()
}

// Update delivers finished jobs and then submits pending ones. Call it once
// per tick of the controlling loop.
func (s *Scene) Update() {
	if !s.debug {
		s.sched.Deliver()
		s.ProcessAll()
		return
	}
	t0 := time.Now()
	delivered := s.sched.Deliver()
	deliverTime := time.Since(t0)
	t0 = time.Now()
	submitted := s.ProcessAll()
	s.debugLog(updateStats{
		deliverTime: deliverTime,
		processTime: time.Since(t0),
		delivered:   delivered,
		submitted:   submitted,
	})
}

// Ready is signalled when executed jobs wait for Deliver.
func (s *Scene) Ready() <-chan struct{} {
	return s.sched.Ready()
}

// Wait runs Update until no job is pending, in flight or waiting for
// delivery. Jobs deferred because a box is not ready do not keep it waiting.
func (s *Scene) Wait(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	return s.sched.Wait(ctx)
}

// Busy reports whether any box job is outstanding.
func (s *Scene) Busy() bool {
	return s.outstanding > 0
}

// Outstanding returns the number of box jobs created and not yet delivered.
func (s *Scene) Outstanding() int {
	return s.outstanding
}

// Stats returns the scene's counters.
func (s *Scene) Stats() Stats {
	return Stats{
		Created:      s.stats.created.Load(),
		Executed:     s.stats.executed.Load(),
		Delivered:    s.stats.delivered.Load(),
		Dropped:      s.stats.dropped.Load(),
		Deferred:     s.stats.deferred.Load(),
		Redos:        s.stats.redos.Load(),
		EffectErrors: s.stats.effectErrors.Load(),
		Outstanding:  s.outstanding,
		Pending:      s.sched.Pending(),
		InFlight:     s.sched.InFlight(),
		Boxes:        s.reg.len(),
	}
}

// BlockSchedule suspends scheduling. Requests made while blocked are
// remembered and issued by Flush. Calls nest.
func (s *Scene) BlockSchedule() {
	s.blocked++
}

// UnblockSchedule ends one BlockSchedule.
func (s *Scene) UnblockSchedule() {
	if s.blocked > 0 {
		s.blocked--
	}
}

// Flush issues the requests remembered while scheduling was blocked. It
// does nothing while still blocked.
func (s *Scene) Flush() {
	if s.blocked > 0 {
		return
	}
	boxes := s.deferred
	s.deferred = nil
	for _, b := range boxes {
		b.flushPending = false
		b.requestUpdate()
	}
}

// Batch runs fn with scheduling blocked and flushes afterwards, so many
// changes produce one job per affected box.
func (s *Scene) Batch(fn func()) {
	s.BlockSchedule()
	defer func() {
		s.UnblockSchedule()
		s.Flush()
	}()
	fn()
}

// SetDebugMode enables or disables debug mode. When enabled, disposed-box
// use panics, tree depth and child count warnings are logged, and Update
// logs its timing.
func (s *Scene) SetDebugMode(enabled bool) {
	s.debug = enabled
	globalDebug = enabled
}

// globalDebug mirrors the most recently set Scene debug flag so that box
// operations on detached boxes can check it cheaply.
var globalDebug bool

// Draw composites the root's cached output onto dst, mapping scene
// coordinates to dst pixels with view.
func (s *Scene) Draw(dst *image.RGBA, view Affine) {
	s.root.DrawCached(dst, view)
}

// Close stops the executor after running queued work, then releases the
// results. The scene accepts no more work.
func (s *Scene) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.exec.Close()
	s.sched.Deliver()
	Logger().Info("scene closed")
}
