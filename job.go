package cel

import (
	"fmt"
	"image"
	"math"
	"sync/atomic"
)

// minOpacity is the opacity below which a box produces no pixels.
const minOpacity = 0.001

type jobState int32

const (
	jobPending   jobState = iota // created, waiting for resolve
	jobResolved                  // snapshot taken, waiting for a worker
	jobExecuting                 // rasterizing
	jobRendered                  // output written, waiting for delivery
	jobDelivered                 // delivery attempted
)

// Layer is a child output composited into a parent job.
type Layer struct {
	Job     *RenderJob
	Opacity float64
	Blend   BlendMode
}

// Snapshot is the frame-specific input of a RenderJob. It is filled on the
// controlling goroutine during resolve, may be edited by customizers, and is
// read-only afterwards.
type Snapshot struct {
	AbsFrame, RelFrame int
	// Transform maps box-local coordinates to scene coordinates.
	Transform Affine
	Opacity   float64
	// Resolution scales scene coordinates to device pixels.
	Resolution float64
	// EffectsMargin is the extra border, in device pixels, kept around the
	// content for effects that draw outside it.
	EffectsMargin   float64
	Blend           BlendMode
	ClipToMaxBounds bool
	MaxBounds       Rect
	// RelBounds is the extent of the content and children in box-local
	// coordinates.
	RelBounds Rect
	Content   Drawable
	Layers    []Layer
	Effects   []EffectPass
}

// Customizer edits a job's snapshot right after the box resolved it.
type Customizer func(s *Snapshot)

// Output is the result of an executed RenderJob.
type Output struct {
	// Bitmap holds premultiplied RGBA pixels, or nil for an empty result.
	// It must not be modified, and is only valid until the next
	// Scene.Update or Scene.Deliver call.
	Bitmap *image.RGBA
	// Origin is the device-pixel position of the bitmap's top-left corner.
	Origin image.Point
	// SubPixel is the rounding remainder of Origin.
	SubPixel   Vec2
	Resolution float64
	// Transform is the combined transform the bitmap was rendered with.
	Transform Affine
	Opacity   float64
	Blend     BlendMode
	AbsFrame  int
	Seq       uint64
}

// Empty reports whether the output has no pixels.
func (o Output) Empty() bool {
	return o.Bitmap == nil
}

// DeviceRect returns the bitmap's extent in device pixels.
func (o Output) DeviceRect() Rect {
	if o.Bitmap == nil {
		return Rect{}
	}
	s := o.Bitmap.Rect.Size()
	return Rect{X: float64(o.Origin.X), Y: float64(o.Origin.Y), Width: float64(s.X), Height: float64(s.Y)}
}

// RenderJob renders one box at one frame. It holds only a weak handle to its
// box, so it may outlive the box; results for a box that no longer exists
// are dropped at delivery.
//
// Jobs are reference counted. The box's current slot, the scheduler, the
// cache and parent jobs compositing the output each hold one reference.
type RenderJob struct {
	refs  atomic.Int32
	state atomic.Int32

	scene   *Scene
	owner   Handle
	deliver bool
	seq     uint64

	snap Snapshot
	out  Output
	errs []error

	passes int
}

func newRenderJob(sc *Scene, owner Handle, deliver bool) *RenderJob {
	sc.seq++
	j := &RenderJob{scene: sc, owner: owner, deliver: deliver, seq: sc.seq}
	j.refs.Store(1)
	sc.stats.created.Add(1)
	return j
}

func (j *RenderJob) retain() {
	j.refs.Add(1)
}

// release drops one reference. The last release returns the bitmap to the
// pool and releases composited child jobs.
func (j *RenderJob) release() {
	n := j.refs.Add(-1)
	if n > 0 {
		return
	}
	if n < 0 {
		panic("cel: RenderJob released more often than retained")
	}
	bitmaps.Release(j.out.Bitmap)
	j.out.Bitmap = nil
	for _, l := range j.snap.Layers {
		l.Job.release()
	}
	j.snap.Layers = nil
}

func (j *RenderJob) stateIs(s jobState) bool {
	return jobState(j.state.Load()) == s
}

// Seq returns the job's creation sequence number. Later jobs have larger numbers.
func (j *RenderJob) Seq() uint64 { return j.seq }

// Owner returns the weak handle of the box the job renders.
func (j *RenderJob) Owner() Handle { return j.owner }

// Snapshot returns a copy of the resolved input.
func (j *RenderJob) Snapshot() Snapshot { return j.snap }

// Resolved reports whether the snapshot has been taken.
func (j *RenderJob) Resolved() bool { return !j.stateIs(jobPending) }

// Rendered reports whether execute has finished.
func (j *RenderJob) Rendered() bool {
	s := jobState(j.state.Load())
	return s == jobRendered || s == jobDelivered
}

// Output returns the rendered result. Zero until the job has executed.
func (j *RenderJob) Output() Output { return j.out }

// Errors returns the effect failures recorded during execute.
func (j *RenderJob) Errors() []error { return j.errs }

// EffectPasses returns how many effect passes execute applied.
func (j *RenderJob) EffectPasses() int { return j.passes }

// resolve takes the snapshot of b at absFrame. layers are the child outputs
// to composite, already retained for this job. It reports false, leaving the
// job pending, when one of b's dependencies is not ready.
func (j *RenderJob) resolve(b *Box, absFrame int, layers []Layer) bool {
	if !j.stateIs(jobPending) {
		return true
	}
	if !b.ready() {
		for _, l := range layers {
			l.Job.release()
		}
		return false
	}
	b.fillSnapshot(&j.snap, absFrame)
	j.snap.Layers = layers
	for _, l := range layers {
		o := l.Job.snap
		childLocal := j.snap.Transform.Invert().Mul(o.Transform)
		j.snap.RelBounds = j.snap.RelBounds.Union(childLocal.MapRect(o.RelBounds))
	}
	for _, c := range b.customizers {
		c(&j.snap)
	}
	j.state.Store(int32(jobResolved))
	return true
}

// execute rasterizes the snapshot. Only the first call does any work.
func (j *RenderJob) execute() {
	if !j.state.CompareAndSwap(int32(jobResolved), int32(jobExecuting)) {
		return
	}
	j.render()
	if j.scene != nil {
		j.scene.stats.executed.Add(1)
	}
	j.state.Store(int32(jobRendered))
}

func (j *RenderJob) render() {
	s := &j.snap
	j.out = Output{
		Resolution: s.Resolution,
		Transform:  s.Transform,
		Opacity:    s.Opacity,
		Blend:      s.Blend,
		AbsFrame:   s.AbsFrame,
		Seq:        j.seq,
	}
	if s.Opacity < minOpacity {
		return
	}

	res := s.Resolution
	device := Scale(res, res).Mul(s.Transform)
	var global Rect
	if s.Content != nil {
		global = device.MapRect(s.Content.Bounds())
	}
	for _, l := range s.Layers {
		global = global.Union(l.Job.out.DeviceRect())
	}
	if global.Empty() {
		return
	}
	global = global.Inset(s.EffectsMargin)
	if s.ClipToMaxBounds {
		global = global.Intersect(Scale(res, res).MapRect(s.MaxBounds))
	}
	w, h := int(math.Ceil(global.Width)), int(math.Ceil(global.Height))
	if w <= 0 || h <= 0 {
		return
	}

	left, top := math.Round(global.X), math.Round(global.Y)
	img := bitmaps.Acquire(w, h)
	origin := image.Pt(int(left), int(top))

	if s.Content != nil {
		s.Content.Draw(img, Translate(-left, -top).Mul(device))
	}
	for _, l := range s.Layers {
		o := l.Job.out
		if o.Bitmap == nil {
			continue
		}
		composite(img, o.Bitmap, o.Origin.Sub(origin), l.Opacity, l.Blend)
	}
	for i, pass := range s.Effects {
		j.passes++
		if err := pass.Apply(img); err != nil {
			err = fmt.Errorf("cel: effect %d (%s): %w", i, effectName(pass), err)
			j.errs = append(j.errs, err)
			if j.scene != nil {
				j.scene.stats.effectErrors.Add(1)
			}
			Logger().Warn("effect failed", "frame", s.AbsFrame, "err", err)
		}
	}

	j.out.Bitmap = img
	j.out.Origin = origin
	j.out.SubPixel = Vec2{X: global.X - left, Y: global.Y - top}
}

// deliverResult hands the output to the owning box. Repeated calls are
// no-ops. Jobs not marked for delivery, and jobs whose box is gone or has
// moved on to another job, are dropped.
func (j *RenderJob) deliverResult() {
	if !j.state.CompareAndSwap(int32(jobRendered), int32(jobDelivered)) {
		return
	}
	if !j.deliver {
		return
	}
	b := j.scene.reg.get(j.owner)
	if b == nil || b.current != j {
		j.scene.stats.dropped.Add(1)
		Logger().Debug("dropped render result", "seq", j.seq, "frame", j.snap.AbsFrame)
		return
	}
	j.scene.stats.delivered.Add(1)
	b.onJobDelivered(j)
}
