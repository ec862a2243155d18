package cel

// defaultEffectsMargin is the border, in device pixels, kept around every
// output so antialiased edges are not cut off.
const defaultEffectsMargin = 2

// frameShift returns the total window shift of the box and its ancestors.
// A box's relative frame is its absolute frame minus this shift.
func (b *Box) frameShift() int {
	shift := 0
	for n := b; n != nil; n = n.parent {
		if n.window != nil {
			shift += n.window.shift
		}
	}
	return shift
}

// windowAbs returns the box's visible window in absolute frames.
func (b *Box) windowAbs() FrameRange {
	return b.window.Range().Shift(b.frameShift())
}

// source returns the box whose content and effects b draws.
func (b *Box) source() *Box {
	if b.template != nil {
		return b.template
	}
	return b
}

func (b *Box) shouldUpdate() bool {
	return b.visible && b.window.Visible(b.relFrame)
}

// --- Invalidation ---

// Invalidate marks the output stale for the absolute frames [minAbs, maxAbs].
// When the current frame lies inside the range, the box and every ancestor
// schedule an update.
func (b *Box) Invalidate(minAbs, maxAbs int) {
	if minAbs > maxAbs {
		return
	}
	r := FrameRange{Min: minAbs, Max: maxAbs}
	for n := b; n != nil; n = n.parent {
		if r.Contains(n.absFrame) {
			n.requestUpdate()
		}
	}
	if b.scene != nil {
		b.scene.framesInvalidated(r)
	}
}

// InvalidateRel is Invalidate for a range of the box's relative frames. Link
// boxes drawing this box's content are invalidated too.
func (b *Box) InvalidateRel(minRel, maxRel int) {
	b.invalidateRel(minRel, maxRel)
	for _, l := range b.links {
		l.InvalidateRel(minRel, maxRel)
	}
}

func (b *Box) invalidateRel(minRel, maxRel int) {
	r := FrameRange{Min: minRel, Max: maxRel}.Shift(b.frameShift())
	b.Invalidate(r.Min, r.Max)
}

// transformChanged handles a change of one of the transform Params. Outputs
// are rasterized in scene space, so descendants render again as well; until
// they deliver, cached pixels follow the new placement.
func (b *Box) transformChanged(minRel, maxRel int) {
	b.invalidateRel(minRel, maxRel)
	if b.scene == nil {
		return
	}
	r := FrameRange{Min: minRel, Max: maxRel}.Shift(b.frameShift())
	if !r.Contains(b.absFrame) {
		return
	}
	var walk func(n *Box)
	walk = func(n *Box) {
		n.cache.retarget(n.CombinedTransformAt(n.absFrame))
		for _, c := range n.children {
			c.requestUpdate()
			walk(c)
		}
	}
	walk(b)
}

// compositeChanged handles changes that alter only how the box is drawn onto
// its parent, such as blend mode or z-order. Ancestors render again only when
// the box is drawn at the current frame; exported frames are dropped over the
// whole window.
func (b *Box) compositeChanged() {
	if b.drawnOnParent {
		b.scheduleAncestors()
	}
	if b.scene != nil {
		b.scene.framesInvalidated(b.windowAbs())
	}
}

// ScheduleUpdate requests a render of the box at its current frame and of
// every ancestor whose composite includes it. While a job is in flight the
// request only sets the redo flag. It never blocks.
func (b *Box) ScheduleUpdate() {
	b.requestUpdate()
	b.scheduleAncestors()
}

func (b *Box) scheduleAncestors() {
	for p := b.parent; p != nil; p = p.parent {
		p.requestUpdate()
	}
}

// requestUpdate creates the box's job, or sets redo when the current job has
// already taken its snapshot. A job that has not resolved yet will see the
// change on its own.
func (b *Box) requestUpdate() {
	sc := b.scene
	if sc == nil || b.disposed {
		return
	}
	if sc.blocked > 0 {
		if !b.flushPending {
			b.flushPending = true
			sc.deferred = append(sc.deferred, b)
		}
		return
	}
	if sc.resolving || !b.shouldUpdate() {
		return
	}
	if j := b.current; j != nil {
		if j.Resolved() && !b.redo {
			b.redo = true
			sc.stats.redos.Add(1)
		}
		return
	}
	j := newRenderJob(sc, b.handle, true)
	b.current = j
	b.expired++
	sc.outstanding++
	sc.sched.enqueue(b, j)
}

// onJobDelivered receives the result of the box's current job.
func (b *Box) onJobDelivered(j *RenderJob) {
	if b.current != j {
		return
	}
	sc := b.scene
	b.current = nil
	b.expired--
	sc.outstanding--
	b.cache.store(j)
	j.release()

	if b.redo {
		b.redo = false
		Logger().Debug("redo", "box", b.Name, "frame", b.absFrame)
		b.ScheduleUpdate()
		return
	}

	b.relBounds = j.snap.RelBounds
	if b.pivotAuto && !b.pivotEditing {
		b.adjustPivot()
	}
	if b.parent != nil && b.drawnOnParent {
		b.parent.requestUpdate()
	}
}

// adjustPivot moves the pivot to the center of the delivered bounds without
// moving the box at its current frame.
func (b *Box) adjustPivot() {
	if b.relBounds.Empty() {
		return
	}
	c := b.relBounds.Center()
	t := &b.Transform
	if t.PivotX.At(b.relFrame) == c.X && t.PivotY.At(b.relFrame) == c.Y {
		return
	}
	t.setPivotKeepingPlacement(b.relFrame, c.X, c.Y)
	if t.animated() {
		b.invalidateRel(MinFrame, MaxFrame)
	}
}

// --- Frame changes ---

// setFrame moves the box and its subtree to absFrame.
func (b *Box) setFrame(absFrame int) {
	b.updateFrame(absFrame, false)
}

// updateFrame recomputes the relative frame and visibility. Crossing into the
// window schedules the box; crossing out of it schedules only the ancestors,
// since the box's own pixels are still valid. parentMoved reports that an
// ancestor's transform differs between the old and new frame.
func (b *Box) updateFrame(absFrame int, parentMoved bool) {
	lastRel := b.relFrame
	b.absFrame = absFrame
	b.relFrame = absFrame - b.frameShift()
	moved := parentMoved || b.Transform.differs(lastRel, b.relFrame)

	was := b.drawnOnParent
	now := b.shouldUpdate()
	b.drawnOnParent = now
	switch {
	case now != was:
		if now {
			b.ScheduleUpdate()
		} else {
			b.scheduleAncestors()
		}
	case now && (moved || b.paramsDiffer(lastRel, b.relFrame)):
		b.ScheduleUpdate()
	}

	for _, c := range b.children {
		c.updateFrame(absFrame, moved)
	}
}

// paramsDiffer reports whether opacity, content or effect Params differ
// between two relative frames. Customizers may read the frame, so a box with
// customizers differs between any two frames.
func (b *Box) paramsDiffer(a, c int) bool {
	if a == c {
		return false
	}
	if len(b.customizers) > 0 || b.Opacity.Differs(a, c) {
		return true
	}
	src := b.source()
	if animatorDiffers(src.content, a, c) {
		return true
	}
	for _, e := range src.effects {
		if animatorDiffers(e, a, c) {
			return true
		}
	}
	return false
}

func animatorDiffers(v any, a, c int) bool {
	an, ok := v.(Animator)
	if !ok {
		return false
	}
	for _, p := range an.Params() {
		if p.Differs(a, c) {
			return true
		}
	}
	return false
}

// subtreeAnimated reports whether anything in the subtree changes with the
// frame. Boxes with customizers count as animated.
func (b *Box) subtreeAnimated() bool {
	if b.Transform.animated() || b.Opacity.Animated() || len(b.customizers) > 0 {
		return true
	}
	src := b.source()
	if animatorAnimated(src.content) {
		return true
	}
	for _, e := range src.effects {
		if animatorAnimated(e) {
			return true
		}
	}
	for _, c := range b.children {
		if c.subtreeAnimated() {
			return true
		}
	}
	return false
}

func animatorAnimated(v any) bool {
	an, ok := v.(Animator)
	if !ok {
		return false
	}
	for _, p := range an.Params() {
		if p.Animated() {
			return true
		}
	}
	return false
}

// refreshVisibility reacts to a change of the visibility flag.
func (b *Box) refreshVisibility() {
	if b.scene == nil {
		return
	}
	now := b.shouldUpdate()
	if now == b.drawnOnParent {
		return
	}
	b.drawnOnParent = now
	if now {
		b.ScheduleUpdate()
	} else {
		b.scheduleAncestors()
	}
}

// --- Duration window ---

// DurationWindow returns the box's window, or nil when the box is always
// visible.
func (b *Box) DurationWindow() *DurationWindow { return b.window }

// SetDurationWindow limits the box to the relative frames [lo, hi]. Only the
// frames whose visibility changed are invalidated.
func (b *Box) SetDurationWindow(lo, hi int) error {
	var changed []FrameRange
	if b.window == nil {
		w, err := NewDurationWindow(lo, hi)
		if err != nil {
			return err
		}
		changed = symmetricDifference(FrameRange{Min: MinFrame, Max: MaxFrame}, w.Range())
		b.window = w
	} else {
		var err error
		changed, err = b.window.SetRange(lo, hi)
		if err != nil {
			return err
		}
	}
	shift := b.frameShift()
	for i := range changed {
		changed[i] = changed[i].Shift(shift)
	}
	b.windowChanged(changed)
	return nil
}

// ClearDurationWindow makes the box visible at every frame. A frame shift,
// if any, is kept.
func (b *Box) ClearDurationWindow() {
	if b.window == nil {
		return
	}
	_ = b.SetDurationWindow(MinFrame, MaxFrame)
}

// ShiftDurationWindow moves the box's window and animation by delta frames
// on the parent timeline. For a static subtree only the frames that entered
// or left the window are invalidated; an animated subtree is invalidated over
// the old and new windows.
func (b *Box) ShiftDurationWindow(delta int) {
	if delta == 0 {
		return
	}
	if b.window == nil {
		b.window = &DurationWindow{min: MinFrame, max: MaxFrame}
	}
	parentShift := 0
	if b.parent != nil {
		parentShift = b.parent.frameShift()
	}
	before := b.windowAbs()
	animated := b.subtreeAnimated()
	changed := b.window.ShiftBy(delta)
	if animated {
		after := b.windowAbs()
		changed = []FrameRange{{Min: min(before.Min, after.Min), Max: max(before.Max, after.Max)}}
	} else {
		for i := range changed {
			changed[i] = changed[i].Shift(parentShift)
		}
	}
	b.windowChanged(changed)
}

func (b *Box) windowChanged(changed []FrameRange) {
	if b.scene != nil {
		b.setFrame(b.scene.frame)
	}
	for _, r := range changed {
		b.Invalidate(r.Min, r.Max)
	}
}

// --- Resolve support ---

func (b *Box) ready() bool {
	src := b.source()
	if r, ok := src.content.(Readier); ok && !r.Ready() {
		return false
	}
	for _, e := range src.effects {
		if r, ok := e.(Readier); ok && !r.Ready() {
			return false
		}
	}
	return true
}

// fillSnapshot writes the box's own state at absFrame into s. Layers are
// added by the caller.
func (b *Box) fillSnapshot(s *Snapshot, absFrame int) {
	sc := b.scene
	rel := absFrame - b.frameShift()
	*s = Snapshot{
		AbsFrame:        absFrame,
		RelFrame:        rel,
		Transform:       b.CombinedTransformAt(absFrame),
		Opacity:         clamp01(b.Opacity.At(rel)),
		Resolution:      sc.resolution,
		EffectsMargin:   defaultEffectsMargin,
		Blend:           b.blend,
		ClipToMaxBounds: sc.clip,
		MaxBounds:       sc.maxBounds,
	}
	src := b.source()
	if src.content != nil {
		if d := src.content.Resolve(rel); d != nil {
			s.Content = d
			s.RelBounds = d.Bounds()
		}
	}
	if !sc.effectsVisible || len(src.effects) == 0 {
		return
	}
	margin := 0.0
	for _, e := range src.effects {
		margin += e.Margin(rel)
	}
	s.EffectsMargin = margin*s.Resolution + defaultEffectsMargin
	if s.Opacity <= minOpacity {
		return
	}
	s.Effects = make([]EffectPass, 0, len(src.effects))
	for _, e := range src.effects {
		if p := e.Resolve(rel, s.Resolution); p != nil {
			s.Effects = append(s.Effects, p)
		}
	}
}

// liveLayers returns the cached outputs of the children drawn at the current
// frame in composite order, each retained for the caller.
func (b *Box) liveLayers() []Layer {
	var layers []Layer
	for _, c := range b.compositeOrder() {
		j := c.cache.job
		if !c.drawnOnParent || j == nil || j.out.Bitmap == nil {
			continue
		}
		op := clamp01(c.Opacity.At(c.relFrame))
		if op < minOpacity {
			continue
		}
		j.retain()
		layers = append(layers, Layer{Job: j, Opacity: op, Blend: c.blend})
	}
	return layers
}
