package cel

import (
	"image"
	"sync/atomic"
)

var boxIDCounter atomic.Uint32

func nextBoxID() uint32 {
	return boxIDCounter.Add(1)
}

// Box is a node of the animated scene graph. It owns an animated transform
// and opacity, optional content, an ordered effect stack and an optional
// duration window, and keeps its last rendered output in a RenderCache.
//
// A box renders asynchronously: changes invalidate frame ranges, the box
// schedules a RenderJob when its current frame is affected, and the job's
// result replaces the cached output when delivered. At most one job per box
// is in flight; requests arriving meanwhile set a redo flag.
//
// All methods must be called on the goroutine that drives the scene.
// Boxes must not be copied.
type Box struct {
	Name string
	id   uint32

	parent         *Box
	children       []*Box
	sortedChildren []*Box
	childrenSorted bool

	scene  *Scene
	handle Handle

	// Transform is sampled at the box's relative frame. Changing any of its
	// Params invalidates the affected frames.
	Transform Transform
	// Opacity in [0, 1].
	Opacity Param

	content     Content
	effects     []Effect
	customizers []Customizer
	blend       BlendMode
	window      *DurationWindow
	visible     bool
	locked      bool
	zIndex      int

	template *Box
	links    []*Box

	pivotAuto    bool
	pivotEditing bool

	absFrame, relFrame int
	drawnOnParent      bool

	current      *RenderJob
	pending      []*RenderJob
	queued       bool
	redo         bool
	expired      int
	flushPending bool

	relBounds Rect
	cache     RenderCache
	disposed  bool
}

// NewBox creates a box drawing content, which may be nil.
func NewBox(name string, content Content) *Box {
	b := &Box{
		Name:           name,
		id:             nextBoxID(),
		Transform:      newTransform(),
		Opacity:        NewParam(1),
		visible:        true,
		childrenSorted: true,
	}
	for _, p := range b.Transform.params() {
		p.bind(b.transformChanged)
	}
	b.Opacity.bind(b.invalidateRel)
	b.cache.paint = Identity
	b.bindContent(content)
	b.content = content
	return b
}

// NewGroup creates a box without content whose output is the composite of
// its children.
func NewGroup(name string) *Box {
	return NewBox(name, nil)
}

// NewLink creates a box that draws template's content and effects with its
// own transform, opacity and customizers. Changes to the template's content
// or effects invalidate the link as well.
func NewLink(name string, template *Box) *Box {
	if template == nil {
		panic("cel: cannot link to nil box")
	}
	b := NewBox(name, nil)
	b.template = template
	template.links = append(template.links, b)
	return b
}

// ID returns the box's process-unique identifier, or 0 once disposed.
func (b *Box) ID() uint32 { return b.id }

// Handle returns a weak reference to the box, valid while it is attached to
// a scene. The zero Handle is returned for detached boxes.
func (b *Box) Handle() Handle { return b.handle }

// Scene returns the scene the box is attached to, or nil.
func (b *Box) Scene() *Scene { return b.scene }

// Parent returns the parent box, or nil.
func (b *Box) Parent() *Box { return b.parent }

// Template returns the box a link box draws, or nil.
func (b *Box) Template() *Box { return b.template }

// --- Tree manipulation ---

// AddChild appends child to this box's children.
// If child already has a parent, it is removed from that parent first.
// Panics if child is nil or child is an ancestor of this box (cycle).
func (b *Box) AddChild(child *Box) {
	b.AddChildAt(child, -1)
}

// AddChildAt inserts child at index, or appends it when index is negative.
// Same reparenting and cycle-check behavior as AddChild.
func (b *Box) AddChildAt(child *Box, index int) {
	if child == nil {
		panic("cel: cannot add nil child")
	}
	if globalDebug {
		debugCheckDisposed(b, "AddChild (parent)")
		debugCheckDisposed(child, "AddChild (child)")
	}
	if isAncestor(child, b) {
		panic("cel: adding child would create a cycle")
	}
	if child.parent != nil {
		child.parent.RemoveChild(child)
	}
	if index < 0 || index > len(b.children) {
		index = len(b.children)
	}
	child.parent = b
	b.children = append(b.children, nil)
	copy(b.children[index+1:], b.children[index:])
	b.children[index] = child
	b.childrenSorted = false
	if b.scene != nil {
		child.attach(b.scene)
		child.setFrame(b.scene.frame)
		b.scene.framesInvalidated(child.windowAbs())
	}
	if globalDebug {
		debugCheckTreeDepth(child)
		debugCheckChildCount(b)
	}
}

// RemoveChild detaches child from this box. The child's pending and
// in-flight jobs are abandoned; the box itself stays usable and renders
// again when re-attached.
// Panics if child's parent is not this box.
func (b *Box) RemoveChild(child *Box) {
	if child.parent != b {
		panic("cel: child's parent is not this box")
	}
	child.compositeChanged()
	b.removeChildByPtr(child)
	child.parent = nil
	b.childrenSorted = false
	child.detach()
}

// RemoveFromParent detaches this box from its parent.
// No-op if this box has no parent.
func (b *Box) RemoveFromParent() {
	if b.parent == nil {
		return
	}
	b.parent.RemoveChild(b)
}

// Children returns the child list. The returned slice must not be mutated.
func (b *Box) Children() []*Box {
	return b.children
}

// NumChildren returns the number of children.
func (b *Box) NumChildren() int {
	return len(b.children)
}

// removeChildByPtr removes child from b.children without clearing child.parent.
func (b *Box) removeChildByPtr(child *Box) {
	for i, c := range b.children {
		if c == child {
			copy(b.children[i:], b.children[i+1:])
			b.children[len(b.children)-1] = nil
			b.children = b.children[:len(b.children)-1]
			return
		}
	}
}

// isAncestor reports whether candidate is node or one of its ancestors.
func isAncestor(candidate, node *Box) bool {
	for p := node; p != nil; p = p.parent {
		if p == candidate {
			return true
		}
	}
	return false
}

// compositeOrder returns the children sorted by z-index, stable in tree order.
func (b *Box) compositeOrder() []*Box {
	if b.childrenSorted && len(b.sortedChildren) == len(b.children) {
		return b.sortedChildren
	}
	nc := len(b.children)
	if cap(b.sortedChildren) < nc {
		b.sortedChildren = make([]*Box, nc)
	}
	b.sortedChildren = b.sortedChildren[:nc]
	copy(b.sortedChildren, b.children)
	for i := 1; i < nc; i++ {
		key := b.sortedChildren[i]
		j := i - 1
		for j >= 0 && b.sortedChildren[j].zIndex > key.zIndex {
			b.sortedChildren[j+1] = b.sortedChildren[j]
			j--
		}
		b.sortedChildren[j+1] = key
	}
	b.childrenSorted = true
	return b.sortedChildren
}

// attach registers b and its subtree with sc.
func (b *Box) attach(sc *Scene) {
	b.scene = sc
	b.handle = sc.reg.add(b)
	for _, c := range b.children {
		c.attach(sc)
	}
}

// detach unregisters b and its subtree. Jobs still executing keep running
// but can no longer find the box when they finish.
func (b *Box) detach() {
	sc := b.scene
	if sc == nil {
		return
	}
	for _, c := range b.children {
		c.detach()
	}
	sc.sched.forget(b)
	if b.current != nil {
		b.current.release()
		b.current = nil
	}
	sc.outstanding -= b.expired
	b.expired = 0
	b.redo = false
	b.cache.clear()
	sc.reg.remove(b.handle)
	b.handle = Handle{}
	b.scene = nil
	b.drawnOnParent = false
}

// Dispose removes this box from its parent, marks it disposed and disposes
// all descendants. Jobs in flight for the box are dropped when they finish.
func (b *Box) Dispose() {
	if b.disposed {
		return
	}
	if b.parent != nil {
		b.parent.RemoveChild(b)
	} else {
		b.detach()
	}
	b.dispose()
}

func (b *Box) dispose() {
	b.disposed = true
	b.id = 0
	for _, child := range b.children {
		child.parent = nil
		child.dispose()
	}
	if b.template != nil {
		t := b.template
		for i, l := range t.links {
			if l == b {
				t.links = append(t.links[:i], t.links[i+1:]...)
				break
			}
		}
		b.template = nil
	}
	for _, l := range b.links {
		l.template = nil
		l.InvalidateRel(MinFrame, MaxFrame)
	}
	b.links = nil
	b.bindContent(nil)
	b.children = nil
	b.sortedChildren = nil
	b.parent = nil
	b.content = nil
	b.effects = nil
	b.customizers = nil
	b.window = nil
}

// IsDisposed reports whether Dispose has been called.
func (b *Box) IsDisposed() bool {
	return b.disposed
}

// --- Properties ---

// Content returns the box's own content, or nil.
func (b *Box) Content() Content { return b.content }

// SetContent replaces the box's content.
func (b *Box) SetContent(c Content) {
	if b.content != nil {
		b.unbindContent(b.content)
	}
	b.bindContent(c)
	b.content = c
	b.InvalidateRel(MinFrame, MaxFrame)
}

func (b *Box) bindContent(c Content) {
	if a, ok := c.(Animator); ok {
		for _, p := range a.Params() {
			p.bind(b.InvalidateRel)
		}
	}
	if n, ok := c.(ownerBinder); ok {
		n.bindOwner(b.InvalidateRel)
	}
}

func (b *Box) unbindContent(c Content) {
	if a, ok := c.(Animator); ok {
		for _, p := range a.Params() {
			p.bind(nil)
		}
	}
	if n, ok := c.(ownerBinder); ok {
		n.bindOwner(nil)
	}
}

// Effects returns the effect stack in application order. The returned slice
// must not be mutated.
func (b *Box) Effects() []Effect { return b.effects }

// AddEffect appends e to the effect stack.
func (b *Box) AddEffect(e Effect) {
	b.InsertEffect(len(b.effects), e)
}

// InsertEffect inserts e at index in the effect stack.
func (b *Box) InsertEffect(index int, e Effect) {
	if e == nil {
		panic("cel: cannot add nil effect")
	}
	if index < 0 || index > len(b.effects) {
		panic("cel: effect index out of range")
	}
	if a, ok := e.(Animator); ok {
		for _, p := range a.Params() {
			p.bind(b.InvalidateRel)
		}
	}
	b.effects = append(b.effects, nil)
	copy(b.effects[index+1:], b.effects[index:])
	b.effects[index] = e
	b.InvalidateRel(MinFrame, MaxFrame)
}

// RemoveEffect removes e from the effect stack. It reports whether e was found.
func (b *Box) RemoveEffect(e Effect) bool {
	for i, x := range b.effects {
		if x == e {
			if a, ok := e.(Animator); ok {
				for _, p := range a.Params() {
					p.bind(nil)
				}
			}
			b.effects = append(b.effects[:i], b.effects[i+1:]...)
			b.InvalidateRel(MinFrame, MaxFrame)
			return true
		}
	}
	return false
}

// AddCustomizer registers fn to edit every snapshot this box resolves.
// Customizers run in registration order right after the base resolve. They
// may depend on Snapshot.RelFrame, so the box renders again on every frame
// change and window shifts invalidate its whole span.
func (b *Box) AddCustomizer(fn Customizer) {
	if fn == nil {
		return
	}
	b.customizers = append(b.customizers, fn)
	b.InvalidateRel(MinFrame, MaxFrame)
}

// BlendMode returns how the box composites onto its parent.
func (b *Box) BlendMode() BlendMode { return b.blend }

// SetBlendMode changes how the box composites onto its parent. Only the
// parent's composite is recomputed.
func (b *Box) SetBlendMode(m BlendMode) {
	if b.blend == m {
		return
	}
	b.blend = m
	b.compositeChanged()
}

// Visible reports the visibility flag.
func (b *Box) Visible() bool { return b.visible }

// SetVisible shows or hides the box. Hiding a box recomputes its parent's
// composite but not the box's own pixels.
func (b *Box) SetVisible(v bool) {
	if b.visible == v {
		return
	}
	b.visible = v
	b.refreshVisibility()
	if b.scene != nil {
		b.scene.framesInvalidated(b.windowAbs())
	}
}

// Locked reports the locked flag.
func (b *Box) Locked() bool { return b.locked }

// SetLocked sets the locked flag. Locking has no effect on rendering; it is
// kept for editors that refuse to select locked boxes.
func (b *Box) SetLocked(v bool) { b.locked = v }

// ZIndex returns the box's order among its siblings.
func (b *Box) ZIndex() int { return b.zIndex }

// SetZIndex changes the box's order among its siblings. Higher values
// composite on top; ties keep tree order.
func (b *Box) SetZIndex(z int) {
	if b.zIndex == z {
		return
	}
	b.zIndex = z
	if b.parent != nil {
		b.parent.childrenSorted = false
	}
	b.compositeChanged()
}

// SetPivotAutoAdjust makes the box move its pivot to the center of its
// bounds after every final delivery, keeping its placement.
func (b *Box) SetPivotAutoAdjust(v bool) { b.pivotAuto = v }

// BeginPivotEdit suspends pivot auto-adjustment while the pivot is edited.
func (b *Box) BeginPivotEdit() { b.pivotEditing = true }

// EndPivotEdit resumes pivot auto-adjustment.
func (b *Box) EndPivotEdit() { b.pivotEditing = false }

// RelBounds returns the bounds of the last delivered output in box-local
// coordinates.
func (b *Box) RelBounds() Rect { return b.relBounds }

// AbsFrame returns the scene frame the box is at.
func (b *Box) AbsFrame() int { return b.absFrame }

// RelFrame returns the box's own animation frame.
func (b *Box) RelFrame() int { return b.relFrame }

// Outstanding returns the number of jobs created for this box and not yet
// delivered.
func (b *Box) Outstanding() int { return b.expired }

// CurrentJob returns the job in the box's in-flight slot, or nil.
func (b *Box) CurrentJob() *RenderJob { return b.current }

// CachedOutput returns the last delivered output and the transform mapping
// its bitmap pixels to scene coordinates. It never blocks and never renders.
func (b *Box) CachedOutput() (Output, Affine) {
	return b.cache.Output()
}

// DrawCached composites the cached output onto dst. view maps scene
// coordinates to dst pixels.
func (b *Box) DrawCached(dst *image.RGBA, view Affine) {
	b.cache.Draw(dst, view)
}

// CombinedTransformAt returns the box-to-scene transform at absFrame.
func (b *Box) CombinedTransformAt(absFrame int) Affine {
	m := Identity
	for n := b; n != nil; n = n.parent {
		m = n.Transform.At(absFrame - n.frameShift()).Mul(m)
	}
	return m
}
