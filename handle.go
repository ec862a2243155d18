package cel

// Handle is a weak reference to a Box. It stays valid to hold after the box
// is removed or disposed; lookups then return nil.
type Handle struct {
	index uint32
	gen   uint32
}

// IsZero reports whether h was never assigned.
func (h Handle) IsZero() bool {
	return h.gen == 0
}

type registrySlot struct {
	box *Box
	gen uint32
}

// registry is an arena of boxes addressed by generation-checked handles.
// Only the controlling goroutine touches it.
type registry struct {
	slots []registrySlot
	free  []uint32
	live  int
}

func (r *registry) add(b *Box) Handle {
	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		idx = uint32(len(r.slots))
		r.slots = append(r.slots, registrySlot{})
	}
	s := &r.slots[idx]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.box = b
	r.live++
	return Handle{index: idx, gen: s.gen}
}

func (r *registry) remove(h Handle) {
	if r.get(h) == nil {
		return
	}
	s := &r.slots[h.index]
	s.box = nil
	s.gen++
	r.free = append(r.free, h.index)
	r.live--
}

func (r *registry) get(h Handle) *Box {
	if h.gen == 0 || int(h.index) >= len(r.slots) {
		return nil
	}
	s := &r.slots[h.index]
	if s.gen != h.gen {
		return nil
	}
	return s.box
}

func (r *registry) len() int {
	return r.live
}
