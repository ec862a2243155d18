package cel

import (
	"container/list"
	"image"
	"sync"
	"sync/atomic"
)

const (
	bytesPerMB    = 1024 * 1024
	bytesPerPixel = 4
)

// FrameCache is an LRU cache of composited scene frames produced by
// RenderFrame, keyed by absolute frame. Invalidating a frame range drops the
// frames inside it. It is safe for concurrent use.
type FrameCache struct {
	mu      sync.RWMutex
	entries map[int]*frameEntry
	lru     *list.List // front = most recent
	size    int64
	maxSize int64

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

type frameEntry struct {
	frame   int
	img     *image.RGBA
	size    int64
	element *list.Element
}

// FrameCacheStats reports the state of a FrameCache.
type FrameCacheStats struct {
	Size      int64
	MaxSize   int64
	Entries   int
	Hits      uint64
	Misses    uint64
	HitRate   float64
	Evictions uint64
}

// NewFrameCache returns a cache holding at most maxSizeMB megabytes of
// pixels. A budget of 0 stores nothing.
func NewFrameCache(maxSizeMB int) *FrameCache {
	return &FrameCache{
		entries: make(map[int]*frameEntry),
		lru:     list.New(),
		maxSize: int64(max(maxSizeMB, 0)) * bytesPerMB,
	}
}

// Get returns the cached image for frame. The image must not be modified.
func (c *FrameCache) Get(frame int) (*image.RGBA, bool) {
	c.mu.Lock()
	e, ok := c.entries[frame]
	if ok {
		c.lru.MoveToFront(e.element)
	}
	c.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return e.img, true
}

// Put stores img for frame, evicting least recently used frames to stay
// within budget. Images larger than the whole budget are not stored.
func (c *FrameCache) Put(frame int, img *image.RGBA) {
	if img == nil {
		return
	}
	sz := int64(img.Rect.Dx()) * int64(img.Rect.Dy()) * bytesPerPixel
	if sz <= 0 || sz > c.maxSize {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[frame]; ok {
		c.size -= old.size
		c.lru.Remove(old.element)
		delete(c.entries, frame)
	}
	c.evictUntilSize(c.maxSize - sz)

	e := &frameEntry{frame: frame, img: img, size: sz}
	e.element = c.lru.PushFront(e)
	c.entries[frame] = e
	c.size += sz
}

// InvalidateRange drops every cached frame inside r.
func (c *FrameCache) InvalidateRange(r FrameRange) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for frame, e := range c.entries {
		if !r.Contains(frame) {
			continue
		}
		c.lru.Remove(e.element)
		c.size -= e.size
		delete(c.entries, frame)
		c.evictions.Add(1)
	}
}

// InvalidateAll empties the cache.
func (c *FrameCache) InvalidateAll() {
	c.InvalidateRange(FrameRange{Min: MinFrame, Max: MaxFrame})
}

// evictUntilSize must be called with c.mu held.
func (c *FrameCache) evictUntilSize(target int64) {
	for c.size > target && c.lru.Len() > 0 {
		elem := c.lru.Back()
		e := elem.Value.(*frameEntry)
		c.lru.Remove(elem)
		c.size -= e.size
		delete(c.entries, e.frame)
		c.evictions.Add(1)
	}
}

// Stats returns the current statistics.
func (c *FrameCache) Stats() FrameCacheStats {
	c.mu.RLock()
	size, maxSize, n := c.size, c.maxSize, len(c.entries)
	c.mu.RUnlock()

	hits, misses := c.hits.Load(), c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return FrameCacheStats{
		Size:      size,
		MaxSize:   maxSize,
		Entries:   n,
		Hits:      hits,
		Misses:    misses,
		HitRate:   rate,
		Evictions: c.evictions.Load(),
	}
}
