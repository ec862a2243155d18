package cel

import (
	"image"
	"sync"
)

// bitmapPool recycles job output bitmaps keyed by exact size. Workers acquire
// and the controlling goroutine releases, so each size bucket is a sync.Pool.
type bitmapPool struct {
	mu      sync.RWMutex
	buckets map[uint64]*sync.Pool
}

var bitmaps = &bitmapPool{buckets: make(map[uint64]*sync.Pool)}

// poolKey packs width and height into a single uint64.
func poolKey(w, h int) uint64 {
	return uint64(w)<<32 | uint64(h)
}

func (p *bitmapPool) bucket(w, h int) *sync.Pool {
	key := poolKey(w, h)
	p.mu.RLock()
	b, ok := p.buckets[key]
	p.mu.RUnlock()
	if ok {
		return b
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if b, ok = p.buckets[key]; ok {
		return b
	}
	b = &sync.Pool{New: func() any { return image.NewRGBA(image.Rect(0, 0, w, h)) }}
	p.buckets[key] = b
	return b
}

// Acquire returns a cleared w x h bitmap with its origin at (0, 0).
func (p *bitmapPool) Acquire(w, h int) *image.RGBA {
	img := p.bucket(w, h).Get().(*image.RGBA)
	clear(img.Pix)
	return img
}

// Release returns img to the pool. The caller must not use img afterwards.
func (p *bitmapPool) Release(img *image.RGBA) {
	if img == nil {
		return
	}
	p.bucket(img.Rect.Dx(), img.Rect.Dy()).Put(img)
}
