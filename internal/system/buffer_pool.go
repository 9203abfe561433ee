package system

import (
	"image"
	"sync"
	"sync/atomic"
)

// ImagePool переиспользует кадры *image.RGBA одного размера, чтобы воркеры
// рендера не аллоцировали мегабайты на каждый кадр.
type ImagePool struct {
	mu     sync.RWMutex
	pools  map[image.Point]*sync.Pool
	misses atomic.Int64
}

func NewImagePool() *ImagePool {
	return &ImagePool{pools: make(map[image.Point]*sync.Pool)}
}

var frames = NewImagePool()

// GetImage returns a w×h canvas from the shared pool. Contents are undefined.
func GetImage(w, h int) *image.RGBA {
	return frames.Get(w, h)
}

// PutImage hands a canvas back to the shared pool.
func PutImage(img *image.RGBA) {
	frames.Put(img)
}

func (p *ImagePool) pool(size image.Point) *sync.Pool {
	p.mu.RLock()
	pool, ok := p.pools[size]
	p.mu.RUnlock()
	if ok {
		return pool
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if pool, ok = p.pools[size]; ok {
		return pool
	}
	pool = &sync.Pool{
		New: func() any {
			p.misses.Add(1)
			return image.NewRGBA(image.Rectangle{Max: size})
		},
	}
	p.pools[size] = pool
	return pool
}

func (p *ImagePool) Get(w, h int) *image.RGBA {
	return p.pool(image.Pt(w, h)).Get().(*image.RGBA)
}

// Put accepts only canvases anchored at the origin with a packed stride;
// anything else cannot be handed out again as a fresh w×h frame.
func (p *ImagePool) Put(img *image.RGBA) {
	if img == nil || img.Rect.Min != (image.Point{}) || img.Stride != img.Rect.Dx()*4 {
		return
	}
	p.pool(img.Rect.Size()).Put(img)
}

// Allocated counts canvases the pool had to create.
func (p *ImagePool) Allocated() int64 {
	return p.misses.Load()
}
