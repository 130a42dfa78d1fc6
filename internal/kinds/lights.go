package kinds

import "errors"

// ErrLightPoolExhausted is returned when every light source slot is taken.
var ErrLightPoolExhausted = errors.New("kinds: light source pool exhausted")

// LightSource is one dynamic light placed in the world.
type LightSource struct {
	Intensity int32
	Color     RGB
}

// LightPool hands out light source slots. Building records own at most one
// slot each and free it on release.
type LightPool struct {
	limit  int
	next   uint32
	active map[uint32]LightSource
}

// NewLightPool returns a pool holding at most limit lights; zero means no limit.
func NewLightPool(limit int) *LightPool {
	return &LightPool{limit: limit, active: make(map[uint32]LightSource)}
}

// Acquire allocates a light and returns its slot id. Zero is never returned.
func (p *LightPool) Acquire(src LightSource) (uint32, error) {
	if p.limit > 0 && len(p.active) >= p.limit {
		return 0, ErrLightPoolExhausted
	}
	p.next++
	if p.next == 0 {
		p.next = 1
	}
	p.active[p.next] = src
	return p.next, nil
}

// Update changes an active light. Unknown ids are ignored.
func (p *LightPool) Update(id uint32, src LightSource) {
	if _, ok := p.active[id]; ok {
		p.active[id] = src
	}
}

// Get returns the light stored under id.
func (p *LightPool) Get(id uint32) (LightSource, bool) {
	src, ok := p.active[id]
	return src, ok
}

// Free releases id. Freeing zero or an unknown id is a no-op.
func (p *LightPool) Free(id uint32) {
	delete(p.active, id)
}

// Active returns the number of allocated lights.
func (p *LightPool) Active() int {
	return len(p.active)
}
