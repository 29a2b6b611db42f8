package suggest

import "sync"

// Guard lets only the most recently begun resolution apply its result. A resolution
// that finishes after a newer one began is dropped.
type Guard struct {
	mu     sync.Mutex
	latest uint64
}

// Begin starts a resolution and returns its token.
func (g *Guard) Begin() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.latest++
	return g.latest
}

// Invalidate makes every outstanding token stale.
func (g *Guard) Invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.latest++
}

// Apply runs fn if token is still the latest and reports whether it ran. The guard is
// held while fn runs, so fn must not call back into the Guard.
func (g *Guard) Apply(token uint64, fn func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if token != g.latest {
		return false
	}
	fn()
	return true
}
