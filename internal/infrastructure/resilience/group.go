package resilience

import "sync"

// Group lazily creates one breaker per key (typically a remote host) so a
// failing upstream does not trip requests bound elsewhere.
type Group struct {
	prefix   string
	settings Settings

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewGroup creates a breaker group; breaker names are "<prefix>:<key>"
func NewGroup(prefix string, settings Settings) *Group {
	return &Group{
		prefix:   prefix,
		settings: settings,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for key, creating it on first use
func (g *Group) Get(key string) *Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, ok := g.breakers[key]
	if !ok {
		b = New(g.prefix+":"+key, g.settings)
		g.breakers[key] = b
	}
	return b
}
