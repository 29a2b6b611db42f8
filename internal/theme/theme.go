// Package theme holds the light/dark display preference and persists it in a Store.
package theme

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Key is the store key for the preference.
const Key = "theme"

// Stored values.
const (
	Dark  = "dark"
	Light = "light"
)

// Preference is the session's theme. It defaults to dark. A failed write is logged and
// does not revert the in-memory value.
type Preference struct {
	mu     sync.Mutex
	dark   bool
	store  Store
	logger *zap.Logger
}

// Load reads the stored preference. Anything other than "light", including a read
// error, yields dark.
func Load(ctx context.Context, store Store, logger *zap.Logger) *Preference {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Preference{dark: true, store: store, logger: logger}
	if store == nil {
		return p
	}
	v, ok, err := store.Get(ctx, Key)
	if err != nil {
		logger.Warn("theme preference unreadable, using dark", zap.Error(err))
		return p
	}
	if ok && v == Light {
		p.dark = false
	}
	return p
}

// IsDark reports whether the dark theme is active.
func (p *Preference) IsDark() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dark
}

// Name returns "dark" or "light".
func (p *Preference) Name() string {
	if p.IsDark() {
		return Dark
	}
	return Light
}

// Toggle flips the theme, persists it and returns the new name.
func (p *Preference) Toggle(ctx context.Context) string {
	p.mu.Lock()
	p.dark = !p.dark
	name := Light
	if p.dark {
		name = Dark
	}
	p.mu.Unlock()

	if p.store != nil {
		if err := p.store.Set(ctx, Key, name); err != nil {
			p.logger.Warn("theme preference not saved", zap.String("theme", name), zap.Error(err))
		}
	}
	return name
}
