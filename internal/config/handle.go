package config

import "sync"

// Handle is the live configuration shared by every running component.
// Consumers call Load on each operation instead of caching the result, so a
// reload takes effect on their next cycle. Loaded configs must not be mutated.
type Handle struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewHandle wraps an initial, validated config.
func NewHandle(cfg *Config) *Handle {
	return &Handle{cfg: cfg}
}

// Load returns the current config snapshot.
func (h *Handle) Load() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Store replaces the current config.
func (h *Handle) Store(cfg *Config) {
	h.mu.Lock()
	h.cfg = cfg
	h.mu.Unlock()
}
