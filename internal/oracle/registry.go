package oracle

import (
	"sort"
	"sync"

	"github.com/danmuck/oraclectl/internal/protocol/felt"
)

// Handler executes one selector against decoded calldata.
type Handler func(calldata []felt.Felt) ([]felt.Felt, error)

// Registry stores selector handlers by name. Entries are registered at
// process start; the engine only reads from it afterwards.
type Registry struct {
	repo map[string]Handler
	mu   sync.RWMutex
}

// NewRegistry initializes an empty selector registry.
func NewRegistry() *Registry {
	return &Registry{
		repo: make(map[string]Handler),
	}
}

// Register adds a handler under a selector name.
func (r *Registry) Register(selector string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.repo[selector] = h
}

// Get returns the handler for a selector.
func (r *Registry) Get(selector string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.repo[selector]
	return h, ok
}

// Selectors returns the registered selector names, sorted.
func (r *Registry) Selectors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.repo))
	for name := range r.repo {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
