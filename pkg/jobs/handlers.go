package jobs

import (
	"fmt"
	"sort"
)

// HandlerRegistry maps handler references from the catalogue to runnable handlers.
// It is filled once at startup, before the scheduler starts.
type HandlerRegistry struct {
	handlers map[string]Handler
}

// NewHandlerRegistry creates an empty handler table
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]Handler)}
}

// Register binds ref to h
func (r *HandlerRegistry) Register(ref string, h Handler) error {
	if ref == "" {
		return fmt.Errorf("handler reference cannot be empty")
	}
	if h == nil {
		return fmt.Errorf("handler %s cannot be nil", ref)
	}
	if _, exists := r.handlers[ref]; exists {
		return fmt.Errorf("handler %s already registered", ref)
	}

	r.handlers[ref] = h
	return nil
}

// Lookup returns the handler bound to ref
func (r *HandlerRegistry) Lookup(ref string) (Handler, bool) {
	h, ok := r.handlers[ref]
	return h, ok
}

// Refs returns the sorted list of registered references
func (r *HandlerRegistry) Refs() []string {
	refs := make([]string, 0, len(r.handlers))
	for ref := range r.handlers {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}
