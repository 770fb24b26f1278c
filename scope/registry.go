package scope

import (
	"errors"
	"strings"
	"sync"
)

// Admin is the catch-all scope.
const Admin = "admin"

// Defaults is the vocabulary used when none is configured.
var Defaults = []string{
	"read:reports",
	"write:reports",
	"read:findings",
	"write:findings",
	"read:organizations",
	"write:organizations",
	"read:users",
	"write:users",
	Admin,
}

var (
	errFrozen    = errors.New("scope registry frozen")
	errEmptyName = errors.New("scope name cannot be empty")
	errDuplicate = errors.New("scope already registered")
	errBadName   = errors.New("scope name must be <verb>:<resource> or a single word")
)

// Registry is a set of known scope names. Registration order is kept so that
// listings are stable.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	known  map[string]struct{}
	frozen bool
}

// NewRegistry creates an empty, unfrozen [Registry].
func NewRegistry() *Registry {
	return &Registry{known: make(map[string]struct{})}
}

// NewDefaultRegistry returns a frozen registry holding [Defaults].
func NewDefaultRegistry() *Registry {
	r, err := FromNames(Defaults)
	if err != nil {
		panic(err)
	}
	return r
}

// FromNames registers every name and freezes the result.
func FromNames(names []string) (*Registry, error) {
	r := NewRegistry()
	for _, name := range names {
		if err := r.Register(name); err != nil {
			return nil, err
		}
	}
	r.Freeze()
	return r, nil
}

// Register adds name to the vocabulary. Must be called before [Registry.Freeze].
func (r *Registry) Register(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return errFrozen
	}
	if name == "" {
		return errEmptyName
	}
	if !wellFormed(name) {
		return errBadName
	}
	if _, exists := r.known[name]; exists {
		return errDuplicate
	}

	r.known[name] = struct{}{}
	r.order = append(r.order, name)
	return nil
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Known reports whether name is registered.
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.known[name]
	return ok
}

// Names returns the vocabulary in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Validate checks requested against the vocabulary. granted keeps the
// caller's order with duplicates removed; invalid lists every unknown entry
// in the order first seen. Names are matched exactly, without case folding
// or trimming.
func (r *Registry) Validate(requested []string) (granted []string, invalid []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(requested))
	granted = make([]string, 0, len(requested))
	for _, name := range requested {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		if _, ok := r.known[name]; ok {
			granted = append(granted, name)
		} else {
			invalid = append(invalid, name)
		}
	}
	return granted, invalid
}

// Allows reports whether a key holding granted may act under required.
func Allows(granted []string, required string) bool {
	for _, name := range granted {
		if name == required || name == Admin {
			return true
		}
	}
	return false
}

func wellFormed(name string) bool {
	if strings.ContainsAny(name, " \t\r\n") {
		return false
	}
	verb, resource, ok := strings.Cut(name, ":")
	if !ok {
		return true
	}
	return verb != "" && resource != "" && !strings.Contains(resource, ":")
}
