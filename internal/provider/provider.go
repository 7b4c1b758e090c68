// Package provider maps provider names to URL builders for remote tile servers.
//
// Providers register themselves with Register, usually from an init function,
// and callers resolve them by name with Create. Callers never switch on the
// provider name.
package provider

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Provider builds the upstream URL of a tile. Implementations are stateless
// after construction and safe for concurrent use.
type Provider interface {
	Name() string
	BuildURL(x, y, zoom uint32) string
}

// Factory creates a provider bound to a locale.
type Factory func(locale string) Provider

var ErrUnsupportedProvider = errors.New("unsupported provider")

type UnsupportedProviderError struct {
	Name string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported provider %q", e.Name)
}

func (e *UnsupportedProviderError) Is(target error) bool {
	return target == ErrUnsupportedProvider
}

type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under name. Registering the same name twice panics.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.factories[name]; dup {
		panic("provider: Register called twice for " + name)
	}
	r.factories[name] = f
}

func (r *Registry) Create(name, locale string) (Provider, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, &UnsupportedProviderError{Name: name}
	}
	return f(locale), nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var defaultRegistry = NewRegistry()

// Default returns the registry holding the built-in providers.
func Default() *Registry {
	return defaultRegistry
}

func Register(name string, f Factory) {
	defaultRegistry.Register(name, f)
}

func Create(name, locale string) (Provider, error) {
	return defaultRegistry.Create(name, locale)
}
