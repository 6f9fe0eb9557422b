// Package testcase defines the contract between a run and the caller
// supplied module that prepares the browser and names the pages to audit.
package testcase

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/entrhq/lightkeeper/pkg/browser"
)

// Connector attaches to a freshly launched browser. The returned handle
// replaces the launched one for the rest of the run; returning the handle
// unchanged is fine.
type Connector interface {
	Connect(ctx context.Context, h browser.Handle) (browser.Handle, error)
}

// URLSource lists the pages to audit.
type URLSource interface {
	URLs(ctx context.Context) ([]string, error)
}

// Module is a complete test module.
type Module interface {
	Connector
	URLSource
}

// Loader resolves a module identifier to a module value. The value is
// checked against Connector and URLSource by the caller.
type Loader func(ctx context.Context, id string) (any, error)

// Factory builds a module value.
type Factory func() any

// Registry maps module names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" {
		return fmt.Errorf("module name is required")
	}
	if factory == nil {
		return fmt.Errorf("module %q has no factory", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("module %q already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// Names returns the registered module names, sorted.
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

// Load builds the module registered under id.
func (r *Registry) Load(_ context.Context, id string) (any, error) {
	r.mu.RLock()
	factory, ok := r.factories[id]
	r.mu.RUnlock()

	if !ok {
		if names := r.Names(); len(names) > 0 {
			return nil, fmt.Errorf("module %q not found, available: %s", id, strings.Join(names, ", "))
		}
		return nil, fmt.Errorf("module %q not found, no modules registered", id)
	}
	return factory(), nil
}

var defaultRegistry = NewRegistry()

// Register adds a factory to the default registry. It panics on a duplicate
// name, which is a programming error in an init function.
func Register(name string, factory Factory) {
	if err := defaultRegistry.Register(name, factory); err != nil {
		panic(err)
	}
}

// DefaultLoader loads script files (.yaml, .yml) from disk and resolves any
// other identifier through the default registry.
func DefaultLoader(ctx context.Context, id string) (any, error) {
	switch strings.ToLower(filepath.Ext(id)) {
	case ".yaml", ".yml":
		return LoadScript(id)
	}
	return defaultRegistry.Load(ctx, id)
}

// Static returns a module auditing a fixed list of URLs without touching
// the browser.
func Static(urls ...string) Module {
	return staticModule(append([]string(nil), urls...))
}

type staticModule []string

func (s staticModule) Connect(_ context.Context, h browser.Handle) (browser.Handle, error) {
	return h, nil
}

func (s staticModule) URLs(context.Context) ([]string, error) {
	return append([]string(nil), s...), nil
}

func (s staticModule) String() string {
	return fmt.Sprintf("static(%d urls)", len(s))
}
