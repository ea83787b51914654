// Package registry keeps a process-scoped set of named connection pools so
// application code can look a pool up by target name instead of threading
// *pool.Pool references through every layer.
package registry

import (
	"fmt"
	"log"
	"sync"

	"github.com/arannis/docpool/internal/pool"
	"github.com/arannis/docpool/internal/transport"
	"github.com/arannis/docpool/pkg/target"
)

// Registry owns a set of pools keyed by target name. It does not own the
// decision of when pools get created or destroyed beyond Create/Close; that
// is the caller's responsibility (typically cmd/pooldemo's wiring).
type Registry struct {
	mu    sync.RWMutex
	pools map[string]*pool.Pool
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{pools: make(map[string]*pool.Pool)}
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the process-wide Registry singleton, for callers that want
// one shared set of pools without threading a *Registry through every layer.
func Default() *Registry {
	defaultOnce.Do(func() { defaultReg = New() })
	return defaultReg
}

// Create constructs a pool for t and registers it under t.Name. It is an
// error to register a name twice.
func (r *Registry) Create(t target.Target, dialer transport.Dialer) (*pool.Pool, error) {
	r.mu.Lock()
	if _, exists := r.pools[t.Name]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("registry: pool %q already registered", t.Name)
	}
	r.mu.Unlock()

	p, err := pool.New(t.Name, t, dialer)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if _, exists := r.pools[t.Name]; exists {
		r.mu.Unlock()
		p.Close()
		return nil, fmt.Errorf("registry: pool %q already registered", t.Name)
	}
	r.pools[t.Name] = p
	r.mu.Unlock()

	return p, nil
}

// CreateAll constructs and registers a pool for every target, closing
// everything already created if any one fails.
func (r *Registry) CreateAll(targets []target.Target, dialer transport.Dialer) error {
	for _, t := range targets {
		if _, err := r.Create(t, dialer); err != nil {
			r.CloseAll()
			return fmt.Errorf("registry: initializing pool %q: %w", t.Name, err)
		}
	}
	log.Printf("[registry] initialized %d pools", len(targets))
	return nil
}

// Get returns the pool registered under name.
func (r *Registry) Get(name string) (*pool.Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[name]
	return p, ok
}

// Names returns the currently registered pool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.pools))
	for name := range r.pools {
		names = append(names, name)
	}
	return names
}

// Stats returns one StatsSnapshot per registered pool, keyed by name.
func (r *Registry) Stats() map[string]pool.StatsSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]pool.StatsSnapshot, len(r.pools))
	for name, p := range r.pools {
		out[name] = p.Stats()
	}
	return out
}

// Close closes the pool registered under name and removes it from the
// registry.
func (r *Registry) Close(name string) error {
	r.mu.Lock()
	p, ok := r.pools[name]
	if ok {
		delete(r.pools, name)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("registry: unknown pool %q", name)
	}
	return p.Close()
}

// CloseAll closes every registered pool in parallel, returning the first error
// encountered but always attempting to close all of them.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	pools := r.pools
	r.pools = make(map[string]*pool.Pool)
	r.mu.Unlock()

	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)
	for name, p := range pools {
		wg.Add(1)
		go func(name string, p *pool.Pool) {
			defer wg.Done()
			if err := p.Close(); err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("registry: closing pool %q: %w", name, err)
				}
				errMu.Unlock()
			}
		}(name, p)
	}
	wg.Wait()
	log.Printf("[registry] closed %d pools", len(pools))
	return firstErr
}
