// Package registry maps task types to (module, method) handler bindings.
// Handler bindings are a runtime concern, not part of the durable task
// record, so they must be re-established after every process restart.
package registry

import "sync"

// Binding is the (module, method) pair a task type dispatches to.
type Binding struct {
	Module string
	Method string
}

// PokeFunc re-evaluates the dispatcher for a task type. It is invoked by
// Register so a freshly-bound type is dispatched immediately if tasks of
// that type are already pending.
type PokeFunc func(taskType string)

// Registry is a mutex-protected type -> Binding map.
type Registry struct {
	mu       sync.RWMutex
	bindings map[string]Binding
	poke     PokeFunc
}

// New returns an empty Registry. poke may be nil; SetPoke can install it
// later once the dispatcher is constructed.
func New(poke PokeFunc) *Registry {
	return &Registry{bindings: make(map[string]Binding), poke: poke}
}

// SetPoke installs the poke callback, replacing any previous one.
func (r *Registry) SetPoke(poke PokeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.poke = poke
}

// Register binds taskType to (module, method) and pokes the dispatcher for
// taskType if a poke callback is installed.
func (r *Registry) Register(taskType, module, method string) {
	r.mu.Lock()
	r.bindings[taskType] = Binding{Module: module, Method: method}
	poke := r.poke
	r.mu.Unlock()
	if poke != nil {
		poke(taskType)
	}
}

// Unregister removes the binding for taskType. Future dispatches for that
// type become no-ops until a new handler is registered; in-flight work is
// not affected.
func (r *Registry) Unregister(taskType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bindings, taskType)
}

// Lookup returns the binding for taskType, if any.
func (r *Registry) Lookup(taskType string) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[taskType]
	return b, ok
}
