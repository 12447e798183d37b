package metadata

import (
	"sort"
	"sync"
)

// Registry holds the component models a form can reference by type name.
type Registry struct {
	mu     sync.RWMutex
	models map[string]*Model
}

func NewRegistry(models ...*Model) *Registry {
	r := &Registry{models: make(map[string]*Model, len(models))}
	for _, m := range models {
		r.models[m.Type] = m
	}
	return r
}

// NewDefaultRegistry returns a registry preloaded with DefaultModels.
func NewDefaultRegistry() *Registry {
	return NewRegistry(DefaultModels()...)
}

// GetModel returns the model with the given type name, or nil.
func (r *Registry) GetModel(typeName string) *Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.models[typeName]
}

// AllModels returns all registered models sorted by type name.
func (r *Registry) AllModels() []*Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	models := make([]*Model, 0, len(r.models))
	for _, m := range r.models {
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Type < models[j].Type })
	return models
}

// Register adds or replaces a model.
func (r *Registry) Register(m *Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[m.Type] = m
}

// Load replaces all models in the registry.
func (r *Registry) Load(models []*Model) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.models = make(map[string]*Model, len(models))
	for _, m := range models {
		r.models[m.Type] = m
	}
}
