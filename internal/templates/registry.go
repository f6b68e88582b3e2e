package templates

import (
	"fmt"
	"sort"
	"sync"

	"whatsapp-suite/internal/apperr"
	"whatsapp-suite/internal/models"
)

// ModelContacts is the registry name of models.Contact.
const ModelContacts = "contacts"

// Accessor reads one field of a record as template parameter text.
type Accessor func(record interface{}) (string, error)

// Registry maps model -> field -> accessor. Parameter mappings and
// campaign filters only reach record data through it.
type Registry struct {
	mu     sync.RWMutex
	models map[string]map[string]Accessor
}

func NewRegistry() *Registry {
	return &Registry{models: make(map[string]map[string]Accessor)}
}

// NewDefaultRegistry knows the contact fields.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	Register(r, ModelContacts, "name", func(c *models.Contact) string { return c.Name })
	Register(r, ModelContacts, "phone", func(c *models.Contact) string { return c.Phone })
	Register(r, ModelContacts, "mobile", func(c *models.Contact) string { return c.Mobile })
	Register(r, ModelContacts, "email", func(c *models.Contact) string { return c.Email })
	Register(r, ModelContacts, "tags", func(c *models.Contact) string { return c.Tags })
	return r
}

func (r *Registry) Add(model, field string, fn Accessor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fields, ok := r.models[model]
	if !ok {
		fields = make(map[string]Accessor)
		r.models[model] = fields
	}
	fields[field] = fn
}

// Register adds a typed accessor. Resolving it against a record of another
// type fails instead of panicking.
func Register[T any](r *Registry, model, field string, get func(T) string) {
	r.Add(model, field, func(record interface{}) (string, error) {
		rec, ok := record.(T)
		if !ok {
			return "", apperr.Config("record of type %T cannot be read as %s", record, model)
		}
		return get(rec), nil
	})
}

func (r *Registry) Has(model, field string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.models[model][field]
	return ok
}

// Fields lists the registered fields of model in name order.
func (r *Registry) Fields(model string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.models[model]))
	for name := range r.models[model] {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Resolve(model, field string, record interface{}) (string, error) {
	r.mu.RLock()
	fn, ok := r.models[model][field]
	r.mu.RUnlock()
	if !ok {
		return "", apperr.Config("unknown field %q on %s", field, model)
	}
	value, err := fn(record)
	if err != nil {
		return "", fmt.Errorf("fetch field %s from %s: %w", field, model, err)
	}
	return value, nil
}
