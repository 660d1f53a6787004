package granola

import (
	"context"
	"reflect"
	"sort"
	"sync"
)

// TypeRegistry maps type tags to concrete Go types and back.
//
// Registration is expected during program start; lookups are safe for
// concurrent use at any time. For every registered pair the mapping is a
// bijection: Resolve(NameOf(t)) == t and NameOf(Resolve(n)) == n.
type TypeRegistry struct {
	mu     sync.RWMutex
	byName map[string]reflect.Type
	byType map[reflect.Type]string
}

// DefaultTypes is the registry used by mappers built without WithTypeRegistry.
var DefaultTypes = NewTypeRegistry()

// NewTypeRegistry returns an empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		byName: make(map[string]reflect.Type),
		byType: make(map[reflect.Type]string),
	}
}

// Register adds T under its canonical name.
func Register[T any](r *TypeRegistry) error {
	typ := reflect.TypeFor[T]()
	return r.RegisterType(TypeName(typ), typ)
}

// RegisterNamed adds T under an explicit name.
func RegisterNamed[T any](r *TypeRegistry, name string) error {
	return r.RegisterType(name, reflect.TypeFor[T]())
}

// MustRegister is Register for init blocks; it panics on error.
func MustRegister[T any](r *TypeRegistry) {
	if err := Register[T](r); err != nil {
		panic(err)
	}
}

// RegisterType adds typ under name.
// Re-registering an identical pair is a no-op. Reusing either side with a
// different counterpart fails with ErrDuplicateType.
func (r *TypeRegistry) RegisterType(name string, typ reflect.Type) error {
	if typ == nil || typ.Kind() == reflect.Interface {
		return newConfigError(ErrInvalidType, "", TypeName(typ))
	}
	if name == "" {
		return newConfigError(ErrInvalidType, "", "")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[name]; ok {
		if existing == typ {
			return nil
		}
		return newConfigError(ErrDuplicateType, "", name)
	}
	if existing, ok := r.byType[typ]; ok {
		return newConfigError(ErrDuplicateType, "", existing)
	}

	r.byName[name] = typ
	r.byType[typ] = name
	return nil
}

// Resolve returns the type registered under name.
func (r *TypeRegistry) Resolve(name string) (reflect.Type, error) {
	r.mu.RLock()
	typ, ok := r.byName[name]
	r.mu.RUnlock()

	if !ok {
		emitTypeUnresolved(context.Background(), name)
		return nil, newTypeError(ErrTypeNotFound, name)
	}
	return typ, nil
}

// NameOf returns the tag registered for typ.
func (r *TypeRegistry) NameOf(typ reflect.Type) (string, error) {
	r.mu.RLock()
	name, ok := r.byType[typ]
	r.mu.RUnlock()

	if !ok {
		return "", newTypeError(ErrTypeNotRegistered, TypeName(typ))
	}
	return name, nil
}

// Names returns all registered tags in sorted order.
func (r *TypeRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TypeName returns the canonical tag for typ: the fully-qualified Go name,
// with one leading "*" per pointer level. Unnamed types use their literal form.
func TypeName(typ reflect.Type) string {
	if typ == nil {
		return "<nil>"
	}
	prefix := ""
	for typ.Kind() == reflect.Pointer {
		prefix += "*"
		typ = typ.Elem()
	}
	if typ.Name() == "" || typ.PkgPath() == "" {
		return prefix + typ.String()
	}
	return prefix + typ.PkgPath() + "." + typ.Name()
}
