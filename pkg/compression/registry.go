package compression

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// Registry resolves compression methods by their "zip" name. A registry
// is read-only once built and safe for concurrent use.
type Registry struct {
	methods map[string]Method
	order   []string
	maxSize int64
}

// Option configures a Registry.
type Option func(*Registry)

// WithMethods registers additional methods, replacing any method with
// the same name.
func WithMethods(methods ...Method) Option {
	return func(r *Registry) {
		for _, m := range methods {
			if _, ok := r.methods[m.Name()]; !ok {
				r.order = append(r.order, m.Name())
			}
			r.methods[m.Name()] = m
		}
	}
}

// WithMaxSize bounds the size of decompressed output. Zero or a
// negative value disables the bound.
func WithMaxSize(n int64) Option {
	return func(r *Registry) {
		r.maxSize = n
	}
}

// NewRegistry returns a registry holding only the given methods.
func NewRegistry(methods []Method, opts ...Option) *Registry {
	r := &Registry{methods: map[string]Method{}}
	WithMethods(methods...)(r)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DefaultMethods returns the "DEF", "ZLIB" and "GZ" methods.
func DefaultMethods() []Method {
	return []Method{Deflate{}, Zlib{}, Gzip{}}
}

// Default returns a registry with the default methods.
func Default(opts ...Option) *Registry {
	return NewRegistry(DefaultMethods(), opts...)
}

// Get returns the named method.
func (r *Registry) Get(name string) (Method, error) {
	m, ok := r.methods[name]
	if !ok {
		return nil, &UnknownMethodError{Method: name}
	}
	return m, nil
}

// Has reports whether the named method is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.methods[name]
	return ok
}

// Names returns the registered method names in registration order.
func (r *Registry) Names() []string {
	return slices.Clone(r.order)
}

// Compress compresses data with the named method.
func (r *Registry) Compress(name string, data []byte, level Level) ([]byte, error) {
	m, err := r.Get(name)
	if err != nil {
		return nil, err
	}

	out, err := m.Compress(data, level)
	if err != nil {
		return nil, fmt.Errorf("failed to compress with %q: %w", name, err)
	}
	return out, nil
}

// Uncompress inflates data with the named method, honouring the
// registry's size bound.
func (r *Registry) Uncompress(name string, data []byte) ([]byte, error) {
	m, err := r.Get(name)
	if err != nil {
		return nil, err
	}

	out, err := m.Uncompress(data, r.maxSize)
	if err != nil {
		return nil, fmt.Errorf("failed to uncompress with %q: %w", name, err)
	}
	return out, nil
}
