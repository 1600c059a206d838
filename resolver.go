package registration

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// DefaultBackendName is the name DefaultBackend is registered under
const DefaultBackendName = "default"

// EntryKind tells apart the kinds of objects a Registry holds
type EntryKind string

const (
	KindBackend          EntryKind = "backend"
	KindRegistrationForm EntryKind = "registration_form"
	KindActivationForm   EntryKind = "activation_form"
	KindActivationMethod EntryKind = "activation_method"
)

// BackendOptions is everything a BackendFactory receives
type BackendOptions struct {
	Name             string
	Config           Config
	ActivationMethod ActivationMethod
	RegistrationForm FormFactory[RegistrationForm]
	ActivationForm   FormFactory[ActivationForm]
	Extra            map[string]any
}

// BackendFactory builds a Backend from resolved options
type BackendFactory func(ctx context.Context, opts BackendOptions) (Backend, error)

type registryEntry struct {
	kind  EntryKind
	value any
}

// Registry maps names to backends, forms and activation methods. All kinds
// share one namespace so a reference can only ever point at one object.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registryEntry
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]registryEntry),
	}
}

func (r *Registry) register(name string, kind EntryKind, value any, isNil bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		panic(fmt.Sprintf("registration: empty name for %s", kind))
	}
	if isNil {
		panic(fmt.Sprintf("registration: nil %s registered as '%s'", kind, name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.entries[name]; exists {
		panic(fmt.Sprintf("registration: '%s' already registered as %s", name, existing.kind))
	}
	r.entries[name] = registryEntry{kind: kind, value: value}
}

// RegisterBackend registers a backend factory under name
func (r *Registry) RegisterBackend(name string, factory BackendFactory) {
	r.register(name, KindBackend, factory, factory == nil)
}

// RegisterRegistrationForm registers a registration form factory under name
func (r *Registry) RegisterRegistrationForm(name string, factory FormFactory[RegistrationForm]) {
	r.register(name, KindRegistrationForm, factory, factory == nil)
}

// RegisterActivationForm registers an activation form factory under name
func (r *Registry) RegisterActivationForm(name string, factory FormFactory[ActivationForm]) {
	r.register(name, KindActivationForm, factory, factory == nil)
}

// RegisterActivationMethod registers an activation method under name
func (r *Registry) RegisterActivationMethod(name string, method ActivationMethod) {
	r.register(name, KindActivationMethod, method, method == nil)
}

// Names lists the registered names of kind, sorted
func (r *Registry) Names(kind EntryKind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := []string{}
	for name, entry := range r.entries {
		if entry.kind == kind {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (r *Registry) lookup(name string, kind EntryKind) (any, error) {
	name = strings.TrimSpace(name)

	r.mu.RLock()
	entry, ok := r.entries[name]
	r.mu.RUnlock()

	if !ok {
		return nil, improperlyConfigured(fmt.Sprintf("no %s registered as '%s'", kind, name), map[string]any{
			"ref":  name,
			"kind": string(kind),
		})
	}

	if entry.kind != kind {
		return nil, improperlyConfigured(fmt.Sprintf("'%s' is a %s, not a %s", name, entry.kind, kind), map[string]any{
			"ref":      name,
			"kind":     string(kind),
			"resolved": string(entry.kind),
		})
	}

	return entry.value, nil
}

// BackendFactory returns the backend factory registered as name
func (r *Registry) BackendFactory(name string) (BackendFactory, error) {
	v, err := r.lookup(name, KindBackend)
	if err != nil {
		return nil, err
	}
	return v.(BackendFactory), nil
}

// RegistrationForm returns the registration form factory registered as name
func (r *Registry) RegistrationForm(name string) (FormFactory[RegistrationForm], error) {
	v, err := r.lookup(name, KindRegistrationForm)
	if err != nil {
		return nil, err
	}
	return v.(FormFactory[RegistrationForm]), nil
}

// ActivationForm returns the activation form factory registered as name
func (r *Registry) ActivationForm(name string) (FormFactory[ActivationForm], error) {
	v, err := r.lookup(name, KindActivationForm)
	if err != nil {
		return nil, err
	}
	return v.(FormFactory[ActivationForm]), nil
}

// ActivationMethod returns the activation method registered as name
func (r *Registry) ActivationMethod(name string) (ActivationMethod, error) {
	v, err := r.lookup(name, KindActivationMethod)
	if err != nil {
		return nil, err
	}
	return v.(ActivationMethod), nil
}

type resolveOptions struct {
	activationMethod     ActivationMethod
	activationMethodName string
	registrationForm     FormFactory[RegistrationForm]
	registrationFormName *string
	activationForm       FormFactory[ActivationForm]
	activationFormName   *string
	extra                map[string]any
}

// ResolveOption overrides a piece of the resolved backend
type ResolveOption func(*resolveOptions)

// WithActivationMethod uses method instead of the configured one
func WithActivationMethod(method ActivationMethod) ResolveOption {
	return func(o *resolveOptions) {
		o.activationMethod = method
	}
}

// WithActivationMethodName resolves the activation method by name
func WithActivationMethodName(name string) ResolveOption {
	return func(o *resolveOptions) {
		o.activationMethodName = name
	}
}

// WithRegistrationForm uses factory instead of the configured form
func WithRegistrationForm(factory FormFactory[RegistrationForm]) ResolveOption {
	return func(o *resolveOptions) {
		o.registrationForm = factory
	}
}

// WithRegistrationFormName resolves the registration form by name, an empty
// name means no form.
func WithRegistrationFormName(name string) ResolveOption {
	return func(o *resolveOptions) {
		o.registrationFormName = &name
	}
}

// WithActivationForm uses factory instead of the configured form
func WithActivationForm(factory FormFactory[ActivationForm]) ResolveOption {
	return func(o *resolveOptions) {
		o.activationForm = factory
	}
}

// WithActivationFormName resolves the activation form by name, an empty
// name means no form.
func WithActivationFormName(name string) ResolveOption {
	return func(o *resolveOptions) {
		o.activationFormName = &name
	}
}

// WithBackendOption passes an extra option through to the backend
func WithBackendOption(key string, value any) ResolveOption {
	return func(o *resolveOptions) {
		if o.extra == nil {
			o.extra = map[string]any{}
		}
		o.extra[key] = value
	}
}

// Resolver turns a backend reference into a ready Backend
type Resolver struct {
	registry *Registry
	config   Config
}

// NewResolver builds a resolver reading defaults from cfg
func NewResolver(registry *Registry, cfg Config) *Resolver {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Resolver{
		registry: registry,
		config:   cfg,
	}
}

// Registry returns the underlying registry
func (r *Resolver) Registry() *Registry {
	return r.registry
}

// Resolve builds the backend registered as ref. Forms are optional and
// default to the configured names, the activation method is required and
// comes from the options or the configuration.
func (r *Resolver) Resolve(ctx context.Context, ref string, opts ...ResolveOption) (Backend, error) {
	options := resolveOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	if strings.TrimSpace(ref) == "" {
		ref = DefaultBackendName
	}

	factory, err := r.registry.BackendFactory(ref)
	if err != nil {
		return nil, err
	}

	registrationForm, err := r.resolveRegistrationForm(options)
	if err != nil {
		return nil, err
	}

	activationForm, err := r.resolveActivationForm(options)
	if err != nil {
		return nil, err
	}

	method, err := r.resolveActivationMethod(options)
	if err != nil {
		return nil, err
	}

	backend, err := factory(ctx, BackendOptions{
		Name:             ref,
		Config:           r.config,
		ActivationMethod: method,
		RegistrationForm: registrationForm,
		ActivationForm:   activationForm,
		Extra:            options.extra,
	})
	if err != nil {
		return nil, err
	}

	if backend == nil {
		return nil, improperlyConfigured(fmt.Sprintf("backend factory '%s' returned no backend", ref), map[string]any{
			"ref": ref,
		})
	}

	return backend, nil
}

func (r *Resolver) resolveRegistrationForm(options resolveOptions) (FormFactory[RegistrationForm], error) {
	if options.registrationForm != nil {
		return options.registrationForm, nil
	}

	name := ""
	if options.registrationFormName != nil {
		name = *options.registrationFormName
	} else if r.config != nil {
		name = r.config.GetRegistrationForm()
	}

	if strings.TrimSpace(name) == "" {
		return nil, nil
	}

	return r.registry.RegistrationForm(name)
}

func (r *Resolver) resolveActivationForm(options resolveOptions) (FormFactory[ActivationForm], error) {
	if options.activationForm != nil {
		return options.activationForm, nil
	}

	name := ""
	if options.activationFormName != nil {
		name = *options.activationFormName
	} else if r.config != nil {
		name = r.config.GetActivationForm()
	}

	if strings.TrimSpace(name) == "" {
		return nil, nil
	}

	return r.registry.ActivationForm(name)
}

func (r *Resolver) resolveActivationMethod(options resolveOptions) (ActivationMethod, error) {
	if options.activationMethod != nil {
		return options.activationMethod, nil
	}

	name := options.activationMethodName
	if name == "" && r.config != nil {
		name = r.config.GetActivationMethod()
	}

	if strings.TrimSpace(name) == "" {
		return nil, improperlyConfigured("no activation method configured", map[string]any{
			"kind": string(KindActivationMethod),
		})
	}

	return r.registry.ActivationMethod(name)
}
