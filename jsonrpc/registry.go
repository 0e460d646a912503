package jsonrpc

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/mnehpets/schemarpc/schema"
)

// Registry is one API surface: a set of named methods, the schema
// references they share, and child registries mounted under subpaths.
//
// A Registry is built during setup and then sealed (see Seal). Mutation
// after sealing fails with ErrSealed; lookups on a sealed registry are safe
// for concurrent use without locking.
type Registry struct {
	title       string
	description string
	segment     string

	root     *Registry
	compiler schema.Compiler
	refs     *schema.Store
	sealed   *atomic.Bool

	methods     map[string]*Method
	methodOrder []string

	children   map[string]*Registry
	childOrder []string
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithCompiler sets the schema compiler used when the registry is sealed.
// Child registries inherit it.
func WithCompiler(c schema.Compiler) RegistryOption {
	return func(r *Registry) {
		r.compiler = c
	}
}

// NewRegistry creates an empty root registry.
func NewRegistry(title, description string, opts ...RegistryOption) *Registry {
	r := &Registry{
		title:       title,
		description: description,
		compiler:    schema.NewCompiler(),
		refs:        schema.NewStore(),
		sealed:      new(atomic.Bool),
		methods:     make(map[string]*Method),
		children:    make(map[string]*Registry),
	}
	r.root = r
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle refers to a registered method. It is the key for attaching schemas,
// header rules and deprecation notices after Register.
type Handle struct {
	reg  *Registry
	name string
}

// Name returns the method name the handle refers to.
func (h Handle) Name() string {
	return h.name
}

// Method is a registered RPC method.
type Method struct {
	name        string
	summary     string
	handler     Handler
	paramsDoc   schema.Document
	resultDoc   schema.Document
	headers     []HeaderRule
	deprecated  bool
	deprecation string

	params schema.Validator
	result schema.Validator
}

// HeaderRule requires a request header, optionally matching a pattern.
type HeaderRule struct {
	Key     string
	Pattern string
	re      *regexp.Regexp
}

func (m *Method) Name() string { return m.name }
func (m *Method) Summary() string { return m.summary }
func (m *Method) ParamsSchema() schema.Document { return m.paramsDoc }
func (m *Method) ResultSchema() schema.Document { return m.resultDoc }
func (m *Method) Headers() []HeaderRule { return slices.Clone(m.headers) }
func (m *Method) Deprecation() (string, bool) { return m.deprecation, m.deprecated }

// Register adds a method. The name must be unique within the registry.
func (r *Registry) Register(name, summary string, h Handler) (Handle, error) {
	const op = "register method"
	if err := r.mutable(op, name); err != nil {
		return Handle{}, err
	}
	if name == "" {
		return Handle{}, &RegistrationError{Op: op, Name: name, Err: ErrInvalidName}
	}
	if h == nil {
		return Handle{}, &RegistrationError{Op: op, Name: name, Err: fmt.Errorf("nil handler")}
	}
	if _, exists := r.methods[name]; exists {
		return Handle{}, &RegistrationError{Op: op, Name: name, Err: ErrDuplicateMethod}
	}
	r.methods[name] = &Method{name: name, summary: summary, handler: h}
	r.methodOrder = append(r.methodOrder, name)
	return Handle{reg: r, name: name}, nil
}

// Params attaches a parameter schema. A schema with an "$id" is also
// interned as a reference.
func (r *Registry) Params(h Handle, doc schema.Document) error {
	m, err := r.lookupHandle("attach params schema", h)
	if err != nil {
		return err
	}
	doc, err = r.intern("attach params schema", h.name, doc)
	if err != nil {
		return err
	}
	m.paramsDoc = doc
	return nil
}

// Result attaches a result schema. A schema with an "$id" is also interned
// as a reference.
func (r *Registry) Result(h Handle, doc schema.Document) error {
	m, err := r.lookupHandle("attach result schema", h)
	if err != nil {
		return err
	}
	doc, err = r.intern("attach result schema", h.name, doc)
	if err != nil {
		return err
	}
	m.resultDoc = doc
	return nil
}

// RequireHeader adds a required header. An empty pattern only requires
// presence; otherwise the value must match the pattern starting at its first
// character. Multiple rules accumulate.
func (r *Registry) RequireHeader(h Handle, key, pattern string) error {
	const op = "require header"
	m, err := r.lookupHandle(op, h)
	if err != nil {
		return err
	}
	if strings.TrimSpace(key) == "" {
		return &RegistrationError{Op: op, Name: h.name, Err: ErrInvalidName}
	}
	rule := HeaderRule{Key: key, Pattern: pattern}
	if pattern != "" {
		re, err := regexp.Compile(`^(?:` + pattern + `)`)
		if err != nil {
			return &RegistrationError{Op: op, Name: h.name, Err: err}
		}
		rule.re = re
	}
	m.headers = append(m.headers, rule)
	return nil
}

// Deprecate marks a method as deprecated. Deprecated methods still dispatch.
func (r *Registry) Deprecate(h Handle, reason string) error {
	m, err := r.lookupHandle("deprecate", h)
	if err != nil {
		return err
	}
	m.deprecated = true
	m.deprecation = reason
	return nil
}

// RegisterReference interns a named schema so that "$ref": "#name" can be
// used in any schema of this registry. It returns the stored document.
func (r *Registry) RegisterReference(doc schema.Document) (schema.Document, error) {
	const op = "register reference"
	if err := r.mutable(op, doc.ID()); err != nil {
		return nil, err
	}
	if doc.ID() == "" {
		return nil, &RegistrationError{Op: op, Err: fmt.Errorf("reference schema needs an $id")}
	}
	return r.intern(op, doc.ID(), doc)
}

// Subpath creates a child registry served under /segment.
func (r *Registry) Subpath(segment, title, description string) (*Registry, error) {
	const op = "create subpath"
	if err := r.mutable(op, segment); err != nil {
		return nil, err
	}
	if segment == "" || strings.Contains(segment, "/") {
		return nil, &RegistrationError{Op: op, Name: segment, Err: ErrInvalidName}
	}
	if _, exists := r.children[segment]; exists {
		return nil, &RegistrationError{Op: op, Name: segment, Err: ErrDuplicateSubpath}
	}
	child := &Registry{
		title:       title,
		description: description,
		segment:     segment,
		root:        r.root,
		compiler:    r.compiler,
		refs:        schema.NewStore(),
		sealed:      r.sealed,
		methods:     make(map[string]*Method),
		children:    make(map[string]*Registry),
	}
	r.children[segment] = child
	r.childOrder = append(r.childOrder, segment)
	return child, nil
}

func (r *Registry) mutable(op, name string) error {
	if r.sealed.Load() {
		return &RegistrationError{Op: op, Name: name, Err: ErrSealed}
	}
	return nil
}

func (r *Registry) lookupHandle(op string, h Handle) (*Method, error) {
	if err := r.mutable(op, h.name); err != nil {
		return nil, err
	}
	m, ok := r.methods[h.name]
	if h.reg != r || !ok {
		return nil, &RegistrationError{Op: op, Name: h.name, Err: ErrUnknownHandle}
	}
	return m, nil
}

func (r *Registry) intern(op, name string, doc schema.Document) (schema.Document, error) {
	if doc == nil {
		return nil, &RegistrationError{Op: op, Name: name, Err: fmt.Errorf("nil schema")}
	}
	stored, err := r.refs.Register(doc)
	if err != nil {
		return nil, &RegistrationError{Op: op, Name: name, Err: err}
	}
	return stored, nil
}

// Seal compiles every schema in the registry tree and freezes it. Sealing
// any registry of the tree seals the whole tree from its root. Sealing an
// already sealed tree is a no-op. NewEndpoint seals its registry.
func (r *Registry) Seal() error {
	if r.root != r {
		return r.root.Seal()
	}
	if r.sealed.Load() {
		return nil
	}
	if err := r.compile(); err != nil {
		return err
	}
	r.sealed.Store(true)
	return nil
}

// Sealed reports whether the registry tree has been sealed.
func (r *Registry) Sealed() bool {
	return r.sealed.Load()
}

func (r *Registry) compile() error {
	for _, name := range r.methodOrder {
		m := r.methods[name]
		if m.paramsDoc != nil {
			v, err := r.compiler.Compile(m.paramsDoc, r.refs)
			if err != nil {
				return fmt.Errorf("jsonrpc: method %q params: %w", name, err)
			}
			m.params = v
			r.link(m.paramsDoc, name)
		}
		if m.resultDoc != nil {
			v, err := r.compiler.Compile(m.resultDoc, r.refs)
			if err != nil {
				return fmt.Errorf("jsonrpc: method %q result: %w", name, err)
			}
			m.result = v
			r.link(m.resultDoc, name)
		}
	}
	for _, seg := range r.childOrder {
		if err := r.children[seg].compile(); err != nil {
			return fmt.Errorf("jsonrpc: subpath %q: %w", seg, err)
		}
	}
	return nil
}

// link records the method as a user of every reference its schema reaches,
// including the schema's own "$id".
func (r *Registry) link(doc schema.Document, method string) {
	if id := doc.ID(); id != "" {
		r.refs.Link(id, method)
	}
	for _, id := range r.refs.Closure(doc) {
		r.refs.Link(id, method)
	}
}

// Title returns the registry's title.
func (r *Registry) Title() string { return r.title }

// Description returns the registry's description.
func (r *Registry) Description() string { return r.description }

// Segment returns the subpath segment this registry is served under, or ""
// for the root.
func (r *Registry) Segment() string { return r.segment }

// References returns the registry's schema reference store.
func (r *Registry) References() *schema.Store { return r.refs }

// Method returns the named method.
func (r *Registry) Method(name string) (*Method, bool) {
	m, ok := r.methods[name]
	return m, ok
}

// Methods returns the registered methods in registration order.
func (r *Registry) Methods() []*Method {
	out := make([]*Method, 0, len(r.methodOrder))
	for _, name := range r.methodOrder {
		out = append(out, r.methods[name])
	}
	return out
}

// Child returns the registry mounted at segment.
func (r *Registry) Child(segment string) (*Registry, bool) {
	c, ok := r.children[segment]
	return c, ok
}

// Subpaths returns the child registries in registration order.
func (r *Registry) Subpaths() []*Registry {
	out := make([]*Registry, 0, len(r.childOrder))
	for _, seg := range r.childOrder {
		out = append(out, r.children[seg])
	}
	return out
}
