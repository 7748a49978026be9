package param

import (
	"fmt"
	"strings"
)

// Editor is notified of every parameter declared in a store so it can present a
// generic control for it. Editors mutate parameters through [Parameter.Set].
type Editor interface {
	DeclareEditableParameter(p *Parameter)
}

// Store indexes parameters by namespace and name. The zero value is ready to use.
// Store is not safe for concurrent use; it is meant to be driven by the frame loop.
type Store struct {
	params []*Parameter
	byName map[string]*Parameter
	editor Editor
}

// Namespace is a view of the store that declares parameters under a common prefix.
type Namespace struct {
	store *Store
	name  string
}

// Namespace returns a declaration handle for namespace ns.
// Namespaces may not contain dots since dots separate namespace and name in full names.
func (s *Store) Namespace(ns string) Namespace {
	if strings.Contains(ns, ".") {
		panic("param: namespace contains a dot: " + ns)
	}
	return Namespace{store: s, name: ns}
}

// Name returns the namespace prefix.
func (ns Namespace) Name() string { return ns.name }

// Store returns the store the namespace declares into.
func (ns Namespace) Store() *Store { return ns.store }

// Declare creates a parameter in the namespace. Declaring the same name twice
// in a namespace returns [ErrDuplicateParameter].
func (ns Namespace) Declare(name string, kind Kind, initial Value, rng Range, opts ...Option) (*Parameter, error) {
	if name == "" || strings.Contains(name, ".") {
		return nil, fmt.Errorf("invalid parameter name %q", name)
	}
	if kind.Components() == 0 {
		return nil, fmt.Errorf("declare %s.%s: invalid kind %s", ns.name, name, kind)
	}
	s := ns.store
	p := &Parameter{
		name:      name,
		namespace: ns.name,
		kind:      kind,
		rng:       rng,
		store:     s,
	}
	if _, exists := s.byName[p.FullName()]; exists {
		return nil, fmt.Errorf("declare %s: %w", p.FullName(), ErrDuplicateParameter)
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.Set(initial); err != nil {
		return nil, fmt.Errorf("declare: %w", err)
	}
	p.version = 0
	if s.byName == nil {
		s.byName = make(map[string]*Parameter)
	}
	s.byName[p.FullName()] = p
	s.params = append(s.params, p)
	if s.editor != nil {
		s.editor.DeclareEditableParameter(p)
	}
	return p, nil
}

// Scalar declares a scalar parameter.
func (ns Namespace) Scalar(name string, initial float32, rng Range, opts ...Option) (*Parameter, error) {
	return ns.Declare(name, Scalar, ScalarValue(initial), rng, opts...)
}

// Get returns the current value of p.
func (s *Store) Get(p *Parameter) (Value, error) {
	if err := s.owns(p); err != nil {
		return Value{}, err
	}
	return p.value, nil
}

// Set stores v in p after validation. See [Parameter.Set].
func (s *Store) Set(p *Parameter, v Value) error {
	if err := s.owns(p); err != nil {
		return err
	}
	return p.Set(v)
}

// Lookup returns the parameter with full name "namespace.name" or nil.
func (s *Store) Lookup(fullName string) *Parameter {
	return s.byName[fullName]
}

// Parameters returns all parameters in declaration order.
func (s *Store) Parameters() []*Parameter {
	return append([]*Parameter(nil), s.params...)
}

// SetEditor installs e and declares every existing parameter to it.
// Parameters declared afterwards are forwarded as they are created.
func (s *Store) SetEditor(e Editor) {
	s.editor = e
	if e == nil {
		return
	}
	for _, p := range s.params {
		e.DeclareEditableParameter(p)
	}
}

func (s *Store) owns(p *Parameter) error {
	if p == nil {
		return errNilParameter
	} else if p.store != s {
		return fmt.Errorf("%s: %w", p.FullName(), errForeignParameter)
	}
	return nil
}
