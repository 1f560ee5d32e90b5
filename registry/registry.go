package registry

import (
	"context"
	"sort"

	"github.com/wippyai/opcore/driver"
	"github.com/wippyai/opcore/errors"
)

// DispatchFunc runs one guest call: it starts the native work and submits it to d.
// The result and bool are those of driver.Submit.
type DispatchFunc func(ctx context.Context, d *driver.Driver, sub driver.Submission, args any) (driver.Result, bool)

// Info identifies an op to middleware.
type Info struct {
	Name   string
	ID     driver.OpID
	Policy driver.Policy
}

// Middleware wraps a dispatch function to add cross-cutting behavior.
type Middleware func(op Info, next DispatchFunc) DispatchFunc

// Descriptor is one entry of a Table.
type Descriptor struct {
	Dispatch DispatchFunc
	Name     string
	ID       driver.OpID
	Policy   driver.Policy
}

// Info returns the descriptor identity.
func (d Descriptor) Info() Info {
	return Info{Name: d.Name, ID: d.ID, Policy: d.Policy}
}

// Table is an immutable op table indexed by driver.OpID.
type Table struct {
	byName map[string]driver.OpID
	ops    []Descriptor
}

// Option configures table construction.
type Option func(*builder)

type builder struct {
	ops        []Op
	middleware []Middleware
	errs       []error
}

// New builds a Table. Returns an error if an op name is empty or registered twice.
func New(opts ...Option) (*Table, error) {
	b := &builder{}
	for _, opt := range opts {
		opt(b)
	}
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}

	t := &Table{
		ops:    make([]Descriptor, 0, len(b.ops)),
		byName: make(map[string]driver.OpID, len(b.ops)),
	}
	for i, op := range b.ops {
		if op.name == "" {
			return nil, errors.Registration(op.name, errors.InvalidInput(errors.PhaseRegistry, "op name cannot be empty"))
		}
		if _, dup := t.byName[op.name]; dup {
			return nil, errors.Registration(op.name, errors.InvalidInput(errors.PhaseRegistry, "duplicate op name"))
		}
		if op.dispatch == nil {
			return nil, errors.Registration(op.name, errors.InvalidInput(errors.PhaseRegistry, "op has no dispatch function"))
		}

		id := driver.OpID(i)
		info := Info{Name: op.name, ID: id, Policy: op.policy}
		dispatch := op.dispatch
		// reverse order so the first middleware wraps outermost
		for j := len(b.middleware) - 1; j >= 0; j-- {
			dispatch = b.middleware[j](info, dispatch)
		}

		t.ops = append(t.ops, Descriptor{
			ID:       id,
			Name:     op.name,
			Policy:   op.policy,
			Dispatch: dispatch,
		})
		t.byName[op.name] = id
	}
	return t, nil
}

// MustNew is like New but panics on error.
func MustNew(opts ...Option) *Table {
	t, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return t
}

// WithOp registers an op. Ids follow registration order.
func WithOp(op ...Op) Option {
	return func(b *builder) {
		b.ops = append(b.ops, op...)
	}
}

// WithMiddleware adds middleware. First added wraps outermost.
func WithMiddleware(mw ...Middleware) Option {
	return func(b *builder) {
		for _, m := range mw {
			if m == nil {
				b.errs = append(b.errs, errors.InvalidInput(errors.PhaseRegistry, "nil middleware"))
				continue
			}
			b.middleware = append(b.middleware, m)
		}
	}
}

// Len returns the number of ops.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.ops)
}

// Get returns the descriptor for id.
func (t *Table) Get(id driver.OpID) (Descriptor, bool) {
	if t == nil || int(id) >= len(t.ops) {
		return Descriptor{}, false
	}
	return t.ops[id], true
}

// Lookup returns the descriptor registered under name.
func (t *Table) Lookup(name string) (Descriptor, bool) {
	if t == nil {
		return Descriptor{}, false
	}
	id, ok := t.byName[name]
	if !ok {
		return Descriptor{}, false
	}
	return t.ops[id], true
}

// Names returns op names sorted alphabetically.
func (t *Table) Names() []string {
	if t == nil {
		return nil
	}
	names := make([]string, 0, len(t.ops))
	for _, d := range t.ops {
		names = append(names, d.Name)
	}
	sort.Strings(names)
	return names
}

// Descriptors returns a copy of the table in id order.
func (t *Table) Descriptors() []Descriptor {
	if t == nil {
		return nil
	}
	out := make([]Descriptor, len(t.ops))
	copy(out, t.ops)
	return out
}
