package wasmbind

import (
	"context"
	"slices"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/opcore/driver"
	"github.com/wippyai/opcore/errors"
	"github.com/wippyai/opcore/realm"
	"github.com/wippyai/opcore/resource"
)

// Host module exports and the guest export used by Attach.
const (
	FuncCall    = "op_call"
	FuncRef     = "op_ref"
	FuncUnref   = "op_unref"
	FuncReject  = "op_reject"
	FuncResolve = "op_resolve"
)

// SlotKind tags the host module in realm engine slots.
const SlotKind resource.Kind = 1

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

// Binding is a realm exposed to wasm guests.
type Binding struct {
	realm  *realm.Realm
	module api.Module
	decode ArgDecoder
	encode ResultEncoder
	logger *zap.Logger
	name   string
	handle resource.Handle
}

// Option configures Bind.
type Option func(*Binding)

// WithModuleName overrides the host module name guests import from.
func WithModuleName(name string) Option {
	return func(b *Binding) {
		if name != "" {
			b.name = name
		}
	}
}

// WithArgDecoder sets how op_call arguments become op args. The default passes
// the raw uint64.
func WithArgDecoder(fn ArgDecoder) Option {
	return func(b *Binding) {
		if fn != nil {
			b.decode = fn
		}
	}
}

// WithResultEncoder sets how results are encoded for op_resolve. Defaults to EncodeScalar.
func WithResultEncoder(fn ResultEncoder) Option {
	return func(b *Binding) {
		if fn != nil {
			b.encode = fn
		}
	}
}

// WithLogger sets the binding logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Binding) {
		if l != nil {
			b.logger = l
		}
	}
}

type hostFunc struct {
	fn      api.GoModuleFunc
	name    string
	params  []api.ValueType
	results []api.ValueType
}

// moduleSlot closes the host module when the realm drops its slots.
type moduleSlot struct {
	mod api.Module
}

func (s moduleSlot) Drop() error {
	return s.mod.Close(context.Background())
}

// Bind instantiates the host module for r in rt.
func Bind(ctx context.Context, rt wazero.Runtime, r *realm.Realm, opts ...Option) (*Binding, error) {
	b := &Binding{
		realm:  r,
		name:   r.Name(),
		decode: rawArg,
		encode: EncodeScalar,
		logger: Logger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With(zap.String("realm", r.Name()), zap.String("module", b.name))

	if rt.Module(b.name) != nil {
		return nil, errors.New(errors.PhaseBinding, errors.KindInvalidInput).
			Realm(r.Name()).
			Detail("module %q already instantiated", b.name).
			Build()
	}

	builder := rt.NewHostModuleBuilder(b.name)
	for _, f := range b.funcs() {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(f.fn, f.params, f.results).
			Export(f.name)
	}

	mod, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, errors.New(errors.PhaseBinding, errors.KindRegistration).
			Realm(r.Name()).
			Cause(err).
			Detail("instantiate host module %q", b.name).
			Build()
	}

	b.module = mod
	b.handle = r.Slots().Insert(SlotKind, moduleSlot{mod: mod})
	b.logger.Debug("host module bound", zap.Int("ops", r.OpCount()))
	return b, nil
}

func (b *Binding) funcs() []hostFunc {
	return []hostFunc{
		{name: FuncCall, fn: b.call, params: []api.ValueType{i32, i32, i64}, results: []api.ValueType{i32}},
		{name: FuncRef, fn: b.ref, params: []api.ValueType{i32}},
		{name: FuncUnref, fn: b.unref, params: []api.ValueType{i32}},
		{name: FuncReject, fn: b.reject, params: []api.ValueType{i32, i64}},
	}
}

// Module returns the instantiated host module.
func (b *Binding) Module() api.Module { return b.module }

// Name returns the host module name.
func (b *Binding) Name() string { return b.name }

// Realm returns the bound realm.
func (b *Binding) Realm() *realm.Realm { return b.realm }

// Attach makes guest's op_resolve export the realm resolver.
func (b *Binding) Attach(ctx context.Context, guest api.Module) error {
	fn := guest.ExportedFunction(FuncResolve)
	if fn == nil {
		return errors.NotFound(errors.PhaseBinding, "export", FuncResolve)
	}
	def := fn.Definition()
	if !slices.Equal(def.ParamTypes(), []api.ValueType{i32, i32, i64}) || len(def.ResultTypes()) != 0 {
		return errors.InvalidInput(errors.PhaseBinding, FuncResolve+" must have signature (i32, i32, i64) -> ()")
	}

	b.realm.SetResolver(func(c driver.Completion) {
		_, err := fn.Call(ctx,
			api.EncodeU32(uint32(c.ID)),
			api.EncodeU32(uint32(statusOf(c.Result))),
			b.encode(c.Result))
		if err != nil {
			b.logger.Warn("guest resolve failed",
				zap.Uint32("invocation", uint32(c.ID)),
				zap.Error(err))
		}
	})
	return nil
}

// Close drops the host module slot, closing the module. It is a no-op once the
// realm has been torn down.
func (b *Binding) Close() error {
	if b.realm.State() != realm.Active {
		return nil
	}
	slots := b.realm.Slots()
	if _, ok := slots.GetTyped(b.handle, SlotKind); !ok {
		return nil
	}
	_, _, err := slots.Remove(b.handle)
	return err
}

// Modules returns the host modules bound to r, oldest first.
func Modules(r *realm.Realm) []api.Module {
	var mods []api.Module
	r.Slots().Each(func(_ resource.Handle, kind resource.Kind, v any) bool {
		if s, ok := v.(moduleSlot); ok && kind == SlotKind {
			mods = append(mods, s.mod)
		}
		return true
	})
	return mods
}

func (b *Binding) call(ctx context.Context, _ api.Module, stack []uint64) {
	op := driver.OpID(api.DecodeU32(stack[0]))
	id := driver.InvocationID(api.DecodeU32(stack[1]))

	c, inline, known := b.realm.Invoke(ctx, op, id, b.decode(stack[2]))
	switch {
	case !known:
		b.logger.Debug("guest called unknown op", zap.Uint32("op", uint32(op)), zap.Int("ops", b.realm.OpCount()))
		stack[0] = api.EncodeU32(uint32(StatusUnknownOp))
	case !inline:
		stack[0] = api.EncodeU32(uint32(StatusPending))
	default:
		// re-enters the guest through op_resolve while op_call is still on its stack
		b.realm.Resolve(c)
		stack[0] = api.EncodeU32(uint32(statusOf(c.Result)))
	}
}

func (b *Binding) ref(_ context.Context, _ api.Module, stack []uint64) {
	b.realm.Ref(driver.InvocationID(api.DecodeU32(stack[0])))
}

func (b *Binding) unref(_ context.Context, _ api.Module, stack []uint64) {
	b.realm.Unref(driver.InvocationID(api.DecodeU32(stack[0])))
}

func (b *Binding) reject(_ context.Context, _ api.Module, stack []uint64) {
	b.realm.QueueRejection(driver.InvocationID(api.DecodeU32(stack[0])), b.decode(stack[1]))
}
