// Completion: 100% - Host function bridge complete
package lego

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"unsafe"

	"github.com/xyproto/lego/internal/backend"
	"github.com/xyproto/lego/internal/engine"
	"github.com/xyproto/lego/internal/ssa"
)

// compiledFlag marks callee ids that refer to functions compiled by the same
// Context instead of host functions
const compiledFlag = 1 << 31

// closureName matches the runtime names of function literals and method values
var closureName = regexp.MustCompile(`\.func\d+(\.\d+)*$|-fm$`)

// HostFunc is a Go function bound for calls from generated code
type HostFunc struct {
	name string
	fn   reflect.Value
	addr uint64
	sig  Signature
	id   uint32
	ins  []reflect.Type
	outs []reflect.Type
}

// Name returns the name the function was registered under
func (h *HostFunc) Name() string { return h.name }

// Signature returns the logical signature derived from the Go function
func (h *HostFunc) Signature() Signature { return h.sig }

// Addr returns the code address that identifies the function in indirect calls
func (h *HostFunc) Addr() uint64 { return h.addr }

type hostRegistry struct {
	mu     sync.RWMutex
	byName map[string]*HostFunc
	byAddr map[uint64]*HostFunc
	list   []*HostFunc
}

func newHostRegistry() *hostRegistry {
	return &hostRegistry{
		byName: make(map[string]*HostFunc),
		byAddr: make(map[uint64]*HostFunc),
	}
}

func (r *hostRegistry) lookup(name string) (*HostFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byName[name]
	return h, ok
}

func (r *hostRegistry) lookupAddr(addr uint64) (*HostFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byAddr[addr]
	return h, ok
}

func (r *hostRegistry) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.list))
	for _, h := range r.list {
		out = append(out, h.name)
	}
	return out
}

func (r *hostRegistry) at(id uint32) (*HostFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.list) {
		return nil, false
	}
	return r.list[id], true
}

// bind registers fn under name. Registering the same function twice under
// the same name returns the existing binding.
func (r *hostRegistry) bind(name string, fn any) (*HostFunc, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return nil, fmt.Errorf("%T is not a function", fn)
	}
	addr := uint64(v.Pointer())
	if f := runtime.FuncForPC(uintptr(addr)); f != nil && closureName.MatchString(f.Name()) {
		return nil, fmt.Errorf("%s is a function literal or method value; only top-level functions can be bound", f.Name())
	}
	sig, err := SignatureOf(fn)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.byName[name]; ok {
		if h.addr == addr {
			return h, nil
		}
		return nil, fmt.Errorf("host function %q is already bound to another function", name)
	}
	h := &HostFunc{
		name: name,
		fn:   v,
		addr: addr,
		sig:  sig,
		id:   uint32(len(r.list)),
	}
	rt := v.Type()
	for i := 0; i < rt.NumIn(); i++ {
		h.ins = append(h.ins, rt.In(i))
	}
	for i := 0; i < rt.NumOut(); i++ {
		h.outs = append(h.outs, rt.Out(i))
	}
	r.byName[name] = h
	if _, taken := r.byAddr[addr]; !taken {
		r.byAddr[addr] = h
	}
	r.list = append(r.list, h)
	return h, nil
}

// funcName returns the short runtime name of a function
func funcName(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return fmt.Sprintf("%T", fn)
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return fmt.Sprintf("func@%#x", v.Pointer())
	}
	name := f.Name()
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func slotPointer(x uint64) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(&x))
}

// invoke is the trampoline: it converts ABI slots into Go arguments, calls
// the function and converts its results back into slots
func (h *HostFunc) invoke(args []uint64) (results []uint64, err error) {
	if want := len(h.sig.ParamShape()); len(args) != want {
		return nil, fmt.Errorf("host function %s expects %d slots, got %d", h.name, want, len(args))
	}
	in := make([]reflect.Value, len(h.ins))
	k := 0
	for i, rt := range h.ins {
		switch {
		case rt == unsafePointerType:
			in[i] = reflect.ValueOf(slotPointer(args[k]))
		case rt.Kind() == reflect.Slice:
			n, p := args[k], args[k+1]
			k++
			if n == 0 || p == 0 {
				in[i] = reflect.Zero(rt)
			} else {
				in[i] = reflect.SliceAt(rt.Elem(), slotPointer(p), int(n))
			}
		case rt.Kind() == reflect.Pointer:
			if args[k] == 0 {
				in[i] = reflect.Zero(rt)
			} else {
				in[i] = reflect.NewAt(rt.Elem(), slotPointer(args[k]))
			}
		default:
			v := reflect.New(rt).Elem()
			t := h.sig.Params[i]
			switch {
			case t.kind == KindBool:
				v.SetBool(args[k] != 0)
			case t.signed:
				v.SetInt(ssa.SignExtend(t.ssaType(), args[k]))
			default:
				v.SetUint(args[k])
			}
			in[i] = v
		}
		k++
	}

	defer func() {
		if r := recover(); r != nil {
			results, err = nil, fmt.Errorf("host function %s panicked: %v", h.name, r)
		}
	}()
	out := h.fn.Call(in)

	results = make([]uint64, len(out))
	for i, v := range out {
		switch v.Kind() {
		case reflect.Bool:
			if v.Bool() {
				results[i] = 1
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			results[i] = uint64(v.Int())
		case reflect.Pointer, reflect.UnsafePointer:
			results[i] = uint64(v.Pointer())
		default:
			results[i] = v.Uint()
		}
	}
	return results, nil
}

// hostBridge services the calls generated code makes to the Go side
type hostBridge struct {
	ctx *Context
}

func (hb hostBridge) Call(id uint32, args []uint64) ([]uint64, error) {
	hb.ctx.stats.hostCalls.Inc()
	if id&compiledFlag != 0 {
		f, ok := hb.ctx.funcAt(id &^ compiledFlag)
		if !ok {
			return nil, fmt.Errorf("lego: unknown compiled function %d", id&^compiledFlag)
		}
		if hb.ctx.closed.Load() {
			return nil, fmt.Errorf("%w: cannot call %s", ErrClosed, f.name)
		}
		return f.exec.Run(args, hb)
	}
	h, ok := hb.ctx.hosts.at(id)
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownHost, id)
	}
	return h.invoke(args)
}

// CallAddr resolves an indirect callee. An address that is not a bound host
// function, or one bound with another signature, is a trap.
func (hb hostBridge) CallAddr(addr uint64, sig ssa.Signature, args []uint64) ([]uint64, error) {
	hb.ctx.stats.hostCalls.Inc()
	h, ok := hb.ctx.hosts.lookupAddr(addr)
	if !ok || !h.sig.machine().Equal(sig) {
		return nil, &backend.Trap{Code: ssa.TrapBadHostAddress}
	}
	return h.invoke(args)
}

// bindHost returns the binding of fn, creating it under its runtime name on
// first use
func (b *Builder) bindHost(fn any) *HostFunc {
	v := reflect.ValueOf(fn)
	if v.Kind() == reflect.Func && !v.IsNil() {
		if h, ok := b.ctx.hosts.lookupAddr(uint64(v.Pointer())); ok {
			return h
		}
	}
	h, err := b.ctx.RegisterHost(funcName(fn), fn)
	if err != nil {
		panic(hostError(err, "cannot bind %s: %v", funcName(fn), err))
	}
	return h
}

func (b *Builder) importHost(h *HostFunc) ssa.FuncRef {
	if ref, ok := b.imports[h.id]; ok {
		return ref
	}
	ref := b.fb.ImportFunction(ssa.ExtFunc{Name: h.name, Sig: h.sig.machine(), ID: h.id})
	b.imports[h.id] = ref
	return ref
}

// CallHost calls the host function registered under name
func (b *Builder) CallHost(name string, args ...any) []Value {
	h, ok := b.ctx.hosts.lookup(name)
	if !ok {
		err := hostError(ErrUnknownHost, "no host function named %q", name)
		if similar := engine.FindSimilar(name, b.ctx.hosts.names(), 3); len(similar) > 0 {
			err.Suggestion = fmt.Sprintf("did you mean '%s'?", strings.Join(similar, "', '"))
		}
		err.Help = "register it with Context.RegisterHost or WithHost"
		panic(err)
	}
	return b.callHost(h, args)
}

// Call calls a top-level Go function, binding it on first use
func (b *Builder) Call(fn any, args ...any) []Value {
	return b.callHost(b.bindHost(fn), args)
}

func (b *Builder) callHost(h *HostFunc, args []any) []Value {
	ops := b.operands(h.name, h.sig, args)
	ref := b.importHost(h)
	return b.wrapResults(b.fb.Call(ref, ops...), h.sig.Results)
}

// HostAddr binds fn and returns its address as a pointer constant, for use
// with CallIndirect
func (b *Builder) HostAddr(fn any) Value {
	h := b.bindHost(fn)
	return b.wrap(b.fb.Iconst(ssa.I64, int64(h.addr)), Ptr)
}

// CallIndirect calls the function at addr through sig. The address is
// resolved when the call runs; one that is not a bound host function with
// this signature traps with TrapBadHostAddress.
func (b *Builder) CallIndirect(sig Signature, addr Value, args ...any) []Value {
	a := b.use(addr)
	if !addr.typ.IsPointer() && !(addr.typ.kind == KindInt && addr.typ.bits == pointerBits) {
		panic(typeError("indirect call target must be a pointer, got %s", addr.typ))
	}
	if err := sig.validate(); err != nil {
		panic(typeError("indirect call: %v", err))
	}
	ops := b.operands("indirect call", sig, args)
	return b.wrapResults(b.fb.CallIndirect(sig.machine(), a, ops...), sig.Results)
}

// CallFunc calls a function compiled earlier by the same Context
func (b *Builder) CallFunc(f *Func, args ...any) []Value {
	if f == nil || f.ctx != b.ctx {
		panic(contractError("CallFunc needs a function compiled by this context"))
	}
	id := compiledFlag | f.index
	ref, ok := b.imports[id]
	if !ok {
		ref = b.fb.ImportFunction(ssa.ExtFunc{Name: f.name, Sig: f.sig.machine(), ID: id})
		b.imports[id] = ref
	}
	ops := b.operands(f.name, f.sig, args)
	return b.wrapResults(b.fb.Call(ref, ops...), f.sig.Results)
}

func (b *Builder) wrapResults(raw []ssa.Value, types []Type) []Value {
	out := make([]Value, len(types))
	for i, t := range types {
		out[i] = b.wrap(raw[i], t)
	}
	return out
}

// operands flattens call arguments into ABI slots and checks them against
// the parameter shape of sig
func (b *Builder) operands(callee string, sig Signature, args []any) []ssa.Value {
	var ids []ssa.Value
	var shape AbiShape
	push := func(v Value) {
		ids = append(ids, b.use(v))
		shape = append(shape, ShapeOf(v.typ)...)
	}
	for i, arg := range args {
		switch a := arg.(type) {
		case Value:
			push(a)
		case Var:
			push(a.Get(b))
		case Slice:
			push(a.len)
			push(a.ptr)
		case Ref:
			push(a.Addr(b))
		case RefMut:
			push(a.Addr(b))
		case StructRef:
			push(a.base)
		default:
			panic(typeError("argument %d of %s has unsupported operand type %T", i, callee, arg))
		}
	}
	if want := sig.ParamShape(); !shape.Equal(want) {
		panic(typeMismatch("arguments of "+callee, want, shape))
	}
	return ids
}

// isTrap reports whether err is a trap of generated code
func isTrap(err error) (*backend.Trap, bool) {
	var trap *backend.Trap
	ok := errors.As(err, &trap)
	return trap, ok
}
