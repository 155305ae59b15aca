// Completion: 100% - Compiled function handle complete
package lego

import (
	"fmt"
	"math"
	"reflect"
	"runtime"

	"github.com/xyproto/lego/internal/backend"
	"github.com/xyproto/lego/internal/llvmexport"
	"github.com/xyproto/lego/internal/ssa"
)

// Func is a compiled function. It stays callable until its Context is closed.
type Func struct {
	ctx   *Context
	name  string
	sig   Signature
	fn    *ssa.Function
	exec  backend.Executable
	index uint32
}

// Shape summarizes the control flow graph of a function: the number of
// blocks and the parameter count of each block in layout order
type Shape struct {
	Blocks int
	Params []int
}

func (f *Func) Name() string         { return f.name }
func (f *Func) Signature() Signature { return f.sig }

// CodeSize returns the number of bytes of machine code, or 0 when the
// function is interpreted
func (f *Func) CodeSize() int { return f.exec.Size() }

// Shape returns the block structure of the finalized function
func (f *Func) Shape() Shape {
	layout := f.fn.Layout()
	s := Shape{Blocks: len(layout), Params: make([]int, len(layout))}
	for i, blk := range layout {
		s.Params[i] = len(f.fn.Block(blk).Params)
	}
	return s
}

// Fingerprint hashes the printed IR. Identical builds have identical
// fingerprints.
func (f *Func) Fingerprint() uint64 {
	return f.fn.Fingerprint()
}

// String returns the SSA of the function
func (f *Func) String() string {
	return f.fn.String()
}

// LLVM renders the function as an LLVM IR module
func (f *Func) LLVM() (string, error) {
	return llvmexport.String(f.fn)
}

// Invoke runs the function. Arguments are Go values matching the parameter
// types: integers of any Go integer type that fit, bools, pointers and
// slices. Results come back as bool, unsafe.Pointer or the sized Go integer
// type of their width; Call converts them further.
// A trap of the generated code is returned as *TrapError. The code is
// released by Context.Close, after which Invoke returns ErrClosed.
func (f *Func) Invoke(args ...any) ([]any, error) {
	if f.ctx.closed.Load() {
		return nil, fmt.Errorf("%w: cannot invoke %s", ErrClosed, f.name)
	}
	if len(args) != len(f.sig.Params) {
		return nil, fmt.Errorf("lego: %s takes %d arguments, got %d", f.name, len(f.sig.Params), len(args))
	}
	slots := make([]uint64, 0, len(f.sig.ParamShape()))
	for i, arg := range args {
		var err error
		if slots, err = appendSlots(slots, f.sig.Params[i], arg); err != nil {
			return nil, fmt.Errorf("lego: %s argument %d: %w", f.name, i, err)
		}
	}
	raw, err := f.exec.Run(slots, hostBridge{f.ctx})
	runtime.KeepAlive(args)
	if err != nil {
		if trap, ok := isTrap(err); ok {
			f.ctx.stats.traps.Inc()
			return nil, &TrapError{Code: trap.Code, Func: f.name}
		}
		return nil, fmt.Errorf("lego: %s: %w", f.name, err)
	}
	out := make([]any, len(raw))
	for i, t := range f.sig.Results {
		out[i] = fromSlot(t, raw[i])
	}
	return out, nil
}

// Call invokes a function with exactly one result and returns it as R
func Call[R any](f *Func, args ...any) (R, error) {
	var zero R
	results, err := f.Invoke(args...)
	if err != nil {
		return zero, err
	}
	if len(results) != 1 {
		return zero, fmt.Errorf("lego: %s returns %d values, Call needs exactly one", f.name, len(results))
	}
	if r, ok := results[0].(R); ok {
		return r, nil
	}
	rv := reflect.ValueOf(results[0])
	if rt := reflect.TypeFor[R](); rv.CanConvert(rt) {
		return rv.Convert(rt).Interface().(R), nil
	}
	return zero, fmt.Errorf("lego: %s returns %T, not %s", f.name, results[0], reflect.TypeFor[R]())
}

func appendSlots(slots []uint64, t Type, arg any) ([]uint64, error) {
	v := reflect.ValueOf(arg)
	if !v.IsValid() {
		if t.IsPointer() {
			return append(slots, 0), nil
		}
		return nil, fmt.Errorf("nil for %s", t)
	}
	switch t.kind {
	case KindBool:
		if v.Kind() != reflect.Bool {
			return nil, fmt.Errorf("%s for %s", v.Type(), t)
		}
		if v.Bool() {
			return append(slots, 1), nil
		}
		return append(slots, 0), nil
	case KindInt:
		x, ok := intSlot(t, v)
		if !ok {
			return nil, fmt.Errorf("%v (%s) does not fit in %s", arg, v.Type(), t)
		}
		return append(slots, x), nil
	case KindPtr, KindRef:
		switch v.Kind() {
		case reflect.Pointer, reflect.UnsafePointer:
			return append(slots, uint64(v.Pointer())), nil
		case reflect.Uintptr:
			return append(slots, v.Uint()), nil
		}
		return nil, fmt.Errorf("%s for %s", v.Type(), t)
	case KindSlice:
		if v.Kind() != reflect.Slice || int64(v.Type().Elem().Size()) != t.Elem().Size() {
			return nil, fmt.Errorf("%s for %s", v.Type(), t)
		}
		return append(slots, uint64(v.Len()), uint64(v.Pointer())), nil
	}
	return nil, fmt.Errorf("unsupported parameter type %s", t)
}

// intSlot converts an integer of any Go integer type to a slot of t,
// reporting whether it is in range
func intSlot(t Type, v reflect.Value) (uint64, bool) {
	bits := uint(t.bits)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		x := v.Int()
		if t.signed {
			lo, hi := int64(-1)<<(bits-1), int64(math.MaxInt64)>>(64-bits)
			return uint64(x), x >= lo && x <= hi
		}
		return uint64(x), x >= 0 && (bits == 64 || uint64(x) < 1<<bits)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		x := v.Uint()
		if t.signed {
			return x, x <= uint64(math.MaxInt64)>>(64-bits)
		}
		return x, bits == 64 || x < 1<<bits
	}
	return 0, false
}

func fromSlot(t Type, x uint64) any {
	switch t.kind {
	case KindBool:
		return x != 0
	case KindPtr, KindRef:
		return slotPointer(x)
	}
	if t.signed {
		y := ssa.SignExtend(t.ssaType(), x)
		switch {
		case t.bits == 8:
			return int8(y)
		case t.bits == 16:
			return int16(y)
		case t.bits == 32:
			return int32(y)
		}
		return y
	}
	switch {
	case t.bits == 8:
		return uint8(x)
	case t.bits == 16:
		return uint16(x)
	case t.bits == 32:
		return uint32(x)
	}
	return x
}
