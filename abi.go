// Completion: 100% - ABI descriptors complete
package lego

import (
	"fmt"
	"reflect"
	"strings"
	"unsafe"

	"github.com/xyproto/lego/internal/ssa"
)

// Slot is one machine-word argument or result position
type Slot uint8

const (
	SlotI8 Slot = iota + 1
	SlotI16
	SlotI32
	SlotI64
)

func (s Slot) String() string {
	return s.ssaType().String()
}

func (s Slot) ssaType() ssa.Type {
	switch s {
	case SlotI8:
		return ssa.I8
	case SlotI16:
		return ssa.I16
	case SlotI32:
		return ssa.I32
	case SlotI64:
		return ssa.I64
	}
	return ssa.Invalid
}

func slotFor(bits int) Slot {
	switch bits {
	case 8:
		return SlotI8
	case 16:
		return SlotI16
	case 32:
		return SlotI32
	}
	return SlotI64
}

// AbiShape is the ordered list of slots a logical type occupies in a call
type AbiShape []Slot

// ShapeOf returns the slots of t. A slice occupies its length and then its
// data pointer, and a tuple concatenates the shapes of its members.
func ShapeOf(t Type) AbiShape {
	switch t.kind {
	case KindInt, KindBool, KindPtr, KindRef:
		return AbiShape{slotFor(int(t.bits))}
	case KindSlice:
		return AbiShape{slotFor(pointerBits), slotFor(pointerBits)}
	case KindTuple:
		var shape AbiShape
		for _, f := range t.fields {
			shape = append(shape, ShapeOf(f)...)
		}
		return shape
	}
	return nil
}

// Equal reports whether two shapes have the same slots
func (s AbiShape) Equal(o AbiShape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

func (s AbiShape) String() string {
	names := make([]string, len(s))
	for i, slot := range s {
		names[i] = slot.String()
	}
	return "[" + strings.Join(names, " ") + "]"
}

func (s AbiShape) ssaTypes() []ssa.Type {
	out := make([]ssa.Type, len(s))
	for i, slot := range s {
		out[i] = slot.ssaType()
	}
	return out
}

// Signature is the logical signature of a generated or host function.
// Results must be scalars.
type Signature struct {
	Params  []Type
	Results []Type
}

// Sig is shorthand for a Signature literal
func Sig(params []Type, results ...Type) Signature {
	return Signature{Params: params, Results: results}
}

// ParamShape concatenates the shapes of the parameters
func (s Signature) ParamShape() AbiShape {
	return ShapeOf(TupleOf(s.Params...))
}

// ResultShape concatenates the shapes of the results
func (s Signature) ResultShape() AbiShape {
	return ShapeOf(TupleOf(s.Results...))
}

func (s Signature) String() string {
	return typeList(s.Params) + " -> " + typeList(s.Results)
}

func (s Signature) machine() ssa.Signature {
	return ssa.Signature{Params: s.ParamShape().ssaTypes(), Results: s.ResultShape().ssaTypes()}
}

// validate checks that every parameter is representable and that every
// result is a scalar
func (s Signature) validate() error {
	for i, p := range s.Params {
		if !p.IsValid() || p.kind == KindTuple {
			return fmt.Errorf("parameter %d has unsupported type %s", i, p)
		}
	}
	for i, r := range s.Results {
		if !r.IsScalar() {
			return fmt.Errorf("result %d has type %s, but results must be scalars", i, r)
		}
	}
	return nil
}

var (
	unsafePointerType = reflect.TypeFor[unsafe.Pointer]()
	errorType         = reflect.TypeFor[error]()
)

// TypeOf maps a Go type onto a logical type
func TypeOf(rt reflect.Type) (Type, error) {
	if rt == unsafePointerType {
		return Ptr, nil
	}
	switch rt.Kind() {
	case reflect.Uint8:
		return U8, nil
	case reflect.Uint16:
		return U16, nil
	case reflect.Uint32:
		return U32, nil
	case reflect.Uint64:
		return U64, nil
	case reflect.Uint, reflect.Uintptr:
		return Usize, nil
	case reflect.Int8:
		return I8, nil
	case reflect.Int16:
		return I16, nil
	case reflect.Int32:
		return I32, nil
	case reflect.Int64:
		return I64, nil
	case reflect.Int:
		return Isize, nil
	case reflect.Bool:
		return Bool, nil
	case reflect.Pointer:
		elem, err := TypeOf(rt.Elem())
		if err != nil {
			// Pointers to structs and other opaque data are plain pointers
			return Ptr, nil
		}
		return RefTo(elem), nil
	case reflect.Slice:
		elem, err := TypeOf(rt.Elem())
		if err != nil || !elem.IsScalar() {
			return Type{}, fmt.Errorf("unsupported slice element type %s", rt.Elem())
		}
		return SliceOf(elem), nil
	}
	return Type{}, fmt.Errorf("unsupported Go type %s", rt)
}

// SignatureOf derives the logical signature of a Go function
func SignatureOf(fn any) (Signature, error) {
	rt := reflect.TypeOf(fn)
	if rt == nil || rt.Kind() != reflect.Func {
		return Signature{}, fmt.Errorf("%T is not a function", fn)
	}
	if rt.IsVariadic() {
		return Signature{}, fmt.Errorf("variadic function %s is not supported", rt)
	}
	var sig Signature
	for i := 0; i < rt.NumIn(); i++ {
		t, err := TypeOf(rt.In(i))
		if err != nil {
			return Signature{}, fmt.Errorf("parameter %d: %w", i, err)
		}
		sig.Params = append(sig.Params, t)
	}
	for i := 0; i < rt.NumOut(); i++ {
		if rt.Out(i) == errorType {
			return Signature{}, fmt.Errorf("result %d: host functions cannot return errors", i)
		}
		t, err := TypeOf(rt.Out(i))
		if err != nil {
			return Signature{}, fmt.Errorf("result %d: %w", i, err)
		}
		sig.Results = append(sig.Results, t)
	}
	if err := sig.validate(); err != nil {
		return Signature{}, err
	}
	return sig, nil
}
