// Completion: 100% - Logical type system complete
package lego

import (
	"fmt"
	"strings"

	"github.com/xyproto/lego/internal/ssa"
)

// Kind is the category of a logical type
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt
	KindBool
	KindPtr
	KindRef
	KindSlice
	KindTuple
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindPtr:
		return "ptr"
	case KindRef:
		return "ref"
	case KindSlice:
		return "slice"
	case KindTuple:
		return "tuple"
	default:
		return "invalid"
	}
}

// Type is a logical type: an integer of a given width and signedness, a
// boolean, a raw pointer, a reference to a type, a slice or a tuple.
type Type struct {
	kind   Kind
	bits   uint8
	signed bool
	elem   *Type
	fields []Type
}

// pointerBits is the machine pointer width
const pointerBits = 64

var (
	U8    = Type{kind: KindInt, bits: 8}
	U16   = Type{kind: KindInt, bits: 16}
	U32   = Type{kind: KindInt, bits: 32}
	U64   = Type{kind: KindInt, bits: 64}
	Usize = Type{kind: KindInt, bits: pointerBits}
	I8    = Type{kind: KindInt, bits: 8, signed: true}
	I16   = Type{kind: KindInt, bits: 16, signed: true}
	I32   = Type{kind: KindInt, bits: 32, signed: true}
	I64   = Type{kind: KindInt, bits: 64, signed: true}
	Isize = Type{kind: KindInt, bits: pointerBits, signed: true}
	Bool  = Type{kind: KindBool, bits: 8}
	Ptr   = Type{kind: KindPtr, bits: pointerBits}
)

// RefTo returns the type of a reference to elem
func RefTo(elem Type) Type {
	return Type{kind: KindRef, bits: pointerBits, elem: &elem}
}

// SliceOf returns the type of a (length, pointer) slice of elem
func SliceOf(elem Type) Type {
	return Type{kind: KindSlice, elem: &elem}
}

// TupleOf returns a tuple of the given member types
func TupleOf(fields ...Type) Type {
	return Type{kind: KindTuple, fields: append([]Type(nil), fields...)}
}

func (t Type) Kind() Kind   { return t.kind }
func (t Type) Bits() int    { return int(t.bits) }
func (t Type) Signed() bool { return t.signed }

// Elem returns the referenced or element type of a Ref or Slice
func (t Type) Elem() Type {
	if t.elem == nil {
		return Type{}
	}
	return *t.elem
}

// Fields returns the members of a tuple
func (t Type) Fields() []Type {
	return append([]Type(nil), t.fields...)
}

// IsValid reports whether t is not the zero Type
func (t Type) IsValid() bool {
	return t.kind != KindInvalid
}

// IsScalar reports whether a value of type t fits in one slot
func (t Type) IsScalar() bool {
	switch t.kind {
	case KindInt, KindBool, KindPtr, KindRef:
		return true
	}
	return false
}

// IsPointer reports whether t is a raw pointer or a reference
func (t Type) IsPointer() bool {
	return t.kind == KindPtr || t.kind == KindRef
}

// Size returns the number of bytes a value of type t occupies in memory
func (t Type) Size() int64 {
	switch t.kind {
	case KindInt, KindBool, KindPtr, KindRef:
		return int64(t.bits) / 8
	case KindSlice:
		return 2 * pointerBits / 8
	case KindTuple:
		var n int64
		for _, f := range t.fields {
			n += f.Size()
		}
		return n
	}
	return 0
}

// Equal reports whether two types are identical
func (t Type) Equal(o Type) bool {
	if t.kind != o.kind || t.bits != o.bits || t.signed != o.signed || len(t.fields) != len(o.fields) {
		return false
	}
	if (t.elem == nil) != (o.elem == nil) {
		return false
	}
	if t.elem != nil && !t.elem.Equal(*o.elem) {
		return false
	}
	for i := range t.fields {
		if !t.fields[i].Equal(o.fields[i]) {
			return false
		}
	}
	return true
}

func (t Type) String() string {
	switch t.kind {
	case KindInt:
		if t.signed {
			return fmt.Sprintf("i%d", t.bits)
		}
		return fmt.Sprintf("u%d", t.bits)
	case KindBool:
		return "bool"
	case KindPtr:
		return "ptr"
	case KindRef:
		return "&" + t.elem.String()
	case KindSlice:
		return "[]" + t.elem.String()
	case KindTuple:
		names := make([]string, len(t.fields))
		for i, f := range t.fields {
			names[i] = f.String()
		}
		return "(" + strings.Join(names, ", ") + ")"
	}
	return "invalid"
}

// ssaType returns the machine type of a scalar
func (t Type) ssaType() ssa.Type {
	switch t.bits {
	case 8:
		return ssa.I8
	case 16:
		return ssa.I16
	case 32:
		return ssa.I32
	case 64:
		return ssa.I64
	}
	return ssa.Invalid
}

func typesEqual(a, b []Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func typeList(ts []Type) string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = t.String()
	}
	return "(" + strings.Join(names, ", ") + ")"
}
