package lego

import (
	"github.com/xyproto/lego/internal/ssa"
)

// Value is an immutable typed handle to one SSA definition. It is only valid
// inside the Builder that produced it.
type Value struct {
	id     ssa.Value
	typ    Type
	serial uint64
}

// Type returns the logical type of v
func (v Value) Type() Type {
	return v.typ
}

// IsValid reports whether v was produced by a Builder
func (v Value) IsValid() bool {
	return v.serial != 0
}

// Var is a mutable local. Reading it yields the latest definition on the
// current path; writing it records a new definition without any store.
type Var struct {
	id     ssa.Variable
	typ    Type
	serial uint64
}

// Type returns the logical type of the variable
func (v Var) Type() Type {
	return v.typ
}

// NewVar declares a variable initialized to init
func (b *Builder) NewVar(init Value) Var {
	b.use(init)
	v := b.DeclareVar(init.typ)
	v.Set(b, init)
	return v
}

// DeclareVar declares a variable of type t. Reading it before the first
// write yields zero.
func (b *Builder) DeclareVar(t Type) Var {
	if !t.IsScalar() {
		panic(typeError("variables must have a scalar type, got %s", t))
	}
	return Var{id: b.fb.DeclareVar(t.ssaType()), typ: t, serial: b.serial}
}

// Get reads the variable
func (v Var) Get(b *Builder) Value {
	b.ownVar(v)
	return b.wrap(b.fb.UseVar(v.id), v.typ)
}

// Set writes the variable
func (v Var) Set(b *Builder, x Value) {
	b.ownVar(v)
	b.use(x)
	if !x.typ.Equal(v.typ) {
		panic(typeMismatch("assignment to variable", v.typ, x.typ))
	}
	b.fb.DefVar(v.id, x.id)
}

// Const materializes x as a constant of type t. The value is truncated to
// the width of t.
func (b *Builder) Const(t Type, x int64) Value {
	return b.ConstU(t, uint64(x))
}

// ConstU materializes x as a constant of type t
func (b *Builder) ConstU(t Type, x uint64) Value {
	if !t.IsScalar() {
		panic(typeError("constants must have a scalar type, got %s", t))
	}
	if t.kind == KindBool && x != 0 {
		x = 1
	}
	return b.wrap(b.fb.Iconst(t.ssaType(), int64(x)), t)
}

func (b *Builder) U8(x uint8) Value     { return b.ConstU(U8, uint64(x)) }
func (b *Builder) U16(x uint16) Value   { return b.ConstU(U16, uint64(x)) }
func (b *Builder) U32(x uint32) Value   { return b.ConstU(U32, uint64(x)) }
func (b *Builder) U64(x uint64) Value   { return b.ConstU(U64, x) }
func (b *Builder) Usize(x uint64) Value { return b.ConstU(Usize, x) }
func (b *Builder) I8(x int8) Value      { return b.Const(I8, int64(x)) }
func (b *Builder) I16(x int16) Value    { return b.Const(I16, int64(x)) }
func (b *Builder) I32(x int32) Value    { return b.Const(I32, int64(x)) }
func (b *Builder) I64(x int64) Value    { return b.Const(I64, x) }
func (b *Builder) Isize(x int64) Value  { return b.Const(Isize, x) }

// Bool materializes a boolean constant
func (b *Builder) Bool(x bool) Value {
	if x {
		return b.ConstU(Bool, 1)
	}
	return b.ConstU(Bool, 0)
}

// wrap tags an SSA value with its logical type and this builder's serial
func (b *Builder) wrap(id ssa.Value, t Type) Value {
	return Value{id: id, typ: t, serial: b.serial}
}

// use checks that v belongs to this builder and returns its SSA id
func (b *Builder) use(v Value) ssa.Value {
	if v.serial == 0 {
		panic(contractError("use of an uninitialized Value"))
	}
	if v.serial != b.serial {
		panic(contractError("Value %s was created by another function build", v.typ))
	}
	return v.id
}

func (b *Builder) ownVar(v Var) {
	if v.serial != b.serial {
		panic(contractError("variable of type %s was declared by another function build", v.typ))
	}
}

func (b *Builder) ids(vs []Value) []ssa.Value {
	out := make([]ssa.Value, len(vs))
	for i, v := range vs {
		out[i] = b.use(v)
	}
	return out
}

func typesOf(vs []Value) []Type {
	out := make([]Type, len(vs))
	for i, v := range vs {
		out[i] = v.typ
	}
	return out
}
