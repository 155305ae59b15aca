// Completion: 100% - Arithmetic dispatch complete
package lego

import (
	"github.com/xyproto/lego/internal/ssa"
)

// ArithOp is a binary arithmetic or bitwise operation
type ArithOp uint8

const (
	OpAdd ArithOp = iota
	OpSub
	OpMul
	OpDiv
	OpRem
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
)

var arithNames = [...]string{"add", "sub", "mul", "div", "rem", "and", "or", "xor", "shl", "shr"}

func (op ArithOp) String() string {
	if int(op) < len(arithNames) {
		return arithNames[op]
	}
	return "unknown"
}

type arithKey struct {
	op     ArithOp
	signed bool
}

// arithTable selects the instruction for an operation by signedness.
// Unsigned addition and subtraction trap on overflow, signed ones wrap.
var arithTable = map[arithKey]ssa.Opcode{
	{OpAdd, false}: ssa.OpUaddOverflowTrap,
	{OpAdd, true}:  ssa.OpIadd,
	{OpSub, false}: ssa.OpUsubOverflowTrap,
	{OpSub, true}:  ssa.OpIsub,
	{OpMul, false}: ssa.OpImul,
	{OpMul, true}:  ssa.OpImul,
	{OpDiv, false}: ssa.OpUdiv,
	{OpDiv, true}:  ssa.OpSdiv,
	{OpRem, false}: ssa.OpUrem,
	{OpRem, true}:  ssa.OpSrem,
	{OpAnd, false}: ssa.OpBand,
	{OpAnd, true}:  ssa.OpBand,
	{OpOr, false}:  ssa.OpBor,
	{OpOr, true}:   ssa.OpBor,
	{OpXor, false}: ssa.OpBxor,
	{OpXor, true}:  ssa.OpBxor,
	{OpShl, false}: ssa.OpIshl,
	{OpShl, true}:  ssa.OpIshl,
	{OpShr, false}: ssa.OpUshr,
	{OpShr, true}:  ssa.OpSshr,
}

// Arith applies op to two operands of the same integer type. The bitwise
// operations also accept booleans.
func (b *Builder) Arith(op ArithOp, x, y Value) Value {
	xi, yi := b.use(x), b.use(y)
	if !x.typ.Equal(y.typ) {
		panic(typeMismatch(op.String()+" operands", x.typ, y.typ))
	}
	switch x.typ.kind {
	case KindInt:
	case KindBool:
		if op != OpAnd && op != OpOr && op != OpXor {
			panic(typeError("%s is not defined on bool", op))
		}
	default:
		panic(typeError("%s is not defined on %s", op, x.typ))
	}
	opc, ok := arithTable[arithKey{op, x.typ.signed}]
	if !ok {
		panic(typeError("unknown operation %s", op))
	}
	return b.wrap(b.fb.Binary(opc, xi, yi), x.typ)
}

func (b *Builder) Add(x, y Value) Value { return b.Arith(OpAdd, x, y) }
func (b *Builder) Sub(x, y Value) Value { return b.Arith(OpSub, x, y) }
func (b *Builder) Mul(x, y Value) Value { return b.Arith(OpMul, x, y) }
func (b *Builder) Div(x, y Value) Value { return b.Arith(OpDiv, x, y) }
func (b *Builder) Rem(x, y Value) Value { return b.Arith(OpRem, x, y) }
func (b *Builder) And(x, y Value) Value { return b.Arith(OpAnd, x, y) }
func (b *Builder) Or(x, y Value) Value  { return b.Arith(OpOr, x, y) }
func (b *Builder) Xor(x, y Value) Value { return b.Arith(OpXor, x, y) }
func (b *Builder) Shl(x, y Value) Value { return b.Arith(OpShl, x, y) }
func (b *Builder) Shr(x, y Value) Value { return b.Arith(OpShr, x, y) }

// WrappingAdd adds without the overflow trap of unsigned Add
func (b *Builder) WrappingAdd(x, y Value) Value {
	xi, yi := b.use(x), b.use(y)
	if !x.typ.Equal(y.typ) || x.typ.kind != KindInt {
		panic(typeMismatch("wrapping add operands", x.typ, y.typ))
	}
	return b.wrap(b.fb.Iadd(xi, yi), x.typ)
}

// Not is bitwise complement, or logical negation for booleans
func (b *Builder) Not(x Value) Value {
	xi := b.use(x)
	switch x.typ.kind {
	case KindBool:
		return b.wrap(b.fb.Bxor(xi, b.fb.Iconst(ssa.I8, 1)), Bool)
	case KindInt:
		return b.wrap(b.fb.Bnot(xi), x.typ)
	}
	panic(typeError("not is not defined on %s", x.typ))
}

// Neg negates a signed integer
func (b *Builder) Neg(x Value) Value {
	xi := b.use(x)
	if x.typ.kind != KindInt || !x.typ.signed {
		panic(typeError("neg is only defined on signed integers, got %s", x.typ))
	}
	return b.wrap(b.fb.Ineg(xi), x.typ)
}

// CmpOp is a comparison
type CmpOp uint8

const (
	CmpEq CmpOp = iota
	CmpNe
	CmpLt
	CmpLe
	CmpGt
	CmpGe
)

var cmpTable = [...][2]ssa.IntCC{
	CmpEq: {ssa.CCEqual, ssa.CCEqual},
	CmpNe: {ssa.CCNotEqual, ssa.CCNotEqual},
	CmpLt: {ssa.CCUnsignedLess, ssa.CCSignedLess},
	CmpLe: {ssa.CCUnsignedLessOrEqual, ssa.CCSignedLessOrEqual},
	CmpGt: {ssa.CCUnsignedGreater, ssa.CCSignedGreater},
	CmpGe: {ssa.CCUnsignedGreaterOrEqual, ssa.CCSignedGreaterOrEqual},
}

// Compare compares two operands of the same type and yields a Bool.
// Booleans and pointers only support equality.
func (b *Builder) Compare(op CmpOp, x, y Value) Value {
	xi, yi := b.use(x), b.use(y)
	if !x.typ.Equal(y.typ) && !(x.typ.IsPointer() && y.typ.IsPointer()) {
		panic(typeMismatch("comparison operands", x.typ, y.typ))
	}
	if int(op) >= len(cmpTable) {
		panic(typeError("unknown comparison %d", op))
	}
	if x.typ.kind != KindInt && op != CmpEq && op != CmpNe {
		panic(typeError("ordering is not defined on %s", x.typ))
	}
	signed := 0
	if x.typ.signed {
		signed = 1
	}
	return b.wrap(b.fb.Icmp(cmpTable[op][signed], xi, yi), Bool)
}

func (b *Builder) Eq(x, y Value) Value { return b.Compare(CmpEq, x, y) }
func (b *Builder) Ne(x, y Value) Value { return b.Compare(CmpNe, x, y) }
func (b *Builder) Lt(x, y Value) Value { return b.Compare(CmpLt, x, y) }
func (b *Builder) Le(x, y Value) Value { return b.Compare(CmpLe, x, y) }
func (b *Builder) Gt(x, y Value) Value { return b.Compare(CmpGt, x, y) }
func (b *Builder) Ge(x, y Value) Value { return b.Compare(CmpGe, x, y) }

// Convert converts x to type t. Integers are extended according to the
// signedness of x or truncated; booleans become 0 or 1; integers become
// booleans by comparing with zero. Pointers convert to and from 64-bit
// integers and to each other.
func (b *Builder) Convert(x Value, t Type) Value {
	xi := b.use(x)
	from := x.typ
	switch {
	case from.Equal(t):
		return x
	case t.kind == KindBool && from.kind == KindInt:
		return b.Ne(x, b.ConstU(from, 0))
	case from.IsScalar() && t.IsScalar() && from.bits == t.bits && t.kind != KindBool:
		// same width: only the logical type changes
		return b.wrap(xi, t)
	case (from.kind == KindInt || from.kind == KindBool) && t.kind == KindInt:
		switch {
		case t.bits < from.bits:
			return b.wrap(b.fb.Ireduce(t.ssaType(), xi), t)
		case from.signed:
			return b.wrap(b.fb.Sextend(t.ssaType(), xi), t)
		default:
			return b.wrap(b.fb.Uextend(t.ssaType(), xi), t)
		}
	case from.kind == KindInt && t.IsPointer():
		return b.wrap(b.fb.Uextend(ssa.I64, xi), t)
	}
	panic(typeError("cannot convert %s to %s", from, t))
}

// PtrAdd offsets a pointer by a byte count of integer type
func (b *Builder) PtrAdd(p, off Value) Value {
	pi := b.use(p)
	if !p.typ.IsPointer() {
		panic(typeError("PtrAdd base must be a pointer, got %s", p.typ))
	}
	o := b.Convert(off, U64)
	return b.wrap(b.fb.Iadd(pi, b.use(o)), p.typ)
}
