// Completion: 100% - IR type system complete
package ssa

import "fmt"

// Type is the machine type of an SSA value. Only integer widths exist at this
// level; booleans are I8 values holding 0 or 1 and pointers are I64.
type Type uint8

const (
	Invalid Type = iota
	I8
	I16
	I32
	I64
)

// Bits returns the width of the type in bits
func (t Type) Bits() int {
	switch t {
	case I8:
		return 8
	case I16:
		return 16
	case I32:
		return 32
	case I64:
		return 64
	default:
		return 0
	}
}

// Bytes returns the width of the type in bytes
func (t Type) Bytes() int {
	return t.Bits() / 8
}

// Mask returns the bit mask that keeps a value canonical for the type
func (t Type) Mask() uint64 {
	if t == I64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(t.Bits())) - 1
}

// MinSigned returns the most negative signed value of the type, sign-extended to 64 bits
func (t Type) MinSigned() int64 {
	return -1 << uint(t.Bits()-1)
}

func (t Type) String() string {
	switch t {
	case I8:
		return "i8"
	case I16:
		return "i16"
	case I32:
		return "i32"
	case I64:
		return "i64"
	default:
		return "invalid"
	}
}

// TypeForBits returns the integer type with the given width
func TypeForBits(bits int) (Type, error) {
	switch bits {
	case 8:
		return I8, nil
	case 16:
		return I16, nil
	case 32:
		return I32, nil
	case 64:
		return I64, nil
	default:
		return Invalid, fmt.Errorf("no integer type with %d bits", bits)
	}
}

// Canon truncates x to the width of t
func Canon(t Type, x uint64) uint64 {
	return x & t.Mask()
}

// SignExtend interprets the low bits of x as a signed value of type t
func SignExtend(t Type, x uint64) int64 {
	shift := uint(64 - t.Bits())
	return int64(x<<shift) >> shift
}

// IntCC is an integer comparison condition
type IntCC uint8

const (
	CCEqual IntCC = iota
	CCNotEqual
	CCSignedLess
	CCSignedLessOrEqual
	CCSignedGreater
	CCSignedGreaterOrEqual
	CCUnsignedLess
	CCUnsignedLessOrEqual
	CCUnsignedGreater
	CCUnsignedGreaterOrEqual
)

func (cc IntCC) String() string {
	switch cc {
	case CCEqual:
		return "eq"
	case CCNotEqual:
		return "ne"
	case CCSignedLess:
		return "slt"
	case CCSignedLessOrEqual:
		return "sle"
	case CCSignedGreater:
		return "sgt"
	case CCSignedGreaterOrEqual:
		return "sge"
	case CCUnsignedLess:
		return "ult"
	case CCUnsignedLessOrEqual:
		return "ule"
	case CCUnsignedGreater:
		return "ugt"
	case CCUnsignedGreaterOrEqual:
		return "uge"
	default:
		return "?"
	}
}

// Signed reports whether the condition compares operands as signed integers
func (cc IntCC) Signed() bool {
	switch cc {
	case CCSignedLess, CCSignedLessOrEqual, CCSignedGreater, CCSignedGreaterOrEqual:
		return true
	}
	return false
}

// Eval applies the condition to two canonical operands of type t
func (cc IntCC) Eval(t Type, x, y uint64) bool {
	sx, sy := SignExtend(t, x), SignExtend(t, y)
	switch cc {
	case CCEqual:
		return x == y
	case CCNotEqual:
		return x != y
	case CCSignedLess:
		return sx < sy
	case CCSignedLessOrEqual:
		return sx <= sy
	case CCSignedGreater:
		return sx > sy
	case CCSignedGreaterOrEqual:
		return sx >= sy
	case CCUnsignedLess:
		return x < y
	case CCUnsignedLessOrEqual:
		return x <= y
	case CCUnsignedGreater:
		return x > y
	case CCUnsignedGreaterOrEqual:
		return x >= y
	}
	return false
}

// TrapCode identifies why generated code stopped
type TrapCode uint8

const (
	TrapUnreachable TrapCode = iota
	TrapIntegerOverflow
	TrapDivisionByZero
	TrapOutOfBounds
	TrapBadHostAddress
)

func (c TrapCode) String() string {
	switch c {
	case TrapUnreachable:
		return "unreachable"
	case TrapIntegerOverflow:
		return "integer overflow"
	case TrapDivisionByZero:
		return "integer division by zero"
	case TrapOutOfBounds:
		return "index out of bounds"
	case TrapBadHostAddress:
		return "bad host function address"
	default:
		return "unknown trap"
	}
}

// Opcode selects an instruction
type Opcode uint8

const (
	OpIconst Opcode = iota
	OpIadd
	OpIsub
	OpImul
	OpUdiv
	OpSdiv
	OpUrem
	OpSrem
	OpBand
	OpBor
	OpBxor
	OpIshl
	OpUshr
	OpSshr
	OpBnot
	OpIneg
	OpIcmp
	OpUextend
	OpSextend
	OpIreduce
	OpUaddOverflowTrap
	OpUsubOverflowTrap
	OpLoad
	OpStore
	OpStackAddr
	OpCall
	OpCallIndirect
	OpTrapnz
	OpJump
	OpBrif
	OpReturn
	OpTrap
)

var opcodeNames = [...]string{
	OpIconst:           "iconst",
	OpIadd:             "iadd",
	OpIsub:             "isub",
	OpImul:             "imul",
	OpUdiv:             "udiv",
	OpSdiv:             "sdiv",
	OpUrem:             "urem",
	OpSrem:             "srem",
	OpBand:             "band",
	OpBor:              "bor",
	OpBxor:             "bxor",
	OpIshl:             "ishl",
	OpUshr:             "ushr",
	OpSshr:             "sshr",
	OpBnot:             "bnot",
	OpIneg:             "ineg",
	OpIcmp:             "icmp",
	OpUextend:          "uextend",
	OpSextend:          "sextend",
	OpIreduce:          "ireduce",
	OpUaddOverflowTrap: "uadd_overflow_trap",
	OpUsubOverflowTrap: "usub_overflow_trap",
	OpLoad:             "load",
	OpStore:            "store",
	OpStackAddr:        "stack_addr",
	OpCall:             "call",
	OpCallIndirect:     "call_indirect",
	OpTrapnz:           "trapnz",
	OpJump:             "jump",
	OpBrif:             "brif",
	OpReturn:           "return",
	OpTrap:             "trap",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return fmt.Sprintf("op%d", op)
}

// IsTerminator reports whether the opcode ends a block
func (op Opcode) IsTerminator() bool {
	switch op {
	case OpJump, OpBrif, OpReturn, OpTrap:
		return true
	}
	return false
}

// IsBinary reports whether the opcode takes two operands of the same type
func (op Opcode) IsBinary() bool {
	switch op {
	case OpIadd, OpIsub, OpImul, OpUdiv, OpSdiv, OpUrem, OpSrem,
		OpBand, OpBor, OpBxor, OpIshl, OpUshr, OpSshr,
		OpUaddOverflowTrap, OpUsubOverflowTrap:
		return true
	}
	return false
}
