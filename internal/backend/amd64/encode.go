// Completion: 100% - Instruction encoders complete
package amd64

import "github.com/xyproto/lego/internal/ssa"

// Register is a general purpose x86-64 register
type Register struct {
	Name     string
	Encoding uint8
}

// Only registers the Go register ABI treats as scratch are used. RSP, RBP,
// R14 (current goroutine) and R15 are never touched.
var (
	RAX = Register{Name: "rax", Encoding: 0}
	RCX = Register{Name: "rcx", Encoding: 1}
	RDX = Register{Name: "rdx", Encoding: 2}
	RBX = Register{Name: "rbx", Encoding: 3}
	RDI = Register{Name: "rdi", Encoding: 7}
)

// frameBase holds the address of the frame while generated code runs
var frameBase = RDI

// Condition codes, as encoded in the low nibble of jcc and setcc
type Condition uint8

const (
	CondBelow          Condition = 0x2 // unsigned <, carry set
	CondAboveOrEqual   Condition = 0x3
	CondEqual          Condition = 0x4
	CondNotEqual       Condition = 0x5
	CondBelowOrEqual   Condition = 0x6
	CondAbove          Condition = 0x7
	CondLess           Condition = 0xC
	CondGreaterOrEqual Condition = 0xD
	CondLessOrEqual    Condition = 0xE
	CondGreater        Condition = 0xF
)

var conditionNames = map[Condition]string{
	CondBelow:          "b",
	CondAboveOrEqual:   "ae",
	CondEqual:          "e",
	CondNotEqual:       "ne",
	CondBelowOrEqual:   "be",
	CondAbove:          "a",
	CondLess:           "l",
	CondGreaterOrEqual: "ge",
	CondLessOrEqual:    "le",
	CondGreater:        "g",
}

func (c Condition) String() string {
	return conditionNames[c]
}

// conditionFor maps an IR comparison to the flag condition after cmp x, y
func conditionFor(cc ssa.IntCC) Condition {
	switch cc {
	case ssa.CCEqual:
		return CondEqual
	case ssa.CCNotEqual:
		return CondNotEqual
	case ssa.CCSignedLess:
		return CondLess
	case ssa.CCSignedLessOrEqual:
		return CondLessOrEqual
	case ssa.CCSignedGreater:
		return CondGreater
	case ssa.CCSignedGreaterOrEqual:
		return CondGreaterOrEqual
	case ssa.CCUnsignedLess:
		return CondBelow
	case ssa.CCUnsignedLessOrEqual:
		return CondBelowOrEqual
	case ssa.CCUnsignedGreater:
		return CondAbove
	default:
		return CondAboveOrEqual
	}
}

const rexW = 0x48

func modrm(mod, reg, rm uint8) uint8 {
	return mod<<6 | (reg&7)<<3 | rm&7
}

// LoadSlot generates MOV dst, [rdi+disp]
func (a *Assembler) LoadSlot(dst Register, disp int32) {
	a.logf("mov %s, [rdi%+d]", dst.Name, disp)
	a.emit(rexW, 0x8B, modrm(2, dst.Encoding, frameBase.Encoding))
	a.emit32(uint32(disp))
}

// StoreSlot generates MOV [rdi+disp], src
func (a *Assembler) StoreSlot(disp int32, src Register) {
	a.logf("mov [rdi%+d], %s", disp, src.Name)
	a.emit(rexW, 0x89, modrm(2, src.Encoding, frameBase.Encoding))
	a.emit32(uint32(disp))
}

// LeaSlot generates LEA dst, [rdi+disp]
func (a *Assembler) LeaSlot(dst Register, disp int32) {
	a.logf("lea %s, [rdi%+d]", dst.Name, disp)
	a.emit(rexW, 0x8D, modrm(2, dst.Encoding, frameBase.Encoding))
	a.emit32(uint32(disp))
}

// MovImm64 generates MOV dst, imm64
func (a *Assembler) MovImm64(dst Register, imm uint64) {
	a.logf("mov %s, %#x", dst.Name, imm)
	a.emit(rexW, 0xB8+dst.Encoding)
	a.emit64(imm)
}

// MovImm32 generates MOV dst32, imm32 (zero-extends into the full register)
func (a *Assembler) MovImm32(dst Register, imm uint32) {
	a.logf("mov %s, %#x", dst.Name, imm)
	a.emit(0xB8 + dst.Encoding)
	a.emit32(imm)
}

// MovRegToReg generates MOV dst, src
func (a *Assembler) MovRegToReg(dst, src Register) {
	a.logf("mov %s, %s", dst.Name, src.Name)
	a.emit(rexW, 0x89, modrm(3, src.Encoding, dst.Encoding))
}

// ALU opcodes of the "op r/m64, r64" form
const (
	aluAdd  = 0x01
	aluOr   = 0x09
	aluAnd  = 0x21
	aluSub  = 0x29
	aluXor  = 0x31
	aluCmp  = 0x39
	aluTest = 0x85
)

var aluNames = map[uint8]string{
	aluAdd: "add", aluOr: "or", aluAnd: "and", aluSub: "sub",
	aluXor: "xor", aluCmp: "cmp", aluTest: "test",
}

// ALU generates op dst, src
func (a *Assembler) ALU(op uint8, dst, src Register) {
	a.logf("%s %s, %s", aluNames[op], dst.Name, src.Name)
	a.emit(rexW, op, modrm(3, src.Encoding, dst.Encoding))
}

// XorZero32 generates XOR r32, r32 which clears the full register
func (a *Assembler) XorZero32(r Register) {
	a.logf("xor %s, %s (32)", r.Name, r.Name)
	a.emit(aluXor, modrm(3, r.Encoding, r.Encoding))
}

// Imul generates IMUL dst, src
func (a *Assembler) Imul(dst, src Register) {
	a.logf("imul %s, %s", dst.Name, src.Name)
	a.emit(rexW, 0x0F, 0xAF, modrm(3, dst.Encoding, src.Encoding))
}

// Group 3 extensions of opcode F7
const (
	f7Not  = 2
	f7Neg  = 3
	f7Div  = 6
	f7Idiv = 7
)

// Unary generates NOT/NEG/DIV/IDIV on r
func (a *Assembler) Unary(ext uint8, r Register) {
	a.logf("f7 /%d %s", ext, r.Name)
	a.emit(rexW, 0xF7, modrm(3, ext, r.Encoding))
}

// Group 2 extensions of the shift opcodes
const (
	shiftShl = 4
	shiftShr = 5
	shiftSar = 7
)

// ShiftCL generates SHL/SHR/SAR r, cl
func (a *Assembler) ShiftCL(ext uint8, r Register) {
	a.logf("shift /%d %s, cl", ext, r.Name)
	a.emit(rexW, 0xD3, modrm(3, ext, r.Encoding))
}

// ShrImm generates SHR r, imm8
func (a *Assembler) ShrImm(r Register, imm uint8) {
	a.logf("shr %s, %d", r.Name, imm)
	a.emit(rexW, 0xC1, modrm(3, shiftShr, r.Encoding), imm)
}

// AndImm8 generates AND r32, imm8 (sign-extended immediate)
func (a *Assembler) AndImm8(r Register, imm uint8) {
	a.logf("and %s, %d (32)", r.Name, imm)
	a.emit(0x83, modrm(3, 4, r.Encoding), imm)
}

// CmpImm8 generates CMP r, imm8 (sign-extended immediate)
func (a *Assembler) CmpImm8(r Register, imm int8) {
	a.logf("cmp %s, %d", r.Name, imm)
	a.emit(rexW, 0x83, modrm(3, 7, r.Encoding), uint8(imm))
}

// Cqo sign-extends rax into rdx:rax
func (a *Assembler) Cqo() {
	a.logf("cqo")
	a.emit(rexW, 0x99)
}

// Setcc generates SETcc on the low byte of r (rax, rcx, rdx or rbx)
func (a *Assembler) Setcc(c Condition, r Register) {
	a.logf("set%s %s", c, r.Name)
	a.emit(0x0F, 0x90+uint8(c), modrm(3, 0, r.Encoding))
}

// ZeroExtend truncates r to the width of t, clearing the upper bits
func (a *Assembler) ZeroExtend(r Register, t ssa.Type) {
	switch t {
	case ssa.I8:
		a.logf("movzx %s, byte", r.Name)
		a.emit(0x0F, 0xB6, modrm(3, r.Encoding, r.Encoding))
	case ssa.I16:
		a.logf("movzx %s, word", r.Name)
		a.emit(0x0F, 0xB7, modrm(3, r.Encoding, r.Encoding))
	case ssa.I32:
		a.logf("mov %s, %s (32)", r.Name, r.Name)
		a.emit(0x89, modrm(3, r.Encoding, r.Encoding))
	}
}

// SignExtend sign-extends the low bits of r for type t to 64 bits
func (a *Assembler) SignExtend(r Register, t ssa.Type) {
	switch t {
	case ssa.I8:
		a.logf("movsx %s, byte", r.Name)
		a.emit(rexW, 0x0F, 0xBE, modrm(3, r.Encoding, r.Encoding))
	case ssa.I16:
		a.logf("movsx %s, word", r.Name)
		a.emit(rexW, 0x0F, 0xBF, modrm(3, r.Encoding, r.Encoding))
	case ssa.I32:
		a.logf("movsxd %s, dword", r.Name)
		a.emit(rexW, 0x63, modrm(3, r.Encoding, r.Encoding))
	}
}

// LoadMem generates a zero-extending load of width t from [base+disp] into dst
func (a *Assembler) LoadMem(t ssa.Type, dst, base Register, disp int32) {
	a.logf("load.%s %s, [%s%+d]", t, dst.Name, base.Name, disp)
	m := modrm(2, dst.Encoding, base.Encoding)
	switch t {
	case ssa.I8:
		a.emit(0x0F, 0xB6, m)
	case ssa.I16:
		a.emit(0x0F, 0xB7, m)
	case ssa.I32:
		a.emit(0x8B, m)
	default:
		a.emit(rexW, 0x8B, m)
	}
	a.emit32(uint32(disp))
}

// StoreMem generates a store of the low t bits of src to [base+disp]
func (a *Assembler) StoreMem(t ssa.Type, base Register, disp int32, src Register) {
	a.logf("store.%s [%s%+d], %s", t, base.Name, disp, src.Name)
	m := modrm(2, src.Encoding, base.Encoding)
	switch t {
	case ssa.I8:
		a.emit(0x88, m)
	case ssa.I16:
		a.emit(0x66, 0x89, m)
	case ssa.I32:
		a.emit(0x89, m)
	default:
		a.emit(rexW, 0x89, m)
	}
	a.emit32(uint32(disp))
}

// Jcc generates a conditional near jump to l
func (a *Assembler) Jcc(c Condition, l Label) {
	a.logf("j%s L%d", c, l)
	a.emit(0x0F, 0x80+uint8(c))
	a.rel32(l)
}

// Jmp generates an unconditional near jump to l
func (a *Assembler) Jmp(l Label) {
	a.logf("jmp L%d", l)
	a.emit(0xE9)
	a.rel32(l)
}

// JmpReg generates JMP r
func (a *Assembler) JmpReg(r Register) {
	a.logf("jmp %s", r.Name)
	a.emit(0xFF, modrm(3, 4, r.Encoding))
}

// Ret generates RET
func (a *Assembler) Ret() {
	a.logf("ret")
	a.emit(0xC3)
}
