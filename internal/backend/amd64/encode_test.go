package amd64

import (
	"bytes"
	"testing"

	"github.com/xyproto/lego/internal/ssa"
)

func assemble(t *testing.T, emit func(a *Assembler)) []byte {
	t.Helper()
	a := NewAssembler("test")
	emit(a)
	code, err := a.Finish()
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	return code
}

func TestEncodings(t *testing.T) {
	tests := []struct {
		name string
		emit func(a *Assembler)
		want []byte
	}{
		{"mov rdi, rax", func(a *Assembler) { a.MovRegToReg(RDI, RAX) }, []byte{0x48, 0x89, 0xC7}},
		{"jmp rbx", func(a *Assembler) { a.JmpReg(RBX) }, []byte{0xFF, 0xE3}},
		{"mov rax, [rdi+8]", func(a *Assembler) { a.LoadSlot(RAX, 8) }, []byte{0x48, 0x8B, 0x87, 0x08, 0, 0, 0}},
		{"mov rcx, [rdi+16]", func(a *Assembler) { a.LoadSlot(RCX, 16) }, []byte{0x48, 0x8B, 0x8F, 0x10, 0, 0, 0}},
		{"mov [rdi+24], rax", func(a *Assembler) { a.StoreSlot(24, RAX) }, []byte{0x48, 0x89, 0x87, 0x18, 0, 0, 0}},
		{"lea rax, [rdi+32]", func(a *Assembler) { a.LeaSlot(RAX, 32) }, []byte{0x48, 0x8D, 0x87, 0x20, 0, 0, 0}},
		{"mov rax, imm64", func(a *Assembler) { a.MovImm64(RAX, 0x1122334455667788) }, []byte{0x48, 0xB8, 0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11}},
		{"mov eax, imm32", func(a *Assembler) { a.MovImm32(RAX, 0x0201) }, []byte{0xB8, 0x01, 0x02, 0, 0}},
		{"add rax, rcx", func(a *Assembler) { a.ALU(aluAdd, RAX, RCX) }, []byte{0x48, 0x01, 0xC8}},
		{"sub rax, rcx", func(a *Assembler) { a.ALU(aluSub, RAX, RCX) }, []byte{0x48, 0x29, 0xC8}},
		{"cmp rax, rcx", func(a *Assembler) { a.ALU(aluCmp, RAX, RCX) }, []byte{0x48, 0x39, 0xC8}},
		{"test rcx, rcx", func(a *Assembler) { a.ALU(aluTest, RCX, RCX) }, []byte{0x48, 0x85, 0xC9}},
		{"imul rax, rcx", func(a *Assembler) { a.Imul(RAX, RCX) }, []byte{0x48, 0x0F, 0xAF, 0xC1}},
		{"div rcx", func(a *Assembler) { a.Unary(f7Div, RCX) }, []byte{0x48, 0xF7, 0xF1}},
		{"idiv rcx", func(a *Assembler) { a.Unary(f7Idiv, RCX) }, []byte{0x48, 0xF7, 0xF9}},
		{"neg rax", func(a *Assembler) { a.Unary(f7Neg, RAX) }, []byte{0x48, 0xF7, 0xD8}},
		{"not rax", func(a *Assembler) { a.Unary(f7Not, RAX) }, []byte{0x48, 0xF7, 0xD0}},
		{"shl rax, cl", func(a *Assembler) { a.ShiftCL(shiftShl, RAX) }, []byte{0x48, 0xD3, 0xE0}},
		{"sar rax, cl", func(a *Assembler) { a.ShiftCL(shiftSar, RAX) }, []byte{0x48, 0xD3, 0xF8}},
		{"shr rdx, 8", func(a *Assembler) { a.ShrImm(RDX, 8) }, []byte{0x48, 0xC1, 0xEA, 0x08}},
		{"and ecx, 63", func(a *Assembler) { a.AndImm8(RCX, 63) }, []byte{0x83, 0xE1, 0x3F}},
		{"cmp rcx, -1", func(a *Assembler) { a.CmpImm8(RCX, -1) }, []byte{0x48, 0x83, 0xF9, 0xFF}},
		{"xor edx, edx", func(a *Assembler) { a.XorZero32(RDX) }, []byte{0x31, 0xD2}},
		{"cqo", func(a *Assembler) { a.Cqo() }, []byte{0x48, 0x99}},
		{"setl al", func(a *Assembler) { a.Setcc(CondLess, RAX) }, []byte{0x0F, 0x9C, 0xC0}},
		{"movzx eax, al", func(a *Assembler) { a.ZeroExtend(RAX, ssa.I8) }, []byte{0x0F, 0xB6, 0xC0}},
		{"movzx eax, ax", func(a *Assembler) { a.ZeroExtend(RAX, ssa.I16) }, []byte{0x0F, 0xB7, 0xC0}},
		{"mov eax, eax", func(a *Assembler) { a.ZeroExtend(RAX, ssa.I32) }, []byte{0x89, 0xC0}},
		{"no-op zero extend i64", func(a *Assembler) { a.ZeroExtend(RAX, ssa.I64) }, []byte{}},
		{"movsx rcx, cl", func(a *Assembler) { a.SignExtend(RCX, ssa.I8) }, []byte{0x48, 0x0F, 0xBE, 0xC9}},
		{"movsxd rax, eax", func(a *Assembler) { a.SignExtend(RAX, ssa.I32) }, []byte{0x48, 0x63, 0xC0}},
		{"movzx eax, byte [rcx+4]", func(a *Assembler) { a.LoadMem(ssa.I8, RAX, RCX, 4) }, []byte{0x0F, 0xB6, 0x81, 0x04, 0, 0, 0}},
		{"mov rax, [rcx]", func(a *Assembler) { a.LoadMem(ssa.I64, RAX, RCX, 0) }, []byte{0x48, 0x8B, 0x81, 0, 0, 0, 0}},
		{"mov word [rcx+2], ax", func(a *Assembler) { a.StoreMem(ssa.I16, RCX, 2, RAX) }, []byte{0x66, 0x89, 0x81, 0x02, 0, 0, 0}},
		{"mov dword [rcx], eax", func(a *Assembler) { a.StoreMem(ssa.I32, RCX, 0, RAX) }, []byte{0x89, 0x81, 0, 0, 0, 0}},
		{"ret", func(a *Assembler) { a.Ret() }, []byte{0xC3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := assemble(t, tt.emit)
			if !bytes.Equal(got, tt.want) {
				t.Fatalf("Expected % X, got % X", tt.want, got)
			}
		})
	}
}

func TestLabelsPatchRelativeOffsets(t *testing.T) {
	code := assemble(t, func(a *Assembler) {
		back := a.NewLabel()
		fwd := a.NewLabel()
		a.Bind(back)
		a.Jcc(CondEqual, fwd) // 6 bytes
		a.Ret()               // 1 byte
		a.Bind(fwd)
		a.Jmp(back) // 5 bytes
	})
	want := []byte{
		0x0F, 0x84, 0x01, 0x00, 0x00, 0x00,
		0xC3,
		0xE9, 0xF4, 0xFF, 0xFF, 0xFF,
	}
	if !bytes.Equal(code, want) {
		t.Fatalf("Expected % X, got % X", want, code)
	}
}

func TestFinishRejectsUnboundLabel(t *testing.T) {
	a := NewAssembler("test")
	a.Jmp(a.NewLabel())
	if _, err := a.Finish(); err == nil {
		t.Fatalf("Expected an error for an unbound label")
	}
}

func TestWriteAfterFinishPanics(t *testing.T) {
	a := NewAssembler("test")
	a.Ret()
	if _, err := a.Finish(); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("Expected a panic when writing to a committed assembler")
		}
	}()
	a.Ret()
}

func TestConditionForComparisons(t *testing.T) {
	tests := map[ssa.IntCC]Condition{
		ssa.CCEqual:                  CondEqual,
		ssa.CCSignedLess:             CondLess,
		ssa.CCSignedGreaterOrEqual:   CondGreaterOrEqual,
		ssa.CCUnsignedLess:           CondBelow,
		ssa.CCUnsignedGreaterOrEqual: CondAboveOrEqual,
		ssa.CCUnsignedGreater:        CondAbove,
	}
	for cc, want := range tests {
		if got := conditionFor(cc); got != want {
			t.Fatalf("conditionFor(%s): expected %s, got %s", cc, want, got)
		}
	}
}
