package llvmexport

import (
	"strings"
	"testing"

	"github.com/xyproto/lego/internal/ssa"
)

func sumTo(t *testing.T) *ssa.Function {
	t.Helper()
	b := ssa.NewBuilder("sum_to", ssa.Signature{Params: []ssa.Type{ssa.I64}, Results: []ssa.Type{ssa.I64}})
	n := b.BlockParams(b.CurrentBlock())[0]
	header, body, exit := b.CreateBlock(), b.CreateBlock(), b.CreateBlock()
	i := b.AppendBlockParam(header, ssa.I64)
	acc := b.AppendBlockParam(header, ssa.I64)
	res := b.AppendBlockParam(exit, ssa.I64)
	b.Jump(header, b.Iconst(ssa.I64, 0), b.Iconst(ssa.I64, 0))
	b.SwitchToBlock(header)
	b.Brif(b.Icmp(ssa.CCUnsignedLess, i, n), body, nil, exit, []ssa.Value{acc})
	b.SealBlock(body)
	b.SwitchToBlock(body)
	b.Jump(header, b.Iadd(i, b.Iconst(ssa.I64, 1)), b.UaddOverflowTrap(acc, i))
	b.SealBlock(header)
	b.SealBlock(exit)
	b.SwitchToBlock(exit)
	b.Return(res)
	fn, err := b.Finalize()
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	return fn
}

func TestExportLoop(t *testing.T) {
	text, err := String(sumTo(t))
	if err != nil {
		t.Fatalf("String failed: %v", err)
	}
	for _, want := range []string{"define i64 @sum_to(", "phi i64", "icmp ult", "br i1", "@" + TrapFunc, "unreachable", "ret i64"} {
		if !strings.Contains(text, want) {
			t.Fatalf("Expected %q in:\n%s", want, text)
		}
	}
}

func TestExportMergePhi(t *testing.T) {
	b := ssa.NewBuilder("pick", ssa.Signature{Params: []ssa.Type{ssa.I32, ssa.I32}, Results: []ssa.Type{ssa.I32}})
	p := b.BlockParams(b.CurrentBlock())
	merge := b.CreateBlock()
	res := b.AppendBlockParam(merge, ssa.I32)
	b.Brif(b.Icmp(ssa.CCSignedGreater, p[0], p[1]), merge, []ssa.Value{p[0]}, merge, []ssa.Value{p[1]})
	b.SealBlock(merge)
	b.SwitchToBlock(merge)
	b.Return(res)
	fn, err := b.Finalize()
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	m, err := Export(fn)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	text := m.String()
	for _, want := range []string{"icmp sgt i32", "phi i32 [ %p0, %edge1 ], [ %p1, %edge2 ]", "ret i32"} {
		if !strings.Contains(text, want) {
			t.Fatalf("Expected %q in:\n%s", want, text)
		}
	}
}

func TestExportCallsAndMemory(t *testing.T) {
	sig := ssa.Signature{Params: []ssa.Type{ssa.I32}, Results: []ssa.Type{ssa.I32, ssa.I8}}
	b := ssa.NewBuilder("calls", ssa.Signature{Params: []ssa.Type{ssa.I64, ssa.I32}, Results: []ssa.Type{ssa.I32, ssa.I8}})
	p := b.BlockParams(b.CurrentBlock())
	slot := b.CreateStackSlot(4, 4)
	addr := b.StackAddr(slot, 0)
	b.Store(p[1], addr, 0)
	v := b.Load(ssa.I32, addr, 0)
	ref := b.ImportFunction(ssa.ExtFunc{Name: "pair", Sig: sig, ID: 1})
	r := b.Call(ref, v)
	ind := b.CallIndirect(sig, p[0], r[0])
	b.Return(ind[0], ind[1])
	fn, err := b.Finalize()
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	m, err := Export(fn)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	// lego.trap, pair and calls
	if len(m.Funcs) != 3 {
		t.Fatalf("Expected 3 functions in the module, got %d", len(m.Funcs))
	}
	text := m.String()
	for _, want := range []string{"declare { i32, i8 } @pair(", "alloca [4 x i8]", "inttoptr", "store i32", "load i32", "extractvalue", "insertvalue"} {
		if !strings.Contains(text, want) {
			t.Fatalf("Expected %q in:\n%s", want, text)
		}
	}
}

func TestExportRejectsUnfinalized(t *testing.T) {
	if _, err := Export(&ssa.Function{Name: "raw"}); err == nil {
		t.Fatalf("Expected an error for an unfinalized function")
	}
}
