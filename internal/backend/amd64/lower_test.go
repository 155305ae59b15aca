package amd64

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/xyproto/lego/internal/backend"
	"github.com/xyproto/lego/internal/ssa"
)

func squareFunc(t *testing.T) *ssa.Function {
	b := ssa.NewBuilder("square", ssa.Signature{Params: []ssa.Type{ssa.I64}, Results: []ssa.Type{ssa.I64}})
	x := b.BlockParams(b.CurrentBlock())[0]
	b.Return(b.Imul(x, x))
	return finalize(t, b)
}

func TestLowerStartsWithEntryStub(t *testing.T) {
	p, err := lower(squareFunc(t), false)
	if err != nil {
		t.Fatalf("lower failed: %v", err)
	}
	stub := []byte{0x48, 0x89, 0xC7, 0xFF, 0xE3}
	if !bytes.HasPrefix(p.code, stub) {
		t.Fatalf("Expected code to start with % X, got % X", stub, p.code[:len(stub)])
	}
	if p.entry != uint32(len(stub)) {
		t.Fatalf("Expected entry block at offset %d, got %d", len(stub), p.entry)
	}
	if len(p.sites) != 1 || p.sites[0].kind != backend.ExitReturn {
		t.Fatalf("Expected a single return site, got %+v", p.sites)
	}
	if p.code[len(p.code)-1] != 0xC3 {
		t.Fatalf("Expected code to end with ret, got %X", p.code[len(p.code)-1])
	}
}

func TestLowerRecordsCallSites(t *testing.T) {
	sig := ssa.Signature{Params: []ssa.Type{ssa.I32}, Results: []ssa.Type{ssa.I32}}
	b := ssa.NewBuilder("caller", sig)
	x := b.BlockParams(b.CurrentBlock())[0]
	ref := b.ImportFunction(ssa.ExtFunc{Name: "inc", Sig: sig, ID: 7})
	r := b.Call(ref, x)[0]
	b.Return(b.UaddOverflowTrap(r, x))
	p, err := lower(finalize(t, b), false)
	if err != nil {
		t.Fatalf("lower failed: %v", err)
	}
	if len(p.sites) != 2 {
		t.Fatalf("Expected a call site and a return site, got %d sites", len(p.sites))
	}
	call := p.sites[0]
	if call.kind != backend.ExitCall || call.callee != 7 || call.indirect {
		t.Fatalf("Expected a direct call to 7, got %+v", call)
	}
	if call.resume == 0 || int(call.resume) >= len(p.code) {
		t.Fatalf("Expected a resume offset inside the code, got %d", call.resume)
	}
	if diff := cmp.Diff([]ssa.Type{ssa.I32}, call.types); diff != "" {
		t.Fatalf("Unexpected result types (-want +got):\n%s", diff)
	}
}

func TestProgramEncodingRoundTrip(t *testing.T) {
	sig := ssa.Signature{Params: []ssa.Type{ssa.I64, ssa.I8}, Results: []ssa.Type{ssa.I16}}
	b := ssa.NewBuilder("indirect", ssa.Signature{Params: []ssa.Type{ssa.I64}, Results: []ssa.Type{ssa.I16}})
	addr := b.BlockParams(b.CurrentBlock())[0]
	r := b.CallIndirect(sig, addr, addr, b.Iconst(ssa.I8, 3))[0]
	b.Return(r)
	fn := finalize(t, b)

	p, err := lower(fn, false)
	if err != nil {
		t.Fatalf("lower failed: %v", err)
	}
	got, err := decodeProgram(encodeProgram(p), p.frame)
	if err != nil {
		t.Fatalf("decodeProgram failed: %v", err)
	}
	if !bytes.Equal(p.code, got.code) || p.entry != got.entry {
		t.Fatalf("Expected identical code and entry after decoding")
	}
	if diff := cmp.Diff(p.sites, got.sites, cmp.AllowUnexported(site{}), cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("Sites differ after decoding (-want +got):\n%s", diff)
	}
	if !got.sites[0].indirect {
		t.Fatalf("Expected the first site to be an indirect call")
	}
}

func TestDecodeProgramRejectsTruncatedData(t *testing.T) {
	p, err := lower(squareFunc(t), false)
	if err != nil {
		t.Fatalf("lower failed: %v", err)
	}
	data := encodeProgram(p)
	for _, n := range []int{0, 1, len(data) / 2, len(data) - 1} {
		if _, err := decodeProgram(data[:n], p.frame); err == nil {
			t.Fatalf("Expected an error for %d of %d bytes", n, len(data))
		}
	}
}

func TestLayoutFrameReservesScratchAndStack(t *testing.T) {
	b := ssa.NewBuilder("frame", ssa.Signature{Results: []ssa.Type{ssa.I64}})
	ss := b.CreateStackSlot(12, 4)
	addr := b.StackAddr(ss, 4)
	merge := b.CreateBlock()
	p0 := b.AppendBlockParam(merge, ssa.I64)
	b.AppendBlockParam(merge, ssa.I64)
	b.AppendBlockParam(merge, ssa.I64)
	b.Jump(merge, addr, addr, addr)
	b.SealBlock(merge)
	b.SwitchToBlock(merge)
	b.Return(p0)
	fn := finalize(t, b)

	f, err := layoutFrame(fn)
	if err != nil {
		t.Fatalf("layoutFrame failed: %v", err)
	}
	if f.scratch != uint32(fn.NumValues()) || f.stack-f.scratch != 3 {
		t.Fatalf("Expected 3 scratch words after the values, got %d..%d", f.scratch, f.stack)
	}
	if f.words != f.stack+2 {
		t.Fatalf("Expected 12 stack bytes to take 2 words, got %d", f.words-f.stack)
	}
	if f.value(1) != 8 {
		t.Fatalf("Expected value 1 at byte offset 8, got %d", f.value(1))
	}
}
