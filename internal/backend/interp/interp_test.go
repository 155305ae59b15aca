package interp

import (
	"errors"
	"testing"

	"github.com/xyproto/lego/internal/backend"
	"github.com/xyproto/lego/internal/ssa"
)

type recordingHost struct {
	calls [][]uint64
}

func (h *recordingHost) Call(id uint32, args []uint64) ([]uint64, error) {
	h.calls = append(h.calls, append([]uint64{uint64(id)}, args...))
	var sum uint64
	for _, a := range args {
		sum += a
	}
	return []uint64{sum}, nil
}

func (h *recordingHost) CallAddr(addr uint64, sig ssa.Signature, args []uint64) ([]uint64, error) {
	if addr != 0x1000 {
		return nil, &backend.Trap{Code: ssa.TrapBadHostAddress}
	}
	return h.Call(0, args)
}

func compile(t *testing.T, b *ssa.Builder) backend.Executable {
	t.Helper()
	fn, err := b.Finalize()
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	exe, err := New().Compile(fn)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return exe
}

func TestEval(t *testing.T) {
	tests := []struct {
		name    string
		op      ssa.Opcode
		typ     ssa.Type
		x, y    uint64
		want    uint64
		trap    ssa.TrapCode
		trapped bool
	}{
		{"iadd wraps i8", ssa.OpIadd, ssa.I8, 200, 100, 44, 0, false},
		{"isub wraps i32", ssa.OpIsub, ssa.I32, 0, 1, 0xFFFFFFFF, 0, false},
		{"imul i16", ssa.OpImul, ssa.I16, 300, 300, (300 * 300) & 0xFFFF, 0, false},
		{"sdiv negative", ssa.OpSdiv, ssa.I32, uint64(uint32(0xFFFFFFF6)), 3, uint64(uint32(0xFFFFFFFD)), 0, false},
		{"sdiv min by -1", ssa.OpSdiv, ssa.I8, 0x80, 0xFF, 0, ssa.TrapIntegerOverflow, true},
		{"srem by -1", ssa.OpSrem, ssa.I64, 1 << 63, ^uint64(0), 0, 0, false},
		{"udiv by zero", ssa.OpUdiv, ssa.I64, 5, 0, 0, ssa.TrapDivisionByZero, true},
		{"urem", ssa.OpUrem, ssa.I64, 17, 5, 2, 0, false},
		{"ishl masks amount", ssa.OpIshl, ssa.I8, 1, 9, 2, 0, false},
		{"sshr keeps sign", ssa.OpSshr, ssa.I16, 0x8000, 15, 0xFFFF, 0, false},
		{"ushr", ssa.OpUshr, ssa.I16, 0x8000, 15, 1, 0, false},
		{"uadd overflow i64", ssa.OpUaddOverflowTrap, ssa.I64, ^uint64(0), 1, 0, ssa.TrapIntegerOverflow, true},
		{"uadd overflow i8", ssa.OpUaddOverflowTrap, ssa.I8, 255, 1, 0, ssa.TrapIntegerOverflow, true},
		{"uadd fits i8", ssa.OpUaddOverflowTrap, ssa.I8, 254, 1, 255, 0, false},
		{"usub borrow", ssa.OpUsubOverflowTrap, ssa.I32, 1, 2, 0, ssa.TrapIntegerOverflow, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, code, trapped := Eval(tt.op, tt.typ, tt.x, tt.y)
			if trapped != tt.trapped {
				t.Fatalf("Expected trapped=%v, got %v (%s)", tt.trapped, trapped, code)
			}
			if trapped && code != tt.trap {
				t.Fatalf("Expected trap %s, got %s", tt.trap, code)
			}
			if !trapped && got != tt.want {
				t.Fatalf("Expected %#x, got %#x", tt.want, got)
			}
		})
	}
}

func TestRunLoopWithBlockParams(t *testing.T) {
	// sum of 0..n-1 with the counter and accumulator as header params
	b := ssa.NewBuilder("sum", ssa.Signature{Params: []ssa.Type{ssa.I64}, Results: []ssa.Type{ssa.I64}})
	n := b.BlockParams(b.CurrentBlock())[0]
	header, body, exit := b.CreateBlock(), b.CreateBlock(), b.CreateBlock()
	i := b.AppendBlockParam(header, ssa.I64)
	acc := b.AppendBlockParam(header, ssa.I64)
	res := b.AppendBlockParam(exit, ssa.I64)
	zero := b.Iconst(ssa.I64, 0)
	b.Jump(header, zero, zero)
	b.SwitchToBlock(header)
	more := b.Icmp(ssa.CCUnsignedLess, i, n)
	b.Brif(more, body, nil, exit, []ssa.Value{acc})
	b.SealBlock(body)
	b.SwitchToBlock(body)
	b.Jump(header, b.Iadd(i, b.Iconst(ssa.I64, 1)), b.Iadd(acc, i))
	b.SealBlock(header)
	b.SealBlock(exit)
	b.SwitchToBlock(exit)
	b.Return(res)

	exe := compile(t, b)
	for _, n := range []uint64{0, 1, 2, 10, 100} {
		got, err := exe.Run([]uint64{n}, &recordingHost{})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if want := n * (n - 1) / 2; got[0] != want {
			t.Fatalf("Expected sum(%d) = %d, got %d", n, want, got[0])
		}
	}
}

func TestRunSwapsBlockArgumentsInParallel(t *testing.T) {
	b := ssa.NewBuilder("swap", ssa.Signature{Params: []ssa.Type{ssa.I64, ssa.I64}, Results: []ssa.Type{ssa.I64}})
	params := b.BlockParams(b.CurrentBlock())
	blk := b.CreateBlock()
	x := b.AppendBlockParam(blk, ssa.I64)
	y := b.AppendBlockParam(blk, ssa.I64)
	b.Jump(blk, params[1], params[0])
	b.SealBlock(blk)
	b.SwitchToBlock(blk)
	b.Return(b.Isub(x, y))

	got, err := compile(t, b).Run([]uint64{10, 3}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	var lo, hi uint64 = 3, 10
	if got[0] != lo-hi {
		t.Fatalf("Expected 3-10 wrapped, got %d", int64(got[0]))
	}
}

func TestRunHostCalls(t *testing.T) {
	sig := ssa.Signature{Params: []ssa.Type{ssa.I64, ssa.I64}, Results: []ssa.Type{ssa.I64}}
	b := ssa.NewBuilder("calls", ssa.Signature{Params: []ssa.Type{ssa.I64}, Results: []ssa.Type{ssa.I64}})
	addr := b.BlockParams(b.CurrentBlock())[0]
	ref := b.ImportFunction(ssa.ExtFunc{Name: "add", Sig: sig, ID: 7})
	one, two := b.Iconst(ssa.I64, 1), b.Iconst(ssa.I64, 2)
	direct := b.Call(ref, one, two)[0]
	indirect := b.CallIndirect(sig, addr, direct, two)[0]
	b.Return(indirect)
	exe := compile(t, b)

	host := &recordingHost{}
	got, err := exe.Run([]uint64{0x1000}, host)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got[0] != 5 {
		t.Fatalf("Expected 5, got %d", got[0])
	}
	if len(host.calls) != 2 || host.calls[0][0] != 7 {
		t.Fatalf("Expected two host calls starting with id 7, got %v", host.calls)
	}

	_, err = exe.Run([]uint64{0x2000}, &recordingHost{})
	var trap *backend.Trap
	if !errors.As(err, &trap) || trap.Code != ssa.TrapBadHostAddress {
		t.Fatalf("Expected a bad host address trap, got %v", err)
	}
}

func TestRunStackSlots(t *testing.T) {
	b := ssa.NewBuilder("slots", ssa.Signature{Params: []ssa.Type{ssa.I32}, Results: []ssa.Type{ssa.I64}})
	x := b.BlockParams(b.CurrentBlock())[0]
	ss := b.CreateStackSlot(16, 8)
	addr := b.StackAddr(ss, 0)
	b.Store(x, addr, 4)
	b.Store(b.Iconst(ssa.I8, 0x7F), addr, 0)
	wide := b.Load(ssa.I64, addr, 0)
	b.Return(wide)

	got, err := compile(t, b).Run([]uint64{0xAABBCCDD}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got[0]&0xFF != 0x7F || got[0]>>32 != 0xAABBCCDD {
		t.Fatalf("Expected the stored bytes to read back, got %#x", got[0])
	}
}

func TestRunTrapnz(t *testing.T) {
	b := ssa.NewBuilder("guard", ssa.Signature{Params: []ssa.Type{ssa.I64}, Results: []ssa.Type{ssa.I64}})
	x := b.BlockParams(b.CurrentBlock())[0]
	big := b.Icmp(ssa.CCUnsignedGreaterOrEqual, x, b.Iconst(ssa.I64, 4))
	b.Trapnz(big, ssa.TrapOutOfBounds)
	b.Return(x)
	exe := compile(t, b)

	if got, err := exe.Run([]uint64{3}, nil); err != nil || got[0] != 3 {
		t.Fatalf("Expected 3, got %v, %v", got, err)
	}
	_, err := exe.Run([]uint64{4}, nil)
	var trap *backend.Trap
	if !errors.As(err, &trap) || trap.Code != ssa.TrapOutOfBounds {
		t.Fatalf("Expected an out of bounds trap, got %v", err)
	}
}
