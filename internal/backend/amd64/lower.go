// Completion: 100% - SSA to x86-64 lowering complete
package amd64

import (
	"fmt"

	"github.com/xyproto/lego/internal/backend"
	"github.com/xyproto/lego/internal/ssa"
)

// site describes an exit from generated code back to Go: either a return,
// whose args are the returned values, or a call that Go performs before
// re-entering at resume.
type site struct {
	kind     backend.ExitKind
	args     []uint32 // frame words to read
	results  []uint32 // frame words to write back
	types    []ssa.Type
	callee   uint32
	indirect bool
	sig      ssa.Signature
	resume   uint32
}

// program is the lowered form of a function
type program struct {
	code  []byte
	entry uint32
	sites []site
	frame frameLayout
}

type lowering struct {
	fn      *ssa.Function
	asm     *Assembler
	frame   frameLayout
	blocks  map[ssa.Block]Label
	traps   map[ssa.TrapCode]Label
	sites   []site
	resumes []Label
}

// lower translates a finalized function into machine code. The code starts
// with a stub that loads the frame base and jumps to the requested address:
//
//	mov rdi, rax
//	jmp rbx
func lower(fn *ssa.Function, verbose bool) (*program, error) {
	if !fn.Finalized() {
		return nil, fmt.Errorf("amd64: function %s is not finalized", fn.Name)
	}
	frame, err := layoutFrame(fn)
	if err != nil {
		return nil, err
	}
	l := &lowering{
		fn:     fn,
		asm:    NewAssembler(fn.Name),
		frame:  frame,
		blocks: make(map[ssa.Block]Label),
		traps:  make(map[ssa.TrapCode]Label),
	}
	l.asm.Verbose = verbose

	l.asm.MovRegToReg(frameBase, RAX)
	l.asm.JmpReg(RBX)

	for _, blk := range fn.Layout() {
		l.blocks[blk] = l.asm.NewLabel()
	}
	for _, blk := range fn.Layout() {
		l.asm.Bind(l.blocks[blk])
		for _, inst := range fn.Block(blk).Insts {
			if err := l.lowerInst(inst); err != nil {
				return nil, err
			}
		}
	}
	for code := ssa.TrapUnreachable; code <= ssa.TrapBadHostAddress; code++ {
		if lbl, ok := l.traps[code]; ok {
			l.asm.Bind(lbl)
			l.exit(backend.ExitTrap, uint32(code))
		}
	}

	code, err := l.asm.Finish()
	if err != nil {
		return nil, err
	}
	for i, lbl := range l.resumes {
		if lbl >= 0 {
			l.sites[i].resume = uint32(l.asm.Offset(lbl))
		}
	}
	return &program{
		code:  code,
		entry: uint32(l.asm.Offset(l.blocks[fn.Entry()])),
		sites: l.sites,
		frame: frame,
	}, nil
}

func (l *lowering) trap(code ssa.TrapCode) Label {
	if lbl, ok := l.traps[code]; ok {
		return lbl
	}
	lbl := l.asm.NewLabel()
	l.traps[code] = lbl
	return lbl
}

func (l *lowering) exit(kind backend.ExitKind, index uint32) {
	l.asm.MovImm32(RAX, backend.ExitCode(kind, index))
	l.asm.Ret()
}

func (l *lowering) load(r Register, v ssa.Value) {
	l.asm.LoadSlot(r, l.frame.value(v))
}

func (l *lowering) store(v ssa.Value, r Register) {
	l.asm.StoreSlot(l.frame.value(v), r)
}

func (l *lowering) words(vals []ssa.Value) []uint32 {
	out := make([]uint32, len(vals))
	for i, v := range vals {
		out[i] = uint32(v)
	}
	return out
}

func (l *lowering) addSite(s site, resume bool) uint32 {
	idx := uint32(len(l.sites))
	l.sites = append(l.sites, s)
	lbl := Label(-1)
	if resume {
		lbl = l.asm.NewLabel()
	}
	l.resumes = append(l.resumes, lbl)
	return idx
}

func (l *lowering) lowerInst(inst *ssa.Inst) error {
	a := l.asm
	switch inst.Op {
	case ssa.OpIconst:
		a.MovImm64(RAX, uint64(inst.Imm))
		l.store(inst.Result(), RAX)

	case ssa.OpIadd, ssa.OpIsub, ssa.OpImul, ssa.OpBand, ssa.OpBor, ssa.OpBxor:
		l.load(RAX, inst.Args[0])
		l.load(RCX, inst.Args[1])
		switch inst.Op {
		case ssa.OpIadd:
			a.ALU(aluAdd, RAX, RCX)
		case ssa.OpIsub:
			a.ALU(aluSub, RAX, RCX)
		case ssa.OpImul:
			a.Imul(RAX, RCX)
		case ssa.OpBand:
			a.ALU(aluAnd, RAX, RCX)
		case ssa.OpBor:
			a.ALU(aluOr, RAX, RCX)
		case ssa.OpBxor:
			a.ALU(aluXor, RAX, RCX)
		}
		a.ZeroExtend(RAX, inst.Type)
		l.store(inst.Result(), RAX)

	case ssa.OpIshl, ssa.OpUshr, ssa.OpSshr:
		l.load(RAX, inst.Args[0])
		l.load(RCX, inst.Args[1])
		a.AndImm8(RCX, uint8(inst.Type.Bits()-1))
		switch inst.Op {
		case ssa.OpIshl:
			a.ShiftCL(shiftShl, RAX)
		case ssa.OpUshr:
			a.ShiftCL(shiftShr, RAX)
		case ssa.OpSshr:
			a.SignExtend(RAX, inst.Type)
			a.ShiftCL(shiftSar, RAX)
		}
		a.ZeroExtend(RAX, inst.Type)
		l.store(inst.Result(), RAX)

	case ssa.OpUdiv, ssa.OpUrem:
		l.load(RAX, inst.Args[0])
		l.load(RCX, inst.Args[1])
		a.ALU(aluTest, RCX, RCX)
		a.Jcc(CondEqual, l.trap(ssa.TrapDivisionByZero))
		a.XorZero32(RDX)
		a.Unary(f7Div, RCX)
		if inst.Op == ssa.OpUrem {
			a.MovRegToReg(RAX, RDX)
		}
		l.store(inst.Result(), RAX)

	case ssa.OpSdiv:
		l.load(RAX, inst.Args[0])
		l.load(RCX, inst.Args[1])
		a.SignExtend(RAX, inst.Type)
		a.SignExtend(RCX, inst.Type)
		a.ALU(aluTest, RCX, RCX)
		a.Jcc(CondEqual, l.trap(ssa.TrapDivisionByZero))
		divide := a.NewLabel()
		a.CmpImm8(RCX, -1)
		a.Jcc(CondNotEqual, divide)
		a.MovImm64(RDX, uint64(inst.Type.MinSigned()))
		a.ALU(aluCmp, RAX, RDX)
		a.Jcc(CondEqual, l.trap(ssa.TrapIntegerOverflow))
		a.Bind(divide)
		a.Cqo()
		a.Unary(f7Idiv, RCX)
		a.ZeroExtend(RAX, inst.Type)
		l.store(inst.Result(), RAX)

	case ssa.OpSrem:
		l.load(RAX, inst.Args[0])
		l.load(RCX, inst.Args[1])
		a.SignExtend(RAX, inst.Type)
		a.SignExtend(RCX, inst.Type)
		a.ALU(aluTest, RCX, RCX)
		a.Jcc(CondEqual, l.trap(ssa.TrapDivisionByZero))
		divide, done := a.NewLabel(), a.NewLabel()
		a.CmpImm8(RCX, -1)
		a.Jcc(CondNotEqual, divide)
		a.XorZero32(RAX)
		a.Jmp(done)
		a.Bind(divide)
		a.Cqo()
		a.Unary(f7Idiv, RCX)
		a.MovRegToReg(RAX, RDX)
		a.Bind(done)
		a.ZeroExtend(RAX, inst.Type)
		l.store(inst.Result(), RAX)

	case ssa.OpUaddOverflowTrap:
		l.load(RAX, inst.Args[0])
		l.load(RCX, inst.Args[1])
		a.ALU(aluAdd, RAX, RCX)
		if inst.Type == ssa.I64 {
			a.Jcc(CondBelow, l.trap(inst.Trap))
		} else {
			a.MovRegToReg(RDX, RAX)
			a.ShrImm(RDX, uint8(inst.Type.Bits()))
			a.ALU(aluTest, RDX, RDX)
			a.Jcc(CondNotEqual, l.trap(inst.Trap))
		}
		l.store(inst.Result(), RAX)

	case ssa.OpUsubOverflowTrap:
		l.load(RAX, inst.Args[0])
		l.load(RCX, inst.Args[1])
		a.ALU(aluSub, RAX, RCX)
		a.Jcc(CondBelow, l.trap(inst.Trap))
		l.store(inst.Result(), RAX)

	case ssa.OpBnot, ssa.OpIneg:
		l.load(RAX, inst.Args[0])
		if inst.Op == ssa.OpBnot {
			a.Unary(f7Not, RAX)
		} else {
			a.Unary(f7Neg, RAX)
		}
		a.ZeroExtend(RAX, inst.Type)
		l.store(inst.Result(), RAX)

	case ssa.OpIcmp:
		l.load(RAX, inst.Args[0])
		l.load(RCX, inst.Args[1])
		if inst.Cond.Signed() {
			a.SignExtend(RAX, inst.Type)
			a.SignExtend(RCX, inst.Type)
		}
		a.ALU(aluCmp, RAX, RCX)
		a.Setcc(conditionFor(inst.Cond), RAX)
		a.ZeroExtend(RAX, ssa.I8)
		l.store(inst.Result(), RAX)

	case ssa.OpUextend:
		l.load(RAX, inst.Args[0])
		l.store(inst.Result(), RAX)

	case ssa.OpSextend:
		l.load(RAX, inst.Args[0])
		a.SignExtend(RAX, ssa.Type(inst.Imm))
		a.ZeroExtend(RAX, inst.Type)
		l.store(inst.Result(), RAX)

	case ssa.OpIreduce:
		l.load(RAX, inst.Args[0])
		a.ZeroExtend(RAX, inst.Type)
		l.store(inst.Result(), RAX)

	case ssa.OpLoad:
		l.load(RCX, inst.Args[0])
		a.LoadMem(inst.Type, RAX, RCX, int32(inst.Imm))
		l.store(inst.Result(), RAX)

	case ssa.OpStore:
		l.load(RCX, inst.Args[0])
		l.load(RAX, inst.Args[1])
		a.StoreMem(inst.Type, RCX, int32(inst.Imm), RAX)

	case ssa.OpStackAddr:
		a.LeaSlot(RAX, l.frame.stackSlot(inst.Slot, inst.Imm))
		l.store(inst.Result(), RAX)

	case ssa.OpTrapnz:
		l.load(RAX, inst.Args[0])
		a.ALU(aluTest, RAX, RAX)
		a.Jcc(CondNotEqual, l.trap(inst.Trap))

	case ssa.OpCall, ssa.OpCallIndirect:
		s := site{kind: backend.ExitCall, args: l.words(inst.Args), results: l.words(inst.Results)}
		if inst.Op == ssa.OpCall {
			ext := l.fn.ExtFuncs[inst.Func]
			s.callee = ext.ID
			s.sig = ext.Sig
		} else {
			s.indirect = true
			s.sig = *inst.Sig
		}
		s.types = s.sig.Results
		idx := l.addSite(s, true)
		l.exit(backend.ExitCall, idx)
		a.Bind(l.resumes[idx])

	case ssa.OpReturn:
		idx := l.addSite(site{kind: backend.ExitReturn, args: l.words(inst.Args), types: l.fn.Sig.Results}, false)
		l.exit(backend.ExitReturn, idx)

	case ssa.OpTrap:
		l.exit(backend.ExitTrap, uint32(inst.Trap))

	case ssa.OpJump:
		l.edge(inst.Dests[0])

	case ssa.OpBrif:
		l.load(RAX, inst.Args[0])
		a.ALU(aluTest, RAX, RAX)
		elseEdge := a.NewLabel()
		a.Jcc(CondEqual, elseEdge)
		l.edge(inst.Dests[0])
		a.Bind(elseEdge)
		l.edge(inst.Dests[1])

	default:
		return fmt.Errorf("amd64: cannot lower %s", inst.Op)
	}
	return nil
}

// edge copies block arguments into the destination's params and jumps there.
// Arguments go through scratch slots so that a param may also be an argument.
func (l *lowering) edge(d ssa.BlockCall) {
	params := l.fn.Block(d.Block).Params
	switch len(d.Args) {
	case 0:
	case 1:
		l.load(RAX, d.Args[0])
		l.store(params[0], RAX)
	default:
		for i, arg := range d.Args {
			l.load(RAX, arg)
			l.asm.StoreSlot(l.frame.scratchSlot(i), RAX)
		}
		for i := range d.Args {
			l.asm.LoadSlot(RAX, l.frame.scratchSlot(i))
			l.store(params[i], RAX)
		}
	}
	l.asm.Jmp(l.blocks[d.Block])
}
