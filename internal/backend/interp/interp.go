// Completion: 100% - Portable executor complete

// Package interp executes finalized SSA functions directly. It runs on every
// platform and serves as the reference for the native backends.
package interp

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/xyproto/lego/internal/backend"
	"github.com/xyproto/lego/internal/ssa"
)

// Backend is the interpreting backend
type Backend struct{}

// New returns an interpreting backend
func New() *Backend {
	return &Backend{}
}

func (*Backend) Name() string { return "interp" }

func (*Backend) Close() error { return nil }

// Compile prepares fn for execution. fn must be finalized.
func (*Backend) Compile(fn *ssa.Function) (backend.Executable, error) {
	if !fn.Finalized() {
		return nil, fmt.Errorf("interp: function %s is not finalized", fn.Name)
	}
	offsets, size := fn.StackLayout()
	return &program{fn: fn, slotOffsets: offsets, stackWords: (size + 7) / 8}, nil
}

type program struct {
	fn          *ssa.Function
	slotOffsets []uint32
	stackWords  uint32
}

func (p *program) Size() int { return 0 }

// Run interprets the function
func (p *program) Run(args []uint64, host backend.Host) ([]uint64, error) {
	fn := p.fn
	if len(args) != len(fn.Sig.Params) {
		return nil, fmt.Errorf("interp: %s expects %d arguments, got %d", fn.Name, len(fn.Sig.Params), len(args))
	}
	vals := make([]uint64, fn.NumValues())
	stack := make([]uint64, p.stackWords+1)
	stackBase := uint64(uintptr(unsafe.Pointer(&stack[0])))
	defer runtime.KeepAlive(stack)

	blk := fn.Entry()
	for i, param := range fn.Block(blk).Params {
		vals[param] = ssa.Canon(fn.ValueType(param), args[i])
	}

	for {
		bd := fn.Block(blk)
		var next *ssa.BlockCall
		for _, inst := range bd.Insts {
			switch inst.Op {
			case ssa.OpIconst:
				vals[inst.Result()] = uint64(inst.Imm)
			case ssa.OpIcmp:
				x, y := vals[inst.Args[0]], vals[inst.Args[1]]
				vals[inst.Result()] = 0
				if inst.Cond.Eval(inst.Type, x, y) {
					vals[inst.Result()] = 1
				}
			case ssa.OpBnot:
				vals[inst.Result()] = ssa.Canon(inst.Type, ^vals[inst.Args[0]])
			case ssa.OpIneg:
				vals[inst.Result()] = ssa.Canon(inst.Type, -vals[inst.Args[0]])
			case ssa.OpUextend:
				vals[inst.Result()] = vals[inst.Args[0]]
			case ssa.OpSextend:
				from := ssa.Type(inst.Imm)
				vals[inst.Result()] = ssa.Canon(inst.Type, uint64(ssa.SignExtend(from, vals[inst.Args[0]])))
			case ssa.OpIreduce:
				vals[inst.Result()] = ssa.Canon(inst.Type, vals[inst.Args[0]])
			case ssa.OpLoad:
				vals[inst.Result()] = load(inst.Type, vals[inst.Args[0]]+uint64(inst.Imm))
			case ssa.OpStore:
				store(inst.Type, vals[inst.Args[0]]+uint64(inst.Imm), vals[inst.Args[1]])
			case ssa.OpStackAddr:
				vals[inst.Result()] = stackBase + uint64(p.slotOffsets[inst.Slot]) + uint64(inst.Imm)
			case ssa.OpTrapnz:
				if vals[inst.Args[0]] != 0 {
					return nil, &backend.Trap{Code: inst.Trap}
				}
			case ssa.OpCall, ssa.OpCallIndirect:
				callArgs := make([]uint64, 0, len(inst.Args))
				for _, a := range inst.Args {
					callArgs = append(callArgs, vals[a])
				}
				var results []uint64
				var err error
				var sig ssa.Signature
				if inst.Op == ssa.OpCall {
					ext := fn.ExtFuncs[inst.Func]
					sig = ext.Sig
					results, err = host.Call(ext.ID, callArgs)
				} else {
					sig = *inst.Sig
					results, err = host.CallAddr(callArgs[0], sig, callArgs[1:])
				}
				if err != nil {
					return nil, err
				}
				if len(results) != len(inst.Results) {
					return nil, fmt.Errorf("interp: callee returned %d results, expected %d", len(results), len(inst.Results))
				}
				for i, r := range inst.Results {
					vals[r] = ssa.Canon(sig.Results[i], results[i])
				}
			case ssa.OpJump:
				next = &inst.Dests[0]
			case ssa.OpBrif:
				if vals[inst.Args[0]] != 0 {
					next = &inst.Dests[0]
				} else {
					next = &inst.Dests[1]
				}
			case ssa.OpReturn:
				results := make([]uint64, len(inst.Args))
				for i, a := range inst.Args {
					results[i] = vals[a]
				}
				return results, nil
			case ssa.OpTrap:
				return nil, &backend.Trap{Code: inst.Trap}
			default:
				if !inst.Op.IsBinary() {
					return nil, fmt.Errorf("interp: unsupported instruction %s", inst.Op)
				}
				r, code, trapped := Eval(inst.Op, inst.Type, vals[inst.Args[0]], vals[inst.Args[1]])
				if trapped {
					return nil, &backend.Trap{Code: code}
				}
				vals[inst.Result()] = r
			}
		}
		if next == nil {
			return nil, fmt.Errorf("interp: block%d fell through", blk)
		}
		// block arguments are assigned in parallel
		params := fn.Block(next.Block).Params
		incoming := make([]uint64, len(next.Args))
		for i, a := range next.Args {
			incoming[i] = vals[a]
		}
		for i, v := range incoming {
			vals[params[i]] = v
		}
		blk = next.Block
	}
}

// Eval computes a binary instruction over canonical operands of type t
func Eval(op ssa.Opcode, t ssa.Type, x, y uint64) (uint64, ssa.TrapCode, bool) {
	mask := t.Mask()
	shift := y & uint64(t.Bits()-1)
	switch op {
	case ssa.OpIadd:
		return (x + y) & mask, 0, false
	case ssa.OpIsub:
		return (x - y) & mask, 0, false
	case ssa.OpImul:
		return (x * y) & mask, 0, false
	case ssa.OpBand:
		return x & y, 0, false
	case ssa.OpBor:
		return x | y, 0, false
	case ssa.OpBxor:
		return x ^ y, 0, false
	case ssa.OpIshl:
		return (x << shift) & mask, 0, false
	case ssa.OpUshr:
		return x >> shift, 0, false
	case ssa.OpSshr:
		return uint64(ssa.SignExtend(t, x)>>shift) & mask, 0, false
	case ssa.OpUdiv, ssa.OpUrem:
		if y == 0 {
			return 0, ssa.TrapDivisionByZero, true
		}
		if op == ssa.OpUdiv {
			return x / y, 0, false
		}
		return x % y, 0, false
	case ssa.OpSdiv:
		sx, sy := ssa.SignExtend(t, x), ssa.SignExtend(t, y)
		if sy == 0 {
			return 0, ssa.TrapDivisionByZero, true
		}
		if sy == -1 && sx == t.MinSigned() {
			return 0, ssa.TrapIntegerOverflow, true
		}
		return uint64(sx/sy) & mask, 0, false
	case ssa.OpSrem:
		sx, sy := ssa.SignExtend(t, x), ssa.SignExtend(t, y)
		if sy == 0 {
			return 0, ssa.TrapDivisionByZero, true
		}
		if sy == -1 {
			return 0, 0, false
		}
		return uint64(sx%sy) & mask, 0, false
	case ssa.OpUaddOverflowTrap:
		r := x + y
		if r < x || r > mask {
			return 0, ssa.TrapIntegerOverflow, true
		}
		return r, 0, false
	case ssa.OpUsubOverflowTrap:
		if y > x {
			return 0, ssa.TrapIntegerOverflow, true
		}
		return x - y, 0, false
	}
	return 0, ssa.TrapUnreachable, true
}

func load(t ssa.Type, addr uint64) uint64 {
	p := unsafe.Pointer(uintptr(addr))
	switch t {
	case ssa.I8:
		return uint64(*(*uint8)(p))
	case ssa.I16:
		return uint64(*(*uint16)(p))
	case ssa.I32:
		return uint64(*(*uint32)(p))
	default:
		return *(*uint64)(p)
	}
}

func store(t ssa.Type, addr, v uint64) {
	p := unsafe.Pointer(uintptr(addr))
	switch t {
	case ssa.I8:
		*(*uint8)(p) = uint8(v)
	case ssa.I16:
		*(*uint16)(p) = uint16(v)
	case ssa.I32:
		*(*uint32)(p) = uint32(v)
	default:
		*(*uint64)(p) = v
	}
}
