// Completion: 100% - LLVM IR export complete

// Package llvmexport translates finalized SSA functions into LLVM IR text, so
// that generated code can be inspected or fed to the LLVM toolchain.
//
// Block parameters become phi nodes. Traps call the external function
// lego.trap with the trap code, followed by unreachable.
package llvmexport

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"github.com/xyproto/lego/internal/ssa"
)

// TrapFunc is the name of the external function that receives trap codes
const TrapFunc = "lego.trap"

type exporter struct {
	fn      *ssa.Function
	m       *ir.Module
	f       *ir.Func
	trapFn  *ir.Func
	externs []*ir.Func
	blocks  map[ssa.Block]*ir.Block
	phis    map[ssa.Value]*ir.InstPhi
	vals    map[ssa.Value]value.Value
	slots   []value.Value
	cur     *ir.Block
	splits  int
}

// Export translates fn into a new LLVM module
func Export(fn *ssa.Function) (m *ir.Module, err error) {
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, fmt.Errorf("llvmexport: function %s: %v", fn.Name, r)
		}
	}()
	if !fn.Finalized() {
		return nil, fmt.Errorf("llvmexport: function %s is not finalized", fn.Name)
	}
	x := &exporter{
		fn:     fn,
		m:      ir.NewModule(),
		blocks: make(map[ssa.Block]*ir.Block),
		phis:   make(map[ssa.Value]*ir.InstPhi),
		vals:   make(map[ssa.Value]value.Value),
	}
	x.trapFn = x.m.NewFunc(TrapFunc, types.Void, ir.NewParam("code", types.I32))
	for _, ext := range fn.ExtFuncs {
		x.externs = append(x.externs, x.declare(ext.Name, ext.Sig))
	}

	var params []*ir.Param
	for i, t := range fn.Sig.Params {
		params = append(params, ir.NewParam(fmt.Sprintf("p%d", i), intType(t)))
	}
	x.f = x.m.NewFunc(fn.Name, resultType(fn.Sig.Results), params...)

	// Create every block and its phis first so that back edges can refer to them
	order := fn.ReversePostorder()
	for _, blk := range order {
		x.blocks[blk] = x.f.NewBlock(fmt.Sprintf("block%d", blk))
	}
	for i, v := range fn.Block(fn.Entry()).Params {
		x.vals[v] = params[i]
	}
	for _, blk := range order {
		if blk == fn.Entry() {
			continue
		}
		for _, v := range fn.Block(blk).Params {
			phi := &ir.InstPhi{Typ: intType(fn.ValueType(v))}
			x.blocks[blk].Insts = append(x.blocks[blk].Insts, phi)
			x.phis[v] = phi
			x.vals[v] = phi
		}
	}

	entry := x.blocks[fn.Entry()]
	for _, sd := range fn.StackSlots {
		x.slots = append(x.slots, entry.NewAlloca(types.NewArray(uint64(max(sd.Size, 1)), types.I8)))
	}

	for _, blk := range order {
		x.cur = x.blocks[blk]
		for _, inst := range fn.Block(blk).Insts {
			if err := x.inst(inst); err != nil {
				return nil, err
			}
		}
	}
	return x.m, nil
}

// String returns the LLVM IR text of fn
func String(fn *ssa.Function) (string, error) {
	m, err := Export(fn)
	if err != nil {
		return "", err
	}
	return m.String(), nil
}

func intType(t ssa.Type) *types.IntType {
	switch t {
	case ssa.I8:
		return types.I8
	case ssa.I16:
		return types.I16
	case ssa.I32:
		return types.I32
	default:
		return types.I64
	}
}

func resultType(results []ssa.Type) types.Type {
	switch len(results) {
	case 0:
		return types.Void
	case 1:
		return intType(results[0])
	}
	fields := make([]types.Type, len(results))
	for i, t := range results {
		fields[i] = intType(t)
	}
	return types.NewStruct(fields...)
}

func funcType(sig ssa.Signature) *types.FuncType {
	params := make([]types.Type, len(sig.Params))
	for i, t := range sig.Params {
		params[i] = intType(t)
	}
	return types.NewFunc(resultType(sig.Results), params...)
}

func (x *exporter) declare(name string, sig ssa.Signature) *ir.Func {
	var params []*ir.Param
	for i, t := range sig.Params {
		params = append(params, ir.NewParam(fmt.Sprintf("a%d", i), intType(t)))
	}
	return x.m.NewFunc(name, resultType(sig.Results), params...)
}

func (x *exporter) val(v ssa.Value) value.Value {
	return x.vals[v]
}

func (x *exporter) args(vs []ssa.Value) []value.Value {
	out := make([]value.Value, len(vs))
	for i, v := range vs {
		out[i] = x.val(v)
	}
	return out
}

func (x *exporter) i64(n int64) *constant.Int {
	return constant.NewInt(types.I64, n)
}

// trapIf branches to a fresh trap block when cond holds and continues in a
// new block otherwise.
func (x *exporter) trapIf(cond value.Value, code ssa.TrapCode) {
	x.splits++
	trap := x.f.NewBlock(fmt.Sprintf("trap%d", x.splits))
	cont := x.f.NewBlock(fmt.Sprintf("cont%d", x.splits))
	x.cur.NewCondBr(cond, trap, cont)
	x.emitTrap(trap, code)
	x.cur = cont
}

func (x *exporter) emitTrap(blk *ir.Block, code ssa.TrapCode) {
	blk.NewCall(x.trapFn, constant.NewInt(types.I32, int64(code)))
	blk.NewUnreachable()
}

func (x *exporter) pointer(addr value.Value, off int64, t ssa.Type) value.Value {
	if off != 0 {
		addr = x.cur.NewAdd(addr, x.i64(off))
	}
	return x.cur.NewIntToPtr(addr, types.NewPointer(intType(t)))
}

func (x *exporter) results(call value.Value, vs []ssa.Value) {
	if len(vs) == 1 {
		x.vals[vs[0]] = call
		return
	}
	for i, v := range vs {
		x.vals[v] = x.cur.NewExtractValue(call, uint64(i))
	}
}

// edge feeds block arguments into the destination phis and returns the block
// to branch to.
func (x *exporter) edge(from *ir.Block, d ssa.BlockCall) *ir.Block {
	params := x.fn.Block(d.Block).Params
	for i, arg := range d.Args {
		phi := x.phis[params[i]]
		phi.Incs = append(phi.Incs, ir.NewIncoming(x.val(arg), from))
	}
	return x.blocks[d.Block]
}

var predicates = map[ssa.IntCC]enum.IPred{
	ssa.CCEqual:                  enum.IPredEQ,
	ssa.CCNotEqual:               enum.IPredNE,
	ssa.CCSignedLess:             enum.IPredSLT,
	ssa.CCSignedLessOrEqual:      enum.IPredSLE,
	ssa.CCSignedGreater:          enum.IPredSGT,
	ssa.CCSignedGreaterOrEqual:   enum.IPredSGE,
	ssa.CCUnsignedLess:           enum.IPredULT,
	ssa.CCUnsignedLessOrEqual:    enum.IPredULE,
	ssa.CCUnsignedGreater:        enum.IPredUGT,
	ssa.CCUnsignedGreaterOrEqual: enum.IPredUGE,
}

func (x *exporter) inst(inst *ssa.Inst) error {
	b := x.cur
	typ := intType(inst.Type)
	switch inst.Op {
	case ssa.OpIconst:
		x.vals[inst.Result()] = constant.NewInt(typ, inst.Imm)

	case ssa.OpIadd, ssa.OpIsub, ssa.OpImul, ssa.OpBand, ssa.OpBor, ssa.OpBxor:
		l, r := x.val(inst.Args[0]), x.val(inst.Args[1])
		var v value.Value
		switch inst.Op {
		case ssa.OpIadd:
			v = b.NewAdd(l, r)
		case ssa.OpIsub:
			v = b.NewSub(l, r)
		case ssa.OpImul:
			v = b.NewMul(l, r)
		case ssa.OpBand:
			v = b.NewAnd(l, r)
		case ssa.OpBor:
			v = b.NewOr(l, r)
		case ssa.OpBxor:
			v = b.NewXor(l, r)
		}
		x.vals[inst.Result()] = v

	case ssa.OpIshl, ssa.OpUshr, ssa.OpSshr:
		l := x.val(inst.Args[0])
		amt := b.NewAnd(x.val(inst.Args[1]), constant.NewInt(typ, int64(inst.Type.Bits()-1)))
		switch inst.Op {
		case ssa.OpIshl:
			x.vals[inst.Result()] = b.NewShl(l, amt)
		case ssa.OpUshr:
			x.vals[inst.Result()] = b.NewLShr(l, amt)
		default:
			x.vals[inst.Result()] = b.NewAShr(l, amt)
		}

	case ssa.OpUdiv, ssa.OpUrem, ssa.OpSdiv, ssa.OpSrem:
		l, r := x.val(inst.Args[0]), x.val(inst.Args[1])
		zero := constant.NewInt(typ, 0)
		x.trapIf(b.NewICmp(enum.IPredEQ, r, zero), ssa.TrapDivisionByZero)
		c := x.cur
		minusOne := constant.NewInt(typ, -1)
		switch inst.Op {
		case ssa.OpUdiv:
			x.vals[inst.Result()] = c.NewUDiv(l, r)
		case ssa.OpUrem:
			x.vals[inst.Result()] = c.NewURem(l, r)
		case ssa.OpSdiv:
			lowest := constant.NewInt(typ, inst.Type.MinSigned())
			overflow := c.NewAnd(c.NewICmp(enum.IPredEQ, l, lowest), c.NewICmp(enum.IPredEQ, r, minusOne))
			x.trapIf(overflow, ssa.TrapIntegerOverflow)
			x.vals[inst.Result()] = x.cur.NewSDiv(l, r)
		case ssa.OpSrem:
			isMinusOne := c.NewICmp(enum.IPredEQ, r, minusOne)
			safe := c.NewSelect(isMinusOne, constant.NewInt(typ, 1), r)
			x.vals[inst.Result()] = c.NewSelect(isMinusOne, zero, c.NewSRem(l, safe))
		}

	case ssa.OpUaddOverflowTrap:
		l := x.val(inst.Args[0])
		sum := b.NewAdd(l, x.val(inst.Args[1]))
		x.trapIf(b.NewICmp(enum.IPredULT, sum, l), inst.Trap)
		x.vals[inst.Result()] = sum

	case ssa.OpUsubOverflowTrap:
		l, r := x.val(inst.Args[0]), x.val(inst.Args[1])
		diff := b.NewSub(l, r)
		x.trapIf(b.NewICmp(enum.IPredULT, l, r), inst.Trap)
		x.vals[inst.Result()] = diff

	case ssa.OpBnot:
		x.vals[inst.Result()] = b.NewXor(x.val(inst.Args[0]), constant.NewInt(typ, -1))

	case ssa.OpIneg:
		x.vals[inst.Result()] = b.NewSub(constant.NewInt(typ, 0), x.val(inst.Args[0]))

	case ssa.OpIcmp:
		cmp := b.NewICmp(predicates[inst.Cond], x.val(inst.Args[0]), x.val(inst.Args[1]))
		x.vals[inst.Result()] = b.NewZExt(cmp, types.I8)

	case ssa.OpUextend:
		x.vals[inst.Result()] = b.NewZExt(x.val(inst.Args[0]), typ)

	case ssa.OpSextend:
		x.vals[inst.Result()] = b.NewSExt(x.val(inst.Args[0]), typ)

	case ssa.OpIreduce:
		x.vals[inst.Result()] = b.NewTrunc(x.val(inst.Args[0]), typ)

	case ssa.OpLoad:
		ptr := x.pointer(x.val(inst.Args[0]), inst.Imm, inst.Type)
		x.vals[inst.Result()] = x.cur.NewLoad(typ, ptr)

	case ssa.OpStore:
		ptr := x.pointer(x.val(inst.Args[0]), inst.Imm, inst.Type)
		x.cur.NewStore(x.val(inst.Args[1]), ptr)

	case ssa.OpStackAddr:
		addr := b.NewPtrToInt(x.slots[inst.Slot], types.I64)
		if inst.Imm != 0 {
			x.vals[inst.Result()] = b.NewAdd(addr, x.i64(inst.Imm))
		} else {
			x.vals[inst.Result()] = addr
		}

	case ssa.OpCall:
		call := b.NewCall(x.externs[inst.Func], x.args(inst.Args)...)
		x.results(call, inst.Results)

	case ssa.OpCallIndirect:
		ptr := b.NewIntToPtr(x.val(inst.Args[0]), types.NewPointer(funcType(*inst.Sig)))
		call := b.NewCall(ptr, x.args(inst.Args[1:])...)
		x.results(call, inst.Results)

	case ssa.OpTrapnz:
		x.trapIf(b.NewICmp(enum.IPredNE, x.val(inst.Args[0]), constant.NewInt(types.I8, 0)), inst.Trap)

	case ssa.OpTrap:
		x.emitTrap(b, inst.Trap)

	case ssa.OpReturn:
		switch len(inst.Args) {
		case 0:
			b.NewRet(nil)
		case 1:
			b.NewRet(x.val(inst.Args[0]))
		default:
			st := resultType(x.fn.Sig.Results)
			var agg value.Value = constant.NewUndef(st)
			for i, v := range inst.Args {
				agg = b.NewInsertValue(agg, x.val(v), uint64(i))
			}
			b.NewRet(agg)
		}

	case ssa.OpJump:
		b.NewBr(x.edge(b, inst.Dests[0]))

	case ssa.OpBrif:
		cond := b.NewICmp(enum.IPredNE, x.val(inst.Args[0]), constant.NewInt(types.I8, 0))
		// Each arm gets its own edge block so both may target the same phis
		var targets [2]*ir.Block
		for i, d := range inst.Dests {
			if len(d.Args) == 0 {
				targets[i] = x.blocks[d.Block]
				continue
			}
			x.splits++
			e := x.f.NewBlock(fmt.Sprintf("edge%d", x.splits))
			e.NewBr(x.edge(e, d))
			targets[i] = e
		}
		b.NewCondBr(cond, targets[0], targets[1])

	default:
		return fmt.Errorf("llvmexport: cannot export %s", inst.Op)
	}
	return nil
}
