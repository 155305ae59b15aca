// Completion: 100% - Instruction emitters complete
package ssa

func (b *Builder) emit(inst *Inst, results ...Type) *Inst {
	bd := b.block(b.cur)
	if bd.filled {
		b.fail("block%d already ends in %s", b.cur, bd.Terminator().Op)
	}
	for _, a := range inst.Args {
		b.value(a)
	}
	for _, t := range results {
		inst.Results = append(inst.Results, b.fn.newValue(t, b.cur, -1, inst))
	}
	bd.Insts = append(bd.Insts, inst)
	if inst.Op.IsTerminator() {
		bd.filled = true
	}
	return inst
}

// Iconst materializes an integer constant, truncated to the width of t
func (b *Builder) Iconst(t Type, imm int64) Value {
	if t.Bits() == 0 {
		b.fail("iconst with invalid type")
	}
	imm = int64(Canon(t, uint64(imm)))
	return b.emit(&Inst{Op: OpIconst, Type: t, Imm: imm}, t).Result()
}

// Binary emits a two-operand integer instruction
func (b *Builder) Binary(op Opcode, x, y Value) Value {
	if !op.IsBinary() {
		b.fail("%s is not a binary opcode", op)
	}
	tx, ty := b.value(x), b.value(y)
	if tx != ty {
		b.fail("%s operands have different types: %s and %s", op, tx, ty)
	}
	inst := &Inst{Op: op, Type: tx, Args: []Value{x, y}}
	switch op {
	case OpUaddOverflowTrap, OpUsubOverflowTrap:
		inst.Trap = TrapIntegerOverflow
	}
	return b.emit(inst, tx).Result()
}

func (b *Builder) Iadd(x, y Value) Value { return b.Binary(OpIadd, x, y) }
func (b *Builder) Isub(x, y Value) Value { return b.Binary(OpIsub, x, y) }
func (b *Builder) Imul(x, y Value) Value { return b.Binary(OpImul, x, y) }
func (b *Builder) Udiv(x, y Value) Value { return b.Binary(OpUdiv, x, y) }
func (b *Builder) Sdiv(x, y Value) Value { return b.Binary(OpSdiv, x, y) }
func (b *Builder) Urem(x, y Value) Value { return b.Binary(OpUrem, x, y) }
func (b *Builder) Srem(x, y Value) Value { return b.Binary(OpSrem, x, y) }
func (b *Builder) Band(x, y Value) Value { return b.Binary(OpBand, x, y) }
func (b *Builder) Bor(x, y Value) Value  { return b.Binary(OpBor, x, y) }
func (b *Builder) Bxor(x, y Value) Value { return b.Binary(OpBxor, x, y) }
func (b *Builder) Ishl(x, y Value) Value { return b.Binary(OpIshl, x, y) }
func (b *Builder) Ushr(x, y Value) Value { return b.Binary(OpUshr, x, y) }
func (b *Builder) Sshr(x, y Value) Value { return b.Binary(OpSshr, x, y) }

// UaddOverflowTrap adds two unsigned values and traps if the sum does not fit
func (b *Builder) UaddOverflowTrap(x, y Value) Value { return b.Binary(OpUaddOverflowTrap, x, y) }

// UsubOverflowTrap subtracts two unsigned values and traps on borrow
func (b *Builder) UsubOverflowTrap(x, y Value) Value { return b.Binary(OpUsubOverflowTrap, x, y) }

// Bnot emits a bitwise complement
func (b *Builder) Bnot(x Value) Value {
	t := b.value(x)
	return b.emit(&Inst{Op: OpBnot, Type: t, Args: []Value{x}}, t).Result()
}

// Ineg emits a two's complement negation
func (b *Builder) Ineg(x Value) Value {
	t := b.value(x)
	return b.emit(&Inst{Op: OpIneg, Type: t, Args: []Value{x}}, t).Result()
}

// Icmp compares two values and produces an I8 holding 0 or 1
func (b *Builder) Icmp(cc IntCC, x, y Value) Value {
	tx, ty := b.value(x), b.value(y)
	if tx != ty {
		b.fail("icmp operands have different types: %s and %s", tx, ty)
	}
	return b.emit(&Inst{Op: OpIcmp, Type: tx, Cond: cc, Args: []Value{x, y}}, I8).Result()
}

// Uextend zero-extends x to the wider type t
func (b *Builder) Uextend(t Type, x Value) Value {
	return b.convert(OpUextend, t, x, func(from Type) bool { return t.Bits() > from.Bits() })
}

// Sextend sign-extends x to the wider type t
func (b *Builder) Sextend(t Type, x Value) Value {
	return b.convert(OpSextend, t, x, func(from Type) bool { return t.Bits() > from.Bits() })
}

// Ireduce truncates x to the narrower type t
func (b *Builder) Ireduce(t Type, x Value) Value {
	return b.convert(OpIreduce, t, x, func(from Type) bool { return t.Bits() < from.Bits() })
}

func (b *Builder) convert(op Opcode, t Type, x Value, ok func(Type) bool) Value {
	from := b.value(x)
	if t.Bits() == 0 || !ok(from) {
		b.fail("%s from %s to %s", op, from, t)
	}
	inst := &Inst{Op: op, Type: t, Args: []Value{x}}
	// the source width is needed by every backend
	inst.Imm = int64(from)
	return b.emit(inst, t).Result()
}

// Load reads a value of type t from addr+off and zero-extends it
func (b *Builder) Load(t Type, addr Value, off int32) Value {
	if b.value(addr) != I64 {
		b.fail("load address must be i64")
	}
	return b.emit(&Inst{Op: OpLoad, Type: t, Args: []Value{addr}, Imm: int64(off)}, t).Result()
}

// Store writes val to addr+off using the width of val's type
func (b *Builder) Store(val, addr Value, off int32) {
	t := b.value(val)
	if b.value(addr) != I64 {
		b.fail("store address must be i64")
	}
	b.emit(&Inst{Op: OpStore, Type: t, Args: []Value{addr, val}, Imm: int64(off)})
}

// CreateStackSlot reserves size bytes of frame memory aligned to align
func (b *Builder) CreateStackSlot(size, align uint32) StackSlot {
	b.mustBeOpen()
	if align == 0 || align&(align-1) != 0 || align > 8 {
		b.fail("stack slot alignment %d must be a power of two up to 8", align)
	}
	b.fn.StackSlots = append(b.fn.StackSlots, StackSlotData{Size: size, Align: align})
	return StackSlot(len(b.fn.StackSlots) - 1)
}

// StackAddr returns the address of slot plus off
func (b *Builder) StackAddr(slot StackSlot, off int32) Value {
	if slot < 0 || int(slot) >= len(b.fn.StackSlots) {
		b.fail("unknown stack slot %d", slot)
	}
	return b.emit(&Inst{Op: OpStackAddr, Type: I64, Slot: slot, Imm: int64(off)}, I64).Result()
}

// ImportFunction makes an external callee available to Call
func (b *Builder) ImportFunction(ext ExtFunc) FuncRef {
	b.mustBeOpen()
	b.fn.ExtFuncs = append(b.fn.ExtFuncs, ext)
	return FuncRef(len(b.fn.ExtFuncs) - 1)
}

// Call calls an imported function and returns its results
func (b *Builder) Call(ref FuncRef, args ...Value) []Value {
	if ref < 0 || int(ref) >= len(b.fn.ExtFuncs) {
		b.fail("unknown function reference %d", ref)
	}
	ext := b.fn.ExtFuncs[ref]
	b.checkArgs(ext.Name, ext.Sig.Params, args)
	inst := b.emit(&Inst{Op: OpCall, Func: ref, Args: append([]Value(nil), args...)}, ext.Sig.Results...)
	return inst.Results
}

// CallIndirect calls the function at addr, which must have signature sig
func (b *Builder) CallIndirect(sig Signature, addr Value, args ...Value) []Value {
	if b.value(addr) != I64 {
		b.fail("call_indirect address must be i64")
	}
	b.checkArgs("call_indirect", sig.Params, args)
	s := sig
	all := append([]Value{addr}, args...)
	inst := b.emit(&Inst{Op: OpCallIndirect, Sig: &s, Args: all}, sig.Results...)
	return inst.Results
}

func (b *Builder) checkArgs(name string, params []Type, args []Value) {
	if len(args) != len(params) {
		b.fail("%s expects %d arguments, got %d", name, len(params), len(args))
	}
	for i, a := range args {
		if t := b.value(a); t != params[i] {
			b.fail("%s argument %d is %s, expected %s", name, i, t, params[i])
		}
	}
}

// Trapnz traps with code when cond is non-zero
func (b *Builder) Trapnz(cond Value, code TrapCode) {
	t := b.value(cond)
	b.emit(&Inst{Op: OpTrapnz, Type: t, Args: []Value{cond}, Trap: code})
}

// Trap ends the current block with an unconditional trap
func (b *Builder) Trap(code TrapCode) {
	b.emit(&Inst{Op: OpTrap, Trap: code})
}

// Return ends the current block by returning vals
func (b *Builder) Return(vals ...Value) {
	b.checkArgs("return", b.fn.Sig.Results, vals)
	b.emit(&Inst{Op: OpReturn, Args: append([]Value(nil), vals...)})
}

// Jump ends the current block with an unconditional branch to dest
func (b *Builder) Jump(dest Block, args ...Value) {
	b.checkDest(dest, args)
	inst := b.emit(&Inst{Op: OpJump, Dests: []BlockCall{{Block: dest, Args: append([]Value(nil), args...)}}})
	b.addPred(dest, inst, 0)
}

// Brif branches to then when cond is non-zero and to els otherwise
func (b *Builder) Brif(cond Value, then Block, thenArgs []Value, els Block, elsArgs []Value) {
	t := b.value(cond)
	b.checkDest(then, thenArgs)
	b.checkDest(els, elsArgs)
	inst := b.emit(&Inst{
		Op:   OpBrif,
		Type: t,
		Args: []Value{cond},
		Dests: []BlockCall{
			{Block: then, Args: append([]Value(nil), thenArgs...)},
			{Block: els, Args: append([]Value(nil), elsArgs...)},
		},
	})
	b.addPred(then, inst, 0)
	b.addPred(els, inst, 1)
}

func (b *Builder) checkDest(dest Block, args []Value) {
	bd := b.block(dest)
	if bd.sealed {
		b.fail("branch into sealed block%d", dest)
	}
	if len(args) != bd.explicit {
		b.fail("block%d takes %d arguments, got %d", dest, bd.explicit, len(args))
	}
	for i, a := range args {
		if t, want := b.value(a), b.fn.ValueType(bd.Params[i]); t != want {
			b.fail("block%d argument %d is %s, expected %s", dest, i, t, want)
		}
	}
}

func (b *Builder) addPred(dest Block, inst *Inst, idx int) {
	bd := b.fn.blocks[dest]
	bd.preds = append(bd.preds, predEdge{block: b.cur, inst: inst, dest: idx})
}
