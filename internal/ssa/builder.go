// Completion: 100% - Block and variable builder complete
package ssa

// Builder constructs a Function block by block. Variables are renamed into
// SSA values on the fly: reading a variable in a block looks up its local
// definition, and otherwise walks the predecessors, adding block parameters
// where control flow merges. Blocks whose predecessors are not yet known get
// provisional parameters that are completed when the block is sealed.
//
// Misuse panics with *Error.
type Builder struct {
	fn   *Function
	cur  Block
	vars []Type
}

// NewBuilder creates a builder with an entry block whose parameters are the
// signature's parameters. The entry block is sealed and current.
func NewBuilder(name string, sig Signature) *Builder {
	b := &Builder{fn: &Function{Name: name, Sig: sig}}
	entry := b.CreateBlock()
	for _, t := range sig.Params {
		b.AppendBlockParam(entry, t)
	}
	b.SealBlock(entry)
	b.SwitchToBlock(entry)
	return b
}

// Func returns the function under construction
func (b *Builder) Func() *Function {
	return b.fn
}

// CreateBlock creates an empty, unsealed block
func (b *Builder) CreateBlock() Block {
	b.mustBeOpen()
	b.fn.blocks = append(b.fn.blocks, &BlockData{defs: make(map[Variable]Value)})
	return Block(len(b.fn.blocks) - 1)
}

// AppendBlockParam adds an explicit typed parameter to a block that has no
// predecessors yet.
func (b *Builder) AppendBlockParam(blk Block, t Type) Value {
	bd := b.block(blk)
	if len(bd.preds) > 0 {
		b.fail("cannot add a parameter to block%d: it already has predecessors", blk)
	}
	if len(bd.Params) != bd.explicit {
		b.fail("cannot add a parameter to block%d after variable parameters", blk)
	}
	if t.Bits() == 0 {
		b.fail("invalid parameter type for block%d", blk)
	}
	v := b.fn.newValue(t, blk, len(bd.Params), nil)
	bd.Params = append(bd.Params, v)
	bd.explicit++
	return v
}

// BlockParams returns the explicit parameters of a block. Reading them is
// allowed once the block is sealed, or while it is the current block.
func (b *Builder) BlockParams(blk Block) []Value {
	bd := b.block(blk)
	if !bd.sealed && blk != b.cur {
		b.fail("parameters of block%d read before it was sealed", blk)
	}
	return bd.Params[:bd.explicit:bd.explicit]
}

// SwitchToBlock makes blk the insertion point
func (b *Builder) SwitchToBlock(blk Block) {
	b.block(blk)
	b.cur = blk
}

// CurrentBlock returns the insertion point
func (b *Builder) CurrentBlock() Block {
	return b.cur
}

// IsSealed reports whether all predecessors of blk are known
func (b *Builder) IsSealed(blk Block) bool {
	return b.block(blk).sealed
}

// IsFilled reports whether blk already ends in a terminator
func (b *Builder) IsFilled(blk Block) bool {
	return b.block(blk).filled
}

// IsReachableHint reports whether blk currently has predecessors or is the entry
func (b *Builder) IsReachableHint(blk Block) bool {
	return blk == b.fn.Entry() || len(b.block(blk).preds) > 0
}

// SealBlock declares that every predecessor of blk is known. It completes the
// provisional parameters created for variable reads. Sealing twice is an error.
func (b *Builder) SealBlock(blk Block) {
	bd := b.block(blk)
	if bd.sealed {
		b.fail("block%d sealed twice", blk)
	}
	for _, ip := range bd.incomplete {
		for _, p := range bd.preds {
			arg := b.useVarIn(ip.v, p.block)
			p.inst.Dests[p.dest].Args = append(p.inst.Dests[p.dest].Args, arg)
		}
	}
	bd.incomplete = nil
	bd.sealed = true
}

// DeclareVar creates a variable of type t. Reading it before any definition
// yields zero.
func (b *Builder) DeclareVar(t Type) Variable {
	b.mustBeOpen()
	if t.Bits() == 0 {
		b.fail("invalid variable type")
	}
	b.vars = append(b.vars, t)
	return Variable(len(b.vars) - 1)
}

// VarType returns the declared type of a variable
func (b *Builder) VarType(v Variable) Type {
	b.variable(v)
	return b.vars[v]
}

// DefVar records val as the current definition of v in the current block
func (b *Builder) DefVar(v Variable, val Value) {
	b.variable(v)
	if t := b.fn.ValueType(val); t != b.vars[v] {
		b.fail("variable %d has type %s, defined with %s", v, b.vars[v], t)
	}
	b.block(b.cur).defs[v] = val
}

// UseVar returns the value of v that reaches the current position
func (b *Builder) UseVar(v Variable) Value {
	b.variable(v)
	return b.useVarIn(v, b.cur)
}

func (b *Builder) useVarIn(v Variable, blk Block) Value {
	bd := b.fn.blocks[blk]
	if val, ok := bd.defs[v]; ok {
		return val
	}
	t := b.vars[v]
	var val Value
	switch {
	case !bd.sealed:
		val = b.addVarParam(blk, t)
		bd.incomplete = append(bd.incomplete, incompleteParam{v: v, param: val})
	case len(bd.preds) == 0:
		val = b.prependZero(blk, t)
	case len(bd.preds) == 1:
		val = b.useVarIn(v, bd.preds[0].block)
	default:
		val = b.addVarParam(blk, t)
		bd.defs[v] = val
		for _, p := range bd.preds {
			arg := b.useVarIn(v, p.block)
			p.inst.Dests[p.dest].Args = append(p.inst.Dests[p.dest].Args, arg)
		}
	}
	bd.defs[v] = val
	return val
}

func (b *Builder) addVarParam(blk Block, t Type) Value {
	bd := b.fn.blocks[blk]
	v := b.fn.newValue(t, blk, len(bd.Params), nil)
	bd.Params = append(bd.Params, v)
	return v
}

func (b *Builder) prependZero(blk Block, t Type) Value {
	bd := b.fn.blocks[blk]
	inst := &Inst{Op: OpIconst, Type: t}
	v := b.fn.newValue(t, blk, -1, inst)
	inst.Results = []Value{v}
	bd.Insts = append([]*Inst{inst}, bd.Insts...)
	return v
}

func (b *Builder) block(blk Block) *BlockData {
	b.mustBeOpen()
	if blk < 0 || int(blk) >= len(b.fn.blocks) {
		b.fail("unknown block%d", blk)
	}
	return b.fn.blocks[blk]
}

func (b *Builder) variable(v Variable) {
	b.mustBeOpen()
	if v < 0 || int(v) >= len(b.vars) {
		b.fail("unknown variable %d", v)
	}
}

func (b *Builder) value(v Value) Type {
	if v < 0 || int(v) >= len(b.fn.values) {
		b.fail("unknown value v%d", v)
	}
	return b.fn.values[v].Type
}

func (b *Builder) mustBeOpen() {
	if b.fn.finalized {
		panic(&Error{Func: b.fn.Name, Message: "builder used after Finalize"})
	}
}
