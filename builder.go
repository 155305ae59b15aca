// Completion: 100% - Function build context complete
package lego

import (
	"github.com/xyproto/lego/internal/ssa"
)

// Builder is the context of one function under construction. Every builder
// operation takes it explicitly; it is only valid inside the body passed to
// Context.Build.
type Builder struct {
	ctx    *Context
	fb     *ssa.Builder
	name   string
	sig    Signature
	serial uint64

	params []Value // entry block parameters, one per slot
	starts []int   // first slot of each logical parameter

	loops   []loopFrame
	imports map[uint32]ssa.FuncRef
}

// loopFrame is the innermost loop Continue jumps to
type loopFrame struct {
	header ssa.Block
	types  []Type
	state  []Value
}

func newBuilder(ctx *Context, name string, sig Signature, serial uint64) *Builder {
	b := &Builder{
		ctx:     ctx,
		fb:      ssa.NewBuilder(name, sig.machine()),
		name:    name,
		sig:     sig,
		serial:  serial,
		imports: make(map[uint32]ssa.FuncRef),
	}
	raw := b.fb.BlockParams(b.fb.CurrentBlock())
	for _, p := range sig.Params {
		at := len(b.params)
		b.starts = append(b.starts, at)
		if p.kind == KindSlice {
			b.params = append(b.params, b.wrap(raw[at], Usize), b.wrap(raw[at+1], RefTo(p.Elem())))
			continue
		}
		b.params = append(b.params, b.wrap(raw[at], p))
	}
	return b
}

// Name returns the name of the function being built
func (b *Builder) Name() string {
	return b.name
}

// Signature returns the signature of the function being built
func (b *Builder) Signature() Signature {
	return b.sig
}

// NumParams returns the number of logical parameters
func (b *Builder) NumParams() int {
	return len(b.sig.Params)
}

// Param returns scalar parameter i
func (b *Builder) Param(i int) Value {
	t := b.paramType(i)
	if !t.IsScalar() {
		panic(typeError("parameter %d has type %s, use SliceParam", i, t))
	}
	return b.params[b.starts[i]]
}

// SliceParam returns slice parameter i. Its length comes first, then its
// data pointer.
func (b *Builder) SliceParam(i int) Slice {
	t := b.paramType(i)
	if t.kind != KindSlice {
		panic(typeError("parameter %d has type %s, not a slice", i, t))
	}
	return Slice{len: b.params[b.starts[i]], ptr: b.params[b.starts[i]+1], elem: t.Elem()}
}

// RefParam returns reference parameter i as a mutable proxy
func (b *Builder) RefParam(i int) RefMut {
	return b.Deref(b.Param(i))
}

func (b *Builder) paramType(i int) Type {
	if i < 0 || i >= len(b.sig.Params) {
		panic(contractError("parameter %d out of range, %s has %d", i, b.name, len(b.sig.Params)))
	}
	return b.sig.Params[i]
}

// Return emits a return of vs at the cursor. Code built afterwards is
// unreachable.
func (b *Builder) Return(vs ...Value) Flow {
	b.emitReturn(vs)
	return Preempt()
}

// LoopState returns the carried state of the innermost loop as it was on
// entry to the current iteration
func (b *Builder) LoopState() []Value {
	if len(b.loops) == 0 {
		panic(contractError("LoopState used outside of a loop body"))
	}
	return append([]Value(nil), b.loops[len(b.loops)-1].state...)
}

func (b *Builder) emitReturn(vs []Value) {
	if !typesEqual(typesOf(vs), b.sig.Results) {
		panic(typeMismatch("return of "+b.name, typeList(b.sig.Results), typeList(typesOf(vs))))
	}
	b.fb.Return(b.ids(vs)...)
	b.enterDead()
}

// continueLoop jumps to the header of the innermost loop with next as the new
// carried state
func (b *Builder) continueLoop(next []Value) {
	if len(b.loops) == 0 {
		panic(contractError("Continue outside of a loop"))
	}
	frame := b.loops[len(b.loops)-1]
	if !typesEqual(typesOf(next), frame.types) {
		panic(typeMismatch("loop state", typeList(frame.types), typeList(typesOf(next))))
	}
	b.fb.Jump(frame.header, b.ids(next)...)
	b.enterDead()
}

// enterDead moves the cursor to a fresh block without predecessors, so that
// code following a terminator is accepted and later pruned
func (b *Builder) enterDead() {
	blk := b.fb.CreateBlock()
	b.fb.SealBlock(blk)
	b.fb.SwitchToBlock(blk)
}

// terminate ends the current block with an unreachable trap unless it is
// already terminated
func (b *Builder) terminate() {
	if cur := b.fb.CurrentBlock(); !b.fb.IsFilled(cur) {
		b.fb.Trap(ssa.TrapUnreachable)
	}
}

// settle emits the code a body's Flow asks for, given that Break jumps to
// the block brk. It reports whether control falls through to brk.
func (b *Builder) settle(f Flow, brk func([]Value)) bool {
	switch f.kind {
	case FlowBreak:
		brk(f.values)
		return true
	case FlowRet:
		b.emitReturn(f.values)
	case FlowContinue:
		b.continueLoop(f.values)
	case FlowPreempt:
		b.terminate()
	default:
		panic(contractError("body returned an invalid Flow"))
	}
	return false
}

// finish emits the function return for the body's final Flow
func (b *Builder) finish(f Flow) {
	if f.kind == FlowContinue {
		panic(contractError("Continue outside of a loop"))
	}
	b.settle(f, b.emitReturn)
	if len(b.loops) != 0 {
		panic(contractError("function body returned inside a loop"))
	}
}
