// Completion: 100% - Branch builder complete
package lego

import (
	"github.com/xyproto/lego/internal/ssa"
)

// If builds a two-way conditional. Each branch ends with a Flow: Break jumps
// to the merge block, whose parameters take the types of the first Break;
// Ret and Continue leave the conditional. The result is Break with the merge
// parameters, or Preempt when neither branch falls through.
func (b *Builder) If(cond Value, then, els func(*Builder) Flow) Flow {
	c := b.use(cond)
	if cond.typ.kind != KindBool {
		panic(typeMismatch("If condition", Bool, cond.typ))
	}
	thenBlk, elseBlk, merge := b.fb.CreateBlock(), b.fb.CreateBlock(), b.fb.CreateBlock()
	b.fb.Brif(c, thenBlk, nil, elseBlk, nil)
	b.fb.SealBlock(thenBlk)
	b.fb.SealBlock(elseBlk)

	var shape []Type
	declared := false
	jump := func(vs []Value) {
		if !declared {
			shape = typesOf(vs)
			for _, t := range shape {
				if !t.IsScalar() {
					panic(typeError("branch value of type %s is not a scalar", t))
				}
				b.fb.AppendBlockParam(merge, t.ssaType())
			}
			declared = true
		} else if !typesEqual(shape, typesOf(vs)) {
			panic(contractError("branches produce different shapes: %s and %s", typeList(shape), typeList(typesOf(vs))))
		}
		b.fb.Jump(merge, b.ids(vs)...)
	}

	b.fb.SwitchToBlock(thenBlk)
	thenFalls := b.settle(then(b), jump)
	b.fb.SwitchToBlock(elseBlk)
	elseFalls := b.settle(els(b), jump)

	b.fb.SealBlock(merge)
	b.fb.SwitchToBlock(merge)
	if !thenFalls && !elseFalls {
		return Preempt()
	}
	return Break(b.blockValues(merge, shape)...)
}

// When is If without an else branch. The branch may not produce values.
func (b *Builder) When(cond Value, then func(*Builder) Flow) Flow {
	return b.If(cond, func(b *Builder) Flow {
		f := then(b)
		if f.kind == FlowBreak && len(f.values) > 0 {
			panic(contractError("When branch breaks with %s, but there is no else branch to match it", typeList(typesOf(f.values))))
		}
		return f
	}, func(*Builder) Flow {
		return Break()
	})
}

// Select returns x when cond holds and y otherwise, using a branch
func (b *Builder) Select(cond, x, y Value) Value {
	return b.If(cond,
		func(*Builder) Flow { return Break(x) },
		func(*Builder) Flow { return Break(y) },
	).Value()
}

func (b *Builder) blockValues(blk ssa.Block, types []Type) []Value {
	raw := b.fb.BlockParams(blk)
	out := make([]Value, len(types))
	for i, t := range types {
		out[i] = b.wrap(raw[i], t)
	}
	return out
}
