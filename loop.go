// Completion: 100% - Loop builder complete
package lego

// Loop builds a loop whose header, body and exit blocks take the carried
// state, starting from init. cond is evaluated in the header; while it
// holds, body runs with the state and its Break values become the next
// state. Continue from any depth of the body does the same. The result is
// Break with the state the loop exited with.
func (b *Builder) Loop(init []Value, cond func(*Builder, []Value) Value, body func(*Builder, []Value) Flow) Flow {
	types := typesOf(init)
	for _, t := range types {
		if !t.IsScalar() {
			panic(typeError("loop state of type %s is not a scalar", t))
		}
	}
	header, bodyBlk, exit := b.fb.CreateBlock(), b.fb.CreateBlock(), b.fb.CreateBlock()
	for _, t := range types {
		b.fb.AppendBlockParam(header, t.ssaType())
		b.fb.AppendBlockParam(bodyBlk, t.ssaType())
		b.fb.AppendBlockParam(exit, t.ssaType())
	}
	b.fb.Jump(header, b.ids(init)...)

	b.fb.SwitchToBlock(header)
	state := b.blockValues(header, types)
	c := cond(b, state)
	b.use(c)
	if c.typ.kind != KindBool {
		panic(typeMismatch("loop condition", Bool, c.typ))
	}
	stateIDs := b.ids(state)
	b.fb.Brif(c.id, bodyBlk, stateIDs, exit, stateIDs)
	b.fb.SealBlock(bodyBlk)

	b.fb.SwitchToBlock(bodyBlk)
	inner := b.blockValues(bodyBlk, types)
	b.loops = append(b.loops, loopFrame{header: header, types: types, state: inner})
	f := body(b, inner)
	if f.kind == FlowBreak {
		// Break is the back edge
		f.kind = FlowContinue
	}
	b.settle(f, nil)
	b.loops = b.loops[:len(b.loops)-1]

	b.fb.SealBlock(header)
	b.fb.SwitchToBlock(exit)
	b.fb.SealBlock(exit)
	return Break(b.blockValues(exit, types)...)
}

// While loops while cond holds. State flows through variables.
func (b *Builder) While(cond func(*Builder) Value, body func(*Builder) Flow) Flow {
	return b.Loop(nil,
		func(b *Builder, _ []Value) Value { return cond(b) },
		func(b *Builder, _ []Value) Flow {
			f := body(b)
			if f.kind == FlowBreak && len(f.values) > 0 {
				panic(contractError("While body breaks with %s, but the loop carries no state", typeList(typesOf(f.values))))
			}
			return f
		},
	)
}

// Repeat runs body n times with a counter of n's type counting from zero
func (b *Builder) Repeat(n Value, body func(*Builder, Value) Flow) Flow {
	counter := b.NewVar(b.ConstU(n.typ, 0))
	return b.While(
		func(b *Builder) Value { return b.Lt(counter.Get(b), n) },
		func(b *Builder) Flow {
			i := counter.Get(b)
			counter.Set(b, b.Add(i, b.ConstU(i.typ, 1)))
			return body(b, i)
		},
	)
}
