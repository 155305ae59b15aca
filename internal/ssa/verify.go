// Completion: 100% - Verifier and dead block pruning complete
package ssa

import "fmt"

// Finalize verifies the function and prunes unreachable blocks. The builder
// cannot be used afterwards.
func (b *Builder) Finalize() (*Function, error) {
	b.mustBeOpen()
	f := b.fn
	for i, bd := range f.blocks {
		if !bd.sealed {
			return nil, f.errorf("block%d was never sealed", i)
		}
	}

	reachable := make([]bool, len(f.blocks))
	var postorder []Block
	var walk func(Block)
	walk = func(blk Block) {
		reachable[blk] = true
		for _, s := range f.Successors(blk) {
			if !reachable[s] {
				walk(s)
			}
		}
		postorder = append(postorder, blk)
	}
	walk(f.Entry())

	f.layout = f.layout[:0]
	for i, bd := range f.blocks {
		if !reachable[i] {
			continue
		}
		if !bd.filled {
			return nil, f.errorf("block%d does not end in a terminator", i)
		}
		f.layout = append(f.layout, Block(i))
	}
	f.rpo = make([]Block, len(postorder))
	for i, blk := range postorder {
		f.rpo[len(postorder)-1-i] = blk
	}
	for _, blk := range f.layout {
		bd := f.blocks[blk]
		kept := bd.preds[:0]
		for _, p := range bd.preds {
			if reachable[p.block] {
				kept = append(kept, p)
			}
		}
		bd.preds = kept
	}

	if err := f.verifyDominance(); err != nil {
		return nil, err
	}
	f.finalized = true
	return f, nil
}

// Preds returns the reachable predecessors of a block. Only valid after Finalize.
func (f *Function) Preds(blk Block) []Block {
	bd := f.blocks[blk]
	preds := make([]Block, 0, len(bd.preds))
	for _, p := range bd.preds {
		preds = append(preds, p.block)
	}
	return preds
}

func (f *Function) errorf(format string, args ...any) error {
	return &Error{Func: f.Name, Message: fmt.Sprintf(format, args...)}
}

// verifyDominance checks that every use of a value is dominated by its definition.
func (f *Function) verifyDominance() error {
	order := make(map[Block]int, len(f.rpo))
	for i, blk := range f.rpo {
		order[blk] = i
	}
	idom := make(map[Block]Block, len(f.rpo))
	entry := f.Entry()
	idom[entry] = entry
	intersect := func(a, b Block) Block {
		for a != b {
			for order[a] > order[b] {
				a = idom[a]
			}
			for order[b] > order[a] {
				b = idom[b]
			}
		}
		return a
	}
	for changed := true; changed; {
		changed = false
		for _, blk := range f.rpo[1:] {
			newIdom := Block(-1)
			for _, p := range f.Preds(blk) {
				if _, ok := idom[p]; !ok {
					continue
				}
				if newIdom < 0 {
					newIdom = p
				} else {
					newIdom = intersect(p, newIdom)
				}
			}
			if cur, ok := idom[blk]; !ok || cur != newIdom {
				idom[blk] = newIdom
				changed = true
			}
		}
	}
	dominates := func(a, b Block) bool {
		for {
			if a == b {
				return true
			}
			if b == entry {
				return false
			}
			b = idom[b]
		}
	}

	for _, blk := range f.layout {
		bd := f.blocks[blk]
		position := make(map[*Inst]int, len(bd.Insts))
		for i, inst := range bd.Insts {
			position[inst] = i
		}
		check := func(v Value, at int) error {
			vd := f.values[v]
			if _, ok := order[vd.Block]; !ok {
				return f.errorf("v%d used in block%d is defined in unreachable block%d", v, blk, vd.Block)
			}
			if !dominates(vd.Block, blk) {
				return f.errorf("v%d used in block%d does not dominate its use", v, blk)
			}
			if vd.Block == blk && vd.Param < 0 && position[vd.Inst] >= at {
				return f.errorf("v%d used in block%d before its definition", v, blk)
			}
			return nil
		}
		for i, inst := range bd.Insts {
			for _, a := range inst.Args {
				if err := check(a, i); err != nil {
					return err
				}
			}
			for _, d := range inst.Dests {
				for _, a := range d.Args {
					if err := check(a, i); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}
