package amd64

import (
	"fmt"

	"github.com/xyproto/lego/internal/ssa"
)

// maxFrameBytes keeps every frame displacement within a signed 32-bit offset
const maxFrameBytes = 1 << 30

// frameLayout assigns every SSA value its own 8-byte slot in a frame that
// lives in Go memory. Block arguments are staged through scratch slots, and
// explicit stack slots follow at the end.
//
//	[ values ... | scratch ... | stack slots ... ]
type frameLayout struct {
	scratch     uint32 // first scratch word
	stack       uint32 // first stack slot word
	words       uint32 // total words
	slotOffsets []uint32
}

func layoutFrame(fn *ssa.Function) (frameLayout, error) {
	maxArgs := 0
	for _, blk := range fn.Layout() {
		if term := fn.Block(blk).Terminator(); term != nil {
			for _, d := range term.Dests {
				maxArgs = max(maxArgs, len(d.Args))
			}
		}
	}
	offsets, stackBytes := fn.StackLayout()
	fl := frameLayout{
		scratch:     uint32(fn.NumValues()),
		slotOffsets: offsets,
	}
	fl.stack = fl.scratch + uint32(maxArgs)
	fl.words = fl.stack + (stackBytes+7)/8
	if uint64(fl.words)*8 > maxFrameBytes {
		return frameLayout{}, fmt.Errorf("amd64: frame of %s needs %d words", fn.Name, fl.words)
	}
	return fl, nil
}

func (fl frameLayout) value(v ssa.Value) int32 {
	return int32(v) * 8
}

func (fl frameLayout) scratchSlot(i int) int32 {
	return int32(fl.scratch+uint32(i)) * 8
}

func (fl frameLayout) stackSlot(slot ssa.StackSlot, off int64) int32 {
	return int32(fl.stack)*8 + int32(fl.slotOffsets[slot]) + int32(off)
}
