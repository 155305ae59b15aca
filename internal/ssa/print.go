package ssa

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// String renders the function in a textual form. Finalized functions only show
// reachable blocks.
func (f *Function) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "function %%%s(%s) -> (%s) {\n", f.Name, typeList(f.Sig.Params), typeList(f.Sig.Results))
	for i, ss := range f.StackSlots {
		fmt.Fprintf(&sb, "    ss%d = explicit_slot %d, align %d\n", i, ss.Size, ss.Align)
	}
	for i, ext := range f.ExtFuncs {
		fmt.Fprintf(&sb, "    fn%d = %%%s(%s) -> (%s) id %d\n", i, ext.Name, typeList(ext.Sig.Params), typeList(ext.Sig.Results), ext.ID)
	}
	blocks := f.layout
	if !f.finalized {
		blocks = make([]Block, len(f.blocks))
		for i := range f.blocks {
			blocks[i] = Block(i)
		}
	}
	for _, blk := range blocks {
		bd := f.blocks[blk]
		fmt.Fprintf(&sb, "block%d", blk)
		if len(bd.Params) > 0 {
			params := make([]string, len(bd.Params))
			for i, p := range bd.Params {
				params[i] = fmt.Sprintf("v%d: %s", p, f.ValueType(p))
			}
			sb.WriteString("(" + strings.Join(params, ", ") + ")")
		}
		sb.WriteString(":\n")
		for _, inst := range bd.Insts {
			sb.WriteString("    ")
			sb.WriteString(f.formatInst(inst))
			sb.WriteString("\n")
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

func (f *Function) formatInst(inst *Inst) string {
	var sb strings.Builder
	if len(inst.Results) > 0 {
		sb.WriteString(valueList(inst.Results))
		sb.WriteString(" = ")
	}
	sb.WriteString(inst.Op.String())
	switch inst.Op {
	case OpIconst:
		fmt.Fprintf(&sb, ".%s %d", inst.Type, inst.Imm)
	case OpIcmp:
		fmt.Fprintf(&sb, " %s %s", inst.Cond, valueList(inst.Args))
	case OpUextend, OpSextend, OpIreduce:
		fmt.Fprintf(&sb, ".%s %s", inst.Type, valueList(inst.Args))
	case OpLoad:
		fmt.Fprintf(&sb, ".%s v%d%+d", inst.Type, inst.Args[0], inst.Imm)
	case OpStore:
		fmt.Fprintf(&sb, ".%s v%d, v%d%+d", inst.Type, inst.Args[1], inst.Args[0], inst.Imm)
	case OpStackAddr:
		fmt.Fprintf(&sb, " ss%d%+d", inst.Slot, inst.Imm)
	case OpCall:
		fmt.Fprintf(&sb, " fn%d(%s)", inst.Func, valueList(inst.Args))
	case OpCallIndirect:
		fmt.Fprintf(&sb, " (%s) -> (%s) v%d(%s)", typeList(inst.Sig.Params), typeList(inst.Sig.Results), inst.Args[0], valueList(inst.Args[1:]))
	case OpTrapnz:
		fmt.Fprintf(&sb, " v%d, %s", inst.Args[0], inst.Trap)
	case OpTrap:
		fmt.Fprintf(&sb, " %s", inst.Trap)
	case OpJump:
		sb.WriteString(" " + formatDest(inst.Dests[0]))
	case OpBrif:
		fmt.Fprintf(&sb, " v%d, %s, %s", inst.Args[0], formatDest(inst.Dests[0]), formatDest(inst.Dests[1]))
	default:
		if len(inst.Args) > 0 {
			sb.WriteString(" " + valueList(inst.Args))
		}
	}
	return sb.String()
}

func formatDest(d BlockCall) string {
	if len(d.Args) == 0 {
		return fmt.Sprintf("block%d", d.Block)
	}
	return fmt.Sprintf("block%d(%s)", d.Block, valueList(d.Args))
}

func valueList(vals []Value) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprintf("v%d", v)
	}
	return strings.Join(parts, ", ")
}

func typeList(types []Type) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

// Fingerprint hashes the textual form of the function. Two builds that emit the
// same instructions in the same order have the same fingerprint.
func (f *Function) Fingerprint() uint64 {
	return xxhash.Sum64String(f.String())
}
