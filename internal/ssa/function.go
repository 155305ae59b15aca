// Completion: 100% - Function representation complete
package ssa

// Value refers to an SSA value of a Function
type Value int32

// Block refers to a basic block of a Function
type Block int32

// Variable refers to a frontend variable that is renamed into SSA values
type Variable int32

// FuncRef refers to an imported callee of a Function
type FuncRef int32

// StackSlot refers to an explicit stack allocation of a Function
type StackSlot int32

// ValueInvalid is the zero reference for "no value"
const ValueInvalid Value = -1

// Signature lists parameter and result types of a function
type Signature struct {
	Params  []Type
	Results []Type
}

// Equal reports whether two signatures have identical types
func (s Signature) Equal(o Signature) bool {
	if len(s.Params) != len(o.Params) || len(s.Results) != len(o.Results) {
		return false
	}
	for i := range s.Params {
		if s.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range s.Results {
		if s.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

// ExtFunc is a callee imported into a function. ID is opaque to this package
// and passed through to the host at run time.
type ExtFunc struct {
	Name string
	Sig  Signature
	ID   uint32
}

// StackSlotData describes an explicit stack allocation
type StackSlotData struct {
	Size  uint32
	Align uint32
}

// BlockCall is a branch destination with its arguments
type BlockCall struct {
	Block Block
	Args  []Value
}

// Inst is a single instruction. Fields are used depending on Op.
type Inst struct {
	Op      Opcode
	Type    Type // result type, or the operand width for stores and traps
	Cond    IntCC
	Args    []Value
	Imm     int64 // constants and memory offsets
	Results []Value
	Dests   []BlockCall
	Func    FuncRef
	Slot    StackSlot
	Sig     *Signature
	Trap    TrapCode
}

// Result returns the single result of the instruction
func (inst *Inst) Result() Value {
	if len(inst.Results) == 0 {
		return ValueInvalid
	}
	return inst.Results[0]
}

// ValueData describes where a value is defined
type ValueData struct {
	Type  Type
	Block Block
	Param int   // index in the block's params, or -1
	Inst  *Inst // defining instruction when Param < 0
}

type predEdge struct {
	block Block
	inst  *Inst
	dest  int
}

type incompleteParam struct {
	v     Variable
	param Value
}

// BlockData holds the contents of a basic block
type BlockData struct {
	Params []Value
	Insts  []*Inst

	preds      []predEdge
	sealed     bool
	filled     bool
	explicit   int
	incomplete []incompleteParam
	defs       map[Variable]Value
}

// Terminator returns the last instruction of a filled block
func (bd *BlockData) Terminator() *Inst {
	if len(bd.Insts) == 0 {
		return nil
	}
	last := bd.Insts[len(bd.Insts)-1]
	if !last.Op.IsTerminator() {
		return nil
	}
	return last
}

// Function is a function in SSA form. It is built by a Builder and becomes
// read-only once finalized.
type Function struct {
	Name       string
	Sig        Signature
	ExtFuncs   []ExtFunc
	StackSlots []StackSlotData

	blocks    []*BlockData
	values    []ValueData
	layout    []Block
	rpo       []Block
	finalized bool
}

// Entry returns the entry block
func (f *Function) Entry() Block {
	return 0
}

// Block returns the data of a block
func (f *Function) Block(b Block) *BlockData {
	return f.blocks[b]
}

// NumBlocks returns the number of created blocks, including unreachable ones
func (f *Function) NumBlocks() int {
	return len(f.blocks)
}

// NumValues returns the number of created values
func (f *Function) NumValues() int {
	return len(f.values)
}

// Value returns the definition data of a value
func (f *Function) Value(v Value) ValueData {
	return f.values[v]
}

// ValueType returns the type of a value
func (f *Function) ValueType(v Value) Type {
	return f.values[v].Type
}

// Layout returns the reachable blocks in creation order. Only valid after Finalize.
func (f *Function) Layout() []Block {
	return f.layout
}

// ReversePostorder returns the reachable blocks in reverse postorder. Only valid after Finalize.
func (f *Function) ReversePostorder() []Block {
	return f.rpo
}

// Finalized reports whether the function passed verification
func (f *Function) Finalized() bool {
	return f.finalized
}

// Successors returns the destinations of a block's terminator
func (f *Function) Successors(b Block) []Block {
	term := f.blocks[b].Terminator()
	if term == nil {
		return nil
	}
	succs := make([]Block, 0, len(term.Dests))
	for _, d := range term.Dests {
		succs = append(succs, d.Block)
	}
	return succs
}

func (f *Function) newValue(t Type, b Block, param int, inst *Inst) Value {
	f.values = append(f.values, ValueData{Type: t, Block: b, Param: param, Inst: inst})
	return Value(len(f.values) - 1)
}

// StackLayout assigns byte offsets to the stack slots and returns the total size
func (f *Function) StackLayout() ([]uint32, uint32) {
	offsets := make([]uint32, len(f.StackSlots))
	var size uint32
	for i, s := range f.StackSlots {
		size = (size + s.Align - 1) &^ (s.Align - 1)
		offsets[i] = size
		size += s.Size
	}
	return offsets, size
}
