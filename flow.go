package lego

import "fmt"

// FlowKind says how a branch or loop body ended
type FlowKind uint8

const (
	FlowInvalid FlowKind = iota
	// FlowBreak falls through to the enclosing construct with values
	FlowBreak
	// FlowRet returns from the function with values
	FlowRet
	// FlowContinue starts the next iteration of the innermost loop with
	// values as the new carried state
	FlowContinue
	// FlowPreempt means the body already ended its block
	FlowPreempt
)

func (k FlowKind) String() string {
	switch k {
	case FlowBreak:
		return "break"
	case FlowRet:
		return "ret"
	case FlowContinue:
		return "continue"
	case FlowPreempt:
		return "preempt"
	default:
		return "invalid"
	}
}

// Flow is the build-time signal a body hands back to the construct that
// evaluated it. It has no runtime representation.
type Flow struct {
	kind   FlowKind
	values []Value
}

// Break falls through with vs
func Break(vs ...Value) Flow { return Flow{kind: FlowBreak, values: vs} }

// Ret returns vs from the function
func Ret(vs ...Value) Flow { return Flow{kind: FlowRet, values: vs} }

// Continue jumps to the header of the innermost loop with vs as its state
func Continue(vs ...Value) Flow { return Flow{kind: FlowContinue, values: vs} }

// Preempt signals that the current block was already terminated
func Preempt() Flow { return Flow{kind: FlowPreempt} }

func (f Flow) Kind() FlowKind { return f.kind }

// Values returns the values carried by Break, Ret or Continue
func (f Flow) Values() []Value {
	return append([]Value(nil), f.values...)
}

// Value returns the single value carried by the Flow
func (f Flow) Value() Value {
	if len(f.values) != 1 {
		panic(contractError("%s carries %d values, expected 1", f.kind, len(f.values)))
	}
	return f.values[0]
}

func (f Flow) String() string {
	return fmt.Sprintf("%s%s", f.kind, typeList(typesOf(f.values)))
}
