// Completion: 100% - Backend contract complete
package backend

import (
	"fmt"

	"github.com/xyproto/lego/internal/ssa"
)

// Backend turns finalized SSA functions into executables
type Backend interface {
	Name() string
	Compile(fn *ssa.Function) (Executable, error)
	Close() error
}

// Executable runs a compiled function. Arguments and results are passed as
// canonical 64-bit slots in signature order.
type Executable interface {
	Run(args []uint64, host Host) ([]uint64, error)
	// Size returns the number of bytes of generated code, or 0 for interpreted code
	Size() int
}

// Host services calls that leave generated code
type Host interface {
	// Call invokes the imported callee with the given id
	Call(id uint32, args []uint64) ([]uint64, error)
	// CallAddr invokes the callee at a code address. sig is the signature the
	// call site expects.
	CallAddr(addr uint64, sig ssa.Signature, args []uint64) ([]uint64, error)
}

// Trap is returned when generated code stops at a trapping instruction
type Trap struct {
	Code ssa.TrapCode
}

func (t *Trap) Error() string {
	return "trap: " + t.Code.String()
}

// ExitKind is the low byte of the code generated functions hand back to Go
type ExitKind uint8

const (
	ExitReturn ExitKind = iota + 1
	ExitTrap
	ExitCall
)

func (k ExitKind) String() string {
	switch k {
	case ExitReturn:
		return "return"
	case ExitTrap:
		return "trap"
	case ExitCall:
		return "call"
	default:
		return fmt.Sprintf("exit(%d)", uint8(k))
	}
}

// ExitCode packs an exit kind and a site index into the value returned by
// native code in RAX.
func ExitCode(kind ExitKind, index uint32) uint32 {
	return uint32(kind) | index<<8
}

// DecodeExit splits an exit code into kind and index
func DecodeExit(code uint64) (ExitKind, uint32) {
	return ExitKind(code & 0xFF), uint32(code>>8) & 0xFFFFFF
}
