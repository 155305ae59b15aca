//go:build amd64

package amd64

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/xyproto/lego/internal/backend"
	"github.com/xyproto/lego/internal/engine"
	"github.com/xyproto/lego/internal/ssa"
)

// entryFunc is called with the Go register ABI: frame in RAX, the address to
// continue at in RBX, and the exit code comes back in RAX.
type entryFunc func(frame unsafe.Pointer, pc uintptr) uint64

// makeEntry builds a func value whose code pointer is the start of the page.
// A func value points at a word holding the code address.
func makeEntry(code uintptr) entryFunc {
	holder := new(uintptr)
	*holder = code
	return *(*entryFunc)(unsafe.Pointer(&holder))
}

type executable struct {
	name       string
	prog       *program
	page       *engine.CodePage
	enter      entryFunc
	params     []ssa.Value
	paramTypes []ssa.Type
}

func newExecutable(fn *ssa.Function, prog *program, page *engine.CodePage) backend.Executable {
	return &executable{
		name:       fn.Name,
		prog:       prog,
		page:       page,
		enter:      makeEntry(page.Address()),
		params:     fn.Block(fn.Entry()).Params,
		paramTypes: fn.Sig.Params,
	}
}

func (x *executable) Size() int {
	return len(x.prog.code)
}

// Run executes the code, servicing host calls until it returns or traps
func (x *executable) Run(args []uint64, host backend.Host) ([]uint64, error) {
	if len(args) != len(x.params) {
		return nil, fmt.Errorf("amd64: %s expects %d arguments, got %d", x.name, len(x.params), len(args))
	}
	frame := make([]uint64, x.prog.frame.words+1)
	for i, p := range x.params {
		frame[p] = ssa.Canon(x.paramTypes[i], args[i])
	}
	base := unsafe.Pointer(&frame[0])
	defer runtime.KeepAlive(frame)

	start := x.page.Address()
	pc := start + uintptr(x.prog.entry)
	for {
		kind, idx := backend.DecodeExit(x.enter(base, pc))
		switch kind {
		case backend.ExitReturn:
			s := x.prog.sites[idx]
			results := make([]uint64, len(s.args))
			for i, w := range s.args {
				results[i] = frame[w]
			}
			return results, nil
		case backend.ExitTrap:
			return nil, &backend.Trap{Code: ssa.TrapCode(idx)}
		case backend.ExitCall:
			if int(idx) >= len(x.prog.sites) {
				return nil, fmt.Errorf("amd64: %s exited with unknown call site %d", x.name, idx)
			}
			s := x.prog.sites[idx]
			callArgs := make([]uint64, len(s.args))
			for i, w := range s.args {
				callArgs[i] = frame[w]
			}
			var results []uint64
			var err error
			if s.indirect {
				results, err = host.CallAddr(callArgs[0], s.sig, callArgs[1:])
			} else {
				results, err = host.Call(s.callee, callArgs)
			}
			if err != nil {
				return nil, err
			}
			if len(results) != len(s.results) {
				return nil, fmt.Errorf("amd64: callee returned %d results, expected %d", len(results), len(s.results))
			}
			for i, w := range s.results {
				frame[w] = ssa.Canon(s.types[i], results[i])
			}
			pc = start + uintptr(s.resume)
		default:
			return nil, fmt.Errorf("amd64: %s exited with unknown code %s", x.name, kind)
		}
	}
}
