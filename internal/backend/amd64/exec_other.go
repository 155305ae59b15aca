//go:build !amd64

package amd64

import (
	"github.com/xyproto/lego/internal/backend"
	"github.com/xyproto/lego/internal/engine"
	"github.com/xyproto/lego/internal/ssa"
)

type executable struct {
	size int
}

func newExecutable(fn *ssa.Function, prog *program, page *engine.CodePage) backend.Executable {
	return &executable{size: len(prog.code)}
}

func (x *executable) Size() int { return x.size }

func (x *executable) Run(args []uint64, host backend.Host) ([]uint64, error) {
	return nil, ErrUnsupported
}
