//go:build !unix

package engine

import "errors"

// ExecMemSupported reports whether CodePage can be allocated on this OS
const ExecMemSupported = false

var errNoExecMem = errors.New("executable memory is not supported on this platform")

// CodePage is unavailable on this platform
type CodePage struct{}

// AllocateCodePage always fails on this platform
func AllocateCodePage(size int) (*CodePage, error) {
	return nil, errNoExecMem
}

func (page *CodePage) CopyCode(code []byte) error { return errNoExecMem }
func (page *CodePage) Address() uintptr           { return 0 }
func (page *CodePage) Size() int                  { return 0 }
func (page *CodePage) Free() error                { return nil }
