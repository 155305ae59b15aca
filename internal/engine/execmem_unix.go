// Completion: 100% - Platform-specific module complete
//go:build unix

package engine

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ExecMemSupported reports whether CodePage can be allocated on this OS
const ExecMemSupported = true

// CodePage is a region of memory holding generated machine code. It is
// writable until Seal and executable afterwards, never both.
type CodePage struct {
	mem    []byte
	size   int
	sealed bool
}

// AllocateCodePage maps a writable region large enough for size bytes
func AllocateCodePage(size int) (*CodePage, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid code size %d", size)
	}
	pageSize := unix.Getpagesize()
	allocSize := ((size + pageSize - 1) / pageSize) * pageSize

	mem, err := unix.Mmap(-1, 0, allocSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap failed: %w", err)
	}
	return &CodePage{mem: mem, size: size}, nil
}

// CopyCode copies code to the start of the page and makes it executable
func (page *CodePage) CopyCode(code []byte) error {
	if page.sealed {
		return fmt.Errorf("code page already sealed")
	}
	if len(code) > len(page.mem) {
		return fmt.Errorf("code size %d exceeds page size %d", len(code), len(page.mem))
	}
	copy(page.mem, code)
	if err := unix.Mprotect(page.mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return fmt.Errorf("mprotect failed: %w", err)
	}
	page.sealed = true
	return nil
}

// Address returns the address of the first byte of the page
func (page *CodePage) Address() uintptr {
	return uintptr(unsafe.Pointer(&page.mem[0]))
}

// Size returns the number of code bytes requested for the page
func (page *CodePage) Size() int {
	return page.size
}

// Free unmaps the page
func (page *CodePage) Free() error {
	if page.mem == nil {
		return nil
	}
	err := unix.Munmap(page.mem)
	page.mem = nil
	if err != nil {
		return fmt.Errorf("munmap failed: %w", err)
	}
	return nil
}
