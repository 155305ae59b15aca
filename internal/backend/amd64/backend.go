// Completion: 100% - Native backend complete

// Package amd64 compiles SSA functions to x86-64 machine code and runs them
// from mmap'd pages.
//
// Every SSA value lives in an 8-byte slot of a frame allocated by Go. The
// generated code only uses RAX, RCX, RDX and RDI (the frame base), so it
// never disturbs registers the Go runtime relies on. It returns to Go for
// host calls, returns and traps with an exit code in RAX; Go re-enters the
// code after a host call at the recorded resume address.
package amd64

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/xyproto/lego/internal/backend"
	"github.com/xyproto/lego/internal/engine"
	"github.com/xyproto/lego/internal/ssa"
)

// ErrUnsupported is returned by New when native code cannot run on this host
var ErrUnsupported = errors.New("amd64: native code is not supported on this host")

// Options configure the backend
type Options struct {
	// CacheBytes is the size of the machine code cache
	CacheBytes int
	Verbose    bool
}

// Backend is the x86-64 backend
type Backend struct {
	opts  Options
	cache *fastcache.Cache

	mu    sync.Mutex
	pages []*engine.CodePage

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New creates a native backend for the host
func New(opts Options) (*Backend, error) {
	if !engine.Host().CanRunNative() {
		return nil, fmt.Errorf("%w (%s)", ErrUnsupported, engine.Host())
	}
	if opts.CacheBytes <= 0 {
		opts.CacheBytes = 32 << 20
	}
	return &Backend{opts: opts, cache: fastcache.New(opts.CacheBytes)}, nil
}

func (b *Backend) Name() string { return "amd64" }

// Compile lowers fn, reusing cached machine code for identical functions,
// and copies the code into a fresh executable page.
func (b *Backend) Compile(fn *ssa.Function) (backend.Executable, error) {
	frame, err := layoutFrame(fn)
	if err != nil {
		return nil, err
	}
	key := binary.LittleEndian.AppendUint64([]byte("amd64:"), fn.Fingerprint())

	var prog *program
	if data := b.cache.GetBig(nil, key); len(data) > 0 {
		if prog, err = decodeProgram(data, frame); err == nil {
			b.hits.Add(1)
		}
	}
	if prog == nil {
		if prog, err = lower(fn, b.opts.Verbose); err != nil {
			return nil, err
		}
		b.cache.SetBig(key, encodeProgram(prog))
		b.misses.Add(1)
	}

	page, err := engine.AllocateCodePage(len(prog.code))
	if err != nil {
		return nil, err
	}
	if err := page.CopyCode(prog.code); err != nil {
		page.Free()
		return nil, err
	}
	b.mu.Lock()
	b.pages = append(b.pages, page)
	b.mu.Unlock()
	return newExecutable(fn, prog, page), nil
}

// CacheStats returns the number of cache hits and misses of Compile
func (b *Backend) CacheStats() (hits, misses uint64) {
	return b.hits.Load(), b.misses.Load()
}

// Close releases all code pages. Executables from this backend must not be
// run afterwards.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	for _, page := range b.pages {
		if err := page.Free(); err != nil {
			errs = append(errs, err)
		}
	}
	b.pages = nil
	b.cache.Reset()
	return errors.Join(errs...)
}
