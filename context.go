// Completion: 100% - Build driver complete
package lego

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/xyproto/lego/internal/backend"
	"github.com/xyproto/lego/internal/backend/amd64"
	"github.com/xyproto/lego/internal/backend/interp"
	"github.com/xyproto/lego/internal/engine"
	"github.com/xyproto/lego/internal/ssa"
)

// Context owns a backend, the host bindings and every function compiled
// through it. Builds are sequential; compiled functions may be invoked
// concurrently.
type Context struct {
	cfg     Config
	backend backend.Backend
	native  *amd64.Backend
	hosts   *hostRegistry
	stats   *contextStats
	log     *logger

	mu    sync.RWMutex
	funcs []*Func

	serial   uint64
	building atomic.Bool
	closed   atomic.Bool
}

type hostOption struct {
	name string
	fn   any
}

type options struct {
	cfg   Config
	hosts []hostOption
}

// Option configures New
type Option func(*options)

// WithConfig replaces the configuration, which otherwise comes from
// ConfigFromEnv
func WithConfig(cfg Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithBackend selects the backend by name
func WithBackend(name string) Option {
	return func(o *options) { o.cfg.Backend = name }
}

// WithVerbose turns diagnostic output on or off
func WithVerbose(verbose bool) Option {
	return func(o *options) { o.cfg.Verbose = verbose }
}

// WithHost registers a host function when the Context is created
func WithHost(name string, fn any) Option {
	return func(o *options) { o.hosts = append(o.hosts, hostOption{name, fn}) }
}

// New creates a Context
func New(opts ...Option) (*Context, error) {
	o := options{cfg: ConfigFromEnv()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Context{
		cfg:   o.cfg,
		hosts: newHostRegistry(),
		log:   newLogger(o.cfg.Verbose),
	}
	if err := c.openBackend(); err != nil {
		return nil, err
	}
	c.stats = newContextStats(func() uint64 {
		if c.native == nil {
			return 0
		}
		hits, _ := c.native.CacheStats()
		return hits
	})
	c.log.Printf("using the %s backend on %s", c.backend.Name(), engine.Host())

	if err := registerVecBuiltins(c); err != nil {
		c.backend.Close()
		return nil, err
	}
	for _, h := range o.hosts {
		if _, err := c.RegisterHost(h.name, h.fn); err != nil {
			c.backend.Close()
			return nil, err
		}
	}
	return c, nil
}

func (c *Context) openBackend() error {
	switch c.cfg.Backend {
	case BackendAmd64:
		nb, err := amd64.New(amd64.Options{CacheBytes: c.cfg.CodeCacheBytes, Verbose: c.cfg.Verbose})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNoBackend, err)
		}
		c.backend, c.native = nb, nb
	case BackendInterp:
		c.backend = interp.New()
	default:
		nb, err := amd64.New(amd64.Options{CacheBytes: c.cfg.CodeCacheBytes, Verbose: c.cfg.Verbose})
		if err == nil {
			c.backend, c.native = nb, nb
			return nil
		}
		if !errors.Is(err, amd64.ErrUnsupported) {
			return fmt.Errorf("%w: %v", ErrNoBackend, err)
		}
		c.backend = interp.New()
	}
	return nil
}

// Config returns the configuration of the Context
func (c *Context) Config() Config {
	return c.cfg
}

// BackendName returns the name of the backend in use
func (c *Context) BackendName() string {
	return c.backend.Name()
}

// RegisterHost binds a top-level Go function under name so generated code
// can call it. Function literals and method values are rejected.
func (c *Context) RegisterHost(name string, fn any) (*HostFunc, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	h, err := c.hosts.bind(name, fn)
	if err != nil {
		return nil, &BuildError{Category: CategoryHostBinding, Message: err.Error(), Err: err}
	}
	c.log.Printf("bound host function %s %s", name, h.sig)
	return h, nil
}

// Build constructs a function. body receives the Builder positioned in the
// entry block; the Flow it returns supplies the final return. Contract
// violations inside body come back as *BuildError and nothing is compiled.
func (c *Context) Build(name string, sig Signature, body func(*Builder) Flow) (*Func, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if !c.building.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: cannot start %s", ErrReentrantBuild, name)
	}
	defer c.building.Store(false)

	f, err := c.build(name, sig, body)
	if err != nil {
		c.stats.buildErrors.Inc()
		c.log.Printf("build of %s failed: %v", name, err)
		return nil, err
	}
	c.stats.built.Inc()
	c.stats.codeBytes.Add(f.exec.Size())
	c.log.Printf("built %s %s: %d blocks, %d bytes of code", name, sig, f.fn.NumBlocks(), f.exec.Size())
	return f, nil
}

func (c *Context) build(name string, sig Signature, body func(*Builder) Flow) (*Func, error) {
	if err := sig.validate(); err != nil {
		return nil, &BuildError{Category: CategoryType, Func: name, Message: err.Error()}
	}
	c.serial++
	c.log.Printf("building %s %s", name, sig)

	fn, err := c.construct(newBuilder(c, name, sig, c.serial), body)
	if err != nil {
		return nil, err
	}
	if c.cfg.DumpIR {
		c.log.dump(name, fn.String())
	}
	exec, err := c.backend.Compile(fn)
	if err != nil {
		return nil, &BuildError{Category: CategoryBackend, Func: name, Message: err.Error(), Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	f := &Func{
		ctx:   c,
		name:  name,
		sig:   sig,
		fn:    fn,
		exec:  exec,
		index: uint32(len(c.funcs)),
	}
	c.funcs = append(c.funcs, f)
	return f, nil
}

// construct runs body and finalizes the function, turning builder panics
// into errors
func (c *Context) construct(b *Builder, body func(*Builder) Flow) (fn *ssa.Function, err error) {
	defer func() {
		if r := recover(); r != nil {
			switch e := r.(type) {
			case *BuildError:
				if e.Func == "" {
					e.Func = b.name
				}
				err = e
			case *ssa.Error:
				err = fromSSA(e)
			default:
				panic(r)
			}
		}
	}()
	b.finish(body(b))
	fn, err = b.fb.Finalize()
	if err != nil {
		return nil, &BuildError{Category: CategoryInternal, Func: b.name, Message: err.Error(), Err: err}
	}
	return fn, nil
}

func (c *Context) funcAt(index uint32) (*Func, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if int(index) >= len(c.funcs) {
		return nil, false
	}
	return c.funcs[index], true
}

// Close releases the executable memory of every compiled function. Funcs of
// this Context must not be invoked afterwards.
func (c *Context) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.log.Printf("closing, %d functions compiled", len(c.funcs))
	return c.backend.Close()
}
