package lego

import (
	"errors"
	"strings"
	"testing"
)

func TestContractViolations(t *testing.T) {
	ctx := newTestContext(t, BackendInterp)

	var leaked Value
	mustBuild(t, ctx, "leak", Sig([]Type{U64}, U64), func(b *Builder) Flow {
		leaked = b.Param(0)
		return Break(leaked)
	})

	tests := []struct {
		name     string
		sig      Signature
		category ErrorCategory
		body     func(*Builder) Flow
	}{
		{
			name:     "mismatched merge shapes",
			sig:      Sig([]Type{Bool}, U32),
			category: CategoryContract,
			body: func(b *Builder) Flow {
				return b.If(b.Param(0),
					func(b *Builder) Flow { return Break(b.U32(1)) },
					func(b *Builder) Flow { return Break(b.U64(2)) },
				)
			},
		},
		{
			name:     "when with values",
			sig:      Sig([]Type{Bool}, U32),
			category: CategoryContract,
			body: func(b *Builder) Flow {
				return b.When(b.Param(0), func(b *Builder) Flow { return Break(b.U32(1)) })
			},
		},
		{
			name:     "value from another build",
			sig:      Sig([]Type{U64}, U64),
			category: CategoryContract,
			body: func(b *Builder) Flow {
				return Break(b.Add(leaked, b.Param(0)))
			},
		},
		{
			name:     "continue outside a loop",
			sig:      Sig(nil),
			category: CategoryContract,
			body: func(b *Builder) Flow {
				return Continue()
			},
		},
		{
			name:     "continue in a branch outside a loop",
			sig:      Sig([]Type{Bool}),
			category: CategoryContract,
			body: func(b *Builder) Flow {
				b.When(b.Param(0), func(b *Builder) Flow { return Continue() })
				return Break()
			},
		},
		{
			name:     "operand types differ",
			sig:      Sig([]Type{U32, U64}, U64),
			category: CategoryType,
			body: func(b *Builder) Flow {
				return Break(b.Add(b.Param(0), b.Param(1)))
			},
		},
		{
			name:     "wrong return type",
			sig:      Sig([]Type{U32}, U64),
			category: CategoryType,
			body: func(b *Builder) Flow {
				return Break(b.Param(0))
			},
		},
		{
			name:     "non-boolean condition",
			sig:      Sig([]Type{U32}, U32),
			category: CategoryType,
			body: func(b *Builder) Flow {
				return b.If(b.Param(0),
					func(b *Builder) Flow { return Break(b.U32(1)) },
					func(b *Builder) Flow { return Break(b.U32(2)) },
				)
			},
		},
		{
			name:     "negating an unsigned value",
			sig:      Sig([]Type{U32}, U32),
			category: CategoryType,
			body: func(b *Builder) Flow {
				return Break(b.Neg(b.Param(0)))
			},
		},
		{
			name:     "loop state changes type",
			sig:      Sig(nil, U32),
			category: CategoryType,
			body: func(b *Builder) Flow {
				return b.Loop([]Value{b.U32(0)},
					func(b *Builder, s []Value) Value { return b.Lt(s[0], b.U32(3)) },
					func(b *Builder, s []Value) Flow { return Break(b.U64(1)) },
				)
			},
		},
		{
			name:     "parameter out of range",
			sig:      Sig([]Type{U32}, U32),
			category: CategoryContract,
			body: func(b *Builder) Flow {
				return Break(b.Param(3))
			},
		},
	}
	for _, tt := range tests {
		_, err := ctx.Build("bad", tt.sig, tt.body)
		var be *BuildError
		if !errors.As(err, &be) {
			t.Fatalf("%s: expected *BuildError, got %v", tt.name, err)
		}
		if be.Category != tt.category {
			t.Fatalf("%s: expected a %s error, got %s: %v", tt.name, tt.category, be.Category, be)
		}
		if be.Func != "bad" {
			t.Fatalf("%s: expected the error to name the function, got %q", tt.name, be.Func)
		}
	}

	// the context is still usable after failed builds
	if got := mustCall[int32](t, buildMax(t, ctx), 1, 2); got != 2 {
		t.Fatalf("Expected 2, got %d", got)
	}
}

func TestReentrantBuildIsRejected(t *testing.T) {
	ctx := newTestContext(t, BackendInterp)
	var inner error
	mustBuild(t, ctx, "outer", Sig(nil, U8), func(b *Builder) Flow {
		_, inner = ctx.Build("inner", Sig(nil), func(b *Builder) Flow { return Break() })
		return Break(b.U8(1))
	})
	if !errors.Is(inner, ErrReentrantBuild) {
		t.Fatalf("Expected ErrReentrantBuild, got %v", inner)
	}
}

func TestBuildAfterClose(t *testing.T) {
	ctx := newTestContext(t, BackendInterp)
	if err := ctx.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := ctx.Build("late", Sig(nil), func(b *Builder) Flow { return Break() }); !errors.Is(err, ErrClosed) {
		t.Fatalf("Expected ErrClosed, got %v", err)
	}
	if err := ctx.Close(); err != nil {
		t.Fatalf("Expected a second Close to be a no-op, got %v", err)
	}
}

func TestInvokeAfterClose(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ctx *Context) {
		f := buildMax(t, ctx)
		if got := mustCall[int32](t, f, 1, 2); got != 2 {
			t.Fatalf("Expected 2, got %d", got)
		}
		if err := ctx.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if _, err := f.Invoke(int32(1), int32(2)); !errors.Is(err, ErrClosed) {
			t.Fatalf("Expected ErrClosed, got %v", err)
		}
		if _, err := Call[int32](f, 3, 4); !errors.Is(err, ErrClosed) {
			t.Fatalf("Expected ErrClosed from Call, got %v", err)
		}
	})
}

func TestSignatureValidation(t *testing.T) {
	ctx := newTestContext(t, BackendInterp)
	_, err := ctx.Build("slice_result", Sig(nil, SliceOf(U8)), func(b *Builder) Flow { return Break() })
	var be *BuildError
	if !errors.As(err, &be) || be.Category != CategoryType {
		t.Fatalf("Expected a type error for a slice result, got %v", err)
	}
}

func TestBuildErrorFormat(t *testing.T) {
	err := &BuildError{
		Category:   CategoryHostBinding,
		Func:       "f",
		Message:    "no host function named \"prnt\"",
		Suggestion: "did you mean 'print'?",
		Help:       "register it with Context.RegisterHost",
	}
	plain := err.Format(false)
	for _, want := range []string{"host-binding error: ", "  --> f\n", "   help: did you mean 'print'?", "   note: register it"} {
		if !strings.Contains(plain, want) {
			t.Fatalf("Expected %q in:\n%s", want, plain)
		}
	}
	if strings.Contains(plain, "\033[") {
		t.Fatalf("Expected no color codes, got %q", plain)
	}
	if !strings.Contains(err.Format(true), "\033[1;31m") {
		t.Fatalf("Expected color codes in the colored format")
	}
	if got := err.Error(); got != `lego: f: host-binding error: no host function named "prnt"` {
		t.Fatalf("Unexpected error text: %s", got)
	}
}

func TestDumpIRAndVerboseLogging(t *testing.T) {
	var sb strings.Builder
	ctx := newTestContext(t, BackendInterp, WithVerbose(true))
	ctx.log.w = &sb
	ctx.cfg.DumpIR = true
	buildMax(t, ctx)
	out := sb.String()
	for _, want := range []string{"lego: building max", "; max\nfunction %max(", "lego: built max"} {
		if !strings.Contains(out, want) {
			t.Fatalf("Expected %q in the log, got:\n%s", want, out)
		}
	}
}
