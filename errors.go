// Completion: 100% - Error handling complete, clear and helpful messages
package lego

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xyproto/lego/internal/ssa"
)

var (
	// ErrReentrantBuild is returned when Build is called while another build
	// on the same Context is still open
	ErrReentrantBuild = errors.New("lego: a function is already being built on this context")
	// ErrClosed is returned by operations on a closed Context
	ErrClosed = errors.New("lego: context is closed")
	// ErrUnknownHost is wrapped by errors about host functions that were never registered
	ErrUnknownHost = errors.New("lego: unknown host function")
	// ErrNoBackend is returned when the configured backend cannot be used on this host
	ErrNoBackend = errors.New("lego: no usable backend")
)

// ErrorCategory classifies a build error
type ErrorCategory int

const (
	CategoryContract ErrorCategory = iota
	CategoryType
	CategoryHostBinding
	CategoryBackend
	CategoryInternal
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryContract:
		return "contract"
	case CategoryType:
		return "type"
	case CategoryHostBinding:
		return "host-binding"
	case CategoryBackend:
		return "backend"
	case CategoryInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// BuildError aborts the construction of a function
type BuildError struct {
	Category   ErrorCategory
	Func       string
	Message    string
	Suggestion string // "did you mean 'x'?"
	Help       string
	Err        error
}

// Error implements the error interface
func (e *BuildError) Error() string {
	if e.Func == "" {
		return fmt.Sprintf("lego: %s error: %s", e.Category, e.Message)
	}
	return fmt.Sprintf("lego: %s: %s error: %s", e.Func, e.Category, e.Message)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// Format returns a multi-line message with the suggestion and help text
func (e *BuildError) Format(useColor bool) string {
	var sb strings.Builder

	if useColor {
		sb.WriteString("\033[1;31m") // Bold red
	}
	sb.WriteString(e.Category.String())
	sb.WriteString(" error: ")
	if useColor {
		sb.WriteString("\033[0m")
	}
	sb.WriteString(e.Message)
	sb.WriteString("\n")

	if e.Func != "" {
		if useColor {
			sb.WriteString("\033[1;34m") // Bold blue
		}
		sb.WriteString("  --> ")
		sb.WriteString(e.Func)
		if useColor {
			sb.WriteString("\033[0m")
		}
		sb.WriteString("\n")
	}

	if e.Suggestion != "" {
		if useColor {
			sb.WriteString("\033[1;32m") // Bold green
		}
		sb.WriteString("   help: ")
		if useColor {
			sb.WriteString("\033[0m")
		}
		sb.WriteString(e.Suggestion)
		sb.WriteString("\n")
	}

	if e.Help != "" {
		if useColor {
			sb.WriteString("\033[1;36m") // Bold cyan
		}
		sb.WriteString("   note: ")
		if useColor {
			sb.WriteString("\033[0m")
		}
		sb.WriteString(e.Help)
		sb.WriteString("\n")
	}

	return sb.String()
}

// Helper functions for the common build errors. The builders panic with
// these and Context.Build turns the panic back into an error.

func contractError(format string, args ...any) *BuildError {
	return &BuildError{Category: CategoryContract, Message: fmt.Sprintf(format, args...)}
}

func typeError(format string, args ...any) *BuildError {
	return &BuildError{Category: CategoryType, Message: fmt.Sprintf(format, args...)}
}

func hostError(err error, format string, args ...any) *BuildError {
	return &BuildError{Category: CategoryHostBinding, Message: fmt.Sprintf(format, args...), Err: err}
}

func typeMismatch(what string, expected, actual any) *BuildError {
	return typeError("%s: expected %v, got %v", what, expected, actual)
}

// fromSSA converts a panic of the SSA builder into a build error
func fromSSA(err *ssa.Error) *BuildError {
	return &BuildError{
		Category: CategoryContract,
		Func:     err.Func,
		Message:  err.Message,
		Help:     "blocks must be sealed exactly once, after every jump into them was emitted",
		Err:      err,
	}
}

// TrapCode identifies why generated code stopped
type TrapCode = ssa.TrapCode

const (
	TrapUnreachable     = ssa.TrapUnreachable
	TrapIntegerOverflow = ssa.TrapIntegerOverflow
	TrapDivisionByZero  = ssa.TrapDivisionByZero
	TrapOutOfBounds     = ssa.TrapOutOfBounds
	TrapBadHostAddress  = ssa.TrapBadHostAddress
)

// TrapError is returned by Invoke when generated code traps
type TrapError struct {
	Code TrapCode
	Func string
}

func (e *TrapError) Error() string {
	return fmt.Sprintf("lego: %s trapped: %s", e.Func, e.Code)
}
