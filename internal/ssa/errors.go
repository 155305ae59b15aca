package ssa

import "fmt"

// Error is raised (as a panic) when the builder is used in a way that cannot
// produce a valid function, and returned by Finalize when verification fails.
type Error struct {
	Func    string
	Message string
}

func (e *Error) Error() string {
	if e.Func == "" {
		return "ssa: " + e.Message
	}
	return fmt.Sprintf("ssa: %s: %s", e.Func, e.Message)
}

func (b *Builder) fail(format string, args ...any) {
	panic(&Error{Func: b.fn.Name, Message: fmt.Sprintf(format, args...)})
}
