package lego

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// logger writes diagnostics to stderr when the Context is verbose
type logger struct {
	w       io.Writer
	verbose bool
}

func newLogger(verbose bool) *logger {
	return &logger{w: os.Stderr, verbose: verbose}
}

func (l *logger) Printf(format string, args ...any) {
	if l.verbose {
		fmt.Fprintf(l.w, "lego: "+format+"\n", args...)
	}
}

// dump writes a block of text, such as the IR of a function, regardless of
// verbosity
func (l *logger) dump(title, text string) {
	fmt.Fprintf(l.w, "; %s\n%s", title, text)
	if !strings.HasSuffix(text, "\n") {
		fmt.Fprintln(l.w)
	}
}
