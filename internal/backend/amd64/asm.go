// Completion: 100% - Code buffer with labels complete
package amd64

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
)

// Label marks a position in the code that branches can target before it is known
type Label int

type fixup struct {
	at    int // offset of the rel32 field
	label Label
}

// Assembler accumulates machine code. Forward branches are recorded as
// fixups and patched by Finish. After Finish, no more writes are allowed.
type Assembler struct {
	buf       bytes.Buffer
	labels    []int
	fixups    []fixup
	committed bool
	name      string
	Verbose   bool
}

// NewAssembler creates an assembler with a name for debugging
func NewAssembler(name string) *Assembler {
	return &Assembler{name: name}
}

func (a *Assembler) emit(bs ...byte) {
	if a.committed {
		panic(fmt.Sprintf("Assembler(%s): Cannot write to committed buffer", a.name))
	}
	a.buf.Write(bs)
}

func (a *Assembler) emit32(v uint32) {
	a.emit(binary.LittleEndian.AppendUint32(nil, v)...)
}

func (a *Assembler) emit64(v uint64) {
	a.emit(binary.LittleEndian.AppendUint64(nil, v)...)
}

func (a *Assembler) logf(format string, args ...any) {
	if a.Verbose {
		fmt.Fprintf(os.Stderr, "%s %04x: "+format+"\n", append([]any{a.name, a.buf.Len()}, args...)...)
	}
}

// Len returns the current code size
func (a *Assembler) Len() int {
	return a.buf.Len()
}

// NewLabel creates an unbound label
func (a *Assembler) NewLabel() Label {
	a.labels = append(a.labels, -1)
	return Label(len(a.labels) - 1)
}

// Bind sets the label to the current position
func (a *Assembler) Bind(l Label) {
	if a.labels[l] >= 0 {
		panic(fmt.Sprintf("Assembler(%s): label %d bound twice", a.name, l))
	}
	a.labels[l] = a.buf.Len()
}

// Offset returns the position of a bound label
func (a *Assembler) Offset(l Label) int {
	return a.labels[l]
}

func (a *Assembler) rel32(l Label) {
	a.fixups = append(a.fixups, fixup{at: a.buf.Len(), label: l})
	a.emit32(0)
}

// Finish patches all branches and commits the buffer
func (a *Assembler) Finish() ([]byte, error) {
	code := a.buf.Bytes()
	for _, f := range a.fixups {
		target := a.labels[f.label]
		if target < 0 {
			return nil, fmt.Errorf("Assembler(%s): branch to unbound label %d", a.name, f.label)
		}
		rel := int32(target - (f.at + 4))
		binary.LittleEndian.PutUint32(code[f.at:], uint32(rel))
	}
	if a.Verbose {
		fmt.Fprintf(os.Stderr, "Assembler(%s): Committed with %d bytes\n", a.name, len(code))
	}
	a.committed = true
	return code, nil
}
