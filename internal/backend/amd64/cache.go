package amd64

import (
	"encoding/binary"
	"errors"

	"github.com/xyproto/lego/internal/backend"
	"github.com/xyproto/lego/internal/ssa"
)

var errCorruptProgram = errors.New("amd64: corrupt cached program")

// encodeProgram serializes the position-independent parts of a lowered
// function so that identical functions are only lowered once.
func encodeProgram(p *program) []byte {
	buf := binary.AppendUvarint(nil, uint64(p.entry))
	buf = binary.AppendUvarint(buf, uint64(len(p.code)))
	buf = append(buf, p.code...)
	buf = binary.AppendUvarint(buf, uint64(len(p.sites)))
	for _, s := range p.sites {
		buf = append(buf, byte(s.kind))
		buf = appendWords(buf, s.args)
		buf = appendWords(buf, s.results)
		buf = appendTypes(buf, s.types)
		buf = binary.AppendUvarint(buf, uint64(s.callee))
		indirect := byte(0)
		if s.indirect {
			indirect = 1
		}
		buf = append(buf, indirect)
		buf = appendTypes(buf, s.sig.Params)
		buf = appendTypes(buf, s.sig.Results)
		buf = binary.AppendUvarint(buf, uint64(s.resume))
	}
	return buf
}

func appendWords(buf []byte, ws []uint32) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(ws)))
	for _, w := range ws {
		buf = binary.AppendUvarint(buf, uint64(w))
	}
	return buf
}

func appendTypes(buf []byte, ts []ssa.Type) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(ts)))
	for _, t := range ts {
		buf = append(buf, byte(t))
	}
	return buf
}

type programReader struct {
	buf []byte
	err error
}

func (r *programReader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.buf)
	if n <= 0 {
		r.err = errCorruptProgram
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

func (r *programReader) bytes(n uint64) []byte {
	if r.err != nil {
		return nil
	}
	if uint64(len(r.buf)) < n {
		r.err = errCorruptProgram
		return nil
	}
	out := append([]byte(nil), r.buf[:n]...)
	r.buf = r.buf[n:]
	return out
}

func (r *programReader) readByte() byte {
	b := r.bytes(1)
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

func (r *programReader) words() []uint32 {
	n := r.uvarint()
	if n > uint64(len(r.buf)) {
		r.err = errCorruptProgram
		return nil
	}
	ws := make([]uint32, n)
	for i := range ws {
		ws[i] = uint32(r.uvarint())
	}
	return ws
}

func (r *programReader) types() []ssa.Type {
	raw := r.bytes(r.uvarint())
	ts := make([]ssa.Type, len(raw))
	for i, b := range raw {
		ts[i] = ssa.Type(b)
	}
	return ts
}

// decodeProgram restores a program encoded by encodeProgram. The frame layout
// is recomputed from the function.
func decodeProgram(data []byte, frame frameLayout) (*program, error) {
	r := &programReader{buf: data}
	p := &program{frame: frame}
	p.entry = uint32(r.uvarint())
	p.code = r.bytes(r.uvarint())
	n := r.uvarint()
	if n > uint64(len(r.buf)) {
		return nil, errCorruptProgram
	}
	for i := uint64(0); i < n && r.err == nil; i++ {
		var s site
		s.kind = backend.ExitKind(r.readByte())
		s.args = r.words()
		s.results = r.words()
		s.types = r.types()
		s.callee = uint32(r.uvarint())
		s.indirect = r.readByte() == 1
		s.sig.Params = r.types()
		s.sig.Results = r.types()
		s.resume = uint32(r.uvarint())
		p.sites = append(p.sites, s)
	}
	if r.err != nil {
		return nil, r.err
	}
	return p, nil
}
