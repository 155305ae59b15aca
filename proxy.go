// Completion: 100% - Memory proxies complete
package lego

import (
	"math"

	"github.com/xyproto/lego/internal/ssa"
)

// Ref is a typed location: a pointer value plus a constant byte offset
type Ref struct {
	base Value
	off  int64
	typ  Type
}

// RefMut is a Ref that can also be written
type RefMut struct {
	Ref
}

// Deref turns a reference value into a mutable proxy for what it points to
func (b *Builder) Deref(p Value) RefMut {
	b.use(p)
	if p.typ.kind != KindRef {
		panic(typeError("cannot dereference %s", p.typ))
	}
	return RefMut{Ref{base: p, typ: p.typ.Elem()}}
}

// At returns a mutable proxy for a value of type t at p+off
func (b *Builder) At(p Value, off int64, t Type) RefMut {
	b.use(p)
	if !p.typ.IsPointer() {
		panic(typeError("At needs a pointer, got %s", p.typ))
	}
	return RefMut{Ref{base: p, off: off, typ: t}}
}

// Type returns the type of the referenced value
func (r Ref) Type() Type { return r.typ }

// Offset returns the static byte offset from the base pointer
func (r Ref) Offset() int64 { return r.off }

// Addr computes the address of the location as a reference value
func (r Ref) Addr(b *Builder) Value {
	p := b.Convert(r.base, Ptr)
	if r.off != 0 {
		p = b.PtrAdd(p, b.I64(r.off))
	}
	return b.Convert(p, RefTo(r.typ))
}

// Field returns the location of type t at a further offset
func (r Ref) Field(off int64, t Type) Ref {
	return Ref{base: r.base, off: r.off + off, typ: t}
}

// Load reads the referenced scalar
func (r Ref) Load(b *Builder) Value {
	base := b.use(r.base)
	if !r.typ.IsScalar() {
		panic(typeError("cannot load a value of type %s", r.typ))
	}
	return b.wrap(b.fb.Load(r.typ.ssaType(), base, r.disp()), r.typ)
}

// Field returns the mutable location of type t at a further offset
func (r RefMut) Field(off int64, t Type) RefMut {
	return RefMut{r.Ref.Field(off, t)}
}

// Store writes v to the referenced location
func (r RefMut) Store(b *Builder, v Value) {
	base, val := b.use(r.base), b.use(v)
	if !v.typ.Equal(r.typ) {
		panic(typeMismatch("store", r.typ, v.typ))
	}
	b.fb.Store(val, base, r.disp())
}

func (r Ref) disp() int32 {
	if r.off < math.MinInt32 || r.off > math.MaxInt32 {
		panic(contractError("offset %d does not fit in 32 bits", r.off))
	}
	return int32(r.off)
}

// Slice is a (length, pointer) pair. Index does not check bounds; use
// IndexChecked to trap on an out of range index.
type Slice struct {
	len  Value
	ptr  Value
	elem Type
}

// MakeSlice combines a pointer and a length of Usize into a slice of elem
func (b *Builder) MakeSlice(ptr, n Value, elem Type) Slice {
	b.use(ptr)
	b.use(n)
	if !ptr.typ.IsPointer() {
		panic(typeError("slice data must be a pointer, got %s", ptr.typ))
	}
	if !n.typ.Equal(Usize) {
		panic(typeMismatch("slice length", Usize, n.typ))
	}
	return Slice{len: n, ptr: b.Convert(ptr, RefTo(elem)), elem: elem}
}

// Len returns the length of the slice
func (s Slice) Len() Value { return s.len }

// Ptr returns the data pointer of the slice
func (s Slice) Ptr() Value { return s.ptr }

// Elem returns the element type
func (s Slice) Elem() Type { return s.elem }

// Index returns element i without a bounds check
func (s Slice) Index(b *Builder, i Value) RefMut {
	b.use(i)
	if i.typ.kind != KindInt {
		panic(typeError("slice index must be an integer, got %s", i.typ))
	}
	idx := b.Convert(i, Usize)
	off := b.Mul(idx, b.Usize(uint64(s.elem.Size())))
	return RefMut{Ref{base: b.PtrAdd(s.ptr, off), typ: s.elem}}
}

// IndexChecked returns element i and traps with TrapOutOfBounds when i is
// not below the length
func (s Slice) IndexChecked(b *Builder, i Value) RefMut {
	idx := b.Convert(i, Usize)
	oob := b.Ge(idx, s.len)
	b.fb.Trapnz(b.use(oob), ssa.TrapOutOfBounds)
	return s.Index(b, idx)
}

// StackAlloc reserves size bytes in the frame of the generated function and
// returns their address. The memory is not initialized.
func (b *Builder) StackAlloc(size, align uint32) Value {
	slot := b.fb.CreateStackSlot(size, align)
	return b.wrap(b.fb.StackAddr(slot, 0), Ptr)
}
