package lego

import (
	"sync"
	"unsafe"
)

// Host side of Vec. Vectors live in Go memory and generated code refers to
// them by handle.
var vecs = struct {
	sync.Mutex
	next uint64
	m    map[uint64]*[]uint64
}{m: make(map[uint64]*[]uint64)}

func vecNew() uint64 {
	vecs.Lock()
	defer vecs.Unlock()
	vecs.next++
	s := make([]uint64, 0, 4)
	vecs.m[vecs.next] = &s
	return vecs.next
}

func vecGet(h uint64) *[]uint64 {
	vecs.Lock()
	defer vecs.Unlock()
	s, ok := vecs.m[h]
	if !ok {
		panic("lego: use of a dropped or unknown Vec")
	}
	return s
}

func vecPush(h, x uint64) {
	s := vecGet(h)
	*s = append(*s, x)
}

func vecLen(h uint64) uint {
	return uint(len(*vecGet(h)))
}

// vecData returns the address of the first element. It is valid until the
// next push.
func vecData(h uint64) unsafe.Pointer {
	s := *vecGet(h)
	if cap(s) == 0 {
		return nil
	}
	return unsafe.Pointer(unsafe.SliceData(s))
}

func vecDrop(h uint64) {
	vecs.Lock()
	defer vecs.Unlock()
	delete(vecs.m, h)
}

func liveVecs() int {
	vecs.Lock()
	defer vecs.Unlock()
	return len(vecs.m)
}

var vecBuiltins = []hostOption{
	{"lego.vec_new", vecNew},
	{"lego.vec_push", vecPush},
	{"lego.vec_len", vecLen},
	{"lego.vec_data", vecData},
	{"lego.vec_drop", vecDrop},
}

func registerVecBuiltins(c *Context) error {
	for _, h := range vecBuiltins {
		if _, err := c.RegisterHost(h.name, h.fn); err != nil {
			return err
		}
	}
	return nil
}

// Vec is a growable vector of u64 owned by the host. Its handle is kept in
// a stack slot of the generated function, and every operation is a host
// call. A Vec must be dropped explicitly.
type Vec struct {
	handle RefMut
}

// NewVec creates an empty vector
func (b *Builder) NewVec() Vec {
	slot := b.StackAlloc(8, 8)
	v := Vec{handle: b.At(slot, 0, U64)}
	v.handle.Store(b, b.CallHost("lego.vec_new")[0])
	return v
}

func (v Vec) load(b *Builder) Value {
	return v.handle.Load(b)
}

// Push appends x, which is converted to u64
func (v Vec) Push(b *Builder, x Value) {
	b.CallHost("lego.vec_push", v.load(b), b.Convert(x, U64))
}

// Len returns the number of elements as a Usize
func (v Vec) Len(b *Builder) Value {
	return b.CallHost("lego.vec_len", v.load(b))[0]
}

// AsSlice views the current elements. The view is invalidated by Push.
func (v Vec) AsSlice(b *Builder) Slice {
	h := v.load(b)
	n := b.CallHost("lego.vec_len", h)[0]
	p := b.CallHost("lego.vec_data", h)[0]
	return b.MakeSlice(p, n, U64)
}

// Drop releases the vector
func (v Vec) Drop(b *Builder) {
	b.CallHost("lego.vec_drop", v.load(b))
}
