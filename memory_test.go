package lego

import (
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type point struct {
	X   int32
	Y   int32
	Tag struct {
		Kind   uint8
		Weight uint16
	}
}

type counter struct {
	N    uint64
	Step uint64
}

var droppedCounters atomic.Int64

func counterInit(p *counter, step uint64) {
	p.N = 1
	p.Step = step
}

func counterDrop(p *counter) {
	p.N, p.Step = 0, 0
	droppedCounters.Add(1)
}

func TestLayoutOf(t *testing.T) {
	l, err := LayoutOf(point{})
	if err != nil {
		t.Fatalf("LayoutOf failed: %v", err)
	}
	want := []Field{
		{Name: "X", Offset: 0, Type: I32},
		{Name: "Y", Offset: 4, Type: I32},
		{Name: "Tag.Kind", Offset: 8, Type: U8},
		{Name: "Tag.Weight", Offset: 10, Type: U16},
	}
	if diff := cmp.Diff(want, l.Fields(), cmp.AllowUnexported(Type{})); diff != "" {
		t.Fatalf("Unexpected fields (-want +got):\n%s", diff)
	}
	if l.Size() != 12 || l.Align() != 4 {
		t.Fatalf("Expected size 12 and align 4, got %d and %d", l.Size(), l.Align())
	}
	if _, err := LayoutOf(struct{ S []int }{}); err == nil {
		t.Fatalf("Expected LayoutOf to reject a slice field")
	}
	if _, err := LayoutOf(42); err == nil {
		t.Fatalf("Expected LayoutOf to reject a non-struct")
	}
}

func TestStructFieldAccess(t *testing.T) {
	l := MustLayoutOf(&point{})
	forEachBackend(t, func(t *testing.T, ctx *Context) {
		f := mustBuild(t, ctx, "touch_point", Sig([]Type{Ptr}, I32), func(b *Builder) Flow {
			s := l.At(b, b.Param(0))
			x := s.Field("X").Load(b)
			s.Field("Y").Store(b, b.Mul(x, b.I32(2)))
			s.Field("Tag.Kind").Store(b, b.U8(9))
			w := b.Convert(s.Field("Tag.Weight").Load(b), I32)
			return Break(b.Add(x, w))
		})
		p := &point{X: 5}
		p.Tag.Weight = 7
		if got := mustCall[int32](t, f, p); got != 12 {
			t.Fatalf("Expected 12, got %d", got)
		}
		if p.Y != 10 || p.Tag.Kind != 9 {
			t.Fatalf("Expected Y=10 and Kind=9, got %+v", *p)
		}
	})
}

func TestUnknownFieldSuggestsName(t *testing.T) {
	l := MustLayoutOf(point{})
	ctx := newTestContext(t, BackendInterp)
	_, err := ctx.Build("bad_field", Sig([]Type{Ptr}, I32), func(b *Builder) Flow {
		return Break(l.At(b, b.Param(0)).Field("Tag.Wieght").Load(b))
	})
	var be *BuildError
	if !errors.As(err, &be) || be.Category != CategoryContract {
		t.Fatalf("Expected a contract error, got %v", err)
	}
	if !strings.Contains(be.Suggestion, "Tag.Weight") {
		t.Fatalf("Expected a suggestion for Tag.Weight, got %q", be.Suggestion)
	}
}

func TestSliceElements(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ctx *Context) {
		sum := mustBuild(t, ctx, "sum_u32", Sig([]Type{SliceOf(U32)}, U64), func(b *Builder) Flow {
			items := Map(Elements(b, b.SliceParam(0)), func(b *Builder, r RefMut) Value { return r.Load(b) })
			return Break(Sum(b, items, U64))
		})
		tests := []struct {
			xs   []uint32
			want uint64
		}{
			{nil, 0},
			{[]uint32{7}, 7},
			{[]uint32{1, 2, 3, 4}, 10},
			{[]uint32{4000000000, 4000000000}, 8000000000},
		}
		for _, tt := range tests {
			if got := mustCall[uint64](t, sum, tt.xs); got != tt.want {
				t.Fatalf("Expected sum of %v to be %d, got %d", tt.xs, tt.want, got)
			}
		}

		scale := mustBuild(t, ctx, "scale", Sig([]Type{SliceOf(I16), I16}), func(b *Builder) Flow {
			k := b.Param(1)
			ForEach(b, Elements(b, b.SliceParam(0)), func(b *Builder, r RefMut) {
				r.Store(b, b.Mul(r.Load(b), k))
			})
			return Break()
		})
		xs := []int16{1, -2, 300}
		if _, err := scale.Invoke(xs, -3); err != nil {
			t.Fatalf("Invoke failed: %v", err)
		}
		if diff := cmp.Diff([]int16{-3, 6, -900}, xs); diff != "" {
			t.Fatalf("Unexpected slice contents (-want +got):\n%s", diff)
		}
	})
}

func TestIndexChecked(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ctx *Context) {
		f := mustBuild(t, ctx, "nth", Sig([]Type{SliceOf(U8), I32}, U8), func(b *Builder) Flow {
			return Break(b.SliceParam(0).IndexChecked(b, b.Param(1)).Load(b))
		})
		data := []byte("lego")
		if got := mustCall[uint8](t, f, data, 2); got != 'g' {
			t.Fatalf("Expected 'g', got %q", got)
		}
		expectTrap(t, f, TrapOutOfBounds, data, 4)
		expectTrap(t, f, TrapOutOfBounds, data, -1)
	})
}

func TestStackAllocAndRefs(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ctx *Context) {
		f := mustBuild(t, ctx, "swap_halves", Sig([]Type{U32}, U32), func(b *Builder) Flow {
			p := b.StackAlloc(4, 4)
			whole := b.At(p, 0, U32)
			whole.Store(b, b.Param(0))
			lo, hi := whole.Field(0, U16), whole.Field(2, U16)
			a, c := lo.Load(b), hi.Load(b)
			lo.Store(b, c)
			hi.Store(b, a)
			return Break(whole.Load(b))
		})
		if got := mustCall[uint32](t, f, 0x11223344); got != 0x33441122 {
			t.Fatalf("Expected 0x33441122, got %#x", got)
		}
	})
}

func TestConstructAndDestruct(t *testing.T) {
	l := MustLayoutOf(counter{})
	forEachBackend(t, func(t *testing.T, ctx *Context) {
		f := mustBuild(t, ctx, "counter", Sig([]Type{U64}, U64), func(b *Builder) Flow {
			obj := b.Construct(l, counterInit, b.Param(0))
			n, step := obj.Field("N"), obj.Field("Step")
			n.Store(b, b.Add(n.Load(b), b.Mul(step.Load(b), b.U64(3))))
			result := n.Load(b)
			b.Destruct(obj, counterDrop)
			return Break(result)
		})
		before := droppedCounters.Load()
		if got := mustCall[uint64](t, f, 4); got != 13 {
			t.Fatalf("Expected 13, got %d", got)
		}
		if dropped := droppedCounters.Load() - before; dropped != 1 {
			t.Fatalf("Expected one drop, got %d", dropped)
		}
	})
}

func TestVec(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ctx *Context) {
		f := mustBuild(t, ctx, "squares", Sig([]Type{U64}, U64, Usize), func(b *Builder) Flow {
			v := b.NewVec()
			b.Repeat(b.Param(0), func(b *Builder, i Value) Flow {
				v.Push(b, b.Mul(i, i))
				return Break()
			})
			items := Map(Elements(b, v.AsSlice(b)), func(b *Builder, r RefMut) Value { return r.Load(b) })
			total := Sum(b, items, U64)
			n := v.Len(b)
			v.Drop(b)
			return Break(total, n)
		})
		live := liveVecs()
		got, err := f.Invoke(4)
		if err != nil {
			t.Fatalf("Invoke failed: %v", err)
		}
		if diff := cmp.Diff([]any{uint64(14), uint64(4)}, got); diff != "" {
			t.Fatalf("Unexpected results (-want +got):\n%s", diff)
		}
		if liveVecs() != live {
			t.Fatalf("Expected the vector to be dropped, %d live before and %d after", live, liveVecs())
		}
	})
}
