package lego

import (
	"strings"
	"testing"
)

func evenU64(b *Builder, x Value) Value {
	return b.Eq(b.Rem(x, b.U64(2)), b.U64(0))
}

func TestIteratorPipeline(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ctx *Context) {
		f := mustBuild(t, ctx, "pipeline", Sig(nil, U64), func(b *Builder) Flow {
			evens := Filter(Range(b, b.U64(0), b.U64(41)), evenU64)
			narrowed := Map(evens, func(b *Builder, x Value) Value { return b.Convert(x, U32) })
			return Break(Sum(b, narrowed, U64))
		})
		if got := mustCall[uint64](t, f); got != 420 {
			t.Fatalf("Expected 420, got %d", got)
		}
		// one branch for the loop header and one for the filter
		if n := strings.Count(f.String(), "brif "); n != 2 {
			t.Fatalf("Expected the pipeline to fuse into one loop with 2 branches, got %d:\n%s", n, f)
		}
	})
}

func TestCountAndFold(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ctx *Context) {
		count := mustBuild(t, ctx, "count_multiples", Sig([]Type{I32, I32}, Usize), func(b *Builder) Flow {
			k := b.I32(3)
			multiples := Filter(Range(b, b.Param(0), b.Param(1)), func(b *Builder, x Value) Value {
				return b.Eq(b.Rem(x, k), b.I32(0))
			})
			return Break(Count(b, multiples))
		})
		// -6, -3, 0, 3, 6, 9
		if got := mustCall[uint64](t, count, -7, 10); got != 6 {
			t.Fatalf("Expected 6 multiples of 3, got %d", got)
		}
		if got := mustCall[uint64](t, count, 5, 5); got != 0 {
			t.Fatalf("Expected an empty range to count 0, got %d", got)
		}

		maxOf := mustBuild(t, ctx, "max_element", Sig([]Type{SliceOf(I64)}, I64), func(b *Builder) Flow {
			s := b.SliceParam(0)
			return Break(Fold(b, Elements(b, s), b.I64(-1<<63), func(b *Builder, acc Value, r RefMut) Value {
				x := r.Load(b)
				return b.Select(b.Gt(x, acc), x, acc)
			}))
		})
		if got := mustCall[int64](t, maxOf, []int64{3, -9, 41, 7}); got != 41 {
			t.Fatalf("Expected 41, got %d", got)
		}
	})
}

func TestNestedFilters(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ctx *Context) {
		f := mustBuild(t, ctx, "sum_of_sixes", Sig([]Type{U64}, U64), func(b *Builder) Flow {
			it := Filter(Range(b, b.U64(0), b.Param(0)), evenU64)
			it = Filter(it, func(b *Builder, x Value) Value {
				return b.Eq(b.Rem(x, b.U64(3)), b.U64(0))
			})
			squares := Map(it, func(b *Builder, x Value) Value { return b.Mul(x, x) })
			return Break(Sum(b, squares, U64))
		})
		// 0 + 36 + 144 + 324
		if got := mustCall[uint64](t, f, 20); got != 504 {
			t.Fatalf("Expected 504, got %d", got)
		}
	})
}

func TestIteratorInsideLoop(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ctx *Context) {
		f := mustBuild(t, ctx, "triangle", Sig([]Type{U32}, U32), func(b *Builder) Flow {
			total := b.NewVar(b.U32(0))
			ForEach(b, Range(b, b.U32(0), b.Param(0)), func(b *Builder, i Value) {
				inner := Sum(b, Range(b, b.U32(0), b.Add(i, b.U32(1))), U32)
				total.Set(b, b.Add(total.Get(b), inner))
			})
			return Break(total.Get(b))
		})
		// 0 + 1 + 3 + 6 + 10
		if got := mustCall[uint32](t, f, 5); got != 20 {
			t.Fatalf("Expected 20, got %d", got)
		}
	})
}
