// Completion: 100% - Iterator fusion complete
package lego

// Iterator produces items inside a loop built by a consumer. Next is called
// once, in the loop header: it returns the condition for another item and a
// function that produces the item in the loop body. Sources keep their
// position in variables, so combinators nest without emitting blocks of
// their own and a whole pipeline becomes a single loop.
type Iterator[T any] interface {
	Next(b *Builder) (more Value, item func(*Builder) T)
}

type rangeIter struct {
	counter Var
	end     Value
}

// Range iterates the integers from start up to, but not including, end.
// The step is one in the type of start.
func Range(b *Builder, start, end Value) Iterator[Value] {
	b.use(start)
	b.use(end)
	if start.typ.kind != KindInt || !start.typ.Equal(end.typ) {
		panic(typeMismatch("range bounds", start.typ, end.typ))
	}
	return &rangeIter{counter: b.NewVar(start), end: end}
}

func (r *rangeIter) Next(b *Builder) (Value, func(*Builder) Value) {
	more := b.Ne(r.counter.Get(b), r.end)
	return more, func(b *Builder) Value {
		x := r.counter.Get(b)
		r.counter.Set(b, b.WrappingAdd(x, b.ConstU(x.typ, 1)))
		return x
	}
}

type elemIter struct {
	slice Slice
	index Var
}

// Elements iterates the elements of a slice as mutable proxies. The index is
// always below the length, so the element access is unchecked.
func Elements(b *Builder, s Slice) Iterator[RefMut] {
	return &elemIter{slice: s, index: b.NewVar(b.Usize(0))}
}

func (e *elemIter) Next(b *Builder) (Value, func(*Builder) RefMut) {
	more := b.Lt(e.index.Get(b), e.slice.len)
	return more, func(b *Builder) RefMut {
		i := e.index.Get(b)
		e.index.Set(b, b.Add(i, b.Usize(1)))
		return e.slice.Index(b, i)
	}
}

type mapIter[T, U any] struct {
	inner Iterator[T]
	f     func(*Builder, T) U
}

// Map transforms every item of it with f
func Map[T, U any](it Iterator[T], f func(*Builder, T) U) Iterator[U] {
	return &mapIter[T, U]{inner: it, f: f}
}

func (m *mapIter[T, U]) Next(b *Builder) (Value, func(*Builder) U) {
	more, item := m.inner.Next(b)
	return more, func(b *Builder) U {
		return m.f(b, item(b))
	}
}

type filterIter[T any] struct {
	inner Iterator[T]
	keep  func(*Builder, T) Value
}

// Filter drops the items for which keep is false. A dropped item continues
// the loop with its state unchanged, so the consumer never sees it.
func Filter[T any](it Iterator[T], keep func(*Builder, T) Value) Iterator[T] {
	return &filterIter[T]{inner: it, keep: keep}
}

func (f *filterIter[T]) Next(b *Builder) (Value, func(*Builder) T) {
	more, item := f.inner.Next(b)
	return more, func(b *Builder) T {
		x := item(b)
		b.When(b.Not(f.keep(b, x)), func(b *Builder) Flow {
			return Continue(b.LoopState()...)
		})
		return x
	}
}

// Fold consumes it into a single value. It is the only consumer that emits
// loop blocks; the accumulator is the carried loop state.
func Fold[T any](b *Builder, it Iterator[T], init Value, f func(*Builder, Value, T) Value) Value {
	var item func(*Builder) T
	return b.Loop([]Value{init},
		func(b *Builder, _ []Value) Value {
			var more Value
			more, item = it.Next(b)
			return more
		},
		func(b *Builder, acc []Value) Flow {
			return Break(f(b, acc[0], item(b)))
		},
	).Value()
}

// ForEach runs f for every item
func ForEach[T any](b *Builder, it Iterator[T], f func(*Builder, T)) {
	var item func(*Builder) T
	b.Loop(nil,
		func(b *Builder, _ []Value) Value {
			var more Value
			more, item = it.Next(b)
			return more
		},
		func(b *Builder, _ []Value) Flow {
			f(b, item(b))
			return Break()
		},
	)
}

// Count returns the number of items as a Usize
func Count[T any](b *Builder, it Iterator[T]) Value {
	return Fold(b, it, b.Usize(0), func(b *Builder, n Value, _ T) Value {
		return b.Add(n, b.Usize(1))
	})
}

// Sum adds up the items in type t. Unsigned sums trap on overflow.
func Sum(b *Builder, it Iterator[Value], t Type) Value {
	return Fold(b, it, b.ConstU(t, 0), func(b *Builder, acc, x Value) Value {
		return b.Add(acc, b.Convert(x, t))
	})
}
