package lego

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/xyproto/lego/internal/engine"
)

// Field is one scalar field of a struct layout
type Field struct {
	Name   string
	Offset int64
	Type   Type
}

// Layout describes the memory layout of a Go struct type, so generated code
// can access its fields. Nested structs are flattened with dotted names.
type Layout struct {
	name   string
	size   int64
	align  int64
	fields []Field
	index  map[string]int
}

// LayoutOf derives the layout of the struct type of sample, which may be a
// struct value or a pointer to one
func LayoutOf(sample any) (*Layout, error) {
	rt := reflect.TypeOf(sample)
	if rt != nil && rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if rt == nil || rt.Kind() != reflect.Struct {
		return nil, fmt.Errorf("lego: LayoutOf needs a struct, got %T", sample)
	}
	l := &Layout{
		name:  rt.String(),
		size:  int64(rt.Size()),
		align: int64(rt.Align()),
		index: make(map[string]int),
	}
	if err := l.collect(rt, "", 0); err != nil {
		return nil, err
	}
	sort.SliceStable(l.fields, func(i, j int) bool { return l.fields[i].Offset < l.fields[j].Offset })
	for i, f := range l.fields {
		l.index[f.Name] = i
	}
	return l, nil
}

// MustLayoutOf is LayoutOf for package-level layouts of known structs
func MustLayoutOf(sample any) *Layout {
	l, err := LayoutOf(sample)
	if err != nil {
		panic(err)
	}
	return l
}

func (l *Layout) collect(rt reflect.Type, prefix string, base int64) error {
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		name := prefix + sf.Name
		off := base + int64(sf.Offset)
		if sf.Type.Kind() == reflect.Struct {
			if err := l.collect(sf.Type, name+".", off); err != nil {
				return err
			}
			continue
		}
		t, err := TypeOf(sf.Type)
		if err != nil || !t.IsScalar() {
			return fmt.Errorf("lego: field %s of %s has unsupported type %s", name, l.name, sf.Type)
		}
		l.fields = append(l.fields, Field{Name: name, Offset: off, Type: t})
	}
	return nil
}

func (l *Layout) Name() string  { return l.name }
func (l *Layout) Size() int64   { return l.size }
func (l *Layout) Align() int64  { return l.align }
func (l *Layout) NumFields() int { return len(l.fields) }

// Fields returns the scalar fields ordered by offset
func (l *Layout) Fields() []Field {
	return append([]Field(nil), l.fields...)
}

// Field looks up a field by name
func (l *Layout) Field(name string) (Field, bool) {
	i, ok := l.index[name]
	if !ok {
		return Field{}, false
	}
	return l.fields[i], true
}

// At views the memory at p as a struct with this layout
func (l *Layout) At(b *Builder, p Value) StructRef {
	b.use(p)
	if !p.typ.IsPointer() {
		panic(typeError("struct base must be a pointer, got %s", p.typ))
	}
	return StructRef{base: p, layout: l}
}

// StructRef is a struct located at a pointer
type StructRef struct {
	base   Value
	layout *Layout
}

// Layout returns the layout of the struct
func (s StructRef) Layout() *Layout { return s.layout }

// Addr returns the base pointer
func (s StructRef) Addr() Value { return s.base }

// Field returns a mutable proxy for the named field
func (s StructRef) Field(name string) RefMut {
	f, ok := s.layout.Field(name)
	if !ok {
		names := make([]string, len(s.layout.fields))
		for i, f := range s.layout.fields {
			names[i] = f.Name
		}
		err := contractError("%s has no field %q", s.layout.name, name)
		if similar := engine.FindSimilar(name, names, 1); len(similar) > 0 {
			err.Suggestion = fmt.Sprintf("did you mean '%s'?", similar[0])
		}
		panic(err)
	}
	return RefMut{Ref{base: s.base, off: f.Offset, typ: f.Type}}
}

// Construct reserves a frame slot for a struct with layout l and calls the
// host constructor ctor with its address followed by args. The object lives
// until the generated function returns; pair it with Destruct.
func (b *Builder) Construct(l *Layout, ctor any, args ...any) StructRef {
	p := b.StackAlloc(uint32(max(l.size, 1)), uint32(min(max(l.align, 1), 8)))
	b.Call(ctor, append([]any{p}, args...)...)
	return l.At(b, p)
}

// Destruct calls the host drop function with the address of obj
func (b *Builder) Destruct(obj StructRef, drop any) {
	b.Call(drop, obj.base)
}
