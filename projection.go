package granola

import (
	"context"
	"errors"
	"io"
	"reflect"
	"sync"
	"unsafe"

	jsoniter "github.com/json-iterator/go"
	"github.com/modern-go/reflect2"
)

// projection fills one struct field from a path evaluated against the
// whole record.
type projection struct {
	index int
	name  string
	path  CompiledPath
	typ   reflect.Type
}

// projectionSet lists the projected fields of one struct type, in field order.
// It is immutable once built.
type projectionSet struct {
	typeName string
	fields   []projection
}

type projectionEntry struct {
	set *projectionSet
	err error
}

// projectionExtension decorates the structural decoder of every struct type
// that carries jsonpath tags. Types without projections are not decorated.
type projectionExtension struct {
	jsoniter.DummyExtension
	m *Mapper

	mu   sync.RWMutex
	sets map[reflect.Type]projectionEntry
}

func newProjectionExtension(m *Mapper) *projectionExtension {
	return &projectionExtension{
		m:    m,
		sets: make(map[reflect.Type]projectionEntry),
	}
}

func (e *projectionExtension) DecorateDecoder(typ reflect2.Type, decoder jsoniter.ValDecoder) jsoniter.ValDecoder {
	rt := typ.Type1()
	if rt.Kind() != reflect.Struct {
		return decoder
	}
	set, err := e.setFor(rt)
	if err != nil {
		return &invalidDecoder{err: err}
	}
	if set == nil {
		return decoder
	}
	return &projectionDecoder{m: e.m, typ: typ, rtype: rt, inner: decoder, set: set}
}

// setFor returns the projection set of rt, building and caching it on first
// use. A nil set means rt has no projected fields.
func (e *projectionExtension) setFor(rt reflect.Type) (*projectionSet, error) {
	e.mu.RLock()
	entry, ok := e.sets[rt]
	e.mu.RUnlock()
	if ok {
		return entry.set, entry.err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if entry, ok := e.sets[rt]; ok {
		return entry.set, entry.err
	}

	set, err := buildProjectionSet(rt, e.m.paths.matcher())
	e.sets[rt] = projectionEntry{set: set, err: err}
	if set != nil || err != nil {
		count := 0
		if set != nil {
			count = len(set.fields)
		}
		emitProjectionBuilt(context.Background(), TypeName(rt), count, err)
	}
	return set, err
}

func buildProjectionSet(rt reflect.Type, matcher PathMatcher) (*projectionSet, error) {
	typeName := TypeName(rt)
	var fields []projection
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		expr, ok := sf.Tag.Lookup(TagPath)
		if !ok {
			continue
		}
		compiled, err := matcher.Compile(expr)
		if err != nil {
			return nil, &InvalidPathError{Type: typeName, Field: sf.Name, Path: expr, Cause: err}
		}
		fields = append(fields, projection{
			index: i,
			name:  sf.Name,
			path:  compiled,
			typ:   sf.Type,
		})
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return &projectionSet{typeName: typeName, fields: fields}, nil
}

// projectionDecoder decodes the record structurally, then overlays every
// projected field. The destination is written only when all steps succeed.
type projectionDecoder struct {
	m     *Mapper
	typ   reflect2.Type
	rtype reflect.Type
	inner jsoniter.ValDecoder
	set   *projectionSet
}

func (d *projectionDecoder) Decode(ptr unsafe.Pointer, iter *jsoniter.Iterator) {
	if iter.WhatIsNext() == jsoniter.NilValue {
		d.inner.Decode(ptr, iter)
		return
	}

	raw := iter.SkipAndReturnBytes()
	if iter.Error != nil && !errors.Is(iter.Error, io.EOF) {
		return
	}

	scratch := d.typ.UnsafeNew()
	d.typ.UnsafeSet(scratch, ptr)

	sub := d.m.api.BorrowIterator(raw)
	sub.Attachment = iter.Attachment
	d.inner.Decode(scratch, sub)
	err := sub.Error
	d.m.api.ReturnIterator(sub)
	if err != nil && !errors.Is(err, io.EOF) {
		fail(iter, err)
		return
	}

	if err := d.project(scratch, raw); err != nil {
		fail(iter, err)
		return
	}
	d.typ.UnsafeSet(ptr, scratch)
}

func (d *projectionDecoder) project(scratch unsafe.Pointer, raw []byte) error {
	doc := NewDocument(raw)
	target := reflect.NewAt(d.rtype, scratch).Elem()
	for _, p := range d.set.fields {
		matched, err := p.path.Eval(doc, d.m.paths)
		if err != nil {
			if errors.Is(err, ErrPathNotFound) {
				emitProjectionMissed(context.Background(), d.set.typeName, p.name, p.path.String())
				continue
			}
			return newProjectionError(ErrPathEvaluation, p.name, p.path.String(), err)
		}

		field := target.Field(p.index)
		if !field.CanSet() {
			return newProjectionError(ErrFieldAssignment, p.name, p.path.String(), nil)
		}
		value := reflect.New(p.typ)
		if err := d.m.decode(matched, value.Interface(), &errSink{}); err != nil {
			return newProjectionError(ErrProjectionDecode, p.name, p.path.String(), err)
		}
		field.Set(value.Elem())
	}
	return nil
}
