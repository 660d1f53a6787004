package granola

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"unsafe"

	jsoniter "github.com/json-iterator/go"
	"github.com/modern-go/reflect2"
)

// abstractTypeExtension routes every interface type that declares methods to
// the tagged codec. The empty interface is left to the structural codec.
type abstractTypeExtension struct {
	jsoniter.DummyExtension
	m *Mapper
}

// isAbstract reports whether values of typ need a type tag to be decoded.
func isAbstract(typ reflect.Type) bool {
	return typ.Kind() == reflect.Interface && typ.NumMethod() > 0
}

func (e *abstractTypeExtension) CreateDecoder(typ reflect2.Type) jsoniter.ValDecoder {
	if rt := typ.Type1(); isAbstract(rt) {
		return &taggedDecoder{m: e.m, iface: rt}
	}
	return nil
}

func (e *abstractTypeExtension) CreateEncoder(typ reflect2.Type) jsoniter.ValEncoder {
	if rt := typ.Type1(); isAbstract(rt) {
		return &taggedEncoder{m: e.m, iface: rt}
	}
	return nil
}

// taggedDecoder reads {"<type>": "<tag>", "<value>": <value>} into an
// interface, in exactly that order.
type taggedDecoder struct {
	m     *Mapper
	iface reflect.Type
}

func (d *taggedDecoder) Decode(ptr unsafe.Pointer, iter *jsoniter.Iterator) {
	target := reflect.NewAt(d.iface, ptr).Elem()
	value, ok := d.read(iter)
	if !ok {
		return
	}
	if !value.IsValid() {
		target.Set(reflect.Zero(d.iface))
		return
	}
	target.Set(value)
}

// read returns the decoded concrete value, or the zero Value for null.
func (d *taggedDecoder) read(iter *jsoniter.Iterator) (reflect.Value, bool) {
	switch next := iter.WhatIsNext(); next {
	case jsoniter.NilValue:
		iter.ReadNil()
		return reflect.Value{}, true
	case jsoniter.ObjectValue:
	default:
		fail(iter, newEnvelopeError("object", valueTypeName(next)))
		return reflect.Value{}, false
	}

	var (
		index int
		typ   reflect.Type
		value reflect.Value
	)
	iter.ReadObjectCB(func(it *jsoniter.Iterator, key string) bool {
		defer func() { index++ }()
		switch index {
		case 0:
			if key != d.m.typeProp {
				fail(it, newEnvelopeError(strconv.Quote(d.m.typeProp), strconv.Quote(key)))
				return false
			}
			if next := it.WhatIsNext(); next != jsoniter.StringValue {
				fail(it, newEnvelopeError("string", valueTypeName(next)))
				return false
			}
			name := it.ReadString()
			resolved, err := d.m.types.Resolve(name)
			if err != nil {
				fail(it, err)
				return false
			}
			if !resolved.Implements(d.iface) {
				fail(it, &TypeError{Err: ErrTypeMismatch, TypeName: name, Want: TypeName(d.iface)})
				return false
			}
			typ = resolved
			return true
		case 1:
			if key != d.m.valueProp {
				fail(it, newEnvelopeError(strconv.Quote(d.m.valueProp), strconv.Quote(key)))
				return false
			}
			holder := reflect.New(typ)
			it.ReadVal(holder.Interface())
			if it.Error != nil {
				return false
			}
			value = holder.Elem()
			return true
		default:
			fail(it, newEnvelopeError("end of object", strconv.Quote(key)))
			return false
		}
	})

	if iter.Error != nil && !errors.Is(iter.Error, io.EOF) {
		return reflect.Value{}, false
	}
	switch index {
	case 0:
		fail(iter, newEnvelopeError(strconv.Quote(d.m.typeProp), "end of object"))
		return reflect.Value{}, false
	case 1:
		fail(iter, newEnvelopeError(strconv.Quote(d.m.valueProp), "end of object"))
		return reflect.Value{}, false
	}
	return value, true
}

// taggedEncoder writes the runtime type tag ahead of the value.
type taggedEncoder struct {
	m     *Mapper
	iface reflect.Type
}

func (e *taggedEncoder) IsEmpty(ptr unsafe.Pointer) bool {
	return reflect.NewAt(e.iface, ptr).Elem().IsNil()
}

func (e *taggedEncoder) Encode(ptr unsafe.Pointer, stream *jsoniter.Stream) {
	e.write(reflect.NewAt(e.iface, ptr).Elem(), stream)
}

func (e *taggedEncoder) write(v reflect.Value, stream *jsoniter.Stream) {
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			stream.WriteNil()
			return
		}
		v = v.Elem()
	}
	if v.Kind() == reflect.Pointer && v.IsNil() {
		stream.WriteNil()
		return
	}
	name, err := e.m.types.NameOf(v.Type())
	if err != nil {
		failStream(stream, err)
		return
	}
	stream.WriteObjectStart()
	stream.WriteObjectField(e.m.typeProp)
	stream.WriteString(name)
	stream.WriteMore()
	stream.WriteObjectField(e.m.valueProp)
	stream.WriteVal(v.Interface())
	stream.WriteObjectEnd()
}

// TypeAware writes and reads tagged envelopes for values held in any.
type TypeAware struct {
	m *Mapper
}

// TypeAware returns the standalone tagged codec of m.
func (m *Mapper) TypeAware() *TypeAware {
	return &TypeAware{m: m}
}

// MarshalTagged writes v as an envelope carrying its runtime type tag.
// A nil v is written as null.
func (t *TypeAware) MarshalTagged(v any) ([]byte, error) {
	enc := &taggedEncoder{m: t.m}
	sink := &errSink{}
	stream := t.m.api.BorrowStream(nil)
	defer t.m.api.ReturnStream(stream)
	stream.Attachment = sink

	enc.write(reflect.ValueOf(&v).Elem(), stream)
	if sink.err != nil {
		return nil, sink.err
	}
	if stream.Error != nil {
		return nil, newCodecError(ErrMarshal, stream.Error)
	}
	buf := stream.Buffer()
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

// UnmarshalTagged reads an envelope and returns the value it carries, typed as
// the registered type named in the envelope. null yields nil.
func (t *TypeAware) UnmarshalTagged(data []byte) (any, error) {
	var v any
	if err := t.UnmarshalTaggedInto(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// UnmarshalTaggedInto reads an envelope into target, which must point to an
// interface variable.
func (t *TypeAware) UnmarshalTaggedInto(data []byte, target any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Interface {
		return newCodecError(ErrUnmarshal, fmt.Errorf("target must point to an interface, got %T", target))
	}
	if len(data) == 0 {
		return newCodecError(ErrUnmarshal, io.ErrUnexpectedEOF)
	}
	dec := &taggedDecoder{m: t.m, iface: rv.Elem().Type()}

	sink := &errSink{}
	iter := t.m.api.BorrowIterator(data)
	defer t.m.api.ReturnIterator(iter)
	iter.Attachment = sink

	value, _ := dec.read(iter)
	if err := finish(iter, sink); err != nil {
		return err
	}
	if !value.IsValid() {
		rv.Elem().Set(reflect.Zero(rv.Elem().Type()))
		return nil
	}
	rv.Elem().Set(value)
	return nil
}
