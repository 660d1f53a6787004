package granola

import (
	"fmt"
	"reflect"
	"unsafe"

	jsoniter "github.com/json-iterator/go"
)

// shapeExtension installs value-shape codecs on fields tagged jsonshape.
type shapeExtension struct {
	jsoniter.DummyExtension
	m *Mapper
}

func (e *shapeExtension) UpdateStructDescriptor(sd *jsoniter.StructDescriptor) {
	rt := sd.Type.Type1()
	for _, binding := range sd.Fields {
		if len(binding.FromNames) == 0 && len(binding.ToNames) == 0 {
			continue
		}
		sf := rt.FieldByIndex(binding.Field.Index())
		shape, err := shapeOf(rt, sf)
		if err != nil {
			binding.Decoder = &invalidDecoder{err: err}
			binding.Encoder = &invalidEncoder{err: err}
			continue
		}
		switch shape {
		case ShapeList:
			binding.Decoder = &listDecoder{typ: sf.Type, inner: binding.Decoder}
			binding.Encoder = &listEncoder{typ: sf.Type, inner: binding.Encoder}
		case ShapePacked:
			binding.Decoder = &packedDecoder{m: e.m, typ: sf.Type}
			binding.Encoder = &packedEncoder{m: e.m, typ: sf.Type}
		}
	}
}

// shapeOf reads and validates the jsonshape tag of a field.
func shapeOf(owner reflect.Type, sf reflect.StructField) (string, error) {
	shape, ok := sf.Tag.Lookup(TagShape)
	if !ok {
		return "", nil
	}
	field := TypeName(owner) + "." + sf.Name
	switch shape {
	case ShapeList:
		if sf.Type.Kind() != reflect.Slice {
			return "", newConfigError(ErrInvalidTag, field, shape)
		}
		return shape, nil
	case ShapePacked:
		return shape, nil
	default:
		return "", newConfigError(ErrInvalidTag, field, shape)
	}
}

func validateShapes(rt reflect.Type) error {
	for i := 0; i < rt.NumField(); i++ {
		if _, err := shapeOf(rt, rt.Field(i)); err != nil {
			return err
		}
	}
	return nil
}

// listDecoder accepts either an array or a single element.
type listDecoder struct {
	typ   reflect.Type
	inner jsoniter.ValDecoder
}

func (d *listDecoder) Decode(ptr unsafe.Pointer, iter *jsoniter.Iterator) {
	field := reflect.NewAt(d.typ, ptr).Elem()
	switch iter.WhatIsNext() {
	case jsoniter.NilValue:
		iter.ReadNil()
		field.Set(reflect.Zero(d.typ))
	case jsoniter.ArrayValue:
		d.inner.Decode(ptr, iter)
	default:
		elem := reflect.New(d.typ.Elem())
		iter.ReadVal(elem.Interface())
		if iter.Error != nil {
			return
		}
		list := reflect.MakeSlice(d.typ, 1, 1)
		list.Index(0).Set(elem.Elem())
		field.Set(list)
	}
}

// listEncoder writes a one-element slice as its bare element.
type listEncoder struct {
	typ   reflect.Type
	inner jsoniter.ValEncoder
}

func (e *listEncoder) IsEmpty(ptr unsafe.Pointer) bool {
	return e.inner.IsEmpty(ptr)
}

func (e *listEncoder) Encode(ptr unsafe.Pointer, stream *jsoniter.Stream) {
	field := reflect.NewAt(e.typ, ptr).Elem()
	switch {
	case field.IsNil():
		stream.WriteNil()
	case field.Len() == 1:
		// Through a pointer so interface elements keep their static type.
		stream.WriteVal(field.Index(0).Addr().Interface())
	default:
		e.inner.Encode(ptr, stream)
	}
}

// packedDecoder reads a JSON string whose content is itself a JSON document.
type packedDecoder struct {
	m   *Mapper
	typ reflect.Type
}

func (d *packedDecoder) Decode(ptr unsafe.Pointer, iter *jsoniter.Iterator) {
	field := reflect.NewAt(d.typ, ptr).Elem()
	switch next := iter.WhatIsNext(); next {
	case jsoniter.NilValue:
		iter.ReadNil()
		field.Set(reflect.Zero(d.typ))
	case jsoniter.StringValue:
		packed := iter.ReadString()
		if iter.Error != nil {
			return
		}
		value := reflect.New(d.typ)
		if err := d.m.decode([]byte(packed), value.Interface(), &errSink{}); err != nil {
			fail(iter, err)
			return
		}
		field.Set(value.Elem())
	default:
		fail(iter, newCodecError(ErrUnmarshal, fmt.Errorf("packed field expects a string but was %s", valueTypeName(next))))
	}
}

// packedEncoder writes the encoded field as a JSON string.
type packedEncoder struct {
	m   *Mapper
	typ reflect.Type
}

func (e *packedEncoder) IsEmpty(ptr unsafe.Pointer) bool {
	return reflect.NewAt(e.typ, ptr).Elem().IsZero()
}

func (e *packedEncoder) Encode(ptr unsafe.Pointer, stream *jsoniter.Stream) {
	field := reflect.NewAt(e.typ, ptr).Elem()
	if isNilable(field.Kind()) && field.IsNil() {
		stream.WriteNil()
		return
	}
	data, err := e.m.encode(field.Addr().Interface())
	if err != nil {
		failStream(stream, err)
		return
	}
	stream.WriteString(string(data))
}

// invalidDecoder and invalidEncoder report a field configuration error on use.
type invalidDecoder struct {
	err error
}

func (d *invalidDecoder) Decode(_ unsafe.Pointer, iter *jsoniter.Iterator) {
	fail(iter, d.err)
}

type invalidEncoder struct {
	err error
}

func (e *invalidEncoder) IsEmpty(unsafe.Pointer) bool {
	return false
}

func (e *invalidEncoder) Encode(_ unsafe.Pointer, stream *jsoniter.Stream) {
	failStream(stream, e.err)
}

func isNilable(k reflect.Kind) bool {
	switch k {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return true
	}
	return false
}

func valueTypeName(t jsoniter.ValueType) string {
	switch t {
	case jsoniter.StringValue:
		return "string"
	case jsoniter.NumberValue:
		return "number"
	case jsoniter.NilValue:
		return "null"
	case jsoniter.BoolValue:
		return "bool"
	case jsoniter.ArrayValue:
		return "array"
	case jsoniter.ObjectValue:
		return "object"
	default:
		return "end of input"
	}
}
