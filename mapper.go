package granola

import (
	"errors"
	"fmt"
	"io"
	"reflect"

	jsoniter "github.com/json-iterator/go"

	"github.com/zoobzio/granola/document"
)

// Mapper is a JSON codec with the granola extensions installed.
// A Mapper is immutable after construction and safe for concurrent use.
type Mapper struct {
	api        jsoniter.API
	types      *TypeRegistry
	paths      PathConfig
	typeProp   string
	valueProp  string
	abstract   bool
	escapeHTML bool
	resolver   FieldNamingResolver
	fallback   FieldNamingStrategy

	projections *projectionExtension
}

// Option configures a Mapper.
type Option func(*Mapper) error

// WithTypeProperties sets the envelope property names.
func WithTypeProperties(typeProperty, valueProperty string) Option {
	return func(m *Mapper) error {
		if typeProperty == "" {
			return newConfigError(ErrInvalidOption, "typeProperty", typeProperty)
		}
		if valueProperty == "" {
			return newConfigError(ErrInvalidOption, "valueProperty", valueProperty)
		}
		if typeProperty == valueProperty {
			return newConfigError(ErrInvalidOption, "valueProperty", valueProperty)
		}
		m.typeProp = typeProperty
		m.valueProp = valueProperty
		return nil
	}
}

// WithTypeRegistry sets the registry used to resolve type tags.
func WithTypeRegistry(r *TypeRegistry) Option {
	return func(m *Mapper) error {
		if r == nil {
			return newConfigError(ErrInvalidOption, "types", "<nil>")
		}
		m.types = r
		return nil
	}
}

// WithPathConfig sets the path evaluation configuration.
func WithPathConfig(cfg PathConfig) Option {
	return func(m *Mapper) error {
		m.paths = cfg
		return nil
	}
}

// WithFieldNaming installs dynamic field naming. Either argument may be nil.
func WithFieldNaming(resolver FieldNamingResolver, fallback FieldNamingStrategy) Option {
	return func(m *Mapper) error {
		m.resolver = resolver
		m.fallback = fallback
		return nil
	}
}

// WithoutAbstractTypes leaves interface-typed values to the structural codec.
func WithoutAbstractTypes() Option {
	return func(m *Mapper) error {
		m.abstract = false
		return nil
	}
}

// WithEscapeHTML escapes <, > and & inside strings.
func WithEscapeHTML() Option {
	return func(m *Mapper) error {
		m.escapeHTML = true
		return nil
	}
}

// NewMapper builds a Mapper. Extensions are consulted in a fixed order:
// naming, value shapes, abstract types, projection.
func NewMapper(opts ...Option) (*Mapper, error) {
	m := &Mapper{
		types:     DefaultTypes,
		paths:     DefaultPathConfig(),
		typeProp:  DefaultTypeProperty,
		valueProp: DefaultValueProperty,
		abstract:  true,
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}

	m.api = jsoniter.Config{
		EscapeHTML:             m.escapeHTML,
		SortMapKeys:            true,
		ValidateJsonRawMessage: true,
		CaseSensitive:          true,
	}.Froze()

	m.projections = newProjectionExtension(m)

	if m.resolver != nil || m.fallback != nil {
		m.api.RegisterExtension(&namingExtension{resolver: m.resolver, fallback: m.fallback})
	}
	m.api.RegisterExtension(&shapeExtension{m: m})
	if m.abstract {
		m.api.RegisterExtension(&abstractTypeExtension{m: m})
	}
	m.api.RegisterExtension(m.projections)

	return m, nil
}

// MustMapper is NewMapper for package-level variables; it panics on error.
func MustMapper(opts ...Option) *Mapper {
	m, err := NewMapper(opts...)
	if err != nil {
		panic(err)
	}
	return m
}

var _ Codec = (*Mapper)(nil)

// ContentType returns "application/json".
func (*Mapper) ContentType() string {
	return "application/json"
}

// Types returns the registry used to resolve type tags.
func (m *Mapper) Types() *TypeRegistry {
	return m.types
}

// TypeProperties returns the envelope property names.
func (m *Mapper) TypeProperties() (typeProperty, valueProperty string) {
	return m.typeProp, m.valueProp
}

// Marshal encodes v.
// To write an interface value as a tagged envelope, pass a pointer to the
// interface variable or use TypeAware.
func (m *Mapper) Marshal(v any) ([]byte, error) {
	return m.encode(v)
}

// Unmarshal decodes data into v, which must be a non-nil pointer.
// On error v is left unchanged.
func (m *Mapper) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return newCodecError(ErrUnmarshal, io.ErrUnexpectedEOF)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return newCodecError(ErrUnmarshal, fmt.Errorf("non-pointer or nil target %T", v))
	}

	scratch := reflect.New(rv.Elem().Type())
	scratch.Elem().Set(rv.Elem())
	if err := m.decode(data, scratch.Interface(), &errSink{}); err != nil {
		return err
	}
	rv.Elem().Set(scratch.Elem())
	return nil
}

// Prepare builds the projection sets of the given struct types up front, so
// that invalid path expressions and shape tags surface before the first decode.
func (m *Mapper) Prepare(types ...reflect.Type) error {
	for _, typ := range types {
		for typ != nil && typ.Kind() == reflect.Pointer {
			typ = typ.Elem()
		}
		if typ == nil || typ.Kind() != reflect.Struct {
			continue
		}
		if _, err := m.projections.setFor(typ); err != nil {
			return err
		}
		if err := validateShapes(typ); err != nil {
			return err
		}
	}
	return nil
}

// EncodeTree encodes v into an ordered document tree.
func (m *Mapper) EncodeTree(v any) (*document.Node, error) {
	data, err := m.encode(v)
	if err != nil {
		return nil, err
	}
	n, err := document.Parse(data)
	if err != nil {
		return nil, newCodecError(ErrMarshal, err)
	}
	return n, nil
}

// DecodeTree decodes an ordered document tree into v.
func (m *Mapper) DecodeTree(n *document.Node, v any) error {
	data, err := n.MarshalJSON()
	if err != nil {
		return newCodecError(ErrUnmarshal, err)
	}
	return m.Unmarshal(data, v)
}

// errSink carries the first typed error of one encode or decode.
// jsoniter flattens errors into strings as they bubble through struct codecs,
// so extension codecs record the original here as well.
type errSink struct {
	err error
}

func (s *errSink) record(err error) {
	if s != nil && s.err == nil {
		s.err = err
	}
}

func sinkOf(attachment any) *errSink {
	s, _ := attachment.(*errSink)
	return s
}

func fail(iter *jsoniter.Iterator, err error) {
	sinkOf(iter.Attachment).record(err)
	if iter.Error == nil || errors.Is(iter.Error, io.EOF) {
		iter.Error = err
	}
}

func failStream(stream *jsoniter.Stream, err error) {
	sinkOf(stream.Attachment).record(err)
	if stream.Error == nil {
		stream.Error = err
	}
}

// decode reads exactly one value from data into the pointer v.
func (m *Mapper) decode(data []byte, v any, sink *errSink) error {
	iter := m.api.BorrowIterator(data)
	defer m.api.ReturnIterator(iter)
	iter.Attachment = sink

	iter.ReadVal(v)
	return finish(iter, sink)
}

// finish reports the outcome of reading one top-level value from iter.
func finish(iter *jsoniter.Iterator, sink *errSink) error {
	if sink.err != nil {
		return sink.err
	}
	if iter.Error != nil && !errors.Is(iter.Error, io.EOF) {
		return newCodecError(ErrUnmarshal, iter.Error)
	}
	if iter.Error == nil {
		if iter.WhatIsNext() != jsoniter.InvalidValue || !errors.Is(iter.Error, io.EOF) {
			return newCodecError(ErrUnmarshal, errors.New("trailing data after top-level value"))
		}
	}
	return nil
}

func (m *Mapper) encode(v any) ([]byte, error) {
	sink := &errSink{}
	stream := m.api.BorrowStream(nil)
	defer m.api.ReturnStream(stream)
	stream.Attachment = sink

	stream.WriteVal(v)
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
