package granola

import (
	"context"
	"reflect"
	"time"

	"github.com/zoobzio/sentinel"
)

func init() {
	// Register granola tags with sentinel
	sentinel.Tag(TagPath)
	sentinel.Tag(TagShape)
	sentinel.Tag(TagName)
}

// Processor is the typed front door to a Mapper for one type.
// Use Decode for ingress and Encode for egress.
//
// Processors are safe for concurrent use. Every struct type reachable from T
// is prepared at construction, so invalid path expressions and shape tags are
// reported by NewProcessor rather than by the first Decode.
type Processor[T any] struct {
	mapper *Mapper

	// Type metadata
	typeName    string
	projections int
}

// NewProcessor creates a Processor for T over m.
func NewProcessor[T any](m *Mapper) (*Processor[T], error) {
	rt := reflect.TypeFor[T]()
	plan := buildTypePlan[T]()
	if err := m.Prepare(plan.structs...); err != nil {
		return nil, err
	}

	p := &Processor[T]{
		mapper:      m,
		typeName:    TypeName(rt),
		projections: plan.projections,
	}

	emitProcessorCreated(context.Background(), m.ContentType(), p.typeName)
	return p, nil
}

// Mapper returns the mapper the processor decodes with.
func (p *Processor[T]) Mapper() *Mapper {
	return p.mapper
}

// Projections returns the number of projected fields reachable from T.
func (p *Processor[T]) Projections() int {
	return p.projections
}

// Decode parses data into a new T.
func (p *Processor[T]) Decode(ctx context.Context, data []byte) (*T, error) {
	start := time.Now()
	emitDecodeStart(ctx, p.mapper.ContentType(), p.typeName)

	var result T
	err := p.mapper.Unmarshal(data, &result)
	emitDecodeComplete(ctx, p.mapper.ContentType(), p.typeName, len(data), time.Since(start), p.projections, err)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Encode writes obj. Interface-typed T is written as a tagged envelope.
func (p *Processor[T]) Encode(ctx context.Context, obj *T) ([]byte, error) {
	start := time.Now()
	emitEncodeStart(ctx, p.mapper.ContentType(), p.typeName)

	data, err := p.mapper.Marshal(obj)
	emitEncodeComplete(ctx, p.mapper.ContentType(), p.typeName, len(data), time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// typePlan describes the struct types reachable from a processor's type.
type typePlan struct {
	structs     []reflect.Type
	projections int
}

// buildTypePlan scans T with sentinel and walks nested struct fields.
func buildTypePlan[T any]() *typePlan {
	plan := &typePlan{}
	rt := reflect.TypeFor[T]()
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if rt.Kind() != reflect.Struct {
		return plan
	}

	seen := map[reflect.Type]bool{rt: true}
	plan.structs = append(plan.structs, rt)
	var spec sentinel.Metadata
	if reflect.TypeFor[T]().Kind() == reflect.Struct {
		spec = sentinel.Scan[T]()
	} else {
		spec = *scanNestedType(rt)
	}
	walkTypePlan(plan, spec, seen)

	for _, st := range plan.structs {
		for i := 0; i < st.NumField(); i++ {
			if _, ok := st.Field(i).Tag.Lookup(TagPath); ok {
				plan.projections++
			}
		}
	}
	return plan
}

// walkTypePlan descends into the struct types reachable from spec.
func walkTypePlan(plan *typePlan, spec sentinel.Metadata, seen map[reflect.Type]bool) {
	for _, field := range spec.Fields {
		nested := structOf(field.ReflectType)
		if nested == nil || seen[nested] {
			continue
		}
		seen[nested] = true
		plan.structs = append(plan.structs, nested)
		if nestedSpec := scanNestedType(nested); nestedSpec != nil {
			walkTypePlan(plan, *nestedSpec, seen)
		}
	}
}

// structOf unwraps pointers, slices, arrays and maps down to a struct type.
func structOf(rt reflect.Type) reflect.Type {
	for rt != nil {
		switch rt.Kind() {
		case reflect.Struct:
			return rt
		case reflect.Pointer, reflect.Slice, reflect.Array, reflect.Map:
			rt = rt.Elem()
		default:
			return nil
		}
	}
	return nil
}

// scanNestedType scans a nested struct type and returns its metadata.
func scanNestedType(rt reflect.Type) *sentinel.Metadata {
	if spec, ok := sentinel.Lookup(rt.String()); ok {
		return &spec
	}

	if rt.Kind() != reflect.Struct {
		return nil
	}

	spec := sentinel.Metadata{
		TypeName:    rt.Name(),
		PackageName: rt.PkgPath(),
		Fields:      make([]sentinel.FieldMetadata, 0, rt.NumField()),
	}

	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)

		fm := sentinel.FieldMetadata{
			Name:        sf.Name,
			Type:        sf.Type.String(),
			ReflectType: sf.Type,
			Index:       sf.Index,
			Tags:        parseGranolaTags(sf.Tag),
		}

		switch sf.Type.Kind() {
		case reflect.Struct:
			fm.Kind = sentinel.KindStruct
		case reflect.Ptr:
			fm.Kind = sentinel.KindPointer
		case reflect.Slice, reflect.Array:
			fm.Kind = sentinel.KindSlice
		case reflect.Map:
			fm.Kind = sentinel.KindMap
		case reflect.Interface:
			fm.Kind = sentinel.KindInterface
		default:
			fm.Kind = sentinel.KindScalar
		}

		spec.Fields = append(spec.Fields, fm)
	}

	return &spec
}

// parseGranolaTags extracts the granola tags from a struct tag.
func parseGranolaTags(tag reflect.StructTag) map[string]string {
	tags := make(map[string]string)
	for _, key := range []string{TagPath, TagShape, TagName} {
		if val, ok := tag.Lookup(key); ok {
			tags[key] = val
		}
	}
	return tags
}
