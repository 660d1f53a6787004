// Package granola extends a JSON document codec with polymorphic type tags and
// path-driven field projection.
//
// A Mapper wraps a json-iterator configuration and installs a chain of extensions:
//
//   - Abstract types: fields, slices and maps whose static type is a non-empty
//     interface are written as a tagged envelope carrying the runtime type name,
//     and read back by resolving that name through a TypeRegistry.
//   - Path projection: struct fields tagged with a JSONPath expression are filled
//     from anywhere inside the decoded document.
//   - Value shapes: fields tagged jsonshape:"list" accept a bare value or an array;
//     fields tagged jsonshape:"packed" hold JSON encoded inside a JSON string.
//   - Dynamic naming: fields tagged jsonname:"key" take their wire name from a
//     FieldNamingResolver.
//
// # Tagged Envelopes
//
//	type Shape interface{ Area() float64 }
//
//	type Circle struct {
//	    Radius float64 `json:"radius"`
//	}
//
//	granola.Register[Circle](granola.DefaultTypes)
//
//	m, _ := granola.NewMapper()
//	var s Shape = Circle{Radius: 2}
//	data, _ := m.Marshal(&s)
//	// {"$T":"github.com/acme/shapes.Circle","$V":{"radius":2}}
//
// The type property always precedes the value property. Decoding rejects an
// envelope whose properties arrive in any other order.
//
// # Path Projection
//
//	type Summary struct {
//	    Foo string            `jsonpath:"$.l1.l2.l3.foo"`
//	    Bar string            `jsonpath:"$.l1.l2.l3.bar[0]"`
//	    Baz map[string]string `jsonpath:"$.l1.l2.l3.baz"`
//	}
//
// Projected fields must be exported; a matched path aimed at an unexported
// field fails with ErrFieldAssignment. Paths that match nothing, including
// wildcard paths with no matches, leave the field at the value the structural
// decode produced. Projection is read-only: encoding writes fields under their
// ordinary names.
//
// # Codec Providers
//
// The Mapper itself is the JSON codec. The following subpackages transcode other
// formats through it, so envelopes and projections behave identically:
//
//   - yaml - YAML encoding (application/yaml)
//   - msgpack - MessagePack encoding (application/msgpack)
//   - bson - BSON encoding (application/bson)
package granola

// Codec provides content-type aware marshaling.
type Codec interface {
	// ContentType returns the MIME type for this codec (e.g., "application/json").
	ContentType() string

	// Marshal encodes v into bytes.
	Marshal(v any) ([]byte, error)

	// Unmarshal decodes data into v.
	Unmarshal(data []byte, v any) error
}

// Tag names recognised on struct fields.
const (
	// TagPath holds a JSONPath expression projected into the field on decode.
	TagPath = "jsonpath"

	// TagShape selects a value-shape normaliser: "list" or "packed".
	TagShape = "jsonshape"

	// TagName holds a key handed to the FieldNamingResolver.
	TagName = "jsonname"
)

// Shape values accepted by TagShape.
const (
	ShapeList   = "list"
	ShapePacked = "packed"
)

// Default envelope property names.
const (
	DefaultTypeProperty  = "$T"
	DefaultValueProperty = "$V"
)
