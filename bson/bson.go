// Package bson provides a BSON codec that transcodes through a granola Mapper.
//
// BSON documents are read as bson.D so key order, and with it tagged envelopes,
// is preserved. The top-level value must encode to an object.
package bson

import (
	"encoding/base64"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/zoobzio/granola"
	"github.com/zoobzio/granola/document"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// bsonCodec implements granola.Codec for BSON.
type bsonCodec struct {
	mapper *granola.Mapper
}

// New returns a BSON codec over m.
func New(m *granola.Mapper) granola.Codec {
	return &bsonCodec{mapper: m}
}

// ContentType returns the MIME type for BSON.
func (c *bsonCodec) ContentType() string {
	return "application/bson"
}

// Marshal encodes v as BSON.
func (c *bsonCodec) Marshal(v any) ([]byte, error) {
	tree, err := c.mapper.EncodeTree(v)
	if err != nil {
		return nil, err
	}
	if tree.Kind != document.Object {
		return nil, &granola.CodecError{
			Err:   granola.ErrMarshal,
			Cause: fmt.Errorf("top-level value must be an object, got %s", tree.Kind),
		}
	}
	data, err := bson.Marshal(toD(tree))
	if err != nil {
		return nil, &granola.CodecError{Err: granola.ErrMarshal, Cause: err}
	}
	return data, nil
}

// Unmarshal decodes BSON data into v.
func (c *bsonCodec) Unmarshal(data []byte, v any) error {
	var d bson.D
	if err := bson.Unmarshal(data, &d); err != nil {
		return &granola.CodecError{Err: granola.ErrUnmarshal, Cause: err}
	}
	tree, err := fromBSON(d)
	if err != nil {
		return &granola.CodecError{Err: granola.ErrUnmarshal, Cause: err}
	}
	return c.mapper.DecodeTree(tree, v)
}

func toD(n *document.Node) bson.D {
	d := make(bson.D, 0, len(n.Fields))
	for _, f := range n.Fields {
		d = append(d, bson.E{Key: f.Key, Value: toBSON(f.Value)})
	}
	return d
}

func toBSON(n *document.Node) any {
	switch n.Kind {
	case document.Bool:
		return n.Bool
	case document.Number:
		if i, ok := n.Int(); ok {
			if i >= math.MinInt32 && i <= math.MaxInt32 {
				return int32(i)
			}
			return i
		}
		f, _ := n.Float()
		return f
	case document.String:
		return n.String
	case document.Array:
		a := make(bson.A, 0, len(n.Items))
		for _, item := range n.Items {
			a = append(a, toBSON(item))
		}
		return a
	case document.Object:
		return toD(n)
	default:
		return nil
	}
}

func fromBSON(v any) (*document.Node, error) {
	switch x := v.(type) {
	case nil, primitive.Null, primitive.Undefined:
		return document.NewNull(), nil
	case bool:
		return document.NewBool(x), nil
	case int32:
		return document.NewInt(int64(x)), nil
	case int64:
		return document.NewInt(x), nil
	case float64:
		if math.IsInf(x, 0) || math.IsNaN(x) {
			return nil, fmt.Errorf("float %v has no JSON representation", x)
		}
		return document.NewFloat(x), nil
	case string:
		return document.NewString(x), nil
	case primitive.ObjectID:
		return document.NewString(x.Hex()), nil
	case primitive.DateTime:
		return document.NewString(x.Time().UTC().Format(time.RFC3339Nano)), nil
	case primitive.Binary:
		return document.NewString(base64.StdEncoding.EncodeToString(x.Data)), nil
	case primitive.Decimal128:
		return decimal(x)
	case bson.D:
		out := document.NewObject()
		for _, e := range x {
			value, err := fromBSON(e.Value)
			if err != nil {
				return nil, err
			}
			out.Set(e.Key, value)
		}
		return out, nil
	case bson.M:
		// Unordered; keys are sorted for a stable result.
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := document.NewObject()
		for _, k := range keys {
			value, err := fromBSON(x[k])
			if err != nil {
				return nil, err
			}
			out.Set(k, value)
		}
		return out, nil
	case bson.A:
		return fromArray(x)
	case []any:
		return fromArray(x)
	default:
		return nil, fmt.Errorf("unsupported bson value %T", v)
	}
}

func fromArray(items []any) (*document.Node, error) {
	out := document.NewArray()
	out.Items = make([]*document.Node, 0, len(items))
	for _, item := range items {
		converted, err := fromBSON(item)
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, converted)
	}
	return out, nil
}

func decimal(d primitive.Decimal128) (*document.Node, error) {
	literal := d.String()
	if _, _, err := d.BigInt(); err != nil {
		return nil, fmt.Errorf("decimal %s has no JSON representation", literal)
	}
	return document.NewNumber(literal), nil
}
