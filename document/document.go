// Package document provides an ordered generic JSON tree.
//
// Unlike map[string]any, a Node keeps object properties in the order they were
// read or built, which tagged envelopes depend on. Format transcoders convert
// their native trees to and from Node, and Node to and from JSON bytes.
package document

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

// Kind identifies the shape of a Node.
type Kind uint8

// Node kinds.
const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Node is one value in a document tree.
type Node struct {
	Kind   Kind
	Bool   bool
	Number string // JSON number literal
	String string
	Items  []*Node
	Fields []Field
}

// Field is one object property.
type Field struct {
	Key   string
	Value *Node
}

// ErrSyntax indicates input that is not a single JSON value.
var ErrSyntax = errors.New("document: invalid json")

var api = jsoniter.ConfigCompatibleWithStandardLibrary

// NewNull returns a null node.
func NewNull() *Node { return &Node{Kind: Null} }

// NewBool returns a boolean node.
func NewBool(b bool) *Node { return &Node{Kind: Bool, Bool: b} }

// NewString returns a string node.
func NewString(s string) *Node { return &Node{Kind: String, String: s} }

// NewNumber returns a number node from a JSON number literal. The literal is
// written verbatim by MarshalJSON, so it must already be valid JSON.
func NewNumber(literal string) *Node { return &Node{Kind: Number, Number: literal} }

// NewInt returns a number node for an integer.
func NewInt(i int64) *Node { return NewNumber(strconv.FormatInt(i, 10)) }

// NewUint returns a number node for an unsigned integer.
func NewUint(u uint64) *Node { return NewNumber(strconv.FormatUint(u, 10)) }

// NewFloat returns a number node for a float.
func NewFloat(f float64) *Node { return NewNumber(strconv.FormatFloat(f, 'g', -1, 64)) }

// NewArray returns an array node.
func NewArray(items ...*Node) *Node { return &Node{Kind: Array, Items: items} }

// NewObject returns an object node with properties in the given order.
func NewObject(fields ...Field) *Node { return &Node{Kind: Object, Fields: fields} }

// Get returns the value of the last property named key.
func (n *Node) Get(key string) (*Node, bool) {
	if n == nil || n.Kind != Object {
		return nil, false
	}
	for i := len(n.Fields) - 1; i >= 0; i-- {
		if n.Fields[i].Key == key {
			return n.Fields[i].Value, true
		}
	}
	return nil, false
}

// Set appends a property to an object node.
func (n *Node) Set(key string, value *Node) {
	n.Fields = append(n.Fields, Field{Key: key, Value: value})
}

// Int reports the node as an int64 when it holds an integral number.
func (n *Node) Int() (int64, bool) {
	if n == nil || n.Kind != Number {
		return 0, false
	}
	i, err := strconv.ParseInt(n.Number, 10, 64)
	return i, err == nil
}

// Uint reports the node as a uint64 when it holds a non-negative integral number
// too large for int64.
func (n *Node) Uint() (uint64, bool) {
	if n == nil || n.Kind != Number {
		return 0, false
	}
	u, err := strconv.ParseUint(n.Number, 10, 64)
	return u, err == nil
}

// Float reports the node as a float64.
func (n *Node) Float() (float64, bool) {
	if n == nil || n.Kind != Number {
		return 0, false
	}
	f, err := strconv.ParseFloat(n.Number, 64)
	return f, err == nil
}

// Parse reads a single JSON value.
func Parse(data []byte) (*Node, error) {
	iter := api.BorrowIterator(data)
	defer api.ReturnIterator(iter)

	n := read(iter)
	if iter.Error != nil && !errors.Is(iter.Error, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, iter.Error)
	}
	if n == nil {
		return nil, ErrSyntax
	}
	if iter.Error == nil {
		if iter.WhatIsNext() != jsoniter.InvalidValue || iter.Error == nil {
			return nil, fmt.Errorf("%w: trailing data", ErrSyntax)
		}
	}
	return n, nil
}

func read(iter *jsoniter.Iterator) *Node {
	switch iter.WhatIsNext() {
	case jsoniter.NilValue:
		iter.ReadNil()
		return NewNull()
	case jsoniter.BoolValue:
		return NewBool(iter.ReadBool())
	case jsoniter.NumberValue:
		return NewNumber(string(iter.ReadNumber()))
	case jsoniter.StringValue:
		return NewString(iter.ReadString())
	case jsoniter.ArrayValue:
		n := NewArray()
		n.Items = []*Node{}
		iter.ReadArrayCB(func(it *jsoniter.Iterator) bool {
			item := read(it)
			if item == nil {
				return false
			}
			n.Items = append(n.Items, item)
			return true
		})
		return n
	case jsoniter.ObjectValue:
		n := NewObject()
		iter.ReadObjectCB(func(it *jsoniter.Iterator, key string) bool {
			value := read(it)
			if value == nil {
				return false
			}
			n.Set(key, value)
			return true
		})
		return n
	default:
		iter.ReportError("document.Parse", "unexpected token")
		return nil
	}
}

// MarshalJSON writes the node with properties in order.
func (n *Node) MarshalJSON() ([]byte, error) {
	stream := api.BorrowStream(nil)
	defer api.ReturnStream(stream)

	n.write(stream)
	if stream.Error != nil {
		return nil, stream.Error
	}
	buf := stream.Buffer()
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

func (n *Node) write(stream *jsoniter.Stream) {
	if n == nil {
		stream.WriteNil()
		return
	}
	switch n.Kind {
	case Null:
		stream.WriteNil()
	case Bool:
		stream.WriteBool(n.Bool)
	case Number:
		stream.WriteRaw(n.Number)
	case String:
		stream.WriteString(n.String)
	case Array:
		if len(n.Items) == 0 {
			stream.WriteEmptyArray()
			return
		}
		stream.WriteArrayStart()
		for i, item := range n.Items {
			if i > 0 {
				stream.WriteMore()
			}
			item.write(stream)
		}
		stream.WriteArrayEnd()
	case Object:
		if len(n.Fields) == 0 {
			stream.WriteEmptyObject()
			return
		}
		stream.WriteObjectStart()
		for i, f := range n.Fields {
			if i > 0 {
				stream.WriteMore()
			}
			stream.WriteObjectField(f.Key)
			f.Value.write(stream)
		}
		stream.WriteObjectEnd()
	default:
		stream.Error = fmt.Errorf("document: unknown kind %s", n.Kind)
	}
}

// UnmarshalJSON replaces the node with the parsed value of data.
func (n *Node) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*n = *parsed
	return nil
}

// Interface converts the node to the generic Go form. Integral numbers become
// int64 and other numbers float64. Property order is lost.
func (n *Node) Interface() any {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case Bool:
		return n.Bool
	case Number:
		if i, ok := n.Int(); ok {
			return i
		}
		f, _ := n.Float()
		return f
	case String:
		return n.String
	case Array:
		out := make([]any, len(n.Items))
		for i, item := range n.Items {
			out[i] = item.Interface()
		}
		return out
	case Object:
		out := make(map[string]any, len(n.Fields))
		for _, f := range n.Fields {
			out[f.Key] = f.Value.Interface()
		}
		return out
	default:
		return nil
	}
}
