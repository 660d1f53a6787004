// Package msgpack provides a MessagePack codec that transcodes through a
// granola Mapper.
//
// Maps are written and read in order, so tagged envelopes survive the trip.
// Binary values are carried as base64 strings and timestamps as RFC 3339
// strings, matching how the Mapper writes []byte and time.Time.
package msgpack

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
	"github.com/zoobzio/granola"
	"github.com/zoobzio/granola/document"
)

// msgpackCodec implements granola.Codec for MessagePack.
type msgpackCodec struct {
	mapper *granola.Mapper
}

// New returns a MessagePack codec over m.
func New(m *granola.Mapper) granola.Codec {
	return &msgpackCodec{mapper: m}
}

// ContentType returns the MIME type for MessagePack.
func (c *msgpackCodec) ContentType() string {
	return "application/msgpack"
}

// Marshal encodes v as MessagePack.
func (c *msgpackCodec) Marshal(v any) ([]byte, error) {
	tree, err := c.mapper.EncodeTree(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := write(msgpack.NewEncoder(&buf), tree); err != nil {
		return nil, &granola.CodecError{Err: granola.ErrMarshal, Cause: err}
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes MessagePack data into v.
func (c *msgpackCodec) Unmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	tree, err := read(dec)
	if err != nil {
		return &granola.CodecError{Err: granola.ErrUnmarshal, Cause: err}
	}
	if _, err := dec.PeekCode(); !errors.Is(err, io.EOF) {
		return &granola.CodecError{Err: granola.ErrUnmarshal, Cause: errors.New("trailing data after top-level value")}
	}
	return c.mapper.DecodeTree(tree, v)
}

func write(enc *msgpack.Encoder, n *document.Node) error {
	switch n.Kind {
	case document.Null:
		return enc.EncodeNil()
	case document.Bool:
		return enc.EncodeBool(n.Bool)
	case document.Number:
		if i, ok := n.Int(); ok {
			return enc.EncodeInt(i)
		}
		if u, ok := n.Uint(); ok {
			return enc.EncodeUint(u)
		}
		f, ok := n.Float()
		if !ok {
			return fmt.Errorf("number %s out of range", n.Number)
		}
		return enc.EncodeFloat64(f)
	case document.String:
		return enc.EncodeString(n.String)
	case document.Array:
		if err := enc.EncodeArrayLen(len(n.Items)); err != nil {
			return err
		}
		for _, item := range n.Items {
			if err := write(enc, item); err != nil {
				return err
			}
		}
		return nil
	case document.Object:
		if err := enc.EncodeMapLen(len(n.Fields)); err != nil {
			return err
		}
		for _, f := range n.Fields {
			if err := enc.EncodeString(f.Key); err != nil {
				return err
			}
			if err := write(enc, f.Value); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown node kind %s", n.Kind)
	}
}

func read(dec *msgpack.Decoder) (*document.Node, error) {
	c, err := dec.PeekCode()
	if err != nil {
		return nil, err
	}

	switch {
	case c == msgpcode.Nil:
		return document.NewNull(), dec.DecodeNil()
	case c == msgpcode.False || c == msgpcode.True:
		b, err := dec.DecodeBool()
		return document.NewBool(b), err
	case msgpcode.IsFixedNum(c), c == msgpcode.Int8, c == msgpcode.Int16, c == msgpcode.Int32, c == msgpcode.Int64:
		i, err := dec.DecodeInt64()
		return document.NewInt(i), err
	case c == msgpcode.Uint8, c == msgpcode.Uint16, c == msgpcode.Uint32, c == msgpcode.Uint64:
		u, err := dec.DecodeUint64()
		return document.NewUint(u), err
	case c == msgpcode.Float, c == msgpcode.Double:
		f, err := dec.DecodeFloat64()
		if err != nil {
			return nil, err
		}
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, fmt.Errorf("float %v has no JSON representation", f)
		}
		return document.NewFloat(f), nil
	case msgpcode.IsString(c):
		s, err := dec.DecodeString()
		return document.NewString(s), err
	case msgpcode.IsBin(c):
		b, err := dec.DecodeBytes()
		return document.NewString(base64.StdEncoding.EncodeToString(b)), err
	case msgpcode.IsFixedArray(c), c == msgpcode.Array16, c == msgpcode.Array32:
		return readArray(dec)
	case msgpcode.IsFixedMap(c), c == msgpcode.Map16, c == msgpcode.Map32:
		return readMap(dec)
	case msgpcode.IsExt(c):
		v, err := dec.DecodeInterfaceLoose()
		if err != nil {
			return nil, err
		}
		if t, ok := v.(time.Time); ok {
			return document.NewString(t.UTC().Format(time.RFC3339Nano)), nil
		}
		return nil, fmt.Errorf("unsupported extension value %T", v)
	default:
		return nil, fmt.Errorf("unsupported msgpack code 0x%x", c)
	}
}

// maxPrealloc bounds the capacity reserved from an array length header.
const maxPrealloc = 1024

func readArray(dec *msgpack.Decoder) (*document.Node, error) {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return document.NewNull(), nil
	}
	out := document.NewArray()
	// Length headers are untrusted; the slice grows as items actually arrive.
	out.Items = make([]*document.Node, 0, min(n, maxPrealloc))
	for i := 0; i < n; i++ {
		item, err := read(dec)
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}

func readMap(dec *msgpack.Decoder) (*document.Node, error) {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return document.NewNull(), nil
	}
	out := document.NewObject()
	for i := 0; i < n; i++ {
		key, err := read(dec)
		if err != nil {
			return nil, err
		}
		var name string
		switch key.Kind {
		case document.String:
			name = key.String
		case document.Number:
			name = key.Number
		default:
			return nil, fmt.Errorf("map key must be a string or number, got %s", key.Kind)
		}
		value, err := read(dec)
		if err != nil {
			return nil, err
		}
		out.Set(name, value)
	}
	return out, nil
}
