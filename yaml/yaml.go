// Package yaml provides a YAML codec that transcodes through a granola Mapper.
//
// Documents are converted to and from the Mapper's ordered JSON tree, so tagged
// envelopes, path projection and value shapes behave exactly as they do for
// JSON. Struct tags are therefore json/jsonpath tags, not yaml tags.
package yaml

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/zoobzio/granola"
	"github.com/zoobzio/granola/document"
	"gopkg.in/yaml.v3"
)

// yamlCodec implements granola.Codec for YAML.
type yamlCodec struct {
	mapper *granola.Mapper
}

// New returns a YAML codec over m.
func New(m *granola.Mapper) granola.Codec {
	return &yamlCodec{mapper: m}
}

// ContentType returns the MIME type for YAML.
func (c *yamlCodec) ContentType() string {
	return "application/yaml"
}

// Marshal encodes v as YAML.
func (c *yamlCodec) Marshal(v any) ([]byte, error) {
	tree, err := c.mapper.EncodeTree(v)
	if err != nil {
		return nil, err
	}
	data, err := yaml.Marshal(toYAML(tree))
	if err != nil {
		return nil, &granola.CodecError{Err: granola.ErrMarshal, Cause: err}
	}
	return data, nil
}

// Unmarshal decodes YAML data into v.
func (c *yamlCodec) Unmarshal(data []byte, v any) error {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return &granola.CodecError{Err: granola.ErrUnmarshal, Cause: err}
	}
	tree, err := fromYAML(&root)
	if err != nil {
		return &granola.CodecError{Err: granola.ErrUnmarshal, Cause: err}
	}
	return c.mapper.DecodeTree(tree, v)
}

func toYAML(n *document.Node) *yaml.Node {
	switch n.Kind {
	case document.Bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(n.Bool)}
	case document.Number:
		tag := "!!int"
		if strings.ContainsAny(n.Number, ".eE") {
			tag = "!!float"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: n.Number}
	case document.String:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: n.String}
	case document.Array:
		out := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range n.Items {
			out.Content = append(out.Content, toYAML(item))
		}
		return out
	case document.Object:
		out := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, f := range n.Fields {
			out.Content = append(out.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f.Key},
				toYAML(f.Value),
			)
		}
		return out
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	}
}

func fromYAML(n *yaml.Node) (*document.Node, error) {
	switch n.Kind {
	case 0:
		// Empty input.
		return document.NewNull(), nil
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return document.NewNull(), nil
		}
		return fromYAML(n.Content[0])
	case yaml.AliasNode:
		return fromYAML(n.Alias)
	case yaml.SequenceNode:
		out := document.NewArray()
		out.Items = make([]*document.Node, 0, len(n.Content))
		for _, item := range n.Content {
			converted, err := fromYAML(item)
			if err != nil {
				return nil, err
			}
			out.Items = append(out.Items, converted)
		}
		return out, nil
	case yaml.MappingNode:
		return mapping(n)
	case yaml.ScalarNode:
		return scalar(n)
	default:
		return nil, fmt.Errorf("line %d: unsupported node kind %d", n.Line, n.Kind)
	}
}

// mapping converts a mapping node. Keys brought in through "<<" never
// override keys written in the mapping itself, and earlier merge sources win
// over later ones.
func mapping(n *yaml.Node) (*document.Node, error) {
	out := document.NewObject()
	explicit := make(map[string]bool)
	var merged []*document.Node
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, value := n.Content[i], n.Content[i+1]
		if key.Kind == yaml.AliasNode {
			key = key.Alias
		}
		if key.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: mapping key must be a scalar", key.Line)
		}
		if key.ShortTag() == "!!merge" {
			sources, err := mergeSources(value)
			if err != nil {
				return nil, err
			}
			merged = append(merged, sources...)
			continue
		}
		converted, err := fromYAML(value)
		if err != nil {
			return nil, err
		}
		explicit[key.Value] = true
		out.Set(key.Value, converted)
	}

	for _, src := range merged {
		for _, f := range src.Fields {
			if explicit[f.Key] {
				continue
			}
			explicit[f.Key] = true
			out.Set(f.Key, f.Value)
		}
	}
	return out, nil
}

func mergeSources(n *yaml.Node) ([]*document.Node, error) {
	if n.Kind == yaml.SequenceNode {
		var out []*document.Node
		for _, item := range n.Content {
			sources, err := mergeSources(item)
			if err != nil {
				return nil, err
			}
			out = append(out, sources...)
		}
		return out, nil
	}
	src, err := fromYAML(n)
	if err != nil {
		return nil, err
	}
	if src.Kind != document.Object {
		return nil, fmt.Errorf("line %d: merge value must be a mapping, got %s", n.Line, src.Kind)
	}
	return []*document.Node{src}, nil
}

func scalar(n *yaml.Node) (*document.Node, error) {
	switch n.ShortTag() {
	case "!!null":
		return document.NewNull(), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, err
		}
		return document.NewBool(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err == nil {
			return document.NewInt(i), nil
		}
		var u uint64
		if err := n.Decode(&u); err != nil {
			return nil, err
		}
		return document.NewUint(u), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, err
		}
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, fmt.Errorf("line %d: %s has no JSON representation", n.Line, n.Value)
		}
		return document.NewFloat(f), nil
	default:
		return document.NewString(n.Value), nil
	}
}
