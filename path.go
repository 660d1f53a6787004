package granola

import (
	"errors"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// PathMatcher compiles path expressions.
// Implementations must return compiled paths that are safe for concurrent use.
type PathMatcher interface {
	Compile(expr string) (CompiledPath, error)
}

// CompiledPath is a path expression ready to be evaluated against documents.
type CompiledPath interface {
	// Eval returns the JSON encoding of the matched sub-document.
	// It returns ErrPathNotFound (possibly wrapped) when nothing matches.
	Eval(doc *Document, cfg PathConfig) ([]byte, error)

	// String returns the source expression.
	String() string
}

// PathConfig controls path evaluation. It is an immutable value handed to a
// Mapper at construction; there is no process-wide default to mutate.
type PathConfig struct {
	// Matcher compiles path expressions. Nil selects OJGMatcher.
	Matcher PathMatcher

	// LeafToNull makes a definite path whose final step is missing from an
	// existing object or array evaluate to null instead of ErrPathNotFound.
	LeafToNull bool

	// AlwaysList wraps definite matches in a one-element array.
	AlwaysList bool
}

// DefaultPathConfig returns the configuration used when none is supplied.
func DefaultPathConfig() PathConfig {
	return PathConfig{Matcher: OJGMatcher{}}
}

func (c PathConfig) matcher() PathMatcher {
	if c.Matcher == nil {
		return OJGMatcher{}
	}
	return c.Matcher
}

// Document is a record's raw JSON together with its lazily parsed tree.
// It is owned by a single decode and never modified.
type Document struct {
	raw    []byte
	tree   any
	parsed bool
	err    error
}

// NewDocument wraps raw JSON for path evaluation.
func NewDocument(raw []byte) *Document {
	return &Document{raw: raw}
}

// Raw returns the document bytes.
func (d *Document) Raw() []byte {
	return d.raw
}

// Tree returns the generic form of the document, parsing it on first use.
func (d *Document) Tree() (any, error) {
	if !d.parsed {
		d.tree, d.err = oj.Parse(d.raw)
		d.parsed = true
	}
	return d.tree, d.err
}

// walker is used only to navigate raw bytes; it never sees user types.
var walker = jsoniter.ConfigCompatibleWithStandardLibrary

// OJGMatcher compiles JSONPath expressions with github.com/ohler55/ojg.
type OJGMatcher struct{}

// Compile parses expr.
func (OJGMatcher) Compile(expr string) (CompiledPath, error) {
	x, err := jp.ParseString(expr)
	if err != nil {
		return nil, err
	}
	return &ojgPath{source: expr, expr: x, definite: isDefinite(x)}, nil
}

type ojgPath struct {
	source   string
	expr     jp.Expr
	definite bool
}

func (p *ojgPath) String() string {
	return p.source
}

// Eval walks the raw bytes for definite paths, which keeps object key order
// intact for tagged envelopes. Indefinite paths run against the parsed tree
// and their matches are re-encoded as an array.
func (p *ojgPath) Eval(doc *Document, cfg PathConfig) ([]byte, error) {
	if p.definite {
		raw, err := walkDefinite(doc.Raw(), p.expr, cfg.LeafToNull)
		if err != nil {
			return nil, err
		}
		if cfg.AlwaysList {
			wrapped := make([]byte, 0, len(raw)+2)
			wrapped = append(wrapped, '[')
			wrapped = append(wrapped, raw...)
			return append(wrapped, ']'), nil
		}
		return raw, nil
	}

	tree, err := doc.Tree()
	if err != nil {
		return nil, err
	}
	matches := p.expr.Get(tree)
	if len(matches) == 0 {
		return nil, ErrPathNotFound
	}
	return walker.Marshal(matches)
}

// isDefinite reports whether x can select at most one node.
func isDefinite(x jp.Expr) bool {
	for _, frag := range x {
		switch frag.(type) {
		case jp.Root, jp.At, jp.Bracket, jp.Child, jp.Nth:
		default:
			return false
		}
	}
	return true
}

func walkDefinite(raw []byte, x jp.Expr, leafToNull bool) ([]byte, error) {
	iter := walker.BorrowIterator(raw)
	defer walker.ReturnIterator(iter)

	last := len(x) - 1
	current := raw
	for i, frag := range x {
		var (
			next      []byte
			found     bool
			container bool
		)
		iter.ResetBytes(current)
		iter.Error = nil

		switch f := frag.(type) {
		case jp.Child:
			next, found, container = childOf(iter, string(f))
		case jp.Nth:
			next, found, container = nthOf(iter, int(f))
		default:
			continue
		}

		if iter.Error != nil && !errors.Is(iter.Error, io.EOF) {
			return nil, iter.Error
		}
		if !found {
			if leafToNull && container && i == last {
				return []byte("null"), nil
			}
			return nil, ErrPathNotFound
		}
		current = next
	}
	return current, nil
}

func childOf(iter *jsoniter.Iterator, key string) ([]byte, bool, bool) {
	if iter.WhatIsNext() != jsoniter.ObjectValue {
		return nil, false, false
	}
	var match []byte
	found := false
	iter.ReadObjectCB(func(it *jsoniter.Iterator, field string) bool {
		// Later duplicates win, as in a parsed tree.
		if field == key {
			match = it.SkipAndReturnBytes()
			found = true
			return true
		}
		it.Skip()
		return true
	})
	return match, found, true
}

func nthOf(iter *jsoniter.Iterator, index int) ([]byte, bool, bool) {
	if iter.WhatIsNext() != jsoniter.ArrayValue {
		return nil, false, false
	}
	var (
		match []byte
		found bool
		items [][]byte
	)
	i := 0
	iter.ReadArrayCB(func(it *jsoniter.Iterator) bool {
		switch {
		case index < 0:
			items = append(items, it.SkipAndReturnBytes())
		case i == index:
			match = it.SkipAndReturnBytes()
			found = true
		default:
			it.Skip()
		}
		i++
		return true
	})
	if index < 0 && -index <= len(items) {
		return items[len(items)+index], true, true
	}
	return match, found, true
}
