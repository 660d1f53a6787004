// Package testing provides shared fixtures for granola tests.
package testing

import (
	"math"
	"testing"

	"github.com/zoobzio/granola"
)

// NestedDocument is a record whose interesting values sit three levels deep.
const NestedDocument = `{"l1":{"l2":{"l3":{"foo":"Foo!","bar":["A","B","C"],"baz":{"k1":"v1"}}}}}`

// Shape is an abstract type with two registered implementations.
type Shape interface {
	Area() float64
}

// Circle implements Shape.
type Circle struct {
	Radius float64 `json:"radius"`
}

// Area implements Shape.
func (c Circle) Area() float64 { return math.Pi * c.Radius * c.Radius }

// Square implements Shape.
type Square struct {
	Side float64 `json:"side"`
}

// Area implements Shape.
func (s Square) Area() float64 { return s.Side * s.Side }

// Unregistered implements Shape but is never added to a registry.
type Unregistered struct {
	Name string `json:"name"`
}

// Area implements Shape.
func (Unregistered) Area() float64 { return 0 }

// Drawing holds shapes behind interface-typed fields.
type Drawing struct {
	Name   string           `json:"name"`
	Focus  Shape            `json:"focus"`
	Shapes []Shape          `json:"shapes"`
	Named  map[string]Shape `json:"named,omitempty"`
}

// Wrapper projects three values out of NestedDocument.
type Wrapper struct {
	FooRef string         `json:"-" jsonpath:"$.l1.l2.l3.foo"`
	BarRef string         `json:"-" jsonpath:"$.l1.l2.l3.bar[0]"`
	BazRef map[string]any `json:"-" jsonpath:"$.l1.l2.l3.baz"`
}

// WrapperWithNotExistingPath projects a path that matches nothing.
type WrapperWithNotExistingPath struct {
	FooRef *string `json:"-" jsonpath:"$.nowhere"`
}

// Gallery mixes projection with tagged envelopes: the projected value is
// itself an envelope.
type Gallery struct {
	Title    string  `json:"title"`
	Featured Shape   `json:"-" jsonpath:"$.items[0]"`
	Items    []Shape `json:"items"`
}

// Types returns a fresh registry holding Circle and Square.
func Types(tb testing.TB) *granola.TypeRegistry {
	tb.Helper()
	r := granola.NewTypeRegistry()
	if err := granola.Register[Circle](r); err != nil {
		tb.Fatalf("Register[Circle]() error: %v", err)
	}
	if err := granola.Register[Square](r); err != nil {
		tb.Fatalf("Register[Square]() error: %v", err)
	}
	return r
}

// Mapper returns a mapper over Types plus the given options.
func Mapper(tb testing.TB, opts ...granola.Option) *granola.Mapper {
	tb.Helper()
	all := append([]granola.Option{granola.WithTypeRegistry(Types(tb))}, opts...)
	m, err := granola.NewMapper(all...)
	if err != nil {
		tb.Fatalf("NewMapper() error: %v", err)
	}
	return m
}

// SampleDrawing returns a drawing exercising every abstract position.
func SampleDrawing() Drawing {
	return Drawing{
		Name:   "sample",
		Focus:  Circle{Radius: 2},
		Shapes: []Shape{Square{Side: 3}, Circle{Radius: 1.5}},
		Named:  map[string]Shape{"big": Square{Side: 10}},
	}
}
