package granola

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"pgregory.net/rapid"
)

const (
	circleTag = "github.com/zoobzio/granola.circle"
	squareTag = "github.com/zoobzio/granola.square"
	labelTag  = "github.com/zoobzio/granola.label"
)

type canvas struct {
	Main shape            `json:"main"`
	All  []shape          `json:"all"`
	Keys map[string]shape `json:"keys,omitempty"`
}

type loose struct {
	Data any `json:"data"`
}

func testMapper(t *testing.T, opts ...Option) *Mapper {
	t.Helper()
	all := append([]Option{WithTypeRegistry(testTypes(t))}, opts...)
	m, err := NewMapper(all...)
	if err != nil {
		t.Fatalf("NewMapper() error: %v", err)
	}
	return m
}

func TestTagged_WireFormat(t *testing.T) {
	m := testMapper(t)

	var s shape = circle{Radius: 2}
	data, err := m.Marshal(&s)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	want := `{"$T":"` + circleTag + `","$V":{"radius":2}}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
}

func TestTagged_RoundTrip(t *testing.T) {
	m := testMapper(t)

	original := canvas{
		Main: circle{Radius: 1.5},
		All:  []shape{square{Side: 2}, nil, circle{Radius: 3}},
		Keys: map[string]shape{"a": square{Side: 4}},
	}
	data, err := m.Marshal(&original)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var restored canvas
	if err := m.Unmarshal(data, &restored); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if diff := cmp.Diff(original, restored); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestTagged_RoundTripProperty(t *testing.T) {
	m := testMapper(t)

	shapes := rapid.Custom(func(t *rapid.T) shape {
		quarters := rapid.IntRange(-400000, 400000).Draw(t, "quarters")
		size := float64(quarters) / 4
		switch rapid.IntRange(0, 2).Draw(t, "kind") {
		case 0:
			return circle{Radius: size}
		case 1:
			return square{Side: size}
		default:
			return nil
		}
	})

	rapid.Check(t, func(t *rapid.T) {
		original := canvas{
			Main: shapes.Draw(t, "main"),
			All:  rapid.SliceOfN(shapes, 0, 8).Draw(t, "all"),
		}

		data, err := m.Marshal(&original)
		if err != nil {
			t.Fatalf("Marshal() error: %v", err)
		}
		var restored canvas
		if err := m.Unmarshal(data, &restored); err != nil {
			t.Fatalf("Unmarshal(%s) error: %v", data, err)
		}
		if diff := cmp.Diff(original, restored, cmpopts.EquateEmpty()); diff != "" {
			t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestTagged_NullIdentity(t *testing.T) {
	m := testMapper(t)

	var s shape
	data, err := m.Marshal(&s)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if string(data) != "null" {
		t.Errorf("Marshal(nil) = %s, want null", data)
	}

	s = circle{Radius: 1}
	if err := m.Unmarshal([]byte("null"), &s); err != nil {
		t.Fatalf("Unmarshal(null) error: %v", err)
	}
	if s != nil {
		t.Errorf("Unmarshal(null) = %#v, want nil", s)
	}
}

func TestTagged_NilPointerIsNull(t *testing.T) {
	r := testTypes(t)
	if err := Register[*circle](r); err != nil {
		t.Fatalf("Register[*circle]() error: %v", err)
	}
	m, err := NewMapper(WithTypeRegistry(r))
	if err != nil {
		t.Fatalf("NewMapper() error: %v", err)
	}

	var s shape = (*circle)(nil)
	data, err := m.Marshal(&s)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if string(data) != "null" {
		t.Errorf("Marshal(nil pointer) = %s, want null", data)
	}

	s = &circle{Radius: 5}
	data, err = m.Marshal(&s)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	var restored shape
	if err := m.Unmarshal(data, &restored); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if c, ok := restored.(*circle); !ok || c.Radius != 5 {
		t.Errorf("Unmarshal() = %#v, want &circle{5}", restored)
	}
}

func TestTagged_Malformed(t *testing.T) {
	m := testMapper(t)

	tests := []struct {
		name  string
		input string
	}{
		{"value before type", `{"$V":{"radius":1},"$T":"` + circleTag + `"}`},
		{"wrong type property", `{"type":"` + circleTag + `","$V":{"radius":1}}`},
		{"wrong value property", `{"$T":"` + circleTag + `","value":{"radius":1}}`},
		{"third property", `{"$T":"` + circleTag + `","$V":{"radius":1},"extra":true}`},
		{"empty object", `{}`},
		{"type only", `{"$T":"` + circleTag + `"}`},
		{"type tag not a string", `{"$T":42,"$V":{"radius":1}}`},
		{"array", `[1,2]`},
		{"string", `"circle"`},
		{"number", `7`},
		{"bool", `true`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s shape = square{Side: 9}
			err := m.Unmarshal([]byte(tt.input), &s)
			if !errors.Is(err, ErrMalformedInput) {
				t.Fatalf("Unmarshal() error = %v, want ErrMalformedInput", err)
			}
			var ee *EnvelopeError
			if !errors.As(err, &ee) {
				t.Errorf("Unmarshal() error = %T, want *EnvelopeError", err)
			}
			if s != (square{Side: 9}) {
				t.Errorf("target modified on failure: %#v", s)
			}
		})
	}
}

func TestTagged_MalformedNested(t *testing.T) {
	m := testMapper(t)

	c := canvas{Main: square{Side: 1}}
	input := `{"main":{"$V":{"radius":1},"$T":"` + circleTag + `"},"all":[]}`
	err := m.Unmarshal([]byte(input), &c)
	if !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("Unmarshal() error = %v, want ErrMalformedInput", err)
	}
	if c.Main != (square{Side: 1}) {
		t.Errorf("target modified on failure: %#v", c.Main)
	}
}

func TestTagged_UnknownTag(t *testing.T) {
	m := testMapper(t)

	var s shape
	err := m.Unmarshal([]byte(`{"$T":"shapes.Hexagon","$V":{}}`), &s)
	if !errors.Is(err, ErrTypeNotFound) {
		t.Fatalf("Unmarshal() error = %v, want ErrTypeNotFound", err)
	}
	var te *TypeError
	if !errors.As(err, &te) || te.TypeName != "shapes.Hexagon" {
		t.Errorf("Unmarshal() error = %v, want TypeError naming shapes.Hexagon", err)
	}
}

func TestTagged_TypeMismatch(t *testing.T) {
	m := testMapper(t)

	var s shape
	err := m.Unmarshal([]byte(`{"$T":"`+labelTag+`","$V":{"text":"hi"}}`), &s)
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("Unmarshal() error = %v, want ErrTypeMismatch", err)
	}
}

func TestTagged_UnregisteredRuntimeType(t *testing.T) {
	m, err := NewMapper(WithTypeRegistry(NewTypeRegistry()))
	if err != nil {
		t.Fatalf("NewMapper() error: %v", err)
	}

	c := canvas{Main: circle{Radius: 1}}
	_, err = m.Marshal(&c)
	if !errors.Is(err, ErrTypeNotRegistered) {
		t.Errorf("Marshal() error = %v, want ErrTypeNotRegistered", err)
	}
}

func TestTagged_CustomProperties(t *testing.T) {
	m := testMapper(t, WithTypeProperties("@type", "@value"))

	var s shape = square{Side: 3}
	data, err := m.Marshal(&s)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	want := `{"@type":"` + squareTag + `","@value":{"side":3}}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}

	var restored shape
	if err := m.Unmarshal(data, &restored); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if restored != s {
		t.Errorf("Unmarshal() = %#v, want %#v", restored, s)
	}

	typeProp, valueProp := m.TypeProperties()
	if typeProp != "@type" || valueProp != "@value" {
		t.Errorf("TypeProperties() = %q, %q", typeProp, valueProp)
	}

	// The default names are now just unknown properties.
	err = m.Unmarshal([]byte(`{"$T":"`+squareTag+`","$V":{"side":3}}`), &restored)
	if !errors.Is(err, ErrMalformedInput) {
		t.Errorf("Unmarshal(default names) error = %v, want ErrMalformedInput", err)
	}
}

func TestTagged_EmptyInterfaceIsNotAbstract(t *testing.T) {
	m := testMapper(t)

	data, err := m.Marshal(&loose{Data: circle{Radius: 1}})
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if want := `{"data":{"radius":1}}`; string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}

	var l loose
	if err := m.Unmarshal([]byte(`{"data":{"$T":"x","$V":1}}`), &l); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	want := map[string]any{"$T": "x", "$V": float64(1)}
	if diff := cmp.Diff(want, l.Data); diff != "" {
		t.Errorf("Unmarshal() mismatch (-want +got):\n%s", diff)
	}
}

func TestTagged_WithoutAbstractTypes(t *testing.T) {
	m := testMapper(t, WithoutAbstractTypes())

	c := canvas{Main: circle{Radius: 1}, All: []shape{}}
	data, err := m.Marshal(&c)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if want := `{"main":{"radius":1},"all":[]}`; string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
}

func TestTypeAware(t *testing.T) {
	m := testMapper(t)
	ta := m.TypeAware()

	data, err := ta.MarshalTagged(square{Side: 2})
	if err != nil {
		t.Fatalf("MarshalTagged() error: %v", err)
	}
	if want := `{"$T":"` + squareTag + `","$V":{"side":2}}`; string(data) != want {
		t.Errorf("MarshalTagged() = %s, want %s", data, want)
	}

	v, err := ta.UnmarshalTagged(data)
	if err != nil {
		t.Fatalf("UnmarshalTagged() error: %v", err)
	}
	if v != (square{Side: 2}) {
		t.Errorf("UnmarshalTagged() = %#v, want square{2}", v)
	}

	// Types that implement no particular interface still round trip.
	data, err = ta.MarshalTagged(label{Text: "hi"})
	if err != nil {
		t.Fatalf("MarshalTagged() error: %v", err)
	}
	v, err = ta.UnmarshalTagged(data)
	if err != nil {
		t.Fatalf("UnmarshalTagged() error: %v", err)
	}
	if v != (label{Text: "hi"}) {
		t.Errorf("UnmarshalTagged() = %#v, want label{hi}", v)
	}
}

func TestTypeAware_Null(t *testing.T) {
	ta := testMapper(t).TypeAware()

	data, err := ta.MarshalTagged(nil)
	if err != nil {
		t.Fatalf("MarshalTagged(nil) error: %v", err)
	}
	if string(data) != "null" {
		t.Errorf("MarshalTagged(nil) = %s, want null", data)
	}

	v, err := ta.UnmarshalTagged([]byte("null"))
	if err != nil {
		t.Fatalf("UnmarshalTagged(null) error: %v", err)
	}
	if v != nil {
		t.Errorf("UnmarshalTagged(null) = %#v, want nil", v)
	}
}

func TestTypeAware_Into(t *testing.T) {
	ta := testMapper(t).TypeAware()

	var s shape
	if err := ta.UnmarshalTaggedInto([]byte(`{"$T":"`+circleTag+`","$V":{"radius":4}}`), &s); err != nil {
		t.Fatalf("UnmarshalTaggedInto() error: %v", err)
	}
	if s != (circle{Radius: 4}) {
		t.Errorf("UnmarshalTaggedInto() = %#v", s)
	}

	err := ta.UnmarshalTaggedInto([]byte(`{"$T":"`+labelTag+`","$V":{"text":"x"}}`), &s)
	if !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("UnmarshalTaggedInto(label) error = %v, want ErrTypeMismatch", err)
	}

	var c circle
	if err := ta.UnmarshalTaggedInto([]byte(`null`), &c); !errors.Is(err, ErrUnmarshal) {
		t.Errorf("UnmarshalTaggedInto(non-interface) error = %v, want ErrUnmarshal", err)
	}
}

func TestTypeAware_Errors(t *testing.T) {
	ta := testMapper(t).TypeAware()

	if _, err := ta.UnmarshalTagged(nil); !errors.Is(err, ErrUnmarshal) {
		t.Errorf("UnmarshalTagged(empty) error = %v, want ErrUnmarshal", err)
	}
	if _, err := ta.UnmarshalTagged([]byte(`{"$T":"x","$V":1}`)); !errors.Is(err, ErrTypeNotFound) {
		t.Errorf("UnmarshalTagged(unknown) error = %v, want ErrTypeNotFound", err)
	}
	if _, err := ta.UnmarshalTagged([]byte(`null null`)); !errors.Is(err, ErrUnmarshal) {
		t.Errorf("UnmarshalTagged(trailing) error = %v, want ErrUnmarshal", err)
	}
	if _, err := ta.MarshalTagged(struct{}{}); !errors.Is(err, ErrTypeNotRegistered) {
		t.Errorf("MarshalTagged(unregistered) error = %v, want ErrTypeNotRegistered", err)
	}
}
