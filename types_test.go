package granola

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type shape interface {
	Area() float64
}

type circle struct {
	Radius float64 `json:"radius"`
}

func (c circle) Area() float64 { return 3 * c.Radius * c.Radius }

type square struct {
	Side float64 `json:"side"`
}

func (s square) Area() float64 { return s.Side * s.Side }

type label struct {
	Text string `json:"text"`
}

func testTypes(t *testing.T) *TypeRegistry {
	t.Helper()
	r := NewTypeRegistry()
	if err := Register[circle](r); err != nil {
		t.Fatalf("Register[circle]() error: %v", err)
	}
	if err := Register[square](r); err != nil {
		t.Fatalf("Register[square]() error: %v", err)
	}
	if err := Register[label](r); err != nil {
		t.Fatalf("Register[label]() error: %v", err)
	}
	return r
}

func TestTypeName(t *testing.T) {
	tests := []struct {
		name string
		typ  reflect.Type
		want string
	}{
		{"named struct", reflect.TypeFor[circle](), "github.com/zoobzio/granola.circle"},
		{"pointer", reflect.TypeFor[*circle](), "*github.com/zoobzio/granola.circle"},
		{"double pointer", reflect.TypeFor[**circle](), "**github.com/zoobzio/granola.circle"},
		{"builtin", reflect.TypeFor[int](), "int"},
		{"unnamed", reflect.TypeFor[[]string](), "[]string"},
		{"nil", nil, "<nil>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TypeName(tt.typ); got != tt.want {
				t.Errorf("TypeName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTypeRegistry_Bijection(t *testing.T) {
	r := testTypes(t)

	for _, name := range r.Names() {
		typ, err := r.Resolve(name)
		if err != nil {
			t.Fatalf("Resolve(%q) error: %v", name, err)
		}
		back, err := r.NameOf(typ)
		if err != nil {
			t.Fatalf("NameOf(%v) error: %v", typ, err)
		}
		if back != name {
			t.Errorf("NameOf(Resolve(%q)) = %q", name, back)
		}
	}
}

func TestTypeRegistry_Names(t *testing.T) {
	r := testTypes(t)
	want := []string{
		"github.com/zoobzio/granola.circle",
		"github.com/zoobzio/granola.label",
		"github.com/zoobzio/granola.square",
	}
	if diff := cmp.Diff(want, r.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
}

func TestTypeRegistry_RegisterNamed(t *testing.T) {
	r := NewTypeRegistry()
	if err := RegisterNamed[circle](r, "circle"); err != nil {
		t.Fatalf("RegisterNamed() error: %v", err)
	}
	typ, err := r.Resolve("circle")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if typ != reflect.TypeFor[circle]() {
		t.Errorf("Resolve() = %v, want circle", typ)
	}
	if name, _ := r.NameOf(typ); name != "circle" {
		t.Errorf("NameOf() = %q, want %q", name, "circle")
	}
}

func TestTypeRegistry_Duplicates(t *testing.T) {
	r := NewTypeRegistry()
	if err := RegisterNamed[circle](r, "c"); err != nil {
		t.Fatalf("RegisterNamed() error: %v", err)
	}

	// Identical pair is a no-op.
	if err := RegisterNamed[circle](r, "c"); err != nil {
		t.Errorf("re-registering identical pair error: %v", err)
	}

	// Same name, different type.
	if err := RegisterNamed[square](r, "c"); !errors.Is(err, ErrDuplicateType) {
		t.Errorf("RegisterNamed(square, c) error = %v, want ErrDuplicateType", err)
	}

	// Same type, different name.
	if err := RegisterNamed[circle](r, "other"); !errors.Is(err, ErrDuplicateType) {
		t.Errorf("RegisterNamed(circle, other) error = %v, want ErrDuplicateType", err)
	}
}

func TestTypeRegistry_InvalidTypes(t *testing.T) {
	r := NewTypeRegistry()

	if err := Register[shape](r); !errors.Is(err, ErrInvalidType) {
		t.Errorf("Register[shape]() error = %v, want ErrInvalidType", err)
	}
	if err := r.RegisterType("x", nil); !errors.Is(err, ErrInvalidType) {
		t.Errorf("RegisterType(nil) error = %v, want ErrInvalidType", err)
	}
	if err := r.RegisterType("", reflect.TypeFor[circle]()); !errors.Is(err, ErrInvalidType) {
		t.Errorf("RegisterType(\"\") error = %v, want ErrInvalidType", err)
	}
}

func TestTypeRegistry_Unknown(t *testing.T) {
	r := NewTypeRegistry()

	_, err := r.Resolve("nope")
	if !errors.Is(err, ErrTypeNotFound) {
		t.Errorf("Resolve() error = %v, want ErrTypeNotFound", err)
	}
	var te *TypeError
	if !errors.As(err, &te) || te.TypeName != "nope" {
		t.Errorf("Resolve() error = %v, want TypeError for nope", err)
	}

	if _, err := r.NameOf(reflect.TypeFor[circle]()); !errors.Is(err, ErrTypeNotRegistered) {
		t.Errorf("NameOf() error = %v, want ErrTypeNotRegistered", err)
	}
}

func TestMustRegister_Panics(t *testing.T) {
	r := NewTypeRegistry()
	MustRegister[circle](r)

	defer func() {
		if recover() == nil {
			t.Error("MustRegister[shape]() should panic")
		}
	}()
	MustRegister[shape](r)
}

func TestTypeRegistry_Concurrent(t *testing.T) {
	r := testTypes(t)
	name := TypeName(reflect.TypeFor[circle]())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := r.Resolve(name); err != nil {
				t.Errorf("Resolve() error: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			_ = Register[circle](r)
		}()
	}
	wg.Wait()
}
