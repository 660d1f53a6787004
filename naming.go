package granola

import (
	"reflect"
	"strings"

	"github.com/iancoleman/strcase"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// FieldNamingResolver maps the key of a jsonname tag to a wire name.
type FieldNamingResolver interface {
	// ResolveName returns the wire name for key, or false when it has none.
	ResolveName(key string) (string, bool)
}

// FieldNamingResolverFunc adapts a function to FieldNamingResolver.
type FieldNamingResolverFunc func(key string) (string, bool)

// ResolveName calls f.
func (f FieldNamingResolverFunc) ResolveName(key string) (string, bool) {
	return f(key)
}

// StaticNames resolves keys from a fixed table.
type StaticNames map[string]string

// ResolveName looks key up in the table.
func (s StaticNames) ResolveName(key string) (string, bool) {
	name, ok := s[key]
	return name, ok
}

// FieldNamingStrategy names a struct field that has no resolved or explicit name.
type FieldNamingStrategy func(field reflect.StructField) string

// IdentityNaming uses the Go field name unchanged.
func IdentityNaming(field reflect.StructField) string {
	return field.Name
}

var lower = cases.Lower(language.Und)

// LowerCaseNaming lower-cases the Go field name.
func LowerCaseNaming(field reflect.StructField) string {
	return lower.String(field.Name)
}

// SnakeCaseNaming converts the Go field name to snake_case, keeping acronyms
// together: "HTTPStatusCode" becomes "http_status_code" and "Level2" becomes
// "level_2".
func SnakeCaseNaming(field reflect.StructField) string {
	return strcase.ToSnake(field.Name)
}

// namingExtension rewrites struct field names from jsonname tags and the
// fallback strategy.
type namingExtension struct {
	jsoniter.DummyExtension
	resolver FieldNamingResolver
	fallback FieldNamingStrategy
}

func (e *namingExtension) UpdateStructDescriptor(sd *jsoniter.StructDescriptor) {
	rt := sd.Type.Type1()
	for _, binding := range sd.Fields {
		// Unexported fields carry no names and are never read or written.
		if len(binding.FromNames) == 0 && len(binding.ToNames) == 0 {
			continue
		}
		sf := rt.FieldByIndex(binding.Field.Index())
		if name, ok := e.nameFor(sf); ok {
			binding.FromNames = []string{name}
			binding.ToNames = []string{name}
		}
	}
}

func (e *namingExtension) nameFor(sf reflect.StructField) (string, bool) {
	if key, ok := sf.Tag.Lookup(TagName); ok {
		if e.resolver != nil {
			if name, ok := e.resolver.ResolveName(key); ok && name != "" {
				return name, true
			}
		}
		if e.fallback != nil {
			return e.fallback(sf), true
		}
		return "", false
	}
	if jsonTagName(sf.Tag) != "" || e.fallback == nil {
		return "", false
	}
	return e.fallback(sf), true
}

func jsonTagName(tag reflect.StructTag) string {
	name, _, _ := strings.Cut(tag.Get("json"), ",")
	return name
}
