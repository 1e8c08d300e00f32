package dto

import (
	"fmt"
	"strings"
)

// Type is the declared semantic type of a schema field.
type Type int

// Field types. The zero value is TypeUntyped, which passes values through unchanged.
const (
	TypeUntyped Type = iota
	TypeInt
	TypeFloat
	TypeString
	TypeBool
	TypeObject
	TypeArray
	TypeDate
)

var typeNames = [...]string{
	TypeUntyped: "untyped",
	TypeInt:     "int",
	TypeFloat:   "float",
	TypeString:  "string",
	TypeBool:    "bool",
	TypeObject:  "object",
	TypeArray:   "array",
	TypeDate:    "date",
}

var typeAliases = map[string]Type{
	"":         TypeUntyped,
	"untyped":  TypeUntyped,
	"mixed":    TypeUntyped,
	"int":      TypeInt,
	"integer":  TypeInt,
	"float":    TypeFloat,
	"double":   TypeFloat,
	"string":   TypeString,
	"bool":     TypeBool,
	"boolean":  TypeBool,
	"object":   TypeObject,
	"array":    TypeArray,
	"date":     TypeDate,
	"datetime": TypeDate,
}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("Type(%d)", int(t))
	}
	return typeNames[t]
}

// ParseType resolves a type name (case-insensitive, with common aliases such
// as "integer" or "datetime") to a Type.
func ParseType(name string) (Type, error) {
	t, ok := typeAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return TypeUntyped, fmt.Errorf("dto: unknown type %q", name)
	}
	return t, nil
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	if t < 0 || int(t) >= len(typeNames) {
		return nil, fmt.Errorf("dto: invalid type %d", int(t))
	}
	return []byte(typeNames[t]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, so types decode from
// JSON and YAML documents by name.
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
