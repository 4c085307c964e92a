package schema

import (
	"fmt"
	"strconv"

	"github.com/tidefall/changesum/internal/config"
)

// FieldType enumerates the field types the decoder can parse.
type FieldType int

const (
	TypeString FieldType = iota
	TypeInt
)

func (t FieldType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	default:
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
}

// ParseType resolves a config type name to a FieldType.
func ParseType(name string) (FieldType, error) {
	switch name {
	case "string":
		return TypeString, nil
	case "int", "bigint":
		return TypeInt, nil
	default:
		return 0, fmt.Errorf("unknown field type %q", name)
	}
}

type Field struct {
	Name string
	Type FieldType
}

// Schema is the ordered list of row fields the decoder parses each line
// against. Field order matches token order on the wire.
type Schema struct {
	Fields []Field
}

// FromConfig builds a Schema from the configured field list.
func FromConfig(fields []config.SchemaField) (Schema, error) {
	out := Schema{Fields: make([]Field, len(fields))}
	for i, f := range fields {
		t, err := ParseType(f.Type)
		if err != nil {
			return Schema{}, fmt.Errorf("schema field %q: %w", f.Name, err)
		}
		out.Fields[i] = Field{Name: f.Name, Type: t}
	}
	return out, nil
}

func (s Schema) Arity() int {
	return len(s.Fields)
}

// ParseField parses one token against its declared type. Numeric parsing is
// strict: no whitespace, no decimal point, full-token match.
func ParseField(t FieldType, token string) (any, error) {
	switch t {
	case TypeString:
		return token, nil
	case TypeInt:
		v, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %q as int: %w", token, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown field type %v", t)
	}
}
