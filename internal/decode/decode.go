package decode

import (
	"bytes"
	"fmt"

	"github.com/tidefall/changesum/internal/schema"
	"github.com/tidefall/changesum/internal/types"
)

// Reason classifies why a line was rejected.
type Reason int

const (
	UnknownChangeKind Reason = iota
	ArityMismatch
	TypeMismatch
)

func (r Reason) String() string {
	switch r {
	case UnknownChangeKind:
		return "unknown change kind"
	case ArityMismatch:
		return "arity mismatch"
	case TypeMismatch:
		return "type mismatch"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// Error reports a single malformed line. Decode errors are non-fatal: the
// pipeline skips the line and continues.
type Error struct {
	Reason Reason
	Field  int // field index for TypeMismatch, -1 otherwise
	cause  error
}

func (e *Error) Error() string {
	if e.Reason == TypeMismatch {
		return fmt.Sprintf("decode: %v at field %d: %v", e.Reason, e.Field, e.cause)
	}
	if e.cause != nil {
		return fmt.Sprintf("decode: %v: %v", e.Reason, e.cause)
	}
	return fmt.Sprintf("decode: %v", e.Reason)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Decoder parses one delimited line into a (ChangeKind, Row) pair. Decoding
// is pure and stateless; the same line always yields the same result.
type Decoder struct {
	delim  []byte
	schema schema.Schema
}

// New builds a Decoder for the given field delimiter and schema. The running
// aggregation requires a two-field row shape: a string group key followed by
// an integer value.
func New(fieldDelim byte, sc schema.Schema) (*Decoder, error) {
	if sc.Arity() != 2 {
		return nil, fmt.Errorf("schema must have exactly 2 fields, got %d", sc.Arity())
	}
	if sc.Fields[0].Type != schema.TypeString {
		return nil, fmt.Errorf("group key field %q must be a string", sc.Fields[0].Name)
	}
	if sc.Fields[1].Type != schema.TypeInt {
		return nil, fmt.Errorf("value field %q must be an int", sc.Fields[1].Name)
	}
	return &Decoder{delim: []byte{fieldDelim}, schema: sc}, nil
}

// Decode splits line into 1+N tokens: the change-kind label followed by the
// row fields in schema order.
func (d *Decoder) Decode(line []byte) (types.ChangeKind, types.Row, error) {
	tokens := bytes.Split(line, d.delim)
	if len(tokens) != 1+d.schema.Arity() {
		return 0, types.Row{}, &Error{
			Reason: ArityMismatch,
			Field:  -1,
			cause:  fmt.Errorf("expected %d tokens, got %d", 1+d.schema.Arity(), len(tokens)),
		}
	}

	var kind types.ChangeKind
	switch string(tokens[0]) {
	case "INSERT":
		kind = types.ChangeInsert
	case "DELETE":
		kind = types.ChangeDelete
	default:
		return 0, types.Row{}, &Error{
			Reason: UnknownChangeKind,
			Field:  -1,
			cause:  fmt.Errorf("label %q", tokens[0]),
		}
	}

	var row types.Row
	for i, f := range d.schema.Fields {
		v, err := schema.ParseField(f.Type, string(tokens[1+i]))
		if err != nil {
			return 0, types.Row{}, &Error{Reason: TypeMismatch, Field: i, cause: err}
		}
		switch i {
		case 0:
			row.Key = v.(string)
		case 1:
			row.Value = v.(int64)
		}
	}
	return kind, row, nil
}
