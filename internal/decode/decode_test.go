package decode

import (
	"errors"
	"testing"

	"github.com/tidefall/changesum/internal/config"
	"github.com/tidefall/changesum/internal/schema"
	"github.com/tidefall/changesum/internal/types"
)

func testDecoder(t *testing.T) *Decoder {
	t.Helper()
	sc, err := schema.FromConfig([]config.SchemaField{
		{Name: "name", Type: "string"},
		{Name: "score", Type: "int"},
	})
	if err != nil {
		t.Fatal(err)
	}
	d, err := New('|', sc)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestDecodeInsert(t *testing.T) {
	d := testDecoder(t)
	kind, row, err := d.Decode([]byte("INSERT|Alice|12"))
	if err != nil {
		t.Fatal(err)
	}
	if kind != types.ChangeInsert {
		t.Fatalf("kind = %v", kind)
	}
	if row.Key != "Alice" || row.Value != 12 {
		t.Fatalf("row = %+v", row)
	}
}

func TestDecodeDelete(t *testing.T) {
	d := testDecoder(t)
	kind, row, err := d.Decode([]byte("DELETE|Bob|-5"))
	if err != nil {
		t.Fatal(err)
	}
	if kind != types.ChangeDelete {
		t.Fatalf("kind = %v", kind)
	}
	if row.Key != "Bob" || row.Value != -5 {
		t.Fatalf("row = %+v", row)
	}
}

func TestDecodeErrors(t *testing.T) {
	d := testDecoder(t)
	tests := []struct {
		name   string
		line   string
		reason Reason
		field  int
	}{
		{"lowercase label", "insert|Alice|12", UnknownChangeKind, -1},
		{"update label", "UPDATE|Alice|12", UnknownChangeKind, -1},
		{"missing field", "INSERT|Alice", ArityMismatch, -1},
		{"extra field", "INSERT|Alice|12|9", ArityMismatch, -1},
		{"empty line", "", ArityMismatch, -1},
		{"non-numeric value", "INSERT|Alice|twelve", TypeMismatch, 1},
		{"float value", "INSERT|Alice|1.5", TypeMismatch, 1},
		{"padded value", "INSERT|Alice| 12", TypeMismatch, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := d.Decode([]byte(tt.line))
			var decodeErr *Error
			if !errors.As(err, &decodeErr) {
				t.Fatalf("err = %v, want *Error", err)
			}
			if decodeErr.Reason != tt.reason {
				t.Fatalf("reason = %v, want %v", decodeErr.Reason, tt.reason)
			}
			if decodeErr.Field != tt.field {
				t.Fatalf("field = %d, want %d", decodeErr.Field, tt.field)
			}
		})
	}
}

func TestDecodeIsPure(t *testing.T) {
	d := testDecoder(t)
	line := []byte("INSERT|Alice|12")
	k1, r1, err1 := d.Decode(line)
	k2, r2, err2 := d.Decode(line)
	if err1 != nil || err2 != nil {
		t.Fatal(err1, err2)
	}
	if k1 != k2 || r1 != r2 {
		t.Fatalf("decode not idempotent: (%v, %+v) vs (%v, %+v)", k1, r1, k2, r2)
	}
}

func TestDecodeCustomDelimiter(t *testing.T) {
	sc, err := schema.FromConfig([]config.SchemaField{
		{Name: "name", Type: "string"},
		{Name: "score", Type: "int"},
	})
	if err != nil {
		t.Fatal(err)
	}
	d, err := New(';', sc)
	if err != nil {
		t.Fatal(err)
	}
	kind, row, err := d.Decode([]byte("INSERT;Carol;7"))
	if err != nil {
		t.Fatal(err)
	}
	if kind != types.ChangeInsert || row.Key != "Carol" || row.Value != 7 {
		t.Fatalf("got %v %+v", kind, row)
	}
}

func TestNewRejectsBadSchemas(t *testing.T) {
	for _, fields := range [][]config.SchemaField{
		{{Name: "name", Type: "string"}},
		{{Name: "a", Type: "int"}, {Name: "b", Type: "int"}},
		{{Name: "a", Type: "string"}, {Name: "b", Type: "string"}},
	} {
		sc, err := schema.FromConfig(fields)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := New('|', sc); err == nil {
			t.Fatalf("expected error for schema %+v", fields)
		}
	}
}
