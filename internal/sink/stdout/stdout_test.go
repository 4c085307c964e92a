package stdout

import (
	"bytes"
	"testing"

	"go.uber.org/zap"

	"github.com/tidefall/changesum/internal/types"
)

func TestEmitFormatsChangelogNotation(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriter(&buf, zap.NewNop())

	records := []types.ChangelogRecord{
		{Kind: types.KindInsert, Row: types.Row{Key: "Alice", Value: 12}},
		{Kind: types.KindUpdateBefore, Row: types.Row{Key: "Alice", Value: 12}},
		{Kind: types.KindUpdateAfter, Row: types.Row{Key: "Alice", Value: 15}},
		{Kind: types.KindDelete, Row: types.Row{Key: "Alice", Value: 15}},
	}
	for _, rec := range records {
		if err := s.Emit(rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	want := "+I[Alice, 12]\n-U[Alice, 12]\n+U[Alice, 15]\n-D[Alice, 15]\n"
	if buf.String() != want {
		t.Fatalf("output = %q, want %q", buf.String(), want)
	}
}
