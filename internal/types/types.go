package types

import "fmt"

// ChangeKind is the mutation label carried by every decoded input line.
type ChangeKind int

const (
	ChangeInsert ChangeKind = iota
	ChangeDelete
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeInsert:
		return "INSERT"
	case ChangeDelete:
		return "DELETE"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
}

// Row is an ordered tuple of typed field values: the group key column and
// the aggregated numeric column. Rows are plain values; copying one copies
// its content.
type Row struct {
	Key   string
	Value int64
}

// ChangelogKind tags each output record. The short names mirror the
// conventional changelog notation (+I, -U, +U, -D).
type ChangelogKind int

const (
	KindInsert ChangelogKind = iota
	KindUpdateBefore
	KindUpdateAfter
	KindDelete
)

func (k ChangelogKind) String() string {
	switch k {
	case KindInsert:
		return "+I"
	case KindUpdateBefore:
		return "-U"
	case KindUpdateAfter:
		return "+U"
	case KindDelete:
		return "-D"
	default:
		return fmt.Sprintf("ChangelogKind(%d)", int(k))
	}
}

// Name returns the long form of the kind, used in serialized output.
func (k ChangelogKind) Name() string {
	switch k {
	case KindInsert:
		return "insert"
	case KindUpdateBefore:
		return "update_before"
	case KindUpdateAfter:
		return "update_after"
	case KindDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ChangelogRecord is the atomic unit of pipeline output: a kind plus the
// aggregated row it applies to. An UpdateBefore/UpdateAfter pair always
// straddles a single state transition for one key; a bare Insert or Delete
// marks a key's first appearance or total disappearance.
type ChangelogRecord struct {
	Kind ChangelogKind
	Row  Row
}

// Sink consumes the ordered changelog stream produced by the pipeline.
// Implementations must apply the four kinds idempotently so that replaying
// the stream reconstructs current table state.
type Sink interface {
	Emit(rec ChangelogRecord) error
	Close() error
}
