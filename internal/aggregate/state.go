package aggregate

import (
	"errors"
	"fmt"

	"github.com/tidefall/changesum/internal/types"
)

// ErrOverflow marks a sum that left the int64 range. Overflow is fatal for
// the pipeline: a silently wrong aggregate is worse than stopping.
var ErrOverflow = errors.New("aggregate sum overflow")

// RetractionError reports a Delete for a value that was never inserted for
// the key (or whose key has no live cell). It models malformed upstream
// data, not a pipeline bug, and is handled as log-and-ignore.
type RetractionError struct {
	Key   string
	Value int64
}

func (e *RetractionError) Error() string {
	return fmt.Sprintf("retraction of unknown value %d for key %q", e.Value, e.Key)
}

// TransitionKind classifies what a single applied change did to a key's
// aggregate.
type TransitionKind int

const (
	// Appeared: first insert for the key created its cell.
	Appeared TransitionKind = iota
	// Changed: the cell existed before and after; Old and New carry both sums.
	Changed
	// Disappeared: the contribution multiset drained; the cell was reclaimed.
	Disappeared
)

// Transition describes one state change for one key.
type Transition struct {
	Kind TransitionKind
	Key  string
	Old  int64
	New  int64
}

// cell is the per-key aggregation state: the running sum plus the multiset
// of contributed values. The multiset is kept as a growable list so a Delete
// retracts the exact value that was inserted rather than decrementing
// blindly.
type cell struct {
	sum    int64
	values []int64
}

// State owns the mapping from group key to aggregation cell. It is mutated
// by exactly one pipeline goroutine; changes are applied strictly in arrival
// order per key.
type State struct {
	cells map[string]*cell
}

func NewState() *State {
	return &State{cells: make(map[string]*cell)}
}

// Apply folds one decoded change into the key's cell and reports the
// resulting transition. Errors: *RetractionError for a Delete of a value not
// in the multiset (the state is left untouched), ErrOverflow when the sum
// would leave int64.
func (s *State) Apply(kind types.ChangeKind, row types.Row) (Transition, error) {
	switch kind {
	case types.ChangeInsert:
		return s.insert(row)
	case types.ChangeDelete:
		return s.delete(row)
	default:
		return Transition{}, fmt.Errorf("unsupported change kind %v", kind)
	}
}

func (s *State) insert(row types.Row) (Transition, error) {
	c, ok := s.cells[row.Key]
	if !ok {
		s.cells[row.Key] = &cell{sum: row.Value, values: []int64{row.Value}}
		return Transition{Kind: Appeared, Key: row.Key, New: row.Value}, nil
	}

	sum, ok := addChecked(c.sum, row.Value)
	if !ok {
		return Transition{}, fmt.Errorf("key %q: adding %d to %d: %w", row.Key, row.Value, c.sum, ErrOverflow)
	}
	old := c.sum
	c.sum = sum
	c.values = append(c.values, row.Value)
	return Transition{Kind: Changed, Key: row.Key, Old: old, New: sum}, nil
}

func (s *State) delete(row types.Row) (Transition, error) {
	c, ok := s.cells[row.Key]
	if !ok {
		return Transition{}, &RetractionError{Key: row.Key, Value: row.Value}
	}

	i := indexOf(c.values, row.Value)
	if i < 0 {
		return Transition{}, &RetractionError{Key: row.Key, Value: row.Value}
	}

	sum, ok := subChecked(c.sum, row.Value)
	if !ok {
		return Transition{}, fmt.Errorf("key %q: subtracting %d from %d: %w", row.Key, row.Value, c.sum, ErrOverflow)
	}

	// Remove exactly one occurrence; order inside the multiset is irrelevant.
	c.values[i] = c.values[len(c.values)-1]
	c.values = c.values[:len(c.values)-1]

	old := c.sum
	if len(c.values) == 0 {
		delete(s.cells, row.Key)
		return Transition{Kind: Disappeared, Key: row.Key, Old: old}, nil
	}
	c.sum = sum
	return Transition{Kind: Changed, Key: row.Key, Old: old, New: sum}, nil
}

// Sum returns the current aggregate for a key, if it has a live cell.
func (s *State) Sum(key string) (int64, bool) {
	c, ok := s.cells[key]
	if !ok {
		return 0, false
	}
	return c.sum, true
}

// Snapshot copies the current sum of every live cell.
func (s *State) Snapshot() map[string]int64 {
	out := make(map[string]int64, len(s.cells))
	for k, c := range s.cells {
		out[k] = c.sum
	}
	return out
}

// Keys returns the number of live cells.
func (s *State) Keys() int {
	return len(s.cells)
}

func indexOf(values []int64, v int64) int {
	for i, x := range values {
		if x == v {
			return i
		}
	}
	return -1
}

func addChecked(a, b int64) (int64, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}

func subChecked(a, b int64) (int64, bool) {
	diff := a - b
	if (b < 0 && diff < a) || (b > 0 && diff > a) {
		return 0, false
	}
	return diff, true
}
