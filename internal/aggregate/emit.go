package aggregate

import "github.com/tidefall/changesum/internal/types"

// Records maps a state transition to the changelog records it implies:
//
//	Appeared(v)        -> +I(key, v)
//	Changed(old, new)  -> -U(key, old), +U(key, new)   (nothing if old == new)
//	Disappeared(v)     -> -D(key, v)
//
// A downstream sink applying these in order reconstructs the current table.
func Records(t Transition) []types.ChangelogRecord {
	switch t.Kind {
	case Appeared:
		return []types.ChangelogRecord{
			{Kind: types.KindInsert, Row: types.Row{Key: t.Key, Value: t.New}},
		}
	case Changed:
		if t.Old == t.New {
			return nil
		}
		return []types.ChangelogRecord{
			{Kind: types.KindUpdateBefore, Row: types.Row{Key: t.Key, Value: t.Old}},
			{Kind: types.KindUpdateAfter, Row: types.Row{Key: t.Key, Value: t.New}},
		}
	case Disappeared:
		return []types.ChangelogRecord{
			{Kind: types.KindDelete, Row: types.Row{Key: t.Key, Value: t.Old}},
		}
	default:
		return nil
	}
}
