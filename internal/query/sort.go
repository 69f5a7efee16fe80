package query

import "sort"

// Direction is a sort direction.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// SortKey orders a query result by a top-level document field.
type SortKey struct {
	Field     string
	Direction Direction
}

// applySort orders records in place by the given sequence of sort
// keys. Ties fall through to the next key in sequence; if every key
// ties, the existing (insertion) order is preserved, since
// sort.SliceStable never reorders equal elements.
func applySort(records []Record, keys []SortKey) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(records, func(i, j int) bool {
		for _, k := range keys {
			a := fieldOf(records[i].Value, k.Field)
			b := fieldOf(records[j].Value, k.Field)
			c := ordinalCompare(a, b)
			if c == 0 {
				continue
			}
			if k.Direction == Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func fieldOf(value any, field string) any {
	doc, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	return doc[field]
}
