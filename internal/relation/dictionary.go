package relation

import (
	"fmt"

	"tidb-hierarchy/internal/recursive"
)

// BuildDictionary groups the rows of a batched query by the origin key they belong to.
func (a *Ancestors) BuildDictionary(rows []recursive.Row) (map[string][]recursive.Row, error) {
	return a.dictionary(rows)
}

// includeSelfDictionary relies on every path starting at its origin.
func includeSelfDictionary(rows []recursive.Row) (map[string][]recursive.Row, error) {
	return recursive.BaseDictionary(rows), nil
}

// excludeSelfDictionary attributes first-level rows through their link value and
// deeper rows through the first-level row their path starts from. One deeper row
// is filed under every origin whose chain passes through it.
func excludeSelfDictionary(keyColumn string) func([]recursive.Row) (map[string][]recursive.Row, error) {
	return func(rows []recursive.Row) (map[string][]recursive.Row, error) {
		firstLevel := make(map[string][]recursive.Row)
		for _, row := range rows {
			if row.Depth == -1 {
				key := recursive.KeyString(row.Get(keyColumn))
				firstLevel[key] = append(firstLevel[key], row)
			}
		}

		dictionary := make(map[string][]recursive.Row)
		for i, row := range rows {
			var keys []string
			switch {
			case row.Depth < -1:
				linked, ok := firstLevel[row.FirstPathSegment()]
				if !ok {
					return nil, fmt.Errorf("%w: row %d at depth %d has no first-level row for path segment %q",
						ErrMissingTraversalMetadata, i, row.Depth, row.FirstPathSegment())
				}
				for _, first := range linked {
					keys = append(keys, recursive.KeyString(first.LinkKey))
				}
			case row.Depth == -1:
				keys = append(keys, recursive.KeyString(row.LinkKey))
			default:
				return nil, fmt.Errorf("%w: row %d has depth %d in a relation that excludes the origin",
					ErrMissingTraversalMetadata, i, row.Depth)
			}

			for _, key := range uniqueKeys(keys) {
				if key == "" {
					return nil, fmt.Errorf("%w: row %d has no link value", ErrMissingTraversalMetadata, i)
				}
				dictionary[key] = append(dictionary[key], row)
			}
		}
		return dictionary, nil
	}
}

func uniqueKeys(keys []string) []string {
	if len(keys) < 2 {
		return keys
	}
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0]
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

// Result pairs an origin with its ancestors.
type Result struct {
	Origin    Record
	Key       string
	Ancestors []recursive.Row
}

// Match hands each origin the rows filed under its key, in origin order.
func (a *Ancestors) Match(origins []Record, dictionary map[string][]recursive.Row) []Result {
	results := make([]Result, 0, len(origins))
	for _, origin := range origins {
		key := recursive.KeyString(origin[a.def.KeyColumn])
		rows := dictionary[key]
		if rows == nil {
			rows = []recursive.Row{}
		}
		results = append(results, Result{Origin: origin, Key: key, Ancestors: rows})
	}
	return results
}
