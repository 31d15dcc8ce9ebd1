package dataset

import (
	"fmt"
	"strings"

	"trialrand/internal/errors"
)

// JoinType defines the type of join operation
type JoinType string

const (
	InnerJoin JoinType = "inner" // matching keys only
	LeftJoin  JoinType = "left"  // all from left, matching from right
	OuterJoin JoinType = "outer" // all rows from both, nulls where one side is missing
)

// ParseJoinType validates a join type name
func ParseJoinType(s string) (JoinType, error) {
	switch jt := JoinType(strings.ToLower(s)); jt {
	case InnerJoin, LeftJoin, OuterJoin:
		return jt, nil
	default:
		return "", errors.InvalidInput(fmt.Sprintf("unknown join type %q", s))
	}
}

// FullOuterJoin keeps every record of both tables.
func FullOuterJoin(left, right *Table, keys []string) (*Table, error) {
	return Join(left, right, keys, OuterJoin)
}

// Join merges right into left on the key tuple. Each key match yields one
// output row per matching pair. Left rows come first in their original order,
// followed (for outer joins) by unmatched right rows in theirs. A row with a
// null key component never matches. Non-key columns present in both tables are
// renamed to "<table>.<column>".
func Join(left, right *Table, keys []string, how JoinType) (*Table, error) {
	if len(keys) == 0 {
		return nil, errors.InvalidInput("at least one join key is required")
	}
	for _, k := range keys {
		if !left.HasColumn(k) {
			return nil, errors.InvalidInput(fmt.Sprintf("key %q missing from %s", k, left.Name))
		}
		if !right.HasColumn(k) {
			return nil, errors.InvalidInput(fmt.Sprintf("key %q missing from %s", k, right.Name))
		}
	}
	if left.Name == right.Name {
		return nil, errors.InvalidInput(fmt.Sprintf("both tables are named %q", left.Name))
	}

	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}

	leftNames, rightNames, columns := joinedColumns(left, right, keys, isKey)

	index := make(map[string][]int)
	for i, row := range right.Rows {
		if key, ok := keyOf(row, keys); ok {
			index[key] = append(index[key], i)
		}
	}

	out := &Table{
		Name:    left.Name + "+" + right.Name,
		Columns: columns,
	}
	matched := make([]bool, len(right.Rows))

	for _, lrow := range left.Rows {
		var matches []int
		if key, ok := keyOf(lrow, keys); ok {
			matches = index[key]
		}
		if len(matches) == 0 {
			if how != InnerJoin {
				out.Rows = append(out.Rows, merge(lrow, nil, keys, leftNames, rightNames))
			}
			continue
		}
		for _, ri := range matches {
			matched[ri] = true
			out.Rows = append(out.Rows, merge(lrow, right.Rows[ri], keys, leftNames, rightNames))
		}
	}

	if how == OuterJoin {
		for i, rrow := range right.Rows {
			if !matched[i] {
				out.Rows = append(out.Rows, merge(nil, rrow, keys, leftNames, rightNames))
			}
		}
	}

	return out, nil
}

// joinedColumns returns output names for each side's non-key columns and the
// full output column list: keys, then left columns, then right columns.
func joinedColumns(left, right *Table, keys []string, isKey map[string]bool) (map[string]string, map[string]string, []string) {
	leftNames := make(map[string]string)
	rightNames := make(map[string]string)
	columns := append([]string(nil), keys...)

	for _, c := range left.Columns {
		if isKey[c] {
			continue
		}
		name := c
		if right.HasColumn(c) {
			name = left.Name + "." + c
		}
		leftNames[c] = name
		columns = append(columns, name)
	}
	for _, c := range right.Columns {
		if isKey[c] {
			continue
		}
		name := c
		if left.HasColumn(c) {
			name = right.Name + "." + c
		}
		rightNames[c] = name
		columns = append(columns, name)
	}
	return leftNames, rightNames, columns
}

func keyOf(row Record, keys []string) (string, bool) {
	parts := make([]string, len(keys))
	for i, k := range keys {
		v, ok := row[k]
		if !ok {
			return "", false
		}
		parts[i] = v
	}
	return strings.Join(parts, "\x1f"), true
}

func merge(lrow, rrow Record, keys []string, leftNames, rightNames map[string]string) Record {
	out := make(Record, len(keys)+len(leftNames)+len(rightNames))
	for _, k := range keys {
		if v, ok := lrow[k]; ok {
			out[k] = v
		} else if v, ok := rrow[k]; ok {
			out[k] = v
		}
	}
	for c, name := range leftNames {
		if v, ok := lrow[c]; ok {
			out[name] = v
		}
	}
	for c, name := range rightNames {
		if v, ok := rrow[c]; ok {
			out[name] = v
		}
	}
	return out
}
