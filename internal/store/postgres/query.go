package postgres

import (
	"encoding/json"
	"fmt"
	"strings"

	"payables/internal/port"
)

// compileWhere renders structured conditions into SQL predicates over the
// jsonb fields column. Placeholders start at $<argOffset+1>.
func compileWhere(conds []port.Condition, argOffset int) (string, []any) {
	var parts []string
	var args []any
	n := argOffset
	for _, c := range conds {
		key := escapeFieldKey(c.Field)
		switch c.Op {
		case port.OpEqual:
			n++
			parts = append(parts, fmt.Sprintf("%s = $%d", castExpr(key, c.Value), n))
			args = append(args, c.Value)
		case port.OpNotEqual:
			n++
			parts = append(parts, fmt.Sprintf("%s IS DISTINCT FROM $%d", castExpr(key, c.Value), n))
			args = append(args, c.Value)
		case port.OpIsTrue:
			parts = append(parts, fmt.Sprintf("(fields->>'%s')::boolean IS TRUE", key))
		case port.OpNotTrue:
			parts = append(parts, fmt.Sprintf("(fields->>'%s')::boolean IS NOT TRUE", key))
		case port.OpIsAfter:
			n++
			// NULLIF guards the cast: a cleared timestamp field holds ""
			// and must not error regardless of predicate evaluation order.
			parts = append(parts, fmt.Sprintf("NULLIF(fields->>'%s', '')::timestamptz > $%d", key, n))
			args = append(args, c.Value)
		case port.OpIsBefore:
			n++
			parts = append(parts, fmt.Sprintf("NULLIF(fields->>'%s', '')::timestamptz < $%d", key, n))
			args = append(args, c.Value)
		case port.OpContains:
			n++
			elem, _ := json.Marshal([]any{c.Value})
			parts = append(parts, fmt.Sprintf("fields->'%s' @> $%d::jsonb", key, n))
			args = append(args, string(elem))
		case port.OpIsEmpty:
			parts = append(parts, fmt.Sprintf("(NOT fields ? '%s' OR fields->>'%s' = '')", key, key))
		}
	}
	if len(parts) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(parts, " AND "), args
}

// castExpr picks the jsonb text extraction plus cast matching the Go type
// of the comparison value.
func castExpr(key string, value any) string {
	switch value.(type) {
	case float64, int, int64:
		return fmt.Sprintf("(fields->>'%s')::numeric", key)
	case bool:
		return fmt.Sprintf("(fields->>'%s')::boolean", key)
	default:
		return fmt.Sprintf("fields->>'%s'", key)
	}
}

// compileOrder renders the sort clause, ordering on the jsonb field text.
func compileOrder(sorts []port.Sort) string {
	if len(sorts) == 0 {
		return " ORDER BY created_time ASC"
	}
	parts := make([]string, 0, len(sorts))
	for _, s := range sorts {
		direction := "ASC"
		if s.Desc {
			direction = "DESC"
		}
		parts = append(parts, fmt.Sprintf("fields->>'%s' %s", escapeFieldKey(s.Field), direction))
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

// Field keys are interpolated into the jsonb path expressions, so single
// quotes must be doubled even though all callers use constant names.
func escapeFieldKey(key string) string {
	return strings.ReplaceAll(key, "'", "''")
}
