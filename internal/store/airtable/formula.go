package airtable

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"payables/internal/port"
)

// CompileFormula renders structured query conditions into an Airtable
// filterByFormula expression. Conditions are ANDed; an empty slice
// compiles to the empty string (no filter).
func CompileFormula(conds []port.Condition) string {
	if len(conds) == 0 {
		return ""
	}
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		parts = append(parts, compileCondition(c))
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "AND(" + strings.Join(parts, ",") + ")"
}

func compileCondition(c port.Condition) string {
	field := "{" + c.Field + "}"
	switch c.Op {
	case port.OpEqual:
		return field + "=" + formatValue(c.Value)
	case port.OpNotEqual:
		return field + "!=" + formatValue(c.Value)
	case port.OpIsTrue:
		return field + "=TRUE()"
	case port.OpNotTrue:
		return "NOT(" + field + "=TRUE())"
	case port.OpIsAfter:
		return "IS_AFTER(" + field + "," + formatValue(c.Value) + ")"
	case port.OpIsBefore:
		return "IS_BEFORE(" + field + "," + formatValue(c.Value) + ")"
	case port.OpContains:
		// Link fields render as arrays; FIND over the joined ids covers
		// both single links and multi-links.
		return "FIND(" + formatValue(c.Value) + ",ARRAYJOIN(" + field + "))>0"
	case port.OpIsEmpty:
		return field + "=BLANK()"
	}
	return ""
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "BLANK()"
	case string:
		return "'" + strings.ReplaceAll(val, "'", "\\'") + "'"
	case bool:
		if val {
			return "TRUE()"
		}
		return "FALSE()"
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return "'" + val.UTC().Format(time.RFC3339) + "'"
	}
	return "'" + strings.ReplaceAll(fmt.Sprintf("%v", v), "'", "\\'") + "'"
}
