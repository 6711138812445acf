package nanoql

import (
	"cmp"
	"strconv"
	"strings"
)

// LogRecord is the view of a record that queries are evaluated against.
type LogRecord interface {
	GetCounter() uint64
	GetSession() string
	GetCaller() string
	GetSource() string
	GetLevel() string
	GetMessage() string
}

// Match evaluates the AST node against a LogRecord and returns true if it matches.
func Match(node Node, row LogRecord) bool {
	if node == nil {
		return true
	}

	switch n := node.(type) {
	case BinaryExpr:
		return evalBinary(n, row)
	case MatchExpr:
		return evalMatch(n, row)
	case NotExpr:
		return !Match(n.Expr, row)
	default:
		return false
	}
}

func evalBinary(expr BinaryExpr, row LogRecord) bool {
	switch expr.Op {
	case "AND":
		return Match(expr.Left, row) && Match(expr.Right, row)
	case "OR":
		return Match(expr.Left, row) || Match(expr.Right, row)
	default:
		return false
	}
}

func evalMatch(expr MatchExpr, row LogRecord) bool {
	if expr.Key == "" {
		return matchFullText(expr.Value, row)
	}

	fieldValue, ok := getFieldValue(expr.Key, row)
	if !ok {
		return false
	}

	queryValue := expr.Value
	if isLevelKey(expr.Key) {
		queryValue = normalizeLevel(queryValue)
	}

	switch expr.Op {
	case OpNotEqual:
		return !matchEqual(fieldValue, queryValue)
	case OpContains:
		return containsIgnoreCase(fieldValue, queryValue)
	case OpNotContains:
		return !containsIgnoreCase(fieldValue, queryValue)
	case OpGreater:
		return compare(expr.Key, fieldValue, queryValue) > 0
	case OpLess:
		return compare(expr.Key, fieldValue, queryValue) < 0
	default:
		return matchEqual(fieldValue, queryValue)
	}
}

// compare orders counters numerically and everything else by folded text.
// A counter bound that is not a number never matches.
func compare(key, fieldValue, queryValue string) int {
	if isCounterKey(key) {
		f, err1 := strconv.ParseUint(fieldValue, 10, 64)
		q, err2 := strconv.ParseUint(queryValue, 10, 64)
		if err1 != nil || err2 != nil {
			return 0
		}
		return cmp.Compare(f, q)
	}
	return strings.Compare(strings.ToLower(fieldValue), strings.ToLower(queryValue))
}

func isCounterKey(key string) bool {
	k := strings.ToLower(key)
	return k == "counter" || k == "cycle"
}

// getFieldValue returns the value of a field by name.
func getFieldValue(key string, row LogRecord) (string, bool) {
	switch strings.ToLower(key) {
	case "session", "sid":
		return row.GetSession(), true
	case "caller", "context", "ctx":
		return row.GetCaller(), true
	case "source", "src":
		return row.GetSource(), true
	case "message", "msg":
		return row.GetMessage(), true
	case "level", "lvl":
		return normalizeLevel(row.GetLevel()), true
	case "counter", "cycle":
		return strconv.FormatUint(row.GetCounter(), 10), true
	default:
		return "", false
	}
}

func isLevelKey(key string) bool {
	k := strings.ToLower(key)
	return k == "level" || k == "lvl"
}

// normalizeLevel folds level aliases onto their canonical names.
func normalizeLevel(v string) string {
	switch strings.ToLower(v) {
	case "warn", "warning":
		return "warning"
	case "err", "error":
		return "error"
	default:
		return strings.ToLower(v)
	}
}

// matchEqual performs case-insensitive equality check.
func matchEqual(fieldValue, queryValue string) bool {
	return strings.EqualFold(fieldValue, queryValue)
}

// containsIgnoreCase checks if haystack contains needle (case-insensitive).
func containsIgnoreCase(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// matchFullText searches the text fields of a record.
func matchFullText(query string, row LogRecord) bool {
	q := strings.ToLower(query)
	for _, f := range []string{row.GetMessage(), row.GetCaller(), row.GetSource(), row.GetLevel()} {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}
