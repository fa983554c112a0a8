// Package dbms provides the small amount of DBMS-specific SQL knowledge
// the extraction engine needs: how to read one codepoint out of a scalar
// subquery, and how to phrase a sleep as a boolean conjunct. Everything
// else about the injected SQL is an opaque template.
package dbms

import (
	"strconv"
	"strings"
)

// Dialect supplies DBMS-specific SQL fragments for character extraction.
type Dialect interface {
	Name() string

	// SelectScalar builds the scalar subquery whose first row/column is
	// the target string: SELECT column FROM table WHERE where. A LIMIT
	// clause is appended unless the where snippet already carries one.
	SelectScalar(table, column, where string) string

	// CodepointAt wraps a scalar SQL expression so it evaluates to the
	// integer codepoint of the character at a 1-indexed position.
	CodepointAt(expr string, position int) string

	// SleepConjunct returns a boolean SQL fragment that delays the query
	// by the given number of seconds when evaluated. Conjoined with a
	// predicate, short-circuit evaluation makes the delay conditional.
	SleepConjunct(seconds float64) string
}

// Registry returns a Dialect implementation by name. It accepts common
// name variants; unrecognized or empty names fall back to MySQL.
func Registry(name string) Dialect {
	switch strings.ToLower(name) {
	case "postgresql", "postgres", "pg":
		return &PostgreSQL{}
	case "sqlite", "sqlite3":
		return &SQLite{}
	default:
		return &MySQL{}
	}
}

// appendLimit adds a row bound to a WHERE snippet unless the snippet
// already carries its own LIMIT (e.g. "id=1 LIMIT 0,1").
func appendLimit(where string) string {
	if strings.Contains(strings.ToUpper(where), "LIMIT") {
		return where
	}
	return where + " LIMIT 1"
}

// formatSeconds renders a delay argument: integral values without a
// decimal point, fractional values as-is.
func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'g', -1, 64)
}
