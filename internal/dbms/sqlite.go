package dbms

import "fmt"

// SQLite implements the Dialect interface for SQLite databases. SQLite
// has no built-in sleep; the lab application registers a sleep(n) scalar
// function, which is the convention this dialect targets.
type SQLite struct{}

// Name returns the canonical DBMS name.
func (s *SQLite) Name() string {
	return "SQLite"
}

// SelectScalar returns SELECT column FROM table WHERE where, bounded to
// one row.
func (s *SQLite) SelectScalar(table, column, where string) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s", column, table, appendLimit(where))
}

// CodepointAt returns UNICODE(SUBSTR((expr),position,1)).
func (s *SQLite) CodepointAt(expr string, position int) string {
	return fmt.Sprintf("UNICODE(SUBSTR((%s),%d,1))", expr, position)
}

// SleepConjunct returns sleep(n)=0. The registered sleep function returns
// 0 after delaying, and SQLite short-circuits AND, so the delay fires only
// for a true left-hand predicate.
func (s *SQLite) SleepConjunct(seconds float64) string {
	return fmt.Sprintf("sleep(%s)=0", formatSeconds(seconds))
}
