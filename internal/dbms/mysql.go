package dbms

import "fmt"

// MySQL implements the Dialect interface for MySQL databases.
type MySQL struct{}

// Name returns the canonical DBMS name.
func (m *MySQL) Name() string {
	return "MySQL"
}

// SelectScalar returns SELECT column FROM table WHERE where, bounded to
// one row.
func (m *MySQL) SelectScalar(table, column, where string) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s", column, table, appendLimit(where))
}

// CodepointAt returns ASCII(SUBSTRING((expr),position,1)).
func (m *MySQL) CodepointAt(expr string, position int) string {
	return fmt.Sprintf("ASCII(SUBSTRING((%s),%d,1))", expr, position)
}

// SleepConjunct returns SLEEP(n). SLEEP evaluates to 0, so the enclosing
// conjunction is always false, but the delay fires only when the left
// side of the AND was true.
func (m *MySQL) SleepConjunct(seconds float64) string {
	return fmt.Sprintf("SLEEP(%s)", formatSeconds(seconds))
}
