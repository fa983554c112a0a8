package dbms

import "fmt"

// PostgreSQL implements the Dialect interface for PostgreSQL databases.
type PostgreSQL struct{}

// Name returns the canonical DBMS name.
func (p *PostgreSQL) Name() string {
	return "PostgreSQL"
}

// SelectScalar returns SELECT column FROM table WHERE where, bounded to
// one row.
func (p *PostgreSQL) SelectScalar(table, column, where string) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s", column, table, appendLimit(where))
}

// CodepointAt returns ASCII(SUBSTRING((expr),position,1)).
func (p *PostgreSQL) CodepointAt(expr string, position int) string {
	return fmt.Sprintf("ASCII(SUBSTRING((%s),%d,1))", expr, position)
}

// SleepConjunct embeds PG_SLEEP in a scalar subquery. PG_SLEEP returns
// void, so it is wrapped in SELECT 1 to make the fragment a boolean.
func (p *PostgreSQL) SleepConjunct(seconds float64) string {
	return fmt.Sprintf("(SELECT 1 FROM PG_SLEEP(%s))=1", formatSeconds(seconds))
}
