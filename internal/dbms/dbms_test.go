package dbms

import (
	"strings"
	"testing"
)

func TestRegistry(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"MySQL", "MySQL"},
		{"mysql", "MySQL"},
		{"PostgreSQL", "PostgreSQL"},
		{"postgres", "PostgreSQL"},
		{"pg", "PostgreSQL"},
		{"SQLite", "SQLite"},
		{"sqlite3", "SQLite"},
		{"", "MySQL"},
		{"unknown", "MySQL"},
	}
	for _, tt := range tests {
		if got := Registry(tt.in).Name(); got != tt.want {
			t.Errorf("Registry(%q).Name() = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMySQL_CodepointAt(t *testing.T) {
	d := &MySQL{}
	query := d.SelectScalar("users", "username", "id=1")
	got := d.CodepointAt(query, 3)
	want := "ASCII(SUBSTRING((SELECT username FROM users WHERE id=1 LIMIT 1),3,1))"
	if got != want {
		t.Errorf("CodepointAt = %q, want %q", got, want)
	}
}

func TestMySQL_SleepConjunct(t *testing.T) {
	d := &MySQL{}
	if got := d.SleepConjunct(2); got != "SLEEP(2)" {
		t.Errorf("SleepConjunct(2) = %q, want SLEEP(2)", got)
	}
	if got := d.SleepConjunct(0.5); got != "SLEEP(0.5)" {
		t.Errorf("SleepConjunct(0.5) = %q, want SLEEP(0.5)", got)
	}
}

func TestPostgreSQL_SleepConjunct(t *testing.T) {
	d := &PostgreSQL{}
	got := d.SleepConjunct(3)
	if !strings.Contains(got, "PG_SLEEP(3)") {
		t.Errorf("SleepConjunct(3) = %q, want a PG_SLEEP(3) invocation", got)
	}
}

func TestSQLite_CodepointAt(t *testing.T) {
	d := &SQLite{}
	query := d.SelectScalar("users", "password", "username='admin'")
	got := d.CodepointAt(query, 1)
	want := "UNICODE(SUBSTR((SELECT password FROM users WHERE username='admin' LIMIT 1),1,1))"
	if got != want {
		t.Errorf("CodepointAt = %q, want %q", got, want)
	}
}

func TestSQLite_SleepConjunct(t *testing.T) {
	d := &SQLite{}
	if got := d.SleepConjunct(0.25); got != "sleep(0.25)=0" {
		t.Errorf("SleepConjunct(0.25) = %q, want sleep(0.25)=0", got)
	}
}

func TestSelectScalar_WhereWithOwnLimit(t *testing.T) {
	// A WHERE snippet that already pages rows must not get a second
	// LIMIT appended.
	d := &MySQL{}
	got := d.SelectScalar("users", "username", "1=1 LIMIT 2,1")
	want := "SELECT username FROM users WHERE 1=1 LIMIT 2,1"
	if got != want {
		t.Errorf("SelectScalar = %q, want %q", got, want)
	}
}
