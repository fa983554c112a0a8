// Package testutil provides test utilities including a mock vulnerable web
// application for integration testing of the timeleech extraction engine.
//
// Unlike a canned mock, the server executes the injected SQL for real
// against an in-memory SQLite database with a registered sleep() scalar
// function, so probe payloads are exercised end to end: string
// interpolation, short-circuit evaluation, and conditional delays behave
// the way a live vulnerable application would.
//
// SECURITY NOTE: This package is for testing only. The query handlers are
// intentionally injectable.
package testutil

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"html/template"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"modernc.org/sqlite"
)

// sleepCap bounds a single simulated delay so a runaway payload cannot
// stall the test suite.
const sleepCap = 2 * time.Second

// registerSleep installs the sleep(seconds) scalar function exactly once
// per process. The function delays the executing query and returns 0,
// mirroring MySQL's SLEEP().
var registerSleep = sync.OnceFunc(func() {
	sqlite.MustRegisterScalarFunction("sleep", 1, func(ctx *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		d := time.Duration(toSeconds(args[0]) * float64(time.Second))
		if d < 0 {
			d = 0
		}
		if d > sleepCap {
			d = sleepCap
		}
		time.Sleep(d)
		return int64(0), nil
	})
})

// toSeconds coerces a SQL value to a float64 number of seconds.
func toSeconds(v driver.Value) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// Response templates. Handlers never interpolate user input into pages,
// so the content carries no timing-independent signal.
var tmplMap = template.Must(template.New("").Parse(`
{{define "normal"}}<html><body><h1>Results</h1><p>Record found.</p></body></html>{{end}}
{{define "empty"}}<html><body><h1>Results</h1><p>No record found.</p></body></html>{{end}}
{{define "safe"}}<html><body><h1>Profile</h1><p>Profile details for the requested user.</p></body></html>{{end}}
`))

// VulnServer is an intentionally vulnerable HTTP application over an
// in-memory SQLite database.
type VulnServer struct {
	*httptest.Server
	db *sql.DB
}

// NewVulnServer creates and seeds the vulnerable application. The
// returned server must be closed after use.
//
// Endpoints:
//
//	GET /vulnerable?id=X  single-row lookup, X interpolated into SQL
//	GET /users?id=X       multi-row lookup, X interpolated into SQL
//	GET /safe?id=X        parameterized query, not injectable
func NewVulnServer() (*VulnServer, error) {
	registerSleep()

	// A shared-cache in-memory database so every pooled connection sees
	// the same tables.
	db, err := sql.Open("sqlite", "file:timeleechlab?mode=memory&cache=shared")
	if err != nil {
		return nil, fmt.Errorf("testutil: open database: %w", err)
	}

	if err := seed(db); err != nil {
		db.Close()
		return nil, err
	}

	vs := &VulnServer{db: db}

	mux := http.NewServeMux()
	mux.HandleFunc("/vulnerable", vs.handleVulnerable)
	mux.HandleFunc("/users", vs.handleUsers)
	mux.HandleFunc("/safe", vs.handleSafe)

	vs.Server = httptest.NewServer(mux)
	return vs, nil
}

// Close shuts down the HTTP server and the database.
func (vs *VulnServer) Close() {
	vs.Server.Close()
	vs.db.Close()
}

// seed creates and populates the lab schema.
func seed(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id       INTEGER PRIMARY KEY,
			username TEXT NOT NULL,
			password TEXT NOT NULL,
			email    TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			id    INTEGER PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`DELETE FROM users`,
		`DELETE FROM settings`,
		`INSERT INTO users (id, username, password, email) VALUES
			(1, 'admin',   'password123',   'admin@example.com'),
			(2, 'alice',   'alice_secret',  'alice@example.com'),
			(3, 'bob',     'bob_password',  'bob@example.com'),
			(4, 'charlie', 'charlie123',    'charlie@example.com'),
			(5, 'diana',   'diana_pass',    'diana@example.com')`,
		`INSERT INTO settings (id, value) VALUES (1, 'default')`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("testutil: seed database: %w", err)
		}
	}
	return nil
}

// execTemplate renders a named template to the ResponseWriter.
func execTemplate(w http.ResponseWriter, name string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	tmplMap.ExecuteTemplate(w, name, nil) //nolint:errcheck
}

// handleVulnerable interpolates the id parameter into a single-row
// lookup. The settings table has exactly one row, so a conditional sleep
// in the WHERE clause fires at most once per query and the observed delay
// matches the payload's sleep argument.
//
// GET /vulnerable?id=X
func (vs *VulnServer) handleVulnerable(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")

	// VULNERABLE: direct string interpolation.
	query := fmt.Sprintf("SELECT value FROM settings WHERE id = %s", id)

	rows, err := vs.db.Query(query)
	if err != nil {
		// A live application would hide the SQL error behind a generic
		// page; either way the response is prompt.
		execTemplate(w, "empty")
		return
	}
	found := rows.Next()
	rows.Close()

	if found {
		execTemplate(w, "normal")
	} else {
		execTemplate(w, "empty")
	}
}

// handleUsers interpolates the id parameter into a lookup over the
// five-row users table. A row-independent conditional sleep is evaluated
// once per candidate row, amplifying the delay — useful for exercising
// the analyzer against delays that do not match the configured value.
//
// GET /users?id=X
func (vs *VulnServer) handleUsers(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")

	query := fmt.Sprintf("SELECT username FROM users WHERE id = %s", id)

	rows, err := vs.db.Query(query)
	if err != nil {
		execTemplate(w, "empty")
		return
	}
	found := rows.Next()
	rows.Close()

	if found {
		execTemplate(w, "normal")
	} else {
		execTemplate(w, "empty")
	}
}

// handleSafe uses a parameterized query; the parameter never reaches the
// SQL text, so the endpoint is not injectable.
//
// GET /safe?id=X
func (vs *VulnServer) handleSafe(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")

	rows, err := vs.db.Query("SELECT username FROM users WHERE id = ?", id)
	if err == nil {
		rows.Close()
	}
	execTemplate(w, "safe")
}
