// Intentionally vulnerable web application for testing timeleech against
// live databases. DO NOT deploy this in any production environment.
//
// The endpoints interpolate request parameters straight into SQL, so
// time-based payloads (SLEEP / PG_SLEEP) are evaluated by the real
// database engine, delays included.
package main

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

var mysqlDB *sql.DB
var postgresDB *sql.DB

func main() {
	var err error

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN != "" {
		mysqlDB, err = sql.Open("mysql", mysqlDSN)
		if err != nil {
			log.Fatalf("MySQL connection failed: %v", err)
		}
		if err = mysqlDB.Ping(); err != nil {
			log.Fatalf("MySQL ping failed: %v", err)
		}
		if err = seedUsers(mysqlDB); err != nil {
			log.Fatalf("MySQL seed failed: %v", err)
		}
		log.Println("Connected to MySQL")
	}

	postgresDSN := os.Getenv("POSTGRES_DSN")
	if postgresDSN != "" {
		postgresDB, err = sql.Open("postgres", postgresDSN)
		if err != nil {
			log.Fatalf("PostgreSQL connection failed: %v", err)
		}
		if err = postgresDB.Ping(); err != nil {
			log.Fatalf("PostgreSQL ping failed: %v", err)
		}
		if err = seedUsers(postgresDB); err != nil {
			log.Fatalf("PostgreSQL seed failed: %v", err)
		}
		log.Println("Connected to PostgreSQL")
	}

	// Time-based blind vulnerable endpoints
	http.HandleFunc("/mysql/user", vulnerableHandler(func() *sql.DB { return mysqlDB }))
	http.HandleFunc("/pg/user", vulnerableHandler(func() *sql.DB { return postgresDB }))

	// Safe endpoints (parameterized queries)
	http.HandleFunc("/safe/mysql/user", safeHandler(func() *sql.DB { return mysqlDB }, "?"))
	http.HandleFunc("/safe/pg/user", safeHandler(func() *sql.DB { return postgresDB }, "$1"))

	// Health check
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		fmt.Fprint(w, "OK")
	})

	// Index
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<!DOCTYPE html>
<html><head><title>Vulnerable Test App</title></head>
<body>
<h1>timeleech Test Server</h1>
<p>WARNING: This is an intentionally vulnerable application for testing only.</p>
<h2>Time-Based Blind Vulnerable Endpoints</h2>
<ul>
<li><a href="/mysql/user?id=1">/mysql/user?id=1</a> - MySQL user lookup</li>
<li><a href="/pg/user?id=1">/pg/user?id=1</a> - PostgreSQL user lookup</li>
</ul>
<h2>Safe Endpoints (Parameterized)</h2>
<ul>
<li><a href="/safe/mysql/user?id=1">/safe/mysql/user?id=1</a></li>
<li><a href="/safe/pg/user?id=1">/safe/pg/user?id=1</a></li>
</ul>
</body></html>`)
	})

	log.Println("Vulnerable test server starting on :8080")
	log.Fatal(http.ListenAndServe(":8080", nil))
}

// seedUsers creates and populates the users table if needed.
func seedUsers(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS users (
		id       INT PRIMARY KEY,
		username VARCHAR(64) NOT NULL,
		password VARCHAR(128) NOT NULL,
		email    VARCHAR(128)
	)`); err != nil {
		return err
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	users := [][3]string{
		{"admin", "password123", "admin@example.com"},
		{"alice", "alice_secret", "alice@example.com"},
		{"bob", "bob_password", "bob@example.com"},
		{"charlie", "charlie123", "charlie@example.com"},
		{"diana", "diana_pass", "diana@example.com"},
	}
	for i, u := range users {
		// Seed rows are trusted constants; the vulnerability lives in the
		// handlers, not here.
		if _, err := db.Exec(
			fmt.Sprintf("INSERT INTO users (id, username, password, email) VALUES (%d, '%s', '%s', '%s')",
				i+1, u[0], u[1], u[2])); err != nil {
			return err
		}
	}
	return nil
}

// vulnerableHandler interpolates the id parameter straight into SQL.
//
// GET /{dbms}/user?id=X
func vulnerableHandler(dbFn func() *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db := dbFn()
		if db == nil {
			http.Error(w, "backend not configured", 503)
			return
		}

		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "Missing id parameter", 400)
			return
		}

		// VULNERABLE: Direct string concatenation
		query := fmt.Sprintf("SELECT username FROM users WHERE id = %s", id)
		log.Printf("Query: %s", query)

		rows, err := db.Query(query)
		w.Header().Set("Content-Type", "text/html")
		if err != nil {
			// Hide the SQL error; time-based probes only read the clock.
			fmt.Fprint(w, "<html><body><h1>Users</h1><p>No user found.</p></body></html>")
			return
		}
		defer rows.Close()

		if rows.Next() {
			var username string
			_ = rows.Scan(&username)
			fmt.Fprint(w, "<html><body><h1>Users</h1><p>User found.</p></body></html>")
			return
		}
		fmt.Fprint(w, "<html><body><h1>Users</h1><p>No user found.</p></body></html>")
	}
}

// safeHandler uses a parameterized query; the parameter never reaches
// the SQL text. The placeholder differs per driver ("?" vs "$1").
func safeHandler(dbFn func() *sql.DB, placeholder string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db := dbFn()
		if db == nil {
			http.Error(w, "backend not configured", 503)
			return
		}

		id := r.URL.Query().Get("id")
		rows, err := db.Query("SELECT username FROM users WHERE id = "+placeholder, id)
		if err == nil {
			rows.Close()
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><h1>Profile</h1><p>Profile details.</p></body></html>")
	}
}
