// Package sqldb implements the stores of package core on top of database/sql.
// It supports SQLite, MySQL and PostgreSQL. Queries are written with "?" placeholders and rebound for PostgreSQL.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	"github.com/xo/dburl"
)

type Dialect int

const (
	SQLite Dialect = iota
	MySQL
	Postgres
)

func (d Dialect) String() string {
	switch d {
	case SQLite:
		return "sqlite3"
	case MySQL:
		return "mysql"
	case Postgres:
		return "postgres"
	}
	return "unknown"
}

type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open opens and pings the database which is described by the url.
func Open(ctx context.Context, u *dburl.URL) (*DB, error) {

	var driver = u.Driver
	var dialect Dialect

	switch u.Driver {
	case "sqlite3":
		dialect = SQLite
	case "mysql":
		dialect = MySQL
	case "postgres", "pgx":
		dialect = Postgres
		driver = "pgx"
	default:
		return nil, fmt.Errorf("unknown database backend: %s", u.Driver)
	}

	sqlDB, err := sql.Open(driver, u.DSN)
	if err != nil {
		return nil, fmt.Errorf("could not open sql database: %w", err)
	}

	if err = sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("could not ping sql database: %w", err)
	}

	return &DB{
		DB:      sqlDB,
		Dialect: dialect,
	}, nil
}

// rebind replaces "?" placeholders by "$1", "$2" and so on, if the dialect requires it.
func (db *DB) rebind(query string) string {
	if db.Dialect != Postgres {
		return query
	}
	var buf strings.Builder
	var n = 0
	for _, r := range query {
		if r == '?' {
			n++
			buf.WriteString("$" + strconv.Itoa(n))
			continue
		}
		buf.WriteRune(r)
	}
	return buf.String()
}

func (db *DB) mustPrepare(query string) *sql.Stmt {
	stmt, err := db.Prepare(db.rebind(query))
	if err != nil {
		panic(fmt.Errorf("preparing %q: %w", query, err))
	}
	return stmt
}

// serial returns the definition of an auto-incrementing primary key column named seq.
func (db *DB) serial() string {
	switch db.Dialect {
	case MySQL:
		return "seq bigint NOT NULL AUTO_INCREMENT PRIMARY KEY"
	case Postgres:
		return "seq bigserial PRIMARY KEY"
	default:
		return "seq INTEGER PRIMARY KEY AUTOINCREMENT"
	}
}

// createTables executes the statements one by one, because not every driver accepts multiple statements in one Exec.
func (db *DB) createTables(statements ...string) error {
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("creating tables: %w", err)
		}
	}
	return nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func (db *DB) IsNotFound(err error) bool {
	return IsNotFound(err)
}

// scopeArgs returns the arguments for "(? = 1 OR client = ?)".
func scopeArgs(all bool, clientID string) []interface{} {
	var allInt = 0
	if all {
		allInt = 1
	}
	return []interface{}{allInt, clientID}
}

func nowNano() int64 {
	return time.Now().UnixNano()
}
