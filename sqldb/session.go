package sqldb

import (
	"github.com/alexedwards/scs/mysqlstore"
	"github.com/alexedwards/scs/postgresstore"
	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
)

// NewSessionStore creates the sessions table, if necessary, and returns an scs store for the dialect.
func (db *DB) NewSessionStore() (scs.Store, error) {

	switch db.Dialect {
	case SQLite:
		return sqlite3store.New(db.DB), db.createTables(
			`CREATE TABLE IF NOT EXISTS sessions (
				token TEXT PRIMARY KEY,
				data BLOB NOT NULL,
				expiry REAL NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS sessions_expiry_idx ON sessions(expiry)`,
		)
	case MySQL:
		// MySQL has no CREATE INDEX IF NOT EXISTS, so the index is declared inline
		return mysqlstore.New(db.DB), db.createTables(
			`CREATE TABLE IF NOT EXISTS sessions (
				token CHAR(43) PRIMARY KEY,
				data BLOB NOT NULL,
				expiry TIMESTAMP(6) NOT NULL,
				INDEX sessions_expiry_idx (expiry)
			)`,
		)
	default:
		return postgresstore.New(db.DB), db.createTables(
			`CREATE TABLE IF NOT EXISTS sessions (
				token TEXT PRIMARY KEY,
				data BYTEA NOT NULL,
				expiry TIMESTAMPTZ NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS sessions_expiry_idx ON sessions (expiry)`,
		)
	}
}
