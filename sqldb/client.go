package sqldb

import (
	"context"
	"database/sql"

	"github.com/wansing/schemareview/core"
)

type ClientDB struct {
	*DB
	get    *sql.Stmt
	getAll *sql.Stmt
	insert *sql.Stmt
}

func NewClientDB(db *DB) (*ClientDB, error) {

	err := db.createTables(
		`CREATE TABLE IF NOT EXISTS client (
			id varchar(64) NOT NULL PRIMARY KEY,
			name varchar(128) NOT NULL,
			domain text NOT NULL,
			ts_created bigint NOT NULL
		)`,
	)
	if err != nil {
		return nil, err
	}

	var clientDB = &ClientDB{}
	clientDB.DB = db
	clientDB.get = db.mustPrepare("SELECT id, name, domain FROM client WHERE id = ?")
	clientDB.getAll = db.mustPrepare("SELECT id, name, domain FROM client ORDER BY ts_created, id")
	clientDB.insert = db.mustPrepare("INSERT INTO client (id, name, domain, ts_created) VALUES (?, ?, ?, ?)")
	return clientDB, nil
}

func (db *ClientDB) GetClient(ctx context.Context, id string) (*core.Client, error) {
	var c = &core.Client{}
	return c, db.get.QueryRowContext(ctx, id).Scan(&c.ID, &c.Name, &c.Domain)
}

func (db *ClientDB) GetAllClients(ctx context.Context) ([]*core.Client, error) {

	rows, err := db.getAll.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all = []*core.Client{}
	for rows.Next() {
		var c = &core.Client{}
		if err := rows.Scan(&c.ID, &c.Name, &c.Domain); err != nil {
			return nil, err
		}
		all = append(all, c)
	}
	return all, rows.Err()
}

func (db *ClientDB) InsertClient(ctx context.Context, c *core.Client) error {
	_, err := db.insert.ExecContext(ctx, c.ID, c.Name, c.Domain, nowNano())
	return err
}
