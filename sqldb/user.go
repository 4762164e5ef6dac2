package sqldb

import (
	"context"
	"database/sql"
	"strings"

	"github.com/wansing/schemareview/core"
	"golang.org/x/crypto/bcrypt"
)

func clean(mail string) string {
	mail = strings.TrimSpace(mail)
	mail = strings.ToLower(mail)
	return mail
}

type UserDB struct {
	*DB
	get         *sql.Stmt
	getByMail   *sql.Stmt
	insert      *sql.Stmt
	login       *sql.Stmt
	setPassword *sql.Stmt
}

func NewUserDB(db *DB) (*UserDB, error) {

	err := db.createTables(
		`CREATE TABLE IF NOT EXISTS usr (
			id varchar(64) NOT NULL PRIMARY KEY,
			mail varchar(128) NOT NULL,
			name varchar(128) NOT NULL,
			role varchar(16) NOT NULL,
			client varchar(64) NOT NULL,
			password varchar(128) NOT NULL,
			UNIQUE(mail)
		)`,
	)
	if err != nil {
		return nil, err
	}

	var userDB = &UserDB{}
	userDB.DB = db
	userDB.get = db.mustPrepare("SELECT id, mail, name, role, client FROM usr WHERE id = ?")
	userDB.getByMail = db.mustPrepare("SELECT id, mail, name, role, client FROM usr WHERE mail = ?")
	userDB.insert = db.mustPrepare("INSERT INTO usr (id, mail, name, role, client, password) VALUES (?, ?, ?, ?, ?, '')") // empty password field is safe because no bcrypt hash equals it
	userDB.login = db.mustPrepare("SELECT id, mail, name, role, client, password FROM usr WHERE mail = ?")
	userDB.setPassword = db.mustPrepare("UPDATE usr SET password = ? WHERE id = ?")
	return userDB, nil
}

func scanUser(row scanner, extra ...interface{}) (*core.User, error) {
	var u = &core.User{}
	var role string
	err := row.Scan(append([]interface{}{&u.ID, &u.Mail, &u.Name, &role, &u.ClientID}, extra...)...)
	u.Role = core.Role(role)
	return u, err
}

// GetUser may return sql.ErrNoRows.
func (db *UserDB) GetUser(ctx context.Context, id string) (*core.User, error) {
	return scanUser(db.get.QueryRowContext(ctx, id))
}

func (db *UserDB) GetUserByMail(ctx context.Context, mail string) (*core.User, error) {
	return scanUser(db.getByMail.QueryRowContext(ctx, clean(mail)))
}

func (db *UserDB) InsertUser(ctx context.Context, u *core.User) error {
	_, err := db.insert.ExecContext(ctx, u.ID, clean(u.Mail), u.Name, string(u.Role), u.ClientID)
	return err
}

func (db *UserDB) LoginUser(ctx context.Context, mail, password string) (*core.User, error) {

	var hash string
	u, err := scanUser(db.login.QueryRowContext(ctx, clean(mail)), &hash)
	if err == sql.ErrNoRows {
		return nil, core.ErrAuth // user not found
	}
	if err != nil {
		return nil, err
	}

	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, core.ErrAuth // wrong password
	}

	return u, nil
}

func (db *UserDB) SetPassword(ctx context.Context, u *core.User, password string) error {

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	res, err := db.setPassword.ExecContext(ctx, string(hash), u.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
