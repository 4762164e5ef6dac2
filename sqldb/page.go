package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/wansing/schemareview/core"
)

const pageColumns = "p.id, p.client, p.url, p.title, p.main_topic, p.summary, p.keywords, p.entities, p.schema_body, p.status, p.reviewer, p.reviewer_name, p.decision, p.notes, p.ts_reviewed, p.version, p.ts_created, p.ts_updated"

const inScope = "(? = 1 OR p.client = ?)"

type PageDB struct {
	*DB
	checkVersion  *sql.Stmt
	comments      *sql.Stmt
	commentsAll   *sql.Stmt
	get           *sql.Stmt
	getAll        *sql.Stmt
	insert        *sql.Stmt
	insertComment *sql.Stmt
	setReview     *sql.Stmt
	setSchema     *sql.Stmt
}

func NewPageDB(db *DB) (*PageDB, error) {

	err := db.createTables(
		`CREATE TABLE IF NOT EXISTS page (
			`+db.serial()+`, /* insertion order */
			id varchar(64) NOT NULL UNIQUE,
			client varchar(64) NOT NULL,
			url text NOT NULL,
			title text NOT NULL,
			main_topic text NOT NULL,
			summary text NOT NULL,
			keywords text NOT NULL, /* json */
			entities text NOT NULL, /* json */
			schema_body text NOT NULL, /* empty if there is no schema */
			status varchar(16) NOT NULL,
			reviewer varchar(64) NOT NULL,
			reviewer_name text NOT NULL,
			decision varchar(16) NOT NULL, /* empty if there is no review */
			notes text NOT NULL,
			ts_reviewed bigint NOT NULL, /* unix nanoseconds, as all ts_ columns */
			version bigint NOT NULL,
			ts_created bigint NOT NULL,
			ts_updated bigint NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS page_comment (
			`+db.serial()+`,
			id varchar(64) NOT NULL UNIQUE,
			page varchar(64) NOT NULL,
			text text NOT NULL,
			author varchar(64) NOT NULL,
			author_name text NOT NULL,
			ts_created bigint NOT NULL
		)`,
	)
	if err != nil {
		return nil, err
	}

	var pageDB = &PageDB{}
	pageDB.DB = db
	pageDB.checkVersion = db.mustPrepare("SELECT p.version, p.schema_body FROM page p WHERE p.id = ? AND " + inScope)
	pageDB.comments = db.mustPrepare("SELECT c.page, c.id, c.text, c.author, c.author_name, c.ts_created FROM page_comment c WHERE c.page = ? ORDER BY c.seq")
	pageDB.commentsAll = db.mustPrepare("SELECT c.page, c.id, c.text, c.author, c.author_name, c.ts_created FROM page_comment c, page p WHERE c.page = p.id AND " + inScope + " ORDER BY c.seq")
	pageDB.get = db.mustPrepare("SELECT " + pageColumns + " FROM page p WHERE p.id = ? AND " + inScope)
	pageDB.getAll = db.mustPrepare("SELECT " + pageColumns + " FROM page p WHERE " + inScope + " ORDER BY p.seq")
	pageDB.insert = db.mustPrepare("INSERT INTO page (id, client, url, title, main_topic, summary, keywords, entities, schema_body, status, reviewer, reviewer_name, decision, notes, ts_reviewed, version, ts_created, ts_updated) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	pageDB.insertComment = db.mustPrepare("INSERT INTO page_comment (id, page, text, author, author_name, ts_created) VALUES (?, ?, ?, ?, ?, ?)")
	// one statement each, so the fields of a transition change together
	pageDB.setReview = db.mustPrepare("UPDATE page SET status = ?, reviewer = ?, reviewer_name = ?, decision = ?, notes = ?, ts_reviewed = ?, version = version + 1, ts_updated = ? WHERE id = ? AND (? = 1 OR client = ?) AND schema_body <> '' AND (? = 0 OR version = ?)")
	pageDB.setSchema = db.mustPrepare("UPDATE page SET schema_body = ?, status = 'pending', reviewer = '', reviewer_name = '', decision = '', notes = '', ts_reviewed = 0, version = version + 1, ts_updated = ? WHERE id = ? AND (? = 1 OR client = ?) AND (? = 0 OR version = ?)")
	return pageDB, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPage(row scanner) (*core.Page, error) {

	var p = &core.Page{}
	var keywords, entities string
	var status string
	var reviewer, reviewerName, decision, notes string
	var tsReviewed, tsCreated, tsUpdated int64

	err := row.Scan(&p.ID, &p.ClientID, &p.URL, &p.Title, &p.MainTopic, &p.Summary, &keywords, &entities, &p.SchemaBody, &status, &reviewer, &reviewerName, &decision, &notes, &tsReviewed, &p.Version, &tsCreated, &tsUpdated)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(keywords), &p.Keywords); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(entities), &p.Entities); err != nil {
		return nil, err
	}

	p.Status = core.Status(status)
	if decision != "" {
		p.Review = &core.Review{
			ReviewerID:   reviewer,
			ReviewerName: reviewerName,
			Decision:     core.Status(decision),
			Notes:        notes,
			ReviewedAt:   time.Unix(0, tsReviewed),
		}
	}
	p.Comments = []core.Comment{}
	p.CreatedAt = time.Unix(0, tsCreated)
	p.UpdatedAt = time.Unix(0, tsUpdated)
	return p, nil
}

// scanComments returns page id -> comments.
func scanComments(rows *sql.Rows) (map[string][]core.Comment, error) {
	defer rows.Close()
	var all = make(map[string][]core.Comment)
	for rows.Next() {
		var pageID string
		var c core.Comment
		var ts int64
		if err := rows.Scan(&pageID, &c.ID, &c.Text, &c.AuthorID, &c.AuthorName, &ts); err != nil {
			return nil, err
		}
		c.CreatedAt = time.Unix(0, ts)
		all[pageID] = append(all[pageID], c)
	}
	return all, rows.Err()
}

// getPage reads a page and its comments within the transaction.
func (db *PageDB) getPage(ctx context.Context, tx *sql.Tx, scope core.Scope, id string) (*core.Page, error) {

	var args = append([]interface{}{id}, scopeArgs(scope.All(), scope.ClientID())...)

	p, err := scanPage(tx.StmtContext(ctx, db.get).QueryRowContext(ctx, args...))
	if err != nil {
		return nil, err // may be sql.ErrNoRows
	}

	rows, err := tx.StmtContext(ctx, db.comments).QueryContext(ctx, id)
	if err != nil {
		return nil, err
	}
	comments, err := scanComments(rows)
	if err != nil {
		return nil, err
	}
	if c, ok := comments[id]; ok {
		p.Comments = c
	}
	return p, nil
}

func (db *PageDB) GetPage(ctx context.Context, scope core.Scope, id string) (*core.Page, error) {

	tx, err := db.BeginTx(ctx, &sql.TxOptions{ReadOnly: db.Dialect != SQLite})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	p, err := db.getPage(ctx, tx, scope, id)
	if err != nil {
		return nil, err
	}
	return p, tx.Commit()
}

func (db *PageDB) ListPages(ctx context.Context, scope core.Scope) ([]*core.Page, error) {

	tx, err := db.BeginTx(ctx, &sql.TxOptions{ReadOnly: db.Dialect != SQLite})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var args = scopeArgs(scope.All(), scope.ClientID())

	rows, err := tx.StmtContext(ctx, db.getAll).QueryContext(ctx, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages = []*core.Page{}
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	commentRows, err := tx.StmtContext(ctx, db.commentsAll).QueryContext(ctx, args...)
	if err != nil {
		return nil, err
	}
	comments, err := scanComments(commentRows)
	if err != nil {
		return nil, err
	}
	for _, p := range pages {
		if c, ok := comments[p.ID]; ok {
			p.Comments = c
		}
	}

	return pages, tx.Commit()
}

func (db *PageDB) InsertPage(ctx context.Context, p *core.Page) error {

	keywords, err := json.Marshal(nonNilKeywords(p.Keywords))
	if err != nil {
		return err
	}
	entities, err := json.Marshal(nonNilEntities(p.Entities))
	if err != nil {
		return err
	}

	_, err = db.insert.ExecContext(ctx, p.ID, p.ClientID, p.URL, p.Title, p.MainTopic, p.Summary, string(keywords), string(entities), p.SchemaBody, string(p.Status), "", "", "", "", 0, p.Version, p.CreatedAt.UnixNano(), p.UpdatedAt.UnixNano())
	return err
}

func nonNilKeywords(k []core.Keyword) []core.Keyword {
	if k == nil {
		return []core.Keyword{}
	}
	return k
}

func nonNilEntities(e []core.Entity) []core.Entity {
	if e == nil {
		return []core.Entity{}
	}
	return e
}

// whyUnchanged determines why an update affected no row. It returns sql.ErrNoRows, core.ErrInvalidState or core.ErrConflict.
func (db *PageDB) whyUnchanged(ctx context.Context, tx *sql.Tx, scope core.Scope, id string, needSchema bool, ifVersion int64) error {
	var version int64
	var schemaBody string
	var args = append([]interface{}{id}, scopeArgs(scope.All(), scope.ClientID())...)
	if err := tx.StmtContext(ctx, db.checkVersion).QueryRowContext(ctx, args...).Scan(&version, &schemaBody); err != nil {
		return err
	}
	if needSchema && schemaBody == "" {
		return core.ErrInvalidState
	}
	if ifVersion != 0 && version != ifVersion {
		return core.ErrConflict
	}
	return sql.ErrNoRows // should not happen
}

// update runs an UPDATE statement and returns the updated page, all in one transaction.
func (db *PageDB) update(ctx context.Context, scope core.Scope, id string, needSchema bool, ifVersion int64, stmt *sql.Stmt, args ...interface{}) (*core.Page, error) {

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.StmtContext(ctx, stmt).ExecContext(ctx, args...)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, db.whyUnchanged(ctx, tx, scope, id, needSchema, ifVersion)
	}

	p, err := db.getPage(ctx, tx, scope, id)
	if err != nil {
		return nil, err
	}
	return p, tx.Commit()
}

func (db *PageDB) SetSchema(ctx context.Context, scope core.Scope, id string, body string, ifVersion int64, now time.Time) (*core.Page, error) {
	var s = scopeArgs(scope.All(), scope.ClientID())
	return db.update(ctx, scope, id, false, ifVersion, db.setSchema,
		body, now.UnixNano(), id, s[0], s[1], ifVersion, ifVersion)
}

func (db *PageDB) SetReview(ctx context.Context, scope core.Scope, id string, r *core.Review, ifVersion int64) (*core.Page, error) {
	var s = scopeArgs(scope.All(), scope.ClientID())
	return db.update(ctx, scope, id, true, ifVersion, db.setReview,
		string(r.Decision), r.ReviewerID, r.ReviewerName, string(r.Decision), r.Notes, r.ReviewedAt.UnixNano(), r.ReviewedAt.UnixNano(), id, s[0], s[1], ifVersion, ifVersion)
}

// AppendComment inserts into page_comment only, so it never overwrites page fields.
func (db *PageDB) AppendComment(ctx context.Context, scope core.Scope, id string, c *core.Comment) (*core.Page, error) {

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := db.getPage(ctx, tx, scope, id); err != nil {
		return nil, err // checks scope
	}

	if _, err := tx.StmtContext(ctx, db.insertComment).ExecContext(ctx, c.ID, id, c.Text, c.AuthorID, c.AuthorName, c.CreatedAt.UnixNano()); err != nil {
		return nil, err
	}

	p, err := db.getPage(ctx, tx, scope, id)
	if err != nil {
		return nil, err
	}
	return p, tx.Commit()
}
