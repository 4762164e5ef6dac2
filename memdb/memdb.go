// Package memdb keeps pages, users and clients in memory. It is used in tests and for demos.
package memdb

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/wansing/schemareview/core"
	"golang.org/x/crypto/bcrypt"
)

var ErrNotFound = errors.New("no such record")

type DB struct {
	mu      sync.Mutex
	pages   map[string]*core.Page
	order   []string // page ids in creation order
	users   map[string]*user
	clients map[string]*core.Client
	corder  []string

	// Fail, if set, is returned by every page method. Tests use it to simulate an unavailable store.
	Fail error
}

type user struct {
	core.User
	hash []byte
}

func New() *DB {
	return &DB{
		pages:   make(map[string]*core.Page),
		users:   make(map[string]*user),
		clients: make(map[string]*core.Client),
	}
}

func copyPage(p *core.Page) *core.Page {
	var c = *p
	c.Keywords = append([]core.Keyword{}, p.Keywords...)
	c.Entities = append([]core.Entity{}, p.Entities...)
	c.Comments = append([]core.Comment{}, p.Comments...)
	if p.Review != nil {
		var r = *p.Review
		c.Review = &r
	}
	return &c
}

func (db *DB) IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// get must be called with db.mu held.
func (db *DB) get(ctx context.Context, scope core.Scope, id string) (*core.Page, error) {
	if db.Fail != nil {
		return nil, db.Fail
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, ok := db.pages[id]
	if !ok || !scope.Contains(p.ClientID) {
		return nil, ErrNotFound
	}
	return p, nil
}

func (db *DB) GetPage(ctx context.Context, scope core.Scope, id string) (*core.Page, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	p, err := db.get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	return copyPage(p), nil
}

func (db *DB) ListPages(ctx context.Context, scope core.Scope) ([]*core.Page, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.Fail != nil {
		return nil, db.Fail
	}
	var result = []*core.Page{}
	for _, id := range db.order {
		if p := db.pages[id]; scope.Contains(p.ClientID) {
			result = append(result, copyPage(p))
		}
	}
	return result, nil
}

func (db *DB) InsertPage(ctx context.Context, p *core.Page) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.Fail != nil {
		return db.Fail
	}
	if _, ok := db.pages[p.ID]; ok {
		return errors.New("duplicate page id")
	}
	db.pages[p.ID] = copyPage(p)
	db.order = append(db.order, p.ID)
	return nil
}

func checkVersion(p *core.Page, ifVersion int64) error {
	if ifVersion != 0 && p.Version != ifVersion {
		return core.ErrConflict
	}
	return nil
}

func (db *DB) SetSchema(ctx context.Context, scope core.Scope, id string, body string, ifVersion int64, now time.Time) (*core.Page, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	p, err := db.get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if err := checkVersion(p, ifVersion); err != nil {
		return nil, err
	}
	p.SchemaBody = body
	p.Status = core.Pending
	p.Review = nil
	p.Version++
	p.UpdatedAt = now
	return copyPage(p), nil
}

func (db *DB) SetReview(ctx context.Context, scope core.Scope, id string, r *core.Review, ifVersion int64) (*core.Page, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	p, err := db.get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if !p.HasSchema() {
		return nil, core.ErrInvalidState
	}
	if err := checkVersion(p, ifVersion); err != nil {
		return nil, err
	}
	var review = *r
	p.Status = r.Decision
	p.Review = &review
	p.Version++
	p.UpdatedAt = r.ReviewedAt
	return copyPage(p), nil
}

func (db *DB) AppendComment(ctx context.Context, scope core.Scope, id string, c *core.Comment) (*core.Page, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	p, err := db.get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	p.Comments = append(p.Comments, *c)
	return copyPage(p), nil
}

// users

func (db *DB) GetUser(ctx context.Context, id string) (*core.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	u, ok := db.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	var c = u.User
	return &c, nil
}

func (db *DB) GetUserByMail(ctx context.Context, mail string) (*core.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	mail = strings.ToLower(strings.TrimSpace(mail))
	for _, u := range db.users {
		if u.Mail == mail {
			var c = u.User
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (db *DB) InsertUser(ctx context.Context, u *core.User) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, existing := range db.users {
		if existing.Mail == u.Mail {
			return errors.New("duplicate mail")
		}
	}
	db.users[u.ID] = &user{User: *u}
	return nil
}

func (db *DB) LoginUser(ctx context.Context, mail, password string) (*core.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	mail = strings.ToLower(strings.TrimSpace(mail))
	for _, u := range db.users {
		if u.Mail == mail {
			if len(u.hash) == 0 || bcrypt.CompareHashAndPassword(u.hash, []byte(password)) != nil {
				return nil, core.ErrAuth // wrong password
			}
			var c = u.User
			return &c, nil
		}
	}
	return nil, core.ErrAuth // user not found
}

func (db *DB) SetPassword(ctx context.Context, u *core.User, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	stored, ok := db.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	stored.hash = hash
	return nil
}

// clients

func (db *DB) GetClient(ctx context.Context, id string) (*core.Client, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	c, ok := db.clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	var cl = *c
	return &cl, nil
}

func (db *DB) GetAllClients(ctx context.Context) ([]*core.Client, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var all = make([]*core.Client, 0, len(db.corder))
	for _, id := range db.corder {
		var cl = *db.clients[id]
		all = append(all, &cl)
	}
	return all, nil
}

func (db *DB) InsertClient(ctx context.Context, c *core.Client) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.clients[c.ID]; ok {
		return errors.New("duplicate client id")
	}
	var cl = *c
	db.clients[c.ID] = &cl
	db.corder = append(db.corder, c.ID)
	return nil
}
