package sqldb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/wansing/schemareview/core"
	"github.com/xo/dburl"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	u, err := dburl.Parse("sqlite3:" + filepath.Join(t.TempDir(), "test.sqlite3") + "?_busy_timeout=10000&_journal=WAL&_txlock=immediate")
	if err != nil {
		t.Fatal(err)
	}

	db, err := Open(context.Background(), u)
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func newCoreDB(t *testing.T) *core.CoreDB {
	t.Helper()

	var db = openTestDB(t)

	clientDB, err := NewClientDB(db)
	if err != nil {
		t.Fatal(err)
	}
	pageDB, err := NewPageDB(db)
	if err != nil {
		t.Fatal(err)
	}
	userDB, err := NewUserDB(db)
	if err != nil {
		t.Fatal(err)
	}

	var coreDB = &core.CoreDB{
		ClientDB: clientDB,
		PageDB:   pageDB,
		UserDB:   userDB,
	}

	var ctx = context.Background()
	for _, cl := range []*core.Client{{ID: "client-a", Name: "A"}, {ID: "client-b", Name: "B"}} {
		if err := coreDB.InsertClient(ctx, cl); err != nil {
			t.Fatal(err)
		}
	}
	return coreDB
}

var (
	admin   = &core.Caller{UserID: "u-admin", Name: "Ada", Role: core.AdminRole}
	clientA = &core.Caller{UserID: "u-a", Name: "Alice", Role: core.ClientRole, ClientID: "client-a"}
	clientB = &core.Caller{UserID: "u-b", Name: "Bob", Role: core.ClientRole, ClientID: "client-b"}
)

func importPage(t *testing.T, db *core.CoreDB, clientID, url string) string {
	t.Helper()
	var p = &core.Page{
		ClientID: clientID,
		URL:      url,
		Title:    "Title of " + url,
		Keywords: []core.Keyword{{Term: "faq", Importance: 0.8}},
		Entities: []core.Entity{{Name: "Example Inc", Type: "Organization", Importance: 1.5}},
	}
	if err := db.ImportPage(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	return p.ID
}

func TestRebind(t *testing.T) {
	var db = &DB{Dialect: Postgres}
	if got := db.rebind("SELECT a FROM b WHERE c = ? AND (? = 1 OR d = ?)"); got != "SELECT a FROM b WHERE c = $1 AND ($2 = 1 OR d = $3)" {
		t.Fatalf("got %s", got)
	}
	db.Dialect = MySQL
	if got := db.rebind("c = ?"); got != "c = ?" {
		t.Fatalf("got %s", got)
	}
}

func TestWorkflow(t *testing.T) {
	var db = newCoreDB(t)
	var ctx = context.Background()
	var id = importPage(t, db, "client-a", "https://a.example.com/faq")

	p, err := db.GetPage(ctx, clientA, id)
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != core.Next || p.HasSchema() || p.Review != nil || len(p.Comments) != 0 {
		t.Fatalf("fresh page: %+v", p)
	}
	if len(p.Keywords) != 1 || p.Keywords[0].Term != "faq" {
		t.Fatalf("keywords: %+v", p.Keywords)
	}
	if len(p.Entities) != 1 || p.Entities[0].Importance != 1 {
		t.Fatalf("entities: %+v", p.Entities)
	}

	// review before authoring
	if _, err := db.ReviewDecision(ctx, clientA, id, core.Approved, "", 0); !errors.Is(err, core.ErrInvalidState) {
		t.Fatalf("review of next page: got %v", err)
	}

	p, err = db.AuthorSchema(ctx, admin, id, `{"@type":"FAQPage"}`, 0)
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != core.Pending || p.Version != 1 {
		t.Fatalf("after authoring: %s version %d", p.Status, p.Version)
	}

	p, err = db.AddComment(ctx, clientA, id, "looks good")
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != core.Pending || len(p.Comments) != 1 || p.Comments[0].AuthorName != "Alice" {
		t.Fatalf("after comment: %+v", p)
	}

	p, err = db.ReviewDecision(ctx, clientA, id, core.Rejected, "  wrong type  ", 0)
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != core.Rejected || p.Review == nil || p.Review.Notes != "  wrong type  " || p.Review.ReviewerID != "u-a" {
		t.Fatalf("after review: %+v", p)
	}
	if err := p.Consistent(); err != nil {
		t.Fatal(err)
	}

	// re-authoring clears the review but keeps comments
	p, err = db.AuthorSchema(ctx, admin, id, `{"@type":"FAQPage","mainEntity":[]}`, p.Version)
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != core.Pending || p.Review != nil || len(p.Comments) != 1 {
		t.Fatalf("after re-authoring: %+v", p)
	}

	// stale version
	if _, err := db.ReviewDecision(ctx, clientA, id, core.Approved, "", 1); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("stale version: got %v", err)
	}
	p, err = db.ReviewDecision(ctx, clientA, id, core.Approved, "", p.Version)
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != core.Approved || p.Review.Decision != core.Approved {
		t.Fatalf("after approval: %+v", p)
	}
}

func TestScope(t *testing.T) {
	var db = newCoreDB(t)
	var ctx = context.Background()
	var a1 = importPage(t, db, "client-a", "https://a.example.com/1")
	importPage(t, db, "client-a", "https://a.example.com/2")
	var b1 = importPage(t, db, "client-b", "https://b.example.com/1")

	if _, err := db.AuthorSchema(ctx, admin, a1, `{}`, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := db.AddComment(ctx, clientA, a1, "first"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		op  string
		err error
	}{
		{"get", func() error { _, err := db.GetPage(ctx, clientB, a1); return err }()},
		{"comment", func() error { _, err := db.AddComment(ctx, clientB, a1, "x"); return err }()},
		{"review", func() error { _, err := db.ReviewDecision(ctx, clientB, a1, core.Approved, "", 0); return err }()},
		{"missing", func() error { _, err := db.GetPage(ctx, admin, "no-such-page"); return err }()},
	}
	for _, test := range tests {
		if !errors.Is(test.err, core.ErrNotFound) {
			t.Errorf("%s: got %v, want not found", test.op, test.err)
		}
	}

	list, err := db.ListPages(ctx, clientA, core.All, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Pages) != 2 || list.Counts.Total != 2 || list.Counts.WithSchema != 1 || list.Counts.Pending != 1 || list.Counts.Next != 1 {
		t.Fatalf("client a: %+v", list.Counts)
	}
	if list.Pages[0].ID != a1 || len(list.Pages[0].Comments) != 1 {
		t.Fatalf("order or comments: %+v", list.Pages[0])
	}

	list, err = db.ListPages(ctx, admin, core.Filter(core.Next), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Pages) != 2 || list.Counts.Total != 3 {
		t.Fatalf("admin: %d pages, counts %+v", len(list.Pages), list.Counts)
	}

	list, err = db.ListPages(ctx, admin, core.All, "client-b")
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Pages) != 1 || list.Pages[0].ID != b1 {
		t.Fatalf("admin narrowed to client b: %+v", list.Pages)
	}
}

func TestConcurrentCommentAndSchema(t *testing.T) {
	var db = newCoreDB(t)
	var ctx = context.Background()
	var id = importPage(t, db, "client-a", "https://a.example.com/")

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if _, err := db.AddComment(ctx, clientA, id, fmt.Sprintf("comment %d", i)); err != nil {
				t.Error(err)
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			if _, err := db.AuthorSchema(ctx, admin, id, fmt.Sprintf(`{"v":%d}`, i), 0); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	p, err := db.GetPage(ctx, admin, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Comments) != n || p.Version != n {
		t.Fatalf("got %d comments and version %d, want %d", len(p.Comments), p.Version, n)
	}
}

func TestUsers(t *testing.T) {
	var db = newCoreDB(t)
	var ctx = context.Background()

	var u = &core.User{Mail: " Alice@Example.com ", Name: "Alice", Role: core.ClientRole, ClientID: "client-a"}
	if err := db.InsertUser(ctx, u); err != nil {
		t.Fatal(err)
	}

	// no password yet
	if _, err := db.LoginUser(ctx, "alice@example.com", ""); err != core.ErrAuth {
		t.Fatalf("login without password: got %v", err)
	}

	if err := db.SetPassword(ctx, u, ""); err != core.ErrEmptyPassword {
		t.Fatalf("empty password: got %v", err)
	}
	if err := db.SetPassword(ctx, u, "secret"); err != nil {
		t.Fatal(err)
	}

	if _, err := db.LoginUser(ctx, "alice@example.com", "wrong"); err != core.ErrAuth {
		t.Fatalf("wrong password: got %v", err)
	}
	if _, err := db.LoginUser(ctx, "bob@example.com", "secret"); err != core.ErrAuth {
		t.Fatalf("unknown user: got %v", err)
	}

	got, err := db.LoginUser(ctx, "ALICE@example.com", "secret")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != u.ID || got.Role != core.ClientRole || got.ClientID != "client-a" {
		t.Fatalf("got %+v", got)
	}

	if _, err := db.UserDB.GetUser(ctx, "no-such-user"); !IsNotFound(err) {
		t.Fatalf("missing user: got %v", err)
	}

	// a client user needs an existing client
	if err := db.InsertUser(ctx, &core.User{Mail: "x@example.com", Role: core.ClientRole, ClientID: "client-x"}); err == nil {
		t.Fatal("inserted user of unknown client")
	}
}

func TestClients(t *testing.T) {
	var db = newCoreDB(t)
	var ctx = context.Background()

	all, err := db.ClientDB.GetAllClients(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d clients", len(all))
	}

	mine, err := db.GetAllClients(ctx, clientB)
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].ID != "client-b" {
		t.Fatalf("got %+v", mine)
	}
}

func TestSessionStore(t *testing.T) {
	var db = openTestDB(t)
	store, err := db.NewSessionStore()
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Commit("token", []byte("data"), time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	data, found, err := store.Find("token")
	if err != nil || !found || string(data) != "data" {
		t.Fatalf("got %q %v %v", data, found, err)
	}
}

func TestInsertionOrder(t *testing.T) {
	var db = newCoreDB(t)
	var ctx = context.Background()

	var fixed = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	db.Now = func() time.Time { return fixed }

	const n = 10
	var ids []string
	for i := 0; i < n; i++ {
		ids = append(ids, importPage(t, db, "client-a", fmt.Sprintf("https://a.example.com/%d", i)))
	}
	for i := 0; i < n; i++ {
		if _, err := db.AddComment(ctx, clientA, ids[0], fmt.Sprintf("c%d", i)); err != nil {
			t.Fatal(err)
		}
	}

	list, err := db.ListPages(ctx, clientA, core.All, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Pages) != n {
		t.Fatalf("got %d pages", len(list.Pages))
	}
	for i, p := range list.Pages {
		if p.ID != ids[i] {
			t.Fatalf("page %d: got %s, want %s", i, p.ID, ids[i])
		}
	}

	p, err := db.GetPage(ctx, clientA, ids[0])
	if err != nil {
		t.Fatal(err)
	}
	for i, c := range p.Comments {
		if want := fmt.Sprintf("c%d", i); c.Text != want {
			t.Fatalf("comment %d: got %s, want %s", i, c.Text, want)
		}
	}
	if len(list.Pages[0].Comments) != n || list.Pages[0].Comments[n-1].Text != fmt.Sprintf("c%d", n-1) {
		t.Fatalf("comments in list: %+v", list.Pages[0].Comments)
	}
}
