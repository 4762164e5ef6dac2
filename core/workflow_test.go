package core_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/wansing/schemareview/core"
	"github.com/wansing/schemareview/memdb"
)

var (
	admin   = &core.Caller{UserID: "u-admin", Name: "Ada Admin", Role: core.AdminRole}
	clientA = &core.Caller{UserID: "u-a", Name: "Alice", Role: core.ClientRole, ClientID: "client-a"}
	clientB = &core.Caller{UserID: "u-b", Name: "Bob", Role: core.ClientRole, ClientID: "client-b"}
)

// setupCoreDB creates a CoreDB on an in-memory store with two clients and the given pages of client A.
func setupCoreDB(t *testing.T, urls ...string) (*core.CoreDB, *memdb.DB, []string) {
	t.Helper()

	var mem = memdb.New()
	var clock = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var clockMu sync.Mutex

	var db = &core.CoreDB{
		ClientDB: mem,
		PageDB:   mem,
		UserDB:   mem,
		Now: func() time.Time {
			clockMu.Lock()
			defer clockMu.Unlock()
			clock = clock.Add(time.Second)
			return clock
		},
	}

	var ctx = context.Background()
	for _, cl := range []*core.Client{{ID: "client-a", Name: "A"}, {ID: "client-b", Name: "B"}} {
		if err := db.InsertClient(ctx, cl); err != nil {
			t.Fatalf("inserting client: %v", err)
		}
	}

	var ids []string
	for _, url := range urls {
		var p = &core.Page{ClientID: "client-a", URL: url, Title: url}
		if err := db.ImportPage(ctx, p); err != nil {
			t.Fatalf("importing page %s: %v", url, err)
		}
		ids = append(ids, p.ID)
	}

	return db, mem, ids
}

func mustConsistent(t *testing.T, p *core.Page) {
	t.Helper()
	if err := p.Consistent(); err != nil {
		t.Fatal(err)
	}
}

func TestEndToEnd(t *testing.T) {
	db, _, ids := setupCoreDB(t, "https://example.com/faq")
	var ctx = context.Background()
	var id = ids[0]

	p, err := db.GetPage(ctx, clientA, id)
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != core.Next || p.HasSchema() {
		t.Fatalf("new page: got status %s, schema %q", p.Status, p.SchemaBody)
	}

	p, err = db.AuthorSchema(ctx, admin, id, `{"@type":"FAQPage"}`, 0)
	if err != nil {
		t.Fatal(err)
	}
	mustConsistent(t, p)
	if p.Status != core.Pending {
		t.Fatalf("after author: got %s, want pending", p.Status)
	}

	p, err = db.ReviewDecision(ctx, clientA, id, core.Rejected, "wrong type", 0)
	if err != nil {
		t.Fatal(err)
	}
	mustConsistent(t, p)
	if p.Status != core.Rejected || p.Review.Notes != "wrong type" {
		t.Fatalf("after reject: got %s, review %+v", p.Status, p.Review)
	}

	p, err = db.AuthorSchema(ctx, admin, id, `{"@type":"Article"}`, 0)
	if err != nil {
		t.Fatal(err)
	}
	mustConsistent(t, p)
	if p.Status != core.Pending || p.Review != nil {
		t.Fatalf("after re-author: got %s, review %+v", p.Status, p.Review)
	}

	p, err = db.ReviewDecision(ctx, clientA, id, core.Approved, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	mustConsistent(t, p)
	if p.Status != core.Approved {
		t.Fatalf("after approve: got %s", p.Status)
	}
	if p.Review.ReviewerID != clientA.UserID || p.Review.ReviewerName != clientA.Name {
		t.Fatalf("reviewer: got %+v", p.Review)
	}
}

func TestReauthorClearsReview(t *testing.T) {
	db, _, ids := setupCoreDB(t, "https://example.com/")
	var ctx = context.Background()

	if _, err := db.AuthorSchema(ctx, admin, ids[0], `{"@type":"WebPage"}`, 0); err != nil {
		t.Fatal(err)
	}
	p, err := db.ReviewDecision(ctx, clientA, ids[0], core.Approved, "ok", 0)
	if err != nil {
		t.Fatal(err)
	}
	if p.Review == nil || p.Review.Decision != core.Approved || p.Review.Notes != "ok" {
		t.Fatalf("review: got %+v", p.Review)
	}

	p, err = db.AuthorSchema(ctx, admin, ids[0], `{"@type":"WebPage","name":"x"}`, 0)
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != core.Pending {
		t.Fatalf("got %s, want pending", p.Status)
	}
	if p.Review != nil {
		t.Fatalf("review not cleared: %+v", p.Review)
	}
}

func TestApproveTwice(t *testing.T) {
	db, _, ids := setupCoreDB(t, "https://example.com/")
	var ctx = context.Background()

	if _, err := db.AuthorSchema(ctx, admin, ids[0], `{}`, 0); err != nil {
		t.Fatal(err)
	}
	first, err := db.ReviewDecision(ctx, clientA, ids[0], core.Approved, "first", 0)
	if err != nil {
		t.Fatal(err)
	}
	second, err := db.ReviewDecision(ctx, clientA, ids[0], core.Approved, "second", 0)
	if err != nil {
		t.Fatal(err)
	}
	if second.Status != core.Approved {
		t.Fatalf("got %s", second.Status)
	}
	if second.Review.Notes != "second" {
		t.Fatalf("notes: got %q", second.Review.Notes)
	}
	if !second.Review.ReviewedAt.After(first.Review.ReviewedAt) {
		t.Fatalf("timestamp not updated: %v, %v", first.Review.ReviewedAt, second.Review.ReviewedAt)
	}
}

func TestReviewErrors(t *testing.T) {

	tests := []struct {
		name     string
		schema   string // authored before the review, if not empty
		caller   *core.Caller
		decision core.Status
		notes    string
		want     error
	}{
		{"reject without notes", "{}", clientA, core.Rejected, "", core.ErrValidation},
		{"reject with blank notes", "{}", clientA, core.Rejected, "  \n", core.ErrValidation},
		{"reject with notes", "{}", clientA, core.Rejected, "missing FAQPage markup", nil},
		{"approve without notes", "{}", clientA, core.Approved, "", nil},
		{"no schema", "", clientA, core.Approved, "", core.ErrInvalidState},
		{"unknown decision", "{}", clientA, core.Pending, "x", core.ErrValidation},
		{"other client", "{}", clientB, core.Approved, "", core.ErrNotFound},
		{"admin may not review", "{}", admin, core.Approved, "", core.ErrForbidden},
		{"anonymous", "{}", nil, core.Approved, "", core.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, _, ids := setupCoreDB(t, "https://example.com/")
			var ctx = context.Background()
			if tt.schema != "" {
				if _, err := db.AuthorSchema(ctx, admin, ids[0], tt.schema, 0); err != nil {
					t.Fatal(err)
				}
			}
			p, err := db.ReviewDecision(ctx, tt.caller, ids[0], tt.decision, tt.notes, 0)
			if !errors.Is(err, tt.want) || (tt.want == nil && err != nil) {
				t.Fatalf("got error %v, want %v", err, tt.want)
			}
			if tt.want == nil {
				mustConsistent(t, p)
				if p.Status != tt.decision {
					t.Fatalf("got status %s, want %s", p.Status, tt.decision)
				}
			}
		})
	}
}

func TestAdminReviewPolicy(t *testing.T) {
	db, _, ids := setupCoreDB(t, "https://example.com/")
	db.Policy.AdminReview = true
	var ctx = context.Background()

	if _, err := db.AuthorSchema(ctx, admin, ids[0], `{}`, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ReviewDecision(ctx, admin, ids[0], core.Approved, "", 0); err != nil {
		t.Fatalf("admin review with AdminReview: %v", err)
	}
}

func TestAuthorErrors(t *testing.T) {

	tests := []struct {
		name   string
		caller *core.Caller
		pageID string // "" means the imported page
		body   string
		want   error
	}{
		{"ok", admin, "", `{"@type":"FAQPage"}`, nil},
		{"not json", admin, "", `<script>not json</script>`, nil},
		{"empty body", admin, "", "", core.ErrValidation},
		{"blank body", admin, "", " \t", core.ErrValidation},
		{"client may not author", clientA, "", "{}", core.ErrForbidden},
		{"unknown page", admin, "nope", "{}", core.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, _, ids := setupCoreDB(t, "https://example.com/")
			var id = tt.pageID
			if id == "" {
				id = ids[0]
			}
			p, err := db.AuthorSchema(context.Background(), tt.caller, id, tt.body, 0)
			if !errors.Is(err, tt.want) || (tt.want == nil && err != nil) {
				t.Fatalf("got error %v, want %v", err, tt.want)
			}
			if tt.want == nil && p.SchemaBody != tt.body {
				t.Fatalf("body not stored as given: %q", p.SchemaBody)
			}
		})
	}
}

func TestCommentDoesNotChangeStatus(t *testing.T) {
	db, _, ids := setupCoreDB(t, "https://example.com/")
	var ctx = context.Background()

	if _, err := db.AuthorSchema(ctx, admin, ids[0], `{}`, 0); err != nil {
		t.Fatal(err)
	}
	before, err := db.ReviewDecision(ctx, clientA, ids[0], core.Rejected, "needs work", 0)
	if err != nil {
		t.Fatal(err)
	}

	after, err := db.AddComment(ctx, clientA, ids[0], "please add the opening hours")
	if err != nil {
		t.Fatal(err)
	}
	if after.Status != before.Status || after.Review.Notes != before.Review.Notes || after.Version != before.Version {
		t.Fatalf("comment changed workflow state: before %+v, after %+v", before, after)
	}
	if len(after.Comments) != 1 || after.Comments[0].Text != "please add the opening hours" || after.Comments[0].AuthorID != clientA.UserID {
		t.Fatalf("comments: got %+v", after.Comments)
	}

	if _, err := db.AddComment(ctx, clientA, ids[0], "   "); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("empty comment: got %v", err)
	}
	if _, err := db.AddComment(ctx, clientB, ids[0], "hi"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("comment of other client: got %v", err)
	}
}

func TestTenantIsolation(t *testing.T) {
	db, _, ids := setupCoreDB(t, "https://example.com/")
	var ctx = context.Background()

	if _, err := db.GetPage(ctx, clientB, ids[0]); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("get: got %v", err)
	}
	list, err := db.ListPages(ctx, clientB, core.All, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Pages) != 0 || list.Counts.Total != 0 {
		t.Fatalf("client B sees pages of A: %+v", list)
	}
	if _, err := db.ListPages(ctx, clientB, core.All, "client-a"); !errors.Is(err, core.ErrForbidden) {
		t.Fatalf("explicit foreign list: got %v", err)
	}
	list, err = db.ListPages(ctx, admin, core.All, "client-a")
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Pages) != 1 {
		t.Fatalf("admin list of client A: got %d pages", len(list.Pages))
	}
}

func TestFilterCounts(t *testing.T) {
	db, _, ids := setupCoreDB(t, "/1", "/2", "/3", "/4", "/5")
	var ctx = context.Background()

	for _, id := range ids[:4] {
		if _, err := db.AuthorSchema(ctx, admin, id, `{}`, 0); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := db.ReviewDecision(ctx, clientA, ids[0], core.Approved, "", 0); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ReviewDecision(ctx, clientA, ids[1], core.Approved, "", 0); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ReviewDecision(ctx, clientA, ids[2], core.Rejected, "no", 0); err != nil {
		t.Fatal(err)
	}

	var want = core.Counts{Total: 5, WithSchema: 4, Next: 1, Pending: 1, Approved: 2, Rejected: 1}

	all, err := db.ListPages(ctx, clientA, core.All, "")
	if err != nil {
		t.Fatal(err)
	}
	if all.Counts != want {
		t.Fatalf("counts: got %+v, want %+v", all.Counts, want)
	}

	tests := []struct {
		filter string
		want   []string
	}{
		{"all", ids},
		{"", ids},
		{"approved", ids[:2]},
		{"rejected", ids[2:3]},
		{"pending", ids[3:4]},
		{"next", ids[4:]},
		{"no_schema", ids[4:]},
	}

	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			filter, err := core.ParseFilter(tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			list, err := db.ListPages(ctx, clientA, filter, "")
			if err != nil {
				t.Fatal(err)
			}
			if list.Counts != all.Counts {
				t.Fatalf("counts changed with filter: got %+v, want %+v", list.Counts, all.Counts)
			}
			if len(list.Pages) != len(tt.want) {
				t.Fatalf("got %d pages, want %d", len(list.Pages), len(tt.want))
			}
			for i, p := range list.Pages {
				if p.ID != tt.want[i] {
					t.Fatalf("page %d: got %s, want %s (creation order)", i, p.ID, tt.want[i])
				}
			}
		})
	}

	if _, err := core.ParseFilter("archived"); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("unknown filter: got %v", err)
	}
}

func TestVersionConflict(t *testing.T) {
	db, _, ids := setupCoreDB(t, "https://example.com/")
	var ctx = context.Background()

	p, err := db.AuthorSchema(ctx, admin, ids[0], `{}`, 0)
	if err != nil {
		t.Fatal(err)
	}
	var seen = p.Version

	if _, err := db.ReviewDecision(ctx, clientA, ids[0], core.Approved, "", seen); err != nil {
		t.Fatalf("review with current version: %v", err)
	}
	if _, err := db.ReviewDecision(ctx, clientA, ids[0], core.Rejected, "late", seen); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("review with stale version: got %v", err)
	}
	if core.Retryable(core.ErrConflict) {
		t.Fatal("conflict must not be retryable")
	}
}

func TestStoreUnavailable(t *testing.T) {
	db, mem, ids := setupCoreDB(t, "https://example.com/")
	mem.Fail = fmt.Errorf("dial tcp: %w", context.DeadlineExceeded)

	_, err := db.GetPage(context.Background(), clientA, ids[0])
	if !errors.Is(err, core.ErrStoreUnavailable) {
		t.Fatalf("got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("underlying error lost: %v", err)
	}
	if !core.Retryable(err) {
		t.Fatal("store errors should be retryable")
	}
	if core.Kind(err) != "store_unavailable" {
		t.Fatalf("kind: got %s", core.Kind(err))
	}
}

func TestConcurrentCommentAndSchema(t *testing.T) {
	db, _, ids := setupCoreDB(t, "https://example.com/")
	var ctx = context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if _, err := db.AddComment(ctx, clientA, ids[0], fmt.Sprintf("comment %d", i)); err != nil {
				t.Error(err)
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			if _, err := db.AuthorSchema(ctx, admin, ids[0], fmt.Sprintf(`{"v":%d}`, i), 0); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	p, err := db.GetPage(ctx, clientA, ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Comments) != n {
		t.Fatalf("lost comments: got %d, want %d", len(p.Comments), n)
	}
	if p.Version != n {
		t.Fatalf("lost schema saves: version %d, want %d", p.Version, n)
	}
	mustConsistent(t, p)
}

func TestNotesStoredAsGiven(t *testing.T) {
	db, _, ids := setupCoreDB(t, "https://example.com/")
	var ctx = context.Background()

	if _, err := db.AuthorSchema(ctx, admin, ids[0], "{}", 0); err != nil {
		t.Fatal(err)
	}
	const notes = "  line one\nline two\n"
	p, err := db.ReviewDecision(ctx, clientA, ids[0], core.Rejected, notes, 0)
	if err != nil {
		t.Fatal(err)
	}
	if p.Review.Notes != notes {
		t.Fatalf("got notes %q, want %q", p.Review.Notes, notes)
	}
}

func TestClientsOfMissingTenant(t *testing.T) {
	db, _, _ := setupCoreDB(t)
	var orphan = &core.Caller{UserID: "u-x", Name: "Xavier", Role: core.ClientRole, ClientID: "client-x"}

	_, err := db.GetAllClients(context.Background(), orphan)
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("got %v, want not found", err)
	}
	if core.Retryable(err) {
		t.Fatal("missing tenant must not be retryable")
	}
}
