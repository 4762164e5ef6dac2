package core

import (
	"context"
	"time"
)

// A PageDB persists pages. Every method is scoped to a tenant.
//
// Updates touch only the named fields and are atomic with respect to them, so a comment
// append racing a schema save loses neither write. Concurrent updates of the same fields are last write wins.
// ifVersion zero skips the version check, else a mismatch must yield ErrConflict.
// A page outside the scope does not exist.
type PageDB interface {
	GetPage(ctx context.Context, scope Scope, id string) (*Page, error)
	ListPages(ctx context.Context, scope Scope) ([]*Page, error) // creation order
	InsertPage(ctx context.Context, p *Page) error

	// SetSchema sets the schema body, sets status to Pending, clears the review and bumps the version.
	SetSchema(ctx context.Context, scope Scope, id string, body string, ifVersion int64, now time.Time) (*Page, error)

	// SetReview sets status to r.Decision and stores r, if the page has a schema. Else it returns ErrInvalidState.
	SetReview(ctx context.Context, scope Scope, id string, r *Review, ifVersion int64) (*Page, error)

	// AppendComment appends a comment without touching the version.
	AppendComment(ctx context.Context, scope Scope, id string, c *Comment) (*Page, error)

	IsNotFound(err error) bool
}
