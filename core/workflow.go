package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// AuthorSchema stores a new or edited schema body and restarts the review cycle.
//
//	next, pending, approved, rejected --(author)--> pending
//
// The body is stored as given. It need not be JSON.
func (c *CoreDB) AuthorSchema(ctx context.Context, caller *Caller, pageID string, body string, ifVersion int64) (*Page, error) {

	scope, err := c.Policy.Require(caller, CanAuthor)
	if err != nil {
		return nil, fmt.Errorf("author schema: %w", err)
	}

	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("author schema: schema body is empty: %w", ErrValidation)
	}

	ctx, cancel := c.storeContext(ctx)
	defer cancel()

	p, err := c.PageDB.SetSchema(ctx, scope, pageID, body, ifVersion, c.now())
	if err != nil {
		return nil, c.wrap("author schema", c.notFound(pageID, err))
	}
	return p, nil
}

// ReviewDecision applies an approve or reject decision to a page which has a schema.
//
//	pending, approved, rejected --(review)--> approved | rejected
//
// A rejection needs notes, which are stored as given. Re-deciding overwrites the previous review.
func (c *CoreDB) ReviewDecision(ctx context.Context, caller *Caller, pageID string, decision Status, notes string, ifVersion int64) (*Page, error) {

	scope, err := c.Policy.Require(caller, CanReview)
	if err != nil {
		return nil, fmt.Errorf("review: %w", err)
	}

	if !decision.IsDecision() {
		return nil, fmt.Errorf("review: unknown decision %q: %w", decision, ErrValidation)
	}

	if decision == Rejected && strings.TrimSpace(notes) == "" {
		return nil, fmt.Errorf("review: rejection requires notes: %w", ErrValidation)
	}

	var review = &Review{
		ReviewerID:   caller.UserID,
		ReviewerName: caller.Name,
		Decision:     decision,
		Notes:        notes,
		ReviewedAt:   c.now(),
	}

	ctx, cancel := c.storeContext(ctx)
	defer cancel()

	p, err := c.PageDB.SetReview(ctx, scope, pageID, review, ifVersion)
	if err != nil {
		return nil, c.wrap("review", c.notFound(pageID, err))
	}
	return p, nil
}

// AddComment appends a comment. It does not change status or review.
func (c *CoreDB) AddComment(ctx context.Context, caller *Caller, pageID string, text string) (*Page, error) {

	scope, err := c.Policy.Require(caller, CanComment)
	if err != nil {
		return nil, fmt.Errorf("comment: %w", err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("comment: text is empty: %w", ErrValidation)
	}

	var comment = &Comment{
		ID:         uuid.NewString(),
		Text:       text,
		AuthorID:   caller.UserID,
		AuthorName: caller.Name,
		CreatedAt:  c.now(),
	}

	ctx, cancel := c.storeContext(ctx)
	defer cancel()

	p, err := c.PageDB.AppendComment(ctx, scope, pageID, comment)
	if err != nil {
		return nil, c.wrap("comment", c.notFound(pageID, err))
	}
	return p, nil
}

// notFound adds the page id to not-found errors.
func (c *CoreDB) notFound(pageID string, err error) error {
	if c.PageDB.IsNotFound(err) {
		return fmt.Errorf("page %s: %w", pageID, ErrNotFound)
	}
	return err
}
