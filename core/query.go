package core

import (
	"context"
	"fmt"
	"strings"
)

// A Filter selects pages by status.
type Filter string

const All Filter = "all"

// ParseFilter accepts "all", a status, or "no_schema" as alias for "next". The empty string means "all".
func ParseFilter(s string) (Filter, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", string(All):
		return All, nil
	case "no_schema":
		return Filter(Next), nil
	}
	if Status(s).Valid() {
		return Filter(s), nil
	}
	return "", fmt.Errorf("unknown filter %q: %w", s, ErrValidation)
}

// Match uses the status field only. By the status invariant, Next equals "no schema".
func (f Filter) Match(p *Page) bool {
	return f == All || f == "" || p.Status == Status(f)
}

// Counts are computed over all pages of the scope, regardless of the filter.
type Counts struct {
	Total      int `json:"total"`
	WithSchema int `json:"with_schema"`
	Next       int `json:"next"`
	Pending    int `json:"pending"`
	Approved   int `json:"approved"`
	Rejected   int `json:"rejected"`
}

func CountPages(pages []*Page) Counts {
	var counts Counts
	for _, p := range pages {
		counts.Total++
		if p.HasSchema() {
			counts.WithSchema++
		}
		switch p.Status {
		case Next:
			counts.Next++
		case Pending:
			counts.Pending++
		case Approved:
			counts.Approved++
		case Rejected:
			counts.Rejected++
		}
	}
	return counts
}

type PageList struct {
	Pages  []*Page `json:"pages"`
	Counts Counts  `json:"counts"`
	Filter Filter  `json:"filter"`
}

// ListPages returns the pages of the caller's scope which match the filter, and the counts of the unfiltered scope.
// Admins can narrow the scope to one client. Both are computed from the same store read.
func (c *CoreDB) ListPages(ctx context.Context, caller *Caller, filter Filter, clientID string) (*PageList, error) {

	scope, err := c.Policy.Require(caller, CanView)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}

	if clientID != "" {
		if !scope.Contains(clientID) {
			return nil, fmt.Errorf("list pages of client %s: %w", clientID, ErrForbidden)
		}
		scope = ClientScope(clientID)
	}

	if filter == "" {
		filter = All
	}

	ctx, cancel := c.storeContext(ctx)
	defer cancel()

	all, err := c.PageDB.ListPages(ctx, scope)
	if err != nil {
		return nil, c.wrap("list pages", err)
	}

	var list = &PageList{
		Pages:  make([]*Page, 0, len(all)),
		Counts: CountPages(all),
		Filter: filter,
	}
	for _, p := range all {
		if filter.Match(p) {
			list.Pages = append(list.Pages, p)
		}
	}
	return list, nil
}

// GetPage shadows PageDB.GetPage.
func (c *CoreDB) GetPage(ctx context.Context, caller *Caller, pageID string) (*Page, error) {

	scope, err := c.Policy.Require(caller, CanView)
	if err != nil {
		return nil, fmt.Errorf("get page: %w", err)
	}

	ctx, cancel := c.storeContext(ctx)
	defer cancel()

	p, err := c.PageDB.GetPage(ctx, scope, pageID)
	if err != nil {
		return nil, c.wrap("get page", c.notFound(pageID, err))
	}
	return p, nil
}

// GetAllClients shadows ClientDB.GetAllClients. Clients see only themselves.
func (c *CoreDB) GetAllClients(ctx context.Context, caller *Caller) ([]*Client, error) {

	scope, err := c.Policy.Require(caller, CanView)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}

	ctx, cancel := c.storeContext(ctx)
	defer cancel()

	if !scope.All() {
		client, err := c.ClientDB.GetClient(ctx, scope.ClientID())
		if err != nil {
			if c.ClientDB.IsNotFound(err) {
				return nil, fmt.Errorf("list clients: client %s: %w", scope.ClientID(), ErrNotFound)
			}
			return nil, storeErr("list clients", err)
		}
		return []*Client{client}, nil
	}

	clients, err := c.ClientDB.GetAllClients(ctx)
	if err != nil {
		return nil, storeErr("list clients", err)
	}
	return clients, nil
}
