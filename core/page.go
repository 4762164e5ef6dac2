package core

import (
	"fmt"
	"strings"
	"time"
)

// Status is the workflow status of a page.
type Status string

const (
	Next     Status = "next" // no schema yet
	Pending  Status = "pending"
	Approved Status = "approved"
	Rejected Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case Next, Pending, Approved, Rejected:
		return true
	default:
		return false
	}
}

// IsDecision returns true for the statuses which a review can set.
func (s Status) IsDecision() bool {
	return s == Approved || s == Rejected
}

// ParseDecision parses "approved" or "rejected".
func ParseDecision(s string) (Status, error) {
	var status = Status(strings.ToLower(strings.TrimSpace(s)))
	if !status.IsDecision() {
		return "", fmt.Errorf("unknown decision %q: %w", s, ErrValidation)
	}
	return status, nil
}

type Keyword struct {
	Term       string  `json:"term" yaml:"term"`
	Importance float64 `json:"importance" yaml:"importance"` // [0,1]
}

type Entity struct {
	Name       string  `json:"name" yaml:"name"`
	Type       string  `json:"type" yaml:"type"`
	Importance float64 `json:"importance" yaml:"importance"` // [0,1]
}

// Review holds the latest review decision of a page.
type Review struct {
	ReviewerID   string    `json:"reviewed_by"`
	ReviewerName string    `json:"reviewed_by_name"`
	Decision     Status    `json:"decision"`
	Notes        string    `json:"notes"`
	ReviewedAt   time.Time `json:"reviewed_at"`
}

type Comment struct {
	ID         string    `json:"id"`
	Text       string    `json:"comment"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// A Page is a tracked URL of a client. Metadata is written by the ingestion and is read-only here.
type Page struct {
	ID       string `json:"_id"`
	ClientID string `json:"client_id"`
	URL      string `json:"url"`
	Title    string `json:"page_title"`

	MainTopic string    `json:"main_topic"`
	Summary   string    `json:"content_summary"`
	Keywords  []Keyword `json:"keywords"`
	Entities  []Entity  `json:"entities"`

	SchemaBody string    `json:"schema_body"` // stored byte for byte
	Status     Status    `json:"status"`
	Review     *Review   `json:"review,omitempty"` // nil unless Status is Approved or Rejected
	Comments   []Comment `json:"comments"`

	Version   int64     `json:"version"` // bumped by schema saves and reviews
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Page) HasSchema() bool {
	return p.SchemaBody != ""
}

// Consistent checks the status invariants of the page.
func (p *Page) Consistent() error {
	if !p.Status.Valid() {
		return fmt.Errorf("page %s: invalid status %q", p.ID, p.Status)
	}
	if (p.Status == Next) != !p.HasSchema() {
		return fmt.Errorf("page %s: status %s does not match schema presence", p.ID, p.Status)
	}
	if (p.Review != nil) != p.Status.IsDecision() {
		return fmt.Errorf("page %s: review metadata does not match status %s", p.ID, p.Status)
	}
	if p.Review != nil && p.Review.Decision != p.Status {
		return fmt.Errorf("page %s: review decision %s differs from status %s", p.ID, p.Review.Decision, p.Status)
	}
	return nil
}

// ClampImportance limits keyword and entity importance to [0,1].
func (p *Page) ClampImportance() {
	for i := range p.Keywords {
		p.Keywords[i].Importance = clamp(p.Keywords[i].Importance)
	}
	for i := range p.Entities {
		p.Entities[i].Importance = clamp(p.Entities[i].Importance)
	}
}

func clamp(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
