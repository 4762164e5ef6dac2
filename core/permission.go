package core

// A Capability is the right to perform one kind of operation.
type Capability int

const (
	CanView Capability = 1 << iota
	CanComment
	CanReview
	CanAuthor
)

func (c Capability) String() string {
	switch c {
	case CanView:
		return "view"
	case CanComment:
		return "comment"
	case CanReview:
		return "review-schema"
	case CanAuthor:
		return "author-schema"
	}
	return "unknown"
}

// Capabilities is a set of Capability values.
type Capabilities int

func (cs Capabilities) Has(c Capability) bool {
	return int(cs)&int(c) != 0
}

func (cs Capabilities) With(c Capability) Capabilities {
	return Capabilities(int(cs) | int(c))
}

type Role string

const (
	ClientRole Role = "client" // owner of a tenant
	AdminRole  Role = "admin"  // schema author across tenants
)

func (r Role) Valid() bool {
	return r == ClientRole || r == AdminRole
}
