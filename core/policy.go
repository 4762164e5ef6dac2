package core

import "fmt"

// Policy decides which operations a caller may perform on which tenants.
type Policy struct {
	// AdminReview allows admins to review schemas. By default, only clients review.
	AdminReview bool
}

// Capabilities returns the capability set of the caller.
func (p Policy) Capabilities(caller *Caller) Capabilities {
	if caller == nil {
		return 0
	}
	var cs Capabilities
	switch caller.Role {
	case ClientRole:
		if caller.ClientID == "" {
			return 0
		}
		cs = cs.With(CanView).With(CanComment).With(CanReview)
	case AdminRole:
		cs = cs.With(CanView).With(CanComment).With(CanAuthor)
		if p.AdminReview {
			cs = cs.With(CanReview)
		}
	}
	return cs
}

// Scope returns the tenant scope of the caller.
func (p Policy) Scope(caller *Caller) Scope {
	if caller != nil && caller.Role == AdminRole {
		return AllClients()
	}
	if caller != nil && caller.Role == ClientRole {
		return ClientScope(caller.ClientID)
	}
	return Scope{}
}

// Require returns the scope in which the caller holds the capability.
// It must be called before any data is read or written.
func (p Policy) Require(caller *Caller, c Capability) (Scope, error) {
	if !p.Capabilities(caller).Has(c) {
		return Scope{}, fmt.Errorf("%s: %w", c, ErrForbidden)
	}
	return p.Scope(caller), nil
}
