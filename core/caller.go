package core

// A Caller is an identity which has already been authenticated outside of core.
type Caller struct {
	UserID   string
	Name     string
	Role     Role
	ClientID string // tenant of a client, empty for admins
}

// A Scope restricts store access to one tenant, or to all tenants.
type Scope struct {
	all      bool
	clientID string
}

func AllClients() Scope {
	return Scope{all: true}
}

func ClientScope(clientID string) Scope {
	return Scope{clientID: clientID}
}

// All returns true if the scope covers every tenant.
func (s Scope) All() bool {
	return s.all
}

// ClientID returns the tenant of a single-tenant scope.
func (s Scope) ClientID() string {
	return s.clientID
}

// Contains returns whether a page of the given tenant is visible in the scope.
func (s Scope) Contains(clientID string) bool {
	return s.all || (s.clientID != "" && s.clientID == clientID)
}

func (s Scope) String() string {
	if s.all {
		return "all clients"
	}
	return "client " + s.clientID
}
