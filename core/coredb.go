package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const DefaultStoreTimeout = 5 * time.Second

// CoreDB glues the stores and the access policy together. Its methods are the operations of the review workflow.
type CoreDB struct {
	ClientDB
	PageDB
	UserDB
	Policy       Policy
	StoreTimeout time.Duration    // zero means DefaultStoreTimeout
	Now          func() time.Time // for tests, nil means time.Now
}

func (c *CoreDB) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// storeContext bounds a single store access.
func (c *CoreDB) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	var timeout = c.StoreTimeout
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// wrap converts a store error into one of the caller-visible kinds.
func (c *CoreDB) wrap(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case c.PageDB.IsNotFound(err):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidState), errors.Is(err, ErrConflict), errors.Is(err, ErrValidation):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return storeErr(op, err)
	}
}

// ImportPage inserts a page as delivered by the ingestion. The page always starts in status Next.
func (c *CoreDB) ImportPage(ctx context.Context, p *Page) error {

	p.URL = strings.TrimSpace(p.URL)
	if p.URL == "" {
		return fmt.Errorf("import page: url is empty: %w", ErrValidation)
	}
	if p.ClientID == "" {
		return fmt.Errorf("import page %s: no client: %w", p.URL, ErrValidation)
	}

	ctx, cancel := c.storeContext(ctx)
	defer cancel()

	if _, err := c.ClientDB.GetClient(ctx, p.ClientID); err != nil {
		if c.ClientDB.IsNotFound(err) {
			return fmt.Errorf("import page %s: client %s: %w", p.URL, p.ClientID, ErrValidation)
		}
		return storeErr("import page", err)
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	var now = c.now()
	p.SchemaBody = ""
	p.Status = Next
	p.Review = nil
	p.Comments = []Comment{}
	p.Version = 0
	p.CreatedAt = now
	p.UpdatedAt = now
	p.ClampImportance()

	if err := c.PageDB.InsertPage(ctx, p); err != nil {
		return storeErr("import page", err)
	}
	return nil
}

// GetUser shadows UserDB.GetUser.
func (c *CoreDB) GetUser(ctx context.Context, id string) (*User, error) {
	ctx, cancel := c.storeContext(ctx)
	defer cancel()
	u, err := c.UserDB.GetUser(ctx, id)
	if err != nil {
		if c.UserDB.IsNotFound(err) {
			return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return nil, storeErr("get user", err)
	}
	return u, nil
}

// GetClient shadows ClientDB.GetClient.
func (c *CoreDB) GetClient(ctx context.Context, id string) (*Client, error) {
	ctx, cancel := c.storeContext(ctx)
	defer cancel()
	cl, err := c.ClientDB.GetClient(ctx, id)
	if err != nil {
		if c.ClientDB.IsNotFound(err) {
			return nil, fmt.Errorf("client %s: %w", id, ErrNotFound)
		}
		return nil, storeErr("get client", err)
	}
	return cl, nil
}

// LoginUser shadows UserDB.LoginUser. It returns ErrAuth if mail or password is wrong.
func (c *CoreDB) LoginUser(ctx context.Context, mail, password string) (*User, error) {
	ctx, cancel := c.storeContext(ctx)
	defer cancel()
	u, err := c.UserDB.LoginUser(ctx, mail, password)
	switch {
	case err == nil:
		return u, nil
	case errors.Is(err, ErrAuth):
		return nil, ErrAuth
	default:
		return nil, storeErr("login", err)
	}
}

// SetPassword shadows UserDB.SetPassword.
func (c *CoreDB) SetPassword(ctx context.Context, u *User, password string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	return c.UserDB.SetPassword(ctx, u, password)
}

// InsertUser shadows UserDB.InsertUser.
func (c *CoreDB) InsertUser(ctx context.Context, u *User) error {
	u.Mail = strings.ToLower(strings.TrimSpace(u.Mail))
	if u.Mail == "" {
		return fmt.Errorf("user mail is empty: %w", ErrValidation)
	}
	if !u.Role.Valid() {
		return fmt.Errorf("unknown role %q: %w", u.Role, ErrValidation)
	}
	switch u.Role {
	case ClientRole:
		if u.ClientID == "" {
			return fmt.Errorf("client user %s needs a client: %w", u.Mail, ErrValidation)
		}
		if _, err := c.GetClient(ctx, u.ClientID); err != nil {
			return err
		}
	case AdminRole:
		u.ClientID = ""
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return c.UserDB.InsertUser(ctx, u)
}

// InsertClient shadows ClientDB.InsertClient.
func (c *CoreDB) InsertClient(ctx context.Context, cl *Client) error {
	cl.Name = strings.TrimSpace(cl.Name)
	if cl.Name == "" {
		return fmt.Errorf("client name is empty: %w", ErrValidation)
	}
	if cl.ID == "" {
		cl.ID = uuid.NewString()
	}
	return c.ClientDB.InsertClient(ctx, cl)
}
