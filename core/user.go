package core

import (
	"context"
	"errors"
)

var ErrAuth = errors.New("authentication failed")

var ErrEmptyPassword = errors.New("refusing to set empty password")

type User struct {
	ID       string `json:"id"`
	Mail     string `json:"email"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
	ClientID string `json:"client_id,omitempty"`
}

// Caller returns the caller context of an authenticated user.
func (u *User) Caller() *Caller {
	return &Caller{
		UserID:   u.ID,
		Name:     u.Name,
		Role:     u.Role,
		ClientID: u.ClientID,
	}
}

type UserDB interface {
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByMail(ctx context.Context, mail string) (*User, error)
	InsertUser(ctx context.Context, u *User) error
	LoginUser(ctx context.Context, mail, password string) (*User, error) // ErrAuth if mail or password is wrong
	SetPassword(ctx context.Context, u *User, password string) error
	IsNotFound(err error) bool
}

// A Client is a tenant which owns pages.
type Client struct {
	ID     string `json:"id"`
	Name   string `json:"client_name"`
	Domain string `json:"domain"`
}

type ClientDB interface {
	GetClient(ctx context.Context, id string) (*Client, error)
	GetAllClients(ctx context.Context) ([]*Client, error)
	InsertClient(ctx context.Context, c *Client) error
	IsNotFound(err error) bool
}
