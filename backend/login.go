package backend

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/wansing/schemareview/core"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func login(r *route) error {

	var in loginRequest
	if err := r.decode(&in); err != nil {
		return err
	}

	if strings.TrimSpace(in.Email) == "" || in.Password == "" {
		return fmt.Errorf("email and password are required: %w", core.ErrValidation)
	}

	user, err := r.DB.LoginUser(r.req.Context(), in.Email, in.Password)
	if errors.Is(err, core.ErrAuth) {
		return ErrUnauthenticated
	}
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	// prevent session fixation
	if err := r.Sessions.RenewToken(r.req.Context()); err != nil {
		return err
	}
	r.Sessions.Put(r.req.Context(), "uid", user.ID)

	r.user = user
	return currentUser(r)
}

func logout(r *route) error {
	if err := r.Sessions.Destroy(r.req.Context()); err != nil {
		return err
	}
	r.writeJSON(http.StatusOK, map[string]string{"message": "logged out"})
	return nil
}

type userResponse struct {
	*core.User
	ClientName string `json:"client_name,omitempty"`
}

func currentUser(r *route) error {

	var resp = userResponse{
		User: r.user,
	}

	if r.user.ClientID != "" {
		client, err := r.DB.GetClient(r.req.Context(), r.user.ClientID)
		if err != nil {
			return err
		}
		resp.ClientName = client.Name
	}

	r.writeJSON(http.StatusOK, resp)
	return nil
}

func clients(r *route) error {
	all, err := r.DB.GetAllClients(r.req.Context(), r.caller())
	if err != nil {
		return err
	}
	r.writeJSON(http.StatusOK, all)
	return nil
}
