// Package backend is the JSON API of the review workflow.
package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/julienschmidt/httprouter"
	"github.com/wansing/schemareview/core"
	"github.com/wansing/schemareview/util"
	"golang.org/x/text/language"
)

var ErrUnauthenticated = errors.New("unauthenticated")

const maxBodySize = 4 << 20

type Backend struct {
	DB       *core.CoreDB
	Sessions *scs.SessionManager
}

// route holds the state of a single request
type route struct {
	*Backend
	w      http.ResponseWriter
	req    *http.Request
	params httprouter.Params
	user   *core.User // nil if not logged in
	lang   language.Tag
}

func (r *route) caller() *core.Caller {
	if r.user == nil {
		return nil
	}
	return r.user.Caller()
}

func (b *Backend) middleware(requireLoggedIn bool, f func(r *route) error) httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, params httprouter.Params) {

		var r = &route{
			Backend: b,
			w:       w,
			req:     req,
			params:  params,
			lang:    util.Language(req.Header.Get("Accept-Language")),
		}

		if err := r.loadUser(); err != nil {
			r.writeError(err)
			return
		}

		if requireLoggedIn && r.user == nil {
			r.writeError(ErrUnauthenticated)
			return
		}

		if err := f(r); err != nil {
			r.writeError(err)
		}
	}
}

// loadUser resolves the session user id. A stale id is removed from the session.
func (r *route) loadUser() error {

	var uid = r.Sessions.GetString(r.req.Context(), "uid")
	if uid == "" {
		return nil
	}

	user, err := r.DB.GetUser(r.req.Context(), uid)
	switch {
	case err == nil:
		r.user = user
		return nil
	case errors.Is(err, core.ErrNotFound):
		r.Sessions.Remove(r.req.Context(), "uid")
		return nil
	default:
		return err
	}
}

func status(err error) int {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrInvalidState), errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden
	case core.Retryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (r *route) writeError(err error) {

	var code = status(err)
	var resp = errorResponse{
		Error:   core.Kind(err),
		Message: err.Error(),
	}

	switch code {
	case http.StatusUnauthorized:
		resp = errorResponse{Error: "unauthenticated"}
	case http.StatusServiceUnavailable:
		log.Printf("%s %s: %v", r.req.Method, r.req.URL.Path, err)
		r.w.Header().Set("Retry-After", "1")
	case http.StatusInternalServerError:
		log.Printf("%s %s: %v", r.req.Method, r.req.URL.Path, err)
		resp.Message = "internal error"
	}

	r.writeJSON(code, resp)
}

func (r *route) writeJSON(code int, v interface{}) {
	r.w.Header().Set("Content-Type", "application/json; charset=utf-8")
	r.w.WriteHeader(code)
	if err := json.NewEncoder(r.w).Encode(v); err != nil {
		log.Printf("could not write response: %v", err)
	}
}

// decode reads the JSON request body into v.
func (r *route) decode(v interface{}) error {
	var dec = json.NewDecoder(io.LimitReader(r.req.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding request: %v: %w", err, core.ErrValidation)
	}
	return nil
}

func NewRouter(b *Backend) http.Handler {

	var router = httprouter.New()

	// public
	router.POST("/api/login", b.middleware(false, login))
	router.POST("/api/logout", b.middleware(false, logout))

	// private
	router.GET("/api/user", b.middleware(true, currentUser))
	router.GET("/api/clients", b.middleware(true, clients))
	router.GET("/api/pages", b.middleware(true, pages))
	router.GET("/api/pages/:id", b.middleware(true, page))
	router.POST("/api/pages/:id/schema", b.middleware(true, saveSchema))
	router.POST("/api/pages/:id/review", b.middleware(true, review))
	router.POST("/api/pages/:id/comments", b.middleware(true, addComment))

	// paths of the former API, page id in the request body
	router.GET("/api/auth/user", b.middleware(true, currentUser))
	router.POST("/api/auth/logout", b.middleware(false, logout))
	router.GET("/api/schema-workflow/pages", b.middleware(true, legacyPages))
	router.POST("/api/schema-workflow/save-schema", b.middleware(true, saveSchema))
	router.POST("/api/schema-workflow/approve-schema", b.middleware(true, review))
	router.POST("/api/schema-workflow/add-comment", b.middleware(true, addComment))

	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var r = &route{w: w, req: req}
		r.writeJSON(http.StatusNotFound, errorResponse{Error: "not_found", Message: "no such endpoint"})
	})

	return router
}
