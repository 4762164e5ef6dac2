package backend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/wansing/schemareview/core"
)

// pageID returns the page id from the path, or else from the request body field "page_id".
func (r *route) pageID(fromBody string) (string, error) {
	if id := r.params.ByName("id"); id != "" {
		return id, nil
	}
	if id := strings.TrimSpace(fromBody); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("page_id is missing: %w", core.ErrValidation)
}

type schemaRequest struct {
	PageID     string          `json:"page_id"`
	SchemaBody json.RawMessage `json:"schema_body"`
	Version    int64           `json:"version"`
}

// schemaBody accepts a JSON string, which is stored as it is, or any other JSON value, which is stored in its JSON encoding.
func schemaBody(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	return string(raw)
}

func saveSchema(r *route) error {

	var in schemaRequest
	if err := r.decode(&in); err != nil {
		return err
	}

	id, err := r.pageID(in.PageID)
	if err != nil {
		return err
	}

	p, err := r.DB.AuthorSchema(r.req.Context(), r.caller(), id, schemaBody(in.SchemaBody), in.Version)
	if err != nil {
		return err
	}
	r.writeJSON(http.StatusOK, r.view(p))
	return nil
}

type reviewRequest struct {
	PageID  string `json:"page_id"`
	Status  string `json:"status"`
	Notes   string `json:"notes"`
	Version int64  `json:"version"`
}

func review(r *route) error {

	var in reviewRequest
	if err := r.decode(&in); err != nil {
		return err
	}

	id, err := r.pageID(in.PageID)
	if err != nil {
		return err
	}

	decision, err := core.ParseDecision(in.Status)
	if err != nil {
		return err
	}

	p, err := r.DB.ReviewDecision(r.req.Context(), r.caller(), id, decision, in.Notes, in.Version)
	if err != nil {
		return err
	}
	r.writeJSON(http.StatusOK, r.view(p))
	return nil
}

type commentRequest struct {
	PageID  string `json:"page_id"`
	Comment string `json:"comment"`
}

func addComment(r *route) error {

	var in commentRequest
	if err := r.decode(&in); err != nil {
		return err
	}

	id, err := r.pageID(in.PageID)
	if err != nil {
		return err
	}

	p, err := r.DB.AddComment(r.req.Context(), r.caller(), id, in.Comment)
	if err != nil {
		return err
	}
	r.writeJSON(http.StatusOK, r.view(p))
	return nil
}
