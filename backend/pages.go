package backend

import (
	"math"
	"net/http"
	"time"

	"github.com/wansing/schemareview/core"
	"github.com/wansing/schemareview/util"
)

type keywordView struct {
	core.Keyword
	Relevance int `json:"relevance"` // 0 to 100
}

type entityView struct {
	core.Entity
	Relevance int `json:"relevance"`
}

type reviewView struct {
	*core.Review
	ReviewedAtText string `json:"reviewed_at_text"`
}

type commentView struct {
	core.Comment
	HTML          string `json:"comment_html"`
	CreatedAtText string `json:"created_at_text"`
}

// pageView shadows some fields of core.Page with presentation variants
type pageView struct {
	*core.Page
	Keywords      []keywordView `json:"keywords"`
	Entities      []entityView  `json:"entities"`
	Review        *reviewView   `json:"review,omitempty"`
	Comments      []commentView `json:"comments"`
	SchemaPretty  string        `json:"schema_pretty"`
	SchemaIsJSON  bool          `json:"schema_is_json"`
	CreatedAtText string        `json:"created_at_text"`
	UpdatedAtText string        `json:"updated_at_text"`
}

func relevance(importance float64) int {
	return int(math.Round(importance * 100))
}

func (r *route) formatTime(t time.Time) string {
	return util.FormatTime(t, r.lang, time.Local)
}

func (r *route) view(p *core.Page) *pageView {

	var v = &pageView{
		Page:          p,
		Keywords:      make([]keywordView, 0, len(p.Keywords)),
		Entities:      make([]entityView, 0, len(p.Entities)),
		Comments:      make([]commentView, 0, len(p.Comments)),
		CreatedAtText: r.formatTime(p.CreatedAt),
		UpdatedAtText: r.formatTime(p.UpdatedAt),
	}

	if p.HasSchema() {
		v.SchemaPretty = util.PrettySchema(p.SchemaBody)
		v.SchemaIsJSON = util.ValidJSON(p.SchemaBody)
	}

	for _, k := range p.Keywords {
		v.Keywords = append(v.Keywords, keywordView{k, relevance(k.Importance)})
	}
	for _, e := range p.Entities {
		v.Entities = append(v.Entities, entityView{e, relevance(e.Importance)})
	}
	if p.Review != nil {
		v.Review = &reviewView{p.Review, r.formatTime(p.Review.ReviewedAt)}
	}
	for _, c := range p.Comments {
		v.Comments = append(v.Comments, commentView{c, util.Markdown(c.Text), r.formatTime(c.CreatedAt)})
	}

	return v
}

type pagesResponse struct {
	Pages  []*pageView `json:"pages"`
	Counts core.Counts `json:"counts"`
	Filter core.Filter `json:"filter"`
}

func (r *route) listPages() (*core.PageList, error) {
	var query = r.req.URL.Query()
	filter, err := core.ParseFilter(query.Get("filter"))
	if err != nil {
		return nil, err
	}
	return r.DB.ListPages(r.req.Context(), r.caller(), filter, query.Get("client"))
}

func pages(r *route) error {

	list, err := r.listPages()
	if err != nil {
		return err
	}

	var resp = pagesResponse{
		Pages:  make([]*pageView, 0, len(list.Pages)),
		Counts: list.Counts,
		Filter: list.Filter,
	}
	for _, p := range list.Pages {
		resp.Pages = append(resp.Pages, r.view(p))
	}

	r.writeJSON(http.StatusOK, resp)
	return nil
}

// legacyPages responds with a plain array of pages.
func legacyPages(r *route) error {
	list, err := r.listPages()
	if err != nil {
		return err
	}
	r.writeJSON(http.StatusOK, list.Pages)
	return nil
}

func page(r *route) error {
	p, err := r.DB.GetPage(r.req.Context(), r.caller(), r.params.ByName("id"))
	if err != nil {
		return err
	}
	r.writeJSON(http.StatusOK, r.view(p))
	return nil
}
