package util

import (
	"gitlab.com/golang-commonmark/markdown"
)

// Comments are written by any caller, so raw HTML is escaped.
var markdownParser *markdown.Markdown = markdown.New(markdown.HTML(false), markdown.Linkify(true), markdown.Typographer(true), markdown.MaxNesting(10))

// Markdown renders CommonMark to HTML.
func Markdown(src string) string {
	return markdownParser.RenderToString([]byte(src))
}
