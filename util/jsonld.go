package util

import (
	"bytes"
	"encoding/json"
	"strings"

	"golang.org/x/net/html"
)

// PrettySchema indents a schema body. The body can be JSON or HTML with one or more <script type="application/ld+json"> elements.
// If neither works, it returns the body unchanged.
func PrettySchema(body string) string {

	if pretty, ok := indentJSON(body); ok {
		return pretty
	}

	var scripts = LDScripts(body)
	if len(scripts) == 0 {
		return body
	}

	var pretty = make([]string, 0, len(scripts))
	for _, script := range scripts {
		if p, ok := indentJSON(script); ok {
			pretty = append(pretty, p)
		} else {
			pretty = append(pretty, strings.TrimSpace(script))
		}
	}
	return strings.Join(pretty, "\n\n")
}

func indentJSON(s string) (string, bool) {
	var buf = &bytes.Buffer{}
	if err := json.Indent(buf, []byte(strings.TrimSpace(s)), "", "  "); err != nil {
		return "", false
	}
	return buf.String(), true
}

// LDScripts returns the contents of all <script type="application/ld+json"> elements.
func LDScripts(body string) []string {

	tokenizer := html.NewTokenizerFragment(strings.NewReader(body), "body")

	var scripts []string
	var inLD = false

	for {

		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			break // assuming tokenizer.Err() == io.EOF
		}

		switch tt {
		case html.StartTagToken:
			tagName, hasAttr := tokenizer.TagName()
			if string(tagName) != "script" {
				continue
			}
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = tokenizer.TagAttr()
				if string(key) == "type" && strings.EqualFold(strings.TrimSpace(string(val)), "application/ld+json") {
					inLD = true
				}
			}
		case html.TextToken:
			if inLD {
				scripts = append(scripts, string(tokenizer.Text()))
			}
		case html.EndTagToken:
			inLD = false
		}
	}

	return scripts
}

// ValidJSON returns true if s is valid JSON, possibly wrapped into ld+json script elements.
func ValidJSON(s string) bool {
	if json.Valid([]byte(strings.TrimSpace(s))) {
		return true
	}
	var scripts = LDScripts(s)
	for _, script := range scripts {
		if !json.Valid([]byte(strings.TrimSpace(script))) {
			return false
		}
	}
	return len(scripts) > 0
}
