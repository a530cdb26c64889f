package sim

import (
	"bytes"
	"strings"

	gohtml "golang.org/x/net/html"
)

// document is what the simulation understands of a page: its title, its
// inline scripts and its icon link.
type document struct {
	title    string
	hasTitle bool
	scripts  []string
	icon     string
}

func parseDocument(res resource) document {
	var doc document
	if !isHTML(res.mime) {
		return doc
	}

	tokenizer := gohtml.NewTokenizer(bytes.NewReader(res.data))
	var inTitle, inScript bool
	var text strings.Builder
	for {
		tt := tokenizer.Next()
		if tt == gohtml.ErrorToken {
			return doc
		}
		token := tokenizer.Token()

		switch tt {
		case gohtml.StartTagToken, gohtml.SelfClosingTagToken:
			switch token.Data {
			case "title":
				inTitle = tt == gohtml.StartTagToken
				text.Reset()
			case "script":
				inScript = tt == gohtml.StartTagToken && attr(token, "src") == ""
				text.Reset()
			case "link":
				if isIconRel(attr(token, "rel")) && doc.icon == "" {
					doc.icon = attr(token, "href")
				}
			}
		case gohtml.TextToken:
			if inTitle || inScript {
				text.WriteString(token.Data)
			}
		case gohtml.EndTagToken:
			switch {
			case token.Data == "title" && inTitle:
				if !doc.hasTitle {
					doc.title = strings.Join(strings.Fields(text.String()), " ")
					doc.hasTitle = true
				}
				inTitle = false
			case token.Data == "script" && inScript:
				doc.scripts = append(doc.scripts, text.String())
				inScript = false
			}
		}
	}
}

func isHTML(typ string) bool {
	typ, _, _ = strings.Cut(typ, ";")
	typ = strings.TrimSpace(strings.ToLower(typ))
	return typ == "" || typ == "text/html" || typ == "application/xhtml+xml"
}

func isIconRel(rel string) bool {
	for _, f := range strings.Fields(strings.ToLower(rel)) {
		if f == "icon" {
			return true
		}
	}
	return false
}

func attr(t gohtml.Token, key string) string {
	for _, a := range t.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
