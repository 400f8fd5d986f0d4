// Package markup strips and filters HTML using the golang.org/x/net/html
// tokenizer.
package markup

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// dropContent lists elements whose content is never text.
var dropContent = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Iframe:   true,
	atom.Object:   true,
	atom.Embed:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Math:     true,
}

// block elements separate words when their tags are removed.
var block = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Ul: true, atom.Ol: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Blockquote: true, atom.Pre: true, atom.Tr: true, atom.Td: true, atom.Th: true,
	atom.Table: true, atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true,
	atom.Hr: true,
}

// safe is the allowlist kept by SafeHTML. Attributes are dropped except href
// on links.
var safe = map[atom.Atom]bool{
	atom.P: true, atom.Br: true, atom.Strong: true, atom.B: true, atom.Em: true, atom.I: true,
	atom.U: true, atom.Ul: true, atom.Ol: true, atom.Li: true, atom.Blockquote: true,
	atom.Code: true, atom.Pre: true, atom.A: true, atom.Hr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
}

// Text returns the text content of s with tags removed and entities decoded.
// Block-level tags become newlines; script-like elements are dropped with
// their content.
func Text(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	var b strings.Builder
	walk(s, func(tt html.TokenType, tok html.Token, skipping bool) {
		switch tt {
		case html.TextToken:
			if !skipping {
				b.WriteString(tok.Data)
			}
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			if block[tok.DataAtom] {
				b.WriteByte('\n')
			}
		}
	})
	return b.String()
}

// SafeHTML keeps formatting tags from an allowlist, drops every attribute
// except http(s) and relative link targets, and removes script-like
// elements with their content. Text is re-escaped.
func SafeHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	var b strings.Builder
	walk(s, func(tt html.TokenType, tok html.Token, skipping bool) {
		if skipping {
			return
		}
		switch tt {
		case html.TextToken:
			b.WriteString(html.EscapeString(tok.Data))
		case html.StartTagToken, html.SelfClosingTagToken:
			if !safe[tok.DataAtom] {
				return
			}
			b.WriteByte('<')
			b.WriteString(tok.Data)
			if tok.DataAtom == atom.A {
				for _, a := range tok.Attr {
					if a.Key == "href" && safeURL(a.Val) {
						b.WriteString(` href="`)
						b.WriteString(html.EscapeString(a.Val))
						b.WriteByte('"')
					}
				}
			}
			if tt == html.SelfClosingTagToken {
				b.WriteString(" /")
			}
			b.WriteByte('>')
		case html.EndTagToken:
			if safe[tok.DataAtom] {
				b.WriteString("</")
				b.WriteString(tok.Data)
				b.WriteByte('>')
			}
		}
	})
	return b.String()
}

// Outline counts structural elements.
type Outline struct {
	Headings   int
	Paragraphs int
	Links      int
	Images     int
	Lists      int
}

// Structure reports the outline of an HTML document. It returns a zero
// Outline for plain text.
func Structure(s string) Outline {
	var o Outline
	if !strings.Contains(s, "<") {
		return o
	}
	walk(s, func(tt html.TokenType, tok html.Token, skipping bool) {
		if skipping || (tt != html.StartTagToken && tt != html.SelfClosingTagToken) {
			return
		}
		switch tok.DataAtom {
		case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
			o.Headings++
		case atom.P:
			o.Paragraphs++
		case atom.A:
			o.Links++
		case atom.Img:
			o.Images++
		case atom.Ul, atom.Ol:
			o.Lists++
		}
	})
	return o
}

// Clean removes control characters other than newline and tab.
func Clean(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// walk tokenizes s and calls fn for every token, telling it whether the
// token sits inside a dropped element.
func walk(s string, fn func(tt html.TokenType, tok html.Token, skipping bool)) {
	z := html.NewTokenizer(strings.NewReader(s))
	depth := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return
		}
		tok := z.Token()
		switch tt {
		case html.StartTagToken:
			if dropContent[tok.DataAtom] {
				depth++
				continue
			}
		case html.EndTagToken:
			if dropContent[tok.DataAtom] {
				if depth > 0 {
					depth--
				}
				continue
			}
		case html.CommentToken, html.DoctypeToken:
			continue
		}
		fn(tt, tok, depth > 0)
	}
}

func safeURL(u string) bool {
	l := strings.ToLower(strings.TrimSpace(u))
	if strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://") {
		return true
	}
	return !strings.Contains(l, ":") && l != ""
}
