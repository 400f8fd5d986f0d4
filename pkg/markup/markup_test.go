package markup

import (
	"strings"
	"testing"
)

func TestText(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain", "just text", "just text"},
		{"entities", "Fish &amp; chips", "Fish & chips"},
		{"script dropped", "<p>Hi</p><script>alert('x')</script><p>there</p>", "\nHi\n\nthere\n"},
		{"inline tags", "<b>bold</b> and <i>italic</i>", "bold and italic"},
		{"style dropped", "<style>p{color:red}</style>text", "text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.in); got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSafeHTML(t *testing.T) {
	in := `<p onclick="steal()">Hello <a href="javascript:alert(1)">bad</a> <a href="https://example.com" target="_blank">good</a></p><script>evil()</script><img src=x onerror=y><strong>ok</strong>`
	got := SafeHTML(in)

	for _, banned := range []string{"onclick", "javascript:", "<script", "evil()", "<img", "onerror", "target"} {
		if strings.Contains(got, banned) {
			t.Errorf("output still contains %q: %s", banned, got)
		}
	}
	for _, kept := range []string{"<p>", `<a href="https://example.com">good</a>`, "<strong>ok</strong>"} {
		if !strings.Contains(got, kept) {
			t.Errorf("output lost %q: %s", kept, got)
		}
	}
}

func TestStructure(t *testing.T) {
	doc := `<h1>Title</h1><p>One <a href="/a">link</a></p><h2>Sub</h2><p>Two</p><ul><li>x</li></ul><img src="a.png">`
	o := Structure(doc)
	if o.Headings != 2 || o.Paragraphs != 2 || o.Links != 1 || o.Lists != 1 || o.Images != 1 {
		t.Errorf("unexpected outline %+v", o)
	}
	if (Structure("no markup here") != Outline{}) {
		t.Error("plain text should have an empty outline")
	}
}

func TestClean(t *testing.T) {
	if got := Clean("a\x00b\tc\nd\x1be"); got != "ab\tc\nde" {
		t.Errorf("unexpected %q", got)
	}
}
