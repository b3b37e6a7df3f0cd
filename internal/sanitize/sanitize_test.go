package sanitize

import (
	"strings"
	"testing"
)

func TestHTMLStripsScripts(t *testing.T) {
	got := HTML(`<b>hello</b><script>evil()</script>`)
	if got != "<b>hello</b>" {
		t.Errorf("HTML() = %q; want %q", got, "<b>hello</b>")
	}
}

func TestHTMLDropsJavascriptURLs(t *testing.T) {
	got := HTML(`<img src="javascript:alert(1)">`)
	if strings.Contains(got, "javascript") || strings.Contains(got, "src=") {
		t.Errorf("HTML() kept unsafe src: %q", got)
	}

	got = HTML(`<a href="javascript:alert(1)">x</a>`)
	if strings.Contains(got, "javascript") {
		t.Errorf("HTML() kept unsafe href: %q", got)
	}
}

func TestHTMLStripsEventHandlers(t *testing.T) {
	got := HTML(`<div onclick="evil()">ok</div>`)
	if strings.Contains(got, "onclick") {
		t.Errorf("HTML() kept event handler: %q", got)
	}
	if !strings.Contains(got, "ok") {
		t.Errorf("HTML() dropped safe content: %q", got)
	}
}

func TestHTMLKeepsAllowListedMarkup(t *testing.T) {
	input := `<p style="color:red">Hi</p><a href="https://example.com" target="_blank">link</a>` +
		`<img src="cid:logo" width="10" height="10"><table><tr><td colspan="2">cell</td></tr></table>`
	got := HTML(input)
	for _, want := range []string{`href="https://example.com"`, `src="cid:logo"`, `style="color:red"`, `colspan="2"`} {
		if !strings.Contains(got, want) {
			t.Errorf("HTML() dropped %q; got %q", want, got)
		}
	}
}

func TestTextEscapesAndBreaksLines(t *testing.T) {
	got := Text("1 < 2\nnew line")
	if !strings.Contains(got, "1 &lt; 2") {
		t.Errorf("Text() did not escape markup: %q", got)
	}
	if !strings.Contains(got, "<br>") {
		t.Errorf("Text() did not convert newlines: %q", got)
	}
}

func TestTextNeutralizesEmbeddedMarkup(t *testing.T) {
	got := Text("<script>evil()</script>")
	if strings.Contains(got, "<script>") {
		t.Errorf("Text() produced live markup: %q", got)
	}
}

func TestSnippet(t *testing.T) {
	got := Snippet("<p>Hello   <b>world</b></p>\n<p>again</p>")
	if got != "Hello world again" {
		t.Errorf("Snippet() = %q; want %q", got, "Hello world again")
	}

	long := strings.Repeat("a", 3*SnippetLength)
	if n := len([]rune(Snippet(long))); n > SnippetLength {
		t.Errorf("Snippet() length = %d; want <= %d", n, SnippetLength)
	}

	if got := Snippet(""); got != "" {
		t.Errorf("Snippet(\"\") = %q; want empty", got)
	}
}
