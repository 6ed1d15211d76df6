package tools

import (
	"strings"
	"testing"
)

func TestHTMLToMarkdown(t *testing.T) {
	html := `<html><head><script>evil()</script><style>.x{}</style></head>
<body>
<nav><a href="/home">Home</a></nav>
<h1>Main Title</h1>
<h2>Section</h2>
<p>A paragraph with <strong>bold</strong> and <em>italic</em> and a
<a href="https://example.com/doc">link</a>.</p>
<pre>code block</pre>
<ul><li>first</li><li>second</li></ul>
<blockquote>quoted line</blockquote>
<footer>copyright</footer>
</body></html>`

	md := htmlToMarkdown(html)

	for _, want := range []string{
		"# Main Title",
		"## Section",
		"**bold**",
		"*italic*",
		"[link](https://example.com/doc)",
		"```\ncode block\n```",
		"- first",
		"- second",
		"> quoted line",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
	for _, reject := range []string{"evil()", ".x{}", "Home", "copyright", "<p>", "<h1>"} {
		if strings.Contains(md, reject) {
			t.Errorf("markdown contains stripped content %q:\n%s", reject, md)
		}
	}
}

func TestHTMLToMarkdown_Entities(t *testing.T) {
	md := htmlToMarkdown("<p>a &amp; b &lt;c&gt; &quot;d&quot;</p>")
	if md != `a & b <c> "d"` {
		t.Errorf("entities = %q", md)
	}
}

func TestHTMLToText(t *testing.T) {
	html := `<html><body>
<header>Site chrome</header>
<h1>Heading</h1>
<p>First paragraph.</p>
<p>Second   paragraph.</p>
<ul><li>item</li></ul>
</body></html>`

	text := htmlToText(html)

	if strings.Contains(text, "Site chrome") {
		t.Errorf("header not stripped:\n%s", text)
	}
	if !strings.Contains(text, "First paragraph.") {
		t.Errorf("paragraph missing:\n%s", text)
	}
	if strings.Contains(text, "  ") {
		t.Errorf("whitespace not collapsed:\n%s", text)
	}
	if strings.Contains(text, "<") {
		t.Errorf("tags remain:\n%s", text)
	}
}

func TestMarkdownToText(t *testing.T) {
	md := "# Title\n\nSome **bold** and `inline code` and a [link](https://example.com).\n\n![diagram](https://example.com/d.png)"
	text := markdownToText(md)

	for _, reject := range []string{"#", "**", "`", "](", "!["} {
		if strings.Contains(text, reject) {
			t.Errorf("text still carries %q:\n%s", reject, text)
		}
	}
	for _, want := range []string{"Title", "bold", "inline code", "link", "diagram"} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q:\n%s", want, text)
		}
	}
}

func TestExtractJSON(t *testing.T) {
	text, extractor := extractJSON([]byte(`{"b":1,"a":[true,null]}`))
	if extractor != "json" {
		t.Fatalf("extractor = %q", extractor)
	}
	if !strings.Contains(text, "  \"a\": [") {
		t.Errorf("not indented:\n%s", text)
	}

	text, extractor = extractJSON([]byte("not json at all"))
	if extractor != "raw" || text != "not json at all" {
		t.Errorf("invalid JSON should pass through raw, got %q/%q", text, extractor)
	}
}

func TestExtractContent_ModeSelection(t *testing.T) {
	html := []byte("<p>hello <b>world</b></p>")

	_, extractor := extractContent(html, "text/html", "markdown")
	if extractor != "html-to-markdown" {
		t.Errorf("markdown mode extractor = %q", extractor)
	}
	_, extractor = extractContent(html, "text/html", "text")
	if extractor != "html-to-text" {
		t.Errorf("text mode extractor = %q", extractor)
	}
	_, extractor = extractContent([]byte("plain"), "text/plain", "markdown")
	if extractor != "raw" {
		t.Errorf("plain extractor = %q", extractor)
	}
	_, extractor = extractContent([]byte("# md"), "text/markdown", "text")
	if extractor != "markdown-to-text" {
		t.Errorf("markdown text-mode extractor = %q", extractor)
	}
}
