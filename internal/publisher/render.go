package publisher

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/ryosukesatoh/group-digest/internal/summarizer"
)

var (
	markdown = goldmark.New(goldmark.WithExtensions(extension.Linkify, extension.Strikethrough))
	policy   = newPolicy()
)

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

// renderMarkdown converts model output to HTML that is safe to embed. Model
// text is untrusted: it may echo post content verbatim.
func renderMarkdown(md string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return "<pre>" + html.EscapeString(md) + "</pre>"
	}
	return policy.Sanitize(buf.String())
}

func digestTitle(digest *summarizer.Digest) string {
	return fmt.Sprintf("%s Summary", digest.GroupName)
}

func buildHTMLBody(digest *summarizer.Digest) string {
	var sb strings.Builder

	sb.WriteString(`<!DOCTYPE html><html><head><meta charset="utf-8"><style>
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 700px; margin: 0 auto; padding: 20px; color: #333; line-height: 1.5; }
h1 { color: #1a1a2e; border-bottom: 2px solid #1877f2; padding-bottom: 10px; }
h2 { color: #16213e; }
.meta { color: #666; font-size: 0.9em; margin-bottom: 20px; }
.digest li { margin-bottom: 8px; }
.footer { color: #999; font-size: 0.8em; margin-top: 30px; }
</style></head><body>`)

	fmt.Fprintf(&sb, "<h1>%s</h1>", html.EscapeString(digestTitle(digest)))
	fmt.Fprintf(&sb, `<div class="meta">%s &middot; %d new posts</div>`,
		digest.Date.Format("January 2, 2006"), digest.PostCount)

	sb.WriteString(`<div class="digest">`)
	sb.WriteString(renderMarkdown(digest.Markdown))
	sb.WriteString(`</div>`)

	fmt.Fprintf(&sb, `<div class="footer">Summarized by %s</div>`, html.EscapeString(string(digest.Provider)))
	sb.WriteString("</body></html>")
	return sb.String()
}
