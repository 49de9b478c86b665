package render

import (
	"bytes"
	"strings"
	"sync"

	treeblood "github.com/wyatt915/goldmark-treeblood"
	"github.com/yuin/goldmark"
)

// The markdown instance is immutable after construction and safe to share.
var (
	mdOnce sync.Once
	md     goldmark.Markdown
)

func markdown() goldmark.Markdown {
	mdOnce.Do(func() {
		md = goldmark.New(
			goldmark.WithExtensions(
				treeblood.MathML(),
			),
		)
	})
	return md
}

// markdownInline converts a text fragment's content through the markdown
// pass, used when the extraction service marks emphasis and TeX math with
// markdown conventions. The block wrapper goldmark adds around a single
// paragraph is stripped so the result stays inline; multi-block input keeps
// its markup as-is.
func markdownInline(text string) string {
	var buf bytes.Buffer
	if err := markdown().Convert([]byte(text), &buf); err != nil {
		// Conversion failure falls back to the raw text; the renderer
		// escapes nothing here because goldmark already did.
		return text
	}
	out := strings.TrimSpace(buf.String())
	if strings.HasPrefix(out, "<p>") && strings.HasSuffix(out, "</p>") && strings.Count(out, "<p>") == 1 {
		out = strings.TrimSuffix(strings.TrimPrefix(out, "<p>"), "</p>")
	}
	return out
}
