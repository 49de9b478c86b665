// Package render serializes a normalized fragment sequence into a flowing
// HTML document: a genuine reading-order serialization with no absolute
// positioning, rather than a page-faithful reproduction.
package render

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"reflow/fragment"
	"reflow/observability"
)

// Renderer emits HTML from fixed fragment streams.
type Renderer struct {
	// InlineMarkdown runs text content through a markdown pass before
	// emission, for extraction services that mark emphasis and math with
	// markdown conventions. Off by default; plain text is escaped as-is.
	InlineMarkdown bool

	// Title is used for the document <title>.
	Title string

	Log observability.Logger
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithInlineMarkdown enables the inline markdown pass.
func WithInlineMarkdown() Option {
	return func(r *Renderer) { r.InlineMarkdown = true }
}

// WithTitle sets the document title.
func WithTitle(title string) Option {
	return func(r *Renderer) { r.Title = title }
}

// WithLogger sets the renderer's logger.
func WithLogger(log observability.Logger) Option {
	return func(r *Renderer) { r.Log = log }
}

// New returns a Renderer with the given options applied.
func New(opts ...Option) *Renderer {
	r := &Renderer{Title: "Reconstructed Document", Log: observability.NopLogger{}}
	for _, o := range opts {
		o(r)
	}
	return r
}

// SortReadingOrder orders fragments by the extraction service's order hint,
// breaking ties by vertical position. The sort is stable: equal keys keep
// their input order. A new slice is returned.
func SortReadingOrder(items []fragment.Fragment) []fragment.Fragment {
	out := fragment.CloneAll(items)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Position.YStart < out[j].Position.YStart
	})
	return out
}

// RenderFlow serializes fragments in reading order as HTML body content.
// Page header and footer bands are skipped: a logical-document flow has no
// per-page chrome.
func (r *Renderer) RenderFlow(items []fragment.Fragment) string {
	var b strings.Builder
	for _, f := range SortReadingOrder(items) {
		if f.Kind == fragment.KindPageHeader || f.Kind == fragment.KindPageFooter {
			continue
		}
		r.renderFragment(&b, f)
	}
	return b.String()
}

// RenderPageBody serializes one page's fragments including its header and
// footer bands.
func (r *Renderer) RenderPageBody(p fragment.Page) string {
	var b strings.Builder
	for _, f := range SortReadingOrder(p.Fragments) {
		switch f.Kind {
		case fragment.KindPageHeader:
			b.WriteString(`<div class="page-band page-band-top">` + r.inline(f) + "</div>\n")
		case fragment.KindPageFooter:
			b.WriteString(`<div class="page-band page-band-bottom">` + r.inline(f) + "</div>\n")
		default:
			r.renderFragment(&b, f)
		}
	}
	return b.String()
}

// RenderPage wraps one page's body in a standalone HTML document.
func (r *Renderer) RenderPage(p fragment.Page) string {
	title := fmt.Sprintf("Page %d", p.Number)
	return r.document(title, p.Layout, `<div class="page">`+"\n"+r.RenderPageBody(p)+"</div>")
}

// RenderDocument serializes the whole document. When the merged view is
// present it renders the continuation-resolved stream; otherwise each page
// renders in sequence.
func (r *Renderer) RenderDocument(doc fragment.Document) string {
	var body strings.Builder
	if doc.Merged != nil {
		body.WriteString(`<div class="page">` + "\n")
		body.WriteString(r.RenderFlow(doc.Merged))
		body.WriteString("</div>")
	} else {
		for _, p := range doc.Pages {
			fmt.Fprintf(&body, "<div class=\"page\" id=\"page-%d\">\n", p.Number)
			body.WriteString(r.RenderPageBody(p))
			body.WriteString("</div>\n")
		}
	}
	var layout fragment.Layout
	if len(doc.Pages) > 0 {
		layout = doc.Pages[0].Layout
	}
	return r.document(r.Title, layout, body.String())
}

func (r *Renderer) renderFragment(b *strings.Builder, f fragment.Fragment) {
	switch f.Kind {
	case fragment.KindHeader:
		r.renderHeader(b, f)
	case fragment.KindTable:
		r.renderTable(b, f)
	case fragment.KindImage:
		r.renderImage(b, f)
	case fragment.KindList:
		r.renderList(b, f)
	case fragment.KindCaption:
		b.WriteString(`<p class="caption">` + r.inline(f) + "</p>\n")
	default:
		// Paragraphs and unknown kinds render as flowing text.
		align := f.Formatting.Alignment
		if align == "" {
			align = "justify"
		}
		fmt.Fprintf(b, "<p style=\"text-align: %s;\">%s</p>\n", align, r.inline(f))
	}
}

func (r *Renderer) renderHeader(b *strings.Builder, f fragment.Fragment) {
	level := f.Metadata.Level
	if level < 1 {
		level = 1
	}
	if level > 6 {
		level = 6
	}
	align := f.Formatting.Alignment
	if align == "" {
		align = "left"
	}
	fmt.Fprintf(b, "<h%d style=\"text-align: %s;\">%s</h%d>\n", level, align, r.inline(f), level)
}

func (r *Renderer) renderTable(b *strings.Builder, f fragment.Fragment) {
	b.WriteString(`<div class="table-container">` + "\n")
	if f.Metadata.Caption != "" {
		b.WriteString(`<div class="table-caption">` + html.EscapeString(f.Metadata.Caption) + "</div>\n")
	}
	// Table content is already markup; emitted verbatim.
	b.WriteString(f.Content)
	b.WriteString("\n</div>\n")
}

// renderImage emits an embedded reference when a resolved asset path exists
// and a placeholder carrying the extracted description otherwise. Visual
// content is never fabricated.
func (r *Renderer) renderImage(b *strings.Builder, f fragment.Fragment) {
	b.WriteString(`<div class="image-container">` + "\n")
	if f.ImagePath != "" {
		fmt.Fprintf(b, "<img src=%q alt=%q>\n", f.ImagePath, f.Metadata.Description)
	} else {
		b.WriteString(`<div class="image-placeholder" data-unresolved="true">` + "\n")
		b.WriteString(`<p class="image-description">` + html.EscapeString(f.Metadata.Description) + "</p>\n")
		b.WriteString("</div>\n")
	}
	if f.Metadata.Caption != "" {
		b.WriteString(`<p class="image-caption">` + html.EscapeString(f.Metadata.Caption) + "</p>\n")
	}
	b.WriteString("</div>\n")
}

// renderList splits the fragment's text on embedded line breaks into item
// elements.
func (r *Renderer) renderList(b *strings.Builder, f fragment.Fragment) {
	tag := "ul"
	if f.Metadata.ListType == "ordered" {
		tag = "ol"
	}
	fmt.Fprintf(b, "<%s>\n", tag)
	for _, line := range strings.Split(f.Content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		item := f
		item.Content = line
		fmt.Fprintf(b, "<li>%s</li>\n", r.inline(item))
	}
	fmt.Fprintf(b, "</%s>\n", tag)
}

// inline produces the fragment's text as inline HTML: escaped, with every
// embedded newline preserved as an explicit break, wrapped in the cosmetic
// formatting tags. Newlines are never collapsed; that would be a lossy
// transformation of the source record.
func (r *Renderer) inline(f fragment.Fragment) string {
	var content string
	if r.InlineMarkdown {
		content = markdownInline(f.Content)
	} else {
		content = html.EscapeString(f.Content)
	}
	content = strings.ReplaceAll(content, "\n", "<br>\n")

	if f.Formatting.Bold {
		content = "<strong>" + content + "</strong>"
	}
	if f.Formatting.Italic {
		content = "<em>" + content + "</em>"
	}
	if f.Formatting.Underline {
		content = "<u>" + content + "</u>"
	}
	return content
}

func (r *Renderer) document(title string, layout fragment.Layout, body string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	b.WriteString("<meta charset=\"UTF-8\">\n")
	b.WriteString("<title>" + html.EscapeString(title) + "</title>\n")
	b.WriteString(stylesheet(layout))
	b.WriteString("</head>\n<body>\n")
	b.WriteString(body)
	b.WriteString("\n</body>\n</html>\n")
	return b.String()
}

func stylesheet(layout fragment.Layout) string {
	columns := ""
	if layout.Columns > 1 {
		columns = fmt.Sprintf("column-count: %d; column-gap: 0.5in;", layout.Columns)
	}
	return `<style>
body { font-family: Georgia, 'Times New Roman', serif; background: #f5f5f5; line-height: 1.8; color: #333; padding: 20px; }
.page { background: #fff; max-width: 8.5in; margin: 0 auto 20px auto; padding: 1in; box-shadow: 0 2px 15px rgba(0,0,0,0.1); ` + columns + ` }
h1, h2, h3, h4, h5, h6 { margin: 1.5em 0 0.75em; line-height: 1.3; }
p { margin-bottom: 1.2em; }
ul, ol { margin: 0 0 1.2em 2.5em; }
.table-container { margin: 2em 0; overflow-x: auto; }
.table-caption, .image-caption { font-weight: 600; text-align: center; margin-bottom: 0.75em; color: #444; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
thead th { background: #efefef; }
.image-placeholder { border: 1px dashed #aaa; padding: 1em; color: #666; }
.page-band { color: #888; font-size: 0.85em; }
.page-band-top { margin-bottom: 1.5em; }
.page-band-bottom { margin-top: 1.5em; }
.caption { font-style: italic; color: #555; }
</style>
`
}
