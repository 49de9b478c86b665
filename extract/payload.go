package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"reflow/fragment"
)

// ErrMalformedPayload reports a response that could not be parsed even after
// repair. The pipeline decides whether this degrades the page or aborts the
// run.
var ErrMalformedPayload = errors.New("malformed extraction payload")

// ParsePage decodes an extraction response into a page. Markdown fences are
// stripped first. If decoding fails, one bounded repair pass runs (control
// characters removed, stray backslashes doubled, then single quotes swapped
// for double quotes) and decoding is retried; a second failure returns
// ErrMalformedPayload. Fragments come back sorted by (order, y_start) with
// identifiers filled in.
func ParsePage(raw string, pageNum int) (fragment.Page, error) {
	text := stripFences(raw)

	var page fragment.Page
	if err := json.Unmarshal([]byte(text), &page); err != nil {
		repaired := normalizeEscapes(stripControl(text))
		if second := json.Unmarshal([]byte(repaired), &page); second != nil {
			repaired = strings.ReplaceAll(repaired, "'", `"`)
			if third := json.Unmarshal([]byte(repaired), &page); third != nil {
				return fragment.Page{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
			}
		}
	}

	// The response's own page number is untrusted; the caller knows which
	// image it sent.
	page.Number = pageNum

	sort.SliceStable(page.Fragments, func(i, j int) bool {
		a, b := page.Fragments[i], page.Fragments[j]
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.Position.YStart < b.Position.YStart
	})
	fragment.EnsureIDs(&page)

	return page, nil
}

// stripFences removes a surrounding markdown code fence and any leftover
// fence markers.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	lines = lines[1:]
	if n := len(lines); n > 0 && strings.TrimSpace(lines[n-1]) == "```" {
		lines = lines[:n-1]
	}
	s = strings.Join(lines, "\n")
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// stripControl drops raw control characters, which are invalid inside JSON
// strings. Escaped sequences like \n are two printable bytes and pass
// through untouched.
func stripControl(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || (r >= 0x7f && r <= 0x9f) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// normalizeEscapes doubles backslashes that do not start a valid JSON escape
// sequence, a common model failure on content like file paths and TeX.
func normalizeEscapes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 < len(s) && validEscape(s[i+1]) {
			b.WriteByte(c)
			b.WriteByte(s[i+1])
			i++
			continue
		}
		b.WriteString(`\\`)
	}
	return b.String()
}

func validEscape(c byte) bool {
	switch c {
	case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
		return true
	}
	return false
}
