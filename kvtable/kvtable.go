// Package kvtable detects free-text fragments that are really a run of
// structurally identical key-value records and promotes them to table
// fragments. Detection is conservative: anything that fails a check passes
// through unchanged, which is "not applicable" rather than an error.
package kvtable

import (
	"html"
	"strings"

	"golang.org/x/text/unicode/norm"

	"reflow/fragment"
	"reflow/observability"
)

// Heuristic defaults carried over from the extraction service's observed
// output. They are policy knobs on the Promoter, not hard-coded truths.
var DefaultSeparators = []string{":", "=", "-", "–", "—"}

const (
	DefaultMinRecords = 2
	DefaultMaxKeyLen  = 50

	// minTextLen filters out fragments too short to hold two records.
	minTextLen = 20
)

// Promoter rewrites eligible text fragments into table fragments.
type Promoter struct {
	// Separators are tried in order when splitting a key-value line.
	Separators []string

	// MinRecords is the minimum number of records required for promotion.
	MinRecords int

	// MaxKeyLen rejects keys at or above this rune count; long "keys" are
	// almost always prose that happens to contain a separator.
	MaxKeyLen int

	Log observability.Logger
}

// New returns a Promoter with the default thresholds.
func New() *Promoter {
	return &Promoter{
		Separators: DefaultSeparators,
		MinRecords: DefaultMinRecords,
		MaxKeyLen:  DefaultMaxKeyLen,
		Log:        observability.NopLogger{},
	}
}

// Record is one parsed key-value record.
type Record map[string]string

// Detect reports whether the text holds at least MinRecords records sharing
// one ordered key set of size two or more, and returns that shared key list.
func (p *Promoter) Detect(text string) (bool, []string) {
	if len(strings.TrimSpace(text)) < minTextLen {
		return false, nil
	}
	records := p.splitRecords(text)
	if len(records) < p.minRecords() {
		return false, nil
	}
	var shared []string
	for i, rec := range records {
		keys := p.recordKeys(rec)
		if len(keys) < 2 {
			return false, nil
		}
		if i == 0 {
			shared = keys
			continue
		}
		if !equalKeys(shared, keys) {
			return false, nil
		}
	}
	return true, shared
}

// Parse returns the shared headers and one Record per detected record.
// Empty results mean the text is not a multi-record block.
func (p *Promoter) Parse(text string) ([]string, []Record) {
	ok, headers := p.Detect(text)
	if !ok {
		return nil, nil
	}
	var out []Record
	for _, rec := range p.splitRecords(text) {
		parsed := Record{}
		for _, line := range strings.Split(rec, "\n") {
			key, value, ok := p.splitLine(line)
			if ok && value != "" {
				parsed[key] = value
			}
		}
		if len(parsed) > 0 {
			out = append(out, parsed)
		}
	}
	return headers, out
}

// Promote rewrites the fragment as a table when its text is a multi-record
// block. Non-text fragments and non-matching text come back unchanged. The
// promoted fragment records its provenance and keeps the original text so
// the transformation stays auditable.
func (p *Promoter) Promote(f fragment.Fragment) fragment.Fragment {
	if !f.IsText() {
		return f
	}
	headers, records := p.Parse(f.Content)
	if len(headers) == 0 || len(records) < p.minRecords() {
		return f
	}

	out := f.Clone()
	out.Kind = fragment.KindTable
	out.Content = buildTable(headers, records)
	out.Metadata.RowCount = len(records)
	out.Metadata.ColumnCount = len(headers)
	out.Metadata.ConvertedFromKV = true
	out.Metadata.Headers = append([]string(nil), headers...)
	out.Metadata.OriginalContent = f.Content

	p.Log.Debug("promoted key-value block to table",
		observability.Int("records", len(records)),
		observability.Int("columns", len(headers)))
	return out
}

// PromotePage applies Promote to every fragment of the page, returning a new
// page.
func (p *Promoter) PromotePage(pg fragment.Page) fragment.Page {
	out := pg.Clone()
	for i := range out.Fragments {
		out.Fragments[i] = p.Promote(out.Fragments[i])
	}
	return out
}

// splitRecords splits text into candidate records at blank lines, falling
// back to the repeated-first-key rule when blank lines yield fewer than two.
func (p *Promoter) splitRecords(text string) []string {
	var records []string
	var current []string
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		if strings.TrimSpace(line) == "" {
			if len(current) > 0 {
				records = append(records, strings.Join(current, "\n"))
				current = nil
			}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		records = append(records, strings.Join(current, "\n"))
	}
	if len(records) >= 2 {
		return records
	}
	return p.splitByRepeatedKey(text)
}

// splitByRepeatedKey starts a new record every time the first recognizable
// key recurs. Used when records are not blank-line separated.
func (p *Promoter) splitByRepeatedKey(text string) []string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) < 4 {
		return nil
	}
	firstKey := ""
	for _, line := range lines {
		if key, _, ok := p.splitLine(line); ok {
			firstKey = key
			break
		}
	}
	if firstKey == "" {
		return nil
	}

	var records []string
	var current []string
	for _, line := range lines {
		key, _, ok := p.splitLine(line)
		if ok && key == firstKey && len(current) > 0 {
			records = append(records, strings.Join(current, "\n"))
			current = []string{line}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		records = append(records, strings.Join(current, "\n"))
	}
	if len(records) < 2 {
		return nil
	}
	return records
}

// splitLine splits a line at the first configured separator. Keys are
// NFC-normalized so visually identical keys compare equal across records.
func (p *Promoter) splitLine(line string) (key, value string, ok bool) {
	line = strings.TrimSpace(line)
	for _, sep := range p.separators() {
		idx := strings.Index(line, sep)
		if idx < 0 {
			continue
		}
		key = strings.TrimSpace(line[:idx])
		value = strings.TrimSpace(line[idx+len(sep):])
		if key == "" || len([]rune(key)) >= p.maxKeyLen() {
			return "", "", false
		}
		return norm.NFC.String(key), value, true
	}
	return "", "", false
}

func (p *Promoter) recordKeys(record string) []string {
	var keys []string
	for _, line := range strings.Split(record, "\n") {
		if key, _, ok := p.splitLine(line); ok {
			keys = append(keys, key)
		}
	}
	return keys
}

// buildTable serializes headers and records as table markup with one header
// row and one row per record. Missing values render as empty cells; values
// are never fabricated. All text is escaped.
func buildTable(headers []string, records []Record) string {
	var b strings.Builder
	b.WriteString("<table>\n<thead>\n<tr>")
	for _, h := range headers {
		b.WriteString("<th>")
		b.WriteString(html.EscapeString(h))
		b.WriteString("</th>")
	}
	b.WriteString("</tr>\n</thead>\n<tbody>\n")
	for _, rec := range records {
		b.WriteString("<tr>")
		for _, h := range headers {
			b.WriteString("<td>")
			b.WriteString(html.EscapeString(rec[h]))
			b.WriteString("</td>")
		}
		b.WriteString("</tr>\n")
	}
	b.WriteString("</tbody>\n</table>")
	return b.String()
}

func equalKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (p *Promoter) separators() []string {
	if len(p.Separators) == 0 {
		return DefaultSeparators
	}
	return p.Separators
}

func (p *Promoter) minRecords() int {
	if p.MinRecords <= 0 {
		return DefaultMinRecords
	}
	return p.MinRecords
}

func (p *Promoter) maxKeyLen() int {
	if p.MaxKeyLen <= 0 {
		return DefaultMaxKeyLen
	}
	return p.MaxKeyLen
}
