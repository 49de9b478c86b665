// Package fixer repairs per-page ordering and hierarchy defects in extracted
// fragment sequences without altering fragment content: tables reordered
// behind their section headings, header levels assigned from numbering
// style, and extractor-split tables merged. All repairs are idempotent.
package fixer

import (
	"math"

	"reflow/fragment"
	"reflow/markup"
	"reflow/observability"
)

// Default policy constants. Both are heuristic tunables, not hard laws: the
// lookahead bounds how far past a table a section heading may trail, and the
// merge gap catches extractor-induced table splits without gluing genuinely
// distinct tables.
const (
	DefaultLookahead     = 2
	DefaultTableMergeGap = 5.0 // percentage points of page height
)

// Fixer applies structural repairs to one page at a time.
type Fixer struct {
	// Lookahead is the number of fragments after a table inspected for a
	// trailing section heading.
	Lookahead int

	// TableMergeGap is the maximum vertical gap, in percentage points,
	// between adjacent tables that still counts as an extractor split.
	TableMergeGap float64

	Log observability.Logger
}

// New returns a Fixer with the default policy.
func New() *Fixer {
	return &Fixer{
		Lookahead:     DefaultLookahead,
		TableMergeGap: DefaultTableMergeGap,
		Log:           observability.NopLogger{},
	}
}

// FixPage applies every repair in order and returns a new page; the input is
// never mutated.
func (x *Fixer) FixPage(p fragment.Page) fragment.Page {
	out := p.Clone()
	out.Fragments = x.ReorderSectionTables(out.Fragments)
	out.Fragments = x.AssignHeaderLevels(out.Fragments)
	out.Fragments = x.MergeSplitTables(out.Fragments)
	return out
}

// ReorderSectionTables moves a numbered section heading in front of the
// table it introduces when the extraction service emitted it after the
// table. Only the bounded lookahead window is inspected; fragments between
// the table and the heading are relocated to sit between heading and table,
// never dropped or duplicated. A table already preceded by a numbered
// heading within the same window is left alone, which keeps the pass
// idempotent.
func (x *Fixer) ReorderSectionTables(items []fragment.Fragment) []fragment.Fragment {
	if len(items) < 2 {
		return fragment.CloneAll(items)
	}
	la := x.Lookahead
	if la <= 0 {
		la = DefaultLookahead
	}

	out := make([]fragment.Fragment, 0, len(items))
	i := 0
	for i < len(items) {
		cur := items[i]
		if cur.Kind != fragment.KindTable || x.sectionPrecedes(out, la) {
			out = append(out, cur.Clone())
			i++
			continue
		}

		headerIdx := -1
		for j := i + 1; j < len(items) && j <= i+la; j++ {
			next := items[j]
			if next.Kind != fragment.KindHeader && next.Kind != fragment.KindParagraph {
				continue
			}
			if IsNumberedSection(next.Content) {
				headerIdx = j
				break
			}
		}

		if headerIdx < 0 {
			out = append(out, cur.Clone())
			i++
			continue
		}

		x.Log.Debug("moving section heading before table",
			observability.Int("table_order", cur.Order),
			observability.Int("header_order", items[headerIdx].Order))

		out = append(out, items[headerIdx].Clone())
		for k := i + 1; k < headerIdx; k++ {
			out = append(out, items[k].Clone())
		}
		out = append(out, cur.Clone())
		i = headerIdx + 1
	}
	return out
}

// sectionPrecedes reports whether one of the last lookahead fragments
// already emitted is a numbered section heading. A table introduced by such
// a heading needs no repair.
func (x *Fixer) sectionPrecedes(emitted []fragment.Fragment, la int) bool {
	for k := len(emitted) - 1; k >= 0 && k >= len(emitted)-la; k-- {
		f := emitted[k]
		if f.Kind != fragment.KindHeader && f.Kind != fragment.KindParagraph {
			continue
		}
		if IsNumberedSection(f.Content) {
			return true
		}
	}
	return false
}

// AssignHeaderLevels sets the hierarchy level of every header from its
// leading numbering style: Roman sections become level 2, Arabic sections
// level 3, anything else keeps its existing level or defaults to 1. Pure
// function of the leading text, independent of position.
func (x *Fixer) AssignHeaderLevels(items []fragment.Fragment) []fragment.Fragment {
	out := fragment.CloneAll(items)
	for i := range out {
		if out[i].Kind != fragment.KindHeader {
			continue
		}
		if lvl := sectionLevel(out[i].Content); lvl != 0 {
			out[i].Metadata.Level = lvl
		} else if out[i].Metadata.Level == 0 {
			out[i].Metadata.Level = 1
		}
	}
	return out
}

// MergeSplitTables glues adjacent table fragments whose vertical gap is
// below TableMergeGap. A run of consecutive in-threshold tables collapses
// into one fragment, so the output never contains an adjacent pair still
// within the threshold. Fragments with degenerate positions are never
// merge candidates.
func (x *Fixer) MergeSplitTables(items []fragment.Fragment) []fragment.Fragment {
	gap := x.TableMergeGap
	if gap <= 0 {
		gap = DefaultTableMergeGap
	}

	out := make([]fragment.Fragment, 0, len(items))
	i := 0
	for i < len(items) {
		cur := items[i].Clone()
		if cur.Kind != fragment.KindTable {
			out = append(out, cur)
			i++
			continue
		}

		j := i + 1
		for j < len(items) && items[j].Kind == fragment.KindTable && x.withinMergeGap(cur, items[j], gap) {
			next := items[j]
			x.Log.Debug("merging adjacent tables",
				observability.Int("first_order", cur.Order),
				observability.Int("second_order", next.Order))
			cur.Content = markup.MergeAdjacentTables(cur.Content, next.Content)
			cur.Position.YEnd = next.Position.YEnd
			cur.Metadata.RowCount = markup.CountRows(cur.Content)
			if cur.Metadata.ColumnCount == 0 {
				cur.Metadata.ColumnCount = next.Metadata.ColumnCount
			}
			j++
		}
		out = append(out, cur)
		i = j
	}
	return out
}

func (x *Fixer) withinMergeGap(a, b fragment.Fragment, gap float64) bool {
	if a.Position.Degenerate() || b.Position.Degenerate() {
		return false
	}
	return math.Abs(b.Position.YStart-a.Position.YEnd) < gap
}
