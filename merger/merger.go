// Package merger stitches fragments that one logical unit — a table,
// paragraph, or list — spans across consecutive pages. The result is a
// second, page-spanning view of the document; per-page fragment lists are
// left intact so page-faithful consumers keep their guarantees.
package merger

import (
	"reflow/fragment"
	"reflow/markup"
	"reflow/observability"
)

// Merger links continuation fragments to the parents they extend.
type Merger struct {
	Log observability.Logger
}

// New returns a Merger.
func New() *Merger {
	return &Merger{Log: observability.NopLogger{}}
}

// Result is the merged view: the continuation-resolved fragment sequence
// plus a lookup from fragment identifier to its (possibly merged) fragment.
type Result struct {
	Items      []fragment.Fragment
	ByID       map[string]*fragment.Fragment
	TotalPages int
}

// Merge processes pages in order and folds continuation fragments into
// their parents. A continuation whose parent identifier was never seen is
// demoted to a standalone fragment, never dropped. Input pages are not
// mutated.
func (m *Merger) Merge(pages []fragment.Page) Result {
	res := Result{TotalPages: len(pages)}

	// Track items by index; appends reallocate, so pointers are only
	// handed out once the slice is final.
	index := make(map[string]int)

	for _, page := range pages {
		for _, item := range page.Fragments {
			f := item.Clone()
			if f.ID == "" {
				f.ID = fragment.FallbackID(page.Number, f.Order)
			}

			if f.Continuation {
				if i, ok := index[f.ContinuationOf]; ok && f.ContinuationOf != "" {
					m.fold(&res.Items[i], f, page.Number)
					continue
				}
				m.Log.Warn("continuation parent not found, keeping fragment standalone",
					observability.String("id", f.ID),
					observability.String("continuation_of", f.ContinuationOf),
					observability.Int("page", page.Number))
				f.Continuation = false
				f.ContinuationOf = ""
			}

			f.Pages = []int{page.Number}
			res.Items = append(res.Items, f)
			index[f.ID] = len(res.Items) - 1
		}
	}

	res.ByID = make(map[string]*fragment.Fragment, len(res.Items))
	for i := range res.Items {
		res.ByID[res.Items[i].ID] = &res.Items[i]
	}
	return res
}

// fold merges a continuation fragment into its parent: table row groups are
// spliced before the parent's closing tags, text kinds concatenate with a
// single separating space. The parent inherits the continuation's
// continues-next-page flag and extends its page span.
func (m *Merger) fold(parent *fragment.Fragment, cont fragment.Fragment, pageNum int) {
	switch cont.Kind {
	case fragment.KindTable:
		parent.Content = markup.SpliceRows(parent.Content, cont.Content)
		parent.Metadata.RowCount += cont.Metadata.RowCount
	default:
		if cont.Content != "" {
			if parent.Content != "" {
				parent.Content += " "
			}
			parent.Content += cont.Content
		}
	}
	parent.ContinuesNextPage = cont.ContinuesNextPage
	parent.Pages = append(parent.Pages, pageNum)

	m.Log.Debug("merged continuation",
		observability.String("parent", parent.ID),
		observability.Int("page", pageNum),
		observability.Bool("continues", parent.ContinuesNextPage))
}
