package merger

import (
	"reflect"
	"strings"
	"testing"

	"reflow/fragment"
	"reflow/markup"
)

func page(num int, frags ...fragment.Fragment) fragment.Page {
	return fragment.Page{Number: num, Fragments: frags}
}

// A table flagged as continuing is extended with the next page's rows; the
// merged fragment keeps the original header row and clears the flag when
// the continuation does not itself continue.
func TestMergeTableContinuation(t *testing.T) {
	parent := fragment.Fragment{
		ID:    "tbl_1",
		Order: 1,
		Kind:  fragment.KindTable,
		Content: `<table><thead><tr><th>Item</th></tr></thead><tbody>
<tr><td>r1</td></tr><tr><td>r2</td></tr></tbody></table>`,
		ContinuesNextPage: true,
		Metadata:          fragment.Metadata{RowCount: 2},
	}
	cont := fragment.Fragment{
		ID:             "tbl_1_cont",
		Order:          1,
		Kind:           fragment.KindTable,
		Content:        `<table><tbody><tr><td>r3</td></tr><tr><td>r4</td></tr><tr><td>r5</td></tr><tr><td>r6</td></tr><tr><td>r7</td></tr></tbody></table>`,
		Continuation:   true,
		ContinuationOf: "tbl_1",
		Metadata:       fragment.Metadata{RowCount: 5},
	}

	res := New().Merge([]fragment.Page{page(1, parent), page(2, cont)})

	if len(res.Items) != 1 {
		t.Fatalf("merged item count = %d, want 1", len(res.Items))
	}
	merged := res.Items[0]
	if got := markup.CountRows(merged.Content); got != 8 { // 1 header + 7 data
		t.Errorf("merged row count = %d, want 8", got)
	}
	if !strings.Contains(merged.Content, "<th>Item</th>") {
		t.Error("header row lost in merge")
	}
	if merged.ContinuesNextPage {
		t.Error("continues flag not cleared")
	}
	if merged.Metadata.RowCount != 7 {
		t.Errorf("row count metadata = %d, want 7", merged.Metadata.RowCount)
	}
	if want := []int{1, 2}; !reflect.DeepEqual(merged.Pages, want) {
		t.Errorf("page span = %v, want %v", merged.Pages, want)
	}
	if res.ByID["tbl_1"] == nil || res.ByID["tbl_1"].Metadata.RowCount != 7 {
		t.Error("identifier lookup does not resolve to merged fragment")
	}
}

func TestMergeParagraphContinuation(t *testing.T) {
	p1 := fragment.Fragment{
		ID:                "para_1",
		Kind:              fragment.KindParagraph,
		Content:           "The agreement remains in force",
		ContinuesNextPage: true,
	}
	p2 := fragment.Fragment{
		ID:             "para_1_cont",
		Kind:           fragment.KindParagraph,
		Content:        "until terminated by either party.",
		Continuation:   true,
		ContinuationOf: "para_1",
	}

	res := New().Merge([]fragment.Page{page(1, p1), page(2, p2)})

	if len(res.Items) != 1 {
		t.Fatalf("item count = %d, want 1", len(res.Items))
	}
	want := "The agreement remains in force until terminated by either party."
	if res.Items[0].Content != want {
		t.Errorf("merged text = %q, want %q", res.Items[0].Content, want)
	}
}

// A continuation spanning three pages keeps folding into the same parent.
func TestMergeThreePageSpan(t *testing.T) {
	mk := func(id, of, text string, continues bool) fragment.Fragment {
		return fragment.Fragment{
			ID: id, Kind: fragment.KindList, Content: text,
			Continuation: of != "", ContinuationOf: of, ContinuesNextPage: continues,
		}
	}
	res := New().Merge([]fragment.Page{
		page(1, mk("lst", "", "one\ntwo", true)),
		page(2, mk("lst_b", "lst", "three", true)),
		page(3, mk("lst_c", "lst", "four", false)),
	})

	if len(res.Items) != 1 {
		t.Fatalf("item count = %d, want 1", len(res.Items))
	}
	got := res.Items[0]
	if got.Content != "one\ntwo three four" {
		t.Errorf("merged list = %q", got.Content)
	}
	if want := []int{1, 2, 3}; !reflect.DeepEqual(got.Pages, want) {
		t.Errorf("page span = %v, want %v", got.Pages, want)
	}
	if got.ContinuesNextPage {
		t.Error("flag should be cleared by final continuation")
	}
}

// An orphan continuation (identifier never seen) is demoted to a standalone
// fragment rather than discarded.
func TestMergeOrphanContinuation(t *testing.T) {
	orphan := fragment.Fragment{
		ID:             "x2",
		Kind:           fragment.KindParagraph,
		Content:        "dangling tail",
		Continuation:   true,
		ContinuationOf: "never_emitted",
	}

	res := New().Merge([]fragment.Page{page(1), page(2, orphan)})

	if len(res.Items) != 1 {
		t.Fatalf("orphan dropped: item count = %d", len(res.Items))
	}
	got := res.Items[0]
	if got.Continuation || got.ContinuationOf != "" {
		t.Errorf("orphan not demoted to standalone: %+v", got)
	}
	if want := []int{2}; !reflect.DeepEqual(got.Pages, want) {
		t.Errorf("orphan page span = %v, want %v", got.Pages, want)
	}
}

func TestMergeAssignsFallbackIDs(t *testing.T) {
	res := New().Merge([]fragment.Page{page(3, fragment.Fragment{Order: 2, Kind: fragment.KindParagraph, Content: "p"})})

	if _, ok := res.ByID["page3_item2"]; !ok {
		t.Errorf("fallback identifier missing from lookup: %v", res.ByID)
	}
}

func TestMergeDoesNotMutateInput(t *testing.T) {
	parent := fragment.Fragment{ID: "a", Kind: fragment.KindParagraph, Content: "start", ContinuesNextPage: true}
	cont := fragment.Fragment{ID: "b", Kind: fragment.KindParagraph, Content: "end", Continuation: true, ContinuationOf: "a"}
	pages := []fragment.Page{page(1, parent), page(2, cont)}

	New().Merge(pages)

	if pages[0].Fragments[0].Content != "start" || pages[0].Fragments[0].Pages != nil {
		t.Errorf("input page mutated: %+v", pages[0].Fragments[0])
	}
}
