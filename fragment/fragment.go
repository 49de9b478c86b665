// Package fragment defines the canonical in-memory model for extracted page
// content: fragments, pages, and documents. Every pipeline stage consumes and
// produces these values, so the wire format here doubles as the persisted
// per-page JSON schema.
package fragment

// Kind identifies the structural role of a fragment. The set is closed;
// unknown kinds from upstream payloads are preserved verbatim and rendered as
// paragraphs.
type Kind string

const (
	KindHeader     Kind = "header"
	KindParagraph  Kind = "paragraph"
	KindList       Kind = "list"
	KindTable      Kind = "table"
	KindImage      Kind = "image"
	KindCaption    Kind = "caption"
	KindPageHeader Kind = "page_header"
	KindPageFooter Kind = "page_footer"
)

// Rect is a rectangle in page-relative percentage coordinates, all values in
// [0,100]. YStart/YEnd grow downward from the top edge.
type Rect struct {
	XStart float64 `json:"x_start"`
	YStart float64 `json:"y_start"`
	XEnd   float64 `json:"x_end"`
	YEnd   float64 `json:"y_end"`
}

// Valid reports whether the rectangle is non-inverted.
func (r Rect) Valid() bool {
	return r.XEnd >= r.XStart && r.YEnd >= r.YStart
}

// Degenerate reports whether the rectangle carries no usable geometry:
// inverted edges or zero area. Position-dependent logic skips degenerate
// rects rather than erroring.
func (r Rect) Degenerate() bool {
	return !r.Valid() || (r.XEnd == r.XStart && r.YEnd == r.YStart)
}

// Height returns the vertical extent in percentage points.
func (r Rect) Height() float64 { return r.YEnd - r.YStart }

// Formatting carries cosmetic attributes. They never influence structure.
type Formatting struct {
	Bold      bool   `json:"bold,omitempty"`
	Italic    bool   `json:"italic,omitempty"`
	Underline bool   `json:"underline,omitempty"`
	FontSize  string `json:"font_size,omitempty"`
	Alignment string `json:"alignment,omitempty"`
}

// Metadata holds kind-specific attributes.
type Metadata struct {
	Level           int      `json:"level,omitempty"`
	Caption         string   `json:"caption,omitempty"`
	Description     string   `json:"description,omitempty"`
	RowCount        int      `json:"row_count,omitempty"`
	ColumnCount     int      `json:"column_count,omitempty"`
	ImageIndex      int      `json:"image_index,omitempty"`
	ImageType       string   `json:"image_type,omitempty"`
	ListType        string   `json:"list_type,omitempty"`
	PartialContent  bool     `json:"partial_content,omitempty"`
	ConvertedFromKV bool     `json:"converted_from_kv,omitempty"`
	Headers         []string `json:"headers,omitempty"`
	OriginalContent string   `json:"original_content,omitempty"`
}

// Fragment is the atomic unit of extracted content. Content holds plain text
// for textual kinds and serialized table markup for KindTable.
type Fragment struct {
	ID      string `json:"id,omitempty"`
	Order   int    `json:"order"`
	Kind    Kind   `json:"type"`
	Content string `json:"content"`

	Position   Rect       `json:"position"`
	Formatting Formatting `json:"formatting,omitempty"`
	Metadata   Metadata   `json:"metadata,omitempty"`

	// Cross-page continuation links, consumed only by the merger.
	Continuation      bool   `json:"continuation,omitempty"`
	ContinuationOf    string `json:"continuation_of,omitempty"`
	ContinuesNextPage bool   `json:"continues_next_page,omitempty"`

	// Pages lists the page numbers a (possibly merged) fragment spans.
	Pages []int `json:"pages,omitempty"`

	// ImagePath is a resolved asset reference for image fragments. Empty
	// means unresolved; renderers must fall back to the description.
	ImagePath string `json:"image_path,omitempty"`
}

// Clone returns a deep copy. Stages transform copies so that fragments held
// by earlier pipeline views are never aliased.
func (f Fragment) Clone() Fragment {
	out := f
	if f.Pages != nil {
		out.Pages = append([]int(nil), f.Pages...)
	}
	if f.Metadata.Headers != nil {
		out.Metadata.Headers = append([]string(nil), f.Metadata.Headers...)
	}
	return out
}

// IsText reports whether the fragment carries flowing text eligible for
// text-level transforms such as key-value promotion.
func (f Fragment) IsText() bool {
	return f.Kind == KindParagraph || f.Kind == "text"
}

// CloneAll deep-copies a fragment slice.
func CloneAll(in []Fragment) []Fragment {
	if in == nil {
		return nil
	}
	out := make([]Fragment, len(in))
	for i, f := range in {
		out[i] = f.Clone()
	}
	return out
}

// Margins are page margin hints in percentage points.
type Margins struct {
	Top    float64 `json:"margin_top_percent,omitempty"`
	Bottom float64 `json:"margin_bottom_percent,omitempty"`
	Left   float64 `json:"margin_left_percent,omitempty"`
	Right  float64 `json:"margin_right_percent,omitempty"`
}

// Layout carries page-level hints reported by the extraction service.
type Layout struct {
	Columns    int     `json:"columns,omitempty"`
	HasHeader  bool    `json:"has_header,omitempty"`
	HasFooter  bool    `json:"has_footer,omitempty"`
	PageNumber string  `json:"page_number,omitempty"`
	Margins    Margins `json:"margins,omitempty"`
}

// Page is one page's ordered fragment list plus layout hints. A page is
// owned by the pipeline invocation that produced it.
type Page struct {
	Number    int        `json:"page_num"`
	Fragments []Fragment `json:"content_items"`
	Layout    Layout     `json:"layout,omitempty"`

	// Summary is a short textual description carried forward to bias the
	// next page's extraction toward continuation detection.
	Summary string `json:"page_summary,omitempty"`

	// Err records an isolated extraction failure for this page. The page
	// then carries an empty fragment list and the document continues.
	Err string `json:"error,omitempty"`
}

// Clone deep-copies the page.
func (p Page) Clone() Page {
	out := p
	out.Fragments = CloneAll(p.Fragments)
	return out
}

// Document is an ordered page sequence, optionally accompanied by the
// merger's continuation-resolved view. The merged view never replaces the
// per-page lists; both stay available to renderers and diagnostics.
type Document struct {
	Pages []Page

	// Merged is the cross-page merged fragment sequence, nil when the
	// merger did not run.
	Merged []Fragment

	// ByID maps fragment identifiers to their (possibly merged) fragment.
	ByID map[string]*Fragment
}
