package extract

import (
	"fmt"
	"strings"
)

// pagePrompt builds the extraction instruction for one page. When
// prevSummary is non-empty the prompt carries the previous page's summary so
// the service can link content that spans the page boundary.
func pagePrompt(pageNum int, prevSummary string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Analyze this document page (Page %d) and extract ALL content in natural reading order.\n\n", pageNum)

	if prevSummary != "" {
		b.WriteString("CONTEXT FROM PREVIOUS PAGE:\n")
		b.WriteString(prevSummary)
		b.WriteString("\n\nIf content on this page continues from the previous page (a table, paragraph, or list), set \"continuation\": true and \"continuation_of\" to the identifier of the item it continues.\n\n")
	}

	b.WriteString(`REQUIREMENTS:
1. Reading order: top to bottom, left to right. Assign sequential "order" numbers starting at 1. Handle multi-column layouts correctly.
2. Line breaks: preserve line breaks inside text content exactly as they appear, using \n. Never join lines that are visually separate.
3. Tables: emit HTML <table> markup with <thead>/<tbody> where the page shows header rows. Extract exactly the rows visible on THIS page. If the table continues onto the next page, set "continues_next_page": true. Record "row_count" and "column_count" in metadata.
4. Paragraphs and lists: extract text visible on this page. Mark items cut off at the bottom edge with "continues_next_page": true and "partial_content": true.
5. Images, charts, diagrams: do not invent pixel data. Emit type "image" with a detailed "description" in metadata and any visible caption.
6. Headers: record the heading level (1-6) in metadata.
7. Page chrome: running headers and footers use types "page_header" and "page_footer".
8. Position: give each item a bounding box in percent of page dimensions, fields y_start, y_end, x_start, x_end, each 0-100.
9. Identifiers: give each item a unique "id" (stable words, e.g. "ownership_table_p2").

`)
	fmt.Fprintf(&b, `OUTPUT: a single JSON object, no surrounding prose.
{
  "page_num": %d,
  "content_items": [
    {
      "id": "unique_id",
      "order": 1,
      "type": "header|paragraph|table|image|list|caption|page_header|page_footer",
      "content": "...",
      "continuation": false,
      "continuation_of": "",
      "continues_next_page": false,
      "position": {"y_start": 0, "y_end": 0, "x_start": 0, "x_end": 0},
      "formatting": {"bold": false, "italic": false, "alignment": "left"},
      "metadata": {"level": 1, "caption": "", "description": "", "row_count": 0, "column_count": 0, "partial_content": false}
    }
  ],
  "layout": {"columns": 1, "has_header": false, "has_footer": false},
  "page_summary": "Brief summary of this page's main content, for the next page's context"
}`, pageNum)

	return b.String()
}
