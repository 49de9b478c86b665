// Package markup implements the table-markup surgery shared by the
// structural fixer and the cross-page merger: row extraction, row splicing,
// and adjacent-table merging. Tables travel through the pipeline as
// serialized HTML, so the operations here parse with x/net/html and splice
// back into the original string to keep untouched markup byte-identical.
package markup

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// CountRows returns the number of table rows (header and body) in the
// serialized table. Malformed markup counts whatever rows the tolerant
// parser recovers.
func CountRows(tableHTML string) int {
	root, err := html.Parse(strings.NewReader(tableHTML))
	if err != nil {
		return 0
	}
	n := 0
	walk(root, func(node *html.Node) {
		if node.Type == html.ElementNode && node.DataAtom == atom.Tr {
			n++
		}
	})
	return n
}

// ColumnCount returns the cell count of the first row, honoring colspan.
func ColumnCount(tableHTML string) int {
	root, err := html.Parse(strings.NewReader(tableHTML))
	if err != nil {
		return 0
	}
	var first *html.Node
	walk(root, func(node *html.Node) {
		if first == nil && node.Type == html.ElementNode && node.DataAtom == atom.Tr {
			first = node
		}
	})
	if first == nil {
		return 0
	}
	cols := 0
	for c := first.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if c.DataAtom != atom.Td && c.DataAtom != atom.Th {
			continue
		}
		span := 1
		for _, a := range c.Attr {
			if a.Key == "colspan" {
				if v := parseSpan(a.Val); v > 1 {
					span = v
				}
			}
		}
		cols += span
	}
	return cols
}

// BodyRows returns the serialized data rows of the table: the children of
// its tbody when one exists, otherwise every row outside thead. The result
// is ready to splice into another table.
func BodyRows(tableHTML string) string {
	root, err := html.Parse(strings.NewReader(tableHTML))
	if err != nil {
		return ""
	}
	var rows []*html.Node
	walk(root, func(node *html.Node) {
		if node.Type != html.ElementNode || node.DataAtom != atom.Tr {
			return
		}
		if ancestorIs(node, atom.Thead) {
			return
		}
		rows = append(rows, node)
	})
	var b strings.Builder
	for _, tr := range rows {
		if err := html.Render(&b, tr); err != nil {
			return ""
		}
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// SpliceRows inserts the continuation table's body rows into the parent
// table, immediately before the parent's closing row group when it has one,
// otherwise before its closing table tag. The parent's own markup is left
// untouched apart from the insertion, so repeated splices remain stable.
func SpliceRows(parent, continuation string) string {
	rows := BodyRows(continuation)
	if rows == "" {
		return parent
	}
	if i := strings.LastIndex(parent, "</tbody>"); i >= 0 {
		return parent[:i] + rows + "\n" + parent[i:]
	}
	if i := strings.LastIndex(parent, "</table>"); i >= 0 {
		return parent[:i] + rows + "\n" + parent[i:]
	}
	// No wrapper at all; treat the parent as a bare row sequence.
	return parent + "\n" + rows
}

// MergeAdjacentTables concatenates two tables split by the extraction
// service: the first table's closing tag is removed, the second's body is
// spliced in as an additional row group, and the first's outer wrapper is
// preserved. Row counts are conserved.
func MergeAdjacentTables(first, second string) string {
	rows := BodyRows(second)
	if rows == "" {
		return first
	}
	body := "<tbody>\n" + rows + "\n</tbody>"
	if i := strings.LastIndex(first, "</table>"); i >= 0 {
		return first[:i] + body + "\n" + first[i:]
	}
	return first + "\n" + body
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func ancestorIs(n *html.Node, a atom.Atom) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.DataAtom == a {
			return true
		}
	}
	return false
}

func parseSpan(s string) int {
	v := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		v = v*10 + int(r-'0')
		if v > 1000 {
			return 0
		}
	}
	return v
}
