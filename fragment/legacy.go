package fragment

import "fmt"

// LegacyTable is the per-kind table record of the compatibility view.
type LegacyTable struct {
	HTML        string `json:"html"`
	Position    Rect   `json:"position"`
	Caption     string `json:"caption,omitempty"`
	RowCount    int    `json:"row_count,omitempty"`
	ColumnCount int    `json:"column_count,omitempty"`
	Order       int    `json:"order"`
}

// LegacyImage is the per-kind image record of the compatibility view.
type LegacyImage struct {
	Description string   `json:"description,omitempty"`
	Position    Rect     `json:"position"`
	Caption     string   `json:"caption,omitempty"`
	Order       int      `json:"order"`
	ImagePath   string   `json:"image_path,omitempty"`
	Metadata    Metadata `json:"metadata,omitempty"`
}

// LegacyText is the per-kind text record of the compatibility view.
type LegacyText struct {
	Kind       Kind       `json:"type"`
	Content    string     `json:"content"`
	Position   Rect       `json:"position"`
	Formatting Formatting `json:"formatting,omitempty"`
	Level      int        `json:"level,omitempty"`
	Order      int        `json:"order"`
}

// LegacyView partitions a page's fragments into the per-kind lists older
// consumers expect. It is derived on demand and never authoritative.
type LegacyView struct {
	PageNum    int           `json:"page_num"`
	Tables     []LegacyTable `json:"tables"`
	Images     []LegacyImage `json:"images"`
	TextBlocks []LegacyText  `json:"text_blocks"`
	Layout     Layout        `json:"layout,omitempty"`
}

// Legacy builds the backward-compatible per-kind view of the page.
func (p Page) Legacy() LegacyView {
	v := LegacyView{
		PageNum:    p.Number,
		Tables:     []LegacyTable{},
		Images:     []LegacyImage{},
		TextBlocks: []LegacyText{},
		Layout:     p.Layout,
	}
	for _, f := range p.Fragments {
		switch f.Kind {
		case KindTable:
			v.Tables = append(v.Tables, LegacyTable{
				HTML:        f.Content,
				Position:    f.Position,
				Caption:     f.Metadata.Caption,
				RowCount:    f.Metadata.RowCount,
				ColumnCount: f.Metadata.ColumnCount,
				Order:       f.Order,
			})
		case KindImage:
			v.Images = append(v.Images, LegacyImage{
				Description: f.Metadata.Description,
				Position:    f.Position,
				Caption:     f.Metadata.Caption,
				Order:       f.Order,
				ImagePath:   f.ImagePath,
				Metadata:    f.Metadata,
			})
		default:
			v.TextBlocks = append(v.TextBlocks, LegacyText{
				Kind:       f.Kind,
				Content:    f.Content,
				Position:   f.Position,
				Formatting: f.Formatting,
				Level:      f.Metadata.Level,
				Order:      f.Order,
			})
		}
	}
	return v
}

// EnsureIDs assigns a deterministic identifier to every fragment that the
// extraction service left unidentified, so continuation matching never falls
// back to insertion order. The scheme is page<N>_item<order>.
func EnsureIDs(p *Page) {
	for i := range p.Fragments {
		if p.Fragments[i].ID == "" {
			p.Fragments[i].ID = FallbackID(p.Number, p.Fragments[i].Order)
		}
	}
}

// FallbackID is the documented identifier scheme for fragments whose payload
// omitted an id.
func FallbackID(pageNum, order int) string {
	return fmt.Sprintf("page%d_item%d", pageNum, order)
}
