package fixer

import (
	"regexp"
	"strings"
)

// Numbered-section patterns are the single source of truth for section
// detection; both the reorder pass and hierarchy assignment use them.
var (
	romanSectionRe  = regexp.MustCompile(`^[IVX]+\.`)
	arabicSectionRe = regexp.MustCompile(`^\d+\.`)
)

// IsNumberedSection reports whether the text opens with a numbered-section
// marker: a Roman numeral ("II.") or an Arabic numeral ("3.") followed by a
// period.
func IsNumberedSection(text string) bool {
	t := strings.TrimSpace(text)
	return romanSectionRe.MatchString(t) || arabicSectionRe.MatchString(t)
}

// sectionLevel maps a numbering style to a header hierarchy level: Roman
// sections are level 2, Arabic sections level 3. Zero means no numbering.
func sectionLevel(text string) int {
	t := strings.TrimSpace(text)
	switch {
	case romanSectionRe.MatchString(t):
		return 2
	case arabicSectionRe.MatchString(t):
		return 3
	default:
		return 0
	}
}
