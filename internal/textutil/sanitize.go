package textutil

import "strings"

// Invisible formatting runes that can reorder or hide text in a terminal. They
// are rendered as visible labels instead of being passed through.
var invisibleRuneLabels = map[rune]string{
	0x00AD: "⟪SHY⟫",
	0x061C: "⟪ALM⟫",
	0x180E: "⟪MVS⟫",
	0x200B: "⟪ZWSP⟫",
	0x200C: "⟪ZWNJ⟫",
	0x200D: "⟪ZWJ⟫",
	0x200E: "⟪LRM⟫",
	0x200F: "⟪RLM⟫",
	0x2028: "⟪LSEP⟫",
	0x2029: "⟪PSEP⟫",
	0x202A: "⟪LRE⟫",
	0x202B: "⟪RLE⟫",
	0x202C: "⟪PDF⟫",
	0x202D: "⟪LRO⟫",
	0x202E: "⟪RLO⟫",
	0x2060: "⟪WJ⟫",
	0x2066: "⟪LRI⟫",
	0x2067: "⟪RLI⟫",
	0x2068: "⟪FSI⟫",
	0x2069: "⟪PDI⟫",
	0xFEFF: "⟪BOM⟫",
}

// SanitizeLine makes a matched line safe to print: control characters become
// '?', line breaks become spaces and invisible formatting runes are labelled.
// Tabs are kept. Lines that need no change are returned as-is.
func SanitizeLine(line string) string {
	if !needsSanitizing(line) {
		return line
	}

	var b strings.Builder
	b.Grow(len(line) + 8)
	for _, r := range line {
		if label, ok := invisibleRuneLabels[r]; ok {
			b.WriteString(label)
			continue
		}
		switch {
		case r == '\t':
			b.WriteRune(r)
		case r == '\n' || r == '\r':
			b.WriteByte(' ')
		case r < 0x20 || r == 0x7F:
			b.WriteByte('?')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func needsSanitizing(line string) bool {
	for _, r := range line {
		if r == '\t' {
			continue
		}
		if r < 0x20 || r == 0x7F {
			return true
		}
		if _, ok := invisibleRuneLabels[r]; ok {
			return true
		}
	}
	return false
}
