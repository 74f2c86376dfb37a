package textutil

import "github.com/mattn/go-runewidth"

// Ellipsis marks text shortened by [Truncate].
const Ellipsis = "..."

// DisplayWidth reports the number of terminal cells text occupies.
func DisplayWidth(text string) int {
	return runewidth.StringWidth(text)
}

// Truncate shortens text to at most maxColumns terminal cells, ending it with
// [Ellipsis]. A maxColumns of zero or less disables truncation. The second
// result reports whether text was shortened.
func Truncate(text string, maxColumns int) (string, bool) {
	if maxColumns <= 0 || len(text) <= maxColumns {
		return text, false
	}
	if DisplayWidth(text) <= maxColumns {
		return text, false
	}
	if maxColumns <= len(Ellipsis) {
		return runewidth.Truncate(text, maxColumns, ""), true
	}
	return runewidth.Truncate(text, maxColumns, Ellipsis), true
}
