package randomisation

import (
	"fmt"
	"strconv"
)

// PadWidth is the zero-padding width for total rows: the digit count of
// total, never less than minWidth. It is computed once per schedule so that
// every identifier in it has the same width.
func PadWidth(total, minWidth int) int {
	width := len(strconv.Itoa(total))
	if total <= 0 {
		width = 1
	}
	if width < minWidth {
		width = minWidth
	}
	return width
}

// FormatID renders prefix followed by index zero-padded to width.
func FormatID(prefix string, index, width int) string {
	return fmt.Sprintf("%s%0*d", prefix, width, index)
}
