package service

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

var smartPunctuation = strings.NewReplacer(
	"\u2013", "-", // en dash
	"\u2014", "-", // em dash
	"\u2018", "'",
	"\u2019", "'",
	"\u201C", `"`,
	"\u201D", `"`,
	"\u2026", "...",
	"\u00A0", " ", // nbsp
)

// SanitizePunctuation replaces common typographic punctuation with ASCII.
// Everything else is left as is.
func SanitizePunctuation(s string) string {
	return smartPunctuation.Replace(s)
}

// encodeCoreFont converts s to the single-byte encoding used by the PDF
// core fonts. A rune with no Windows-1252 form is an encoding fault.
func encodeCoreFont(s string) (string, error) {
	out, err := charmap.Windows1252.NewEncoder().String(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncodingFault, err)
	}
	return out, nil
}
