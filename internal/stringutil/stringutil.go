// Package stringutil provides common string manipulation utilities shared by
// the CLI, TUI and report rendering.
package stringutil

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Truncate shortens a string to maxLen runes with ellipsis.
// Uses rune count for proper UTF-8 handling.
// If maxLen < 4, returns the string unchanged (no room for ellipsis).
func Truncate(s string, maxLen int) string {
	if maxLen < 4 {
		return s
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen-3]) + "..."
}

// Pluralize renders "n noun", adding "s" (or "es" after a sibilant) when
// n != 1. Only regular nouns are supported; that covers everything we label.
func Pluralize(n int, noun string) string {
	s := strconv.Itoa(n) + " " + noun
	if n == 1 {
		return s
	}
	if strings.HasSuffix(noun, "s") || strings.HasSuffix(noun, "x") ||
		strings.HasSuffix(noun, "ch") || strings.HasSuffix(noun, "sh") {
		return s + "es"
	}
	return s + "s"
}
