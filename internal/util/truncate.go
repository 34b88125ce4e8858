package util

import (
	"fmt"
	"strings"
)

// DefaultLogMaxLen caps truncated log output at 1KB.
const DefaultLogMaxLen = 1024

// TitleMaxRunes is the maximum length of a derived chat title.
const TitleMaxRunes = 48

// TruncateLog truncates long strings for verbose logging so request bodies do
// not balloon the log file.
func TruncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + fmt.Sprintf("... [truncated, %d bytes total]", len(s))
}

// DeriveTitle builds a chat display name from the first user message:
// whitespace collapsed, rune-safe truncation with an ellipsis.
func DeriveTitle(content string) string {
	title := strings.Join(strings.Fields(content), " ")
	if title == "" {
		return "New Chat"
	}
	runes := []rune(title)
	if len(runes) <= TitleMaxRunes {
		return title
	}
	return strings.TrimSpace(string(runes[:TitleMaxRunes])) + "…"
}
