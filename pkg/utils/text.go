package utils

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	// \p{L}\p{N} keeps CJK text alongside ASCII word characters.
	specialChars = regexp.MustCompile(`[^\p{L}\p{N}_\s.,!?;:()\-]`)
)

// CleanText collapses whitespace and strips characters outside words and basic punctuation.
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	text = whitespaceRun.ReplaceAllString(text, " ")
	text = specialChars.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// GenerateSummary produces a cleaned preview of at most maxLength runes plus an ellipsis.
// The cut backs off to the last space when that space lies past 80% of maxLength.
func GenerateSummary(text string, maxLength int) string {
	if text == "" {
		return ""
	}
	cleaned := CleanText(text)
	if utf8.RuneCountInString(cleaned) <= maxLength {
		return cleaned
	}

	runes := []rune(cleaned)
	truncated := strings.TrimRight(string(runes[:maxLength]), " \t\n")
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace >= 0 {
		if utf8.RuneCountInString(truncated[:lastSpace]) > maxLength*8/10 {
			truncated = truncated[:lastSpace]
		}
	}
	return truncated + "..."
}

// Preview returns the first n runes of text followed by an ellipsis, without cleaning.
func Preview(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text + "..."
	}
	return string([]rune(text)[:n]) + "..."
}

// ContentHash returns the hex md5 digest of content, used for duplicate detection.
func ContentHash(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

// WordCount counts whitespace separated fields.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
