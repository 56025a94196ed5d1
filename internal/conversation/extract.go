// ABOUTME: Pure metadata extraction from free-text message bodies
// ABOUTME: Historical messages carry Subject/Contact lines instead of structured fields

package conversation

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Historical contact-form submissions embed metadata as labeled lines in
// the message body. Extraction is line-oriented and case-insensitive.
var (
	subjectPattern = regexp.MustCompile(`(?im)^\s*subject:\s*(.+)$`)
	contactPattern = regexp.MustCompile(`(?im)^\s*contact:\s*(.+)$`)

	// metadataLine matches any labeled line or dash separator stripped
	// from list previews.
	metadataLine = regexp.MustCompile(`(?i)^\s*(subject:|contact:|e-mail:|phone:|-{3,}\s*$)`)
)

// ExtractSubject returns the text after the first "Subject:" line in the
// body, trimmed. The second return is false when no such line exists.
func ExtractSubject(body string) (string, bool) {
	m := subjectPattern.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// ExtractContactName returns the capitalized name after the first
// "Contact:" line in the body. The second return is false when no such
// line exists or the name is blank.
func ExtractContactName(body string) (string, bool) {
	m := contactPattern.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	name := strings.TrimSpace(m[1])
	if name == "" {
		return "", false
	}
	return Capitalize(name), true
}

// Capitalize uppercases the first rune and lowercases the remainder, so
// "joao SILVA" renders as "Joao silva".
func Capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// Preview returns the first line of the body suitable for a conversation
// list: labeled metadata lines and dash separators at the top are skipped.
// Returns "No message" when nothing readable remains.
func Preview(body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if metadataLine.MatchString(line) {
			continue
		}
		return line
	}
	return "No message"
}
