// Package text holds the small string-processing helpers shared by the
// command surface and the export pipeline: positional reply templating,
// MessageML escaping, markup stripping and archive file-name sanitizing.
package text

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	placeholderRe = regexp.MustCompile(`\{([0-9])\}`)
	tagRe         = regexp.MustCompile(`<[^>]*>`)
	nonWordRe     = regexp.MustCompile(`[^\w]`)
)

// EscapeXML escapes the five XML special characters so user-supplied values
// can be embedded in MessageML replies.
func EscapeXML(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '&':
			b.WriteString("&amp;")
		case '\'':
			b.WriteString("&apos;")
		case '"':
			b.WriteString("&quot;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Render substitutes {0}..{9} placeholders in template with the XML-escaped
// args. Placeholders without a matching argument render as empty strings.
func Render(template string, args ...string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		idx, err := strconv.Atoi(m[1 : len(m)-1])
		if err != nil || idx >= len(args) {
			return ""
		}
		return EscapeXML(args[idx])
	})
}

// StripTags removes markup tags and trims the result, reducing a MessageML
// body to the plain command text the dispatcher parses.
func StripTags(s string) string {
	return strings.TrimSpace(tagRe.ReplaceAllString(s, ""))
}

// SanitizeFileName strips every non-word character from a stream name so it
// can be embedded in an archive entry name.
func SanitizeFileName(s string) string {
	return nonWordRe.ReplaceAllString(s, "")
}
