package markup

import (
	"strings"
	"unicode/utf8"

	"mvdan.cc/xurls/v2"
)

// Taken from https://core.telegram.org/bots/api#html-style.
const htmlSpecialChars = `&<>"`

//nolint:gochecknoglobals // Lookup table meant to be immutable.
var htmlLookup = func() [256]bool {
	var m [256]bool
	for i := range len(htmlSpecialChars) {
		m[htmlSpecialChars[i]] = true
	}
	return m
}()

//nolint:gochecknoglobals // Compiled once, safe for concurrent use.
var urlRe = xurls.Strict()

func EscapeHTML(input string) string {
	charsToEscape := 0

	for i := range len(input) {
		if htmlLookup[input[i]] {
			charsToEscape++
		}
	}

	if charsToEscape == 0 {
		return input
	}

	var b strings.Builder
	b.Grow(len(input) + charsToEscape*5)

	for i := range len(input) {
		switch c := input[i]; c {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		default:
			b.WriteByte(c)
		}
	}

	return b.String()
}

// Linkify renders plain text as Telegram HTML: everything is escaped and
// bare URLs become anchors.
func Linkify(text string) string {
	matches := urlRe.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return EscapeHTML(text)
	}

	var b strings.Builder
	last := 0

	for _, m := range matches {
		b.WriteString(EscapeHTML(text[last:m[0]]))

		u := EscapeHTML(text[m[0]:m[1]])
		b.WriteString(`<a href="`)
		b.WriteString(u)
		b.WriteString(`">`)
		b.WriteString(u)
		b.WriteString(`</a>`)

		last = m[1]
	}
	b.WriteString(EscapeHTML(text[last:]))

	return b.String()
}

// Len counts characters the way Telegram limits are expressed.
func Len(s string) int {
	return utf8.RuneCountInString(s)
}

// Cut returns at most n leading characters of s, never splitting a rune.
func Cut(s string, n int) string {
	if n <= 0 {
		return ""
	}

	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}

	return s
}
