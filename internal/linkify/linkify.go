// Package linkify turns URL-shaped substrings of plain text into external links.
//
// All functions are pure. Markup produces HTML in which text outside links is
// escaped, so PlainText(Markup(x)) == x and linkifying the projection of an
// already linkified string never wraps a link twice.
package linkify

import (
	"html"
	"regexp"
	"strings"

	"mvdan.cc/xurls/v2"
)

// urlPattern matches http and https URLs only. It leaves out trailing
// punctuation and closing brackets without an opening partner.
var urlPattern = mustStrict(`https?://`)

// tagPattern matches the tags Markup emits.
var tagPattern = regexp.MustCompile(`<[^>]*>`)

func mustStrict(scheme string) *regexp.Regexp {
	re, err := xurls.StrictMatchingScheme(scheme)
	if err != nil {
		panic(err)
	}
	return re
}

// Segment is one run of text, either a link or plain text.
type Segment struct {
	Text string
	Link bool
}

// Segments splits raw into plain and link segments, in order.
// Concatenating the Text of every segment yields raw.
func Segments(raw string) []Segment {
	var segs []Segment
	last := 0
	for _, loc := range urlPattern.FindAllStringIndex(raw, -1) {
		start, end := loc[0], loc[1]
		if !hasHost(raw[start:end]) {
			continue
		}
		if start > last {
			segs = append(segs, Segment{Text: raw[last:start]})
		}
		segs = append(segs, Segment{Text: raw[start:end], Link: true})
		last = end
	}
	if last < len(raw) {
		segs = append(segs, Segment{Text: raw[last:]})
	}
	return segs
}

// Markup renders raw as HTML. Every link opens in a new browsing context
// without an opener reference and without sending the referrer.
func Markup(raw string) string {
	var b strings.Builder
	for _, seg := range Segments(raw) {
		escaped := html.EscapeString(seg.Text)
		if !seg.Link {
			b.WriteString(escaped)
			continue
		}
		b.WriteString(`<a href="`)
		b.WriteString(escaped)
		b.WriteString(`" target="_blank" rel="noopener noreferrer">`)
		b.WriteString(escaped)
		b.WriteString(`</a>`)
	}
	return b.String()
}

// PlainText is the text projection of markup produced by Markup.
func PlainText(markup string) string {
	return html.UnescapeString(tagPattern.ReplaceAllString(markup, ""))
}

// hasHost rejects matches such as "https:///path" that name no host.
func hasHost(u string) bool {
	rest := u[strings.Index(u, "://")+3:]
	return rest != "" && !strings.HasPrefix(rest, "/")
}
