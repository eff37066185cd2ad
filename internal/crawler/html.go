package crawler

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// allowedTags is the set of elements that survive preprocessing.
var allowedTags = []string{"p", "a", "h1", "h2", "h3", "ul", "li", "div", "span", "img"}

// sanitizer is safe for concurrent use once built.
var sanitizer = newSanitizer()

func newSanitizer() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(allowedTags...)
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowURLSchemes("http", "https", "mailto", "tel")
	p.AllowRelativeURLs(true)
	return p
}

// Preprocess extracts the <body> of a page and strips it down to the
// allow-listed tags. Pages without a body are sanitized whole.
func Preprocess(raw []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	body := doc.Find("body").First()
	var inner string
	if body.Length() > 0 {
		inner, err = body.Html()
		if err != nil {
			return "", fmt.Errorf("render body: %w", err)
		}
	} else {
		inner = string(raw)
	}
	return strings.TrimSpace(sanitizer.Sanitize(inner)), nil
}

// ToMarkdown converts cleaned HTML to Markdown. Relative links are made
// absolute against domain so the oracle sees full targets.
func ToMarkdown(cleaned, domain string) (string, error) {
	converter := md.NewConverter(domain, true, nil)
	out, err := converter.ConvertString(cleaned)
	if err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Truncate caps s at max bytes without splitting a UTF-8 sequence. A max of
// zero or less disables truncation.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
