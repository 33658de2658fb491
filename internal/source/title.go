package source

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var pdfTitle = regexp.MustCompile(`/Title\s*\(([^)]{1,200})\)`)

// Title returns the document title of an HTML page or the /Title entry of a PDF info dictionary.
func Title(p Payload) string {
	switch {
	case p.isPDF():
		if m := pdfTitle.FindSubmatch(p.Body); m != nil {
			return strings.TrimSpace(string(m[1]))
		}
		return ""
	case p.isHTML():
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.Body))
		if err != nil {
			return ""
		}
		if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
			return strings.Join(strings.Fields(t), " ")
		}
		if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(og) != "" {
			return strings.TrimSpace(og)
		}
		return strings.Join(strings.Fields(doc.Find("h1").First().Text()), " ")
	}
	return ""
}
