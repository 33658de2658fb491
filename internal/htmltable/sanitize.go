package htmltable

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// newPolicy keeps the structural content of a page and drops page chrome.
func newPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowStandardURLs()
	p.AllowAttrs("href").OnElements("a")
	p.AllowElements(
		"html", "body", "div", "section", "article", "main",
		"table", "thead", "tbody", "tfoot", "tr", "th", "td", "caption",
		"ul", "ol", "li", "dl", "dt", "dd",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"p", "br", "hr", "span", "strong", "em", "b", "i", "u", "small", "sup", "sub",
		"pre", "code", "blockquote",
	)
	p.AllowAttrs("class", "id").OnElements("div", "section", "article", "main", "table")
	p.AllowAttrs("colspan", "rowspan").OnElements("td", "th")
	p.SkipElementsContent(
		"head", "script", "style", "nav", "header", "footer", "form", "noscript",
		"iframe", "svg", "button", "select", "template",
	)
	return p
}

var (
	contentClassPattern = regexp.MustCompile(`(?i)content|entry|post|article|main|checklist`)
	whitespacePattern   = regexp.MustCompile(`\s+`)
)

var regionPositiveTokens = []string{
	"checklist", "base set", "parallel", "insert", "autograph", "rookie",
	"refractor", "numbered", "variation", "relic", "subset", "card #",
}

var regionNegativeTokens = []string{
	"comments", "related posts", "subscribe", "newsletter", "cookie", "advertisement",
	"sponsored", "privacy policy", "sign up", "log in", "add to cart", "shop now",
}

// Sanitize strips scripts, styles, navigation chrome, forms and comments from raw HTML.
func (p *Parser) Sanitize(raw string) string {
	return p.policy.Sanitize(raw)
}

// ContentRegion returns the inner HTML of the most likely content region of the sanitized page.
func (p *Parser) ContentRegion(raw string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.Sanitize(raw)))
	if err != nil {
		return ""
	}
	html, err := contentRegion(doc).Html()
	if err != nil {
		return ""
	}
	return html
}

// contentRegion picks article, then main, then content-class div/section by score; body otherwise.
func contentRegion(doc *goquery.Document) *goquery.Selection {
	var candidates []*goquery.Selection
	doc.Find("article").Each(func(_ int, s *goquery.Selection) { candidates = append(candidates, s) })
	doc.Find("main").Each(func(_ int, s *goquery.Selection) { candidates = append(candidates, s) })
	doc.Find("div, section").Each(func(_ int, s *goquery.Selection) {
		class, _ := s.Attr("class")
		id, _ := s.Attr("id")
		if contentClassPattern.MatchString(class + " " + id) {
			candidates = append(candidates, s)
		}
	})

	var (
		best      *goquery.Selection
		bestScore float64
	)
	for _, c := range candidates {
		score := regionScore(c)
		if best == nil || score > bestScore {
			best, bestScore = c, score
		}
	}
	if best == nil || bestScore <= 0 {
		return doc.Find("body").First()
	}
	return best
}

func regionScore(s *goquery.Selection) float64 {
	text := strings.ToLower(cleanText(s.Text()))
	score := float64(len(text)) / 100
	if score > 40 {
		score = 40
	}
	for _, tok := range regionPositiveTokens {
		if strings.Contains(text, tok) {
			score += 15
		}
	}
	for _, tok := range regionNegativeTokens {
		if strings.Contains(text, tok) {
			score -= 20
		}
	}
	return score
}

func cleanText(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(strings.ReplaceAll(s, "\u00a0", " "), " "))
}
