// Package htmltable finds the checklist table of an HTML page and turns it into records.
package htmltable

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/tenkings/setops-ingest/internal/setops"
)

// MinTableScore is the default score a table needs before its rows are used.
const MinTableScore = 20.0

// Parser scores the tables of a page and extracts the best one.
type Parser struct {
	minScore float64
	policy   *bluemonday.Policy
}

// New creates a Parser; minScore <= 0 selects MinTableScore.
func New(minScore float64) *Parser {
	if minScore <= 0 {
		minScore = MinTableScore
	}
	return &Parser{minScore: minScore, policy: newPolicy()}
}

// Candidate is one scored table.
type Candidate struct {
	Headers        []string
	Rows           [][]string
	HeaderStrength int
	Score          float64
}

// Records maps the candidate's data rows onto its headers.
func (c Candidate) Records() []setops.Record {
	out := make([]setops.Record, 0, len(c.Rows))
	for _, row := range c.Rows {
		rec := setops.Record{}
		for i, cell := range row {
			if cell == "" {
				continue
			}
			key := fmt.Sprintf("column_%d", i+1)
			if i < len(c.Headers) {
				key = c.Headers[i]
			}
			rec[key] = cell
		}
		if len(rec) > 0 {
			out = append(out, rec)
		}
	}
	return out
}

// Parse returns the rows of the highest scoring table, or nil when no table reaches the threshold.
func (p *Parser) Parse(raw string) []setops.Record {
	candidates := p.Candidates(raw)
	if len(candidates) == 0 || candidates[0].Score < p.minScore {
		return nil
	}
	return candidates[0].Records()
}

// Candidates returns every table in the content region, best first (document order on ties).
func (p *Parser) Candidates(raw string) []Candidate {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.Sanitize(raw)))
	if err != nil {
		return nil
	}
	region := contentRegion(doc)
	tables := region.Find("table")
	if tables.Length() == 0 {
		tables = doc.Find("table")
	}
	var out []Candidate
	tables.Each(func(_ int, table *goquery.Selection) {
		if c, ok := buildCandidate(table); ok {
			out = append(out, c)
		}
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

type cell struct {
	text    string
	hasLink bool
}

func buildCandidate(table *goquery.Selection) (Candidate, bool) {
	var rows [][]cell
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if !tr.Closest("table").IsSelection(table) {
			return
		}
		var row []cell
		empty := true
		tr.Children().Filter("td, th").Each(func(_ int, td *goquery.Selection) {
			c := cell{text: cleanText(td.Text()), hasLink: td.Find("a[href]").Length() > 0}
			if c.text != "" {
				empty = false
			}
			row = append(row, c)
		})
		if !empty {
			rows = append(rows, row)
		}
	})
	if len(rows) == 0 {
		return Candidate{}, false
	}

	headerIdx, strength := detectHeader(rows)
	var headers []string
	data := rows
	if headerIdx >= 0 {
		headers = headerNames(rows[headerIdx])
		data = rows[headerIdx+1:]
	} else {
		headers = syntheticHeaders(rows)
	}

	var kept [][]cell
	headerKey := ""
	if headerIdx >= 0 {
		headerKey = rowKey(rows[headerIdx])
	}
	for _, r := range data {
		if headerKey != "" && rowKey(r) == headerKey {
			continue
		}
		kept = append(kept, r)
	}

	c := Candidate{Headers: headers, HeaderStrength: strength}
	for _, r := range kept {
		texts := make([]string, len(r))
		for i, cl := range r {
			texts[i] = cl.text
		}
		c.Rows = append(c.Rows, texts)
	}
	c.Score = scoreTable(headers, strength, kept)
	return c, true
}

func rowKey(row []cell) string {
	parts := make([]string, len(row))
	for i, c := range row {
		parts[i] = strings.ToLower(c.text)
	}
	return strings.Join(parts, "\x1f")
}

// headerCategories are matched against each header cell; a row's strength is the number of distinct hits.
var headerCategories = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(card\s*(#|no\.?|num(ber)?)?|#|no\.?|number|num)$`),
	regexp.MustCompile(`(?i)\b(player|name|athlete|subject|character)s?\b`),
	regexp.MustCompile(`(?i)\b(parallel|variation|insert|subset|version|refractor|print run)s?\b`),
	regexp.MustCompile(`(?i)\b(set|team|club|franchise)s?\b`),
}

func headerStrength(row []cell) int {
	hits := 0
	for _, pattern := range headerCategories {
		for _, c := range row {
			if len(c.text) <= 40 && pattern.MatchString(c.text) {
				hits++
				break
			}
		}
	}
	return hits
}

// detectHeader returns the index of the strongest header among the first three rows, or -1.
func detectHeader(rows [][]cell) (int, int) {
	best, bestStrength := -1, 0
	for i := 0; i < len(rows) && i < 3; i++ {
		if s := headerStrength(rows[i]); s > bestStrength {
			best, bestStrength = i, s
		}
	}
	if bestStrength < 2 {
		return -1, 0
	}
	return best, bestStrength
}

func headerNames(row []cell) []string {
	seen := map[string]int{}
	out := make([]string, len(row))
	for i, c := range row {
		name := c.text
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s_%d", name, n)
		}
		out[i] = name
	}
	return out
}

func syntheticHeaders(rows [][]cell) []string {
	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}
	out := make([]string, width)
	for i := range out {
		out[i] = fmt.Sprintf("column_%d", i+1)
	}
	return out
}
