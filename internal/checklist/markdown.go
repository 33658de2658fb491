package checklist

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tenkings/setops-ingest/internal/setops"
)

// Parser names reported for Markdown sources.
const (
	ParserMarkdownTable     = "markdown-table-v1"
	ParserMarkdownChecklist = "markdown-checklist-v1"
)

var (
	tableSeparator = regexp.MustCompile(`^\s*\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)*\|?\s*$`)
	listItem       = regexp.MustCompile(`^\s*[-*+]\s+(.+)$`)
	cardItem       = regexp.MustCompile(`^#?([A-Za-z0-9]+(?:[-/.][A-Za-z0-9]+)*)[.):]?\s+(.+)$`)
	parallelItem   = regexp.MustCompile(`^([^:]{2,60}):\s*(.+)$`)
)

// ParseMarkdown tries pipe tables first and falls back to heading-tracked lists.
// It returns nil and an empty parser name when neither yields rows.
func ParseMarkdown(text string) ([]setops.Record, string) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if rows := parsePipeTables(lines); len(rows) > 0 {
		return rows, ParserMarkdownTable
	}
	if rows := parseLists(lines); len(rows) > 0 {
		return rows, ParserMarkdownChecklist
	}
	return nil, ""
}

func splitPipeRow(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	parts := strings.Split(line, "|")
	for i, p := range parts {
		parts[i] = cleanInline(p)
	}
	return parts
}

func parsePipeTables(lines []string) []setops.Record {
	var out []setops.Record
	for i := 0; i+1 < len(lines); i++ {
		if !strings.Contains(lines[i], "|") || !tableSeparator.MatchString(lines[i+1]) {
			continue
		}
		headers := dedupeHeaders(splitPipeRow(lines[i]))
		j := i + 2
		for ; j < len(lines); j++ {
			line := strings.TrimSpace(lines[j])
			if line == "" || !strings.Contains(line, "|") {
				break
			}
			cells := splitPipeRow(line)
			rec := setops.Record{}
			for k, c := range cells {
				if c == "" {
					continue
				}
				key := fmt.Sprintf("column_%d", k+1)
				if k < len(headers) {
					key = headers[k]
				}
				rec[key] = c
			}
			if len(rec) > 0 {
				out = append(out, rec)
			}
		}
		i = j - 1
	}
	return out
}

func dedupeHeaders(cells []string) []string {
	seen := map[string]int{}
	out := make([]string, len(cells))
	for i, c := range cells {
		name := c
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

func parseLists(lines []string) []setops.Record {
	var out []setops.Record
	section := DefaultSection
	for _, line := range lines {
		if headingPrefix.MatchString(line) {
			if h := cleanInline(headingPrefix.ReplaceAllString(line, "")); h != "" {
				section = h
			}
			continue
		}
		m := listItem.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		raw := m[1]
		if looksLikeSearchResult(raw) {
			continue
		}
		item := cleanInline(raw)
		if rec, ok := cardListItem(item, section); ok {
			out = append(out, rec)
			continue
		}
		if pm := parallelItem.FindStringSubmatch(item); pm != nil {
			name := strings.TrimSpace(pm[1])
			detail := strings.TrimSpace(pm[2])
			if hasLetter(name) && detail != "" {
				out = append(out, setops.Record{FieldParallel: name, FieldDetail: detail, "section": section})
			}
		}
	}
	return out
}

func cardListItem(item, section string) (setops.Record, bool) {
	m := cardItem.FindStringSubmatch(item)
	if m == nil {
		return nil, false
	}
	card := m[1]
	if len(card) > maxCardTokenLength || !strings.ContainsAny(card, "0123456789") || isYear(card) || isOrdinal(card) {
		return nil, false
	}
	label := strings.Trim(strings.TrimSpace(m[2]), labelTrim+" ")
	if !validLabel(label) {
		return nil, false
	}
	player, team := splitPlayerTeam(label)
	rec := setops.Record{FieldCardNumber: card, FieldPlayerSeed: player, FieldParallel: section}
	if team != "" {
		rec[FieldTeam] = team
	}
	return rec, true
}

// looksLikeSearchResult flags bare links and items that carry raw URLs.
func looksLikeSearchResult(raw string) bool {
	if rawURL.MatchString(markdownLink.ReplaceAllString(raw, "$1")) {
		return true
	}
	trimmed := strings.TrimSpace(raw)
	if loc := markdownLink.FindStringIndex(trimmed); loc != nil && loc[0] == 0 && loc[1] == len(trimmed) {
		m := markdownLink.FindStringSubmatch(trimmed)
		return strings.HasPrefix(m[2], "http")
	}
	return false
}
