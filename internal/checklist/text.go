package checklist

import (
	"strings"

	"github.com/tenkings/setops-ingest/internal/setops"
)

var sectionKeywords = []string{
	"set", "parallel", "insert", "refractor", "autograph", "auto", "rookie", "variation",
	"relic", "prizm", "foil", "holo", "subset", "die-cut", "patch",
	"memorabilia", "numbered", "short print", "base", "signature", "mojo", "shimmer", "wave",
}

var sectionNegativeTokens = []string{
	"price", "shipping", "buy", "sale", "cookie", "subscribe", "login", "log in", "sign up",
	"http", "www.", "copyright", "©", "posted", "comment", "privacy", "advertis", "click",
}

// ParseText extracts checklist rows from line-oriented text such as PDF or page text.
func ParseText(text string) []setops.Record {
	section := DefaultSection
	seen := map[string]bool{}
	var out []setops.Record
	for _, raw := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line := normalizeLine(raw)
		if line == "" || pageMarker.MatchString(line) || rawURL.MatchString(line) {
			continue
		}
		if isSectionHeader(line) {
			section = strings.TrimRight(line, ": ")
			continue
		}
		if isTitleLine(line) {
			continue
		}
		for _, rec := range extractCards(line, section) {
			key := strings.ToLower(rec[FieldCardNumber]) + "|" + strings.ToLower(section) + "|" +
				strings.ToLower(rec[FieldPlayerSeed])
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, rec)
		}
	}
	return out
}

func normalizeLine(raw string) string {
	line := headingPrefix.ReplaceAllString(raw, "")
	line = markdownLink.ReplaceAllString(line, "$1")
	line = mdEscape.ReplaceAllString(line, "$1")
	line = bulletPrefix.ReplaceAllStringFunc(line, func(m string) string {
		if strings.ContainsAny(m, "0123456789") {
			return m
		}
		return ""
	})
	line = emphasis.ReplaceAllString(line, "")
	line = strings.Trim(line, "|")
	return strings.Join(strings.Fields(strings.ReplaceAll(line, "|", " ")), " ")
}

// isSectionHeader reports whether a line names a checklist section rather than a card.
func isSectionHeader(line string) bool {
	if len(line) < 3 || len(line) > 100 {
		return false
	}
	if pageMarker.MatchString(line) {
		return false
	}
	fields := strings.Fields(line)
	if len(fields) > 0 && isCardToken(fields[0]) && len(fields) > 1 {
		return false
	}
	lower := strings.ToLower(line)
	for _, neg := range sectionNegativeTokens {
		if strings.Contains(lower, neg) {
			return false
		}
	}
	for _, kw := range sectionKeywords {
		if containsWord(lower, kw) {
			return true
		}
	}
	return false
}

// isTitleLine reports whether a line names the whole checklist, such as a document cover title.
func isTitleLine(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 || isCardToken(fields[0]) {
		return false
	}
	return containsWord(strings.ToLower(line), "checklist")
}

func containsWord(haystack, word string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		before := start == 0 || !isWordByte(haystack[start-1])
		after := end == len(haystack) || !isWordByte(haystack[end]) || haystack[end] == 's'
		if before && after {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}

// extractCards pulls every (card number, label) pair out of a line.
func extractCards(line, section string) []setops.Record {
	tokens := strings.Fields(line)
	var (
		out   []setops.Record
		card  string
		label []string
	)
	emit := func() {
		if card == "" {
			return
		}
		text := strings.Trim(strings.Join(label, " "), labelTrim+" ")
		if validLabel(text) {
			player, team := splitPlayerTeam(text)
			rec := setops.Record{
				FieldCardNumber: trimCardToken(card),
				FieldPlayerSeed: player,
				FieldParallel:   section,
			}
			if team != "" {
				rec[FieldTeam] = team
			}
			out = append(out, rec)
		}
		card, label = "", nil
	}
	for _, tok := range tokens {
		if isCardToken(tok) {
			emit()
			card = tok
			continue
		}
		if card != "" {
			label = append(label, tok)
		}
	}
	emit()
	if len(out) > 0 {
		return out
	}
	return naiveRow(tokens, section)
}

// naiveRow treats the first token as the card number when it carries a digit.
func naiveRow(tokens []string, section string) []setops.Record {
	if len(tokens) < 2 {
		return nil
	}
	first := trimCardToken(tokens[0])
	if len(first) > maxCardTokenLength || !strings.ContainsAny(first, "0123456789") || isYear(first) || isOrdinal(first) {
		return nil
	}
	text := strings.Trim(strings.Join(tokens[1:], " "), labelTrim+" ")
	if !validLabel(text) {
		return nil
	}
	player, team := splitPlayerTeam(text)
	rec := setops.Record{FieldCardNumber: first, FieldPlayerSeed: player, FieldParallel: section}
	if team != "" {
		rec[FieldTeam] = team
	}
	return []setops.Record{rec}
}
