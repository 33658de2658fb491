// Package checklist parses checklist rows out of Markdown and free-form text.
package checklist

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultSection labels rows that appear before any section header.
const DefaultSection = "Base Set"

// Record keys emitted by the text parsers.
const (
	FieldCardNumber = "cardNumber"
	FieldPlayerSeed = "playerSeed"
	FieldParallel   = "parallel"
	FieldTeam       = "team"
	FieldDetail     = "detail"
)

const (
	maxCardTokenLength = 16
	maxLabelLength     = 120
	maxLabelWords      = 16
)

var (
	cardTokenPattern = regexp.MustCompile(`^#?(?:[A-Za-z]{1,6}[-.]?)?\d{1,4}[A-Za-z]{0,2}(?:[-/.][A-Za-z0-9]{1,6})*[.):]?$`)
	markdownLink     = regexp.MustCompile(`!?\[([^\]]*)\]\(([^)]*)\)`)
	rawURL           = regexp.MustCompile(`(?i)\bhttps?://\S+|\bwww\.\S+`)
	mdEscape         = regexp.MustCompile(`\\([\\` + "`" + `*_{}\[\]()#+\-.!|~<>])`)
	emphasis         = regexp.MustCompile(`(\*\*|__|\*|~~|` + "`" + `)`)
	bulletPrefix     = regexp.MustCompile(`^\s*(?:[-*+•·▪]|\d+[.)](?:\s|$))\s*`)
	headingPrefix    = regexp.MustCompile(`^\s*#{1,6}\s+`)
	pageMarker       = regexp.MustCompile(`(?i)^(page\s+)?\d+(\s*(of|/)\s*\d+)?$`)
	ordinal          = regexp.MustCompile(`(?i)^\d+(?:st|nd|rd|th)$`)
	labelTrim        = "-–—:|·•,;"
)

// isCardToken reports whether tok is shaped like a card number.
func isCardToken(tok string) bool {
	if len(tok) > maxCardTokenLength || !strings.ContainsAny(tok, "0123456789") {
		return false
	}
	if !cardTokenPattern.MatchString(tok) {
		return false
	}
	trimmed := trimCardToken(tok)
	return !isYear(trimmed) && !isOrdinal(trimmed)
}

// isOrdinal matches tokens such as "1st" and "2nd".
func isOrdinal(tok string) bool {
	return ordinal.MatchString(tok)
}

func isYear(tok string) bool {
	if len(tok) != 4 {
		return false
	}
	n, err := strconv.Atoi(tok)
	return err == nil && n >= 1900 && n <= 2100
}

func trimCardToken(tok string) string {
	return strings.TrimRight(strings.TrimPrefix(tok, "#"), ".):")
}

func hasLetter(s string) bool {
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r > 127 {
			return true
		}
	}
	return false
}

// cleanInline strips Markdown link syntax, emphasis markers and escapes from one line.
func cleanInline(s string) string {
	s = markdownLink.ReplaceAllString(s, "$1")
	s = emphasis.ReplaceAllString(s, "")
	s = mdEscape.ReplaceAllString(s, "$1")
	return strings.Join(strings.Fields(s), " ")
}

var nameSuffixes = map[string]bool{"jr.": true, "jr": true, "sr.": true, "sr": true, "ii": true, "iii": true, "iv": true}

// splitPlayerTeam separates "Player - Team" labels.
func splitPlayerTeam(label string) (string, string) {
	for _, sep := range []string{" - ", " – ", " — ", ", "} {
		if i := strings.Index(label, sep); i > 0 {
			player := strings.TrimSpace(label[:i])
			team := strings.Trim(strings.TrimSpace(label[i+len(sep):]), labelTrim+" ")
			if sep == ", " && nameSuffixes[strings.ToLower(team)] {
				continue
			}
			if hasLetter(player) {
				return player, team
			}
		}
	}
	return label, ""
}

func validLabel(label string) bool {
	if label == "" || len(label) > maxLabelLength || !hasLetter(label) {
		return false
	}
	return len(strings.Fields(label)) <= maxLabelWords
}
