package htmltable

import (
	"regexp"
	"strings"
)

// Scoring weights for table candidates.
const (
	rowBonusCap          = 40
	rowBonusWeight       = 0.5
	headerWeight         = 6
	patternStrongBonus   = 24
	patternWeakBonus     = 12
	patternStrongRatio   = 0.25
	patternWeakRatio     = 0.12
	parallelBonusCap     = 10
	parallelRatioWeight  = 20
	vocabularyBonus      = 8
	negativeTokenPenalty = 4
	negativePenaltyCap   = 24
	noiseWeight          = 20
	urlDensityAllowance  = 0.2
	urlDensityWeight     = 40
	maxLabelLength       = 120
	maxCellLength        = 180
)

var (
	cardNumberCell = regexp.MustCompile(`^#?[A-Za-z]{0,6}[-/.]?\d{1,4}[A-Za-z]{0,3}(?:[-/.][A-Za-z0-9]{1,6})?$`)
	labelCell      = regexp.MustCompile(`^[\p{L}][\p{L}\p{M}'’.\- ]*[\p{L}.]$`)
	urlText        = regexp.MustCompile(`(?i)https?://|www\.`)
	priceText      = regexp.MustCompile(`\$\s?\d`)
)

var parallelKeywords = []string{
	"parallel", "refractor", "prizm", "gold", "silver", "holo", "foil", "auto",
	"variation", "numbered", "rainbow", "shimmer", "mojo", "wave", "/99", "/50", "/25", "/10", "1/1",
}

var tableVocabulary = []string{
	"card", "player", "parallel", "team", "set", "rookie", "subset", "print run", "insert", "variation",
}

var tableNegativeTokens = []string{
	"login", "log in", "sign in", "sign up", "cart", "checkout", "price", "shipping",
	"subscribe", "privacy", "terms", "cookie", "menu", "search", "share", "comment",
}

var navigationCells = map[string]bool{
	"home": true, "next": true, "previous": true, "prev": true, "more": true, "menu": true,
	"search": true, "login": true, "sign in": true, "contact": true, "about": true, "share": true,
}

func isCardNumber(s string) bool {
	return len(s) <= 16 && strings.ContainsAny(s, "0123456789") && cardNumberCell.MatchString(s)
}

func isLabel(s string) bool {
	return len(s) >= 3 && len(s) <= maxLabelLength && !urlText.MatchString(s) && labelCell.MatchString(s)
}

func isNoise(c cell) bool {
	lower := strings.ToLower(c.text)
	if len(c.text) > maxCellLength || priceText.MatchString(c.text) {
		return true
	}
	return navigationCells[lower]
}

// scoreTable combines header, shape, vocabulary and noise signals into one score.
func scoreTable(headers []string, strength int, rows [][]cell) float64 {
	n := len(rows)
	rowCount := n
	if rowCount > rowBonusCap {
		rowCount = rowBonusCap
	}
	score := float64(rowCount)*rowBonusWeight + float64(headerWeight*strength)
	if n == 0 {
		return score
	}

	var patternRows, parallelRows, cells, noiseCells, urlCells int
	negHits := 0
	for _, row := range rows {
		hasNumber, hasLabel := false, false
		rowText := make([]string, 0, len(row))
		for _, c := range row {
			cells++
			if isCardNumber(c.text) {
				hasNumber = true
			} else if isLabel(c.text) {
				hasLabel = true
			}
			if isNoise(c) {
				noiseCells++
			}
			if c.hasLink || urlText.MatchString(c.text) {
				urlCells++
			}
			rowText = append(rowText, strings.ToLower(c.text))
		}
		if hasNumber && hasLabel {
			patternRows++
		}
		joined := strings.Join(rowText, " ")
		for _, kw := range parallelKeywords {
			if strings.Contains(joined, kw) {
				parallelRows++
				break
			}
		}
		for _, tok := range tableNegativeTokens {
			if strings.Contains(joined, tok) {
				negHits++
			}
		}
	}

	patternRatio := float64(patternRows) / float64(n)
	switch {
	case patternRatio >= patternStrongRatio:
		score += patternStrongBonus
	case patternRatio >= patternWeakRatio:
		score += patternWeakBonus
	}

	parallelBonus := float64(parallelRows) / float64(n) * parallelRatioWeight
	if parallelBonus > parallelBonusCap {
		parallelBonus = parallelBonusCap
	}
	score += parallelBonus

	headerText := strings.ToLower(strings.Join(headers, " "))
	for _, v := range tableVocabulary {
		if strings.Contains(headerText, v) {
			score += vocabularyBonus
			break
		}
	}

	penalty := negHits * negativeTokenPenalty
	if penalty > negativePenaltyCap {
		penalty = negativePenaltyCap
	}
	score -= float64(penalty)

	if cells > 0 {
		score -= float64(noiseCells) / float64(cells) * noiseWeight
		if density := float64(urlCells) / float64(cells); density > urlDensityAllowance {
			score -= (density - urlDensityAllowance) * urlDensityWeight
		}
	}
	return score
}
