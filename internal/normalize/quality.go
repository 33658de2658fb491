package normalize

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/tenkings/setops-ingest/internal/setops"
)

// Rejection reasons recorded in the histogram.
const (
	ReasonHTMLNoise          = "html_noise"
	ReasonMissingSetID       = "missing_set_id"
	ReasonMissingParallel    = "missing_parallel"
	ReasonParallelTooLong    = "parallel_too_long"
	ReasonParallelPriceShape = "parallel_price_shape"
	ReasonMissingPlayer      = "missing_player"
	ReasonPlayerTooLong      = "player_too_long"
	ReasonInvalidSourceURL   = "invalid_source_url"
)

const (
	maxNoiseLength   = 180
	maxParallelWords = 18
	maxPlayerWords   = 12
)

var (
	priceShape   = regexp.MustCompile(`^\$?\d+(\.\d+)?$`)
	markupTokens = []string{
		"<", ">", "{", "}", "href", "javascript:", "utm_", "onclick", "&nbsp;", "function(", "http://", "https://",
	}
	boilerplatePhrases = []string{
		"click here", "read more", "sign up", "log in", "subscribe", "privacy policy", "terms of service",
		"all rights reserved", "cookie", "add to cart", "shop now", "view all", "related posts",
		"leave a comment", "share this", "skip to content",
	}
)

// Thresholds decide when a parse is too noisy to import.
type Thresholds struct {
	MinAcceptRows  int
	MinAcceptRatio float64
	RatioFloorRows int
}

// DefaultThresholds returns max(3, 10%) acceptance for parses of 20 rows or more.
func DefaultThresholds() Thresholds {
	return Thresholds{MinAcceptRows: 3, MinAcceptRatio: 0.1, RatioFloorRows: 20}
}

func isNoise(v string) bool {
	if v == "" {
		return false
	}
	if len(v) > maxNoiseLength {
		return true
	}
	lower := strings.ToLower(v)
	for _, tok := range markupTokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	for _, phrase := range boilerplatePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func validSourceURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// rejectReason returns the first rule a row violates, or "".
func rejectReason(row setops.NormalizedRow, dataset setops.DatasetType) string {
	if isNoise(row.CardNumber) || isNoise(row.Parallel) || isNoise(row.PlayerSeed) {
		return ReasonHTMLNoise
	}
	if row.SetID == "" {
		return ReasonMissingSetID
	}
	switch dataset {
	case setops.DatasetParallelDB:
		if row.Parallel == "" {
			return ReasonMissingParallel
		}
		if len(strings.Fields(row.Parallel)) > maxParallelWords {
			return ReasonParallelTooLong
		}
		if priceShape.MatchString(row.Parallel) {
			return ReasonParallelPriceShape
		}
	case setops.DatasetPlayerWorksheet:
		if row.PlayerSeed == "" {
			return ReasonMissingPlayer
		}
		if len(strings.Fields(row.PlayerSeed)) > maxPlayerWords {
			return ReasonPlayerTooLong
		}
	}
	if row.SourceURL != "" && !validSourceURL(row.SourceURL) {
		return ReasonInvalidSourceURL
	}
	return ""
}

// Filter splits rows into accepted rows and a rejection-reason histogram.
func Filter(rows []setops.NormalizedRow, dataset setops.DatasetType) ([]setops.NormalizedRow, map[string]int) {
	accepted := make([]setops.NormalizedRow, 0, len(rows))
	reasons := map[string]int{}
	for _, row := range rows {
		if reason := rejectReason(row, dataset); reason != "" {
			reasons[reason]++
			continue
		}
		accepted = append(accepted, row)
	}
	return accepted, reasons
}

// EvaluateAcceptance fails when nothing was accepted or when a large parse kept only a sliver of rows.
func EvaluateAcceptance(parsed, accepted int, t Thresholds) error {
	if accepted == 0 {
		return setops.Errorf(setops.KindQuality,
			"No rows passed quality checks (%d parsed). Check the dataset type or upload a cleaner source.", parsed)
	}
	if parsed < t.RatioFloorRows {
		return nil
	}
	if accepted < t.MinAcceptRows || float64(accepted) <= t.MinAcceptRatio*float64(parsed)+1e-9 {
		return setops.Errorf(setops.KindQuality,
			"Source looks like mostly non-checklist content (%d of %d rows accepted). Paste a direct checklist URL.",
			accepted, parsed)
	}
	return nil
}

// RejectedCount sums a rejection histogram.
func RejectedCount(reasons map[string]int) int {
	total := 0
	for _, n := range reasons {
		total += n
	}
	return total
}

// FormatReasons renders a histogram for log lines.
func FormatReasons(reasons map[string]int) string {
	var parts []string
	for _, reason := range []string{
		ReasonHTMLNoise, ReasonMissingSetID, ReasonMissingParallel, ReasonParallelTooLong,
		ReasonParallelPriceShape, ReasonMissingPlayer, ReasonPlayerTooLong, ReasonInvalidSourceURL,
	} {
		if n := reasons[reason]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", reason, n))
		}
	}
	return strings.Join(parts, ",")
}
