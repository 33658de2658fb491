// Package normalize maps parsed records onto canonical checklist rows and filters them for quality.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/tenkings/setops-ingest/internal/setops"
)

// Canonical fields recognised by the alias table.
const (
	FieldSetID      = setops.KeySetID
	FieldCardNumber = setops.KeyCardNumber
	FieldParallel   = setops.KeyParallel
	FieldPlayerSeed = setops.KeyPlayerSeed
	FieldListingID  = setops.KeyListingID
	FieldSourceURL  = setops.KeySourceURL
)

// fuzzyMinAlias is the shortest alias allowed to match by prefix or suffix.
const fuzzyMinAlias = 4

const maxKeyLength = 80

// aliases lists, per canonical field, the source keys that may carry its value in priority order.
var aliases = map[string][]string{
	FieldSetID: {
		"setId", "set_id", "set", "setName", "set name", "product", "release",
	},
	FieldCardNumber: {
		"cardNumber", "card_number", "card #", "card no", "card", "number", "no", "#", "num", "card_num",
	},
	FieldParallel: {
		"parallel", "parallelName", "parallel name", "variation", "insert", "subset", "version", "section",
	},
	FieldPlayerSeed: {
		"playerSeed", "player", "playerName", "player name", "name", "athlete", "subject",
	},
	FieldListingID: {
		"listingId", "listing_id", "listing", "item id", "itemId",
	},
	FieldSourceURL: {
		"sourceUrl", "source_url", "url", "link", "source",
	},
}

// guardedAliases are generic keys a field claims only when the value has the expected shape.
var guardedAliases = map[string]map[string]func(string) bool{
	FieldSourceURL: {"link": validSourceURL, "source": validSourceURL},
}

var fieldOrder = []string{FieldSetID, FieldCardNumber, FieldParallel, FieldPlayerSeed, FieldListingID, FieldSourceURL}

// NormalizeLabel applies NFKC, collapses whitespace and trims.
func NormalizeLabel(s string) string {
	s = norm.NFKC.String(s)
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

func normalizeKey(k string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(k) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		} else if r == '#' {
			sb.WriteString("number")
		}
	}
	return sb.String()
}

// safeKey rejects keys that are too long or carry markup characters.
func safeKey(k string) bool {
	return k != "" && len(k) <= maxKeyLength && !strings.ContainsAny(k, "<>=")
}

type matcher func(key, alias string) bool

func exactMatch(key, alias string) bool {
	return key == alias
}

func normalizedMatch(key, alias string) bool {
	return normalizeKey(key) == normalizeKey(alias)
}

func fuzzyMatch(key, alias string) bool {
	na := normalizeKey(alias)
	if len(na) < fuzzyMinAlias {
		return false
	}
	nk := normalizeKey(key)
	return nk != na && (strings.HasPrefix(nk, na) || strings.HasSuffix(nk, na))
}

// resolve maps each canonical field to the record key carrying it.
// Tiers run exact, then normalized, then fuzzy; a key claimed by one field is not reused.
func resolve(rec setops.Record, keys []string) map[string]string {
	out := make(map[string]string, len(fieldOrder))
	claimed := map[string]bool{}
	for _, match := range []matcher{exactMatch, normalizedMatch, fuzzyMatch} {
		for _, field := range fieldOrder {
			if _, done := out[field]; done {
				continue
			}
		aliasLoop:
			for _, alias := range aliases[field] {
				for _, k := range keys {
					if claimed[k] || strings.TrimSpace(rec[k]) == "" || !match(k, alias) {
						continue
					}
					if guard, ok := guardedAliases[field][alias]; ok && !guard(strings.TrimSpace(rec[k])) {
						continue
					}
					out[field] = k
					claimed[k] = true
					break aliasLoop
				}
			}
		}
	}
	return out
}

func safeKeys(rec setops.Record) []string {
	keys := make([]string, 0, len(rec))
	for _, k := range rec.Keys() {
		if safeKey(k) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Options carries job-level fallbacks applied to every row.
type Options struct {
	SetID     string
	SourceURL string
}

// Rows maps parsed records onto canonical rows.
func Rows(records []setops.Record, opts Options) []setops.NormalizedRow {
	out := make([]setops.NormalizedRow, 0, len(records))
	fallbackSet := NormalizeLabel(opts.SetID)
	for i, rec := range records {
		keys := safeKeys(rec)
		matched := resolve(rec, keys)
		values := make(map[string]string, len(fieldOrder))
		for _, f := range fieldOrder {
			if k, ok := matched[f]; ok {
				values[f] = strings.TrimSpace(rec[k])
			}
		}
		fields := make(setops.Record, len(keys))
		for _, k := range keys {
			fields[k] = strings.TrimSpace(rec[k])
		}
		setID := NormalizeLabel(values[FieldSetID])
		if setID == "" {
			setID = fallbackSet
		}
		sourceURL := values[FieldSourceURL]
		if sourceURL == "" {
			sourceURL = strings.TrimSpace(opts.SourceURL)
		}
		out = append(out, setops.NormalizedRow{
			Index:      i,
			SetID:      setID,
			CardNumber: NormalizeLabel(values[FieldCardNumber]),
			Parallel:   NormalizeLabel(values[FieldParallel]),
			PlayerSeed: NormalizeLabel(values[FieldPlayerSeed]),
			ListingID:  values[FieldListingID],
			SourceURL:  sourceURL,
			Fields:     fields,
		})
	}
	return out
}

// SetIDFromRecords returns the most common set value across records, first seen on ties.
func SetIDFromRecords(records []setops.Record) string {
	counts := map[string]int{}
	var order []string
	for _, rec := range records {
		k, ok := resolve(rec, safeKeys(rec))[FieldSetID]
		if !ok {
			continue
		}
		v := NormalizeLabel(rec[k])
		if v == "" {
			continue
		}
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}
	best := ""
	for _, v := range order {
		if counts[v] > counts[best] {
			best = v
		}
	}
	return best
}

// SetIDFromTitle derives a set name from a page or document title.
func SetIDFromTitle(title string) string {
	t := NormalizeLabel(title)
	for _, sep := range []string{" | ", " - ", " – ", " — "} {
		if i := strings.Index(t, sep); i > 0 {
			t = t[:i]
		}
	}
	words := strings.Fields(t)
	kept := words[:0]
	for _, w := range words {
		lw := strings.ToLower(strings.Trim(w, ":,."))
		if lw == "checklist" || lw == "checklists" {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Trim(strings.Join(kept, " "), " :-,")
}

// InferSetID picks the set from the rows, then the explicit parameter, then the title.
func InferSetID(records []setops.Record, param, title string) string {
	if v := SetIDFromRecords(records); v != "" {
		return v
	}
	if v := NormalizeLabel(param); v != "" {
		return v
	}
	return SetIDFromTitle(title)
}
