// Package discovery searches public web providers for candidate checklist sources.
package discovery

import (
	"strconv"
	"strings"
	"time"

	"github.com/tenkings/setops-ingest/internal/setops"
)

// Limits applied when a query omits or overshoots them.
const (
	MinYear      = 1900
	DefaultLimit = 12
	MaxLimit     = 30
)

// scopedDomains are searched with a site: restriction before the broad query.
var scopedDomains = []string{"tcdb.com", "cardboardconnection.com", "beckett.com", "checklistinsider.com"}

// Query describes what set the operator is looking for.
type Query struct {
	Year         int    `json:"year,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Sport        string `json:"sport,omitempty"`
	Query        string `json:"query,omitempty"`
	Limit        int    `json:"limit,omitempty"`
}

// Variant is one concrete search string sent to every provider.
type Variant struct {
	Text           string
	RequiredDomain string
}

// Label names the variant in diagnostics.
func (v Variant) Label() string {
	if v.RequiredDomain == "" {
		return "broad"
	}
	return "site:" + v.RequiredDomain
}

// clamp trims text fields and bounds year and limit.
func (q Query) clamp(now time.Time, defaultLimit, maxLimit int) Query {
	q.Manufacturer = strings.Join(strings.Fields(q.Manufacturer), " ")
	q.Sport = strings.Join(strings.Fields(q.Sport), " ")
	q.Query = strings.Join(strings.Fields(q.Query), " ")
	if q.Year != 0 {
		if q.Year < MinYear {
			q.Year = MinYear
		}
		if maxYear := now.Year() + 1; q.Year > maxYear {
			q.Year = maxYear
		}
	}
	if maxLimit <= 0 || maxLimit > MaxLimit {
		maxLimit = MaxLimit
	}
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	return q
}

func (q Query) empty() bool {
	return q.Year == 0 && q.Manufacturer == "" && q.Sport == "" && q.Query == ""
}

func (q Query) yearText() string {
	if q.Year == 0 {
		return ""
	}
	return strconv.Itoa(q.Year)
}

// base joins the query parts and appends "checklist" unless already present.
func (q Query) base() string {
	var parts []string
	for _, p := range []string{q.yearText(), q.Manufacturer, q.Sport, q.Query} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	text := strings.Join(parts, " ")
	if !strings.Contains(strings.ToLower(text), "checklist") {
		text += " checklist"
	}
	return text
}

// variants returns the site-scoped searches followed by the broad search.
func (q Query) variants() []Variant {
	base := q.base()
	out := make([]Variant, 0, len(scopedDomains)+1)
	for _, d := range scopedDomains {
		out = append(out, Variant{Text: base + " site:" + d, RequiredDomain: d})
	}
	return append(out, Variant{Text: base})
}

func validate(q Query) error {
	if q.empty() {
		return setops.Errorf(setops.KindInput, "Provide at least a year, manufacturer, sport or search text.")
	}
	return nil
}
