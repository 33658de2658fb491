package discovery

import (
	"net/url"
	"strings"

	"github.com/tenkings/setops-ingest/internal/source"
)

// weights are the heuristic ranking constants.
var weights = struct {
	trustedDomain  float64
	blockedDomain  float64
	titleChecklist float64
	urlChecklist   float64
	pdf            float64
	keyword        float64
	year           float64
	manufacturer   float64
	sport          float64
}{
	trustedDomain:  40,
	blockedDomain:  -100,
	titleChecklist: 20,
	urlChecklist:   10,
	pdf:            10,
	keyword:        3,
	year:           10,
	manufacturer:   10,
	sport:          5,
}

// vocabulary is the loose checklist signal.
var vocabulary = []string{
	"checklist", "set list", "card list", "parallel", "insert", "base set",
	"autograph", "rookie", "refractor", "variation", "numbered",
}

// strictVocabulary is the checklist signal required from untrusted domains.
var strictVocabulary = []string{"checklist", "set list", "card list"}

type candidate struct {
	raw    RawResult
	url    *url.URL
	domain string
	text   string
}

func newCandidate(r RawResult) (candidate, bool) {
	u, err := url.Parse(strings.TrimSpace(r.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return candidate{}, false
	}
	u.Fragment = ""
	return candidate{
		raw:    r,
		url:    u,
		domain: source.RegistrableDomain(u.Hostname()),
		text:   strings.ToLower(r.Title + " " + r.Snippet + " " + u.Path),
	}, true
}

func (c candidate) isPDF() bool {
	return strings.HasSuffix(strings.ToLower(c.url.Path), ".pdf")
}

func (c candidate) has(term string) bool {
	return term != "" && strings.Contains(c.text, strings.ToLower(term))
}

func (c candidate) hasAny(terms []string) bool {
	for _, t := range terms {
		if c.has(t) {
			return true
		}
	}
	return false
}

func (c candidate) strictSignal() bool {
	return c.hasAny(strictVocabulary) || c.isPDF()
}

// domainIn reports whether host belongs to one of domains, subdomains included.
func domainIn(host string, domains []string) bool {
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	for _, d := range domains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

type rules struct {
	trusted []string
	blocked []string
}

// relevant applies the blocked, required-domain and trusted/untrusted signal rules.
func (r rules) relevant(c candidate, q Query, v Variant) bool {
	host := c.url.Hostname()
	if domainIn(host, r.blocked) {
		return false
	}
	if v.RequiredDomain != "" && !domainIn(host, []string{v.RequiredDomain}) {
		return false
	}
	if domainIn(host, r.trusted) {
		if !c.hasAny(vocabulary) || !c.strictSignal() {
			return false
		}
		if q.Year == 0 && q.Manufacturer == "" {
			return true
		}
		return c.has(q.yearText()) || c.has(q.Manufacturer)
	}
	if !c.strictSignal() {
		return false
	}
	for _, term := range []string{q.Manufacturer, q.yearText(), q.Sport} {
		if term != "" && !c.has(term) {
			return false
		}
	}
	return true
}

// score ranks a relevant candidate.
func (r rules) score(c candidate, q Query) float64 {
	var s float64
	host := c.url.Hostname()
	if domainIn(host, r.trusted) {
		s += weights.trustedDomain
	}
	if domainIn(host, r.blocked) {
		s += weights.blockedDomain
	}
	if strings.Contains(strings.ToLower(c.raw.Title), "checklist") {
		s += weights.titleChecklist
	}
	if strings.Contains(strings.ToLower(c.url.Path), "checklist") {
		s += weights.urlChecklist
	}
	if c.isPDF() {
		s += weights.pdf
	}
	for _, kw := range vocabulary {
		if c.has(kw) {
			s += weights.keyword
		}
	}
	if c.has(q.yearText()) {
		s += weights.year
	}
	if c.has(q.Manufacturer) {
		s += weights.manufacturer
	}
	if c.has(q.Sport) {
		s += weights.sport
	}
	return s
}
