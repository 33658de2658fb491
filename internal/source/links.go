package source

import (
	"bytes"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"
)

// maxLinkCandidates bounds how many in-page links are followed from one page.
const maxLinkCandidates = 3

// RegistrableDomain returns the eTLD+1 of host, or the host itself when it has none.
func RegistrableDomain(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}

// canonicalURL drops the fragment and lower-cases scheme and host.
func canonicalURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}
	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u.String()
}

func isPDFLink(u *url.URL) bool {
	return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
}

// checklistLinks returns same-site checklist links and direct PDF links found on a page, PDFs first.
func checklistLinks(pageURL string, body []byte) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	site := RegistrableDomain(base.Hostname())
	self := canonicalURL(pageURL)

	type link struct {
		url   string
		pdf   bool
		order int
	}
	seen := map[string]bool{self: true}
	var links []link
	doc.Find("a[href]").Each(func(i int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		canon := canonicalURL(abs.String())
		if seen[canon] {
			return
		}
		pdf := isPDFLink(abs)
		text := strings.ToLower(a.Text() + " " + abs.Path)
		sameSite := RegistrableDomain(abs.Hostname()) == site
		if !pdf && !(sameSite && strings.Contains(text, "checklist")) {
			return
		}
		seen[canon] = true
		links = append(links, link{url: canon, pdf: pdf, order: i})
	})
	sort.SliceStable(links, func(i, j int) bool {
		return links[i].pdf && !links[j].pdf
	})
	out := make([]string, 0, maxLinkCandidates)
	for _, l := range links {
		if len(out) == maxLinkCandidates {
			break
		}
		out = append(out, l.url)
	}
	return out
}
