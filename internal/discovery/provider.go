package discovery

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/xmlquery"

	"github.com/tenkings/setops-ingest/internal/setops"
)

// Provider names.
const (
	ProviderDuckDuckGo = "duckduckgo"
	ProviderBing       = "bing"
	ProviderSynthetic  = "synthetic"
)

// Default provider endpoints.
const (
	DuckDuckGoEndpoint = "https://html.duckduckgo.com/html/"
	BingEndpoint       = "https://www.bing.com/search"
)

// RawResult is a search hit before relevance filtering.
type RawResult struct {
	Title   string
	URL     string
	Snippet string
}

// Provider runs one search against a web search backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, q string) ([]RawResult, error)
}

// DuckDuckGo scrapes the no-JavaScript DuckDuckGo results page.
type DuckDuckGo struct {
	fetcher  setops.Fetcher
	endpoint string
}

// NewDuckDuckGo builds the provider; an empty endpoint uses DuckDuckGoEndpoint.
func NewDuckDuckGo(f setops.Fetcher, endpoint string) *DuckDuckGo {
	if endpoint == "" {
		endpoint = DuckDuckGoEndpoint
	}
	return &DuckDuckGo{fetcher: f, endpoint: endpoint}
}

// Name implements Provider.
func (d *DuckDuckGo) Name() string { return ProviderDuckDuckGo }

// Search implements Provider.
func (d *DuckDuckGo) Search(ctx context.Context, q string) ([]RawResult, error) {
	resp, err := d.fetcher.Fetch(ctx, setops.FetchRequest{URL: d.endpoint + "?q=" + url.QueryEscape(q)})
	if err != nil {
		return nil, err
	}
	return parseDuckDuckGo(resp.Body)
}

func parseDuckDuckGo(body []byte) ([]RawResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse duckduckgo html: %w", err)
	}
	var out []RawResult
	doc.Find(".result").Each(func(_ int, s *goquery.Selection) {
		if s.HasClass("result--ad") {
			return
		}
		a := s.Find("a.result__a").First()
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		target := unwrapDuckDuckGo(href)
		if target == "" {
			return
		}
		out = append(out, RawResult{
			Title:   collapse(a.Text()),
			URL:     target,
			Snippet: collapse(s.Find(".result__snippet").Text()),
		})
	})
	return out, nil
}

// unwrapDuckDuckGo decodes the /l/?uddg= redirect wrapper and returns an absolute http(s) URL.
func unwrapDuckDuckGo(href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.HasPrefix(u.Path, "/l/") {
		if target := u.Query().Get("uddg"); target != "" {
			if u, err = url.Parse(target); err != nil {
				return ""
			}
		}
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	return u.String()
}

// Bing reads the RSS rendering of Bing web results.
type Bing struct {
	fetcher  setops.Fetcher
	endpoint string
}

// NewBing builds the provider; an empty endpoint uses BingEndpoint.
func NewBing(f setops.Fetcher, endpoint string) *Bing {
	if endpoint == "" {
		endpoint = BingEndpoint
	}
	return &Bing{fetcher: f, endpoint: endpoint}
}

// Name implements Provider.
func (b *Bing) Name() string { return ProviderBing }

// Search implements Provider.
func (b *Bing) Search(ctx context.Context, q string) ([]RawResult, error) {
	resp, err := b.fetcher.Fetch(ctx, setops.FetchRequest{URL: b.endpoint + "?format=rss&q=" + url.QueryEscape(q)})
	if err != nil {
		return nil, err
	}
	return parseBingRSS(resp.Body)
}

func parseBingRSS(body []byte) ([]RawResult, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse bing rss: %w", err)
	}
	var out []RawResult
	for _, item := range xmlquery.Find(doc, "//channel/item") {
		link := elementText(item, "link")
		u, err := url.Parse(link)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		out = append(out, RawResult{
			Title:   collapse(elementText(item, "title")),
			URL:     link,
			Snippet: collapse(elementText(item, "description")),
		})
	}
	return out, nil
}

func elementText(n *xmlquery.Node, name string) string {
	if el := n.SelectElement(name); el != nil {
		return strings.TrimSpace(el.InnerText())
	}
	return ""
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
