package ingest

import (
	"net/url"
	"strings"

	"github.com/tenkings/setops-ingest/internal/setops"
)

// ImportParams describes one operator-initiated import of a discovered source.
type ImportParams struct {
	SetID          string             `json:"setId,omitempty"`
	DatasetType    setops.DatasetType `json:"datasetType"`
	SourceURL      string             `json:"sourceUrl"`
	SourceProvider string             `json:"sourceProvider,omitempty"`
	SourceTitle    string             `json:"sourceTitle,omitempty"`
	ParserVersion  string             `json:"parserVersion,omitempty"`
	DiscoveryQuery string             `json:"discoveryQuery,omitempty"`
	CreatedByID    string             `json:"createdById,omitempty"`
}

// searchEngines are hosts whose pages are never checklist sources.
var searchEngines = []string{
	"duckduckgo.com", "bing.com", "google.com", "search.yahoo.com", "yandex.com", "baidu.com",
}

// searchQueryKeys mark site-search result pages when present on a search-like path.
var searchQueryKeys = []string{"q", "s", "query", "term", "search", "keyword", "searchtext"}

func validateDataset(d setops.DatasetType) error {
	if !d.Valid() {
		return setops.Errorf(setops.KindInput, "datasetType must be %s or %s.",
			setops.DatasetParallelDB, setops.DatasetPlayerWorksheet)
	}
	return nil
}

// parseSourceURL requires an absolute http(s) URL that is not a search results page.
func parseSourceURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", setops.Errorf(setops.KindInput, "sourceUrl is required.")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", setops.Errorf(setops.KindInput, "sourceUrl must be an absolute http(s) URL.")
	}
	if isSearchPage(u) {
		return "", setops.Errorf(setops.KindInput,
			"sourceUrl looks like a search results page. Open the checklist itself and paste its direct URL.")
	}
	return u.String(), nil
}

func isSearchPage(u *url.URL) bool {
	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
	for _, engine := range searchEngines {
		if host == engine || strings.HasSuffix(host, "."+engine) {
			return true
		}
	}
	p := strings.ToLower(u.Path)
	searchPath := false
	for _, seg := range strings.Split(p, "/") {
		if seg == "search" || seg == "results" || strings.HasPrefix(seg, "search.") {
			searchPath = true
			break
		}
	}
	if !searchPath && p != "" && p != "/" {
		return false
	}
	q := u.Query()
	for _, key := range searchQueryKeys {
		if q.Get(key) != "" {
			return true
		}
	}
	return searchPath
}
