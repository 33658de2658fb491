// Package source detects the format of a fetched or uploaded checklist source and parses it into records.
package source

import (
	"bytes"
	"net/url"
	"path"
	"strings"
)

// Payload is one buffer to parse plus the hints used to pick a parser.
type Payload struct {
	URL         string
	FileName    string
	ContentType string
	Body        []byte
}

func (p Payload) mediaType() string {
	ct := strings.ToLower(p.ContentType)
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(ct)
}

// ext returns the lower-cased extension of the file name, or of the URL path when no name is set.
func (p Payload) ext() string {
	name := p.FileName
	if name == "" && p.URL != "" {
		if u, err := url.Parse(p.URL); err == nil {
			name = u.Path
		}
	}
	return strings.ToLower(path.Ext(name))
}

// genericType reports whether the content type carries no useful format hint.
func (p Payload) genericType() bool {
	switch p.mediaType() {
	case "", "application/octet-stream", "binary/octet-stream", "application/download", "text/plain":
		return true
	}
	return false
}

func (p Payload) isPDF() bool {
	if p.mediaType() == "application/pdf" || bytes.HasPrefix(bytes.TrimLeft(p.Body, " \t\r\n"), []byte("%PDF-")) {
		return true
	}
	return p.ext() == ".pdf" && p.genericType()
}

func (p Payload) isJSON() bool {
	if strings.Contains(p.mediaType(), "json") {
		return true
	}
	return p.ext() == ".json" && p.genericType()
}

func (p Payload) isCSV() bool {
	if strings.Contains(p.mediaType(), "csv") {
		return true
	}
	return (p.ext() == ".csv" || p.ext() == ".tsv") && p.genericType()
}

func (p Payload) isMarkdown() bool {
	if strings.Contains(p.mediaType(), "markdown") {
		return true
	}
	return (p.ext() == ".md" || p.ext() == ".markdown") && p.genericType()
}

var htmlMarkers = [][]byte{
	[]byte("<!doctype html"), []byte("<html"), []byte("<body"), []byte("<head"),
	[]byte("<table"), []byte("<div"), []byte("<article"), []byte("<p>"), []byte("<ul"),
}

func (p Payload) isHTML() bool {
	mt := p.mediaType()
	if strings.Contains(mt, "html") {
		return true
	}
	head := p.Body
	if len(head) > 4096 {
		head = head[:4096]
	}
	head = bytes.ToLower(head)
	for _, m := range htmlMarkers {
		if bytes.Contains(head, m) {
			return true
		}
	}
	return false
}
