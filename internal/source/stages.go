package source

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/tenkings/setops-ingest/internal/checklist"
	"github.com/tenkings/setops-ingest/internal/htmltable"
	"github.com/tenkings/setops-ingest/internal/pdftext"
	"github.com/tenkings/setops-ingest/internal/setops"
)

// Parser names reported in fetch results and job summaries.
const (
	ParserPDF          = "pdf-checklist-v1"
	ParserJSON         = "json-v1"
	ParserCSV          = "csv-v1"
	ParserHTMLTable    = "html-table-v1"
	ParserHTMLText     = "html-checklist-text-v1"
	ParserCSVFallback  = "csv-fallback-v1"
	ParserPlainText    = "text-checklist-v1"
	LinkParserSuffix   = "+checklist-link-v1"
	ParserMarkdownTbl  = checklist.ParserMarkdownTable
	ParserMarkdownList = checklist.ParserMarkdownChecklist
)

// Stage is one link in the parser chain.
// A terminal stage owns the payload once it matches, even when it produces no rows.
type Stage struct {
	Name     string
	Terminal bool
	Match    func(Payload) bool
	Parse    func(Payload) ([]setops.Record, string, error)
}

// Chain is an ordered parser list evaluated first-match-wins.
type Chain []Stage

// Run evaluates the chain and returns the first non-empty result.
// handled is true when a terminal stage claimed the payload.
func (c Chain) Run(p Payload) (rows []setops.Record, parser string, handled bool, err error) {
	for _, stage := range c {
		if !stage.Match(p) {
			continue
		}
		rows, name, err := stage.Parse(p)
		if name == "" {
			name = stage.Name
		}
		if stage.Terminal {
			return rows, name, true, err
		}
		if err == nil && len(rows) > 0 {
			return rows, name, true, nil
		}
	}
	return nil, "", false, nil
}

type stageSet struct {
	tables   *htmltable.Parser
	markdown *converter.Converter
}

func newStageSet(tables *htmltable.Parser) *stageSet {
	return &stageSet{
		tables: tables,
		markdown: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// primary holds every stage that runs before link following.
func (s *stageSet) primary() Chain {
	return Chain{
		{Name: ParserPDF, Terminal: true, Match: Payload.isPDF, Parse: parsePDFStage},
		{Name: ParserJSON, Terminal: true, Match: Payload.isJSON, Parse: parseJSONStage},
		{Name: ParserCSV, Terminal: true, Match: Payload.isCSV, Parse: parseCSVStage},
		{Name: ParserMarkdownTbl, Match: Payload.isMarkdown, Parse: parseMarkdownStage},
		{Name: ParserHTMLTable, Match: Payload.isHTML, Parse: s.parseHTMLTableStage},
		{Name: ParserHTMLText, Match: Payload.isHTML, Parse: s.parseHTMLTextStage},
	}
}

// fallback holds the stages tried after link following found nothing.
func (s *stageSet) fallback() Chain {
	return Chain{
		{Name: ParserCSVFallback, Match: csvFallbackCandidate, Parse: parseCSVFallbackStage},
		{Name: ParserPlainText, Match: plainTextCandidate, Parse: parsePlainTextStage},
	}
}

func parsePDFStage(p Payload) ([]setops.Record, string, error) {
	return checklist.ParseText(strings.Join(pdftext.Lines(p.Body), "\n")), ParserPDF, nil
}

func parseJSONStage(p Payload) ([]setops.Record, string, error) {
	rows, err := parseJSON(p.Body)
	return rows, ParserJSON, err
}

func parseCSVStage(p Payload) ([]setops.Record, string, error) {
	_, rows, err := parseCSV(p.Body)
	return rows, ParserCSV, err
}

func parseMarkdownStage(p Payload) ([]setops.Record, string, error) {
	rows, name := checklist.ParseMarkdown(string(p.Body))
	return rows, name, nil
}

func (s *stageSet) parseHTMLTableStage(p Payload) ([]setops.Record, string, error) {
	return s.tables.Parse(string(p.Body)), ParserHTMLTable, nil
}

func (s *stageSet) parseHTMLTextStage(p Payload) ([]setops.Record, string, error) {
	region := s.tables.ContentRegion(string(p.Body))
	if strings.TrimSpace(region) == "" {
		return nil, ParserHTMLText, nil
	}
	md, err := s.markdown.ConvertString(region)
	if err != nil {
		return nil, ParserHTMLText, fmt.Errorf("convert html to markdown: %w", err)
	}
	return checklist.ParseText(md), ParserHTMLText, nil
}

func csvFallbackCandidate(p Payload) bool {
	return !p.isHTML() && !p.isPDF() && utf8.Valid(p.Body)
}

// parseCSVFallbackStage keeps multi-field records under a multi-column header.
func parseCSVFallbackStage(p Payload) ([]setops.Record, string, error) {
	headers, rows, err := parseCSV(p.Body)
	if err != nil || len(headers) < 2 || !plausibleHeader(headers) {
		return nil, ParserCSVFallback, nil
	}
	var kept []setops.Record
	for _, r := range rows {
		if len(r) >= 2 {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		return nil, ParserCSVFallback, nil
	}
	return kept, ParserCSVFallback, nil
}

// plausibleHeader rejects header rows that look like data, such as "1 Mike Trout".
func plausibleHeader(headers []string) bool {
	for _, h := range headers {
		if len(h) > 40 || (h != "" && h[0] >= '0' && h[0] <= '9') {
			return false
		}
	}
	return true
}

func plainTextCandidate(p Payload) bool {
	return !p.isHTML() && !p.isPDF() && utf8.Valid(p.Body)
}

func parsePlainTextStage(p Payload) ([]setops.Record, string, error) {
	return checklist.ParseText(string(p.Body)), ParserPlainText, nil
}
