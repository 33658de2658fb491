package source

import (
	"strings"

	"github.com/tenkings/setops-ingest/internal/setops"
)

// UploadedFile is a manually supplied source buffer.
type UploadedFile struct {
	FileName    string
	Buffer      []byte
	ContentType string
}

// ParsedUpload is the parse result of an uploaded file.
type ParsedUpload struct {
	Rows       []setops.Record `json:"rows"`
	ParserName string          `json:"parserName"`
	Title      string          `json:"title,omitempty"`
}

// ParseUploadedSourceFile parses an uploaded buffer and explains, per format, why nothing was found.
func (d *Dispatcher) ParseUploadedSourceFile(file UploadedFile) (ParsedUpload, error) {
	if len(strings.TrimSpace(string(file.Buffer))) == 0 {
		return ParsedUpload{}, setops.Errorf(setops.KindInput, "Uploaded file %q is empty.", file.FileName)
	}
	p := Payload{FileName: file.FileName, ContentType: file.ContentType, Body: file.Buffer}
	rows, name, err := d.ParseBuffer(p)
	if len(rows) > 0 {
		return ParsedUpload{Rows: rows, ParserName: name, Title: Title(p)}, nil
	}
	return ParsedUpload{}, setops.Wrap(setops.KindParse, uploadGuidance(p), err)
}

func uploadGuidance(p Payload) string {
	switch {
	case p.isPDF():
		return "No checklist rows found in the PDF. It may be a scanned image; export a text-based PDF or convert the checklist to CSV."
	case p.isJSON():
		return "No rows found in the JSON file. Provide an array of objects, or an object with a rows/data/items array."
	case p.isCSV():
		return "No rows found in the CSV file. The first line must be a header row such as Set,Parallel,CardNumber."
	case p.isMarkdown():
		return "No checklist rows found in the Markdown file. Use a pipe table or a list of \"<card number> <player>\" items."
	case p.isHTML():
		return "No checklist table or card list found in the HTML file. Save the checklist page itself, not a search or index page."
	default:
		return "Could not parse rows from the uploaded file. Upload CSV, JSON, PDF, HTML or Markdown."
	}
}
