package source

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tenkings/setops-ingest/internal/setops"
)

// jsonArrayKeys are checked in order when the document is an object.
var jsonArrayKeys = []string{"rows", "data", "items", "records", "cards", "checklist"}

func parseJSON(body []byte) ([]setops.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(bytes.TrimPrefix(body, utf8BOM)))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	var items []any
	switch v := doc.(type) {
	case []any:
		items = v
	case map[string]any:
		for _, key := range jsonArrayKeys {
			if arr, ok := v[key].([]any); ok && hasObject(arr) {
				items = arr
				break
			}
		}
	}
	var out []setops.Record
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rec := setops.Record{}
		for k, val := range obj {
			if s, ok := stringify(val); ok {
				rec[k] = s
			}
		}
		if len(rec) > 0 {
			out = append(out, rec)
		}
	}
	return out, nil
}

func hasObject(arr []any) bool {
	for _, item := range arr {
		if _, ok := item.(map[string]any); ok {
			return true
		}
	}
	return false
}

func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		if t {
			return "true", true
		}
		return "false", true
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return "", false
		}
		return string(data), true
	}
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// sniffDelimiter picks the most frequent of comma, semicolon and tab on the first line.
func sniffDelimiter(body []byte) rune {
	line := body
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	best, bestCount := ',', 0
	for _, d := range []rune{',', ';', '\t'} {
		inQuote, count := false, 0
		for _, c := range string(line) {
			switch {
			case c == '"':
				inQuote = !inQuote
			case c == d && !inQuote:
				count++
			}
		}
		if count > bestCount {
			best, bestCount = d, count
		}
	}
	return best
}

// parseCSV reads a header row and records; blank rows are skipped and ragged rows tolerated.
func parseCSV(body []byte) ([]string, []setops.Record, error) {
	body = bytes.TrimPrefix(body, utf8BOM)
	r := csv.NewReader(bytes.NewReader(body))
	r.Comma = sniffDelimiter(body)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var (
		headers []string
		out     []setops.Record
	)
	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return headers, out, fmt.Errorf("read csv: %w", err)
		}
		if blank(fields) {
			continue
		}
		if headers == nil {
			headers = csvHeaders(fields)
			continue
		}
		rec := setops.Record{}
		for i, f := range fields {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			key := fmt.Sprintf("column_%d", i+1)
			if i < len(headers) {
				key = headers[i]
			}
			rec[key] = f
		}
		out = append(out, rec)
	}
	return headers, out, nil
}

func blank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func csvHeaders(fields []string) []string {
	seen := map[string]int{}
	out := make([]string, len(fields))
	for i, f := range fields {
		name := strings.TrimSpace(f)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s_%d", name, n)
		}
		out[i] = name
	}
	return out
}
