// Package pdftext extracts text lines from PDF content streams without font or CMap support.
package pdftext

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"errors"
	"io"
	"strings"
	"unicode"
	"unicode/utf16"
)

var (
	kwStream    = []byte("stream")
	kwEndStream = []byte("endstream")
	kwEndObj    = []byte("endobj")
	kwDictOpen  = []byte("<<")
)

// maxInflated bounds a single decompressed stream.
const maxInflated = 32 << 20

// Lines decodes every content stream in buf and returns the text lines in document order.
// Comment lines and purely numeric lines are dropped.
func Lines(buf []byte) []string {
	var out []string
	for _, stream := range streams(buf) {
		if isImage(stream.dict) {
			continue
		}
		data := stream.data
		if bytes.Contains(stream.dict, []byte("/FlateDecode")) {
			data = inflate(data)
		}
		for _, line := range decodeContent(data) {
			if keepLine(line) {
				out = append(out, line)
			}
		}
	}
	return out
}

// Text returns Lines joined with newlines.
func Text(buf []byte) string {
	return strings.Join(Lines(buf), "\n")
}

type rawStream struct {
	dict []byte
	data []byte
}

func streams(buf []byte) []rawStream {
	var out []rawStream
	pos := 0
	for pos < len(buf) {
		idx := bytes.Index(buf[pos:], kwStream)
		if idx < 0 {
			break
		}
		at := pos + idx
		if at >= 3 && bytes.Equal(buf[at-3:at], []byte("end")) {
			pos = at + len(kwStream)
			continue
		}
		start := at + len(kwStream)
		if start < len(buf) && buf[start] == '\r' {
			start++
		}
		if start < len(buf) && buf[start] == '\n' {
			start++
		}
		end := bytes.Index(buf[start:], kwEndStream)
		if end < 0 {
			break
		}
		data := bytes.TrimRight(buf[start:start+end], "\r\n")
		out = append(out, rawStream{dict: dictBefore(buf, at), data: data})
		pos = start + end + len(kwEndStream)
	}
	return out
}

// dictBefore returns the dictionary that precedes the stream keyword at offset at.
func dictBefore(buf []byte, at int) []byte {
	region := buf[:at]
	boundary := 0
	if i := bytes.LastIndex(region, kwEndStream); i >= 0 && i+len(kwEndStream) > boundary {
		boundary = i + len(kwEndStream)
	}
	if i := bytes.LastIndex(region, kwEndObj); i >= 0 && i+len(kwEndObj) > boundary {
		boundary = i + len(kwEndObj)
	}
	region = region[boundary:]
	open := bytes.Index(region, kwDictOpen)
	if open < 0 {
		return nil
	}
	return region[open:]
}

func isImage(dict []byte) bool {
	compact := bytes.ReplaceAll(dict, []byte(" "), nil)
	return bytes.Contains(compact, []byte("/Subtype/Image"))
}

// inflate tries zlib, then raw deflate, and falls back to the input bytes.
// A zlib stream cut short after its header still yields the text decoded so far.
func inflate(data []byte) []byte {
	if zr, err := zlib.NewReader(bytes.NewReader(data)); err == nil {
		out, err := io.ReadAll(io.LimitReader(zr, maxInflated))
		_ = zr.Close()
		if err == nil || (len(out) > 0 && errors.Is(err, io.ErrUnexpectedEOF)) {
			return out
		}
	}
	fr := flate.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(io.LimitReader(fr, maxInflated))
	_ = fr.Close()
	if err == nil {
		return out
	}
	return data
}

func keepLine(line string) bool {
	if line == "" || strings.HasPrefix(line, "%") {
		return false
	}
	for _, r := range line {
		if !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			return true
		}
	}
	return false
}

// decodeString maps PDF string bytes to text: UTF-16BE when BOM-prefixed, Latin-1 otherwise.
func decodeString(raw []byte) string {
	if len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF {
		body := raw[2:]
		units := make([]uint16, 0, len(body)/2)
		for i := 0; i+1 < len(body); i += 2 {
			units = append(units, uint16(body[i])<<8|uint16(body[i+1]))
		}
		return dropControls(string(utf16.Decode(units)))
	}
	runes := make([]rune, 0, len(raw))
	for _, b := range raw {
		runes = append(runes, rune(b))
	}
	return dropControls(string(runes))
}

func dropControls(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\t' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
