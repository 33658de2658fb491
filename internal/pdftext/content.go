package pdftext

import (
	"strconv"
	"strings"
)

// kerningSpace is the TJ adjustment (in thousandths of a text unit) treated as a word gap.
const kerningSpace = -200

type lineBuilder struct {
	parts   []string
	pending string
	hasText bool
	lines   []string
}

func (b *lineBuilder) appendPending() {
	if b.hasText {
		b.parts = append(b.parts, b.pending)
	}
	b.pending, b.hasText = "", false
}

func (b *lineBuilder) flush() {
	joined := strings.Join(strings.Fields(strings.Join(b.parts, " ")), " ")
	if joined != "" {
		b.lines = append(b.lines, joined)
	}
	b.parts = b.parts[:0]
}

func (b *lineBuilder) setPending(s string) {
	b.pending, b.hasText = s, true
}

// decodeContent interprets the text-showing operators of one content stream.
func decodeContent(data []byte) []string {
	s := &scanner{data: data}
	b := &lineBuilder{}
	for {
		tok, ok := s.next()
		if !ok {
			break
		}
		switch tok.kind {
		case tokString:
			b.setPending(tok.text)
		case tokOperator:
			switch tok.text {
			case "Tj", "TJ":
				b.appendPending()
			case "'", `"`:
				b.appendPending()
				b.flush()
			case "T*", "Td", "TD", "ET":
				b.flush()
				b.pending, b.hasText = "", false
			case "BI":
				s.skipInlineImage()
				b.pending, b.hasText = "", false
			default:
				b.pending, b.hasText = "", false
			}
		}
	}
	b.flush()
	return b.lines
}

type tokenKind int

const (
	tokString tokenKind = iota + 1
	tokOperand
	tokOperator
)

type token struct {
	kind tokenKind
	text string
}

type scanner struct {
	data []byte
	pos  int
}

func isWhite(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0:
		return true
	}
	return false
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (s *scanner) next() (token, bool) {
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		switch {
		case isWhite(c):
			s.pos++
		case c == '%':
			s.skipComment()
		case c == '(':
			s.pos++
			return token{kind: tokString, text: decodeString(s.literal())}, true
		case c == '<':
			if s.pos+1 < len(s.data) && s.data[s.pos+1] == '<' {
				s.pos += 2
				return token{kind: tokOperand, text: "<<"}, true
			}
			s.pos++
			return token{kind: tokString, text: decodeString(s.hex())}, true
		case c == '>':
			s.pos++
			if s.pos < len(s.data) && s.data[s.pos] == '>' {
				s.pos++
			}
			return token{kind: tokOperand, text: ">>"}, true
		case c == '[':
			s.pos++
			return token{kind: tokString, text: s.array()}, true
		case c == ']' || c == ')' || c == '{' || c == '}':
			s.pos++
		case c == '/':
			s.pos++
			return token{kind: tokOperand, text: "/" + s.word()}, true
		default:
			w := s.word()
			if w == "" {
				s.pos++
				continue
			}
			if isNumber(w) {
				return token{kind: tokOperand, text: w}, true
			}
			return token{kind: tokOperator, text: w}, true
		}
	}
	return token{}, false
}

func (s *scanner) skipComment() {
	for s.pos < len(s.data) && s.data[s.pos] != '\n' && s.data[s.pos] != '\r' {
		s.pos++
	}
}

func (s *scanner) word() string {
	start := s.pos
	for s.pos < len(s.data) && !isWhite(s.data[s.pos]) && !isDelim(s.data[s.pos]) {
		s.pos++
	}
	return string(s.data[start:s.pos])
}

func isNumber(w string) bool {
	_, err := strconv.ParseFloat(w, 64)
	return err == nil
}

// literal reads a parenthesized string body; the opening paren is already consumed.
func (s *scanner) literal() []byte {
	var out []byte
	depth := 1
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return out
			}
			out = append(out, c)
		case '\\':
			if s.pos >= len(s.data) {
				return out
			}
			e := s.data[s.pos]
			s.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '(', ')', '\\':
				out = append(out, e)
			case '\r':
				if s.pos < len(s.data) && s.data[s.pos] == '\n' {
					s.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && s.pos < len(s.data); i++ {
						d := s.data[s.pos]
						if d < '0' || d > '7' {
							break
						}
						v = v*8 + int(d-'0')
						s.pos++
					}
					out = append(out, byte(v&0xFF))
				} else {
					out = append(out, e)
				}
			}
		default:
			out = append(out, c)
		}
	}
	return out
}

// hex reads a hex string body; the opening angle bracket is already consumed.
func (s *scanner) hex() []byte {
	var digits []byte
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			break
		}
		if isHexDigit(c) {
			digits = append(digits, c)
		}
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, 0, len(digits)/2)
	for i := 0; i < len(digits); i += 2 {
		out = append(out, hexVal(digits[i])<<4|hexVal(digits[i+1]))
	}
	return out
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexVal(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// array concatenates the strings of a TJ array; large negative kerning becomes a space.
func (s *scanner) array() string {
	var sb strings.Builder
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		switch {
		case c == ']':
			s.pos++
			return sb.String()
		case isWhite(c):
			s.pos++
		case c == '(':
			s.pos++
			sb.WriteString(decodeString(s.literal()))
		case c == '<':
			s.pos++
			sb.WriteString(decodeString(s.hex()))
		default:
			w := s.word()
			if w == "" {
				s.pos++
				continue
			}
			if f, err := strconv.ParseFloat(w, 64); err == nil && f <= kerningSpace {
				if cur := sb.String(); cur != "" && !strings.HasSuffix(cur, " ") {
					sb.WriteByte(' ')
				}
			}
		}
	}
	return sb.String()
}

// skipInlineImage advances past the binary payload of a BI ... ID ... EI block.
func (s *scanner) skipInlineImage() {
	for s.pos+1 < len(s.data) {
		if s.data[s.pos] == 'E' && s.data[s.pos+1] == 'I' &&
			(s.pos == 0 || isWhite(s.data[s.pos-1])) &&
			(s.pos+2 >= len(s.data) || isWhite(s.data[s.pos+2])) {
			s.pos += 2
			return
		}
		s.pos++
	}
	s.pos = len(s.data)
}
