package core

// streaming.go prepares delimited text input for parsing.
//
// Uploaded files arrive from spreadsheets, exports and hand edits, so the
// input is cleaned before it reaches encoding/csv:
//
//   - A leading UTF-8 BOM (0xEF 0xBB 0xBF) from Windows programs is dropped
//   - Invalid UTF-8 bytes are replaced with '?'
//   - The field delimiter is sniffed from the header line
//
// All of it works on a buffered reader, so memory stays bounded by the
// buffer size rather than the file size.

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// sniffSize bounds how much of the header line is inspected when guessing
// the delimiter.
const sniffSize = 4096

// candidateDelimiters are the alternatives to a comma, in priority order.
var candidateDelimiters = []byte{';', '\t', '|'}

// newCSVReader wraps r for parsing: BOM skipped, UTF-8 sanitized, delimiter
// detected. Records may have any number of fields; quoting is strict.
func newCSVReader(r io.Reader) *csv.Reader {
	br := bufio.NewReaderSize(r, sniffSize)
	skipBOM(br)
	delim := sniffDelimiter(br)

	cr := csv.NewReader(newUTF8Sanitizer(br))
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return cr
}

// skipBOM discards a leading UTF-8 byte order mark, if present.
func skipBOM(br *bufio.Reader) {
	if b, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
}

// sniffDelimiter picks the most frequent delimiter on the first line. Comma
// wins ties and is the default for empty input.
func sniffDelimiter(br *bufio.Reader) rune {
	line, _ := br.Peek(sniffSize)
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}

	best, bestCount := ',', bytes.Count(line, []byte{','})
	for _, d := range candidateDelimiters {
		if c := bytes.Count(line, []byte{d}); c > bestCount {
			best, bestCount = rune(d), c
		}
	}
	return best
}

// utf8Sanitizer replaces invalid UTF-8 bytes with '?' as they are read.
type utf8Sanitizer struct {
	src   *bufio.Reader
	carry []byte
}

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &utf8Sanitizer{src: br}
}

// Read implements io.Reader.
func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	n := copy(p, s.carry)
	s.carry = s.carry[n:]

	var buf [utf8.UTFMax]byte
	for n < len(p) {
		r, size, err := s.src.ReadRune()
		if err != nil {
			if err == io.EOF && n > 0 {
				return n, nil
			}
			return n, err
		}
		if r == utf8.RuneError && size == 1 {
			r = '?'
		}

		w := utf8.EncodeRune(buf[:], r)
		c := copy(p[n:], buf[:w])
		n += c
		if c < w {
			s.carry = append(s.carry, buf[c:w]...)
		}
	}
	return n, nil
}
