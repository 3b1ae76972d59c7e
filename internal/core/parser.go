package core

// parser.go reads uploaded files into header-keyed rows.
//
// Delimited text goes through encoding/csv after the cleanup in
// streaming.go; .xlsx workbooks are read from their first sheet with
// excelize. Both paths share the same row assembly so that header
// normalization, blank-line skipping and row numbering behave identically.

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// RawRow is one data record keyed by normalized header name.
//
// Number is the 1-based ordinal of the record among data rows: the header
// and blank lines are not counted.
type RawRow struct {
	Number int
	values map[string]string
}

// NewRawRow builds a row from a column map. Keys are normalized the same
// way file headers are; values are trimmed.
func NewRawRow(number int, values map[string]string) RawRow {
	row := RawRow{Number: number, values: make(map[string]string, len(values))}
	for k, v := range values {
		row.values[headerKey(k)] = CleanCell(v)
	}
	return row
}

// Get returns the trimmed value for column, or "" when the file has no such
// column or the record was short.
func (r RawRow) Get(column string) string {
	return r.values[column]
}

// ParseError reports a structurally malformed file. It wraps ErrInvalidCSV.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("invalid csv at line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("invalid csv: %v", e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrInvalidCSV, e.Err}
}

// recordSource yields raw records; *csv.Reader satisfies it.
type recordSource interface {
	Read() ([]string, error)
}

// RowReader yields data rows one at a time. The first non-blank record is
// the header.
type RowReader struct {
	src    recordSource
	header []string
	count  int
	done   bool
}

// NewRowReader reads delimited text from r. It consumes the header
// immediately; an error is returned if the header itself is malformed.
func NewRowReader(r io.Reader) (*RowReader, error) {
	return newRowReader(newCSVReader(r))
}

func newRowReader(src recordSource) (*RowReader, error) {
	rr := &RowReader{src: src}

	header, err := rr.readRecord()
	if errors.Is(err, io.EOF) {
		rr.done = true
		return rr, nil
	}
	if err != nil {
		return nil, err
	}

	rr.header = make([]string, len(header))
	for i, h := range header {
		rr.header[i] = headerKey(h)
	}
	return rr, nil
}

// Header returns the normalized header names in file order.
func (r *RowReader) Header() []string {
	return append([]string(nil), r.header...)
}

// Next returns the next data row, io.EOF after the last one, or a
// *ParseError if the file is malformed.
func (r *RowReader) Next() (RawRow, error) {
	if r.done {
		return RawRow{}, io.EOF
	}

	rec, err := r.readRecord()
	if err != nil {
		r.done = true
		return RawRow{}, err
	}

	r.count++
	values := make(map[string]string, len(r.header))
	for i, col := range r.header {
		if col == "" {
			continue
		}
		if _, dup := values[col]; dup {
			continue
		}
		v := ""
		if i < len(rec) {
			v = CleanCell(rec[i])
		}
		values[col] = v
	}
	return RawRow{Number: r.count, values: values}, nil
}

// readRecord returns the next non-blank record.
func (r *RowReader) readRecord() ([]string, error) {
	for {
		rec, err := r.src.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			var csvErr *csv.ParseError
			if errors.As(err, &csvErr) {
				return nil, &ParseError{Line: csvErr.Line, Err: csvErr.Err}
			}
			return nil, &ParseError{Err: err}
		}
		if isBlankRecord(rec) {
			continue
		}
		return rec, nil
	}
}

// ReadAll drains a RowReader over r.
func ReadAll(r io.Reader) ([]RawRow, error) {
	rr, err := NewRowReader(r)
	if err != nil {
		return nil, err
	}
	return rr.collect()
}

func (r *RowReader) collect() ([]RawRow, error) {
	var rows []RawRow
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}

// ParseFile parses an uploaded payload. Files named *.xlsx are read as
// workbooks; anything else is treated as delimited text.
func ParseFile(name string, data []byte) ([]RawRow, error) {
	if strings.EqualFold(filepath.Ext(name), ".xlsx") {
		return parseWorkbook(data)
	}
	return ReadAll(bytes.NewReader(data))
}

// parseWorkbook reads the first sheet of an .xlsx file.
func parseWorkbook(data []byte) ([]RawRow, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Err: fmt.Errorf("open workbook: %w", err)}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &ParseError{Err: fmt.Errorf("read sheet %q: %w", sheets[0], err)}
	}

	rr, err := newRowReader(&sliceSource{records: records})
	if err != nil {
		return nil, err
	}
	return rr.collect()
}

// sliceSource serves records already held in memory.
type sliceSource struct {
	records [][]string
	pos     int
}

func (s *sliceSource) Read() ([]string, error) {
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	rec := s.records[s.pos]
	s.pos++
	return rec, nil
}

// isBlankRecord reports whether every cell in rec is empty after trimming.
func isBlankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
