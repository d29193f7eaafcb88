package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/atikulmunna/loglens/internal/model"
)

// Format names an input layout.
type Format string

const (
	FormatAuto       Format = "auto"
	FormatCSV        Format = "csv"
	FormatWhitespace Format = "whitespace"
)

// ErrFieldCount is returned for a line with the wrong number of fields.
var ErrFieldCount = errors.New("wrong field count")

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatCSV, FormatWhitespace:
		return f, nil
	case "raw", "log":
		return FormatWhitespace, nil
	default:
		return "", fmt.Errorf("unknown input format %q (want auto, csv or whitespace)", s)
	}
}

// Detect resolves FormatAuto from a file name: .csv files are CSV and
// anything else is a whitespace-delimited raw log. Compression suffixes are
// ignored.
func Detect(name string, f Format) Format {
	if f != FormatAuto && f != "" {
		return f
	}
	base := strings.ToLower(name)
	for _, ext := range []string{".gz", ".zst"} {
		base = strings.TrimSuffix(base, ext)
	}
	if filepath.Ext(base) == ".csv" {
		return FormatCSV
	}
	return FormatWhitespace
}

// Parser converts one raw input line into a RawRecord.
type Parser interface {
	ParseLine(line string) (model.RawRecord, error)
}

// New returns the line parser for f. FormatAuto parses as whitespace.
func New(f Format) Parser {
	if f == FormatCSV {
		return NewCSVParser(len(model.CanonicalColumns))
	}
	return NewWhitespaceParser()
}

// ---------------------------------------------------------------------------
// Whitespace Parser
// ---------------------------------------------------------------------------

// WhitespaceParser splits raw log lines on runs of whitespace. Lines must
// carry exactly the five positional fields.
type WhitespaceParser struct{}

func NewWhitespaceParser() *WhitespaceParser { return &WhitespaceParser{} }

func (p *WhitespaceParser) ParseLine(line string) (model.RawRecord, error) {
	fields := strings.Fields(line)
	if len(fields) != len(model.CanonicalColumns) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrFieldCount, len(fields), len(model.CanonicalColumns))
	}
	return model.RawRecord(fields), nil
}

// ---------------------------------------------------------------------------
// CSV Parser
// ---------------------------------------------------------------------------

// CSVParser parses a single comma-delimited line. A positive width
// rejects lines with any other number of fields.
type CSVParser struct {
	width int
}

func NewCSVParser(width int) *CSVParser { return &CSVParser{width: width} }

func (p *CSVParser) ParseLine(line string) (model.RawRecord, error) {
	r := newCSVReader(strings.NewReader(line))
	fields, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("csv: %w", err)
	}
	if p.width > 0 && len(fields) != p.width {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrFieldCount, len(fields), p.width)
	}
	return model.RawRecord(trimAll(fields)), nil
}

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	return cr
}

func trimAll(fields []string) []string {
	for i, f := range fields {
		fields[i] = strings.TrimSpace(f)
	}
	return fields
}
