package parser

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/atikulmunna/loglens/internal/model"
)

// maxLineSize bounds a single input line.
const maxLineSize = 1 << 20

// ReadStats counts lines that could not become rows.
type ReadStats struct {
	Lines   int `json:"lines"`
	Skipped int `json:"skipped"`
}

// ReadTable reads a whole input in format f (CSV or whitespace) into a
// Table. Rows with the wrong number of fields are skipped and counted.
//
// CSV input may start with a header row; it is taken as a header when it
// names every canonical column, or when its first field is not a time of
// day. Headerless input gets placeholder column names that the schema
// normalizer renames positionally.
func ReadTable(r io.Reader, f Format) (model.Table, ReadStats, error) {
	switch f {
	case FormatCSV:
		return readCSV(r)
	case FormatWhitespace, FormatAuto, "":
		return readWhitespace(r)
	default:
		return model.Table{}, ReadStats{}, fmt.Errorf("unsupported format %q", f)
	}
}

func readCSV(r io.Reader) (model.Table, ReadStats, error) {
	var stats ReadStats
	cr := newCSVReader(r)

	first, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return model.Table{Columns: PositionalColumns(len(model.CanonicalColumns))}, stats, nil
	}
	if err != nil {
		return model.Table{}, stats, fmt.Errorf("read csv header: %w", err)
	}
	first = trimAll(first)

	var t model.Table
	if IsHeader(first) {
		t.Columns = first
	} else {
		t.Columns = PositionalColumns(len(first))
		t.Rows = append(t.Rows, model.RawRecord(first))
		stats.Lines++
	}

	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				// Row-level syntax errors leave the reader usable.
				stats.Lines++
				stats.Skipped++
				continue
			}
			return model.Table{}, stats, fmt.Errorf("read csv: %w", err)
		}
		stats.Lines++
		if len(row) != len(t.Columns) {
			stats.Skipped++
			continue
		}
		t.Rows = append(t.Rows, model.RawRecord(trimAll(row)))
	}
	return t, stats, nil
}

func readWhitespace(r io.Reader) (model.Table, ReadStats, error) {
	var stats ReadStats
	t := model.Table{Columns: PositionalColumns(len(model.CanonicalColumns))}
	p := NewWhitespaceParser()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		stats.Lines++
		row, err := p.ParseLine(line)
		if err != nil {
			stats.Skipped++
			continue
		}
		t.Rows = append(t.Rows, row)
	}
	if err := sc.Err(); err != nil {
		return model.Table{}, stats, fmt.Errorf("read log: %w", err)
	}
	return t, stats, nil
}

// isHeader decides whether the first CSV row names columns.
func IsHeader(row []string) bool {
	names := make(map[string]bool, len(row))
	for _, c := range row {
		names[strings.ToLower(c)] = true
	}
	all := true
	for _, c := range model.CanonicalColumns {
		if !names[c] && !(c == model.ColClientAddress && names["ip"]) {
			all = false
			break
		}
	}
	if all {
		return true
	}
	return len(row) == 0 || !looksLikeTime(row[0])
}

// looksLikeTime is a cheap check for an H:MM style token.
func looksLikeTime(s string) bool {
	colon := strings.IndexByte(s, ':')
	if colon < 1 || colon > 2 {
		return false
	}
	for _, c := range s[:colon] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// PositionalColumns returns n placeholder names that the schema normalizer
// renames by position.
func PositionalColumns(n int) []string {
	cols := make([]string, n)
	for i := range cols {
		cols[i] = fmt.Sprintf("column_%d", i)
	}
	return cols
}
