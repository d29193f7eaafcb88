// Package tailer incrementally ingests lines appended to a log file.
//
// A Tailer records the byte offset it has consumed, reads only the suffix
// written since, and never consumes a trailing line that has no terminator
// yet. Complete lines go through the same normalize and enrich pipeline as
// the bulk path and are appended to the dataset.
package tailer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"

	"github.com/atikulmunna/loglens/internal/enricher"
	"github.com/atikulmunna/loglens/internal/metrics"
	"github.com/atikulmunna/loglens/internal/model"
	"github.com/atikulmunna/loglens/internal/parser"
	"github.com/atikulmunna/loglens/internal/schema"
	"github.com/atikulmunna/loglens/internal/watcher"
)

// Status is a step of the ingestion state machine:
// Idle -> Watching -> Reading -> Enriching -> Appended -> Watching, with
// Stopped as the terminal state.
type Status int

const (
	Idle Status = iota
	Watching
	Reading
	Enriching
	Appended
	Stopped
)

var statusNames = [...]string{"idle", "watching", "reading", "enriching", "appended", "stopped"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// ErrStopped is returned by operations on a stopped Tailer.
var ErrStopped = errors.New("tailer stopped")

// Sink receives enriched records in file order.
type Sink interface {
	Append(records []model.LogRecord)
}

// Tailer follows one log file and feeds its growth into a Sink.
type Tailer struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	offset   int64
	status   Status
	format   parser.Format
	columns  []string // nil until a CSV header has been seen or ruled out
	parser   parser.Parser
	charset  encoding.Encoding
	enricher *enricher.Enricher
	sink     Sink
	publish  chan<- model.LogRecord
	progress *Progress
	logger   *zap.Logger
}

// Option configures a Tailer.
type Option func(*Tailer)

// WithFormat selects the line format (whitespace by default). CSV files
// may start with a header row naming the columns in any order.
func WithFormat(f parser.Format) Option {
	return func(t *Tailer) { t.format = f }
}

// WithEncoding decodes appended bytes from enc before parsing.
func WithEncoding(enc encoding.Encoding) Option {
	return func(t *Tailer) { t.charset = enc }
}

// WithPublish sends every appended record to ch as well, for live
// subscribers. Sends block until received or the context is done.
func WithPublish(ch chan<- model.LogRecord) Option {
	return func(t *Tailer) { t.publish = ch }
}

// WithProgress writes the ingestion state to p after each batch.
func WithProgress(p *Progress) Option {
	return func(t *Tailer) { t.progress = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tailer) { t.logger = l }
}

// New creates a Tailer for path. Call Open before handling changes.
func New(path string, e *enricher.Enricher, sink Sink, opts ...Option) *Tailer {
	t := &Tailer{
		path:     path,
		format:   parser.FormatWhitespace,
		charset:  encoding.Nop,
		enricher: e,
		sink:     sink,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.format != parser.FormatCSV {
		t.setColumns(parser.PositionalColumns(len(model.CanonicalColumns)))
	}
	return t
}

// setColumns fixes the column layout and the parser width that goes with it.
func (t *Tailer) setColumns(cols []string) {
	t.columns = cols
	if t.format == parser.FormatCSV {
		t.parser = parser.NewCSVParser(len(cols))
	} else {
		t.parser = parser.NewWhitespaceParser()
	}
}

// detectColumns settles the CSV layout from the first line of the file and
// reports whether that line is a header.
func (t *Tailer) detectColumns(line string) bool {
	row, err := parser.NewCSVParser(0).ParseLine(line)
	if err != nil || len(row) == 0 {
		return false
	}
	if parser.IsHeader(row) {
		t.setColumns(row)
		return true
	}
	t.setColumns(parser.PositionalColumns(len(row)))
	return false
}

// readHeader reads the first complete line of f, if there is one.
func (t *Tailer) readHeader(f *os.File, size int64) (string, bool) {
	line, err := bufio.NewReader(io.NewSectionReader(f, 0, size)).ReadString('\n')
	if err != nil {
		return "", false
	}
	decoded, err := t.charset.NewDecoder().String(line)
	if err != nil {
		return "", false
	}
	return strings.TrimRight(decoded, "\r\n"), true
}

// Open opens the file and seeks to its current end, so only content
// written afterwards is ingested.
func (t *Tailer) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.status {
	case Stopped:
		return ErrStopped
	case Idle:
	default:
		return nil
	}

	f, err := os.Open(t.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", t.path, err)
	}
	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return fmt.Errorf("seek %s: %w", t.path, err)
	}

	if t.format == parser.FormatCSV && t.columns == nil {
		if line, ok := t.readHeader(f, offset); ok {
			t.detectColumns(line)
		}
	}

	t.file = f
	t.offset = offset
	t.status = Watching
	metrics.TailerOffset.Set(float64(offset))
	t.logger.Info("tailing file", zap.String("path", t.path), zap.Int64("offset", offset))
	return nil
}

// Run handles watcher events in delivery order until ctx is cancelled,
// events is closed, or the file goes away. The file handle is released on
// every return path.
func (t *Tailer) Run(ctx context.Context, events <-chan watcher.Event) error {
	if err := t.Open(); err != nil {
		return err
	}
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := t.handleEvent(ctx, ev); err != nil {
				return err
			}
		}
	}
}

// handleEvent dispatches one watcher event. Only removal of the file is
// fatal; read faults are logged and retried on the next event.
func (t *Tailer) handleEvent(ctx context.Context, ev watcher.Event) error {
	switch {
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		t.logger.Warn("watched file removed, stopping", zap.String("path", ev.Path))
		return fmt.Errorf("%s: %w", ev.Path, ErrStopped)

	case ev.Op&(fsnotify.Write|fsnotify.Create) != 0:
		if _, err := t.HandleChange(ctx); err != nil {
			if errors.Is(err, ErrStopped) {
				return err
			}
			t.logger.Warn("ingestion fault, will retry", zap.String("path", t.path), zap.Error(err))
		}
	}
	return nil
}

// HandleChange ingests the complete lines written since the last call and
// returns how many records were appended. Calling it with no new bytes
// appends nothing.
func (t *Tailer) HandleChange(ctx context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status == Stopped {
		return 0, ErrStopped
	}
	if t.status == Idle {
		return 0, errors.New("tailer not open")
	}

	t.status = Reading
	chunk, err := t.readComplete()
	if err != nil {
		t.status = Watching
		return 0, err
	}
	if len(chunk) == 0 {
		t.status = Watching
		return 0, nil
	}

	batch := uuid.New().String()
	t.status = Enriching
	records, skipped := t.enrichLines(chunk, batch)

	// Bytes are consumed whether or not their lines produced records.
	t.offset += int64(len(chunk))
	metrics.TailerOffset.Set(float64(t.offset))

	if len(records) > 0 {
		t.sink.Append(records)
		metrics.TailerBatches.Inc()
		t.status = Appended
		t.forward(ctx, records)
	}
	t.saveProgress()
	t.status = Watching

	t.logger.Debug("ingested batch",
		zap.String("batch_id", batch),
		zap.Int("records", len(records)),
		zap.Int("skipped", skipped),
		zap.Int64("offset", t.offset))
	return len(records), nil
}

// readComplete returns the bytes from offset up to and including the last
// line terminator. A trailing partial line is left for a later call.
func (t *Tailer) readComplete() ([]byte, error) {
	info, err := t.file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", t.path, err)
	}
	size := info.Size()
	if size < t.offset {
		// Truncated in place: re-derive the offset from the current size.
		t.logger.Warn("file shrank, skipping to end",
			zap.String("path", t.path), zap.Int64("offset", t.offset), zap.Int64("size", size))
		t.offset = size
		return nil, nil
	}
	if size == t.offset {
		return nil, nil
	}

	buf := make([]byte, size-t.offset)
	n, err := t.file.ReadAt(buf, t.offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read %s: %w", t.path, err)
	}
	buf = buf[:n]

	end := bytes.LastIndexByte(buf, '\n')
	if end < 0 {
		return nil, nil
	}
	return buf[:end+1], nil
}

// enrichLines parses, normalizes and enriches each line of chunk in file
// order. Malformed lines are skipped one by one.
func (t *Tailer) enrichLines(chunk []byte, batch string) ([]model.LogRecord, int) {
	var skipped int
	text, err := t.charset.NewDecoder().Bytes(chunk)
	if err != nil {
		t.logger.Warn("decode batch", zap.String("batch_id", batch), zap.Error(err))
		return nil, strings.Count(string(chunk), "\n")
	}

	var rows []model.RawRecord
	for _, line := range strings.Split(string(text), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if t.columns == nil {
			if t.detectColumns(line) {
				continue
			}
			if t.columns == nil {
				skipped++
				continue
			}
		}
		row, err := t.parser.ParseLine(line)
		if err != nil {
			skipped++
			metrics.LinesSkipped.Inc()
			t.logger.Debug("skipping malformed line", zap.String("batch_id", batch), zap.Error(err))
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, skipped
	}
	table := model.Table{Columns: t.columns, Rows: rows}

	normalized, err := schema.Normalize(table)
	if err != nil {
		t.logger.Warn("normalize batch", zap.String("batch_id", batch), zap.Error(err))
		return nil, skipped + len(table.Rows)
	}
	records, stats, err := t.enricher.EnrichTable(normalized)
	if err != nil {
		t.logger.Error("enrich batch", zap.String("batch_id", batch), zap.Error(err))
		return nil, skipped + len(table.Rows)
	}
	return records, skipped + stats.Dropped + stats.Malformed
}

// forward publishes records to live subscribers, if configured.
func (t *Tailer) forward(ctx context.Context, records []model.LogRecord) {
	if t.publish == nil {
		return
	}
	for _, r := range records {
		select {
		case t.publish <- r:
		case <-ctx.Done():
			return
		}
	}
}

func (t *Tailer) saveProgress() {
	if t.progress == nil {
		return
	}
	t.progress.Set(model.IngestionState{Path: t.path, Offset: t.offset})
	if err := t.progress.Save(); err != nil {
		t.logger.Warn("progress save failed", zap.Error(err))
	}
}

// Stop closes the file and moves to Stopped. It is safe to call more than
// once.
func (t *Tailer) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status == Stopped {
		return nil
	}
	t.status = Stopped
	t.saveProgress()

	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	t.logger.Info("tailer stopped", zap.String("path", t.path), zap.Int64("offset", t.offset))
	return err
}

// State returns the current ingestion state.
func (t *Tailer) State() model.IngestionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return model.IngestionState{Path: t.path, Offset: t.offset}
}

// Status returns the current step of the state machine.
func (t *Tailer) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}
