// Package enricher turns normalized raw records into LogRecords.
package enricher

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/atikulmunna/loglens/internal/metrics"
	"github.com/atikulmunna/loglens/internal/model"
	"github.com/atikulmunna/loglens/internal/schema"
)

// epochDate is prepended to every time-of-day token before parsing.
const epochDate = "1970-01-01 "

// DefaultMarkers classify a resource as a conversion.
var DefaultMarkers = []string{"demo", "promo", "job", "schedule"}

// timeLayouts are tried in order against "1970-01-01 <time>".
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02 3:04:05 PM",
	"2006-01-02 3:04:05PM",
	"2006-01-02 3:04 PM",
	"2006-01-02 3:04PM",
}

// ParseWarning reports a record dropped because its time did not parse.
type ParseWarning struct {
	Time string
}

func (w *ParseWarning) Error() string {
	return fmt.Sprintf("unparsable time %q", w.Time)
}

// Resolver maps a client address to a country code.
type Resolver interface {
	Resolve(addr string) string
}

// Stats counts the outcome of enriching a table.
type Stats struct {
	Enriched  int `json:"enriched"`
	Dropped   int `json:"dropped"`   // unparsable time
	Malformed int `json:"malformed"` // row too short for the schema
}

// Enricher derives timestamp, hour, weekday, conversion flag and country.
type Enricher struct {
	resolver Resolver
	markers  []string
	logger   *zap.Logger
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithMarkers replaces the conversion marker set. Markers are matched
// case-insensitively.
func WithMarkers(markers []string) Option {
	return func(e *Enricher) {
		e.markers = e.markers[:0]
		for _, m := range markers {
			if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
				e.markers = append(e.markers, m)
			}
		}
	}
}

// WithLogger sets the logger for per-record warnings.
func WithLogger(l *zap.Logger) Option {
	return func(e *Enricher) { e.logger = l }
}

// New returns an Enricher resolving countries with r.
func New(r Resolver, opts ...Option) *Enricher {
	e := &Enricher{
		resolver: r,
		markers:  append([]string(nil), DefaultMarkers...),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich builds a LogRecord from f. A *ParseWarning is returned when the
// time does not parse; no other derivation is attempted in that case.
func (e *Enricher) Enrich(f model.Fields) (model.LogRecord, error) {
	ts, ok := parseTime(f.Time)
	if !ok {
		return model.LogRecord{}, &ParseWarning{Time: f.Time}
	}

	return model.LogRecord{
		Time:          f.Time,
		ClientAddress: f.ClientAddress,
		Method:        f.Method,
		Resource:      f.Resource,
		Status:        f.Status,
		Timestamp:     ts,
		Hour:          ts.Hour(),
		Weekday:       ts.Weekday().String(),
		IsConversion:  e.IsConversion(f.Resource),
		Country:       e.resolver.Resolve(f.ClientAddress),
	}, nil
}

// EnrichTable enriches every row of a normalized table, in order. Rows that
// fail are dropped and counted; only a table lacking the canonical columns
// is an error.
func (e *Enricher) EnrichTable(t model.Table) ([]model.LogRecord, Stats, error) {
	var stats Stats
	idx, err := schema.Index(t)
	if err != nil {
		return nil, stats, err
	}

	out := make([]model.LogRecord, 0, len(t.Rows))
	for i, row := range t.Rows {
		f, ok := idx.Fields(row)
		if !ok {
			stats.Malformed++
			metrics.RecordsDropped.WithLabelValues("malformed").Inc()
			e.logger.Debug("skipping short row", zap.Int("row", i), zap.Int("fields", len(row)))
			continue
		}
		rec, err := e.Enrich(f)
		if err != nil {
			stats.Dropped++
			metrics.RecordsDropped.WithLabelValues("time").Inc()
			e.logger.Debug("dropping record", zap.Int("row", i), zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	stats.Enriched = len(out)
	metrics.RecordsEnriched.Add(float64(stats.Enriched))

	if stats.Dropped > 0 || stats.Malformed > 0 {
		e.logger.Warn("records discarded during enrichment",
			zap.Int("dropped", stats.Dropped), zap.Int("malformed", stats.Malformed))
	}
	return out, stats, nil
}

// IsConversion reports whether resource contains any conversion marker.
func (e *Enricher) IsConversion(resource string) bool {
	lower := strings.ToLower(resource)
	for _, m := range e.markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func parseTime(tok string) (time.Time, bool) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return time.Time{}, false
	}
	s := epochDate + tok
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
