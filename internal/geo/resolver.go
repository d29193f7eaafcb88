// Package geo resolves client addresses to ISO country codes.
//
// A Resolver consults an optional country database, opened lazily on the
// first lookup, and falls back to a deterministic table keyed by the leading
// IPv4 octet whenever the database is unavailable or has no answer.
package geo

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/atikulmunna/loglens/internal/metrics"
	"github.com/atikulmunna/loglens/internal/model"
)

// Status is the lifecycle state of the resolver's database handle.
type Status int

const (
	Uninitialized Status = iota
	Unavailable
	Ready
)

func (s Status) String() string {
	switch s {
	case Unavailable:
		return "unavailable"
	case Ready:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Resolution sources, used as metric labels.
const (
	sourceDatabase = "database"
	sourceFallback = "fallback"
	sourceInvalid  = "invalid"
)

// Resolver maps addresses to country codes. It is safe for concurrent use.
type Resolver struct {
	open   Opener
	ranges []Range
	logger *zap.Logger

	once   sync.Once
	mu     sync.RWMutex
	status Status
	db     Database
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRanges replaces the fallback table. Callers should check the table
// with ValidateRanges first.
func WithRanges(ranges []Range) Option {
	return func(r *Resolver) {
		r.ranges = append([]Range(nil), ranges...)
	}
}

// WithLogger sets the logger used to report database availability.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver returns a Resolver using open to acquire the database. A nil
// opener means no database: every lookup uses the fallback table.
func NewResolver(open Opener, opts ...Option) *Resolver {
	r := &Resolver{
		open:   open,
		ranges: DefaultRanges,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the country code for addr, or "Unknown". It never fails.
func (r *Resolver) Resolve(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		metrics.GeoResolutions.WithLabelValues(sourceInvalid).Inc()
		return model.UnknownCountry
	}

	if code, ok := r.lookup(addr); ok {
		metrics.GeoResolutions.WithLabelValues(sourceDatabase).Inc()
		return code
	}

	metrics.GeoResolutions.WithLabelValues(sourceFallback).Inc()
	return fallbackCountry(addr, r.ranges)
}

// Status reports whether the database has been opened.
func (r *Resolver) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Close releases the database handle, if one was opened. Later lookups use
// the fallback table.
func (r *Resolver) Close() error {
	// Settle the lazy open so a concurrent first lookup cannot reopen.
	r.once.Do(func() { r.setStatus(Unavailable, nil) })

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	r.status = Unavailable
	return err
}

// lookup opens the handle on first use and queries it. The read lock is
// held for the whole query so Close cannot release the handle under it.
func (r *Resolver) lookup(addr string) (string, bool) {
	r.once.Do(r.init)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.db == nil {
		return "", false
	}
	code, err := r.db.Country(addr)
	if err != nil {
		r.logger.Debug("geo lookup failed, using fallback",
			zap.String("address", addr), zap.Error(err))
		return "", false
	}
	return code, true
}

func (r *Resolver) init() {
	if r.open == nil {
		r.logger.Info("no geo database configured, using fallback ranges")
		r.setStatus(Unavailable, nil)
		return
	}
	db, err := r.open()
	if err != nil {
		r.logger.Warn("geo database unavailable, using fallback ranges", zap.Error(err))
		r.setStatus(Unavailable, nil)
		return
	}
	r.logger.Info("geo database ready")
	r.setStatus(Ready, db)
}

func (r *Resolver) setStatus(s Status, db Database) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = s
	r.db = db
}
