// Package dataset holds the in-memory collection of enriched records and
// answers aggregate queries over it.
package dataset

import (
	"sort"
	"sync"
	"time"

	"github.com/atikulmunna/loglens/internal/model"
)

// Weekdays in display order.
var Weekdays = []string{
	time.Monday.String(), time.Tuesday.String(), time.Wednesday.String(),
	time.Thursday.String(), time.Friday.String(), time.Saturday.String(), time.Sunday.String(),
}

// CountryCount is one row of TopCountries.
type CountryCount struct {
	Country string `json:"country"`
	Count   int    `json:"count"`
}

// WeekdayCount is one row of WeekdayCounts.
type WeekdayCount struct {
	Weekday string `json:"weekday"`
	Count   int    `json:"count"`
}

// Summary is a consistent snapshot of every aggregate.
type Summary struct {
	Total            int                `json:"total"`
	Conversions      int                `json:"conversions"`
	ConversionRate   float64            `json:"conversion_rate"`
	ConversionByType map[string]float64 `json:"conversion_by_method"`
	PeakHour         int                `json:"peak_hour"` // -1 when empty
	Hourly           [24]int            `json:"hourly"`
	Weekly           []WeekdayCount     `json:"weekly"`
	TopCountries     []CountryCount     `json:"top_countries"`
}

// Dataset is an append-only, ordered sequence of LogRecords. Readers see
// either the state before or after an Append, never part of one.
type Dataset struct {
	mu      sync.RWMutex
	records []model.LogRecord
}

// New returns a Dataset holding initial, in order.
func New(initial ...model.LogRecord) *Dataset {
	return &Dataset{records: append([]model.LogRecord(nil), initial...)}
}

// Append adds records in the order given. No deduplication is done here.
func (d *Dataset) Append(records []model.LogRecord) {
	if len(records) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records = append(d.records, records...)
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.records)
}

// Records returns a copy of all records.
func (d *Dataset) Records() []model.LogRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]model.LogRecord(nil), d.records...)
}

// Slice returns a copy of up to limit records starting at offset. A
// non-positive limit means no limit.
func (d *Dataset) Slice(offset, limit int) []model.LogRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if offset < 0 {
		offset = 0
	}
	if offset >= len(d.records) {
		return []model.LogRecord{}
	}
	end := len(d.records)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return append([]model.LogRecord(nil), d.records[offset:end]...)
}

// ConversionRate is the fraction of records that are conversions, 0 when
// the dataset is empty.
func (d *Dataset) ConversionRate() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return conversionRate(d.records)
}

// ConversionRateByMethod returns the conversion fraction per method.
func (d *Dataset) ConversionRateByMethod() map[string]float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return conversionByMethod(d.records)
}

// TopCountries returns the n most frequent countries, count descending.
// Equal counts keep the order in which the countries first appeared. A
// negative n returns every country.
func (d *Dataset) TopCountries(n int) []CountryCount {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return topCountries(d.records, n)
}

// HourlyCounts returns the number of records per hour of day.
func (d *Dataset) HourlyCounts() [24]int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return hourly(d.records)
}

// WeekdayCounts returns the number of records per weekday, Monday first.
func (d *Dataset) WeekdayCounts() []WeekdayCount {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return weekly(d.records)
}

// PeakHour returns the busiest hour. Ties go to the earliest hour. ok is
// false on an empty dataset.
func (d *Dataset) PeakHour() (hour int, ok bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if len(d.records) == 0 {
		return 0, false
	}
	return peakHour(hourly(d.records)), true
}

// Summary computes every aggregate from a single snapshot.
func (d *Dataset) Summary(topN int) Summary {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s := Summary{
		Total:            len(d.records),
		ConversionRate:   conversionRate(d.records),
		ConversionByType: conversionByMethod(d.records),
		Hourly:           hourly(d.records),
		Weekly:           weekly(d.records),
		TopCountries:     topCountries(d.records, topN),
		PeakHour:         -1,
	}
	for _, r := range d.records {
		if r.IsConversion {
			s.Conversions++
		}
	}
	if s.Total > 0 {
		s.PeakHour = peakHour(s.Hourly)
	}
	return s
}

func conversionRate(records []model.LogRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	var n int
	for _, r := range records {
		if r.IsConversion {
			n++
		}
	}
	return float64(n) / float64(len(records))
}

func conversionByMethod(records []model.LogRecord) map[string]float64 {
	totals := make(map[string]int)
	hits := make(map[string]int)
	for _, r := range records {
		totals[r.Method]++
		if r.IsConversion {
			hits[r.Method]++
		}
	}
	out := make(map[string]float64, len(totals))
	for m, n := range totals {
		out[m] = float64(hits[m]) / float64(n)
	}
	return out
}

func topCountries(records []model.LogRecord, n int) []CountryCount {
	counts := make(map[string]int)
	var order []string
	for _, r := range records {
		if _, seen := counts[r.Country]; !seen {
			order = append(order, r.Country)
		}
		counts[r.Country]++
	}

	out := make([]CountryCount, len(order))
	for i, c := range order {
		out[i] = CountryCount{Country: c, Count: counts[c]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })

	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

func hourly(records []model.LogRecord) [24]int {
	var h [24]int
	for _, r := range records {
		if r.Hour >= 0 && r.Hour < 24 {
			h[r.Hour]++
		}
	}
	return h
}

func weekly(records []model.LogRecord) []WeekdayCount {
	counts := make(map[string]int, len(Weekdays))
	for _, r := range records {
		counts[r.Weekday]++
	}
	out := make([]WeekdayCount, len(Weekdays))
	for i, day := range Weekdays {
		out[i] = WeekdayCount{Weekday: day, Count: counts[day]}
	}
	return out
}

func peakHour(h [24]int) int {
	best := 0
	for i := 1; i < len(h); i++ {
		if h[i] > h[best] {
			best = i
		}
	}
	return best
}
