package aggregator

import (
	"context"
	"sync"
	"time"

	"github.com/atikulmunna/loglens/internal/model"
)

// rateWindow is the span over which records/sec is computed.
const rateWindow = 5 * time.Second

// Stats holds a point-in-time snapshot of live ingestion metrics.
type Stats struct {
	Uptime        string           `json:"uptime"`
	LiveRecords   int64            `json:"live_records"`
	RPS           float64          `json:"rps"`
	Conversions   int64            `json:"conversions"`
	StatusClasses map[string]int64 `json:"status_classes"`
	DroppedLive   int64            `json:"dropped_live"`
	Offset        int64            `json:"offset"`
}

// Aggregator subscribes to the Hub and computes time-windowed metrics over
// records ingested since startup.
type Aggregator struct {
	mu          sync.RWMutex
	startTime   time.Time
	total       int64
	conversions int64
	classes     map[string]int64
	window      []time.Time // arrival times within rateWindow
	dropped     func() int64
	offset      func() int64
	records     <-chan model.LogRecord
	now         func() time.Time
}

// New creates an Aggregator that reads from the given Hub subscriber channel.
// droppedFn and offsetFn provide live values from the Hub and Tailer.
func New(records <-chan model.LogRecord, droppedFn, offsetFn func() int64) *Aggregator {
	return &Aggregator{
		startTime: time.Now(),
		classes:   make(map[string]int64),
		dropped:   droppedFn,
		offset:    offsetFn,
		records:   records,
		now:       time.Now,
	}
}

// Snapshot returns the current metrics.
func (a *Aggregator) Snapshot() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	classes := make(map[string]int64, len(a.classes))
	for k, v := range a.classes {
		classes[k] = v
	}

	cutoff := a.now().Add(-rateWindow)
	var recent int
	for _, t := range a.window {
		if t.After(cutoff) {
			recent++
		}
	}

	s := Stats{
		Uptime:        time.Since(a.startTime).Truncate(time.Second).String(),
		LiveRecords:   a.total,
		RPS:           float64(recent) / rateWindow.Seconds(),
		Conversions:   a.conversions,
		StatusClasses: classes,
	}
	if a.dropped != nil {
		s.DroppedLive = a.dropped()
	}
	if a.offset != nil {
		s.Offset = a.offset()
	}
	return s
}

// Start begins consuming records and updating metrics. Blocks until the
// context is cancelled or the channel is closed.
func (a *Aggregator) Start(ctx context.Context) {
	// Periodically prune the sliding window.
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-a.records:
			if !ok {
				return
			}
			a.record(rec)
		case <-ticker.C:
			a.prune()
		}
	}
}

func (a *Aggregator) record(rec model.LogRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	if rec.IsConversion {
		a.conversions++
	}
	a.classes[StatusClass(rec.Status)]++
	a.window = append(a.window, a.now())
}

// prune removes arrival times older than the rate window.
func (a *Aggregator) prune() {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := a.now().Add(-rateWindow)
	i := 0
	for _, t := range a.window {
		if t.After(cutoff) {
			a.window[i] = t
			i++
		}
	}
	a.window = a.window[:i]
}

// StatusClass buckets an HTTP status code as 1xx..5xx, or "other" when
// the code is not a three digit number.
func StatusClass(status string) string {
	if len(status) != 3 || status[0] < '1' || status[0] > '5' {
		return "other"
	}
	for _, c := range status[1:] {
		if c < '0' || c > '9' {
			return "other"
		}
	}
	return status[:1] + "xx"
}
