package dataset

import (
	"reflect"
	"sync"
	"testing"

	"github.com/atikulmunna/loglens/internal/model"
)

func rec(method, country string, hour int, conv bool) model.LogRecord {
	return model.LogRecord{Method: method, Country: country, Hour: hour, Weekday: "Thursday", IsConversion: conv}
}

func TestEmptyDataset(t *testing.T) {
	d := New()

	if got := d.ConversionRate(); got != 0.0 {
		t.Errorf("expected 0.0, got %f", got)
	}
	if got := d.ConversionRateByMethod(); len(got) != 0 {
		t.Errorf("expected no methods, got %v", got)
	}
	if got := d.TopCountries(5); len(got) != 0 {
		t.Errorf("expected no countries, got %v", got)
	}
	if _, ok := d.PeakHour(); ok {
		t.Error("expected no peak hour on an empty dataset")
	}
	if s := d.Summary(5); s.Total != 0 || s.PeakHour != -1 || s.ConversionRate != 0 {
		t.Errorf("unexpected empty summary %+v", s)
	}
}

func TestConversionRates(t *testing.T) {
	d := New()
	d.Append([]model.LogRecord{
		rec("GET", "US", 1, true),
		rec("GET", "US", 1, false),
		rec("GET", "UK", 2, false),
		rec("POST", "IN", 3, true),
	})

	if got := d.ConversionRate(); got != 0.5 {
		t.Errorf("expected 0.5, got %f", got)
	}
	want := map[string]float64{"GET": 1.0 / 3.0, "POST": 1.0}
	if got := d.ConversionRateByMethod(); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTopCountriesStableTies(t *testing.T) {
	d := New(
		rec("GET", "CA", 0, false),
		rec("GET", "US", 0, false),
		rec("GET", "IN", 0, false),
		rec("GET", "US", 0, false),
		rec("GET", "IN", 0, false),
		rec("GET", "Unknown", 0, false),
	)

	got := d.TopCountries(3)
	want := []CountryCount{{"US", 2}, {"IN", 2}, {"CA", 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if all := d.TopCountries(-1); len(all) != 4 {
		t.Errorf("expected 4 countries, got %d", len(all))
	}
	if none := d.TopCountries(0); len(none) != 0 {
		t.Errorf("expected 0 countries, got %v", none)
	}
}

func TestAppendPreservesOrder(t *testing.T) {
	d := New()
	d.Append([]model.LogRecord{{Resource: "/a"}, {Resource: "/b"}})
	d.Append(nil)
	d.Append([]model.LogRecord{{Resource: "/c"}})

	var got []string
	for _, r := range d.Records() {
		got = append(got, r.Resource)
	}
	if !reflect.DeepEqual(got, []string{"/a", "/b", "/c"}) {
		t.Errorf("unexpected order %v", got)
	}
	if d.Len() != 3 {
		t.Errorf("expected 3 records, got %d", d.Len())
	}
}

func TestSlice(t *testing.T) {
	d := New(model.LogRecord{Resource: "/0"}, model.LogRecord{Resource: "/1"}, model.LogRecord{Resource: "/2"})

	if got := d.Slice(1, 1); len(got) != 1 || got[0].Resource != "/1" {
		t.Errorf("unexpected slice %v", got)
	}
	if got := d.Slice(1, 0); len(got) != 2 {
		t.Errorf("expected 2 records, got %d", len(got))
	}
	if got := d.Slice(10, 5); len(got) != 0 {
		t.Errorf("expected empty slice, got %v", got)
	}

	// Slices are copies.
	s := d.Slice(0, 1)
	s[0].Resource = "/changed"
	if d.Records()[0].Resource != "/0" {
		t.Error("slice aliases dataset storage")
	}
}

func TestTemporalAggregates(t *testing.T) {
	d := New(
		rec("GET", "US", 9, false),
		rec("GET", "US", 14, false),
		rec("GET", "US", 14, true),
		model.LogRecord{Hour: 9, Weekday: "Monday"},
	)

	h := d.HourlyCounts()
	if h[9] != 2 || h[14] != 2 {
		t.Errorf("unexpected hourly counts %v", h)
	}
	if peak, ok := d.PeakHour(); !ok || peak != 9 {
		t.Errorf("expected earliest tied peak 9, got %d", peak)
	}

	w := d.WeekdayCounts()
	if w[0].Weekday != "Monday" || w[0].Count != 1 || w[3].Weekday != "Thursday" || w[3].Count != 3 {
		t.Errorf("unexpected weekday counts %v", w)
	}

	s := d.Summary(10)
	if s.Total != 4 || s.Conversions != 1 || s.PeakHour != 9 {
		t.Errorf("unexpected summary %+v", s)
	}
}

func TestConcurrentAppendAndQuery(t *testing.T) {
	d := New()
	batch := make([]model.LogRecord, 10)
	for i := range batch {
		batch[i] = rec("GET", "US", 1, i%2 == 0)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			d.Append(batch)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			// Appends are whole batches, so readers only see multiples of 10.
			if n := d.Summary(1).Total; n%10 != 0 {
				t.Errorf("observed partial append: %d records", n)
				return
			}
		}
	}()
	wg.Wait()

	if d.Len() != 2000 {
		t.Errorf("expected 2000 records, got %d", d.Len())
	}
}
