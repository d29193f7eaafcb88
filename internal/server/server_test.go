package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/atikulmunna/loglens/internal/aggregator"
	"github.com/atikulmunna/loglens/internal/dataset"
	"github.com/atikulmunna/loglens/internal/hub"
	"github.com/atikulmunna/loglens/internal/model"
)

func testDataset() *dataset.Dataset {
	return dataset.New(
		model.LogRecord{Method: "GET", Resource: "/promo", Country: "US", Hour: 9, Weekday: "Thursday", IsConversion: true},
		model.LogRecord{Method: "GET", Resource: "/", Country: "UK", Hour: 9, Weekday: "Thursday"},
		model.LogRecord{Method: "POST", Resource: "/jobs", Country: "US", Hour: 10, Weekday: "Thursday", IsConversion: true},
	)
}

func get(t *testing.T, h http.Handler, path string, out interface{}) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil && rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("%s: invalid JSON: %v", path, err)
		}
	}
	return rec.Code
}

func TestSummaryEndpoint(t *testing.T) {
	s := New(testDataset(), nil, nil, "0", nil)

	var sum dataset.Summary
	if code := get(t, s.Handler(), "/api/summary?top=1", &sum); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if sum.Total != 3 || sum.Conversions != 2 || sum.PeakHour != 9 {
		t.Errorf("unexpected summary %+v", sum)
	}
	if len(sum.TopCountries) != 1 || sum.TopCountries[0].Country != "US" {
		t.Errorf("unexpected top countries %+v", sum.TopCountries)
	}
}

func TestRecordsEndpoint(t *testing.T) {
	s := New(testDataset(), nil, nil, "0", nil)

	var body struct {
		Total   int               `json:"total"`
		Records []model.LogRecord `json:"records"`
	}
	if code := get(t, s.Handler(), "/api/records?offset=1&limit=1", &body); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body.Total != 3 || len(body.Records) != 1 || body.Records[0].Resource != "/" {
		t.Errorf("unexpected body %+v", body)
	}

	if code := get(t, s.Handler(), "/api/records?limit=-5", nil); code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative limit, got %d", code)
	}
}

func TestCountriesAndConversions(t *testing.T) {
	s := New(testDataset(), nil, nil, "0", nil)

	var countries []dataset.CountryCount
	get(t, s.Handler(), "/api/countries?n=5", &countries)
	if len(countries) != 2 || countries[0].Country != "US" || countries[0].Count != 2 {
		t.Errorf("unexpected countries %+v", countries)
	}

	var conv struct {
		Rate     float64            `json:"rate"`
		ByMethod map[string]float64 `json:"by_method"`
	}
	get(t, s.Handler(), "/api/conversions", &conv)
	if conv.ByMethod["POST"] != 1 || conv.ByMethod["GET"] != 0.5 {
		t.Errorf("unexpected conversions %+v", conv)
	}
}

func TestLiveEndpointsWithoutWatcher(t *testing.T) {
	s := New(dataset.New(), nil, nil, "0", nil)

	for _, path := range []string{"/api/stats", "/api/ingestion", "/ws"} {
		if code := get(t, s.Handler(), path, nil); code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, code)
		}
	}

	var health map[string]interface{}
	if code := get(t, s.Handler(), "/healthz", &health); code != http.StatusOK || health["status"] != "ok" {
		t.Errorf("unexpected health %d %v", code, health)
	}
}

func TestIngestionEndpoint(t *testing.T) {
	s := New(dataset.New(), nil, nil, "0", nil, WithIngestion(func() (model.IngestionState, string) {
		return model.IngestionState{Path: "/var/log/access.log", Offset: 42}, "watching"
	}))

	var body map[string]interface{}
	get(t, s.Handler(), "/api/ingestion", &body)
	if body["path"] != "/var/log/access.log" || body["offset"] != float64(42) || body["status"] != "watching" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := New(dataset.New(), nil, nil, "0", nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Errorf("unexpected metrics response %d", rec.Code)
	}
}

func TestWebSocketStream(t *testing.T) {
	input := make(chan model.LogRecord, 4)
	h := hub.New(input, nil)
	agg := aggregator.New(h.Subscribe(), h.Dropped, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Start(ctx)
	go agg.Start(ctx)

	s := New(dataset.New(), h, agg, "0", nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// Give the handler a moment to subscribe.
	time.Sleep(100 * time.Millisecond)
	input <- model.LogRecord{Resource: "/schedule", IsConversion: true, Status: "200"}

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var got model.LogRecord
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatal(err)
	}
	if got.Resource != "/schedule" || !got.IsConversion {
		t.Errorf("unexpected record %+v", got)
	}

	var stats aggregator.Stats
	if code := get(t, s.Handler(), "/api/stats", &stats); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}
