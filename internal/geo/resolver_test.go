package geo

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fakeDB struct {
	codes  map[string]string
	closed bool
}

func (f *fakeDB) Country(addr string) (string, error) {
	if code, ok := f.codes[addr]; ok {
		return code, nil
	}
	return "", ErrNotFound
}

func (f *fakeDB) Close() error {
	f.closed = true
	return nil
}

func TestFallbackRanges(t *testing.T) {
	r := NewResolver(nil)

	tests := []struct {
		addr string
		want string
	}{
		{"10.0.0.1", "US"},
		{"0.1.2.3", "US"},
		{"49.255.255.255", "US"},
		{"50.0.0.0", "UK"},
		{"75.1.1.1", "UK"},
		{"100.1.1.1", "IN"},
		{"149.0.0.1", "IN"},
		{"150.0.0.1", "CA"},
		{"199.9.9.9", "CA"},
		{"200.1.1.1", "Unknown"},
		{"255.255.255.255", "Unknown"},
	}
	for _, tt := range tests {
		if got := r.Resolve(tt.addr); got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestNonAddressesResolveUnknown(t *testing.T) {
	r := NewResolver(nil)

	for _, addr := range []string{"", "   ", "localhost", "42", "abc.def.ghi.jkl", "300.1.1.1", "::1", "10.0.0", "-1.0.0.1"} {
		if got := r.Resolve(addr); got != "Unknown" {
			t.Errorf("Resolve(%q) = %q, want Unknown", addr, got)
		}
	}
}

func TestDatabaseLookupAndFallthrough(t *testing.T) {
	db := &fakeDB{codes: map[string]string{"8.8.8.8": "DE"}}
	r := NewResolver(func() (Database, error) { return db, nil })

	if got := r.Resolve("8.8.8.8"); got != "DE" {
		t.Errorf("expected database answer DE, got %q", got)
	}
	// Not in the database: falls through to the range table.
	if got := r.Resolve("120.0.0.1"); got != "IN" {
		t.Errorf("expected fallback IN, got %q", got)
	}
	if r.Status() != Ready {
		t.Errorf("expected status ready, got %s", r.Status())
	}

	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if !db.closed {
		t.Error("expected database handle to be closed")
	}
	if got := r.Resolve("8.8.8.8"); got != "US" {
		t.Errorf("expected fallback after close, got %q", got)
	}
}

func TestOpenAttemptedOnce(t *testing.T) {
	var calls int
	var mu sync.Mutex
	r := NewResolver(func() (Database, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil, errors.New("no such file")
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Resolve("10.0.0.1")
		}()
	}
	wg.Wait()
	r.Resolve("75.1.1.1")

	if calls != 1 {
		t.Errorf("expected exactly one open attempt, got %d", calls)
	}
	if r.Status() != Unavailable {
		t.Errorf("expected status unavailable, got %s", r.Status())
	}
}

func TestEmptyAddressSkipsOpen(t *testing.T) {
	opened := false
	r := NewResolver(func() (Database, error) {
		opened = true
		return &fakeDB{}, nil
	})

	if got := r.Resolve(""); got != "Unknown" {
		t.Errorf("expected Unknown, got %q", got)
	}
	if opened {
		t.Error("expected no database open for an empty address")
	}
	if r.Status() != Uninitialized {
		t.Errorf("expected status uninitialized, got %s", r.Status())
	}
}

func TestMissingMMDBIsUnavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.mmdb")
	r := NewResolver(OpenMMDB(path))

	if got := r.Resolve("10.0.0.1"); got != "US" {
		t.Errorf("expected fallback US, got %q", got)
	}
	if r.Status() != Unavailable {
		t.Errorf("expected status unavailable, got %s", r.Status())
	}
}

func TestCustomRanges(t *testing.T) {
	ranges := []Range{{Low: 0, High: 10, Country: "FR"}, {Low: 10, High: 256, Country: "JP"}}
	if err := ValidateRanges(ranges); err != nil {
		t.Fatal(err)
	}
	r := NewResolver(nil, WithRanges(ranges))

	if got := r.Resolve("9.0.0.1"); got != "FR" {
		t.Errorf("expected FR, got %q", got)
	}
	if got := r.Resolve("250.0.0.1"); got != "JP" {
		t.Errorf("expected JP, got %q", got)
	}
}

func TestValidateRanges(t *testing.T) {
	if err := ValidateRanges(DefaultRanges); err != nil {
		t.Errorf("default ranges invalid: %v", err)
	}

	bad := [][]Range{
		{{Low: 10, High: 10, Country: "US"}},
		{{Low: 0, High: 50, Country: ""}},
		{{Low: 0, High: 50, Country: "US"}, {Low: 40, High: 60, Country: "UK"}},
		{{Low: 50, High: 60, Country: "US"}, {Low: 0, High: 10, Country: "UK"}},
	}
	for i, ranges := range bad {
		if err := ValidateRanges(ranges); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

// slowDB blocks each lookup until release is closed.
type slowDB struct {
	entered chan struct{}
	release chan struct{}

	mu            sync.Mutex
	closed        bool
	closedInQuery bool
}

func (s *slowDB) Country(addr string) (string, error) {
	close(s.entered)
	<-s.release
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.closedInQuery = true
	}
	return "DE", nil
}

func (s *slowDB) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func TestCloseWaitsForLookup(t *testing.T) {
	db := &slowDB{entered: make(chan struct{}), release: make(chan struct{})}
	r := NewResolver(func() (Database, error) { return db, nil })

	result := make(chan string, 1)
	go func() { result <- r.Resolve("8.8.8.8") }()
	<-db.entered

	closed := make(chan error, 1)
	go func() { closed <- r.Close() }()

	select {
	case <-closed:
		t.Fatal("Close returned while a lookup was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(db.release)
	if got := <-result; got != "DE" {
		t.Errorf("expected DE, got %q", got)
	}
	select {
	case err := <-closed:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after the lookup finished")
	}
	if db.closedInQuery {
		t.Error("database was closed during a lookup")
	}
}
