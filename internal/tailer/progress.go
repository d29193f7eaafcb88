package tailer

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/atikulmunna/loglens/internal/model"
)

// progressData is the on-disk JSON structure of a progress report.
type progressData struct {
	model.IngestionState
	UpdatedAt time.Time `json:"updated_at"`
}

// Progress publishes the tailer's ingestion state to a JSON file for
// outside inspection. It is a report only: a new Tailer always starts at
// the current end of the file.
type Progress struct {
	mu   sync.RWMutex
	path string
	data progressData
}

// NewProgress returns a Progress writing to path.
func NewProgress(path string) *Progress {
	return &Progress{path: path}
}

// Get returns the last recorded state.
func (p *Progress) Get() model.IngestionState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.data.IngestionState
}

// Set records the current state.
func (p *Progress) Set(s model.IngestionState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data.IngestionState = s
	p.data.UpdatedAt = time.Now().UTC()
}

// Save writes the state to disk atomically.
func (p *Progress) Save() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	raw, err := json.MarshalIndent(p.data, "", "  ")
	if err != nil {
		return err
	}

	// Write to a temp file first, then rename for atomicity.
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, p.path)
}

// ReadProgress loads a progress report written by Save.
func ReadProgress(path string) (model.IngestionState, time.Time, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.IngestionState{}, time.Time{}, err
	}
	var d progressData
	if err := json.Unmarshal(raw, &d); err != nil {
		return model.IngestionState{}, time.Time{}, err
	}
	return d.IngestionState, d.UpdatedAt, nil
}
