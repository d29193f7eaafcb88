package cmd

import (
	"testing"

	"github.com/atikulmunna/loglens/internal/model"
)

func TestStatusClasses(t *testing.T) {
	got := statusClasses(" 4XX, 5xx ,,")
	if len(got) != 2 || !got["4xx"] || !got["5xx"] {
		t.Errorf("statusClasses = %v", got)
	}
	if len(statusClasses("")) != 0 {
		t.Error("empty filter should yield an empty set")
	}
}

func TestShouldShow(t *testing.T) {
	conv := model.LogRecord{Status: "404", IsConversion: true}
	plain := model.LogRecord{Status: "200"}

	tests := []struct {
		name     string
		rec      model.LogRecord
		classes  map[string]bool
		convOnly bool
		want     bool
	}{
		{"no filter", plain, nil, false, true},
		{"class match", conv, statusClasses("4xx"), false, true},
		{"class miss", plain, statusClasses("4xx,5xx"), false, false},
		{"conversions only hides plain", plain, nil, true, false},
		{"conversions only keeps conversion", conv, nil, true, true},
		{"both filters", conv, statusClasses("5xx"), true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldShow(tt.rec, tt.classes, tt.convOnly); got != tt.want {
				t.Errorf("shouldShow = %v, want %v", got, tt.want)
			}
		})
	}
}
