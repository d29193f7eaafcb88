package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/atikulmunna/loglens/internal/aggregator"
	"github.com/atikulmunna/loglens/internal/model"
)

// Renderer writes LogRecord values to an output stream.
type Renderer interface {
	Render(rec model.LogRecord) error
}

// New returns the renderer for format ("json" or text) writing to stdout.
func New(format string) Renderer {
	if format == "json" {
		return NewJSONRenderer()
	}
	return NewTextRenderer()
}

// ---------------------------------------------------------------------------
// Text Renderer (colorized terminal output)
// ---------------------------------------------------------------------------

var (
	style2xx     = lipgloss.NewStyle().Foreground(lipgloss.Color("245")) // gray
	style3xx     = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))  // cyan
	style4xx     = lipgloss.NewStyle().Foreground(lipgloss.Color("220")) // yellow
	style5xx     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleOther   = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Faint(true)
	styleCountry = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Faint(true)
	styleConv    = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("28")).
			Bold(true) // white on green
)

// TextRenderer prints records to the terminal with status-based colors.
type TextRenderer struct {
	w io.Writer
}

// NewTextRenderer returns a Renderer that writes colorized text to stdout.
func NewTextRenderer() *TextRenderer {
	return &TextRenderer{w: os.Stdout}
}

func (r *TextRenderer) Render(rec model.LogRecord) error {
	status := styleStatus(rec.Status)
	country := styleCountry.Render(fmt.Sprintf("%-7s", rec.Country))

	line := fmt.Sprintf("%s %s %s %-15s %s %s",
		rec.Timestamp.Format("15:04:05"), status, country, rec.ClientAddress, rec.Method, rec.Resource)
	if rec.IsConversion {
		line += " " + styleConv.Render(" CONV ")
	}
	_, err := fmt.Fprintln(r.w, line)
	return err
}

func styleStatus(status string) string {
	padded := fmt.Sprintf("%-3s", status)
	switch aggregator.StatusClass(status) {
	case "2xx", "1xx":
		return style2xx.Render(padded)
	case "3xx":
		return style3xx.Render(padded)
	case "4xx":
		return style4xx.Render(padded)
	case "5xx":
		return style5xx.Render(padded)
	default:
		return styleOther.Render(padded)
	}
}

// ---------------------------------------------------------------------------
// JSON Renderer (structured output for piping)
// ---------------------------------------------------------------------------

// JSONRenderer prints each record as a single JSON object per line.
type JSONRenderer struct {
	enc *json.Encoder
}

// NewJSONRenderer returns a Renderer that writes JSON lines to stdout.
func NewJSONRenderer() *JSONRenderer {
	return &JSONRenderer{enc: json.NewEncoder(os.Stdout)}
}

func (r *JSONRenderer) Render(rec model.LogRecord) error {
	return r.enc.Encode(rec)
}
