package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/atikulmunna/loglens/internal/dataset"
)

var (
	styleHeading = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213"))
	styleLabel   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	styleBar     = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

const barWidth = 30

// WriteSummary renders a dataset summary as text or JSON.
func WriteSummary(w io.Writer, s dataset.Summary, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	var b strings.Builder
	fmt.Fprintln(&b, styleHeading.Render("Key metrics"))
	fmt.Fprintf(&b, "  %s %s\n", styleLabel.Render("Total requests: "), humanize.Comma(int64(s.Total)))
	fmt.Fprintf(&b, "  %s %.1f%% (%s)\n", styleLabel.Render("Conversion rate:"),
		s.ConversionRate*100, humanize.Comma(int64(s.Conversions)))
	if s.PeakHour >= 0 {
		fmt.Fprintf(&b, "  %s %02d:00 - %02d:00\n", styleLabel.Render("Peak hour:      "), s.PeakHour, (s.PeakHour+1)%24)
	}

	if len(s.ConversionByType) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, styleHeading.Render("Conversion by method"))
		methods := make([]string, 0, len(s.ConversionByType))
		for m := range s.ConversionByType {
			methods = append(methods, m)
		}
		sort.Strings(methods)
		for _, m := range methods {
			fmt.Fprintf(&b, "  %-8s %5.1f%%\n", m, s.ConversionByType[m]*100)
		}
	}

	if len(s.TopCountries) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, styleHeading.Render("Top countries"))
		peak := s.TopCountries[0].Count
		for _, c := range s.TopCountries {
			fmt.Fprintf(&b, "  %-8s %s %s\n", c.Country, bar(c.Count, peak), humanize.Comma(int64(c.Count)))
		}
	}

	if s.Total > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, styleHeading.Render("Requests by hour"))
		peak := 0
		for _, n := range s.Hourly {
			if n > peak {
				peak = n
			}
		}
		for h, n := range s.Hourly {
			if n == 0 {
				continue
			}
			fmt.Fprintf(&b, "  %02d  %s %s\n", h, bar(n, peak), humanize.Comma(int64(n)))
		}

		fmt.Fprintln(&b)
		fmt.Fprintln(&b, styleHeading.Render("Requests by weekday"))
		peak = 0
		for _, d := range s.Weekly {
			if d.Count > peak {
				peak = d.Count
			}
		}
		for _, d := range s.Weekly {
			fmt.Fprintf(&b, "  %-9s %s %s\n", d.Weekday, bar(d.Count, peak), humanize.Comma(int64(d.Count)))
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func bar(n, peak int) string {
	if peak <= 0 {
		return strings.Repeat(" ", barWidth)
	}
	filled := n * barWidth / peak
	return styleBar.Render(strings.Repeat("█", filled)) + strings.Repeat(" ", barWidth-filled)
}
