// Package tui renders command output: headed sections, aligned key/value
// lists, tables and progress bars.
package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/logflow/pmcore/pkg/evaluation"
)

var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
)

// Printer writes styled output to w. Styles degrade to plain text when w
// is not a terminal.
type Printer struct {
	w io.Writer
}

// NewPrinter returns a printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Header prints the program banner.
func (p *Printer) Header(version string) {
	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, titleStyle.Render("  PMCORE")+mutedStyle.Render(" "+version))
	fmt.Fprintln(p.w, mutedStyle.Render("  Process discovery and conformance checking"))
	fmt.Fprintln(p.w)
}

// Section prints a section title.
func (p *Printer) Section(title string) {
	fmt.Fprintln(p.w, accentStyle.Render("▸ "+strings.ToUpper(title)))
}

// Success prints a completion line.
func (p *Printer) Success(msg string) {
	fmt.Fprintln(p.w, successStyle.Render("  ✓ "+msg))
}

// Warn prints a deviation or failure line.
func (p *Printer) Warn(msg string) {
	fmt.Fprintln(p.w, accentStyle.Render("  ✗ "+msg))
}

// KV is one line of a key/value list.
type KV struct {
	Key   string
	Value string
}

// KeyValues prints pairs with the values aligned.
func (p *Printer) KeyValues(pairs []KV) {
	width := 0
	for _, kv := range pairs {
		width = max(width, lipgloss.Width(kv.Key))
	}
	for _, kv := range pairs {
		key := mutedStyle.Render(kv.Key + ":" + strings.Repeat(" ", width-lipgloss.Width(kv.Key)))
		fmt.Fprintf(p.w, "  %s %s\n", key, titleStyle.Render(kv.Value))
	}
}

// Table prints rows under headers, padding every column to its widest
// cell.
func (p *Printer) Table(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			widths[i] = max(widths[i], lipgloss.Width(row[i]))
		}
	}
	line := func(cells []string, style lipgloss.Style) string {
		parts := make([]string, len(widths))
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			parts[i] = style.Render(cell) + strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
		}
		return "  " + strings.TrimRight(strings.Join(parts, "  "), " ")
	}
	fmt.Fprintln(p.w, line(headers, headerStyle))
	for _, row := range rows {
		fmt.Fprintln(p.w, line(row, lipgloss.NewStyle()))
	}
}

// Report prints the quality dimensions of an evaluation.
func (p *Printer) Report(r *evaluation.Report) {
	p.Section("evaluation")
	p.KeyValues([]KV{
		{"Fitness (log)", Ratio(r.Fitness.Log)},
		{"Fitness (avg trace)", Ratio(r.Fitness.AverageTrace)},
		{"Fitting traces", Percent(r.Fitness.PercFitTraces)},
		{"Precision", Ratio(r.Precision)},
		{"Generalization", Ratio(r.Generalization)},
		{"Simplicity (arc degree)", Ratio(r.Simplicity.ArcDegree)},
		{"Extended Cardoso", Ratio(r.Simplicity.ExtendedCardoso)},
		{"Extended cyclomatic", fmt.Sprint(r.Simplicity.ExtendedCyclomatic)},
		{"F-score", Ratio(r.FScore)},
		{"Average", Ratio(r.Average)},
	})
}

// Progress creates a progress bar over total items writing to the
// printer's writer.
func (p *Printer) Progress(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// Ratio formats a value in [0, 1] with four decimals.
func Ratio(v float64) string {
	return fmt.Sprintf("%.4f", v)
}

// Percent formats a share as a percentage.
func Percent(v float64) string {
	return fmt.Sprintf("%.1f%%", 100*v)
}

// Duration formats a duration for humans.
func Duration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// Number abbreviates large counts.
func Number(n int64) string {
	switch {
	case n < 1000:
		return fmt.Sprintf("%d", n)
	case n < 1000000:
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	default:
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
}
